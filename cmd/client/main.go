// cmd/client/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/pixelduel/gamecore/internal/authority"
	"github.com/pixelduel/gamecore/internal/config"
	"github.com/pixelduel/gamecore/internal/models"
	"github.com/pixelduel/gamecore/internal/pvp"
	"github.com/pixelduel/gamecore/internal/realtime"
	"github.com/pixelduel/gamecore/internal/session"
	"github.com/pixelduel/gamecore/internal/solo"
	"github.com/sirupsen/logrus"
)

const usage = `usage: client <command> [flags]

commands:
  solo          play the memory game, replaying every sequence
  pvp           race for pixels (queue by default, -host or -code to pair by code)
  leaderboard   print the top players
  feed          tail the public placement feed`

type app struct {
	cfg    *config.Client
	log    *logrus.Logger
	client *authority.Client
	m      *session.Manager
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	if err := run(ctx, os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", authority.UserMessage(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd string, args []string) error {
	cfg, err := config.LoadClient()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger, err := config.NewLogger(cfg.LogLevel)
	if err != nil {
		return err
	}

	c := authority.New(cfg.AuthorityURL,
		authority.WithLogger(logger),
		authority.WithHTTPClient(&http.Client{Timeout: cfg.RequestTimeout}),
	)
	a := &app{
		cfg:    cfg,
		log:    logger,
		client: c,
		m: session.NewManager(c, func() session.Channel {
			return realtime.NewGameChannel(cfg.AuthorityURL, c.AuthHeader, logger)
		}, logger),
	}
	defer a.m.ResetGame()

	switch cmd {
	case "solo":
		fs := flag.NewFlagSet("solo", flag.ExitOnError)
		maxLevel := fs.Int("max-level", 10, "stop after clearing this level")
		mistakeAt := fs.Int("mistake-at", 0, "answer wrong on this level (0 never)")
		fs.Parse(args)
		return a.playSolo(ctx, *maxLevel, *mistakeAt)
	case "pvp":
		fs := flag.NewFlagSet("pvp", flag.ExitOnError)
		host := fs.Bool("host", false, "create a game and wait for someone to join by code")
		code := fs.String("code", "", "join a waiting game by code")
		pace := fs.Duration("pace", 300*time.Millisecond, "pause between placements")
		fs.Parse(args)
		return a.playPvp(ctx, *host, *code, *pace)
	case "leaderboard":
		fs := flag.NewFlagSet("leaderboard", flag.ExitOnError)
		limit := fs.Int("limit", 10, "number of players")
		fs.Parse(args)
		return a.leaderboard(ctx, *limit)
	case "feed":
		return a.tailFeed(ctx)
	}
	return fmt.Errorf("unknown command %q\n%s", cmd, usage)
}

func (a *app) signIn(ctx context.Context) error {
	id, err := a.client.SignIn(ctx)
	if err != nil {
		return err
	}
	a.log.WithField("user_id", id.UserID).Infof("Playing as %s", id.Name)
	return nil
}

func (a *app) playSolo(ctx context.Context, maxLevel, mistakeAt int) error {
	if err := a.signIn(ctx); err != nil {
		return err
	}
	engine := solo.NewEngine(a.m, a.client, a.log)

	s, err := a.m.CreateGame(ctx, models.ModeSolo)
	if err != nil {
		return err
	}
	for s.Status == models.StatusPlaying && s.Solo.CurrentLevel <= maxLevel {
		steps, err := engine.ShowSequence(ctx, s.Solo.Sequence, a.cfg.ShowDelay)
		if err != nil {
			return err
		}
		for st := range steps {
			a.log.Debugf("Level %d step %d: (%d,%d)", s.Solo.CurrentLevel, st.Index+1, st.Cell.X, st.Cell.Y)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		for i, c := range s.Solo.Sequence {
			if s.Solo.CurrentLevel == mistakeAt && i == len(s.Solo.Sequence)-1 {
				c.X = (c.X + 1) % s.Solo.GridSize
			}
			engine.AddToUserSequence(c.X, c.Y)
		}
		v, err := engine.SubmitUserSequence(ctx)
		if err != nil {
			return err
		}
		if !v.Correct {
			a.log.Infof("Wrong answer, game over at level %d", v.LevelReached)
		}
		s = a.m.Session()
	}

	if sum := engine.Finish(ctx); sum != nil {
		a.log.WithFields(logrus.Fields{
			"level_reached":   sum.LevelReached,
			"correct_answers": sum.CorrectAnswers,
			"errors":          sum.Errors,
			"play_time":       sum.PlayTimeSeconds,
		}).Info("Result recorded")
	}
	return nil
}

func (a *app) playPvp(ctx context.Context, host bool, code string, pace time.Duration) error {
	if err := a.signIn(ctx); err != nil {
		return err
	}
	engine := pvp.NewEngine(a.m, a.client, a.log)

	var (
		s   *models.Session
		err error
	)
	switch {
	case code != "":
		s, err = a.m.JoinGame(ctx, code)
	case host:
		s, err = a.m.CreateGame(ctx, models.ModePvp)
		if err == nil {
			a.log.Infof("Share join code %s", s.Code)
			s, err = a.m.WaitForOpponent(ctx, a.cfg.QueuePollInterval)
		}
	default:
		s, err = a.m.JoinQueue(ctx)
		if err == nil && s == nil {
			a.log.Info("Waiting in queue")
			s, err = a.m.WaitForMatch(ctx, a.cfg.QueuePollInterval)
		}
	}
	if err != nil {
		return err
	}
	a.log.WithFields(logrus.Fields{"session_id": s.ID, "role": s.Pvp.Role}).Info("Game on")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pace):
		}

		x, y := rand.IntN(s.Pvp.GridSize), rand.IntN(s.Pvp.GridSize)
		color := fmt.Sprintf("#%06x", rand.IntN(1<<24))
		res, err := engine.PlacePixel(ctx, x, y, color)
		switch {
		case errors.Is(err, pvp.ErrSessionFinished), errors.Is(err, pvp.ErrQuotaReached):
			return a.reportPvp()
		case errors.Is(err, authority.ErrRateLimited):
			a.log.Debug(authority.UserMessage(err))
			continue
		case errors.Is(err, authority.ErrRejected):
			// the opponent may have won between our check and the call
			if _, err := a.m.Refresh(ctx); err != nil {
				return err
			}
			continue
		case err != nil:
			return err
		}
		if res.GameFinished {
			return a.reportPvp()
		}
	}
}

func (a *app) reportPvp() error {
	s := a.m.Session()
	if s == nil || s.Pvp == nil {
		return session.ErrNoActiveSession
	}
	outcome := "lost"
	switch s.Pvp.WinnerID {
	case s.CurrentUserID:
		outcome = "won"
	case "":
		outcome = "saw the game cancelled"
	}
	a.log.WithFields(logrus.Fields{
		"placed":   len(s.Pvp.MyPixels),
		"opponent": len(s.Pvp.OpponentPixels),
	}).Infof("You %s", outcome)
	return nil
}

func (a *app) leaderboard(ctx context.Context, limit int) error {
	if err := a.signIn(ctx); err != nil {
		return err
	}
	entries, err := a.m.Leaderboard(ctx, limit)
	if err != nil {
		return err
	}
	for i, e := range entries {
		fmt.Printf("%2d. %-12s level %-3d %s\n", i+1, e.Name, e.MaxLevel, e.FirstAchieved)
	}
	return nil
}

func (a *app) tailFeed(ctx context.Context) error {
	u, err := realtime.WebSocketURL(a.cfg.AuthorityURL, "/ws/feed", nil)
	if err != nil {
		return err
	}
	feed := realtime.NewReconnectingChannel(u, a.log,
		realtime.WithBackoff(a.cfg.FeedBackoff),
		realtime.WithMaxAttempts(a.cfg.FeedMaxAttempts),
	)
	feed.Register(func(msg realtime.Message) {
		if msg.Type != realtime.TypePixelUpdate || msg.PixelPlaced == nil {
			return
		}
		fmt.Printf("%s %s (%d,%d) %s\n", msg.GameID, msg.UserID, msg.X, msg.Y, msg.Color)
	})
	feed.Start(ctx)
	defer feed.Stop()

	select {
	case <-ctx.Done():
	case <-feed.Done():
		a.log.Warn("Feed gave up reconnecting")
	}
	return nil
}
