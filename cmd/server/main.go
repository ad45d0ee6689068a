// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/pixelduel/gamecore/internal/auth"
	"github.com/pixelduel/gamecore/internal/cache"
	"github.com/pixelduel/gamecore/internal/config"
	"github.com/pixelduel/gamecore/internal/database"
	"github.com/pixelduel/gamecore/internal/game"
	"github.com/pixelduel/gamecore/internal/handlers"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.LoadServer()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger, err := config.NewLogger(cfg.LogLevel)
	if err != nil {
		return err
	}

	ttl, err := cfg.TokenTTL()
	if err != nil {
		return err
	}
	signer, err := auth.NewSigner(ttl)
	if err != nil {
		return err
	}

	opts := handlers.Options{
		Signer:        signer,
		GridSize:      cfg.PvpGridSize,
		PixelsToPlace: cfg.PixelsToPlace,
		Cooldown:      cfg.PlacementCooldown,
		Logger:        logger,
		EndedGameTTL:  cfg.EndedGameTTL,
		IdleGameTTL:   cfg.IdleGameTTL,

		AllowedOrigins: cfg.AllowedOrigins,
	}
	checkers := map[string]handlers.Checker{}

	// --- Postgres ---
	if cfg.DatabaseURL != "" {
		pg, err := database.ConnectPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connecting to postgres: %w", err)
		}
		defer pg.Close()
		opts.Store = pg
		checkers["postgres"] = handlers.CheckerFunc(pg.Ping)
		logger.Info("Results stored in postgres")
	} else {
		logger.Info("DATABASE_URL not set, results kept in memory")
	}

	// --- Redis ---
	var feed *handlers.RedisFeed
	if cfg.RedisURL != "" {
		rdb, err := cache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer rdb.Close()
		feed = handlers.NewRedisFeed(rdb, "", logger)
		opts.Queue = game.NewRedisQueue(rdb, "")
		opts.Feed = feed
		checkers["redis"] = handlers.CheckerFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
		logger.Info("Matchmaking queue and feed on redis")
	} else {
		logger.Info("REDIS_URL not set, matchmaking queue and feed kept in memory")
	}

	gs, err := handlers.NewGameServer(opts)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handlers.NewRouter(gs, checkers),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.WithField("addr", cfg.Addr).Info("Starting authority")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if feed != nil {
		g.Go(func() error { return feed.Run(gctx) })
	}

	g.Go(func() error { return gs.RunJanitor(gctx, cfg.SweepInterval) })

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down authority")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
