// internal/handlers/game_server.go
package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/pixelduel/gamecore/internal/auth"
	"github.com/pixelduel/gamecore/internal/database"
	"github.com/pixelduel/gamecore/internal/game"
	"github.com/pixelduel/gamecore/internal/middleware"
	"github.com/sirupsen/logrus"
)

// GameServer is the reference authority: it owns the in-memory games, the matchmaker, result
// storage and the realtime fan-out.
type GameServer struct {
	GameStore  *game.GameStore
	Matchmaker *game.Matchmaker
	Store      database.Store
	Signer     *auth.Signer
	Relay      *Relay
	Feed       Feed

	GridSize      int
	PixelsToPlace int
	Cooldown      time.Duration

	EndedGameTTL time.Duration
	IdleGameTTL  time.Duration

	allowedOrigins []string

	log logrus.FieldLogger
	now func() time.Time
}

// Options configures NewGameServer. Zero values fall back to in-memory backends and defaults.
type Options struct {
	Store         database.Store
	Queue         game.WaitingList
	Feed          Feed
	Signer        *auth.Signer
	GridSize      int
	PixelsToPlace int
	Cooldown      time.Duration
	Logger        logrus.FieldLogger

	// EndedGameTTL keeps finished games around for late refreshes; IdleGameTTL evicts games
	// nobody touched. Zero picks 10 minutes and 1 hour.
	EndedGameTTL time.Duration
	IdleGameTTL  time.Duration

	// AllowedOrigins restricts browser callers; empty allows any http(s) origin.
	AllowedOrigins []string
}

func NewGameServer(opts Options) (*GameServer, error) {
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	if opts.Store == nil {
		opts.Store = database.NewMemoryStore()
	}
	if opts.Queue == nil {
		opts.Queue = game.NewMemoryQueue()
	}
	if opts.Feed == nil {
		opts.Feed = NewBroker()
	}
	if opts.GridSize <= 0 {
		opts.GridSize = 10
	}
	if opts.PixelsToPlace <= 0 {
		opts.PixelsToPlace = 5
	}
	if opts.EndedGameTTL <= 0 {
		opts.EndedGameTTL = 10 * time.Minute
	}
	if opts.IdleGameTTL <= 0 {
		opts.IdleGameTTL = time.Hour
	}
	if opts.Signer == nil {
		s, err := auth.NewSigner(0)
		if err != nil {
			return nil, err
		}
		opts.Signer = s
	}

	store := game.NewGameStore()
	return &GameServer{
		GameStore:      store,
		Matchmaker:     game.NewMatchmaker(store, opts.Queue, opts.GridSize, opts.PixelsToPlace),
		Store:          opts.Store,
		Signer:         opts.Signer,
		Relay:          NewRelay(log),
		Feed:           opts.Feed,
		GridSize:       opts.GridSize,
		PixelsToPlace:  opts.PixelsToPlace,
		Cooldown:       opts.Cooldown,
		EndedGameTTL:   opts.EndedGameTTL,
		IdleGameTTL:    opts.IdleGameTTL,
		allowedOrigins: opts.AllowedOrigins,
		log:            log,
		now:            time.Now,
	}, nil
}

// NewRouter wires every authority route. checkers, if any, are served on /healthz.
func NewRouter(gs *GameServer, checkers map[string]Checker) http.Handler {
	origins := gs.allowedOrigins
	if len(origins) == 0 {
		origins = []string{"https://*", "http://*"}
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Heartbeat("/ping"))
	r.Use(middleware.LogMiddleware(gs.log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if len(checkers) > 0 {
		r.Get("/healthz", HealthHandler(gs.log, checkers))
	}

	r.Post("/api/users/guest", gs.GuestHandler)

	r.Route("/api/games", func(r chi.Router) {
		r.Use(gs.requireUser)
		r.Post("/create", gs.CreateGameHandler)
		r.Post("/join", gs.JoinGameHandler)
		r.Get("/leaderboard", gs.LeaderboardHandler)

		r.Get("/queue", gs.QueueStatusHandler)
		r.Post("/queue/join", gs.JoinQueueHandler)
		r.Post("/queue/leave", gs.LeaveQueueHandler)

		r.Get("/{code}", gs.GetGameHandler)
		r.Post("/{id}/answer", gs.AnswerHandler)
		r.Post("/{id}/pixels", gs.PlacePixelHandler)
		r.Post("/{id}/finish", gs.FinishGameHandler)
	})

	r.Get("/ws/game/{id}", gs.GameWSHandler)
	r.Get("/ws/feed", gs.FeedWSHandler)
	return r
}
