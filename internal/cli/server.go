package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/Brain-Board-Development/BrainBoard/internal/app"
	"github.com/Brain-Board-Development/BrainBoard/internal/config"
	"github.com/Brain-Board-Development/BrainBoard/internal/domain"
	"github.com/Brain-Board-Development/BrainBoard/internal/infra/memory"
	pgloader "github.com/Brain-Board-Development/BrainBoard/internal/infra/postgres"
	redisinfra "github.com/Brain-Board-Development/BrainBoard/internal/infra/redis"
	transport "github.com/Brain-Board-Development/BrainBoard/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the session coordinator",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	sessionTTL := config.TTLDuration(cfg.Redis.TTL, 2*time.Hour)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
	}

	var loader memory.GameLoader = memory.NewStaticGameLoader(sampleGames())
	if pool != nil {
		loader = pgloader.NewGameLoader(pool)
	}

	gameTTL := config.TTLDuration(cfg.Game.TTL, 10*time.Minute)
	var games app.GameRepository
	if redisClient != nil {
		games = redisinfra.NewGameRepository(redisClient, loader, gameTTL)
	} else {
		games = memory.NewGameRepository(loader, gameTTL)
	}

	var store app.SessionStore
	if redisClient != nil {
		store = redisinfra.NewSessionStore(redisClient, sessionTTL)
	} else {
		store = memory.NewSessionStore()
	}

	defaults := domain.Settings{
		MaxPlayers:      cfg.Session.MaxPlayers,
		MinPlayers:      cfg.Session.MinPlayers,
		TimePerQuestion: config.TTLDuration(cfg.Session.TimePerQuestion, 30*time.Second),
		AllowLateJoin:   cfg.Session.AllowLateJoin,
		HostGracePeriod: config.TTLDuration(cfg.Session.HostGracePeriod, 10*time.Second),
	}
	coord := app.NewCoordinator(store, games, defaults)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      transport.NewRouter(coord),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting session coordinator on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleGames provides minimal demo content; the Postgres loader replaces
// this in production.
func sampleGames() map[string]domain.Game {
	return map[string]domain.Game{
		"game-1": {
			ID:              "game-1",
			Title:           "Warm-up",
			TimePerQuestion: 30 * time.Second,
			Questions: []domain.Question{
				{
					ID:     "q1",
					Prompt: "What is 2 + 2?",
					Options: []domain.Option{
						{ID: "o1", Text: "3", Correct: false},
						{ID: "o2", Text: "4", Correct: true},
						{ID: "o3", Text: "5", Correct: false},
					},
					Points: 100,
				},
				{
					ID:     "q2",
					Prompt: "Which planet is known as the red planet?",
					Options: []domain.Option{
						{ID: "o1", Text: "Venus", Correct: false},
						{ID: "o2", Text: "Mars", Correct: true},
						{ID: "o3", Text: "Jupiter", Correct: false},
					},
					Points: 100,
				},
			},
		},
	}
}
