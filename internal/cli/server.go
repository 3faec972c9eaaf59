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

	"cognito-live-service/internal/app"
	"cognito-live-service/internal/config"
	"cognito-live-service/internal/domain"
	"cognito-live-service/internal/infra/memory"
	pginfra "cognito-live-service/internal/infra/postgres"
	redisinfra "cognito-live-service/internal/infra/redis"
	"cognito-live-service/internal/transport/ws"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the live session server",
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
	redisTTL := config.TTLDuration(cfg.Redis.TTL, time.Hour)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
	}

	var loader memory.QuizLoader = memory.NewStaticQuizLoader(sampleQuizzes())
	if pool != nil {
		loader = pginfra.NewQuizLoader(pool)
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizRepo app.QuizRepository
	if redisClient != nil {
		quizRepo = redisinfra.NewQuizRepository(redisClient, loader, quizTTL)
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
	}

	var sessions app.SessionStore
	var matches app.MatchStore
	if redisClient != nil {
		sessions = redisinfra.NewSessionStore(redisClient, redisTTL)
		matches = redisinfra.NewMatchStore(redisClient, redisTTL)
	} else {
		sessions = memory.NewSessionStore()
		matches = memory.NewMatchStore()
	}

	var results app.ResultStore = memory.NewResultStore()
	if pool != nil {
		results = pginfra.NewResultStore(pool)
	}

	duelOpts := app.DuelOptions{
		WaitTTL:           config.TTLDuration(cfg.Duel.WaitTTL, 0),
		ActiveTTL:         config.TTLDuration(cfg.Duel.ActiveTTL, 0),
		NextQuestionDelay: config.TTLDuration(cfg.Duel.NextQuestionDelay, 0),
	}
	reapInterval := config.TTLDuration(cfg.Duel.ReapInterval, time.Minute)

	hub := ws.NewHub()
	finalizer := app.NewFinalizer(results)
	sessionSvc := app.NewSessionService(sessions, quizRepo, finalizer, hub)
	duelSvc := app.NewDuelService(matches, quizRepo, finalizer, hub, duelOpts)
	handler := ws.NewHandler(hub, sessionSvc, duelSvc)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", handler.ServeWS)

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
	}

	reapCtx, stopReaper := context.WithCancel(ctx)
	defer stopReaper()
	go runReaper(reapCtx, duelSvc, reapInterval)

	go func() {
		log.Printf("starting live service on :%s", finalPort)
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

// runReaper periodically cancels duels whose deadline has passed.
func runReaper(ctx context.Context, duels *app.DuelService, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := duels.ReapExpired(ctx); err != nil {
				log.Printf("duel reaper: %v", err)
			} else if n > 0 {
				log.Printf("duel reaper: cancelled %d expired matches", n)
			}
		}
	}
}

// sampleQuizzes provides a minimal set of quiz data; swap this loader with a
// Postgres-backed one in production.
func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:           "quiz-1",
			Title:        "Arithmetic warmup",
			PassingScore: 60,
			Questions: []domain.Question{
				{
					Prompt:       "What is 2 + 2?",
					Options:      []string{"3", "4", "5"},
					CorrectIndex: 1,
					Points:       100,
					TimeLimitSec: 30,
				},
				{
					Prompt:       "What is 6 * 7?",
					Options:      []string{"42", "48", "36"},
					CorrectIndex: 0,
					Points:       100,
					TimeLimitSec: 30,
					Explanation:  "Six sevens are forty-two.",
				},
			},
		},
	}
}
