package cli

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"live-quiz-service/internal/app"
	"live-quiz-service/internal/config"
	"live-quiz-service/internal/infra/amqp"
	"live-quiz-service/internal/infra/auth"
	"live-quiz-service/internal/infra/blob"
	"live-quiz-service/internal/infra/memory"
	"live-quiz-service/internal/infra/postgres"
	rediscache "live-quiz-service/internal/infra/redis"
	"live-quiz-service/internal/jobs"
	transport "live-quiz-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string, envPort string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
	cmd.Flags().StringVar(port, "port", envPort, "port to listen on (overrides server.port)")
	return cmd
}

// adapters are the infrastructure pieces chosen by configuration.
type adapters struct {
	store     app.Store
	questions app.QuestionSource
	sessions  app.SessionRepository
	notifier  app.Notifier
	blobs     app.BlobStore
	blobRead  transport.BlobReader
	closers   []func()
}

func (a *adapters) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	authenticator, err := auth.NewJWT(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}

	ad, err := buildAdapters(ctx, cfg, finalPort)
	if err != nil {
		return err
	}
	defer ad.close()

	services := app.NewServices(app.Deps{
		Store:     ad.store,
		Questions: ad.questions,
		Sessions:  ad.sessions,
		Notifier:  ad.notifier,
		Blobs:     ad.blobs,
		Options: app.Options{
			CodeAttempts:    cfg.Quiz.CodeAttempts,
			MaxRetries:      cfg.Leaderboard.MaxRetries,
			RetryBackoff:    config.TTLDuration(cfg.Leaderboard.RetryBackoff, 0),
			RefreshInterval: config.TTLDuration(cfg.Session.RefreshInterval, 0),
			IdleTimeout:     config.TTLDuration(cfg.Session.IdleTimeout, 0),
			SubmitTimeout:   config.TTLDuration(cfg.Session.SubmitTimeout, 0),
		},
	})

	var toucher jobs.Toucher
	if t, ok := ad.sessions.(jobs.Toucher); ok {
		toucher = t
	}
	scheduler := jobs.NewScheduler(ad.store, services.Leaderboard, services.Quizzes, toucher, nil)
	if err := scheduler.Start(jobs.Config{
		ReconcileSpec: schedule(cfg.Leaderboard.ReconcileSchedule, "@every 1m"),
		SweepSpec:     schedule(cfg.Session.SweepSchedule, "@every 30s"),
	}); err != nil {
		return fmt.Errorf("schedule jobs: %w", err)
	}
	defer scheduler.Stop()

	router := transport.NewRouter(transport.RouterConfig{
		Services:       services,
		Auth:           authenticator,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Blobs:          ad.blobRead,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
	})

	// no WriteTimeout: websocket connections set their own write deadlines
	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting quiz service on :%s", finalPort)
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

func buildAdapters(ctx context.Context, cfg config.Config, port string) (*adapters, error) {
	ad := &adapters{}
	fail := func(err error) (*adapters, error) {
		ad.close()
		return nil, err
	}

	ad.store = memory.NewStore()
	if cfg.Postgres.URL != "" {
		db := postgres.Open(cfg.Postgres.URL)
		ad.closers = append(ad.closers, func() { _ = db.Close() })
		if err := postgres.Migrate(ctx, db); err != nil {
			return fail(fmt.Errorf("migrate: %w", err))
		}
		ad.store = postgres.NewStore(db)
	} else {
		log.Printf("postgres not configured, using in-memory store")
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		ad.closers = append(ad.closers, func() { _ = redisClient.Close() })
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fail(fmt.Errorf("redis: %w", err))
		}
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	sessionTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)
	prefix := cfg.Redis.Prefix
	if prefix == "" {
		prefix = "quiz-service:"
	}

	switch {
	case redisClient != nil:
		ad.questions = rediscache.NewQuestionCache(redisClient, ad.store, quizTTL)
		ad.sessions = rediscache.NewSessionStore(redisClient, sessionTTL)
		ad.notifier = rediscache.NewNotifier(redisClient, prefix)
	default:
		ad.questions = memory.NewQuestionCache(ad.store, quizTTL)
		ad.sessions = memory.NewSessionStore()
		ad.notifier = memory.NewNotifier()
	}

	if redisClient == nil && cfg.Postgres.URL != "" && cfg.Postgres.Notify {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return fail(fmt.Errorf("postgres notify pool: %w", err))
		}
		ad.closers = append(ad.closers, pool.Close)
		ad.notifier = postgres.NewNotifier(pool, "quiz_")
	}

	if cfg.AMQP.URL != "" {
		exchange := cfg.AMQP.Exchange
		if exchange == "" {
			exchange = "quiz.events"
		}
		forwarder, err := amqp.Dial(cfg.AMQP.URL, exchange, ad.notifier)
		if err != nil {
			return fail(err)
		}
		ad.closers = append(ad.closers, forwarder.Close)
		ad.notifier = forwarder
	}

	if cfg.Storage.CloudinaryURL != "" {
		store, err := blob.NewCloudinary(cfg.Storage.CloudinaryURL, cfg.Storage.Folder)
		if err != nil {
			return fail(err)
		}
		ad.blobs = store
	} else {
		base := cfg.Storage.PublicBaseURL
		if base == "" {
			base = "http://localhost:" + port + "/blobs"
		}
		store := memory.NewBlobStore(base)
		ad.blobs = store
		ad.blobRead = store
	}
	return ad, nil
}

// schedule returns fallback for an empty spec and disables the job for "off".
func schedule(raw, fallback string) string {
	switch raw {
	case "":
		return fallback
	case "off":
		return ""
	default:
		return raw
	}
}
