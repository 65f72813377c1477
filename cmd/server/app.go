package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"starblog/internal/api"
	"starblog/internal/app/service"
	"starblog/internal/app/worker"
	"starblog/internal/common/security"
	"starblog/internal/domain/repository"
	"starblog/internal/platform/config"
	"starblog/internal/platform/database"
	"starblog/internal/platform/logger"
	"starblog/internal/platform/queue"

	"go.uber.org/zap"
)

var (
	_ worker.AuditQueue            = (*queue.RatingAuditQueue)(nil)
	_ worker.Locker                = (*queue.RedisLocker)(nil)
	_ service.RatingEventPublisher = (*queue.RatingAuditQueue)(nil)
)

type repositories struct {
	users   repository.UserRepository
	posts   repository.PostRepository
	ratings repository.RatingRepository
}

func serve(ctx context.Context, cfg *config.Config) error {
	// 1. Logger
	log, err := logger.New(cfg.LogDir, "starblog", cfg.LogLevel)
	if err != nil {
		return err
	}
	defer log.Sync()
	log.Info("configuration loaded", zap.String("env", cfg.AppEnv), zap.String("storage", cfg.Storage))

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. Storage
	var repos repositories
	switch cfg.Storage {
	case config.StorageMemory:
		store := repository.NewMemoryStore()
		repos = repositories{users: store.Users(), posts: store.Posts(), ratings: store.Ratings()}
		log.Warn("using in-memory storage; data is lost on exit")
	default:
		db, err := database.Connect(ctx, cfg)
		if err != nil {
			return err
		}
		defer db.Close()
		log.Info("database connected", zap.String("host", cfg.DBHost), zap.String("name", cfg.DBName))
		repos = repositories{
			users:   repository.NewPgUserRepository(db, cfg.DBQueryTimeout),
			posts:   repository.NewPgPostRepository(db, cfg.DBQueryTimeout),
			ratings: repository.NewPgRatingRepository(db, cfg.DBQueryTimeout),
		}
	}

	// 3. Rating audit queue and worker
	var events service.RatingEventPublisher
	workerDone := make(chan struct{})
	if cfg.RatingAuditEnabled && cfg.Storage == config.StoragePostgres {
		rdb, err := queue.Connect(ctx, cfg)
		if err != nil {
			return err
		}
		defer rdb.Close()
		log.Info("redis connected", zap.String("addr", cfg.RedisAddr))

		auditQueue := queue.NewRatingAuditQueue(rdb, cfg.RatingAuditQueue)
		locker := queue.NewRedisLocker(rdb, cfg.RatingAuditLockKey, cfg.RatingAuditLockTTL)
		events = auditQueue

		auditWorker := worker.NewRatingAuditWorker(auditQueue, locker, repos.ratings, cfg.RatingAuditPopTimeout, log.Named("rating_audit"))
		go func() {
			defer close(workerDone)
			auditWorker.Start(ctx)
		}()
	} else {
		close(workerDone)
		log.Info("rating audit disabled")
	}

	// 4. Services
	tokens := security.NewTokenService(cfg.JWTKey, cfg.JWTExp)
	authService := service.NewAuthService(repos.users, tokens, cfg.BcryptCost, log)
	postService := service.NewPostService(repos.posts, log)
	ratingService := service.NewRatingService(repos.ratings, events, log)

	// 5. Router & HTTP server
	router := api.NewRouter(api.RouterDeps{
		AuthService:    authService,
		PostService:    postService,
		RatingService:  ratingService,
		CookieSecure:   cfg.CookieSecure,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		Logger:         log.Named("http"),
	})

	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("server starting", zap.String("port", cfg.APIPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- fmt.Errorf("could not listen on %s: %w", cfg.APIPort, err)
		}
		close(serveErr)
	}()

	// 6. Graceful shutdown
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			stop()
			<-workerDone
			return err
		}
	}

	log.Info("shutting down server")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	<-workerDone
	log.Info("server and worker stopped gracefully")
	return nil
}

func migrate(ctx context.Context, cfg *config.Config) error {
	if cfg.Storage == config.StorageMemory {
		return errors.New("migrate: nothing to do for memory storage")
	}
	db, err := database.Connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := database.Migrate(ctx, db); err != nil {
		return err
	}
	fmt.Println("Schema applied.")
	return nil
}
