package api

import (
	"net/http"
	"time"

	"starblog/internal/api/handler"
	"starblog/internal/api/middleware"
	"starblog/internal/app/service"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type RouterDeps struct {
	AuthService    *service.AuthService
	PostService    *service.PostService
	RatingService  *service.RatingService
	CookieSecure   bool
	// AllowedOrigins may send credentialed cross-origin requests.
	AllowedOrigins []string
	Logger         *zap.Logger
}

func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	// Base Middlewares
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.Metrics)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(60 * time.Second))

	// The session cookie rides along on cross-origin calls, so origins are
	// listed explicitly.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Public health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	authHandler := handler.NewAuthHandler(deps.AuthService, deps.CookieSecure)
	postHandler := handler.NewPostHandler(deps.PostService)
	ratingHandler := handler.NewRatingHandler(deps.RatingService)

	// Every session route goes through this one guard
	guard := middleware.SessionGuard(deps.AuthService, deps.Logger)

	authHandler.RegisterRoutes(r)
	postHandler.RegisterRoutes(r, guard)
	ratingHandler.RegisterRoutes(r, guard)

	return r
}
