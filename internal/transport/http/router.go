package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/otp-identity/internal/application/otp"
	"github.com/otp-identity/internal/application/user"
	"github.com/otp-identity/internal/config"
	jwtinfra "github.com/otp-identity/internal/infrastructure/jwt"
	"github.com/otp-identity/internal/metrics"
	"github.com/otp-identity/internal/transport/http/handler"
	appmiddleware "github.com/otp-identity/internal/transport/http/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

// Deps holds all infrastructure dependencies for the router.
type Deps struct {
	UserRepo    UserRepository
	Cache       OTPCache
	Publisher   Publisher
	Outbox      Outbox
	JWTProvider *jwtinfra.Provider
	Metrics     metrics.Recorder
	// Gatherer backs GET /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
}

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	if cfg.TrustProxyHeaders {
		r.Use(chimiddleware.RealIP)
	}
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	authMw := appmiddleware.Auth(deps.JWTProvider)

	// 5 requests/second, burst of 10, on the unauthenticated OTP endpoints.
	sensitiveRL := appmiddleware.NewRateLimiter(rate.Limit(5), 10)

	otpSvc := otp.NewService(otp.ServiceDeps{
		Cache:             deps.Cache,
		Publisher:         deps.Publisher,
		Outbox:            deps.Outbox,
		UserRepo:          deps.UserRepo,
		JWTProvider:       deps.JWTProvider,
		Metrics:           deps.Metrics,
		Queue:             cfg.QueueName,
		OTPTTL:            cfg.OTPTTL,
		RateLimitTTL:      cfg.OTPRateLimitTTL,
		MaxVerifyAttempts: cfg.OTPMaxVerifyAttempts,
		Timeout:           cfg.OperationTimeout,
	})
	userSvc := user.NewService(user.ServiceDeps{
		UserRepo:    deps.UserRepo,
		JWTProvider: deps.JWTProvider,
	})

	healthH := handler.NewHealthHandler()
	authH := handler.NewAuthHandler(otpSvc)
	userH := handler.NewUserHandler(userSvc)

	r.Get("/health-check/{action}", healthH.Ping)
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}

	r.Route("/api/v1", func(r chi.Router) {
		// ── Public routes (no auth) ──────────────────────────────────────────
		r.With(sensitiveRL.Limit).Post("/login", authH.Login)
		r.With(sensitiveRL.Limit).Post("/verify", authH.Verify)
		r.Get("/user/{id}", userH.Get)

		// ── Authenticated routes ─────────────────────────────────────────────
		r.Group(func(r chi.Router) {
			r.Use(authMw)

			r.Get("/me", userH.Me)
			r.Get("/user/all", userH.List)
			r.Post("/update/user", userH.UpdateName)
		})
	})

	return r
}
