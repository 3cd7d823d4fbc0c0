package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"telegram-bot-hosting/internal/domain/ports/adapter"
	"telegram-bot-hosting/internal/usecase"
)

// Server hosts the payment webhook, health, metrics and the admin API.
type Server struct {
	gateway  adapter.PaymentGateway
	payments usecase.PaymentUseCase
	stats    usecase.StatsUseCase
	auth     *AuthManager
	port     int
	log      *zerolog.Logger
}

func NewServer(
	port int,
	gateway adapter.PaymentGateway,
	payments usecase.PaymentUseCase,
	stats usecase.StatsUseCase,
	jwtSecret string,
	logger *zerolog.Logger,
) *Server {
	compLog := logger.With().Str("component", "WebServer").Logger()
	return &Server{
		gateway:  gateway,
		payments: payments,
		stats:    stats,
		auth:     NewAuthManager(jwtSecret, time.Hour),
		port:     port,
		log:      &compLog,
	}
}

// Router builds the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/payment/robokassa/result", s.handleRobokassaResult)
	r.Get("/payment/robokassa/success", s.handlePaymentSuccess)
	r.Get("/payment/robokassa/fail", s.handlePaymentFail)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.auth.Middleware)
		r.Get("/stats", s.handleStats)
	})
	return r
}

// Run serves until ctx is cancelled, then drains for up to 5 seconds.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Int("port", s.port).Msg("web server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Warn().Err(err).Msg("shutdown failed")
		}
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
