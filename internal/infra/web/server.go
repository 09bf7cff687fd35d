package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/weeasd57/stockroom-wind-sub003/internal/infra/logging"
	"github.com/weeasd57/stockroom-wind-sub003/internal/usecase"
)

// Server exposes the reconciliation workflow over HTTP. All subscription and
// checkout routes require a session token; the webhook route authenticates by
// provider signature instead.
type Server struct {
	reconUC    *usecase.ReconciliationUseCase
	checkoutUC *usecase.CheckoutUseCase
	webhookUC  *usecase.WebhookUseCase
	auth       *AuthManager
	log        *zerolog.Logger

	httpSrv *http.Server
}

func NewServer(
	reconUC *usecase.ReconciliationUseCase,
	checkoutUC *usecase.CheckoutUseCase,
	webhookUC *usecase.WebhookUseCase,
	auth *AuthManager,
	port int,
	logger *zerolog.Logger,
) *Server {
	s := &Server{
		reconUC:    reconUC,
		checkoutUC: checkoutUC,
		webhookUC:  webhookUC,
		auth:       auth,
		log:        logger,
	}
	s.httpSrv = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Routes builds the router. Exposed for tests.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.requestContext)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Webhook endpoint: no session auth, the signature check inside the
		// use case is the authentication.
		r.Post("/webhooks/paypal", s.handlePayPalWebhook)

		r.Group(func(r chi.Router) {
			r.Use(s.requireUser)
			r.Get("/subscription", s.handleGetSubscription)
			r.Post("/subscription/cancel", s.handleCancel)
			r.Post("/subscription/switch-to-free", s.handleSwitchToFree)
			r.Post("/subscription/sync", s.handleSync)
			r.Post("/subscription/validate", s.handleValidate)
			r.Post("/checkout/confirm", s.handleCheckoutConfirm)
		})
	})
	return r
}

// requestContext threads the chi request id into the logging context.
func (s *Server) requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if reqID := middleware.GetReqID(ctx); reqID != "" {
			ctx = logging.WithRequestID(ctx, reqID)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireUser rejects requests without a valid session token and stores the
// user id on the context.
func (s *Server) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := s.auth.ParseFromRequest(r)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized", Code: "unauthorized"})
			return
		}
		ctx := withAuthUser(r.Context(), claims.UserID())
		ctx = logging.WithUserID(ctx, claims.UserID())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.httpSrv.Addr).Msg("http server listening")
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}
