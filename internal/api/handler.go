package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/punchamoorthee/refledger/internal/domain"
	"github.com/punchamoorthee/refledger/internal/models"
	"github.com/punchamoorthee/refledger/internal/service"
	"go.uber.org/zap"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "endpoint"})
)

// Ledger is the service surface the handlers call.
type Ledger interface {
	CreateDeposit(ctx context.Context, p domain.Principal, in service.CreateRequest) (*domain.Request, error)
	CreateWithdrawal(ctx context.Context, p domain.Principal, in service.CreateRequest) (*domain.Request, error)
	Transition(ctx context.Context, admin domain.Principal, kind domain.RequestKind, id int64, d service.Decision) (*service.Outcome, error)
	AdjustBalance(ctx context.Context, admin domain.Principal, in service.AdminAdjustment) (*domain.LedgerEntry, error)
	CreateAccount(ctx context.Context, p domain.Principal, in service.NewAccount) (*domain.Account, error)

	GetRequest(ctx context.Context, p domain.Principal, kind domain.RequestKind, id int64) (*domain.Request, error)
	ListRequests(ctx context.Context, p domain.Principal, f domain.RequestFilter) ([]domain.Request, error)
	GetAccount(ctx context.Context, p domain.Principal, id int64) (*domain.Account, error)
	ListEntries(ctx context.Context, p domain.Principal, accountID int64, limit, offset int) ([]domain.LedgerEntry, error)
	ListReferrals(ctx context.Context, p domain.Principal, referrerID int64) (*service.ReferralSummary, error)
}

// Pinger reports database health.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	ledger   Ledger
	db       Pinger
	validate *validator.Validate
	logger   *zap.Logger
}

func NewHandler(ledger Ledger, db Pinger, logger *zap.Logger) *Handler {
	return &Handler{
		ledger:   ledger,
		db:       db,
		validate: validator.New(),
		logger:   logger,
	}
}

// RouterConfig carries the cross-cutting pieces of the router.
type RouterConfig struct {
	JWTSecret          string
	Limiter            RateLimiter
	RateLimitPerMinute int
}

func NewRouter(h *Handler, rc RouterConfig) *mux.Router {
	r := mux.NewRouter()
	r.Use(RequestID, Instrument(h.logger))

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/health", h.HealthCheckHandler).Methods(http.MethodGet)

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.Use(Authenticate(rc.JWTSecret))

	limit := func(scope string, fn http.HandlerFunc) http.Handler {
		return RateLimit(rc.Limiter, scope, rc.RateLimitPerMinute, h.logger)(fn)
	}

	v1.Handle("/transactions/deposits", limit("deposit", h.CreateDepositHandler)).Methods(http.MethodPost)
	v1.Handle("/transactions/withdrawals", limit("withdrawal", h.CreateWithdrawalHandler)).Methods(http.MethodPost)
	v1.HandleFunc("/transactions/deposits", h.listHandler(domain.KindDeposit)).Methods(http.MethodGet)
	v1.HandleFunc("/transactions/withdrawals", h.listHandler(domain.KindWithdrawal)).Methods(http.MethodGet)
	v1.HandleFunc("/transactions/deposits/{id:[0-9]+}", h.transitionHandler(domain.KindDeposit)).Methods(http.MethodPut)
	v1.HandleFunc("/transactions/withdrawals/{id:[0-9]+}", h.transitionHandler(domain.KindWithdrawal)).Methods(http.MethodPut)
	v1.HandleFunc("/transactions/admin/adjust-balance", h.AdjustBalanceHandler).Methods(http.MethodPost)
	v1.HandleFunc("/transactions/{kind:deposits|withdrawals}/{id:[0-9]+}", h.GetRequestHandler).Methods(http.MethodGet)

	v1.HandleFunc("/accounts", h.CreateAccountHandler).Methods(http.MethodPost)
	v1.HandleFunc("/accounts/{id:[0-9]+}", h.GetAccountHandler).Methods(http.MethodGet)
	v1.HandleFunc("/accounts/{id:[0-9]+}/entries", h.GetAccountEntriesHandler).Methods(http.MethodGet)
	v1.HandleFunc("/referrals", h.ListReferralsHandler).Methods(http.MethodGet)

	return r
}

// writeError maps service errors onto status codes and error codes.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *domain.ValidationError
	var ce *service.CommissionError

	switch {
	case errors.As(err, &ce):
		h.logger.Error("commission distribution failed",
			zap.String("request_id", requestIDFrom(r.Context())),
			zap.Int64("deposit_id", ce.Request.ID),
			zap.Error(err),
		)
		respondJSON(w, http.StatusInternalServerError, models.CommissionFailureResponse{
			ErrorResponse: models.ErrorResponse{
				Error:   "commission_distribution_failed",
				Message: "deposit approved but commission distribution failed",
			},
			Request:    ce.Request,
			LevelsPaid: len(ce.Payouts),
		})
	case errors.As(err, &ve):
		respondError(w, http.StatusUnprocessableEntity, "validation", ve.Error())
	case errors.Is(err, domain.ErrAccessDenied):
		respondError(w, http.StatusForbidden, "access_denied", err.Error())
	case errors.Is(err, domain.ErrRequestNotFound), errors.Is(err, domain.ErrAccountNotFound):
		respondError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrAlreadyProcessed):
		respondError(w, http.StatusBadRequest, "already_processed", err.Error())
	case errors.Is(err, domain.ErrInsufficientBalance):
		respondError(w, http.StatusBadRequest, "insufficient_balance", err.Error())
	case errors.Is(err, domain.ErrReferralCodeUnknown):
		respondError(w, http.StatusUnprocessableEntity, "validation", err.Error())
	case errors.Is(err, domain.ErrUsernameTaken):
		respondError(w, http.StatusConflict, "conflict", err.Error())
	default:
		h.logger.Error("request failed",
			zap.String("request_id", requestIDFrom(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		respondError(w, http.StatusInternalServerError, "internal", "Internal Server Error")
	}
}

func respondError(w http.ResponseWriter, code int, errCode, message string) {
	respondJSON(w, code, models.ErrorResponse{Error: errCode, Message: message})
}

func respondJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}
