package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"leasecore/native/common"
	"leasecore/native/lease"
)

// LeaseService is the engine surface the HTTP layer forwards to.
type LeaseService interface {
	OpenLease(customer, currency string, downpayment *big.Int) (string, error)
	HandleCompletion(leaseID string, c lease.Completion) error
	Repay(leaseID, caller string, amount *big.Int) (*lease.Receipt, error)
	Close(leaseID, caller string) error
	CheckLiability(leaseID string) (*lease.LiquidationStatus, error)
	Status(leaseID string) (lease.StateSnapshot, error)
	Quote(downpayment *big.Int) (*lease.QuoteResult, error)
	LeasesByCustomer(customer string) ([]string, error)
}

// Config carries the dependencies required to construct the server.
type Config struct {
	Service   LeaseService
	Logger    *slog.Logger
	RateLimit RateLimit
}

// Server exposes the lease engine over HTTP.
type Server struct {
	svc    LeaseService
	logger *slog.Logger
	router http.Handler
}

// New constructs a configured HTTP router.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	srv := &Server{svc: cfg.Service, logger: logger}
	srv.router = srv.buildRouter(cfg.RateLimit)
	return srv
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) buildRouter(limit RateLimit) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	if limit.RequestsPerMinute > 0 {
		r.Use(NewRateLimiter(limit).Middleware)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(api chi.Router) {
		api.Post("/quotes", s.handleQuote)
		api.Post("/leases", s.handleOpenLease)
		api.Get("/leases/{id}", s.handleStatus)
		api.Post("/leases/{id}/repay", s.handleRepay)
		api.Post("/leases/{id}/close", s.handleClose)
		api.Post("/leases/{id}/completions", s.handleCompletion)
		api.Post("/leases/{id}/liability-check", s.handleLiabilityCheck)
		api.Get("/customers/{customer}/leases", s.handleCustomerLeases)
	})
	return r
}

type quoteRequest struct {
	Downpayment string `json:"downpayment"`
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	amount, err := parseAmount(req.Downpayment)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	quote, err := s.svc.Quote(amount)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

type openLeaseRequest struct {
	Customer    string `json:"customer"`
	Currency    string `json:"currency"`
	Downpayment string `json:"downpayment"`
}

type openLeaseResponse struct {
	LeaseID string `json:"lease_id"`
}

func (s *Server) handleOpenLease(w http.ResponseWriter, r *http.Request) {
	var req openLeaseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	amount, err := parseAmount(req.Downpayment)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	leaseID, err := s.svc.OpenLease(req.Customer, req.Currency, amount)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.logger.Info("lease requested", "lease_id", leaseID, "currency", req.Currency)
	writeJSON(w, http.StatusCreated, openLeaseResponse{LeaseID: leaseID})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := s.svc.Status(chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type repayRequest struct {
	Caller string `json:"caller"`
	Amount string `json:"amount"`
}

func (s *Server) handleRepay(w http.ResponseWriter, r *http.Request) {
	var req repayRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	receipt, err := s.svc.Repay(chi.URLParam(r, "id"), req.Caller, amount)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

type closeRequest struct {
	Caller string `json:"caller"`
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	var req closeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.svc.Close(chi.URLParam(r, "id"), req.Caller); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCompletion(w http.ResponseWriter, r *http.Request) {
	var completion lease.Completion
	if err := decodeJSON(r, &completion); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(completion.RequestID) == "" {
		writeError(w, http.StatusBadRequest, errors.New("request_id required"))
		return
	}
	if err := s.svc.HandleCompletion(chi.URLParam(r, "id"), completion); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLiabilityCheck(w http.ResponseWriter, r *http.Request) {
	status, err := s.svc.CheckLiability(chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleCustomerLeases(w http.ResponseWriter, r *http.Request) {
	ids, err := s.svc.LeasesByCustomer(chi.URLParam(r, "customer"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"leases": ids})
}

func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := toStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "error", err)
	}
	writeError(w, status, err)
}

// toStatus maps engine errors onto HTTP statuses. Unknown errors stay 500 so
// invariant violations are never mistaken for client faults.
func toStatus(err error) int {
	switch {
	case errors.Is(err, lease.ErrLeaseNotFound):
		return http.StatusNotFound
	case errors.Is(err, lease.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, lease.ErrUnsupportedOperation),
		errors.Is(err, lease.ErrLoanClosed),
		errors.Is(err, lease.ErrLoanNotFullyRepaid),
		errors.Is(err, lease.ErrPastDue),
		errors.Is(err, lease.ErrUnknownRequest):
		return http.StatusConflict
	case errors.Is(err, lease.ErrInsufficientPayment),
		errors.Is(err, lease.ErrInvalidParameters),
		errors.Is(err, lease.ErrUnknownCurrency):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrModulePaused):
		return http.StatusServiceUnavailable
	case errors.Is(err, lease.ErrNoPrice):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

func parseAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, errors.New("amount required")
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, errors.New("amount must be a base-10 integer")
	}
	return amount, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
