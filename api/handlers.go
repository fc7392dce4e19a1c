/*
handlers.go - HTTP API handlers for loan servicing

PURPOSE:
  Exposes lease.Service via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the service.

ENDPOINTS:
  Loans:
    GET    /api/loans                       List all loans
    POST   /api/loans                       Open a loan
    GET    /api/loans/{id}                  Get loan record
    GET    /api/loans/{id}/state?at=        State snapshot (now when omitted)
    GET    /api/loans/{id}/grace-period?after=  Current and next grace end

  Repayments:
    POST   /api/loans/{id}/repay            Apply a payment
    GET    /api/loans/{id}/repayments       Repayment history

REQUEST FLOW:
  1. Parse HTTP request
  2. Convert DTO to a service request (decimal and time parsing)
  3. Call lease.Service
  4. Serialize response
  5. Map errors to status codes

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, unknown currency, evaluation before period start
  - 404: Loan not found
  - 409: Conflict (idempotency key reused, loan closed, ID in use)
  - 500: Internal errors, including diverged bookkeeping

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/warp/lease-loan/lease"
	"github.com/warp/lease-loan/loan"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service *lease.Service
	logger  *zap.Logger
}

// NewHandler creates a new handler over the given service.
func NewHandler(svc *lease.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{Service: svc, logger: logger}
}

// =============================================================================
// LOAN HANDLERS
// =============================================================================

// ListLoans returns all loans.
func (h *Handler) ListLoans(w http.ResponseWriter, r *http.Request) {
	records, err := h.Service.List(r.Context())
	if err != nil {
		h.writeServiceError(w, r, "Failed to list loans", err)
		return
	}
	writeJSON(w, http.StatusOK, toLoanDTOs(records))
}

// OpenLoan opens a new loan.
func (h *Handler) OpenLoan(w http.ResponseWriter, r *http.Request) {
	var req OpenLoanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	open, err := req.toDomain()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid loan request", err)
		return
	}

	rec, err := h.Service.Open(r.Context(), open)
	if err != nil {
		h.writeServiceError(w, r, "Failed to open loan", err)
		return
	}
	writeJSON(w, http.StatusCreated, toLoanDTO(rec))
}

// GetLoan returns a single loan.
func (h *Handler) GetLoan(w http.ResponseWriter, r *http.Request) {
	id := lease.LoanID(chi.URLParam(r, "id"))

	rec, err := h.Service.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, "Failed to get loan", err)
		return
	}
	writeJSON(w, http.StatusOK, toLoanDTO(rec))
}

// GetState returns what the loan owes at ?at= (now when omitted).
func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	id := lease.LoanID(chi.URLParam(r, "id"))

	at, err := parseTime("at", r.URL.Query().Get("at"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid at parameter", err)
		return
	}
	if at.IsZero() {
		at = h.Service.Now()
	}

	st, err := h.Service.State(r.Context(), id, at)
	if err != nil {
		h.writeServiceError(w, r, "Failed to compute state", err)
		return
	}
	writeJSON(w, http.StatusOK, toStateDTO(id, at, st))
}

// GetGracePeriod returns the current grace period end and the first one
// after ?after= (now when omitted).
func (h *Handler) GetGracePeriod(w http.ResponseWriter, r *http.Request) {
	id := lease.LoanID(chi.URLParam(r, "id"))

	after, err := parseTime("after", r.URL.Query().Get("after"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid after parameter", err)
		return
	}

	window, err := h.Service.GracePeriodEnd(r.Context(), id, after)
	if err != nil {
		h.writeServiceError(w, r, "Failed to compute grace period", err)
		return
	}
	writeJSON(w, http.StatusOK, GracePeriodDTO{
		LoanID:  string(id),
		Current: formatTime(window.Current),
		Next:    formatTime(window.Next),
	})
}

// =============================================================================
// REPAYMENT HANDLERS
// =============================================================================

// Repay applies a payment to a loan.
func (h *Handler) Repay(w http.ResponseWriter, r *http.Request) {
	id := lease.LoanID(chi.URLParam(r, "id"))

	var req RepayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	repay, err := req.toDomain(id)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid repay request", err)
		return
	}

	repayment, err := h.Service.Repay(r.Context(), repay)
	if err != nil {
		h.writeServiceError(w, r, "Failed to repay loan", err)
		return
	}
	writeJSON(w, http.StatusOK, toRepaymentDTO(repayment))
}

// GetRepayments returns the repayment history of a loan.
func (h *Handler) GetRepayments(w http.ResponseWriter, r *http.Request) {
	id := lease.LoanID(chi.URLParam(r, "id"))

	repayments, err := h.Service.Repayments(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, "Failed to list repayments", err)
		return
	}
	writeJSON(w, http.StatusOK, toRepaymentDTOs(repayments))
}

// HealthCheck reports liveness.
func (h *Handler) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   h.Service.Now().UTC().Format(time.RFC3339),
	})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// statusFor maps service errors to HTTP status codes and error codes.
func statusFor(err error) (int, string) {
	var verr *lease.ValidationError
	switch {
	case lease.IsNotFound(err):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, lease.ErrDuplicateIdempotencyKey):
		return http.StatusConflict, "duplicate_idempotency_key"
	case errors.Is(err, lease.ErrLoanClosed):
		return http.StatusConflict, "loan_closed"
	case lease.IsConflict(err):
		return http.StatusConflict, "conflict"
	case errors.As(err, &verr):
		return http.StatusBadRequest, "invalid_" + verr.Field
	case lease.IsClientError(err):
		return http.StatusBadRequest, "invalid_request"
	case loan.IsInternal(err):
		return http.StatusInternalServerError, "inconsistent_bookkeeping"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, message string, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(message,
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeJSON(w, status, ErrorResponse{Error: message, Code: code, Details: err.Error()})
}
