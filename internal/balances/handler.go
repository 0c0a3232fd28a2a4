package balances

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-books/meridian-books/internal/shared"
)

// Handler wires the balance aggregation endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

type calculateRequest struct {
	FiscalYear  int `json:"fiscalYear" validate:"required,gte=1900,lte=2200"`
	FiscalMonth int `json:"fiscalMonth" validate:"required,gte=1,lte=12"`
}

// HandleCalculate recomputes all account balances for a period.
func (h *Handler) HandleCalculate(w http.ResponseWriter, r *http.Request) {
	var req calculateRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, http.StatusBadRequest, shared.CodeValidation, "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		shared.WriteError(w, http.StatusBadRequest, shared.CodeValidation, err.Error())
		return
	}
	summary, err := h.service.Recalculate(r.Context(), req.FiscalYear, req.FiscalMonth)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, summary)
}

// HandleGetAccountBalance returns one stored snapshot.
func (h *Handler) HandleGetAccountBalance(w http.ResponseWriter, r *http.Request) {
	accountID, err := strconv.ParseInt(chi.URLParam(r, "accountId"), 10, 64)
	if err != nil {
		shared.WriteError(w, http.StatusBadRequest, shared.CodeValidation, "invalid account id")
		return
	}
	year, month, err := periodParams(r)
	if err != nil {
		shared.WriteError(w, http.StatusBadRequest, shared.CodeValidation, err.Error())
		return
	}
	balance, err := h.service.GetAccountBalance(r.Context(), accountID, year, month)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, balance)
}

// HandleTrialBalance returns the trial balance report for a period.
func (h *Handler) HandleTrialBalance(w http.ResponseWriter, r *http.Request) {
	year, month, err := periodParams(r)
	if err != nil {
		shared.WriteError(w, http.StatusBadRequest, shared.CodeValidation, err.Error())
		return
	}
	report, err := h.service.TrialBalance(r.Context(), year, month)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, report)
}

// HandleTrialBalanceCSV streams the trial balance report as CSV.
func (h *Handler) HandleTrialBalanceCSV(w http.ResponseWriter, r *http.Request) {
	year, month, err := periodParams(r)
	if err != nil {
		shared.WriteError(w, http.StatusBadRequest, shared.CodeValidation, err.Error())
		return
	}
	report, err := h.service.TrialBalance(r.Context(), year, month)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="trial-balance-%04d-%02d.csv"`, year, month))
	if err := WriteTrialBalanceCSV(w, report); err != nil {
		h.logger.Error("trial balance export", slog.Any("error", err))
	}
}

func periodParams(r *http.Request) (int, int, error) {
	q := r.URL.Query()
	year, err := strconv.Atoi(q.Get("fiscalYear"))
	if err != nil || year < 1900 || year > 2200 {
		return 0, 0, errors.New("invalid fiscalYear")
	}
	month, err := strconv.Atoi(q.Get("fiscalMonth"))
	if err != nil || month < 1 || month > 12 {
		return 0, 0, errors.New("invalid fiscalMonth")
	}
	return year, month, nil
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrPeriodNotFound), errors.Is(err, ErrBalanceNotFound):
		shared.WriteError(w, http.StatusNotFound, shared.CodeNotFound, err.Error())
	default:
		h.logger.Error("balances handler", slog.Any("error", err))
		shared.WriteError(w, http.StatusInternalServerError, shared.CodeInternal, "internal error")
	}
}
