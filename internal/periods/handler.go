package periods

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-books/meridian-books/internal/observability"
	"github.com/meridian-books/meridian-books/internal/shared"
)

// Handler wires the fiscal period endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	metrics  *observability.Metrics
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, metrics *observability.Metrics) *Handler {
	return &Handler{logger: logger, service: service, metrics: metrics, validate: validator.New()}
}

type createPeriodRequest struct {
	FiscalYear  int `json:"fiscalYear" validate:"required,gte=1900,lte=2200"`
	FiscalMonth int `json:"fiscalMonth" validate:"required,gte=1,lte=12"`
}

type reopenPeriodRequest struct {
	Reason string `json:"reason" validate:"required"`
}

type periodResponse struct {
	ID          int64   `json:"id"`
	FiscalYear  int     `json:"fiscalYear"`
	FiscalMonth int     `json:"fiscalMonth"`
	StartDate   string  `json:"startDate"`
	EndDate     string  `json:"endDate"`
	Status      string  `json:"status"`
	ClosedBy    string  `json:"closedBy,omitempty"`
	ClosedAt    *string `json:"closedAt,omitempty"`
}

func toPeriodResponse(p Period) periodResponse {
	resp := periodResponse{
		ID:          p.ID,
		FiscalYear:  p.FiscalYear,
		FiscalMonth: p.FiscalMonth,
		StartDate:   p.StartDate.Format("2006-01-02"),
		EndDate:     p.EndDate.Format("2006-01-02"),
		Status:      p.Status,
		ClosedBy:    p.ClosedBy,
	}
	if p.ClosedAt != nil {
		at := p.ClosedAt.Format(time.RFC3339)
		resp.ClosedAt = &at
	}
	return resp
}

// HandleCreate opens a new fiscal period.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createPeriodRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, http.StatusBadRequest, shared.CodeValidation, "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		shared.WriteError(w, http.StatusBadRequest, shared.CodeValidation, err.Error())
		return
	}
	period, err := h.service.Create(r.Context(), CreateInput{
		FiscalYear:  req.FiscalYear,
		FiscalMonth: req.FiscalMonth,
		Actor:       actorFrom(r),
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, toPeriodResponse(period))
}

// HandleClose closes an open period once its trial balance checks out.
func (h *Handler) HandleClose(w http.ResponseWriter, r *http.Request) {
	id, err := periodID(r)
	if err != nil {
		shared.WriteError(w, http.StatusBadRequest, shared.CodeValidation, "invalid period id")
		return
	}
	period, err := h.service.Close(r.Context(), id, actorFrom(r))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.metrics.PeriodClosed()
	shared.WriteJSON(w, http.StatusOK, toPeriodResponse(period))
}

// HandleReopen reverts a closed period to open.
func (h *Handler) HandleReopen(w http.ResponseWriter, r *http.Request) {
	id, err := periodID(r)
	if err != nil {
		shared.WriteError(w, http.StatusBadRequest, shared.CodeValidation, "invalid period id")
		return
	}
	var req reopenPeriodRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, http.StatusBadRequest, shared.CodeValidation, "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		shared.WriteError(w, http.StatusBadRequest, shared.CodeValidation, err.Error())
		return
	}
	period, err := h.service.Reopen(r.Context(), id, req.Reason, actorFrom(r))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toPeriodResponse(period))
}

// HandleLock makes a closed period permanent.
func (h *Handler) HandleLock(w http.ResponseWriter, r *http.Request) {
	id, err := periodID(r)
	if err != nil {
		shared.WriteError(w, http.StatusBadRequest, shared.CodeValidation, "invalid period id")
		return
	}
	period, err := h.service.Lock(r.Context(), id, actorFrom(r))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toPeriodResponse(period))
}

// HandleGet returns a single period.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := periodID(r)
	if err != nil {
		shared.WriteError(w, http.StatusBadRequest, shared.CodeValidation, "invalid period id")
		return
	}
	period, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toPeriodResponse(period))
}

// HandleList returns paginated periods.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	page, perPage := shared.PageParams(r)
	periods, pagination, err := h.service.List(r.Context(), page, perPage)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	items := make([]periodResponse, 0, len(periods))
	for _, p := range periods {
		items = append(items, toPeriodResponse(p))
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{
		"items":      items,
		"pagination": map[string]int{"page": pagination.Page, "perPage": pagination.PerPage, "total": pagination.Total, "totalPages": pagination.TotalPages},
	})
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrPeriodNotFound):
		shared.WriteError(w, http.StatusNotFound, shared.CodeNotFound, err.Error())
	case errors.Is(err, ErrDuplicatePeriod):
		shared.WriteError(w, http.StatusConflict, shared.CodeDuplicate, err.Error())
	case errors.Is(err, ErrUnbalancedPeriod):
		shared.WriteError(w, http.StatusConflict, shared.CodeUnbalancedPeriod, err.Error())
	case errors.Is(err, ErrInvalidTransition):
		shared.WriteError(w, http.StatusConflict, shared.CodeInvalidState, err.Error())
	case errors.Is(err, ErrInvalidInput):
		shared.WriteError(w, http.StatusBadRequest, shared.CodeValidation, err.Error())
	default:
		h.logger.Error("periods handler", slog.Any("error", err))
		shared.WriteError(w, http.StatusInternalServerError, shared.CodeInternal, "internal error")
	}
}

func periodID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func actorFrom(r *http.Request) string {
	if actor := r.Header.Get("X-Actor"); actor != "" {
		return actor
	}
	return "system"
}
