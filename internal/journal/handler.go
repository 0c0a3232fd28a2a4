package journal

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

// Handler wires the journal entry endpoints.
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

type lineRequest struct {
	AccountID int64  `json:"accountId" validate:"required"`
	Direction string `json:"direction" validate:"required,oneof=DEBIT CREDIT"`
	Amount    int64  `json:"amount" validate:"required,gt=0"`
	Memo      string `json:"memo"`
}

type createEntryRequest struct {
	EntryDate   time.Time     `json:"entryDate" validate:"required"`
	Description string        `json:"description"`
	Reference   string        `json:"reference"`
	EntryType   string        `json:"entryType" validate:"required"`
	Lines       []lineRequest `json:"lines" validate:"required,min=2,dive"`
}

type postEntryRequest struct {
	PostedBy string `json:"postedBy" validate:"required"`
}

type voidEntryRequest struct {
	Reason   string `json:"reason" validate:"required"`
	VoidedBy string `json:"voidedBy" validate:"required"`
}

type lineResponse struct {
	ID        int64  `json:"id"`
	AccountID int64  `json:"accountId"`
	Direction string `json:"direction"`
	Amount    int64  `json:"amount"`
	Memo      string `json:"memo,omitempty"`
}

type entryResponse struct {
	ID          int64          `json:"id"`
	UID         string         `json:"uid"`
	EntryDate   string         `json:"entryDate"`
	Description string         `json:"description,omitempty"`
	Reference   string         `json:"reference,omitempty"`
	EntryType   string         `json:"entryType"`
	Status      string         `json:"status"`
	PeriodID    int64          `json:"periodId"`
	PostedBy    string         `json:"postedBy,omitempty"`
	PostedAt    *string        `json:"postedAt,omitempty"`
	VoidedBy    string         `json:"voidedBy,omitempty"`
	VoidReason  string         `json:"voidReason,omitempty"`
	Lines       []lineResponse `json:"lines,omitempty"`
}

func toEntryResponse(e Entry) entryResponse {
	resp := entryResponse{
		ID:          e.ID,
		UID:         e.UID.String(),
		EntryDate:   e.EntryDate.Format(time.RFC3339),
		Description: e.Description,
		Reference:   e.Reference,
		EntryType:   string(e.Type),
		Status:      string(e.Status),
		PeriodID:    e.PeriodID,
		PostedBy:    e.PostedBy,
		VoidedBy:    e.VoidedBy,
		VoidReason:  e.VoidReason,
	}
	if e.PostedAt != nil {
		at := e.PostedAt.Format(time.RFC3339)
		resp.PostedAt = &at
	}
	for _, line := range e.Lines {
		resp.Lines = append(resp.Lines, lineResponse{
			ID:        line.ID,
			AccountID: line.AccountID,
			Direction: string(line.Direction),
			Amount:    line.Amount,
			Memo:      line.Memo,
		})
	}
	return resp
}

// HandleCreate creates a draft entry.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createEntryRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, http.StatusBadRequest, shared.CodeValidation, "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		shared.WriteError(w, http.StatusBadRequest, shared.CodeValidation, err.Error())
		return
	}
	lines := make([]LineInput, 0, len(req.Lines))
	for _, line := range req.Lines {
		lines = append(lines, LineInput{
			AccountID: line.AccountID,
			Direction: Direction(line.Direction),
			Amount:    line.Amount,
			Memo:      line.Memo,
		})
	}
	entry, err := h.service.CreateEntry(r.Context(), CreateInput{
		EntryDate:   req.EntryDate,
		Description: req.Description,
		Reference:   req.Reference,
		Type:        EntryType(req.EntryType),
		Lines:       lines,
		Actor:       actorFrom(r),
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, toEntryResponse(entry))
}

// HandlePost posts a draft entry.
func (h *Handler) HandlePost(w http.ResponseWriter, r *http.Request) {
	id, err := entryID(r)
	if err != nil {
		shared.WriteError(w, http.StatusBadRequest, shared.CodeValidation, "invalid entry id")
		return
	}
	var req postEntryRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, http.StatusBadRequest, shared.CodeValidation, "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		shared.WriteError(w, http.StatusBadRequest, shared.CodeValidation, err.Error())
		return
	}
	entry, err := h.service.Post(r.Context(), id, req.PostedBy)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.metrics.EntryPosted()
	shared.WriteJSON(w, http.StatusOK, toEntryResponse(entry))
}

// HandleVoid voids a posted entry.
func (h *Handler) HandleVoid(w http.ResponseWriter, r *http.Request) {
	id, err := entryID(r)
	if err != nil {
		shared.WriteError(w, http.StatusBadRequest, shared.CodeValidation, "invalid entry id")
		return
	}
	var req voidEntryRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, http.StatusBadRequest, shared.CodeValidation, "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		shared.WriteError(w, http.StatusBadRequest, shared.CodeValidation, err.Error())
		return
	}
	entry, err := h.service.Void(r.Context(), VoidInput{EntryID: id, Reason: req.Reason, VoidedBy: req.VoidedBy})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.metrics.EntryVoided()
	shared.WriteJSON(w, http.StatusOK, toEntryResponse(entry))
}

// HandleDelete removes a draft entry.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := entryID(r)
	if err != nil {
		shared.WriteError(w, http.StatusBadRequest, shared.CodeValidation, "invalid entry id")
		return
	}
	if err := h.service.DeleteDraft(r.Context(), id, actorFrom(r)); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleGet returns a single entry with lines.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := entryID(r)
	if err != nil {
		shared.WriteError(w, http.StatusBadRequest, shared.CodeValidation, "invalid entry id")
		return
	}
	entry, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toEntryResponse(entry))
}

// HandleList lists entries by date range, status, and type.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	filter, err := parseListFilter(r)
	if err != nil {
		shared.WriteError(w, http.StatusBadRequest, shared.CodeValidation, err.Error())
		return
	}
	entries, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	items := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		items = append(items, toEntryResponse(e))
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

func parseListFilter(r *http.Request) (ListFilter, error) {
	q := r.URL.Query()
	var filter ListFilter
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return ListFilter{}, errors.New("invalid from date")
		}
		filter.From = &t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return ListFilter{}, errors.New("invalid to date")
		}
		filter.To = &t
	}
	filter.Status = EntryStatus(q.Get("status"))
	filter.Type = EntryType(q.Get("type"))
	page, perPage := shared.PageParams(r)
	filter.Limit = perPage
	filter.Offset = (page - 1) * perPage
	return filter, nil
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrEntryNotFound), errors.Is(err, ErrPeriodNotFound):
		shared.WriteError(w, http.StatusNotFound, shared.CodeNotFound, err.Error())
	case errors.Is(err, ErrPeriodClosed):
		shared.WriteError(w, http.StatusConflict, shared.CodePeriodClosed, err.Error())
	case errors.Is(err, ErrPeriodLocked), errors.Is(err, ErrInvalidStatus):
		shared.WriteError(w, http.StatusConflict, shared.CodeInvalidState, err.Error())
	case errors.Is(err, ErrUnbalanced), errors.Is(err, ErrTooFewLines),
		errors.Is(err, ErrAccountUnknown), errors.Is(err, ErrInvalidInput):
		shared.WriteError(w, http.StatusBadRequest, shared.CodeValidation, err.Error())
	default:
		h.logger.Error("journal handler", slog.Any("error", err))
		shared.WriteError(w, http.StatusInternalServerError, shared.CodeInternal, "internal error")
	}
}

func entryID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func actorFrom(r *http.Request) string {
	if actor := r.Header.Get("X-Actor"); actor != "" {
		return actor
	}
	return "system"
}
