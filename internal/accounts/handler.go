package accounts

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-books/meridian-books/internal/shared"
)

// Handler wires the chart of accounts endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

type createAccountRequest struct {
	Code          string `json:"code" validate:"required"`
	Name          string `json:"name" validate:"required"`
	AccountType   string `json:"accountType" validate:"required"`
	NormalBalance string `json:"normalBalance" validate:"required"`
	ParentID      *int64 `json:"parentId"`
	Description   string `json:"description"`
}

type updateAccountRequest struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
}

type accountResponse struct {
	ID            int64  `json:"id"`
	Code          string `json:"code"`
	Name          string `json:"name"`
	AccountType   string `json:"accountType"`
	NormalBalance string `json:"normalBalance"`
	ParentID      *int64 `json:"parentId,omitempty"`
	Description   string `json:"description,omitempty"`
	IsActive      bool   `json:"isActive"`
	CreatedAt     string `json:"createdAt"`
}

func toAccountResponse(a Account) accountResponse {
	return accountResponse{
		ID:            a.ID,
		Code:          a.Code,
		Name:          a.Name,
		AccountType:   string(a.Type),
		NormalBalance: string(a.NormalBalance),
		ParentID:      a.ParentID,
		Description:   a.Description,
		IsActive:      a.IsActive,
		CreatedAt:     a.CreatedAt.Format(time.RFC3339),
	}
}

// HandleCreate creates a new account.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, http.StatusBadRequest, shared.CodeValidation, "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		shared.WriteError(w, http.StatusBadRequest, shared.CodeValidation, err.Error())
		return
	}
	account, err := h.service.Create(r.Context(), CreateInput{
		Code:          req.Code,
		Name:          req.Name,
		Type:          AccountType(req.AccountType),
		NormalBalance: NormalBalance(req.NormalBalance),
		ParentID:      req.ParentID,
		Description:   req.Description,
		Actor:         actorFrom(r),
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, toAccountResponse(account))
}

// HandleGet returns a single account.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		shared.WriteError(w, http.StatusBadRequest, shared.CodeValidation, "invalid account id")
		return
	}
	account, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toAccountResponse(account))
}

// HandleList lists accounts.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	page, perPage := shared.PageParams(r)
	activeOnly := r.URL.Query().Get("active") == "true"
	accounts, pg, err := h.service.List(r.Context(), activeOnly, page, perPage)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	items := make([]accountResponse, 0, len(accounts))
	for _, a := range accounts {
		items = append(items, toAccountResponse(a))
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{
		"items":      items,
		"total":      pg.Total,
		"page":       pg.Page,
		"totalPages": pg.TotalPages,
	})
}

// HandleUpdate changes descriptive fields.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		shared.WriteError(w, http.StatusBadRequest, shared.CodeValidation, "invalid account id")
		return
	}
	var req updateAccountRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, http.StatusBadRequest, shared.CodeValidation, "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		shared.WriteError(w, http.StatusBadRequest, shared.CodeValidation, err.Error())
		return
	}
	account, err := h.service.UpdateDetails(r.Context(), UpdateInput{
		AccountID:   id,
		Name:        req.Name,
		Description: req.Description,
		Actor:       actorFrom(r),
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toAccountResponse(account))
}

// HandleDeactivate retires an account.
func (h *Handler) HandleDeactivate(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		shared.WriteError(w, http.StatusBadRequest, shared.CodeValidation, "invalid account id")
		return
	}
	if err := h.service.Deactivate(r.Context(), id, actorFrom(r)); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleDelete removes an account that was never posted against.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		shared.WriteError(w, http.StatusBadRequest, shared.CodeValidation, "invalid account id")
		return
	}
	if err := h.service.Delete(r.Context(), id, actorFrom(r)); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrAccountNotFound), errors.Is(err, shared.ErrNotFound):
		shared.WriteError(w, http.StatusNotFound, shared.CodeNotFound, err.Error())
	case errors.Is(err, ErrDuplicateCode):
		shared.WriteError(w, http.StatusConflict, shared.CodeDuplicate, err.Error())
	case errors.Is(err, ErrAccountReferenced), errors.Is(err, shared.ErrInvalidState):
		shared.WriteError(w, http.StatusConflict, shared.CodeInvalidState, err.Error())
	case errors.Is(err, ErrAccountInactive):
		shared.WriteError(w, http.StatusUnprocessableEntity, shared.CodeValidation, err.Error())
	case errors.Is(err, ErrInvalidInput):
		shared.WriteError(w, http.StatusBadRequest, shared.CodeValidation, err.Error())
	default:
		h.logger.Error("accounts handler", slog.Any("error", err))
		shared.WriteError(w, http.StatusInternalServerError, shared.CodeInternal, "internal error")
	}
}

func actorFrom(r *http.Request) string {
	if actor := r.Header.Get("X-Actor"); actor != "" {
		return actor
	}
	return "system"
}
