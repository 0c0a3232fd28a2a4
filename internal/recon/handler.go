package recon

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

// Handler wires the reconciliation endpoints.
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

type createBankAccountRequest struct {
	LinkedAccountID int64  `json:"linkedAccountId" validate:"required"`
	BankName        string `json:"bankName" validate:"required"`
	AccountNumber   string `json:"accountNumber" validate:"required"`
}

type createReconRequest struct {
	BankAccountID          int64 `json:"bankAccountId" validate:"required"`
	FiscalYear             int   `json:"fiscalYear" validate:"required,gte=1900,lte=2200"`
	FiscalMonth            int   `json:"fiscalMonth" validate:"required,gte=1,lte=12"`
	StatementEndingBalance int64 `json:"statementEndingBalance"`
	BookEndingBalance      int64 `json:"bookEndingBalance"`
}

type transactionRequest struct {
	Date        time.Time `json:"date" validate:"required"`
	Description string    `json:"description"`
	Amount      int64     `json:"amount" validate:"required"`
	Reference   string    `json:"reference"`
}

type importStatementRequest struct {
	Transactions []transactionRequest `json:"transactions" validate:"required,min=1,dive"`
}

type matchRequest struct {
	BankTransactionID int64 `json:"bankTransactionId" validate:"required"`
	JournalLineID     int64 `json:"journalLineId" validate:"required"`
}

type autoMatchRequest struct {
	DateTolerance int `json:"dateTolerance" validate:"gte=0,lte=90"`
}

type itemRequest struct {
	ItemType             string    `json:"itemType" validate:"required"`
	Amount               int64     `json:"amount" validate:"required"`
	Date                 time.Time `json:"date" validate:"required"`
	Description          string    `json:"description"`
	RequiresJournalEntry bool      `json:"requiresJournalEntry"`
}

// HandleCreateBankAccount registers a bank account.
func (h *Handler) HandleCreateBankAccount(w http.ResponseWriter, r *http.Request) {
	var req createBankAccountRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, http.StatusBadRequest, shared.CodeValidation, "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		shared.WriteError(w, http.StatusBadRequest, shared.CodeValidation, err.Error())
		return
	}
	account, err := h.service.CreateBankAccount(r.Context(), req.LinkedAccountID, req.BankName, req.AccountNumber, actorFrom(r))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, account)
}

// HandleListBankAccounts returns all bank accounts.
func (h *Handler) HandleListBankAccounts(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListBankAccounts(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"items": list})
}

// HandleCreate opens a reconciliation.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createReconRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, http.StatusBadRequest, shared.CodeValidation, "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		shared.WriteError(w, http.StatusBadRequest, shared.CodeValidation, err.Error())
		return
	}
	rec, err := h.service.Create(r.Context(), CreateInput{
		BankAccountID:          req.BankAccountID,
		FiscalYear:             req.FiscalYear,
		FiscalMonth:            req.FiscalMonth,
		StatementEndingBalance: req.StatementEndingBalance,
		BookEndingBalance:      req.BookEndingBalance,
		Actor:                  actorFrom(r),
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, rec)
}

// HandleGet returns one reconciliation with its transactions and items.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := reconID(r)
	if err != nil {
		shared.WriteError(w, http.StatusBadRequest, shared.CodeValidation, "invalid reconciliation id")
		return
	}
	rec, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	txns, err := h.service.ListTransactions(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	items, err := h.service.ListItems(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{
		"reconciliation": rec,
		"transactions":   txns,
		"items":          items,
	})
}

// HandleImport bulk-imports statement transactions.
func (h *Handler) HandleImport(w http.ResponseWriter, r *http.Request) {
	id, err := reconID(r)
	if err != nil {
		shared.WriteError(w, http.StatusBadRequest, shared.CodeValidation, "invalid reconciliation id")
		return
	}
	var req importStatementRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, http.StatusBadRequest, shared.CodeValidation, "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		shared.WriteError(w, http.StatusBadRequest, shared.CodeValidation, err.Error())
		return
	}
	txns := make([]TransactionInput, 0, len(req.Transactions))
	for _, t := range req.Transactions {
		txns = append(txns, TransactionInput{Date: t.Date, Description: t.Description, Amount: t.Amount, Reference: t.Reference})
	}
	result, err := h.service.ImportStatement(r.Context(), id, txns, actorFrom(r))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, result)
}

// HandleMatch manually pairs a bank transaction with a journal line.
func (h *Handler) HandleMatch(w http.ResponseWriter, r *http.Request) {
	id, err := reconID(r)
	if err != nil {
		shared.WriteError(w, http.StatusBadRequest, shared.CodeValidation, "invalid reconciliation id")
		return
	}
	var req matchRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, http.StatusBadRequest, shared.CodeValidation, "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		shared.WriteError(w, http.StatusBadRequest, shared.CodeValidation, err.Error())
		return
	}
	if err := h.service.MatchTransaction(r.Context(), id, req.BankTransactionID, req.JournalLineID, actorFrom(r)); err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.metrics.ReconMatched("manual", 1)
	w.WriteHeader(http.StatusNoContent)
}

// HandleAutoMatch runs the greedy matcher.
func (h *Handler) HandleAutoMatch(w http.ResponseWriter, r *http.Request) {
	id, err := reconID(r)
	if err != nil {
		shared.WriteError(w, http.StatusBadRequest, shared.CodeValidation, "invalid reconciliation id")
		return
	}
	var req autoMatchRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, http.StatusBadRequest, shared.CodeValidation, "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		shared.WriteError(w, http.StatusBadRequest, shared.CodeValidation, err.Error())
		return
	}
	result, err := h.service.AutoMatch(r.Context(), id, req.DateTolerance, actorFrom(r))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.metrics.ReconMatched("auto", result.MatchedCount)
	shared.WriteJSON(w, http.StatusOK, result)
}

// HandleAddItem records a reconciling item.
func (h *Handler) HandleAddItem(w http.ResponseWriter, r *http.Request) {
	id, err := reconID(r)
	if err != nil {
		shared.WriteError(w, http.StatusBadRequest, shared.CodeValidation, "invalid reconciliation id")
		return
	}
	var req itemRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, http.StatusBadRequest, shared.CodeValidation, "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		shared.WriteError(w, http.StatusBadRequest, shared.CodeValidation, err.Error())
		return
	}
	item, err := h.service.AddReconcilingItem(r.Context(), ItemInput{
		ReconciliationID:     id,
		ItemType:             ItemType(req.ItemType),
		Amount:               req.Amount,
		Date:                 req.Date,
		Description:          req.Description,
		RequiresJournalEntry: req.RequiresJournalEntry,
		Actor:                actorFrom(r),
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, item)
}

// HandleCalculate returns the adjusted balances.
func (h *Handler) HandleCalculate(w http.ResponseWriter, r *http.Request) {
	id, err := reconID(r)
	if err != nil {
		shared.WriteError(w, http.StatusBadRequest, shared.CodeValidation, "invalid reconciliation id")
		return
	}
	balances, err := h.service.CalculateAdjustedBalances(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, balances)
}

// HandleComplete finishes a reconciliation.
func (h *Handler) HandleComplete(w http.ResponseWriter, r *http.Request) {
	id, err := reconID(r)
	if err != nil {
		shared.WriteError(w, http.StatusBadRequest, shared.CodeValidation, "invalid reconciliation id")
		return
	}
	rec, err := h.service.Complete(r.Context(), id, actorFrom(r))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, rec)
}

// HandleApprove finalises a completed reconciliation.
func (h *Handler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	id, err := reconID(r)
	if err != nil {
		shared.WriteError(w, http.StatusBadRequest, shared.CodeValidation, "invalid reconciliation id")
		return
	}
	rec, err := h.service.Approve(r.Context(), id, actorFrom(r))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, rec)
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrReconNotFound), errors.Is(err, ErrBankAccountMissing), errors.Is(err, ErrTxnNotFound):
		shared.WriteError(w, http.StatusNotFound, shared.CodeNotFound, err.Error())
	case errors.Is(err, ErrNotReconciled):
		shared.WriteError(w, http.StatusConflict, shared.CodeNotReconciled, err.Error())
	case errors.Is(err, ErrAlreadyMatched), errors.Is(err, ErrInvalidStatus):
		shared.WriteError(w, http.StatusConflict, shared.CodeInvalidState, err.Error())
	case errors.Is(err, ErrInvalidInput):
		shared.WriteError(w, http.StatusBadRequest, shared.CodeValidation, err.Error())
	default:
		h.logger.Error("recon handler", slog.Any("error", err))
		shared.WriteError(w, http.StatusInternalServerError, shared.CodeInternal, "internal error")
	}
}

func reconID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func actorFrom(r *http.Request) string {
	if actor := r.Header.Get("X-Actor"); actor != "" {
		return actor
	}
	return "system"
}
