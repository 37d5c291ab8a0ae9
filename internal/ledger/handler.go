package ledger

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kivu-erp/kivu-erp/internal/fx"
	"github.com/kivu-erp/kivu-erp/internal/platform/httpx"
	"github.com/kivu-erp/kivu-erp/internal/shared"
)

// IdempotencyPort guards posting replays keyed by client-supplied header.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Handler exposes ledger endpoints.
type Handler struct {
	logger       *slog.Logger
	service      *Service
	idem         IdempotencyPort
	validate     *validator.Validate
	baseCurrency string
}

// NewHandler builds Handler instance. The idempotency port may be nil, which
// disables replay protection.
func NewHandler(logger *slog.Logger, service *Service, idem IdempotencyPort) *Handler {
	return &Handler{logger: logger, service: service, idem: idem, validate: validator.New()}
}

// DefaultCurrency sets the presentation currency reports fall back to when the
// caller does not pass one. Empty leaves reports in each account's own
// currency.
func (h *Handler) DefaultCurrency(code string) {
	h.baseCurrency = code
}

func (h *Handler) reportCurrency(r *http.Request) string {
	if currency := r.URL.Query().Get("currency"); currency != "" {
		return currency
	}
	return h.baseCurrency
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/accounts", h.createAccount)
	r.Get("/accounts", h.listAccounts)
	r.Post("/journals", h.createJournal)
	r.Post("/periods", h.createPeriod)
	r.Post("/periods/{id}/close", h.closePeriod)
	r.Post("/transactions", h.postTransaction)
	r.Get("/reports/trial-balance/{periodID}", h.trialBalance)
	r.Get("/reports/income-statement/{periodID}", h.incomeStatement)
	r.Get("/reports/balance-sheet/{periodID}", h.balanceSheet)
}

type accountRequest struct {
	Code        string `json:"code" validate:"required"`
	Name        string `json:"name" validate:"required"`
	ClassNumber int    `json:"class_number" validate:"required,min=1,max=9"`
	Type        string `json:"type" validate:"required"`
	Currency    string `json:"currency" validate:"required,len=3"`
	ParentID    *int64 `json:"parent_id"`
}

type journalRequest struct {
	Code     string `json:"code" validate:"required"`
	Name     string `json:"name" validate:"required"`
	Currency string `json:"currency" validate:"required,len=3"`
}

type periodRequest struct {
	Name      string `json:"name" validate:"required"`
	StartDate string `json:"start_date" validate:"required"`
	EndDate   string `json:"end_date" validate:"required"`
}

type postingItemRequest struct {
	AccountID int64  `json:"account_id" validate:"required"`
	Amount    string `json:"amount" validate:"required"`
	IsDebit   bool   `json:"is_debit"`
}

type postingRequest struct {
	JournalID    int64                `json:"journal_id" validate:"required"`
	Date         string               `json:"date" validate:"required"`
	Reference    string               `json:"reference"`
	Description  string               `json:"description"`
	PaymentID    *uuid.UUID           `json:"payment_id"`
	TransferID   *int64               `json:"transfer_id"`
	ExchangeRate *string              `json:"exchange_rate"`
	Items        []postingItemRequest `json:"items" validate:"required,min=2,dive"`
}

func (h *Handler) createAccount(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	account, err := h.service.CreateAccount(r.Context(), Account{
		Code:        req.Code,
		Name:        req.Name,
		ClassNumber: req.ClassNumber,
		Type:        AccountType(req.Type),
		Currency:    req.Currency,
		ParentID:    req.ParentID,
	})
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, account)
}

func (h *Handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	accounts, err := h.service.ListAccounts(r.Context(), shared.Pagination{Limit: limit, Offset: offset})
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, accounts)
}

func (h *Handler) createJournal(w http.ResponseWriter, r *http.Request) {
	var req journalRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	journal, err := h.service.CreateJournal(r.Context(), Journal{Code: req.Code, Name: req.Name, Currency: req.Currency})
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, journal)
}

func (h *Handler) createPeriod(w http.ResponseWriter, r *http.Request) {
	var req periodRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	start, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "start_date must be YYYY-MM-DD")
		return
	}
	end, err := time.Parse("2006-01-02", req.EndDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "end_date must be YYYY-MM-DD")
		return
	}
	period, err := h.service.CreatePeriod(r.Context(), Period{Name: req.Name, StartDate: start, EndDate: end})
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, period)
}

func (h *Handler) closePeriod(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid period id")
		return
	}
	if err := h.service.ClosePeriod(r.Context(), id, shared.ActorFromContext(r.Context())); err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "closed"})
}

func (h *Handler) postTransaction(w http.ResponseWriter, r *http.Request) {
	var req postingRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "date must be YYYY-MM-DD")
		return
	}
	input := PostingInput{
		JournalID:   req.JournalID,
		Date:        date,
		Reference:   req.Reference,
		Description: req.Description,
		PaymentID:   req.PaymentID,
		TransferID:  req.TransferID,
	}
	if req.ExchangeRate != nil {
		rate, err := decimal.NewFromString(*req.ExchangeRate)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "exchange_rate must be a decimal number")
			return
		}
		input.ExchangeRate = &rate
	}
	for _, item := range req.Items {
		amount, err := decimal.NewFromString(item.Amount)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "item amount must be a decimal number")
			return
		}
		input.Items = append(input.Items, ItemInput{AccountID: item.AccountID, Amount: amount, IsDebit: item.IsDebit})
	}
	idemKey := r.Header.Get("Idempotency-Key")
	if idemKey != "" && h.idem != nil {
		if err := h.idem.CheckAndInsert(r.Context(), idemKey, "ledger"); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				httpx.Problem(w, http.StatusConflict, "Duplicate", "posting already processed")
				return
			}
			h.respondErr(w, err)
			return
		}
	}
	posted, err := h.service.PostTransaction(r.Context(), input)
	if err != nil {
		if idemKey != "" && h.idem != nil {
			if delErr := h.idem.Delete(r.Context(), idemKey); delErr != nil {
				h.logger.Warn("release idempotency key", slog.Any("error", delErr))
			}
		}
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, posted)
}

func (h *Handler) trialBalance(w http.ResponseWriter, r *http.Request) {
	periodID, ok := h.periodID(w, r)
	if !ok {
		return
	}
	report, err := h.service.TrialBalance(r.Context(), periodID, h.reportCurrency(r))
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) incomeStatement(w http.ResponseWriter, r *http.Request) {
	periodID, ok := h.periodID(w, r)
	if !ok {
		return
	}
	report, err := h.service.IncomeStatement(r.Context(), periodID, h.standard(r), h.reportCurrency(r))
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) balanceSheet(w http.ResponseWriter, r *http.Request) {
	periodID, ok := h.periodID(w, r)
	if !ok {
		return
	}
	report, err := h.service.BalanceSheet(r.Context(), periodID, h.standard(r), h.reportCurrency(r))
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) periodID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "periodID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid period id")
		return 0, false
	}
	return id, true
}

func (h *Handler) standard(r *http.Request) Standard {
	if raw := r.URL.Query().Get("standard"); raw != "" {
		return Standard(raw)
	}
	return StandardOHADA
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	switch {
	case isAny(err, ErrValidation, ErrUnbalanced, ErrTooFewItems, ErrUnknownStandard):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case isAny(err, ErrPeriodClosed):
		httpx.Problem(w, http.StatusConflict, "Period Closed", err.Error())
	case isAny(err, ErrDuplicateCode):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case isAny(err, ErrAccountNotFound, ErrJournalNotFound, ErrPeriodNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case isAny(err, ErrNoPeriod, fx.ErrRateNotFound):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Lookup Failed", err.Error())
	default:
		h.logger.Error("ledger request", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func isAny(err error, targets ...error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
