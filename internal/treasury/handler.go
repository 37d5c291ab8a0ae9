package treasury

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kivu-erp/kivu-erp/internal/platform/httpx"
)

// Handler exposes treasury endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers treasury routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/accounts", h.createAccount)
	r.Get("/accounts", h.listAccounts)
	r.Get("/accounts/{id}", h.getAccount)
	r.Post("/accounts/{id}/assign", h.assignAccount)
	r.Post("/transfers", h.transfer)
	r.Post("/payments", h.pay)
	r.Put("/forecasts", h.setForecast)
	r.Get("/forecasts", h.listForecasts)
}

type createAccountRequest struct {
	Number   string `json:"number" validate:"required"`
	Name     string `json:"name" validate:"required"`
	GroupID  *int64 `json:"group_id"`
	Currency string `json:"currency" validate:"required,len=3"`
}

type assignRequest struct {
	UserID int64 `json:"user_id" validate:"required"`
}

type transferRequest struct {
	FromAccountID uuid.UUID `json:"from_account_id" validate:"required"`
	ToAccountID   uuid.UUID `json:"to_account_id" validate:"required"`
	Amount        string    `json:"amount" validate:"required"`
	ExchangeRate  *string   `json:"exchange_rate"`
	Date          string    `json:"date"`
	Reference     string    `json:"reference"`
}

type paymentRequest struct {
	CashAccountID uuid.UUID  `json:"cash_account_id" validate:"required"`
	RequisitionID *uuid.UUID `json:"requisition_id"`
	Amount        string     `json:"amount" validate:"required"`
	Currency      string     `json:"currency" validate:"required,len=3"`
	ExchangeRate  *string    `json:"exchange_rate"`
	Date          string     `json:"date"`
	Reference     string     `json:"reference"`
}

type forecastRequest struct {
	CashAccountID uuid.UUID `json:"cash_account_id" validate:"required"`
	PeriodID      int64     `json:"period_id" validate:"required"`
	Inflow        string    `json:"inflow" validate:"required"`
	Outflow       string    `json:"outflow" validate:"required"`
}

func (h *Handler) createAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	account, err := h.service.CreateAccount(r.Context(), CashAccount{
		Number:   req.Number,
		Name:     req.Name,
		GroupID:  req.GroupID,
		Currency: req.Currency,
	})
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, account)
}

func (h *Handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.service.ListAccounts(r.Context())
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, accounts)
}

func (h *Handler) getAccount(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid account id")
		return
	}
	account, err := h.service.GetAccount(r.Context(), id)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, account)
}

func (h *Handler) assignAccount(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid account id")
		return
	}
	var req assignRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.AssignAccount(r.Context(), id, req.UserID); err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "assigned"})
}

func (h *Handler) transfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := TransferInput{
		FromAccountID: req.FromAccountID,
		ToAccountID:   req.ToAccountID,
		Reference:     req.Reference,
	}
	var ok bool
	if input.Amount, ok = h.amount(w, req.Amount); !ok {
		return
	}
	if input.ExchangeRate, ok = h.rate(w, req.ExchangeRate); !ok {
		return
	}
	if input.Date, ok = h.date(w, req.Date); !ok {
		return
	}
	transfer, err := h.service.Transfer(r.Context(), input)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, transfer)
}

func (h *Handler) pay(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := PaymentInput{
		CashAccountID: req.CashAccountID,
		RequisitionID: req.RequisitionID,
		Currency:      req.Currency,
		Reference:     req.Reference,
	}
	var ok bool
	if input.Amount, ok = h.amount(w, req.Amount); !ok {
		return
	}
	if input.ExchangeRate, ok = h.rate(w, req.ExchangeRate); !ok {
		return
	}
	if input.Date, ok = h.date(w, req.Date); !ok {
		return
	}
	payment, err := h.service.Pay(r.Context(), input)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, payment)
}

func (h *Handler) setForecast(w http.ResponseWriter, r *http.Request) {
	var req forecastRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	forecast := CashFlowForecast{CashAccountID: req.CashAccountID, PeriodID: req.PeriodID}
	var ok bool
	if forecast.Inflow, ok = h.amount(w, req.Inflow); !ok {
		return
	}
	if forecast.Outflow, ok = h.amount(w, req.Outflow); !ok {
		return
	}
	stored, err := h.service.SetForecast(r.Context(), forecast)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, stored)
}

func (h *Handler) listForecasts(w http.ResponseWriter, r *http.Request) {
	periodID, err := strconv.ParseInt(r.URL.Query().Get("period_id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "period_id must be an integer")
		return
	}
	forecasts, err := h.service.ListForecasts(r.Context(), periodID)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, forecasts)
}

func (h *Handler) amount(w http.ResponseWriter, raw string) (decimal.Decimal, bool) {
	value, err := decimal.NewFromString(raw)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "amount must be a decimal number")
		return decimal.Decimal{}, false
	}
	return value, true
}

func (h *Handler) rate(w http.ResponseWriter, raw *string) (*decimal.Decimal, bool) {
	if raw == nil {
		return nil, true
	}
	value, err := decimal.NewFromString(*raw)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "exchange_rate must be a decimal number")
		return nil, false
	}
	return &value, true
}

func (h *Handler) date(w http.ResponseWriter, raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, true
	}
	value, err := time.Parse("2006-01-02", raw)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "date must be YYYY-MM-DD")
		return time.Time{}, false
	}
	return value, true
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	switch {
	case isAny(err, ErrValidation, ErrSameAccount, ErrRateRequired, ErrInsufficientFunds):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case isAny(err, ErrAccountNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case isAny(err, ErrDuplicateNumber):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	default:
		h.logger.Error("treasury request", slog.Any("error", err))
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
