package fx

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/kivu-erp/kivu-erp/internal/platform/httpx"
)

// Handler exposes exchange rate endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers fx routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/rates", h.listRates)
	r.Put("/rates", h.setRate)
	r.Get("/convert", h.convert)
}

type setRateRequest struct {
	Source string `json:"source" validate:"required,len=3"`
	Target string `json:"target" validate:"required,len=3"`
	Rate   string `json:"rate" validate:"required"`
}

func (h *Handler) listRates(w http.ResponseWriter, r *http.Request) {
	rates, err := h.service.ListRates(r.Context())
	if err != nil {
		h.logger.Error("list rates", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, rates)
}

func (h *Handler) setRate(w http.ResponseWriter, r *http.Request) {
	var req setRateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	rate, err := decimal.NewFromString(req.Rate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "rate must be a decimal number")
		return
	}
	stored, err := h.service.SetRate(r.Context(), req.Source, req.Target, rate)
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, stored)
}

func (h *Handler) convert(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	amount, err := decimal.NewFromString(q.Get("amount"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "amount must be a decimal number")
		return
	}
	from, to := q.Get("from"), q.Get("to")
	converted, err := h.service.Convert(r.Context(), amount, from, to, nil)
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{
		"amount":    amount.String(),
		"from":      from,
		"to":        to,
		"converted": converted.String(),
	})
}

func respondErr(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case isAny(err, ErrInvalidCurrency, ErrInvalidRate, ErrSamePair):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case isAny(err, ErrRateNotFound):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Lookup Failed", err.Error())
	default:
		logger.Error("fx request", slog.Any("error", err))
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
