package requisition

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kivu-erp/kivu-erp/internal/platform/httpx"
	"github.com/kivu-erp/kivu-erp/internal/shared"
	"github.com/kivu-erp/kivu-erp/internal/workflow"
)

// Handler exposes requisition endpoints. The acting user id arrives through
// the X-User-ID header; authentication itself lives outside this service.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers requisition routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/", h.listMine)
	r.Get("/{id}", h.get)
	r.Get("/{id}/transitions", h.available)
	r.Post("/{id}/share", h.share)
	r.Post("/{id}/submit", h.submit)
	r.Post("/{id}/approve", h.approve)
	r.Post("/{id}/reject", h.reject)
	r.Post("/{id}/attachments", h.attach)
}

type lineRequest struct {
	Description string `json:"description" validate:"required"`
	Quantity    string `json:"quantity" validate:"required"`
	UnitPrice   string `json:"unit_price" validate:"required"`
}

type createRequest struct {
	Narration    string        `json:"narration" validate:"required"`
	Amount       string        `json:"amount" validate:"required"`
	ExchangeRate string        `json:"exchange_rate" validate:"required"`
	CostCenterID *int64        `json:"cost_center_id"`
	CategoryID   *int64        `json:"category_id"`
	Lines        []lineRequest `json:"lines" validate:"dive"`
}

type shareRequest struct {
	SharedWithID int64 `json:"shared_with_id" validate:"required"`
	CanApprove   bool  `json:"can_approve"`
}

type attachRequest struct {
	FileKey string `json:"file_key" validate:"required"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	actor, err := shared.RequireActor(r.Context())
	if err != nil {
		h.respondErr(w, err)
		return
	}
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := CreateInput{
		RequesterID:  actor,
		Narration:    req.Narration,
		CostCenterID: req.CostCenterID,
		CategoryID:   req.CategoryID,
	}
	if input.Amount, err = decimal.NewFromString(req.Amount); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "amount must be a decimal number")
		return
	}
	if input.ExchangeRate, err = decimal.NewFromString(req.ExchangeRate); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "exchange_rate must be a decimal number")
		return
	}
	for _, line := range req.Lines {
		qty, err := decimal.NewFromString(line.Quantity)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "line quantity must be a decimal number")
			return
		}
		price, err := decimal.NewFromString(line.UnitPrice)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "line unit_price must be a decimal number")
			return
		}
		input.Lines = append(input.Lines, LineInput{Description: line.Description, Quantity: qty, UnitPrice: price})
	}
	created, err := h.service.Create(r.Context(), input)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) listMine(w http.ResponseWriter, r *http.Request) {
	reqs, err := h.service.ListMine(r.Context(), shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, reqs)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	req, err := h.service.Get(r.Context(), id, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, req)
}

func (h *Handler) available(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	states, err := h.service.Available(r.Context(), id, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"available": states})
}

func (h *Handler) share(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	var req shareRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	share, err := h.service.Share(r.Context(), id, shared.ActorFromContext(r.Context()), req.SharedWithID, req.CanApprove)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, share)
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Submit)
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Approve)
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Reject)
}

func (h *Handler) attach(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	var req attachRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	attachment, err := h.service.AddAttachment(r.Context(), id, shared.ActorFromContext(r.Context()), req.FileKey)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, attachment)
}

type transitionFunc func(ctx context.Context, id uuid.UUID, actorID int64) (Requisition, error)

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn transitionFunc) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	actor, err := shared.RequireActor(r.Context())
	if err != nil {
		h.respondErr(w, err)
		return
	}
	req, err := fn(r.Context(), id, actor)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, req)
}

func (h *Handler) id(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid requisition id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	switch {
	case isAny(err, ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case isAny(err, shared.ErrActorMissing):
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
	case isAny(err, workflow.ErrTransitionUnavailable, workflow.ErrTerminalState):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case isAny(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case isAny(err, ErrDuplicateNarration, ErrDuplicateShare):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	default:
		h.logger.Error("requisition request", slog.Any("error", err))
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
