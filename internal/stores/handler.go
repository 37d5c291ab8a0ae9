package stores

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kivu-erp/kivu-erp/internal/fx"
	"github.com/kivu-erp/kivu-erp/internal/platform/httpx"
	"github.com/kivu-erp/kivu-erp/internal/shared"
	"github.com/kivu-erp/kivu-erp/internal/workflow"
)

// Handler exposes stores endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers stores routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/suppliers", h.createSupplier)
	r.Post("/warehouses", h.createWarehouse)
	r.Post("/units", h.createUnit)
	r.Post("/items", h.createItem)
	r.Post("/stock/receive", h.receiveStock)
	r.Get("/stock", h.getStock)
	r.Post("/transfers", h.requestTransfer)
	r.Get("/transfers/{id}", h.getTransfer)
	r.Post("/transfers/{id}/approve", h.approveTransfer)
	r.Post("/transfers/{id}/reject", h.rejectTransfer)
	r.Post("/orders", h.createOrder)
	r.Get("/orders/{id}", h.getOrder)
	r.Post("/boms", h.createBOM)
	r.Post("/production", h.createProduction)
	r.Post("/production/{id}/start", h.startProduction)
	r.Post("/production/{id}/complete", h.completeProduction)
	r.Post("/production/{id}/cancel", h.cancelProduction)
	r.Put("/thresholds", h.setThreshold)
}

type supplierRequest struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"omitempty,email"`
	Phone string `json:"phone"`
}

type warehouseRequest struct {
	Name      string `json:"name" validate:"required"`
	Location  string `json:"location"`
	ManagerID *int64 `json:"manager_id"`
}

type unitRequest struct {
	Name string `json:"name" validate:"required"`
	Code string `json:"code" validate:"required"`
}

type itemRequest struct {
	Code       string `json:"code" validate:"required"`
	Name       string `json:"name" validate:"required"`
	CategoryID *int64 `json:"category_id"`
	UnitID     int64  `json:"unit_id" validate:"required"`
}

type receiveStockRequest struct {
	WarehouseID int64  `json:"warehouse_id" validate:"required"`
	ItemID      int64  `json:"item_id" validate:"required"`
	Quantity    string `json:"quantity" validate:"required"`
}

type transferRequest struct {
	FromWarehouseID int64  `json:"from_warehouse_id" validate:"required"`
	ToWarehouseID   int64  `json:"to_warehouse_id" validate:"required"`
	ItemID          int64  `json:"item_id" validate:"required"`
	Quantity        string `json:"quantity" validate:"required"`
	Comments        string `json:"comments"`
}

type orderRequest struct {
	Number        string `json:"number" validate:"required"`
	InvoiceNumber string `json:"invoice_number"`
	SupplierID    int64  `json:"supplier_id" validate:"required"`
	Amount        string `json:"amount" validate:"required"`
	Currency      string `json:"currency" validate:"required,len=3"`
	SavedCurrency string `json:"saved_currency" validate:"omitempty,len=3"`
	ShippingCost  string `json:"shipping_cost"`
	Taxes         string `json:"taxes"`
}

type bomLineRequest struct {
	ComponentID int64  `json:"component_id" validate:"required"`
	QtyPerUnit  string `json:"qty_per_unit" validate:"required"`
}

type bomRequest struct {
	FinishedID int64            `json:"finished_item_id" validate:"required"`
	Name       string           `json:"name" validate:"required"`
	Lines      []bomLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type productionRequest struct {
	BOMID       int64  `json:"bom_id" validate:"required"`
	WarehouseID int64  `json:"warehouse_id" validate:"required"`
	Quantity    string `json:"quantity" validate:"required"`
}

type thresholdRequest struct {
	ItemID      int64  `json:"item_id" validate:"required"`
	MinQuantity string `json:"min_quantity" validate:"required"`
}

func (h *Handler) createSupplier(w http.ResponseWriter, r *http.Request) {
	var req supplierRequest
	if !h.decode(w, r, &req) {
		return
	}
	supplier, err := h.service.CreateSupplier(r.Context(), Supplier{Name: req.Name, Email: req.Email, Phone: req.Phone})
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, supplier)
}

func (h *Handler) createWarehouse(w http.ResponseWriter, r *http.Request) {
	var req warehouseRequest
	if !h.decode(w, r, &req) {
		return
	}
	warehouse, err := h.service.CreateWarehouse(r.Context(), Warehouse{Name: req.Name, Location: req.Location, ManagerID: req.ManagerID})
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, warehouse)
}

func (h *Handler) createUnit(w http.ResponseWriter, r *http.Request) {
	var req unitRequest
	if !h.decode(w, r, &req) {
		return
	}
	unit, err := h.service.CreateUnit(r.Context(), UnitOfMeasure{Name: req.Name, Code: req.Code})
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, unit)
}

func (h *Handler) createItem(w http.ResponseWriter, r *http.Request) {
	var req itemRequest
	if !h.decode(w, r, &req) {
		return
	}
	item, err := h.service.CreateItem(r.Context(), Item{Code: req.Code, Name: req.Name, CategoryID: req.CategoryID, UnitID: req.UnitID})
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, item)
}

func (h *Handler) receiveStock(w http.ResponseWriter, r *http.Request) {
	var req receiveStockRequest
	if !h.decode(w, r, &req) {
		return
	}
	qty, ok := h.quantity(w, req.Quantity)
	if !ok {
		return
	}
	if err := h.service.ReceiveStock(r.Context(), req.WarehouseID, req.ItemID, qty); err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "received"})
}

func (h *Handler) getStock(w http.ResponseWriter, r *http.Request) {
	warehouseID, ok := h.queryID(w, r, "warehouse_id")
	if !ok {
		return
	}
	itemID, ok := h.queryID(w, r, "item_id")
	if !ok {
		return
	}
	stock, err := h.service.GetStock(r.Context(), warehouseID, itemID)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, stock)
}

func (h *Handler) requestTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if !h.decode(w, r, &req) {
		return
	}
	qty, ok := h.quantity(w, req.Quantity)
	if !ok {
		return
	}
	transfer, err := h.service.RequestTransfer(r.Context(), TransferInput{
		FromWarehouseID: req.FromWarehouseID,
		ToWarehouseID:   req.ToWarehouseID,
		ItemID:          req.ItemID,
		Quantity:        qty,
		RequestedBy:     shared.ActorFromContext(r.Context()),
		Comments:        req.Comments,
	})
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, transfer)
}

func (h *Handler) getTransfer(w http.ResponseWriter, r *http.Request) {
	id, ok := h.uuidParam(w, r)
	if !ok {
		return
	}
	transfer, err := h.service.GetTransfer(r.Context(), id)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, transfer)
}

func (h *Handler) approveTransfer(w http.ResponseWriter, r *http.Request) {
	id, ok := h.uuidParam(w, r)
	if !ok {
		return
	}
	actor, err := shared.RequireActor(r.Context())
	if err != nil {
		h.respondErr(w, err)
		return
	}
	transfer, err := h.service.ApproveTransfer(r.Context(), id, actor)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, transfer)
}

func (h *Handler) rejectTransfer(w http.ResponseWriter, r *http.Request) {
	id, ok := h.uuidParam(w, r)
	if !ok {
		return
	}
	actor, err := shared.RequireActor(r.Context())
	if err != nil {
		h.respondErr(w, err)
		return
	}
	transfer, err := h.service.RejectTransfer(r.Context(), id, actor)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, transfer)
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if !h.decode(w, r, &req) {
		return
	}
	input := OrderInput{
		Number:        req.Number,
		InvoiceNumber: req.InvoiceNumber,
		SupplierID:    req.SupplierID,
		Currency:      req.Currency,
		SavedCurrency: req.SavedCurrency,
	}
	var ok bool
	if input.Amount, ok = h.quantity(w, req.Amount); !ok {
		return
	}
	input.ShippingCost = decimal.Zero
	if req.ShippingCost != "" {
		if input.ShippingCost, ok = h.quantity(w, req.ShippingCost); !ok {
			return
		}
	}
	input.Taxes = decimal.Zero
	if req.Taxes != "" {
		if input.Taxes, ok = h.quantity(w, req.Taxes); !ok {
			return
		}
	}
	order, err := h.service.CreateOrder(r.Context(), input)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, order)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := h.uuidParam(w, r)
	if !ok {
		return
	}
	order, err := h.service.GetOrder(r.Context(), id)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) createBOM(w http.ResponseWriter, r *http.Request) {
	var req bomRequest
	if !h.decode(w, r, &req) {
		return
	}
	bom := BillOfMaterials{FinishedID: req.FinishedID, Name: req.Name}
	for _, line := range req.Lines {
		qty, ok := h.quantity(w, line.QtyPerUnit)
		if !ok {
			return
		}
		bom.Lines = append(bom.Lines, BOMLine{ComponentID: line.ComponentID, QtyPerUnit: qty})
	}
	created, err := h.service.CreateBOM(r.Context(), bom)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) createProduction(w http.ResponseWriter, r *http.Request) {
	var req productionRequest
	if !h.decode(w, r, &req) {
		return
	}
	qty, ok := h.quantity(w, req.Quantity)
	if !ok {
		return
	}
	order, err := h.service.CreateProductionOrder(r.Context(), req.BOMID, req.WarehouseID, qty)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, order)
}

func (h *Handler) startProduction(w http.ResponseWriter, r *http.Request) {
	h.productionTransition(w, r, h.service.StartProduction)
}

func (h *Handler) completeProduction(w http.ResponseWriter, r *http.Request) {
	h.productionTransition(w, r, h.service.CompleteProduction)
}

func (h *Handler) cancelProduction(w http.ResponseWriter, r *http.Request) {
	h.productionTransition(w, r, h.service.CancelProduction)
}

func (h *Handler) setThreshold(w http.ResponseWriter, r *http.Request) {
	var req thresholdRequest
	if !h.decode(w, r, &req) {
		return
	}
	minQty, ok := h.quantity(w, req.MinQuantity)
	if !ok {
		return
	}
	threshold, err := h.service.SetThreshold(r.Context(), StockThreshold{ItemID: req.ItemID, MinQuantity: minQty})
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, threshold)
}

type productionTransitionFunc func(ctx context.Context, id uuid.UUID, actorID int64) (ProductionOrder, error)

func (h *Handler) productionTransition(w http.ResponseWriter, r *http.Request, fn productionTransitionFunc) {
	id, ok := h.uuidParam(w, r)
	if !ok {
		return
	}
	order, err := fn(r.Context(), id, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.DecodeJSON(r, dst); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}

func (h *Handler) quantity(w http.ResponseWriter, raw string) (decimal.Decimal, bool) {
	value, err := decimal.NewFromString(raw)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "value must be a decimal number")
		return decimal.Decimal{}, false
	}
	return value, true
}

func (h *Handler) queryID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.URL.Query().Get(name), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", name+" must be an integer")
		return 0, false
	}
	return id, true
}

func (h *Handler) uuidParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	switch {
	case isAny(err, ErrValidation, ErrSameWarehouse, ErrInsufficientStock):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case isAny(err, shared.ErrActorMissing):
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
	case isAny(err, ErrStockNotFound, fx.ErrRateNotFound):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Lookup Failed", err.Error())
	case isAny(err, workflow.ErrTransitionUnavailable, workflow.ErrTerminalState):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case isAny(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case isAny(err, ErrDuplicate):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	default:
		h.logger.Error("stores request", slog.Any("error", err))
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
