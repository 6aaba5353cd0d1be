// Package handler содержит HTTP-обработчики API сервиса согласования начислений.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/fcoaccruals/internal/middleware"
	"github.com/mmeshcher/fcoaccruals/internal/model"
	"github.com/mmeshcher/fcoaccruals/internal/procurement"
	"github.com/mmeshcher/fcoaccruals/internal/service"
	"github.com/mmeshcher/fcoaccruals/internal/validation"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	ResolveContext(ctx context.Context, id model.Identity) (*model.UserContext, error)
	Orders(ctx context.Context, id model.Identity, role model.Role) ([]model.Order, error)
	RecordEditedAmount(ctx context.Context, id model.Identity, role model.Role, key model.ItemKey, amount decimal.Decimal) (*model.Order, error)
	ToggleApproval(ctx context.Context, id model.Identity, role model.Role, key model.ItemKey, value bool) (*model.OrderItem, error)
	AdvanceProcessingState(ctx context.Context, id model.Identity, role model.Role, requests []service.AdvanceRequest) ([]model.Order, error)
}

// Handler реализует HTTP-обработчики API сервиса согласования начислений.
type Handler struct {
	service  Service
	logger   *zap.Logger
	identity *middleware.IdentityMiddleware
	validate *validator.Validate
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, identity *middleware.IdentityMiddleware) *Handler {
	return &Handler{
		service:  s,
		logger:   logger,
		identity: identity,
		validate: validation.New(),
	}
}

// actor возвращает пользователя и роль запроса. Роль задаётся параметром role,
// без него выбирается роль с наивысшим приоритетом.
func (h *Handler) actor(r *http.Request) (model.Identity, model.Role, error) {
	id, ok := middleware.GetIdentityFromContext(r.Context())
	if !ok {
		return model.Identity{}, "", service.ErrContextMissing
	}
	role, err := service.SelectRole(id, r.URL.Query().Get("role"))
	if err != nil {
		return model.Identity{}, "", err
	}
	return id, role, nil
}

func (h *Handler) decode(r *http.Request, dst any) error {
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errBadRequest
	}
	if err := h.validate.Struct(dst); err != nil {
		return errBadRequest
	}
	return nil
}

var errBadRequest = errors.New("bad request")

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, service.ErrContextMissing),
		errors.Is(err, service.ErrInvalidAmount),
		errors.Is(err, validation.ErrInvalidAmount):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrRoleNotGranted):
		status = http.StatusForbidden
	case service.IsNotFound(err):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrItemNotEditable),
		errors.Is(err, service.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, procurement.ErrSourceUnavailable):
		status = http.StatusServiceUnavailable
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.Error(err),
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())))
	} else {
		h.logger.Debug("request rejected", zap.Error(err), zap.Int("status", status))
	}

	http.Error(w, http.StatusText(status), status)
}

func (h *Handler) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response error", zap.Error(err))
	}
}

// GetContext возвращает разрешённый контекст текущего пользователя.
func (h *Handler) GetContext(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.GetIdentityFromContext(r.Context())
	if !ok {
		h.writeError(w, r, service.ErrContextMissing)
		return
	}

	uc, err := h.service.ResolveContext(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, newContextResponse(id, uc))
}

// GetOrders возвращает заказы с позициями, видимыми роли.
func (h *Handler) GetOrders(w http.ResponseWriter, r *http.Request) {
	id, role, err := h.actor(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	orders, err := h.service.Orders(r.Context(), id, role)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if len(orders) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	h.writeJSON(w, newOrdersResponse(orders))
}

type sumRequest struct {
	PurchaseOrder           string      `json:"purchaseOrder" validate:"required,purchase_order"`
	PurchaseOrderItem       string      `json:"purchaseOrderItem" validate:"required,purchase_order_item"`
	OpenTotalAmountEditable json.Number `json:"openTotalAmountEditable" validate:"required,amount"`
}

// Sum сохраняет скорректированную открытую сумму позиции и возвращает пересчитанный заказ.
func (h *Handler) Sum(w http.ResponseWriter, r *http.Request) {
	id, role, err := h.actor(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req sumRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	amount, err := validation.ParseAmount(req.OpenTotalAmountEditable.String())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	key := model.ItemKey{PurchaseOrder: req.PurchaseOrder, PurchaseOrderItem: req.PurchaseOrderItem}
	order, err := h.service.RecordEditedAmount(r.Context(), id, role, key, amount)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, newOrderResponse(*order))
}

type toggleRequest struct {
	PurchaseOrder     string `json:"purchaseOrder" validate:"required,purchase_order"`
	PurchaseOrderItem string `json:"purchaseOrderItem" validate:"required,purchase_order_item"`
	Approved          *bool  `json:"approved" validate:"required"`
}

// ToggleApproval устанавливает флаг согласования роли на позиции.
func (h *Handler) ToggleApproval(w http.ResponseWriter, r *http.Request) {
	id, role, err := h.actor(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req toggleRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	key := model.ItemKey{PurchaseOrder: req.PurchaseOrder, PurchaseOrderItem: req.PurchaseOrderItem}
	item, err := h.service.ToggleApproval(r.Context(), id, role, key, *req.Approved)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, newItemResponse(*item))
}

type advanceOrder struct {
	PurchaseOrder string   `json:"purchaseOrder" validate:"required,purchase_order"`
	Items         []string `json:"items" validate:"omitempty,dive,purchase_order_item"`
}

type advanceRequest struct {
	Orders []advanceOrder `json:"orders" validate:"required,min=1,dive"`
}

// Advance переводит согласованные ролью позиции выбранных заказов на следующий этап.
func (h *Handler) Advance(w http.ResponseWriter, r *http.Request) {
	id, role, err := h.actor(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req advanceRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	requests := make([]service.AdvanceRequest, 0, len(req.Orders))
	for _, o := range req.Orders {
		requests = append(requests, service.AdvanceRequest{PurchaseOrder: o.PurchaseOrder, Items: o.Items})
	}

	orders, err := h.service.AdvanceProcessingState(r.Context(), id, role, requests)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, newOrdersResponse(orders))
}
