package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mesapos/api/internal/enum"
	mw "github.com/mesapos/api/internal/middleware"
	"github.com/mesapos/api/internal/model"
	"github.com/mesapos/api/internal/service"
)

// OrderServicer defines the order lifecycle methods needed by order handlers.
// Satisfied by *service.OrderService; narrow interface for testability.
type OrderServicer interface {
	CreateOrder(ctx context.Context, session model.Session, req service.CreateOrderRequest) (model.Order, error)
	GetOrder(ctx context.Context, session model.Session, id string) (model.Order, error)
	ListOrders(ctx context.Context, state, branch string) ([]model.Order, error)
	AddItem(ctx context.Context, session model.Session, orderID, productID string, qty int) (model.Order, error)
	RemoveItem(ctx context.Context, session model.Session, orderID, productID string) (model.Order, error)
	EditOrder(ctx context.Context, session model.Session, orderID string, items []service.ItemRequest, notes string) (model.Order, error)
	MarkReadyForPayment(ctx context.Context, session model.Session, orderID string) (model.Order, error)
	SendToCheckout(ctx context.Context, session model.Session, orderID string) (model.PendingCheckout, error)
}

// OrderHandler handles waiter order endpoints.
type OrderHandler struct {
	svc OrderServicer
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(svc OrderServicer) *OrderHandler {
	return &OrderHandler{svc: svc}
}

// RegisterRoutes registers order endpoints at /orders. Sellers may read
// orders; only waiters and admins change them.
func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(mw.RequireRole(enum.RoleWaiter, enum.RoleAdmin, enum.RoleSeller))
		r.Get("/", h.List)
		r.Get("/{id}", h.Get)
	})

	r.Group(func(r chi.Router) {
		r.Use(mw.RequireRole(enum.RoleWaiter, enum.RoleAdmin))
		r.Post("/", h.Create)
		r.Put("/{id}", h.Edit)
		r.Post("/{id}/items", h.AddItem)
		r.Delete("/{id}/items/{productID}", h.RemoveItem)
		r.Post("/{id}/ready", h.MarkReady)
		r.Post("/{id}/checkout", h.SendToCheckout)
	})
}

// --- Request / Response types ---

type orderItemRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gt=0"`
}

type createOrderRequest struct {
	TableNumber int                `json:"table_number" validate:"required,gte=1"`
	Items       []orderItemRequest `json:"items" validate:"required,min=1,dive"`
	Notes       string             `json:"notes" validate:"max=500"`
}

type editOrderRequest struct {
	Items []orderItemRequest `json:"items" validate:"required,min=1,dive"`
	Notes string             `json:"notes" validate:"max=500"`
}

func toItemRequests(items []orderItemRequest) []service.ItemRequest {
	out := make([]service.ItemRequest, len(items))
	for i, it := range items {
		out[i] = service.ItemRequest{ProductID: it.ProductID, Quantity: it.Quantity}
	}
	return out
}

// --- Handlers ---

// Create opens an order on a free table for the calling waiter.
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	order, err := h.svc.CreateOrder(r.Context(), session(r), service.CreateOrderRequest{
		TableNumber: req.TableNumber,
		Items:       toItemRequests(req.Items),
		Notes:       req.Notes,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

// List returns open orders, optionally filtered by ?state=.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	if state != "" && state != enum.OrderStateInProgress && state != enum.OrderStateReadyForPayment {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid state filter"})
		return
	}

	orders, err := h.svc.ListOrders(r.Context(), state, branchScope(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	order, err := h.svc.GetOrder(r.Context(), session(r), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// Edit replaces the order's lines and notes.
func (h *OrderHandler) Edit(w http.ResponseWriter, r *http.Request) {
	var req editOrderRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	order, err := h.svc.EditOrder(r.Context(), session(r), chi.URLParam(r, "id"), toItemRequests(req.Items), req.Notes)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *OrderHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req orderItemRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	order, err := h.svc.AddItem(r.Context(), session(r), chi.URLParam(r, "id"), req.ProductID, req.Quantity)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *OrderHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	order, err := h.svc.RemoveItem(r.Context(), session(r), chi.URLParam(r, "id"), chi.URLParam(r, "productID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *OrderHandler) MarkReady(w http.ResponseWriter, r *http.Request) {
	order, err := h.svc.MarkReadyForPayment(r.Context(), session(r), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// SendToCheckout hands a ready order to the seller queue and frees its table.
func (h *OrderHandler) SendToCheckout(w http.ResponseWriter, r *http.Request) {
	pending, err := h.svc.SendToCheckout(r.Context(), session(r), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, pending)
}
