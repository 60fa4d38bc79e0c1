package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mesapos/api/internal/enum"
	mw "github.com/mesapos/api/internal/middleware"
	"github.com/mesapos/api/internal/model"
)

// TableRegistry defines the table methods needed by table handlers.
// Satisfied by *service.TableService; narrow interface for testability.
type TableRegistry interface {
	ListTables(ctx context.Context) ([]model.Table, error)
	GetTable(ctx context.Context, number int) (model.Table, error)
	SetState(ctx context.Context, number int, state string) (model.Table, error)
}

// TableHandler handles table endpoints.
type TableHandler struct {
	svc TableRegistry
}

// NewTableHandler creates a new TableHandler.
func NewTableHandler(svc TableRegistry) *TableHandler {
	return &TableHandler{svc: svc}
}

// RegisterRoutes registers table endpoints at /tables. Manual state
// overrides are admin-only; orders move tables through their states.
func (h *TableHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/{number}", h.Get)
	r.With(mw.RequireRole(enum.RoleAdmin)).Put("/{number}/state", h.SetState)
}

// --- Request / Response types ---

type setTableStateRequest struct {
	State string `json:"state" validate:"required,oneof=free occupied"`
}

// --- Handlers ---

func (h *TableHandler) List(w http.ResponseWriter, r *http.Request) {
	tables, err := h.svc.ListTables(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tables)
}

func (h *TableHandler) Get(w http.ResponseWriter, r *http.Request) {
	number, ok := tableNumber(w, r)
	if !ok {
		return
	}
	table, err := h.svc.GetTable(r.Context(), number)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, table)
}

func (h *TableHandler) SetState(w http.ResponseWriter, r *http.Request) {
	number, ok := tableNumber(w, r)
	if !ok {
		return
	}
	var req setTableStateRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	table, err := h.svc.SetState(r.Context(), number, req.State)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, table)
}

// --- Helpers ---

func tableNumber(w http.ResponseWriter, r *http.Request) (int, bool) {
	n, err := strconv.Atoi(chi.URLParam(r, "number"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid table number"})
		return 0, false
	}
	return n, true
}
