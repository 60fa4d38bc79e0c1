package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mesapos/api/internal/model"
	"github.com/mesapos/api/internal/service"
)

// StaffManager defines the staff methods needed by staff handlers.
// Satisfied by *service.StaffService; narrow interface for testability.
type StaffManager interface {
	ListStaff(ctx context.Context) ([]model.Staff, error)
	GetStaff(ctx context.Context, id string) (model.Staff, error)
	CreateStaff(ctx context.Context, in service.StaffInput) (model.Staff, error)
	UpdateStaff(ctx context.Context, id string, patch service.StaffPatch) (model.Staff, error)
	DeleteStaff(ctx context.Context, id string) error
	SetStaffAvatar(ctx context.Context, id string, data []byte, contentType string) (model.Staff, error)
}

// StaffHandler handles staff CRUD endpoints.
type StaffHandler struct {
	svc StaffManager
}

// NewStaffHandler creates a new StaffHandler.
func NewStaffHandler(svc StaffManager) *StaffHandler {
	return &StaffHandler{svc: svc}
}

// RegisterRoutes registers staff endpoints. Expected to be mounted at
// /staff behind an admin-only group.
func (h *StaffHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{id}", h.Get)
	r.Put("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
	r.Post("/{id}/avatar", h.UploadAvatar)
}

// --- Request / Response types ---

type createStaffRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required,min=4"`
	Role     string `json:"role" validate:"required,oneof=admin seller waiter"`
	Branch   string `json:"branch" validate:"max=64"`
}

type updateStaffRequest struct {
	Username *string `json:"username" validate:"omitempty,max=64"`
	Password *string `json:"password" validate:"omitempty,min=4"`
	Role     *string `json:"role" validate:"omitempty,oneof=admin seller waiter"`
	Branch   *string `json:"branch" validate:"omitempty,max=64"`
}

// --- Handlers ---

func (h *StaffHandler) List(w http.ResponseWriter, r *http.Request) {
	staff, err := h.svc.ListStaff(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, staff)
}

func (h *StaffHandler) Get(w http.ResponseWriter, r *http.Request) {
	staff, err := h.svc.GetStaff(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, staff)
}

// Create adds a staff account.
func (h *StaffHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createStaffRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	staff, err := h.svc.CreateStaff(r.Context(), service.StaffInput{
		Username: req.Username,
		Password: req.Password,
		Role:     req.Role,
		Branch:   req.Branch,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, staff)
}

// Update edits a staff account; omitted fields are kept.
func (h *StaffHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateStaffRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	staff, err := h.svc.UpdateStaff(r.Context(), chi.URLParam(r, "id"), service.StaffPatch{
		Username: req.Username,
		Password: req.Password,
		Role:     req.Role,
		Branch:   req.Branch,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, staff)
}

func (h *StaffHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteStaff(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UploadAvatar stores a multipart "file" as the staff avatar.
func (h *StaffHandler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	data, contentType, ok := readImage(w, r)
	if !ok {
		return
	}
	staff, err := h.svc.SetStaffAvatar(r.Context(), chi.URLParam(r, "id"), data, contentType)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, staff)
}
