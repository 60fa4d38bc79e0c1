package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/mesapos/api/internal/enum"
	mw "github.com/mesapos/api/internal/middleware"
	"github.com/mesapos/api/internal/model"
	"github.com/mesapos/api/internal/quickentry"
	"github.com/mesapos/api/internal/service"
)

// ProductCatalog defines the inventory methods needed by product handlers.
// Satisfied by *service.InventoryService; narrow interface for testability.
type ProductCatalog interface {
	ListProducts(ctx context.Context) ([]model.Product, error)
	GetProduct(ctx context.Context, id string) (model.Product, error)
	CreateProduct(ctx context.Context, in service.ProductInput) (model.Product, error)
	UpdateProduct(ctx context.Context, id string, patch service.ProductPatch) (model.Product, error)
	DeleteProduct(ctx context.Context, id string) error
	AdjustStock(ctx context.Context, id string, delta int) (model.Product, error)
	SetProductImage(ctx context.Context, id string, data []byte, contentType string) (model.Product, error)
	ListCategories(ctx context.Context) ([]string, error)
}

// ProductHandler handles product and category endpoints.
type ProductHandler struct {
	svc ProductCatalog
}

// NewProductHandler creates a new ProductHandler.
func NewProductHandler(svc ProductCatalog) *ProductHandler {
	return &ProductHandler{svc: svc}
}

// RegisterRoutes registers product endpoints at /products and the
// categories listing. Reads are open to all staff; writes are admin-only.
func (h *ProductHandler) RegisterRoutes(r chi.Router) {
	r.Get("/categories", h.ListCategories)

	r.Route("/products", func(r chi.Router) {
		r.Get("/", h.List)
		r.Get("/{id}", h.Get)
		r.Post("/match", h.Match)

		r.Group(func(r chi.Router) {
			r.Use(mw.RequireRole(enum.RoleAdmin))
			r.Post("/", h.Create)
			r.Put("/{id}", h.Update)
			r.Delete("/{id}", h.Delete)
			r.Post("/{id}/stock", h.AdjustStock)
			r.Post("/{id}/image", h.UploadImage)
		})
	})
}

// --- Request / Response types ---

type createProductRequest struct {
	Name           string          `json:"name" validate:"required,max=120"`
	Price          decimal.Decimal `json:"price" validate:"gte=0"`
	QuantityOnHand int             `json:"quantity_on_hand" validate:"gte=0"`
	Category       string          `json:"category" validate:"max=60"`
}

type updateProductRequest struct {
	Name           *string          `json:"name" validate:"omitempty,max=120"`
	Price          *decimal.Decimal `json:"price"`
	QuantityOnHand *int             `json:"quantity_on_hand" validate:"omitempty,gte=0"`
	Category       *string          `json:"category" validate:"omitempty,max=60"`
}

type adjustStockRequest struct {
	Delta int `json:"delta" validate:"required"`
}

type matchRequest struct {
	Text string `json:"text" validate:"required,max=2000"`
}

type matchResponse struct {
	Lines    []quickentry.Resolution `json:"lines"`
	Warnings []string                `json:"warnings"`
}

// --- Handlers ---

func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	products, err := h.svc.ListProducts(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	// Optional category filter.
	if c := r.URL.Query().Get("category"); c != "" {
		filtered := make([]model.Product, 0, len(products))
		for _, p := range products {
			if p.Category == c {
				filtered = append(filtered, p)
			}
		}
		products = filtered
	}
	writeJSON(w, http.StatusOK, products)
}

func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	p, err := h.svc.CreateProduct(r.Context(), service.ProductInput{
		Name:           req.Name,
		Price:          req.Price,
		QuantityOnHand: req.QuantityOnHand,
		Category:       req.Category,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *ProductHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateProductRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	p, err := h.svc.UpdateProduct(r.Context(), chi.URLParam(r, "id"), service.ProductPatch{
		Name:           req.Name,
		Price:          req.Price,
		QuantityOnHand: req.QuantityOnHand,
		Category:       req.Category,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *ProductHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteProduct(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AdjustStock adds a signed delta to the quantity on hand.
func (h *ProductHandler) AdjustStock(w http.ResponseWriter, r *http.Request) {
	var req adjustStockRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	p, err := h.svc.AdjustStock(r.Context(), chi.URLParam(r, "id"), req.Delta)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// UploadImage stores a multipart "file" as the product image.
func (h *ProductHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	data, contentType, ok := readImage(w, r)
	if !ok {
		return
	}
	p, err := h.svc.SetProductImage(r.Context(), chi.URLParam(r, "id"), data, contentType)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Match resolves a typed list ("2 limonadas, flan x3") against the catalog
// so a waiter or seller can confirm the lines before submitting them.
func (h *ProductHandler) Match(w http.ResponseWriter, r *http.Request) {
	var req matchRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	products, err := h.svc.ListProducts(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	lines, warnings := quickentry.NewMatcher(products).Resolve(req.Text)
	if warnings == nil {
		warnings = []string{}
	}
	writeJSON(w, http.StatusOK, matchResponse{Lines: lines, Warnings: warnings})
}

func (h *ProductHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.svc.ListCategories(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, categories)
}
