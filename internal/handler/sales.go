package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/mesapos/api/internal/invoice"
	"github.com/mesapos/api/internal/model"
	"github.com/mesapos/api/internal/service"
)

// SaleServicer defines the checkout methods needed by sale handlers.
// Satisfied by *service.SaleService; narrow interface for testability.
type SaleServicer interface {
	FinalizeDirectSale(ctx context.Context, session model.Session, req service.DirectSaleRequest) (model.Sale, error)
	FinalizeFromPendingCheckout(ctx context.Context, session model.Session, pendingID string, req service.ClaimRequest) (model.Sale, error)
	ListPendingCheckouts(ctx context.Context, branch string) ([]model.PendingCheckout, error)
	GetSale(ctx context.Context, id string) (model.Sale, error)
	ListSales(ctx context.Context, branch string, from, to time.Time) ([]model.Sale, error)
}

// InvoiceRenderer renders invoice documents.
// Satisfied by *invoice.Renderer.
type InvoiceRenderer interface {
	RenderHTML(sale model.Sale, customer *model.Customer) (string, error)
	RenderPDF(sale model.Sale, customer *model.Customer) ([]byte, error)
}

// SaleHandler handles pending checkout, sale and invoice endpoints.
type SaleHandler struct {
	svc      SaleServicer
	renderer InvoiceRenderer
	invoices service.InvoiceQueue
	loc      *time.Location
}

// NewSaleHandler creates a new SaleHandler. invoices may be nil, which
// disables emailing invoices on demand.
func NewSaleHandler(svc SaleServicer, renderer InvoiceRenderer, invoices service.InvoiceQueue, loc *time.Location) *SaleHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &SaleHandler{svc: svc, renderer: renderer, invoices: invoices, loc: loc}
}

// RegisterCheckoutRoutes registers the seller queue at /checkouts.
func (h *SaleHandler) RegisterCheckoutRoutes(r chi.Router) {
	r.Get("/", h.ListPending)
	r.Post("/{id}/claim", h.Claim)
}

// RegisterRoutes registers sale endpoints at /sales.
func (h *SaleHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.CreateDirect)
	r.Get("/{id}", h.Get)
	r.Get("/{id}/invoice.pdf", h.InvoicePDF)
	r.Get("/{id}/invoice.html", h.InvoiceHTML)
	r.Post("/{id}/invoice/email", h.EmailInvoice)
}

// --- Request / Response types ---

type customerRequest struct {
	Name    string `json:"name" validate:"required,max=120"`
	TaxID   string `json:"tax_id" validate:"max=40"`
	Address string `json:"address" validate:"max=200"`
	Email   string `json:"email" validate:"omitempty,email"`
}

func (c *customerRequest) toModel() *model.Customer {
	if c == nil {
		return nil
	}
	return &model.Customer{Name: c.Name, TaxID: c.TaxID, Address: c.Address, Email: strings.TrimSpace(c.Email)}
}

type directSaleRequest struct {
	Items         []orderItemRequest `json:"items" validate:"required,min=1,dive"`
	PaymentMethod string             `json:"payment_method" validate:"required"`
	CashTendered  *decimal.Decimal   `json:"cash_tendered"`
	Customer      *customerRequest   `json:"customer" validate:"omitempty"`
}

type claimRequest struct {
	PaymentMethod string           `json:"payment_method"`
	CashTendered  *decimal.Decimal `json:"cash_tendered"`
	Customer      *customerRequest `json:"customer" validate:"omitempty"`
}

type emailInvoiceRequest struct {
	Email    string           `json:"email" validate:"required,email"`
	Customer *customerRequest `json:"customer" validate:"omitempty"`
}

// --- Handlers ---

// ListPending returns the seller queue for the caller's branch.
func (h *SaleHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	pending, err := h.svc.ListPendingCheckouts(r.Context(), branchScope(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pending)
}

// Claim charges a pending checkout. An empty body means exact cash.
func (h *SaleHandler) Claim(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if !decodeOptional(w, r, &req) {
		return
	}

	sale, err := h.svc.FinalizeFromPendingCheckout(r.Context(), session(r), chi.URLParam(r, "id"), service.ClaimRequest{
		PaymentMethod: req.PaymentMethod,
		CashTendered:  req.CashTendered,
		Customer:      req.Customer.toModel(),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sale)
}

// CreateDirect records a walk-up sale.
func (h *SaleHandler) CreateDirect(w http.ResponseWriter, r *http.Request) {
	var req directSaleRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	sale, err := h.svc.FinalizeDirectSale(r.Context(), session(r), service.DirectSaleRequest{
		Items:         toItemRequests(req.Items),
		PaymentMethod: req.PaymentMethod,
		CashTendered:  req.CashTendered,
		Customer:      req.Customer.toModel(),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sale)
}

// List returns the caller's branch sales between ?from= and ?to=
// (YYYY-MM-DD, inclusive).
func (h *SaleHandler) List(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseDateRange(r, h.loc)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	sales, err := h.svc.ListSales(r.Context(), branchScope(r), from, to)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sales)
}

func (h *SaleHandler) Get(w http.ResponseWriter, r *http.Request) {
	sale, ok := h.loadSale(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sale)
}

// InvoicePDF streams the printable receipt.
func (h *SaleHandler) InvoicePDF(w http.ResponseWriter, r *http.Request) {
	sale, ok := h.loadSale(w, r)
	if !ok {
		return
	}
	pdf, err := h.renderer.RenderPDF(sale, nil)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `inline; filename="factura-`+invoice.Number(sale.ID)+`.pdf"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(pdf); err != nil {
		log.Warn().Err(err).Str("sale_id", sale.ID).Msg("write invoice pdf")
	}
}

func (h *SaleHandler) InvoiceHTML(w http.ResponseWriter, r *http.Request) {
	sale, ok := h.loadSale(w, r)
	if !ok {
		return
	}
	html, err := h.renderer.RenderHTML(sale, nil)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(html)); err != nil {
		log.Warn().Err(err).Str("sale_id", sale.ID).Msg("write invoice html")
	}
}

// EmailInvoice queues the invoice for delivery and answers 202.
func (h *SaleHandler) EmailInvoice(w http.ResponseWriter, r *http.Request) {
	if h.invoices == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "email delivery is not configured"})
		return
	}

	var req emailInvoiceRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	sale, ok := h.loadSale(w, r)
	if !ok {
		return
	}

	customer := model.Customer{}
	if c := req.Customer.toModel(); c != nil {
		customer = *c
	}
	customer.Email = strings.TrimSpace(req.Email)

	if err := h.invoices.EnqueueInvoice(r.Context(), sale.ID, customer); err != nil {
		log.Error().Err(err).Str("sale_id", sale.ID).Msg("enqueue invoice email")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "could not queue invoice email"})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued", "sale_id": sale.ID})
}

// --- Helpers ---

// loadSale fetches the {id} sale. Sales of another branch answer 404 to
// everyone but admins.
func (h *SaleHandler) loadSale(w http.ResponseWriter, r *http.Request) (model.Sale, bool) {
	id := chi.URLParam(r, "id")
	sale, err := h.svc.GetSale(r.Context(), id)
	if err == nil && !service.Visible(session(r), sale.Branch) {
		err = fmt.Errorf("%w: sale %s", service.ErrNotFound, id)
	}
	if err != nil {
		writeServiceError(w, r, err)
		return model.Sale{}, false
	}
	return sale, true
}
