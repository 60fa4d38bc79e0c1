package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mesapos/api/internal/model"
	"github.com/mesapos/api/internal/service"
)

// SalesLister defines the sale query needed by report handlers.
// Satisfied by *service.SaleService; narrow interface for testability.
type SalesLister interface {
	ListSales(ctx context.Context, branch string, from, to time.Time) ([]model.Sale, error)
}

// ReportsHandler serves sales analytics.
type ReportsHandler struct {
	sales SalesLister
	loc   *time.Location
	now   func() time.Time
}

// NewReportsHandler creates a new ReportsHandler. Days are bucketed in loc,
// which also decides what "today" is when a request names no range.
func NewReportsHandler(sales SalesLister, loc *time.Location) *ReportsHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &ReportsHandler{sales: sales, loc: loc, now: time.Now}
}

// WithClock replaces the clock used for the default range.
func (h *ReportsHandler) WithClock(now func() time.Time) *ReportsHandler {
	h.now = now
	return h
}

// RegisterRoutes registers report endpoints at /reports. Every endpoint
// reads ?from= and ?to= (YYYY-MM-DD) and defaults to today.
func (h *ReportsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/summary", h.Summary)
	r.Get("/dashboard", h.Dashboard)
	r.Get("/top-products", h.TopProducts)
	r.Get("/payment-methods", h.PaymentMethods)
	r.Get("/daily", h.Daily)
}

// --- Request / Response types ---

type summaryResponse struct {
	From string `json:"from"`
	To   string `json:"to"`
	service.Summary
}

type dashboardResponse struct {
	From           string                 `json:"from"`
	To             string                 `json:"to"`
	Summary        service.Summary        `json:"summary"`
	TopProducts    []service.ProductTotal `json:"top_products"`
	PaymentMethods []service.MethodTotal  `json:"payment_methods"`
	Daily          []service.DayTotal     `json:"daily"`
}

// --- Handlers ---

// Dashboard returns every aggregate for the requested range in one call.
func (h *ReportsHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	sales, rng, ok := h.load(w, r)
	if !ok {
		return
	}
	n, ok := topN(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, dashboardResponse{
		From:           rng.from,
		To:             rng.to,
		Summary:        service.SalesSummary(sales),
		TopProducts:    service.TopProductsByQuantity(sales, n),
		PaymentMethods: service.TotalsByPaymentMethod(sales),
		Daily:          service.DailyTotals(sales, h.loc),
	})
}

// Summary returns revenue and sale count for the range.
func (h *ReportsHandler) Summary(w http.ResponseWriter, r *http.Request) {
	sales, rng, ok := h.load(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, summaryResponse{From: rng.from, To: rng.to, Summary: service.SalesSummary(sales)})
}

func (h *ReportsHandler) TopProducts(w http.ResponseWriter, r *http.Request) {
	sales, _, ok := h.load(w, r)
	if !ok {
		return
	}
	n, ok := topN(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, service.TopProductsByQuantity(sales, n))
}

func (h *ReportsHandler) PaymentMethods(w http.ResponseWriter, r *http.Request) {
	sales, _, ok := h.load(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, service.TotalsByPaymentMethod(sales))
}

func (h *ReportsHandler) Daily(w http.ResponseWriter, r *http.Request) {
	sales, _, ok := h.load(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, service.DailyTotals(sales, h.loc))
}

// --- Helpers ---

// dayRange is the inclusive range of days a report covers.
type dayRange struct {
	from, to string
}

// load fetches the caller's branch sales for the requested range.
func (h *ReportsHandler) load(w http.ResponseWriter, r *http.Request) ([]model.Sale, dayRange, bool) {
	from, to, err := reportRange(r, h.loc, h.now())
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return nil, dayRange{}, false
	}
	sales, err := h.sales.ListSales(r.Context(), branchScope(r), from, to)
	if err != nil {
		writeServiceError(w, r, err)
		return nil, dayRange{}, false
	}
	rng := dayRange{from: from.Format(time.DateOnly), to: to.AddDate(0, 0, -1).Format(time.DateOnly)}
	return sales, rng, true
}

// topN reads ?limit=, defaulting to service.DefaultTopProducts.
func topN(w http.ResponseWriter, r *http.Request) (int, bool) {
	s := r.URL.Query().Get("limit")
	if s == "" {
		return service.DefaultTopProducts, true
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > 100 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be between 1 and 100"})
		return 0, false
	}
	return n, true
}
