package handler_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/mesapos/api/internal/handler"
	"github.com/mesapos/api/internal/invoice"
	"github.com/mesapos/api/internal/model"
	"github.com/mesapos/api/internal/service"
)

// --- Mock sale service ---

type mockSaleService struct {
	directFn  func(ctx context.Context, s model.Session, req service.DirectSaleRequest) (model.Sale, error)
	claimFn   func(ctx context.Context, s model.Session, pendingID string, req service.ClaimRequest) (model.Sale, error)
	pendingFn func(ctx context.Context, branch string) ([]model.PendingCheckout, error)
	sales     map[string]model.Sale
	from, to  time.Time
	branch    string
}

func (m *mockSaleService) FinalizeDirectSale(ctx context.Context, s model.Session, req service.DirectSaleRequest) (model.Sale, error) {
	return m.directFn(ctx, s, req)
}

func (m *mockSaleService) FinalizeFromPendingCheckout(ctx context.Context, s model.Session, pendingID string, req service.ClaimRequest) (model.Sale, error) {
	return m.claimFn(ctx, s, pendingID, req)
}

func (m *mockSaleService) ListPendingCheckouts(ctx context.Context, branch string) ([]model.PendingCheckout, error) {
	return m.pendingFn(ctx, branch)
}

func (m *mockSaleService) GetSale(_ context.Context, id string) (model.Sale, error) {
	s, ok := m.sales[id]
	if !ok {
		return model.Sale{}, service.ErrNotFound
	}
	return s, nil
}

func (m *mockSaleService) ListSales(_ context.Context, branch string, from, to time.Time) ([]model.Sale, error) {
	m.branch, m.from, m.to = branch, from, to
	out := []model.Sale{}
	for _, s := range m.sales {
		out = append(out, s)
	}
	return out, nil
}

type recordingQueue struct {
	saleID   string
	customer model.Customer
	err      error
}

func (q *recordingQueue) EnqueueInvoice(_ context.Context, saleID string, customer model.Customer) error {
	q.saleID, q.customer = saleID, customer
	return q.err
}

var testSale = model.Sale{
	ID:            "0000042",
	LineItems:     []model.SaleLine{{ProductID: "p-1", Name: "Limonada", Price: decimal.NewFromInt(6000), QuantitySold: 2}},
	Total:         decimal.NewFromInt(12000),
	PaymentMethod: "card",
	Timestamp:     time.Date(2024, 5, 2, 3, 30, 0, 0, time.UTC),
	SellerID:      "s-1",
	SellerName:    "andres",
	Branch:        "centro",
}

func newSaleHandler(m *mockSaleService, q service.InvoiceQueue) *handler.SaleHandler {
	return handler.NewSaleHandler(m, invoice.NewRenderer(invoice.Business{Name: "Mesa Centro"}, nil), q, nil)
}

func newSaleRouter(m *mockSaleService, q service.InvoiceQueue, s model.Session) http.Handler {
	h := newSaleHandler(m, q)
	return newRouter(s, "/sales", func(r chi.Router) { h.RegisterRoutes(r) })
}

func newCheckoutRouter(m *mockSaleService, s model.Session) http.Handler {
	h := newSaleHandler(m, nil)
	return newRouter(s, "/checkouts", func(r chi.Router) { h.RegisterCheckoutRoutes(r) })
}

// --- Pending checkouts ---

func TestCheckouts_ListUsesBranchScope(t *testing.T) {
	var branch string
	m := &mockSaleService{
		pendingFn: func(_ context.Context, b string) ([]model.PendingCheckout, error) {
			branch = b
			return []model.PendingCheckout{{ID: "pc-1", TableNumber: 4}}, nil
		},
	}
	rr := doJSON(t, newCheckoutRouter(m, sellerSession), "GET", "/checkouts?branch=norte", nil)
	expectStatus(t, rr, http.StatusOK)
	if branch != "centro" {
		t.Errorf("expected seller's own branch, got %q", branch)
	}
	if got := decodeList(t, rr); len(got) != 1 {
		t.Fatalf("expected 1 pending checkout, got %d", len(got))
	}
}

func TestCheckouts_ClaimEmptyBodyMeansExactCash(t *testing.T) {
	var got service.ClaimRequest
	var gotID string
	m := &mockSaleService{
		claimFn: func(_ context.Context, _ model.Session, id string, req service.ClaimRequest) (model.Sale, error) {
			gotID, got = id, req
			return testSale, nil
		},
	}
	rr := doJSON(t, newCheckoutRouter(m, sellerSession), "POST", "/checkouts/pc-1/claim", nil)
	expectStatus(t, rr, http.StatusCreated)
	if gotID != "pc-1" {
		t.Errorf("expected pc-1, got %q", gotID)
	}
	if got.PaymentMethod != "" || got.CashTendered != nil || got.Customer != nil {
		t.Errorf("expected zero claim request, got %+v", got)
	}
}

func TestCheckouts_ClaimChunkedEmptyBody(t *testing.T) {
	var got service.ClaimRequest
	m := &mockSaleService{
		claimFn: func(_ context.Context, _ model.Session, _ string, req service.ClaimRequest) (model.Sale, error) {
			got = req
			return testSale, nil
		},
	}
	req := httptest.NewRequest("POST", "/checkouts/pc-1/claim", io.NopCloser(strings.NewReader("")))
	if req.ContentLength != -1 {
		t.Fatalf("expected unknown length, got %d", req.ContentLength)
	}
	rr := httptest.NewRecorder()
	newCheckoutRouter(m, sellerSession).ServeHTTP(rr, req)
	expectStatus(t, rr, http.StatusCreated)
	if got.PaymentMethod != "" || got.CashTendered != nil {
		t.Errorf("expected zero claim request, got %+v", got)
	}
}

func TestCheckouts_ClaimMalformedBody(t *testing.T) {
	m := &mockSaleService{}
	req := httptest.NewRequest("POST", "/checkouts/pc-1/claim", strings.NewReader("{"))
	rr := httptest.NewRecorder()
	newCheckoutRouter(m, sellerSession).ServeHTTP(rr, req)
	expectStatus(t, rr, http.StatusBadRequest)
}

func TestCheckouts_ClaimWithPayment(t *testing.T) {
	var got service.ClaimRequest
	m := &mockSaleService{
		claimFn: func(_ context.Context, _ model.Session, _ string, req service.ClaimRequest) (model.Sale, error) {
			got = req
			return testSale, nil
		},
	}
	rr := doJSON(t, newCheckoutRouter(m, sellerSession), "POST", "/checkouts/pc-1/claim", map[string]interface{}{
		"payment_method": "cash",
		"cash_tendered":  "20000",
		"customer":       map[string]string{"name": "Ana", "email": "ana@example.com"},
	})
	expectStatus(t, rr, http.StatusCreated)
	if got.PaymentMethod != "cash" || got.CashTendered == nil || !got.CashTendered.Equal(decimal.NewFromInt(20000)) {
		t.Errorf("unexpected payment: %+v", got)
	}
	if got.Customer == nil || got.Customer.Email != "ana@example.com" {
		t.Errorf("expected customer, got %+v", got.Customer)
	}
}

func TestCheckouts_ClaimErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"already claimed", service.ErrNotFound, http.StatusNotFound},
		{"short cash", service.ErrInsufficientPayment, http.StatusUnprocessableEntity},
		{"stock ran out", service.ErrInsufficientStock, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &mockSaleService{
				claimFn: func(context.Context, model.Session, string, service.ClaimRequest) (model.Sale, error) {
					return model.Sale{}, tt.err
				},
			}
			expectStatus(t, doJSON(t, newCheckoutRouter(m, sellerSession), "POST", "/checkouts/pc-1/claim", nil), tt.status)
		})
	}
}

func TestCheckouts_ClaimRejectsBadCustomerEmail(t *testing.T) {
	m := &mockSaleService{}
	rr := doJSON(t, newCheckoutRouter(m, sellerSession), "POST", "/checkouts/pc-1/claim", map[string]interface{}{
		"customer": map[string]string{"name": "Ana", "email": "not-an-email"},
	})
	expectStatus(t, rr, http.StatusBadRequest)
}

// --- Direct sales ---

func TestSales_CreateDirect(t *testing.T) {
	var got service.DirectSaleRequest
	var gotSession model.Session
	m := &mockSaleService{
		directFn: func(_ context.Context, s model.Session, req service.DirectSaleRequest) (model.Sale, error) {
			gotSession, got = s, req
			return testSale, nil
		},
	}
	rr := doJSON(t, newSaleRouter(m, nil, sellerSession), "POST", "/sales", map[string]interface{}{
		"items":          []map[string]interface{}{{"product_id": "p-1", "quantity": 2}},
		"payment_method": "card",
	})
	expectStatus(t, rr, http.StatusCreated)
	if gotSession.StaffID != "s-1" || got.PaymentMethod != "card" || len(got.Items) != 1 {
		t.Errorf("unexpected call: %+v %+v", gotSession, got)
	}
}

func TestSales_CreateDirectValidation(t *testing.T) {
	m := &mockSaleService{}
	router := newSaleRouter(m, nil, sellerSession)
	expectStatus(t, doJSON(t, router, "POST", "/sales", map[string]interface{}{"payment_method": "cash"}), http.StatusBadRequest)
	expectStatus(t, doJSON(t, router, "POST", "/sales", map[string]interface{}{
		"items": []map[string]interface{}{{"product_id": "p-1", "quantity": 1}},
	}), http.StatusBadRequest)
}

// --- Queries ---

func TestSales_ListParsesDateRange(t *testing.T) {
	m := &mockSaleService{sales: map[string]model.Sale{testSale.ID: testSale}}
	router := newSaleRouter(m, nil, sellerSession)

	rr := doJSON(t, router, "GET", "/sales?from=2024-05-01&to=2024-05-01", nil)
	expectStatus(t, rr, http.StatusOK)
	if !m.from.Equal(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)) || !m.to.Equal(time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected range [%v, %v)", m.from, m.to)
	}

	if m.branch != "centro" {
		t.Errorf("expected seller's own branch, got %q", m.branch)
	}

	expectStatus(t, doJSON(t, router, "GET", "/sales?from=01-05-2024", nil), http.StatusBadRequest)
	expectStatus(t, doJSON(t, router, "GET", "/sales?from=2024-05-03&to=2024-05-01", nil), http.StatusBadRequest)
}

func TestSales_Get(t *testing.T) {
	m := &mockSaleService{sales: map[string]model.Sale{testSale.ID: testSale}}
	router := newSaleRouter(m, nil, sellerSession)
	rr := doJSON(t, router, "GET", "/sales/0000042", nil)
	expectStatus(t, rr, http.StatusOK)
	if decodeResponse(t, rr)["total"] != "12000" {
		t.Error("expected total 12000")
	}
	expectStatus(t, doJSON(t, router, "GET", "/sales/missing", nil), http.StatusNotFound)
}

// --- Invoices ---

func TestSales_InvoicePDF(t *testing.T) {
	m := &mockSaleService{sales: map[string]model.Sale{testSale.ID: testSale}}
	rr := doJSON(t, newSaleRouter(m, nil, sellerSession), "GET", "/sales/0000042/invoice.pdf", nil)
	expectStatus(t, rr, http.StatusOK)
	if ct := rr.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("expected application/pdf, got %q", ct)
	}
	if cd := rr.Header().Get("Content-Disposition"); !strings.Contains(cd, "factura-0000042.pdf") {
		t.Errorf("unexpected Content-Disposition %q", cd)
	}
	if !strings.HasPrefix(rr.Body.String(), "%PDF-") {
		t.Error("expected a PDF body")
	}
}

func TestSales_InvoiceHTML(t *testing.T) {
	m := &mockSaleService{sales: map[string]model.Sale{testSale.ID: testSale}}
	rr := doJSON(t, newSaleRouter(m, nil, sellerSession), "GET", "/sales/0000042/invoice.html", nil)
	expectStatus(t, rr, http.StatusOK)
	body := rr.Body.String()
	if !strings.Contains(body, "Mesa Centro") || !strings.Contains(body, "Limonada") {
		t.Errorf("unexpected invoice html: %s", body)
	}
}

func TestSales_EmailInvoiceQueued(t *testing.T) {
	m := &mockSaleService{sales: map[string]model.Sale{testSale.ID: testSale}}
	q := &recordingQueue{}
	rr := doJSON(t, newSaleRouter(m, q, sellerSession), "POST", "/sales/0000042/invoice/email", map[string]interface{}{
		"email":    "ana@example.com",
		"customer": map[string]string{"name": "Ana", "tax_id": "123"},
	})
	expectStatus(t, rr, http.StatusAccepted)
	if q.saleID != "0000042" || q.customer.Email != "ana@example.com" || q.customer.TaxID != "123" {
		t.Errorf("unexpected enqueue: %+v", q)
	}
	if decodeResponse(t, rr)["status"] != "queued" {
		t.Error("expected status queued")
	}
}

func TestSales_EmailInvoiceUnavailable(t *testing.T) {
	m := &mockSaleService{sales: map[string]model.Sale{testSale.ID: testSale}}
	body := map[string]string{"email": "ana@example.com"}

	expectStatus(t, doJSON(t, newSaleRouter(m, nil, sellerSession), "POST", "/sales/0000042/invoice/email", body), http.StatusServiceUnavailable)

	q := &recordingQueue{err: errors.New("redis: connection refused")}
	expectStatus(t, doJSON(t, newSaleRouter(m, q, sellerSession), "POST", "/sales/0000042/invoice/email", body), http.StatusServiceUnavailable)
}

func TestSales_EmailInvoiceErrors(t *testing.T) {
	m := &mockSaleService{sales: map[string]model.Sale{testSale.ID: testSale}}
	router := newSaleRouter(m, &recordingQueue{}, sellerSession)
	expectStatus(t, doJSON(t, router, "POST", "/sales/0000042/invoice/email", map[string]string{"email": "nope"}), http.StatusBadRequest)
	expectStatus(t, doJSON(t, router, "POST", "/sales/missing/invoice/email", map[string]string{"email": "ana@example.com"}), http.StatusNotFound)
}

func TestSales_OtherBranchIsNotFound(t *testing.T) {
	norteSale := testSale
	norteSale.ID, norteSale.Branch = "0000043", "norte"
	m := &mockSaleService{sales: map[string]model.Sale{norteSale.ID: norteSale}}

	router := newSaleRouter(m, &recordingQueue{}, sellerSession)
	for _, path := range []string{"/sales/0000043", "/sales/0000043/invoice.pdf", "/sales/0000043/invoice.html"} {
		expectStatus(t, doJSON(t, router, "GET", path, nil), http.StatusNotFound)
	}
	expectStatus(t, doJSON(t, router, "POST", "/sales/0000043/invoice/email", map[string]string{"email": "ana@example.com"}), http.StatusNotFound)

	admin := newSaleRouter(m, nil, adminSession)
	expectStatus(t, doJSON(t, admin, "GET", "/sales/0000043", nil), http.StatusOK)
}
