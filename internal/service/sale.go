package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/mesapos/api/internal/enum"
	"github.com/mesapos/api/internal/model"
	"github.com/mesapos/api/internal/store"
)

// InvoiceQueue delivers invoice emails after a sale commits.
// Satisfied by *worker.Dispatcher and *worker.Inline.
type InvoiceQueue interface {
	EnqueueInvoice(ctx context.Context, saleID string, customer model.Customer) error
}

// DirectSaleRequest is a walk-up sale rung up by a seller.
type DirectSaleRequest struct {
	Items         []ItemRequest
	PaymentMethod string
	CashTendered  *decimal.Decimal
	Customer      *model.Customer
}

// ClaimRequest is the payment a seller records when charging a pending
// checkout. Every field is optional.
type ClaimRequest struct {
	PaymentMethod string
	CashTendered  *decimal.Decimal
	Customer      *model.Customer
}

// SaleService turns carts and pending checkouts into sales.
type SaleService struct {
	store    store.Store
	notify   Notifier
	invoices InvoiceQueue
}

// NewSaleService creates a new SaleService. invoices may be nil, in which
// case no invoice emails are sent.
func NewSaleService(s store.Store, n Notifier, invoices InvoiceQueue) *SaleService {
	return &SaleService{store: s, notify: orNop(n), invoices: invoices}
}

// FinalizeDirectSale charges a cart. Stock for every line is checked before
// anything is written; the decrements and the sale commit together.
func (s *SaleService) FinalizeDirectSale(ctx context.Context, session model.Session, req DirectSaleRequest) (model.Sale, error) {
	if err := validateItems(req.Items); err != nil {
		return model.Sale{}, err
	}
	method, err := normalizePaymentMethod(req.PaymentMethod, false)
	if err != nil {
		return model.Sale{}, err
	}

	var sale model.Sale
	err = s.store.Transact(ctx, func(c store.Collections) error {
		lines, err := saleLines(ctx, c, req.Items)
		if err != nil {
			return err
		}
		sale = model.Sale{
			LineItems:     lines,
			Total:         saleTotal(lines),
			PaymentMethod: method,
			SellerID:      session.StaffID,
			SellerName:    session.Username,
			Branch:        session.Branch,
		}
		if err := applyPayment(&sale, req.CashTendered, false); err != nil {
			return err
		}
		return s.record(ctx, c, &sale)
	})
	if err != nil {
		return model.Sale{}, err
	}

	s.afterSale(ctx, sale, req.Customer)
	return sale, nil
}

// FinalizeFromPendingCheckout claims a pending checkout, charges it and
// records the sale in one transaction. The method defaults to cash and an
// omitted cash amount is taken as exactly the total. A pending checkout can
// be claimed once; later claims fail with ErrNotFound.
func (s *SaleService) FinalizeFromPendingCheckout(ctx context.Context, session model.Session, pendingID string, req ClaimRequest) (model.Sale, error) {
	method, err := normalizePaymentMethod(req.PaymentMethod, true)
	if err != nil {
		return model.Sale{}, err
	}

	var sale model.Sale
	err = s.store.Transact(ctx, func(c store.Collections) error {
		var pending model.PendingCheckout
		if err := c.Lock(ctx, enum.CollectionPendingCheckouts, pendingID, &pending); err != nil {
			return storeErr(err, "pending checkout "+pendingID)
		}
		if !Visible(session, pending.Branch) {
			return fmt.Errorf("%w: pending checkout %s", ErrNotFound, pendingID)
		}
		if len(pending.LineItems) == 0 {
			return validationf("pending checkout %s has no items", pendingID)
		}

		table := pending.TableNumber
		sale = model.Sale{
			LineItems:       pending.LineItems,
			Total:           saleTotal(pending.LineItems),
			PaymentMethod:   method,
			SellerID:        session.StaffID,
			SellerName:      session.Username,
			Branch:          pending.Branch,
			TableNumber:     &table,
			WaiterName:      pending.WaiterName,
			SourcePendingID: pending.ID,
		}
		if err := applyPayment(&sale, req.CashTendered, true); err != nil {
			return err
		}
		if err := decrementStock(ctx, c, sale.LineItems); err != nil {
			return err
		}
		if err := s.append(ctx, c, &sale); err != nil {
			return err
		}
		return storeErr(c.Delete(ctx, enum.CollectionPendingCheckouts, pendingID), "delete pending checkout")
	})
	if err != nil {
		return model.Sale{}, err
	}

	s.notify.Publish(sale.Branch, enum.EventCheckoutClaimed, map[string]any{"id": pendingID, "sale_id": sale.ID})
	s.afterSale(ctx, sale, req.Customer)
	return sale, nil
}

// ListPendingCheckouts returns the seller queue oldest first. An empty
// branch returns every branch.
func (s *SaleService) ListPendingCheckouts(ctx context.Context, branch string) ([]model.PendingCheckout, error) {
	docs, err := s.store.GetAll(ctx, enum.CollectionPendingCheckouts)
	if err != nil {
		return nil, storeErr(err, "list pending checkouts")
	}
	all, err := store.DecodeAll[model.PendingCheckout](docs)
	if err != nil {
		return nil, err
	}
	out := []model.PendingCheckout{}
	for _, p := range all {
		if branch == "" || p.Branch == branch {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *SaleService) GetSale(ctx context.Context, id string) (model.Sale, error) {
	var sale model.Sale
	if err := s.store.Get(ctx, enum.CollectionSales, id, &sale); err != nil {
		return model.Sale{}, storeErr(err, "sale "+id)
	}
	return sale, nil
}

// ListSales returns sales with from <= timestamp < to, oldest first. A zero
// bound is open and an empty branch matches every branch.
func (s *SaleService) ListSales(ctx context.Context, branch string, from, to time.Time) ([]model.Sale, error) {
	var (
		docs []store.Document
		err  error
	)
	if from.IsZero() {
		docs, err = s.store.GetAll(ctx, enum.CollectionSales)
	} else {
		docs, err = s.store.Query(ctx, enum.CollectionSales, store.Where("timestamp", store.OpGte, from))
	}
	if err != nil {
		return nil, storeErr(err, "list sales")
	}
	all, err := store.DecodeAll[model.Sale](docs)
	if err != nil {
		return nil, err
	}

	out := []model.Sale{}
	for _, sale := range all {
		if !to.IsZero() && !sale.Timestamp.Before(to) {
			continue
		}
		if branch != "" && sale.Branch != branch {
			continue
		}
		out = append(out, sale)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// --- Helpers ---

// record decrements stock for the sale's lines and appends the sale.
func (s *SaleService) record(ctx context.Context, c store.Collections, sale *model.Sale) error {
	if err := decrementStock(ctx, c, sale.LineItems); err != nil {
		return err
	}
	return s.append(ctx, c, sale)
}

func (s *SaleService) append(ctx context.Context, c store.Collections, sale *model.Sale) error {
	sale.Timestamp = now()
	id, err := c.Create(ctx, enum.CollectionSales, sale)
	if err != nil {
		return storeErr(err, "create sale")
	}
	sale.ID = id
	return nil
}

// afterSale runs the post-commit side effects. Failures are logged only.
func (s *SaleService) afterSale(ctx context.Context, sale model.Sale, customer *model.Customer) {
	s.notify.Publish(sale.Branch, enum.EventSaleCompleted, sale)

	if customer == nil || strings.TrimSpace(customer.Email) == "" || s.invoices == nil {
		return
	}
	if err := s.invoices.EnqueueInvoice(ctx, sale.ID, *customer); err != nil {
		log.Error().Err(err).Str("sale_id", sale.ID).Msg("enqueue invoice email")
	}
}

// saleLines resolves request items into priced lines, merging repeated
// products.
func saleLines(ctx context.Context, c store.Collections, items []ItemRequest) ([]model.SaleLine, error) {
	index := map[string]int{}
	lines := []model.SaleLine{}
	for _, it := range items {
		if i, ok := index[it.ProductID]; ok {
			lines[i].QuantitySold += it.Quantity
			continue
		}
		p, err := getProduct(ctx, c, it.ProductID)
		if err != nil {
			return nil, err
		}
		index[it.ProductID] = len(lines)
		lines = append(lines, model.SaleLine{
			ProductID:    p.ID,
			Name:         p.Name,
			Price:        p.Price,
			QuantitySold: it.Quantity,
		})
	}
	return lines, nil
}

// decrementStock locks every product on the sale, checks all of them and
// only then writes the new quantities.
func decrementStock(ctx context.Context, c store.Collections, lines []model.SaleLine) error {
	need := map[string]int{}
	var order []string
	for _, l := range lines {
		if _, ok := need[l.ProductID]; !ok {
			order = append(order, l.ProductID)
		}
		need[l.ProductID] += l.QuantitySold
	}

	next := make(map[string]int, len(order))
	for _, id := range order {
		var p model.Product
		if err := c.Lock(ctx, enum.CollectionProducts, id, &p); err != nil {
			return storeErr(err, "product "+id)
		}
		if p.QuantityOnHand < need[id] {
			return fmt.Errorf("%w: %s has %d, need %d", ErrInsufficientStock, p.Name, p.QuantityOnHand, need[id])
		}
		next[id] = p.QuantityOnHand - need[id]
	}

	ts := now()
	for _, id := range order {
		if err := c.Update(ctx, enum.CollectionProducts, id, map[string]any{
			"quantity_on_hand": next[id],
			"updated_at":       ts,
		}); err != nil {
			return storeErr(err, "update product "+id)
		}
	}
	return nil
}

// applyPayment fills the tendered and change fields. For cash with
// defaultExact set, a missing amount means the customer paid the total.
func applyPayment(sale *model.Sale, tendered *decimal.Decimal, defaultExact bool) error {
	zero := decimal.Zero
	if sale.PaymentMethod != enum.PaymentMethodCash {
		sale.CashTendered = nil
		sale.ChangeGiven = &zero
		return nil
	}

	amount := decimal.Zero
	switch {
	case tendered != nil:
		amount = *tendered
	case defaultExact:
		amount = sale.Total
	}
	if amount.IsNegative() {
		return validationf("cash_tendered must be >= 0")
	}
	if amount.LessThan(sale.Total) {
		return fmt.Errorf("%w: tendered %s, total %s", ErrInsufficientPayment, amount.StringFixed(2), sale.Total.StringFixed(2))
	}
	change := amount.Sub(sale.Total)
	sale.CashTendered = &amount
	sale.ChangeGiven = &change
	return nil
}

// normalizePaymentMethod lowercases and checks a method name. An empty name
// is cash when allowDefault is set.
func normalizePaymentMethod(method string, allowDefault bool) (string, error) {
	m := strings.ToLower(strings.TrimSpace(method))
	if m == "" {
		if allowDefault {
			return enum.PaymentMethodCash, nil
		}
		return "", validationf("payment_method is required")
	}
	for _, known := range enum.PaymentMethods {
		if m == known {
			return m, nil
		}
	}
	return "", validationf("invalid payment_method %q", method)
}

func saleTotal(lines []model.SaleLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Subtotal())
	}
	return total
}
