package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/mesapos/api/internal/enum"
	"github.com/mesapos/api/internal/model"
	"github.com/mesapos/api/internal/store"
)

// allowedTransitions lists the states an order may move to by state change.
// Leaving ready_for_payment happens only through SendToCheckout, which
// removes the order.
var allowedTransitions = map[string][]string{
	enum.OrderStateInProgress:      {enum.OrderStateReadyForPayment},
	enum.OrderStateReadyForPayment: {},
}

// validateStateTransition checks if a state transition is allowed.
func validateStateTransition(from, to string) error {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

// ItemRequest is one requested product line.
type ItemRequest struct {
	ProductID string
	Quantity  int
}

// CreateOrderRequest is the input for opening a tab on a table.
type CreateOrderRequest struct {
	TableNumber int
	Items       []ItemRequest
	Notes       string
}

// OrderService runs the waiter-side order lifecycle.
type OrderService struct {
	store  store.Store
	notify Notifier
}

// NewOrderService creates a new OrderService.
func NewOrderService(s store.Store, n Notifier) *OrderService {
	return &OrderService{store: s, notify: orNop(n)}
}

// CreateOrder opens an order on a free table and marks the table occupied.
// The table row is locked for the duration, so only one of two concurrent
// creates on the same table succeeds.
func (s *OrderService) CreateOrder(ctx context.Context, session model.Session, req CreateOrderRequest) (model.Order, error) {
	if err := validateItems(req.Items); err != nil {
		return model.Order{}, err
	}

	var order model.Order
	err := s.store.Transact(ctx, func(c store.Collections) error {
		table, err := findTable(ctx, c, req.TableNumber, true)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return validationf("table %d does not exist", req.TableNumber)
			}
			return err
		}
		if table.State != enum.TableStateFree {
			return validationf("table %d is not free", req.TableNumber)
		}

		order = model.Order{
			TableNumber: req.TableNumber,
			LineItems:   []model.OrderLine{},
			Notes:       req.Notes,
			WaiterID:    session.StaffID,
			WaiterName:  session.Username,
			Branch:      session.Branch,
			State:       enum.OrderStateInProgress,
			CreatedAt:   now(),
		}
		for _, it := range req.Items {
			p, err := getProduct(ctx, c, it.ProductID)
			if err != nil {
				return err
			}
			if order, err = AddLineItem(order, p, it.Quantity); err != nil {
				return err
			}
		}

		id, err := c.Create(ctx, enum.CollectionOrders, order)
		if err != nil {
			return storeErr(err, "create order")
		}
		order.ID = id
		return setTableState(ctx, c, table.ID, enum.TableStateOccupied)
	})
	if err != nil {
		return model.Order{}, err
	}

	s.notify.Publish(order.Branch, enum.EventOrderCreated, order)
	s.notify.Publish("", enum.EventTableUpdated, map[string]any{"number": order.TableNumber, "state": enum.TableStateOccupied})
	return order, nil
}

// AddLineItem stages qty units of product on the order. Lines merge by
// product id; the total is recomputed. Inventory is not touched.
func AddLineItem(order model.Order, product model.Product, qty int) (model.Order, error) {
	if qty <= 0 {
		return order, validationf("quantity must be > 0")
	}
	if product.QuantityOnHand <= 0 {
		return order, fmt.Errorf("%w: %s", ErrOutOfStock, product.Name)
	}

	lines := make([]model.OrderLine, 0, len(order.LineItems)+1)
	merged := false
	for _, l := range order.LineItems {
		if l.ProductID == product.ID {
			l.QuantityOrdered += qty
			merged = true
		}
		lines = append(lines, l)
	}
	if !merged {
		lines = append(lines, model.OrderLine{
			ProductID:       product.ID,
			Name:            product.Name,
			Price:           product.Price,
			QuantityOrdered: qty,
		})
	}

	order.LineItems = lines
	order.Total = orderTotal(lines)
	return order, nil
}

// RemoveLineItem drops the line for productID and recomputes the total.
func RemoveLineItem(order model.Order, productID string) model.Order {
	lines := make([]model.OrderLine, 0, len(order.LineItems))
	for _, l := range order.LineItems {
		if l.ProductID != productID {
			lines = append(lines, l)
		}
	}
	order.LineItems = lines
	order.Total = orderTotal(lines)
	return order
}

// AddItem stages a product on a stored in-progress order.
func (s *OrderService) AddItem(ctx context.Context, session model.Session, orderID, productID string, qty int) (model.Order, error) {
	return s.mutate(ctx, session, orderID, func(c store.Collections, o model.Order) (model.Order, error) {
		if o.State != enum.OrderStateInProgress {
			return o, fmt.Errorf("%w: order is %s", ErrInvalidTransition, o.State)
		}
		p, err := getProduct(ctx, c, productID)
		if err != nil {
			return o, err
		}
		return AddLineItem(o, p, qty)
	})
}

// RemoveItem drops a product from a stored in-progress order. The last line
// cannot be removed.
func (s *OrderService) RemoveItem(ctx context.Context, session model.Session, orderID, productID string) (model.Order, error) {
	return s.mutate(ctx, session, orderID, func(c store.Collections, o model.Order) (model.Order, error) {
		if o.State != enum.OrderStateInProgress {
			return o, fmt.Errorf("%w: order is %s", ErrInvalidTransition, o.State)
		}
		next := RemoveLineItem(o, productID)
		if len(next.LineItems) == len(o.LineItems) {
			return o, fmt.Errorf("%w: product %s is not on the order", ErrNotFound, productID)
		}
		if len(next.LineItems) == 0 {
			return o, validationf("an order needs at least one item")
		}
		return next, nil
	})
}

// EditOrder overwrites the lines and notes of an order that has not yet
// been sent to checkout.
func (s *OrderService) EditOrder(ctx context.Context, session model.Session, orderID string, items []ItemRequest, notes string) (model.Order, error) {
	if err := validateItems(items); err != nil {
		return model.Order{}, err
	}
	return s.mutate(ctx, session, orderID, func(c store.Collections, o model.Order) (model.Order, error) {
		o.LineItems = []model.OrderLine{}
		o.Notes = notes
		for _, it := range items {
			p, err := getProduct(ctx, c, it.ProductID)
			if err != nil {
				return o, err
			}
			if o, err = AddLineItem(o, p, it.Quantity); err != nil {
				return o, err
			}
		}
		return o, nil
	})
}

// MarkReadyForPayment moves an in-progress order to ready_for_payment.
func (s *OrderService) MarkReadyForPayment(ctx context.Context, session model.Session, orderID string) (model.Order, error) {
	var order model.Order
	err := s.store.Transact(ctx, func(c store.Collections) error {
		o, err := lockOrder(ctx, c, session, orderID)
		if err != nil {
			return err
		}
		if err := validateStateTransition(o.State, enum.OrderStateReadyForPayment); err != nil {
			return err
		}
		o.State = enum.OrderStateReadyForPayment
		order = o
		return storeErr(c.Update(ctx, enum.CollectionOrders, orderID, map[string]any{"state": o.State}), "update order")
	})
	if err != nil {
		return model.Order{}, err
	}
	s.notify.Publish(order.Branch, enum.EventOrderReady, order)
	return order, nil
}

// SendToCheckout hands a ready order to the seller queue: it creates the
// PendingCheckout, deletes the order and frees the table in one
// transaction.
func (s *OrderService) SendToCheckout(ctx context.Context, session model.Session, orderID string) (model.PendingCheckout, error) {
	var pending model.PendingCheckout
	err := s.store.Transact(ctx, func(c store.Collections) error {
		o, err := lockOrder(ctx, c, session, orderID)
		if err != nil {
			return err
		}
		if o.State != enum.OrderStateReadyForPayment {
			return fmt.Errorf("%w: order is %s, want %s", ErrInvalidTransition, o.State, enum.OrderStateReadyForPayment)
		}

		lines := make([]model.SaleLine, 0, len(o.LineItems))
		for _, l := range o.LineItems {
			lines = append(lines, model.SaleLine{
				ProductID:    l.ProductID,
				Name:         l.Name,
				Price:        l.Price,
				QuantitySold: l.QuantityOrdered,
			})
		}
		pending = model.PendingCheckout{
			LineItems:     lines,
			Total:         o.Total,
			TableNumber:   o.TableNumber,
			WaiterName:    o.WaiterName,
			Branch:        o.Branch,
			SourceOrderID: o.ID,
			CreatedAt:     now(),
		}
		id, err := c.Create(ctx, enum.CollectionPendingCheckouts, pending)
		if err != nil {
			return storeErr(err, "create pending checkout")
		}
		pending.ID = id

		if err := c.Delete(ctx, enum.CollectionOrders, orderID); err != nil {
			return storeErr(err, "delete order")
		}

		table, err := findTable(ctx, c, o.TableNumber, true)
		if err != nil {
			return err
		}
		return setTableState(ctx, c, table.ID, enum.TableStateFree)
	})
	if err != nil {
		return model.PendingCheckout{}, err
	}

	s.notify.Publish(pending.Branch, enum.EventOrderSentToCheckout, pending)
	s.notify.Publish("", enum.EventTableUpdated, map[string]any{"number": pending.TableNumber, "state": enum.TableStateFree})
	return pending, nil
}

// GetOrder returns an order of the caller's branch. Orders of other
// branches are reported as missing.
func (s *OrderService) GetOrder(ctx context.Context, session model.Session, id string) (model.Order, error) {
	var o model.Order
	if err := s.store.Get(ctx, enum.CollectionOrders, id, &o); err != nil {
		return model.Order{}, storeErr(err, "order "+id)
	}
	if !Visible(session, o.Branch) {
		return model.Order{}, fmt.Errorf("%w: order %s", ErrNotFound, id)
	}
	return o, nil
}

// ListOrders returns orders oldest first, optionally narrowed to one state
// and one branch. Empty arguments match everything.
func (s *OrderService) ListOrders(ctx context.Context, state, branch string) ([]model.Order, error) {
	var (
		docs []store.Document
		err  error
	)
	if state != "" {
		if _, ok := allowedTransitions[state]; !ok {
			return nil, validationf("invalid order state %q", state)
		}
		docs, err = s.store.Query(ctx, enum.CollectionOrders, store.Where("state", store.OpEq, state))
	} else {
		docs, err = s.store.GetAll(ctx, enum.CollectionOrders)
	}
	if err != nil {
		return nil, storeErr(err, "list orders")
	}
	orders, err := store.DecodeAll[model.Order](docs)
	if err != nil {
		return nil, err
	}

	out := orders[:0]
	for _, o := range orders {
		if branch == "" || o.Branch == branch {
			out = append(out, o)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// --- Helpers ---

// mutate loads an order under lock, applies fn and saves the result with a
// fresh updated_at.
func (s *OrderService) mutate(ctx context.Context, session model.Session, orderID string, fn func(store.Collections, model.Order) (model.Order, error)) (model.Order, error) {
	var order model.Order
	err := s.store.Transact(ctx, func(c store.Collections) error {
		o, err := lockOrder(ctx, c, session, orderID)
		if err != nil {
			return err
		}
		o, err = fn(c, o)
		if err != nil {
			return err
		}
		ts := now()
		o.UpdatedAt = &ts
		order = o
		return storeErr(c.Update(ctx, enum.CollectionOrders, orderID, map[string]any{
			"line_items": o.LineItems,
			"total":      o.Total,
			"notes":      o.Notes,
			"updated_at": ts,
		}), "update order")
	})
	if err != nil {
		return model.Order{}, err
	}
	s.notify.Publish(order.Branch, enum.EventOrderUpdated, order)
	return order, nil
}

// lockOrder loads an order for update. Orders outside the session's branch
// are reported as missing.
func lockOrder(ctx context.Context, c store.Collections, session model.Session, id string) (model.Order, error) {
	var o model.Order
	if err := c.Lock(ctx, enum.CollectionOrders, id, &o); err != nil {
		return model.Order{}, storeErr(err, "order "+id)
	}
	if !Visible(session, o.Branch) {
		return model.Order{}, fmt.Errorf("%w: order %s", ErrNotFound, id)
	}
	return o, nil
}

func getProduct(ctx context.Context, c store.Collections, id string) (model.Product, error) {
	var p model.Product
	if err := c.Get(ctx, enum.CollectionProducts, id, &p); err != nil {
		return model.Product{}, storeErr(err, "product "+id)
	}
	return p, nil
}

func validateItems(items []ItemRequest) error {
	if len(items) == 0 {
		return validationf("items are required")
	}
	for i, it := range items {
		if it.ProductID == "" {
			return validationf("item[%d]: product_id is required", i)
		}
		if it.Quantity <= 0 {
			return validationf("item[%d]: quantity must be > 0", i)
		}
	}
	return nil
}

func orderTotal(lines []model.OrderLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Price.Mul(decimal.NewFromInt(int64(l.QuantityOrdered))))
	}
	return total
}
