package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mesapos/api/internal/enum"
	"github.com/mesapos/api/internal/model"
	"github.com/mesapos/api/internal/store"
)

func init() {
	bcryptCost = bcrypt.MinCost
}

// --- Fakes ---

type event struct {
	Branch string
	Type   string
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []event
}

func (n *recordingNotifier) Publish(branch, eventType string, _ any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event{Branch: branch, Type: eventType})
}

func (n *recordingNotifier) types() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := []string{}
	for _, e := range n.events {
		out = append(out, e.Type)
	}
	return out
}

type fakeBlobs struct {
	paths []string
	err   error
}

func (b *fakeBlobs) Upload(_ context.Context, path string, _ []byte) (string, error) {
	if b.err != nil {
		return "", b.err
	}
	b.paths = append(b.paths, path)
	return "/media/" + path, nil
}

type queuedInvoice struct {
	SaleID   string
	Customer model.Customer
}

type fakeQueue struct {
	jobs []queuedInvoice
	err  error
}

func (q *fakeQueue) EnqueueInvoice(_ context.Context, saleID string, c model.Customer) error {
	q.jobs = append(q.jobs, queuedInvoice{SaleID: saleID, Customer: c})
	return q.err
}

// failingStore wraps a store and fails writes to one collection once armed.
type failingStore struct {
	store.Store
	failOn string
}

var errStoreDown = errors.New("connection reset")

func (f *failingStore) Transact(ctx context.Context, fn func(c store.Collections) error) error {
	return f.Store.Transact(ctx, func(c store.Collections) error {
		return fn(&failingCollections{Collections: c, failOn: f.failOn})
	})
}

type failingCollections struct {
	store.Collections
	failOn string
}

func (f *failingCollections) Create(ctx context.Context, collection string, doc any) (string, error) {
	if collection == f.failOn {
		return "", errStoreDown
	}
	return f.Collections.Create(ctx, collection, doc)
}

// --- Fixtures ---

var (
	waiter = model.Session{StaffID: "w-1", Username: "camila", Role: enum.RoleWaiter, Branch: "centro"}
	seller = model.Session{StaffID: "s-1", Username: "andres", Role: enum.RoleSeller, Branch: "centro"}
)

// freezeClock pins now() for the duration of the test.
func freezeClock(t *testing.T, at time.Time) {
	t.Helper()
	prev := now
	now = func() time.Time { return at }
	t.Cleanup(func() { now = prev })
}

func seedProduct(t *testing.T, s store.Store, id, name string, price int64, qty int) model.Product {
	t.Helper()
	p := model.Product{
		ID:             id,
		Name:           name,
		Price:          decimal.NewFromInt(price),
		QuantityOnHand: qty,
		Category:       enum.DefaultCategory,
	}
	_, err := s.Create(context.Background(), enum.CollectionProducts, p)
	require.NoError(t, err)
	return p
}

func stockOf(t *testing.T, s store.Store, id string) int {
	t.Helper()
	var p model.Product
	require.NoError(t, s.Get(context.Background(), enum.CollectionProducts, id, &p))
	return p.QuantityOnHand
}

func seedTables(t *testing.T, s store.Store) {
	t.Helper()
	_, err := NewTableService(s, nil).EnsureCanonicalTables(context.Background())
	require.NoError(t, err)
}

func tableState(t *testing.T, s store.Store, number int) string {
	t.Helper()
	table, err := NewTableService(s, nil).GetTable(context.Background(), number)
	require.NoError(t, err)
	return table.State
}

func count(t *testing.T, s store.Store, collection string) int {
	t.Helper()
	docs, err := s.GetAll(context.Background(), collection)
	require.NoError(t, err)
	return len(docs)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}
