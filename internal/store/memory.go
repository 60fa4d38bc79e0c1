package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Memory is an in-process Store. It backs STORE_DRIVER=memory and the unit
// tests. Transactions are serialized: Transact works on a private copy of
// the data and swaps it in only when fn succeeds.
type Memory struct {
	mu    sync.Mutex
	state *memState
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{state: newMemState()}
}

func (m *Memory) Create(ctx context.Context, collection string, doc any) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Create(ctx, collection, doc)
}

func (m *Memory) Get(ctx context.Context, collection, id string, dst any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Get(ctx, collection, id, dst)
}

func (m *Memory) Lock(ctx context.Context, collection, id string, dst any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Lock(ctx, collection, id, dst)
}

func (m *Memory) GetAll(ctx context.Context, collection string) ([]Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.GetAll(ctx, collection)
}

func (m *Memory) Query(ctx context.Context, collection string, f Filter) ([]Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Query(ctx, collection, f)
}

func (m *Memory) Update(ctx context.Context, collection, id string, patch map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Update(ctx, collection, id, patch)
}

func (m *Memory) Delete(ctx context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Delete(ctx, collection, id)
}

// Transact holds the store lock for the whole of fn.
func (m *Memory) Transact(ctx context.Context, fn func(c Collections) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	work := m.state.clone()
	if err := fn(work); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.state = work
	return nil
}

// --- State ---

type memDoc struct {
	data    []byte
	version int64
	seq     int64
}

// memState implements Collections without locking.
type memState struct {
	collections map[string]map[string]memDoc
	seq         int64
}

func newMemState() *memState {
	return &memState{collections: map[string]map[string]memDoc{}}
}

func (s *memState) clone() *memState {
	out := &memState{collections: make(map[string]map[string]memDoc, len(s.collections)), seq: s.seq}
	for name, docs := range s.collections {
		copied := make(map[string]memDoc, len(docs))
		for id, d := range docs {
			copied[id] = d
		}
		out.collections[name] = copied
	}
	return out
}

func (s *memState) Create(_ context.Context, collection string, doc any) (string, error) {
	id, body, err := encodeDocument(doc)
	if err != nil {
		return "", err
	}
	docs := s.collections[collection]
	if docs == nil {
		docs = map[string]memDoc{}
		s.collections[collection] = docs
	}
	if _, exists := docs[id]; exists {
		return "", fmt.Errorf("%s/%s: %w", collection, id, ErrConflict)
	}
	s.seq++
	docs[id] = memDoc{data: body, version: 1, seq: s.seq}
	return id, nil
}

func (s *memState) Get(_ context.Context, collection, id string, dst any) error {
	d, ok := s.collections[collection][id]
	if !ok {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	return decodeInto(Document{ID: id, Data: d.data, Version: d.version}, dst)
}

// Lock is Get; the store lock already excludes concurrent writers.
func (s *memState) Lock(ctx context.Context, collection, id string, dst any) error {
	return s.Get(ctx, collection, id, dst)
}

func (s *memState) GetAll(_ context.Context, collection string) ([]Document, error) {
	return s.ordered(collection, nil)
}

func (s *memState) Query(_ context.Context, collection string, f Filter) ([]Document, error) {
	if f.Field == "" || !validOp(f.Op) {
		return nil, fmt.Errorf("%w: %q %q", ErrBadFilter, f.Field, f.Op)
	}
	if _, ok := f.Value.(bool); ok && f.Op != OpEq {
		return nil, fmt.Errorf("%w: bool fields support == only", ErrBadFilter)
	}
	var matchErr error
	docs, err := s.ordered(collection, func(data []byte) bool {
		ok, err := matches(data, f)
		if err != nil && matchErr == nil {
			matchErr = err
		}
		return ok
	})
	if err != nil {
		return nil, err
	}
	if matchErr != nil {
		return nil, matchErr
	}
	return docs, nil
}

func (s *memState) Update(_ context.Context, collection, id string, patch map[string]any) error {
	d, ok := s.collections[collection][id]
	if !ok {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	body, err := encodePatch(patch)
	if err != nil {
		return err
	}

	var current, changes map[string]json.RawMessage
	if err := json.Unmarshal(d.data, &current); err != nil {
		return fmt.Errorf("decode %s/%s: %w", collection, id, err)
	}
	if err := json.Unmarshal(body, &changes); err != nil {
		return fmt.Errorf("decode patch: %w", err)
	}
	for k, v := range changes {
		current[k] = v
	}
	merged, err := json.Marshal(current)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}

	d.data = merged
	d.version++
	s.collections[collection][id] = d
	return nil
}

func (s *memState) Delete(_ context.Context, collection, id string) error {
	if _, ok := s.collections[collection][id]; !ok {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	delete(s.collections[collection], id)
	return nil
}

// ordered returns the collection in insertion order, keeping only the
// documents keep accepts (all of them when keep is nil).
func (s *memState) ordered(collection string, keep func([]byte) bool) ([]Document, error) {
	type entry struct {
		id string
		memDoc
	}
	entries := make([]entry, 0, len(s.collections[collection]))
	for id, d := range s.collections[collection] {
		if keep != nil && !keep(d.data) {
			continue
		}
		entries = append(entries, entry{id: id, memDoc: d})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	docs := make([]Document, 0, len(entries))
	for _, e := range entries {
		docs = append(docs, Document{ID: e.id, Data: e.data, Version: e.version})
	}
	return docs, nil
}

// --- Filter evaluation ---

func matches(data []byte, f Filter) (bool, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return false, fmt.Errorf("decode document: %w", err)
	}
	raw, ok := fields[f.Field]
	if !ok || bytes.Equal(raw, []byte("null")) {
		return false, nil
	}

	var cmp int
	switch v := f.Value.(type) {
	case time.Time:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return false, nil
		}
		at, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return false, nil
		}
		cmp = at.Compare(v)
	case int:
		return compareNumeric(raw, decimal.NewFromInt(int64(v)), f.Op), nil
	case int64:
		return compareNumeric(raw, decimal.NewFromInt(v), f.Op), nil
	case float64:
		return compareNumeric(raw, decimal.NewFromFloat(v), f.Op), nil
	case decimal.Decimal:
		return compareNumeric(raw, v, f.Op), nil
	case string:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return false, nil
		}
		cmp = strings.Compare(s, v)
	case bool:
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return false, nil
		}
		return b == v, nil
	default:
		return false, fmt.Errorf("%w: value type %T", ErrBadFilter, f.Value)
	}
	return applyOp(cmp, f.Op), nil
}

// compareNumeric accepts both JSON numbers and numeric strings, since
// decimal.Decimal marshals as a quoted string.
func compareNumeric(raw json.RawMessage, want decimal.Decimal, op Op) bool {
	text := string(raw)
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		text = s
	}
	got, err := decimal.NewFromString(text)
	if err != nil {
		return false
	}
	return applyOp(got.Cmp(want), op)
}

func applyOp(cmp int, op Op) bool {
	switch op {
	case OpEq:
		return cmp == 0
	case OpGte:
		return cmp >= 0
	case OpLte:
		return cmp <= 0
	}
	return false
}
