package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/mesapos/api/internal/enum"
	"github.com/mesapos/api/internal/model"
	"github.com/mesapos/api/internal/store"
)

// TableService owns the fixed set of dining tables.
type TableService struct {
	store  store.Store
	notify Notifier
}

// NewTableService creates a new TableService.
func NewTableService(s store.Store, n Notifier) *TableService {
	return &TableService{store: s, notify: orNop(n)}
}

// capacityFor returns the seat count for a table number.
func capacityFor(number int) int {
	switch {
	case number <= 3:
		return 2
	case number <= 6:
		return 4
	case number <= 9:
		return 6
	default:
		return 8
	}
}

// EnsureCanonicalTables reconciles the stored tables with numbers
// 1..enum.TableCount. One record per number survives (an occupied one when
// there are duplicates); strays are deleted and gaps are filled with free
// tables. Surviving records are left as they are, so repeated calls make no
// writes. A repair that wrote anything publishes the full table list once.
func (s *TableService) EnsureCanonicalTables(ctx context.Context) ([]model.Table, error) {
	var (
		result   []model.Table
		repaired bool
	)
	err := s.store.Transact(ctx, func(c store.Collections) error {
		docs, err := c.GetAll(ctx, enum.CollectionTables)
		if err != nil {
			return storeErr(err, "list tables")
		}
		tables, err := store.DecodeAll[model.Table](docs)
		if err != nil {
			return err
		}

		keep := map[int]model.Table{}
		var stray []string
		for _, t := range tables {
			if t.Number < 1 || t.Number > enum.TableCount {
				stray = append(stray, t.ID)
				continue
			}
			cur, seen := keep[t.Number]
			switch {
			case !seen:
				keep[t.Number] = t
			case cur.State != enum.TableStateOccupied && t.State == enum.TableStateOccupied:
				stray = append(stray, cur.ID)
				keep[t.Number] = t
			default:
				stray = append(stray, t.ID)
			}
		}

		for _, id := range stray {
			if err := c.Delete(ctx, enum.CollectionTables, id); err != nil {
				return storeErr(err, "delete table "+id)
			}
		}

		for n := 1; n <= enum.TableCount; n++ {
			if _, ok := keep[n]; ok {
				continue
			}
			t := model.Table{Number: n, Capacity: capacityFor(n), State: enum.TableStateFree}
			id, err := c.Create(ctx, enum.CollectionTables, t)
			if err != nil {
				return storeErr(err, fmt.Sprintf("create table %d", n))
			}
			t.ID = id
			keep[n] = t
			repaired = true
		}
		if len(stray) > 0 {
			repaired = true
		}

		result = make([]model.Table, 0, len(keep))
		for _, t := range keep {
			result = append(result, t)
		}
		sortTables(result)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if repaired {
		s.notify.Publish("", enum.EventTableUpdated, result)
	}
	return result, nil
}

// ListTables returns every table ordered by number.
func (s *TableService) ListTables(ctx context.Context) ([]model.Table, error) {
	docs, err := s.store.GetAll(ctx, enum.CollectionTables)
	if err != nil {
		return nil, storeErr(err, "list tables")
	}
	tables, err := store.DecodeAll[model.Table](docs)
	if err != nil {
		return nil, err
	}
	sortTables(tables)
	return tables, nil
}

// GetTable looks a table up by number.
func (s *TableService) GetTable(ctx context.Context, number int) (model.Table, error) {
	return findTable(ctx, s.store, number, false)
}

// SetState changes a table's state. Unknown numbers fail with ErrNotFound.
func (s *TableService) SetState(ctx context.Context, number int, state string) (model.Table, error) {
	if !validTableState(state) {
		return model.Table{}, validationf("invalid table state %q", state)
	}

	var table model.Table
	err := s.store.Transact(ctx, func(c store.Collections) error {
		t, err := findTable(ctx, c, number, true)
		if err != nil {
			return err
		}
		if err := setTableState(ctx, c, t.ID, state); err != nil {
			return err
		}
		t.State = state
		table = t
		return nil
	})
	if err != nil {
		return model.Table{}, err
	}

	s.notify.Publish("", enum.EventTableUpdated, table)
	return table, nil
}

// --- Helpers ---

func validTableState(state string) bool {
	return state == enum.TableStateFree || state == enum.TableStateOccupied
}

// findTable resolves a table number to its record. With lock set the row is
// held for the rest of the transaction c belongs to.
func findTable(ctx context.Context, c store.Collections, number int, lock bool) (model.Table, error) {
	docs, err := c.Query(ctx, enum.CollectionTables, store.Where("number", store.OpEq, number))
	if err != nil {
		return model.Table{}, storeErr(err, "find table")
	}
	if len(docs) == 0 {
		return model.Table{}, fmt.Errorf("%w: table %d", ErrNotFound, number)
	}

	var t model.Table
	if lock {
		err = c.Lock(ctx, enum.CollectionTables, docs[0].ID, &t)
	} else {
		t, err = store.Decode[model.Table](docs[0])
	}
	if err != nil {
		return model.Table{}, storeErr(err, fmt.Sprintf("table %d", number))
	}
	return t, nil
}

func setTableState(ctx context.Context, c store.Collections, id, state string) error {
	if err := c.Update(ctx, enum.CollectionTables, id, map[string]any{"state": state}); err != nil {
		return storeErr(err, "update table")
	}
	return nil
}

func sortTables(tables []model.Table) {
	sort.Slice(tables, func(i, j int) bool { return tables[i].Number < tables[j].Number })
}
