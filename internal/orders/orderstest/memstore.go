// Package orderstest provides an in-memory orders.Store for tests.
package orderstest

import (
	"context"
	"sort"
	"sync"

	"github.com/ariefcatur/go-orders-readpath/internal/orders"
)

// MemStore keeps rows keyed by their "id" column. Every method can be made
// to fail through FailWith, and FetchLimit simulates a store that times out
// on large id batches.
type MemStore struct {
	mu      sync.Mutex
	rows    map[string]orders.Row
	errs    map[string]error
	calls   map[string]int
	batches []int

	// FetchLimit, when positive, makes FetchByIDs return
	// orders.ErrStatementTimeout for batches larger than it.
	FetchLimit int
	// Hook runs at the start of every method, outside the lock.
	Hook func(method string)
}

func New(rows ...orders.Row) *MemStore {
	m := &MemStore{
		rows:  make(map[string]orders.Row),
		errs:  make(map[string]error),
		calls: make(map[string]int),
	}
	for _, r := range rows {
		m.Put(r)
	}
	return m
}

func (m *MemStore) Put(row orders.Row) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[idOf(row)] = clone(row)
}

// Row returns a copy of the stored row, or nil.
func (m *MemStore) Row(id string) orders.Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return nil
	}
	return clone(r)
}

// FailWith makes method return err until cleared with a nil err.
func (m *MemStore) FailWith(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.errs, method)
		return
	}
	m.errs[method] = err
}

func (m *MemStore) Calls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

// Batches lists the size of every FetchByIDs call, in call order.
func (m *MemStore) Batches() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.batches...)
}

func (m *MemStore) enter(method string) error {
	if m.Hook != nil {
		m.Hook(method)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[method]++
	return m.errs[method]
}

func (m *MemStore) SampleRow(ctx context.Context) (orders.Row, error) {
	if err := m.enter("SampleRow"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.sorted()
	if len(rows) == 0 {
		return nil, nil
	}
	return clone(rows[0]), nil
}

func (m *MemStore) ListKeys(ctx context.Context, before *orders.Cursor, limit int) ([]orders.Key, error) {
	if err := m.enter("ListKeys"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []orders.Key
	for _, r := range m.sorted() {
		k := orders.Key{ID: idOf(r), Date: dateOf(r)}
		if before != nil && k.Date > before.Date {
			continue
		}
		out = append(out, k)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MemStore) FetchByIDs(ctx context.Context, ids []string, cols []string) ([]orders.Row, error) {
	if err := m.enter("FetchByIDs"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches = append(m.batches, len(ids))
	if m.FetchLimit > 0 && len(ids) > m.FetchLimit {
		return nil, orders.ErrStatementTimeout
	}
	out := make([]orders.Row, 0, len(ids))
	// Reverse so callers cannot rely on store order.
	for i := len(ids) - 1; i >= 0; i-- {
		if r, ok := m.rows[ids[i]]; ok {
			out = append(out, project(r, cols))
		}
	}
	return out, nil
}

func (m *MemStore) GetByID(ctx context.Context, id string, cols []string) (orders.Row, error) {
	if err := m.enter("GetByID"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return nil, nil
	}
	return project(r, cols), nil
}

func (m *MemStore) ListByDate(ctx context.Context, before string, limit int, cols []string) ([]orders.Row, error) {
	if err := m.enter("ListByDate"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []orders.Row
	for _, r := range m.sorted() {
		if before != "" && dateOf(r) >= before {
			continue
		}
		out = append(out, project(r, cols))
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MemStore) ListByID(ctx context.Context, limit int, cols []string) ([]orders.Row, error) {
	if err := m.enter("ListByID"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.sorted()
	sort.SliceStable(rows, func(i, j int) bool { return idOf(rows[i]) > idOf(rows[j]) })
	var out []orders.Row
	for _, r := range rows {
		out = append(out, project(r, cols))
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MemStore) ListUnordered(ctx context.Context, limit int, cols []string) ([]orders.Row, error) {
	if err := m.enter("ListUnordered"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []orders.Row
	for _, r := range m.rows {
		out = append(out, project(r, cols))
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MemStore) Search(ctx context.Context, term string, limit int, cols []string) ([]orders.Row, error) {
	if err := m.enter("Search"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []orders.Row
	for _, r := range m.sorted() {
		if !orders.MatchesSearch(orders.ToDomain(r), term) {
			continue
		}
		out = append(out, project(r, cols))
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MemStore) Update(ctx context.Context, id string, payload orders.Row) error {
	if err := m.enter("Update"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return orders.ErrNotFound
	}
	next := clone(r)
	for k, v := range payload {
		next[k] = v
	}
	m.rows[id] = next
	return nil
}

// ModifyColumn holds the store lock across the read, fn and the write.
func (m *MemStore) ModifyColumn(ctx context.Context, id, column string, fn func(current any) (any, error)) error {
	if err := m.enter("ModifyColumn"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return orders.ErrNotFound
	}
	v, err := fn(r[column])
	if err != nil {
		return err
	}
	next := clone(r)
	next[column] = v
	m.rows[id] = next
	return nil
}

func (m *MemStore) Delete(ctx context.Context, id string) error {
	if err := m.enter("Delete"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[id]; !ok {
		return orders.ErrNotFound
	}
	delete(m.rows, id)
	return nil
}

// sorted must be called with m.mu held. Rows come back date desc, id desc.
func (m *MemStore) sorted() []orders.Row {
	out := make([]orders.Row, 0, len(m.rows))
	for _, r := range m.rows {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		di, dj := dateOf(out[i]), dateOf(out[j])
		if di != dj {
			return di > dj
		}
		return idOf(out[i]) > idOf(out[j])
	})
	return out
}

func project(r orders.Row, cols []string) orders.Row {
	if len(cols) == 0 {
		return clone(r)
	}
	out := make(orders.Row, len(cols))
	for _, c := range cols {
		if v, ok := r[c]; ok {
			out[c] = v
		}
	}
	return out
}

func clone(r orders.Row) orders.Row {
	out := make(orders.Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

func idOf(r orders.Row) string {
	s, _ := r["id"].(string)
	return s
}

func dateOf(r orders.Row) string {
	s, _ := r["date"].(string)
	return s
}
