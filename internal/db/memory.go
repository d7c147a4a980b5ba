package db

import (
	"context"
	"fmt"
	"maps"
	"reflect"
	"sort"
	"sync"
)

// MemoryStore is a process-local RecordTx backend. It backs dry runs of the sync command,
// where nothing may reach Postgres. Transactions are serialized and rolled back on error
type MemoryStore struct {
	mu      sync.Mutex
	tables  map[string]map[int64]map[string]any
	uniques map[string][]string
	nextID  int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tables:  make(map[string]map[int64]map[string]any),
		uniques: make(map[string][]string),
	}
}

// WithUnique declares a unique constraint, mirroring the natural-key constraints of the schema
func (s *MemoryStore) WithUnique(table string, cols ...string) *MemoryStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uniques[table] = cols
	return s
}

func (s *MemoryStore) WithinTx(ctx context.Context, fn func(RecordTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memoryTx{store: s}
	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

// Count returns the number of rows of a table
func (s *MemoryStore) Count(_ context.Context, table string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.tables[table])), nil
}

// Rows returns copies of every row of a table ordered by id
func (s *MemoryStore) Rows(table string) []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]int64, 0, len(s.tables[table]))
	for id := range s.tables[table] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	rows := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		rows = append(rows, maps.Clone(s.tables[table][id]))
	}
	return rows
}

type undo struct {
	table string
	id    int64
	prev  map[string]any
}

type memoryTx struct {
	store *MemoryStore
	log   []undo
}

func (t *memoryTx) FindID(_ context.Context, table string, key map[string]any) (int64, bool, error) {
	for id, row := range t.store.tables[table] {
		if matches(row, key) {
			return id, true, nil
		}
	}
	return 0, false, nil
}

func (t *memoryTx) Insert(_ context.Context, table string, fields map[string]any) (int64, error) {
	if err := t.checkUnique(table, 0, fields); err != nil {
		return 0, err
	}

	rows, ok := t.store.tables[table]
	if !ok {
		rows = make(map[int64]map[string]any)
		t.store.tables[table] = rows
	}

	t.store.nextID++
	id := t.store.nextID
	row := maps.Clone(fields)
	row["id"] = id
	rows[id] = row

	t.log = append(t.log, undo{table: table, id: id})
	return id, nil
}

func (t *memoryTx) Update(_ context.Context, table string, id int64, fields map[string]any) error {
	row, ok := t.store.tables[table][id]
	if !ok {
		return fmt.Errorf("update of %s id=%d failed: %w", table, id, ErrNotFound)
	}

	next := maps.Clone(row)
	maps.Copy(next, fields)
	next["id"] = id
	if err := t.checkUnique(table, id, next); err != nil {
		return err
	}

	t.log = append(t.log, undo{table: table, id: id, prev: row})
	t.store.tables[table][id] = next
	return nil
}

func (t *memoryTx) checkUnique(table string, self int64, row map[string]any) error {
	cols := t.store.uniques[table]
	if len(cols) == 0 {
		return nil
	}

	key := make(map[string]any, len(cols))
	for _, c := range cols {
		key[c] = row[c]
	}
	for id, other := range t.store.tables[table] {
		if id != self && matches(other, key) {
			return fmt.Errorf("%w: %s unique %v", ErrConflict, table, cols)
		}
	}
	return nil
}

func (t *memoryTx) rollback() {
	for i := len(t.log) - 1; i >= 0; i-- {
		u := t.log[i]
		if u.prev == nil {
			delete(t.store.tables[u.table], u.id)
			continue
		}
		t.store.tables[u.table][u.id] = u.prev
	}
}

func matches(row, key map[string]any) bool {
	for k, v := range key {
		if !reflect.DeepEqual(row[k], v) {
			return false
		}
	}
	return true
}
