// Package memory is the in-process storage driver. It implements every
// repository port over maps guarded by one lock, and is used for local
// development and by service tests.
package memory

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/nexuscrm/tablestore/internal/domain/models"
)

type txKey struct{}

type rowRecord struct {
	row   models.Row
	cells map[int64]models.Cell // by column id
}

type state struct {
	seq       map[string]int64
	databases map[int64]models.Database
	tables    map[int64]models.Table
	columns   map[int64]models.Column
	rows      map[int64]*rowRecord
	rules     map[int64]models.ValidationRule
	grants    map[string]map[int64]models.Grant
	audit     []models.AuditRecord
}

func newState() *state {
	return &state{
		seq:       make(map[string]int64),
		databases: make(map[int64]models.Database),
		tables:    make(map[int64]models.Table),
		columns:   make(map[int64]models.Column),
		rows:      make(map[int64]*rowRecord),
		rules:     make(map[int64]models.ValidationRule),
		grants:    make(map[string]map[int64]models.Grant),
	}
}

// clone copies everything a transaction can modify
func (s *state) clone() *state {
	c := &state{
		seq:       maps.Clone(s.seq),
		databases: maps.Clone(s.databases),
		tables:    maps.Clone(s.tables),
		columns:   maps.Clone(s.columns),
		rows:      make(map[int64]*rowRecord, len(s.rows)),
		rules:     maps.Clone(s.rules),
		grants:    make(map[string]map[int64]models.Grant, len(s.grants)),
		audit:     append([]models.AuditRecord(nil), s.audit...),
	}
	for id, rec := range s.rows {
		c.rows[id] = &rowRecord{row: rec.row, cells: maps.Clone(rec.cells)}
	}
	for rt, g := range s.grants {
		c.grants[rt] = maps.Clone(g)
	}
	return c
}

func (s *state) next(sequence string) int64 {
	s.seq[sequence]++
	return s.seq[sequence]
}

// Store holds all data in memory. Writers are serialized; a transaction
// holds the writer slot for its whole duration and restores a snapshot on
// failure. Reads inside a transaction see its uncommitted writes.
type Store struct {
	mu   sync.RWMutex
	txMu sync.Mutex
	data *state
	now  func() time.Time
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{data: newState(), now: time.Now}
}

// WithClock replaces the time source used for timestamps
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

func inTx(ctx context.Context) bool {
	v, _ := ctx.Value(txKey{}).(bool)
	return v
}

// WithTransaction runs fn with exclusive write access. A nested call joins
// the outer transaction.
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if inTx(ctx) {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	snapshot := s.data.clone()
	s.mu.RUnlock()

	defer func() {
		if p := recover(); p != nil {
			s.restore(snapshot)
			panic(p)
		}
		if err != nil {
			s.restore(snapshot)
		}
	}()
	return fn(context.WithValue(ctx, txKey{}, true))
}

func (s *Store) restore(snapshot *state) {
	s.mu.Lock()
	s.data = snapshot
	s.mu.Unlock()
}

// write runs fn under the write lock, taking the writer slot unless ctx
// already holds it
func (s *Store) write(ctx context.Context, fn func(d *state) error) error {
	if !inTx(ctx) {
		s.txMu.Lock()
		defer s.txMu.Unlock()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.data)
}

func (s *Store) read(fn func(d *state) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.data)
}
