// Package memory provides an in-process transactional backend for the repositories contracts.
// It backs unit tests and the local profile without a Firestore emulator.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/stockline/api/internal/repositories"
)

// WriteHook is consulted before every staged write. Returning an error fails that write.
type WriteHook func(table, op, key string) error

// Option customises the store.
type Option func(*Store)

// WithWriteHook installs hook, mostly to inject failures in tests.
func WithWriteHook(hook WriteHook) Option {
	return func(s *Store) {
		s.hook = hook
	}
}

// Store keeps committed rows per table. Transactions are serialised and stage their writes
// in an overlay that is applied on commit and dropped on error.
type Store struct {
	txMu sync.Mutex

	mu     sync.RWMutex
	tables map[string]map[string]any
	hook   WriteHook
}

// NewStore constructs an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		tables: make(map[string]map[string]any),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// SetWriteHook replaces the write hook after construction.
func (s *Store) SetWriteHook(hook WriteHook) {
	s.mu.Lock()
	s.hook = hook
	s.mu.Unlock()
}

type tombstone struct{}

type txState struct {
	writes map[string]map[string]any
}

type txKey struct{}

func txFrom(ctx context.Context) (*txState, bool) {
	if ctx == nil {
		return nil, false
	}
	tx, ok := ctx.Value(txKey{}).(*txState)
	return tx, ok && tx != nil
}

var _ repositories.UnitOfWork = (*Store)(nil)

// RunInTx runs fn with every repository call staged in one overlay. A context that already
// carries a transaction joins it.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if fn == nil {
		return errors.New("memory unit of work: function is nil")
	}
	if _, ok := txFrom(ctx); ok {
		return fn(ctx)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	tx := &txState{writes: make(map[string]map[string]any)}
	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for table, rows := range tx.writes {
		committed := s.table(table)
		for key, value := range rows {
			if _, deleted := value.(tombstone); deleted {
				delete(committed, key)
				continue
			}
			committed[key] = value
		}
	}
	return nil
}

func (s *Store) table(name string) map[string]any {
	rows, ok := s.tables[name]
	if !ok {
		rows = make(map[string]any)
		s.tables[name] = rows
	}
	return rows
}

func (s *Store) get(ctx context.Context, table, key string) (any, bool) {
	if tx, ok := txFrom(ctx); ok {
		if value, staged := tx.writes[table][key]; staged {
			if _, deleted := value.(tombstone); deleted {
				return nil, false
			}
			return value, true
		}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.tables[table][key]
	return value, ok
}

// scan returns the merged rows of table ordered by key.
func (s *Store) scan(ctx context.Context, table string) []any {
	merged := make(map[string]any)
	s.mu.RLock()
	for key, value := range s.tables[table] {
		merged[key] = value
	}
	s.mu.RUnlock()
	if tx, ok := txFrom(ctx); ok {
		for key, value := range tx.writes[table] {
			if _, deleted := value.(tombstone); deleted {
				delete(merged, key)
				continue
			}
			merged[key] = value
		}
	}
	keys := make([]string, 0, len(merged))
	for key := range merged {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	out := make([]any, 0, len(keys))
	for _, key := range keys {
		out = append(out, merged[key])
	}
	return out
}

func (s *Store) write(ctx context.Context, table, op, key string, value any) error {
	s.mu.RLock()
	hook := s.hook
	s.mu.RUnlock()
	if hook != nil {
		if err := hook(table, op, key); err != nil {
			return err
		}
	}
	if tx, ok := txFrom(ctx); ok {
		rows, exists := tx.writes[table]
		if !exists {
			rows = make(map[string]any)
			tx.writes[table] = rows
		}
		rows[key] = value
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.table(table)
	if _, deleted := value.(tombstone); deleted {
		delete(rows, key)
		return nil
	}
	rows[key] = value
	return nil
}

func (s *Store) create(ctx context.Context, table, key string, value any) error {
	if _, exists := s.get(ctx, table, key); exists {
		return repositories.Conflict(table+".create", "document already exists: "+key)
	}
	return s.write(ctx, table, "create", key, value)
}

func (s *Store) put(ctx context.Context, table, key string, value any) error {
	return s.write(ctx, table, "set", key, value)
}

func (s *Store) remove(ctx context.Context, table, key string) error {
	return s.write(ctx, table, "delete", key, tombstone{})
}
