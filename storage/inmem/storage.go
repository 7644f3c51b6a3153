package inmemstore

import (
	"context"
	"sync"

	"github.com/trezcool/masomo-portal/core"
)

type (
	// DB holds the items of every namespace in memory.
	DB struct {
		mutex  sync.RWMutex
		tables map[string]map[string]string
	}

	storage struct {
		db        *DB
		namespace string
	}
)

var (
	_ core.StorageProvider = (*DB)(nil)
	_ core.Storage         = (*storage)(nil)
)

func Open() *DB {
	return &DB{tables: make(map[string]map[string]string)}
}

// New returns a standalone in-memory Storage.
func New() core.Storage {
	return Open().Storage("")
}

func (db *DB) Storage(namespace string) core.Storage {
	return &storage{db: db, namespace: namespace}
}

// Len returns the number of items stored under namespace.
func (db *DB) Len(namespace string) int {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	return len(db.tables[namespace])
}

func (s *storage) GetItem(_ context.Context, key string) (string, error) {
	s.db.mutex.RLock()
	defer s.db.mutex.RUnlock()

	if val, ok := s.db.tables[s.namespace][key]; ok {
		return val, nil
	}
	return "", core.ErrNotFound
}

func (s *storage) SetItem(_ context.Context, key, value string) error {
	s.db.mutex.Lock()
	defer s.db.mutex.Unlock()

	table, ok := s.db.tables[s.namespace]
	if !ok {
		table = make(map[string]string)
		s.db.tables[s.namespace] = table
	}
	table[key] = value
	return nil
}

func (s *storage) RemoveItem(_ context.Context, key string) error {
	s.db.mutex.Lock()
	defer s.db.mutex.Unlock()

	if table, ok := s.db.tables[s.namespace]; ok {
		delete(table, key)
		if len(table) == 0 {
			delete(s.db.tables, s.namespace)
		}
	}
	return nil
}
