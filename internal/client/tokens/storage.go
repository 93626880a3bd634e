package tokens

import (
	"context"
	"database/sql"
	"sync"

	"github.com/dmitrijs2005/apiclient/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/apiclient/internal/dbx"
)

// Storage is the persistent secure storage the Store writes through.
//
// SetMany must be all-or-nothing: either every value is stored or none is.
// Get reports ok=false for an absent key; GetMany leaves absent keys out of
// the returned map.
type Storage interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	GetMany(ctx context.Context, keys ...string) (map[string]string, error)
	SetMany(ctx context.Context, values map[string]string) error
	DeleteMany(ctx context.Context, keys ...string) error
}

// MemoryStorage keeps values in process memory. Useful for tests and for
// sessions that must not outlive the process.
type MemoryStorage struct {
	mu     sync.Mutex
	values map[string]string
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{values: make(map[string]string)}
}

func (m *MemoryStorage) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemoryStorage) GetMany(_ context.Context, keys ...string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		if v, ok := m.values[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

func (m *MemoryStorage) SetMany(_ context.Context, values map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range values {
		m.values[k] = v
	}
	return nil
}

func (m *MemoryStorage) DeleteMany(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}

// MetadataStorage persists values in the SQLite metadata table. Multi-key
// writes run inside a single transaction.
type MetadataStorage struct {
	db *sql.DB
}

func NewMetadataStorage(db *sql.DB) *MetadataStorage {
	return &MetadataStorage{db: db}
}

func (s *MetadataStorage) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := metadata.NewSQLiteRepository(s.db).Get(ctx, key)
	if err != nil {
		return "", false, err
	}
	if v == nil {
		return "", false, nil
	}
	return string(v), true, nil
}

// GetMany reads all keys in a single query, so the values come from one
// consistent snapshot of the table.
func (s *MetadataStorage) GetMany(ctx context.Context, keys ...string) (map[string]string, error) {
	raw, err := metadata.NewSQLiteRepository(s.db).GetMany(ctx, keys...)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		out[k] = string(v)
	}
	return out, nil
}

func (s *MetadataStorage) SetMany(ctx context.Context, values map[string]string) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := metadata.NewSQLiteRepository(tx)
		for k, v := range values {
			if err := repo.Set(ctx, k, []byte(v)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *MetadataStorage) DeleteMany(ctx context.Context, keys ...string) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := metadata.NewSQLiteRepository(tx)
		for _, k := range keys {
			if err := repo.Delete(ctx, k); err != nil {
				return err
			}
		}
		return nil
	})
}
