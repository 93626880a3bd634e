package metadata

import (
	"context"
)

// Repository is a small key/value store kept in the local database. The token
// storage keeps the credential triple here.
type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	GetMany(ctx context.Context, keys ...string) (map[string][]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}
