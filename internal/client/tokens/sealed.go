package tokens

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/dmitrijs2005/apiclient/internal/common"
	"github.com/dmitrijs2005/apiclient/internal/cryptox"
)

// SaltKey holds the random salt the sealing key is derived with. It is stored
// in the clear next to the sealed values and is never removed by ClearTokens.
const SaltKey = "auth.salt"

const saltSize = 16

// SealedStorage encrypts every value with AES-GCM before handing it to the
// wrapped Storage, so a copied database file does not leak usable tokens.
type SealedStorage struct {
	inner Storage
	key   []byte
}

// NewSealedStorage derives the sealing key from passphrase. The salt is read
// from inner, or generated and persisted on first use.
func NewSealedStorage(ctx context.Context, inner Storage, passphrase []byte) (*SealedStorage, error) {
	encoded, ok, err := inner.Get(ctx, SaltKey)
	if err != nil {
		return nil, fmt.Errorf("read salt: %w", err)
	}

	var salt []byte
	if ok {
		salt, err = base64.StdEncoding.DecodeString(encoded)
		if err != nil || len(salt) == 0 {
			return nil, fmt.Errorf("%w: %s", common.ErrCorruptedValue, SaltKey)
		}
	} else {
		salt = common.GenerateRandByteArray(saltSize)
		if err := inner.SetMany(ctx, map[string]string{SaltKey: base64.StdEncoding.EncodeToString(salt)}); err != nil {
			return nil, fmt.Errorf("store salt: %w", err)
		}
	}

	return &SealedStorage{inner: inner, key: cryptox.DeriveKey(passphrase, salt)}, nil
}

func (s *SealedStorage) Get(ctx context.Context, key string) (string, bool, error) {
	encoded, ok, err := s.inner.Get(ctx, key)
	if err != nil || !ok {
		return "", ok, err
	}
	plain, err := s.open(key, encoded)
	if err != nil {
		return "", false, err
	}
	return plain, true, nil
}

func (s *SealedStorage) GetMany(ctx context.Context, keys ...string) (map[string]string, error) {
	encoded, err := s.inner.GetMany(ctx, keys...)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(encoded))
	for k, v := range encoded {
		plain, err := s.open(k, v)
		if err != nil {
			return nil, err
		}
		out[k] = plain
	}
	return out, nil
}

func (s *SealedStorage) open(key, encoded string) (string, error) {
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: %s", common.ErrCorruptedValue, key)
	}
	plain, err := cryptox.Open(s.key, sealed)
	if err != nil {
		return "", fmt.Errorf("%w: %s", common.ErrCorruptedValue, key)
	}
	return string(plain), nil
}

func (s *SealedStorage) SetMany(ctx context.Context, values map[string]string) error {
	sealed := make(map[string]string, len(values))
	for k, v := range values {
		ct, err := cryptox.Seal(s.key, []byte(v))
		if err != nil {
			return fmt.Errorf("seal %s: %w", k, err)
		}
		sealed[k] = base64.StdEncoding.EncodeToString(ct)
	}
	return s.inner.SetMany(ctx, sealed)
}

func (s *SealedStorage) DeleteMany(ctx context.Context, keys ...string) error {
	return s.inner.DeleteMany(ctx, keys...)
}
