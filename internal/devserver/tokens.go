package devserver

import (
	"sync"
	"time"

	"github.com/dmitrijs2005/apiclient/internal/common"
)

type tokenRecord struct {
	userID    string
	expiresAt time.Time
}

// TokenStore holds opaque single-use tokens: refresh tokens, password reset
// tokens and email verification tokens, each in its own store.
type TokenStore struct {
	mu     sync.Mutex
	tokens map[string]tokenRecord
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenStore(ttl time.Duration, now func() time.Time) *TokenStore {
	return &TokenStore{tokens: map[string]tokenRecord{}, ttl: ttl, now: now}
}

func (s *TokenStore) Issue(userID string) (string, error) {
	token, err := common.MakeRandHexString(32)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = tokenRecord{userID: userID, expiresAt: s.now().Add(s.ttl)}
	return token, nil
}

// Consume removes token and returns its owner. Unknown tokens yield
// common.ErrInvalidToken, expired ones common.ErrRefreshTokenExpired.
func (s *TokenStore) Consume(token string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.tokens[token]
	if !ok {
		return "", common.ErrInvalidToken
	}
	delete(s.tokens, token)

	if !s.now().Before(rec.expiresAt) {
		return "", common.ErrRefreshTokenExpired
	}
	return rec.userID, nil
}

// RevokeUser drops every token of userID.
func (s *TokenStore) RevokeUser(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for t, rec := range s.tokens {
		if rec.userID == userID {
			delete(s.tokens, t)
		}
	}
}

// Revoke drops token if it exists.
func (s *TokenStore) Revoke(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, token)
}

func (s *TokenStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tokens)
}
