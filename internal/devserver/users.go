package devserver

import (
	"context"
	"crypto/subtle"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/apiclient/internal/client/models"
	"github.com/dmitrijs2005/apiclient/internal/common"
	"github.com/dmitrijs2005/apiclient/internal/cryptox"
	"github.com/google/uuid"
)

type userRecord struct {
	user    models.User
	salt    []byte
	pwdHash []byte
}

// UserStore keeps accounts in memory. Passwords are stored as argon2id
// hashes with a per-user salt.
type UserStore struct {
	mu      sync.RWMutex
	byID    map[string]*userRecord
	byEmail map[string]string
	now     func() time.Time
}

func NewUserStore(now func() time.Time) *UserStore {
	return &UserStore{
		byID:    map[string]*userRecord{},
		byEmail: map[string]string{},
		now:     now,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func hashPassword(password string, salt []byte) []byte {
	return cryptox.DeriveKey([]byte(password), salt)
}

// Create adds a user. It fails with common.ErrorConflict if the email is
// already registered.
func (s *UserStore) Create(_ context.Context, req models.RegisterRequest) (models.User, error) {
	email := normalizeEmail(req.Email)
	salt := common.GenerateRandByteArray(16)
	hash := hashPassword(req.Password, salt)
	ts := s.now().UTC().Format(time.RFC3339)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byEmail[email]; ok {
		return models.User{}, common.ErrorConflict
	}

	rec := &userRecord{
		user: models.User{
			ID:          uuid.NewString(),
			Email:       email,
			FirstName:   strings.TrimSpace(req.FirstName),
			LastName:    strings.TrimSpace(req.LastName),
			DateOfBirth: req.DateOfBirth,
			Gender:      req.Gender,
			CreatedAt:   ts,
			UpdatedAt:   ts,
		},
		salt:    salt,
		pwdHash: hash,
	}
	s.byID[rec.user.ID] = rec
	s.byEmail[email] = rec.user.ID
	return rec.user, nil
}

// Authenticate returns the user with the given credentials or
// common.ErrorUnauthorized.
func (s *UserStore) Authenticate(_ context.Context, email, password string) (models.User, error) {
	s.mu.RLock()
	id, ok := s.byEmail[normalizeEmail(email)]
	var rec userRecord
	if ok {
		rec = *s.byID[id]
	}
	s.mu.RUnlock()

	if !ok {
		return models.User{}, common.ErrorUnauthorized
	}
	if subtle.ConstantTimeCompare(rec.pwdHash, hashPassword(password, rec.salt)) != 1 {
		return models.User{}, common.ErrorUnauthorized
	}
	return rec.user, nil
}

func (s *UserStore) Get(_ context.Context, id string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byID[id]
	if !ok {
		return models.User{}, common.ErrorNotFound
	}
	return rec.user, nil
}

func (s *UserStore) FindByEmail(_ context.Context, email string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[normalizeEmail(email)]
	if !ok {
		return models.User{}, common.ErrorNotFound
	}
	return s.byID[id].user, nil
}

// Update applies fn to the stored user and returns the result.
func (s *UserStore) Update(_ context.Context, id string, fn func(u *models.User)) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok {
		return models.User{}, common.ErrorNotFound
	}
	fn(&rec.user)
	rec.user.UpdatedAt = s.now().UTC().Format(time.RFC3339)
	return rec.user, nil
}

func (s *UserStore) SetPassword(_ context.Context, id, password string) error {
	salt := common.GenerateRandByteArray(16)
	hash := hashPassword(password, salt)

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok {
		return common.ErrorNotFound
	}
	rec.salt, rec.pwdHash = salt, hash
	return nil
}
