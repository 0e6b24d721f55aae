package credential

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process [Store] for tests and single-node demos.
type MemoryStore struct {
	mu      sync.RWMutex
	byID    map[string]*Credential
	byEmail map[string]string
	byPhone map[string]string
}

// NewMemoryStore returns an empty [MemoryStore].
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[string]*Credential),
		byEmail: make(map[string]string),
		byPhone: make(map[string]string),
	}
}

// Create inserts c, assigning an ID when empty.
func (s *MemoryStore) Create(_ context.Context, c *Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.Email != "" {
		if _, ok := s.byEmail[c.Email]; ok {
			return ErrDuplicate
		}
	}
	if c.Phone != "" {
		if _, ok := s.byPhone[c.Phone]; ok {
			return ErrDuplicate
		}
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if _, ok := s.byID[c.ID]; ok {
		return ErrDuplicate
	}

	stored := *c
	s.byID[c.ID] = &stored
	if c.Email != "" {
		s.byEmail[c.Email] = c.ID
	}
	if c.Phone != "" {
		s.byPhone[c.Phone] = c.ID
	}
	return nil
}

func (s *MemoryStore) GetByID(_ context.Context, id string) (*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *c
	return &out, nil
}

func (s *MemoryStore) GetByEmail(ctx context.Context, email string) (*Credential, error) {
	s.mu.RLock()
	id, ok := s.byEmail[email]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return s.GetByID(ctx, id)
}

func (s *MemoryStore) GetByPhone(ctx context.Context, phone string) (*Credential, error) {
	s.mu.RLock()
	id, ok := s.byPhone[phone]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return s.GetByID(ctx, id)
}

func (s *MemoryStore) RecordLoginFailure(_ context.Context, id string, threshold int, lockout time.Duration, now time.Time) (FailureResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.byID[id]
	if !ok {
		return FailureResult{}, ErrNotFound
	}
	c.FailedLoginCount++
	c.UpdatedAt = now

	res := FailureResult{Count: c.FailedLoginCount}
	if threshold > 0 && c.FailedLoginCount >= threshold {
		c.LockoutUntil = now.Add(lockout)
		c.FailedLoginCount = 0
		res.Locked = true
		res.LockoutUntil = c.LockoutUntil
	}
	return res, nil
}

func (s *MemoryStore) RecordLoginSuccess(_ context.Context, id string, now time.Time) error {
	return s.update(id, func(c *Credential) {
		c.FailedLoginCount = 0
		c.LockoutUntil = time.Time{}
		c.LastLoginAt = now
		c.UpdatedAt = now
	})
}

func (s *MemoryStore) MarkVerified(_ context.Context, id string, now time.Time) error {
	return s.update(id, func(c *Credential) {
		c.Verified = true
		c.UpdatedAt = now
	})
}

func (s *MemoryStore) UpdatePasswordHash(_ context.Context, id, hash string, clearLockout bool, now time.Time) error {
	return s.update(id, func(c *Credential) {
		c.PasswordHash = hash
		if clearLockout {
			c.FailedLoginCount = 0
			c.LockoutUntil = time.Time{}
		}
		c.UpdatedAt = now
	})
}

func (s *MemoryStore) Deactivate(_ context.Context, id string, now time.Time) error {
	return s.update(id, func(c *Credential) {
		c.Active = false
		c.UpdatedAt = now
	})
}

func (s *MemoryStore) update(id string, fn func(*Credential)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	fn(c)
	return nil
}
