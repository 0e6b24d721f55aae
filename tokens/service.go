package tokens

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/otpAuth/jwt"
	"github.com/MrEthical07/otpAuth/session"
	"github.com/google/uuid"
)

var (
	// ErrTokenRevoked is returned when a refresh token was already rotated,
	// explicitly revoked, or its session no longer exists.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrSubjectMismatch is returned when the refresh token subject does not
	// match the session owner.
	ErrSubjectMismatch = errors.New("token subject does not match session")
	// ErrStoreUnavailable wraps session store failures.
	ErrStoreUnavailable = errors.New("session store unavailable")
)

// Identity is the claim material embedded in an access token.
type Identity struct {
	CredentialID string
	Role         string
	Email        string
}

// Meta is request context recorded on the session.
type Meta struct {
	IP        string
	UserAgent string
}

// Pair is an issued access/refresh token pair.
type Pair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
	SessionID        string
	AccessJTI        string
}

// IdentityResolver reloads the identity for a credential during rotation so
// role changes and deactivation take effect on the next refresh.
type IdentityResolver func(ctx context.Context, credentialID string) (Identity, error)

// Service issues, rotates and revokes token pairs.
type Service struct {
	jwt      *jwt.Manager
	sessions *session.Store
	now      func() time.Time
}

// NewService wires a [Service]. clock may be nil.
func NewService(jm *jwt.Manager, sessions *session.Store, clock func() time.Time) *Service {
	if clock == nil {
		clock = time.Now
	}
	return &Service{jwt: jm, sessions: sessions, now: clock}
}

// HashRefresh returns the hex SHA-256 of a refresh token.
func HashRefresh(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Issue signs a new pair and records its session.
func (s *Service) Issue(ctx context.Context, id Identity, meta Meta) (*Pair, error) {
	sessionID := uuid.NewString()
	accessJTI := uuid.NewString()

	access, accessExp, err := s.jwt.CreateAccess(id.CredentialID, id.Role, id.Email, accessJTI)
	if err != nil {
		return nil, err
	}
	refresh, refreshExp, err := s.jwt.CreateRefresh(id.CredentialID, uuid.NewString())
	if err != nil {
		return nil, err
	}

	now := s.now()
	sess := &session.Session{
		ID:             sessionID,
		CredentialID:   id.CredentialID,
		RefreshHash:    HashRefresh(refresh),
		AccessJTI:      accessJTI,
		IP:             meta.IP,
		UserAgent:      meta.UserAgent,
		CreatedAt:      now,
		ExpiresAt:      refreshExp,
		LastActivityAt: now,
		Active:         true,
	}
	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return &Pair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
		SessionID:        sessionID,
		AccessJTI:        accessJTI,
	}, nil
}

// Rotate exchanges a refresh token for a new pair. The presented token's
// session is consumed atomically, so concurrent rotations of one token
// produce exactly one winner; every loser sees ErrTokenRevoked.
func (s *Service) Rotate(ctx context.Context, refreshToken string, resolve IdentityResolver, meta Meta) (*Pair, error) {
	claims, err := s.jwt.Parse(refreshToken, jwt.TypeRefresh)
	if err != nil {
		return nil, err
	}

	sess, err := s.sessions.Consume(ctx, HashRefresh(refreshToken), s.now())
	if err != nil {
		switch {
		case errors.Is(err, session.ErrNotFound), errors.Is(err, session.ErrRevoked):
			return nil, ErrTokenRevoked
		case errors.Is(err, session.ErrExpired):
			return nil, jwt.ErrTokenExpired
		default:
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}
	if sess.CredentialID != claims.Subject {
		return nil, ErrSubjectMismatch
	}

	id, err := resolve(ctx, sess.CredentialID)
	if err != nil {
		return nil, err
	}
	if meta.IP == "" {
		meta.IP = sess.IP
	}
	if meta.UserAgent == "" {
		meta.UserAgent = sess.UserAgent
	}
	return s.Issue(ctx, id, meta)
}

// Verify parses an access token.
func (s *Service) Verify(token string) (*jwt.Claims, error) {
	return s.jwt.Parse(token, jwt.TypeAccess)
}

// IsActive reports whether the session behind an access jti is still live.
func (s *Service) IsActive(ctx context.Context, accessJTI string) (bool, error) {
	sess, err := s.sessions.GetByJTI(ctx, accessJTI)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return sess.Active && s.now().Before(sess.ExpiresAt), nil
}

// RevokeByAccessJTI ends the session bound to an access token id. Unknown or
// already revoked ids are not an error.
func (s *Service) RevokeByAccessJTI(ctx context.Context, accessJTI string) (bool, error) {
	ok, err := s.sessions.RevokeByJTI(ctx, accessJTI, s.now())
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return ok, nil
}

// RevokeSession ends one session by id.
func (s *Service) RevokeSession(ctx context.Context, sessionID string) (bool, error) {
	ok, err := s.sessions.Revoke(ctx, sessionID, s.now())
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return ok, nil
}

// RevokeAll ends every session of a credential.
func (s *Service) RevokeAll(ctx context.Context, credentialID string) (int, error) {
	n, err := s.sessions.RevokeAll(ctx, credentialID, s.now())
	if err != nil {
		return n, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return n, nil
}

// Sessions lists a credential's active sessions.
func (s *Service) Sessions(ctx context.Context, credentialID string) ([]*session.Session, error) {
	list, err := s.sessions.ListActive(ctx, credentialID, s.now())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return list, nil
}
