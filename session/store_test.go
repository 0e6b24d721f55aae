package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return NewStore(rdb, "test"), mr
}

var baseTime = time.Unix(1_700_000_000, 0)

func testSession(id, cid, hash, jti string) *Session {
	return &Session{
		ID:             id,
		CredentialID:   cid,
		RefreshHash:    hash,
		AccessJTI:      jti,
		IP:             "203.0.113.7",
		UserAgent:      "test-agent",
		CreatedAt:      baseTime,
		ExpiresAt:      baseTime.Add(time.Hour),
		LastActivityAt: baseTime,
		Active:         true,
	}
}

func TestSaveAndGet(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	if err := s.Save(ctx, testSession("s1", "c1", "h1", "j1")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.CredentialID != "c1" || got.RefreshHash != "h1" || !got.Active {
		t.Fatalf("unexpected session: %+v", got)
	}
	if !got.ExpiresAt.Equal(baseTime.Add(time.Hour)) {
		t.Fatalf("unexpected expiry: %v", got.ExpiresAt)
	}

	byJTI, err := s.GetByJTI(ctx, "j1")
	if err != nil || byJTI.ID != "s1" {
		t.Fatalf("GetByJTI: %v %+v", err, byJTI)
	}

	if ttl := mr.TTL("test:s:s1"); ttl != time.Hour {
		t.Fatalf("expected 1h ttl, got %v", ttl)
	}

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSaveRejectsDuplicateRefreshHash(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	if err := s.Save(ctx, testSession("s1", "c1", "h1", "j1")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Save(ctx, testSession("s2", "c1", "h1", "j2")); !errors.Is(err, ErrDuplicateRefresh) {
		t.Fatalf("expected ErrDuplicateRefresh, got %v", err)
	}
}

func TestConsumeOnce(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	_ = s.Save(ctx, testSession("s1", "c1", "h1", "j1"))

	now := baseTime.Add(time.Minute)
	sess, err := s.Consume(ctx, "h1", now)
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if sess.ID != "s1" || sess.Active {
		t.Fatalf("expected consumed inactive session, got %+v", sess)
	}
	if !sess.LastActivityAt.Equal(now) {
		t.Fatalf("expected last activity %v, got %v", now, sess.LastActivityAt)
	}

	if _, err := s.Consume(ctx, "h1", now); !errors.Is(err, ErrRevoked) {
		t.Fatalf("expected ErrRevoked on replay, got %v", err)
	}
	if _, err := s.Consume(ctx, "unknown", now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestConsumeExpired(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	_ = s.Save(ctx, testSession("s1", "c1", "h1", "j1"))

	if _, err := s.Consume(ctx, "h1", baseTime.Add(time.Hour)); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
	got, _ := s.Get(ctx, "s1")
	if got.Active {
		t.Fatal("expected expired session to be deactivated")
	}
}

func TestConcurrentConsumeSingleWinner(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	_ = s.Save(ctx, testSession("s1", "c1", "h1", "j1"))

	const workers = 20
	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Consume(ctx, "h1", baseTime.Add(time.Second))
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var ok, revoked int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrRevoked):
			revoked++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || revoked != workers-1 {
		t.Fatalf("expected 1 winner and %d revoked, got %d/%d", workers-1, ok, revoked)
	}
}

func TestRevokeAndList(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	_ = s.Save(ctx, testSession("s1", "c1", "h1", "j1"))
	_ = s.Save(ctx, testSession("s2", "c1", "h2", "j2"))
	_ = s.Save(ctx, testSession("s3", "c2", "h3", "j3"))

	now := baseTime.Add(time.Minute)
	list, err := s.ListActive(ctx, "c1", now)
	if err != nil || len(list) != 2 {
		t.Fatalf("expected 2 active sessions, got %d (%v)", len(list), err)
	}

	ok, err := s.RevokeByJTI(ctx, "j1", now)
	if err != nil || !ok {
		t.Fatalf("RevokeByJTI: ok=%v err=%v", ok, err)
	}
	ok, _ = s.Revoke(ctx, "s1", now)
	if ok {
		t.Fatal("expected second revoke to report false")
	}
	if _, err := s.Consume(ctx, "h1", now); !errors.Is(err, ErrRevoked) {
		t.Fatalf("expected revoked session to refuse consume, got %v", err)
	}

	list, _ = s.ListActive(ctx, "c1", now)
	if len(list) != 1 || list[0].ID != "s2" {
		t.Fatalf("expected only s2 active, got %+v", list)
	}

	n, err := s.RevokeAll(ctx, "c1", now)
	if err != nil || n != 1 {
		t.Fatalf("RevokeAll: n=%d err=%v", n, err)
	}
	list, _ = s.ListActive(ctx, "c1", now)
	if len(list) != 0 {
		t.Fatalf("expected no active sessions, got %d", len(list))
	}

	other, _ := s.ListActive(ctx, "c2", now)
	if len(other) != 1 {
		t.Fatalf("expected other credential untouched, got %d", len(other))
	}
}

func TestStoreRedisUnavailable(t *testing.T) {
	s, mr := newTestStore(t)
	mr.Close()

	err := s.Save(context.Background(), testSession("s1", "c1", "h1", "j1"))
	if !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}
