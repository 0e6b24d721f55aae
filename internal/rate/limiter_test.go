package rate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
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
	return mr, rdb
}

func newLimiter(t *testing.T, policy Policy) (*Limiter, *testClock, *miniredis.Miniredis) {
	t.Helper()
	mr, rdb := newTestRedis(t)
	clock := &testClock{t: time.Unix(1_700_000_000, 0)}
	l := New(rdb, Config{
		Policies: map[Action]Policy{ActionOTPRequest: policy},
		Clock:    clock.Now,
	})
	return l, clock, mr
}

func TestCheckWindowAndBlock(t *testing.T) {
	l, clock, _ := newLimiter(t, Policy{MaxAttempts: 3, Window: 60 * time.Second})
	ctx := context.Background()
	start := clock.Now()

	for i, want := range []int{2, 1, 0} {
		d, err := l.Check(ctx, "a@x.com", IdentifierEmail, ActionOTPRequest)
		if err != nil {
			t.Fatalf("check %d: %v", i, err)
		}
		if !d.Allowed || d.Remaining != want {
			t.Fatalf("check %d: expected allowed remaining=%d, got %+v", i, want, d)
		}
		clock.Advance(time.Second)
	}

	d, err := l.Check(ctx, "a@x.com", IdentifierEmail, ActionOTPRequest)
	if err != nil {
		t.Fatalf("fourth check: %v", err)
	}
	if d.Allowed || d.Remaining != 0 {
		t.Fatalf("expected denial, got %+v", d)
	}
	if !d.BlockedUntil.Equal(start.Add(60 * time.Second)) {
		t.Fatalf("expected BlockedUntil=%v, got %v", start.Add(60*time.Second), d.BlockedUntil)
	}

	clock.Advance(10 * time.Second)
	if d, _ := l.Check(ctx, "a@x.com", IdentifierEmail, ActionOTPRequest); d.Allowed {
		t.Fatal("expected denial while blocked")
	}

	clock.Advance(60 * time.Second)
	d, err = l.Check(ctx, "a@x.com", IdentifierEmail, ActionOTPRequest)
	if err != nil {
		t.Fatalf("post-window check: %v", err)
	}
	if !d.Allowed || d.Remaining != 2 {
		t.Fatalf("expected fresh window, got %+v", d)
	}
}

func TestCheckKeysAreIndependent(t *testing.T) {
	l, _, _ := newLimiter(t, Policy{MaxAttempts: 1, Window: time.Minute})
	ctx := context.Background()

	if d, _ := l.Check(ctx, "a@x.com", IdentifierEmail, ActionOTPRequest); !d.Allowed {
		t.Fatal("expected first identifier allowed")
	}
	if d, _ := l.Check(ctx, "b@x.com", IdentifierEmail, ActionOTPRequest); !d.Allowed {
		t.Fatal("expected second identifier allowed")
	}
	if d, _ := l.Check(ctx, "a@x.com", IdentifierEmail, ActionLoginAttempt); !d.Allowed {
		t.Fatal("expected other action allowed")
	}
	if d, _ := l.Check(ctx, "a@x.com", IdentifierEmail, ActionOTPRequest); d.Allowed {
		t.Fatal("expected repeat on exhausted key denied")
	}
}

func TestReset(t *testing.T) {
	l, _, _ := newLimiter(t, Policy{MaxAttempts: 1, Window: time.Minute})
	ctx := context.Background()

	_, _ = l.Check(ctx, "+15550001111", IdentifierPhone, ActionOTPRequest)
	if d, _ := l.Check(ctx, "+15550001111", IdentifierPhone, ActionOTPRequest); d.Allowed {
		t.Fatal("expected denial before reset")
	}
	if err := l.Reset(ctx, "+15550001111", IdentifierPhone, ActionOTPRequest); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if d, _ := l.Check(ctx, "+15550001111", IdentifierPhone, ActionOTPRequest); !d.Allowed {
		t.Fatal("expected allowance after reset")
	}
}

func TestCheckConcurrentNeverOverAdmits(t *testing.T) {
	l, _, _ := newLimiter(t, Policy{MaxAttempts: 5, Window: time.Minute})
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := l.Check(ctx, "c@x.com", IdentifierEmail, ActionOTPRequest)
			if err != nil {
				t.Errorf("check: %v", err)
				return
			}
			if d.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 5 {
		t.Fatalf("expected exactly 5 admissions, got %d", allowed)
	}
}

func TestCheckUnknownAction(t *testing.T) {
	l, _, _ := newLimiter(t, Policy{MaxAttempts: 1, Window: time.Minute})
	if _, err := l.Check(context.Background(), "x", IdentifierEmail, Action("nope")); !errors.Is(err, ErrUnknownAction) {
		t.Fatalf("expected ErrUnknownAction, got %v", err)
	}
}

func TestCheckRedisUnavailable(t *testing.T) {
	l, _, mr := newLimiter(t, Policy{MaxAttempts: 1, Window: time.Minute})
	mr.Close()

	if _, err := l.Check(context.Background(), "x", IdentifierEmail, ActionOTPRequest); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}
