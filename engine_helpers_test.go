package otpAuth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/otpAuth/credential"
	"github.com/MrEthical07/otpAuth/notify"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const testPassword = "Str0ng!Pass"

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

type testHarness struct {
	engine  *Engine
	redis   *redis.Client
	creds   *credential.MemoryStore
	gateway *notify.Recorder
	sink    *ChannelSink
	clock   *testClock

	mu   sync.Mutex
	seen map[string]int
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.OTP.HashKey = []byte("fedcba9876543210fedcba9876543210")
	cfg.Password.Memory = 8192
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Audit.DropIfFull = false
	cfg.Audit.BufferSize = 4096
	return cfg
}

func newTestHarness(t testing.TB, mutate func(*Config)) *testHarness {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	h := &testHarness{
		redis:   rdb,
		creds:   credential.NewMemoryStore(),
		gateway: notify.NewRecorder(),
		sink:    NewChannelSink(4096),
		clock:   &testClock{t: time.Unix(1_750_000_000, 0)},
		seen:    map[string]int{},
	}

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithCredentialStore(h.creds).
		WithGateway(h.gateway).
		WithAuditSink(h.sink).
		WithClock(h.clock.Now).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	h.engine = engine

	t.Cleanup(func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	})
	return h
}

// nextCode waits for a delivery to destination newer than the last one
// returned and yields its code.
func (h *testHarness) nextCode(t testing.TB, destination string) string {
	t.Helper()

	deadline := time.After(3 * time.Second)
	for {
		h.mu.Lock()
		seen := h.seen[destination]
		h.mu.Unlock()

		count := 0
		var last notify.Message
		for _, m := range h.gateway.Messages() {
			if m.Destination == destination {
				count++
				last = m
			}
		}
		if count > seen {
			h.mu.Lock()
			h.seen[destination] = count
			h.mu.Unlock()
			return last.Code
		}

		select {
		case <-h.gateway.Attempts():
		case <-time.After(20 * time.Millisecond):
		case <-deadline:
			t.Fatalf("no code delivered to %s", destination)
		}
	}
}

// auditEvents closes the engine and returns every event it emitted.
func (h *testHarness) auditEvents() []AuditEvent {
	h.engine.Close()
	var out []AuditEvent
	for {
		select {
		case ev := <-h.sink.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

// signupVerified registers identifier and confirms its signup code.
func (h *testHarness) signupVerified(t testing.TB, identifier string) (*SignupResult, *TokenPair) {
	t.Helper()
	ctx := context.Background()

	res, err := h.engine.Signup(ctx, identifier, testPassword, Profile{})
	if err != nil {
		t.Fatalf("Signup failed: %v", err)
	}
	pair, err := h.engine.VerifyOTP(ctx, identifier, PurposeSignup, h.nextCode(t, identifier))
	if err != nil {
		t.Fatalf("VerifyOTP failed: %v", err)
	}
	return res, pair
}

func wrongCode(code string) string {
	b := []byte(code)
	if b[0] == '9' {
		b[0] = '0'
	} else {
		b[0]++
	}
	return string(b)
}
