package main

import (
	"context"
	"crypto/rand"
	"flag"
	"fmt"
	mrand "math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	otpAuth "github.com/MrEthical07/otpAuth"
	"github.com/MrEthical07/otpAuth/credential"
	"github.com/MrEthical07/otpAuth/notify"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const loadPassword = "L0ad!Test"

type userState struct {
	identifier string
	mu         sync.Mutex
	pair       *otpAuth.TokenPair
}

// codeBox hands each delivered code to whoever waits on its destination.
type codeBox struct {
	mu    sync.Mutex
	codes map[string]chan string
}

func (b *codeBox) ch(dest string) chan string {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.codes[dest]
	if !ok {
		c = make(chan string, 4)
		b.codes[dest] = c
	}
	return c
}

func (b *codeBox) Send(_ context.Context, msg notify.Message) error {
	b.ch(msg.Destination) <- msg.Code
	return nil
}

func main() {
	var (
		users       = flag.Int("users", 2000, "number of credentials to sign up and verify")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 50000, "operations per phase (validate + refresh)")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		argonMemory = flag.Uint("argon-memory", 8192, "argon2id memory in KiB for seeded credentials")
	)
	flag.Parse()

	if *users <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "users, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	cfg := otpAuth.DefaultConfig()
	cfg.JWT.PrivateKey = randomKey()
	cfg.OTP.HashKey = randomKey()
	cfg.Password.Memory = uint32(*argonMemory)
	cfg.Password.Time = 1
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true
	cfg.Audit.Enabled = false
	cfg.Notification.QueueSize = *users

	box := &codeBox{codes: make(map[string]chan string)}
	engine, err := otpAuth.New().
		WithConfig(cfg).
		WithRedis(client).
		WithCredentialStore(credential.NewMemoryStore()).
		WithGateway(box).
		WithLogger(zap.NewNop()).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine build failed: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	states := make([]*userState, *users)
	fmt.Printf("signing up %d credentials...\n", *users)
	startSeed := time.Now()
	seedStats := runSeedPhase(ctx, engine, box, states, *concurrency)
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	validateStats := runValidatePhase(ctx, engine, states, *ops, *concurrency)
	refreshStats := runRefreshPhase(ctx, engine, states, *ops, *concurrency)

	fmt.Println("---- results ----")
	printStats("signup+verify", seedStats)
	printStats("validate", validateStats)
	printStats("refresh", refreshStats)

	snap := engine.MetricsSnapshot()
	fmt.Printf("sessions=%d refresh_ok=%d refresh_fail=%d\n",
		snap.Counters[otpAuth.MetricSessionCreated],
		snap.Counters[otpAuth.MetricRefreshSuccess],
		snap.Counters[otpAuth.MetricRefreshFailure],
	)
}

func runSeedPhase(ctx context.Context, engine *otpAuth.Engine, box *codeBox, states []*userState, concurrency int) phaseStats {
	var (
		cursor   int64
		failures int64
	)
	rec := newRecorder(len(states))
	start := time.Now()
	runWorkers(concurrency, func(int) {
		for {
			i := int(atomic.AddInt64(&cursor, 1)) - 1
			if i >= len(states) {
				return
			}
			id := fmt.Sprintf("load-%d@example.com", i)
			t0 := time.Now()
			pair, err := signupAndVerify(ctx, engine, box, id)
			rec.add(time.Since(t0))
			if err != nil {
				atomic.AddInt64(&failures, 1)
				continue
			}
			states[i] = &userState{identifier: id, pair: pair}
		}
	})
	return computeStats(time.Since(start), rec.samples, failures)
}

func signupAndVerify(ctx context.Context, engine *otpAuth.Engine, box *codeBox, id string) (*otpAuth.TokenPair, error) {
	if _, err := engine.Signup(ctx, id, loadPassword, otpAuth.Profile{}); err != nil {
		return nil, err
	}
	select {
	case code := <-box.ch(id):
		return engine.VerifyOTP(ctx, id, otpAuth.PurposeSignup, code)
	case <-time.After(5 * time.Second):
		return nil, fmt.Errorf("no code delivered to %s", id)
	}
}

func runValidatePhase(ctx context.Context, engine *otpAuth.Engine, states []*userState, ops, concurrency int) phaseStats {
	var (
		cursor   int64
		failures int64
	)
	rec := newRecorder(ops)
	start := time.Now()
	runWorkers(concurrency, func(worker int) {
		r := mrand.New(mrand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
		for {
			i := int(atomic.AddInt64(&cursor, 1)) - 1
			if i >= ops {
				return
			}
			state := states[r.Intn(len(states))]
			if state == nil {
				atomic.AddInt64(&failures, 1)
				continue
			}
			state.mu.Lock()
			token := state.pair.AccessToken
			state.mu.Unlock()

			t0 := time.Now()
			_, err := engine.ValidateAccess(ctx, token)
			rec.add(time.Since(t0))
			if err != nil {
				atomic.AddInt64(&failures, 1)
			}
		}
	})
	return computeStats(time.Since(start), rec.samples, failures)
}

func runRefreshPhase(ctx context.Context, engine *otpAuth.Engine, states []*userState, ops, concurrency int) phaseStats {
	var (
		cursor   int64
		failures int64
	)
	rec := newRecorder(ops)
	start := time.Now()
	runWorkers(concurrency, func(worker int) {
		r := mrand.New(mrand.NewSource(time.Now().UnixNano() + int64(worker)*6151))
		for {
			i := int(atomic.AddInt64(&cursor, 1)) - 1
			if i >= ops {
				return
			}
			state := states[r.Intn(len(states))]
			if state == nil {
				atomic.AddInt64(&failures, 1)
				continue
			}

			state.mu.Lock()
			t0 := time.Now()
			next, err := engine.Refresh(ctx, state.pair.RefreshToken)
			d := time.Since(t0)
			if err == nil {
				state.pair = next
			} else {
				atomic.AddInt64(&failures, 1)
			}
			state.mu.Unlock()
			rec.add(d)
		}
	})
	return computeStats(time.Since(start), rec.samples, failures)
}

func runWorkers(n int, fn func(worker int)) {
	var wg sync.WaitGroup
	for w := 0; w < n; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			fn(worker)
		}(w)
	}
	wg.Wait()
}

type recorder struct {
	mu      sync.Mutex
	samples []time.Duration
}

func newRecorder(capacity int) *recorder {
	return &recorder{samples: make([]time.Duration, 0, capacity)}
}

func (r *recorder) add(d time.Duration) {
	r.mu.Lock()
	r.samples = append(r.samples, d)
	r.mu.Unlock()
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total, failures: failures}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}

func randomKey() []byte {
	k := make([]byte, 32)
	if _, err := rand.Read(k); err != nil {
		panic(err)
	}
	return k
}
