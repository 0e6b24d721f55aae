package otpAuth

import (
	"context"
	"testing"
	"time"
)

func BenchmarkMetricsInc(b *testing.B) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		m.Inc(MetricLoginSuccess)
	}
}

func BenchmarkMetricsIncParallel(b *testing.B) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			m.Inc(MetricOTPIssued)
		}
	})
}

func BenchmarkMetricsObserveLatencyParallel(b *testing.B) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})
	d := 12 * time.Millisecond
	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			m.Observe(MetricValidateLatency, d)
		}
	})
}

func BenchmarkValidateAccessStrict(b *testing.B) {
	benchmarkValidateAccess(b, true)
}

func BenchmarkValidateAccessSignatureOnly(b *testing.B) {
	benchmarkValidateAccess(b, false)
}

func benchmarkValidateAccess(b *testing.B, strict bool) {
	h := newTestHarness(b, func(cfg *Config) {
		cfg.Session.StrictValidation = strict
		cfg.Audit.Enabled = false
	})
	ctx := context.Background()
	_, pair := h.signupVerified(b, "bench@example.com")

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := h.engine.ValidateAccess(ctx, pair.AccessToken); err != nil {
			b.Fatalf("ValidateAccess failed: %v", err)
		}
	}
}

func BenchmarkRefresh(b *testing.B) {
	h := newTestHarness(b, func(cfg *Config) {
		cfg.Audit.Enabled = false
	})
	ctx := context.Background()
	_, pair := h.signupVerified(b, "bench@example.com")

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		next, err := h.engine.Refresh(ctx, pair.RefreshToken)
		if err != nil {
			b.Fatalf("Refresh failed: %v", err)
		}
		pair = next
	}
}
