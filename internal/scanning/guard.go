package scanning

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

// GuardConfig holds the limits applied to an upstream service.
// A zero RequestsPerMinute disables rate limiting and a zero
// FailureThreshold disables the circuit breaker.
type GuardConfig struct {
	RequestsPerMinute int
	Burst             int
	FailureThreshold  uint32
	OpenTimeout       time.Duration
}

// guard rate limits and circuit-breaks calls to one upstream. It never retries.
type guard[T any] struct {
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[T]
}

func newGuard[T any](name string, cfg GuardConfig) *guard[T] {
	g := &guard[T]{}

	if cfg.RequestsPerMinute > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), burst)
	}

	if cfg.FailureThreshold > 0 {
		threshold := cfg.FailureThreshold
		g.breaker = gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
			Name:        name,
			MaxRequests: 1,
			Timeout:     cfg.OpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			// The caller walking away says nothing about upstream health
			IsExcluded: func(err error) bool {
				return errors.Is(err, context.Canceled)
			},
			OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
				slog.Warn("Upstream circuit changed state", "upstream", name, "from", from.String(), "to", to.String())
			},
		})
	}

	return g
}

func (g *guard[T]) do(ctx context.Context, call func() (T, error)) (T, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			var zero T
			return zero, err
		}
	}
	if g.breaker == nil {
		return call()
	}
	return g.breaker.Execute(call)
}

// GuardedDetector wraps a TextDetector with rate limiting and circuit breaking
type GuardedDetector struct {
	next  TextDetector
	guard *guard[*OCRResult]
}

// NewGuardedDetector creates a new GuardedDetector
func NewGuardedDetector(next TextDetector, cfg GuardConfig) *GuardedDetector {
	return &GuardedDetector{
		next:  next,
		guard: newGuard[*OCRResult]("ocr", cfg),
	}
}

// DetectText forwards to the wrapped detector unless the guard rejects the call
func (d *GuardedDetector) DetectText(ctx context.Context, encodedImage string) (*OCRResult, error) {
	result, err := d.guard.do(ctx, func() (*OCRResult, error) {
		return d.next.DetectText(ctx, encodedImage)
	})
	if err != nil {
		var transportErr *OCRTransportError
		if errors.As(err, &transportErr) {
			return nil, err
		}
		return nil, &OCRTransportError{Err: err}
	}
	return result, nil
}

// GuardedGenerator wraps a Generator with rate limiting and circuit breaking
type GuardedGenerator struct {
	next  Generator
	guard *guard[string]
}

// NewGuardedGenerator creates a new GuardedGenerator
func NewGuardedGenerator(next Generator, cfg GuardConfig) *GuardedGenerator {
	return &GuardedGenerator{
		next:  next,
		guard: newGuard[string]("model", cfg),
	}
}

// Generate forwards to the wrapped generator unless the guard rejects the call
func (g *GuardedGenerator) Generate(ctx context.Context, receiptText string) (string, error) {
	return g.guard.do(ctx, func() (string, error) {
		return g.next.Generate(ctx, receiptText)
	})
}

// Close closes the wrapped generator
func (g *GuardedGenerator) Close() error {
	return g.next.Close()
}
