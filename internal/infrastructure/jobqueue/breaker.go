package jobqueue

import (
	"context"
	"sync"
	"time"

	crerr "github.com/cockroachdb/errors"

	"github.com/House-of-Events/Annabeth/internal/domain/notification"
	"github.com/House-of-Events/Annabeth/internal/platform/logging"
	"github.com/House-of-Events/Annabeth/internal/usecase"
)

type BreakerConfig struct {
	Enabled          bool
	FailureThreshold int
	OpenTimeout      time.Duration
	HalfOpenMaxReq   int
}

type breakerState string

const (
	breakerClosed   breakerState = "closed"
	breakerOpen     breakerState = "open"
	breakerHalfOpen breakerState = "half_open"
)

// circuitBreaker opens after FailureThreshold consecutive transient failures
// and lets HalfOpenMaxReq probes through once OpenTimeout has passed.
type circuitBreaker struct {
	mu sync.Mutex

	failureThreshold int
	openTimeout      time.Duration
	halfOpenMaxReq   int

	state               breakerState
	consecutiveFailures int
	openedAt            time.Time
	probesInFlight      int
	probeSuccesses      int
	now                 func() time.Time
}

func newCircuitBreaker(cfg BreakerConfig) *circuitBreaker {
	if cfg.FailureThreshold < 1 {
		cfg.FailureThreshold = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 15 * time.Second
	}
	if cfg.HalfOpenMaxReq < 1 {
		cfg.HalfOpenMaxReq = 1
	}
	return &circuitBreaker{
		failureThreshold: cfg.FailureThreshold,
		openTimeout:      cfg.OpenTimeout,
		halfOpenMaxReq:   cfg.HalfOpenMaxReq,
		state:            breakerClosed,
		now:              time.Now,
	}
}

func (b *circuitBreaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == breakerOpen {
		if b.now().Sub(b.openedAt) < b.openTimeout {
			return false
		}
		b.state = breakerHalfOpen
		b.probesInFlight = 0
		b.probeSuccesses = 0
	}
	if b.state == breakerHalfOpen {
		if b.probesInFlight >= b.halfOpenMaxReq {
			return false
		}
		b.probesInFlight++
	}
	return true
}

func (b *circuitBreaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case breakerClosed:
		b.consecutiveFailures = 0
	case breakerHalfOpen:
		if b.probesInFlight > 0 {
			b.probesInFlight--
		}
		b.probeSuccesses++
		if b.probeSuccesses >= b.halfOpenMaxReq && b.probesInFlight == 0 {
			b.state = breakerClosed
			b.consecutiveFailures = 0
			b.openedAt = time.Time{}
		}
	}
}

func (b *circuitBreaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case breakerClosed:
		b.consecutiveFailures++
		if b.consecutiveFailures >= b.failureThreshold {
			b.open()
		}
	case breakerHalfOpen:
		b.open()
	case breakerOpen:
		b.openedAt = b.now()
	}
}

func (b *circuitBreaker) open() {
	b.state = breakerOpen
	b.openedAt = b.now()
	b.probesInFlight = 0
	b.probeSuccesses = 0
}

func (b *circuitBreaker) currentState() breakerState {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == breakerOpen && b.now().Sub(b.openedAt) >= b.openTimeout {
		return breakerHalfOpen
	}
	return b.state
}

// BreakerPublisher stops calling a broker that keeps failing. Rejected
// fixtures fail fast and stay unprocessed for a later run.
type BreakerPublisher struct {
	next    notification.Publisher
	breaker *circuitBreaker
	logger  *logging.Logger
}

// WithCircuitBreaker returns next unchanged when the breaker is disabled.
func WithCircuitBreaker(next notification.Publisher, cfg BreakerConfig, logger *logging.Logger) notification.Publisher {
	if !cfg.Enabled {
		return next
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &BreakerPublisher{next: next, breaker: newCircuitBreaker(cfg), logger: logger}
}

func (p *BreakerPublisher) Publish(ctx context.Context, msg notification.Message) (notification.Receipt, error) {
	if !p.breaker.allow() {
		p.logger.WarnContext(ctx, "queue circuit breaker rejected publish",
			"fixture_id", msg.FixtureID,
			"state", string(p.breaker.currentState()),
		)
		err := crerr.Wrapf(ErrCircuitOpen, "skip fixture %d", msg.FixtureID)
		return notification.Receipt{}, crerr.Mark(err, usecase.ErrDependencyUnavailable)
	}

	receipt, err := p.next.Publish(ctx, msg)
	if err != nil && IsTransient(err) {
		p.breaker.recordFailure()
		return receipt, err
	}
	// A permanent rejection still proves the broker is reachable.
	p.breaker.recordSuccess()
	return receipt, err
}

func (p *BreakerPublisher) Close() error {
	return p.next.Close()
}
