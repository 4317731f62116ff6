package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/panjf2000/ants/v2"
	"github.com/sourcegraph/conc/panics"
	"go.opentelemetry.io/otel/attribute"

	"github.com/House-of-Events/Annabeth/internal/domain/fixture"
	"github.com/House-of-Events/Annabeth/internal/domain/notification"
	"github.com/House-of-Events/Annabeth/internal/platform/logging"
)

type DispatcherConfig struct {
	MaxConcurrency int
	PublishTimeout time.Duration
	InformLead     time.Duration
}

// DispatchFailure is one fixture the queue did not accept.
type DispatchFailure struct {
	FixtureID int64  `json:"fixture_id"`
	SportType string `json:"sport_type"`
	Error     string `json:"error"`
}

// DispatchResult folds the per-fixture outcomes of one run in selection order.
type DispatchResult struct {
	Delivered  []fixture.Fixture
	Successful int
	Failed     int
	Failures   []DispatchFailure
}

func (r DispatchResult) DeliveredIDs() []int64 {
	return fixture.IDs(r.Delivered)
}

// Dispatcher publishes one message per fixture. A failing fixture never stops
// the others from being published.
type Dispatcher struct {
	publisher notification.Publisher
	cfg       DispatcherConfig
	logger    *logging.Logger
}

type publishOutcome struct {
	receipt notification.Receipt
	err     error
}

func NewDispatcher(publisher notification.Publisher, cfg DispatcherConfig, logger *logging.Logger) *Dispatcher {
	if cfg.MaxConcurrency < 1 {
		cfg.MaxConcurrency = 1
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Dispatcher{publisher: publisher, cfg: cfg, logger: logger}
}

func (d *Dispatcher) Dispatch(ctx context.Context, runID string, items []fixture.Fixture, dispatchedAt time.Time) (DispatchResult, error) {
	if len(items) == 0 {
		return DispatchResult{}, nil
	}

	ctx, span := startUsecaseSpan(ctx, "usecase.Dispatcher.Dispatch",
		attribute.String("run.id", runID),
		attribute.Int("fixtures.selected", len(items)),
	)
	defer span.End()

	workerCount := min(d.cfg.MaxConcurrency, len(items))
	pool, err := ants.NewPool(workerCount)
	if err != nil {
		return DispatchResult{}, errors.Wrap(err, "create dispatch worker pool")
	}
	defer pool.Release()

	// One slot per fixture; tasks never share a slot.
	outcomes := make([]publishOutcome, len(items))

	var workers sync.WaitGroup
	for i := range items {
		workers.Add(1)
		if err := pool.Submit(func() {
			defer workers.Done()

			var catcher panics.Catcher
			catcher.Try(func() {
				outcomes[i] = d.publishOne(ctx, runID, items[i], dispatchedAt)
			})
			if recovered := catcher.Recovered(); recovered != nil {
				outcomes[i] = publishOutcome{err: errors.Wrap(recovered.AsError(), "publish panicked")}
			}
		}); err != nil {
			workers.Done()
			outcomes[i] = publishOutcome{err: errors.Wrap(err, "submit publish task")}
		}
	}
	workers.Wait()

	result := d.fold(ctx, items, outcomes)
	span.SetAttributes(
		attribute.Int("fixtures.successful", result.Successful),
		attribute.Int("fixtures.failed", result.Failed),
	)
	return result, nil
}

func (d *Dispatcher) publishOne(ctx context.Context, runID string, item fixture.Fixture, dispatchedAt time.Time) publishOutcome {
	msg := notification.NewMessage(item, runID, dispatchedAt, d.cfg.InformLead)
	if err := msg.Validate(); err != nil {
		return publishOutcome{err: errors.Mark(errors.Wrap(err, "invalid message"), ErrInvalidInput)}
	}
	if err := ctx.Err(); err != nil {
		return publishOutcome{err: errors.Wrap(err, "publish not attempted")}
	}

	publishCtx := ctx
	if d.cfg.PublishTimeout > 0 {
		var cancel context.CancelFunc
		publishCtx, cancel = context.WithTimeout(ctx, d.cfg.PublishTimeout)
		defer cancel()
	}

	receipt, err := d.publisher.Publish(publishCtx, msg)
	if err != nil {
		return publishOutcome{err: errors.Wrap(err, "publish message")}
	}
	return publishOutcome{receipt: receipt}
}

func (d *Dispatcher) fold(ctx context.Context, items []fixture.Fixture, outcomes []publishOutcome) DispatchResult {
	result := DispatchResult{
		Delivered: make([]fixture.Fixture, 0, len(items)),
		Failures:  make([]DispatchFailure, 0),
	}
	for i, outcome := range outcomes {
		item := items[i]
		if outcome.err != nil {
			result.Failed++
			result.Failures = append(result.Failures, DispatchFailure{
				FixtureID: item.ID,
				SportType: item.SportType,
				Error:     outcome.err.Error(),
			})
			d.logger.WarnContext(ctx, "dispatch fixture failed",
				"fixture_id", item.ID,
				"sport_type", item.SportType,
				"match_id", item.MatchID,
				"error", outcome.err,
			)
			continue
		}

		result.Successful++
		result.Delivered = append(result.Delivered, item)
		d.logger.DebugContext(ctx, "fixture dispatched",
			"fixture_id", item.ID,
			"sport_type", item.SportType,
			"message_id", outcome.receipt.MessageID,
		)
	}
	return result
}
