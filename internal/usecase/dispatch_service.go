package usecase

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel/attribute"

	"github.com/House-of-Events/Annabeth/internal/domain/fixture"
	"github.com/House-of-Events/Annabeth/internal/domain/notification"
	"github.com/House-of-Events/Annabeth/internal/platform/id"
	"github.com/House-of-Events/Annabeth/internal/platform/logging"
)

const defaultHorizon = time.Hour

type DispatchServiceConfig struct {
	Horizon        time.Duration
	MaxConcurrency int
	PublishTimeout time.Duration
	MarkTimeout    time.Duration
	InformLead     time.Duration
}

type RunOptions struct {
	// Horizon overrides the configured horizon when > 0.
	Horizon time.Duration
	// DryRun selects only; nothing is published or marked.
	DryRun bool
}

// DueFixture is the dry-run view of a selected fixture.
type DueFixture struct {
	FixtureID int64     `json:"fixture_id"`
	SportType string    `json:"sport_type"`
	MatchID   string    `json:"match_id"`
	DateTime  time.Time `json:"date_time"`
}

type RunSummary struct {
	RunID       string            `json:"run_id"`
	WindowStart time.Time         `json:"window_start"`
	WindowEnd   time.Time         `json:"window_end"`
	DryRun      bool              `json:"dry_run,omitempty"`
	Selected    int               `json:"selected"`
	BySport     map[string]int    `json:"by_sport,omitempty"`
	Successful  int               `json:"successful"`
	Failed      int               `json:"failed"`
	Marked      int64             `json:"marked"`
	Failures    []DispatchFailure `json:"failures"`
	Due         []DueFixture      `json:"due,omitempty"`
	DurationMs  int64             `json:"duration_ms"`
}

// DispatchService runs Select -> Dispatch -> Mark strictly in sequence.
type DispatchService struct {
	selector   *WindowSelector
	dispatcher *Dispatcher
	marker     *CompletionMarker
	ids        id.Generator
	clock      func() time.Time
	cfg        DispatchServiceConfig
	logger     *logging.Logger
}

type DispatchServiceOption func(*DispatchService)

func WithClock(clock func() time.Time) DispatchServiceOption {
	return func(s *DispatchService) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func WithIDGenerator(gen id.Generator) DispatchServiceOption {
	return func(s *DispatchService) {
		if gen != nil {
			s.ids = gen
		}
	}
}

func NewDispatchService(
	repo fixture.Repository,
	publisher notification.Publisher,
	cfg DispatchServiceConfig,
	logger *logging.Logger,
	opts ...DispatchServiceOption,
) *DispatchService {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.Horizon <= 0 {
		cfg.Horizon = defaultHorizon
	}

	s := &DispatchService{
		selector: NewWindowSelector(repo, logger),
		dispatcher: NewDispatcher(publisher, DispatcherConfig{
			MaxConcurrency: cfg.MaxConcurrency,
			PublishTimeout: cfg.PublishTimeout,
			InformLead:     cfg.InformLead,
		}, logger),
		marker: NewCompletionMarker(repo, logger),
		ids:    id.NewUUIDGenerator(),
		clock:  time.Now,
		cfg:    cfg,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run executes one pipeline invocation. Per-fixture publish failures only
// show up in the summary; a returned error means selection or marking failed.
// On a marking failure the summary is still returned alongside the error.
func (s *DispatchService) Run(ctx context.Context, opts RunOptions) (RunSummary, error) {
	startedAt := time.Now()
	runAt := s.clock().UTC()
	horizon := s.cfg.Horizon
	if opts.Horizon > 0 {
		horizon = opts.Horizon
	}

	runID, err := s.ids.NewID()
	if err != nil {
		runID = runAt.Format("20060102T150405.000000000Z")
		s.logger.WarnContext(ctx, "generate run id failed, using timestamp", "run_id", runID, "error", err)
	}
	logger := s.logger.With("run_id", runID)

	ctx, span := startRunSpan(ctx, "usecase.DispatchService.Run",
		attribute.String("run.id", runID),
		attribute.Bool("run.dry_run", opts.DryRun),
	)
	defer span.End()

	summary := RunSummary{
		RunID:    runID,
		DryRun:   opts.DryRun,
		Failures: []DispatchFailure{},
	}

	window, items, err := s.selector.Select(ctx, runAt, horizon)
	summary.WindowStart, summary.WindowEnd = window.From, window.To
	if err != nil {
		span.RecordError(err)
		return s.finish(summary, startedAt), err
	}
	summary.Selected = len(items)
	if len(items) > 0 {
		summary.BySport = fixture.CountBySport(items)
	}

	if opts.DryRun {
		summary.Due = make([]DueFixture, 0, len(items))
		for _, item := range items {
			summary.Due = append(summary.Due, DueFixture{
				FixtureID: item.ID,
				SportType: item.SportType,
				MatchID:   item.MatchID,
				DateTime:  item.DateTime.UTC(),
			})
		}
		return s.finish(summary, startedAt), nil
	}
	if len(items) == 0 {
		return s.finish(summary, startedAt), nil
	}

	result, err := s.dispatcher.Dispatch(ctx, runID, items, runAt)
	if err != nil {
		span.RecordError(err)
		return s.finish(summary, startedAt), errors.Wrap(err, "dispatch fixtures")
	}
	summary.Successful = result.Successful
	summary.Failed = result.Failed
	summary.Failures = result.Failures

	delivered := result.DeliveredIDs()
	if len(delivered) > 0 {
		// Published messages cannot be recalled, so marking must not be cut
		// short by a cancellation that arrived during dispatch.
		markCtx := context.WithoutCancel(ctx)
		if s.cfg.MarkTimeout > 0 {
			var cancel context.CancelFunc
			markCtx, cancel = context.WithTimeout(markCtx, s.cfg.MarkTimeout)
			defer cancel()
		}

		marked, err := s.marker.Mark(markCtx, delivered, s.clock().UTC())
		if err != nil {
			span.RecordError(err)
			logger.ErrorContext(ctx, "fixtures dispatched but not marked processed",
				"fixture_ids", delivered,
				"error", err,
			)
			return s.finish(summary, startedAt), err
		}
		summary.Marked = marked
	}

	summary = s.finish(summary, startedAt)
	logger.InfoContext(ctx, "dispatch run completed",
		"selected", summary.Selected,
		"successful", summary.Successful,
		"failed", summary.Failed,
		"marked", summary.Marked,
		"duration_ms", summary.DurationMs,
	)
	return summary, nil
}

func (s *DispatchService) finish(summary RunSummary, startedAt time.Time) RunSummary {
	summary.DurationMs = time.Since(startedAt).Milliseconds()
	return summary
}
