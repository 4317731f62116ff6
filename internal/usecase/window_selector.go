package usecase

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel/attribute"

	"github.com/House-of-Events/Annabeth/internal/domain/fixture"
	"github.com/House-of-Events/Annabeth/internal/platform/logging"
)

// WindowSelector reads the fixtures due for dispatch in [now, now+horizon].
type WindowSelector struct {
	repo   fixture.Repository
	logger *logging.Logger
}

func NewWindowSelector(repo fixture.Repository, logger *logging.Logger) *WindowSelector {
	if logger == nil {
		logger = logging.Default()
	}
	return &WindowSelector{repo: repo, logger: logger}
}

func (s *WindowSelector) Select(ctx context.Context, now time.Time, horizon time.Duration) (fixture.Window, []fixture.Fixture, error) {
	if horizon <= 0 {
		return fixture.Window{}, nil, errors.Wrapf(ErrInvalidInput, "horizon must be > 0, got %s", horizon)
	}

	window := fixture.NewWindow(now, horizon)
	ctx, span := startUsecaseSpan(ctx, "usecase.WindowSelector.Select",
		attribute.String("window.from", window.From.Format(time.RFC3339)),
		attribute.String("window.to", window.To.Format(time.RFC3339)),
	)

	items, err := s.repo.ListDue(ctx, window)
	if err != nil {
		err = errors.Mark(errors.Wrap(err, "list due fixtures"), ErrSelectFixtures)
		endSpan(span, err)
		return window, nil, err
	}
	span.SetAttributes(attribute.Int("fixtures.selected", len(items)))
	endSpan(span, nil)

	if len(items) == 0 {
		s.logger.InfoContext(ctx, "no fixtures due in window",
			"window_from", window.From,
			"window_to", window.To,
		)
		return window, items, nil
	}

	s.logger.InfoContext(ctx, "fixtures due in window",
		"window_from", window.From,
		"window_to", window.To,
		"count", len(items),
		"by_sport", fixture.CountBySport(items),
	)
	return window, items, nil
}
