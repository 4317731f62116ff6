package usecase

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel/attribute"

	"github.com/House-of-Events/Annabeth/internal/domain/fixture"
	"github.com/House-of-Events/Annabeth/internal/platform/logging"
)

// CompletionMarker flags delivered fixtures as processed in one bulk write.
type CompletionMarker struct {
	repo   fixture.Repository
	logger *logging.Logger
}

func NewCompletionMarker(repo fixture.Repository, logger *logging.Logger) *CompletionMarker {
	if logger == nil {
		logger = logging.Default()
	}
	return &CompletionMarker{repo: repo, logger: logger}
}

// Mark must only receive ids whose publish succeeded.
func (m *CompletionMarker) Mark(ctx context.Context, ids []int64, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	ctx, span := startUsecaseSpan(ctx, "usecase.CompletionMarker.Mark", attribute.Int("fixtures.delivered", len(ids)))
	affected, err := m.repo.MarkProcessed(ctx, ids, at.UTC())
	if err != nil {
		err = errors.Mark(errors.Wrapf(err, "mark %d fixtures processed", len(ids)), ErrMarkFixtures)
		endSpan(span, err)
		return 0, err
	}
	span.SetAttributes(attribute.Int64("fixtures.marked", affected))
	endSpan(span, nil)

	if affected != int64(len(ids)) {
		// Rows already processed by an overlapping run, or deleted meanwhile.
		m.logger.WarnContext(ctx, "marked fewer fixtures than delivered",
			"delivered", len(ids),
			"marked", affected,
		)
	}
	return affected, nil
}
