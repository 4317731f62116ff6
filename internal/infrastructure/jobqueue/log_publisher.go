package jobqueue

import (
	"context"

	"github.com/House-of-Events/Annabeth/internal/domain/notification"
	"github.com/House-of-Events/Annabeth/internal/platform/logging"
)

// LogPublisher writes messages to the log instead of a broker. It is the
// local development default.
type LogPublisher struct {
	logger *logging.Logger
}

func NewLogPublisher(logger *logging.Logger) *LogPublisher {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, msg notification.Message) (notification.Receipt, error) {
	if err := contextError(ctx, "log message"); err != nil {
		return notification.Receipt{}, err
	}
	body, err := encodeMessage(msg)
	if err != nil {
		return notification.Receipt{}, err
	}

	p.logger.InfoContext(ctx, "fixture message",
		"fixture_id", msg.FixtureID,
		"sport_type", msg.SportType,
		"dedup_key", msg.DedupKey(),
		"body", string(body),
	)
	return notification.Receipt{MessageID: msg.DedupKey()}, nil
}

func (p *LogPublisher) Close() error {
	return nil
}
