package jobqueue

import (
	"context"
	"strings"
	"time"

	crerr "github.com/cockroachdb/errors"

	"github.com/House-of-Events/Annabeth/internal/domain/notification"
	"github.com/House-of-Events/Annabeth/internal/platform/logging"
)

const (
	DriverSQS    = "sqs"
	DriverQStash = "qstash"
	DriverKafka  = "kafka"
	DriverLog    = "log"
)

type Options struct {
	Driver         string
	SQS            SQSPublisherConfig
	QStash         QStashPublisherConfig
	Kafka          KafkaPublisherConfig
	Breaker        BreakerConfig
	PublishTimeout time.Duration
}

// New builds the publisher for opts.Driver, wrapped in the circuit breaker
// when it is enabled.
func New(ctx context.Context, opts Options, logger *logging.Logger) (notification.Publisher, error) {
	if logger == nil {
		logger = logging.Default()
	}
	logger = logger.With("queue_driver", opts.Driver)

	var (
		publisher notification.Publisher
		err       error
	)
	switch strings.ToLower(strings.TrimSpace(opts.Driver)) {
	case DriverSQS:
		publisher, err = NewSQSPublisher(ctx, opts.SQS, logger)
	case DriverQStash:
		qstashCfg := opts.QStash
		if qstashCfg.Timeout <= 0 {
			qstashCfg.Timeout = opts.PublishTimeout
		}
		publisher, err = NewQStashPublisher(qstashCfg, logger)
	case DriverKafka:
		publisher, err = NewKafkaPublisher(opts.Kafka, logger)
	case DriverLog, "":
		publisher = NewLogPublisher(logger)
	default:
		return nil, crerr.Newf("unsupported queue driver %q", opts.Driver)
	}
	if err != nil {
		return nil, crerr.Wrapf(err, "create %s publisher", opts.Driver)
	}

	return WithCircuitBreaker(publisher, opts.Breaker, logger), nil
}
