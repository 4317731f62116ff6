package jobqueue

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"
	crerr "github.com/cockroachdb/errors"

	"github.com/House-of-Events/Annabeth/internal/domain/notification"
	"github.com/House-of-Events/Annabeth/internal/platform/logging"
)

type KafkaPublisherConfig struct {
	Brokers  []string
	Topic    string
	ClientID string
}

// KafkaPublisher produces one record per fixture keyed by its dedup key, so
// redeliveries of a fixture land on the same partition.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	logger   *logging.Logger
}

func NewKafkaPublisher(cfg KafkaPublisherConfig, logger *logging.Logger) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, crerr.New("kafka brokers are required")
	}

	producer, err := sarama.NewSyncProducer(cfg.Brokers, newSaramaConfig(cfg.ClientID))
	if err != nil {
		return nil, crerr.Wrap(err, "create kafka producer")
	}
	return newKafkaPublisher(producer, cfg.Topic, logger), nil
}

func newSaramaConfig(clientID string) *sarama.Config {
	sc := sarama.NewConfig()
	if clientID != "" {
		sc.ClientID = clientID
	}
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true
	sc.Producer.Retry.Max = 3
	return sc
}

func newKafkaPublisher(producer sarama.SyncProducer, topic string, logger *logging.Logger) *KafkaPublisher {
	if logger == nil {
		logger = logging.Default()
	}
	return &KafkaPublisher{producer: producer, topic: topic, logger: logger}
}

type kafkaSendResult struct {
	partition int32
	offset    int64
	err       error
}

func (p *KafkaPublisher) Publish(ctx context.Context, msg notification.Message) (notification.Receipt, error) {
	body, err := encodeMessage(msg)
	if err != nil {
		return notification.Receipt{}, err
	}
	if err := contextError(ctx, "publish kafka message"); err != nil {
		return notification.Receipt{}, err
	}

	record := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(msg.DedupKey()),
		Value: sarama.ByteEncoder(body),
		Headers: []sarama.RecordHeader{
			{Key: []byte("sport_type"), Value: []byte(msg.SportType)},
			{Key: []byte("run_id"), Value: []byte(msg.RunID)},
		},
		Timestamp: msg.DispatchedAt,
	}

	// SyncProducer has no context; the record may still land after we give up,
	// which a later run turns into a duplicate rather than a loss.
	done := make(chan kafkaSendResult, 1)
	go func() {
		partition, offset, err := p.producer.SendMessage(record)
		done <- kafkaSendResult{partition: partition, offset: offset, err: err}
	}()

	select {
	case <-ctx.Done():
		return notification.Receipt{}, contextError(ctx, "publish kafka message")
	case res := <-done:
		if res.err != nil {
			return notification.Receipt{}, classifyKafkaError(crerr.Wrapf(res.err, "publish kafka message fixture_id=%d", msg.FixtureID))
		}
		p.logger.DebugContext(ctx, "kafka record produced",
			"fixture_id", msg.FixtureID,
			"partition", res.partition,
			"offset", res.offset,
		)
		return notification.Receipt{MessageID: fmt.Sprintf("%s/%d/%d", p.topic, res.partition, res.offset)}, nil
	}
}

func (p *KafkaPublisher) Close() error {
	if err := p.producer.Close(); err != nil {
		return crerr.Wrap(err, "close kafka producer")
	}
	return nil
}

func classifyKafkaError(err error) error {
	switch {
	case crerr.Is(err, sarama.ErrMessageSizeTooLarge),
		crerr.Is(err, sarama.ErrInvalidMessage),
		crerr.Is(err, sarama.ErrUnknownTopicOrPartition):
		return err
	default:
		return markTransient(err)
	}
}
