package jobqueue

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/aws/smithy-go"
	crerr "github.com/cockroachdb/errors"

	"github.com/House-of-Events/Annabeth/internal/domain/notification"
	"github.com/House-of-Events/Annabeth/internal/platform/logging"
)

type SQSPublisherConfig struct {
	QueueURL        string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

type sqsSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSPublisher sends one SQS message per fixture. FIFO queues are grouped by
// sport so each sport keeps its own ordering.
type SQSPublisher struct {
	client   sqsSender
	queueURL string
	fifo     bool
	logger   *logging.Logger
}

func NewSQSPublisher(ctx context.Context, cfg SQSPublisherConfig, logger *logging.Logger) (*SQSPublisher, error) {
	if strings.TrimSpace(cfg.QueueURL) == "" {
		return nil, crerr.New("sqs queue url is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, crerr.Wrap(err, "load aws config")
	}

	client := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return newSQSPublisher(client, cfg.QueueURL, logger), nil
}

func newSQSPublisher(client sqsSender, queueURL string, logger *logging.Logger) *SQSPublisher {
	if logger == nil {
		logger = logging.Default()
	}
	queueURL = strings.TrimSpace(queueURL)
	return &SQSPublisher{
		client:   client,
		queueURL: queueURL,
		fifo:     strings.HasSuffix(queueURL, ".fifo"),
		logger:   logger,
	}
}

func (p *SQSPublisher) Publish(ctx context.Context, msg notification.Message) (notification.Receipt, error) {
	body, err := encodeMessage(msg)
	if err != nil {
		return notification.Receipt{}, err
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"sport_type": stringAttribute(msg.SportType),
			"match_id":   stringAttribute(msg.MatchID),
		},
	}
	if msg.RunID != "" {
		input.MessageAttributes["run_id"] = stringAttribute(msg.RunID)
	}
	if p.fifo {
		input.MessageGroupId = aws.String(msg.SportType)
		input.MessageDeduplicationId = aws.String(msg.DedupKey())
	}

	out, err := p.client.SendMessage(ctx, input)
	if err != nil {
		return notification.Receipt{}, classifySQSError(crerr.Wrapf(err, "send sqs message fixture_id=%d", msg.FixtureID))
	}

	p.logger.DebugContext(ctx, "sqs message sent",
		"fixture_id", msg.FixtureID,
		"message_id", aws.ToString(out.MessageId),
	)
	return notification.Receipt{MessageID: aws.ToString(out.MessageId)}, nil
}

func (p *SQSPublisher) Close() error {
	return nil
}

func stringAttribute(value string) types.MessageAttributeValue {
	return types.MessageAttributeValue{
		DataType:    aws.String("String"),
		StringValue: aws.String(value),
	}
}

// Client faults are permanent except throttling; everything else is transient.
func classifySQSError(err error) error {
	var apiErr smithy.APIError
	if crerr.As(err, &apiErr) && apiErr.ErrorFault() == smithy.FaultClient {
		if strings.Contains(apiErr.ErrorCode(), "Throttl") {
			return markTransient(err)
		}
		return err
	}
	return markTransient(err)
}
