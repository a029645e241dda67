// Package feed pulls marketplace offer-change notifications into the
// processing pipeline. The SQS consumer long-polls the ANY_OFFER_CHANGED
// queue and settles each message against the outcome the pipeline reports.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/l3acucm/urepricer/internal/breaker"
	"github.com/l3acucm/urepricer/internal/domain"
	"github.com/l3acucm/urepricer/internal/notify"
	"github.com/l3acucm/urepricer/internal/pipeline"
)

// SQSConfig holds the queue connection and polling parameters.
type SQSConfig struct {
	// QueueURL is the full URL of the offer-changed queue.
	QueueURL string

	// Region is the AWS region the queue lives in.
	Region string

	// Endpoint overrides the SQS endpoint for LocalStack and compatible
	// stand-ins. Leave empty for AWS.
	Endpoint string

	// AccessKey and SecretKey configure static credentials. Leave empty to
	// use the default provider chain.
	AccessKey string
	SecretKey string

	// BatchSize is the receive batch, capped by SQS at 10.
	BatchSize int32

	// WaitTime is the long-poll duration per receive call.
	WaitTime time.Duration

	// VisibilityTimeout hides received messages from other consumers until
	// the outcome is known. Must exceed worst-case processing time.
	VisibilityTimeout time.Duration

	// MaxReceive mirrors the queue's redrive policy: a message failing at
	// this receive count moves to the DLQ, so the consumer alerts on it.
	MaxReceive int
}

func (c SQSConfig) withDefaults() SQSConfig {
	if c.BatchSize <= 0 || c.BatchSize > 10 {
		c.BatchSize = 10
	}
	if c.WaitTime <= 0 {
		c.WaitTime = 20 * time.Second
	}
	if c.VisibilityTimeout <= 0 {
		c.VisibilityTimeout = 5 * time.Minute
	}
	if c.MaxReceive <= 0 {
		c.MaxReceive = 3
	}
	return c
}

// Sink is where received messages go. Satisfied by pipeline.Orchestrator.
type Sink interface {
	Submit(ev pipeline.RawEvent) error
	Depth() int
	Capacity() int
}

// SQSFeed long-polls one queue and submits each message to the sink. The
// pipeline's outcome decides the message's fate: ok and skip delete it,
// retry leaves it for visibility-timeout redelivery.
type SQSFeed struct {
	client   *sqs.Client
	cfg      SQSConfig
	sink     Sink
	brk      *breaker.Breaker
	stats    *pipeline.Stats
	notifier *notify.Notifier
	logger   *slog.Logger
}

// NewSQSFeed builds the SQS client and consumer. brk and notifier may be
// nil.
func NewSQSFeed(
	ctx context.Context,
	cfg SQSConfig,
	sink Sink,
	brk *breaker.Breaker,
	stats *pipeline.Stats,
	notifier *notify.Notifier,
	logger *slog.Logger,
) (*SQSFeed, error) {
	cfg = cfg.withDefaults()
	if cfg.QueueURL == "" {
		return nil, fmt.Errorf("sqs: queue url is required")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("sqs: region is required")
	}

	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("sqs: load aws config: %w", err)
	}

	client := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return &SQSFeed{
		client:   client,
		cfg:      cfg,
		sink:     sink,
		brk:      brk,
		stats:    stats,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "sqs_feed")),
	}, nil
}

// Run polls until ctx is cancelled. Five consecutive empty polls start a
// backoff of min(empties*2, 30) seconds; polling pauses while the breaker is
// open or the sink cannot take a full batch.
func (f *SQSFeed) Run(ctx context.Context) error {
	f.logger.Info("sqs feed started",
		slog.String("queue_url", f.cfg.QueueURL),
		slog.Int("batch_size", int(f.cfg.BatchSize)),
		slog.Duration("wait_time", f.cfg.WaitTime),
	)
	defer f.logger.Info("sqs feed stopped")

	empties := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if f.paused() {
			if !sleep(ctx, time.Second) {
				return ctx.Err()
			}
			continue
		}

		out, err := f.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(f.cfg.QueueURL),
			MaxNumberOfMessages: f.cfg.BatchSize,
			WaitTimeSeconds:     int32(f.cfg.WaitTime / time.Second),
			VisibilityTimeout:   int32(f.cfg.VisibilityTimeout / time.Second),
			MessageSystemAttributeNames: []types.MessageSystemAttributeName{
				types.MessageSystemAttributeNameApproximateReceiveCount,
			},
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			f.logger.Warn("receive failed", slog.String("error", err.Error()))
			if !sleep(ctx, 5*time.Second) {
				return ctx.Err()
			}
			continue
		}

		if len(out.Messages) == 0 {
			empties++
			if empties >= 5 {
				backoff := time.Duration(min(empties*2, 30)) * time.Second
				f.logger.Debug("queue idle, backing off", slog.Duration("backoff", backoff))
				if !sleep(ctx, backoff) {
					return ctx.Err()
				}
			}
			continue
		}
		empties = 0

		for _, msg := range out.Messages {
			f.dispatch(msg)
		}
	}
}

// paused reports whether polling should hold off: breaker open, or the sink
// lacks room for a full batch.
func (f *SQSFeed) paused() bool {
	if f.brk != nil && f.brk.State() == breaker.StateOpen {
		return true
	}
	return f.sink.Capacity()-f.sink.Depth() < int(f.cfg.BatchSize)
}

// dispatch hands one message to the sink. A full sink drops the message
// unacked; its visibility timeout redelivers it.
func (f *SQSFeed) dispatch(msg types.Message) {
	id := aws.ToString(msg.MessageId)
	handle := aws.ToString(msg.ReceiptHandle)
	receiveCount := receiveCount(msg)

	ev := pipeline.RawEvent{
		ID:         id,
		Source:     domain.SourceAmazon,
		Body:       []byte(aws.ToString(msg.Body)),
		ReceivedAt: time.Now().UTC(),
		Done: func(outcome domain.Outcome) {
			f.settle(id, handle, receiveCount, outcome)
		},
	}
	if err := f.sink.Submit(ev); err != nil {
		f.logger.Debug("event stream full, leaving message for redelivery",
			slog.String("message_id", id),
		)
	}
}

// settle deletes the message on ok/skip. Retry leaves it; when its receive
// count has hit the redrive limit the next delivery goes to the DLQ, which
// is worth an alert.
func (f *SQSFeed) settle(id, handle string, receiveCount int, outcome domain.Outcome) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if outcome == domain.OutcomeRetry {
		f.logger.Info("message left for redelivery",
			slog.String("message_id", id),
			slog.Int("receive_count", receiveCount),
		)
		if receiveCount >= f.cfg.MaxReceive {
			f.stats.RecordDLQ()
			f.logger.Warn("message exhausted its redeliveries, moving to DLQ",
				slog.String("message_id", id),
				slog.Int("receive_count", receiveCount),
			)
			if f.notifier != nil {
				_ = f.notifier.Notify(ctx, notify.EventDLQ,
					"Repricer message dead-lettered",
					fmt.Sprintf("Message %s failed %d deliveries and is bound for the DLQ.", id, receiveCount),
				)
			}
		}
		return
	}

	_, err := f.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(f.cfg.QueueURL),
		ReceiptHandle: aws.String(handle),
	})
	if err != nil {
		// Redelivery produces a duplicate; downstream writes are idempotent
		// per (seller, sku).
		f.logger.Warn("delete failed", slog.String("message_id", id), slog.String("error", err.Error()))
	}
}

func receiveCount(msg types.Message) int {
	raw, ok := msg.Attributes[string(types.MessageSystemAttributeNameApproximateReceiveCount)]
	if !ok {
		return 1
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// sleep waits d or until ctx ends, reporting false on cancellation.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
