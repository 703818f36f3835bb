package sqs

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awssqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"go.uber.org/zap"
)

// MessageHandler processes one message body. A nil return acknowledges the
// message (success or permanent failure already routed to the DLQ); a
// non-nil return leaves the message for the queue's redelivery policy.
type MessageHandler func(ctx context.Context, body []byte, receiveCount int) error

// API is the slice of the SQS client the consumer needs; tests provide a
// fake behind it.
type API interface {
	ReceiveMessage(ctx context.Context, in *awssqs.ReceiveMessageInput, optFns ...func(*awssqs.Options)) (*awssqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *awssqs.DeleteMessageInput, optFns ...func(*awssqs.Options)) (*awssqs.DeleteMessageOutput, error)
	ChangeMessageVisibility(ctx context.Context, in *awssqs.ChangeMessageVisibilityInput, optFns ...func(*awssqs.Options)) (*awssqs.ChangeMessageVisibilityOutput, error)
	SendMessage(ctx context.Context, in *awssqs.SendMessageInput, optFns ...func(*awssqs.Options)) (*awssqs.SendMessageOutput, error)
}

type ConsumerConfig struct {
	QueueURL        string
	WaitSeconds     int32
	VisibilitySecs  int32
	Heartbeat       time.Duration
	MaxJobDuration  time.Duration
	MaxReceiveCount int
}

// Consumer runs the poll loop: one message at a time, long poll, visibility
// heartbeat while the handler runs, delete only on acknowledgment. The
// queue's redrive policy is authoritative for dead-lettering; the receive
// count guard below mirrors it so a worker never reprocesses a message the
// policy already gave up on.
type Consumer struct {
	client  API
	dlq     *DLQPublisher
	cfg     ConsumerConfig
	handler MessageHandler
	logger  *zap.Logger
}

func NewConsumer(client API, dlq *DLQPublisher, cfg ConsumerConfig, handler MessageHandler, logger *zap.Logger) *Consumer {
	return &Consumer{client: client, dlq: dlq, cfg: cfg, handler: handler, logger: logger}
}

func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started", zap.String("queue", c.cfg.QueueURL))

	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("consumer shutting down")
			return nil
		default:
		}

		out, err := c.client.ReceiveMessage(ctx, &awssqs.ReceiveMessageInput{
			QueueUrl:              aws.String(c.cfg.QueueURL),
			MaxNumberOfMessages:   1,
			WaitTimeSeconds:       c.cfg.WaitSeconds,
			VisibilityTimeout:     c.cfg.VisibilitySecs,
			MessageSystemAttributeNames: []types.MessageSystemAttributeName{
				types.MessageSystemAttributeNameApproximateReceiveCount,
			},
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("receive failed", zap.Error(err), zap.Duration("backoff", backoff))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		if len(out.Messages) == 0 {
			continue
		}
		c.processMessage(ctx, out.Messages[0])
	}
}

func (c *Consumer) processMessage(ctx context.Context, msg types.Message) {
	receiveCount := receiveCountOf(msg)
	log := c.logger.With(
		zap.String("message_id", aws.ToString(msg.MessageId)),
		zap.Int("receive_count", receiveCount),
	)

	if c.cfg.MaxReceiveCount > 0 && receiveCount > c.cfg.MaxReceiveCount {
		log.Warn("receive count exceeded, routing to DLQ without reprocessing")
		if err := c.dlq.PublishToDLQ(ctx, []byte(aws.ToString(msg.Body)),
			fmt.Sprintf("max receive count %d exceeded", c.cfg.MaxReceiveCount)); err != nil {
			log.Error("DLQ publish failed", zap.Error(err))
			return
		}
		c.delete(ctx, msg, log)
		return
	}

	jobCtx := ctx
	if c.cfg.MaxJobDuration > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, c.cfg.MaxJobDuration)
		defer cancel()
	}

	stopHeartbeat := c.startHeartbeat(jobCtx, msg, log)
	err := c.handler(jobCtx, []byte(aws.ToString(msg.Body)), receiveCount)
	stopHeartbeat()

	if err != nil {
		// Not deleted: the message becomes visible again after the
		// timeout and the redrive policy counts the receive.
		log.Warn("processing failed, leaving message for redelivery", zap.Error(err))
		return
	}
	c.delete(ctx, msg, log)
}

// startHeartbeat extends the visibility timeout on a fixed cadence so a
// long rotoscoping job is not redelivered as stuck while still running.
// The returned stop function blocks until the extension goroutine is gone.
func (c *Consumer) startHeartbeat(ctx context.Context, msg types.Message, log *zap.Logger) func() {
	done := make(chan struct{})
	stopped := make(chan struct{})

	go func() {
		defer close(stopped)
		ticker := time.NewTicker(c.cfg.Heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				_, err := c.client.ChangeMessageVisibility(ctx, &awssqs.ChangeMessageVisibilityInput{
					QueueUrl:          aws.String(c.cfg.QueueURL),
					ReceiptHandle:     msg.ReceiptHandle,
					VisibilityTimeout: c.cfg.VisibilitySecs,
				})
				if err != nil {
					log.Warn("visibility extension failed", zap.Error(err))
				}
			}
		}
	}()

	return func() {
		close(done)
		<-stopped
	}
}

func (c *Consumer) delete(ctx context.Context, msg types.Message, log *zap.Logger) {
	_, err := c.client.DeleteMessage(ctx, &awssqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.cfg.QueueURL),
		ReceiptHandle: msg.ReceiptHandle,
	})
	if err != nil {
		// The destination object is already written; redelivery will
		// reprocess and overwrite the same deterministic key.
		log.Error("delete failed, message will be redelivered", zap.Error(err))
	}
}

func receiveCountOf(msg types.Message) int {
	v, ok := msg.Attributes[string(types.MessageSystemAttributeNameApproximateReceiveCount)]
	if !ok {
		return 1
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 1
	}
	return n
}
