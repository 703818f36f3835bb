package sqs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awssqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSQS struct {
	mu sync.Mutex

	messages []types.Message

	deleted    []string
	sent       []*awssqs.SendMessageInput
	extensions int
	sendErr    error
}

func (f *fakeSQS) ReceiveMessage(ctx context.Context, in *awssqs.ReceiveMessageInput, _ ...func(*awssqs.Options)) (*awssqs.ReceiveMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.messages) == 0 {
		return &awssqs.ReceiveMessageOutput{}, nil
	}
	msg := f.messages[0]
	f.messages = f.messages[1:]
	return &awssqs.ReceiveMessageOutput{Messages: []types.Message{msg}}, nil
}

func (f *fakeSQS) DeleteMessage(ctx context.Context, in *awssqs.DeleteMessageInput, _ ...func(*awssqs.Options)) (*awssqs.DeleteMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, aws.ToString(in.ReceiptHandle))
	return &awssqs.DeleteMessageOutput{}, nil
}

func (f *fakeSQS) ChangeMessageVisibility(ctx context.Context, in *awssqs.ChangeMessageVisibilityInput, _ ...func(*awssqs.Options)) (*awssqs.ChangeMessageVisibilityOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.extensions++
	return &awssqs.ChangeMessageVisibilityOutput{}, nil
}

func (f *fakeSQS) SendMessage(ctx context.Context, in *awssqs.SendMessageInput, _ ...func(*awssqs.Options)) (*awssqs.SendMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sent = append(f.sent, in)
	return &awssqs.SendMessageOutput{}, nil
}

func (f *fakeSQS) deletedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.deleted)
}

func testMessage(body string, receiveCount string) types.Message {
	msg := types.Message{
		MessageId:     aws.String("msg-1"),
		ReceiptHandle: aws.String("rh-1"),
		Body:          aws.String(body),
	}
	if receiveCount != "" {
		msg.Attributes = map[string]string{
			string(types.MessageSystemAttributeNameApproximateReceiveCount): receiveCount,
		}
	}
	return msg
}

func testConsumer(client *fakeSQS, handler MessageHandler) *Consumer {
	return NewConsumer(client, NewDLQPublisher(client, "dlq-url"), ConsumerConfig{
		QueueURL:        "queue-url",
		WaitSeconds:     1,
		VisibilitySecs:  30,
		Heartbeat:       time.Hour,
		MaxReceiveCount: 3,
	}, handler, zap.NewNop())
}

func TestProcessMessageSuccessDeletes(t *testing.T) {
	client := &fakeSQS{}
	var handled []byte
	c := testConsumer(client, func(_ context.Context, body []byte, _ int) error {
		handled = body
		return nil
	})

	c.processMessage(context.Background(), testMessage(`{"k":1}`, "1"))

	assert.Equal(t, []byte(`{"k":1}`), handled)
	assert.Equal(t, []string{"rh-1"}, client.deleted)
	assert.Empty(t, client.sent)
}

func TestProcessMessageFailureLeavesMessage(t *testing.T) {
	client := &fakeSQS{}
	c := testConsumer(client, func(context.Context, []byte, int) error {
		return errors.New("transient trouble")
	})

	c.processMessage(context.Background(), testMessage("body", "2"))

	assert.Empty(t, client.deleted)
	assert.Empty(t, client.sent)
}

func TestProcessMessageMaxReceiveExceeded(t *testing.T) {
	client := &fakeSQS{}
	invoked := false
	c := testConsumer(client, func(context.Context, []byte, int) error {
		invoked = true
		return nil
	})

	c.processMessage(context.Background(), testMessage("poison", "4"))

	assert.False(t, invoked, "handler must not run for an exhausted message")
	require.Len(t, client.sent, 1)
	assert.Equal(t, "dlq-url", aws.ToString(client.sent[0].QueueUrl))
	assert.Equal(t, "poison", aws.ToString(client.sent[0].MessageBody))
	assert.Equal(t, []string{"rh-1"}, client.deleted)
}

func TestProcessMessageDLQPublishFailureKeepsMessage(t *testing.T) {
	client := &fakeSQS{sendErr: errors.New("dlq down")}
	c := testConsumer(client, func(context.Context, []byte, int) error { return nil })

	c.processMessage(context.Background(), testMessage("poison", "4"))

	// the message must survive until the DLQ accepts it
	assert.Empty(t, client.deleted)
}

func TestProcessMessageHandlerGetsReceiveCount(t *testing.T) {
	client := &fakeSQS{}
	var got int
	c := testConsumer(client, func(_ context.Context, _ []byte, receiveCount int) error {
		got = receiveCount
		return nil
	})

	c.processMessage(context.Background(), testMessage("body", "3"))
	assert.Equal(t, 3, got)

	// missing attribute defaults to first delivery
	c.processMessage(context.Background(), testMessage("body", ""))
	assert.Equal(t, 1, got)
}

func TestHeartbeatExtendsVisibility(t *testing.T) {
	client := &fakeSQS{}
	c := NewConsumer(client, NewDLQPublisher(client, "dlq-url"), ConsumerConfig{
		QueueURL:       "queue-url",
		VisibilitySecs: 30,
		Heartbeat:      5 * time.Millisecond,
	}, func(context.Context, []byte, int) error {
		time.Sleep(50 * time.Millisecond)
		return nil
	}, zap.NewNop())

	c.processMessage(context.Background(), testMessage("slow", "1"))

	client.mu.Lock()
	defer client.mu.Unlock()
	assert.Greater(t, client.extensions, 0)
}

func TestStartConsumesUntilCancelled(t *testing.T) {
	client := &fakeSQS{messages: []types.Message{testMessage("one", "1")}}

	ctx, cancel := context.WithCancel(context.Background())
	c := testConsumer(client, func(context.Context, []byte, int) error {
		defer cancel()
		return nil
	})

	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not stop after context cancellation")
	}
	assert.Equal(t, 1, client.deletedCount())
}

func TestDLQPublisherAttachesReason(t *testing.T) {
	client := &fakeSQS{}
	pub := NewDLQPublisher(client, "dlq-url")

	require.NoError(t, pub.PublishToDLQ(context.Background(), []byte("body"), "validate: bad request"))

	require.Len(t, client.sent, 1)
	attr := client.sent[0].MessageAttributes["failure-reason"]
	assert.Equal(t, "validate: bad request", aws.ToString(attr.StringValue))
}
