package sqs

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awssqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// DLQPublisher forwards permanently failed messages to the dead-letter
// queue with the failure reason attached, so they can be inspected without
// re-running the job.
type DLQPublisher struct {
	client API
	dlqURL string
}

func NewDLQPublisher(client API, dlqURL string) *DLQPublisher {
	return &DLQPublisher{client: client, dlqURL: dlqURL}
}

func (p *DLQPublisher) PublishToDLQ(ctx context.Context, msg []byte, reason string) error {
	_, err := p.client.SendMessage(ctx, &awssqs.SendMessageInput{
		QueueUrl:    aws.String(p.dlqURL),
		MessageBody: aws.String(string(msg)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"failure-reason": {
				DataType:    aws.String("String"),
				StringValue: aws.String(reason),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("publish to dlq: %w", err)
	}
	return nil
}
