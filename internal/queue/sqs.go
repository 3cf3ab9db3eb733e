package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

const (
	sqsMaxBatch = 10
	sqsMaxWait  = 20 * time.Second
)

// SQSAPI is the subset of the SQS client the queue uses.
type SQSAPI interface {
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

type SQSQueue struct {
	client   SQSAPI
	queueURL string
}

// NewSQSQueue builds a queue from the default AWS credential chain.
func NewSQSQueue(ctx context.Context, region, queueURL string) (*SQSQueue, error) {
	awsCfg, err := awscfg.LoadDefaultConfig(ctx, awscfg.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewSQSQueueWithClient(sqs.NewFromConfig(awsCfg), queueURL), nil
}

func NewSQSQueueWithClient(client SQSAPI, queueURL string) *SQSQueue {
	return &SQSQueue{client: client, queueURL: queueURL}
}

func (q *SQSQueue) Receive(ctx context.Context, max int, wait time.Duration) ([]Message, error) {
	if max <= 0 {
		max = 1
	}
	if max > sqsMaxBatch {
		max = sqsMaxBatch
	}
	if wait > sqsMaxWait {
		wait = sqsMaxWait
	}

	out, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:              aws.String(q.queueURL),
		MaxNumberOfMessages:   int32(max),
		WaitTimeSeconds:       int32(wait / time.Second),
		MessageAttributeNames: []string{"All"},
	})
	if err != nil {
		return nil, fmt.Errorf("receive from sqs: %w", err)
	}

	batch := make([]Message, 0, len(out.Messages))
	for _, m := range out.Messages {
		batch = append(batch, Message{
			ID:     aws.ToString(m.MessageId),
			Body:   []byte(aws.ToString(m.Body)),
			Handle: aws.ToString(m.ReceiptHandle),
		})
	}
	return batch, nil
}

func (q *SQSQueue) Delete(ctx context.Context, handle string) error {
	if handle == "" {
		return ErrUnknownHandle
	}
	_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.queueURL),
		ReceiptHandle: aws.String(handle),
	})
	if err != nil {
		return fmt.Errorf("delete from sqs: %w", err)
	}
	return nil
}

func (q *SQSQueue) Publish(ctx context.Context, body []byte) error {
	_, err := q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("send to sqs: %w", err)
	}
	return nil
}

func (q *SQSQueue) Close() error { return nil }
