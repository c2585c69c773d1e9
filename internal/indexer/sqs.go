package indexer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/sqs"
	"github.com/aws/aws-sdk-go/service/sqs/sqsiface"

	"doria/internal/search"
)

// Feed publishes findable identifier projections to downstream consumers.
type Feed interface {
	Announce(ctx context.Context, doc search.Document) error
}

// NopFeed discards announcements. Used when no queue is configured.
type NopFeed struct{}

func (NopFeed) Announce(context.Context, search.Document) error { return nil }

// SQSFeed announces projections on an SQS queue as import messages.
type SQSFeed struct {
	client   sqsiface.SQSAPI
	queueURL string
}

func NewSQSFeed(queueURL string) (*SQSFeed, error) {
	sess, err := session.NewSession()
	if err != nil {
		return nil, fmt.Errorf("create aws session: %w", err)
	}
	return &SQSFeed{client: sqs.New(sess), queueURL: queueURL}, nil
}

// NewSQSFeedWithClient injects the SQS client, for tests.
func NewSQSFeedWithClient(client sqsiface.SQSAPI, queueURL string) *SQSFeed {
	return &SQSFeed{client: client, queueURL: queueURL}
}

func (f *SQSFeed) Announce(ctx context.Context, doc search.Document) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal feed message: %w", err)
	}
	_, err = f.client.SendMessageWithContext(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(f.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]*sqs.MessageAttributeValue{
			"action": {
				DataType:    aws.String("String"),
				StringValue: aws.String("import"),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("send feed message: %w", err)
	}
	return nil
}
