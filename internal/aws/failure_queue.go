package aws

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// groupAttribute names the report attribute used as the FIFO message group,
// so reports for one business stay ordered.
const groupAttribute = "businessId"

const defaultGroup = "unknown-business"

// FailureQueue sends one report per order record the dispatcher gave up on.
// Reports are JSON bodies; the failing stage and business travel as string
// message attributes so consumers can filter without parsing the body.
type FailureQueue struct {
	client SQSAPI
	url    string
	fifo   bool
}

// NewFailureQueue binds a failure queue to queueURL. A ".fifo" URL switches on
// message grouping by business.
func NewFailureQueue(client SQSAPI, queueURL string) *FailureQueue {
	return &FailureQueue{
		client: client,
		url:    queueURL,
		fifo:   strings.HasSuffix(queueURL, ".fifo"),
	}
}

// Publish sends one failure report. Empty attribute values are dropped since
// SQS rejects them.
func (q *FailureQueue) Publish(ctx context.Context, report string, attributes map[string]string) error {
	if q.url == "" {
		return errors.New("failure queue url is empty")
	}
	input := &sqs.SendMessageInput{
		QueueUrl:    &q.url,
		MessageBody: &report,
	}
	for name, value := range attributes {
		if value == "" {
			continue
		}
		if input.MessageAttributes == nil {
			input.MessageAttributes = map[string]sqstypes.MessageAttributeValue{}
		}
		input.MessageAttributes[name] = sqstypes.MessageAttributeValue{
			DataType:    awsString("String"),
			StringValue: awsString(value),
		}
	}
	if q.fifo {
		group := attributes[groupAttribute]
		if group == "" {
			group = defaultGroup
		}
		input.MessageGroupId = awsString(group)
	}

	if _, err := q.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("report failure to %s: %w", q.url, err)
	}
	return nil
}

func awsString(s string) *string { return &s }
