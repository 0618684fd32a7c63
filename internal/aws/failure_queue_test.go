package aws

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSQS struct {
	inputs []*sqs.SendMessageInput
	err    error
}

func (m *mockSQS) SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	m.inputs = append(m.inputs, in)
	if m.err != nil {
		return nil, m.err
	}
	return &sqs.SendMessageOutput{}, nil
}

func TestFailureQueue_PublishesReportWithStageAttributes(t *testing.T) {
	mock := &mockSQS{}
	q := NewFailureQueue(mock, "https://sqs.local/order-email-failures")

	err := q.Publish(context.Background(), `{"stage":"send_customer"}`, map[string]string{
		"stage":      "send_customer",
		"businessId": "biz-1",
		"orderId":    "",
	})
	require.NoError(t, err)
	require.Len(t, mock.inputs, 1)

	in := mock.inputs[0]
	assert.Equal(t, "https://sqs.local/order-email-failures", *in.QueueUrl)
	assert.Equal(t, `{"stage":"send_customer"}`, *in.MessageBody)
	require.Contains(t, in.MessageAttributes, "stage")
	assert.Equal(t, "send_customer", *in.MessageAttributes["stage"].StringValue)
	assert.Equal(t, "biz-1", *in.MessageAttributes["businessId"].StringValue)
	assert.NotContains(t, in.MessageAttributes, "orderId")
	assert.Nil(t, in.MessageGroupId, "standard queues take no group id")
}

func TestFailureQueue_FifoGroupsByBusiness(t *testing.T) {
	mock := &mockSQS{}
	q := NewFailureQueue(mock, "https://sqs.local/order-email-failures.fifo")

	require.NoError(t, q.Publish(context.Background(), "{}", map[string]string{"businessId": "biz-7"}))
	require.NoError(t, q.Publish(context.Background(), "{}", nil))

	require.Len(t, mock.inputs, 2)
	require.NotNil(t, mock.inputs[0].MessageGroupId)
	assert.Equal(t, "biz-7", *mock.inputs[0].MessageGroupId)
	require.NotNil(t, mock.inputs[1].MessageGroupId)
	assert.Equal(t, defaultGroup, *mock.inputs[1].MessageGroupId)
	assert.Nil(t, mock.inputs[1].MessageAttributes)
}

func TestFailureQueue_Errors(t *testing.T) {
	mock := &mockSQS{err: errors.New("throttled")}

	err := NewFailureQueue(mock, "q").Publish(context.Background(), "{}", nil)
	assert.ErrorContains(t, err, "throttled")

	err = NewFailureQueue(mock, "").Publish(context.Background(), "{}", nil)
	assert.ErrorContains(t, err, "url is empty")
	assert.Len(t, mock.inputs, 1)
}
