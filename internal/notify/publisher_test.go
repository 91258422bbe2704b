package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"advisy/internal/types"
)

// mockSQSSender records all SendMessage calls for verification.
type mockSQSSender struct {
	calls     []*sqs.SendMessageInput
	returnErr error
}

func (m *mockSQSSender) SendMessage(_ context.Context, params *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	m.calls = append(m.calls, params)
	if m.returnErr != nil {
		return nil, m.returnErr
	}
	return &sqs.SendMessageOutput{}, nil
}

func testDeliveryJob() types.DeliveryJob {
	return types.DeliveryJob{
		NotificationID: "ntf_1",
		TenantID:       "ten_1",
		UserID:         "usr_1",
		Kind:           types.KindNewContract,
		Channel:        types.ChannelEmail,
		Email: &types.EmailRequest{
			Type:           types.TemplateContractSigned,
			RecipientEmail: "client@example.fr",
			RecipientName:  "Marie Dupont",
		},
		TraceID: "trace_1",
	}
}

func TestDeliveryPublisher_IncrementsRetryCountBeforeSend(t *testing.T) {
	sender := &mockSQSSender{}
	pub := NewDeliveryPublisher(sender, "https://sqs.eu-west-3.amazonaws.com/123/notify", testLogger())

	job := testDeliveryJob()
	job.RetryCount = 2

	require.NoError(t, pub.Publish(context.Background(), job, 5*time.Second))
	require.Len(t, sender.calls, 1)

	var sent types.DeliveryJob
	require.NoError(t, json.Unmarshal([]byte(*sender.calls[0].MessageBody), &sent))
	assert.Equal(t, 3, sent.RetryCount)
	assert.Equal(t, "ntf_1", sent.NotificationID)
	assert.Equal(t, int32(5), sender.calls[0].DelaySeconds)
}

func TestDeliveryPublisher_ClampsDelayToSQSMaximum(t *testing.T) {
	sender := &mockSQSSender{}
	pub := NewDeliveryPublisher(sender, "https://sqs.eu-west-3.amazonaws.com/123/notify", testLogger())

	require.NoError(t, pub.Publish(context.Background(), testDeliveryJob(), time.Hour))
	require.Len(t, sender.calls, 1)
	assert.Equal(t, int32(900), sender.calls[0].DelaySeconds)
}

func TestDeliveryPublisher_NegativeDelayBecomesImmediate(t *testing.T) {
	sender := &mockSQSSender{}
	pub := NewDeliveryPublisher(sender, "https://sqs.eu-west-3.amazonaws.com/123/notify", testLogger())

	require.NoError(t, pub.Publish(context.Background(), testDeliveryJob(), -time.Minute))
	require.Len(t, sender.calls, 1)
	assert.Equal(t, int32(0), sender.calls[0].DelaySeconds)
}

func TestDeliveryPublisher_SetsRoutingAttributes(t *testing.T) {
	sender := &mockSQSSender{}
	pub := NewDeliveryPublisher(sender, "https://sqs.eu-west-3.amazonaws.com/123/notify", testLogger())

	require.NoError(t, pub.Publish(context.Background(), testDeliveryJob(), 0))
	require.Len(t, sender.calls, 1)

	attrs := sender.calls[0].MessageAttributes
	require.Contains(t, attrs, "kind")
	require.Contains(t, attrs, "channel")
	assert.Equal(t, "new_contract", *attrs["kind"].StringValue)
	assert.Equal(t, "email", *attrs["channel"].StringValue)
}

func TestDeliveryPublisher_SendFailure(t *testing.T) {
	sender := &mockSQSSender{returnErr: errors.New("throttled")}
	pub := NewDeliveryPublisher(sender, "https://sqs.eu-west-3.amazonaws.com/123/notify", testLogger())

	err := pub.Publish(context.Background(), testDeliveryJob(), 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to send delivery job")
}
