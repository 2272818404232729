package sms

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSNS struct {
	input *sns.PublishInput
	err   error
}

func (m *mockSNS) Publish(_ context.Context, params *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	m.input = params
	if m.err != nil {
		return nil, m.err
	}
	return &sns.PublishOutput{MessageId: aws.String("msg-1")}, nil
}

func TestSNSSenderPublishesTransactional(t *testing.T) {
	client := &mockSNS{}
	sender := NewSNSSender(client, "MADRASAH")

	id, err := sender.Send(context.Background(), " +447700900123 ", "Pay here")
	require.NoError(t, err)
	assert.Equal(t, "msg-1", id)
	assert.Equal(t, "+447700900123", aws.ToString(client.input.PhoneNumber))
	assert.Equal(t, "Transactional", aws.ToString(client.input.MessageAttributes["AWS.SNS.SMS.SMSType"].StringValue))
	assert.Equal(t, "MADRASAH", aws.ToString(client.input.MessageAttributes["AWS.SNS.SMS.SenderID"].StringValue))
}

func TestSNSSenderErrors(t *testing.T) {
	sender := NewSNSSender(&mockSNS{err: errors.New("throttled")}, "")

	_, err := sender.Send(context.Background(), "", "x")
	assert.Error(t, err)

	_, err = sender.Send(context.Background(), "+1555", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttled")
}
