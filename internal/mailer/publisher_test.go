package mailer_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/sysu-ecnc-dev/task-vision/backend/internal/domain"
	"github.com/sysu-ecnc-dev/task-vision/backend/internal/mailer"
)

type channelMock struct {
	mock.Mock
}

func (m *channelMock) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	args := m.Called(exchange, key, msg)
	return args.Error(0)
}

func TestPublishEncodesMessage(t *testing.T) {
	ch := &channelMock{}
	var published amqp.Publishing
	ch.On("PublishWithContext", "", "email_queue", mock.Anything).
		Run(func(args mock.Arguments) { published = args.Get(2).(amqp.Publishing) }).
		Return(nil).Once()

	p := mailer.NewPublisher(ch, "email_queue", time.Second)
	err := p.Publish(context.Background(), domain.MailMessage{
		Type: domain.MailTypeResetPassword,
		To:   "erin@example.com",
		Data: domain.ResetPasswordMailData{Name: "Erin", OTP: "123456", Expiration: 15},
	})
	require.NoError(t, err)
	ch.AssertExpectations(t)

	require.Equal(t, "application/json", published.ContentType)
	var decoded struct {
		Type string          `json:"type"`
		To   string          `json:"to"`
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(published.Body, &decoded))
	require.Equal(t, domain.MailTypeResetPassword, decoded.Type)
	require.Equal(t, "erin@example.com", decoded.To)
	require.Contains(t, string(decoded.Data), "123456")
}

func TestPublishFailureIsUnavailable(t *testing.T) {
	ch := &channelMock{}
	ch.On("PublishWithContext", "", "email_queue", mock.Anything).Return(errors.New("channel closed"))

	p := mailer.NewPublisher(ch, "email_queue", time.Second)
	err := p.Publish(context.Background(), domain.MailMessage{Type: domain.MailTypeTaskNotification, To: "a@example.com"})
	require.ErrorIs(t, err, domain.ErrServiceUnavailable)
}
