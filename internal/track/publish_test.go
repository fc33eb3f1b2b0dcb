package track

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockAMQPChannel struct {
	mock.Mock
}

func (m *MockAMQPChannel) PublishWithContext(
	ctx context.Context,
	exchange, key string,
	mandatory, immediate bool,
	msg amqp.Publishing,
) error {
	args := m.Called(ctx, exchange, key, mandatory, immediate, msg)
	return args.Error(0)
}

func (m *MockAMQPChannel) Close() error { return nil }

func newTestPublisher(mockCh *MockAMQPChannel) *RabbitPublisher {
	return &RabbitPublisher{
		conn:     nil,
		ch:       mockCh,
		exchange: "digest.engagement",
		logger:   log.New(io.Discard, "", 0),
	}
}

func TestPublishEngagement_RoutesByEventKind(t *testing.T) {
	mockCh := &MockAMQPChannel{}
	pub := newTestPublisher(mockCh)

	mockCh.
		On("PublishWithContext",
			mock.Anything,
			"digest.engagement",
			EventClicked,
			false,
			false,
			mock.AnythingOfType("amqp091.Publishing"),
		).
		Return(nil).
		Once()

	err := pub.PublishEngagement(context.Background(), EngagementMessage{
		Event:      EventClicked,
		TrackingID: "tid-1",
	})
	require.NoError(t, err)

	mockCh.AssertExpectations(t)
}

func TestPublishEngagement_JSONCarriesTrackingID(t *testing.T) {
	mockCh := &MockAMQPChannel{}
	pub := newTestPublisher(mockCh)

	var capturedMsg amqp.Publishing

	mockCh.
		On("PublishWithContext",
			mock.Anything,
			"digest.engagement",
			EventOpened,
			false,
			false,
			mock.AnythingOfType("amqp091.Publishing"),
		).
		Return(nil).
		Run(func(args mock.Arguments) {
			capturedMsg = args.Get(5).(amqp.Publishing)
		})

	err := pub.PublishEngagement(context.Background(), EngagementMessage{
		Event:      EventOpened,
		Timestamp:  time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		TrackingID: "tid-42",
		IP:         "203.0.113.9",
	})
	require.NoError(t, err)

	body := string(capturedMsg.Body)

	assert.Contains(t, body, `"event":"digest.opened"`)
	assert.Contains(t, body, `"tracking_id":"tid-42"`)
	assert.Contains(t, body, `"ip":"203.0.113.9"`)
	assert.Equal(t, "application/json", capturedMsg.ContentType)
	assert.Equal(t, uint8(amqp.Persistent), capturedMsg.DeliveryMode)
}

func TestPublishEngagement_ErrorBubbles(t *testing.T) {
	mockCh := &MockAMQPChannel{}
	pub := newTestPublisher(mockCh)

	publishErr := errors.New("boom")

	mockCh.
		On("PublishWithContext",
			mock.Anything,
			mock.Anything,
			mock.Anything,
			mock.Anything,
			mock.Anything,
			mock.Anything,
		).
		Return(publishErr)

	err := pub.PublishEngagement(context.Background(), EngagementMessage{Event: EventOpened})
	require.Error(t, err)
	require.Equal(t, publishErr, err)
}
