package observability

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messenger-service/internal/mocks"
)

func TestPublishEventUsesConfiguredPublisher(t *testing.T) {
	publisher := new(mocks.PublisherMock)
	SetPublisher(publisher)
	defer SetPublisher(nil)

	headers := BuildHeaders("req-1", "trace-1")
	envelope := EventEnvelope{EventType: "ws_events", EventName: "ws_connect"}
	publisher.On("Publish", mock.Anything, "ws_events.messenger", envelope, headers).Return(nil).Once()

	err := PublishEvent(context.Background(), "ws_events.messenger", envelope, headers)
	require.NoError(t, err)
	publisher.AssertExpectations(t)
}

func TestPublishEventWithoutPublisher(t *testing.T) {
	SetPublisher(nil)
	err := PublishEvent(context.Background(), "ws_events.messenger", EventEnvelope{}, nil)
	require.NoError(t, err)
}

func TestPublishEventFailureCounted(t *testing.T) {
	publisher := new(mocks.PublisherMock)
	SetPublisher(publisher)
	defer SetPublisher(nil)

	publisher.On("Publish", mock.Anything, "ws_events.messenger", mock.Anything, mock.Anything).
		Return(assert.AnError).Once()

	before := testutil.ToFloat64(amqpPublishErrorsTotal)
	err := PublishEvent(context.Background(), "ws_events.messenger", EventEnvelope{}, nil)
	require.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, before+1, testutil.ToFloat64(amqpPublishErrorsTotal))
	publisher.AssertExpectations(t)
}

func TestBuildHeaders(t *testing.T) {
	assert.Empty(t, BuildHeaders("", ""))
	assert.Equal(t, map[string]string{"x-request-id": "req-1"}, BuildHeaders("req-1", ""))
	assert.Equal(t, map[string]string{"x-request-id": "req-1", "trace_id": "trace-1"}, BuildHeaders("req-1", "trace-1"))
}
