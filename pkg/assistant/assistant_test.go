package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/harun/ranya-voice/pkg/docstore"
	"github.com/harun/ranya-voice/pkg/toolexecutor"
	"github.com/harun/ranya-voice/pkg/transport"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockPublisher is a mock implementation of transport.Publisher
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, payload []byte, opts transport.PublishOptions) error {
	args := m.Called(ctx, payload, opts)
	return args.Error(0)
}

// MockSearcher is a mock implementation of DocumentSearcher
type MockSearcher struct {
	mock.Mock
}

func (m *MockSearcher) Search(ctx context.Context, query string, limit int) ([]docstore.Document, error) {
	args := m.Called(ctx, query, limit)
	docs, _ := args.Get(0).([]docstore.Document)
	return docs, args.Error(1)
}

func newAttached(pub transport.Publisher) *Assistant {
	return New(Options{Publisher: pub, Logger: zerolog.Nop()})
}

func TestGetWeather(t *testing.T) {
	a := New(Options{Logger: zerolog.Nop()})

	for _, location := range []string{"Paris", "", "São Paulo", "New York, NY"} {
		out, err := a.GetWeather(context.Background(), location)
		require.NoError(t, err)
		assert.Contains(t, out, location)
	}

	out, _ := a.GetWeather(context.Background(), "Paris")
	assert.Equal(t, "Weather in Paris: 72°F, sunny", out)
}

func TestAttached(t *testing.T) {
	assert.False(t, New(Options{}).Attached())
	assert.True(t, newAttached(&MockPublisher{}).Attached())
}

func TestSendNotificationDetached(t *testing.T) {
	a := New(Options{Logger: zerolog.Nop()})

	out, err := a.SendNotification(context.Background(), "hello", "user-42")

	require.NoError(t, err)
	assert.Equal(t, "Notification sent: hello", out)
}

func TestSendNotificationAddressed(t *testing.T) {
	pub := &MockPublisher{}
	pub.On("Publish", mock.Anything, []byte("hello"), transport.PublishOptions{
		Destinations: []string{"user-42"},
		Topic:        transport.TopicNotification,
	}).Return(nil).Once()

	out, err := newAttached(pub).SendNotification(context.Background(), "hello", "user-42")

	require.NoError(t, err)
	assert.Equal(t, "Notification sent: hello", out)
	pub.AssertExpectations(t)
	pub.AssertNumberOfCalls(t, "Publish", 1)
}

func TestSendNotificationBroadcast(t *testing.T) {
	pub := &MockPublisher{}
	pub.On("Publish", mock.Anything, []byte("server restarting"), mock.MatchedBy(func(opts transport.PublishOptions) bool {
		return opts.Destinations == nil && opts.Topic == transport.TopicNotification
	})).Return(nil).Once()

	out, err := newAttached(pub).SendNotification(context.Background(), "server restarting", "")

	require.NoError(t, err)
	assert.Equal(t, "Notification sent: server restarting", out)
	pub.AssertExpectations(t)
}

func TestSendNotificationPublishError(t *testing.T) {
	pub := &MockPublisher{}
	pub.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(transport.ErrNotConnected)

	out, err := newAttached(pub).SendNotification(context.Background(), "hello", "")

	require.Error(t, err)
	assert.ErrorIs(t, err, transport.ErrNotConnected)
	assert.Empty(t, out)
}

func TestSearchDocumentsDetached(t *testing.T) {
	a := New(Options{Logger: zerolog.Nop()})

	out, err := a.SearchDocuments(context.Background(), "invoice")

	require.NoError(t, err)
	assert.Equal(t, "Found documents matching 'invoice'", out)
}

func TestSearchDocumentsForwardsResults(t *testing.T) {
	var captured []byte
	pub := &MockPublisher{}
	pub.On("Publish", mock.Anything, mock.Anything, transport.PublishOptions{
		Reliable: true,
		Topic:    transport.TopicFrontend,
	}).Run(func(args mock.Arguments) {
		captured = args.Get(1).([]byte)
	}).Return(nil).Once()

	out, err := newAttached(pub).SearchDocuments(context.Background(), "invoice")

	require.NoError(t, err)
	assert.Contains(t, out, "invoice")
	pub.AssertExpectations(t)
	pub.AssertNumberOfCalls(t, "Publish", 1)

	var msg map[string]interface{}
	require.NoError(t, json.Unmarshal(captured, &msg))
	assert.Equal(t, "search_results", msg["type"])
	assert.Equal(t, "invoice", msg["query"])
	assert.Contains(t, msg["results"], "invoice")
	assert.Len(t, msg, 3)
}

func TestSearchDocumentsPublishErrorIsNotReturned(t *testing.T) {
	pub := &MockPublisher{}
	pub.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("channel closed"))

	out, err := newAttached(pub).SearchDocuments(context.Background(), "invoice")

	require.NoError(t, err)
	assert.Equal(t, "Found documents matching 'invoice'", out)
}

func TestSearchDocumentsWithSearcher(t *testing.T) {
	searcher := &MockSearcher{}
	searcher.On("Search", mock.Anything, "invoice", 5).Return([]docstore.Document{
		{Path: "a.md", Title: "a.md"},
		{Path: "notes/b.md", Title: "b.md"},
	}, nil)

	var captured []byte
	pub := &MockPublisher{}
	pub.On("Publish", mock.Anything, mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		captured = args.Get(1).([]byte)
	}).Return(nil)

	a := New(Options{Publisher: pub, Searcher: searcher, Logger: zerolog.Nop()})
	out, err := a.SearchDocuments(context.Background(), "invoice")

	require.NoError(t, err)
	assert.Equal(t, "Found documents matching 'invoice': a.md, b.md", out)

	var msg map[string]interface{}
	require.NoError(t, json.Unmarshal(captured, &msg))
	assert.Equal(t, out, msg["results"])
	searcher.AssertExpectations(t)
}

func TestSearchDocumentsSearcherError(t *testing.T) {
	searcher := &MockSearcher{}
	searcher.On("Search", mock.Anything, "invoice", 3).Return(nil, errors.New("db locked"))

	a := New(Options{Searcher: searcher, SearchLimit: 3, Logger: zerolog.Nop()})
	out, err := a.SearchDocuments(context.Background(), "invoice")

	require.NoError(t, err)
	assert.Equal(t, "Found documents matching 'invoice'", out)
}

func TestRegisterTools(t *testing.T) {
	exec := toolexecutor.New()
	a := New(Options{Logger: zerolog.Nop()})

	require.NoError(t, a.RegisterTools(exec))
	assert.Equal(t, []string{"get_weather", "search_documents", "send_notification"}, exec.ListTools())

	// Registering twice is rejected rather than silently replacing tools.
	assert.Error(t, a.RegisterTools(exec))
}

func TestToolsThroughExecutor(t *testing.T) {
	pub := &MockPublisher{}
	pub.On("Publish", mock.Anything, []byte("hello"), transport.PublishOptions{
		Destinations: []string{"user-42"},
		Topic:        transport.TopicNotification,
	}).Return(nil).Once()

	exec := toolexecutor.New()
	require.NoError(t, newAttached(pub).RegisterTools(exec))

	result := exec.Execute(context.Background(), ToolGetWeather, map[string]interface{}{"location": "Oslo"}, nil)
	require.True(t, result.Success)
	assert.Equal(t, "Weather in Oslo: 72°F, sunny", result.Output)

	result = exec.Execute(context.Background(), ToolSendNotification, map[string]interface{}{
		"message": "hello",
		"user_id": "user-42",
	}, nil)
	require.True(t, result.Success)
	assert.Equal(t, "Notification sent: hello", result.Output)

	result = exec.Execute(context.Background(), ToolGetWeather, map[string]interface{}{}, nil)
	assert.False(t, result.Success)

	pub.AssertExpectations(t)
}

func TestSendNotificationErrorBecomesFailedResult(t *testing.T) {
	pub := &MockPublisher{}
	pub.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(transport.ErrNotConnected)

	exec := toolexecutor.New()
	require.NoError(t, newAttached(pub).RegisterTools(exec))

	result := exec.Execute(context.Background(), ToolSendNotification, map[string]interface{}{"message": "hi"}, nil)

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "not connected")
}

func TestSendNotificationNullUserIDBroadcasts(t *testing.T) {
	pub := &MockPublisher{}
	pub.On("Publish", mock.Anything, []byte("hello"), transport.PublishOptions{
		Topic: transport.TopicNotification,
	}).Return(nil).Once()

	exec := toolexecutor.New()
	require.NoError(t, newAttached(pub).RegisterTools(exec))

	result := exec.ExecuteCall(context.Background(), toolexecutor.ToolCall{
		ID:        "call_1",
		Name:      ToolSendNotification,
		Arguments: map[string]interface{}{"message": "hello", "user_id": nil},
	}, nil)

	require.True(t, result.Success, result.Error)
	assert.Equal(t, "Notification sent: hello", result.Output)
	pub.AssertExpectations(t)
}
