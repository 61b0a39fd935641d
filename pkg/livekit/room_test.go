package livekit

import (
	"context"
	"errors"
	"testing"

	"github.com/harun/ranya-voice/pkg/transport"
	lksdk "github.com/livekit/server-sdk-go/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRoom struct {
	payloads     [][]byte
	opts         []transport.PublishOptions
	err          error
	disconnected bool
}

func (f *fakeRoom) publish(payload []byte, opts transport.PublishOptions) error {
	f.payloads = append(f.payloads, payload)
	f.opts = append(f.opts, opts)
	return f.err
}

func (f *fakeRoom) disconnect() { f.disconnected = true }

func newTestTransport() (*Transport, *fakeRoom) {
	tr := New(Config{Room: "support", Logger: zerolog.Nop()})
	room := &fakeRoom{}
	tr.room = room
	return tr, room
}

func TestPublishNotConnected(t *testing.T) {
	tr := New(Config{Logger: zerolog.Nop()})

	err := tr.Publish(context.Background(), []byte("x"), transport.PublishOptions{})
	assert.ErrorIs(t, err, transport.ErrNotConnected)
	assert.False(t, tr.Connected())
}

func TestPublishForwardsOptions(t *testing.T) {
	tr, room := newTestTransport()

	opts := transport.PublishOptions{
		Destinations: []string{"user-42"},
		Reliable:     true,
		Topic:        transport.TopicFrontend,
	}
	require.NoError(t, tr.Publish(context.Background(), []byte(`{"a":1}`), opts))

	require.Len(t, room.payloads, 1)
	assert.Equal(t, []byte(`{"a":1}`), room.payloads[0])
	assert.Equal(t, opts, room.opts[0])
}

func TestPublishWrapsError(t *testing.T) {
	tr, room := newTestTransport()
	room.err = errors.New("dc closed")

	err := tr.Publish(context.Background(), []byte("x"), transport.PublishOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dc closed")
}

func TestPublishCancelledContext(t *testing.T) {
	tr, room := newTestTransport()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := tr.Publish(ctx, []byte("x"), transport.PublishOptions{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, room.payloads)
}

func TestHandlePacketDispatchesUserData(t *testing.T) {
	tr, _ := newTestTransport()

	var got []transport.DataMessage
	tr.OnData(func(msg transport.DataMessage) { got = append(got, msg) })

	packet := lksdk.UserData([]byte("hello"))
	packet.Topic = transport.TopicChat
	tr.handlePacket(packet, lksdk.DataReceiveParams{SenderIdentity: "user-42"})

	require.Len(t, got, 1)
	assert.Equal(t, "user-42", got[0].From)
	assert.Equal(t, transport.TopicChat, got[0].Topic)
	assert.Equal(t, []byte("hello"), got[0].Payload)
}

func TestHandleDisconnect(t *testing.T) {
	tr, _ := newTestTransport()
	require.True(t, tr.Connected())

	tr.handleDisconnect()

	assert.False(t, tr.Connected())
	assert.ErrorIs(t, tr.Publish(context.Background(), []byte("x"), transport.PublishOptions{}), transport.ErrNotConnected)
}

func TestClose(t *testing.T) {
	tr, room := newTestTransport()

	require.NoError(t, tr.Close())
	assert.True(t, room.disconnected)
	assert.False(t, tr.Connected())

	// Closing twice is harmless.
	require.NoError(t, tr.Close())
}

func TestConnectRequiresConfig(t *testing.T) {
	tr := New(Config{Logger: zerolog.Nop()})
	assert.Error(t, tr.Connect(context.Background()))
}
