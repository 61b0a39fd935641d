package livekit

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/harun/ranya-voice/pkg/transport"
	lksdk "github.com/livekit/server-sdk-go/v2"
	"github.com/rs/zerolog"
)

// Config holds the room connection parameters
type Config struct {
	URL       string
	APIKey    string
	APISecret string
	Room      string
	Identity  string
	Logger    zerolog.Logger
}

// roomHandle is the part of a joined room the transport uses.
type roomHandle interface {
	publish(payload []byte, opts transport.PublishOptions) error
	disconnect()
}

type sdkRoom struct {
	room *lksdk.Room
}

func (r *sdkRoom) publish(payload []byte, opts transport.PublishOptions) error {
	publishOpts := []lksdk.DataPublishOption{
		lksdk.WithDataPublishReliable(opts.Reliable),
	}
	if opts.Topic != "" {
		publishOpts = append(publishOpts, lksdk.WithDataPublishTopic(opts.Topic))
	}
	if len(opts.Destinations) > 0 {
		publishOpts = append(publishOpts, lksdk.WithDataPublishDestination(opts.Destinations))
	}
	return r.room.LocalParticipant.PublishDataPacket(lksdk.UserData(payload), publishOpts...)
}

func (r *sdkRoom) disconnect() {
	r.room.Disconnect()
}

// Transport publishes data packets into a LiveKit room and receives the
// frontend's data packets from it.
type Transport struct {
	cfg    Config
	logger zerolog.Logger

	mu       sync.RWMutex
	room     roomHandle
	handlers []transport.DataHandler
}

// New creates a room transport. Call Connect before publishing.
func New(cfg Config) *Transport {
	return &Transport{
		cfg:    cfg,
		logger: cfg.Logger.With().Str("component", "livekit").Str("room", cfg.Room).Logger(),
	}
}

// Name implements transport.Named.
func (t *Transport) Name() string { return "livekit" }

// Connect joins the configured room as the agent participant.
func (t *Transport) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.cfg.URL == "" || t.cfg.Room == "" {
		return errors.New("livekit url and room are required")
	}

	room := lksdk.NewRoom(&lksdk.RoomCallback{
		ParticipantCallback: lksdk.ParticipantCallback{
			OnDataPacket: t.handlePacket,
		},
		OnDisconnected: t.handleDisconnect,
	})

	if err := room.Join(t.cfg.URL, lksdk.ConnectInfo{
		APIKey:              t.cfg.APIKey,
		APISecret:           t.cfg.APISecret,
		RoomName:            t.cfg.Room,
		ParticipantIdentity: t.cfg.Identity,
	}); err != nil {
		return fmt.Errorf("failed to join room %s: %w", t.cfg.Room, err)
	}

	t.mu.Lock()
	t.room = &sdkRoom{room: room}
	t.mu.Unlock()

	t.logger.Info().Str("identity", t.cfg.Identity).Msg("Joined room")
	return nil
}

// Connected reports whether the transport holds a live room.
func (t *Transport) Connected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.room != nil
}

// Publish sends payload as a user data packet. Reliable selects the reliable
// data channel; otherwise the lossy channel is used.
func (t *Transport) Publish(ctx context.Context, payload []byte, opts transport.PublishOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.RLock()
	room := t.room
	t.mu.RUnlock()

	if room == nil {
		return transport.ErrNotConnected
	}

	if err := room.publish(payload, opts); err != nil {
		return fmt.Errorf("failed to publish data packet: %w", err)
	}
	return nil
}

// OnData implements transport.Subscriber.
func (t *Transport) OnData(handler transport.DataHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers = append(t.handlers, handler)
}

// Close leaves the room.
func (t *Transport) Close() error {
	t.mu.Lock()
	room := t.room
	t.room = nil
	t.mu.Unlock()

	if room != nil {
		room.disconnect()
		t.logger.Info().Msg("Left room")
	}
	return nil
}

func (t *Transport) handlePacket(packet lksdk.DataPacket, params lksdk.DataReceiveParams) {
	user, ok := packet.(*lksdk.UserDataPacket)
	if !ok {
		return
	}

	msg := transport.DataMessage{
		From:    params.SenderIdentity,
		Topic:   user.Topic,
		Payload: user.Payload,
	}

	t.mu.RLock()
	handlers := append([]transport.DataHandler(nil), t.handlers...)
	t.mu.RUnlock()

	for _, h := range handlers {
		h(msg)
	}
}

func (t *Transport) handleDisconnect() {
	t.mu.Lock()
	t.room = nil
	t.mu.Unlock()

	t.logger.Warn().Msg("Disconnected from room")
}
