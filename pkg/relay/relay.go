package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/harun/ranya-voice/pkg/transport"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Envelope is the message published on Redis channels.
type Envelope struct {
	From         string   `json:"from,omitempty"`
	Topic        string   `json:"topic,omitempty"`
	Reliable     bool     `json:"reliable,omitempty"`
	Destinations []string `json:"destinations,omitempty"`
	Payload      []byte   `json:"payload"`
}

// Config holds relay configuration
type Config struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	Room     string
	Logger   zerolog.Logger
}

type bus interface {
	Publish(ctx context.Context, channel string, message []byte) error
}

type redisBus struct {
	client *redis.Client
}

func (b *redisBus) Publish(ctx context.Context, channel string, message []byte) error {
	return b.client.Publish(ctx, channel, message).Err()
}

// Relay fans frontend messages out over Redis pub/sub so that services other
// than the room can deliver them, and accepts inbound messages the same way.
type Relay struct {
	client *redis.Client
	bus    bus
	prefix string
	room   string
	logger zerolog.Logger

	mu       sync.RWMutex
	handlers []transport.DataHandler
	cancel   context.CancelFunc
	done     chan struct{}
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, cfg Config) (*Relay, error) {
	if cfg.Room == "" {
		return nil, errors.New("relay room is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("relay: ping: %w", err)
	}

	r := newRelay(&redisBus{client: client}, cfg)
	r.client = client
	return r, nil
}

func newRelay(b bus, cfg Config) *Relay {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "ranya-voice"
	}
	return &Relay{
		bus:    b,
		prefix: prefix,
		room:   cfg.Room,
		logger: cfg.Logger.With().Str("component", "relay").Logger(),
	}
}

// Name implements transport.Named.
func (r *Relay) Name() string { return "redis" }

// BroadcastChannel is where broadcast messages are published.
func (r *Relay) BroadcastChannel() string {
	return r.prefix + ":" + r.room + ":broadcast"
}

// ParticipantChannel is where messages addressed to identity are published.
func (r *Relay) ParticipantChannel(identity string) string {
	return r.prefix + ":" + r.room + ":participant:" + identity
}

// InboundChannel is where frontends publish messages for the agent.
func (r *Relay) InboundChannel() string {
	return r.prefix + ":" + r.room + ":inbound"
}

// Publish implements transport.Publisher. Addressed messages go to one
// channel per destination.
func (r *Relay) Publish(ctx context.Context, payload []byte, opts transport.PublishOptions) error {
	msg, err := json.Marshal(Envelope{
		Topic:        opts.Topic,
		Reliable:     opts.Reliable,
		Destinations: opts.Destinations,
		Payload:      payload,
	})
	if err != nil {
		return fmt.Errorf("relay: encode: %w", err)
	}

	if opts.Broadcast() {
		if err := r.bus.Publish(ctx, r.BroadcastChannel(), msg); err != nil {
			return fmt.Errorf("relay: publish: %w", err)
		}
		return nil
	}

	var errs []error
	for _, id := range opts.Destinations {
		if err := r.bus.Publish(ctx, r.ParticipantChannel(id), msg); err != nil {
			errs = append(errs, fmt.Errorf("relay: publish to %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// OnData implements transport.Subscriber.
func (r *Relay) OnData(handler transport.DataHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = append(r.handlers, handler)
}

// Start subscribes to the inbound channel and dispatches messages until ctx
// ends or Close is called.
func (r *Relay) Start(ctx context.Context) error {
	if r.client == nil {
		return errors.New("relay: not connected")
	}

	sub := r.client.Subscribe(ctx, r.InboundChannel())
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("relay: subscribe: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})

	go func() {
		defer close(r.done)
		defer sub.Close()

		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				r.dispatch([]byte(msg.Payload))
			}
		}
	}()

	r.logger.Info().Str("channel", r.InboundChannel()).Msg("Relay subscribed")
	return nil
}

func (r *Relay) dispatch(raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		r.logger.Warn().Err(err).Msg("Dropping malformed relay message")
		return
	}

	msg := transport.DataMessage{From: env.From, Topic: env.Topic, Payload: env.Payload}

	r.mu.RLock()
	handlers := append([]transport.DataHandler(nil), r.handlers...)
	r.mu.RUnlock()

	for _, h := range handlers {
		h(msg)
	}
}

// Close stops the subscription and closes the Redis client.
func (r *Relay) Close() error {
	if r.cancel != nil {
		r.cancel()
		<-r.done
	}
	if r.client != nil {
		if err := r.client.Close(); err != nil {
			return fmt.Errorf("relay: close: %w", err)
		}
	}
	return nil
}
