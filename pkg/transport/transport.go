package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/harun/ranya-voice/internal/observability"
	"github.com/rs/zerolog/log"
)

// ErrNotConnected is returned by a transport that has no live connection.
var ErrNotConnected = errors.New("transport not connected")

// Well-known topics.
const (
	TopicFrontend      = "frontend"
	TopicNotification  = "notification"
	TopicChat          = "lk.chat"
	TopicTranscription = "lk.transcription"
	// TopicAudio carries raw 16-bit little-endian mono PCM.
	TopicAudio = "lk.audio"
)

// PublishOptions controls delivery of one data message.
type PublishOptions struct {
	// Destinations lists participant identities. Empty means broadcast.
	Destinations []string
	// Reliable requests ordered, retransmitted delivery where the transport
	// distinguishes it.
	Reliable bool
	Topic    string
}

// Broadcast reports whether the message targets every participant.
func (o PublishOptions) Broadcast() bool {
	return len(o.Destinations) == 0
}

// Publisher delivers opaque byte payloads to the frontend.
type Publisher interface {
	Publish(ctx context.Context, payload []byte, opts PublishOptions) error
}

// DataMessage is a data packet received from the frontend.
type DataMessage struct {
	From    string
	Topic   string
	Payload []byte
}

// DataHandler receives inbound data messages.
type DataHandler func(msg DataMessage)

// Subscriber is implemented by transports that also receive frontend data.
type Subscriber interface {
	OnData(handler DataHandler)
}

// Named is implemented by transports that report a label for metrics.
type Named interface {
	Name() string
}

// NameOf returns the transport's label, or "unknown".
func NameOf(p Publisher) string {
	if n, ok := p.(Named); ok {
		return n.Name()
	}
	return "unknown"
}

// FanOut publishes every message to all of its publishers.
type FanOut struct {
	publishers []Publisher
}

// NewFanOut combines publishers. Nil entries are skipped.
func NewFanOut(publishers ...Publisher) *FanOut {
	f := &FanOut{}
	for _, p := range publishers {
		if p != nil {
			f.publishers = append(f.publishers, p)
		}
	}
	return f
}

// Name implements Named.
func (f *FanOut) Name() string { return "fanout" }

// Len returns the number of publishers.
func (f *FanOut) Len() int { return len(f.publishers) }

// Publish sends payload to every publisher concurrently. Failures are joined;
// the message is still delivered to the publishers that succeed.
func (f *FanOut) Publish(ctx context.Context, payload []byte, opts PublishOptions) error {
	if len(f.publishers) == 0 {
		return ErrNotConnected
	}
	if len(f.publishers) == 1 {
		return publishRecorded(ctx, f.publishers[0], payload, opts)
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)

	for _, p := range f.publishers {
		wg.Add(1)
		go func(p Publisher) {
			defer wg.Done()
			if err := publishRecorded(ctx, p, payload, opts); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", NameOf(p), err))
				mu.Unlock()
			}
		}(p)
	}
	wg.Wait()

	return errors.Join(errs...)
}

// OnData subscribes the handler to every publisher that receives data.
func (f *FanOut) OnData(handler DataHandler) {
	for _, p := range f.publishers {
		if s, ok := p.(Subscriber); ok {
			s.OnData(handler)
		}
	}
}

func publishRecorded(ctx context.Context, p Publisher, payload []byte, opts PublishOptions) error {
	name := NameOf(p)
	err := p.Publish(ctx, payload, opts)
	observability.RecordPublish(name, opts.Topic, len(payload), err == nil)
	if err != nil {
		log.Warn().
			Err(err).
			Str("transport", name).
			Str("topic", opts.Topic).
			Msg("Publish failed")
	}
	return err
}
