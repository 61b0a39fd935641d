package session

import (
	"context"
	"fmt"

	"github.com/harun/ranya-voice/pkg/transport"
	"github.com/harun/ranya-voice/pkg/voice/tts"
)

// DefaultAudioChunk keeps each audio packet under LiveKit's reliable data
// packet limit.
const DefaultAudioChunk = 12 * 1024

// PublisherSink streams synthesized audio to the frontend as data packets on
// the audio topic.
type PublisherSink struct {
	publisher transport.Publisher
	chunk     int
}

// NewPublisherSink creates a sink. A non-positive chunk size selects
// DefaultAudioChunk.
func NewPublisherSink(publisher transport.Publisher, chunk int) *PublisherSink {
	if chunk <= 0 {
		chunk = DefaultAudioChunk
	}
	// Keep 16-bit samples whole.
	chunk -= chunk % 2
	return &PublisherSink{publisher: publisher, chunk: chunk}
}

// WriteAudio publishes audio in order, stopping at the first failure.
func (p *PublisherSink) WriteAudio(ctx context.Context, audio *tts.Synthesis) error {
	if audio == nil || len(audio.Audio) == 0 {
		return nil
	}
	data := audio.Audio
	for offset := 0; offset < len(data); offset += p.chunk {
		end := offset + p.chunk
		if end > len(data) {
			end = len(data)
		}
		if err := p.publisher.Publish(ctx, data[offset:end], transport.PublishOptions{
			Topic:    transport.TopicAudio,
			Reliable: true,
		}); err != nil {
			return fmt.Errorf("publish audio chunk at %d: %w", offset, err)
		}
	}
	return nil
}
