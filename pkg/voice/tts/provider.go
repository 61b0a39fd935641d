// Package tts provides text-to-speech synthesizers.
package tts

import (
	"context"
	"errors"
)

// ErrEmptyText is returned when there is nothing to synthesize.
var ErrEmptyText = errors.New("empty text")

// Synthesizer converts text to audio.
type Synthesizer interface {
	// Name returns the provider identifier.
	Name() string

	// Synthesize converts text to audio.
	Synthesize(ctx context.Context, text string) (*Synthesis, error)
}

// Synthesis is the result of synthesis.
type Synthesis struct {
	Audio      []byte // Audio data
	Format     string // "pcm" (16-bit little-endian mono) or a container name
	SampleRate int    // Sample rate of PCM output in Hz
}
