// Package stt provides speech-to-text recognizers and a VAD-driven stream
// adapter that turns a live PCM stream into final transcripts.
package stt

import (
	"context"
	"errors"
)

// ErrEmptyAudio is returned when there is nothing to transcribe.
var ErrEmptyAudio = errors.New("empty audio")

// Recognizer transcribes one complete utterance.
type Recognizer interface {
	// Name returns the provider identifier.
	Name() string

	// Transcribe converts 16-bit little-endian mono PCM to text.
	Transcribe(ctx context.Context, pcm []byte, opts TranscribeOptions) (*Transcript, error)
}

// TranscribeOptions configures transcription.
type TranscribeOptions struct {
	Model      string // Provider-specific model
	Language   string // ISO language code
	SampleRate int    // Sample rate of the PCM in Hz
}

// Transcript is the result of transcription.
type Transcript struct {
	Text       string
	Language   string
	Confidence float64
	Duration   float64 // seconds of audio submitted
}
