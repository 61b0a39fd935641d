package stt

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/harun/ranya-voice/internal/observability"
	"github.com/harun/ranya-voice/pkg/voice/vad"
	"github.com/rs/zerolog"
)

// DefaultMaxUtterance bounds how long one utterance may grow before it is
// transcribed without waiting for silence.
const DefaultMaxUtterance = 30 * time.Second

// StreamAdapter gives a non-streaming Recognizer streaming behaviour by
// segmenting pushed PCM with a voice activity detector. It is not safe for
// concurrent use.
type StreamAdapter struct {
	recognizer Recognizer
	detector   *vad.Detector
	opts       TranscribeOptions
	logger     zerolog.Logger

	frameBytes   int
	maxUtterance int

	pending   []byte
	utterance []byte
}

// NewStreamAdapter wraps recognizer with detector. opts.SampleRate defaults
// to the detector's sample rate.
func NewStreamAdapter(recognizer Recognizer, detector *vad.Detector, opts TranscribeOptions, logger zerolog.Logger) (*StreamAdapter, error) {
	if recognizer == nil {
		return nil, fmt.Errorf("recognizer is required")
	}
	if detector == nil {
		return nil, fmt.Errorf("vad detector is required")
	}

	sampleRate := detector.Config().SampleRate
	frameSamples := detector.Config().FrameSamples
	if frameSamples <= 0 {
		frameSamples = sampleRate / 50
	}
	if opts.SampleRate == 0 {
		opts.SampleRate = sampleRate
	}
	if opts.SampleRate != sampleRate {
		return nil, fmt.Errorf("sample rate mismatch: recognizer %d, vad %d", opts.SampleRate, sampleRate)
	}

	observability.EnsureRegistered()

	return &StreamAdapter{
		recognizer:   recognizer,
		detector:     detector,
		opts:         opts,
		logger:       logger,
		frameBytes:   2 * frameSamples,
		maxUtterance: 2 * int(int64(sampleRate)*int64(DefaultMaxUtterance)/int64(time.Second)),
	}, nil
}

// Name returns the wrapped recognizer's name.
func (a *StreamAdapter) Name() string {
	return a.recognizer.Name()
}

// Push feeds PCM and returns the transcripts of utterances completed by it.
// Utterances that transcribe to blank text are dropped.
func (a *StreamAdapter) Push(ctx context.Context, pcm []byte) ([]Transcript, error) {
	a.pending = append(a.pending, pcm...)

	var out []Transcript
	for len(a.pending) >= a.frameBytes {
		frame := a.pending[:a.frameBytes]

		ev := a.detector.Process(vad.Samples(frame))
		if ev == vad.EventSpeechStart || a.detector.Speaking() || ev == vad.EventSpeechEnd {
			a.utterance = append(a.utterance, frame...)
		}
		a.pending = a.pending[a.frameBytes:]

		switch {
		case ev == vad.EventDiscarded:
			a.logger.Debug().Int("bytes", len(a.utterance)).Msg("Discarding short voiced burst")
			a.utterance = nil
		case ev == vad.EventSpeechEnd, len(a.utterance) >= a.maxUtterance:
			a.detector.Reset()
			t, err := a.transcribe(ctx)
			if err != nil {
				return out, err
			}
			if t != nil {
				out = append(out, *t)
			}
		}
	}

	// Keep the remainder in its own backing array.
	a.pending = append([]byte(nil), a.pending...)
	return out, nil
}

// Flush transcribes any utterance still in progress, e.g. when the stream
// ends mid-sentence.
func (a *StreamAdapter) Flush(ctx context.Context) (*Transcript, error) {
	a.pending = nil
	a.detector.Reset()
	if len(a.utterance) == 0 {
		return nil, nil
	}
	return a.transcribe(ctx)
}

func (a *StreamAdapter) transcribe(ctx context.Context) (*Transcript, error) {
	utterance := a.utterance
	a.utterance = nil

	start := time.Now()
	t, err := a.recognizer.Transcribe(ctx, utterance, a.opts)
	observability.RecordSTT(a.recognizer.Name(), time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("%s transcription failed: %w", a.recognizer.Name(), err)
	}

	t.Text = strings.TrimSpace(t.Text)
	if t.Text == "" {
		a.logger.Debug().Str("provider", a.recognizer.Name()).Msg("Utterance produced no text")
		return nil, nil
	}
	return t, nil
}
