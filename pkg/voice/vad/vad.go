// Package vad segments 16-bit PCM into utterances with an energy threshold.
package vad

import (
	"fmt"
	"math"
)

// Event is the outcome of processing one frame.
type Event int

const (
	// EventNone means no state change.
	EventNone Event = iota
	// EventSpeechStart marks the first voiced frame of an utterance.
	EventSpeechStart
	// EventSpeechEnd marks an utterance that lasted long enough and was
	// followed by the configured silence.
	EventSpeechEnd
	// EventDiscarded marks a voiced burst shorter than MinSpeechMs.
	EventDiscarded
)

// String returns a human-readable event name.
func (e Event) String() string {
	switch e {
	case EventNone:
		return "NONE"
	case EventSpeechStart:
		return "SPEECH_START"
	case EventSpeechEnd:
		return "SPEECH_END"
	case EventDiscarded:
		return "DISCARDED"
	default:
		return "UNKNOWN"
	}
}

// Config tunes the detector.
type Config struct {
	// Threshold is the normalized RMS (0..1) above which a frame is voiced.
	Threshold   float64
	SilenceMs   int
	MinSpeechMs int
	SampleRate  int
	// FrameSamples is the analysis frame size used by stream consumers.
	// Zero means 20ms.
	FrameSamples int
}

// DefaultConfig returns settings suited to 16 kHz microphone audio.
func DefaultConfig() Config {
	return Config{
		Threshold:    0.02,
		SilenceMs:    500,
		MinSpeechMs:  100,
		SampleRate:   16000,
		FrameSamples: 320,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Threshold <= 0 || c.Threshold >= 1 {
		return fmt.Errorf("vad threshold must be in (0, 1), got %v", c.Threshold)
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("vad sample rate must be positive, got %d", c.SampleRate)
	}
	if c.SilenceMs <= 0 {
		return fmt.Errorf("vad silence duration must be positive, got %d", c.SilenceMs)
	}
	if c.FrameSamples < 0 {
		return fmt.Errorf("vad frame size must not be negative, got %d", c.FrameSamples)
	}
	if c.MinSpeechMs < 0 {
		return fmt.Errorf("vad min speech duration must not be negative, got %d", c.MinSpeechMs)
	}
	return nil
}

// Detector is a frame-driven speech state machine. It is not safe for
// concurrent use.
type Detector struct {
	cfg Config

	speaking  bool
	speechMs  float64
	silenceMs float64
}

// New creates a detector.
func New(cfg Config) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Detector{cfg: cfg}, nil
}

// Config returns the detector configuration.
func (d *Detector) Config() Config {
	return d.cfg
}

// Speaking reports whether an utterance is in progress.
func (d *Detector) Speaking() bool {
	return d.speaking
}

// Process feeds one frame of mono samples.
func (d *Detector) Process(frame []int16) Event {
	if len(frame) == 0 {
		return EventNone
	}

	frameMs := float64(len(frame)) * 1000 / float64(d.cfg.SampleRate)
	voiced := RMS(frame) >= d.cfg.Threshold

	if !d.speaking {
		if !voiced {
			return EventNone
		}
		d.speaking = true
		d.speechMs = frameMs
		d.silenceMs = 0
		return EventSpeechStart
	}

	if voiced {
		d.speechMs += frameMs
		d.silenceMs = 0
		return EventNone
	}

	d.silenceMs += frameMs
	if d.silenceMs < float64(d.cfg.SilenceMs) {
		return EventNone
	}

	long := d.speechMs >= float64(d.cfg.MinSpeechMs)
	d.Reset()
	if long {
		return EventSpeechEnd
	}
	return EventDiscarded
}

// Reset returns the detector to the idle state.
func (d *Detector) Reset() {
	d.speaking = false
	d.speechMs = 0
	d.silenceMs = 0
}

// RMS returns the root mean square of frame normalized to 0..1.
func RMS(frame []int16) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sum float64
	for _, s := range frame {
		v := float64(s) / 32768
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(frame)))
}

// Samples decodes little-endian 16-bit PCM bytes. A trailing odd byte is
// ignored.
func Samples(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(uint16(pcm[2*i]) | uint16(pcm[2*i+1])<<8)
	}
	return out
}
