package stt

import (
	"bytes"
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// WhisperProvider implements Recognizer with OpenAI's transcription API.
type WhisperProvider struct {
	client openai.Client
}

// NewWhisper creates a new Whisper recognizer.
func NewWhisper(apiKey string, opts ...option.RequestOption) *WhisperProvider {
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &WhisperProvider{client: openai.NewClient(opts...)}
}

// Name returns the provider identifier.
func (w *WhisperProvider) Name() string {
	return "whisper"
}

// Transcribe uploads the utterance as WAV and returns the recognized text.
func (w *WhisperProvider) Transcribe(ctx context.Context, pcm []byte, opts TranscribeOptions) (*Transcript, error) {
	if len(pcm) == 0 {
		return nil, ErrEmptyAudio
	}

	sampleRate := opts.SampleRate
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	model := openai.AudioModelWhisper1
	if opts.Model != "" {
		model = openai.AudioModel(opts.Model)
	}

	params := openai.AudioTranscriptionNewParams{
		File:  openai.File(bytes.NewReader(EncodeWAV(pcm, sampleRate)), "audio.wav", "audio/wav"),
		Model: model,
	}
	if opts.Language != "" {
		params.Language = openai.String(opts.Language)
	}

	resp, err := w.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("whisper request: %w", err)
	}

	return &Transcript{
		Text:     resp.Text,
		Language: opts.Language,
		Duration: pcmDuration(pcm, sampleRate),
	}, nil
}
