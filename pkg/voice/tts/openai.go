package tts

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	DefaultModel = "tts-1"
	DefaultVoice = "alloy"

	// OpenAI returns raw PCM at a fixed 24 kHz.
	openAIPCMSampleRate = 24000
)

// OpenAIProvider implements Synthesizer with OpenAI's speech endpoint.
type OpenAIProvider struct {
	client openai.Client
	model  string
	voice  string
}

// NewOpenAI creates an OpenAI synthesizer. Empty model or voice select
// tts-1 and alloy.
func NewOpenAI(apiKey, model, voice string, opts ...option.RequestOption) *OpenAIProvider {
	if model == "" {
		model = DefaultModel
	}
	if voice == "" {
		voice = DefaultVoice
	}
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &OpenAIProvider{
		client: openai.NewClient(opts...),
		model:  model,
		voice:  voice,
	}
}

// Name returns the provider identifier.
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// Voice returns the configured voice.
func (p *OpenAIProvider) Voice() string {
	return p.voice
}

// Synthesize converts text to 24 kHz PCM.
func (p *OpenAIProvider) Synthesize(ctx context.Context, text string) (*Synthesis, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	resp, err := p.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Input:          text,
		Model:          openai.SpeechModel(p.model),
		Voice:          openai.AudioSpeechNewParamsVoice(p.voice),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatPCM,
	})
	if err != nil {
		return nil, fmt.Errorf("openai speech request: %w", err)
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read speech audio: %w", err)
	}

	return &Synthesis{
		Audio:      audio,
		Format:     "pcm",
		SampleRate: openAIPCMSampleRate,
	}, nil
}
