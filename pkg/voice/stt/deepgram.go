package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
)

const (
	deepgramBaseURL  = "https://api.deepgram.com"
	DeepgramModel    = "nova-2-general"
	DeepgramLanguage = "en"
)

// DeepgramProvider implements Recognizer with Deepgram's pre-recorded API.
type DeepgramProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewDeepgram creates a new Deepgram recognizer.
func NewDeepgram(apiKey string) *DeepgramProvider {
	return NewDeepgramWithClient(apiKey, "", &http.Client{})
}

// NewDeepgramWithClient creates a Deepgram recognizer with a custom base URL
// and HTTP client. An empty baseURL selects the public endpoint.
func NewDeepgramWithClient(apiKey, baseURL string, client *http.Client) *DeepgramProvider {
	if baseURL == "" {
		baseURL = deepgramBaseURL
	}
	return &DeepgramProvider{
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: client,
	}
}

// Name returns the provider identifier.
func (d *DeepgramProvider) Name() string {
	return "deepgram"
}

// Transcribe converts audio to text using Deepgram's listen endpoint.
func (d *DeepgramProvider) Transcribe(ctx context.Context, pcm []byte, opts TranscribeOptions) (*Transcript, error) {
	if len(pcm) == 0 {
		return nil, ErrEmptyAudio
	}

	model := opts.Model
	if model == "" {
		model = DeepgramModel
	}
	language := opts.Language
	if language == "" {
		language = DeepgramLanguage
	}
	sampleRate := opts.SampleRate
	if sampleRate <= 0 {
		sampleRate = 16000
	}

	u, err := url.Parse(d.baseURL + "/v1/listen")
	if err != nil {
		return nil, fmt.Errorf("parse deepgram url: %w", err)
	}
	q := u.Query()
	q.Set("model", model)
	q.Set("language", language)
	q.Set("smart_format", "true")
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(sampleRate))
	q.Set("channels", "1")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(pcm))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+d.apiKey)
	req.Header.Set("Content-Type", "audio/l16")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("deepgram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("deepgram error %d: %s", resp.StatusCode, string(body))
	}

	var dgResp deepgramResponse
	if err := json.NewDecoder(resp.Body).Decode(&dgResp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	t := &Transcript{
		Language: language,
		Duration: dgResp.Metadata.Duration,
	}
	if t.Duration == 0 {
		t.Duration = pcmDuration(pcm, sampleRate)
	}
	if len(dgResp.Results.Channels) > 0 && len(dgResp.Results.Channels[0].Alternatives) > 0 {
		alt := dgResp.Results.Channels[0].Alternatives[0]
		t.Text = alt.Transcript
		t.Confidence = alt.Confidence
	}
	return t, nil
}

type deepgramResponse struct {
	Metadata struct {
		Duration float64 `json:"duration"`
	} `json:"metadata"`
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}
