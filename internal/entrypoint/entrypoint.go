// Package entrypoint assembles a voice agent job from configuration.
package entrypoint

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/harun/ranya-voice/internal/config"
	"github.com/harun/ranya-voice/pkg/agent"
	"github.com/harun/ranya-voice/pkg/assistant"
	"github.com/harun/ranya-voice/pkg/docstore"
	"github.com/harun/ranya-voice/pkg/gateway"
	"github.com/harun/ranya-voice/pkg/livekit"
	"github.com/harun/ranya-voice/pkg/relay"
	"github.com/harun/ranya-voice/pkg/session"
	"github.com/harun/ranya-voice/pkg/toolexecutor"
	"github.com/harun/ranya-voice/pkg/transport"
	"github.com/harun/ranya-voice/pkg/voice/stt"
	"github.com/harun/ranya-voice/pkg/voice/tts"
	"github.com/harun/ranya-voice/pkg/voice/vad"
	"github.com/harun/ranya-voice/pkg/worker"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog"
)

const closeTimeout = 5 * time.Second

// newProvider is replaced in tests.
var newProvider = func(cfg config.LLMConfig) (agent.LLMProvider, error) {
	return (&agent.ProviderFactory{}).NewProvider(cfg)
}

// Runtime is the set of components serving one job.
type Runtime struct {
	Transport *transport.FanOut
	Assistant *assistant.Assistant
	Tools     *toolexecutor.ToolExecutor
	Runner    *agent.Runner
	Session   *session.Session
	Documents *docstore.Store

	closers []func() error
}

// Close releases every component in reverse construction order.
func (r *Runtime) Close() error {
	if r == nil {
		return nil
	}
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}

func (r *Runtime) onClose(fn func() error) {
	r.closers = append(r.closers, fn)
}

// Run builds the job's components and hosts the session until ctx is done.
func Run(ctx context.Context, job *worker.JobContext) error {
	rt, err := Build(ctx, job.Config, job.ID, job.Logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := rt.Close(); cerr != nil {
			job.Logger.Warn().Err(cerr).Msg("Failed to release job resources")
		}
	}()

	return rt.Session.Start(ctx)
}

// Build constructs, in order: transport, speech recognizer, language model,
// synthesizer, document index, assistant and its tools, then the session.
// On failure everything built so far is released.
func Build(ctx context.Context, cfg *config.Config, jobID string, logger zerolog.Logger) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	rt := &Runtime{}
	built := false
	defer func() {
		if !built {
			_ = rt.Close()
		}
	}()

	fanout, err := buildTransport(ctx, cfg, jobID, logger, rt)
	if err != nil {
		return nil, fmt.Errorf("failed to build transport: %w", err)
	}
	rt.Transport = fanout

	recognizer, err := buildSTT(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build stt: %w", err)
	}

	provider, err := newProvider(cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("failed to build llm: %w", err)
	}

	synth, err := buildTTS(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build tts: %w", err)
	}

	// With no transport the assistant and session run detached.
	var publisher transport.Publisher
	if fanout.Len() > 0 {
		publisher = fanout
	}

	opts := assistant.Options{
		Publisher:   publisher,
		SearchLimit: cfg.Documents.Limit,
		Logger:      logger.With().Str("component", "assistant").Logger(),
	}
	if cfg.Documents.Enabled {
		store, err := buildDocuments(ctx, cfg, logger, rt)
		if err != nil {
			return nil, fmt.Errorf("failed to build document index: %w", err)
		}
		rt.Documents = store
		opts.Searcher = store
	}
	rt.Assistant = assistant.New(opts)

	rt.Tools = toolexecutor.New()
	if cfg.Tools.TimeoutSeconds > 0 {
		rt.Tools.SetDefaultTimeout(time.Duration(cfg.Tools.TimeoutSeconds) * time.Second)
	}
	if err := rt.Assistant.RegisterTools(rt.Tools); err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}

	rt.Runner, err = agent.NewRunner(agent.Config{
		Provider:     provider,
		ToolExecutor: rt.Tools,
		ToolPolicy:   &toolexecutor.ToolPolicy{Allow: cfg.Tools.Allow, Deny: cfg.Tools.Deny},
		Model:        cfg.LLM.Model,
		Temperature:  cfg.LLM.Temperature,
		MaxTokens:    cfg.LLM.MaxTokens,
		MaxToolTurns: cfg.LLM.MaxToolTurns,
		Logger:       logger.With().Str("component", "agent").Logger(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build agent runner: %w", err)
	}

	sessCfg := session.Config{
		JobID:     jobID,
		Runner:    rt.Runner,
		Chat:      agent.NewChatContext(systemPrompt(cfg)),
		Publisher: publisher,
		Inbound:   fanout,
		Logger:    logger.With().Str("component", "session").Logger(),
	}
	if recognizer != nil {
		sessCfg.STT = recognizer
	}
	if synth != nil && publisher != nil {
		sessCfg.TTS = synth
		sessCfg.AudioSink = session.NewPublisherSink(publisher, 0)
	}
	if cfg.DataDir != "" {
		transcripts, err := session.NewTranscriptLog(filepath.Join(cfg.DataDir, "transcripts"))
		if err != nil {
			return nil, fmt.Errorf("failed to open transcript log: %w", err)
		}
		sessCfg.Transcripts = transcripts
	}

	rt.Session, err = session.New(sessCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build session: %w", err)
	}

	logger.Info().
		Strs("transports", cfg.Transports).
		Str("stt", cfg.STT.Provider).
		Str("llm", provider.Provider()).
		Str("model", cfg.LLM.Model).
		Str("tts", cfg.TTS.Provider).
		Int("tools", rt.Tools.GetToolCount()).
		Bool("documents", rt.Documents != nil).
		Msg("Job components ready")

	built = true
	return rt, nil
}

func systemPrompt(cfg *config.Config) string {
	if cfg.LLM.SystemPrompt != "" {
		return cfg.LLM.SystemPrompt
	}
	return config.DefaultSystemPrompt
}

func buildTransport(ctx context.Context, cfg *config.Config, jobID string, logger zerolog.Logger, rt *Runtime) (*transport.FanOut, error) {
	var publishers []transport.Publisher

	for _, name := range cfg.Transports {
		switch strings.ToLower(name) {
		case "livekit":
			lk := livekit.New(livekit.Config{
				URL:       cfg.LiveKit.URL,
				APIKey:    cfg.LiveKit.APIKey,
				APISecret: cfg.LiveKit.APISecret,
				Room:      cfg.LiveKit.Room,
				Identity:  cfg.LiveKit.Identity,
				Logger:    logger,
			})
			if err := lk.Connect(ctx); err != nil {
				return nil, err
			}
			rt.onClose(lk.Close)
			publishers = append(publishers, lk)

		case "gateway":
			gw, err := gateway.NewServer(gateway.Config{
				Host:         cfg.Gateway.Host,
				Port:         cfg.Gateway.Port,
				SharedSecret: cfg.Gateway.SharedSecret,
				Logger:       logger,
			})
			if err != nil {
				return nil, err
			}
			if err := gw.Start(); err != nil {
				return nil, err
			}
			rt.onClose(func() error {
				stopCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
				defer cancel()
				return gw.Stop(stopCtx)
			})
			publishers = append(publishers, gw)

		case "redis":
			room := cfg.LiveKit.Room
			if room == "" {
				room = jobID
			}
			rl, err := relay.New(ctx, relay.Config{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
				Prefix:   cfg.Redis.ChannelPrefix,
				Room:     room,
				Logger:   logger,
			})
			if err != nil {
				return nil, err
			}
			rt.onClose(rl.Close)
			if err := rl.Start(ctx); err != nil {
				return nil, err
			}
			publishers = append(publishers, rl)

		default:
			return nil, fmt.Errorf("unknown transport %q", name)
		}
	}

	if len(publishers) == 0 {
		logger.Warn().Msg("No transport configured, assistant runs detached")
	}
	return transport.NewFanOut(publishers...), nil
}

func buildSTT(cfg *config.Config, logger zerolog.Logger) (*stt.StreamAdapter, error) {
	var recognizer stt.Recognizer
	model := cfg.STT.Model

	switch strings.ToLower(cfg.STT.Provider) {
	case "deepgram":
		recognizer = stt.NewDeepgramWithClient(cfg.STT.APIKey, cfg.STT.BaseURL, &http.Client{Timeout: 30 * time.Second})
	case "whisper":
		var opts []option.RequestOption
		if cfg.STT.BaseURL != "" {
			opts = append(opts, option.WithBaseURL(cfg.STT.BaseURL))
		}
		recognizer = stt.NewWhisper(cfg.STT.APIKey, opts...)
		if model == stt.DeepgramModel {
			model = ""
		}
	case "", "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported stt provider: %s", cfg.STT.Provider)
	}

	detector, err := vad.New(vad.Config{
		Threshold:    cfg.VAD.Threshold,
		SilenceMs:    cfg.VAD.SilenceMs,
		MinSpeechMs:  cfg.VAD.MinSpeechMs,
		SampleRate:   cfg.VAD.SampleRate,
		FrameSamples: cfg.VAD.FrameSamples,
	})
	if err != nil {
		return nil, err
	}

	return stt.NewStreamAdapter(recognizer, detector, stt.TranscribeOptions{
		Model:    model,
		Language: cfg.STT.Language,
	}, logger.With().Str("component", "stt").Logger())
}

func buildTTS(cfg *config.Config) (tts.Synthesizer, error) {
	switch strings.ToLower(cfg.TTS.Provider) {
	case "openai":
		return tts.NewOpenAI(cfg.TTS.APIKey, cfg.TTS.Model, cfg.TTS.Voice), nil
	case "", "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported tts provider: %s", cfg.TTS.Provider)
	}
}

func buildDocuments(ctx context.Context, cfg *config.Config, logger zerolog.Logger, rt *Runtime) (*docstore.Store, error) {
	store, err := docstore.Open(docstore.Config{
		Dir:    cfg.Documents.Dir,
		DBPath: cfg.Documents.DBPath,
		Logger: logger.With().Str("component", "docstore").Logger(),
	})
	if err != nil {
		return nil, err
	}
	rt.onClose(store.Close)

	changed, err := store.Sync(ctx)
	if err != nil {
		return nil, err
	}
	logger.Info().Int("changed", changed).Str("dir", cfg.Documents.Dir).Msg("Documents indexed")

	if cfg.Documents.Watch {
		if err := store.Watch(ctx); err != nil {
			return nil, err
		}
	}
	return store, nil
}
