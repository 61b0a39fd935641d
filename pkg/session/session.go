package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/harun/ranya-voice/internal/observability"
	"github.com/harun/ranya-voice/internal/tracing"
	"github.com/harun/ranya-voice/pkg/agent"
	"github.com/harun/ranya-voice/pkg/toolexecutor"
	"github.com/harun/ranya-voice/pkg/transport"
	"github.com/harun/ranya-voice/pkg/voice/stt"
	"github.com/harun/ranya-voice/pkg/voice/tts"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

// Turn sources.
const (
	SourceChat  = "chat"
	SourceVoice = "voice"
)

// MessageTypeTranscript is the frontend message type for spoken or typed turns.
const MessageTypeTranscript = "transcript"

// DefaultQueueSize is the turn buffer used when Config.QueueSize is zero.
const DefaultQueueSize = 64

// DefaultAudioQueueSize is the audio buffer used when Config.AudioQueueSize is
// zero; about ten seconds of 20ms frames.
const DefaultAudioQueueSize = 512

var (
	ErrQueueFull     = errors.New("session input queue full")
	ErrClosed        = errors.New("session closed")
	ErrNoRecognizer  = errors.New("session has no speech recognizer")
	ErrAlreadyActive = errors.New("session already started")
)

// Turner produces the assistant's reply for the conversation so far.
type Turner interface {
	Run(ctx context.Context, chat *agent.ChatContext, execCtx *toolexecutor.ExecutionContext) (agent.TurnResult, error)
}

// Recognizer is the streaming speech input of a session.
type Recognizer interface {
	Name() string
	Push(ctx context.Context, pcm []byte) ([]stt.Transcript, error)
}

// AudioSink plays synthesized replies.
type AudioSink interface {
	WriteAudio(ctx context.Context, audio *tts.Synthesis) error
}

// Config holds session dependencies. Runner and Chat are required.
type Config struct {
	JobID       string
	Runner      Turner
	Chat        *agent.ChatContext
	STT         Recognizer
	TTS         tts.Synthesizer
	AudioSink   AudioSink
	Publisher   transport.Publisher
	Inbound     transport.Subscriber
	Transcripts *TranscriptLog
	// QueueSize bounds pending turns; AudioQueueSize bounds pending PCM chunks.
	QueueSize      int
	AudioQueueSize int
	Logger         zerolog.Logger
}

type input struct {
	from   string
	text   string
	source string
	audio  []byte
}

// Session hosts one conversation. Turns run one at a time on the goroutine
// calling Start. Audio is recognized on a separate goroutine so frames keep
// flowing into the recognizer while a turn is in progress; finished
// utterances join the turn queue.
type Session struct {
	jobID       string
	runner      Turner
	chat        *agent.ChatContext
	stt         Recognizer
	tts         tts.Synthesizer
	sink        AudioSink
	publisher   transport.Publisher
	inbound     transport.Subscriber
	transcripts *TranscriptLog
	logger      zerolog.Logger

	inputs  chan input
	audio   chan input
	done    chan struct{}
	started atomic.Bool
}

// New creates a session.
func New(cfg Config) (*Session, error) {
	if cfg.Runner == nil {
		return nil, fmt.Errorf("session runner is required")
	}
	if cfg.Chat == nil {
		return nil, fmt.Errorf("session chat context is required")
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = DefaultQueueSize
	}
	audioSize := cfg.AudioQueueSize
	if audioSize <= 0 {
		audioSize = DefaultAudioQueueSize
	}

	observability.EnsureRegistered()

	return &Session{
		jobID:       cfg.JobID,
		runner:      cfg.Runner,
		chat:        cfg.Chat,
		stt:         cfg.STT,
		tts:         cfg.TTS,
		sink:        cfg.AudioSink,
		publisher:   cfg.Publisher,
		inbound:     cfg.Inbound,
		transcripts: cfg.Transcripts,
		logger:      cfg.Logger,
		inputs:      make(chan input, size),
		audio:       make(chan input, audioSize),
		done:        make(chan struct{}),
	}, nil
}

// Chat returns the session's conversation history.
func (s *Session) Chat() *agent.ChatContext {
	return s.chat
}

// Start subscribes to inbound data and processes inputs until ctx is done.
// Cancellation is a normal shutdown and returns nil.
func (s *Session) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyActive
	}
	defer close(s.done)

	var wg sync.WaitGroup
	defer wg.Wait()
	if s.stt != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.recognize(ctx)
		}()
	}

	if s.inbound != nil {
		s.inbound.OnData(s.handleData)
	}

	observability.AddActiveSessions(1)
	defer observability.AddActiveSessions(-1)

	logger := tracing.LoggerFromContext(ctx, s.logger)
	logger.Info().
		Bool("stt", s.stt != nil).
		Bool("tts", s.tts != nil).
		Bool("publisher", s.publisher != nil).
		Msg("Session started")

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("Session ended")
			return nil
		case in := <-s.inputs:
			if in.source == SourceVoice {
				s.publishTranscript(ctx, agent.RoleUser, in.text)
			}
			s.runTurn(ctx, in.source, in.from, in.text)
		}
	}
}

// SubmitText queues a typed user message.
func (s *Session) SubmitText(from, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	return s.enqueue(s.inputs, input{from: from, text: text, source: SourceChat})
}

// PushAudio queues a chunk of 16-bit mono PCM for recognition.
func (s *Session) PushAudio(from string, pcm []byte) error {
	if s.stt == nil {
		return ErrNoRecognizer
	}
	if len(pcm) == 0 {
		return nil
	}
	return s.enqueue(s.audio, input{from: from, audio: pcm})
}

func (s *Session) enqueue(queue chan input, in input) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}

	select {
	case queue <- in:
		return nil
	case <-s.done:
		return ErrClosed
	default:
		return ErrQueueFull
	}
}

func (s *Session) handleData(msg transport.DataMessage) {
	var err error
	switch msg.Topic {
	case transport.TopicChat:
		err = s.SubmitText(msg.From, string(msg.Payload))
	case transport.TopicAudio:
		err = s.PushAudio(msg.From, msg.Payload)
	default:
		return
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("from", msg.From).Str("topic", msg.Topic).Msg("Dropped inbound data")
	}
}

// recognize feeds queued audio to the recognizer until ctx is done and turns
// each finished utterance into a voice turn.
func (s *Session) recognize(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case in := <-s.audio:
			transcripts, err := s.stt.Push(ctx, in.audio)
			if err != nil {
				s.logger.Warn().Err(err).Str("provider", s.stt.Name()).Msg("Speech recognition failed")
			}
			for _, t := range transcripts {
				if strings.TrimSpace(t.Text) == "" {
					continue
				}
				select {
				case s.inputs <- input{from: in.from, text: t.Text, source: SourceVoice}:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

// runTurn adds the user message, asks the model and emits the reply.
func (s *Session) runTurn(ctx context.Context, source, from, text string) {
	start := time.Now()

	ctx = tracing.NewTurnContext(ctx, from)
	ctx, span := tracing.StartSpan(ctx, "ranya.session", "session.turn",
		attribute.String("source", source),
		attribute.String("participant", from),
	)
	logger := tracing.LoggerFromContext(ctx, s.logger)

	s.record(TranscriptEntry{Role: agent.RoleUser, Text: text, Source: source, Participant: from})
	s.chat.Append(agent.AgentMessage{Role: agent.RoleUser, Content: text})

	result, err := s.runner.Run(ctx, s.chat, &toolexecutor.ExecutionContext{
		JobID:       s.jobID,
		Participant: from,
	})
	observability.RecordTurn(source, time.Since(start), err == nil)
	tracing.EndSpan(span, err)
	if err != nil {
		logger.Error().Err(err).Str("source", source).Msg("Turn failed")
		return
	}

	logger.Info().
		Str("source", source).
		Int("tool_calls", len(result.ToolCalls)).
		Dur("duration", time.Since(start)).
		Msg("Turn completed")

	reply := strings.TrimSpace(result.Response)
	if reply == "" {
		return
	}

	s.record(TranscriptEntry{
		Role:     agent.RoleAssistant,
		Text:     reply,
		Source:   source,
		Metadata: map[string]interface{}{"tool_calls": len(result.ToolCalls)},
	})
	s.publishTranscript(ctx, agent.RoleAssistant, reply)
	s.speak(ctx, reply)
}

func (s *Session) publishTranscript(ctx context.Context, role, text string) {
	if s.publisher == nil {
		return
	}
	payload, err := json.Marshal(map[string]string{
		"type": MessageTypeTranscript,
		"role": role,
		"text": text,
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode transcript")
		return
	}
	if err := s.publisher.Publish(ctx, payload, transport.PublishOptions{
		Topic:    transport.TopicTranscription,
		Reliable: true,
	}); err != nil {
		logger := tracing.LoggerFromContext(ctx, s.logger)
		logger.Warn().Err(err).Str("role", role).Msg("Failed to publish transcript")
	}
}

func (s *Session) speak(ctx context.Context, text string) {
	if s.tts == nil || s.sink == nil {
		return
	}
	logger := tracing.LoggerFromContext(ctx, s.logger)

	start := time.Now()
	audio, err := s.tts.Synthesize(ctx, text)
	observability.RecordTTS(s.tts.Name(), time.Since(start))
	if err != nil {
		logger.Warn().Err(err).Str("provider", s.tts.Name()).Msg("Speech synthesis failed")
		return
	}
	if err := s.sink.WriteAudio(ctx, audio); err != nil {
		logger.Warn().Err(err).Msg("Failed to play synthesized audio")
	}
}

func (s *Session) record(entry TranscriptEntry) {
	if s.transcripts == nil || s.jobID == "" {
		return
	}
	entry.JobID = s.jobID
	if err := s.transcripts.Append(entry); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to persist transcript entry")
	}
}
