package tracing

import (
	"context"

	"github.com/google/uuid"
)

// ContextKey is the type for context keys
type ContextKey string

const (
	// TraceIDKey is the context key for trace ID
	TraceIDKey ContextKey = "trace_id"
	// JobIDKey is the context key for the worker job ID
	JobIDKey ContextKey = "job_id"
	// RoomKey is the context key for the room the job serves
	RoomKey ContextKey = "room"
	// TurnIDKey is the context key for the current conversation turn
	TurnIDKey ContextKey = "turn_id"
	// ParticipantKey is the context key for the remote participant that started a turn
	ParticipantKey ContextKey = "participant"
)

// TraceContext holds tracing information
type TraceContext struct {
	TraceID     string
	JobID       string
	Room        string
	TurnID      string
	Participant string
}

// NewTraceID generates a new trace ID
func NewTraceID() string {
	return uuid.New().String()
}

// NewJobID generates a new job ID
func NewJobID() string {
	return uuid.New().String()
}

// NewTurnID generates a new turn ID
func NewTurnID() string {
	return uuid.New().String()
}

func withValue(ctx context.Context, key ContextKey, value string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, key, value)
}

func getValue(ctx context.Context, key ContextKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// WithTraceID adds a trace ID to the context
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return withValue(ctx, TraceIDKey, traceID)
}

// WithJobID adds a job ID to the context
func WithJobID(ctx context.Context, jobID string) context.Context {
	return withValue(ctx, JobIDKey, jobID)
}

// WithRoom adds a room name to the context
func WithRoom(ctx context.Context, room string) context.Context {
	return withValue(ctx, RoomKey, room)
}

// WithTurnID adds a turn ID to the context
func WithTurnID(ctx context.Context, turnID string) context.Context {
	return withValue(ctx, TurnIDKey, turnID)
}

// WithParticipant adds a participant identity to the context
func WithParticipant(ctx context.Context, identity string) context.Context {
	return withValue(ctx, ParticipantKey, identity)
}

// GetTraceID retrieves the trace ID from the context
func GetTraceID(ctx context.Context) string { return getValue(ctx, TraceIDKey) }

// GetJobID retrieves the job ID from the context
func GetJobID(ctx context.Context) string { return getValue(ctx, JobIDKey) }

// GetRoom retrieves the room name from the context
func GetRoom(ctx context.Context) string { return getValue(ctx, RoomKey) }

// GetTurnID retrieves the turn ID from the context
func GetTurnID(ctx context.Context) string { return getValue(ctx, TurnIDKey) }

// GetParticipant retrieves the participant identity from the context
func GetParticipant(ctx context.Context) string { return getValue(ctx, ParticipantKey) }

// FromContext extracts all tracing information from the context
func FromContext(ctx context.Context) *TraceContext {
	return &TraceContext{
		TraceID:     GetTraceID(ctx),
		JobID:       GetJobID(ctx),
		Room:        GetRoom(ctx),
		TurnID:      GetTurnID(ctx),
		Participant: GetParticipant(ctx),
	}
}

// NewJobContext starts a job-scoped context carrying a fresh trace ID.
func NewJobContext(ctx context.Context, jobID, room string) context.Context {
	ctx = WithTraceID(ctx, NewTraceID())
	ctx = WithJobID(ctx, jobID)
	if room != "" {
		ctx = WithRoom(ctx, room)
	}
	return ctx
}

// NewTurnContext derives a context for one conversation turn. The trace and
// job IDs are inherited; the turn ID is always new.
func NewTurnContext(ctx context.Context, participant string) context.Context {
	if GetTraceID(ctx) == "" {
		ctx = WithTraceID(ctx, NewTraceID())
	}
	ctx = WithTurnID(ctx, NewTurnID())
	if participant != "" {
		ctx = WithParticipant(ctx, participant)
	}
	return ctx
}
