package tracing

import (
	"context"

	"github.com/rs/zerolog"
)

// LoggerFromContext returns baseLogger enriched with whatever tracing IDs ctx carries.
func LoggerFromContext(ctx context.Context, baseLogger zerolog.Logger) zerolog.Logger {
	tc := FromContext(ctx)
	lc := baseLogger.With()

	if tc.TraceID != "" {
		lc = lc.Str("trace_id", tc.TraceID)
	}
	if tc.JobID != "" {
		lc = lc.Str("job_id", tc.JobID)
	}
	if tc.Room != "" {
		lc = lc.Str("room", tc.Room)
	}
	if tc.TurnID != "" {
		lc = lc.Str("turn_id", tc.TurnID)
	}
	if tc.Participant != "" {
		lc = lc.Str("participant", tc.Participant)
	}

	return lc.Logger()
}

// Detach copies the tracing IDs of ctx onto a fresh background context, for
// work that must outlive the caller's cancellation.
func Detach(ctx context.Context) context.Context {
	tc := FromContext(ctx)
	out := context.Background()

	if tc.TraceID != "" {
		out = WithTraceID(out, tc.TraceID)
	}
	if tc.JobID != "" {
		out = WithJobID(out, tc.JobID)
	}
	if tc.Room != "" {
		out = WithRoom(out, tc.Room)
	}
	if tc.TurnID != "" {
		out = WithTurnID(out, tc.TurnID)
	}
	if tc.Participant != "" {
		out = WithParticipant(out, tc.Participant)
	}
	return out
}
