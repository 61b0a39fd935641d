package toolexecutor

import "context"

type executionKey struct{}

// WithExecution returns ctx carrying the execution context of a tool call.
func WithExecution(ctx context.Context, execCtx *ExecutionContext) context.Context {
	if execCtx == nil {
		return ctx
	}
	return context.WithValue(ctx, executionKey{}, execCtx)
}

// ExecutionFrom returns the execution context of the running tool call, or nil.
func ExecutionFrom(ctx context.Context) *ExecutionContext {
	execCtx, _ := ctx.Value(executionKey{}).(*ExecutionContext)
	return execCtx
}

// Participant returns the identity whose turn triggered the running tool call.
func Participant(ctx context.Context) string {
	if execCtx := ExecutionFrom(ctx); execCtx != nil {
		return execCtx.Participant
	}
	return ""
}
