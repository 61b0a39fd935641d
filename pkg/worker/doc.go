// Package worker bootstraps a voice agent job.
//
// Run assigns the job an ID, runs the optional prewarm hook, then blocks in
// the entrypoint until the context is cancelled (or SIGINT/SIGTERM arrives
// when HandleSignals is set). While the job runs, /metrics and /healthz are
// served on MetricsAddr if one is configured.
//
// Usage:
//
//	err := worker.Run(ctx, worker.WorkerOptions{
//		Entrypoint:    entrypoint.Run,
//		Prewarm:       nil,
//		Config:        cfg,
//		HandleSignals: true,
//	})
package worker
