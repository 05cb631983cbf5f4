package pipeline

import (
	"context"
	"log/slog"
	"time"
)

// Worker processes one job at a time.
type Worker struct {
	analyzer *Analyzer
	sink     Sink
	log      *slog.Logger
}

func NewWorker(analyzer *Analyzer, sink Sink, log *slog.Logger) *Worker {
	return &Worker{analyzer: analyzer, sink: sink, log: log}
}

// Process runs the analysis for job and publishes the result.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID, "file", job.Filename)
	log.Info("job started", "queued_ms", time.Since(job.CreatedAt).Milliseconds())

	result := w.analyzer.Run(ctx, Request{
		Data:     job.FileData(),
		Filename: job.Filename,
		RunID:    job.ID,
		OnPhase: func(p Phase) {
			job.SetStatus(statusFor(p), string(p))
		},
	})
	job.Finish(result)

	if w.sink == nil {
		return
	}
	// Publish even when the run was cancelled.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := w.sink.Publish(pubCtx, result); err != nil {
		log.Warn("publish result failed", "error", err)
		job.AddError("publish: " + err.Error())
	}
}
