package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/training-scheduler-api/internal/models"
	"github.com/noah-isme/training-scheduler-api/pkg/jobs"
)

type statusUpdater interface {
	UpdateStatus(ctx context.Context, id string, window models.DateRange, status models.BatchStatus) error
}

type statusPersister interface {
	PersistStatus(ctx context.Context, batch models.Batch, status models.BatchStatus) error
}

// statusJob carries the dates a status was derived from, so a write queued
// before the batch was rescheduled cannot overwrite the newer status.
type statusJob struct {
	window models.DateRange
	status models.BatchStatus
}

// StatusWriter persists derived batch statuses on a background worker pool so
// list reads do not wait on one UPDATE per batch.
type StatusWriter struct {
	queue *jobs.Queue
	repo  statusUpdater
}

// NewStatusWriter builds a writer; call Start before use.
func NewStatusWriter(repo statusUpdater, cfg jobs.QueueConfig) *StatusWriter {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	w := &StatusWriter{repo: repo}
	w.queue = jobs.NewQueue("batch-status", w.handle, cfg)
	return w
}

// Start launches the workers.
func (w *StatusWriter) Start(ctx context.Context) { w.queue.Start(ctx) }

// Stop halts the workers. Unwritten statuses are derived again on the next read.
func (w *StatusWriter) Stop() { w.queue.Stop() }

// PersistStatus schedules the write and returns without waiting for it. When
// the buffer is full the write happens on the caller's goroutine instead.
func (w *StatusWriter) PersistStatus(ctx context.Context, batch models.Batch, status models.BatchStatus) error {
	err := w.queue.TryEnqueue(jobs.Job{Key: batch.ID, Payload: statusJob{window: batch.Range(), status: status}})
	if errors.Is(err, jobs.ErrQueueFull) {
		return w.repo.UpdateStatus(ctx, batch.ID, batch.Range(), status)
	}
	return err
}

func (w *StatusWriter) handle(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(statusJob)
	if !ok {
		return fmt.Errorf("unexpected payload %T for batch %s", job.Payload, job.Key)
	}
	return w.repo.UpdateStatus(ctx, job.Key, payload.window, payload.status)
}

// inlineStatusWriter writes statuses on the caller's goroutine.
type inlineStatusWriter struct {
	repo statusUpdater
}

func (w inlineStatusWriter) PersistStatus(ctx context.Context, batch models.Batch, status models.BatchStatus) error {
	return w.repo.UpdateStatus(ctx, batch.ID, batch.Range(), status)
}
