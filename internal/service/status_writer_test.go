package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/training-scheduler-api/internal/models"
	"github.com/noah-isme/training-scheduler-api/pkg/jobs"
)

type recordingStatusRepo struct {
	mu      sync.Mutex
	updates map[string]models.BatchStatus
	failFor string
	done    chan string
	// blockOn holds the write for that id until gate is closed.
	blockOn string
	entered chan string
	gate    chan struct{}
}

func (r *recordingStatusRepo) UpdateStatus(_ context.Context, id string, _ models.DateRange, status models.BatchStatus) error {
	if id == r.failFor {
		return errors.New("write failed")
	}
	if id == r.blockOn {
		r.entered <- id
		<-r.gate
	}
	r.mu.Lock()
	r.updates[id] = status
	r.mu.Unlock()
	r.done <- id
	return nil
}

func statusBatch(id string) models.Batch {
	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	return models.Batch{ID: id, FromDate: from, ToDate: from.AddDate(0, 0, 2)}
}

func TestStatusWriterPersistsInBackground(t *testing.T) {
	repo := &recordingStatusRepo{updates: map[string]models.BatchStatus{}, done: make(chan string, 4)}
	writer := NewStatusWriter(repo, jobs.QueueConfig{Workers: 1, MaxRetries: 0})
	writer.Start(context.Background())
	defer writer.Stop()

	require.NoError(t, writer.PersistStatus(context.Background(), statusBatch("b1"), models.BatchStatusOngoing))

	select {
	case id := <-repo.done:
		assert.Equal(t, "b1", id)
	case <-time.After(time.Second):
		t.Fatal("status was not written")
	}
	repo.mu.Lock()
	defer repo.mu.Unlock()
	assert.Equal(t, models.BatchStatusOngoing, repo.updates["b1"])
}

func TestStatusWriterRejectsWhenStopped(t *testing.T) {
	repo := &recordingStatusRepo{updates: map[string]models.BatchStatus{}, done: make(chan string, 1)}
	writer := NewStatusWriter(repo, jobs.QueueConfig{})
	assert.Error(t, writer.PersistStatus(context.Background(), statusBatch("b1"), models.BatchStatusCompleted))
}

func TestStatusWriterWritesInlineWhenQueueFull(t *testing.T) {
	repo := &recordingStatusRepo{
		updates: map[string]models.BatchStatus{},
		done:    make(chan string, 4),
		blockOn: "b1",
		entered: make(chan string, 1),
		gate:    make(chan struct{}),
	}
	writer := NewStatusWriter(repo, jobs.QueueConfig{Workers: 1, BufferSize: 1})
	writer.Start(context.Background())
	defer writer.Stop()

	require.NoError(t, writer.PersistStatus(context.Background(), statusBatch("b1"), models.BatchStatusOngoing))
	select {
	case <-repo.entered:
	case <-time.After(time.Second):
		close(repo.gate)
		t.Fatal("worker did not pick up the first job")
	}
	require.NoError(t, writer.PersistStatus(context.Background(), statusBatch("b2"), models.BatchStatusOngoing))
	require.NoError(t, writer.PersistStatus(context.Background(), statusBatch("b3"), models.BatchStatusCompleted))

	repo.mu.Lock()
	inline := repo.updates["b3"]
	repo.mu.Unlock()
	assert.Equal(t, models.BatchStatusCompleted, inline)
	close(repo.gate)
}

func TestInlineStatusWriterSkipsRescheduledBatch(t *testing.T) {
	stored := existingBatch(t, "b1", instructorA, courseGo, "2024-03-10", "2024-03-15")
	repo := newStubBatchRepo(stored)
	stale := stored
	stale.ToDate = day(t, "2024-03-12")

	require.NoError(t, inlineStatusWriter{repo: repo}.PersistStatus(context.Background(), stale, models.BatchStatusCompleted))
	assert.Empty(t, repo.statusUpdates)

	require.NoError(t, inlineStatusWriter{repo: repo}.PersistStatus(context.Background(), stored, models.BatchStatusOngoing))
	assert.Equal(t, models.BatchStatusOngoing, repo.statusUpdates["b1"])
}

func TestBookingListUsesStatusWriter(t *testing.T) {
	f := newBookingFixture(t, BookingConfig{}, existingBatch(t, "b1", instructorA, courseGo, "2024-02-01", "2024-02-03"))
	repo := &recordingStatusRepo{updates: map[string]models.BatchStatus{}, done: make(chan string, 1)}
	writer := NewStatusWriter(repo, jobs.QueueConfig{Workers: 1})
	writer.Start(context.Background())
	defer writer.Stop()
	f.svc.UseStatusWriter(writer)

	batches, err := f.svc.List(context.Background(), models.BatchFilter{})
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, models.BatchStatusCompleted, batches[0].Status)

	select {
	case id := <-repo.done:
		assert.Equal(t, "b1", id)
	case <-time.After(time.Second):
		t.Fatal("status was not written")
	}
	assert.Empty(t, f.batches.statusUpdates, "inline writes are replaced by the worker")
}
