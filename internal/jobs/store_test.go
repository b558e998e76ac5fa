package jobs

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	storage "github.com/crewdesk/crewdesk/internal/storage/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := storage.NewDB(context.Background(), filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(db)
}

func enqueue(t *testing.T, s *Store, queue, key string) string {
	t.Helper()
	id, created, err := s.Enqueue(context.Background(), EnqueueRequest{
		Queue:   queue,
		Key:     key,
		Payload: map[string]string{"k": "v"},
	})
	require.NoError(t, err)
	require.True(t, created)
	return id
}

func TestStore_EnqueueAndClaim(t *testing.T) {
	s := newTestStore(t)
	id := enqueue(t, s, QueueAIResponse, "job-1")

	job, err := s.ClaimNext(context.Background(), QueueAIResponse)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, id, job.ID)
	assert.Equal(t, StatusActive, job.Status)
	assert.Equal(t, 1, job.Attempts)
	assert.JSONEq(t, `{"k": "v"}`, string(job.Payload))

	// Nothing else to claim.
	job, err = s.ClaimNext(context.Background(), QueueAIResponse)
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestStore_EnqueueCollapsesLiveDuplicates(t *testing.T) {
	s := newTestStore(t)
	first := enqueue(t, s, QueueIngestion, "ingest-src-1")

	id, created, err := s.Enqueue(context.Background(), EnqueueRequest{
		Queue:   QueueIngestion,
		Key:     "ingest-src-1",
		Payload: map[string]string{"k": "other"},
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first, id)

	// After completion the key is free again.
	job, err := s.ClaimNext(context.Background(), QueueIngestion)
	require.NoError(t, err)
	require.NotNil(t, job)
	require.NoError(t, s.Complete(context.Background(), job.ID))

	_, created, err = s.Enqueue(context.Background(), EnqueueRequest{
		Queue:   QueueIngestion,
		Key:     "ingest-src-1",
		Payload: map[string]string{},
	})
	require.NoError(t, err)
	assert.True(t, created)
}

func TestStore_ClaimRespectsQueueAndDelay(t *testing.T) {
	s := newTestStore(t)
	enqueue(t, s, QueueAIResponse, "other-queue")

	_, created, err := s.Enqueue(context.Background(), EnqueueRequest{
		Queue:   QueueIngestion,
		Key:     "delayed",
		Payload: map[string]string{},
		Delay:   time.Hour,
	})
	require.NoError(t, err)
	require.True(t, created)

	// The ingestion queue only holds a future job.
	job, err := s.ClaimNext(context.Background(), QueueIngestion)
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestStore_CompleteSetsProgressAndFinish(t *testing.T) {
	s := newTestStore(t)
	enqueue(t, s, QueueAIResponse, "done")

	job, err := s.ClaimNext(context.Background(), QueueAIResponse)
	require.NoError(t, err)
	require.NoError(t, s.Complete(context.Background(), job.ID))

	got, err := s.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, 100, got.Progress)
	require.NotNil(t, got.FinishedAt)
}

func TestStore_FailRequeuesWithBackoff(t *testing.T) {
	s := newTestStore(t)
	enqueue(t, s, QueueAIResponse, "retry")

	job, err := s.ClaimNext(context.Background(), QueueAIResponse)
	require.NoError(t, err)

	before := time.Now().UTC()
	require.NoError(t, s.Fail(context.Background(), job.ID, "transient", false))

	got, err := s.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, got.Status)
	assert.Equal(t, "transient", got.LastError)
	// First retry backs off by the base delay.
	assert.True(t, got.RunAfter.After(before.Add(500*time.Millisecond)))

	// Not claimable until the backoff elapses.
	claimed, err := s.ClaimNext(context.Background(), QueueAIResponse)
	require.NoError(t, err)
	assert.Nil(t, claimed)
}

func TestStore_FailExhaustsAttempts(t *testing.T) {
	s := newTestStore(t)
	_, created, err := s.Enqueue(context.Background(), EnqueueRequest{
		Queue:       QueueAIResponse,
		Key:         "doomed",
		Payload:     map[string]string{},
		MaxAttempts: 1,
	})
	require.NoError(t, err)
	require.True(t, created)

	job, err := s.ClaimNext(context.Background(), QueueAIResponse)
	require.NoError(t, err)
	require.NoError(t, s.Fail(context.Background(), job.ID, "still broken", false))

	got, err := s.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDead, got.Status)
	require.NotNil(t, got.FinishedAt)
}

func TestStore_FailUnrecoverableDiesImmediately(t *testing.T) {
	s := newTestStore(t)
	enqueue(t, s, QueueAIResponse, "poison")

	job, err := s.ClaimNext(context.Background(), QueueAIResponse)
	require.NoError(t, err)
	// Three attempts remain, but unrecoverable wins.
	require.NoError(t, s.Fail(context.Background(), job.ID, "bad payload", true))

	got, err := s.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDead, got.Status)
	assert.Equal(t, 1, got.Attempts)
}

func TestStore_ReclaimOrphaned(t *testing.T) {
	s := newTestStore(t)
	enqueue(t, s, QueueIngestion, "ingest-src-1")
	enqueue(t, s, QueueAIResponse, "fine")

	// One job is mid-flight, the other already finished.
	orphan, err := s.ClaimNext(context.Background(), QueueIngestion)
	require.NoError(t, err)
	done, err := s.ClaimNext(context.Background(), QueueAIResponse)
	require.NoError(t, err)
	require.NoError(t, s.Complete(context.Background(), done.ID))

	reclaimed, err := s.ReclaimOrphaned(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), reclaimed)

	// The orphan is runnable again and its live key still collapses
	// duplicates instead of erroring.
	_, created, err := s.Enqueue(context.Background(), EnqueueRequest{
		Queue: QueueIngestion, Key: "ingest-src-1", Payload: map[string]string{},
	})
	require.NoError(t, err)
	assert.False(t, created)

	again, err := s.ClaimNext(context.Background(), QueueIngestion)
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, orphan.ID, again.ID)
	assert.Equal(t, 2, again.Attempts)

	got, err := s.Get(context.Background(), done.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
}

func TestStore_SetProgressIsMonotonic(t *testing.T) {
	s := newTestStore(t)
	id := enqueue(t, s, QueueAIResponse, "progress")

	require.NoError(t, s.SetProgress(context.Background(), id, 50))
	require.NoError(t, s.SetProgress(context.Background(), id, 30))

	got, err := s.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 50, got.Progress)

	require.NoError(t, s.SetProgress(context.Background(), id, 90))
	got, err = s.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 90, got.Progress)
}

func TestStore_Sweep(t *testing.T) {
	s := newTestStore(t)
	enqueue(t, s, QueueAIResponse, "old-completed")

	job, err := s.ClaimNext(context.Background(), QueueAIResponse)
	require.NoError(t, err)
	require.NoError(t, s.Complete(context.Background(), job.ID))

	enqueue(t, s, QueueAIResponse, "still-live")

	// Retention in the future removes the finished job, never live ones.
	removed, err := s.Sweep(context.Background(), time.Now().Add(time.Minute), time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	_, err = s.Get(context.Background(), job.ID)
	assert.ErrorIs(t, err, ErrJobNotFound)

	live, err := s.ClaimNext(context.Background(), QueueAIResponse)
	require.NoError(t, err)
	assert.NotNil(t, live)
}

func TestStore_GetMissing(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}
