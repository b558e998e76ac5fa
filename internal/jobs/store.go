package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var ErrJobNotFound = errors.New("job not found")

// Store persists jobs in the application database. Claiming runs in a
// transaction so concurrent workers never grab the same job.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Enqueue inserts a job unless a live one with the same (queue, key) exists.
// Implements Scheduler.
func (s *Store) Enqueue(ctx context.Context, req EnqueueRequest) (string, bool, error) {
	payload, err := json.Marshal(req.Payload)
	if err != nil {
		return "", false, fmt.Errorf("failed to encode payload: %w", err)
	}

	maxAttempts := req.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	id := uuid.NewString()
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, queue, key, payload, status, attempts, max_attempts, run_after, created_at, updated_at)
		VALUES (?, ?, ?, ?, 'queued', 0, ?, ?, ?, ?)
		ON CONFLICT (queue, key) WHERE status IN ('queued', 'active') DO NOTHING`,
		id, req.Queue, req.Key, string(payload), maxAttempts, now.Add(req.Delay), now, now,
	)
	if err != nil {
		return "", false, fmt.Errorf("failed to enqueue job: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return "", false, err
	}
	if n == 0 {
		// Duplicate: hand back the live job's ID.
		var existing string
		err := s.db.QueryRowContext(ctx, `
			SELECT id FROM jobs WHERE queue = ? AND key = ? AND status IN ('queued', 'active')`,
			req.Queue, req.Key,
		).Scan(&existing)
		if err != nil {
			return "", false, fmt.Errorf("failed to resolve duplicate job: %w", err)
		}
		return existing, false, nil
	}
	return id, true, nil
}

// ClaimNext atomically takes the oldest due queued job of a queue. Returns
// nil when nothing is due.
func (s *Store) ClaimNext(ctx context.Context, queue string) (*Job, error) {
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin claim transaction: %w", err)
	}
	defer tx.Rollback()

	var (
		j          Job
		finishedAt sql.NullTime
	)
	err = tx.QueryRowContext(ctx, `
		SELECT id, queue, key, payload, status, attempts, max_attempts, progress, last_error, run_after, created_at, updated_at, finished_at
		FROM jobs
		WHERE queue = ? AND status = 'queued' AND run_after <= ?
		ORDER BY run_after ASC, created_at ASC
		LIMIT 1`,
		queue, now,
	).Scan(&j.ID, &j.Queue, &j.Key, &j.Payload, &j.Status, &j.Attempts, &j.MaxAttempts,
		&j.Progress, &j.LastError, &j.RunAfter, &j.CreatedAt, &j.UpdatedAt, &finishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select next job: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE jobs SET status = 'active', attempts = attempts + 1, updated_at = ?
		WHERE id = ? AND status = 'queued'`,
		now, j.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n != 1 {
		return nil, nil
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit claim: %w", err)
	}

	j.Status = StatusActive
	j.Attempts++
	j.UpdatedAt = now
	return &j, nil
}

// ReclaimOrphaned requeues jobs a previous process left active, e.g. after a
// crash mid-handler. Only safe while no workers are polling; with workers
// running it would requeue jobs that are still being processed.
func (s *Store) ReclaimOrphaned(ctx context.Context) (int64, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = 'queued', run_after = ?, updated_at = ?
		WHERE status = 'active'`,
		now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to reclaim orphaned jobs: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) Complete(ctx context.Context, id string) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = 'completed', progress = 100, updated_at = ?, finished_at = ?
		WHERE id = ?`,
		now, now, id,
	)
	if err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	return requireJobRow(res)
}

// Fail records a failed attempt. The job goes back to the queue with
// exponential backoff until attempts run out, then dies. Unrecoverable
// failures die immediately regardless of remaining attempts.
func (s *Store) Fail(ctx context.Context, id string, errMsg string, unrecoverable bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin fail transaction: %w", err)
	}
	defer tx.Rollback()

	var attempts, maxAttempts int
	err = tx.QueryRowContext(ctx,
		`SELECT attempts, max_attempts FROM jobs WHERE id = ?`, id,
	).Scan(&attempts, &maxAttempts)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrJobNotFound
	}
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if unrecoverable || attempts >= maxAttempts {
		_, err = tx.ExecContext(ctx, `
			UPDATE jobs SET status = 'dead', last_error = ?, updated_at = ?, finished_at = ?
			WHERE id = ?`,
			errMsg, now, now, id,
		)
	} else {
		backoff := retryBackoffBase * (1 << (attempts - 1))
		_, err = tx.ExecContext(ctx, `
			UPDATE jobs SET status = 'queued', last_error = ?, run_after = ?, updated_at = ?
			WHERE id = ?`,
			errMsg, now.Add(backoff), now, id,
		)
	}
	if err != nil {
		return fmt.Errorf("failed to record job failure: %w", err)
	}

	return tx.Commit()
}

// SetProgress moves the job's progress forward; regressions are ignored.
func (s *Store) SetProgress(ctx context.Context, id string, progress int) error {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET progress = ?, updated_at = ? WHERE id = ? AND progress < ?`,
		progress, time.Now().UTC(), id, progress,
	)
	return err
}

func (s *Store) Get(ctx context.Context, id string) (*Job, error) {
	var (
		j          Job
		finishedAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, queue, key, payload, status, attempts, max_attempts, progress, last_error, run_after, created_at, updated_at, finished_at
		FROM jobs WHERE id = ?`, id,
	).Scan(&j.ID, &j.Queue, &j.Key, &j.Payload, &j.Status, &j.Attempts, &j.MaxAttempts,
		&j.Progress, &j.LastError, &j.RunAfter, &j.CreatedAt, &j.UpdatedAt, &finishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load job: %w", err)
	}
	if finishedAt.Valid {
		j.FinishedAt = &finishedAt.Time
	}
	return &j, nil
}

// Sweep deletes finished jobs past their retention windows and returns how
// many rows went away.
func (s *Store) Sweep(ctx context.Context, completedBefore, deadBefore time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM jobs
		WHERE (status = 'completed' AND finished_at < ?)
		   OR (status = 'dead' AND finished_at < ?)`,
		completedBefore, deadBefore,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep jobs: %w", err)
	}
	return res.RowsAffected()
}

func requireJobRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrJobNotFound
	}
	return nil
}
