package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound indicates the requested job does not exist.
var ErrNotFound = errors.New("job not found")

const jobColumns = `id, request, status, output_path, artifact_path,
progress_stage, progress_percent, progress_message,
quality_score, exhausted_fallback, iterations, result_json,
error_message, error_kind, created_at, updated_at, last_heartbeat`

// NewJob inserts a pending job for the given request text.
func (s *Store) NewJob(ctx context.Context, request, outputPath string) (*Job, error) {
	ctx = ensureContext(ctx)
	request = strings.TrimSpace(request)
	if request == "" {
		return nil, errors.New("request text required")
	}
	if strings.TrimSpace(outputPath) == "" {
		return nil, errors.New("output path required")
	}

	now := time.Now().UTC()
	res, err := s.execWithRetry(ctx,
		`INSERT INTO jobs (request, status, output_path, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		request, string(StatusPending), outputPath, formatTime(now), formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("read job id: %w", err)
	}
	return s.GetByID(ctx, id)
}

// GetByID fetches one job.
func (s *Store) GetByID(ctx context.Context, id int64) (*Job, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job %d: %w", id, err)
	}
	return job, nil
}

// Update persists every mutable job field.
func (s *Store) Update(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("job required")
	}
	ctx = ensureContext(ctx)
	job.UpdatedAt = time.Now().UTC()
	res, err := s.execWithRetry(ctx,
		`UPDATE jobs SET
			request = ?, status = ?, output_path = ?, artifact_path = ?,
			progress_stage = ?, progress_percent = ?, progress_message = ?,
			quality_score = ?, exhausted_fallback = ?, iterations = ?, result_json = ?,
			error_message = ?, error_kind = ?, updated_at = ?, last_heartbeat = ?
		 WHERE id = ?`,
		job.Request, string(job.Status), job.OutputPath, job.ArtifactPath,
		job.ProgressStage, job.ProgressPercent, job.ProgressMessage,
		job.QualityScore, boolToInt(job.ExhaustedFallback), job.Iterations, job.ResultJSON,
		job.ErrorMessage, job.ErrorKind, formatTime(job.UpdatedAt), nullableTime(job.LastHeartbeat),
		job.ID)
	if err != nil {
		return fmt.Errorf("update job %d: %w", job.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update job %d: %w", job.ID, err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns jobs ordered oldest first, optionally filtered by status.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Job, error) {
	ctx = ensureContext(ctx)
	query := `SELECT ` + jobColumns + ` FROM jobs`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + makePlaceholders(len(statuses)) + `)`
		for _, status := range statuses {
			args = append(args, string(status))
		}
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// ClaimNextPending atomically transitions the oldest pending job to running
// and returns it. Returns (nil, nil) when the queue is empty. The claim is
// a single UPDATE so concurrent workers never pick the same job.
func (s *Store) ClaimNextPending(ctx context.Context) (*Job, error) {
	ctx = ensureContext(ctx)
	now := formatTime(time.Now().UTC())
	row := s.db.QueryRowContext(ctx,
		`UPDATE jobs SET status = ?, updated_at = ?, last_heartbeat = ?
		 WHERE id = (SELECT id FROM jobs WHERE status = ? ORDER BY created_at ASC, id ASC LIMIT 1)
		 RETURNING `+jobColumns,
		string(StatusRunning), now, now, string(StatusPending))
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim next pending: %w", err)
	}
	return job, nil
}

// UpdateHeartbeat stamps the job as alive.
func (s *Store) UpdateHeartbeat(ctx context.Context, id int64) error {
	ctx = ensureContext(ctx)
	_, err := s.execWithRetry(ctx,
		`UPDATE jobs SET last_heartbeat = ? WHERE id = ?`,
		formatTime(time.Now().UTC()), id)
	if err != nil {
		return fmt.Errorf("update heartbeat for job %d: %w", id, err)
	}
	return nil
}

// Remove deletes one job, reporting whether a row was removed.
func (s *Store) Remove(ctx context.Context, id int64) (bool, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("remove job %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("remove job %d: %w", id, err)
	}
	return affected > 0, nil
}

// Clear deletes all jobs and returns the number removed.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM jobs`)
	if err != nil {
		return 0, fmt.Errorf("clear jobs: %w", err)
	}
	return res.RowsAffected()
}

// ClearFailed deletes failed jobs only.
func (s *Store) ClearFailed(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM jobs WHERE status = ?`, string(StatusFailed))
	if err != nil {
		return 0, fmt.Errorf("clear failed jobs: %w", err)
	}
	return res.RowsAffected()
}

// ClearSucceeded deletes succeeded jobs only.
func (s *Store) ClearSucceeded(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM jobs WHERE status = ?`, string(StatusSucceeded))
	if err != nil {
		return 0, fmt.Errorf("clear succeeded jobs: %w", err)
	}
	return res.RowsAffected()
}
