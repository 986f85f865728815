package queue

import (
	"context"
	"fmt"
	"time"
)

// ResetStuckJobs moves running or refining jobs back to pending. Used on
// worker startup to recover from a crash that left claims behind.
func (s *Store) ResetStuckJobs(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE jobs SET status = ?, progress_stage = '', progress_percent = 0,
			progress_message = '', last_heartbeat = NULL, updated_at = ?
		 WHERE status IN (?, ?)`,
		string(StatusPending), formatTime(time.Now().UTC()),
		string(StatusRunning), string(StatusRefining))
	if err != nil {
		return 0, fmt.Errorf("reset stuck jobs: %w", err)
	}
	return res.RowsAffected()
}

// ReclaimStale moves processing jobs whose heartbeat predates cutoff back
// to pending.
func (s *Store) ReclaimStale(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE jobs SET status = ?, last_heartbeat = NULL, updated_at = ?
		 WHERE status IN (?, ?) AND (last_heartbeat IS NULL OR last_heartbeat < ?)`,
		string(StatusPending), formatTime(time.Now().UTC()),
		string(StatusRunning), string(StatusRefining), formatTime(cutoff.UTC()))
	if err != nil {
		return 0, fmt.Errorf("reclaim stale jobs: %w", err)
	}
	return res.RowsAffected()
}

// RetryFailed resets failed jobs (optionally a subset) back to pending.
func (s *Store) RetryFailed(ctx context.Context, ids ...int64) (int64, error) {
	query := `UPDATE jobs SET status = ?, error_message = '', error_kind = '',
		progress_stage = '', progress_percent = 0, progress_message = '', updated_at = ?
		WHERE status = ?`
	args := []any{string(StatusPending), formatTime(time.Now().UTC()), string(StatusFailed)}
	if len(ids) > 0 {
		query += ` AND id IN (` + makePlaceholders(len(ids)) + `)`
		for _, id := range ids {
			args = append(args, id)
		}
	}
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("retry failed jobs: %w", err)
	}
	return res.RowsAffected()
}

// Stats returns job counts per status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		stats[Status(status)] = count
	}
	return stats, rows.Err()
}

// Health returns aggregate counts for the status command.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	summary := HealthSummary{
		Pending:   stats[StatusPending],
		Succeeded: stats[StatusSucceeded],
		Failed:    stats[StatusFailed],
	}
	summary.Processing = stats[StatusRunning] + stats[StatusRefining]
	for _, count := range stats {
		summary.Total += count
	}
	return summary, nil
}
