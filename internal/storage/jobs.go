package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Veraticus/boq-price-match/internal/batch"
	"github.com/Veraticus/boq-price-match/internal/common"
	"github.com/Veraticus/boq-price-match/internal/model"
)

// SaveJob inserts or replaces a job record.
func (s *SQLiteStorage) SaveJob(ctx context.Context, job *model.MatchJob) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateJob(job); err != nil {
		return err
	}
	if job.StartedAt.IsZero() {
		job.StartedAt = time.Now()
	}

	errs, err := json.Marshal(job.Errors)
	if err != nil {
		return fmt.Errorf("failed to encode job errors: %w", err)
	}
	if job.Errors == nil {
		errs = []byte("[]")
	}

	var completedAt any
	if job.CompletedAt != nil {
		completedAt = *job.CompletedAt
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO match_jobs (
			id, method, status, message, errors, processed, total, progress, matched, started_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			method = excluded.method,
			status = excluded.status,
			message = excluded.message,
			errors = excluded.errors,
			processed = excluded.processed,
			total = excluded.total,
			progress = excluded.progress,
			matched = excluded.matched,
			completed_at = excluded.completed_at
	`, job.ID, job.Method, string(job.Status), job.Message, string(errs),
		job.Processed, job.Total, job.Progress, job.Matched, job.StartedAt, completedAt)
	if err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	return nil
}

// GetJob loads a job by ID.
func (s *SQLiteStorage) GetJob(ctx context.Context, id string) (*model.MatchJob, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, method, status, message, errors, processed, total, progress, matched, started_at, completed_at
		FROM match_jobs
		WHERE id = ?
	`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job %s: %w", id, common.ErrNotFound)
	}
	return job, err
}

// ListJobs returns the most recent jobs first.
func (s *SQLiteStorage) ListJobs(ctx context.Context, limit int) ([]model.MatchJob, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, method, status, message, errors, processed, total, progress, matched, started_at, completed_at
		FROM match_jobs
		ORDER BY started_at DESC, id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var jobs []model.MatchJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating jobs: %w", err)
	}
	return jobs, nil
}

func scanJob(sc scanner) (*model.MatchJob, error) {
	var (
		job         model.MatchJob
		status      string
		errs        string
		completedAt sql.NullTime
	)
	err := sc.Scan(&job.ID, &job.Method, &status, &job.Message, &errs,
		&job.Processed, &job.Total, &job.Progress, &job.Matched, &job.StartedAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}
	job.Status = model.JobStatus(status)
	if completedAt.Valid {
		t := completedAt.Time
		job.CompletedAt = &t
	}
	if err := json.Unmarshal([]byte(errs), &job.Errors); err != nil {
		return nil, fmt.Errorf("failed to decode job errors: %w", err)
	}
	if len(job.Errors) == 0 {
		job.Errors = nil
	}
	return &job, nil
}

// JobSink persists job progress as a batch.ProgressSink. Writes outlive the
// job's context so a cancelled job still records its terminal state.
type JobSink struct {
	store  *SQLiteStorage
	logger *slog.Logger
	job    model.MatchJob
	mu     sync.Mutex
}

// NewJobSink creates a sink that writes job under its ID. The initial record
// is saved immediately.
func (s *SQLiteStorage) NewJobSink(ctx context.Context, job model.MatchJob, logger *slog.Logger) (*JobSink, error) {
	if job.Status == "" {
		job.Status = model.JobPending
	}
	if err := s.SaveJob(ctx, &job); err != nil {
		return nil, err
	}
	return &JobSink{
		store:  s,
		logger: common.LoggerOrDefault(logger),
		job:    job,
	}, nil
}

// Update implements batch.ProgressSink.
func (j *JobSink) Update(ctx context.Context, p batch.Progress) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.job.Status = p.Status
	j.job.Message = p.Message
	j.job.Processed = p.Processed
	j.job.Total = p.Total
	j.job.Progress = p.Percent

	if err := j.store.SaveJob(context.WithoutCancel(ctx), &j.job); err != nil {
		j.logger.Warn("Failed to persist job progress",
			"job_id", j.job.ID,
			"error", err)
	}
}

// Complete implements batch.ProgressSink.
func (j *JobSink) Complete(ctx context.Context, outcome *batch.JobOutcome) {
	j.mu.Lock()
	defer j.mu.Unlock()

	final := outcome.Job
	if final.StartedAt.IsZero() {
		final.StartedAt = j.job.StartedAt
	}
	j.job = final

	if err := j.store.SaveJob(context.WithoutCancel(ctx), &j.job); err != nil {
		j.logger.Error("Failed to persist job outcome",
			"job_id", j.job.ID,
			"status", j.job.Status,
			"error", err)
	}
}

// Job returns the last state written by the sink.
func (j *JobSink) Job() model.MatchJob {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.job
}
