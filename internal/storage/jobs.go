package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/cuongbtq/chat-relay/internal/domain"
	"github.com/cuongbtq/chat-relay/shared/errs"
	"github.com/cuongbtq/chat-relay/shared/postgresql"
)

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// JobStore persists jobs in PostgreSQL.
type JobStore struct {
	db *sqlx.DB
}

func NewJobStore(pg *postgresql.Client) *JobStore {
	return &JobStore{db: pg.GetDB()}
}

// JobFilter narrows ListJobs; empty fields match everything.
type JobFilter struct {
	Status    string
	JobType   string
	Recipient string
}

type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

type JobPage struct {
	Items      []domain.Job `json:"items"`
	Pagination Pagination   `json:"pagination"`
}

// NormalizePage clamps page to >= 1 and limit to [1, MaxPageLimit].
func NormalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	return page, limit
}

func persistenceError(err error, msg string) error {
	return errs.Mark(errs.Wrap(err, msg), domain.ErrPersistence)
}

func (s *JobStore) SaveJob(ctx context.Context, job domain.Job) error {
	vars, err := templateVarsParam(job.TemplateVars)
	if err != nil {
		return fmt.Errorf("failed to encode template vars: %w", err)
	}

	query := `
		INSERT INTO jobs (` + jobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	_, err = s.db.ExecContext(ctx, query,
		job.ID,
		job.Type,
		job.Recipient,
		job.Content,
		job.MediaURL,
		job.MediaType,
		vars,
		job.Status,
		job.Priority,
		job.RetryCount,
		job.Attempts,
		job.MaxAttempts,
		job.ErrorMessage,
		job.ScheduledAt,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return persistenceError(err, "failed to save job")
	}
	return nil
}

func (s *JobStore) UpdateJob(ctx context.Context, id string, u domain.JobUpdate) error {
	query := `
		UPDATE jobs
		SET status = $1,
			retry_count = $2,
			attempts = $3,
			max_attempts = $4,
			error_message = $5,
			scheduled_at = $6,
			updated_at = $7
		WHERE job_id = $8
	`

	result, err := s.db.ExecContext(ctx, query,
		u.Status, u.RetryCount, u.Attempts, u.MaxAttempts, u.ErrorMessage, u.ScheduledAt, u.UpdatedAt, id)
	if err != nil {
		return persistenceError(err, "failed to update job")
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return persistenceError(err, "failed to get rows affected")
	}
	if rowsAffected == 0 {
		return domain.NotFoundError("job", id)
	}
	return nil
}

func (s *JobStore) GetJob(ctx context.Context, id string) (domain.Job, error) {
	var row jobRow
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE job_id = $1`

	if err := s.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Job{}, domain.NotFoundError("job", id)
		}
		return domain.Job{}, persistenceError(err, "failed to get job")
	}
	return row.toDomain()
}

// buildListQuery renders the filtered page query and its count query. Both
// share args; the page query appends LIMIT and OFFSET.
func buildListQuery(filter JobFilter) (string, string, []any) {
	var where []string
	var args []any

	add := func(clause string, value any) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}

	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}
	if filter.JobType != "" {
		add("job_type = $%d", filter.JobType)
	}
	if filter.Recipient != "" {
		add("recipient = $%d", filter.Recipient)
	}

	whereSQL := ""
	if len(where) > 0 {
		whereSQL = " WHERE " + strings.Join(where, " AND ")
	}

	countQuery := "SELECT COUNT(*) FROM jobs" + whereSQL
	query := fmt.Sprintf("SELECT %s FROM jobs%s ORDER BY created_at DESC, job_id DESC LIMIT $%d OFFSET $%d",
		jobColumns, whereSQL, len(args)+1, len(args)+2)

	return query, countQuery, args
}

func (s *JobStore) ListJobs(ctx context.Context, filter JobFilter, page, limit int) (JobPage, error) {
	page, limit = NormalizePage(page, limit)
	query, countQuery, args := buildListQuery(filter)

	var total int
	if err := s.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return JobPage{}, persistenceError(err, "failed to count jobs")
	}

	var rows []jobRow
	pageArgs := append(append([]any{}, args...), limit, (page-1)*limit)
	if err := s.db.SelectContext(ctx, &rows, query, pageArgs...); err != nil {
		return JobPage{}, persistenceError(err, "failed to list jobs")
	}

	items := make([]domain.Job, 0, len(rows))
	for _, row := range rows {
		job, err := row.toDomain()
		if err != nil {
			return JobPage{}, fmt.Errorf("failed to decode job %s: %w", row.JobID, err)
		}
		items = append(items, job)
	}

	return JobPage{
		Items: items,
		Pagination: Pagination{
			Page:       page,
			Limit:      limit,
			Total:      total,
			TotalPages: (total + limit - 1) / limit,
		},
	}, nil
}

func (s *JobStore) ListJobsByStatus(ctx context.Context, statuses ...domain.JobStatus) ([]domain.Job, error) {
	values := make([]string, len(statuses))
	for i, st := range statuses {
		values[i] = string(st)
	}

	var rows []jobRow
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE status = ANY($1) ORDER BY created_at ASC`
	if err := s.db.SelectContext(ctx, &rows, query, pq.Array(values)); err != nil {
		return nil, persistenceError(err, "failed to list jobs by status")
	}

	jobs := make([]domain.Job, 0, len(rows))
	for _, row := range rows {
		job, err := row.toDomain()
		if err != nil {
			return nil, fmt.Errorf("failed to decode job %s: %w", row.JobID, err)
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (s *JobStore) CountByStatus(ctx context.Context) (map[domain.JobStatus]int, error) {
	var rows []struct {
		Status string `db:"status"`
		Count  int    `db:"count"`
	}
	if err := s.db.SelectContext(ctx, &rows, `SELECT status, COUNT(*) AS count FROM jobs GROUP BY status`); err != nil {
		return nil, persistenceError(err, "failed to count jobs by status")
	}

	counts := make(map[domain.JobStatus]int, len(rows))
	for _, r := range rows {
		counts[domain.JobStatus(r.Status)] = r.Count
	}
	return counts, nil
}

// DeleteJobs removes jobs in status last updated before the cutoff.
func (s *JobStore) DeleteJobs(ctx context.Context, status domain.JobStatus, before time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE status = $1 AND updated_at < $2`, status, before)
	if err != nil {
		return 0, persistenceError(err, "failed to delete jobs")
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, persistenceError(err, "failed to get rows affected")
	}
	return int(rowsAffected), nil
}
