package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dunamismax/iopbridge/internal/domain"
	_ "github.com/lib/pq"
)

const jobSchemaSQL = `
CREATE TABLE IF NOT EXISTS ingest_jobs (
	id TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	image_url TEXT NOT NULL,
	variant_id TEXT NOT NULL,
	quality INTEGER NOT NULL,
	webhook_url TEXT NOT NULL DEFAULT '',
	report JSONB,
	error TEXT NOT NULL DEFAULT '',
	fault TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
`

const selectJobSQL = `SELECT id, status, image_url, variant_id, quality, webhook_url, report, error, fault, created_at, updated_at
	FROM ingest_jobs
	WHERE id = $1`

type PostgresJobStore struct {
	db *sql.DB
}

func NewPostgresJobStore(ctx context.Context, dsn string) (*PostgresJobStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := &PostgresJobStore{db: db}
	if err := store.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *PostgresJobStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, jobSchemaSQL); err != nil {
		return fmt.Errorf("ensure ingest_jobs schema: %w", err)
	}
	return nil
}

func (s *PostgresJobStore) Close() error {
	return s.db.Close()
}

func (s *PostgresJobStore) Create(ctx context.Context, job domain.Job) error {
	report, err := reportColumn(job.Report)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO ingest_jobs (id, status, image_url, variant_id, quality, webhook_url, report, error, fault, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		job.ID,
		job.Status,
		job.ImageURL,
		job.VariantID,
		job.Quality,
		job.WebhookURL,
		report,
		job.Error,
		job.Fault,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (s *PostgresJobStore) Get(ctx context.Context, id string) (domain.Job, bool, error) {
	var (
		job        domain.Job
		reportJSON []byte
	)
	err := s.db.QueryRowContext(ctx, selectJobSQL, id).Scan(
		&job.ID,
		&job.Status,
		&job.ImageURL,
		&job.VariantID,
		&job.Quality,
		&job.WebhookURL,
		&reportJSON,
		&job.Error,
		&job.Fault,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Job{}, false, nil
		}
		return domain.Job{}, false, fmt.Errorf("query job: %w", err)
	}

	if len(reportJSON) > 0 {
		var report domain.PipelineReport
		if err := json.Unmarshal(reportJSON, &report); err != nil {
			return domain.Job{}, false, fmt.Errorf("unmarshal job report: %w", err)
		}
		job.Report = &report
	}
	return job, true, nil
}

func (s *PostgresJobStore) UpdateStatus(ctx context.Context, id, status string) (domain.Job, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE ingest_jobs
		 SET status = $1, updated_at = $2
		 WHERE id = $3`,
		status,
		time.Now().UTC(),
		id,
	)
	if err != nil {
		return domain.Job{}, fmt.Errorf("update job status: %w", err)
	}
	return s.reload(ctx, id, res)
}

func (s *PostgresJobStore) Complete(ctx context.Context, id string, result domain.JobResult) (domain.Job, error) {
	report, err := reportColumn(result.Report)
	if err != nil {
		return domain.Job{}, err
	}

	res, err := s.db.ExecContext(
		ctx,
		`UPDATE ingest_jobs
		 SET status = $1, report = $2, error = $3, fault = $4, updated_at = $5
		 WHERE id = $6`,
		result.Status,
		report,
		result.Error,
		result.Fault,
		time.Now().UTC(),
		id,
	)
	if err != nil {
		return domain.Job{}, fmt.Errorf("complete job: %w", err)
	}
	return s.reload(ctx, id, res)
}

func (s *PostgresJobStore) reload(ctx context.Context, id string, res sql.Result) (domain.Job, error) {
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.Job{}, ErrJobNotFound
	}

	job, ok, err := s.Get(ctx, id)
	if err != nil {
		return domain.Job{}, err
	}
	if !ok {
		return domain.Job{}, ErrJobNotFound
	}
	return job, nil
}

// reportColumn encodes a report for the JSONB column; nil stays SQL NULL.
func reportColumn(report *domain.PipelineReport) (any, error) {
	if report == nil {
		return nil, nil
	}
	body, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("marshal job report: %w", err)
	}
	return body, nil
}
