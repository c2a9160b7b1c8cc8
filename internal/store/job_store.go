package store

import (
	"context"
	"errors"

	"github.com/dunamismax/iopbridge/internal/domain"
)

var ErrJobNotFound = errors.New("job not found")

// JobStore tracks async ingest jobs from creation to their terminal result.
type JobStore interface {
	Create(ctx context.Context, job domain.Job) error
	Get(ctx context.Context, id string) (domain.Job, bool, error)
	UpdateStatus(ctx context.Context, id, status string) (domain.Job, error)
	Complete(ctx context.Context, id string, result domain.JobResult) (domain.Job, error)
}
