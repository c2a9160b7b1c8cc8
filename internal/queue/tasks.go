package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dunamismax/iopbridge/internal/domain"
	"github.com/hibiken/asynq"
)

const TypeIngestImage = "image:ingest"

type IngestImagePayload struct {
	JobID       string    `json:"job_id"`
	ImageURL    string    `json:"image_url"`
	VariantID   string    `json:"variant_id"`
	Quality     int       `json:"quality"`
	WebhookURL  string    `json:"webhook_url,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}

func PayloadForJob(job domain.Job) IngestImagePayload {
	return IngestImagePayload{
		JobID:       job.ID,
		ImageURL:    job.ImageURL,
		VariantID:   job.VariantID,
		Quality:     job.Quality,
		WebhookURL:  job.WebhookURL,
		RequestedAt: job.CreatedAt,
	}
}

func (p IngestImagePayload) ImageRequest() domain.ImageRequest {
	return domain.ImageRequest{
		SourceURL: p.ImageURL,
		VariantID: p.VariantID,
		Quality:   p.Quality,
	}
}

func NewIngestImageTask(payload IngestImagePayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal ingest payload: %w", err)
	}
	return asynq.NewTask(TypeIngestImage, body), nil
}

func ParseIngestImagePayload(task *asynq.Task) (IngestImagePayload, error) {
	var payload IngestImagePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return IngestImagePayload{}, fmt.Errorf("unmarshal ingest payload: %w", err)
	}
	if payload.JobID == "" {
		return IngestImagePayload{}, errors.New("ingest payload has no job_id")
	}
	return payload, nil
}
