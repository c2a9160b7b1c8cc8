package domain

import (
	"time"
)

const (
	JobStatusCreated    = "created"
	JobStatusQueued     = "queued"
	JobStatusProcessing = "processing"
	JobStatusSucceeded  = "succeeded"
	JobStatusFailed     = "failed"
)

// CreateJobRequest is the body of POST /v1/jobs: an image request run off the
// request path, with an optional webhook for the outcome.
type CreateJobRequest struct {
	ProcessImageRequest
	WebhookURL string `json:"webhook_url,omitempty"`
}

type Job struct {
	ID         string          `json:"job_id"`
	Status     string          `json:"status"`
	ImageURL   string          `json:"image_url"`
	VariantID  string          `json:"variant_id"`
	Quality    int             `json:"quality"`
	WebhookURL string          `json:"webhook_url,omitempty"`
	Report     *PipelineReport `json:"report,omitempty"`
	Error      string          `json:"error,omitempty"`
	Fault      string          `json:"fault,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

func (j Job) ImageRequest() ImageRequest {
	return ImageRequest{
		SourceURL: j.ImageURL,
		VariantID: j.VariantID,
		Quality:   j.Quality,
	}
}

// JobResult is the terminal outcome written back by the worker.
type JobResult struct {
	Status string
	Report *PipelineReport
	Error  string
	Fault  string
}
