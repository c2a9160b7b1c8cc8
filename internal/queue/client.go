package queue

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
)

// TaskTimeout bounds one ingest: fetch, two uploads and the encode.
const TaskTimeout = 3 * time.Minute

type Client struct {
	client *asynq.Client
	queue  string
}

func NewClient(redisOpt asynq.RedisClientOpt, queueName string) *Client {
	return &Client{
		client: asynq.NewClient(redisOpt),
		queue:  queueName,
	}
}

// EnqueueIngestImage never lets asynq retry: a failed run has already been
// reported and may have left a raw artifact behind.
func (c *Client) EnqueueIngestImage(ctx context.Context, payload IngestImagePayload) (*asynq.TaskInfo, error) {
	task, err := NewIngestImageTask(payload)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(
		ctx,
		task,
		asynq.Queue(c.queue),
		asynq.MaxRetry(0),
		asynq.Timeout(TaskTimeout),
		asynq.TaskID(payload.JobID),
	)
}

func (c *Client) Close() error {
	return c.client.Close()
}
