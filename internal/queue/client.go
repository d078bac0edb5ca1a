package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/ttsgateway/internal/config"
)

const (
	synthesizeMaxRetry = 3
	synthesizeTimeout  = 2 * time.Minute
)

// RedisOpt converts the shared redis settings into asynq's form.
func RedisOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

type Client struct {
	client *asynq.Client
}

func NewClient(cfg config.RedisConfig) *Client {
	return &Client{client: asynq.NewClient(RedisOpt(cfg))}
}

func (c *Client) Close() error {
	return c.client.Close()
}

// EnqueueSynthesize schedules a synthesis job. The job id doubles as the
// asynq task id so a retried POST cannot queue the same job twice.
func (c *Client) EnqueueSynthesize(payload SynthesizePayload) error {
	task, err := NewSynthesizeTask(payload)
	if err != nil {
		return err
	}
	return c.enqueue(task,
		asynq.TaskID(payload.JobID),
		asynq.MaxRetry(synthesizeMaxRetry),
		asynq.Timeout(synthesizeTimeout),
		asynq.Queue("default"),
	)
}

func NewSynthesizeTask(payload SynthesizePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return asynq.NewTask(TypeSynthesize, data), nil
}

func (c *Client) enqueue(task *asynq.Task, opts ...asynq.Option) error {
	_, err := c.client.Enqueue(task, opts...)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", task.Type(), err)
	}
	return nil
}
