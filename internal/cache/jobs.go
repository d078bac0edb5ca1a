package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nikhilbhutani/ttsgateway/internal/tts"
)

type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// ErrJobNotFound is returned for unknown or expired job ids.
var ErrJobNotFound = errors.New("job not found")

// Job is the status record of an asynchronous synthesis.
type Job struct {
	ID        string        `json:"id"`
	Status    JobStatus     `json:"status"`
	Provider  string        `json:"provider"`
	MIMEType  string        `json:"mime_type,omitempty"`
	Bytes     int           `json:"bytes,omitempty"`
	ErrorKind tts.ErrorKind `json:"error_kind,omitempty"`
	Error     string        `json:"error,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// JobStore persists job records and finished audio, both expiring after ttl.
type JobStore struct {
	cache *Cache
	ttl   time.Duration
}

func NewJobStore(c *Cache, ttl time.Duration) *JobStore {
	return &JobStore{cache: c, ttl: ttl}
}

func jobKey(id string) string   { return "tts:job:" + id }
func audioKey(id string) string { return "tts:job:" + id + ":audio" }

func (s *JobStore) Create(ctx context.Context, id, provider string) (*Job, error) {
	now := time.Now().UTC()
	job := &Job{ID: id, Status: JobQueued, Provider: provider, CreatedAt: now, UpdatedAt: now}
	if err := s.save(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

func (s *JobStore) Get(ctx context.Context, id string) (*Job, error) {
	var job Job
	err := s.cache.Get(ctx, jobKey(id), &job)
	if errors.Is(err, ErrMiss) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *JobStore) MarkRunning(ctx context.Context, id string) error {
	return s.update(ctx, id, func(j *Job) {
		j.Status = JobRunning
	})
}

// Complete stores the audio, then flips the record to succeeded.
func (s *JobStore) Complete(ctx context.Context, id string, p *tts.AudioPayload) error {
	if err := s.cache.SetBytes(ctx, audioKey(id), p.Data, s.ttl); err != nil {
		return fmt.Errorf("store job audio: %w", err)
	}
	return s.update(ctx, id, func(j *Job) {
		j.Status = JobSucceeded
		j.MIMEType = p.MIMEType
		j.Bytes = len(p.Data)
		j.ErrorKind, j.Error = "", ""
	})
}

func (s *JobStore) Fail(ctx context.Context, id string, kind tts.ErrorKind, msg string) error {
	return s.update(ctx, id, func(j *Job) {
		j.Status = JobFailed
		j.ErrorKind = kind
		j.Error = msg
	})
}

// Audio returns the payload of a succeeded job.
func (s *JobStore) Audio(ctx context.Context, id string) (*tts.AudioPayload, error) {
	job, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != JobSucceeded {
		return nil, fmt.Errorf("job %s is %s", id, job.Status)
	}
	data, err := s.cache.GetBytes(ctx, audioKey(id))
	if errors.Is(err, ErrMiss) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	return &tts.AudioPayload{Data: data, MIMEType: job.MIMEType}, nil
}

func (s *JobStore) update(ctx context.Context, id string, fn func(*Job)) error {
	job, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	fn(job)
	job.UpdatedAt = time.Now().UTC()
	return s.save(ctx, job)
}

func (s *JobStore) save(ctx context.Context, job *Job) error {
	if err := s.cache.Set(ctx, jobKey(job.ID), job, s.ttl); err != nil {
		return fmt.Errorf("save job %s: %w", job.ID, err)
	}
	return nil
}
