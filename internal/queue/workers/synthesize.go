package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/ttsgateway/internal/cache"
	"github.com/nikhilbhutani/ttsgateway/internal/queue"
	"github.com/nikhilbhutani/ttsgateway/internal/tts"
	"github.com/nikhilbhutani/ttsgateway/internal/webhook"
)

// Synthesizer is the part of tts.Router the worker needs.
type Synthesizer interface {
	Synthesize(ctx context.Context, req tts.SynthesisRequest, cfg tts.ProviderConfig) (*tts.AudioPayload, error)
}

// ConfigResolver returns server-side settings for a provider.
type ConfigResolver func(provider string) tts.ProviderConfig

// Notifier delivers job-completion callbacks.
type Notifier interface {
	Deliver(ctx context.Context, target, event string, payload any) error
}

type SynthesizeWorker struct {
	tts      Synthesizer
	jobs     *cache.JobStore
	configs  ConfigResolver
	notifier Notifier
}

func NewSynthesizeWorker(s Synthesizer, jobs *cache.JobStore, configs ConfigResolver) *SynthesizeWorker {
	return &SynthesizeWorker{tts: s, jobs: jobs, configs: configs}
}

// WithNotifier enables callbacks for jobs that ask for one.
func (w *SynthesizeWorker) WithNotifier(n Notifier) *SynthesizeWorker {
	w.notifier = n
	return w
}

func (w *SynthesizeWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.SynthesizePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}

	slog.Info("running synthesis job", "job_id", payload.JobID, "provider", payload.Request.Provider)

	if err := w.jobs.MarkRunning(ctx, payload.JobID); err != nil {
		if errors.Is(err, cache.ErrJobNotFound) {
			// Expired before a worker picked it up.
			return fmt.Errorf("job %s: %v: %w", payload.JobID, err, asynq.SkipRetry)
		}
		return fmt.Errorf("mark job running: %w", err)
	}

	audio, err := w.tts.Synthesize(ctx, payload.Request, w.configs(payload.Request.Provider))
	if err != nil {
		kind := tts.KindOf(err)
		if retryable(kind) && !lastAttempt(ctx) {
			slog.Warn("synthesis job will retry", "job_id", payload.JobID, "kind", kind, "error", err)
			return fmt.Errorf("synthesize: %w", err)
		}
		if ferr := w.jobs.Fail(ctx, payload.JobID, kind, err.Error()); ferr != nil {
			slog.Error("failed to record job failure", "job_id", payload.JobID, "error", ferr)
		}
		slog.Warn("synthesis job failed", "job_id", payload.JobID, "kind", kind)
		w.notify(ctx, payload, webhook.EventJobFailed)
		return fmt.Errorf("synthesize: %v: %w", err, asynq.SkipRetry)
	}

	if err := w.jobs.Complete(ctx, payload.JobID, audio); err != nil {
		return fmt.Errorf("store job result: %w", err)
	}
	slog.Info("synthesis job completed", "job_id", payload.JobID, "mime", audio.MIMEType, "bytes", len(audio.Data))
	w.notify(ctx, payload, webhook.EventJobSucceeded)
	return nil
}

// notify is best effort: a failed callback never fails the job.
func (w *SynthesizeWorker) notify(ctx context.Context, payload queue.SynthesizePayload, event string) {
	if w.notifier == nil || payload.CallbackURL == "" {
		return
	}
	job, err := w.jobs.Get(ctx, payload.JobID)
	if err != nil {
		slog.Warn("skipping job callback", "job_id", payload.JobID, "error", err)
		return
	}
	if err := w.notifier.Deliver(ctx, payload.CallbackURL, event, job); err != nil {
		slog.Warn("job callback failed", "job_id", payload.JobID, "event", event, "error", err)
	}
}

func retryable(kind tts.ErrorKind) bool {
	switch kind {
	case tts.NetworkFailure, tts.QuotaOrRateLimited, tts.InternalError:
		return true
	}
	return false
}

// lastAttempt reports whether asynq will not retry after this run. Outside
// an asynq server there is no retry metadata and every run is the last.
func lastAttempt(ctx context.Context) bool {
	retried, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return true
	}
	maxRetry, ok := asynq.GetMaxRetry(ctx)
	if !ok {
		return true
	}
	return retried >= maxRetry
}
