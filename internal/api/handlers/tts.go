package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nikhilbhutani/ttsgateway/internal/audio"
	"github.com/nikhilbhutani/ttsgateway/internal/cache"
	"github.com/nikhilbhutani/ttsgateway/internal/queue"
	"github.com/nikhilbhutani/ttsgateway/internal/tts"
	"github.com/nikhilbhutani/ttsgateway/internal/webhook"
)

const maxRequestBody = 1 << 20

// Synthesizer is the slice of tts.Router the handlers use.
type Synthesizer interface {
	Synthesize(ctx context.Context, req tts.SynthesisRequest, cfg tts.ProviderConfig) (*tts.AudioPayload, error)
	Providers() []tts.ProviderInfo
}

type JobQueue interface {
	EnqueueSynthesize(payload queue.SynthesizePayload) error
}

// jobRequest is a synthesis request plus an optional completion callback.
type jobRequest struct {
	tts.SynthesisRequest
	CallbackURL string `json:"callback_url,omitempty"`
}

type TTSHandler struct {
	tts     Synthesizer
	configs func(provider string) tts.ProviderConfig
	jobs    *cache.JobStore
	queue   JobQueue
}

// NewTTSHandler wires the speech routes. jobs and q may be nil, in which
// case the async routes answer 503.
func NewTTSHandler(s Synthesizer, configs func(string) tts.ProviderConfig, jobs *cache.JobStore, q JobQueue) *TTSHandler {
	return &TTSHandler{tts: s, configs: configs, jobs: jobs, queue: q}
}

// Speak synthesizes text and returns the audio in the response body.
func (h *TTSHandler) Speak(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeSynthesisRequest(w, r)
	if !ok {
		return
	}

	payload, err := h.tts.Synthesize(r.Context(), req, h.configs(req.Provider))
	if err != nil {
		writeError(w, err)
		return
	}
	writeAudio(w, r, payload)
}

// Providers lists the adapters this gateway can dispatch to.
func (h *TTSHandler) Providers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"providers": h.tts.Providers()})
}

// CreateJob queues a synthesis and returns its id immediately.
func (h *TTSHandler) CreateJob(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil || h.queue == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "async jobs are not enabled"})
		return
	}
	var body jobRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if body.CallbackURL != "" {
		if err := webhook.ValidateURL(body.CallbackURL); err != nil {
			writeError(w, &tts.Error{Kind: tts.InvalidRequest, Message: err.Error()})
			return
		}
	}
	req := body.SynthesisRequest.Normalized()
	if !h.supports(req.Provider) {
		writeError(w, &tts.Error{Kind: tts.UnsupportedProvider, Message: fmt.Sprintf("provider %q is not supported", req.Provider)})
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, err)
		return
	}

	id := uuid.NewString()
	job, err := h.jobs.Create(r.Context(), id, req.Provider)
	if err != nil {
		slog.Error("failed to create job", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "job store unavailable"})
		return
	}
	if err := h.queue.EnqueueSynthesize(queue.SynthesizePayload{JobID: id, Request: req, CallbackURL: body.CallbackURL}); err != nil {
		slog.Error("failed to enqueue job", "job_id", id, "error", err)
		if ferr := h.jobs.Fail(r.Context(), id, tts.InternalError, "could not enqueue"); ferr != nil {
			slog.Warn("failed to mark job failed", "job_id", id, "error", ferr)
		}
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "queue unavailable"})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"job":        job,
		"status_url": "/api/v1/tts/jobs/" + id,
		"audio_url":  "/api/v1/tts/jobs/" + id + "/audio",
	})
}

// GetJob reports the status of a queued synthesis.
func (h *TTSHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, ok := h.lookupJob(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// JobAudio serves the audio of a succeeded job.
func (h *TTSHandler) JobAudio(w http.ResponseWriter, r *http.Request) {
	job, ok := h.lookupJob(w, r)
	if !ok {
		return
	}
	if job.Status != cache.JobSucceeded {
		writeJSON(w, http.StatusConflict, map[string]interface{}{
			"error":  "job has no audio",
			"status": job.Status,
		})
		return
	}
	payload, err := h.jobs.Audio(r.Context(), job.ID)
	if err != nil {
		if errors.Is(err, cache.ErrJobNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "job audio expired"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeAudio(w, r, payload)
}

func (h *TTSHandler) lookupJob(w http.ResponseWriter, r *http.Request) (*cache.Job, bool) {
	if h.jobs == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "async jobs are not enabled"})
		return nil, false
	}
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid job id"})
		return nil, false
	}
	job, err := h.jobs.Get(r.Context(), id)
	if errors.Is(err, cache.ErrJobNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "job not found"})
		return nil, false
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return nil, false
	}
	return job, true
}

func (h *TTSHandler) supports(provider string) bool {
	for _, p := range h.tts.Providers() {
		if p.Name == provider {
			return true
		}
	}
	return false
}

func decodeSynthesisRequest(w http.ResponseWriter, r *http.Request) (tts.SynthesisRequest, bool) {
	var req tts.SynthesisRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return req, false
	}
	return req, true
}

func writeError(w http.ResponseWriter, err error) {
	kind := tts.KindOf(err)
	msg := "internal error"
	var e *tts.Error
	if errors.As(err, &e) {
		msg = e.Message
	}
	writeJSON(w, kind.HTTPStatus(), map[string]string{"error": msg, "kind": string(kind)})
}

// writeAudio serves p inline. ServeContent answers Range requests and sets
// Content-Length and Accept-Ranges.
func writeAudio(w http.ResponseWriter, r *http.Request, p *tts.AudioPayload) {
	ext := audio.Classify(p.Data).String()
	if ext == "unknown" {
		ext = "bin"
	}
	w.Header().Set("Content-Type", p.MIMEType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`inline; filename="speech.%s"`, ext))
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeContent(w, r, "", time.Time{}, bytes.NewReader(p.Data))
}
