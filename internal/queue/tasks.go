package queue

import "github.com/nikhilbhutani/ttsgateway/internal/tts"

const (
	TypeSynthesize = "tts:synthesize"
)

// SynthesizePayload carries the request only. Workers resolve provider
// credentials from their own environment so keys never sit in redis.
type SynthesizePayload struct {
	JobID       string               `json:"job_id"`
	Request     tts.SynthesisRequest `json:"request"`
	CallbackURL string               `json:"callback_url,omitempty"`
}
