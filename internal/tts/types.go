package tts

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/nikhilbhutani/ttsgateway/internal/audio"
)

const (
	MaxTextLength = 4000
	DefaultFormat = "mp3"
	DefaultSpeed  = 1.0
	MinSpeed      = 0.25
	MaxSpeed      = 4.0
	// MinAudioBytes is the smallest upstream buffer accepted as real audio.
	MinAudioBytes = 100
)

// SynthesisRequest holds the parameters for one text-to-speech call.
type SynthesisRequest struct {
	Text     string  `json:"text"`
	Provider string  `json:"provider"`
	Voice    string  `json:"voice"`
	Model    string  `json:"model,omitempty"`
	Format   string  `json:"format,omitempty"`
	Speed    float64 `json:"speed,omitempty"`
}

// Normalized returns a copy with defaults applied and the provider name
// lower-cased.
func (r SynthesisRequest) Normalized() SynthesisRequest {
	r.Provider = strings.ToLower(strings.TrimSpace(r.Provider))
	r.Format = strings.ToLower(strings.TrimSpace(r.Format))
	if r.Format == "" {
		r.Format = DefaultFormat
	}
	if r.Speed == 0 {
		r.Speed = DefaultSpeed
	}
	return r
}

// Validate checks a normalized request.
func (r SynthesisRequest) Validate() error {
	if strings.TrimSpace(r.Text) == "" {
		return newError(InvalidRequest, "text is required", nil)
	}
	if n := utf8.RuneCountInString(r.Text); n > MaxTextLength {
		return newError(InvalidRequest, fmt.Sprintf("text is %d characters, limit is %d", n, MaxTextLength), nil)
	}
	if r.Voice == "" {
		return newError(InvalidRequest, "voice is required", nil)
	}
	if r.Speed < MinSpeed || r.Speed > MaxSpeed {
		return newError(InvalidRequest, fmt.Sprintf("speed %.2f outside [%.2f, %.2f]", r.Speed, MinSpeed, MaxSpeed), nil)
	}
	return nil
}

// ProviderConfig is the caller-resolved configuration for one provider.
type ProviderConfig struct {
	APIKey      string `json:"-"`
	APIEndpoint string `json:"api_endpoint,omitempty"`
	ModelName   string `json:"model_name,omitempty"`
}

// AudioPayload is a normalized, ready-to-serve audio buffer.
type AudioPayload struct {
	Data     []byte
	MIMEType string
}

// RawAudio is what an adapter hands back before container normalization.
type RawAudio struct {
	Data []byte
	// MIMEType is the type the upstream reported, if any.
	MIMEType string
	// PCM describes the samples if Data turns out to be headerless.
	PCM audio.PCMSpec
}

// resolveModel picks the request model, then the configured one, then def.
func resolveModel(req SynthesisRequest, cfg ProviderConfig, def string) string {
	if req.Model != "" {
		return req.Model
	}
	if cfg.ModelName != "" {
		return cfg.ModelName
	}
	return def
}
