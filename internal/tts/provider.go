package tts

import (
	"context"
	"net/http"

	"github.com/nikhilbhutani/ttsgateway/internal/audio"
)

// Adapter is a speech provider reached through its official client.
type Adapter interface {
	Name() string
	DefaultModel() string
	// RequiresKey reports whether ProviderConfig.APIKey must be set.
	RequiresKey() bool
	Synthesize(ctx context.Context, req SynthesisRequest, cfg ProviderConfig) (*RawAudio, error)
}

// ProxyAdapter is an Adapter that can also be reached through a
// user-supplied endpoint speaking the provider's raw HTTP API.
type ProxyAdapter interface {
	Adapter
	// Shapes is the ordered payload ladder tried against the endpoint.
	Shapes() []PayloadShape
	// NewProxyRequest builds the POST for one ladder attempt.
	NewProxyRequest(ctx context.Context, cfg ProviderConfig, model string, body []byte) (*http.Request, error)
	DecodeEnvelope(body []byte) (Envelope, error)
	// PCM describes headerless samples returned by the provider.
	PCM() audio.PCMSpec
}

// PayloadShape is one rung of the negotiation ladder.
type PayloadShape struct {
	Name  string
	Build func(req SynthesisRequest) any
}

// ProviderInfo describes a registered adapter.
type ProviderInfo struct {
	Name         string `json:"name"`
	DefaultModel string `json:"default_model"`
	RequiresKey  bool   `json:"requires_key"`
	Proxy        bool   `json:"proxy"`
}
