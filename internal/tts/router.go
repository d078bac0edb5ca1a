package tts

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/nikhilbhutani/ttsgateway/internal/audio"
	"github.com/nikhilbhutani/ttsgateway/internal/config"
)

// PayloadCache stores normalized audio by request key.
type PayloadCache interface {
	Get(ctx context.Context, key string) (*AudioPayload, bool, error)
	Set(ctx context.Context, key string, p *AudioPayload) error
}

// Router selects an adapter by provider name, runs the proxy ladder or the
// direct client, and normalizes what comes back. Adapters are registered
// before use; Synthesize is safe for concurrent calls.
type Router struct {
	adapters   map[string]Adapter
	negotiator *Negotiator
	cache      PayloadCache
}

func NewRouter(negotiator *Negotiator, adapters ...Adapter) *Router {
	if negotiator == nil {
		negotiator = NewNegotiator(nil, 0)
	}
	r := &Router{adapters: make(map[string]Adapter), negotiator: negotiator}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// NewRouterFromConfig registers the enabled providers, sharing client for
// every upstream call.
func NewRouterFromConfig(cfg config.TTSConfig, client *http.Client) *Router {
	r := NewRouter(NewNegotiator(client, cfg.AttemptTimeout))
	for _, name := range cfg.EnabledProviders {
		switch name {
		case "openai":
			r.Register(NewOpenAIAdapter(cfg.OpenAIBaseURL, client))
		case "gemini":
			r.Register(NewGeminiAdapter(cfg.GeminiBaseURL, client))
		case "edge":
			r.Register(NewEdgeAdapter())
		case "tencent":
			r.Register(NewTencentAdapter(cfg.TencentRegion))
		case "piper":
			r.Register(NewPiperAdapter(cfg.PiperBin, cfg.PiperVoicesDir))
		default:
			slog.Warn("ignoring unknown tts provider", "provider", name)
		}
	}
	return r
}

// ConfigFor resolves the server-side settings for provider.
func ConfigFor(cfg config.TTSConfig, provider string) ProviderConfig {
	s := cfg.Providers[strings.ToLower(provider)]
	return ProviderConfig{APIKey: s.APIKey, APIEndpoint: s.APIEndpoint, ModelName: s.ModelName}
}

func (r *Router) Register(a Adapter) {
	r.adapters[a.Name()] = a
}

// WithCache enables the payload cache.
func (r *Router) WithCache(c PayloadCache) *Router {
	r.cache = c
	return r
}

// Providers lists registered adapters by name.
func (r *Router) Providers() []ProviderInfo {
	out := make([]ProviderInfo, 0, len(r.adapters))
	for _, a := range r.adapters {
		_, proxy := a.(ProxyAdapter)
		out = append(out, ProviderInfo{
			Name:         a.Name(),
			DefaultModel: a.DefaultModel(),
			RequiresKey:  a.RequiresKey(),
			Proxy:        proxy,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Synthesize runs one request end to end. Failures are *Error values.
func (r *Router) Synthesize(ctx context.Context, req SynthesisRequest, cfg ProviderConfig) (*AudioPayload, error) {
	start := time.Now()
	req = req.Normalized()

	adapter, ok := r.adapters[req.Provider]
	if !ok {
		return nil, newError(UnsupportedProvider, fmt.Sprintf("provider %q is not supported", req.Provider), nil)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if adapter.RequiresKey() && strings.TrimSpace(cfg.APIKey) == "" {
		return nil, newError(MissingCredentials, adapter.Name()+" API key is not configured", nil)
	}

	var key string
	if r.cache != nil {
		key = CacheKey(req, cfg)
		p, hit, err := r.cache.Get(ctx, key)
		if err != nil {
			slog.Warn("audio cache read failed", "error", err)
		} else if hit {
			slog.Debug("audio cache hit", "provider", req.Provider, "bytes", len(p.Data))
			return p, nil
		}
	}

	raw, err := r.dispatch(ctx, adapter, req, cfg)
	if err != nil {
		e := classifyUpstream(adapter.Name(), err)
		slog.Warn("synthesis failed",
			"provider", adapter.Name(),
			"kind", e.Kind,
			"error", err,
			"latency_ms", time.Since(start).Milliseconds(),
		)
		return nil, e
	}

	if len(raw.Data) < MinAudioBytes {
		return nil, newError(EmptyAudio, fmt.Sprintf("%s returned %d bytes of audio", adapter.Name(), len(raw.Data)), nil)
	}

	spec := raw.PCM
	if spec.SampleRate == 0 {
		spec = audio.DefaultPCM
	}
	data, mimeType := audio.Normalize(raw.Data, spec, raw.MIMEType, audio.MIMETypeForFormat(req.Format))
	payload := &AudioPayload{Data: data, MIMEType: mimeType}

	slog.Info("synthesis complete",
		"provider", adapter.Name(),
		"mime", mimeType,
		"bytes", len(data),
		"latency_ms", time.Since(start).Milliseconds(),
	)

	if r.cache != nil {
		if err := r.cache.Set(ctx, key, payload); err != nil {
			slog.Warn("audio cache write failed", "error", err)
		}
	}
	return payload, nil
}

func (r *Router) dispatch(ctx context.Context, adapter Adapter, req SynthesisRequest, cfg ProviderConfig) (*RawAudio, error) {
	p, proxy := adapter.(ProxyAdapter)
	if cfg.APIEndpoint == "" || !proxy {
		return adapter.Synthesize(ctx, req, cfg)
	}

	res, err := r.negotiator.Negotiate(ctx, p, req, cfg)
	if err == nil {
		return res.Audio, nil
	}
	if KindOf(err) != ProxyExhausted {
		return nil, err
	}

	slog.Warn("proxy ladder exhausted, falling back to direct API",
		"provider", adapter.Name(),
		"attempts", len(res.Attempts),
	)
	direct := cfg
	direct.APIEndpoint = ""
	return adapter.Synthesize(ctx, req, direct)
}

// CacheKey derives a stable key from everything that shapes the audio.
func CacheKey(req SynthesisRequest, cfg ProviderConfig) string {
	h := sha256.New()
	for _, part := range []string{
		req.Provider,
		req.Voice,
		req.Model,
		cfg.ModelName,
		cfg.APIEndpoint,
		req.Format,
		strconv.FormatFloat(req.Speed, 'f', -1, 64),
		req.Text,
	} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return "tts:audio:" + hex.EncodeToString(h.Sum(nil))
}
