package tts

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/nikhilbhutani/ttsgateway/internal/audio"
)

const defaultOpenAIModel = "tts-1"

// OpenAIAdapter synthesizes speech with OpenAI's audio/speech endpoint.
// A configured APIEndpoint replaces the SDK base URL, since OpenAI-compatible
// proxies accept the same request body.
type OpenAIAdapter struct {
	baseURL    string
	httpClient *http.Client
}

// NewOpenAIAdapter creates an OpenAIAdapter. An empty baseURL keeps the
// SDK default.
func NewOpenAIAdapter(baseURL string, client *http.Client) *OpenAIAdapter {
	if client == nil {
		client = http.DefaultClient
	}
	return &OpenAIAdapter{baseURL: strings.TrimRight(baseURL, "/"), httpClient: client}
}

func (o *OpenAIAdapter) Name() string         { return "openai" }
func (o *OpenAIAdapter) DefaultModel() string { return defaultOpenAIModel }
func (o *OpenAIAdapter) RequiresKey() bool    { return true }

func (o *OpenAIAdapter) Synthesize(ctx context.Context, req SynthesisRequest, cfg ProviderConfig) (*RawAudio, error) {
	oc := openai.DefaultConfig(cfg.APIKey)
	switch {
	case cfg.APIEndpoint != "":
		oc.BaseURL = strings.TrimRight(cfg.APIEndpoint, "/")
	case o.baseURL != "":
		oc.BaseURL = o.baseURL
	}
	oc.HTTPClient = o.httpClient
	client := openai.NewClientWithConfig(oc)

	model := resolveModel(req, cfg, defaultOpenAIModel)
	slog.Info("calling openai speech", "model", model, "voice", req.Voice, "format", req.Format)

	resp, err := client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(model),
		Input:          req.Text,
		Voice:          openai.SpeechVoice(req.Voice),
		ResponseFormat: openai.SpeechResponseFormat(req.Format),
		Speed:          req.Speed,
	})
	if err != nil {
		return nil, fmt.Errorf("openai speech: %w", err)
	}
	defer resp.Close()

	data, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}

	// response_format=pcm is 24 kHz mono s16le without a header.
	return &RawAudio{Data: data, MIMEType: resp.Header().Get("Content-Type"), PCM: audio.DefaultPCM}, nil
}
