package tts

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/nikhilbhutani/ttsgateway/internal/audio"
)

const defaultGeminiModel = "gemini-2.5-flash-preview-tts"

// GeminiAdapter synthesizes speech with Gemini's generateContent audio
// modality, either through the genai SDK or a compatible proxy.
type GeminiAdapter struct {
	baseURL        string
	httpClient     *http.Client
	attemptTimeout time.Duration
}

// NewGeminiAdapter creates a GeminiAdapter. baseURL overrides the SDK's
// default API host and is mainly useful for tests; leave it empty otherwise.
func NewGeminiAdapter(baseURL string, client *http.Client) *GeminiAdapter {
	if client == nil {
		client = http.DefaultClient
	}
	return &GeminiAdapter{baseURL: baseURL, httpClient: client, attemptTimeout: DefaultAttemptTimeout}
}

func (g *GeminiAdapter) Name() string         { return "gemini" }
func (g *GeminiAdapter) DefaultModel() string { return defaultGeminiModel }
func (g *GeminiAdapter) RequiresKey() bool    { return true }
func (g *GeminiAdapter) PCM() audio.PCMSpec   { return audio.DefaultPCM }

func (g *GeminiAdapter) Shapes() []PayloadShape {
	return []PayloadShape{
		{Name: "standard", Build: geminiStandardPayload},
		{Name: "alternate", Build: geminiAlternatePayload},
		{Name: "minimal", Build: geminiMinimalPayload},
	}
}

func geminiContents(text string) []map[string]any {
	return []map[string]any{
		{"parts": []map[string]any{{"text": text}}},
	}
}

func geminiStandardPayload(req SynthesisRequest) any {
	return map[string]any{
		"contents": geminiContents(req.Text),
		"generationConfig": map[string]any{
			"response_modalities": []string{"AUDIO"},
			"speech_config": map[string]any{
				"voice_config": map[string]any{
					"prebuilt_voice_config": map[string]any{
						"voice_name": req.Voice,
					},
				},
			},
		},
	}
}

func geminiAlternatePayload(req SynthesisRequest) any {
	return map[string]any{
		"contents": geminiContents(req.Text),
		"generationConfig": map[string]any{
			"responseModalities": []string{"AUDIO"},
			"candidateCount":     1,
			"topK":               40,
			"topP":               0.9,
			"temperature":        0.7,
		},
	}
}

func geminiMinimalPayload(req SynthesisRequest) any {
	return map[string]any{
		"contents": geminiContents(req.Text),
		"generationConfig": map[string]any{
			"responseModalities": []string{"AUDIO"},
		},
	}
}

func (g *GeminiAdapter) NewProxyRequest(ctx context.Context, cfg ProviderConfig, model string, body []byte) (*http.Request, error) {
	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", strings.TrimRight(cfg.APIEndpoint, "/"), model)
	req, err := newJSONRequest(ctx, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-goog-api-key", cfg.APIKey)
	return req, nil
}

func (g *GeminiAdapter) DecodeEnvelope(body []byte) (Envelope, error) {
	return decodeGenerateContent(body)
}

// Synthesize calls the official Gemini API through the genai SDK.
func (g *GeminiAdapter) Synthesize(ctx context.Context, req SynthesisRequest, cfg ProviderConfig) (*RawAudio, error) {
	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: g.httpClient,
	}
	if g.baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: g.baseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	model := resolveModel(req, cfg, defaultGeminiModel)
	slog.Info("calling gemini speech", "model", model, "voice", req.Voice)

	resp, err := client.Models.GenerateContent(ctx, model, genai.Text(req.Text), &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: req.Voice},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini generate content: %w", err)
	}

	return resolveEnvelope(ctx, g.httpClient, g.attemptTimeout, envelopeFromGenai(resp), g.PCM())
}

func envelopeFromGenai(resp *genai.GenerateContentResponse) Envelope {
	if resp == nil || len(resp.Candidates) == 0 {
		return NoAudio{Reason: "response has no candidates"}
	}
	var link string
	for _, c := range resp.Candidates {
		if c == nil || c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if p == nil {
				continue
			}
			if p.InlineData != nil && len(p.InlineData.Data) > 0 {
				return InlineAudio{Data: p.InlineData.Data, MIMEType: p.InlineData.MIMEType}
			}
			if link == "" && p.Text != "" {
				link = findAudioLink(p.Text)
			}
		}
	}
	if link != "" {
		return ImageLink{URL: link}
	}
	return NoAudio{Reason: "no inline audio in response parts"}
}
