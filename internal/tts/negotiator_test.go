package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// proxyRecorder is a fake generateContent proxy answering each attempt with
// the next scripted status.
type proxyRecorder struct {
	t        *testing.T
	mu       sync.Mutex
	statuses []int
	bodies   []string
	requests []map[string]any
}

func (p *proxyRecorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if r.URL.Path == "/audio/linked.mp3" {
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write(append([]byte("ID3"), make([]byte, 500)...))
		return
	}

	if r.Method != http.MethodPost {
		p.t.Errorf("expected POST, got %s", r.Method)
	}
	if r.URL.Path != "/v1beta/models/gemini-2.5-flash-preview-tts:generateContent" {
		p.t.Errorf("unexpected path: %s", r.URL.Path)
	}
	if got := r.Header.Get("x-goog-api-key"); got != "test-key" {
		p.t.Errorf("unexpected api key header: %q", got)
	}
	if got := r.Header.Get("Content-Type"); got != "application/json" {
		p.t.Errorf("unexpected content type: %q", got)
	}

	var body map[string]any
	raw, _ := io.ReadAll(r.Body)
	if err := json.Unmarshal(raw, &body); err != nil {
		p.t.Errorf("request body is not JSON: %v", err)
	}
	i := len(p.requests)
	p.requests = append(p.requests, body)

	status := http.StatusOK
	if i < len(p.statuses) {
		status = p.statuses[i]
	}
	w.WriteHeader(status)
	if i < len(p.bodies) {
		fmt.Fprint(w, p.bodies[i])
	}
}

func (p *proxyRecorder) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

func inlineAudioResponse(data []byte, mimeType string) string {
	b, _ := json.Marshal(map[string]any{
		"candidates": []any{map[string]any{
			"content": map[string]any{
				"parts": []any{map[string]any{
					"inlineData": map[string]any{
						"mimeType": mimeType,
						"data":     base64.StdEncoding.EncodeToString(data),
					},
				}},
			},
		}},
	})
	return string(b)
}

func newProxy(t *testing.T, statuses []int, bodies []string) (*proxyRecorder, *httptest.Server) {
	rec := &proxyRecorder{t: t, statuses: statuses, bodies: bodies}
	srv := httptest.NewServer(rec)
	t.Cleanup(srv.Close)
	return rec, srv
}

func geminiRequest() SynthesisRequest {
	return SynthesisRequest{Text: "hello", Provider: "gemini", Voice: "Kore"}.Normalized()
}

func generationConfig(t *testing.T, body map[string]any) map[string]any {
	gc, ok := body["generationConfig"].(map[string]any)
	require.True(t, ok, "generationConfig missing: %v", body)
	return gc
}

func TestNegotiateAdvancesOnRejection(t *testing.T) {
	pcm := bytes.Repeat([]byte{0x02, 0x00}, 600)
	rec, srv := newProxy(t,
		[]int{http.StatusBadRequest, http.StatusBadRequest, http.StatusOK},
		[]string{`{"error":"bad shape"}`, `{"error":"bad shape"}`, inlineAudioResponse(pcm, "audio/L16;codec=pcm;rate=24000")},
	)

	n := NewNegotiator(srv.Client(), time.Second)
	cfg := ProviderConfig{APIKey: "test-key", APIEndpoint: srv.URL + "/"}
	res, err := n.Negotiate(context.Background(), NewGeminiAdapter("", srv.Client()), geminiRequest(), cfg)
	require.NoError(t, err)

	require.Equal(t, 3, rec.count())
	require.Len(t, res.Attempts, 3)
	for i, want := range []string{"standard", "alternate", "minimal"} {
		assert.Equal(t, i, res.Attempts[i].ShapeIndex)
		assert.Equal(t, want, res.Attempts[i].Shape)
	}
	assert.Equal(t, http.StatusBadRequest, res.Attempts[0].HTTPStatus)
	assert.Equal(t, http.StatusOK, res.Attempts[2].HTTPStatus)
	assert.Equal(t, pcm, res.Audio.Data)
	assert.Equal(t, 24000, res.Audio.PCM.SampleRate)

	// Shape order is observable on the wire.
	std := generationConfig(t, rec.requests[0])
	assert.Contains(t, std, "response_modalities")
	assert.Contains(t, std, "speech_config")

	alt := generationConfig(t, rec.requests[1])
	assert.Contains(t, alt, "responseModalities")
	assert.Equal(t, float64(40), alt["topK"])
	assert.NotContains(t, alt, "speech_config")

	minimal := generationConfig(t, rec.requests[2])
	assert.Len(t, minimal, 1)
	assert.Contains(t, minimal, "responseModalities")
}

func TestNegotiateStopsOnAuthFailure(t *testing.T) {
	rec, srv := newProxy(t, []int{http.StatusUnauthorized}, []string{`{"error":"API key not valid"}`})

	n := NewNegotiator(srv.Client(), time.Second)
	cfg := ProviderConfig{APIKey: "test-key", APIEndpoint: srv.URL}
	res, err := n.Negotiate(context.Background(), NewGeminiAdapter("", srv.Client()), geminiRequest(), cfg)

	require.Error(t, err)
	assert.Equal(t, AuthRejected, KindOf(err))
	assert.Equal(t, 1, rec.count())
	assert.Len(t, res.Attempts, 1)
}

func TestNegotiateStopStatuses(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorKind
	}{
		{http.StatusForbidden, PermissionDenied},
		{http.StatusNotFound, ModelNotFound},
		{http.StatusTooManyRequests, QuotaOrRateLimited},
		{http.StatusBadGateway, InternalError},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			rec, srv := newProxy(t, []int{tt.status}, nil)
			n := NewNegotiator(srv.Client(), time.Second)
			cfg := ProviderConfig{APIKey: "test-key", APIEndpoint: srv.URL}
			_, err := n.Negotiate(context.Background(), NewGeminiAdapter("", srv.Client()), geminiRequest(), cfg)
			assert.Equal(t, tt.want, KindOf(err))
			assert.Equal(t, 1, rec.count())
		})
	}
}

func TestNegotiateExhausted(t *testing.T) {
	rec, srv := newProxy(t, []int{http.StatusInternalServerError, http.StatusBadRequest, http.StatusInternalServerError}, nil)

	n := NewNegotiator(srv.Client(), time.Second)
	cfg := ProviderConfig{APIKey: "test-key", APIEndpoint: srv.URL}
	res, err := n.Negotiate(context.Background(), NewGeminiAdapter("", srv.Client()), geminiRequest(), cfg)

	assert.Equal(t, ProxyExhausted, KindOf(err))
	assert.Equal(t, 3, rec.count())
	assert.Len(t, res.Attempts, 3)
	assert.Nil(t, res.Audio)
}

func TestNegotiateAdvancesWhenResponseHasNoAudio(t *testing.T) {
	pcm := bytes.Repeat([]byte{0x03, 0x00}, 300)
	rec, srv := newProxy(t,
		[]int{http.StatusOK, http.StatusOK},
		[]string{`{"candidates":[{"content":{"parts":[{"text":"I cannot speak"}]}}]}`, inlineAudioResponse(pcm, "")},
	)

	n := NewNegotiator(srv.Client(), time.Second)
	cfg := ProviderConfig{APIKey: "test-key", APIEndpoint: srv.URL}
	res, err := n.Negotiate(context.Background(), NewGeminiAdapter("", srv.Client()), geminiRequest(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 2, rec.count())
	assert.Equal(t, pcm, res.Audio.Data)
}

func TestNegotiateFollowsAudioLink(t *testing.T) {
	rec := &proxyRecorder{t: t}
	srv := httptest.NewServer(rec)
	defer srv.Close()
	rec.bodies = []string{fmt.Sprintf(`{"candidates":[{"content":{"parts":[{"text":"Here you go ![audio](%s/audio/linked.mp3)"}]}}]}`, srv.URL)}

	n := NewNegotiator(srv.Client(), time.Second)
	cfg := ProviderConfig{APIKey: "test-key", APIEndpoint: srv.URL}
	res, err := n.Negotiate(context.Background(), NewGeminiAdapter("", srv.Client()), geminiRequest(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.count())
	assert.Equal(t, "audio/mpeg", res.Audio.MIMEType)
	assert.Len(t, res.Audio.Data, 503)
}

func TestNegotiateNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	n := NewNegotiator(http.DefaultClient, time.Second)
	cfg := ProviderConfig{APIKey: "test-key", APIEndpoint: url}
	res, err := n.Negotiate(context.Background(), NewGeminiAdapter("", nil), geminiRequest(), cfg)

	assert.Equal(t, NetworkFailure, KindOf(err))
	assert.Len(t, res.Attempts, 1)
}

func TestNegotiateAttemptTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	n := NewNegotiator(srv.Client(), 50*time.Millisecond)
	cfg := ProviderConfig{APIKey: "test-key", APIEndpoint: srv.URL}
	_, err := n.Negotiate(context.Background(), NewGeminiAdapter("", srv.Client()), geminiRequest(), cfg)
	assert.Equal(t, NetworkFailure, KindOf(err))
}

func TestNegotiateMalformedEndpoint(t *testing.T) {
	n := NewNegotiator(http.DefaultClient, time.Second)
	cfg := ProviderConfig{APIKey: "test-key", APIEndpoint: "http://[::1"}
	res, err := n.Negotiate(context.Background(), NewGeminiAdapter("", nil), geminiRequest(), cfg)

	assert.Equal(t, InternalError, KindOf(err))
	assert.Len(t, res.Attempts, 1)
	assert.Equal(t, 0, res.Attempts[0].HTTPStatus)
}

func TestReadLimited(t *testing.T) {
	b, err := readLimited(bytes.NewReader(make([]byte, 10)), 10)
	require.NoError(t, err)
	assert.Len(t, b, 10)

	_, err = readLimited(bytes.NewReader(make([]byte, 11)), 10)
	assert.ErrorIs(t, err, errResponseTooLarge)
}
