package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/ttsgateway/internal/cache"
	"github.com/nikhilbhutani/ttsgateway/internal/config"
	"github.com/nikhilbhutani/ttsgateway/internal/queue"
	"github.com/nikhilbhutani/ttsgateway/internal/tts"
)

var speech = append([]byte("ID3\x04\x00"), bytes.Repeat([]byte{0x42}, 1500)...)

type recordingQueue struct {
	mu       sync.Mutex
	payloads []queue.SynthesizePayload
	err      error
}

func (q *recordingQueue) EnqueueSynthesize(p queue.SynthesizePayload) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.payloads = append(q.payloads, p)
	return nil
}

type redisPinger struct{ c *redis.Client }

func (p redisPinger) Ping(ctx context.Context) error { return p.c.Ping(ctx).Err() }

type fixture struct {
	handler http.Handler
	jobs    *cache.JobStore
	queue   *recordingQueue
	mr      *miniredis.Miniredis
	hits    *int32
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{RateLimitRPS: 1000, RateBurst: 1000, CORSOrigins: []string{"*"}},
		TTS: config.TTSConfig{
			Providers: map[string]config.ProviderSettings{"openai": {APIKey: "sk-test"}},
		},
	}
}

func newFixture(t *testing.T, cfg *config.Config) *fixture {
	var hits int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			io.WriteString(w, `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`)
			return
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write(speech)
	}))
	t.Cleanup(upstream.Close)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	jobs := cache.NewJobStore(cache.NewCache(rdb), time.Hour)
	q := &recordingQueue{}
	router := tts.NewRouter(nil, tts.NewOpenAIAdapter(upstream.URL+"/v1", upstream.Client()), tts.NewEdgeAdapter())

	rt := NewRouter(cfg, Deps{TTS: router, Redis: redisPinger{rdb}, Jobs: jobs, Queue: q})
	t.Cleanup(rt.Close)
	return &fixture{handler: rt.Setup(), jobs: jobs, queue: q, mr: mr, hits: &hits}
}

func (f *fixture) do(method, path, body string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestSpeakReturnsAudio(t *testing.T) {
	f := newFixture(t, testConfig())
	rec := f.do(http.MethodPost, "/api/v1/tts", `{"text":"hello","provider":"openai","voice":"alloy"}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "audio/mpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, `inline; filename="speech.mp3"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "bytes", rec.Header().Get("Accept-Ranges"))
	assert.Equal(t, "1505", rec.Header().Get("Content-Length"))
	assert.Equal(t, speech, rec.Body.Bytes())
	assert.Equal(t, int32(1), atomic.LoadInt32(f.hits))
}

func TestSpeakErrors(t *testing.T) {
	noKey := testConfig()
	noKey.TTS.Providers = map[string]config.ProviderSettings{}
	badKey := testConfig()
	badKey.TTS.Providers["openai"] = config.ProviderSettings{APIKey: "sk-wrong"}

	tests := []struct {
		name   string
		cfg    *config.Config
		body   string
		status int
		kind   string
		hits   int32
	}{
		{"malformed body", testConfig(), `{"text":`, http.StatusBadRequest, "", 0},
		{"unknown provider", testConfig(), `{"text":"hi","provider":"acme","voice":"x"}`, http.StatusBadRequest, "unsupported_provider", 0},
		{"missing voice", testConfig(), `{"text":"hi","provider":"openai"}`, http.StatusBadRequest, "invalid_request", 0},
		{"missing key", noKey, `{"text":"hi","provider":"openai","voice":"alloy"}`, http.StatusBadRequest, "missing_credentials", 0},
		{"rejected key", badKey, `{"text":"hi","provider":"openai","voice":"alloy"}`, http.StatusUnauthorized, "auth_rejected", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.cfg)
			rec := f.do(http.MethodPost, "/api/v1/tts", tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			body := decodeJSON(t, rec)
			assert.NotEmpty(t, body["error"])
			if tt.kind != "" {
				assert.Equal(t, tt.kind, body["kind"])
			}
			assert.Equal(t, tt.hits, atomic.LoadInt32(f.hits))
		})
	}
}

func TestProvidersListing(t *testing.T) {
	f := newFixture(t, testConfig())
	rec := f.do(http.MethodGet, "/api/v1/tts/providers", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var out struct {
		Providers []tts.ProviderInfo `json:"providers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out.Providers, 2)
	assert.Equal(t, "edge", out.Providers[0].Name)
	assert.Equal(t, "openai", out.Providers[1].Name)
}

func TestJobLifecycleOverHTTP(t *testing.T) {
	f := newFixture(t, testConfig())

	rec := f.do(http.MethodPost, "/api/v1/tts/jobs", `{"text":"hello","provider":"OpenAI","voice":"alloy"}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	body := decodeJSON(t, rec)
	job := body["job"].(map[string]interface{})
	id := job["id"].(string)
	assert.Equal(t, "queued", job["status"])
	assert.Equal(t, "/api/v1/tts/jobs/"+id+"/audio", body["audio_url"])

	require.Len(t, f.queue.payloads, 1)
	assert.Equal(t, id, f.queue.payloads[0].JobID)
	assert.Equal(t, "openai", f.queue.payloads[0].Request.Provider)

	rec = f.do(http.MethodGet, "/api/v1/tts/jobs/"+id+"/audio", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	require.NoError(t, f.jobs.Complete(context.Background(), id, &tts.AudioPayload{Data: speech, MIMEType: "audio/mpeg"}))

	rec = f.do(http.MethodGet, "/api/v1/tts/jobs/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "succeeded", decodeJSON(t, rec)["status"])

	rec = f.do(http.MethodGet, "/api/v1/tts/jobs/"+id+"/audio", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "audio/mpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, speech, rec.Body.Bytes())

	rec = f.do(http.MethodGet, "/api/v1/tts/jobs/"+id+"/audio", "", "Range", "bytes=0-2")
	require.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "ID3", rec.Body.String())
	assert.Equal(t, "bytes 0-2/1505", rec.Header().Get("Content-Range"))
}

func TestCreateJobValidates(t *testing.T) {
	f := newFixture(t, testConfig())

	rec := f.do(http.MethodPost, "/api/v1/tts/jobs", `{"text":"hi","provider":"acme","voice":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "unsupported_provider", decodeJSON(t, rec)["kind"])

	rec = f.do(http.MethodPost, "/api/v1/tts/jobs", `{"text":"","provider":"openai","voice":"alloy"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/api/v1/tts/jobs", `{"text":"hi","provider":"openai","voice":"alloy","callback_url":"ftp://example.com"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", decodeJSON(t, rec)["kind"])
	assert.Empty(t, f.queue.payloads)

	rec = f.do(http.MethodPost, "/api/v1/tts/jobs", `{"text":"hi","provider":"openai","voice":"alloy","callback_url":"https://example.com/cb"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, f.queue.payloads, 1)
	assert.Equal(t, "https://example.com/cb", f.queue.payloads[0].CallbackURL)
}

func TestCreateJobQueueDown(t *testing.T) {
	f := newFixture(t, testConfig())
	f.queue.err = errors.New("redis: connection refused")

	rec := f.do(http.MethodPost, "/api/v1/tts/jobs", `{"text":"hi","provider":"openai","voice":"alloy"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGetJobNotFound(t *testing.T) {
	f := newFixture(t, testConfig())

	rec := f.do(http.MethodGet, "/api/v1/tts/jobs/7d444840-9dc0-11d1-b245-5ffdce74fad2", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(http.MethodGet, "/api/v1/tts/jobs/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth(t *testing.T) {
	f := newFixture(t, testConfig())

	rec := f.do(http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	f.mr.Close()
	rec = f.do(http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "unhealthy", decodeJSON(t, rec)["status"])
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t, testConfig())
	rec := f.do(http.MethodOptions, "/api/v1/tts", "", "Origin", "https://app.example.com")

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Expose-Headers"), "Content-Disposition")
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Server.RateLimitRPS = 0.001
	cfg.Server.RateBurst = 2
	f := newFixture(t, cfg)

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/v1/tts/providers", "").Code)
	}
	rec := f.do(http.MethodGet, "/api/v1/tts/providers", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	// Health checks are not rate limited.
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/healthz", "").Code)
}
