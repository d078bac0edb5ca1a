package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/nikhilbhutani/ttsgateway/internal/audio"
)

const (
	// DefaultAttemptTimeout bounds each proxy request.
	DefaultAttemptTimeout = 30 * time.Second
	maxResponseBytes      = 64 << 20
)

// NegotiationAttempt records one rung of a ladder walk.
type NegotiationAttempt struct {
	ShapeIndex  int
	Shape       string
	RequestBody []byte
	HTTPStatus  int
}

// NegotiationResult is the outcome of a ladder walk. Attempts is populated
// on failure as well.
type NegotiationResult struct {
	Audio    *RawAudio
	Attempts []NegotiationAttempt
}

// Negotiator walks a ProxyAdapter's payload ladder against a custom
// endpoint, strictly one attempt at a time.
type Negotiator struct {
	client         *http.Client
	attemptTimeout time.Duration
}

func NewNegotiator(client *http.Client, attemptTimeout time.Duration) *Negotiator {
	if client == nil {
		client = http.DefaultClient
	}
	if attemptTimeout <= 0 {
		attemptTimeout = DefaultAttemptTimeout
	}
	return &Negotiator{client: client, attemptTimeout: attemptTimeout}
}

// shapeRejected reports whether status means the proxy disliked the payload
// shape, so the next shape is worth trying.
func shapeRejected(status int) bool {
	return status == http.StatusBadRequest || status == http.StatusInternalServerError
}

// Negotiate returns the first accepted shape's audio. Statuses other than
// 200, 400 and 500 stop the walk with their classified kind; running out of
// shapes yields ProxyExhausted.
func (n *Negotiator) Negotiate(ctx context.Context, p ProxyAdapter, req SynthesisRequest, cfg ProviderConfig) (*NegotiationResult, error) {
	model := resolveModel(req, cfg, p.DefaultModel())
	shapes := p.Shapes()
	res := &NegotiationResult{Attempts: make([]NegotiationAttempt, 0, len(shapes))}

	for i, shape := range shapes {
		body, err := json.Marshal(shape.Build(req))
		if err != nil {
			return res, newError(InternalError, "marshal "+shape.Name+" payload", err)
		}

		status, respBody, err := n.post(ctx, p, cfg, model, body)
		res.Attempts = append(res.Attempts, NegotiationAttempt{
			ShapeIndex:  i,
			Shape:       shape.Name,
			RequestBody: body,
			HTTPStatus:  status,
		})
		if err != nil {
			var typed *Error
			if errors.As(err, &typed) {
				return res, typed
			}
			return res, newError(NetworkFailure, p.Name()+" proxy request failed", err)
		}

		switch {
		case status == http.StatusOK:
			raw, err := n.extract(ctx, p, respBody)
			if err == nil {
				slog.Info("proxy accepted payload",
					"provider", p.Name(),
					"model", model,
					"shape", shape.Name,
					"attempt", i+1,
					"bytes", len(raw.Data),
				)
				res.Audio = raw
				return res, nil
			}
			slog.Warn("proxy response carried no usable audio, trying next shape",
				"provider", p.Name(),
				"shape", shape.Name,
				"error", err,
			)
		case shapeRejected(status):
			slog.Warn("proxy rejected payload shape",
				"provider", p.Name(),
				"shape", shape.Name,
				"status", status,
				"body", snippet(respBody),
			)
		default:
			return res, newError(KindFromStatus(status),
				fmt.Sprintf("%s proxy returned status %d", p.Name(), status),
				errors.New(snippet(respBody)))
		}
	}

	return res, newError(ProxyExhausted, fmt.Sprintf("%s proxy rejected all %d payload shapes", p.Name(), len(shapes)), nil)
}

func (n *Negotiator) post(ctx context.Context, p ProxyAdapter, cfg ProviderConfig, model string, body []byte) (int, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, n.attemptTimeout)
	defer cancel()

	httpReq, err := p.NewProxyRequest(ctx, cfg, model, body)
	if err != nil {
		return 0, nil, newError(InternalError, "build "+p.Name()+" proxy request", err)
	}

	resp, err := n.client.Do(httpReq)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := readLimited(resp.Body, maxResponseBytes)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read proxy response: %w", err)
	}
	return resp.StatusCode, respBody, nil
}

func (n *Negotiator) extract(ctx context.Context, p ProxyAdapter, body []byte) (*RawAudio, error) {
	env, err := p.DecodeEnvelope(body)
	if err != nil {
		return nil, newError(NoAudioInResponse, "undecodable response", err)
	}
	return resolveEnvelope(ctx, n.client, n.attemptTimeout, env, p.PCM())
}

// resolveEnvelope turns an envelope into raw audio, downloading linked audio
// when needed.
func resolveEnvelope(ctx context.Context, client *http.Client, timeout time.Duration, env Envelope, pcm audio.PCMSpec) (*RawAudio, error) {
	switch env := env.(type) {
	case InlineAudio:
		return &RawAudio{
			Data:     env.Data,
			MIMEType: env.MIMEType,
			PCM:      audio.PCMSpecFromMIME(env.MIMEType, pcm),
		}, nil
	case ImageLink:
		data, mimeType, err := fetchAudio(ctx, client, timeout, env.URL)
		if err != nil {
			return nil, newError(NoAudioInResponse, "linked audio unavailable", err)
		}
		return &RawAudio{Data: data, MIMEType: mimeType, PCM: pcm}, nil
	case NoAudio:
		return nil, newError(NoAudioInResponse, env.Reason, nil)
	default:
		return nil, newError(InternalError, fmt.Sprintf("unexpected envelope %T", env), nil)
	}
}

func fetchAudio(ctx context.Context, client *http.Client, timeout time.Duration, url string) ([]byte, string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download audio: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("download audio: status %d", resp.StatusCode)
	}
	data, err := readLimited(resp.Body, maxResponseBytes)
	if err != nil {
		return nil, "", fmt.Errorf("read audio: %w", err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

var errResponseTooLarge = errors.New("response body too large")

// readLimited reads r to EOF, failing rather than truncating past limit bytes.
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	b, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > limit {
		return nil, fmt.Errorf("%w: over %d bytes", errResponseTooLarge, limit)
	}
	return b, nil
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 256 {
		s = s[:256] + "..."
	}
	return s
}

func newJSONRequest(ctx context.Context, url string, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}
