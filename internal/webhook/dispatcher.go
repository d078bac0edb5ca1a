package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
)

const (
	EventJobSucceeded = "tts.job.succeeded"
	EventJobFailed    = "tts.job.failed"
)

// Dispatcher posts signed JSON callbacks to caller-supplied URLs.
type Dispatcher struct {
	httpClient *http.Client
	secret     string
	timeout    time.Duration
}

func NewDispatcher(secret string, timeout time.Duration, client *http.Client) *Dispatcher {
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{httpClient: client, secret: secret, timeout: timeout}
}

// ValidateURL accepts absolute http and https URLs only.
func ValidateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse callback url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("callback url must be an absolute http(s) url")
	}
	return nil
}

// Deliver sends one event. Non-2xx responses are errors.
func (d *Dispatcher) Deliver(ctx context.Context, target, event string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	deliveryID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Event", event)
	req.Header.Set("X-Webhook-ID", deliveryID)
	if d.secret != "" {
		req.Header.Set("X-Webhook-Signature", Sign(body, d.secret))
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("deliver webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		slog.Warn("webhook received non-success response", "status", resp.StatusCode, "delivery_id", deliveryID, "event", event)
		return fmt.Errorf("webhook endpoint answered %d", resp.StatusCode)
	}
	slog.Info("webhook delivered", "delivery_id", deliveryID, "event", event)
	return nil
}

// Sign returns the X-Webhook-Signature value for payload.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return fmt.Sprintf("sha256=%s", hex.EncodeToString(mac.Sum(nil)))
}
