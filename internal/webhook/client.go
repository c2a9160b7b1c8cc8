// Package webhook delivers signed JSON notifications to operator endpoints.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	HeaderSignature = "X-Iopbridge-Signature"
	HeaderTimestamp = "X-Iopbridge-Timestamp"
	HeaderEvent     = "X-Iopbridge-Event"

	EventJobCompleted   = "job.completed"
	EventJobFailed      = "job.failed"
	EventProductInfo    = "marketplace.product"
	EventProductsSearch = "marketplace.products"

	maxLoggedResponse = 512
)

type Config struct {
	SigningSecret  string
	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

type Client struct {
	httpClient     *http.Client
	signingSecret  string
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	logger         zerolog.Logger
}

// NewClient defaults to a single attempt; callers opt in to retries.
func NewClient(cfg Config, logger zerolog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	initialBackoff := cfg.InitialBackoff
	if initialBackoff <= 0 {
		initialBackoff = time.Second
	}

	return &Client{
		httpClient:     &http.Client{Timeout: timeout},
		signingSecret:  cfg.SigningSecret,
		maxAttempts:    max(1, cfg.MaxAttempts),
		initialBackoff: initialBackoff,
		maxBackoff:     max(initialBackoff, cfg.MaxBackoff),
		logger:         logger.With().Str("component", "webhook").Logger(),
	}
}

// Send posts payload as JSON to endpoint. An empty endpoint is a no-op. The
// receiver's status and a prefix of its response text are logged for every
// attempt.
func (c *Client) Send(ctx context.Context, endpoint, event string, payload any) error {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	timestamp := strconv.FormatInt(time.Now().UTC().Unix(), 10)
	signature := Sign(c.signingSecret, timestamp, body)

	backoff := c.initialBackoff
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = c.post(ctx, endpoint, event, timestamp, signature, body, attempt)
		if lastErr == nil {
			return nil
		}
		if attempt == c.maxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, c.maxBackoff)
	}

	return fmt.Errorf("webhook delivery failed after %d attempts: %w", c.maxAttempts, lastErr)
}

// Forward is Send for callers whose own result must not depend on delivery.
func (c *Client) Forward(ctx context.Context, endpoint, event string, payload any) {
	if err := c.Send(ctx, endpoint, event, payload); err != nil {
		c.logger.Warn().Err(err).Str("event", event).Msg("webhook forward failed")
	}
}

func (c *Client) post(ctx context.Context, endpoint, event, timestamp, signature string, body []byte, attempt int) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderTimestamp, timestamp)
	req.Header.Set(HeaderEvent, event)
	if signature != "" {
		req.Header.Set(HeaderSignature, signature)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Str("event", event).Int("attempt", attempt).Msg("webhook request failed")
		return err
	}
	defer resp.Body.Close()

	text, _ := io.ReadAll(io.LimitReader(resp.Body, maxLoggedResponse))
	c.logger.Info().
		Str("event", event).
		Int("attempt", attempt).
		Int("status", resp.StatusCode).
		Str("response", string(text)).
		Msg("webhook delivered")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned status=%d", resp.StatusCode)
	}
	return nil
}

// Sign returns "sha256=<hex>" over "timestamp.body", or "" without a secret.
func Sign(secret, timestamp string, body []byte) string {
	if secret == "" {
		return ""
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a signature produced by Sign in constant time.
func Verify(secret, timestamp string, body []byte, signature string) bool {
	want := Sign(secret, timestamp, body)
	return want != "" && hmac.Equal([]byte(want), []byte(signature))
}
