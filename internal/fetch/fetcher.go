// Package fetch downloads source images from caller-supplied URLs.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dunamismax/iopbridge/internal/apperrors"
	"github.com/dunamismax/iopbridge/internal/media"
)

const (
	DefaultTimeout  = 30 * time.Second
	DefaultMaxBytes = 50 << 20
)

var ErrTooLarge = errors.New("image exceeds size limit")

// browserHeaders make the request look like an <img> load from a storefront
// page; several marketplace CDNs refuse bare HTTP clients.
var browserHeaders = map[string]string{
	"User-Agent":      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Accept":          "image/avif,image/webp,image/apng,image/svg+xml,image/*,*/*;q=0.8",
	"Accept-Language": "en-US,en;q=0.9",
	"Referer":         "https://www.aliexpress.com/",
	"Connection":      "keep-alive",
	"Sec-Fetch-Dest":  "image",
	"Sec-Fetch-Mode":  "no-cors",
	"Sec-Fetch-Site":  "cross-site",
}

type Config struct {
	Timeout  time.Duration
	MaxBytes int64
}

// Image is a downloaded payload and the content type its origin declared.
type Image struct {
	Data        []byte
	ContentType string
}

type Fetcher struct {
	httpClient *http.Client
	maxBytes   int64
}

func New(cfg Config) *Fetcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}

	return &Fetcher{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		maxBytes: maxBytes,
	}
}

// Fetch issues a GET for rawURL. Every failure is a fetch-kind error since it
// traces back to the URL the caller supplied.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (Image, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return Image{}, apperrors.Fetch("fetch.parse_url", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Image{}, apperrors.Fetch("fetch.parse_url", fmt.Errorf("unsupported url scheme %q", u.Scheme))
	}
	if u.Host == "" {
		return Image{}, apperrors.Fetch("fetch.parse_url", errors.New("url has no host"))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Image{}, apperrors.Fetch("fetch.build_request", err)
	}
	for k, v := range browserHeaders {
		req.Header.Set(k, v)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return Image{}, apperrors.Fetch("fetch.get", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return Image{}, apperrors.Fetch("fetch.get", fmt.Errorf("%s returned status=%d", u.Redacted(), resp.StatusCode))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return Image{}, apperrors.Fetch("fetch.read_body", err)
	}
	if int64(len(data)) > f.maxBytes {
		return Image{}, apperrors.Fetch("fetch.read_body", fmt.Errorf("%w of %d bytes", ErrTooLarge, f.maxBytes))
	}

	contentType := strings.TrimSpace(resp.Header.Get("Content-Type"))
	if contentType == "" {
		contentType = media.DefaultContentType
	}

	return Image{Data: data, ContentType: contentType}, nil
}
