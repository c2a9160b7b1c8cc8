// Package marketplace is a signed client for the IOP open platform gateway.
package marketplace

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultPartnerID = "iop-sdk-go"
	DefaultTimeout   = 30 * time.Second

	signMethod = "sha256"
)

var ErrNotConfigured = errors.New("marketplace client is not configured")

type Config struct {
	URL       string
	AppKey    string
	AppSecret string
	PartnerID string
	Timeout   time.Duration
}

// Request is one API call. Method defaults to POST.
type Request struct {
	APIName string
	Method  string
	Params  map[string]string
}

func NewRequest(apiName string) *Request {
	return &Request{
		APIName: apiName,
		Method:  http.MethodPost,
		Params:  map[string]string{},
	}
}

func (r *Request) AddParam(key, value string) *Request {
	r.Params[key] = value
	return r
}

// Response mirrors the gateway envelope. Body holds the whole decoded
// payload; a body that is not a JSON object is kept as {"raw": text}.
type Response struct {
	Type      string
	Code      string
	Message   string
	RequestID string
	Body      map[string]any
}

type Client struct {
	httpClient *http.Client
	cfg        Config
	now        func() time.Time
	logger     zerolog.Logger
}

func NewClient(cfg Config, logger zerolog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if strings.TrimSpace(cfg.PartnerID) == "" {
		cfg.PartnerID = DefaultPartnerID
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
		now:        time.Now,
		logger:     logger.With().Str("component", "marketplace").Logger(),
	}
}

// Configured reports whether the gateway URL and app credentials are set.
func (c *Client) Configured() bool {
	return strings.TrimSpace(c.cfg.URL) != "" &&
		strings.TrimSpace(c.cfg.AppKey) != "" &&
		strings.TrimSpace(c.cfg.AppSecret) != ""
}

// Execute signs and sends req. accessToken may be empty for public APIs.
func (c *Client) Execute(ctx context.Context, req *Request, accessToken string) (Response, error) {
	if !c.Configured() {
		return Response{}, fmt.Errorf("%w: set IOP_API_URL, IOP_APP_KEY, IOP_APP_SECRET", ErrNotConfigured)
	}

	params := make(map[string]string, len(req.Params)+6)
	for k, v := range req.Params {
		params[k] = v
	}
	params["app_key"] = c.cfg.AppKey
	params["timestamp"] = strconv.FormatInt(c.now().UnixMilli(), 10)
	params["sign_method"] = signMethod
	params["partner_id"] = c.cfg.PartnerID
	if accessToken != "" {
		params["access_token"] = accessToken
	}
	params["sign"] = Sign(c.cfg.AppSecret, req.APIName, params)

	httpReq, err := c.buildRequest(ctx, req, params)
	if err != nil {
		return Response{}, err
	}

	started := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("call %s: %w", req.APIName, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("read %s response: %w", req.APIName, err)
	}

	c.logger.Debug().
		Str("api", req.APIName).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(started)).
		Msg("marketplace call")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Response{}, fmt.Errorf("call %s: gateway returned status=%d: %s", req.APIName, resp.StatusCode, truncate(raw, 256))
	}
	return parseResponse(raw), nil
}

func (c *Client) buildRequest(ctx context.Context, req *Request, params map[string]string) (*http.Request, error) {
	values := url.Values{}
	for k, v := range params {
		values.Set(k, v)
	}

	endpoint := strings.TrimRight(c.cfg.URL, "/") + "/" + strings.TrimLeft(req.APIName, "/")
	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodPost
	}

	var (
		httpReq *http.Request
		err     error
	)
	if method == http.MethodGet {
		httpReq, err = http.NewRequestWithContext(ctx, method, endpoint+"?"+values.Encode(), nil)
	} else {
		httpReq, err = http.NewRequestWithContext(ctx, method, endpoint, strings.NewReader(values.Encode()))
		if err == nil {
			httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded;charset=utf-8")
		}
	}
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", req.APIName, err)
	}
	return httpReq, nil
}

// Sign is the upper-case hex HMAC-SHA256 of the API name followed by every
// key+value pair sorted by key. A "sign" entry in params is ignored.
func Sign(secret, apiName string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k == "sign" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(apiName)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(params[k])
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(b.String()))
	return strings.ToUpper(hex.EncodeToString(mac.Sum(nil)))
}

func parseResponse(raw []byte) Response {
	resp := Response{Type: "nil"}

	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil || body == nil {
		resp.Body = map[string]any{"raw": string(raw)}
		return resp
	}
	resp.Body = body

	if v, ok := body["type"]; ok {
		resp.Type = stringify(v)
	}
	resp.Code = stringify(body["code"])
	resp.Message = stringify(body["message"])
	resp.RequestID = stringify(body["request_id"])
	return resp
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
