package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	err := Config{}.Validate()
	require.ErrorIs(t, err, ErrMissingConfig)
	assert.Contains(t, err.Error(), "AWS_ACCESS_KEY_ID")
	assert.Contains(t, err.Error(), "AWS_SECRET_ACCESS_KEY")
	assert.Contains(t, err.Error(), "AWS_S3_BUCKET_NAME")

	err = Config{Access: "a", Secret: "s"}.Validate()
	require.ErrorIs(t, err, ErrMissingConfig)
	assert.NotContains(t, err.Error(), "AWS_ACCESS_KEY_ID")

	assert.NoError(t, Config{Access: "a", Secret: "s", Bucket: "b"}.Validate())
}

func TestPublicURL(t *testing.T) {
	cfg := Config{Bucket: "catalog", Region: "eu-central-1"}
	assert.Equal(t,
		"https://catalog.s3.eu-central-1.amazonaws.com/images/sku-1_1700000000000_processed.webp",
		cfg.PublicURL("images/sku-1_1700000000000_processed.webp"),
	)

	cfg.Region = ""
	assert.Equal(t, "https://catalog.s3.us-east-1.amazonaws.com/images/a%20b.jpg", cfg.PublicURL("images/a b.jpg"))

	cfg.PublicBaseURL = "http://localhost:9000/catalog/"
	assert.Equal(t, "http://localhost:9000/catalog/images/x.jpg", cfg.PublicURL("images/x.jpg"))
}

func TestNewClientRequiresConfig(t *testing.T) {
	_, err := NewClient(Config{Endpoint: "localhost:9000"})
	require.ErrorIs(t, err, ErrMissingConfig)
}

func TestPutUploadsAndReturnsPublicURL(t *testing.T) {
	var (
		mu        sync.Mutex
		gotPath   string
		gotType   string
		gotBody   string
		gotMethod string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotType = r.Header.Get("Content-Type")
		gotBody = string(body)
		mu.Unlock()
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client, err := NewClient(Config{
		Endpoint: strings.TrimPrefix(srv.URL, "http://"),
		Access:   "minio",
		Secret:   "minio-secret",
		Bucket:   "catalog",
		Region:   "us-east-1",
	})
	require.NoError(t, err)

	url, err := client.Put(context.Background(), "images/sku_1_raw.png", []byte("payload"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "https://catalog.s3.us-east-1.amazonaws.com/images/sku_1_raw.png", url)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "/catalog/images/sku_1_raw.png", gotPath)
	assert.Equal(t, "image/png", gotType)
	assert.Contains(t, gotBody, "payload")
}

func TestPutSurfacesServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>AccessDenied</Code><Message>denied</Message></Error>`)
	}))
	defer srv.Close()

	client, err := NewClient(Config{
		Endpoint: strings.TrimPrefix(srv.URL, "http://"),
		Access:   "minio",
		Secret:   "minio-secret",
		Bucket:   "catalog",
		Region:   "us-east-1",
	})
	require.NoError(t, err)

	_, err = client.Put(context.Background(), "images/x.webp", []byte("x"), "image/webp")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "put object images/x.webp")
}
