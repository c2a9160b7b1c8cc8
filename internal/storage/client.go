package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var ErrMissingConfig = errors.New("object storage configuration is missing")

type Config struct {
	Endpoint      string
	Access        string
	Secret        string
	Bucket        string
	Region        string
	UseSSL        bool
	PublicBaseURL string
}

// Validate reports every missing required setting at once.
func (c Config) Validate() error {
	var missing []string
	if strings.TrimSpace(c.Access) == "" {
		missing = append(missing, "AWS_ACCESS_KEY_ID")
	}
	if strings.TrimSpace(c.Secret) == "" {
		missing = append(missing, "AWS_SECRET_ACCESS_KEY")
	}
	if strings.TrimSpace(c.Bucket) == "" {
		missing = append(missing, "AWS_S3_BUCKET_NAME")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: set %s", ErrMissingConfig, strings.Join(missing, ", "))
	}
	return nil
}

// PublicURL addresses objects virtual-hosted style unless a base URL
// override is configured.
func (c Config) PublicURL(objectKey string) string {
	base := strings.TrimRight(strings.TrimSpace(c.PublicBaseURL), "/")
	if base == "" {
		region := strings.TrimSpace(c.Region)
		if region == "" {
			region = "us-east-1"
		}
		base = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", c.Bucket, region)
	}
	return base + "/" + escapeKey(objectKey)
}

func escapeKey(objectKey string) string {
	parts := strings.Split(objectKey, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

type Client struct {
	minio *minio.Client
	cfg   Config
}

func NewClient(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.Access, cfg.Secret, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &Client{
		minio: mc,
		cfg:   cfg,
	}, nil
}

func (c *Client) Bucket() string {
	return c.cfg.Bucket
}

func (c *Client) EnsureBucket(ctx context.Context) error {
	exists, err := c.minio.BucketExists(ctx, c.cfg.Bucket)
	if err != nil {
		return fmt.Errorf("check bucket existence: %w", err)
	}
	if exists {
		return nil
	}

	if err := c.minio.MakeBucket(ctx, c.cfg.Bucket, minio.MakeBucketOptions{Region: c.cfg.Region}); err != nil {
		exists, checkErr := c.minio.BucketExists(ctx, c.cfg.Bucket)
		if checkErr == nil && exists {
			return nil
		}
		return fmt.Errorf("create bucket %s: %w", c.cfg.Bucket, err)
	}

	return nil
}

// Put uploads data under objectKey and returns its public address. The URL is
// derived from configuration, not from the upload response.
func (c *Client) Put(ctx context.Context, objectKey string, data []byte, contentType string) (string, error) {
	_, err := c.minio.PutObject(
		ctx,
		c.cfg.Bucket,
		objectKey,
		bytes.NewReader(data),
		int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType},
	)
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", objectKey, err)
	}
	return c.cfg.PublicURL(objectKey), nil
}

func (c *Client) ObjectExists(ctx context.Context, objectKey string) (bool, error) {
	_, err := c.minio.StatObject(ctx, c.cfg.Bucket, objectKey, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}

	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.Code == "NoSuchObject" {
		return false, nil
	}
	return false, fmt.Errorf("stat object %s: %w", objectKey, err)
}
