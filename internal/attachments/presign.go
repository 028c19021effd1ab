// Package attachments signs short-lived download URLs for response
// attachments kept in S3-compatible object storage.
package attachments

import (
	"context"
	"fmt"
	"mime"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// Region skips the bucket-location lookup when set.
	Region string
	Expiry time.Duration
}

type Presigner struct {
	client *minio.Client
	bucket string
	expiry time.Duration
}

// NewPresigner returns nil when no endpoint is configured.
func NewPresigner(cfg Config) (*Presigner, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, nil
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("create object storage client: %w", err)
	}
	expiry := cfg.Expiry
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}
	return &Presigner{client: client, bucket: cfg.Bucket, expiry: expiry}, nil
}

// DownloadURL signs a GET for objectKey that downloads as fileName.
func (p *Presigner) DownloadURL(ctx context.Context, objectKey, fileName string) (string, error) {
	params := url.Values{}
	if fileName != "" {
		params.Set("response-content-disposition", mime.FormatMediaType("attachment", map[string]string{"filename": fileName}))
	}
	signed, err := p.client.PresignedGetObject(ctx, p.bucket, strings.TrimPrefix(objectKey, "/"), p.expiry, params)
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", objectKey, err)
	}
	return signed.String(), nil
}
