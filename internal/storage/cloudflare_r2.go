package storage

import (
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
)

// CloudflareR2Storage is S3Storage pointed at an R2 endpoint.
type CloudflareR2Storage struct {
	*S3Storage
}

// NewCloudflareR2Storage creates a new Cloudflare R2 storage instance.
// Endpoint format: https://<account_id>.r2.cloudflarestorage.com
func NewCloudflareR2Storage(cfg Config) (*CloudflareR2Storage, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required for Cloudflare R2")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket is required for Cloudflare R2")
	}

	awsConfig := &aws.Config{
		Region:           aws.String("auto"),
		Endpoint:         aws.String(cfg.Endpoint),
		Credentials:      credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, ""),
		S3ForcePathStyle: aws.Bool(true),
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://%s.r2.dev", cfg.Bucket)
	}

	// R2 has no object ACLs; public access is configured on the bucket
	backend, err := newS3Backend(awsConfig, cfg.Bucket, baseURL, false)
	if err != nil {
		return nil, fmt.Errorf("failed to create R2 session: %w", err)
	}
	return &CloudflareR2Storage{S3Storage: backend}, nil
}
