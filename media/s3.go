// Package media copies provider profile photos into object storage so the
// gateway serves a stable URL instead of hotlinking the provider's CDN.
package media

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/soumyab/authgate"
)

const fetchTimeout = 15 * time.Second

// s3API is the slice of the S3 client the uploader needs.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Uploader fetches a remote image and stores a copy under
// profile-photos/ in the configured bucket.
type S3Uploader struct {
	client    s3API
	httpc     *http.Client
	bucket    string
	publicURL string
}

// Config carries the settings for New. Endpoint and PublicURL make the
// uploader work against S3-compatible stores like MinIO.
type Config struct {
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	Endpoint  string
	PublicURL string
}

func New(ctx context.Context, cfg Config) (*S3Uploader, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("media: bucket is required")
	}
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("media: loading aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	publicURL := cfg.PublicURL
	if publicURL == "" {
		publicURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
	}
	return &S3Uploader{
		client:    client,
		httpc:     &http.Client{Timeout: fetchTimeout},
		bucket:    cfg.Bucket,
		publicURL: strings.TrimRight(publicURL, "/"),
	}, nil
}

// Upload downloads sourceURL and writes it to the bucket, returning the
// hosted URL of the copy.
func (u *S3Uploader) Upload(ctx context.Context, sourceURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return "", &authgate.UpstreamError{Dependency: "media", Err: err}
	}
	resp, err := u.httpc.Do(req)
	if err != nil {
		return "", &authgate.UpstreamError{Dependency: "media", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", &authgate.UpstreamError{
			Dependency: "media",
			Err:        fmt.Errorf("fetching %s: status %d", sourceURL, resp.StatusCode),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return "", &authgate.UpstreamError{Dependency: "media", Err: err}
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(body)
	}
	key := "profile-photos/" + uuid.NewString() + extensionFor(sourceURL, contentType)

	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", &authgate.UpstreamError{Dependency: "media", Err: err}
	}
	return u.publicURL + "/" + key, nil
}

func extensionFor(sourceURL, contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	}
	if ext := path.Ext(strings.SplitN(sourceURL, "?", 2)[0]); ext != "" && len(ext) <= 5 {
		return ext
	}
	return ""
}
