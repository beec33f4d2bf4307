package documents

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
	"github.com/sevarahealth/sevara/internal/models"
)

// S3Config configures S3-compatible document storage. A custom endpoint
// supports MinIO, Wasabi, and other S3-compatible services.
type S3Config struct {
	Endpoint        string
	Bucket          string
	Prefix          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
}

// Validate checks if the configuration is valid.
func (c S3Config) Validate() error {
	if c.Bucket == "" {
		return errors.New("document storage: bucket is required")
	}
	if c.AccessKeyID == "" {
		return errors.New("document storage: access_key_id is required")
	}
	if c.SecretAccessKey == "" {
		return errors.New("document storage: secret_access_key is required")
	}
	return nil
}

// S3Store stores rendered agreement documents in an S3 bucket. It
// implements the lifecycle engine's document service contract.
type S3Store struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
	logger   zerolog.Logger
}

// NewS3Store creates a document store backed by the configured bucket.
func NewS3Store(ctx context.Context, cfg S3Config, logger zerolog.Logger) (*S3Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("document storage: load aws config: %w", err)
	}

	clientOpts := []func(*s3.Options){}
	if cfg.Endpoint != "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		endpoint := cfg.Endpoint
		endpoint = strings.TrimPrefix(endpoint, "http://")
		endpoint = strings.TrimPrefix(endpoint, "https://")
		endpointURL := fmt.Sprintf("%s://%s", scheme, endpoint)
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpointURL)
			o.UsePathStyle = true
		})
	}

	client := s3.NewFromConfig(awsCfg, clientOpts...)

	return &S3Store{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   cfg.Bucket,
		prefix:   strings.Trim(cfg.Prefix, "/"),
		logger:   logger.With().Str("component", "document_store").Logger(),
	}, nil
}

// objectKey builds the storage key for an agreement document.
func (s *S3Store) objectKey(a *models.Agreement) string {
	key := fmt.Sprintf("agreements/%s/%s-v%d.txt", a.OrgID, a.ID, a.TemplateVersion)
	if s.prefix != "" {
		key = s.prefix + "/" + key
	}
	return key
}

// RenderAndStore renders the executed agreement document and uploads it,
// returning the storage key.
func (s *S3Store) RenderAndStore(ctx context.Context, a *models.Agreement, t *models.Template) (string, error) {
	data, err := Render(a, t)
	if err != nil {
		return "", err
	}

	key := s.objectKey(a)
	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("text/plain; charset=utf-8"),
	})
	if err != nil {
		return "", fmt.Errorf("upload document: %w", err)
	}

	s.logger.Info().
		Str("agreement_id", a.ID.String()).
		Str("key", key).
		Int("bytes", len(data)).
		Msg("agreement document uploaded")
	return key, nil
}

// Fetch retrieves a stored document by its storage key.
func (s *S3Store) Fetch(ctx context.Context, ref string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(ref),
	})
	if err != nil {
		return nil, fmt.Errorf("fetch document %s: %w", ref, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read document %s: %w", ref, err)
	}
	return data, nil
}
