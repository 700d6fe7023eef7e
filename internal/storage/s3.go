package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

// Client stages generated images in a bucket so the story model can fetch them by URL.
type Client struct {
	s3Client *s3.Client
	bucket   string
}

// NewClient connects to the staging bucket. An empty endpoint means AWS itself.
func NewClient(ctx context.Context, endpoint, region, bucket, accessKey, secretKey string) (*Client, error) {
	configOpts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
	}

	// self-hosted or non-AWS bucket
	if endpoint != "" {
		configOpts = append(configOpts, config.WithBaseEndpoint(endpoint))
	}

	cfg, err := config.LoadDefaultConfig(ctx, configOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// Presigned URLs must resolve on self-hosted buckets too, so keys go in the path.
	// Checksums are sent only when the operation demands them.
	s3Client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	})

	log.Info().
		Str("endpoint", endpoint).
		Str("bucket", bucket).
		Msg("Image staging bucket ready")

	return &Client{
		s3Client: s3Client,
		bucket:   bucket,
	}, nil
}

// Upload stages one image under key. contentLength must be the exact byte count.
func (c *Client) Upload(ctx context.Context, key string, data io.Reader, contentType string, contentLength int64) error {
	_, err := c.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(key),
		Body:          data,
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(contentLength),
	})
	if err != nil {
		return fmt.Errorf("failed to stage image: %w", err)
	}

	log.Debug().
		Str("bucket", c.bucket).
		Str("key", key).
		Int64("size", contentLength).
		Msg("Image staged")

	return nil
}

// GeneratePresignedURL returns a read-only URL for a staged image, valid for expiration.
func (c *Client) GeneratePresignedURL(key string, expiration time.Duration) (string, error) {
	presignClient := s3.NewPresignClient(c.s3Client)

	req, err := presignClient.PresignGetObject(context.Background(), &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = expiration
	})
	if err != nil {
		return "", fmt.Errorf("failed to presign staged image: %w", err)
	}

	return req.URL, nil
}

// Delete removes a staged image once the story no longer needs it.
func (c *Client) Delete(ctx context.Context, key string) error {
	_, err := c.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to remove staged image: %w", err)
	}

	log.Debug().
		Str("bucket", c.bucket).
		Str("key", key).
		Msg("Staged image removed")

	return nil
}
