package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/h2non/filetype"

	cfg "channelpress/configs"
)

// MediaResolver turns a stored media key into something a platform API can
// consume: a presigned URL for pull-based upload, or raw bytes for direct
// upload. Publishers resolve media immediately before upload, never earlier.
type MediaResolver interface {
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	Fetch(ctx context.Context, key string) (data []byte, mimeType string, err error)
}

// R2Resolver serves media from a Cloudflare R2 bucket through the S3 API.
type R2Resolver struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
}

func NewR2Resolver(c cfg.Config) (*R2Resolver, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(c.R2.AccessKey, c.R2.SecretKey, "")),
		awsconfig.WithRegion("auto"),
	)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(fmt.Sprintf("https://%s.r2.cloudflarestorage.com", c.R2.AccountID))
	})

	return &R2Resolver{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  c.R2.BucketName,
	}, nil
}

func (r *R2Resolver) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	req, err := r.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		slog.Info(err.Error())
		return "", fmt.Errorf("storage: presign %s: %w", key, err)
	}
	return req.URL, nil
}

func (r *R2Resolver) Fetch(ctx context.Context, key string) ([]byte, string, error) {
	out, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		slog.Info(err.Error())
		return nil, "", fmt.Errorf("storage: get %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, "", fmt.Errorf("storage: read %s: %w", key, err)
	}

	mimeType := aws.ToString(out.ContentType)
	if mimeType == "" || mimeType == "application/octet-stream" {
		if kind, err := filetype.Match(data); err == nil && kind != filetype.Unknown {
			mimeType = kind.MIME.Value
		}
	}

	return data, mimeType, nil
}
