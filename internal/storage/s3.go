package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type S3Config struct {
	Endpoint     string
	Region       string
	AccessKey    string
	SecretKey    string
	Bucket       string
	UsePathStyle bool
	Prefix       string
}

// S3 stores payloads as text objects in a bucket, for deployments whose
// key-value store cannot hold multi-megabyte values.
type S3 struct {
	cfg    S3Config
	client *s3.Client
}

func NewS3(cfg S3Config) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("s3 region is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("s3 credentials are required")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "images"
	}

	options := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: cfg.UsePathStyle,
	}
	if cfg.Endpoint != "" {
		options.BaseEndpoint = aws.String(cfg.Endpoint)
	}

	return &S3{cfg: cfg, client: s3.New(options)}, nil
}

func (u *S3) Save(ctx context.Context, imageID, payload string) error {
	if payload == "" {
		return fmt.Errorf("no payload to upload")
	}
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.cfg.Bucket),
		Key:         aws.String(u.objectKey(imageID)),
		Body:        bytes.NewReader([]byte(payload)),
		ContentType: aws.String("text/plain"),
	})
	if err != nil {
		return fmt.Errorf("upload payload %s: %w", imageID, err)
	}
	return nil
}

func (u *S3) Load(ctx context.Context, imageID string) (string, error) {
	out, err := u.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(u.cfg.Bucket),
		Key:    aws.String(u.objectKey(imageID)),
	})
	if err != nil {
		return "", fmt.Errorf("fetch payload %s: %w", imageID, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return "", fmt.Errorf("read payload %s: %w", imageID, err)
	}
	return string(data), nil
}

func (u *S3) objectKey(imageID string) string {
	prefix := strings.Trim(u.cfg.Prefix, "/")
	return path.Join(prefix, imageID+".txt")
}
