// Package storage issues presigned object storage URLs so clients upload
// file bytes directly to the bucket.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}

	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignPutObject(ctx, in, optFns...)
	}
)

// S3Settings describes an S3-compatible bucket.
type S3Settings struct {
	AccessKey    string
	SecretKey    string
	Bucket       string
	Region       string
	BaseEndpoint string
	TTL          time.Duration
}

// S3Presigner signs PUT requests against one bucket.
type S3Presigner struct {
	client *s3.PresignClient
	bucket string
	ttl    time.Duration
}

// NewS3Presigner builds a presign client with static credentials and a
// path-style base endpoint (MinIO and friends).
func NewS3Presigner(ctx context.Context, s S3Settings) (*S3Presigner, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(s.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s.AccessKey,
			s.SecretKey,
			"",
		)))
	if err != nil {
		return nil, err
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if s.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(s.BaseEndpoint)
			o.UsePathStyle = true
		}
	})

	ttl := s.TTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}

	return &S3Presigner{
		client: newS3PresignClient(client),
		bucket: s.Bucket,
		ttl:    ttl,
	}, nil
}

// ObjectKey places an upload under its owner and creation date.
func ObjectKey(ownerID, externalID string, at time.Time) string {
	d := at.UTC()
	return fmt.Sprintf("uploads/%s/%d/%d/%d/%s", ownerID, d.Year(), d.Month(), d.Day(), externalID)
}

// PresignPut returns a URL the client can PUT the object to.
func (p *S3Presigner) PresignPut(ctx context.Context, key, contentType string) (string, error) {
	in := &s3.PutObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}

	req, err := presignPutObject(p.client, ctx, in, s3.WithPresignExpires(p.ttl))
	if err != nil {
		return "", fmt.Errorf("presign put %s: %w", key, err)
	}

	return req.URL, nil
}
