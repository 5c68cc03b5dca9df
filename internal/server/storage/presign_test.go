package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stubAWS(t *testing.T) *s3.Options {
	t.Helper()

	origLoad, origNewS3, origNewPre, origPut := loadDefaultAWSConfig, newS3ClientFromConfig, newS3PresignClient, presignPutObject
	t.Cleanup(func() {
		loadDefaultAWSConfig = origLoad
		newS3ClientFromConfig = origNewS3
		newS3PresignClient = origNewPre
		presignPutObject = origPut
	})

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		var lo awsconfig.LoadOptions
		for _, fn := range optFns {
			require.NoError(t, fn(&lo))
		}
		assert.Equal(t, "eu-central-1", lo.Region)
		require.NotNil(t, lo.Credentials)
		return aws.Config{}, nil
	}

	captured := &s3.Options{}
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		for _, fn := range optFns {
			fn(captured)
		}
		return &s3.Client{}
	}
	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		require.NotNil(t, c)
		return &s3.PresignClient{}
	}
	return captured
}

func settings() S3Settings {
	return S3Settings{
		AccessKey:    "minioadmin",
		SecretKey:    "minioadmin",
		Bucket:       "uploads",
		Region:       "eu-central-1",
		BaseEndpoint: "http://127.0.0.1:9000",
		TTL:          5 * time.Minute,
	}
}

func TestNewS3Presigner_AppliesSettings(t *testing.T) {
	opts := stubAWS(t)

	p, err := NewS3Presigner(context.Background(), settings())
	require.NoError(t, err)
	require.NotNil(t, p)

	require.NotNil(t, opts.BaseEndpoint)
	assert.Equal(t, "http://127.0.0.1:9000", *opts.BaseEndpoint)
	assert.True(t, opts.UsePathStyle)
	assert.Equal(t, 5*time.Minute, p.ttl)
}

func TestNewS3Presigner_DefaultTTL(t *testing.T) {
	stubAWS(t)

	s := settings()
	s.TTL = 0
	p, err := NewS3Presigner(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, p.ttl)
}

func TestNewS3Presigner_LoadError(t *testing.T) {
	stubAWS(t)
	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, errors.New("load-fail")
	}

	_, err := NewS3Presigner(context.Background(), settings())
	require.EqualError(t, err, "load-fail")
}

func TestPresignPut(t *testing.T) {
	stubAWS(t)

	p, err := NewS3Presigner(context.Background(), settings())
	require.NoError(t, err)

	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		assert.Equal(t, "uploads", aws.ToString(in.Bucket))
		assert.Equal(t, "k/1", aws.ToString(in.Key))
		assert.Equal(t, "application/pdf", aws.ToString(in.ContentType))
		var po s3.PresignOptions
		for _, fn := range optFns {
			fn(&po)
		}
		assert.Equal(t, 5*time.Minute, po.Expires)
		return &v4.PresignedHTTPRequest{URL: "http://signed/k/1"}, nil
	}

	url, err := p.PresignPut(context.Background(), "k/1", "application/pdf")
	require.NoError(t, err)
	assert.Equal(t, "http://signed/k/1", url)

	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return nil, errors.New("presign-put-fail")
	}
	_, err = p.PresignPut(context.Background(), "k/1", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "presign-put-fail")
}

func TestObjectKey(t *testing.T) {
	at := time.Date(2025, 3, 7, 23, 30, 0, 0, time.FixedZone("x", -2*3600))

	assert.Equal(t, "uploads/owner-1/2025/3/8/ext-1", ObjectKey("owner-1", "ext-1", at))
}
