package providers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/enigma-backup/enigma/internal/enigmaerr"
)

// S3Config describes how to reach one S3-compatible bucket, including
// third-party services that speak the S3 API through a custom Endpoint
// (Backblaze B2, Wasabi, MinIO, Cloudflare R2).
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string // empty for real AWS
	AccessKeyID     string
	SecretAccessKey string
	ForcePathStyle  bool
}

// S3 is a distributor.Provider backed by an S3-compatible bucket.
type S3 struct {
	name     string
	bucket   string
	client   *s3.Client
	uploader *manager.Uploader
}

// NewS3 builds an S3 provider from cfg. Credentials are taken from cfg
// when both fields are set, otherwise from the default AWS credential
// chain (environment, shared config, instance role).
func NewS3(name string, cfg S3Config) (*S3, error) {
	ctx := context.Background()

	var optFns []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		optFns = append(optFns, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		optFns = append(optFns, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, enigmaerr.New(enigmaerr.ConfigInvalid, "load AWS config", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})

	return &S3{
		name:     name,
		bucket:   cfg.Bucket,
		client:   client,
		uploader: manager.NewUploader(client),
	}, nil
}

func (p *S3) Name() string { return p.name }

func (p *S3) Put(ctx context.Context, key string, data []byte) error {
	_, err := p.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return enigmaerr.New(enigmaerr.StorageTransient, fmt.Sprintf("upload %q to s3", key), err)
	}
	return nil
}

func (p *S3) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := p.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, enigmaerr.New(enigmaerr.NotFound, fmt.Sprintf("key %q not found", key), err)
		}
		return nil, enigmaerr.New(enigmaerr.StorageTransient, fmt.Sprintf("download %q from s3", key), err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, enigmaerr.New(enigmaerr.StorageTransient, "read s3 object body", err)
	}
	return data, nil
}

func (p *S3) Delete(ctx context.Context, key string) error {
	_, err := p.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return enigmaerr.New(enigmaerr.StorageTransient, fmt.Sprintf("delete %q from s3", key), err)
	}
	return nil
}

func (p *S3) Head(ctx context.Context, key string) (bool, int64, error) {
	out, err := p.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return false, 0, nil
		}
		return false, 0, enigmaerr.New(enigmaerr.StorageTransient, fmt.Sprintf("head %q on s3", key), err)
	}
	size := int64(0)
	if out.ContentLength != nil {
		size = *out.ContentLength
	}
	return true, size, nil
}

func (p *S3) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(p.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(p.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, enigmaerr.New(enigmaerr.StorageTransient, "list s3 objects", err)
		}
		for _, obj := range page.Contents {
			if obj.Key != nil {
				keys = append(keys, *obj.Key)
			}
		}
	}
	return keys, nil
}

func (p *S3) TestConnection(ctx context.Context) error {
	_, err := p.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(p.bucket)})
	if err != nil {
		return enigmaerr.New(enigmaerr.StoragePermanent, "s3 bucket unreachable", err)
	}
	return nil
}

func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "404":
			return true
		}
	}
	return strings.Contains(err.Error(), "NotFound") || strings.Contains(err.Error(), "NoSuchKey")
}
