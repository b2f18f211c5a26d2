// Package writer publishes the rate cache outside the local data lake:
// parquet exports and an optional S3 mirror.
package writer

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	appconfig "cryptofmv/config"
	"cryptofmv/logger"
)

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Mirror uploads local files to a bucket, keeping their path relative to
// a root directory under a key prefix.
type S3Mirror struct {
	client  objectPutter
	bucket  string
	prefix  string
	root    string
	version string
	log     *logger.Log
}

// NewS3Mirror configures the AWS SDK from cfg. Static credentials are used
// when both keys are set, otherwise the default provider chain.
func NewS3Mirror(ctx context.Context, cfg appconfig.S3Config, root, version string) (*S3Mirror, error) {
	log := logger.GetLogger()

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		log.WithComponent("s3_mirror").WithError(err).Warn("failed to load AWS configuration")
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})

	log.WithComponent("s3_mirror").WithFields(logger.Fields{
		"bucket": cfg.Bucket,
		"prefix": cfg.Prefix,
		"region": cfg.Region,
	}).Debug("s3 mirror initialized")

	return newS3Mirror(client, cfg.Bucket, cfg.Prefix, root, version), nil
}

func newS3Mirror(client objectPutter, bucket, prefix, root, version string) *S3Mirror {
	return &S3Mirror{
		client:  client,
		bucket:  bucket,
		prefix:  strings.Trim(prefix, "/"),
		root:    root,
		version: version,
		log:     logger.GetLogger(),
	}
}

// Mirror uploads each file. It stops at the first failure.
func (m *S3Mirror) Mirror(ctx context.Context, paths ...string) error {
	for _, p := range paths {
		if err := m.upload(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

func (m *S3Mirror) upload(ctx context.Context, local string) error {
	data, err := os.ReadFile(local)
	if err != nil {
		return fmt.Errorf("read %s: %w", local, err)
	}
	key := m.objectKey(local)

	log := m.log.WithComponent("s3_mirror").WithFields(logger.Fields{
		"key":       key,
		"data_size": len(data),
	})

	_, err = m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(m.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType(local)),
		Metadata: map[string]string{
			"cryptofmv-version": m.version,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to upload to S3 bucket %s: %w", m.bucket, err)
	}
	log.Debug("uploaded to S3")
	return nil
}

// objectKey maps a local path to its object key: the path relative to the
// root, or the bare file name when it lies outside the root.
func (m *S3Mirror) objectKey(local string) string {
	rel, err := filepath.Rel(m.root, local)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		rel = filepath.Base(local)
	}
	rel = filepath.ToSlash(rel)
	if m.prefix == "" {
		return rel
	}
	return path.Join(m.prefix, rel)
}

func contentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		return "application/yaml"
	case ".parquet":
		return "application/octet-stream"
	default:
		return "text/plain"
	}
}
