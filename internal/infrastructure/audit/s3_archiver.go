package audit

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/LavaJover/shvark-settlement-service/internal/config"
	"github.com/LavaJover/shvark-settlement-service/internal/domain"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectPutter is the subset of *s3.Client the archiver needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archiver stores raw gateway responses in an S3-compatible bucket.
type S3Archiver struct {
	client ObjectPutter
	bucket string
	prefix string
}

func NewS3Archiver(client ObjectPutter, bucket, prefix string) *S3Archiver {
	return &S3Archiver{client: client, bucket: bucket, prefix: prefix}
}

// NewS3ArchiverFromConfig builds the archiver with a static-credential client.
// A custom endpoint switches to path-style addressing (MinIO, R2).
func NewS3ArchiverFromConfig(ctx context.Context, cfg config.Audit) (*S3Archiver, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load s3 config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3Archiver(client, cfg.Bucket, cfg.Prefix), nil
}

func (a *S3Archiver) Archive(ctx context.Context, record domain.AuditRecord) error {
	metadata := map[string]string{
		"operation": record.Operation,
		"status":    string(record.Status),
	}
	if record.ExternalID != "" {
		metadata["external-id"] = record.ExternalID
	}

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(ObjectKey(a.prefix, record)),
		Body:        bytes.NewReader(record.Raw),
		ContentType: aws.String("application/json"),
		Metadata:    metadata,
	})
	if err != nil {
		return fmt.Errorf("failed to archive gateway response: %w", err)
	}
	return nil
}

// ObjectKey lays records out by day and pool:
// <prefix>/2026/03/01/<pool>/<tx>-<operation>-<unixnano>.json
func ObjectKey(prefix string, record domain.AuditRecord) string {
	at := record.RecordedAt.UTC()
	name := fmt.Sprintf("%s-%s-%d.json", record.TransactionID, record.Operation, at.UnixNano())
	return path.Join(prefix, at.Format("2006/01/02"), record.PoolID, name)
}
