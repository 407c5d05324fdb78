package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"newsbrief/research"
)

// objectPutter is the slice of the S3 client the archive needs.
type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archive uploads finished research bundles as JSON objects under
// <prefix>/<date>/<record>.json. An unconfigured bucket disables it.
type S3Archive struct {
	client objectPutter
	bucket string
	prefix string
}

// Config holds archive settings. Empty Bucket means archiving is off.
type Config struct {
	Bucket string
	Region string
	Prefix string
}

// NewS3Archive builds the archive, or returns (nil, nil) when no bucket
// is configured so callers can wire a plain nil archiver.
func NewS3Archive(ctx context.Context, cfg Config) (*S3Archive, error) {
	if cfg.Bucket == "" {
		log.Println("No archive bucket configured, skipping bundle uploads")
		return nil, nil
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &S3Archive{
		client: s3.NewFromConfig(awsCfg),
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

// NewS3ArchiveWithClient injects a putter. Used by tests.
func NewS3ArchiveWithClient(client objectPutter, bucket, prefix string) *S3Archive {
	return &S3Archive{client: client, bucket: bucket, prefix: prefix}
}

// Archive uploads one bundle.
func (a *S3Archive) Archive(ctx context.Context, bundle *research.Bundle) error {
	body, err := json.MarshalIndent(bundle, "", "  ")
	if err != nil {
		return err
	}

	key := a.key(bundle)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload bundle %s: %w", key, err)
	}

	log.Printf("Archived research bundle s3://%s/%s", a.bucket, key)
	return nil
}

func (a *S3Archive) key(bundle *research.Bundle) string {
	date := bundle.CompletedAt
	if date.IsZero() {
		date = time.Now()
	}
	if a.prefix != "" {
		return fmt.Sprintf("%s/%s/%s.json", a.prefix, date.Format("2006-01-02"), bundle.RecordID)
	}
	return fmt.Sprintf("%s/%s.json", date.Format("2006-01-02"), bundle.RecordID)
}
