// Package archive exports expired operation-log records to S3-compatible
// storage before retention pruning removes them. When S3 is not configured
// (empty bucket), the NoopArchiver is used and the audit trail is pruned
// without an offsite copy.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/oklog/ulid/v2"

	"github.com/hyperengineering/tether/internal/config"
	tethersync "github.com/hyperengineering/tether/internal/sync"
)

// ErrNotConfigured is returned when an archive write is attempted without
// a configured target. Callers check Configured before archiving.
var ErrNotConfigured = errors.New("archive storage not configured")

// Bundle is the JSON document written per archive run.
type Bundle struct {
	ArchivedAt time.Time              `json:"archived_at"`
	Cutoff     time.Time              `json:"cutoff"`
	Operations []tethersync.Operation `json:"operations"`
}

// Archiver exports expired operation records to durable offsite storage.
type Archiver interface {
	// ArchiveOperations writes the operations as one bundle and returns
	// the object key. Returns ErrNotConfigured when archiving is disabled.
	ArchiveOperations(ctx context.Context, cutoff time.Time, operations []tethersync.Operation) (string, error)

	// Configured reports whether an offsite target exists. Callers that
	// must not prune unarchived records check this first.
	Configured() bool
}

// s3Client defines the minimal minio.Client operations used by S3Archiver.
// This interface enables testing with mock implementations.
type s3Client interface {
	PutObject(ctx context.Context, bucket, objectName string, reader io.Reader, size int64) error
}

// minioClientWrapper wraps *minio.Client to satisfy the s3Client interface.
type minioClientWrapper struct {
	client *minio.Client
}

func (w *minioClientWrapper) PutObject(ctx context.Context, bucket, objectName string, reader io.Reader, size int64) error {
	opts := minio.PutObjectOptions{
		ContentType: "application/json",
	}
	_, err := w.client.PutObject(ctx, bucket, objectName, reader, size, opts)
	return err
}

// S3Archiver writes archive bundles to S3-compatible storage.
type S3Archiver struct {
	client s3Client
	bucket string
}

// ArchiveOperations marshals the operations into a bundle and uploads it.
func (a *S3Archiver) ArchiveOperations(ctx context.Context, cutoff time.Time, operations []tethersync.Operation) (string, error) {
	bundle := Bundle{
		ArchivedAt: time.Now().UTC(),
		Cutoff:     cutoff.UTC(),
		Operations: operations,
	}

	data, err := json.Marshal(bundle)
	if err != nil {
		return "", fmt.Errorf("marshal archive bundle: %w", err)
	}

	key := objectKey(bundle.ArchivedAt)
	if err := a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(data), int64(len(data))); err != nil {
		return "", fmt.Errorf("upload archive bundle: %w", err)
	}
	return key, nil
}

// Configured reports true; an S3Archiver always has a target.
func (a *S3Archiver) Configured() bool {
	return true
}

// NoopArchiver is used when archive storage is not configured.
type NoopArchiver struct{}

// ArchiveOperations returns ErrNotConfigured; there is nowhere to write.
func (a *NoopArchiver) ArchiveOperations(ctx context.Context, cutoff time.Time, operations []tethersync.Operation) (string, error) {
	return "", ErrNotConfigured
}

// Configured reports false for the noop archiver.
func (a *NoopArchiver) Configured() bool {
	return false
}

// NewArchiver creates the appropriate Archiver based on configuration.
// Returns NoopArchiver when bucket is empty, S3Archiver otherwise.
func NewArchiver(cfg config.ArchiveConfig) (Archiver, error) {
	if cfg.Bucket == "" {
		return &NoopArchiver{}, nil
	}

	useSSL := true
	if cfg.UseSSL != nil {
		useSSL = *cfg.UseSSL
	}
	endpoint := stripScheme(cfg.Endpoint, &useSSL)

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create S3 client: %w", err)
	}

	return &S3Archiver{
		client: &minioClientWrapper{client: client},
		bucket: cfg.Bucket,
	}, nil
}

// stripScheme removes an http/https scheme from the endpoint and adjusts
// ssl to match; minio.New expects a bare host.
func stripScheme(endpoint string, ssl *bool) string {
	switch {
	case strings.HasPrefix(endpoint, "https://"):
		*ssl = true
		return strings.TrimPrefix(endpoint, "https://")
	case strings.HasPrefix(endpoint, "http://"):
		*ssl = false
		return strings.TrimPrefix(endpoint, "http://")
	default:
		return endpoint
	}
}

// objectKey returns the object key for an archive bundle.
// Convention: operations/{YYYY/MM/DD}/{ulid}.json
func objectKey(archivedAt time.Time) string {
	return fmt.Sprintf("operations/%s/%s.json",
		archivedAt.Format("2006/01/02"),
		ulid.Make().String(),
	)
}
