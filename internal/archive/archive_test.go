package archive

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/hyperengineering/tether/internal/config"
	tethersync "github.com/hyperengineering/tether/internal/sync"
)

// --- NoopArchiver Tests ---

func TestNoopArchiver_RefusesWrites(t *testing.T) {
	a := &NoopArchiver{}
	key, err := a.ArchiveOperations(context.Background(), time.Now(), nil)
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("NoopArchiver.ArchiveOperations() error = %v, want ErrNotConfigured", err)
	}
	if key != "" {
		t.Errorf("key = %q, want empty", key)
	}
	if a.Configured() {
		t.Error("NoopArchiver should report not configured")
	}
}

// --- NewArchiver factory tests ---

func TestNewArchiver_EmptyBucket_ReturnsNoopArchiver(t *testing.T) {
	a, err := NewArchiver(config.ArchiveConfig{Bucket: ""})
	if err != nil {
		t.Fatalf("NewArchiver() error = %v", err)
	}

	if _, ok := a.(*NoopArchiver); !ok {
		t.Errorf("expected *NoopArchiver, got %T", a)
	}
}

func TestNewArchiver_WithBucket_ReturnsS3Archiver(t *testing.T) {
	cfg := config.ArchiveConfig{
		Bucket:    "audit-bucket",
		Endpoint:  "localhost:9000",
		Region:    "us-east-1",
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
	}

	a, err := NewArchiver(cfg)
	if err != nil {
		t.Fatalf("NewArchiver() error = %v", err)
	}

	s3a, ok := a.(*S3Archiver)
	if !ok {
		t.Fatalf("expected *S3Archiver, got %T", a)
	}
	if s3a.bucket != "audit-bucket" {
		t.Errorf("bucket = %q, want %q", s3a.bucket, "audit-bucket")
	}
	if !s3a.Configured() {
		t.Error("S3Archiver should report configured")
	}
}

func TestStripScheme(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
		wantHost string
		wantSSL  bool
	}{
		{"bare host", "s3.example.com", "s3.example.com", true},
		{"bare host:port", "minio:9000", "minio:9000", true},
		{"https URL", "https://s3.example.com", "s3.example.com", true},
		{"http URL", "http://minio:9000", "minio:9000", false},
		{"http with port", "http://localhost:9000", "localhost:9000", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ssl := true
			got := stripScheme(tt.endpoint, &ssl)
			if got != tt.wantHost {
				t.Errorf("stripScheme(%q) host = %q, want %q", tt.endpoint, got, tt.wantHost)
			}
			if ssl != tt.wantSSL {
				t.Errorf("stripScheme(%q) ssl = %v, want %v", tt.endpoint, ssl, tt.wantSSL)
			}
		})
	}
}

// --- S3Archiver with mock client tests ---

// mockS3Client implements s3Client for testing.
type mockS3Client struct {
	putCalled      bool
	putErr         error
	lastBucket     string
	lastObjectName string
	lastBody       []byte
	lastSize       int64
}

func (m *mockS3Client) PutObject(ctx context.Context, bucket, objectName string, reader io.Reader, size int64) error {
	m.putCalled = true
	m.lastBucket = bucket
	m.lastObjectName = objectName
	m.lastSize = size
	m.lastBody, _ = io.ReadAll(reader)
	return m.putErr
}

func TestS3Archiver_UploadsBundle(t *testing.T) {
	mock := &mockS3Client{}
	a := &S3Archiver{client: mock, bucket: "audit-bucket"}

	cutoff := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ops := []tethersync.Operation{
		{OperationID: "op-1", DeviceID: "device-1", Timestamp: cutoff.Add(-time.Hour), Status: tethersync.StatusCompleted, OperationType: tethersync.OperationSync},
		{OperationID: "op-2", DeviceID: "device-1", Timestamp: cutoff.Add(-2 * time.Hour), Status: tethersync.StatusFailed, OperationType: tethersync.OperationSync},
	}

	key, err := a.ArchiveOperations(context.Background(), cutoff, ops)
	if err != nil {
		t.Fatalf("ArchiveOperations() error = %v", err)
	}

	if !mock.putCalled {
		t.Fatal("expected PutObject to be called")
	}
	if mock.lastBucket != "audit-bucket" {
		t.Errorf("bucket = %q, want %q", mock.lastBucket, "audit-bucket")
	}
	if key != mock.lastObjectName {
		t.Errorf("returned key %q != uploaded key %q", key, mock.lastObjectName)
	}
	if !strings.HasPrefix(key, "operations/") || !strings.HasSuffix(key, ".json") {
		t.Errorf("key = %q, want operations/.../*.json", key)
	}
	if mock.lastSize != int64(len(mock.lastBody)) {
		t.Errorf("size = %d, want %d", mock.lastSize, len(mock.lastBody))
	}

	var bundle Bundle
	if err := json.Unmarshal(mock.lastBody, &bundle); err != nil {
		t.Fatalf("bundle is not valid JSON: %v", err)
	}
	if !bundle.Cutoff.Equal(cutoff) {
		t.Errorf("bundle cutoff = %v, want %v", bundle.Cutoff, cutoff)
	}
	if len(bundle.Operations) != 2 {
		t.Fatalf("len(operations) = %d, want 2", len(bundle.Operations))
	}
	if bundle.Operations[0].OperationID != "op-1" {
		t.Errorf("operations[0] = %q, want op-1", bundle.Operations[0].OperationID)
	}
}

func TestS3Archiver_UploadError(t *testing.T) {
	mock := &mockS3Client{putErr: errors.New("network timeout")}
	a := &S3Archiver{client: mock, bucket: "audit-bucket"}

	_, err := a.ArchiveOperations(context.Background(), time.Now(), nil)
	if err == nil {
		t.Fatal("ArchiveOperations() expected error, got nil")
	}
	if !errors.Is(err, mock.putErr) {
		t.Errorf("expected wrapped upload error, got %v", err)
	}
}

func TestObjectKey_DatePrefixed(t *testing.T) {
	at := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	key := objectKey(at)
	if !strings.HasPrefix(key, "operations/2026/08/29/") {
		t.Errorf("key = %q, want operations/2026/08/29/ prefix", key)
	}
	if !strings.HasSuffix(key, ".json") {
		t.Errorf("key = %q, want .json suffix", key)
	}
}
