// Package s3 provides an S3-backed remote artifact store.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/modelcached/modelcached/internal/logger"
	"github.com/modelcached/modelcached/pkg/model"
	"github.com/modelcached/modelcached/pkg/store"
)

// checksumMetadataKey is the S3 object metadata key carrying the artifact's
// SHA-256 digest, written at publish time and read back on fetch.
const checksumMetadataKey = "sha256"

// Config holds configuration for the S3 artifact store.
type Config struct {
	// Bucket is the S3 bucket name.
	Bucket string

	// Region is the AWS region (optional, uses SDK default if empty).
	Region string

	// Endpoint is the S3 endpoint URL (optional, for S3-compatible services).
	Endpoint string

	// AccessKeyID and SecretAccessKey provide static credentials. When both
	// are empty, the default AWS credential chain is used.
	AccessKeyID     string
	SecretAccessKey string

	// KeyPrefix is prepended to all artifact keys (e.g. "models/").
	// Should end with "/" if non-empty.
	KeyPrefix string

	// ForcePathStyle forces path-style addressing (required for
	// Localstack/MinIO).
	ForcePathStyle bool

	// MaxRetries is the maximum number of retry attempts for transient
	// errors (default: 3).
	MaxRetries int

	// InitialBackoff is the backoff before the first retry (default: 100ms).
	InitialBackoff time.Duration

	// MaxBackoff caps the exponential backoff (default: 2s).
	MaxBackoff time.Duration

	// Metrics is an optional metrics collector.
	Metrics store.Metrics
}

// retryPolicy holds resolved retry settings.
type retryPolicy struct {
	maxRetries     int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// Store is an S3-backed implementation of store.Store.
//
// Fetches of transient failures are retried with exponential backoff up to
// MaxRetries; a missing key is surfaced as model.ErrModelNotFound without
// retry. Publishing checks for an existing key first and refuses to
// overwrite (model.ErrIdentityExists).
type Store struct {
	client    *awss3.Client
	bucket    string
	keyPrefix string
	retry     retryPolicy
	metrics   store.Metrics

	mu     sync.RWMutex
	closed bool
}

// New creates an S3 artifact store with an existing client.
func New(client *awss3.Client, cfg Config) *Store {
	retry := retryPolicy{
		maxRetries:     cfg.MaxRetries,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
	}
	if retry.maxRetries == 0 {
		retry.maxRetries = 3
	}
	if retry.initialBackoff == 0 {
		retry.initialBackoff = 100 * time.Millisecond
	}
	if retry.maxBackoff == 0 {
		retry.maxBackoff = 2 * time.Second
	}

	return &Store{
		client:    client,
		bucket:    cfg.Bucket,
		keyPrefix: cfg.KeyPrefix,
		retry:     retry,
		metrics:   cfg.Metrics,
	}
}

// NewFromConfig creates an S3 artifact store by building an S3 client from
// config. This is the preferred constructor when no client exists yet.
func NewFromConfig(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" || cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*awss3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *awss3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	if cfg.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *awss3.Options) {
			o.UsePathStyle = true
		})
	}

	client := awss3.NewFromConfig(awsCfg, s3Opts...)

	// Verify bucket access up front so misconfiguration fails at startup,
	// not on the first cache miss.
	st := New(client, cfg)
	if _, err := client.HeadBucket(ctx, &awss3.HeadBucketInput{Bucket: aws.String(cfg.Bucket)}); err != nil {
		return nil, fmt.Errorf("failed to access bucket %q: %w", cfg.Bucket, err)
	}

	return st, nil
}

// objectKey returns the full S3 key for an artifact identity.
func (s *Store) objectKey(id model.ID) string {
	return s.keyPrefix + string(id)
}

// Get fetches artifact bytes and the checksum recorded at publish time.
func (s *Store) Get(ctx context.Context, id model.ID) (data []byte, sum model.Checksum, err error) {
	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.ObserveOperation("Get", float64(time.Since(start).Milliseconds()), err)
			if err == nil {
				s.metrics.ObserveBytes("Get", len(data))
			}
		}
	}()

	if err = s.checkOpen(); err != nil {
		return nil, "", err
	}

	key := s.objectKey(id)
	var lastErr error

	for attempt := 0; attempt <= s.retry.maxRetries; attempt++ {
		if attempt > 0 {
			if err := s.backoff(ctx, attempt); err != nil {
				return nil, "", err
			}
			logger.Debug("retrying artifact fetch", "model", id, "attempt", attempt)
		}

		resp, err := s.client.GetObject(ctx, &awss3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			if isNotFoundError(err) {
				return nil, "", model.ErrModelNotFound
			}
			if ctx.Err() != nil {
				return nil, "", ctx.Err()
			}
			lastErr = err
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}

		return body, checksumFromMetadata(resp.Metadata), nil
	}

	return nil, "", fmt.Errorf("%w: s3 get %q after %d attempts: %v",
		model.ErrTransientStore, key, s.retry.maxRetries+1, lastErr)
}

// Put publishes a new artifact. Identities are immutable: if the key already
// exists the publish is rejected.
func (s *Store) Put(ctx context.Context, id model.ID, data []byte) (err error) {
	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.ObserveOperation("Put", float64(time.Since(start).Milliseconds()), err)
			if err == nil {
				s.metrics.ObserveBytes("Put", len(data))
			}
		}
	}()

	if err = s.checkOpen(); err != nil {
		return err
	}

	if _, err := s.Head(ctx, id); err == nil {
		return model.ErrIdentityExists
	} else if !errors.Is(err, model.ErrModelNotFound) {
		return err
	}

	sum := model.ComputeChecksum(data)
	_, err = s.client.PutObject(ctx, &awss3.PutObjectInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(s.objectKey(id)),
		Body:     bytes.NewReader(data),
		Metadata: map[string]string{checksumMetadataKey: string(sum)},
	})
	if err != nil {
		return fmt.Errorf("s3 put object: %w", err)
	}

	return nil
}

// Head returns artifact metadata without fetching the bytes.
func (s *Store) Head(ctx context.Context, id model.ID) (info store.ArtifactInfo, err error) {
	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.ObserveOperation("Head", float64(time.Since(start).Milliseconds()), err)
		}
	}()

	if err = s.checkOpen(); err != nil {
		return store.ArtifactInfo{}, err
	}

	resp, err := s.client.HeadObject(ctx, &awss3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(id)),
	})
	if err != nil {
		if isNotFoundError(err) {
			return store.ArtifactInfo{}, model.ErrModelNotFound
		}
		return store.ArtifactInfo{}, fmt.Errorf("%w: s3 head object: %v", model.ErrTransientStore, err)
	}

	info = store.ArtifactInfo{ID: id, Checksum: checksumFromMetadata(resp.Metadata)}
	if resp.ContentLength != nil {
		info.Size = *resp.ContentLength
	}
	return info, nil
}

// List returns all published artifacts under the configured key prefix.
func (s *Store) List(ctx context.Context) (infos []store.ArtifactInfo, err error) {
	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.ObserveOperation("List", float64(time.Since(start).Milliseconds()), err)
		}
	}()

	if err = s.checkOpen(); err != nil {
		return nil, err
	}

	paginator := awss3.NewListObjectsV2Paginator(s.client, &awss3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.keyPrefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: s3 list objects: %v", model.ErrTransientStore, err)
		}
		for _, obj := range page.Contents {
			if obj.Key == nil {
				continue
			}
			id := model.ID(strings.TrimPrefix(*obj.Key, s.keyPrefix))
			info := store.ArtifactInfo{ID: id}
			if obj.Size != nil {
				info.Size = *obj.Size
			}
			infos = append(infos, info)
		}
	}

	return infos, nil
}

// Close marks the store closed. The underlying S3 client holds no
// connections that need explicit teardown.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Store) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return model.ErrClosed
	}
	return nil
}

// backoff sleeps for the exponential backoff of the given attempt, capped at
// maxBackoff, or returns early if the context is cancelled.
func (s *Store) backoff(ctx context.Context, attempt int) error {
	d := s.retry.initialBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= s.retry.maxBackoff {
			d = s.retry.maxBackoff
			break
		}
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// checksumFromMetadata extracts the published checksum, tolerating both
// lowercase and SDK-canonicalized metadata keys.
func checksumFromMetadata(md map[string]string) model.Checksum {
	for k, v := range md {
		if strings.EqualFold(k, checksumMetadataKey) {
			return model.Checksum(strings.ToLower(v))
		}
	}
	return ""
}

func isNotFoundError(err error) bool {
	if err == nil {
		return false
	}

	errStr := err.Error()
	return strings.Contains(errStr, "NoSuchKey") ||
		strings.Contains(errStr, "NotFound") ||
		strings.Contains(errStr, "404")
}

// Ensure Store implements store.Store.
var _ store.Store = (*Store)(nil)
