//go:build integration

package s3_test

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/modelcached/modelcached/pkg/model"
	s3store "github.com/modelcached/modelcached/pkg/store/s3"
)

// localstackHelper manages the Localstack container for S3 integration tests.
type localstackHelper struct {
	container testcontainers.Container
	endpoint  string
	client    *s3.Client
}

// newLocalstackHelper starts a Localstack container or connects to an existing one.
func newLocalstackHelper(t *testing.T) *localstackHelper {
	t.Helper()
	ctx := context.Background()

	// Check if external Localstack is configured via environment
	if endpoint := os.Getenv("LOCALSTACK_ENDPOINT"); endpoint != "" {
		helper := &localstackHelper{endpoint: endpoint}
		helper.createClient(t)
		return helper
	}

	// Start Localstack container using testcontainers
	req := testcontainers.ContainerRequest{
		Image:        "localstack/localstack:3.0",
		ExposedPorts: []string{"4566/tcp"},
		Env: map[string]string{
			"SERVICES":              "s3",
			"DEFAULT_REGION":        "us-east-1",
			"EAGER_SERVICE_LOADING": "1",
		},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("4566/tcp"),
			wait.ForHTTP("/_localstack/health").
				WithPort("4566/tcp").
				WithStartupTimeout(60*time.Second),
		),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("failed to start localstack container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "4566")
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get container port: %v", err)
	}

	helper := &localstackHelper{
		container: container,
		endpoint:  fmt.Sprintf("http://%s:%s", host, port.Port()),
	}
	helper.createClient(t)

	return helper
}

// createClient creates an S3 client configured for Localstack.
func (lh *localstackHelper) createClient(t *testing.T) {
	t.Helper()
	ctx := context.Background()

	cfg, err := awsConfig.LoadDefaultConfig(ctx,
		awsConfig.WithRegion("us-east-1"),
		awsConfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			"test", "test", "",
		)),
	)
	if err != nil {
		t.Fatalf("Failed to load AWS config: %v", err)
	}

	lh.client = s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = &lh.endpoint
		o.UsePathStyle = true
	})
}

// createBucket creates a new S3 bucket.
func (lh *localstackHelper) createBucket(t *testing.T, bucketName string) {
	t.Helper()
	ctx := context.Background()

	_, err := lh.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(bucketName),
	})
	if err != nil {
		t.Fatalf("Failed to create test bucket: %v", err)
	}
}

// cleanupBucket removes a bucket and all its contents.
func (lh *localstackHelper) cleanupBucket(bucketName string) {
	ctx := context.Background()

	listResp, _ := lh.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucketName),
	})
	if listResp != nil {
		for _, obj := range listResp.Contents {
			_, _ = lh.client.DeleteObject(ctx, &s3.DeleteObjectInput{
				Bucket: aws.String(bucketName),
				Key:    obj.Key,
			})
		}
	}

	_, _ = lh.client.DeleteBucket(ctx, &s3.DeleteBucketInput{
		Bucket: aws.String(bucketName),
	})
}

// cleanup terminates the container if we started one.
func (lh *localstackHelper) cleanup() {
	if lh.container != nil {
		ctx := context.Background()
		_ = lh.container.Terminate(ctx)
	}
}

// TestS3ArtifactStore_Integration exercises the artifact store against a real
// S3-compatible service (Localstack via testcontainers).
func TestS3ArtifactStore_Integration(t *testing.T) {
	ctx := context.Background()

	helper := newLocalstackHelper(t)
	defer helper.cleanup()

	bucketName := "modelcached-test-bucket"
	helper.createBucket(t, bucketName)
	defer helper.cleanupBucket(bucketName)

	st := s3store.New(helper.client, s3store.Config{
		Bucket:    bucketName,
		KeyPrefix: "models/",
	})
	defer func() { _ = st.Close() }()

	id := model.ID("resnet50-v1")
	data := bytes.Repeat([]byte("artifact payload "), 1024)

	t.Run("PutGetRoundtrip", func(t *testing.T) {
		require.NoError(t, st.Put(ctx, id, data))

		got, checksum, err := st.Get(ctx, id)
		require.NoError(t, err)
		assert.True(t, bytes.Equal(got, data), "fetched bytes differ from published bytes")
		assert.Equal(t, model.ComputeChecksum(data), checksum)
		assert.NoError(t, checksum.Verify(got))
	})

	t.Run("PutRefusesOverwrite", func(t *testing.T) {
		err := st.Put(ctx, id, []byte("different bytes"))
		assert.ErrorIs(t, err, model.ErrIdentityExists)
	})

	t.Run("Head", func(t *testing.T) {
		info, err := st.Head(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, id, info.ID)
		assert.Equal(t, int64(len(data)), info.Size)
		assert.Equal(t, model.ComputeChecksum(data), info.Checksum)
	})

	t.Run("GetMissing", func(t *testing.T) {
		_, _, err := st.Get(ctx, "no-such-artifact")
		assert.ErrorIs(t, err, model.ErrModelNotFound)
	})

	t.Run("HeadMissing", func(t *testing.T) {
		_, err := st.Head(ctx, "no-such-artifact")
		assert.ErrorIs(t, err, model.ErrModelNotFound)
	})

	t.Run("List", func(t *testing.T) {
		second := model.ID("bert-base-v3")
		require.NoError(t, st.Put(ctx, second, []byte("second artifact")))

		infos, err := st.List(ctx)
		require.NoError(t, err)
		found := map[model.ID]bool{}
		for _, info := range infos {
			found[info.ID] = true
		}
		assert.True(t, found[id], "list should contain %s", id)
		assert.True(t, found[second], "list should contain %s", second)
	})

	t.Run("KeyPrefixIsolation", func(t *testing.T) {
		other := s3store.New(helper.client, s3store.Config{
			Bucket:    bucketName,
			KeyPrefix: "other/",
		})
		defer func() { _ = other.Close() }()

		infos, err := other.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, infos)
	})
}
