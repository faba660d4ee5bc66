package processor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/jdwit/greyscale-pipe/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockLister struct {
	mock.Mock
}

func (m *mockLister) List(ctx context.Context, bucket, prefix string) ([]types.ObjectRef, error) {
	args := m.Called(ctx, bucket, prefix)
	refs, _ := args.Get(0).([]types.ObjectRef)
	return refs, args.Error(1)
}

func TestParseS3URL(t *testing.T) {
	t.Run("Valid S3 URL", func(t *testing.T) {
		bucket, key, err := parseS3Url("s3://mybucket/mykey")
		require.NoError(t, err)
		assert.Equal(t, "mybucket", bucket)
		assert.Equal(t, "mykey", key)
	})

	t.Run("Whole bucket", func(t *testing.T) {
		bucket, key, err := parseS3Url("s3://mybucket/")
		require.NoError(t, err)
		assert.Equal(t, "mybucket", bucket)
		assert.Equal(t, "", key)
	})

	t.Run("Missing s3 prefix", func(t *testing.T) {
		_, _, err := parseS3Url("mybucket/mykey")
		require.Error(t, err)
		assert.Equal(t, "invalid S3 URL, missing 's3://' prefix", err.Error())
	})

	t.Run("No slash after bucket", func(t *testing.T) {
		_, _, err := parseS3Url("s3://mybucket")
		require.Error(t, err)
		assert.Equal(t, "invalid S3 URL, no '/' found after bucket name", err.Error())
	})

	t.Run("Empty bucket", func(t *testing.T) {
		_, _, err := parseS3Url("s3:///mykey")
		require.Error(t, err)
		assert.Equal(t, "invalid S3 URL, empty bucket name", err.Error())
	})
}

func TestBatchProcessor_HandleS3URL(t *testing.T) {
	ctx := context.Background()

	t.Run("Processes every listed object", func(t *testing.T) {
		lister := &mockLister{}
		lister.On("List", ctx, "photos", "uploads/").Return([]types.ObjectRef{ref("uploads/a.png"), ref("uploads/b.png")}, nil)
		step := &recordingStep{failKeys: map[string]error{"uploads/b.png": errors.New("boom")}}
		bp, _ := newTestProcessor(step)
		bp.lister = lister

		summary, err := bp.HandleS3URL(ctx, "s3://photos/uploads/")
		require.NoError(t, err)
		assert.Equal(t, types.Summary{StatusCode: 207, Processed: 1, Failed: 1}, summary)
		assert.Equal(t, []types.ObjectRef{ref("uploads/a.png"), ref("uploads/b.png")}, step.calls)
		lister.AssertExpectations(t)
	})

	t.Run("Invalid URL", func(t *testing.T) {
		bp, _ := newTestProcessor(NoopStep{})

		_, err := bp.HandleS3URL(ctx, "https://photos/uploads/")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to parse S3 URL")
	})

	t.Run("Listing fails", func(t *testing.T) {
		lister := &mockLister{}
		lister.On("List", ctx, "photos", "").Return(nil, errors.New("access denied"))
		bp, _ := newTestProcessor(NoopStep{})
		bp.lister = lister

		_, err := bp.HandleS3URL(ctx, "s3://photos/")
		assert.EqualError(t, err, "access denied")
	})
}

func TestBatchProcessor_HandleEventFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("Replays event", func(t *testing.T) {
		path := filepath.Join(dir, "event.json")
		event := `{"Records":[{"EventSource":"aws:sns","Sns":{"MessageId":"m1","Message":` +
			strconv.Quote(s3Message(t, ref("cat.png"))) + `}}]}`
		require.NoError(t, os.WriteFile(path, []byte(event), 0600))

		step := &recordingStep{}
		bp, _ := newTestProcessor(step)

		summary, err := bp.HandleEventFile(context.Background(), path)
		require.NoError(t, err)
		assert.Equal(t, types.Summary{StatusCode: 200, Processed: 1}, summary)
		assert.Equal(t, []types.ObjectRef{ref("cat.png")}, step.calls)
	})

	t.Run("Missing file", func(t *testing.T) {
		bp, _ := newTestProcessor(NoopStep{})

		_, err := bp.HandleEventFile(context.Background(), filepath.Join(dir, "missing.json"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("Not an SNS event", func(t *testing.T) {
		path := filepath.Join(dir, "broken.json")
		require.NoError(t, os.WriteFile(path, []byte("[1, 2"), 0600))
		bp, _ := newTestProcessor(NoopStep{})

		_, err := bp.HandleEventFile(context.Background(), path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to parse event file")
	})
}
