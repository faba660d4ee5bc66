package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/jdwit/greyscale-pipe/internal/types"
	"io"
	"net/http"
	"strings"
)

var (
	ErrNotFound         = errors.New("object not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrTransientIO      = errors.New("transient i/o failure")
	ErrTooLarge         = errors.New("object too large")
)

type S3Api interface {
	GetObjectWithContext(ctx aws.Context, input *s3.GetObjectInput, opts ...request.Option) (*s3.GetObjectOutput, error)
	PutObjectWithContext(ctx aws.Context, input *s3.PutObjectInput, opts ...request.Option) (*s3.PutObjectOutput, error)
	ListObjectsV2WithContext(ctx aws.Context, input *s3.ListObjectsV2Input, opts ...request.Option) (*s3.ListObjectsV2Output, error)
}

// ObjectStore wraps a long-lived S3 client. It is created once per cold start
// and shared by every invocation.
type ObjectStore struct {
	client   S3Api
	maxBytes int64
}

func NewObjectStore(client S3Api, maxBytes int64) *ObjectStore {
	return &ObjectStore{client: client, maxBytes: maxBytes}
}

// Fetch downloads the object into memory.
func (s *ObjectStore) Fetch(ctx context.Context, bucket, key string) ([]byte, error) {
	obj, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get object s3://%s/%s: %w", bucket, key, classify(err))
	}
	defer obj.Body.Close()

	if size := aws.Int64Value(obj.ContentLength); size > s.maxBytes {
		return nil, fmt.Errorf("s3://%s/%s is %d bytes, limit is %d: %w", bucket, key, size, s.maxBytes, ErrTooLarge)
	}

	// ContentLength is not always set, so enforce the limit on the stream as well
	data, err := io.ReadAll(io.LimitReader(obj.Body, s.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read object s3://%s/%s: %w: %v", bucket, key, ErrTransientIO, err)
	}
	if int64(len(data)) > s.maxBytes {
		return nil, fmt.Errorf("s3://%s/%s exceeds %d bytes: %w", bucket, key, s.maxBytes, ErrTooLarge)
	}

	return data, nil
}

// Store uploads payload, replacing any existing object under the same key.
func (s *ObjectStore) Store(ctx context.Context, bucket, key string, payload []byte, contentType string) error {
	_, err := s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(payload),
		ContentLength: aws.Int64(int64(len(payload))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to put object s3://%s/%s: %w", bucket, key, classify(err))
	}
	return nil
}

// List returns every object under prefix, following continuation tokens.
func (s *ObjectStore) List(ctx context.Context, bucket, prefix string) ([]types.ObjectRef, error) {
	var refs []types.ObjectRef
	var continuationToken *string
	for {
		resp, err := s.client.ListObjectsV2WithContext(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: continuationToken,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", classify(err))
		}

		for _, item := range resp.Contents {
			// skip "directory" placeholders
			key := aws.StringValue(item.Key)
			if strings.HasSuffix(key, "/") && aws.Int64Value(item.Size) == 0 {
				continue
			}
			refs = append(refs, types.ObjectRef{
				Bucket: bucket,
				Key:    key,
			})
		}

		if resp.IsTruncated == nil || !*resp.IsTruncated {
			break
		}
		continuationToken = resp.NextContinuationToken
	}

	return refs, nil
}

// classify maps an SDK error onto one of the store error kinds while keeping
// the original error in the message.
func classify(err error) error {
	var kind error
	var reqErr awserr.RequestFailure
	var aerr awserr.Error

	switch {
	case errors.As(err, &reqErr) && reqErr.StatusCode() == http.StatusNotFound:
		kind = ErrNotFound
	case errors.As(err, &reqErr) && reqErr.StatusCode() == http.StatusForbidden:
		kind = ErrPermissionDenied
	case errors.As(err, &aerr):
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, s3.ErrCodeNoSuchBucket, "NotFound":
			kind = ErrNotFound
		case "AccessDenied", "Forbidden", "AllAccessDisabled", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			kind = ErrPermissionDenied
		default:
			kind = ErrTransientIO
		}
	default:
		kind = ErrTransientIO
	}

	return fmt.Errorf("%w: %v", kind, err)
}
