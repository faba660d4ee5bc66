package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/aws/aws-lambda-go/events"
	"github.com/jdwit/greyscale-pipe/internal/types"
	"os"
	"strings"
)

// HandleLambdaEvent is the Lambda entry point. The error is always nil;
// partial failure is reported through the summary's status code.
func (bp *BatchProcessor) HandleLambdaEvent(ctx context.Context, event events.SNSEvent) (types.Summary, error) {
	return bp.Process(ctx, event), nil
}

// HandleS3URL processes every object under an s3://bucket/prefix URL.
func (bp *BatchProcessor) HandleS3URL(ctx context.Context, url string) (types.Summary, error) {
	bucket, prefix, err := parseS3Url(url)
	if err != nil {
		return types.Summary{}, fmt.Errorf("failed to parse S3 URL: %w", err)
	}

	refs, err := bp.lister.List(ctx, bucket, prefix)
	if err != nil {
		return types.Summary{}, err
	}

	return bp.ProcessRefs(ctx, refs), nil
}

// HandleEventFile replays an SNS event saved as JSON.
func (bp *BatchProcessor) HandleEventFile(ctx context.Context, path string) (types.Summary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.Summary{}, fmt.Errorf("failed to read event file: %w", err)
	}

	var event events.SNSEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return types.Summary{}, fmt.Errorf("failed to parse event file %s: %w", path, err)
	}

	return bp.Process(ctx, event), nil
}

func parseS3Url(url string) (bucket string, prefix string, err error) {
	if !strings.HasPrefix(url, "s3://") {
		return "", "", fmt.Errorf("invalid S3 URL, missing 's3://' prefix")
	}
	trimmedS3URL := strings.TrimPrefix(url, "s3://")
	splitPos := strings.Index(trimmedS3URL, "/")
	if splitPos == -1 {
		return "", "", fmt.Errorf("invalid S3 URL, no '/' found after bucket name")
	}
	bucket = trimmedS3URL[:splitPos]
	if bucket == "" {
		return "", "", fmt.Errorf("invalid S3 URL, empty bucket name")
	}
	prefix = trimmedS3URL[splitPos+1:]
	return bucket, prefix, nil
}
