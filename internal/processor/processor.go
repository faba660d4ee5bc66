package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/google/uuid"
	"github.com/jdwit/greyscale-pipe/internal/targets"
	"github.com/jdwit/greyscale-pipe/internal/types"
	"github.com/rs/zerolog"
	"net/url"
	"sync"
	"time"
)

// unknownKey is logged when the object key could not be extracted.
const unknownKey = "unknown"

// outcomeBuffer is the per-target channel buffer
const outcomeBuffer = 64

var (
	errMissingIdentifier = errors.New("missing bucket name or object key")
	errNotAnObject       = errors.New("message is not a JSON object")
)

// ItemProcessor is the step run for every object named in a batch.
type ItemProcessor interface {
	Process(ctx context.Context, ref types.ObjectRef) error
}

// ObjectLister lists objects under a prefix; used in cli mode.
type ObjectLister interface {
	List(ctx context.Context, bucket, prefix string) ([]types.ObjectRef, error)
}

// BatchProcessor unwraps SNS batches carrying S3 notifications and runs the
// step for every object, one after the other. It keeps no state between
// invocations.
type BatchProcessor struct {
	step    ItemProcessor
	lister  ObjectLister
	targets []targets.Target
	logger  zerolog.Logger
	now     func() time.Time
}

func NewBatchProcessor(step ItemProcessor, lister ObjectLister, t []targets.Target, logger zerolog.Logger) *BatchProcessor {
	return &BatchProcessor{
		step:    step,
		lister:  lister,
		targets: t,
		logger:  logger,
		now:     time.Now,
	}
}

// Process runs the whole batch and never fails: bad records and failing
// objects are counted in the summary and logged.
func (bp *BatchProcessor) Process(ctx context.Context, event events.SNSEvent) types.Summary {
	logger := bp.invocationLogger(ctx)
	logger.Info().Int("records", len(event.Records)).Msgf("%d records received", len(event.Records))

	return bp.run(logger, func(emit func(types.Outcome)) {
		for _, record := range event.Records {
			descriptors, err := parseMessage(record)
			if err != nil {
				logger.Error().Err(err).
					Str("message_id", record.SNS.MessageID).
					Str("topic_arn", record.SNS.TopicArn).
					Msg("failed to process SNS record")
				emit(types.Outcome{Err: err})
				continue
			}

			for _, raw := range descriptors {
				emit(bp.processRecord(ctx, logger, raw))
			}
		}
	})
}

// ProcessRefs runs the step for objects that are already known, bypassing
// the notification envelopes.
func (bp *BatchProcessor) ProcessRefs(ctx context.Context, refs []types.ObjectRef) types.Summary {
	logger := bp.invocationLogger(ctx)
	logger.Info().Int("objects", len(refs)).Msgf("%d objects received", len(refs))

	return bp.run(logger, func(emit func(types.Outcome)) {
		for _, ref := range refs {
			emit(bp.processRef(ctx, logger, ref))
		}
	})
}

// run folds the outcomes produced by walk into a summary and publishes each
// one to the targets.
func (bp *BatchProcessor) run(logger zerolog.Logger, walk func(emit func(types.Outcome))) types.Summary {
	publish, wait := bp.startTargets()
	summary := types.NewSummary()

	walk(func(o types.Outcome) {
		o.Timestamp = bp.now()
		summary = summary.Add(o)
		publish(o)
	})
	wait()

	logger.Info().
		Int("status_code", summary.StatusCode).
		Int("processed", summary.Processed).
		Int("failed", summary.Failed).
		Msgf("processing complete: %d succeeded, %d failed", summary.Processed, summary.Failed)

	return summary
}

func (bp *BatchProcessor) processRecord(ctx context.Context, logger zerolog.Logger, raw json.RawMessage) types.Outcome {
	var record events.S3EventRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		err = fmt.Errorf("failed to parse S3 event record: %w", err)
		logger.Error().Err(err).Str("key", unknownKey).Msgf("failed to process %s", unknownKey)
		return types.Outcome{Err: err}
	}

	ref, err := extractRef(record)
	if err != nil {
		key := record.S3.Object.Key
		if key == "" {
			key = unknownKey
		}
		logger.Error().Err(err).Str("bucket", record.S3.Bucket.Name).Str("key", key).Msgf("failed to process %s", key)
		return types.Outcome{Ref: ref, Err: err}
	}
	return bp.processRef(ctx, logger, ref)
}

func (bp *BatchProcessor) processRef(ctx context.Context, logger zerolog.Logger, ref types.ObjectRef) types.Outcome {
	logger.Info().Str("bucket", ref.Bucket).Str("key", ref.Key).Msgf("processing %s", ref)

	err := ctx.Err()
	if err == nil {
		err = bp.invoke(ctx, ref)
	}
	if err != nil {
		logger.Error().Err(err).Str("bucket", ref.Bucket).Str("key", ref.Key).Msgf("failed to process %s", ref.Key)
	}

	return types.Outcome{Ref: ref, Err: err}
}

// invoke runs the step and turns a panic into an error.
func (bp *BatchProcessor) invoke(ctx context.Context, ref types.ObjectRef) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while processing %s: %v", ref, r)
		}
	}()
	return bp.step.Process(ctx, ref)
}

// startTargets gives every target its own channel so each one sees every outcome.
func (bp *BatchProcessor) startTargets() (publish func(types.Outcome), wait func()) {
	var wg sync.WaitGroup
	channels := make([]chan types.Outcome, 0, len(bp.targets))

	for _, target := range bp.targets {
		ch := make(chan types.Outcome, outcomeBuffer)
		channels = append(channels, ch)
		wg.Add(1)
		go func(t targets.Target) {
			defer wg.Done()
			t.SendOutcomes(ch)
		}(target)
	}

	publish = func(o types.Outcome) {
		for _, ch := range channels {
			ch <- o
		}
	}
	wait = func() {
		for _, ch := range channels {
			close(ch)
		}
		wg.Wait()
	}
	return publish, wait
}

func (bp *BatchProcessor) invocationLogger(ctx context.Context) zerolog.Logger {
	id := uuid.NewString()
	if lc, ok := lambdacontext.FromContext(ctx); ok && lc.AwsRequestID != "" {
		id = lc.AwsRequestID
	}
	return bp.logger.With().Str("invocation", id).Logger()
}

// parseMessage returns the raw S3 event records of an SNS message. Records
// are decoded one by one later so a malformed record only fails itself.
func parseMessage(record events.SNSEventRecord) ([]json.RawMessage, error) {
	message := bytes.TrimSpace([]byte(record.SNS.Message))
	if len(message) == 0 || message[0] != '{' {
		return nil, fmt.Errorf("failed to parse SNS message: %w", errNotAnObject)
	}

	var envelope struct {
		Records []json.RawMessage `json:"Records"`
	}
	if err := json.Unmarshal(message, &envelope); err != nil {
		return nil, fmt.Errorf("failed to parse SNS message: %w", err)
	}
	return envelope.Records, nil
}

// extractRef returns the object named by an S3 event record. Keys in S3
// notifications are URL encoded, with spaces as '+'.
func extractRef(record events.S3EventRecord) (types.ObjectRef, error) {
	bucket := record.S3.Bucket.Name
	rawKey := record.S3.Object.Key
	if bucket == "" || rawKey == "" {
		return types.ObjectRef{Bucket: bucket}, errMissingIdentifier
	}

	key, err := url.QueryUnescape(rawKey)
	if err != nil {
		return types.ObjectRef{Bucket: bucket, Key: rawKey}, fmt.Errorf("invalid object key %q: %w", rawKey, err)
	}

	return types.ObjectRef{Bucket: bucket, Key: key}, nil
}
