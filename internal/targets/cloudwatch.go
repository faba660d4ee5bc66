package targets

import (
	"encoding/json"
	"fmt"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/cloudwatchlogs"
	"github.com/jdwit/greyscale-pipe/internal/types"
	"github.com/rs/zerolog"
	"sort"
	"time"
)

const (
	// maxBatchSize The maximum batch size of a PutLogEvents request to CloudWatch is 1MB (1_048_576 bytes)
	maxBatchSize = 1_048_576
	// maxBatchCount The maximum number of events in a PutLogEvents request to CloudWatch is 10_000
	maxBatchCount = 10_000
	// flushInterval sends whatever is buffered even if no batch limit was reached
	flushInterval = 5 * time.Second
)

type CloudWatchLogsAPI interface {
	PutLogEvents(*cloudwatchlogs.PutLogEventsInput) (*cloudwatchlogs.PutLogEventsOutput, error)
	CreateLogGroup(*cloudwatchlogs.CreateLogGroupInput) (*cloudwatchlogs.CreateLogGroupOutput, error)
	CreateLogStream(*cloudwatchlogs.CreateLogStreamInput) (*cloudwatchlogs.CreateLogStreamOutput, error)
	DescribeLogGroups(*cloudwatchlogs.DescribeLogGroupsInput) (*cloudwatchlogs.DescribeLogGroupsOutput, error)
	DescribeLogStreams(*cloudwatchlogs.DescribeLogStreamsInput) (*cloudwatchlogs.DescribeLogStreamsOutput, error)
}

type LogConfig struct {
	LogGroupName  string
	LogStreamName string
}

// CloudWatchTarget writes every outcome as a JSON log event to a dedicated
// log group, separate from the function's own logs.
type CloudWatchTarget struct {
	cwClient  CloudWatchLogsAPI
	logConfig LogConfig
	logger    zerolog.Logger
}

func (c *CloudWatchTarget) SendOutcomes(outcomes <-chan types.Outcome) {
	var events []*cloudwatchlogs.InputLogEvent
	var currentBatchSize int

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case outcome, ok := <-outcomes:
			if !ok {
				// Channel closed, send remaining events
				if len(events) > 0 {
					c.sendBatch(events)
				}
				return
			}

			jsonData, err := json.Marshal(outcome.Fields())
			if err != nil {
				c.logger.Error().Err(err).Msg("error marshaling outcome to JSON")
				continue
			}
			event := &cloudwatchlogs.InputLogEvent{
				Message:   aws.String(string(jsonData)),
				Timestamp: aws.Int64(outcome.Timestamp.UnixMilli()),
			}

			// Request size to CloudWatch is calculated as the sum of all event messages in UTF-8, plus 26 bytes for each log event
			// https://docs.aws.amazon.com/AmazonCloudWatch/latest/logs/cloudwatch_limits_cwl.html
			eventSize := len(jsonData) + 26

			if len(events) > 0 && (currentBatchSize+eventSize > maxBatchSize || len(events) >= maxBatchCount) {
				c.sendBatch(events)
				events = nil
				currentBatchSize = 0
			}

			events = append(events, event)
			currentBatchSize += eventSize

		case <-ticker.C:
			if len(events) > 0 {
				c.sendBatch(events)
				events = nil
				currentBatchSize = 0
			}
		}
	}
}

func NewCloudWatchTarget(sess *session.Session, logGroupName, logStreamName string, logger zerolog.Logger) (Target, error) {
	if logGroupName == "" {
		return nil, fmt.Errorf("environment variable CLOUDWATCH_LOG_GROUP is required")
	}
	if logStreamName == "" {
		return nil, fmt.Errorf("environment variable CLOUDWATCH_LOG_STREAM is required")
	}

	target, err := newCloudWatchTarget(cloudwatchlogs.New(sess), LogConfig{
		LogGroupName:  logGroupName,
		LogStreamName: logStreamName,
	}, logger)
	if err != nil {
		return nil, err
	}
	return target, nil
}

func newCloudWatchTarget(client CloudWatchLogsAPI, logConfig LogConfig, logger zerolog.Logger) (*CloudWatchTarget, error) {
	if err := ensureLogGroupAndLogStreamExists(client, logConfig, logger); err != nil {
		return nil, fmt.Errorf("error creating log group and stream: %w", err)
	}
	return &CloudWatchTarget{cwClient: client, logConfig: logConfig, logger: logger}, nil
}

func ensureLogGroupAndLogStreamExists(client CloudWatchLogsAPI, logConfig LogConfig, logger zerolog.Logger) error {
	err := ensureLogGroupExists(client, logConfig.LogGroupName, logger)
	if err != nil {
		return err
	}
	return ensureLogStreamExists(client, logConfig.LogGroupName, logConfig.LogStreamName, logger)
}

func ensureLogGroupExists(client CloudWatchLogsAPI, name string, logger zerolog.Logger) error {
	resp, err := client.DescribeLogGroups(&cloudwatchlogs.DescribeLogGroupsInput{
		LogGroupNamePrefix: aws.String(name),
	})
	if err != nil {
		return err
	}
	for _, logGroup := range resp.LogGroups {
		if aws.StringValue(logGroup.LogGroupName) == name {
			return nil
		}
	}
	logger.Info().Str("log_group", name).Msg("creating log group")
	_, err = client.CreateLogGroup(&cloudwatchlogs.CreateLogGroupInput{
		LogGroupName: aws.String(name),
	})

	return err
}

func ensureLogStreamExists(client CloudWatchLogsAPI, logGroupName, logStreamName string, logger zerolog.Logger) error {
	resp, err := client.DescribeLogStreams(&cloudwatchlogs.DescribeLogStreamsInput{
		LogGroupName:        aws.String(logGroupName),
		LogStreamNamePrefix: aws.String(logStreamName),
	})
	if err != nil {
		return err
	}
	for _, logStream := range resp.LogStreams {
		if aws.StringValue(logStream.LogStreamName) == logStreamName {
			return nil
		}
	}
	logger.Info().Str("log_group", logGroupName).Str("log_stream", logStreamName).Msg("creating log stream")
	_, err = client.CreateLogStream(&cloudwatchlogs.CreateLogStreamInput{
		LogGroupName:  aws.String(logGroupName),
		LogStreamName: aws.String(logStreamName),
	})

	return err
}

func (c *CloudWatchTarget) sendBatch(events []*cloudwatchlogs.InputLogEvent) {
	// Log events in a single PutLogEvents request must be in chronological order
	sort.SliceStable(events, func(i, j int) bool {
		return aws.Int64Value(events[i].Timestamp) < aws.Int64Value(events[j].Timestamp)
	})
	_, err := c.cwClient.PutLogEvents(&cloudwatchlogs.PutLogEventsInput{
		LogEvents:     events,
		LogGroupName:  aws.String(c.logConfig.LogGroupName),
		LogStreamName: aws.String(c.logConfig.LogStreamName),
	})

	if err != nil {
		c.logger.Error().Err(err).Int("events", len(events)).Msg("error sending outcomes to CloudWatch")
	}
}
