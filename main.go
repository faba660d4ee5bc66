package main

import (
	"context"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/jdwit/greyscale-pipe/internal/config"
	"github.com/jdwit/greyscale-pipe/internal/logging"
	"github.com/jdwit/greyscale-pipe/internal/processor"
	"github.com/jdwit/greyscale-pipe/internal/store"
	"github.com/jdwit/greyscale-pipe/internal/targets"
	"github.com/jdwit/greyscale-pipe/internal/types"
	"github.com/rs/zerolog"
	"net/http"
	"os"
	"strings"
)

func createSession(endpoint string) (*session.Session, error) {
	if endpoint != "" {
		// localstack
		return session.NewSession(&aws.Config{
			Endpoint:         aws.String(endpoint),
			DisableSSL:       aws.Bool(true),
			S3ForcePathStyle: aws.Bool(true),
		})
	}

	return session.NewSession()
}

func newStep(cfg *config.Config, objects *store.ObjectStore, logger zerolog.Logger) processor.ItemProcessor {
	if cfg.Processor == config.ProcessorNoop {
		return processor.NoopStep{}
	}
	return processor.NewGreyscaleStep(objects, cfg, logger)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := logging.New(os.Stdout, "info")
		fallback.Fatal().Err(err).Msg("invalid configuration")
	}
	logger := logging.New(os.Stdout, cfg.LogLevel)

	// clients live for the whole execution environment and are shared by invocations
	sess, err := createSession(cfg.Endpoint)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create AWS session")
	}

	t, err := targets.GetTargets(cfg, sess, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize targets")
	}

	objects := store.NewObjectStore(s3.New(sess), cfg.MaxObjectBytes)
	bp := processor.NewBatchProcessor(newStep(cfg, objects, logger), objects, t, logger)

	if os.Getenv("AWS_LAMBDA_RUNTIME_API") != "" {
		logger.Info().Str("processor", cfg.Processor).Msg("running in AWS Lambda environment")
		lambda.Start(bp.HandleLambdaEvent)
		return
	}

	logger.Info().Str("processor", cfg.Processor).Msg("running in cli mode")
	if len(os.Args) < 2 {
		logger.Fatal().Msg("an s3 url or an SNS event file is required as an argument")
	}

	var summary types.Summary
	if arg := os.Args[1]; strings.HasPrefix(arg, "s3://") {
		summary, err = bp.HandleS3URL(context.Background(), arg)
	} else {
		summary, err = bp.HandleEventFile(context.Background(), arg)
	}
	if err != nil {
		logger.Fatal().Err(err).Msg("processing failed")
	}
	if summary.StatusCode != http.StatusOK {
		os.Exit(1)
	}
}
