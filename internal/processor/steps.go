package processor

import (
	"context"
	"errors"
	"fmt"
	"github.com/jdwit/greyscale-pipe/internal/config"
	"github.com/jdwit/greyscale-pipe/internal/imaging"
	"github.com/jdwit/greyscale-pipe/internal/types"
	"github.com/rs/zerolog"
	"path"
	"strings"
)

type ObjectStore interface {
	Fetch(ctx context.Context, bucket, key string) ([]byte, error)
	Store(ctx context.Context, bucket, key string, payload []byte, contentType string) error
}

// GreyscaleStep downloads an image, converts it to greyscale and uploads the
// result under the output prefix.
type GreyscaleStep struct {
	store        ObjectStore
	outputBucket string
	outputPrefix string
	outputFormat string
	quality      int
	maxPixels    int64
	logger       zerolog.Logger
}

var errWouldOverwrite = errors.New("destination is the source object")

func NewGreyscaleStep(store ObjectStore, cfg *config.Config, logger zerolog.Logger) *GreyscaleStep {
	return &GreyscaleStep{
		store:        store,
		outputBucket: cfg.OutputBucket,
		outputPrefix: cfg.OutputPrefix,
		outputFormat: cfg.OutputFormat,
		quality:      cfg.JPEGQuality,
		maxPixels:    cfg.MaxPixels,
		logger:       logger,
	}
}

func (g *GreyscaleStep) Process(ctx context.Context, ref types.ObjectRef) error {
	dstBucket := g.outputBucket
	if dstBucket == "" {
		dstBucket = ref.Bucket
	}

	// our own output landing in a watched bucket triggers us again
	if dstBucket == ref.Bucket && g.outputPrefix != "" && strings.HasPrefix(ref.Key, g.outputPrefix) {
		g.logger.Debug().Str("bucket", ref.Bucket).Str("key", ref.Key).Msg("skipping already converted object")
		return nil
	}

	data, err := g.store.Fetch(ctx, ref.Bucket, ref.Key)
	if err != nil {
		return err
	}

	img, format, err := imaging.Decode(data, g.maxPixels)
	if err != nil {
		return fmt.Errorf("%s: %w", ref, err)
	}

	outFormat := imaging.OutputFormat(g.outputFormat, format)
	dstKey := destinationKey(g.outputPrefix, ref.Key, outFormat)
	// overwriting the source would replace the original and trigger us again
	if dstBucket == ref.Bucket && dstKey == ref.Key {
		return fmt.Errorf("%s: %w", ref, errWouldOverwrite)
	}

	payload, err := imaging.Encode(imaging.Greyscale(img), outFormat, g.quality)
	if err != nil {
		return fmt.Errorf("%s: %w", ref, err)
	}

	if err := g.store.Store(ctx, dstBucket, dstKey, payload, imaging.ContentType(outFormat)); err != nil {
		return err
	}

	g.logger.Debug().
		Str("source", ref.String()).
		Str("destination", types.ObjectRef{Bucket: dstBucket, Key: dstKey}.String()).
		Str("format", outFormat).
		Int("bytes", len(payload)).
		Msg("stored greyscale image")

	return nil
}

// destinationKey places key under prefix and swaps the extension when the
// output format differs from the source's.
func destinationKey(prefix, key, format string) string {
	ext := path.Ext(key)
	if !imaging.MatchesExtension(format, ext) {
		key = strings.TrimSuffix(key, ext) + imaging.Extension(format)
	}
	return prefix + key
}

// NoopStep accepts every object without touching it.
type NoopStep struct{}

func (NoopStep) Process(ctx context.Context, ref types.ObjectRef) error {
	return nil
}
