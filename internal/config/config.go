package config

import (
	"fmt"
	"github.com/hashicorp/go-multierror"
	"github.com/kelseyhightower/envconfig"
	"strings"
)

const (
	ProcessorGreyscale = "greyscale"
	ProcessorNoop      = "noop"

	// FormatSource keeps the format the object was uploaded in.
	FormatSource = "source"
)

var outputFormats = []string{"jpeg", "png", "gif", "bmp", "tiff", FormatSource}

// Config holds all settings read from the environment.
type Config struct {
	// Endpoint overrides the AWS endpoint, used with localstack.
	Endpoint string `envconfig:"AWS_ENDPOINT"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// Processor selects the per-item step: greyscale or noop.
	Processor string `envconfig:"PROCESSOR" default:"greyscale"`

	// OutputBucket receives the converted images. Defaults to the source bucket.
	OutputBucket string `envconfig:"OUTPUT_BUCKET"`
	OutputPrefix string `envconfig:"OUTPUT_PREFIX" default:"greyscale/"`
	OutputFormat string `envconfig:"OUTPUT_FORMAT" default:"jpeg"`
	JPEGQuality  int    `envconfig:"JPEG_QUALITY" default:"90"`

	// MaxObjectBytes caps the size of a downloaded object.
	MaxObjectBytes int64 `envconfig:"MAX_OBJECT_BYTES" default:"33554432"`

	// MaxPixels caps the decoded size of an image (width * height).
	MaxPixels int64 `envconfig:"MAX_PIXELS" default:"16000000"`

	// Targets is a comma separated list of outcome targets (stdout, cloudwatch).
	// Empty means outcomes only appear in the logs.
	Targets string `envconfig:"TARGETS"`

	CloudWatchLogGroup  string `envconfig:"CLOUDWATCH_LOG_GROUP"`
	CloudWatchLogStream string `envconfig:"CLOUDWATCH_LOG_STREAM"`
}

// Load reads the configuration from the environment and validates it.
func Load() (*Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	c.OutputFormat = strings.ToLower(c.OutputFormat)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var err error

	switch c.Processor {
	case ProcessorGreyscale, ProcessorNoop:
	default:
		err = multierror.Append(err, fmt.Errorf("PROCESSOR must be one of %s, %s: got %q", ProcessorGreyscale, ProcessorNoop, c.Processor))
	}

	if !contains(outputFormats, c.OutputFormat) {
		err = multierror.Append(err, fmt.Errorf("OUTPUT_FORMAT must be one of %s: got %q", strings.Join(outputFormats, ", "), c.OutputFormat))
	}

	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		err = multierror.Append(err, fmt.Errorf("JPEG_QUALITY must be between 1 and 100: got %d", c.JPEGQuality))
	}

	if c.MaxObjectBytes <= 0 {
		err = multierror.Append(err, fmt.Errorf("MAX_OBJECT_BYTES must be positive: got %d", c.MaxObjectBytes))
	}

	if c.MaxPixels <= 0 {
		err = multierror.Append(err, fmt.Errorf("MAX_PIXELS must be positive: got %d", c.MaxPixels))
	}

	// Writing into the source bucket without a prefix would trigger the function on its own output.
	if c.OutputPrefix == "" && c.OutputBucket == "" && c.Processor == ProcessorGreyscale {
		err = multierror.Append(err, fmt.Errorf("OUTPUT_PREFIX or OUTPUT_BUCKET is required"))
	}

	return err
}

// TargetList returns the configured target names with whitespace and empty entries removed.
func (c *Config) TargetList() []string {
	var names []string
	for _, t := range strings.Split(c.Targets, ",") {
		if t = strings.TrimSpace(t); t != "" {
			names = append(names, t)
		}
	}
	return names
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
