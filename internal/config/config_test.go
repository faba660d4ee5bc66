package config

import (
	"os"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"AWS_ENDPOINT", "LOG_LEVEL", "PROCESSOR", "OUTPUT_BUCKET", "OUTPUT_PREFIX", "OUTPUT_FORMAT",
		"JPEG_QUALITY", "MAX_OBJECT_BYTES", "MAX_PIXELS", "TARGETS", "CLOUDWATCH_LOG_GROUP", "CLOUDWATCH_LOG_STREAM",
	} {
		unsetenv(t, key)
	}

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "info", c.LogLevel)
	assert.Equal(t, ProcessorGreyscale, c.Processor)
	assert.Equal(t, "greyscale/", c.OutputPrefix)
	assert.Equal(t, "jpeg", c.OutputFormat)
	assert.Equal(t, 90, c.JPEGQuality)
	assert.Equal(t, int64(32<<20), c.MaxObjectBytes)
	assert.Equal(t, int64(16_000_000), c.MaxPixels)
	assert.Empty(t, c.TargetList())
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("PROCESSOR", "noop")
	t.Setenv("OUTPUT_BUCKET", "converted")
	t.Setenv("OUTPUT_FORMAT", "PNG")
	t.Setenv("TARGETS", "stdout, cloudwatch")

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ProcessorNoop, c.Processor)
	assert.Equal(t, "converted", c.OutputBucket)
	assert.Equal(t, "png", c.OutputFormat)
	assert.Equal(t, []string{"stdout", "cloudwatch"}, c.TargetList())
}

func TestLoad_InvalidNumber(t *testing.T) {
	t.Setenv("JPEG_QUALITY", "high")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading config")
}

func TestConfig_Validate(t *testing.T) {
	valid := Config{
		Processor:      ProcessorGreyscale,
		OutputPrefix:   "greyscale/",
		OutputFormat:   "jpeg",
		JPEGQuality:    90,
		MaxObjectBytes: 1024,
		MaxPixels:      1 << 20,
	}

	tests := []struct {
		name       string
		mutate     func(c *Config)
		expectErrs int
	}{
		{
			name:   "Valid",
			mutate: func(c *Config) {},
		},
		{
			name:       "Unknown processor",
			mutate:     func(c *Config) { c.Processor = "sepia" },
			expectErrs: 1,
		},
		{
			name: "Several problems reported together",
			mutate: func(c *Config) {
				c.OutputFormat = "webp"
				c.JPEGQuality = 0
				c.MaxObjectBytes = -1
				c.MaxPixels = 0
			},
			expectErrs: 4,
		},
		{
			name: "Same bucket without prefix",
			mutate: func(c *Config) {
				c.OutputPrefix = ""
			},
			expectErrs: 1,
		},
		{
			name: "Noop does not write",
			mutate: func(c *Config) {
				c.Processor = ProcessorNoop
				c.OutputPrefix = ""
			},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			c := valid
			test.mutate(&c)
			err := c.Validate()
			if test.expectErrs == 0 {
				assert.NoError(t, err)
				return
			}
			var merr *multierror.Error
			require.ErrorAs(t, err, &merr)
			assert.Len(t, merr.Errors, test.expectErrs)
		})
	}
}

// unsetenv removes key for the duration of the test; envconfig treats an empty value as set.
func unsetenv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	require.NoError(t, os.Unsetenv(key))
}
