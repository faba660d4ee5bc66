package targets

import (
	"fmt"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/jdwit/greyscale-pipe/internal/config"
	"github.com/jdwit/greyscale-pipe/internal/types"
	"github.com/rs/zerolog"
)

const (
	TargetCloudWatch = "cloudwatch"
	TargetStdout     = "stdout"
)

// Target receives one outcome per processed descriptor and returns once the
// channel is closed and everything has been flushed.
type Target interface {
	SendOutcomes(outcomes <-chan types.Outcome)
}

// GetTargets builds the configured targets. No configured targets is valid;
// naming targets of which none can be initialized is not.
func GetTargets(cfg *config.Config, sess *session.Session, logger zerolog.Logger) ([]Target, error) {
	names := cfg.TargetList()
	if len(names) == 0 {
		return nil, nil
	}

	var targets []Target

	for _, t := range names {
		var target Target
		var err error

		switch t {
		case TargetCloudWatch:
			target, err = NewCloudWatchTarget(sess, cfg.CloudWatchLogGroup, cfg.CloudWatchLogStream, logger)
		case TargetStdout:
			target = NewStdoutTarget()
		default:
			logger.Warn().Str("target", t).Msg("unsupported target type")
			continue
		}

		// Skip any targets that fail to initialize due to missing config or other errors
		if err != nil {
			logger.Warn().Err(err).Str("target", t).Msg("could not initialize target")
			continue
		}

		targets = append(targets, target)
	}

	if len(targets) == 0 {
		return nil, fmt.Errorf("error: no valid targets initialized")
	}

	return targets, nil
}
