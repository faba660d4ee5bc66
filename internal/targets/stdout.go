package targets

import (
	"encoding/json"
	"fmt"
	"github.com/jdwit/greyscale-pipe/internal/types"
	"io"
	"os"
	"time"
)

// StdoutTarget prints one JSON object per outcome. In Lambda mode stdout is
// shared with the function logs, so it is mostly useful in cli mode.
type StdoutTarget struct {
	out io.Writer
}

func (c *StdoutTarget) SendOutcomes(outcomes <-chan types.Outcome) {
	for outcome := range outcomes {
		fields := outcome.Fields()
		fields["type"] = "outcome"
		fields["time"] = outcome.Timestamp.Format(time.RFC3339)
		jsonData, err := json.Marshal(fields)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error marshaling outcome to JSON: %v\n", err)
			continue
		}
		fmt.Fprintf(c.out, "%s\n", jsonData)
	}
}

func NewStdoutTarget() *StdoutTarget {
	return &StdoutTarget{out: os.Stdout}
}
