package types

import (
	"net/http"
	"time"
)

// Outcome is the result of processing a single descriptor, or of an outer
// record that could not be parsed (in which case Ref is empty).
type Outcome struct {
	Ref       ObjectRef
	Err       error
	Timestamp time.Time
}

func (o Outcome) Succeeded() bool {
	return o.Err == nil
}

// Summary is returned to the caller once per invocation.
type Summary struct {
	StatusCode int `json:"statusCode"`
	Processed  int `json:"processed"`
	Failed     int `json:"failed"`
}

// Add folds an outcome into the summary.
func (s Summary) Add(o Outcome) Summary {
	if o.Succeeded() {
		s.Processed++
	} else {
		s.Failed++
	}
	s.StatusCode = statusCode(s.Failed)
	return s
}

// NewSummary returns the summary of an invocation that has seen nothing yet.
func NewSummary() Summary {
	return Summary{StatusCode: http.StatusOK}
}

func statusCode(failed int) int {
	if failed == 0 {
		return http.StatusOK
	}
	// some items processed, some failed
	return http.StatusMultiStatus
}

// Fields flattens the outcome for the targets; this will be converted to JSON.
func (o Outcome) Fields() map[string]string {
	fields := map[string]string{
		"bucket": o.Ref.Bucket,
		"key":    o.Ref.Key,
		"status": "processed",
	}
	if o.Err != nil {
		fields["status"] = "failed"
		fields["error"] = o.Err.Error()
	}
	return fields
}
