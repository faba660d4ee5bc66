package types

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSummary_Add(t *testing.T) {
	tests := []struct {
		name     string
		outcomes []Outcome
		want     Summary
	}{
		{
			name: "No outcomes",
			want: Summary{StatusCode: 200},
		},
		{
			name:     "All succeeded",
			outcomes: []Outcome{{Ref: ObjectRef{Bucket: "b", Key: "a.jpg"}}, {Ref: ObjectRef{Bucket: "b", Key: "c.jpg"}}},
			want:     Summary{StatusCode: 200, Processed: 2},
		},
		{
			name:     "One failed",
			outcomes: []Outcome{{Ref: ObjectRef{Bucket: "b", Key: "a.jpg"}}, {Err: errors.New("boom")}},
			want:     Summary{StatusCode: 207, Processed: 1, Failed: 1},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			s := NewSummary()
			for _, o := range test.outcomes {
				s = s.Add(o)
			}
			assert.Equal(t, test.want, s)
		})
	}
}

func TestObjectRef_String(t *testing.T) {
	assert.Equal(t, "s3://photos/2024/cat.png", ObjectRef{Bucket: "photos", Key: "2024/cat.png"}.String())
}

func TestOutcome_Fields(t *testing.T) {
	ref := ObjectRef{Bucket: "photos", Key: "cat.png"}

	assert.Equal(t, map[string]string{
		"bucket": "photos",
		"key":    "cat.png",
		"status": "processed",
	}, Outcome{Ref: ref}.Fields())

	assert.Equal(t, map[string]string{
		"bucket": "photos",
		"key":    "cat.png",
		"status": "failed",
		"error":  "object not found",
	}, Outcome{Ref: ref, Err: errors.New("object not found")}.Fields())
}
