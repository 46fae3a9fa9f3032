package core

import (
	"fmt"

	"github.com/google/uuid"
)

// NewRunID returns a random identifier for one invocation. It is stored
// with the run history and attached to every log entry of the run.
func NewRunID() string {
	return uuid.NewString()
}

// NewCorrelationID returns the identifier for one image of a run. It
// embeds the run ID prefix and the 1-based input index so that log lines
// can be grouped without a lookup.
func NewCorrelationID(runID string, index int) string {
	prefix := runID
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	return fmt.Sprintf("%s-%03d-%s", prefix, index, uuid.NewString()[:8])
}

// ParseRunID validates a run ID read back from history.
func ParseRunID(s string) (string, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("invalid run id %q: %w", s, err)
	}
	return id.String(), nil
}
