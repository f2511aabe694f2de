package task

import (
	"errors"
	"fmt"

	"github.com/capitalize-ai/conversation-engine/internal/model"
)

// ErrStaleResult is returned when a task resolved after its cancellation
// token was raised. The result was dropped and nothing was written.
var ErrStaleResult = errors.New("stale task result discarded")

// ProviderError wraps a failed or timed-out AI/translation provider call.
type ProviderError struct {
	Kind model.TaskKind
	Key  string
	Err  error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s provider call for %s failed: %v", e.Kind, e.Key, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}
