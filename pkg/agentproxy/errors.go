package agentproxy

import (
	"errors"
	"fmt"

	"github.com/Intent-Gate/Intentgate/internal/domain/boundary"
)

// ErrBlocked matches any BlockedError via errors.Is().
var ErrBlocked = errors.New("tool call blocked")

// BlockedError is returned in hard mode when a tool call fails
// enforcement. It halts the stream before the graph's next step.
type BlockedError struct {
	// ToolName is the blocked tool.
	ToolName string
	// RequestID is the intent event id the verdict is keyed to.
	RequestID string
	// Reason is the verdict's reason code.
	Reason string
	// Result is the full comparison result.
	Result *boundary.ComparisonResult
}

// Error returns a human-readable description of the block.
func (e *BlockedError) Error() string {
	return fmt.Sprintf("tool call %q blocked: %s", e.ToolName, e.Reason)
}

// Is reports whether this error matches the target error.
// It supports errors.Is(err, ErrBlocked).
func (e *BlockedError) Is(target error) bool {
	return target == ErrBlocked
}
