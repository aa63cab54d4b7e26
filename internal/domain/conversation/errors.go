package conversation

import "errors"

var (
	// ErrInvalidConsolidation is returned when Consolidate receives arguments
	// that cannot form a valid post-analysis context. The buffer is untouched.
	ErrInvalidConsolidation = errors.New("invalid consolidation")

	// ErrInvalidMessage is returned for structurally broken messages.
	ErrInvalidMessage = errors.New("invalid message")

	// ErrUnknownRole is returned for a role outside system/user/assistant/tool.
	ErrUnknownRole = errors.New("unknown message role")

	// ErrInvalidSnapshot is returned by Restore for snapshots that fail validation.
	ErrInvalidSnapshot = errors.New("invalid buffer snapshot")
)
