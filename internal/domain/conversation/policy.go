package conversation

import (
	"fmt"
	"time"
)

// PolicyConfig holds the consolidation thresholds.
type PolicyConfig struct {
	// MinInterval is the minimum time between two suggestions.
	MinInterval time.Duration

	// MessageThreshold triggers on the number of messages in recent context.
	MessageThreshold int

	// SeenInfoThreshold triggers on the number of staged homework pairs.
	SeenInfoThreshold int

	// ToolCallThreshold triggers on the number of messages carrying tool calls.
	ToolCallThreshold int
}

// DefaultPolicyConfig returns the production thresholds.
func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		MinInterval:       2 * time.Hour,
		MessageThreshold:  50,
		SeenInfoThreshold: 20,
		ToolCallThreshold: 20,
	}
}

// Stats is the buffer state the policy looks at.
type Stats struct {
	LastRole         Role
	LastHasContent   bool
	SinceLast        time.Duration
	MessageCount     int
	SeenInfoCount    int
	ToolCallMessages int
}

// Decision is the outcome of a policy evaluation.
type Decision struct {
	Suggest bool
	Reasons []string
}

// Hint renders the decision as a deterministic nudge, "" when not suggesting.
func (d Decision) Hint() string {
	if !d.Suggest {
		return ""
	}
	return FormatSuggestion(d.Reasons)
}

// Policy decides when to suggest a consolidation pass.
type Policy struct {
	cfg PolicyConfig
}

// NewPolicy creates a Policy.
func NewPolicy(cfg PolicyConfig) Policy {
	return Policy{cfg: cfg}
}

// Config returns the thresholds in use.
func (p Policy) Config() PolicyConfig {
	return p.cfg
}

// Evaluate returns Suggest=true with ordered reasons iff the last message is a
// non-null assistant message, MinInterval has elapsed, and at least one
// threshold is reached. Evaluate is pure; the caller owns the debounce.
func (p Policy) Evaluate(s Stats) Decision {
	if s.LastRole != RoleAssistant || !s.LastHasContent {
		return Decision{}
	}
	if s.SinceLast < p.cfg.MinInterval {
		return Decision{}
	}

	var reasons []string
	if s.MessageCount >= p.cfg.MessageThreshold {
		reasons = append(reasons, fmt.Sprintf("we've had %d messages", s.MessageCount))
	}
	if s.SeenInfoCount >= p.cfg.SeenInfoThreshold {
		reasons = append(reasons, fmt.Sprintf("you've completed %d homework tasks", s.SeenInfoCount))
	}
	if s.ToolCallMessages >= p.cfg.ToolCallThreshold {
		reasons = append(reasons, fmt.Sprintf("we've had %d interactions about your work-related data", s.ToolCallMessages))
	}

	if len(reasons) == 0 {
		return Decision{}
	}
	return Decision{Suggest: true, Reasons: reasons}
}
