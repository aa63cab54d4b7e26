package conversation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPolicy_Evaluate(t *testing.T) {
	p := NewPolicy(DefaultPolicyConfig())

	tests := []struct {
		name    string
		stats   Stats
		suggest bool
		reasons []string
	}{
		{
			name:    "message count only",
			stats:   Stats{LastRole: RoleAssistant, LastHasContent: true, SinceLast: 3 * time.Hour, MessageCount: 51},
			suggest: true,
			reasons: []string{"we've had 51 messages"},
		},
		{
			name:    "too soon",
			stats:   Stats{LastRole: RoleAssistant, LastHasContent: true, SinceLast: time.Hour, MessageCount: 80},
			suggest: false,
		},
		{
			name:    "last message is a user message",
			stats:   Stats{LastRole: RoleUser, LastHasContent: true, SinceLast: 3 * time.Hour, MessageCount: 80},
			suggest: false,
		},
		{
			name:    "mid tool round",
			stats:   Stats{LastRole: RoleAssistant, LastHasContent: false, SinceLast: 3 * time.Hour, MessageCount: 80},
			suggest: false,
		},
		{
			name:    "below every threshold",
			stats:   Stats{LastRole: RoleAssistant, LastHasContent: true, SinceLast: 3 * time.Hour, MessageCount: 49, SeenInfoCount: 19, ToolCallMessages: 19},
			suggest: false,
		},
		{
			name:    "all thresholds in order",
			stats:   Stats{LastRole: RoleAssistant, LastHasContent: true, SinceLast: 2 * time.Hour, MessageCount: 50, SeenInfoCount: 20, ToolCallMessages: 21},
			suggest: true,
			reasons: []string{
				"we've had 50 messages",
				"you've completed 20 homework tasks",
				"we've had 21 interactions about your work-related data",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := p.Evaluate(tt.stats)
			assert.Equal(t, tt.suggest, d.Suggest)
			assert.Equal(t, tt.reasons, d.Reasons)
		})
	}
}

func TestDecision_Hint(t *testing.T) {
	assert.Empty(t, Decision{}.Hint())

	one := Decision{Suggest: true, Reasons: []string{"we've had 51 messages"}}
	assert.Contains(t, one.Hint(), "I notice that we've had 51 messages.")

	two := Decision{Suggest: true, Reasons: []string{"a", "b"}}
	assert.Contains(t, two.Hint(), "I notice that a, and b.")

	three := Decision{Suggest: true, Reasons: []string{"a", "b", "c"}}
	assert.Contains(t, three.Hint(), "I notice that a, b, and c.")
	assert.Equal(t, three.Hint(), three.Hint())
}
