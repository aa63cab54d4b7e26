// Package conversation contains the per-student conversational memory of the
// AI teacher: the message model, the bounded Buffer with its staging cache,
// and the consolidation policy that decides when to suggest a profile analysis.
package conversation

import (
	"fmt"
	"strings"
)

// ══════════════════════════════════════════════════════════════════════════════
// ROLES
// ══════════════════════════════════════════════════════════════════════════════

// Role tags the kind of a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// IsValid checks the role is one of the four known roles.
func (r Role) IsValid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		return true
	default:
		return false
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MESSAGES
// ══════════════════════════════════════════════════════════════════════════════

// ToolCall is a tool invocation issued by the model: call id, tool name and
// the raw JSON argument string exactly as the model produced it.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Message is one entry of the conversation.
//
// Content is nil for assistant messages that only carry tool calls.
// ToolCallID and ToolName are set only on tool-result messages.
type Message struct {
	Role       Role       `json:"role"`
	Content    *string    `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolName   string     `json:"name,omitempty"`
}

// Text returns the content or "" when it is absent.
func (m Message) Text() string {
	if m.Content == nil {
		return ""
	}
	return *m.Content
}

// HasContent reports non-nil content.
func (m Message) HasContent() bool {
	return m.Content != nil
}

// HasToolCalls reports whether the message carries a tool-call manifest.
func (m Message) HasToolCalls() bool {
	return len(m.ToolCalls) > 0
}

// IsDegenerate reports an assistant message with neither usable content nor tool calls.
func (m Message) IsDegenerate() bool {
	return m.Role == RoleAssistant && !m.HasToolCalls() && strings.TrimSpace(m.Text()) == ""
}

// Clone returns a deep copy.
func (m Message) Clone() Message {
	out := m
	if m.Content != nil {
		c := *m.Content
		out.Content = &c
	}
	if m.ToolCalls != nil {
		out.ToolCalls = append([]ToolCall(nil), m.ToolCalls...)
	}
	return out
}

// Validate checks the structural rules of a message.
func (m Message) Validate() error {
	if !m.Role.IsValid() {
		return fmt.Errorf("%w: %q", ErrUnknownRole, m.Role)
	}
	if m.Role == RoleTool && m.ToolCallID == "" {
		return fmt.Errorf("%w: tool result without tool_call_id", ErrInvalidMessage)
	}
	if m.Role != RoleAssistant && m.HasToolCalls() {
		return fmt.Errorf("%w: only assistant messages carry tool calls", ErrInvalidMessage)
	}
	return nil
}

func text(s string) *string { return &s }

// SystemMessage creates a system message.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: text(content)}
}

// UserMessage creates a user message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: text(content)}
}

// AssistantMessage creates a plain assistant reply.
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: text(content)}
}

// AssistantToolCalls creates an assistant message carrying a tool-call manifest.
// content may be nil.
func AssistantToolCalls(content *string, calls []ToolCall) Message {
	return Message{Role: RoleAssistant, Content: content, ToolCalls: calls}
}

// ToolResult creates the result message for one tool call.
func ToolResult(callID, toolName, payload string) Message {
	return Message{Role: RoleTool, Content: text(payload), ToolCallID: callID, ToolName: toolName}
}

// RecoveryMessage is what a degenerate assistant message is replaced with.
func RecoveryMessage() Message {
	return AssistantMessage(RecoveryPlaceholder)
}
