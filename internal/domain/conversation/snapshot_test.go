package conversation

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func populatedBuffer(t *testing.T) *Buffer {
	t.Helper()

	clock := newFakeClock()
	b := NewBuffer("student-42", WithClock(clock.Now), WithMaxContext(30))
	b.ApplyAnalysis("enjoys travel writing", []string{"h0", "h7"})
	clock.Advance(10 * time.Minute)

	b.Append(UserMessage("check my essay please"))
	b.Append(AssistantToolCalls(nil, []ToolCall{{
		ID:        "call_1",
		Name:      "get_submission_by_homework_title_without_final_feedback",
		Arguments: `{"homework_title":"essay"}`,
	}}))
	b.StageSeenInfo(homework("h1"), submission("sub1", "h1"))
	b.StageSeenInfo(homework("h2"), submission("sub2", "h2"))
	b.Append(ToolResult("call_1", "get_submission_by_homework_title_without_final_feedback", `{"submission_id":"sub1"}`))
	b.Append(AssistantMessage("Nice work on the essay."))
	return b
}

func TestSnapshot_RoundTrip(t *testing.T) {
	b := populatedBuffer(t)
	want := b.Snapshot()

	raw, err := json.Marshal(want)
	require.NoError(t, err)

	var decoded Snapshot
	require.NoError(t, json.Unmarshal(raw, &decoded))

	restored, err := Restore(decoded)
	require.NoError(t, err)

	got := restored.Snapshot()
	assert.Equal(t, want, got)
	assert.Equal(t, b.RecentContext(), restored.RecentContext())
	assert.Equal(t, b.SeenWithinProfile(), restored.SeenWithinProfile())

	pair, ok := restored.GetPair("h2")
	require.True(t, ok)
	assert.Equal(t, "answer sub2", pair.SubmissionText)
}

func TestSnapshot_SeenWithinProfileOrderIndependent(t *testing.T) {
	s := populatedBuffer(t).Snapshot()
	s.SeenWithinProfile = []string{"h7", "h0"}

	restored, err := Restore(s)
	require.NoError(t, err)
	assert.Equal(t, []string{"h0", "h7"}, restored.SeenWithinProfile())
}

func TestRestore_RejectsBrokenSnapshot(t *testing.T) {
	_, err := Restore(Snapshot{})
	assert.ErrorIs(t, err, ErrInvalidSnapshot)

	s := populatedBuffer(t).Snapshot()
	s.RecentContext = append(s.RecentContext, Message{Role: "robot"})
	_, err = Restore(s)
	assert.ErrorIs(t, err, ErrInvalidSnapshot)
}
