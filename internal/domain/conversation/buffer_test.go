package conversation

import (
	"math/rand"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/langflow/ai-teacher/internal/domain/tutoring"
)

type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func homework(id string) tutoring.Homework {
	return tutoring.Homework{ID: id, Title: "Essay " + id, Description: "Write about " + id}
}

func submission(id, hwID string) tutoring.Submission {
	return tutoring.Submission{ID: id, HomeworkID: hwID, Text: "answer " + id}
}

func TestBuffer_Append_101AlternatingMessages(t *testing.T) {
	b := NewBuffer("s1")

	for i := 0; i < 101; i++ {
		if i%2 == 0 {
			b.Append(UserMessage("q" + strconv.Itoa(i)))
		} else {
			b.Append(AssistantMessage("a" + strconv.Itoa(i)))
		}
	}

	recent := b.RecentContext()
	assert.LessOrEqual(t, len(recent), DefaultMaxContextMessages)
	assert.Equal(t, RoleUser, recent[0].Role)
	assert.Equal(t, "q100", recent[len(recent)-1].Text())
}

func TestBuffer_Append_TruncationNeverSplitsTurn(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for run := 0; run < 50; run++ {
		limit := 5 + rng.Intn(20)
		b := NewBuffer("s1", WithMaxContext(limit))

		for turn := 0; turn < 40; turn++ {
			b.Append(UserMessage("hi"))
			if rng.Intn(2) == 0 {
				calls := []ToolCall{{ID: "c" + strconv.Itoa(turn), Name: "get_homework_by_title", Arguments: "{}"}}
				b.Append(AssistantToolCalls(nil, calls))
				b.Append(ToolResult(calls[0].ID, calls[0].Name, `{"homework_task_title":null}`))
			}
			b.Append(AssistantMessage("reply"))

			recent := b.RecentContext()
			require.Equal(t, RoleUser, recent[0].Role, "run %d turn %d", run, turn)
			require.LessOrEqual(t, len(recent), limit)
		}
	}
}

func TestBuffer_Append_KeepsOversizedTurnIntact(t *testing.T) {
	b := NewBuffer("s1", WithMaxContext(3))
	b.Append(UserMessage("first"))
	b.Append(AssistantMessage("ok"))
	b.Append(UserMessage("second"))
	b.Append(AssistantToolCalls(nil, []ToolCall{{ID: "1", Name: "x"}, {ID: "2", Name: "x"}}))
	b.Append(ToolResult("1", "x", "{}"))
	b.Append(ToolResult("2", "x", "{}"))

	recent := b.RecentContext()
	assert.Equal(t, "second", recent[0].Text())
	assert.Len(t, recent, 4)
}

func TestBuffer_Append_ReplacesDegenerateAssistantMessage(t *testing.T) {
	b := NewBuffer("s1")
	b.Append(UserMessage("hello"))

	empty := ""
	b.Append(Message{Role: RoleAssistant, Content: &empty})
	b.Append(Message{Role: RoleAssistant})

	recent := b.RecentContext()
	require.Len(t, recent, 3)
	assert.Equal(t, RecoveryPlaceholder, recent[1].Text())
	assert.Equal(t, RecoveryPlaceholder, recent[2].Text())
}

func TestBuffer_Append_ToolCallMessageWithoutContentIsKept(t *testing.T) {
	b := NewBuffer("s1")
	b.Append(AssistantToolCalls(nil, []ToolCall{{ID: "1", Name: "get_homework_by_title"}}))

	recent := b.RecentContext()
	assert.Nil(t, recent[0].Content)
	assert.True(t, recent[0].HasToolCalls())
}

func TestBuffer_Append_SuggestsAndDebounces(t *testing.T) {
	clock := newFakeClock()
	b := NewBuffer("s1",
		WithClock(clock.Now),
		WithPolicy(NewPolicy(PolicyConfig{MinInterval: 2 * time.Hour, MessageThreshold: 4, SeenInfoThreshold: 20, ToolCallThreshold: 20})),
	)
	clock.Advance(3 * time.Hour)

	b.Append(UserMessage("u1"))
	b.Append(AssistantMessage("a1"))
	b.Append(UserMessage("u2"))
	d := b.Append(AssistantMessage("a2"))

	require.True(t, d.Suggest)
	assert.Equal(t, []string{"we've had 4 messages"}, d.Reasons)
	last := b.RecentContext()[3]
	assert.True(t, strings.HasPrefix(last.Text(), "a2\n\n(I notice that we've had 4 messages."))
	assert.Equal(t, clock.Now(), b.LastConsolidation())

	b.Append(UserMessage("u3"))
	d = b.Append(AssistantMessage("a3"))
	assert.False(t, d.Suggest)
	assert.Equal(t, "a3", b.RecentContext()[5].Text())
}

func TestBuffer_StageSeenInfo_Idempotent(t *testing.T) {
	clock := newFakeClock()
	b := NewBuffer("s1", WithClock(clock.Now))

	first := b.StageSeenInfo(homework("h1"), submission("sub1", "h1"))
	clock.Advance(time.Minute)
	second := b.StageSeenInfo(homework("h1"), submission("sub1", "h1"))

	assert.Equal(t, first, second)
	assert.Equal(t, 1, b.CacheSize())
	assert.Equal(t, "Essay h1", first.HomeworkTitle)
	assert.Equal(t, "answer sub1", first.SubmissionText)
	assert.Equal(t, "sub1", first.SubmissionID)

	pair, ok := b.GetPair("h1")
	require.True(t, ok)
	assert.Equal(t, first, pair)
}

func TestBuffer_StageSeenInfo_EvictsIDsAlreadyInProfile(t *testing.T) {
	b := NewBuffer("s1")
	b.ApplyAnalysis("profile", []string{"h1"})

	pair := b.StageSeenInfo(homework("h1"), submission("sub1", "h1"))

	assert.Equal(t, "Essay h1", pair.HomeworkTitle)
	assert.Equal(t, 0, b.CacheSize())
	_, ok := b.GetPair("h1")
	assert.False(t, ok)
}

func TestBuffer_GetPair_Missing(t *testing.T) {
	b := NewBuffer("s1")
	pair, ok := b.GetPair("nope")
	assert.False(t, ok)
	assert.Equal(t, Pair{}, pair)
}

func TestBuffer_Consolidate(t *testing.T) {
	clock := newFakeClock()
	b := NewBuffer("s1", WithClock(clock.Now))
	b.Append(UserMessage("earlier"))
	b.Append(AssistantMessage("reply"))
	b.StageSeenInfo(homework("h1"), submission("sub1", "h1"))
	b.StageSeenInfo(homework("h2"), submission("sub2", "h2"))
	clock.Advance(time.Hour)

	req := UserMessage("analyze my grammar")
	resp := AssistantMessage("here is your analysis")
	require.NoError(t, b.Consolidate("new profile", req, resp))

	assert.Equal(t, []Message{req, resp}, b.RecentContext())
	assert.Equal(t, "new profile", b.Profile())
	assert.Equal(t, 0, b.CacheSize())
	assert.Equal(t, []string{"h1", "h2"}, b.SeenWithinProfile())
	assert.Equal(t, clock.Now(), b.LastConsolidation())
}

func TestBuffer_Consolidate_InvalidLeavesStateUntouched(t *testing.T) {
	b := NewBuffer("s1")
	b.Append(UserMessage("earlier"))
	b.StageSeenInfo(homework("h1"), submission("sub1", "h1"))
	before := b.Snapshot()

	err := b.Consolidate("p", AssistantMessage("not a user"), AssistantMessage("resp"))
	assert.ErrorIs(t, err, ErrInvalidConsolidation)

	err = b.Consolidate("p", UserMessage("req"), ToolResult("1", "x", "{}"))
	assert.ErrorIs(t, err, ErrInvalidConsolidation)

	assert.Equal(t, before, b.Snapshot())
}

func TestBuffer_SeenWithinProfile_Monotonic(t *testing.T) {
	b := NewBuffer("s1")
	prev := b.SeenWithinProfile()

	check := func() {
		cur := b.SeenWithinProfile()
		assert.Subset(t, cur, prev)
		prev = cur
	}

	b.StageSeenInfo(homework("h1"), submission("s1", "h1"))
	check()
	require.NoError(t, b.Consolidate("p1", UserMessage("go"), AssistantMessage("done")))
	check()
	b.ApplyAnalysis("p2", []string{"h9"})
	check()
	b.StageSeenInfo(homework("h1"), submission("s1", "h1"))
	check()
	require.NoError(t, b.Consolidate("p3", UserMessage("go"), AssistantMessage("done")))
	check()
	b.ApplyAnalysis("p4", nil)
	check()

	assert.Equal(t, []string{"h1", "h9"}, prev)
}

func TestBuffer_ModelView(t *testing.T) {
	b := NewBuffer("s1")
	b.Append(UserMessage("hi"))
	b.Append(AssistantToolCalls(nil, []ToolCall{{ID: "1", Name: "get_homework_by_title", Arguments: `{"homework_title":"essay"}`}}))
	b.Append(ToolResult("1", "get_homework_by_title", "{}"))
	b.Append(AssistantMessage("found it"))

	view := b.ModelView()
	require.Len(t, view, 5)
	assert.Equal(t, RoleSystem, view[0].Role)
	assert.Contains(t, view[0].Text(), "ask the user to provide the missing information")
	assert.Contains(t, view[0].Text(), "You haven't interacted with this student before")

	analysis := b.AnalysisView()
	require.Len(t, analysis, 3)
	assert.Equal(t, "hi", analysis[1].Text())
	assert.Equal(t, "found it", analysis[2].Text())

	b.ApplyAnalysis("likes poetry", nil)
	assert.Contains(t, b.ModelView()[0].Text(), "gathered from previous interactions: likes poetry")
}

func TestBuffer_ModelViewIsACopy(t *testing.T) {
	b := NewBuffer("s1")
	b.Append(UserMessage("hi"))

	view := b.ModelView()
	*view[1].Content = "changed"

	assert.Equal(t, "hi", b.RecentContext()[0].Text())
}
