package conversation

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/langflow/ai-teacher/internal/domain/tutoring"
)

// DefaultMaxContextMessages caps recent context.
const DefaultMaxContextMessages = 100

// ══════════════════════════════════════════════════════════════════════════════
// STAGED PAIRS
// ══════════════════════════════════════════════════════════════════════════════

// StagedInfo is a homework/submission cross-reference awaiting consolidation.
type StagedInfo struct {
	HomeworkID          string    `json:"homework_id"`
	HomeworkTitle       string    `json:"homework_title"`
	HomeworkDescription string    `json:"homework_description"`
	SubmissionID        string    `json:"submission_id"`
	SubmissionText      string    `json:"submission_text"`
	StagedAt            time.Time `json:"staged_at"`
}

// Pair is the projection of a StagedInfo handed to tools.
type Pair struct {
	HomeworkTitle       string    `json:"homework_task_title"`
	HomeworkDescription string    `json:"homework_task_description"`
	SubmissionText      string    `json:"submission_text"`
	SubmissionID        string    `json:"submission_id"`
	Timestamp           time.Time `json:"timestamp"`
}

func (s StagedInfo) pair() Pair {
	return Pair{
		HomeworkTitle:       s.HomeworkTitle,
		HomeworkDescription: s.HomeworkDescription,
		SubmissionText:      s.SubmissionText,
		SubmissionID:        s.SubmissionID,
		Timestamp:           s.StagedAt,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// BUFFER
// ══════════════════════════════════════════════════════════════════════════════

// Buffer is the conversational memory of one student: a bounded message log,
// a profile summary, and a staging cache of homework/submission pairs seen
// since the last consolidation.
//
// A Buffer is owned by one session; the mutex only keeps background readers
// (snapshotting, metrics) safe against the round that is writing.
type Buffer struct {
	mu sync.Mutex

	studentID         string
	recent            []Message
	profile           string
	seen              map[string]StagedInfo
	seenInProfile     map[string]struct{}
	lastConsolidation time.Time

	maxContext int
	policy     Policy
	now        func() time.Time
}

// Option configures a Buffer.
type Option func(*Buffer)

// WithMaxContext sets the recent context cap.
func WithMaxContext(n int) Option {
	return func(b *Buffer) {
		if n > 0 {
			b.maxContext = n
		}
	}
}

// WithPolicy sets the consolidation policy.
func WithPolicy(p Policy) Option {
	return func(b *Buffer) {
		b.policy = p
	}
}

// WithClock overrides the clock.
func WithClock(now func() time.Time) Option {
	return func(b *Buffer) {
		if now != nil {
			b.now = now
		}
	}
}

// NewBuffer creates an empty buffer for a student.
func NewBuffer(studentID string, opts ...Option) *Buffer {
	b := &Buffer{
		studentID:     studentID,
		recent:        make([]Message, 0),
		seen:          make(map[string]StagedInfo),
		seenInProfile: make(map[string]struct{}),
		maxContext:    DefaultMaxContextMessages,
		policy:        NewPolicy(DefaultPolicyConfig()),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.lastConsolidation = b.clock()
	return b
}

func (b *Buffer) clock() time.Time {
	return b.now().UTC()
}

// StudentID returns the owner of the buffer.
func (b *Buffer) StudentID() string {
	return b.studentID
}

// Append adds a message to recent context.
//
// A degenerate assistant message is replaced by the recovery placeholder.
// When the cap is exceeded the oldest turns are dropped so that the context
// starts at a user message. Finally the consolidation policy runs; when it
// fires, the hint is appended to the last message and the consolidation
// clock is reset so the next messages do not fire again.
func (b *Buffer) Append(msg Message) Decision {
	b.mu.Lock()
	defer b.mu.Unlock()

	if msg.IsDegenerate() {
		msg = RecoveryMessage()
	} else {
		msg = msg.Clone()
	}
	b.recent = append(b.recent, msg)

	if len(b.recent) > b.maxContext {
		b.truncate()
	}

	decision := b.policy.Evaluate(b.statsLocked())
	if decision.Suggest {
		b.lastConsolidation = b.clock()
		last := &b.recent[len(b.recent)-1]
		annotated := fmt.Sprintf("%s\n\n(%s)", last.Text(), decision.Hint())
		last.Content = &annotated
	}
	return decision
}

// truncate drops whole turns from the front. It cuts at the first user
// message that leaves at most maxContext messages; if the newest turn alone
// is longer than the cap, it keeps that turn intact.
func (b *Buffer) truncate() {
	start := len(b.recent) - b.maxContext

	cut := -1
	for i := start; i < len(b.recent); i++ {
		if b.recent[i].Role == RoleUser {
			cut = i
			break
		}
	}
	if cut < 0 {
		for i := start - 1; i > 0; i-- {
			if b.recent[i].Role == RoleUser {
				cut = i
				break
			}
		}
	}
	if cut <= 0 {
		return
	}

	b.recent = slices.Clone(b.recent[cut:])
}

// StageSeenInfo caches the pair for a homework and its submission and returns
// it. Staging an id that is already cached returns the cached pair unchanged.
// Ids already folded into the profile are returned but not kept.
func (b *Buffer) StageSeenInfo(hw tutoring.Homework, sub tutoring.Submission) Pair {
	b.mu.Lock()
	defer b.mu.Unlock()

	info, ok := b.seen[hw.ID]
	if !ok {
		info = StagedInfo{
			HomeworkID:          hw.ID,
			HomeworkTitle:       hw.Title,
			HomeworkDescription: hw.Description,
			SubmissionID:        sub.ID,
			SubmissionText:      sub.Text,
			StagedAt:            b.clock(),
		}
		b.seen[hw.ID] = info
	}

	if _, folded := b.seenInProfile[hw.ID]; folded {
		delete(b.seen, hw.ID)
	}
	return info.pair()
}

// GetPair returns the staged pair for a homework id. ok is false when the id
// is not staged, which is not an error.
func (b *Buffer) GetPair(homeworkID string) (Pair, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	info, ok := b.seen[homeworkID]
	if !ok {
		return Pair{}, false
	}
	return info.pair(), true
}

// Consolidate atomically replaces the buffer state after a profile analysis:
// the profile is replaced, staged ids move into the profile set, the cache is
// cleared and recent context becomes exactly [request, response].
// On invalid input nothing changes and ErrInvalidConsolidation is returned.
func (b *Buffer) Consolidate(newProfile string, request, response Message) error {
	if request.Role != RoleUser || !request.HasContent() {
		return fmt.Errorf("%w: request must be a user message with content", ErrInvalidConsolidation)
	}
	if response.Role != RoleAssistant || response.HasToolCalls() {
		return fmt.Errorf("%w: response must be a plain assistant message", ErrInvalidConsolidation)
	}
	if response.IsDegenerate() {
		response = RecoveryMessage()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for id := range b.seen {
		b.seenInProfile[id] = struct{}{}
	}
	b.profile = newProfile
	b.seen = make(map[string]StagedInfo)
	b.recent = []Message{request.Clone(), response.Clone()}
	b.lastConsolidation = b.clock()
	return nil
}

// ApplyAnalysis records a successful profile analysis: the profile is
// replaced and the analyzed ids join the profile set.
func (b *Buffer) ApplyAnalysis(profile string, analyzedIDs []string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.profile = profile
	for _, id := range analyzedIDs {
		if id != "" {
			b.seenInProfile[id] = struct{}{}
		}
	}
}

// ModelView returns the context sent to the model: one system message with
// the persona and profile, followed by every message of recent context.
func (b *Buffer) ModelView() []Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Message, 0, len(b.recent)+1)
	out = append(out, SystemMessage(systemPrompt(b.profile)))
	for _, m := range b.recent {
		out = append(out, m.Clone())
	}
	return out
}

// AnalysisView is ModelView without tool results and without messages whose
// content is null. Generation calls on the backend receive this view.
func (b *Buffer) AnalysisView() []Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Message, 0, len(b.recent)+1)
	out = append(out, SystemMessage(systemPrompt(b.profile)))
	for _, m := range b.recent {
		if m.Role == RoleTool || !m.HasContent() {
			continue
		}
		out = append(out, m.Clone())
	}
	return out
}

// AnalysisTurns is AnalysisView flattened to role/content pairs.
func (b *Buffer) AnalysisTurns() []tutoring.Turn {
	view := b.AnalysisView()
	turns := make([]tutoring.Turn, 0, len(view))
	for _, m := range view {
		turns = append(turns, tutoring.Turn{Role: string(m.Role), Content: m.Text()})
	}
	return turns
}

// ══════════════════════════════════════════════════════════════════════════════
// READ ACCESSORS
// ══════════════════════════════════════════════════════════════════════════════

// Profile returns the current profile summary.
func (b *Buffer) Profile() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.profile
}

// StagedIDs returns the staged homework ids, sorted.
func (b *Buffer) StagedIDs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	ids := make([]string, 0, len(b.seen))
	for id := range b.seen {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// SeenWithinProfile returns the ids already folded into the profile, sorted.
func (b *Buffer) SeenWithinProfile() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.seenInProfileLocked()
}

func (b *Buffer) seenInProfileLocked() []string {
	ids := make([]string, 0, len(b.seenInProfile))
	for id := range b.seenInProfile {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// RecentContext returns a copy of recent context.
func (b *Buffer) RecentContext() []Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Message, 0, len(b.recent))
	for _, m := range b.recent {
		out = append(out, m.Clone())
	}
	return out
}

// Len returns the number of messages in recent context.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.recent)
}

// CacheSize returns the number of staged pairs.
func (b *Buffer) CacheSize() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.seen)
}

// LastConsolidation returns when the policy clock was last reset.
func (b *Buffer) LastConsolidation() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastConsolidation
}

// Stats returns the current policy inputs.
func (b *Buffer) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.statsLocked()
}

func (b *Buffer) statsLocked() Stats {
	s := Stats{
		SinceLast:     b.clock().Sub(b.lastConsolidation),
		MessageCount:  len(b.recent),
		SeenInfoCount: len(b.seen),
	}
	if n := len(b.recent); n > 0 {
		last := b.recent[n-1]
		s.LastRole = last.Role
		s.LastHasContent = last.HasContent()
	}
	for _, m := range b.recent {
		if m.HasToolCalls() {
			s.ToolCallMessages++
		}
	}
	return s
}
