// Package orchestrator drives one conversation round of the AI teacher:
// user message in, optional tool round, final answer out.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/langflow/ai-teacher/internal/application/tools"
	"github.com/langflow/ai-teacher/internal/domain/conversation"
	"github.com/langflow/ai-teacher/internal/domain/tutoring"
	"github.com/langflow/ai-teacher/pkg/logger"
)

// ChatModel is the language model. Complete returns one assistant message,
// which may carry tool calls.
type ChatModel interface {
	Complete(ctx context.Context, messages []conversation.Message, defs []tools.Definition) (conversation.Message, error)
}

// ToolRunner executes one tool call against a buffer.
type ToolRunner interface {
	Execute(ctx context.Context, buf *conversation.Buffer, call conversation.ToolCall) tools.Result
}

// Stage names a completion request within a round.
type Stage string

const (
	StageFirst Stage = "first"
	StageFinal Stage = "final"
)

// Round outcomes reported to the Observer.
const (
	OutcomeAnswered     = "answered"
	OutcomeToolRound    = "tool_round"
	OutcomeConsolidated = "consolidated"
	OutcomeRecovered    = "recovered"
	OutcomeFailed       = "failed"
)

// Observer receives round-level events.
type Observer interface {
	ObserveRound(outcome string)
	ObserveCompletion(stage Stage, elapsed time.Duration)
	ObserveSuggestion()
	ObserveConsolidation(ok bool)
}

type nopObserver struct{}

func (nopObserver) ObserveRound(string)                    {}
func (nopObserver) ObserveCompletion(Stage, time.Duration) {}
func (nopObserver) ObserveSuggestion()                     {}
func (nopObserver) ObserveConsolidation(bool)              {}

// Orchestrator runs conversation rounds. It holds no per-student state; the
// caller passes the buffer and guarantees one round at a time per buffer.
type Orchestrator struct {
	model    ChatModel
	tools    ToolRunner
	defs     []tools.Definition
	observer Observer
	log      *logger.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithObserver sets the metrics observer.
func WithObserver(o Observer) Option {
	return func(orc *Orchestrator) {
		if o != nil {
			orc.observer = o
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(orc *Orchestrator) {
		if l != nil {
			orc.log = l
		}
	}
}

// New creates an Orchestrator offering the registry's tools to the model.
func New(model ChatModel, runner ToolRunner, registry *tools.Registry, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		model:    model,
		tools:    runner,
		defs:     registry.Definitions(),
		observer: nopObserver{},
		log:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.log = o.log.With(logger.Component("orchestrator"))
	return o
}

// HandleMessage runs one round for text and returns the reply.
//
// Tool failures never surface here; they reach the model as payloads.
// Errors are returned only for failed completions, a cancelled context and
// failed consolidation. In every case the buffer holds only complete appends.
func (o *Orchestrator) HandleMessage(ctx context.Context, buf *conversation.Buffer, text string) (string, error) {
	log := o.log.WithRequestID(uuid.NewString()).With(logger.StudentID(buf.StudentID()))
	ctx = logger.WithContext(ctx, log)

	// RECEIVED
	userMsg := conversation.UserMessage(text)
	o.append(buf, userMsg)

	// FIRST_COMPLETION
	messages := buf.ModelView()
	first, err := o.complete(ctx, StageFirst, messages)
	if err != nil {
		o.observer.ObserveRound(OutcomeFailed)
		log.Error("first completion failed", logger.Err(err))
		return "", fmt.Errorf("first completion: %w", err)
	}

	if !first.HasToolCalls() {
		outcome := OutcomeAnswered
		if first.IsDegenerate() {
			log.Warn("empty completion replaced with recovery message")
			first = conversation.RecoveryMessage()
			outcome = OutcomeRecovered
		}
		o.append(buf, first)
		o.observer.ObserveRound(outcome)
		return first.Text(), nil
	}

	// TOOL_ROUND
	manifest := conversation.AssistantToolCalls(first.Content, withCallIDs(first.ToolCalls))
	results := make([]tools.Result, 0, len(manifest.ToolCalls))
	var analysis *tutoring.ProfileAnalysis
	for _, call := range manifest.ToolCalls {
		res := o.tools.Execute(ctx, buf, call)
		results = append(results, res)
		if res.Analysis != nil {
			analysis = res.Analysis
		}
	}

	if err := ctx.Err(); err != nil {
		o.observer.ObserveRound(OutcomeFailed)
		log.Warn("round cancelled during tool calls", logger.Err(err))
		return "", fmt.Errorf("tool round: %w", err)
	}

	o.append(buf, manifest)
	messages = append(messages, manifest)
	for _, res := range results {
		msg := res.Message()
		o.append(buf, msg)
		messages = append(messages, msg)
	}

	// FINAL_COMPLETION
	final, err := o.complete(ctx, StageFinal, messages)
	if err != nil {
		o.observer.ObserveRound(OutcomeFailed)
		log.Error("final completion failed", logger.Err(err))
		return "", fmt.Errorf("final completion: %w", err)
	}
	if final.HasToolCalls() {
		log.Warn("ignoring tool calls in final completion", logger.Int("tool_calls", len(final.ToolCalls)))
		final = conversation.AssistantMessage(final.Text())
	}
	if final.IsDegenerate() {
		log.Warn("empty final completion replaced with recovery message")
		final = conversation.RecoveryMessage()
	}

	if analysis != nil {
		if err := buf.Consolidate(analysis.Profile, userMsg, final); err != nil {
			o.observer.ObserveConsolidation(false)
			o.observer.ObserveRound(OutcomeFailed)
			log.Error("consolidation failed", logger.Err(err))
			return "", fmt.Errorf("consolidate: %w", err)
		}
		o.observer.ObserveConsolidation(true)
		o.observer.ObserveRound(OutcomeConsolidated)
		log.Info("buffer consolidated after profile analysis")
		return final.Text(), nil
	}

	// DONE
	o.append(buf, final)
	o.observer.ObserveRound(OutcomeToolRound)
	return final.Text(), nil
}

func (o *Orchestrator) append(buf *conversation.Buffer, msg conversation.Message) {
	if d := buf.Append(msg); d.Suggest {
		o.observer.ObserveSuggestion()
		o.log.Info("consolidation suggested",
			logger.StudentID(buf.StudentID()),
			logger.Any("reasons", d.Reasons),
		)
	}
}

func (o *Orchestrator) complete(ctx context.Context, stage Stage, messages []conversation.Message) (conversation.Message, error) {
	start := time.Now()
	msg, err := o.model.Complete(ctx, messages, o.defs)
	o.observer.ObserveCompletion(stage, time.Since(start))
	if err != nil {
		return conversation.Message{}, err
	}
	msg.Role = conversation.RoleAssistant
	return msg, nil
}

// withCallIDs fills in ids the model left empty so results can reference them.
func withCallIDs(calls []conversation.ToolCall) []conversation.ToolCall {
	out := make([]conversation.ToolCall, len(calls))
	for i, c := range calls {
		if c.ID == "" {
			c.ID = "call_" + uuid.NewString()
		}
		out[i] = c
	}
	return out
}
