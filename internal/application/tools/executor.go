package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/langflow/ai-teacher/internal/domain/conversation"
	"github.com/langflow/ai-teacher/internal/domain/tutoring"
	"github.com/langflow/ai-teacher/pkg/logger"
)

// Outcome classifies how a tool call ended.
type Outcome string

const (
	OutcomeOK               Outcome = "ok"
	OutcomeMissingArguments Outcome = "missing_arguments"
	OutcomeInvalidArguments Outcome = "invalid_arguments"
	OutcomeUnauthorized     Outcome = "unauthorized"
	OutcomeUnknownTool      Outcome = "unknown_tool"
	OutcomeError            Outcome = "error"
)

// Config holds executor timeouts per tool class.
type Config struct {
	LookupTimeout     time.Duration
	GenerationTimeout time.Duration
}

// DefaultConfig returns the production timeouts.
func DefaultConfig() Config {
	return Config{
		LookupTimeout:     10 * time.Second,
		GenerationTimeout: 60 * time.Second,
	}
}

// Result is the normalized outcome of one tool call.
type Result struct {
	CallID  string
	Tool    string
	Payload string
	Outcome Outcome

	// Err is the failure folded into Payload, if any.
	Err error

	// Analysis is set when analyze_user_profile succeeded.
	Analysis *tutoring.ProfileAnalysis
}

// Message returns the tool-result message for the conversation.
func (r Result) Message() conversation.Message {
	return conversation.ToolResult(r.CallID, r.Tool, r.Payload)
}

// call is the state one handler sees.
type call struct {
	buf  *conversation.Buffer
	args map[string]any

	analysis *tutoring.ProfileAnalysis
}

func (c *call) str(name string) string {
	s, _ := c.args[name].(string)
	return strings.TrimSpace(s)
}

type handlerFunc func(ctx context.Context, c *call) (map[string]any, error)

type handler struct {
	keys []string
	run  handlerFunc
}

// Executor turns model-issued tool calls into backend calls and returns a
// stable JSON payload per tool. It never returns an error: missing arguments,
// validation failures and backend failures all become payloads the model can
// react to.
type Executor struct {
	registry *Registry
	backend  Backend
	auth     Authorizer
	observer Observer
	log      *logger.Logger
	cfg      Config
	handlers map[string]handler
}

// Option configures an Executor.
type Option func(*Executor)

// WithConfig sets the timeouts.
func WithConfig(cfg Config) Option {
	return func(e *Executor) {
		e.cfg = cfg
	}
}

// WithAuthorizer sets the capability check.
func WithAuthorizer(a Authorizer) Option {
	return func(e *Executor) {
		if a != nil {
			e.auth = a
		}
	}
}

// WithObserver sets the metrics observer.
func WithObserver(o Observer) Option {
	return func(e *Executor) {
		if o != nil {
			e.observer = o
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.log = l
		}
	}
}

// NewExecutor wires handlers to the registry. Every registered tool must
// have a handler, so unknown names fail here and not mid-conversation.
func NewExecutor(registry *Registry, backend Backend, opts ...Option) (*Executor, error) {
	e := &Executor{
		registry: registry,
		backend:  backend,
		auth:     AllowAll,
		observer: nopObserver{},
		log:      logger.Nop(),
		cfg:      DefaultConfig(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.With(logger.Component("tool_executor"))

	e.handlers = map[string]handler{
		ToolAssignHomework: {
			keys: []string{"homework_task_title", "homework_task_description", "language_level", "student_stress_level", "homework_topic"},
			run:  e.assignHomework,
		},
		ToolGetHomeworkByTitle: {
			keys: []string{"homework_task_title", "homework_task_description"},
			run:  e.getHomeworkByTitle,
		},
		ToolGetSubmission: {
			keys: []string{"homework_task_title", "homework_task_description", "submission_text", "submission_id"},
			run:  e.getSubmission,
		},
		ToolGiveFinalFeedback: {
			keys: []string{"homework_task_title", "submission_text", "feedback_text", "score"},
			run:  e.giveFinalFeedback,
		},
		ToolAnalyzeUserProfile: {
			keys: []string{"updated_profile", "growth_story", "areas_of_improvement", "specific_aspect_analysis"},
			run:  e.analyzeUserProfile,
		},
	}

	for _, name := range registry.Names() {
		if _, ok := e.handlers[name]; !ok {
			return nil, fmt.Errorf("%w: no handler for %q", ErrUnknownTool, name)
		}
	}
	for name := range e.handlers {
		if _, ok := registry.Lookup(name); !ok {
			delete(e.handlers, name)
		}
	}
	return e, nil
}

// Registry returns the tool definitions the executor serves.
func (e *Executor) Registry() *Registry {
	return e.registry
}

// Execute runs one tool call against the buffer's student.
func (e *Executor) Execute(ctx context.Context, buf *conversation.Buffer, tc conversation.ToolCall) Result {
	start := time.Now()
	log := logger.FromContextOr(ctx, e.log).With(logger.ToolName(tc.Name), logger.ToolCallID(tc.ID), logger.StudentID(buf.StudentID()))

	res := e.execute(ctx, buf, tc)
	elapsed := time.Since(start)
	e.observer.ObserveToolCall(tc.Name, res.Outcome, elapsed)

	if res.Outcome == OutcomeOK {
		log.Info("tool call finished", logger.Latency(elapsed))
	} else {
		log.Warn("tool call failed",
			logger.String("outcome", string(res.Outcome)),
			logger.Err(res.Err),
			logger.Latency(elapsed),
		)
	}
	return res
}

func (e *Executor) execute(ctx context.Context, buf *conversation.Buffer, tc conversation.ToolCall) Result {
	res := Result{CallID: tc.ID, Tool: tc.Name}

	def, ok := e.registry.Lookup(tc.Name)
	h, hok := e.handlers[tc.Name]
	if !ok || !hok {
		res.Outcome = OutcomeUnknownTool
		res.Err = fmt.Errorf("%w: %s", ErrUnknownTool, tc.Name)
		res.Payload = encode(map[string]any{
			"error": fmt.Sprintf("Unknown tool %q. Available tools: %s.", tc.Name, strings.Join(e.registry.Names(), ", ")),
		})
		return res
	}

	args := parseArguments(tc.Arguments)

	if missing := missingArguments(def, args); len(missing) > 0 {
		res.Outcome = OutcomeMissingArguments
		res.Err = fmt.Errorf("%w: missing %s", tutoring.ErrValidation, strings.Join(missing, ", "))
		res.Payload = encode(withKeys(h.keys, map[string]any{
			"error":             "missing_arguments",
			"message":           fmt.Sprintf("Missing arguments: %s. Ask the user to provide them.", strings.Join(missing, ", ")),
			"missing_arguments": missing,
		}))
		return res
	}

	if problems := e.validate(def.Name, args); len(problems) > 0 {
		res.Outcome = OutcomeInvalidArguments
		res.Err = fmt.Errorf("%w: %s", tutoring.ErrValidation, strings.Join(problems, "; "))
		res.Payload = encode(withKeys(h.keys, map[string]any{
			"error":             "invalid_arguments",
			"message":           fmt.Sprintf("Invalid arguments: %s. Ask the user to clarify.", strings.Join(problems, "; ")),
			"invalid_arguments": problems,
		}))
		return res
	}

	if err := e.auth.Authorize(ctx, buf.StudentID(), def.Name); err != nil {
		res.Outcome = OutcomeUnauthorized
		res.Err = err
		res.Payload = encode(withKeys(h.keys, map[string]any{"error": err.Error()}))
		return res
	}

	timeout := e.cfg.LookupTimeout
	if def.Class == ClassGeneration {
		timeout = e.cfg.GenerationTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	c := &call{buf: buf, args: args}
	data, err := h.run(callCtx, c)
	if err != nil {
		res.Outcome = OutcomeError
		res.Err = err
		res.Payload = encode(withKeys(h.keys, map[string]any{"error": err.Error()}))
		return res
	}

	res.Analysis = c.analysis
	res.Outcome = OutcomeOK
	res.Payload = encode(withKeys(h.keys, data))
	return res
}

// validate checks args against the tool's compiled schema.
func (e *Executor) validate(tool string, args map[string]any) []string {
	schema := e.registry.schema(tool)
	if schema == nil {
		return nil
	}
	result, err := schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return []string{err.Error()}
	}
	if result.Valid() {
		return nil
	}
	problems := make([]string, 0, len(result.Errors()))
	for _, re := range result.Errors() {
		problems = append(problems, re.String())
	}
	return problems
}

// parseArguments decodes the model's argument string. Anything that is not a
// JSON object is treated as no arguments at all.
func parseArguments(raw string) map[string]any {
	args := map[string]any{}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return args
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil || args == nil {
		return map[string]any{}
	}
	return args
}

// missingArguments lists every required argument that is absent, null or an
// empty string, in declaration order.
func missingArguments(def Definition, args map[string]any) []string {
	var missing []string
	for _, name := range def.Required() {
		v, ok := args[name]
		if !ok || v == nil {
			missing = append(missing, name)
			continue
		}
		if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
			missing = append(missing, name)
		}
	}
	return missing
}

// withKeys makes sure every tool key is present, null when absent.
func withKeys(keys []string, data map[string]any) map[string]any {
	out := make(map[string]any, len(keys)+len(data))
	for _, k := range keys {
		out[k] = nil
	}
	for k, v := range data {
		out[k] = v
	}
	return out
}

func encode(v map[string]any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		fallback, _ := json.Marshal(map[string]string{"error": err.Error()})
		return string(fallback)
	}
	return string(raw)
}
