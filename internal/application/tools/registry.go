// Package tools declares the tools the AI teacher may call and executes the
// calls the model issues against the homework backend.
package tools

import (
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai/jsonschema"
	"github.com/xeipuuv/gojsonschema"

	"github.com/langflow/ai-teacher/internal/domain/tutoring"
)

// Tool names as seen by the model.
const (
	ToolAssignHomework     = "assign_homework"
	ToolGetHomeworkByTitle = "get_homework_by_title"
	ToolGetSubmission      = "get_submission_by_homework_title_without_final_feedback"
	ToolGiveFinalFeedback  = "give_final_feedback_for_submission_by_homework_title"
	ToolAnalyzeUserProfile = "analyze_user_profile"
)

var (
	// ErrUnknownTool is returned when a tool name has no definition or handler.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrDuplicateTool is returned when two definitions share a name.
	ErrDuplicateTool = errors.New("duplicate tool")

	// ErrInvalidDefinition is returned for a definition that cannot be offered to the model.
	ErrInvalidDefinition = errors.New("invalid tool definition")
)

// Class groups tools by expected latency.
type Class int

const (
	// ClassLookup tools read from the backend.
	ClassLookup Class = iota
	// ClassGeneration tools wait on a generation call.
	ClassGeneration
)

// String returns the class name.
func (c Class) String() string {
	if c == ClassGeneration {
		return "generation"
	}
	return "lookup"
}

// Definition describes one tool: its name, what the model is told about it,
// and the JSON schema of its arguments.
type Definition struct {
	Name        string
	Description string
	Parameters  jsonschema.Definition
	Class       Class
}

// Required returns the required argument names in declaration order.
func (d Definition) Required() []string {
	return d.Parameters.Required
}

// Schema returns the argument schema as a plain JSON document.
func (d Definition) Schema() map[string]any {
	return schemaDocument(d.Parameters)
}

// Registry is the validated, ordered set of tool definitions.
type Registry struct {
	defs    []Definition
	byName  map[string]int
	schemas map[string]*gojsonschema.Schema
}

// NewRegistry validates the definitions and compiles their schemas.
func NewRegistry(defs ...Definition) (*Registry, error) {
	r := &Registry{
		byName:  make(map[string]int, len(defs)),
		schemas: make(map[string]*gojsonschema.Schema, len(defs)),
	}

	for _, d := range defs {
		if d.Name == "" {
			return nil, fmt.Errorf("%w: empty name", ErrInvalidDefinition)
		}
		if _, ok := r.byName[d.Name]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTool, d.Name)
		}
		if d.Parameters.Type != jsonschema.Object {
			return nil, fmt.Errorf("%w: %s parameters must be an object", ErrInvalidDefinition, d.Name)
		}
		for _, req := range d.Parameters.Required {
			if _, ok := d.Parameters.Properties[req]; !ok {
				return nil, fmt.Errorf("%w: %s requires undeclared %q", ErrInvalidDefinition, d.Name, req)
			}
		}

		schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schemaDocument(d.Parameters)))
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidDefinition, d.Name, err)
		}

		r.byName[d.Name] = len(r.defs)
		r.defs = append(r.defs, d)
		r.schemas[d.Name] = schema
	}
	return r, nil
}

// MustRegistry is NewRegistry that panics. For static definitions only.
func MustRegistry(defs ...Definition) *Registry {
	r, err := NewRegistry(defs...)
	if err != nil {
		panic(err)
	}
	return r
}

// Definitions returns the definitions in registration order.
func (r *Registry) Definitions() []Definition {
	return append([]Definition(nil), r.defs...)
}

// Lookup returns the definition for a tool name.
func (r *Registry) Lookup(name string) (Definition, bool) {
	i, ok := r.byName[name]
	if !ok {
		return Definition{}, false
	}
	return r.defs[i], true
}

// Names returns every tool name in registration order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.defs))
	for _, d := range r.defs {
		names = append(names, d.Name)
	}
	return names
}

func (r *Registry) schema(name string) *gojsonschema.Schema {
	return r.schemas[name]
}

// schemaDocument converts a parameter definition into a plain JSON schema
// document for the validator.
func schemaDocument(d jsonschema.Definition) map[string]any {
	doc := map[string]any{}
	if d.Type != "" {
		doc["type"] = string(d.Type)
	}
	if d.Description != "" {
		doc["description"] = d.Description
	}
	if len(d.Enum) > 0 {
		enum := make([]any, 0, len(d.Enum))
		for _, v := range d.Enum {
			enum = append(enum, v)
		}
		doc["enum"] = enum
	}
	if len(d.Properties) > 0 {
		props := make(map[string]any, len(d.Properties))
		for name, p := range d.Properties {
			props[name] = schemaDocument(p)
		}
		doc["properties"] = props
	}
	if len(d.Required) > 0 {
		req := make([]any, 0, len(d.Required))
		for _, v := range d.Required {
			req = append(req, v)
		}
		doc["required"] = req
	}
	if d.Items != nil {
		doc["items"] = schemaDocument(*d.Items)
	}
	return doc
}

// ══════════════════════════════════════════════════════════════════════════════
// DEFAULT TOOL SURFACE
// ══════════════════════════════════════════════════════════════════════════════

func enumOf[T ~string](values []T) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, string(v))
	}
	return out
}

func homeworkTitleParams(description string) jsonschema.Definition {
	return jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"homework_title": {Type: jsonschema.String, Description: description},
		},
		Required: []string{"homework_title"},
	}
}

// DefaultDefinitions returns the five tools of the AI teacher.
func DefaultDefinitions() []Definition {
	return []Definition{
		{
			Name:        ToolAssignHomework,
			Description: "Generate a new homework task for the student and assign it. Use it when the student asks for homework or wants to practice a topic.",
			Class:       ClassGeneration,
			Parameters: jsonschema.Definition{
				Type: jsonschema.Object,
				Properties: map[string]jsonschema.Definition{
					"homework_topic": {
						Type:        jsonschema.String,
						Description: "The topic of the homework, e.g. 'Past Simple' or 'travel vocabulary'.",
					},
					"language_level": {
						Type:        jsonschema.String,
						Description: "The student's English level on the CEFR scale.",
						Enum:        enumOf(tutoring.LanguageLevels()),
					},
					"student_stress_level": {
						Type:        jsonschema.String,
						Description: "How stressed the student currently is. Lower stress allows a harder task.",
						Enum:        enumOf(tutoring.StressLevels()),
					},
				},
				Required: []string{"homework_topic", "language_level", "student_stress_level"},
			},
		},
		{
			Name:        ToolGetHomeworkByTitle,
			Description: "Find one of the student's homework tasks by (part of) its title.",
			Class:       ClassLookup,
			Parameters:  homeworkTitleParams("The title of the homework, or a part of it. Matching is case-insensitive."),
		},
		{
			Name:        ToolGetSubmission,
			Description: "Fetch the student's submission for a homework task so it can be discussed. Does not grade it.",
			Class:       ClassLookup,
			Parameters:  homeworkTitleParams("The title of the homework the submission answers, or a part of it."),
		},
		{
			Name:        ToolGiveFinalFeedback,
			Description: "Grade the student's submission for a homework task and produce the final scored feedback. Use only when the student asks for the final grade.",
			Class:       ClassGeneration,
			Parameters:  homeworkTitleParams("The title of the homework the submission answers, or a part of it."),
		},
		{
			Name:        ToolAnalyzeUserProfile,
			Description: "Analyze the student's progress across their recent homework and conversations and update their learning profile.",
			Class:       ClassGeneration,
			Parameters: jsonschema.Definition{
				Type: jsonschema.Object,
				Properties: map[string]jsonschema.Definition{
					"aspect_to_analyze": {
						Type:        jsonschema.String,
						Description: "The aspect of learning the student wants analyzed, e.g. 'grammar' or 'overall progress'.",
					},
				},
				Required: []string{"aspect_to_analyze"},
			},
		},
	}
}

// DefaultRegistry returns a registry with DefaultDefinitions.
func DefaultRegistry() *Registry {
	return MustRegistry(DefaultDefinitions()...)
}
