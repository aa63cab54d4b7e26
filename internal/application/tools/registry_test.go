package tools

import (
	"testing"

	"github.com/sashabaranov/go-openai/jsonschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry()

	assert.Equal(t, []string{
		ToolAssignHomework,
		ToolGetHomeworkByTitle,
		ToolGetSubmission,
		ToolGiveFinalFeedback,
		ToolAnalyzeUserProfile,
	}, r.Names())

	def, ok := r.Lookup(ToolAssignHomework)
	require.True(t, ok)
	assert.Equal(t, ClassGeneration, def.Class)
	assert.Equal(t, []string{"homework_topic", "language_level", "student_stress_level"}, def.Required())
	assert.Equal(t, []string{"A1", "A2", "B1", "B2", "C1", "C2"}, def.Parameters.Properties["language_level"].Enum)
	assert.Equal(t, []string{"low", "medium", "high"}, def.Parameters.Properties["student_stress_level"].Enum)

	def, ok = r.Lookup(ToolGetHomeworkByTitle)
	require.True(t, ok)
	assert.Equal(t, ClassLookup, def.Class)

	_, ok = r.Lookup("delete_everything")
	assert.False(t, ok)
}

func TestNewRegistry_RejectsBadDefinitions(t *testing.T) {
	params := jsonschema.Definition{
		Type:       jsonschema.Object,
		Properties: map[string]jsonschema.Definition{"x": {Type: jsonschema.String}},
		Required:   []string{"x"},
	}

	_, err := NewRegistry(Definition{Name: "a", Parameters: params}, Definition{Name: "a", Parameters: params})
	assert.ErrorIs(t, err, ErrDuplicateTool)

	_, err = NewRegistry(Definition{Name: "", Parameters: params})
	assert.ErrorIs(t, err, ErrInvalidDefinition)

	_, err = NewRegistry(Definition{Name: "b", Parameters: jsonschema.Definition{Type: jsonschema.String}})
	assert.ErrorIs(t, err, ErrInvalidDefinition)

	bad := params
	bad.Required = []string{"y"}
	_, err = NewRegistry(Definition{Name: "c", Parameters: bad})
	assert.ErrorIs(t, err, ErrInvalidDefinition)
}

func TestNewExecutor_FailsFastOnToolWithoutHandler(t *testing.T) {
	defs := append(DefaultDefinitions(), Definition{
		Name:       "translate_text",
		Parameters: jsonschema.Definition{Type: jsonschema.Object},
	})

	_, err := NewExecutor(MustRegistry(defs...), newFakeBackend())
	assert.ErrorIs(t, err, ErrUnknownTool)
}
