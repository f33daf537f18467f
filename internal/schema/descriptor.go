package schema

import (
	"strings"
)

// Raw argument keys the generation engine fills in for each tool.
const (
	FieldRawTaskText = "raw_task_text"
	FieldAction      = "action"
	FieldPriority    = "priority"
	FieldContextTag  = "context_tag"
	FieldDueDate     = "due_date"

	FieldOriginalSource = "original_source"
	FieldSummaryBullets = "summary_bullets"
	FieldConceptualTags = "conceptual_tags"
	FieldEmbeddedTask   = "embedded_task"
)

// Descriptor declares a schema to the generation engine as a function tool.
type Descriptor struct {
	Kind        Kind
	Name        ToolName
	Description string
	// Parameters is a JSON Schema object describing the tool arguments.
	Parameters map[string]any
}

// TaskDescriptor declares the TaskCategorizer tool.
func TaskDescriptor() Descriptor {
	return Descriptor{
		Kind: KindTask,
		Name: ToolTaskCategorizer,
		Description: "Classifies and prioritizes a raw task, enforcing minimalist rules. " +
			"Outputs structured data for actionable tasks.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				FieldRawTaskText: map[string]any{
					"type":        "string",
					"description": "The original, unstructured text of the task to be processed.",
				},
				FieldAction: map[string]any{
					"type":        "string",
					"description": "The required immediate action for the task. Must be one of: " + joinQuoted(Actions()) + ".",
					"enum":        stringsOf(Actions()),
				},
				FieldPriority: map[string]any{
					"type":        "string",
					"description": "The urgency of the task. Must be one of: " + joinQuoted(Priorities()) + ". 'high' is critical and limited per session.",
					"enum":        stringsOf(Priorities()),
				},
				FieldContextTag: map[string]any{
					"type":        "string",
					"description": "The relevant area of life for the task. Must be one of: " + joinQuoted(ContextTags()) + ". Only one tag is allowed.",
					"enum":        stringsOf(ContextTags()),
				},
				FieldDueDate: map[string]any{
					"type":        "string",
					"description": "The required completion date in YYYY-MM-DD format. Omit if no specific due date is identified.",
				},
			},
			"required": []string{FieldRawTaskText, FieldAction, FieldPriority, FieldContextTag},
		},
	}
}

// NoteDescriptor declares the NoteSynthesizer tool.
func NoteDescriptor() Descriptor {
	return Descriptor{
		Kind: KindNote,
		Name: ToolNoteSynthesizer,
		Description: "Processes long, unstructured text, condensing it into key takeaways " +
			"and identifying any embedded actionable tasks.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				FieldOriginalSource: map[string]any{
					"type":        "string",
					"description": "A brief identifier for the source of the note, e.g. 'Meeting with John'.",
				},
				FieldSummaryBullets: map[string]any{
					"type":        "array",
					"description": "At most 5 highly condensed bullet points summarizing the key takeaways.",
					"items":       map[string]any{"type": "string"},
				},
				FieldConceptualTags: map[string]any{
					"type":        "array",
					"description": "Up to 3 thematic tags derived from the content, e.g. 'RAG Systems'.",
					"items":       map[string]any{"type": "string"},
				},
				FieldEmbeddedTask: map[string]any{
					"type":        "string",
					"description": "An actionable task found within the note, as raw text. Omit if none. It is handed off to the TaskCategorizer.",
				},
			},
			"required": []string{FieldOriginalSource, FieldSummaryBullets, FieldConceptualTags},
		},
	}
}

// DescriptorFor returns the descriptor for kind.
func DescriptorFor(kind Kind) (Descriptor, bool) {
	switch kind {
	case KindTask:
		return TaskDescriptor(), true
	case KindNote:
		return NoteDescriptor(), true
	}
	return Descriptor{}, false
}

// Descriptors returns the descriptors for kinds, in order, skipping unknown
// kinds.
func Descriptors(kinds ...Kind) []Descriptor {
	out := make([]Descriptor, 0, len(kinds))
	for _, k := range kinds {
		if d, ok := DescriptorFor(k); ok {
			out = append(out, d)
		}
	}
	return out
}

// KindForTool resolves a tool name reported by the engine. Both the bare name
// and the "Schema"-suffixed class name are accepted.
func KindForTool(name string) (Kind, bool) {
	switch strings.TrimSuffix(strings.TrimSpace(name), "Schema") {
	case string(ToolTaskCategorizer):
		return KindTask, true
	case string(ToolNoteSynthesizer):
		return KindNote, true
	}
	return "", false
}

func stringsOf[T ~string](vs []T) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = string(v)
	}
	return out
}

func joinQuoted[T ~string](vs []T) string {
	quoted := make([]string, len(vs))
	for i, v := range vs {
		quoted[i] = "'" + string(v) + "'"
	}
	return strings.Join(quoted, ", ")
}
