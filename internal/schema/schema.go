// Package schema defines the two structured record shapes produced by inboxd
// (tasks and notes), their enum domains, and the tool descriptors handed to
// the generation engine.
package schema

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind identifies a record schema.
type Kind string

const (
	KindTask Kind = "task"
	KindNote Kind = "note"
)

// ToolName is the classification tool that produced a record. These strings
// appear verbatim in output as toolUsed.
type ToolName string

const (
	ToolTaskCategorizer ToolName = "TaskCategorizer"
	ToolNoteSynthesizer ToolName = "NoteSynthesizer"
)

// Tool returns the tool that produces records of kind k.
func (k Kind) Tool() ToolName {
	switch k {
	case KindTask:
		return ToolTaskCategorizer
	case KindNote:
		return ToolNoteSynthesizer
	}
	return ""
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindTask || k == KindNote
}

// Action is the immediate action for a task.
type Action string

const (
	ActionDo       Action = "do"
	ActionDelegate Action = "delegate"
	ActionDefer    Action = "defer"
	ActionDelete   Action = "delete"
)

// Actions lists the allowed actions in declaration order.
func Actions() []Action {
	return []Action{ActionDo, ActionDelegate, ActionDefer, ActionDelete}
}

// Priority is the urgency of a task.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Priorities lists the allowed priorities from most to least urgent.
func Priorities() []Priority {
	return []Priority{PriorityHigh, PriorityMedium, PriorityLow}
}

// ContextTag is the single area-of-life tag carried by a task.
type ContextTag string

const (
	TagWork     ContextTag = "#Work"
	TagPersonal ContextTag = "#Personal"
	TagLearning ContextTag = "#Learning"
	TagFinance  ContextTag = "#Finance"
)

// ContextTags lists the allowed tags in declaration order.
func ContextTags() []ContextTag {
	return []ContextTag{TagWork, TagPersonal, TagLearning, TagFinance}
}

// ParseAction matches s against the allowed actions, ignoring case and
// surrounding space.
func ParseAction(s string) (Action, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, a := range Actions() {
		if string(a) == s {
			return a, true
		}
	}
	return "", false
}

// ParsePriority matches s against the allowed priorities, ignoring case and
// surrounding space.
func ParsePriority(s string) (Priority, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, p := range Priorities() {
		if string(p) == s {
			return p, true
		}
	}
	return "", false
}

// ParseContextTag matches a single tag, ignoring case and a missing '#'.
func ParseContextTag(s string) (ContextTag, bool) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	for _, t := range ContextTags() {
		if strings.EqualFold(string(t)[1:], s) {
			return t, true
		}
	}
	return "", false
}

// DateLayout is the only accepted due date format.
const DateLayout = "2006-01-02"

// Record is a finalized TaskRecord or NoteRecord.
type Record interface {
	Kind() Kind
	isRecord()
}

// TaskRecord is an actionable task.
type TaskRecord struct {
	RawText    string     `json:"rawText"`
	Action     Action     `json:"action"`
	Priority   Priority   `json:"priority"`
	ContextTag ContextTag `json:"contextTag"`
	// DueDate is YYYY-MM-DD or nil.
	DueDate *string `json:"dueDate"`
}

func (*TaskRecord) Kind() Kind { return KindTask }
func (*TaskRecord) isRecord()  {}

// NoteRecord is a synthesized note.
type NoteRecord struct {
	SourceLabel    string   `json:"sourceLabel"`
	SummaryBullets []string `json:"summaryBullets"`
	ConceptualTags []string `json:"conceptualTags"`
	EmbeddedTask   *string  `json:"embeddedTask"`
}

func (*NoteRecord) Kind() Kind { return KindNote }
func (*NoteRecord) isRecord()  {}

// HasEmbeddedTask reports whether the note carries follow-up work.
func (n *NoteRecord) HasEmbeddedTask() bool {
	return n.EmbeddedTask != nil && strings.TrimSpace(*n.EmbeddedTask) != ""
}

// Entry is one element of a run's output sequence.
type Entry struct {
	ToolUsed ToolName `json:"toolUsed"`
	Payload  Record   `json:"payload"`
}

// NewEntry wraps r with the tool that produces its kind.
func NewEntry(r Record) Entry {
	return Entry{ToolUsed: r.Kind().Tool(), Payload: r}
}

// UnmarshalJSON decodes the payload according to toolUsed.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var raw struct {
		ToolUsed ToolName        `json:"toolUsed"`
		Payload  json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var payload Record
	switch raw.ToolUsed {
	case ToolTaskCategorizer:
		payload = &TaskRecord{}
	case ToolNoteSynthesizer:
		payload = &NoteRecord{}
	default:
		return fmt.Errorf("unknown toolUsed %q", raw.ToolUsed)
	}
	if err := json.Unmarshal(raw.Payload, payload); err != nil {
		return fmt.Errorf("decode %s payload: %w", raw.ToolUsed, err)
	}

	e.ToolUsed = raw.ToolUsed
	e.Payload = payload
	return nil
}
