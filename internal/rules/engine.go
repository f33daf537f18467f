// Package rules enforces the Minimalist Rules on candidate records proposed by
// the generation engine.
//
// The Engine is the only place raw gateway fields become typed records. It
// never trusts the engine's self-conformance: every field is re-checked,
// list caps are applied by truncation, and the high-priority budget is
// enforced by downgrading in arrival order.
package rules

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/fyrsmithlabs/inboxd/internal/schema"
	"github.com/fyrsmithlabs/inboxd/internal/session"
)

// Wire field names used in ValidationError and Adjustment.
const (
	FieldRawText        = "rawText"
	FieldAction         = "action"
	FieldPriority       = "priority"
	FieldContextTag     = "contextTag"
	FieldDueDate        = "dueDate"
	FieldSourceLabel    = "sourceLabel"
	FieldSummaryBullets = "summaryBullets"
	FieldConceptualTags = "conceptualTags"
	FieldEmbeddedTask   = "embeddedTask"
)

// AdjustmentKind names a policy-sanctioned normalization.
type AdjustmentKind string

const (
	AdjustTruncated  AdjustmentKind = "truncated"
	AdjustDowngraded AdjustmentKind = "downgraded"
)

// Adjustment records a normalization the engine applied silently.
type Adjustment struct {
	Field string         `json:"field"`
	Kind  AdjustmentKind `json:"kind"`
	From  string         `json:"from"`
	To    string         `json:"to"`
}

// Normalized is a rule-conformant record.
type Normalized struct {
	Record      schema.Record
	Adjustments []Adjustment
}

// Engine applies a RuleSet.
type Engine struct {
	rules RuleSet
}

// NewEngine creates an engine for rs.
func NewEngine(rs RuleSet) *Engine {
	return &Engine{rules: rs}
}

// Rules returns the engine's rule set.
func (e *Engine) Rules() RuleSet {
	return e.rules
}

// Apply coerces fields into a record of kind and enforces the rules. Fields
// may use the gateway argument keys (context_tag) or the wire names
// (contextTag). The session budget is consumed only when a high task passes
// every other check.
func (e *Engine) Apply(kind schema.Kind, fields map[string]any, s *session.State) (Normalized, error) {
	switch kind {
	case schema.KindTask:
		if s == nil {
			return Normalized{}, ErrNilSession
		}
		return e.applyTask(fields, s)
	case schema.KindNote:
		return e.applyNote(fields)
	}
	return Normalized{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}

func (e *Engine) applyTask(fields map[string]any, s *session.State) (Normalized, error) {
	f := rawFields{kind: schema.KindTask, m: fields}

	rawText, err := f.requiredString(FieldRawText, schema.FieldRawTaskText)
	if err != nil {
		return Normalized{}, err
	}

	actionStr, err := f.requiredString(FieldAction, schema.FieldAction)
	if err != nil {
		return Normalized{}, err
	}
	action, ok := schema.ParseAction(actionStr)
	if !ok {
		return Normalized{}, f.invalid(FieldAction, ReasonInvalidEnum, actionStr)
	}

	priorityStr, err := f.requiredString(FieldPriority, schema.FieldPriority)
	if err != nil {
		return Normalized{}, err
	}
	priority, ok := schema.ParsePriority(priorityStr)
	if !ok {
		return Normalized{}, f.invalid(FieldPriority, ReasonInvalidEnum, priorityStr)
	}

	tag, err := e.contextTag(f)
	if err != nil {
		return Normalized{}, err
	}

	due, err := f.dueDate()
	if err != nil {
		return Normalized{}, err
	}

	var adjustments []Adjustment
	if priority == schema.PriorityHigh && !s.ReserveHighPriority(e.rules.MaxHighPriority) {
		priority = schema.PriorityMedium
		adjustments = append(adjustments, Adjustment{
			Field: FieldPriority,
			Kind:  AdjustDowngraded,
			From:  string(schema.PriorityHigh),
			To:    string(schema.PriorityMedium),
		})
	}

	return Normalized{
		Record: &schema.TaskRecord{
			RawText:    rawText,
			Action:     action,
			Priority:   priority,
			ContextTag: tag,
			DueDate:    due,
		},
		Adjustments: adjustments,
	}, nil
}

func (e *Engine) applyNote(fields map[string]any) (Normalized, error) {
	f := rawFields{kind: schema.KindNote, m: fields}

	label, err := f.requiredString(FieldSourceLabel, schema.FieldOriginalSource)
	if err != nil {
		return Normalized{}, err
	}

	var adjustments []Adjustment

	bullets, err := f.requiredList(FieldSummaryBullets, schema.FieldSummaryBullets)
	if err != nil {
		return Normalized{}, err
	}
	bullets, adj := capList(FieldSummaryBullets, bullets, e.rules.MaxSummaryBullets)
	adjustments = append(adjustments, adj...)

	tags, err := f.requiredList(FieldConceptualTags, schema.FieldConceptualTags)
	if err != nil {
		return Normalized{}, err
	}
	tags, adj = capList(FieldConceptualTags, tags, e.rules.MaxConceptualTags)
	adjustments = append(adjustments, adj...)

	embedded, err := f.optionalString(FieldEmbeddedTask, schema.FieldEmbeddedTask)
	if err != nil {
		return Normalized{}, err
	}

	return Normalized{
		Record: &schema.NoteRecord{
			SourceLabel:    label,
			SummaryBullets: bullets,
			ConceptualTags: tags,
			EmbeddedTask:   embedded,
		},
		Adjustments: adjustments,
	}, nil
}

// contextTag enforces exactly one allowed tag.
func (e *Engine) contextTag(f rawFields) (schema.ContextTag, error) {
	v, ok := f.get(FieldContextTag, schema.FieldContextTag)
	if !ok {
		return "", f.invalid(FieldContextTag, ReasonRequired, nil)
	}

	var tokens []string
	switch t := v.(type) {
	case string:
		tokens = splitTags(t)
	case []string:
		for _, s := range t {
			tokens = append(tokens, splitTags(s)...)
		}
	case []any:
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return "", f.invalid(FieldContextTag, ReasonInvalidType, item)
			}
			tokens = append(tokens, splitTags(s)...)
		}
	default:
		return "", f.invalid(FieldContextTag, ReasonInvalidType, v)
	}

	if len(tokens) != 1 {
		return "", f.invalid(FieldContextTag, ReasonMustBeSingle, v)
	}
	tag, ok := schema.ParseContextTag(tokens[0])
	if !ok || !e.allowedTag(tag) {
		return "", f.invalid(FieldContextTag, ReasonInvalidEnum, tokens[0])
	}
	return tag, nil
}

func (e *Engine) allowedTag(tag schema.ContextTag) bool {
	for _, t := range e.rules.ContextTags {
		if t == tag {
			return true
		}
	}
	return false
}

// splitTags splits "#Work, #Finance" or "#Work#Finance" into tokens.
func splitTags(s string) []string {
	s = strings.ReplaceAll(s, "#", " #")
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ';' || r == '|' || r == '/' || unicode.IsSpace(r)
	})
}

// capList truncates items to limit, reporting the truncation.
func capList(field string, items []string, limit int) ([]string, []Adjustment) {
	if len(items) <= limit {
		return items, nil
	}
	adj := Adjustment{
		Field: field,
		Kind:  AdjustTruncated,
		From:  strconv.Itoa(len(items)),
		To:    strconv.Itoa(limit),
	}
	return items[:limit:limit], []Adjustment{adj}
}

// rawFields reads untyped gateway values.
type rawFields struct {
	kind schema.Kind
	m    map[string]any
}

// get returns the value under the argument key or the wire name. Null
// values count as absent.
func (f rawFields) get(wire, arg string) (any, bool) {
	for _, k := range []string{arg, wire} {
		if v, ok := f.m[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func (f rawFields) invalid(field string, reason Reason, value any) *ValidationError {
	return &ValidationError{Kind: f.kind, Field: field, Reason: reason, Value: value}
}

func (f rawFields) requiredString(wire, arg string) (string, error) {
	v, ok := f.get(wire, arg)
	if !ok {
		return "", f.invalid(wire, ReasonRequired, nil)
	}
	s, ok := v.(string)
	if !ok {
		return "", f.invalid(wire, ReasonInvalidType, v)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", f.invalid(wire, ReasonRequired, nil)
	}
	return s, nil
}

// optionalString returns nil for absent, blank or literal "null" values.
func (f rawFields) optionalString(wire, arg string) (*string, error) {
	v, ok := f.get(wire, arg)
	if !ok {
		return nil, nil
	}
	s, ok := v.(string)
	if !ok {
		return nil, f.invalid(wire, ReasonInvalidType, v)
	}
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "null") || strings.EqualFold(s, "none") {
		return nil, nil
	}
	return &s, nil
}

// requiredList returns the non-blank string items of a list field. The
// result is never nil.
func (f rawFields) requiredList(wire, arg string) ([]string, error) {
	v, ok := f.get(wire, arg)
	if !ok {
		return nil, f.invalid(wire, ReasonRequired, nil)
	}

	var items []string
	switch t := v.(type) {
	case []string:
		items = t
	case []any:
		items = make([]string, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, f.invalid(wire, ReasonInvalidType, item)
			}
			items = append(items, s)
		}
	default:
		return nil, f.invalid(wire, ReasonInvalidType, v)
	}

	out := make([]string, 0, len(items))
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f rawFields) dueDate() (*string, error) {
	s, err := f.optionalString(FieldDueDate, schema.FieldDueDate)
	if err != nil || s == nil {
		return nil, err
	}
	d, err := time.Parse(schema.DateLayout, *s)
	if err != nil {
		return nil, f.invalid(FieldDueDate, ReasonBadFormat, *s)
	}
	formatted := d.Format(schema.DateLayout)
	return &formatted, nil
}
