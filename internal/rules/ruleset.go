package rules

import (
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/inboxd/internal/schema"
)

// Acknowledgment is the model turn that follows the rule instructions in
// every gateway preamble.
const Acknowledgment = "Minimalist rules loaded. Awaiting input."

// RuleSet is the fixed business policy. It is a value type; the same value
// renders the gateway instructions and drives the Engine.
type RuleSet struct {
	MaxHighPriority   int
	MaxSummaryBullets int
	MaxConceptualTags int
	ContextTags       []schema.ContextTag
}

// Minimalist returns the Minimalist Rules.
func Minimalist() RuleSet {
	return RuleSet{
		MaxHighPriority:   3,
		MaxSummaryBullets: 5,
		MaxConceptualTags: 3,
		ContextTags:       schema.ContextTags(),
	}
}

// Instructions renders the rule text sent as the first preamble turn.
func (r RuleSet) Instructions() string {
	tags := make([]string, len(r.ContextTags))
	for i, t := range r.ContextTags {
		tags[i] = "'" + string(t) + "'"
	}

	var b strings.Builder
	b.WriteString("You are the Zero-Based Inbox Processor. Transform unstructured input into structured, actionable output ")
	b.WriteString("by strictly following the Minimalist Rules.\n\n")
	b.WriteString("MINIMALIST RULES:\n")
	fmt.Fprintf(&b, "1. MAX PRIORITY LIMIT: at most %d tasks may be 'high' priority per session. "+
		"If the input implies more, downgrade the less urgent ones to 'medium' or 'low'.\n", r.MaxHighPriority)
	fmt.Fprintf(&b, "2. MANDATORY TAGGING: every task gets exactly ONE context_tag from: %s.\n", strings.Join(tags, ", "))
	fmt.Fprintf(&b, "3. NOTE SYNTHESIS LIMIT: at most %d summary bullets and %d conceptual tags. Be ruthless in your conciseness.\n\n",
		r.MaxSummaryBullets, r.MaxConceptualTags)
	b.WriteString("INSTRUCTION FLOW:\n")
	b.WriteString("1. Decide whether the input is an action (task) or long-form information (note).\n")
	fmt.Fprintf(&b, "2. Call exactly one tool: %s for tasks or %s for notes.\n", schema.ToolTaskCategorizer, schema.ToolNoteSynthesizer)
	b.WriteString("3. If a note contains an actionable follow-up, put it in embedded_task; it will be categorized separately.\n")
	b.WriteString("4. Only output tool calls. No conversational filler.")
	return b.String()
}

// HandoffPrompt builds the prompt that re-dispatches an embedded task.
func (r RuleSet) HandoffPrompt(embeddedTask string) string {
	return fmt.Sprintf("Process this embedded task using the %s: %s. Remember the minimalist rules.",
		schema.ToolTaskCategorizer, strings.TrimSpace(embeddedTask))
}
