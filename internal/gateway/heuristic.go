package gateway

import (
	"context"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/fyrsmithlabs/inboxd/internal/schema"
)

// HeuristicGateway classifies input with keyword rules. It needs no network
// access and is deterministic for a fixed clock, which makes it the default
// backend for local use and the reference backend in end-to-end tests.
type HeuristicGateway struct {
	now func() time.Time

	noteMinSentences int
	noteMinWords     int
}

// HeuristicOption configures a HeuristicGateway.
type HeuristicOption func(*HeuristicGateway)

// WithClock sets the clock used to resolve relative due dates.
func WithClock(now func() time.Time) HeuristicOption {
	return func(h *HeuristicGateway) { h.now = now }
}

// NewHeuristicGateway creates the keyword backend.
func NewHeuristicGateway(opts ...HeuristicOption) *HeuristicGateway {
	h := &HeuristicGateway{
		now:              time.Now,
		noteMinSentences: 3,
		noteMinWords:     40,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type keywordRule struct {
	label string
	words []string
}

var (
	contextRules = []keywordRule{
		{string(schema.TagWork), []string{"work", "report", "meeting", "client", "project", "deadline", "team", "presentation", "q1", "q2", "q3", "q4", "office", "manager"}},
		{string(schema.TagPersonal), []string{"personal", "home", "family", "doctor", "dentist", "gym", "birthday", "grocery", "groceries", "friend", "mom", "dad", "vacation"}},
		{string(schema.TagLearning), []string{"learn", "learning", "study", "course", "book", "tutorial", "article", "research", "read", "lecture", "paper"}},
		{string(schema.TagFinance), []string{"finance", "budget", "invoice", "tax", "taxes", "pay", "bill", "bills", "expense", "expenses", "bank", "salary", "rent", "payment"}},
	}

	conceptRules = []keywordRule{
		{"RAG Systems", []string{"rag", "retrieval"}},
		{"Vector Databases", []string{"vector", "embedding", "embeddings"}},
		{"System Architecture", []string{"architecture", "design"}},
		{"Scalability", []string{"scaling", "scale", "scalability", "performance", "efficiency"}},
		{"Budgeting", []string{"budget", "budgets", "cost", "costs", "spend"}},
		{"Marketing", []string{"marketing", "campaign", "brand"}},
		{"Future of Work", []string{"remote", "hybrid", "workplace"}},
		{"Artificial Intelligence", []string{"ai", "llm", "model", "models"}},
		{"Hiring", []string{"hiring", "recruiting", "candidate", "candidates"}},
	}

	highPriorityPhrases = []string{"high priority", "urgent", "asap", "critical", "immediately", "top priority"}
	lowPriorityPhrases  = []string{"low priority", "someday", "eventually", "when possible", "no rush", "whenever"}

	deleteWords   = []string{"cancel", "delete", "remove", "drop", "unsubscribe", "discard"}
	delegateWords = []string{"delegate", "assign", "ask", "forward", "hand"}
	deferWords    = []string{"later", "defer", "postpone", "someday", "eventually"}

	embeddedTaskPattern = regexp.MustCompile(`(?i)\b(?:need to|needs to|have to|has to|must|should|todo:?|action item:?)\s+(.+)`)
	followUpPattern     = regexp.MustCompile(`(?i)\b(follow up\b.+)`)
	handoffPattern      = regexp.MustCompile(`(?is)^process this embedded task using the \w+:\s*(.+?)\.?\s*remember the minimalist rules\.?$`)
	isoDatePattern      = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2})\b`)
	sentenceSplit       = regexp.MustCompile(`[.!?\n]+`)
)

// Extract implements Gateway.
func (h *HeuristicGateway) Extract(ctx context.Context, req Request) Outcome {
	if err := ctx.Err(); err != nil {
		return Failed(classifyError(ctx, err), err)
	}

	text := strings.TrimSpace(req.Prompt)
	if m := handoffPattern.FindStringSubmatch(text); m != nil {
		text = strings.TrimSpace(m[1])
	}
	if text == "" {
		return NoStructuredOutput("Nothing to process.")
	}

	allowTask, allowNote := req.Allows(schema.KindTask), req.Allows(schema.KindNote)
	switch {
	case allowNote && (!allowTask || h.looksLikeNote(text)):
		return SchemaSelected(schema.KindNote, "", h.noteFields(text))
	case allowTask:
		return SchemaSelected(schema.KindTask, "", h.taskFields(text))
	}
	return NoStructuredOutput("No tool available for this input.")
}

func (h *HeuristicGateway) looksLikeNote(text string) bool {
	return len(sentences(text)) >= h.noteMinSentences || len(strings.Fields(text)) > h.noteMinWords
}

func (h *HeuristicGateway) taskFields(text string) map[string]any {
	lower := strings.ToLower(text)
	tokens := tokenSet(lower)

	fields := map[string]any{
		schema.FieldRawTaskText: text,
		schema.FieldAction:      string(classifyAction(tokens)),
		schema.FieldPriority:    string(classifyPriority(lower)),
		schema.FieldContextTag:  bestMatch(contextRules, tokens, string(schema.TagWork)),
	}
	if due := h.dueDate(lower); due != "" {
		fields[schema.FieldDueDate] = due
	}
	return fields
}

func (h *HeuristicGateway) noteFields(text string) map[string]any {
	parts := sentences(text)
	label := sourceLabel(parts[0])

	bullets := make([]any, 0, len(parts))
	for i, s := range parts {
		if i == 0 {
			if _, rest, ok := strings.Cut(s, ":"); ok {
				s = strings.TrimSpace(rest)
			}
		}
		if s != "" {
			bullets = append(bullets, s)
		}
	}

	tokens := tokenSet(strings.ToLower(text))
	var concepts []any
	for _, rule := range conceptRules {
		if matchCount(rule.words, tokens) > 0 {
			concepts = append(concepts, rule.label)
		}
	}
	if concepts == nil {
		concepts = []any{}
	}

	fields := map[string]any{
		schema.FieldOriginalSource: label,
		schema.FieldSummaryBullets: bullets,
		schema.FieldConceptualTags: concepts,
	}
	if task := embeddedTask(parts); task != "" {
		fields[schema.FieldEmbeddedTask] = task
	}
	return fields
}

// dueDate resolves an ISO date, "today", "tomorrow" or a weekday name to
// YYYY-MM-DD.
func (h *HeuristicGateway) dueDate(lower string) string {
	if m := isoDatePattern.FindStringSubmatch(lower); m != nil {
		return m[1]
	}

	now := h.now()
	tokens := tokenSet(lower)
	if tokens["today"] || tokens["tonight"] {
		return now.Format(schema.DateLayout)
	}
	if tokens["tomorrow"] {
		return now.AddDate(0, 0, 1).Format(schema.DateLayout)
	}
	for d := time.Sunday; d <= time.Saturday; d++ {
		if tokens[strings.ToLower(d.String())] {
			ahead := (int(d) - int(now.Weekday()) + 7) % 7
			if ahead == 0 {
				ahead = 7
			}
			return now.AddDate(0, 0, ahead).Format(schema.DateLayout)
		}
	}
	return ""
}

func classifyAction(tokens map[string]bool) schema.Action {
	switch {
	case matchCount(deleteWords, tokens) > 0:
		return schema.ActionDelete
	case matchCount(delegateWords, tokens) > 0:
		return schema.ActionDelegate
	case matchCount(deferWords, tokens) > 0:
		return schema.ActionDefer
	}
	return schema.ActionDo
}

func classifyPriority(lower string) schema.Priority {
	for _, p := range highPriorityPhrases {
		if strings.Contains(lower, p) {
			return schema.PriorityHigh
		}
	}
	for _, p := range lowPriorityPhrases {
		if strings.Contains(lower, p) {
			return schema.PriorityLow
		}
	}
	return schema.PriorityMedium
}

// bestMatch returns the label of the rule with the most keyword hits. Ties go
// to the earlier rule.
func bestMatch(rules []keywordRule, tokens map[string]bool, fallback string) string {
	best, bestCount := fallback, 0
	for _, rule := range rules {
		if n := matchCount(rule.words, tokens); n > bestCount {
			best, bestCount = rule.label, n
		}
	}
	return best
}

func matchCount(words []string, tokens map[string]bool) int {
	n := 0
	for _, w := range words {
		if tokens[w] {
			n++
		}
	}
	return n
}

func tokenSet(lower string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		set[tok] = true
	}
	return set
}

func sentences(text string) []string {
	var out []string
	for _, s := range sentenceSplit.Split(text, -1) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if out == nil {
		out = []string{strings.TrimSpace(text)}
	}
	return out
}

// sourceLabel uses the text before a colon when the first sentence has one,
// otherwise its first six words.
func sourceLabel(first string) string {
	if label, _, ok := strings.Cut(first, ":"); ok && len(label) <= 60 && strings.TrimSpace(label) != "" {
		return strings.TrimSpace(label)
	}
	words := strings.Fields(first)
	if len(words) > 6 {
		words = words[:6]
	}
	return strings.Join(words, " ")
}

func embeddedTask(parts []string) string {
	for _, s := range parts {
		m := embeddedTaskPattern.FindStringSubmatch(s)
		if m == nil {
			m = followUpPattern.FindStringSubmatch(s)
		}
		if m != nil {
			return capitalize(strings.TrimSpace(m[1]))
		}
	}
	return ""
}

func capitalize(s string) string {
	for i, r := range s {
		return string(unicode.ToUpper(r)) + s[i+len(string(r)):]
	}
	return s
}
