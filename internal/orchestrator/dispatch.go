package orchestrator

import (
	"github.com/fyrsmithlabs/inboxd/internal/rules"
	"github.com/fyrsmithlabs/inboxd/internal/schema"
)

// maxHandoffDepth bounds hand-off chains. A record produced by a hand-off is
// never handed off again.
const maxHandoffDepth = 1

// handoffRoutes lists, per record kind, the schemas a hand-off may use.
var handoffRoutes = map[schema.Kind][]schema.Kind{
	schema.KindNote: {schema.KindTask},
	schema.KindTask: nil,
}

// handoff is a follow-up extraction derived from a finalized record.
type handoff struct {
	prompt  string
	allowed []schema.Kind
}

// nextHandoff returns the hand-off a record triggers, if any.
func nextHandoff(rs rules.RuleSet, rec schema.Record, depth int) (handoff, bool) {
	if rec == nil || depth >= maxHandoffDepth {
		return handoff{}, false
	}
	targets := handoffRoutes[rec.Kind()]
	if len(targets) == 0 {
		return handoff{}, false
	}

	switch r := rec.(type) {
	case *schema.NoteRecord:
		if !r.HasEmbeddedTask() {
			return handoff{}, false
		}
		return handoff{prompt: rs.HandoffPrompt(*r.EmbeddedTask), allowed: targets}, true
	}
	return handoff{}, false
}
