package mutation

import (
	"fmt"

	"dealsync/internal/services"
)

// Kind names a queued write operation. The set is closed: the dispatcher
// rejects anything outside it instead of guessing.
type Kind string

const (
	KindEvaluationUpdate Kind = "evaluation_update"
	KindNoteCreate       Kind = "note_create"
	KindChecklistUpdate  Kind = "checklist_update"
	KindLeadUpdate       Kind = "lead_update"
	KindDealUpdate       Kind = "deal_update"
	KindReachTransition  Kind = "reach_transition"
	KindReachInteraction Kind = "reach_interaction"
)

// Kinds lists every dispatchable kind in a stable order.
func Kinds() []Kind {
	return []Kind{
		KindEvaluationUpdate,
		KindNoteCreate,
		KindChecklistUpdate,
		KindLeadUpdate,
		KindDealUpdate,
		KindReachTransition,
		KindReachInteraction,
	}
}

// ParseKind validates a stored kind string.
func ParseKind(value string) (Kind, error) {
	kind := Kind(value)
	switch kind {
	case KindEvaluationUpdate, KindNoteCreate, KindChecklistUpdate,
		KindLeadUpdate, KindDealUpdate, KindReachTransition, KindReachInteraction:
		return kind, nil
	default:
		return "", services.Wrap(services.ErrValidation, "mutation", "parse kind", fmt.Sprintf("unknown mutation kind %q", value), nil)
	}
}

func (k Kind) String() string { return string(k) }
