package mutation

import (
	"context"
	"log/slog"

	"dealsync/internal/logging"
	"dealsync/internal/services"
	"dealsync/internal/store"
)

// Backend is the slice of the platform client the dispatcher drives.
type Backend interface {
	UpdateEvaluation(ctx context.Context, id string, fields map[string]any) error
	CreateNote(ctx context.Context, note map[string]any) error
	UpsertChecklist(ctx context.Context, item map[string]any) error
	UpdateLead(ctx context.Context, id string, fields map[string]any) error
	UpdateDeal(ctx context.Context, id string, fields map[string]any) error
	TransitionReach(ctx context.Context, id, stage string, fields map[string]any) error
	RecordReachInteraction(ctx context.Context, interaction map[string]any) error
	GetDeal(ctx context.Context, id string) (map[string]any, error)
	GetLead(ctx context.Context, id string) (map[string]any, error)
}

// Dispatcher decodes queued mutations and replays them against the backend.
type Dispatcher struct {
	backend Backend
	logger  *slog.Logger
}

// NewDispatcher wires a dispatcher to the backend client.
func NewDispatcher(backend Backend, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Dispatcher{backend: backend, logger: logger.With(logging.String(logging.FieldComponent, "mutation"))}
}

// Apply replays one queued mutation. Validation failures, including unknown
// kinds and missing parents, are not retryable and must be surfaced to the
// user rather than requeued.
func (d *Dispatcher) Apply(ctx context.Context, item store.Mutation) error {
	kind, err := ParseKind(item.Kind)
	if err != nil {
		return err
	}
	d.logger.Debug("applying mutation",
		logging.String(logging.FieldMutationKind, kind.String()),
		logging.String(logging.FieldItemID, item.ID))

	switch kind {
	case KindEvaluationUpdate:
		payload, err := decode[EvaluationUpdate](kind, item.Payload)
		if err != nil {
			return err
		}
		if err := requireField(kind, "evaluationId", payload.EvaluationID); err != nil {
			return err
		}
		return d.backend.UpdateEvaluation(ctx, payload.EvaluationID, payload.Fields)

	case KindNoteCreate:
		payload, err := decode[NoteCreate](kind, item.Payload)
		if err != nil {
			return err
		}
		if err := requireField(kind, "noteId", payload.NoteID); err != nil {
			return err
		}
		if err := requireField(kind, "dealId", payload.DealID); err != nil {
			return err
		}
		// The note references its deal; a vanished parent means the queue
		// entry is stale and should fail as validation, not loop forever.
		if _, err := d.backend.GetDeal(ctx, payload.DealID); err != nil {
			return err
		}
		note := map[string]any{
			"id":      payload.NoteID,
			"deal_id": payload.DealID,
			"body":    payload.Body,
		}
		if payload.Author != "" {
			note["author"] = payload.Author
		}
		if payload.Created != "" {
			note["created_at"] = payload.Created
		}
		return d.backend.CreateNote(ctx, note)

	case KindChecklistUpdate:
		payload, err := decode[ChecklistUpdate](kind, item.Payload)
		if err != nil {
			return err
		}
		if err := requireField(kind, "itemId", payload.ItemID); err != nil {
			return err
		}
		item := map[string]any{
			"id":      payload.ItemID,
			"deal_id": payload.DealID,
			"checked": payload.Checked,
		}
		if payload.Label != "" {
			item["label"] = payload.Label
		}
		return d.backend.UpsertChecklist(ctx, item)

	case KindLeadUpdate:
		payload, err := decode[LeadUpdate](kind, item.Payload)
		if err != nil {
			return err
		}
		if err := requireField(kind, "leadId", payload.LeadID); err != nil {
			return err
		}
		return d.backend.UpdateLead(ctx, payload.LeadID, payload.Fields)

	case KindDealUpdate:
		payload, err := decode[DealUpdate](kind, item.Payload)
		if err != nil {
			return err
		}
		if err := requireField(kind, "dealId", payload.DealID); err != nil {
			return err
		}
		return d.backend.UpdateDeal(ctx, payload.DealID, payload.Fields)

	case KindReachTransition:
		payload, err := decode[ReachTransition](kind, item.Payload)
		if err != nil {
			return err
		}
		if err := requireField(kind, "reachId", payload.ReachID); err != nil {
			return err
		}
		if err := requireField(kind, "stage", payload.Stage); err != nil {
			return err
		}
		// Same staleness rule as notes: a reach whose lead disappeared fails
		// as validation instead of retrying.
		if payload.LeadID != "" {
			if _, err := d.backend.GetLead(ctx, payload.LeadID); err != nil {
				return err
			}
		}
		return d.backend.TransitionReach(ctx, payload.ReachID, payload.Stage, payload.Fields)

	case KindReachInteraction:
		payload, err := decode[ReachInteraction](kind, item.Payload)
		if err != nil {
			return err
		}
		if err := requireField(kind, "interactionId", payload.InteractionID); err != nil {
			return err
		}
		if err := requireField(kind, "reachId", payload.ReachID); err != nil {
			return err
		}
		interaction := map[string]any{
			"id":       payload.InteractionID,
			"reach_id": payload.ReachID,
			"channel":  payload.Channel,
		}
		if payload.Summary != "" {
			interaction["summary"] = payload.Summary
		}
		if payload.OccurredAt != "" {
			interaction["occurred_at"] = payload.OccurredAt
		}
		return d.backend.RecordReachInteraction(ctx, interaction)
	}

	return services.Wrap(services.ErrValidation, "mutation", "dispatch", "unhandled mutation kind "+kind.String(), nil)
}
