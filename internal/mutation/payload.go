package mutation

import (
	"encoding/json"
	"strings"

	"dealsync/internal/services"
)

// EvaluationUpdate changes fields on an existing evaluation.
type EvaluationUpdate struct {
	EvaluationID string         `json:"evaluationId"`
	Fields       map[string]any `json:"fields"`
}

// NoteCreate records a note against a deal. The client assigns the note id
// so replays after an interrupted sync do not duplicate rows.
type NoteCreate struct {
	NoteID  string `json:"noteId"`
	DealID  string `json:"dealId"`
	Body    string `json:"body"`
	Author  string `json:"author,omitempty"`
	Created string `json:"createdAt,omitempty"`
}

// ChecklistUpdate writes the state of a checklist item.
type ChecklistUpdate struct {
	ItemID  string `json:"itemId"`
	DealID  string `json:"dealId"`
	Label   string `json:"label,omitempty"`
	Checked bool   `json:"checked"`
}

// LeadUpdate changes fields on an existing lead.
type LeadUpdate struct {
	LeadID string         `json:"leadId"`
	Fields map[string]any `json:"fields"`
}

// DealUpdate changes fields on an existing deal.
type DealUpdate struct {
	DealID string         `json:"dealId"`
	Fields map[string]any `json:"fields"`
}

// ReachTransition moves an outreach record between stages. LeadID, when
// present, names the lead the reach belongs to and is resolved before the
// transition is applied.
type ReachTransition struct {
	ReachID string         `json:"reachId"`
	LeadID  string         `json:"leadId,omitempty"`
	Stage   string         `json:"stage"`
	Fields  map[string]any `json:"fields,omitempty"`
}

// ReachInteraction appends a contact event to an outreach record.
type ReachInteraction struct {
	InteractionID string `json:"interactionId"`
	ReachID       string `json:"reachId"`
	Channel       string `json:"channel"`
	Summary       string `json:"summary,omitempty"`
	OccurredAt    string `json:"occurredAt,omitempty"`
}

// Encode serializes a payload for queueing.
func Encode(payload any) (json.RawMessage, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "mutation", "encode payload", "", err)
	}
	return data, nil
}

func decode[T any](kind Kind, raw json.RawMessage) (T, error) {
	var payload T
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&payload); err != nil {
		return payload, services.Wrap(services.ErrValidation, "mutation", "decode payload", "kind "+kind.String(), err)
	}
	return payload, nil
}

func requireField(kind Kind, name, value string) error {
	if strings.TrimSpace(value) == "" {
		return services.Wrap(services.ErrValidation, "mutation", "validate payload", kind.String()+" missing "+name, nil)
	}
	return nil
}
