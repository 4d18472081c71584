package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"dealsync/internal/services"
)

// preferReturnRepresentation asks PostgREST to echo the affected rows so the
// caller can confirm the write actually matched something.
var preferReturnRepresentation = map[string]string{"Prefer": "return=representation"}

func (c *Client) restTable(table string) string {
	return c.restURL + "/" + table
}

func eqFilter(table, column, value string) string {
	return fmt.Sprintf("%s?%s=eq.%s", table, column, url.QueryEscape(value))
}

// patchByID updates the row matching id and fails with a validation error
// when no row matched, so a stale queue entry surfaces instead of silently
// writing nothing.
func (c *Client) patchByID(ctx context.Context, table, id string, fields any) error {
	var rows []json.RawMessage
	target := c.restURL + "/" + eqFilter(table, "id", id)
	if err := c.doJSON(ctx, "PATCH", target, preferReturnRepresentation, fields, &rows); err != nil {
		return err
	}
	if len(rows) == 0 {
		return services.Wrap(services.ErrValidation, "backend", "update "+table, "no row matched id "+id, nil)
	}
	return nil
}

// UpdateEvaluation applies evaluation field changes.
func (c *Client) UpdateEvaluation(ctx context.Context, id string, fields map[string]any) error {
	return c.patchByID(ctx, "evaluations", id, fields)
}

// CreateNote inserts a note row. The note carries its client-generated id so
// a replay after a dropped response stays idempotent server-side.
func (c *Client) CreateNote(ctx context.Context, note map[string]any) error {
	headers := map[string]string{"Prefer": "return=minimal,resolution=merge-duplicates"}
	return c.doJSON(ctx, "POST", c.restTable("notes"), headers, note, nil)
}

// UpsertChecklist writes checklist item state keyed by its id.
func (c *Client) UpsertChecklist(ctx context.Context, item map[string]any) error {
	headers := map[string]string{"Prefer": "return=minimal,resolution=merge-duplicates"}
	return c.doJSON(ctx, "POST", c.restTable("checklist_items"), headers, item, nil)
}

// UpdateLead applies lead field changes.
func (c *Client) UpdateLead(ctx context.Context, id string, fields map[string]any) error {
	return c.patchByID(ctx, "leads", id, fields)
}

// UpdateDeal applies deal field changes.
func (c *Client) UpdateDeal(ctx context.Context, id string, fields map[string]any) error {
	return c.patchByID(ctx, "deals", id, fields)
}

// TransitionReach moves an outreach record to a new stage.
func (c *Client) TransitionReach(ctx context.Context, id, stage string, fields map[string]any) error {
	payload := map[string]any{"stage": stage}
	for key, value := range fields {
		payload[key] = value
	}
	return c.patchByID(ctx, "reaches", id, payload)
}

// RecordReachInteraction appends an interaction event to an outreach record.
func (c *Client) RecordReachInteraction(ctx context.Context, interaction map[string]any) error {
	headers := map[string]string{"Prefer": "return=minimal,resolution=merge-duplicates"}
	return c.doJSON(ctx, "POST", c.restTable("reach_interactions"), headers, interaction, nil)
}

// GetDeal fetches a deal by id; a missing deal returns a validation error.
func (c *Client) GetDeal(ctx context.Context, id string) (map[string]any, error) {
	return c.getByID(ctx, "deals", id)
}

// GetLead fetches a lead by id; a missing lead returns a validation error.
func (c *Client) GetLead(ctx context.Context, id string) (map[string]any, error) {
	return c.getByID(ctx, "leads", id)
}

func (c *Client) getByID(ctx context.Context, table, id string) (map[string]any, error) {
	var rows []map[string]any
	target := c.restURL + "/" + eqFilter(table, "id", id) + "&limit=1"
	if err := c.doJSON(ctx, "GET", target, nil, nil, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, services.Wrap(services.ErrValidation, "backend", "fetch "+table, "no row matched id "+id, nil)
	}
	return rows[0], nil
}
