// Package audit keeps an append-only trail of every process event the
// engine consumes, one row per event id.
package audit

import (
	"encoding/json"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/uptrace/bun"

	"github.com/ripkitten-co/procview"
	"github.com/ripkitten-co/procview/events"
)

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

// Table is the audit trail table.
const Table = "procview_audit_events"

// Record is one audited event. Records are never updated.
type Record struct {
	bun.BaseModel `bun:"table:procview_audit_events,alias:r"`

	ID                      string          `bun:"id,pk"`
	EventType               string          `bun:"event_type,notnull"`
	EntityKind              string          `bun:"entity_kind,notnull"`
	EntityID                string          `bun:"entity_id"`
	Timestamp               time.Time       `bun:"timestamp,notnull"`
	SequenceNumber          int             `bun:"sequence_number"`
	MessageID               string          `bun:"message_id"`
	ProcessInstanceID       string          `bun:"process_instance_id"`
	ParentProcessInstanceID string          `bun:"parent_process_instance_id"`
	ProcessDefinitionID     string          `bun:"process_definition_id"`
	ProcessDefinitionKey    string          `bun:"process_definition_key"`
	BusinessKey             string          `bun:"business_key"`
	AppName                 string          `bun:"app_name"`
	AppVersion              string          `bun:"app_version"`
	ServiceName             string          `bun:"service_name"`
	ServiceFullName         string          `bun:"service_full_name"`
	ServiceType             string          `bun:"service_type"`
	ServiceVersion          string          `bun:"service_version"`
	Entity                  json.RawMessage `bun:"entity,type:jsonb"`
	// PreviousValue is only set for VARIABLE_UPDATED.
	PreviousValue json.RawMessage `bun:"previous_value,type:jsonb,nullzero"`
}

// FromEvent builds the audit record of evt.
func FromEvent(evt events.Event) (*Record, error) {
	entity, err := marshalEntity(evt.Entity)
	if err != nil {
		return nil, fmt.Errorf("audit: encode %s: %v: %w", evt.ID, err, procview.ErrValidation)
	}

	r := &Record{
		ID:                      evt.ID,
		EventType:               string(evt.Type),
		EntityKind:              string(events.KindOf(evt.Type)),
		EntityID:                evt.EntityID,
		Timestamp:               evt.Timestamp.UTC(),
		SequenceNumber:          evt.SequenceNumber,
		MessageID:               evt.MessageID,
		ProcessInstanceID:       evt.Process.ProcessInstanceID,
		ParentProcessInstanceID: evt.Process.ParentProcessInstanceID,
		ProcessDefinitionID:     evt.Process.ProcessDefinitionID,
		ProcessDefinitionKey:    evt.Process.ProcessDefinitionKey,
		BusinessKey:             evt.Process.BusinessKey,
		AppName:                 evt.Producer.AppName,
		AppVersion:              evt.Producer.AppVersion,
		ServiceName:             evt.Producer.ServiceName,
		ServiceFullName:         evt.Producer.ServiceFullName,
		ServiceType:             evt.Producer.ServiceType,
		ServiceVersion:          evt.Producer.ServiceVersion,
		Entity:                  entity,
	}

	if evt.Type == events.VariableUpdated {
		if v, ok := evt.Entity.(*events.Variable); ok && v.PreviousValue != nil {
			prev, err := codec.Marshal(v.PreviousValue)
			if err != nil {
				return nil, fmt.Errorf("audit: encode previous value %s: %v: %w", evt.ID, err, procview.ErrValidation)
			}
			r.PreviousValue = prev
		}
	}
	return r, nil
}

func marshalEntity(e events.Entity) (json.RawMessage, error) {
	switch e := e.(type) {
	case nil:
		return json.RawMessage("null"), nil
	case events.Raw:
		return json.RawMessage(e), nil
	}
	return codec.Marshal(e)
}
