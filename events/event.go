// Package events defines the event envelope consumed by the projection
// engine, the closed set of event types and their payloads, and the
// PostgreSQL journal events travel through.
package events

import (
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/ripkitten-co/procview"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Producer identifies the service that emitted an event. It is copied into
// every projected and audit record.
type Producer struct {
	AppName         string `json:"appName,omitempty"`
	AppVersion      string `json:"appVersion,omitempty"`
	ServiceName     string `json:"serviceName,omitempty"`
	ServiceFullName string `json:"serviceFullName,omitempty"`
	ServiceType     string `json:"serviceType,omitempty"`
	ServiceVersion  string `json:"serviceVersion,omitempty"`
}

// ProcessContext is the process an event belongs to, when any.
type ProcessContext struct {
	ProcessInstanceID        string `json:"processInstanceId,omitempty"`
	ParentProcessInstanceID  string `json:"parentProcessInstanceId,omitempty"`
	ProcessDefinitionID      string `json:"processDefinitionId,omitempty"`
	ProcessDefinitionKey     string `json:"processDefinitionKey,omitempty"`
	ProcessDefinitionVersion int    `json:"processDefinitionVersion,omitempty"`
	BusinessKey              string `json:"businessKey,omitempty"`
}

// Event is an immutable, decoded event. Entity holds the typed payload.
type Event struct {
	ID             string
	Type           Type
	Timestamp      time.Time
	EntityID       string
	Entity         Entity
	Producer       Producer
	Process        ProcessContext
	SequenceNumber int
	MessageID      string

	// GlobalPosition is assigned by the journal.
	GlobalPosition int64
}

type wireEvent struct {
	ID             string              `json:"id"`
	EventType      Type                `json:"eventType"`
	Timestamp      int64               `json:"timestamp"`
	EntityID       string              `json:"entityId,omitempty"`
	Entity         jsoniter.RawMessage `json:"entity,omitempty"`
	SequenceNumber int                 `json:"sequenceNumber,omitempty"`
	MessageID      string              `json:"messageId,omitempty"`
	Producer
	ProcessContext
}

// Decode parses one event from its wire form. The payload is decoded into
// the entity type registered for the event type; unknown types keep the raw
// payload so the dispatcher can skip them.
func Decode(data []byte) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return Event{}, fmt.Errorf("events: decode: %v: %w", err, procview.ErrValidation)
	}
	if w.ID == "" {
		return Event{}, fmt.Errorf("events: decode: missing id: %w", procview.ErrValidation)
	}
	if w.EventType == "" {
		return Event{}, fmt.Errorf("events: decode %s: missing eventType: %w", w.ID, procview.ErrValidation)
	}

	evt := Event{
		ID:             w.ID,
		Type:           w.EventType,
		Timestamp:      time.UnixMilli(w.Timestamp).UTC(),
		EntityID:       w.EntityID,
		Producer:       w.Producer,
		Process:        w.ProcessContext,
		SequenceNumber: w.SequenceNumber,
		MessageID:      w.MessageID,
	}

	kind := KindOf(w.EventType)
	if kind == KindUnknown {
		evt.Entity = Raw(w.Entity)
		return evt, nil
	}

	entity := newEntity(kind)
	if len(w.Entity) == 0 {
		return Event{}, fmt.Errorf("events: decode %s %s: missing entity: %w", w.EventType, w.ID, procview.ErrValidation)
	}
	if err := json.Unmarshal(w.Entity, entity); err != nil {
		return Event{}, fmt.Errorf("events: decode %s %s: entity: %v: %w", w.EventType, w.ID, err, procview.ErrValidation)
	}
	if err := entity.Validate(); err != nil {
		return Event{}, fmt.Errorf("events: decode %s %s: %w", w.EventType, w.ID, err)
	}
	evt.Entity = entity
	return evt, nil
}

// DecodeBatch decodes a JSON array of events.
func DecodeBatch(data []byte) ([]Event, error) {
	var raws []jsoniter.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("events: decode batch: %v: %w", err, procview.ErrValidation)
	}
	out := make([]Event, 0, len(raws))
	for i, raw := range raws {
		evt, err := Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("events: decode batch: item %d: %w", i, err)
		}
		out = append(out, evt)
	}
	return out, nil
}

// Encode renders evt in its wire form.
func Encode(evt Event) ([]byte, error) {
	w := wireEvent{
		ID:             evt.ID,
		EventType:      evt.Type,
		Timestamp:      evt.Timestamp.UnixMilli(),
		EntityID:       evt.EntityID,
		SequenceNumber: evt.SequenceNumber,
		MessageID:      evt.MessageID,
		Producer:       evt.Producer,
		ProcessContext: evt.Process,
	}
	switch e := evt.Entity.(type) {
	case nil:
	case Raw:
		w.Entity = jsoniter.RawMessage(e)
	default:
		data, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("events: encode %s %s: %w", evt.Type, evt.ID, err)
		}
		w.Entity = data
	}
	return json.Marshal(w)
}

// Payload returns the event's entity as T, or a validation error when the
// event carries a different payload kind. Events of an unknown type report
// ErrUnknownEventType.
func Payload[T Entity](evt Event) (T, error) {
	e, ok := evt.Entity.(T)
	if !ok {
		var zero T
		if _, raw := evt.Entity.(Raw); raw {
			return zero, fmt.Errorf("events: %s %s: %w", evt.Type, evt.ID, procview.ErrUnknownEventType)
		}
		return zero, fmt.Errorf("events: %s %s: unexpected payload %T: %w", evt.Type, evt.ID, evt.Entity, procview.ErrValidation)
	}
	return e, nil
}
