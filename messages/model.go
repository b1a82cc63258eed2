package messages

import "github.com/ripkitten-co/procview/events"

// Flow element types that can subscribe a deployed definition to a message.
const (
	StartEventType    = "startEvent"
	BoundaryEventType = "boundaryEvent"
)

// StartMessage is a message name a deployed definition listens for and the
// element declaring it. StartsInstance is set for message start events at
// the top level of the model; boundary events and starts nested in
// subprocesses or event subprocesses only fire inside a running instance
// and correlate through its catch subscriptions.
type StartMessage struct {
	Name           string
	ElementID      string
	StartsInstance bool
}

// StartMessages walks def, including subprocesses and event subprocesses,
// and returns each distinct message name of its message start and boundary
// events once, in model order. A name declared by a top-level start event
// reports that element.
func StartMessages(def *events.ProcessDefinition) []StartMessage {
	var out []StartMessage
	index := make(map[string]int)
	var walk func(els []events.FlowElement, top bool)
	walk = func(els []events.FlowElement, top bool) {
		for _, el := range els {
			if el.MessageName != "" && (el.Type == StartEventType || el.Type == BoundaryEventType) {
				starts := top && el.Type == StartEventType
				i, seen := index[el.MessageName]
				switch {
				case !seen:
					index[el.MessageName] = len(out)
					out = append(out, StartMessage{Name: el.MessageName, ElementID: el.ID, StartsInstance: starts})
				case starts && !out[i].StartsInstance:
					out[i].ElementID = el.ID
					out[i].StartsInstance = true
				}
			}
			walk(el.Elements, false)
		}
	}
	walk(def.Elements, true)
	return out
}
