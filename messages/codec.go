package messages

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"github.com/ripkitten-co/procview/events"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func encodeGroup(g *Group) ([]byte, error) {
	data, err := json.Marshal(g)
	if err != nil {
		return nil, fmt.Errorf("messages: encode group %s: %w", g.ID, err)
	}
	return data, nil
}

func decodeGroup(id string, data []byte) (*Group, error) {
	g := &Group{}
	if err := json.Unmarshal(data, g); err != nil {
		return nil, fmt.Errorf("messages: decode group %s: %w", id, err)
	}
	g.ID = id
	return g, nil
}

// encodeEvents stores the outcome of an applied update in wire form.
func encodeEvents(evts []events.Event) ([]byte, error) {
	raws := make([]jsoniter.RawMessage, 0, len(evts))
	for _, evt := range evts {
		raw, err := events.Encode(evt)
		if err != nil {
			return nil, err
		}
		raws = append(raws, raw)
	}
	return json.Marshal(raws)
}

func decodeEvents(data []byte) ([]events.Event, error) {
	return events.DecodeBatch(data)
}
