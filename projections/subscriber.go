package projections

import (
	"context"

	"github.com/ripkitten-co/procview/events"
)

// Subscriber consumes the journal under its own checkpoint. The daemon runs
// one worker per subscriber.
type Subscriber interface {
	Name() string
	EventTypes() []events.Type
	Process(ctx context.Context, evts []events.Event) error
}

// Resetter is implemented by subscribers whose read model can be wiped
// before a rebuild.
type Resetter interface {
	Reset(ctx context.Context) error
}
