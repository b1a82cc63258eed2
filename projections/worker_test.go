package projections

import (
	"errors"
	"testing"

	"github.com/ripkitten-co/procview/events"
)

func TestFailedEvents(t *testing.T) {
	batch := []events.Event{
		{ID: "e1", GlobalPosition: 1},
		{ID: "e2", GlobalPosition: 2},
		{ID: "e3", GlobalPosition: 3},
	}
	cause := errors.New("no such task")

	t.Run("dispatch error narrows", func(t *testing.T) {
		err := &DispatchError{Failures: []*EventError{{EventID: "e2", Err: cause}}}
		got := failedEvents(batch, err)
		if len(got) != 1 || got[0].ID != "e2" {
			t.Fatalf("got %+v", got)
		}
		if !errors.Is(causeOf(got[0], err), cause) {
			t.Error("cause not attributed to e2")
		}
	})

	t.Run("other error fails all", func(t *testing.T) {
		got := failedEvents(batch, cause)
		if len(got) != 3 {
			t.Fatalf("got %d, want 3", len(got))
		}
		if causeOf(got[0], cause) != cause {
			t.Error("cause should be the batch error")
		}
	})
}

func TestLockHash_StablePerName(t *testing.T) {
	if lockHash("query") != lockHash("query") {
		t.Error("hash differs for the same name")
	}
	if lockHash("query") == lockHash("audit") {
		t.Error("distinct subscribers share a lock id")
	}
}
