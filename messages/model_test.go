package messages_test

import (
	"testing"

	"github.com/ripkitten-co/procview/events"
	"github.com/ripkitten-co/procview/messages"
)

func TestStartMessages(t *testing.T) {
	def := &events.ProcessDefinition{
		ID:  "loan:3",
		Key: "loan",
		Elements: []events.FlowElement{
			{ID: "start", Type: messages.StartEventType, MessageName: "application-received"},
			{ID: "plain-start", Type: messages.StartEventType},
			{ID: "review", Type: "userTask"},
			{ID: "wait-docs", Type: "intermediateCatchEvent", MessageName: "documents-uploaded"},
			{
				ID:   "underwriting",
				Type: "subProcess",
				Elements: []events.FlowElement{
					{ID: "sub-start", Type: messages.StartEventType},
					{
						ID:   "on-withdrawal",
						Type: "eventSubProcess",
						Elements: []events.FlowElement{
							{ID: "withdrawal-start", Type: messages.StartEventType, MessageName: "application-withdrawn"},
						},
					},
					{ID: "again", Type: messages.StartEventType, MessageName: "application-received"},
				},
			},
			{ID: "on-fraud", Type: messages.BoundaryEventType, MessageName: "fraud-flagged", AttachedTo: "underwriting"},
		},
	}

	got := messages.StartMessages(def)
	want := []messages.StartMessage{
		{Name: "application-received", ElementID: "start", StartsInstance: true},
		{Name: "application-withdrawn", ElementID: "withdrawal-start"},
		{Name: "fraud-flagged", ElementID: "on-fraud"},
	}
	if len(got) != len(want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("[%d]: got %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestStartMessages_TopLevelStartWins(t *testing.T) {
	def := &events.ProcessDefinition{
		ID:  "loan:4",
		Key: "loan",
		Elements: []events.FlowElement{
			{ID: "on-paid", Type: messages.BoundaryEventType, MessageName: "paid", AttachedTo: "review"},
			{ID: "review", Type: "userTask"},
			{ID: "paid-start", Type: messages.StartEventType, MessageName: "paid"},
		},
	}
	got := messages.StartMessages(def)
	if len(got) != 1 {
		t.Fatalf("got %+v, want one message", got)
	}
	if got[0] != (messages.StartMessage{Name: "paid", ElementID: "paid-start", StartsInstance: true}) {
		t.Errorf("got %+v", got[0])
	}
}

func TestStartMessages_NoMessages(t *testing.T) {
	def := &events.ProcessDefinition{ID: "d", Key: "d", Elements: []events.FlowElement{{ID: "s", Type: messages.StartEventType}}}
	if got := messages.StartMessages(def); len(got) != 0 {
		t.Errorf("got %+v, want none", got)
	}
}
