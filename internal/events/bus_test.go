package events

import (
	"testing"
)

func TestEventBus_SubscribeAndPublish(t *testing.T) {
	bus := NewEventBus()

	var got []Event
	bus.Subscribe(EventProposalApproved, func(e Event) {
		got = append(got, e)
	})

	bus.Publish(EventProposalApproved, map[string]interface{}{"proposal_id": "p1"})
	bus.Publish(EventProposalRejected, map[string]interface{}{"proposal_id": "p2"})

	if len(got) != 1 {
		t.Fatalf("expected 1 event, got %d", len(got))
	}
	if got[0].Type != EventProposalApproved {
		t.Errorf("expected PROPOSAL_APPROVED, got %s", got[0].Type)
	}
	if got[0].Data["proposal_id"] != "p1" {
		t.Errorf("expected proposal_id p1, got %v", got[0].Data["proposal_id"])
	}
}

func TestEventBus_SubscribeAll(t *testing.T) {
	bus := NewEventBus()

	count := 0
	bus.SubscribeAll(func(e Event) { count++ })

	bus.Publish(EventPositionOpened, nil)
	bus.Publish(EventMarkUpdate, nil)
	bus.Publish(EventQualityReport, nil)

	if count != 3 {
		t.Errorf("catch-all subscriber expected 3 events, got %d", count)
	}
}
