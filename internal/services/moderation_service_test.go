package services

import (
	"context"
	"sync"
	"testing"

	"github.com/tbourn/go-comment-moderation/internal/domain"
)

func TestHandleDecision_ApproveTwice(t *testing.T) {
	forEachStore(t, func(t *testing.T, st CommentStore) {
		f := newFixture(st)
		ctx := context.Background()
		id := f.submit(t, "fpA", "", "hello")

		o1, c, err := f.mod.HandleDecision(ctx, id, domain.ActionApprove)
		if err != nil || o1 != domain.OutcomeApplied || c.Status != domain.StatusApproved {
			t.Fatalf("first = %v %+v %v", o1, c, err)
		}
		o2, _, err := f.mod.HandleDecision(ctx, id, domain.ActionApprove)
		if err != nil || o2 != domain.OutcomeAlreadyHandled {
			t.Fatalf("second = %v %v", o2, err)
		}
		o3, _, _ := f.mod.HandleDecision(ctx, id, domain.ActionReject)
		if o3 != domain.OutcomeAlreadyHandled {
			t.Fatalf("reject after approve = %v", o3)
		}

		list, _ := f.pub.ListApproved(ctx, 0)
		if len(list) != 1 || list[0].ID != id {
			t.Fatalf("approved partition = %+v", list)
		}
	})
}

func TestHandleDecision_RejectFreesFingerprint(t *testing.T) {
	forEachStore(t, func(t *testing.T, st CommentStore) {
		f := newFixture(st)
		ctx := context.Background()
		id := f.submit(t, "fpB", "", "hello")

		if o, _, err := f.mod.HandleDecision(ctx, id, domain.ActionReject); err != nil || o != domain.OutcomeApplied {
			t.Fatalf("reject = %v %v", o, err)
		}
		f.submit(t, "fpB", "", "try again")

		list, _ := f.pub.ListApproved(ctx, 0)
		if len(list) != 0 {
			t.Fatalf("rejected or pending comment published: %+v", list)
		}
	})
}

func TestHandleDecision_UnknownAndUnrecognized(t *testing.T) {
	forEachStore(t, func(t *testing.T, st CommentStore) {
		f := newFixture(st)
		ctx := context.Background()

		if o, _, err := f.mod.HandleDecision(ctx, "does-not-exist", domain.ActionApprove); err != nil || o != domain.OutcomeUnknownComment {
			t.Fatalf("unknown = %v %v", o, err)
		}
		if o, _, err := f.mod.HandleDecision(ctx, "x", domain.ActionUnrecognized); err != nil || o != domain.OutcomeIgnored {
			t.Fatalf("unrecognized = %v %v", o, err)
		}
	})
}

func TestProcess_AcksThenEdits(t *testing.T) {
	forEachStore(t, func(t *testing.T, st CommentStore) {
		f := newFixture(st)
		ctx := context.Background()
		id := f.submit(t, "fpA", "", "hello")
		stored, _ := st.Get(ctx, id)

		o, err := f.mod.Process(ctx, domain.DecisionEvent{EventID: "cb1", Payload: "approve_" + id})
		if err != nil || o != domain.OutcomeApplied {
			t.Fatalf("process = %v %v", o, err)
		}
		_, calls := f.gw.snapshot()
		if got := calls[len(calls)-2:]; got[0] != "ack" || got[1] != "edit" {
			t.Fatalf("call order = %v; want ack then edit", calls)
		}
		f.gw.mu.Lock()
		ack, edit := f.gw.acks["cb1"], f.gw.edits[stored.ModerationRef]
		f.gw.mu.Unlock()
		if ack != f.mod.Texts.AckApproved {
			t.Fatalf("ack text = %q", ack)
		}
		if edit == "" {
			t.Fatalf("moderation message not edited")
		}
	})
}

func TestProcess_UnknownAndGarbageAreAcknowledged(t *testing.T) {
	forEachStore(t, func(t *testing.T, st CommentStore) {
		f := newFixture(st)
		ctx := context.Background()

		o, err := f.mod.Process(ctx, domain.DecisionEvent{EventID: "e1", Payload: "approve:missing"})
		if err != nil || o != domain.OutcomeUnknownComment {
			t.Fatalf("unknown = %v %v", o, err)
		}
		o, err = f.mod.Process(ctx, domain.DecisionEvent{EventID: "e2", Payload: "explode"})
		if err != nil || o != domain.OutcomeIgnored {
			t.Fatalf("garbage = %v %v", o, err)
		}
		f.gw.mu.Lock()
		defer f.gw.mu.Unlock()
		if f.gw.acks["e1"] != f.mod.Texts.AckNotFound || f.gw.acks["e2"] != f.mod.Texts.AckIgnored {
			t.Fatalf("acks = %v", f.gw.acks)
		}
		if len(f.gw.edits) != 0 {
			t.Fatalf("no edit expected for no-op decisions")
		}
	})
}

func TestProcess_EditFailureKeepsTransition(t *testing.T) {
	forEachStore(t, func(t *testing.T, st CommentStore) {
		f := newFixture(st)
		ctx := context.Background()
		id := f.submit(t, "fpA", "", "hello")
		f.gw.failEdit = errGatewayDown

		if o, err := f.mod.Process(ctx, domain.DecisionEvent{EventID: "e", Payload: "approve:" + id}); err != nil || o != domain.OutcomeApplied {
			t.Fatalf("process = %v %v", o, err)
		}
		c, _ := st.Get(ctx, id)
		if c.Status != domain.StatusApproved {
			t.Fatalf("status = %s; edit failure must not roll back", c.Status)
		}
	})
}

func TestProcess_ReplayedEventShortCircuits(t *testing.T) {
	forEachStore(t, func(t *testing.T, st CommentStore) {
		f := newFixture(st)
		ctx := context.Background()
		id := f.submit(t, "fpA", "", "hello")
		ev := domain.DecisionEvent{EventID: "same", Payload: "reject:" + id}

		if o, _ := f.mod.Process(ctx, ev); o != domain.OutcomeApplied {
			t.Fatalf("first = %v", o)
		}
		if o, _ := f.mod.Process(ctx, ev); o != domain.OutcomeAlreadyHandled {
			t.Fatalf("replay = %v", o)
		}
		// Different event ids for the same decision still resolve through the store.
		ev.EventID = "other"
		if o, _ := f.mod.Process(ctx, ev); o != domain.OutcomeAlreadyHandled {
			t.Fatalf("second event = %v", o)
		}
	})
}

func TestProcess_ConcurrentApprovesExactlyOneApplied(t *testing.T) {
	forEachStore(t, func(t *testing.T, st CommentStore) {
		f := newFixture(st)
		ctx := context.Background()
		id := f.submit(t, "fpA", "", "hello")

		events := []domain.DecisionEvent{
			{EventID: "webhook-retry", Payload: "approve:" + id},
			{EventID: "double-tap", Payload: "approve_" + id},
		}
		outcomes := make([]domain.Outcome, len(events))
		var wg sync.WaitGroup
		for i, ev := range events {
			wg.Add(1)
			go func(i int, ev domain.DecisionEvent) {
				defer wg.Done()
				o, err := f.mod.Process(ctx, ev)
				if err != nil {
					t.Errorf("process: %v", err)
				}
				outcomes[i] = o
			}(i, ev)
		}
		wg.Wait()

		applied, already := 0, 0
		for _, o := range outcomes {
			switch o {
			case domain.OutcomeApplied:
				applied++
			case domain.OutcomeAlreadyHandled:
				already++
			}
		}
		if applied != 1 || already != 1 {
			t.Fatalf("outcomes = %v; want one applied, one already handled", outcomes)
		}
		list, _ := f.pub.ListApproved(ctx, 0)
		if len(list) != 1 {
			t.Fatalf("approved partition has %d entries; want 1", len(list))
		}
	})
}
