package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tbourn/go-comment-moderation/internal/domain"
	"github.com/tbourn/go-comment-moderation/internal/identity"
)

// countingStore counts identity lookups to prove the gate was consulted.
type countingStore struct {
	CommentStore
	lookups int32
}

func (c *countingStore) Identity(ctx context.Context, fp string) (domain.Identity, bool, error) {
	atomic.AddInt32(&c.lookups, 1)
	return c.CommentStore.Identity(ctx, fp)
}

func TestSubmit_ValidationNeverReachesGate(t *testing.T) {
	forEachStore(t, func(t *testing.T, st CommentStore) {
		cs := &countingStore{CommentStore: st}
		f := newFixture(cs)
		f.sub.Gate = identity.NewGate(cs)
		ctx := context.Background()

		for _, text := range []string{"", "   ", "<>", "<b></b>"} {
			if _, err := f.sub.Submit(ctx, SubmitInput{Text: text, Fingerprint: "fpA"}); !errors.Is(err, ErrMissingText) {
				t.Fatalf("Submit(%q) err = %v; want ErrMissingText", text, err)
			}
		}
		long := strings.Repeat("x", f.sub.MaxTextRunes+1)
		if _, err := f.sub.Submit(ctx, SubmitInput{Text: long, Fingerprint: "fpA"}); !errors.Is(err, ErrTextTooLong) {
			t.Fatalf("long text err = %v; want ErrTextTooLong", err)
		}
		if _, err := f.sub.Submit(ctx, SubmitInput{Text: "ok", Fingerprint: ""}); !errors.Is(err, ErrBadIdentity) {
			t.Fatalf("no fingerprint err = %v; want ErrBadIdentity", err)
		}
		if n := atomic.LoadInt32(&cs.lookups); n != 0 {
			t.Fatalf("gate consulted %d times for invalid input", n)
		}
		if posts, _ := f.gw.snapshot(); posts != 0 {
			t.Fatalf("gateway received %d posts for invalid input", posts)
		}
	})
}

func TestSubmit_GeneratedNameAndModerationRequest(t *testing.T) {
	forEachStore(t, func(t *testing.T, st CommentStore) {
		f := newFixture(st)
		ctx := context.Background()

		res, err := f.sub.Submit(ctx, SubmitInput{Name: "", Text: "hello", Fingerprint: "fpA"})
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
		c := res.Comment
		if c.DisplayName != "Verified account #42" || !c.Verified {
			t.Fatalf("generated name = %q verified=%v", c.DisplayName, c.Verified)
		}
		if c.ModerationRef == "" {
			t.Fatalf("moderation ref not recorded on result")
		}

		stored, err := st.Get(ctx, c.ID)
		if err != nil || stored.Status != domain.StatusPending || stored.ModerationRef != c.ModerationRef {
			t.Fatalf("stored = %+v, %v", stored, err)
		}
		if stored.Fingerprint != "fpA" {
			t.Fatalf("fingerprint not persisted")
		}

		f.gw.mu.Lock()
		req := f.gw.posts[0]
		f.gw.mu.Unlock()
		if len(req.Actions) != 2 || !strings.Contains(req.Text, "hello") {
			t.Fatalf("request = %+v", req)
		}
		if d := domain.ParseDecision(req.Actions[0].Payload); d.CommentID != c.ID || d.Action != domain.ActionApprove {
			t.Fatalf("approve action bound to %+v", d)
		}

		named, err := f.sub.Submit(ctx, SubmitInput{Name: " <i>Sam</i> ", Text: "hi", Fingerprint: "fpB"})
		if err != nil || named.Comment.DisplayName != "Sam" || named.Comment.Verified {
			t.Fatalf("named = %+v, %v", named, err)
		}
	})
}

func TestSubmit_IdentityDeniedReasons(t *testing.T) {
	forEachStore(t, func(t *testing.T, st CommentStore) {
		f := newFixture(st)
		ctx := context.Background()
		id := f.submit(t, "fpA", "", "hello")

		_, err := f.sub.Submit(ctx, SubmitInput{Text: "again", Fingerprint: "fpA"})
		if !errors.Is(err, ErrIdentityDenied) || !errors.Is(err, ErrAlreadyPending) {
			t.Fatalf("err = %v; want denied/pending", err)
		}

		if o, _, _ := f.mod.HandleDecision(ctx, id, domain.ActionApprove); o != domain.OutcomeApplied {
			t.Fatalf("approve outcome = %v", o)
		}
		_, err = f.sub.Submit(ctx, SubmitInput{Text: "again", Fingerprint: "fpA"})
		if !errors.Is(err, ErrIdentityDenied) || !errors.Is(err, ErrAlreadyApproved) {
			t.Fatalf("err = %v; want denied/approved", err)
		}
	})
}

func TestSubmit_GatewayFailureStillSucceeds(t *testing.T) {
	forEachStore(t, func(t *testing.T, st CommentStore) {
		f := newFixture(st)
		f.gw.failPost = errGatewayDown
		ctx := context.Background()

		res, err := f.sub.Submit(ctx, SubmitInput{Text: "hello", Fingerprint: "fpA"})
		if err != nil {
			t.Fatalf("submit must succeed despite gateway failure: %v", err)
		}
		stored, err := st.Get(ctx, res.Comment.ID)
		if err != nil || stored.Status != domain.StatusPending || stored.ModerationRef != "" {
			t.Fatalf("stored = %+v, %v", stored, err)
		}
		orphans, _ := st.ListOrphans(ctx, time.Now().UTC().Add(time.Minute), 0)
		if len(orphans) != 1 {
			t.Fatalf("orphans = %d; want 1", len(orphans))
		}
	})
}

func TestSubmit_IdempotentReplay(t *testing.T) {
	forEachStore(t, func(t *testing.T, st CommentStore) {
		f := newFixture(st)
		f.sub.IdempotencyTTL = time.Hour
		ctx := context.Background()

		in := SubmitInput{Text: "hello", Fingerprint: "fpA", IdempotencyKey: "key-1"}
		first, err := f.sub.Submit(ctx, in)
		if err != nil || first.Replayed {
			t.Fatalf("first = %+v, %v", first, err)
		}
		second, err := f.sub.Submit(ctx, in)
		if err != nil || !second.Replayed || second.Comment.ID != first.Comment.ID {
			t.Fatalf("replay = %+v, %v", second, err)
		}
		if posts, _ := f.gw.snapshot(); posts != 1 {
			t.Fatalf("replay re-posted to gateway: %d posts", posts)
		}

		in.IdempotencyKey = "key-2"
		if _, err := f.sub.Submit(ctx, in); !errors.Is(err, ErrIdentityDenied) {
			t.Fatalf("new key err = %v; want identity denied", err)
		}
	})
}

func TestSubmit_ConcurrentSameFingerprintSingleWinner(t *testing.T) {
	forEachStore(t, func(t *testing.T, st CommentStore) {
		f := newFixture(st)
		ctx := context.Background()

		const n = 20
		var ok, denied int32
		var wg sync.WaitGroup
		start := make(chan struct{})
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				_, err := f.sub.Submit(ctx, SubmitInput{Text: "race", Fingerprint: "fpR"})
				switch {
				case err == nil:
					atomic.AddInt32(&ok, 1)
				case errors.Is(err, ErrIdentityDenied):
					atomic.AddInt32(&denied, 1)
				default:
					t.Errorf("submit: %v", err)
				}
			}()
		}
		close(start)
		wg.Wait()

		if ok != 1 || denied != n-1 {
			t.Fatalf("ok=%d denied=%d; want 1/%d", ok, denied, n-1)
		}
		pending, _ := st.ListByStatus(ctx, domain.StatusPending, 0)
		if len(pending) != 1 {
			t.Fatalf("pending = %d; want 1", len(pending))
		}
	})
}

func TestMineAndRevoke(t *testing.T) {
	forEachStore(t, func(t *testing.T, st CommentStore) {
		f := newFixture(st)
		ctx := context.Background()

		if _, err := f.sub.Mine(ctx, "fpA"); !errors.Is(err, ErrNoComment) {
			t.Fatalf("mine none err = %v", err)
		}
		if _, err := f.sub.Revoke(ctx, "fpA"); !errors.Is(err, ErrNoComment) {
			t.Fatalf("revoke none err = %v", err)
		}

		id := f.submit(t, "fpA", "Sam", "hello")
		mine, err := f.sub.Mine(ctx, "fpA")
		if err != nil || mine.ID != id || mine.Status != domain.StatusPending {
			t.Fatalf("mine = %+v, %v", mine, err)
		}

		del, err := f.sub.Revoke(ctx, "fpA")
		if err != nil || del.ID != id {
			t.Fatalf("revoke = %+v, %v", del, err)
		}
		f.gw.mu.Lock()
		edited := f.gw.edits[del.ModerationRef]
		f.gw.mu.Unlock()
		if !strings.HasPrefix(edited, f.sub.Texts.Withdrawn) {
			t.Fatalf("moderation prompt not marked withdrawn: %q", edited)
		}

		// A late decision for the revoked comment is a harmless no-op.
		if o, _, err := f.mod.HandleDecision(ctx, id, domain.ActionApprove); err != nil || o != domain.OutcomeUnknownComment {
			t.Fatalf("late decision = %v, %v", o, err)
		}
		// The fingerprint is free again.
		f.submit(t, "fpA", "", "second try")
	})
}
