package syncer

import (
	"testing"

	"github.com/astromechza/automerge-relay/pkg/wire"
)

func newTestClient(t *testing.T) (*Client, *fakeReplica, *recordingSender, *[]Event) {
	replica := &fakeReplica{t: t}
	sender := newRecordingSender()
	events := new([]Event)
	c := NewClient(replica, sender, testLogger(), ObserverFunc(func(ev Event) { *events = append(*events, ev) }))
	return c, replica, sender, events
}

func count(events []Event, kind EventKind) int {
	n := 0
	for _, ev := range events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func TestClientChangeReconcilesWithRelay(t *testing.T) {
	c, _, sender, events := newTestClient(t)
	if !c.Online() {
		t.Fatalf("client should start online")
	}
	if _, err := c.Apply(noop); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(sender.frames[RelayPeer]) != 1 {
		t.Fatalf("frames to relay: %d", len(sender.frames[RelayPeer]))
	}
	if count(*events, EventSent) != 1 {
		t.Fatalf("sent events: %+v", *events)
	}
}

func TestClientOfflineIsolation(t *testing.T) {
	c, replica, sender, events := newTestClient(t)
	c.SetOnline(false)

	for i := 0; i < 3; i++ {
		if _, err := c.Apply(noop); err != nil {
			t.Fatalf("apply: %v", err)
		}
	}
	if replica.version != 3 {
		t.Fatalf("local changes not applied while offline: version=%d", replica.version)
	}
	c.HandleMessage(relayFrame(t, "v9"))
	if replica.merges != 0 {
		t.Fatalf("inbound message merged while offline")
	}
	if sender.total() != 0 {
		t.Fatalf("offline client sent %d frames", sender.total())
	}
	if count(*events, EventDropped) != 1 {
		t.Fatalf("dropped events: %+v", *events)
	}

	c.SetOnline(true)
	if len(sender.frames[RelayPeer]) != 1 {
		t.Fatalf("going online should reconcile once, got %d frames", len(sender.frames[RelayPeer]))
	}
	if replica.merges != 0 {
		t.Fatalf("dropped message was replayed")
	}

	c.SetOnline(true)
	if len(sender.frames[RelayPeer]) != 1 {
		t.Fatalf("already online, but reconciled again")
	}
}

func TestClientKeepsCursorAcrossOffline(t *testing.T) {
	c, _, _, _ := newTestClient(t)
	if _, err := c.Apply(noop); err != nil {
		t.Fatalf("apply: %v", err)
	}
	before := c.cursor.(*fakeCursor)

	c.SetOnline(false)
	c.SetOnline(true)
	if c.cursor != before {
		t.Fatalf("cursor reset by going offline and online")
	}
}

func TestClientMergesAndReplies(t *testing.T) {
	c, replica, sender, _ := newTestClient(t)
	c.HandleMessage(relayFrame(t, "v1"))
	if replica.merges != 1 {
		t.Fatalf("merges: %d", replica.merges)
	}
	// the fake's merge leaves the relay caught up
	if sender.total() != 0 {
		t.Fatalf("frames: %d", sender.total())
	}

	before := c.cursor
	c.HandleMessage(relayFrame(t, "bad"))
	c.HandleMessage([]byte("{"))
	if c.cursor != before {
		t.Fatalf("cursor replaced after failures")
	}
}

func TestClientIntroducesActorOncePerSession(t *testing.T) {
	c, _, sender, _ := newTestClient(t)
	for i := 0; i < 2; i++ {
		if _, err := c.Apply(noop); err != nil {
			t.Fatalf("apply: %v", err)
		}
	}
	c.Connected()

	frames := sender.frames[RelayPeer]
	if len(frames) != 3 {
		t.Fatalf("frames: %d", len(frames))
	}
	want := []string{"fake", "", "fake"}
	for i, f := range frames {
		m, err := wire.DecodePeer(f)
		if err != nil {
			t.Fatalf("decode %d: %v", i, err)
		}
		if m.ActorID != want[i] {
			t.Fatalf("frame %d actor: got %q want %q", i, m.ActorID, want[i])
		}
	}
}

func TestClientIntroducesActorAfterFailedSend(t *testing.T) {
	c, _, sender, _ := newTestClient(t)
	sender.fail[RelayPeer] = true
	if _, err := c.Apply(noop); err != nil {
		t.Fatalf("apply: %v", err)
	}
	sender.fail[RelayPeer] = false
	for i := 0; i < 2; i++ {
		if _, err := c.Apply(noop); err != nil {
			t.Fatalf("apply: %v", err)
		}
	}

	frames := sender.frames[RelayPeer]
	if len(frames) != 2 {
		t.Fatalf("frames: %d", len(frames))
	}
	for i, want := range []string{"fake", ""} {
		m, err := wire.DecodePeer(frames[i])
		if err != nil {
			t.Fatalf("decode %d: %v", i, err)
		}
		if m.ActorID != want {
			t.Fatalf("frame %d actor: got %q want %q", i, m.ActorID, want)
		}
	}
}

func TestClientConnectedWhileOffline(t *testing.T) {
	c, _, sender, _ := newTestClient(t)
	if _, err := c.Apply(noop); err != nil {
		t.Fatalf("apply: %v", err)
	}
	c.SetOnline(false)
	c.Connected()
	if len(sender.frames[RelayPeer]) != 1 {
		t.Fatalf("offline client synced on connect")
	}
}

func TestGate(t *testing.T) {
	var g Gate
	if !g.IsOpen() {
		t.Fatalf("zero gate should be open")
	}
	if g.Open() {
		t.Fatalf("open gate reported a transition")
	}
	if !g.Close() || g.IsOpen() {
		t.Fatalf("close")
	}
	if g.Close() {
		t.Fatalf("closed gate reported a transition")
	}
	if !g.Open() || !g.IsOpen() {
		t.Fatalf("reopen")
	}
}
