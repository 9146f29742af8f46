package syncer

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"testing"

	"github.com/automerge/automerge-go"

	"github.com/astromechza/automerge-relay/pkg/todo"
	"github.com/astromechza/automerge-relay/pkg/wire"
)

var errCorrupt = errors.New("corrupt cursor")

// fakeCursor tracks which document version the peer is known to have.
type fakeCursor struct {
	seen       int
	corrupt    bool
	superseded bool
}

func (c *fakeCursor) Save() []byte {
	return []byte(fmt.Sprint(c.seen))
}

// fakeReplica is a document whose state is a version counter. A message carries the sender's version.
type fakeReplica struct {
	t       *testing.T
	version int
	merges  int
}

func (f *fakeReplica) ActorID() string { return "fake" }

func (f *fakeReplica) Current() *todo.Snapshot {
	return &todo.Snapshot{Heads: []string{fmt.Sprint(f.version)}}
}

func (f *fakeReplica) Apply(todo.Mutation) (*todo.Snapshot, error) {
	f.version++
	return f.Current(), nil
}

func (f *fakeReplica) NewCursor() todo.Cursor {
	return &fakeCursor{}
}

func (f *fakeReplica) cursor(cur todo.Cursor) *fakeCursor {
	c := cur.(*fakeCursor)
	if c.superseded {
		f.t.Errorf("stale cursor reused: %+v", c)
	}
	return c
}

func (f *fakeReplica) GenerateMessage(cur todo.Cursor) (todo.Cursor, []byte, error) {
	c := f.cursor(cur)
	if c.corrupt {
		return nil, nil, errCorrupt
	}
	if c.seen >= f.version {
		return c, nil, nil
	}
	c.superseded = true
	return &fakeCursor{seen: f.version}, []byte(fmt.Sprintf("v%d", f.version)), nil
}

func (f *fakeReplica) Merge(cur todo.Cursor, msg []byte) (*todo.Snapshot, todo.Cursor, error) {
	c := f.cursor(cur)
	if string(msg) == "bad" {
		return nil, nil, errors.New("bad message")
	}
	f.merges++
	f.version++
	c.superseded = true
	return f.Current(), &fakeCursor{seen: f.version}, nil
}

// recordingSender keeps every frame per peer and fails sends to the peers in fail.
type recordingSender struct {
	frames map[PeerID][][]byte
	fail   map[PeerID]bool
}

func newRecordingSender() *recordingSender {
	return &recordingSender{frames: map[PeerID][][]byte{}, fail: map[PeerID]bool{}}
}

func (s *recordingSender) Send(peer PeerID, frame []byte) error {
	if s.fail[peer] {
		return errors.New("connection reset")
	}
	s.frames[peer] = append(s.frames[peer], frame)
	return nil
}

func (s *recordingSender) total() int {
	n := 0
	for _, f := range s.frames {
		n += len(f)
	}
	return n
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func peerFrame(t *testing.T, actor, msg string) []byte {
	t.Helper()
	frame, err := wire.EncodePeer(actor, []byte(msg))
	if err != nil {
		t.Fatalf("encode peer frame: %v", err)
	}
	return frame
}

func relayFrame(t *testing.T, msg string) []byte {
	t.Helper()
	frame, err := wire.EncodeRelay([]byte(msg))
	if err != nil {
		t.Fatalf("encode relay frame: %v", err)
	}
	return frame
}

func decodeRelayFrame(t *testing.T, frame []byte) string {
	t.Helper()
	m, err := wire.DecodeRelay(frame)
	if err != nil {
		t.Fatalf("decode relay frame: %v", err)
	}
	return string(m.SyncMessage)
}

var noop = todo.Mutation{Name: "noop", Fn: func(*automerge.Doc) error { return nil }}
