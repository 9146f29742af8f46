package todo

import (
	"errors"
	"fmt"
	"slices"

	"github.com/automerge/automerge-go"
)

var (
	// ErrForeignCursor is returned when a cursor was not created by the store it is passed to.
	ErrForeignCursor = errors.New("cursor does not belong to this document")
	// ErrStaleCursor is returned when a cursor is passed in again after a call already replaced it.
	ErrStaleCursor = errors.New("cursor was already replaced")
)

// Cursor is the replication progress with one remote peer. Its contents are only meaningful to the Store that
// created it. A call that returns a new cursor consumes the one passed in: the old value must not be used again.
type Cursor interface {
	// Save encodes the durable part of the progress (the heads both sides are known to share).
	Save() []byte
}

type syncCursor struct {
	store *Store
	state *automerge.SyncState
	// heads the peer reported in its last message
	remoteHeads []string
	// changes we sent that the peer has not yet shown it has
	unacked map[string]bool
	spent   bool
}

func (c *syncCursor) Save() []byte {
	return c.state.Save()
}

// successor hands the sync state over to a new cursor and retires c.
func (c *syncCursor) successor(state *automerge.SyncState, remoteHeads []string, unacked map[string]bool) *syncCursor {
	c.spent = true
	return &syncCursor{store: c.store, state: state, remoteHeads: remoteHeads, unacked: unacked}
}

// NewCursor returns the initial cursor for a peer we have not exchanged anything with.
func (s *Store) NewCursor() Cursor {
	return &syncCursor{store: s, state: automerge.NewSyncState(s.doc)}
}

func (s *Store) own(cur Cursor) (*syncCursor, error) {
	c, ok := cur.(*syncCursor)
	if !ok || c == nil || c.store != s {
		return nil, ErrForeignCursor
	}
	if c.spent {
		return nil, ErrStaleCursor
	}
	return c, nil
}

// GenerateMessage returns the message that brings the peer behind cur closer to this document. A nil message means
// the peer is caught up (or a reply is already in flight) and nothing needs sending; cur is then returned as is.
func (s *Store) GenerateMessage(cur Cursor) (Cursor, []byte, error) {
	c, err := s.own(cur)
	if err != nil {
		return nil, nil, err
	}
	msg, valid := c.state.GenerateMessage()
	if !valid || msg == nil {
		return c, nil, nil
	}
	unacked := make(map[string]bool, len(c.unacked))
	for h := range c.unacked {
		unacked[h] = true
	}
	for _, ch := range msg.Changes() {
		unacked[ch.Hash().String()] = true
	}
	return c.successor(c.state, c.remoteHeads, unacked), msg.Bytes(), nil
}

// Merge applies a sync message received from the peer behind cur and publishes the resulting snapshot.
//
// A message that cannot be decoded leaves the document and cur untouched. If automerge fails part way through
// applying the message, whatever it applied stays in the document and is published; cur stays the peer's cursor.
func (s *Store) Merge(cur Cursor, raw []byte) (*Snapshot, Cursor, error) {
	c, err := s.own(cur)
	if err != nil {
		return nil, nil, err
	}
	// decode against a scratch document so nothing real is touched before we know the message is sound
	msg, err := automerge.NewSyncState(automerge.New()).ReceiveMessage(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode sync message: %w", err)
	}
	remote := make([]string, 0, len(msg.Heads()))
	for _, h := range msg.Heads() {
		remote = append(remote, h.String())
	}
	slices.Sort(remote)

	unacked, err := s.stillUnacked(c.unacked, msg)
	if err != nil {
		return nil, nil, err
	}

	state := c.state
	if len(unacked) > 0 || s.stalled(c, remote, len(msg.Changes())) {
		// The peer's history lacks changes we already sent, so they were lost. automerge never offers a change
		// twice on one sync state, so fall back to the shared heads and let the exchange work out what is missing.
		if state, err = automerge.LoadSyncState(s.doc, c.state.Save()); err != nil {
			return nil, nil, fmt.Errorf("failed to rewind sync state: %w", err)
		}
		unacked = nil
	}
	if _, err := state.ReceiveMessage(raw); err != nil {
		s.publish()
		return nil, nil, fmt.Errorf("failed to receive sync message: %w", err)
	}
	return s.publish(), c.successor(state, remote, unacked), nil
}

// stillUnacked returns the members of sent that are not in the history the peer reported: the ancestors of its
// heads and of the changes carried by its message. Changes we cannot see behind an unknown hash count as missing.
func (s *Store) stillUnacked(sent map[string]bool, msg *automerge.SyncMessage) (map[string]bool, error) {
	if len(sent) == 0 {
		return nil, nil
	}
	changes, err := s.doc.Changes()
	if err != nil {
		return nil, fmt.Errorf("failed to list changes: %w", err)
	}
	deps := make(map[string][]automerge.ChangeHash, len(changes))
	for _, ch := range changes {
		deps[ch.Hash().String()] = ch.Dependencies()
	}

	var stack []automerge.ChangeHash
	stack = append(stack, msg.Heads()...)
	for _, ch := range msg.Changes() {
		deps[ch.Hash().String()] = ch.Dependencies()
		stack = append(stack, ch.Hash())
	}
	seen := make(map[string]bool)
	for len(stack) > 0 {
		h := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		key := h.String()
		if seen[key] {
			continue
		}
		seen[key] = true
		stack = append(stack, deps[key]...)
	}

	var missing map[string]bool
	for h := range sent {
		if seen[h] {
			continue
		}
		if missing == nil {
			missing = make(map[string]bool)
		}
		missing[h] = true
	}
	return missing, nil
}

// stalled reports a peer repeating the same diverged heads without new changes.
func (s *Store) stalled(c *syncCursor, remote []string, changes int) bool {
	if changes > 0 || c.remoteHeads == nil {
		return false
	}
	return slices.Equal(remote, c.remoteHeads) && !slices.Equal(remote, s.Current().Heads)
}
