// Package syncer coordinates automerge sync between one relay and its clients.
//
// A coordinator (Relay or Client) keeps one cursor per remote peer and reconciles: for each peer it asks the
// replica for the next sync message, sends it if there is one and keeps the cursor returned with it. Inbound
// messages are merged with the sending peer's cursor and trigger another reconciliation.
//
// Coordinators are not safe for concurrent use. Every call must run as a step on the coordinator's Loop.
package syncer

import (
	"log/slog"
	"time"

	"github.com/astromechza/automerge-relay/pkg/todo"
)

// PeerID identifies a remote peer for the lifetime of one transport connection.
type PeerID string

// Replica is the local document a coordinator keeps in sync. *todo.Store implements it.
type Replica interface {
	ActorID() string
	Current() *todo.Snapshot
	Apply(m todo.Mutation) (*todo.Snapshot, error)
	NewCursor() todo.Cursor
	GenerateMessage(cur todo.Cursor) (todo.Cursor, []byte, error)
	Merge(cur todo.Cursor, msg []byte) (*todo.Snapshot, todo.Cursor, error)
}

// Sender delivers an encoded frame to a peer. Delivery is best effort: a nil error does not mean the peer got it.
type Sender interface {
	Send(peer PeerID, frame []byte) error
}

// core is the reconciliation step shared by both roles.
type core struct {
	role     string
	replica  Replica
	sender   Sender
	log      *slog.Logger
	observer Observer
}

func newCore(role string, replica Replica, sender Sender, logger *slog.Logger, observer Observer) core {
	if logger == nil {
		logger = slog.Default()
	}
	return core{
		role:     role,
		replica:  replica,
		sender:   sender,
		log:      logger.With("role", role),
		observer: observer,
	}
}

// step runs one reconciliation for peer and returns the cursor to keep for it, and whether a frame was handed to
// the sender. The cursor that came with a generated message is kept even when the send fails.
func (c *core) step(peer PeerID, cur todo.Cursor, encode func([]byte) ([]byte, error)) (todo.Cursor, bool) {
	next, msg, err := c.replica.GenerateMessage(cur)
	if err != nil {
		c.log.Error("failed to generate sync message", "peer", peer, "err", err)
		c.emit(peer, EventFailed, 0, err)
		return cur, false
	}
	if len(msg) == 0 {
		return cur, false
	}
	frame, err := encode(msg)
	if err != nil {
		c.log.Error("failed to encode sync message", "peer", peer, "err", err)
		c.emit(peer, EventFailed, len(msg), err)
		return next, false
	}
	if err := c.sender.Send(peer, frame); err != nil {
		c.log.Warn("failed to send sync message", "peer", peer, "err", err)
		c.emit(peer, EventFailed, len(msg), err)
		return next, false
	}
	c.log.Debug("sent sync message", "peer", peer, "bytes", len(msg))
	c.emit(peer, EventSent, len(msg), nil)
	return next, true
}

func (c *core) emit(peer PeerID, kind EventKind, size int, err error) {
	if c.observer == nil {
		return
	}
	c.observer.Observe(Event{At: time.Now(), Role: c.role, Peer: peer, Kind: kind, Bytes: size, Err: err})
}
