package syncer

import (
	"log/slog"

	"github.com/astromechza/automerge-relay/pkg/todo"
	"github.com/astromechza/automerge-relay/pkg/wire"
)

// RelayPeer is the only peer a client talks to.
const RelayPeer PeerID = "relay"

// Client is the edge coordinator. It has a single cursor for the relay and stops all sync traffic while its gate
// is closed. Local changes still apply while offline.
type Client struct {
	core
	gate       *Gate
	cursor     todo.Cursor
	introduced bool
}

func NewClient(replica Replica, sender Sender, logger *slog.Logger, observer Observer) *Client {
	return &Client{
		core:   newCore("client", replica, sender, logger, observer),
		gate:   new(Gate),
		cursor: replica.NewCursor(),
	}
}

func (c *Client) Online() bool {
	return c.gate.IsOpen()
}

// Apply changes the local document and, when online, reconciles with the relay.
func (c *Client) Apply(m todo.Mutation) (*todo.Snapshot, error) {
	snap, err := c.replica.Apply(m)
	if err != nil {
		return nil, err
	}
	if c.gate.IsOpen() {
		c.reconcile()
	}
	return snap, nil
}

// HandleMessage merges a frame from the relay. While offline the frame is dropped, not queued.
func (c *Client) HandleMessage(frame []byte) {
	if !c.gate.IsOpen() {
		c.log.Debug("offline, dropping relay frame", "bytes", len(frame))
		c.emit(RelayPeer, EventDropped, len(frame), nil)
		return
	}

	msg, err := wire.DecodeRelay(frame)
	if err != nil {
		c.log.Error("failed to decode frame", "err", err)
		c.emit(RelayPeer, EventFailed, len(frame), err)
		return
	}
	snap, next, err := c.replica.Merge(c.cursor, msg.SyncMessage)
	if err != nil {
		c.log.Error("failed to merge sync message", "err", err)
		c.emit(RelayPeer, EventFailed, len(msg.SyncMessage), err)
		return
	}
	c.cursor = next
	c.log.Debug("merged sync message", "heads", snap.Heads, "items", len(snap.Items))
	c.emit(RelayPeer, EventReceived, len(msg.SyncMessage), nil)

	c.reconcile()
}

// SetOnline flips the gate. Going from offline to online reconciles straight away with the cursor as it was.
func (c *Client) SetOnline(online bool) {
	if !online {
		if c.gate.Close() {
			c.log.Info("offline")
		}
		return
	}
	if c.gate.Open() {
		c.log.Info("online")
		c.reconcile()
	}
}

// Connected starts a new transport session. The relay sees a new connection with a fresh cursor, so the client
// starts over too.
func (c *Client) Connected() {
	c.cursor = c.replica.NewCursor()
	c.introduced = false
	if c.gate.IsOpen() {
		c.reconcile()
	}
}

func (c *Client) reconcile() {
	var sent bool
	c.cursor, sent = c.step(RelayPeer, c.cursor, c.encode)
	if sent {
		c.introduced = true
	}
}

// encode names the actor on every frame until one has been handed to the transport this session.
func (c *Client) encode(msg []byte) ([]byte, error) {
	actor := ""
	if !c.introduced {
		actor = c.replica.ActorID()
	}
	return wire.EncodePeer(actor, msg)
}
