package syncer

import (
	"log/slog"
	"slices"

	"github.com/astromechza/automerge-relay/pkg/todo"
	"github.com/astromechza/automerge-relay/pkg/wire"
)

type peerState struct {
	cursor  todo.Cursor
	actorID string
}

// Relay is the authoritative coordinator. It keeps one cursor per connected peer and, after any change to its
// document, reconciles with every peer since the change may concern all of them.
type Relay struct {
	core
	peers map[PeerID]*peerState
}

func NewRelay(replica Replica, sender Sender, logger *slog.Logger, observer Observer) *Relay {
	return &Relay{
		core:  newCore("relay", replica, sender, logger, observer),
		peers: make(map[PeerID]*peerState),
	}
}

// Peers returns the registered peers in a stable order.
func (r *Relay) Peers() []PeerID {
	ids := make([]PeerID, 0, len(r.peers))
	for id := range r.peers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// ActorID returns the actor a peer announced, if any.
func (r *Relay) ActorID(peer PeerID) string {
	if p, ok := r.peers[peer]; ok {
		return p.actorID
	}
	return ""
}

// HandleMessage merges a frame received from peer. A peer seen for the first time is registered with a fresh
// cursor. A frame that fails to decode or merge is logged and leaves the peer's cursor as it was.
func (r *Relay) HandleMessage(peer PeerID, frame []byte) {
	p, ok := r.peers[peer]
	if !ok {
		p = &peerState{cursor: r.replica.NewCursor()}
		r.peers[peer] = p
		r.log.Info("peer joined", "peer", peer, "peers", len(r.peers))
		r.emit(peer, EventJoined, 0, nil)
	}

	msg, err := wire.DecodePeer(frame)
	if err != nil {
		r.log.Error("failed to decode frame", "peer", peer, "err", err)
		r.emit(peer, EventFailed, len(frame), err)
		return
	}
	if msg.ActorID != "" && msg.ActorID != p.actorID {
		p.actorID = msg.ActorID
		r.log.Info("peer introduced itself", "peer", peer, "actor", msg.ActorID)
	}

	snap, next, err := r.replica.Merge(p.cursor, msg.SyncMessage)
	if err != nil {
		r.log.Error("failed to merge sync message", "peer", peer, "err", err)
		r.emit(peer, EventFailed, len(msg.SyncMessage), err)
		return
	}
	p.cursor = next
	r.log.Debug("merged sync message", "peer", peer, "heads", snap.Heads, "items", len(snap.Items))
	r.emit(peer, EventReceived, len(msg.SyncMessage), nil)

	r.Reconcile(r.Peers()...)
}

// Disconnect forgets the peer. Nothing is sent.
func (r *Relay) Disconnect(peer PeerID) {
	if _, ok := r.peers[peer]; !ok {
		return
	}
	delete(r.peers, peer)
	r.log.Info("peer left", "peer", peer, "peers", len(r.peers))
	r.emit(peer, EventLeft, 0, nil)
}

// Apply changes the relay's own document and reconciles with every peer.
func (r *Relay) Apply(m todo.Mutation) (*todo.Snapshot, error) {
	snap, err := r.replica.Apply(m)
	if err != nil {
		return nil, err
	}
	r.Reconcile(r.Peers()...)
	return snap, nil
}

// Reconcile sends each listed peer whatever it is missing. Unknown peers are skipped; a failure for one peer does
// not stop the others.
func (r *Relay) Reconcile(peers ...PeerID) {
	for _, id := range peers {
		p, ok := r.peers[id]
		if !ok {
			continue
		}
		p.cursor, _ = r.step(id, p.cursor, wire.EncodeRelay)
	}
}
