package syncer

import "time"

type EventKind string

const (
	EventJoined   EventKind = "joined"
	EventLeft     EventKind = "left"
	EventSent     EventKind = "sent"
	EventReceived EventKind = "received"
	// EventDropped is an inbound message ignored because the client was offline.
	EventDropped EventKind = "dropped"
	// EventFailed covers decode, merge, generate and send failures for one peer.
	EventFailed EventKind = "failed"
)

// Event describes one exchange with a peer.
type Event struct {
	At    time.Time
	Role  string
	Peer  PeerID
	Kind  EventKind
	Bytes int
	Err   error
}

// Observer receives events from a coordinator step. Implementations must not block.
type Observer interface {
	Observe(ev Event)
}

type ObserverFunc func(ev Event)

func (f ObserverFunc) Observe(ev Event) {
	f(ev)
}
