// Package wire defines the JSON frames exchanged between a relay and its clients. Sync messages are carried as
// standard base64 text so the frames survive text-only transports.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrEmptyMessage is returned when a frame decodes but carries no sync message.
var ErrEmptyMessage = errors.New("frame carries no sync message")

// PeerMessage is sent by a client to the relay. ActorID is only set on the first frame of a session.
type PeerMessage struct {
	ActorID     string `json:"actorId,omitempty"`
	SyncMessage []byte `json:"syncMessage"`
}

// RelayMessage is sent by the relay to a client.
type RelayMessage struct {
	SyncMessage []byte `json:"syncMessage"`
}

func EncodePeer(actorID string, syncMessage []byte) ([]byte, error) {
	if len(syncMessage) == 0 {
		return nil, ErrEmptyMessage
	}
	return json.Marshal(PeerMessage{ActorID: actorID, SyncMessage: syncMessage})
}

func DecodePeer(frame []byte) (PeerMessage, error) {
	var m PeerMessage
	if err := json.Unmarshal(frame, &m); err != nil {
		return PeerMessage{}, fmt.Errorf("failed to decode peer frame: %w", err)
	}
	if len(m.SyncMessage) == 0 {
		return PeerMessage{}, ErrEmptyMessage
	}
	return m, nil
}

func EncodeRelay(syncMessage []byte) ([]byte, error) {
	if len(syncMessage) == 0 {
		return nil, ErrEmptyMessage
	}
	return json.Marshal(RelayMessage{SyncMessage: syncMessage})
}

func DecodeRelay(frame []byte) (RelayMessage, error) {
	var m RelayMessage
	if err := json.Unmarshal(frame, &m); err != nil {
		return RelayMessage{}, fmt.Errorf("failed to decode relay frame: %w", err)
	}
	if len(m.SyncMessage) == 0 {
		return RelayMessage{}, ErrEmptyMessage
	}
	return m, nil
}
