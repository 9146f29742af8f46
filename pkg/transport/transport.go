// Package transport carries sync frames over websockets: Server on the relay side, Dialer on the client side.
// Frames are JSON text messages. Both sides send through a bounded queue and drop frames when it is full.
package transport

import (
	"context"
	"errors"
	"fmt"

	"github.com/gorilla/websocket"
)

var (
	ErrUnknownPeer  = errors.New("no connection for peer")
	ErrNotConnected = errors.New("not connected to relay")
	ErrQueueFull    = errors.New("send queue full")
)

// enqueue hands a frame to a write pump without blocking.
func enqueue(send chan<- []byte, frame []byte) error {
	select {
	case send <- frame:
		return nil
	default:
		return ErrQueueFull
	}
}

// writePump writes queued frames until ctx is done or a write fails. It closes the connection on the way out,
// which also unblocks the read pump.
func writePump(ctx context.Context, conn *websocket.Conn, send <-chan []byte) error {
	defer conn.Close()
	for {
		select {
		case frame := <-send:
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return fmt.Errorf("failed to write message: %w", err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// readPump hands every text frame to deliver in the order it was read.
func readPump(conn *websocket.Conn, deliver func(frame []byte) error) error {
	defer conn.Close()
	for {
		mt, frame, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("failed to read message: %w", err)
		}
		switch mt {
		case websocket.TextMessage:
			if err := deliver(frame); err != nil {
				return err
			}
		default:
		}
	}
}

func closedNormally(err error) bool {
	return websocket.IsCloseError(errors.Unwrap(err), websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
		errors.Is(err, context.Canceled)
}
