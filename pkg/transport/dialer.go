package transport

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/astromechza/automerge-relay/pkg/syncer"
)

// Session is the client side of one connection to the relay. Its methods are only ever called from the loop.
type Session interface {
	Connected()
	HandleMessage(frame []byte)
}

// Dialer keeps a connection to the relay open, redialling on an interval whenever it drops. It implements
// syncer.Sender for the client.
type Dialer struct {
	url       string
	loop      *syncer.Loop
	interval  time.Duration
	queueSize int

	mu   sync.Mutex
	send chan []byte
}

func NewDialer(url string, loop *syncer.Loop, interval time.Duration, queueSize int) *Dialer {
	return &Dialer{url: url, loop: loop, interval: interval, queueSize: queueSize}
}

// Send queues a frame on the current connection. Without one the frame is lost.
func (d *Dialer) Send(_ syncer.PeerID, frame []byte) error {
	d.mu.Lock()
	send := d.send
	d.mu.Unlock()
	if send == nil {
		return ErrNotConnected
	}
	return enqueue(send, frame)
}

// Connected reports whether a connection is currently up.
func (d *Dialer) Connected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.send != nil
}

// Run connects straight away and then retries every interval until ctx is cancelled.
func (d *Dialer) Run(ctx context.Context, session Session) {
	t := time.NewTicker(d.interval)
	defer t.Stop()
	for {
		if err := d.connectAndSync(ctx, session); err != nil && ctx.Err() == nil && !closedNormally(err) {
			slog.Error("connection to relay lost", "url", d.url, "err", err)
		}
		select {
		case <-t.C:
		case <-ctx.Done():
			slog.Info("stopping relay connection")
			return
		}
	}
}

func (d *Dialer) connectAndSync(ctx context.Context, session Session) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, d.url, nil)
	if err != nil {
		return fmt.Errorf("failed to dial: %w", err)
	}
	send := make(chan []byte, d.queueSize)
	d.mu.Lock()
	d.send = send
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		d.send = nil
		d.mu.Unlock()
	}()
	slog.Info("connected to relay", "url", d.url)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return writePump(gctx, conn, send)
	})
	g.Go(func() error {
		if err := d.loop.Submit(gctx, session.Connected); err != nil {
			_ = conn.Close()
			return err
		}
		return readPump(conn, func(frame []byte) error {
			return d.loop.Submit(gctx, func() { session.HandleMessage(frame) })
		})
	})
	return g.Wait()
}
