package transport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/felixge/httpsnoop"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/astromechza/automerge-relay/pkg/syncer"
	"github.com/astromechza/automerge-relay/pkg/todo"
)

// Relay is the coordinator side of the server. Its methods are only ever called from the loop.
type Relay interface {
	HandleMessage(peer syncer.PeerID, frame []byte)
	Disconnect(peer syncer.PeerID)
	Peers() []syncer.PeerID
	ActorID(peer syncer.PeerID) string
}

// Snapshots gives read access to the relay's document.
type Snapshots interface {
	Current() *todo.Snapshot
}

type peerConn struct {
	ws   *websocket.Conn
	send chan []byte
}

// Server accepts client connections, one peer per websocket, and implements syncer.Sender for the relay.
type Server struct {
	loop      *syncer.Loop
	docs      Snapshots
	queueSize int
	upgrader  websocket.Upgrader

	mu    sync.Mutex
	conns map[syncer.PeerID]*peerConn
}

func NewServer(loop *syncer.Loop, docs Snapshots, queueSize int) *Server {
	return &Server{
		loop:      loop,
		docs:      docs,
		queueSize: queueSize,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		conns: make(map[syncer.PeerID]*peerConn),
	}
}

// Send queues a frame for the peer's connection. A peer that is gone or not keeping up loses the frame.
func (s *Server) Send(peer syncer.PeerID, frame []byte) error {
	s.mu.Lock()
	c, ok := s.conns[peer]
	s.mu.Unlock()
	if !ok {
		return ErrUnknownPeer
	}
	return enqueue(c.send, frame)
}

// Router returns the relay's HTTP routes.
func (s *Server) Router(relay Relay) http.Handler {
	r := mux.NewRouter()
	r.Use(func(handler http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			m := httpsnoop.CaptureMetrics(handler, writer, request)
			slog.Info("handled", "method", request.Method, "url", request.URL, "duration", m.Duration, "status", m.Code)
		})
	})
	r.Methods(http.MethodGet).Path("/sync").HandlerFunc(s.syncPeer(relay))
	r.Methods(http.MethodGet).Path("/doc").HandlerFunc(s.getDoc)
	r.Methods(http.MethodGet).Path("/peers").HandlerFunc(s.getPeers(relay))
	return r
}

// Close drops every open connection.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conns {
		_ = c.ws.Close()
	}
}

func (s *Server) getDoc(writer http.ResponseWriter, request *http.Request) {
	writer.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(writer).Encode(s.docs.Current()); err != nil {
		slog.Error("failed to write out", "err", err)
	}
}

type peerInfo struct {
	Peer    syncer.PeerID `json:"peer"`
	ActorID string        `json:"actorId,omitempty"`
}

func (s *Server) getPeers(relay Relay) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		var out []peerInfo
		if err := s.loop.Do(request.Context(), func() {
			out = make([]peerInfo, 0)
			for _, id := range relay.Peers() {
				out = append(out, peerInfo{Peer: id, ActorID: relay.ActorID(id)})
			}
		}); err != nil {
			slog.Error("failed to list peers", "err", err)
			writer.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writer.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(writer).Encode(out); err != nil {
			slog.Error("failed to write out", "err", err)
		}
	}
}

func (s *Server) syncPeer(relay Relay) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		ws, err := s.upgrader.Upgrade(writer, request, nil)
		if err != nil {
			slog.Error("failed to upgrade", "err", err)
			return
		}
		id := syncer.PeerID(uuid.NewString())
		c := &peerConn{ws: ws, send: make(chan []byte, s.queueSize)}
		s.mu.Lock()
		s.conns[id] = c
		s.mu.Unlock()
		slog.Info("connection opened", "peer", id, "remote", request.RemoteAddr)

		g, ctx := errgroup.WithContext(context.Background())
		g.Go(func() error {
			return readPump(ws, func(frame []byte) error {
				return s.loop.Submit(ctx, func() { relay.HandleMessage(id, frame) })
			})
		})
		g.Go(func() error {
			return writePump(ctx, ws, c.send)
		})
		err = g.Wait()

		s.mu.Lock()
		delete(s.conns, id)
		s.mu.Unlock()
		if closedNormally(err) {
			slog.Info("connection closed", "peer", id)
		} else {
			slog.Warn("connection lost", "peer", id, "err", err)
		}
		if err := s.loop.Submit(context.Background(), func() { relay.Disconnect(id) }); err != nil {
			slog.Error("failed to forget peer", "peer", id, "err", err)
		}
	}
}
