package simdriver

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// ProgressWebSocket broadcasts every ResultsSnapshot to connected
// monitoring clients, adapted from the teacher's own connection-registry
// pattern in websocket.go (a protected map of live connections, writes
// serialized per-connection).
type ProgressWebSocket struct {
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

// NewProgressWebSocket constructs an empty broadcaster. Register it on
// an HTTP mux via its Handler method.
func NewProgressWebSocket() *ProgressWebSocket {
	return &ProgressWebSocket{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		conns: make(map[*websocket.Conn]struct{}),
	}
}

// Handler upgrades incoming HTTP requests to WebSocket connections and
// registers them to receive progress broadcasts until the client
// disconnects.
func (p *ProgressWebSocket) Handler(w http.ResponseWriter, r *http.Request) {
	conn, err := p.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("progress websocket: upgrade failed: %v", err)
		return
	}

	p.mu.Lock()
	p.conns[conn] = struct{}{}
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		delete(p.conns, conn)
		p.mu.Unlock()
		conn.Close()
	}()

	// Drain and discard any client messages; this is a one-way feed.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (p *ProgressWebSocket) broadcast(snapshot ResultsSnapshot) {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for conn := range p.conns {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			conn.Close()
			delete(p.conns, conn)
		}
	}
}

func (p *ProgressWebSocket) RecordErrorEvent(snapshot ResultsSnapshot) { p.broadcast(snapshot) }
func (p *ProgressWebSocket) CompletePoint(snapshot ResultsSnapshot)    { p.broadcast(snapshot) }

func (p *ProgressWebSocket) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for conn := range p.conns {
		conn.Close()
		delete(p.conns, conn)
	}
	return nil
}
