package sockets

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// Broadcaster accepts websocket clients and sends every broadcast message to all of them.
type Broadcaster struct {
	upgrader websocket.Upgrader
	opts     []Option

	mu    sync.RWMutex
	conns map[*Conn]struct{}
}

func NewBroadcaster(opts ...Option) *Broadcaster {
	return &Broadcaster{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		opts:  opts,
		conns: make(map[*Conn]struct{}),
	}
}

// ServeHTTP upgrades the request and holds the connection until the client leaves.
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := New(b.opts...)
	c.attach(ws)

	b.mu.Lock()
	b.conns[c] = struct{}{}
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		delete(b.conns, c)
		b.mu.Unlock()
	}()

	c.readLoop()
}

// Broadcast sends body to every client and returns how many received it.
func (b *Broadcaster) Broadcast(body []byte) int {
	b.mu.RLock()
	conns := make([]*Conn, 0, len(b.conns))
	for c := range b.conns {
		conns = append(conns, c)
	}
	b.mu.RUnlock()

	sent := 0
	for _, c := range conns {
		if err := c.Send(Msg{Body: body}); err == nil {
			sent++
		}
	}
	return sent
}

func (b *Broadcaster) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.conns)
}

// Close disconnects every client.
func (b *Broadcaster) Close() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for c := range b.conns {
		_ = c.Close()
	}
	return nil
}
