package sockets

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var ErrClosed = errors.New("closed connection")

type Connection interface {
	Send(msg Msg) error
	io.Closer
}

type Conn struct {
	ws            *websocket.Conn
	sslSkipVerify bool
	pingInterval  time.Duration
	pingMsg       []byte
	onError       func(err error)
	onMessage     func([]byte, Connection)
	onConnected   func(Connection)

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

func New(opts ...Option) *Conn {
	c := &Conn{done: make(chan struct{})}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Msg is the message structure.
type Msg struct {
	Body []byte
}

// Closes the connection.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLocked()
}

func (c *Conn) closeLocked() error {
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.done)
	if c.ws == nil {
		return nil
	}
	return c.ws.Close()
}

// Done is closed once the connection is closed.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

func (c *Conn) Send(msg Msg) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.ws == nil {
		return ErrClosed
	}
	_ = c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := c.ws.WriteMessage(websocket.TextMessage, msg.Body); err != nil {
		_ = c.closeLocked()
		if c.onError != nil {
			go c.onError(err)
		}
		return err
	}
	return nil
}

// Dial connects as a client and starts reading in the background.
func (c *Conn) Dial(ctx context.Context, url string) error {
	dialer := &websocket.Dialer{
		HandshakeTimeout: 15 * time.Second,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: c.sslSkipVerify,
		},
	}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return err
	}
	c.attach(conn)
	go c.readLoop()
	return nil
}

func (c *Conn) attach(ws *websocket.Conn) {
	c.mu.Lock()
	c.ws = ws
	c.mu.Unlock()

	if c.onConnected != nil {
		go c.onConnected(c)
	}
	c.setupPing()
}

// readLoop blocks until the peer goes away, then closes the connection.
func (c *Conn) readLoop() {
	defer c.Close()
	for {
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			if c.onError != nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.onError(err)
			}
			return
		}
		c.onMsg(msg)
	}
}

func (c *Conn) onMsg(msg []byte) {
	// Fire OnMessage every time.
	if c.onMessage != nil {
		go c.onMessage(msg, c)
	}
}

func (c *Conn) setupPing() {
	if c.pingInterval > 0 && len(c.pingMsg) > 0 {
		ticker := time.NewTicker(c.pingInterval)
		go func() {
			defer ticker.Stop()
			for {
				select {
				case <-c.done:
					return
				case <-ticker.C:
				}
				if c.Send(Msg{Body: c.pingMsg}) != nil {
					return
				}
			}
		}()
	}
}
