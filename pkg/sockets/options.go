package sockets

import "time"

// Option configures a Conn. Options passed to NewBroadcaster apply to every accepted client.
type Option func(*Conn)

// WithPing sends msg every interval until the connection closes.
func WithPing(interval time.Duration, msg []byte) Option {
	return func(c *Conn) {
		c.pingInterval = interval
		c.pingMsg = msg
	}
}

func InsecureSkipVerify() Option {
	return func(c *Conn) {
		c.sslSkipVerify = true
	}
}

// OnMessage is called in its own goroutine for every frame read.
func OnMessage(f func([]byte, Connection)) Option {
	return func(c *Conn) {
		c.onMessage = f
	}
}

// OnError receives read and write failures. Normal closes are not reported.
func OnError(f func(error)) Option {
	return func(c *Conn) {
		c.onError = f
	}
}

func OnConnected(f func(Connection)) Option {
	return func(c *Conn) {
		c.onConnected = f
	}
}
