package ws

import (
	"sync"

	"golang.org/x/net/websocket"
)

const outboundBuffer = 64

type Client struct {
	conn *websocket.Conn
	out  chan []byte
	// subject is the authenticated user that opened the socket.
	subject string
	admin   bool

	mu       sync.Mutex
	channels map[string]struct{}
	dropped  bool
	closed   bool
}

func NewClient(conn *websocket.Conn, subject string, admin bool) *Client {
	return &Client{
		conn:     conn,
		out:      make(chan []byte, outboundBuffer),
		subject:  subject,
		admin:    admin,
		channels: map[string]struct{}{},
	}
}

// send never blocks the publisher. A client that cannot keep up is dropped.
func (c *Client) send(payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.dropped {
		return
	}
	select {
	case c.out <- payload:
	default:
		c.dropped = true
		if c.conn != nil {
			_ = c.conn.Close()
		}
	}
}

// close ends the writer loop. Later sends are discarded.
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.out)
	}
}

func (c *Client) Dropped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

// canWatch limits a lender to its own pending channel.
func (c *Client) canWatch(lenderID string) bool {
	return c.admin || c.subject == "" || c.subject == lenderID
}

func (c *Client) addChannel(channel string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.channels[channel] = struct{}{}
}

func (c *Client) removeChannel(channel string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.channels, channel)
}

func (c *Client) listChannels() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.channels))
	for ch := range c.channels {
		out = append(out, ch)
	}
	return out
}
