// Package signaling provides the client half of the websocket protocol: a
// connection with read/write pumps that surfaces server frames on a channel.
package signaling

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/glimmerapp/glimmer/internal/core/domain"
	"github.com/glimmerapp/glimmer/internal/wire"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// Client manages the websocket connection to the signaling server.
type Client struct {
	serverURL string
	identity  domain.UserID

	conn     *websocket.Conn
	incoming chan wire.Frame
	outgoing chan wire.Frame
	done     chan struct{}

	closeOnce sync.Once
}

func NewClient(serverURL string, identity domain.UserID) *Client {
	return &Client{
		serverURL: serverURL,
		identity:  identity,
		incoming:  make(chan wire.Frame, 32),
		outgoing:  make(chan wire.Frame, 32),
		done:      make(chan struct{}),
	}
}

// Connect dials the server and starts the pumps. The identity rides on the
// query string; in the full application the auth layer vouches for it.
func (c *Client) Connect(ctx context.Context) error {
	u, err := url.Parse(c.serverURL)
	if err != nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}
	q := u.Query()
	q.Set("identity", c.identity.String())
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	c.conn = conn

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go c.readPump()
	go c.writePump()

	return nil
}

func (c *Client) readPump() {
	defer func() {
		c.conn.Close()
		close(c.incoming)
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		var frame wire.Frame
		if err := c.conn.ReadJSON(&frame); err != nil {
			return
		}
		select {
		case c.incoming <- frame:
		case <-c.done:
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame := <-c.outgoing:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(frame); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

// Send queues a frame for delivery.
func (c *Client) Send(frame wire.Frame) error {
	select {
	case c.outgoing <- frame:
		return nil
	case <-c.done:
		return fmt.Errorf("signaling client closed")
	}
}

// Incoming returns the channel of server frames. It is closed when the
// connection drops.
func (c *Client) Incoming() <-chan wire.Frame {
	return c.incoming
}

func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}
