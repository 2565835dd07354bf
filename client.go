/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Client is one connected socket. The read pump feeds the router's event
// loop; the write pump drains the outbound queue. The bound listener id is
// owned by the router goroutine and never touched from the pumps.
type Client struct {
	cfg        *Config
	id         uuid.UUID
	conn       *websocket.Conn
	remoteAddr string
	bound      uuid.UUID

	mu     sync.Mutex
	queue  []outFrame
	wake   chan struct{}
	closed bool
}

type outFrame struct {
	data []byte
	ack  bool
}

func newClient(cfg *Config, conn *websocket.Conn, remoteAddr string) *Client {
	return &Client{
		cfg:        cfg,
		id:         uuid.New(),
		conn:       conn,
		remoteAddr: remoteAddr,
		wake:       make(chan struct{}, 1),
	}
}

// shortID is the id prefix used in logs and default player names.
func shortID(id uuid.UUID) string {
	return id.String()[:8]
}

// enqueue appends one encoded frame to the outbound queue. When the queue is
// full the oldest non-Ack frame is dropped; Ack frames are never dropped, so
// every wrapped packet still gets its acknowledgement.
func (c *Client) enqueue(data []byte, ack bool) {
	c.mu.Lock()

	if c.closed {
		c.mu.Unlock()
		return
	}

	if len(c.queue) >= c.cfg.sendQueue {
		dropped := false
		for i, frame := range c.queue {
			if !frame.ack {
				c.queue = append(c.queue[:i], c.queue[i+1:]...)
				dropped = true
				break
			}
		}
		if dropped {
			logf(c.cfg, "WS: Dropped oldest queued frame for slow client %s", shortID(c.id))
		}
	}

	c.queue = append(c.queue, outFrame{data: data, ack: ack})
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// sendPackets encodes one frame of packets onto the queue.
func (c *Client) sendPackets(packets ...ClientBound) {
	frame, err := encodeFrame(packets...)
	if err != nil {
		logf(c.cfg, "WS: Failed to encode frame for client %s: %v", shortID(c.id), err)
		return
	}

	c.enqueue(frame, false)
}

// sendAcks encodes a single frame carrying every Ack for one inbound frame,
// preserving arrival order.
func (c *Client) sendAcks(acks []AckPacket) {
	packets := make([]ClientBound, 0, len(acks))
	for _, ack := range acks {
		packets = append(packets, ack)
	}

	frame, err := encodeFrame(packets...)
	if err != nil {
		logf(c.cfg, "WS: Failed to encode acks for client %s: %v", shortID(c.id), err)
		return
	}

	c.enqueue(frame, true)
}

// close marks the client finished; the write pump flushes the queue, sends a
// close frame, and exits.
func (c *Client) close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Client) readPump(rt *Router) {
	defer func() {
		rt.post(event{kind: eventDisconnect, client: c})
	}()

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		// Only text frames carry packets.
		if msgType != websocket.TextMessage {
			continue
		}

		if !rt.post(event{kind: eventMessage, client: c, data: data}) {
			return
		}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for range c.wake {
		for {
			c.mu.Lock()
			if len(c.queue) == 0 {
				closed := c.closed
				c.mu.Unlock()

				if closed {
					_ = c.conn.WriteMessage(
						websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					)
					return
				}

				break
			}

			frame := c.queue[0]
			c.queue = c.queue[1:]
			c.mu.Unlock()

			if err := c.conn.WriteMessage(websocket.TextMessage, frame.data); err != nil {
				return
			}
		}
	}
}
