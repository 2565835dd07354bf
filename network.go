/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"

	"github.com/google/uuid"
)

// Listener is a server-side actor (the lobby or a game) that clients are
// bound to. All four methods run on the router's event loop; implementations
// must not block and must not retain the router between calls.
type Listener interface {
	ClientConnected(rt *Router, clientID uuid.UUID)
	ClientDisconnected(rt *Router, clientID uuid.UUID)
	HandlePacket(rt *Router, packet *ServerBound, sender uuid.UUID) PacketResponse
	Terminated() bool
}

// packReleaser is implemented by listeners holding pack-store references.
type packReleaser interface {
	releasePacks()
}

type eventKind int

const (
	eventConnect eventKind = iota
	eventMessage
	eventDisconnect
)

type event struct {
	kind   eventKind
	client *Client
	data   []byte
}

// Router owns the listener registry and the client sessions. Every event is
// processed on a single goroutine, so listeners need no internal locking.
type Router struct {
	cfg       *Config
	events    chan event
	done      chan struct{}
	listeners map[uuid.UUID]Listener
	clients   map[uuid.UUID]*Client
	lobbyID   uuid.UUID
}

func newRouter(cfg *Config, store *PackStore) *Router {
	rt := &Router{
		cfg:       cfg,
		events:    make(chan event, 256),
		done:      make(chan struct{}),
		listeners: make(map[uuid.UUID]Listener),
		clients:   make(map[uuid.UUID]*Client),
	}

	rt.lobbyID = rt.AddListener(newLobby(store))

	return rt
}

// AddListener registers a listener and mints its id.
func (rt *Router) AddListener(listener Listener) uuid.UUID {
	id := uuid.New()
	rt.listeners[id] = listener

	return id
}

func (rt *Router) HasListener(id uuid.UUID) bool {
	_, ok := rt.listeners[id]

	return ok
}

func (rt *Router) LobbyID() uuid.UUID {
	return rt.lobbyID
}

// post delivers an event to the loop unless the router has shut down.
func (rt *Router) post(ev event) bool {
	select {
	case rt.events <- ev:
		return true
	case <-rt.done:
		return false
	}
}

func (rt *Router) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			rt.shutdown()
			return
		case ev := <-rt.events:
			rt.dispatch(ev)
			rt.reap()
		}
	}
}

func (rt *Router) dispatch(ev event) {
	switch ev.kind {
	case eventConnect:
		rt.handleConnect(ev.client)
	case eventMessage:
		rt.handleMessage(ev.client, ev.data)
	case eventDisconnect:
		rt.handleDisconnect(ev.client)
	}
}

// handleConnect assigns the client its id frame and binds it to the lobby.
func (rt *Router) handleConnect(c *Client) {
	rt.clients[c.id] = c

	c.sendPackets(SetIDPacket{ID: c.id})

	c.bound = rt.lobbyID
	rt.listeners[rt.lobbyID].ClientConnected(rt, c.id)

	logf(rt.cfg, "WS: Client %s connected from %s", shortID(c.id), c.remoteAddr)
}

// handleMessage decodes one inbound frame and routes each packet to the
// client's bound listener, answering wrapped packets with a single Ack frame
// in arrival order.
func (rt *Router) handleMessage(c *Client, data []byte) {
	if _, ok := rt.clients[c.id]; !ok {
		return
	}

	packets, err := decodeServerFrame(data)
	if err != nil {
		logf(rt.cfg, "WS: Dropping malformed frame from client %s: %v", shortID(c.id), err)
		return
	}

	var acks []AckPacket
	for i := range packets {
		listener, ok := rt.listeners[c.bound]

		var response PacketResponse
		if !ok {
			// The listener vanished between lookup and call.
			response = rejected()
		} else {
			response = listener.HandlePacket(rt, &packets[i].Packet, c.id)
		}

		if packets[i].PacketID != nil {
			acks = append(acks, AckPacket{PacketID: *packets[i].PacketID, Response: response})
		}
	}

	if len(acks) > 0 {
		c.sendAcks(acks)
	}
}

func (rt *Router) handleDisconnect(c *Client) {
	if _, ok := rt.clients[c.id]; !ok {
		return
	}

	if listener, ok := rt.listeners[c.bound]; ok {
		listener.ClientDisconnected(rt, c.id)
	}

	delete(rt.clients, c.id)
	c.close()

	logf(rt.cfg, "WS: Client %s disconnected", shortID(c.id))
}

// ForwardClient atomically rebinds a client to another listener, delivering a
// synthetic disconnect to the source and a synthetic connect to the target.
func (rt *Router) ForwardClient(clientID, targetID uuid.UUID) bool {
	c, ok := rt.clients[clientID]
	if !ok {
		return false
	}

	target, ok := rt.listeners[targetID]
	if !ok {
		return false
	}

	source := c.bound
	if source == targetID {
		return true
	}

	c.bound = targetID

	if listener, ok := rt.listeners[source]; ok {
		listener.ClientDisconnected(rt, clientID)
	}

	target.ClientConnected(rt, clientID)

	return true
}

// sendPackets delivers one frame to a client; unknown clients are ignored.
func (rt *Router) sendPackets(clientID uuid.UUID, packets ...ClientBound) {
	c, ok := rt.clients[clientID]
	if !ok {
		return
	}

	c.sendPackets(packets...)
}

// reap drops terminated listeners that no client is still bound to,
// releasing any pack references they hold.
func (rt *Router) reap() {
	for id, listener := range rt.listeners {
		if !listener.Terminated() {
			continue
		}

		inUse := false
		for _, c := range rt.clients {
			if c.bound == id {
				inUse = true
				break
			}
		}
		if inUse {
			continue
		}

		if releaser, ok := listener.(packReleaser); ok {
			releaser.releasePacks()
		}

		delete(rt.listeners, id)
		logf(rt.cfg, "GAMES: Reaped listener %s", shortID(id))
	}
}

// shutdown closes every client; their write pumps flush and emit close
// frames.
func (rt *Router) shutdown() {
	close(rt.done)

	for id, c := range rt.clients {
		c.close()
		delete(rt.clients, id)
	}

	for id, listener := range rt.listeners {
		if releaser, ok := listener.(packReleaser); ok {
			releaser.releasePacks()
		}
		delete(rt.listeners, id)
	}
}
