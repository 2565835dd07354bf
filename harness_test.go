package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// writeTestPack writes a pack file with generated card texts.
func writeTestPack(t *testing.T, dir, name string, official bool, prompts, pick, responses int) {
	t.Helper()

	pack := Pack{
		Name:     name,
		Official: official,
	}
	for i := range prompts {
		pack.Prompts = append(pack.Prompts, Prompt{Text: fmt.Sprintf("%s prompt %d?", name, i), Pick: pick})
	}
	for i := range responses {
		pack.Responses = append(pack.Responses, fmt.Sprintf("%s response %d", name, i))
	}

	data, err := json.Marshal(pack)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, name+packExt), data, 0644))
}

// newTestPackDir lays out a pack directory with the default pack plus an
// extra official pack and one custom pack.
func newTestPackDir(t *testing.T) string {
	t.Helper()

	packDir := t.TempDir()
	official := filepath.Join(packDir, "official")
	custom := filepath.Join(packDir, "custom")
	require.NoError(t, os.MkdirAll(official, 0755))
	require.NoError(t, os.MkdirAll(custom, 0755))

	writeTestPack(t, official, defaultPackName, true, 12, 1, 80)
	writeTestPack(t, official, "Expansion One", true, 6, 2, 30)
	writeTestPack(t, custom, "Inside Jokes", false, 3, 1, 12)

	return packDir
}

type harness struct {
	t     *testing.T
	cfg   *Config
	store *PackStore
	rt    *Router
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	cfg := &Config{
		packDir:   newTestPackDir(t),
		sendQueue: 64,
	}

	store, err := newPackStore(cfg, cfg.packDir)
	require.NoError(t, err)

	return &harness{
		t:     t,
		cfg:   cfg,
		store: store,
		rt:    newRouter(cfg, store),
	}
}

// connect registers a pumpless client directly on the event handlers, the
// way the run loop would.
func (h *harness) connect() *Client {
	h.t.Helper()

	c := newClient(h.cfg, nil, "test")
	h.rt.dispatch(event{kind: eventConnect, client: c})
	h.rt.reap()

	return c
}

func (h *harness) disconnect(c *Client) {
	h.t.Helper()

	h.rt.dispatch(event{kind: eventDisconnect, client: c})
	h.rt.reap()
}

func (h *harness) message(c *Client, frame []byte) {
	h.t.Helper()

	h.rt.dispatch(event{kind: eventMessage, client: c, data: frame})
	h.rt.reap()
}

// sendRaw delivers one unwrapped packet.
func (h *harness) sendRaw(c *Client, packet ServerBound) {
	h.t.Helper()

	data, err := json.Marshal(packet)
	require.NoError(h.t, err)

	h.message(c, data)
}

// sendWrapped delivers one wrapped packet and returns its packet id.
func (h *harness) sendWrapped(c *Client, packet ServerBound) uuid.UUID {
	h.t.Helper()

	id := uuid.New()
	data, err := json.Marshal(map[string]any{
		"packet":    packet,
		"packet_id": id,
	})
	require.NoError(h.t, err)

	h.message(c, data)

	return id
}

// drain pops and decodes every frame queued for a client.
func (h *harness) drain(c *Client) [][]ClientBound {
	h.t.Helper()

	c.mu.Lock()
	queued := c.queue
	c.queue = nil
	c.mu.Unlock()

	frames := make([][]ClientBound, 0, len(queued))
	for _, frame := range queued {
		packets, err := decodeClientFrame(frame.data)
		require.NoError(h.t, err)
		frames = append(frames, packets)
	}

	return frames
}

func flatten(frames [][]ClientBound) []ClientBound {
	var packets []ClientBound
	for _, frame := range frames {
		packets = append(packets, frame...)
	}

	return packets
}

// ackFor scans drained frames for the Ack answering a packet id.
func ackFor(t *testing.T, frames [][]ClientBound, id uuid.UUID) AckPacket {
	t.Helper()

	for _, packet := range flatten(frames) {
		if ack, ok := packet.(AckPacket); ok && ack.PacketID == id {
			return ack
		}
	}

	t.Fatalf("no ack for packet %s", id)

	return AckPacket{}
}

// game returns the Game a client is currently bound to.
func (h *harness) game(c *Client) *Game {
	h.t.Helper()

	g, ok := h.rt.listeners[c.bound].(*Game)
	require.True(h.t, ok, "client is not bound to a game")

	return g
}

// createGame drives a client through CreateServer and clears its queue.
func (h *harness) createGame(c *Client, settings GameSettings) *Game {
	h.t.Helper()

	id := h.sendWrapped(c, ServerBound{CreateServer: &settings})
	ack := ackFor(h.t, h.drain(c), id)
	require.Equal(h.t, responseAccepted, ack.Response.Kind)

	return h.game(c)
}

// joinGame drives a client into an existing game, returning the drained
// frames (the join burst plus the ack).
func (h *harness) joinGame(c *Client, g *Game) [][]ClientBound {
	h.t.Helper()

	target := g.id
	id := h.sendWrapped(c, ServerBound{JoinGame: &target})
	frames := h.drain(c)
	ack := ackFor(h.t, frames, id)
	require.Equal(h.t, responseAccepted, ack.Response.Kind)

	return frames
}

func intPtr(v int) *int {
	return &v
}
