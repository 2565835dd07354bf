package main

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectSendsIDThenLobbyBurst(t *testing.T) {
	h := newHarness(t)

	c := h.connect()
	frames := h.drain(c)
	require.GreaterOrEqual(t, len(frames), 2)

	// The very first frame is the client's identity.
	require.Len(t, frames[0], 1)
	setID, ok := frames[0][0].(SetIDPacket)
	require.True(t, ok)
	assert.Equal(t, c.id, setID.ID)

	// Followed by the lobby burst: server list and pack catalog.
	packets := flatten(frames[1:])
	require.Len(t, packets, 2)

	servers, ok := packets[0].(ServerListPacket)
	require.True(t, ok)
	assert.Empty(t, servers.Servers)

	packs, ok := packets[1].(CardPacksPacket)
	require.True(t, ok)
	assert.Len(t, packs, 3)
}

func TestAckOrderingWithinFrame(t *testing.T) {
	h := newHarness(t)
	c := h.connect()
	h.drain(c)

	// Three wrapped packets in one frame answer with a single Ack frame in
	// arrival order.
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	frame, err := json.Marshal([]any{
		map[string]any{"packet": "RefreshServerList", "packet_id": ids[0]},
		map[string]any{"packet": "RequestCardPacks", "packet_id": ids[1]},
		map[string]any{"packet": "StartGame", "packet_id": ids[2]},
	})
	require.NoError(t, err)

	h.message(c, frame)

	frames := h.drain(c)
	var ackFrame []ClientBound
	for _, packets := range frames {
		if len(packets) > 0 {
			if _, ok := packets[0].(AckPacket); ok {
				require.Nil(t, ackFrame, "acks must arrive in a single frame")
				ackFrame = packets
			}
		}
	}

	require.Len(t, ackFrame, 3)
	for i, want := range ids {
		ack, ok := ackFrame[i].(AckPacket)
		require.True(t, ok)
		assert.Equal(t, want, ack.PacketID)
	}

	// The first two lobby packets were accepted, StartGame is not a lobby
	// packet.
	assert.Equal(t, responseAccepted, ackFrame[0].(AckPacket).Response.Kind)
	assert.Equal(t, responseAccepted, ackFrame[1].(AckPacket).Response.Kind)
	assert.Equal(t, responseRejected, ackFrame[2].(AckPacket).Response.Kind)
}

func TestMalformedFrameIsDropped(t *testing.T) {
	h := newHarness(t)
	c := h.connect()
	h.drain(c)

	h.message(c, []byte(`{"packet":`))
	h.message(c, []byte(`{"NoSuchPacket":1}`))

	// No acks, no disconnect.
	assert.Empty(t, h.drain(c))
	_, connected := h.rt.clients[c.id]
	assert.True(t, connected)
}

func TestRawPacketsGetNoAck(t *testing.T) {
	h := newHarness(t)
	c := h.connect()
	h.drain(c)

	h.sendRaw(c, ServerBound{RefreshServerList: true})

	for _, packet := range flatten(h.drain(c)) {
		_, isAck := packet.(AckPacket)
		assert.False(t, isAck)
	}
}

func TestDisconnectForgetsClient(t *testing.T) {
	h := newHarness(t)
	c := h.connect()
	h.disconnect(c)

	_, connected := h.rt.clients[c.id]
	assert.False(t, connected)

	// A frame from a forgotten client is ignored.
	h.sendRaw(c, ServerBound{RefreshServerList: true})
	assert.Empty(t, h.drain(c))
}

func TestSendQueueDropsOldestBroadcastButKeepsAcks(t *testing.T) {
	cfg := &Config{sendQueue: 3}
	c := newClient(cfg, nil, "test")

	c.sendAcks([]AckPacket{{PacketID: uuid.New(), Response: accepted()}})
	c.sendPackets(CancelRoundPacket{})
	c.sendPackets(StartGamePacket{})

	// Queue is full; the oldest non-Ack frame gives way.
	c.sendPackets(CancelRoundPacket{})

	c.mu.Lock()
	defer c.mu.Unlock()
	require.Len(t, c.queue, 3)
	assert.True(t, c.queue[0].ack)

	packets, err := decodeClientFrame(c.queue[1].data)
	require.NoError(t, err)
	assert.IsType(t, StartGamePacket{}, packets[0])
}

func TestForwardClientToUnknownListener(t *testing.T) {
	h := newHarness(t)
	c := h.connect()

	assert.False(t, h.rt.ForwardClient(c.id, uuid.New()))
	assert.Equal(t, h.rt.LobbyID(), c.bound)
}
