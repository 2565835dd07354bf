/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"github.com/google/uuid"
)

// Lobby is the singleton listener every client starts on. It owns the room
// catalog and spawns games.
type Lobby struct {
	store *PackStore
	games []*Game
}

func newLobby(store *PackStore) *Lobby {
	return &Lobby{
		store: store,
	}
}

func (l *Lobby) ClientConnected(rt *Router, clientID uuid.UUID) {
	rt.sendPackets(clientID, l.serverList(), l.cardPacks())
}

func (l *Lobby) ClientDisconnected(rt *Router, clientID uuid.UUID) {}

func (l *Lobby) HandlePacket(rt *Router, packet *ServerBound, sender uuid.UUID) PacketResponse {
	switch {
	case packet.CreateServer != nil:
		return l.createGame(rt, packet.CreateServer, sender)

	case packet.JoinGame != nil:
		if !rt.HasListener(*packet.JoinGame) {
			return rejectedWithReason("Invalid server id")
		}
		if !rt.ForwardClient(sender, *packet.JoinGame) {
			return rejected()
		}
		return accepted()

	case packet.RequestCardPacks:
		rt.sendPackets(sender, l.cardPacks())
		return accepted()

	case packet.RefreshServerList:
		rt.sendPackets(sender, l.serverList())
		return accepted()
	}

	return rejected()
}

func (l *Lobby) Terminated() bool {
	return false
}

func (l *Lobby) createGame(rt *Router, settings *GameSettings, sender uuid.UUID) PacketResponse {
	if len(settings.Packs) == 0 {
		return rejectedWithReason("Packs cannot be empty")
	}
	if settings.PointsToWin < 1 {
		return rejectedWithReason("Points to win must be at least 1")
	}
	if settings.MaxPlayers != nil && *settings.MaxPlayers < 2 {
		return rejectedWithReason("Max players must be at least 2")
	}

	game, err := newGame(l.store, settings)
	if err != nil {
		logf(rt.cfg, "GAMES: Failed to create game for client %s: %v", shortID(sender), err)
		return rejectedWithReason("%v", err)
	}

	game.id = rt.AddListener(game)
	l.games = append(l.games, game)

	if !rt.ForwardClient(sender, game.id) {
		return rejected()
	}

	logf(rt.cfg, "GAMES: Client %s created game %s", shortID(sender), shortID(game.id))

	return accepted()
}

// serverList reaps finished games, then snapshots the rest.
func (l *Lobby) serverList() ServerListPacket {
	live := l.games[:0]
	for _, game := range l.games {
		if !game.Terminated() {
			live = append(live, game)
		}
	}
	l.games = live

	servers := make([]ServerEntry, 0, len(l.games))
	for _, game := range l.games {
		servers = append(servers, ServerEntry{
			ID:         game.id,
			HostName:   game.hostName(),
			NumPlayers: game.numPlayers(),
			MaxPlayers: game.maxPlayers,
		})
	}

	return ServerListPacket{Servers: servers}
}

func (l *Lobby) cardPacks() CardPacksPacket {
	return CardPacksPacket(l.store.CatalogView())
}
