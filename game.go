// Per-room game listener.
//
// A game is created by the lobby with its packs already loaded, collects
// players in WaitingToStart, then cycles rounds: every non-czar player
// submits cards for the prompt, the czar picks a winner, and the czar seat
// rotates through the players in join order. The first player to reach the
// configured point total ends the match; the host can restart from the End
// state, and the room is reaped once it is both finished and empty.

package main

import (
	"fmt"
	"math/rand/v2"

	"github.com/google/uuid"
)

const openingHandSize = 10

type gameState int

const (
	stateWaitingToStart gameState = iota
	statePlayerSelection
	stateCzarSelection
	stateEnd
)

type Player struct {
	id         uuid.UUID
	name       string
	isHost     bool
	points     int
	selections []CardID
}

func newPlayer(id uuid.UUID, isHost bool) *Player {
	return &Player{
		id:     id,
		name:   "Player #" + shortID(id),
		isHost: isHost,
	}
}

func (p *Player) asPacket() AddPlayerPacket {
	return AddPlayerPacket{
		ID:     p.id,
		Name:   p.name,
		IsHost: p.isHost,
		Points: p.points,
	}
}

// Game is the per-room listener. Players are kept in join order; czarIndex
// always addresses a live player while a round is running.
type Game struct {
	id    uuid.UUID
	store *PackStore
	rnd   *rand.Rand

	players []*Player
	hostID  uuid.UUID

	packs              []*Pack
	availablePrompts   []CardID
	availableResponses []CardID

	state            gameState
	maxPlayers       *int
	maxSelectionTime *int
	pointsToWin      int
	czarIndex        int
	currentPrompt    *Prompt
}

// newGame loads every requested pack, rolling all of them back if one fails.
func newGame(store *PackStore, settings *GameSettings) (*Game, error) {
	packs := make([]*Pack, 0, len(settings.Packs))
	for _, name := range settings.Packs {
		pack, err := store.Load(name)
		if err != nil {
			for _, loaded := range packs {
				store.Unload(loaded.Name)
			}
			return nil, fmt.Errorf("loading pack %q: %w", name, err)
		}
		packs = append(packs, pack)
	}

	return &Game{
		store:            store,
		rnd:              rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		packs:            packs,
		maxPlayers:       settings.MaxPlayers,
		maxSelectionTime: settings.MaxSelectionTime,
		pointsToWin:      settings.PointsToWin,
	}, nil
}

func (g *Game) playing() bool {
	return g.state == statePlayerSelection || g.state == stateCzarSelection
}

func (g *Game) player(id uuid.UUID) *Player {
	for _, p := range g.players {
		if p.id == id {
			return p
		}
	}

	return nil
}

func (g *Game) playerIndex(id uuid.UUID) int {
	for i, p := range g.players {
		if p.id == id {
			return i
		}
	}

	return -1
}

func (g *Game) hostName() string {
	if host := g.player(g.hostID); host != nil {
		return host.name
	}

	return ""
}

func (g *Game) numPlayers() int {
	return len(g.players)
}

func (g *Game) broadcast(rt *Router, packets ...ClientBound) {
	for _, p := range g.players {
		rt.sendPackets(p.id, packets...)
	}
}

// Deck management. The pools hold every (pack, card) pair not yet dealt in
// the current cycle; an empty pool refills from the full pack list, which is
// the reshuffle.

func (g *Game) refillPrompts() {
	for packNumber, pack := range g.packs {
		for cardNumber := range pack.Prompts {
			g.availablePrompts = append(g.availablePrompts, CardID{packNumber, cardNumber})
		}
	}
}

func (g *Game) refillResponses() {
	for packNumber, pack := range g.packs {
		for cardNumber := range pack.Responses {
			g.availableResponses = append(g.availableResponses, CardID{packNumber, cardNumber})
		}
	}
}

func (g *Game) resetPools() {
	g.availablePrompts = g.availablePrompts[:0]
	g.availableResponses = g.availableResponses[:0]
	g.refillPrompts()
	g.refillResponses()
}

func (g *Game) drawPrompt() Prompt {
	if len(g.availablePrompts) == 0 {
		g.refillPrompts()
	}

	i := g.rnd.IntN(len(g.availablePrompts))
	card := g.availablePrompts[i]
	g.availablePrompts[i] = g.availablePrompts[len(g.availablePrompts)-1]
	g.availablePrompts = g.availablePrompts[:len(g.availablePrompts)-1]

	return g.packs[card.PackNumber].Prompts[card.CardNumber]
}

func (g *Game) drawResponses(count int) []ResponseData {
	responses := make([]ResponseData, 0, count)
	for range count {
		if len(g.availableResponses) == 0 {
			g.refillResponses()
		}

		i := g.rnd.IntN(len(g.availableResponses))
		card := g.availableResponses[i]
		g.availableResponses[i] = g.availableResponses[len(g.availableResponses)-1]
		g.availableResponses = g.availableResponses[:len(g.availableResponses)-1]

		responses = append(responses, ResponseData{ID: card, Text: g.responseText(card)})
	}

	return responses
}

func (g *Game) validCard(card CardID) bool {
	return card.PackNumber >= 0 && card.PackNumber < len(g.packs) &&
		card.CardNumber >= 0 && card.CardNumber < len(g.packs[card.PackNumber].Responses)
}

func (g *Game) responseText(card CardID) string {
	return g.packs[card.PackNumber].Responses[card.CardNumber]
}

func (g *Game) settingsAsPackets() []ClientBound {
	packets := make([]ClientBound, 0, 3+len(g.packs))
	packets = append(packets,
		SettingUpdatePacket{Setting: GameSetting{Kind: settingMaxPlayers, Limit: g.maxPlayers}},
		SettingUpdatePacket{Setting: GameSetting{Kind: settingMaxSelectionTime, Limit: g.maxSelectionTime}},
		SettingUpdatePacket{Setting: GameSetting{Kind: settingPointsToWin, Points: g.pointsToWin}},
	)
	for _, pack := range g.packs {
		packets = append(packets, SettingUpdatePacket{Setting: GameSetting{Kind: settingAddPack, Pack: pack.Name}})
	}

	return packets
}

func (g *Game) displayResponses() DisplayResponsesPacket {
	pick := 1
	if g.currentPrompt != nil {
		pick = g.currentPrompt.Pick
	}

	responses := make(DisplayResponsesPacket, len(g.players))
	for _, p := range g.players {
		if len(p.selections) != pick {
			continue
		}

		cards := make([]ResponseData, 0, pick)
		for _, card := range p.selections {
			cards = append(cards, ResponseData{ID: card, Text: g.responseText(card)})
		}
		responses[p.id] = cards
	}

	return responses
}

// startMatch deals the opening round: fresh pools, a random czar, ten cards
// per player.
func (g *Game) startMatch(rt *Router) PacketResponse {
	g.resetPools()

	if len(g.availablePrompts) == 0 || len(g.availableResponses) == 0 {
		return rejectedWithReason("No packs selected")
	}

	g.czarIndex = g.rnd.IntN(len(g.players))
	prompt := g.drawPrompt()

	for _, p := range g.players {
		rt.sendPackets(p.id,
			StartGamePacket{},
			NextRoundPacket{
				Czar:         g.players[g.czarIndex].id,
				Prompt:       prompt,
				NewResponses: g.drawResponses(openingHandSize),
			},
		)
	}

	g.currentPrompt = &prompt
	g.state = statePlayerSelection

	return accepted()
}

// nextRound rotates the czar seat and deals every other player back up to a
// full hand.
func (g *Game) nextRound(rt *Router) {
	for _, p := range g.players {
		p.selections = nil
	}

	lastCzar := g.czarIndex
	g.czarIndex = (g.czarIndex + 1) % len(g.players)

	refill := 0
	if g.currentPrompt != nil {
		refill = g.currentPrompt.Pick
	}

	prompt := g.drawPrompt()

	for i, p := range g.players {
		var responses []ResponseData
		if i != lastCzar {
			responses = g.drawResponses(refill)
		}

		rt.sendPackets(p.id, NextRoundPacket{
			Czar:         g.players[g.czarIndex].id,
			Prompt:       prompt,
			NewResponses: responses,
		})
	}

	g.currentPrompt = &prompt
	g.state = statePlayerSelection
}

func (g *Game) ClientConnected(rt *Router, clientID uuid.UUID) {
	if len(g.players) == 0 {
		g.hostID = clientID
	}

	player := newPlayer(clientID, len(g.players) == 0)

	// Everyone already present learns about the joiner; the joiner gets the
	// full burst below instead.
	g.broadcast(rt, player.asPacket())

	g.players = append(g.players, player)

	burst := make([]ClientBound, 0, len(g.players)+4)
	for _, p := range g.players {
		burst = append(burst, p.asPacket())
	}
	burst = append(burst, g.settingsAsPackets()...)

	if g.playing() && g.currentPrompt != nil {
		burst = append(burst, NextRoundPacket{
			Czar:         g.players[g.czarIndex].id,
			Prompt:       *g.currentPrompt,
			NewResponses: g.drawResponses(openingHandSize),
		})

		if g.state == stateCzarSelection {
			burst = append(burst, g.displayResponses())
		}
	}

	rt.sendPackets(clientID, burst...)
}

func (g *Game) ClientDisconnected(rt *Router, clientID uuid.UUID) {
	index := g.playerIndex(clientID)
	if index < 0 {
		return
	}

	if len(g.players) == 1 {
		g.players = nil
		g.state = stateEnd
		return
	}

	skipRound := g.playing() && clientID == g.players[g.czarIndex].id

	player := g.players[index]
	g.players = append(g.players[:index], g.players[index+1:]...)

	if index <= g.czarIndex {
		g.czarIndex--
	}

	var newHost *uuid.UUID
	if player.isHost {
		first := g.players[0]
		first.isHost = true
		g.hostID = first.id
		newHost = &first.id
	}

	g.broadcast(rt, RemovePlayerPacket{ID: clientID, NewHost: newHost})

	if skipRound {
		n := len(g.players)
		g.czarIndex = ((g.czarIndex % n) + n) % n

		g.broadcast(rt, CancelRoundPacket{})

		// Submitted cards go back to the undealt pool; the cancelled round
		// must not leak them out of the deck cycle.
		for _, p := range g.players {
			g.availableResponses = append(g.availableResponses, p.selections...)
		}

		g.currentPrompt = nil
		g.nextRound(rt)
	}
}

func (g *Game) HandlePacket(rt *Router, packet *ServerBound, sender uuid.UUID) PacketResponse {
	// Name changes are honored in every state.
	if packet.SetPlayerName != nil {
		player := g.player(sender)
		if player == nil {
			return rejected()
		}

		player.name = *packet.SetPlayerName
		g.broadcast(rt, UpdatePlayerNamePacket{ID: sender, Name: player.name})

		return accepted()
	}

	switch g.state {
	case stateWaitingToStart:
		switch {
		case packet.StartGame:
			if sender != g.hostID {
				return rejected()
			}
			return g.startMatch(rt)

		case packet.UpdateSetting != nil:
			if sender != g.hostID {
				return rejected()
			}
			return g.applySetting(rt, packet.UpdateSetting)
		}

	case statePlayerSelection:
		if packet.SelectResponse != nil {
			return g.selectResponse(rt, *packet.SelectResponse, sender)
		}

	case stateCzarSelection:
		if packet.SelectRoundWinner != nil {
			return g.selectRoundWinner(rt, *packet.SelectRoundWinner, sender)
		}

	case stateEnd:
		switch {
		case packet.LeaveGame:
			if !rt.ForwardClient(sender, rt.LobbyID()) {
				return rejected()
			}
			return accepted()

		case packet.StartGame:
			if sender != g.hostID {
				return rejected()
			}
			for _, p := range g.players {
				p.points = 0
				p.selections = nil
			}
			return g.startMatch(rt)
		}
	}

	return rejected()
}

func (g *Game) applySetting(rt *Router, setting *GameSetting) PacketResponse {
	switch setting.Kind {
	case settingMaxPlayers:
		g.maxPlayers = setting.Limit

	case settingMaxSelectionTime:
		g.maxSelectionTime = setting.Limit

	case settingPointsToWin:
		g.pointsToWin = setting.Points

	case settingAddPack:
		for _, pack := range g.packs {
			if pack.Name == setting.Pack {
				return rejected()
			}
		}

		pack, err := g.store.Load(setting.Pack)
		if err != nil {
			logf(rt.cfg, "PACKS: Failed to load pack %q: %v", setting.Pack, err)
			return rejectedWithReason("Failed to load pack %s: %v", setting.Pack, err)
		}
		g.packs = append(g.packs, pack)

	case settingRemovePack:
		kept := g.packs[:0]
		for _, pack := range g.packs {
			if pack.Name == setting.Pack {
				g.store.Unload(pack.Name)
				continue
			}
			kept = append(kept, pack)
		}
		g.packs = kept

	default:
		return rejected()
	}

	g.broadcast(rt, SettingUpdatePacket{Setting: *setting})

	return accepted()
}

func (g *Game) selectResponse(rt *Router, card CardID, sender uuid.UUID) PacketResponse {
	czarID := g.players[g.czarIndex].id
	if sender == czarID {
		return rejected()
	}

	if g.currentPrompt == nil || !g.validCard(card) {
		return rejected()
	}
	pick := g.currentPrompt.Pick

	player := g.player(sender)
	if player == nil {
		return rejected()
	}

	if len(player.selections) >= pick {
		return rejected()
	}

	player.selections = append(player.selections, card)

	if len(player.selections) == pick {
		g.broadcast(rt, PlayerFinishedPickingPacket{ID: sender})
	}

	for _, p := range g.players {
		if p.id != czarID && len(p.selections) != pick {
			return accepted()
		}
	}

	g.broadcast(rt, g.displayResponses())
	g.state = stateCzarSelection

	return accepted()
}

func (g *Game) selectRoundWinner(rt *Router, winnerID uuid.UUID, sender uuid.UUID) PacketResponse {
	czarID := g.players[g.czarIndex].id
	if sender != czarID {
		return rejected()
	}

	winner := g.player(winnerID)
	if winner == nil || winnerID == czarID {
		return rejectedWithReason("Invalid player ID: %s", winnerID)
	}

	// The winner must be one of the submissions the czar was shown.
	if g.currentPrompt == nil || len(winner.selections) != g.currentPrompt.Pick {
		return rejectedWithReason("Invalid player ID: %s", winnerID)
	}

	winner.points++
	endGame := winner.points >= g.pointsToWin

	g.broadcast(rt, DisplayWinnerPacket{Winner: winnerID, EndGame: endGame})

	if endGame {
		g.state = stateEnd
	} else {
		g.nextRound(rt)
	}

	return accepted()
}

func (g *Game) Terminated() bool {
	return g.state == stateEnd && len(g.players) == 0
}

// releasePacks drops the game's pack-store references; called by the router
// when the listener is reaped.
func (g *Game) releasePacks() {
	for _, pack := range g.packs {
		g.store.Unload(pack.Name)
	}

	g.packs = nil
}
