// Wire protocol for the game socket.
//
// Every packet is an externally tagged JSON value: unit variants are encoded as
// a bare string ("StartGame"), variants with a payload as a single-key object
// ({"JoinGame":"<uuid>"}). Outbound frames are always a JSON array of packets.
// Inbound frames carry either a single packet or an array; each element may be
// a raw packet or wrapped as {"packet":...,"packet_id":"<uuid>"} to request an
// acknowledgement.

package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// CardID addresses a card by the game's local pack ordinal and the card's
// position within that pack.
type CardID struct {
	PackNumber int `json:"pack_number"`
	CardNumber int `json:"card_number"`
}

type Prompt struct {
	Text string `json:"text"`
	Pick int    `json:"pick"`
}

// ResponseData pairs a response card with its text so clients never need the
// pack contents.
type ResponseData struct {
	ID   CardID `json:"id"`
	Text string `json:"text"`
}

// GameSettings is the payload of CreateServer.
type GameSettings struct {
	MaxPlayers       *int     `json:"max_players"`
	MaxSelectionTime *int     `json:"max_selection_time"`
	PointsToWin      int      `json:"points_to_win"`
	Packs            []string `json:"packs"`
}

const (
	settingMaxPlayers       = "MaxPlayers"
	settingMaxSelectionTime = "MaxSelectionTime"
	settingPointsToWin      = "PointsToWin"
	settingAddPack          = "AddPack"
	settingRemovePack       = "RemovePack"
)

// GameSetting is a single-setting update, itself an externally tagged variant.
type GameSetting struct {
	Kind   string
	Limit  *int
	Points int
	Pack   string
}

func (s GameSetting) MarshalJSON() ([]byte, error) {
	switch s.Kind {
	case settingMaxPlayers, settingMaxSelectionTime:
		return json.Marshal(map[string]*int{s.Kind: s.Limit})
	case settingPointsToWin:
		return json.Marshal(map[string]int{s.Kind: s.Points})
	case settingAddPack, settingRemovePack:
		return json.Marshal(map[string]string{s.Kind: s.Pack})
	}
	return nil, fmt.Errorf("unknown game setting %q", s.Kind)
}

func (s *GameSetting) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 1 {
		return errors.New("game setting must carry exactly one variant")
	}
	for kind, payload := range raw {
		s.Kind = kind
		switch kind {
		case settingMaxPlayers, settingMaxSelectionTime:
			return json.Unmarshal(payload, &s.Limit)
		case settingPointsToWin:
			return json.Unmarshal(payload, &s.Points)
		case settingAddPack, settingRemovePack:
			return json.Unmarshal(payload, &s.Pack)
		default:
			return fmt.Errorf("unknown game setting %q", kind)
		}
	}
	return nil
}

const (
	responseAccepted           = "Accepted"
	responseRejected           = "Rejected"
	responseRejectedWithReason = "RejectedWithReason"
)

// PacketResponse is the verdict carried by an Ack.
type PacketResponse struct {
	Kind   string
	Reason string
}

func accepted() PacketResponse {
	return PacketResponse{Kind: responseAccepted}
}

func rejected() PacketResponse {
	return PacketResponse{Kind: responseRejected}
}

func rejectedWithReason(format string, args ...any) PacketResponse {
	return PacketResponse{Kind: responseRejectedWithReason, Reason: fmt.Sprintf(format, args...)}
}

func (r PacketResponse) MarshalJSON() ([]byte, error) {
	switch r.Kind {
	case responseAccepted, responseRejected:
		return json.Marshal(r.Kind)
	case responseRejectedWithReason:
		return json.Marshal(map[string]string{r.Kind: r.Reason})
	}
	return nil, fmt.Errorf("unknown packet response %q", r.Kind)
}

func (r *PacketResponse) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var kind string
		if err := json.Unmarshal(trimmed, &kind); err != nil {
			return err
		}
		if kind != responseAccepted && kind != responseRejected {
			return fmt.Errorf("unknown packet response %q", kind)
		}
		r.Kind = kind
		return nil
	}

	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	reason, ok := raw[responseRejectedWithReason]
	if !ok || len(raw) != 1 {
		return errors.New("malformed packet response")
	}
	r.Kind = responseRejectedWithReason
	r.Reason = reason
	return nil
}

// ServerBound is the sum of all packets a client may send. Exactly one variant
// field is set after a successful decode.
type ServerBound struct {
	SetPlayerName     *string
	StartGame         bool
	UpdateSetting     *GameSetting
	SelectResponse    *CardID
	SelectRoundWinner *uuid.UUID
	CreateServer      *GameSettings
	JoinGame          *uuid.UUID
	RefreshServerList bool
	RequestCardPacks  bool
	LeaveGame         bool
}

func (p *ServerBound) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var name string
		if err := json.Unmarshal(trimmed, &name); err != nil {
			return err
		}
		switch name {
		case "StartGame":
			p.StartGame = true
		case "RefreshServerList":
			p.RefreshServerList = true
		case "RequestCardPacks":
			p.RequestCardPacks = true
		case "LeaveGame":
			p.LeaveGame = true
		default:
			return fmt.Errorf("unknown packet %q", name)
		}
		return nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 1 {
		return errors.New("packet must carry exactly one variant")
	}
	for name, payload := range raw {
		switch name {
		case "SetPlayerName":
			return json.Unmarshal(payload, &p.SetPlayerName)
		case "UpdateSetting":
			return json.Unmarshal(payload, &p.UpdateSetting)
		case "SelectResponse":
			return json.Unmarshal(payload, &p.SelectResponse)
		case "SelectRoundWinner":
			return json.Unmarshal(payload, &p.SelectRoundWinner)
		case "CreateServer":
			return json.Unmarshal(payload, &p.CreateServer)
		case "JoinGame":
			return json.Unmarshal(payload, &p.JoinGame)
		default:
			return fmt.Errorf("unknown packet %q", name)
		}
	}
	return nil
}

func (p ServerBound) MarshalJSON() ([]byte, error) {
	switch {
	case p.SetPlayerName != nil:
		return json.Marshal(map[string]*string{"SetPlayerName": p.SetPlayerName})
	case p.StartGame:
		return json.Marshal("StartGame")
	case p.UpdateSetting != nil:
		return json.Marshal(map[string]*GameSetting{"UpdateSetting": p.UpdateSetting})
	case p.SelectResponse != nil:
		return json.Marshal(map[string]*CardID{"SelectResponse": p.SelectResponse})
	case p.SelectRoundWinner != nil:
		return json.Marshal(map[string]*uuid.UUID{"SelectRoundWinner": p.SelectRoundWinner})
	case p.CreateServer != nil:
		return json.Marshal(map[string]*GameSettings{"CreateServer": p.CreateServer})
	case p.JoinGame != nil:
		return json.Marshal(map[string]*uuid.UUID{"JoinGame": p.JoinGame})
	case p.RefreshServerList:
		return json.Marshal("RefreshServerList")
	case p.RequestCardPacks:
		return json.Marshal("RequestCardPacks")
	case p.LeaveGame:
		return json.Marshal("LeaveGame")
	}
	return nil, errors.New("empty serverbound packet")
}

// wrappedServerBound is one inbound packet plus its optional ack id.
type wrappedServerBound struct {
	Packet   ServerBound `json:"packet"`
	PacketID *uuid.UUID  `json:"packet_id"`
}

// decodeServerFrame parses a single inbound text frame. The frame is either
// one packet or an array of packets; each packet is raw or wrapped.
func decodeServerFrame(data []byte) ([]wrappedServerBound, error) {
	trimmed := bytes.TrimSpace(data)
	var elements []json.RawMessage
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &elements); err != nil {
			return nil, err
		}
	} else {
		elements = []json.RawMessage{trimmed}
	}

	packets := make([]wrappedServerBound, 0, len(elements))
	for _, element := range elements {
		packet, err := decodeServerBound(element)
		if err != nil {
			return nil, err
		}
		packets = append(packets, packet)
	}
	return packets, nil
}

func decodeServerBound(data []byte) (wrappedServerBound, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var probe map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &probe); err != nil {
			return wrappedServerBound{}, err
		}
		// The envelope is the only shape with a "packet" key.
		if _, ok := probe["packet"]; ok {
			var wrapped wrappedServerBound
			if err := json.Unmarshal(trimmed, &wrapped); err != nil {
				return wrappedServerBound{}, err
			}
			return wrapped, nil
		}
	}

	var packet ServerBound
	if err := json.Unmarshal(trimmed, &packet); err != nil {
		return wrappedServerBound{}, err
	}
	return wrappedServerBound{Packet: packet}, nil
}

// ClientBound is implemented by every packet the server sends.
type ClientBound interface {
	// variant returns the wire tag and the payload, or nil for unit variants.
	variant() (string, any)
}

type SetIDPacket struct {
	ID uuid.UUID
}

func (p SetIDPacket) variant() (string, any) { return "SetId", p.ID }

type StartGamePacket struct{}

func (StartGamePacket) variant() (string, any) { return "StartGame", nil }

type SettingUpdatePacket struct {
	Setting GameSetting
}

func (p SettingUpdatePacket) variant() (string, any) { return "SettingUpdate", p.Setting }

type AddPlayerPacket struct {
	ID     uuid.UUID `json:"id"`
	Name   string    `json:"name"`
	IsHost bool      `json:"is_host"`
	Points int       `json:"points"`
}

func (p AddPlayerPacket) variant() (string, any) { return "AddPlayer", p }

type UpdatePlayerNamePacket struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

func (p UpdatePlayerNamePacket) variant() (string, any) { return "UpdatePlayerName", p }

type RemovePlayerPacket struct {
	ID      uuid.UUID  `json:"id"`
	NewHost *uuid.UUID `json:"new_host"`
}

func (p RemovePlayerPacket) variant() (string, any) { return "RemovePlayer", p }

type PlayerFinishedPickingPacket struct {
	ID uuid.UUID
}

func (p PlayerFinishedPickingPacket) variant() (string, any) { return "PlayerFinishedPicking", p.ID }

type DisplayResponsesPacket map[uuid.UUID][]ResponseData

func (p DisplayResponsesPacket) variant() (string, any) {
	return "DisplayResponses", map[uuid.UUID][]ResponseData(p)
}

type NextRoundPacket struct {
	Czar         uuid.UUID      `json:"czar"`
	Prompt       Prompt         `json:"prompt"`
	NewResponses []ResponseData `json:"new_responses"`
}

func (p NextRoundPacket) variant() (string, any) { return "NextRound", p }

type CancelRoundPacket struct{}

func (CancelRoundPacket) variant() (string, any) { return "CancelRound", nil }

type DisplayWinnerPacket struct {
	Winner  uuid.UUID `json:"winner"`
	EndGame bool      `json:"end_game"`
}

func (p DisplayWinnerPacket) variant() (string, any) { return "DisplayWinner", p }

type AckPacket struct {
	PacketID uuid.UUID      `json:"packet_id"`
	Response PacketResponse `json:"response"`
}

func (p AckPacket) variant() (string, any) { return "Ack", p }

type ServerEntry struct {
	ID         uuid.UUID `json:"id"`
	HostName   string    `json:"host_name"`
	NumPlayers int       `json:"num_players"`
	MaxPlayers *int      `json:"max_players"`
}

type ServerListPacket struct {
	Servers []ServerEntry `json:"servers"`
}

func (p ServerListPacket) variant() (string, any) { return "ServerList", p }

type PackEntry struct {
	Name         string `json:"name"`
	NumPrompts   int    `json:"num_prompts"`
	NumResponses int    `json:"num_responses"`
}

type CardPacksPacket []PackEntry

func (p CardPacksPacket) variant() (string, any) { return "CardPacks", []PackEntry(p) }

func marshalClientBound(packet ClientBound) (json.RawMessage, error) {
	name, payload := packet.variant()
	if payload == nil {
		return json.Marshal(name)
	}
	return json.Marshal(map[string]any{name: payload})
}

// encodeFrame builds one outbound text frame. Frames are arrays even when they
// carry a single packet.
func encodeFrame(packets ...ClientBound) ([]byte, error) {
	encoded := make([]json.RawMessage, 0, len(packets))
	for _, packet := range packets {
		data, err := marshalClientBound(packet)
		if err != nil {
			return nil, err
		}
		encoded = append(encoded, data)
	}
	return json.Marshal(encoded)
}

// decodeClientBound is the codec's inverse, used to validate fixtures and by
// any Go client of the protocol.
func decodeClientBound(data []byte) (ClientBound, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var name string
		if err := json.Unmarshal(trimmed, &name); err != nil {
			return nil, err
		}
		switch name {
		case "StartGame":
			return StartGamePacket{}, nil
		case "CancelRound":
			return CancelRoundPacket{}, nil
		}
		return nil, fmt.Errorf("unknown packet %q", name)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, err
	}
	if len(raw) != 1 {
		return nil, errors.New("packet must carry exactly one variant")
	}
	for name, payload := range raw {
		switch name {
		case "SetId":
			var p SetIDPacket
			err := json.Unmarshal(payload, &p.ID)
			return p, err
		case "SettingUpdate":
			var p SettingUpdatePacket
			err := json.Unmarshal(payload, &p.Setting)
			return p, err
		case "AddPlayer":
			var p AddPlayerPacket
			err := json.Unmarshal(payload, &p)
			return p, err
		case "UpdatePlayerName":
			var p UpdatePlayerNamePacket
			err := json.Unmarshal(payload, &p)
			return p, err
		case "RemovePlayer":
			var p RemovePlayerPacket
			err := json.Unmarshal(payload, &p)
			return p, err
		case "PlayerFinishedPicking":
			var p PlayerFinishedPickingPacket
			err := json.Unmarshal(payload, &p.ID)
			return p, err
		case "DisplayResponses":
			var p DisplayResponsesPacket
			err := json.Unmarshal(payload, &p)
			return p, err
		case "NextRound":
			var p NextRoundPacket
			err := json.Unmarshal(payload, &p)
			return p, err
		case "DisplayWinner":
			var p DisplayWinnerPacket
			err := json.Unmarshal(payload, &p)
			return p, err
		case "Ack":
			var p AckPacket
			err := json.Unmarshal(payload, &p)
			return p, err
		case "ServerList":
			var p ServerListPacket
			err := json.Unmarshal(payload, &p)
			return p, err
		case "CardPacks":
			var p CardPacksPacket
			err := json.Unmarshal(payload, &p)
			return p, err
		default:
			return nil, fmt.Errorf("unknown packet %q", name)
		}
	}
	return nil, errors.New("empty packet")
}

// decodeClientFrame parses an outbound frame back into packets.
func decodeClientFrame(data []byte) ([]ClientBound, error) {
	var elements []json.RawMessage
	if err := json.Unmarshal(data, &elements); err != nil {
		return nil, err
	}
	packets := make([]ClientBound, 0, len(elements))
	for _, element := range elements {
		packet, err := decodeClientBound(element)
		if err != nil {
			return nil, err
		}
		packets = append(packets, packet)
	}
	return packets, nil
}
