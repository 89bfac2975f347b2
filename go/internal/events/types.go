package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Room is a broadcast group on the transport.
type Room string

const (
	RoomAll        Room = "all"
	RoomPlayers    Room = "players"
	RoomInstructor Room = "instructor"
	RoomScreens    Room = "screens"
)

const playerRoomPrefix = "player:"

// PlayerRoom is the room used for delivery to a single player identity.
func PlayerRoom(identity string) Room {
	return Room(playerRoomPrefix + identity)
}

// Type names an event on the wire, in either direction.
type Type string

// Server to client
const (
	TypeRoundStart         Type = "round_start"
	TypeTimerUpdate        Type = "timer_update"
	TypeInvestmentReceived Type = "investment_received"
	TypeAllSubmitted       Type = "all_submitted"
	TypeRoundSummary       Type = "round_summary"
	TypeGameOver           Type = "game_over"
	TypeStateSnapshot      Type = "state_snapshot"
	TypeConnectionStatus   Type = "connection_status"
	TypePlayerJoined       Type = "player_joined"
	TypePlayerDisconnected Type = "player_disconnected"
	TypeGameReset          Type = "game_reset"
	TypeManualStartChanged Type = "manual_start_changed"
	TypeTeamRegistered     Type = "team_registered"
	TypeError              Type = "error"
)

// Client to server
const (
	TypeJoinOrReconnect      Type = "join_or_reconnect"
	TypeSubmitInvestment     Type = "submit_investment"
	TypeStartGame            Type = "start_game"
	TypeForceEndGame         Type = "force_end_game"
	TypeSetManualStart       Type = "set_manual_start"
	TypeRequestStateSnapshot Type = "request_state_snapshot"
	TypeRegisterTeam         Type = "register_team"
	TypeResetGame            Type = "reset_game"
)

// Event is the envelope for every server to client message.
type Event struct {
	ID        string          `json:"id"`
	Type      Type            `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// ClientMessage is the envelope for every client to server message.
type ClientMessage struct {
	Type Type            `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// New wraps payload in an envelope with a fresh id and timestamp.
func New(eventType Type, payload any) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}, nil
}

// Decode unmarshals the client message data into v. Missing data decodes as empty.
func (m ClientMessage) Decode(v any) error {
	if len(m.Data) == 0 || string(m.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", m.Type, err)
	}
	return nil
}
