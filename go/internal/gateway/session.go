package gateway

import (
	"encoding/json"
	"runtime/debug"

	"github.com/mcdev12/econgame/go/internal/events"
	"github.com/mcdev12/econgame/go/internal/game"
	"github.com/rs/zerolog/log"
)

// Engine is the game API the gateway drives.
type Engine interface {
	Join(connID, identity string) (game.JoinResult, error)
	Disconnect(connID string)
	SubmitInvestment(identity string, raw float64, auto bool) (game.SubmitResult, error)
	StartGame() error
	ForceEndGame() error
	SetManualStart(enabled bool) error
	Reset(clearRoster bool) error
	RegisterTeam(name string, members []string) error
	IdentityOf(connID string) (string, bool)
	PlayerSnapshot(identity string) (game.PlayerSnapshot, error)
	GameSnapshot() game.GameSnapshot
}

var (
	errRateLimited        = &game.Error{Kind: game.KindValidation, Code: "rate_limited", Message: "slow down"}
	errUnknownMessageType = &game.Error{Kind: game.KindValidation, Code: "unknown_message_type", Message: "unknown message type"}
)

// Connection status values sent in connection_status events.
const (
	StatusConnected   = "connected"
	StatusJoined      = "joined"
	StatusReconnected = "reconnected"
	StatusReplaced    = "replaced"
)

// Sessions turns client messages into engine calls and reports the outcome
// back to the originating connection.
type Sessions struct {
	engine Engine
	cm     *ConnectionManager
}

// NewSessions creates the message handler for cm.
func NewSessions(engine Engine, cm *ConnectionManager) *Sessions {
	return &Sessions{engine: engine, cm: cm}
}

// HandleOpen greets a new connection with the state it is allowed to see.
func (s *Sessions) HandleOpen(c *Connection) {
	s.cm.SendTo(c.ID, events.TypeConnectionStatus, events.ConnectionStatusPayload{
		Status:  StatusConnected,
		Message: "connected as " + string(c.Role),
	})
	if c.Role != RolePlayer {
		s.cm.SendTo(c.ID, events.TypeStateSnapshot, s.engine.GameSnapshot())
	}
}

// HandleClose releases whatever identity the connection spoke for.
func (s *Sessions) HandleClose(c *Connection) {
	if c.Role == RolePlayer {
		s.engine.Disconnect(c.ID)
	}
}

// HandleMessage processes one inbound message.
func (s *Sessions) HandleMessage(c *Connection, raw []byte) {
	var msg events.ClientMessage
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("connection_id", c.ID).
				Str("role", string(c.Role)).
				Str("message_type", string(msg.Type)).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("recovered panic while handling client message")
			s.sendError(c, game.ErrInternal)
		}
	}()

	if !c.Allow() {
		s.sendError(c, errRateLimited)
		return
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		log.Debug().Err(err).Str("connection_id", c.ID).Msg("malformed client message")
		s.sendError(c, game.ErrMalformedMessage)
		return
	}

	if err := s.dispatch(c, msg); err != nil {
		s.sendError(c, err)
	}
}

func (s *Sessions) dispatch(c *Connection, msg events.ClientMessage) error {
	switch msg.Type {
	case events.TypeJoinOrReconnect:
		return s.handleJoin(c, msg)
	case events.TypeSubmitInvestment:
		return s.handleSubmit(c, msg)
	case events.TypeRequestStateSnapshot:
		return s.handleSnapshot(c)
	case events.TypeRegisterTeam:
		return s.handleRegisterTeam(c, msg)
	case events.TypeStartGame:
		return s.asInstructor(c, s.engine.StartGame)
	case events.TypeForceEndGame:
		return s.asInstructor(c, s.engine.ForceEndGame)
	case events.TypeSetManualStart:
		var p events.SetManualStartPayload
		if err := msg.Decode(&p); err != nil {
			return game.ErrMalformedMessage
		}
		return s.asInstructor(c, func() error { return s.engine.SetManualStart(p.Enabled) })
	case events.TypeResetGame:
		var p events.ResetGamePayload
		if err := msg.Decode(&p); err != nil {
			return game.ErrMalformedMessage
		}
		return s.asInstructor(c, func() error { return s.engine.Reset(p.ClearRoster) })
	default:
		log.Debug().Str("connection_id", c.ID).Str("message_type", string(msg.Type)).Msg("unknown message type")
		return errUnknownMessageType
	}
}

func (s *Sessions) asInstructor(c *Connection, action func() error) error {
	if c.Role != RoleInstructor {
		return game.ErrNotAuthorized
	}
	return action()
}

func (s *Sessions) handleJoin(c *Connection, msg events.ClientMessage) error {
	if c.Role != RolePlayer {
		return game.ErrNotAuthorized
	}
	var p events.JoinOrReconnectPayload
	if err := msg.Decode(&p); err != nil {
		return game.ErrMalformedMessage
	}

	previous, hadIdentity := s.engine.IdentityOf(c.ID)
	res, err := s.engine.Join(c.ID, p.Identity)
	if err != nil {
		return err
	}
	identity := res.Snapshot.Identity

	if hadIdentity && previous != identity {
		s.cm.LeaveRoom(c.ID, events.PlayerRoom(previous))
	}
	s.cm.JoinRoom(c.ID, events.PlayerRoom(identity))

	if res.ReplacedConnID != "" {
		s.cm.LeaveRoom(res.ReplacedConnID, events.PlayerRoom(identity))
		s.cm.SendAndClose(res.ReplacedConnID, events.TypeConnectionStatus, events.ConnectionStatusPayload{
			Status:  StatusReplaced,
			Message: "signed in from another device",
		})
		log.Info().
			Str("identity", identity).
			Str("connection_id", c.ID).
			Str("replaced_connection_id", res.ReplacedConnID).
			Msg("connection replaced")
	}

	status := StatusJoined
	if res.Reconnected {
		status = StatusReconnected
	}
	s.cm.SendTo(c.ID, events.TypeConnectionStatus, events.ConnectionStatusPayload{
		Status:  status,
		Message: "playing as " + identity,
	})
	s.cm.SendTo(c.ID, events.TypeStateSnapshot, res.Snapshot)
	return nil
}

func (s *Sessions) handleSubmit(c *Connection, msg events.ClientMessage) error {
	if c.Role != RolePlayer {
		return game.ErrNotAuthorized
	}
	identity, ok := s.engine.IdentityOf(c.ID)
	if !ok {
		return game.ErrNotInGame
	}
	var p events.SubmitInvestmentPayload
	if err := msg.Decode(&p); err != nil || p.Value == nil {
		return game.ErrInvalidInvestment
	}

	res, err := s.engine.SubmitInvestment(identity, *p.Value, false)
	if err != nil {
		return err
	}
	if res.Duplicate {
		// Nothing changed; remind the sender what was recorded.
		s.cm.SendTo(c.ID, events.TypeInvestmentReceived, events.InvestmentReceivedPayload{
			PlayerID:  identity,
			Value:     res.Value,
			Auto:      res.Auto,
			Duplicate: true,
			Message:   res.Notice,
		})
	}
	return nil
}

func (s *Sessions) handleSnapshot(c *Connection) error {
	if c.Role != RolePlayer {
		s.cm.SendTo(c.ID, events.TypeStateSnapshot, s.engine.GameSnapshot())
		return nil
	}
	identity, ok := s.engine.IdentityOf(c.ID)
	if !ok {
		return game.ErrNotInGame
	}
	snap, err := s.engine.PlayerSnapshot(identity)
	if err != nil {
		return err
	}
	s.cm.SendTo(c.ID, events.TypeStateSnapshot, snap)
	return nil
}

func (s *Sessions) handleRegisterTeam(c *Connection, msg events.ClientMessage) error {
	if c.Role == RoleScreen {
		return game.ErrNotAuthorized
	}
	var p events.RegisterTeamPayload
	if err := msg.Decode(&p); err != nil {
		return game.ErrMalformedMessage
	}
	return s.engine.RegisterTeam(p.TeamName, p.Members)
}

func (s *Sessions) sendError(c *Connection, err error) {
	e := game.AsError(err)
	if e.Kind == game.KindInternal {
		log.Error().Err(err).Str("connection_id", c.ID).Msg("internal error handling client message")
	} else {
		log.Debug().Str("connection_id", c.ID).Str("code", e.Code).Msg("client action rejected")
	}
	s.cm.SendTo(c.ID, events.TypeError, events.ErrorPayload{Code: e.Code, Message: e.Message})
}
