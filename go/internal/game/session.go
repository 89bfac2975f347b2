package game

import (
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/mcdev12/econgame/go/internal/events"
	"github.com/rs/zerolog/log"
)

const (
	maxIdentityLength = 40
	maxTeamMembers    = 12
)

// PlayerSnapshot is everything a player needs to render their screen.
type PlayerSnapshot struct {
	Identity           string   `json:"identity"`
	Members            []string `json:"members,omitempty"`
	Phase              Phase    `json:"phase"`
	Round              int      `json:"round"`
	TotalRounds        int      `json:"totalRounds"`
	Capital            float64  `json:"capital"`
	Output             float64  `json:"output"`
	Submitted          bool     `json:"submitted"`
	Investment         *float64 `json:"investment,omitempty"`
	AutoSubmitted      bool     `json:"autoSubmitted"`
	TimeRemaining      int      `json:"timeRemaining"`
	ManualStartEnabled bool     `json:"manualStartEnabled"`
}

// PlayerSummary is one roster row of a GameSnapshot.
type PlayerSummary struct {
	Identity      string   `json:"identity"`
	Members       []string `json:"members,omitempty"`
	Connected     bool     `json:"connected"`
	Submitted     bool     `json:"submitted"`
	Investment    *float64 `json:"investment,omitempty"`
	AutoSubmitted bool     `json:"autoSubmitted"`
	Capital       float64  `json:"capital"`
	Output        float64  `json:"output"`
}

// GameSnapshot is the instructor and screen view of the whole game.
type GameSnapshot struct {
	Phase              Phase           `json:"phase"`
	Round              int             `json:"round"`
	TotalRounds        int             `json:"totalRounds"`
	TimeRemaining      int             `json:"timeRemaining"`
	ManualStartEnabled bool            `json:"manualStartEnabled"`
	PendingEndRound    bool            `json:"pendingEndRound"`
	ConnectedCount     int             `json:"connectedCount"`
	SubmittedCount     int             `json:"submittedCount"`
	Players            []PlayerSummary `json:"players"`
}

// JoinResult is returned by Join.
type JoinResult struct {
	Snapshot PlayerSnapshot
	// ReplacedConnID is the connection that spoke for the identity before
	// this join, empty when there was none.
	ReplacedConnID string
	Reconnected    bool
}

// Join binds connID to identity, creating the player on first sight.
func (e *Engine) Join(connID, identity string) (JoinResult, error) {
	var res JoinResult
	err := e.exec("join", func() error {
		var err error
		res, err = e.join(connID, identity)
		return err
	})
	return res, err
}

func (e *Engine) join(connID, raw string) (JoinResult, error) {
	identity, err := normalizeIdentity(raw)
	if err != nil {
		return JoinResult{}, err
	}

	p, exists := e.state.players[identity]
	if !exists {
		if e.cfg.RequireRegisteredTeams {
			return JoinResult{}, ErrUnknownTeam
		}
		p = e.addPlayer(identity, nil)
	}

	// A connection speaks for one identity at a time.
	if current, ok := e.directory.IdentityOf(connID); ok && current != identity {
		e.releaseConnection(connID)
	}

	previous, replaced := e.directory.Bind(identity, connID)
	p.ConnectionID = connID
	p.Connected = true

	connected, _ := e.state.counts()
	log.Info().
		Str("identity", identity).
		Str("conn_id", connID).
		Bool("reconnected", exists).
		Bool("replaced", replaced).
		Int("connected", connected).
		Msg("player joined")

	e.broadcastStaff(events.TypePlayerJoined, events.PlayerPresencePayload{
		PlayerID:       identity,
		ConnectedCount: connected,
	})

	e.checkAutoStart()

	res := JoinResult{
		Snapshot:    e.playerSnapshot(p),
		Reconnected: exists,
	}
	if replaced {
		res.ReplacedConnID = previous
	}
	return res, nil
}

func (e *Engine) addPlayer(identity string, members []string) *Player {
	e.state.nextSeq++
	initial := e.model.InitialCapital()
	p := &Player{
		Identity: identity,
		Members:  members,
		Capital:  initial,
		Output:   e.model.Output(initial),
		JoinSeq:  e.state.nextSeq,
		JoinedAt: e.clock.Now(),
	}
	e.state.players[identity] = p
	return p
}

// Disconnect releases connID. Connections that were already replaced are ignored.
func (e *Engine) Disconnect(connID string) {
	_ = e.exec("disconnect", func() error {
		e.releaseConnection(connID)
		return nil
	})
}

func (e *Engine) releaseConnection(connID string) {
	identity, ok := e.directory.Unbind(connID)
	if !ok {
		log.Debug().Str("conn_id", connID).Msg("ignoring disconnect of stale connection")
		return
	}
	p, ok := e.state.players[identity]
	if !ok {
		return
	}
	p.Connected = false
	p.ConnectionID = ""

	connected, _ := e.state.counts()
	log.Info().Str("identity", identity).Str("conn_id", connID).Int("connected", connected).Msg("player disconnected")
	e.broadcastStaff(events.TypePlayerDisconnected, events.PlayerPresencePayload{
		PlayerID:       identity,
		ConnectedCount: connected,
	})

	// The players still here may now all have submitted.
	e.checkAllSubmitted()
}

// RegisterTeam adds a team to the roster before anyone joins as it.
func (e *Engine) RegisterTeam(name string, members []string) error {
	return e.exec("register_team", func() error {
		identity, err := normalizeIdentity(name)
		if err != nil {
			return err
		}
		cleaned, err := normalizeMembers(members)
		if err != nil {
			return err
		}
		if _, exists := e.state.players[identity]; exists {
			return ErrIdentityTaken
		}

		e.addPlayer(identity, cleaned)
		log.Info().Str("team", identity).Strs("members", cleaned).Msg("team registered")
		e.broadcastStaff(events.TypeTeamRegistered, events.TeamRegisteredPayload{
			TeamName: identity,
			Members:  cleaned,
		})
		return nil
	})
}

// IdentityOf returns the identity connID currently speaks for.
func (e *Engine) IdentityOf(connID string) (string, bool) {
	return e.directory.IdentityOf(connID)
}

// PlayerSnapshot returns identity's view of the game.
func (e *Engine) PlayerSnapshot(identity string) (PlayerSnapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.state.players[identity]
	if !ok {
		return PlayerSnapshot{}, ErrNotInGame
	}
	return e.playerSnapshot(p), nil
}

func (e *Engine) playerSnapshot(p *Player) PlayerSnapshot {
	snap := PlayerSnapshot{
		Identity:           p.Identity,
		Members:            slices.Clone(p.Members),
		Phase:              e.state.phase,
		Round:              e.state.round,
		TotalRounds:        e.cfg.TotalRounds,
		Capital:            p.Capital,
		Output:             p.Output,
		Submitted:          p.submitted(),
		AutoSubmitted:      p.IsAutoSubmitted,
		TimeRemaining:      e.timeRemaining(),
		ManualStartEnabled: e.state.manualStartEnabled,
	}
	if p.submitted() {
		v := *p.PendingInvestment
		snap.Investment = &v
	}
	return snap
}

// GameSnapshot returns the whole game as the instructor sees it.
func (e *Engine) GameSnapshot() GameSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	connected, submitted := e.state.counts()
	snap := GameSnapshot{
		Phase:              e.state.phase,
		Round:              e.state.round,
		TotalRounds:        e.cfg.TotalRounds,
		TimeRemaining:      e.timeRemaining(),
		ManualStartEnabled: e.state.manualStartEnabled,
		PendingEndRound:    e.state.pendingEndRound,
		ConnectedCount:     connected,
		SubmittedCount:     submitted,
		Players:            make([]PlayerSummary, 0, len(e.state.players)),
	}
	for _, p := range e.state.ordered() {
		row := PlayerSummary{
			Identity:      p.Identity,
			Members:       slices.Clone(p.Members),
			Connected:     p.Connected,
			Submitted:     p.submitted(),
			AutoSubmitted: p.IsAutoSubmitted,
			Capital:       p.Capital,
			Output:        p.Output,
		}
		if p.submitted() {
			v := *p.PendingInvestment
			row.Investment = &v
		}
		snap.Players = append(snap.Players, row)
	}
	return snap
}

func normalizeIdentity(raw string) (string, error) {
	identity := strings.TrimSpace(raw)
	n := utf8.RuneCountInString(identity)
	if n == 0 || n > maxIdentityLength || !utf8.ValidString(identity) {
		return "", ErrInvalidIdentity
	}
	for _, r := range identity {
		if !unicode.IsPrint(r) {
			return "", ErrInvalidIdentity
		}
	}
	return identity, nil
}

// normalizeMembers trims names, drops blanks and duplicates.
func normalizeMembers(raw []string) ([]string, error) {
	out := make([]string, 0, len(raw))
	for _, m := range raw {
		if strings.TrimSpace(m) == "" {
			continue
		}
		name, err := normalizeIdentity(m)
		if err != nil {
			return nil, err
		}
		if !slices.Contains(out, name) {
			out = append(out, name)
		}
	}
	if len(out) > maxTeamMembers {
		return nil, ErrInvalidIdentity
	}
	return out, nil
}
