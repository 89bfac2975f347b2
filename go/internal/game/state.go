package game

import (
	"slices"
	"time"
)

// Phase is the lifecycle stage of the game.
type Phase string

const (
	PhaseWaiting     Phase = "waiting"
	PhaseActive      Phase = "active"
	PhaseRoundEnding Phase = "round_ending"
	PhaseCompleted   Phase = "completed"
)

// Player is a student or team taking part in the game.
type Player struct {
	Identity          string
	Members           []string
	Capital           float64
	Output            float64
	PendingInvestment *float64
	IsAutoSubmitted   bool
	ConnectionID      string
	Connected         bool
	JoinSeq           int
	JoinedAt          time.Time
}

func (p *Player) submitted() bool {
	return p.PendingInvestment != nil
}

func (p *Player) clearPending() {
	p.PendingInvestment = nil
	p.IsAutoSubmitted = false
}

// state is the single authoritative game. It is only touched with Engine.mu held.
type state struct {
	phase              Phase
	round              int
	manualStartEnabled bool
	pendingEndRound    bool
	roundStartedAt     time.Time
	roundDeadline      time.Time
	autoSubmitApplied  bool
	players            map[string]*Player
	nextSeq            int
}

func newState(manualStart bool) state {
	return state{
		phase:              PhaseWaiting,
		manualStartEnabled: manualStart,
		players:            make(map[string]*Player),
	}
}

// ordered returns the roster in join order.
func (s *state) ordered() []*Player {
	out := make([]*Player, 0, len(s.players))
	for _, p := range s.players {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b *Player) int { return a.JoinSeq - b.JoinSeq })
	return out
}

func (s *state) counts() (connected, submitted int) {
	for _, p := range s.players {
		if !p.Connected {
			continue
		}
		connected++
		if p.submitted() {
			submitted++
		}
	}
	return connected, submitted
}
