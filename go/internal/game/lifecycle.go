package game

import (
	"slices"

	"github.com/mcdev12/econgame/go/internal/events"
	"github.com/rs/zerolog/log"
)

// StartGame begins round 1.
func (e *Engine) StartGame() error {
	return e.exec("start_game", e.startGame)
}

func (e *Engine) startGame() error {
	if connected, _ := e.state.counts(); connected == 0 {
		return ErrNoPlayers
	}
	if e.state.phase != PhaseWaiting {
		return ErrAlreadyRunning
	}

	e.state.round = 1
	log.Info().Int("players", len(e.state.players)).Int("total_rounds", e.cfg.TotalRounds).Msg("game started")
	e.startRound()
	return nil
}

// checkAutoStart starts a waiting game once enough players are connected,
// unless the instructor has asked to start it by hand.
func (e *Engine) checkAutoStart() bool {
	if e.state.manualStartEnabled || !e.cfg.AutoStart.Enabled || e.state.phase != PhaseWaiting {
		return false
	}
	connected, _ := e.state.counts()
	if connected < e.cfg.AutoStart.Threshold {
		return false
	}
	if err := e.startGame(); err != nil {
		log.Warn().Err(err).Msg("auto start failed")
		return false
	}
	log.Info().Int("players", connected).Msg("game auto-started")
	return true
}

// SetManualStart toggles whether the instructor must start the game.
func (e *Engine) SetManualStart(enabled bool) error {
	return e.exec("set_manual_start", func() error {
		e.state.manualStartEnabled = enabled
		e.broadcastStaff(events.TypeManualStartChanged, events.ManualStartChangedPayload{Enabled: enabled})
		if !enabled {
			e.checkAutoStart()
		}
		return nil
	})
}

// ForceEndGame ends the game now. A round in flight is settled first so
// its results are not lost. Ending a completed game is a no-op.
func (e *Engine) ForceEndGame() error {
	return e.exec("force_end_game", func() error {
		switch e.state.phase {
		case PhaseCompleted:
			log.Debug().Msg("force end ignored, game already completed")
			return nil
		case PhaseActive, PhaseRoundEnding:
			e.closeRound()
		default:
			e.cancelTimers()
		}
		log.Info().Int("round", e.state.round).Msg("game force-ended")
		e.endGame(true)
		return nil
	})
}

// endGame ranks the players, announces the result and prepares the roster
// for a replay.
func (e *Engine) endGame(forced bool) {
	if e.state.phase == PhaseCompleted {
		return
	}
	e.cancelTimers()

	standings := e.standings()
	e.state.phase = PhaseCompleted
	e.state.pendingEndRound = false

	payload := events.GameOverPayload{
		FinalResults: standings,
		RoundsPlayed: e.state.round,
		Forced:       forced,
	}
	if len(standings) > 0 {
		winner := standings[0]
		payload.Winner = &winner
	}

	ev := log.Info().Int("rounds_played", e.state.round).Bool("forced", forced)
	if payload.Winner != nil {
		ev = ev.Str("winner", payload.Winner.PlayerID).Float64("output", payload.Winner.Output)
	}
	ev.Msg("game over")

	e.broadcast(events.RoomAll, events.TypeGameOver, payload)

	initial := e.model.InitialCapital()
	for identity, p := range e.state.players {
		if !p.Connected {
			delete(e.state.players, identity)
			e.directory.Forget(identity)
			continue
		}
		p.Capital = initial
		p.Output = e.model.Output(initial)
		p.clearPending()
	}
}

// standings ranks players by output, highest first. Equal outputs go to
// whoever joined first.
func (e *Engine) standings() []events.Standing {
	players := e.state.ordered()
	slices.SortStableFunc(players, func(a, b *Player) int {
		switch {
		case a.Output > b.Output:
			return -1
		case a.Output < b.Output:
			return 1
		default:
			return a.JoinSeq - b.JoinSeq
		}
	})

	out := make([]events.Standing, 0, len(players))
	for i, p := range players {
		out = append(out, events.Standing{
			Rank:      i + 1,
			PlayerID:  p.Identity,
			Members:   slices.Clone(p.Members),
			Capital:   p.Capital,
			Output:    p.Output,
			Connected: p.Connected,
		})
	}
	return out
}

// Reset returns the game to Waiting with fresh economies. Identities and
// their connections are kept unless clearRoster is set.
func (e *Engine) Reset(clearRoster bool) error {
	return e.exec("reset_game", func() error {
		e.cancelTimers()

		e.state.phase = PhaseWaiting
		e.state.round = 0
		e.state.pendingEndRound = false
		e.state.autoSubmitApplied = false
		e.state.roundStartedAt = e.clock.Now()
		e.state.roundDeadline = e.state.roundStartedAt

		if clearRoster {
			e.state.players = make(map[string]*Player)
			e.state.nextSeq = 0
			e.directory.Clear()
		} else {
			initial := e.model.InitialCapital()
			for _, p := range e.state.players {
				p.Capital = initial
				p.Output = e.model.Output(initial)
				p.clearPending()
			}
		}

		log.Info().Bool("clear_roster", clearRoster).Int("players", len(e.state.players)).Msg("game reset")
		e.broadcast(events.RoomAll, events.TypeGameReset, events.GameResetPayload{RosterCleared: clearRoster})
		return nil
	})
}
