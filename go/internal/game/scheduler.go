package game

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/econgame/go/internal/economy"
	"github.com/mcdev12/econgame/go/internal/events"
	"github.com/rs/zerolog/log"
)

// roundTimers are the timers of the round in flight. All of them share one
// stop channel so a single cancelTimers call retires every waiting goroutine.
type roundTimers struct {
	stop   chan struct{}
	ticker clockwork.Ticker
	timers []clockwork.Timer
}

func (t *roundTimers) live() bool {
	return t.stop != nil
}

// SubmitResult describes how a submission was recorded.
type SubmitResult struct {
	Value     float64
	Clamped   bool
	Auto      bool
	Duplicate bool
	// Notice explains a clamped or duplicate submission to the player.
	Notice string
}

const duplicateNotice = "investment already submitted for this round"

// SubmitInvestment records identity's investment for the current round. A
// second submission in the same round is a no-op that reports the first value.
func (e *Engine) SubmitInvestment(identity string, raw float64, auto bool) (SubmitResult, error) {
	var res SubmitResult
	err := e.exec("submit_investment", func() error {
		var err error
		res, err = e.submitInvestment(identity, raw, auto)
		return err
	})
	return res, err
}

func (e *Engine) submitInvestment(identity string, raw float64, auto bool) (SubmitResult, error) {
	if !e.acceptingSubmissions() {
		return SubmitResult{}, ErrNotAcceptingSubmissions
	}
	p, ok := e.state.players[identity]
	if !ok {
		return SubmitResult{}, ErrNotInGame
	}
	if errors.Is(e.model.Validate(raw, p.Output), economy.ErrNotFinite) {
		return SubmitResult{}, ErrInvalidInvestment
	}
	if p.submitted() {
		log.Debug().Str("identity", identity).Int("round", e.state.round).Msg("duplicate investment ignored")
		return SubmitResult{
			Value:     *p.PendingInvestment,
			Auto:      p.IsAutoSubmitted,
			Duplicate: true,
			Notice:    duplicateNotice,
		}, nil
	}
	return e.storeInvestment(p, raw, auto), nil
}

func (e *Engine) acceptingSubmissions() bool {
	return e.state.phase == PhaseActive && e.state.round >= 1 && e.state.round <= e.cfg.TotalRounds
}

// storeInvestment clamps raw against the player's output and records it.
func (e *Engine) storeInvestment(p *Player, raw float64, auto bool) SubmitResult {
	value, clamped := raw, false
	var notice string
	if err := e.model.Validate(raw, p.Output); err != nil {
		value, clamped = e.model.Clamp(raw, p.Output)
		notice = fmt.Sprintf("%v, clamped to %.2f", err, value)
		log.Debug().
			Str("identity", p.Identity).
			Float64("raw", raw).
			Float64("value", value).
			Msg("investment clamped to output")
	}
	p.PendingInvestment = &value
	p.IsAutoSubmitted = auto

	payload := events.InvestmentReceivedPayload{
		PlayerID: p.Identity,
		Value:    value,
		Auto:     auto,
		Clamped:  clamped,
		Message:  notice,
	}
	e.broadcastStaff(events.TypeInvestmentReceived, payload)
	e.broadcast(events.PlayerRoom(p.Identity), events.TypeInvestmentReceived, payload)

	e.checkAllSubmitted()
	return SubmitResult{Value: value, Clamped: clamped, Auto: auto, Notice: notice}
}

// checkAllSubmitted ends the round early, after a short grace period, once
// every connected player has an investment in.
func (e *Engine) checkAllSubmitted() {
	if e.state.phase != PhaseActive || e.state.pendingEndRound {
		return
	}
	connected, submitted := e.state.counts()
	if connected == 0 || submitted < connected {
		return
	}

	round := e.state.round
	e.state.pendingEndRound = true
	e.armGrace(round)

	log.Info().Int("round", round).Int("players", connected).Msg("all investments received")
	e.broadcast(events.RoomAll, events.TypeAllSubmitted, events.AllSubmittedPayload{
		RoundNumber:        round,
		GracePeriodSeconds: e.cfg.AllSubmittedGrace.Seconds(),
	})
}

// startRound opens the current round. Caller sets the round number.
func (e *Engine) startRound() {
	now := e.clock.Now()
	for _, p := range e.state.players {
		p.clearPending()
	}
	e.state.phase = PhaseActive
	e.state.pendingEndRound = false
	e.state.autoSubmitApplied = false
	e.state.roundStartedAt = now
	e.state.roundDeadline = now.Add(e.cfg.RoundDuration)

	e.armRoundTimers(e.state.round)

	log.Info().
		Int("round", e.state.round).
		Int("total_rounds", e.cfg.TotalRounds).
		Time("deadline", e.state.roundDeadline).
		Msg("round started")

	e.broadcast(events.RoomAll, events.TypeRoundStart, events.RoundStartPayload{
		RoundNumber:   e.state.round,
		TotalRounds:   e.cfg.TotalRounds,
		TimeRemaining: e.timeRemaining(),
		Deadline:      e.state.roundDeadline,
	})
}

func (e *Engine) armRoundTimers(round int) {
	e.cancelTimers()
	stop := make(chan struct{})
	ticker := e.clock.NewTicker(e.cfg.TickInterval)
	e.timers = roundTimers{stop: stop, ticker: ticker}

	go func() {
		for {
			select {
			case <-stop:
				return
			case <-ticker.Chan():
				e.fire("tick", round, e.onTick)
			}
		}
	}()

	// Backstop in case ticks are delayed or dropped.
	backup := e.state.roundDeadline.Sub(e.clock.Now()) + e.cfg.BackupSlack
	if backup < e.cfg.BackupSlack {
		backup = e.cfg.BackupSlack
	}
	e.armTimer("deadline", round, backup, e.endRound)
}

// armGrace replaces the round timers with the single grace timer.
func (e *Engine) armGrace(round int) {
	e.cancelTimers()
	e.timers.stop = make(chan struct{})
	e.armTimer("grace", round, e.cfg.AllSubmittedGrace, e.endRound)
}

// armTimer schedules fn(round) after d on the current stop channel.
func (e *Engine) armTimer(op string, round int, d time.Duration, fn func(round int)) {
	timer := e.clock.NewTimer(d)
	e.timers.timers = append(e.timers.timers, timer)
	stop := e.timers.stop

	go func() {
		select {
		case <-timer.Chan():
			e.fire(op, round, fn)
		case <-stop:
		}
	}()

	log.Debug().Str("timer", op).Int("round", round).Dur("duration", d).Msg("armed round timer")
}

func (e *Engine) fire(op string, round int, fn func(round int)) {
	_ = e.exec(op, func() error {
		fn(round)
		return nil
	})
}

// cancelTimers is the only way round timers are retired.
func (e *Engine) cancelTimers() {
	if !e.timers.live() {
		return
	}
	close(e.timers.stop)
	if e.timers.ticker != nil {
		e.timers.ticker.Stop()
	}
	for _, t := range e.timers.timers {
		stopAndDrainTimer(t)
	}
	e.timers = roundTimers{}
}

// stopAndDrainTimer stops a timer and drains its channel if it already fired.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}

func (e *Engine) onTick(round int) {
	if e.state.phase != PhaseActive || e.state.round != round || e.state.pendingEndRound {
		return
	}

	remaining := e.state.roundDeadline.Sub(e.clock.Now())
	e.broadcast(events.RoomAll, events.TypeTimerUpdate, events.TimerUpdatePayload{
		RoundNumber:   round,
		TimeRemaining: ceilSeconds(remaining),
	})

	if remaining <= 0 {
		e.endRound(round)
		return
	}
	if e.cfg.AutoSubmitAt > 0 && !e.state.autoSubmitApplied && remaining <= e.cfg.AutoSubmitAt {
		e.state.autoSubmitApplied = true
		e.autoSubmitStragglers(e.cfg.DefaultInvestment)
	}
}

// autoSubmitStragglers fills in value for every connected player still
// missing an investment.
func (e *Engine) autoSubmitStragglers(value float64) int {
	filled := 0
	for _, p := range e.state.ordered() {
		if !p.Connected || p.submitted() {
			continue
		}
		e.storeInvestment(p, value, true)
		filled++
	}
	if filled > 0 {
		log.Info().Int("round", e.state.round).Int("players", filled).Float64("value", value).Msg("auto-submitted investments")
	}
	return filled
}

// endRound closes round and moves on. It runs at most once per round no
// matter how many of tick expiry, deadline, grace or force end race for it.
func (e *Engine) endRound(round int) {
	if e.state.phase != PhaseActive || e.state.round != round {
		log.Debug().Int("round", round).Int("current_round", e.state.round).Str("phase", string(e.state.phase)).Msg("stale round end ignored")
		return
	}
	e.closeRound()

	if e.state.round >= e.cfg.TotalRounds {
		e.endGame(false)
		return
	}
	e.state.round++
	e.startRound()
}

// closeRound settles the round in flight. Connected players without an
// investment get the minimum, every connected player takes the economic step,
// and the summary goes out. Disconnected players keep their capital even if
// they invested before leaving.
func (e *Engine) closeRound() {
	e.state.phase = PhaseRoundEnding
	e.state.pendingEndRound = false
	e.cancelTimers()

	e.autoSubmitStragglers(e.cfg.MinInvestment)

	results := make([]events.RoundResult, 0, len(e.state.players))
	for _, p := range e.state.ordered() {
		if !p.Connected || !p.submitted() {
			continue
		}
		investment := *p.PendingInvestment
		p.Capital, p.Output = e.model.Advance(p.Capital, investment)
		results = append(results, events.RoundResult{
			PlayerID:      p.Identity,
			Investment:    investment,
			NewCapital:    p.Capital,
			NewOutput:     p.Output,
			AutoSubmitted: p.IsAutoSubmitted,
		})
	}

	log.Info().Int("round", e.state.round).Int("results", len(results)).Msg("round ended")
	e.broadcast(events.RoomAll, events.TypeRoundSummary, events.RoundSummaryPayload{
		RoundNumber: e.state.round,
		Results:     results,
	})

	for _, p := range e.state.players {
		p.clearPending()
	}
}

func (e *Engine) timeRemaining() int {
	if e.state.phase != PhaseActive && e.state.phase != PhaseRoundEnding {
		return 0
	}
	return ceilSeconds(e.state.roundDeadline.Sub(e.clock.Now()))
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}
