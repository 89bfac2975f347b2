package game

import (
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/econgame/go/internal/economy"
	"github.com/mcdev12/econgame/go/internal/events"
	"github.com/rs/zerolog/log"
)

// Clock is the interface we use for time operations.
// In production, use clockwork.NewRealClock(). In tests, a FakeClock.
type Clock interface {
	Now() time.Time
	NewTimer(d time.Duration) clockwork.Timer
	NewTicker(d time.Duration) clockwork.Ticker
}

// Broadcaster delivers an event to every connection in a room. Implementations
// must not block: the engine calls it while holding its lock.
type Broadcaster interface {
	Broadcast(room events.Room, eventType events.Type, payload any)
}

// Engine owns the game and serializes every mutation of it.
type Engine struct {
	mu          sync.Mutex
	cfg         Config
	model       economy.Model
	clock       Clock
	broadcaster Broadcaster
	directory   *Directory
	state       state
	timers      roundTimers
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the real clock.
func WithClock(clock Clock) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

// NewEngine creates an engine with a game waiting for players.
func NewEngine(cfg Config, broadcaster Broadcaster, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid game config: %w", err)
	}
	if broadcaster == nil {
		return nil, fmt.Errorf("broadcaster is required")
	}

	e := &Engine{
		cfg:         cfg,
		model:       economy.NewModel(cfg.Economy),
		clock:       clockwork.NewRealClock(),
		broadcaster: broadcaster,
		directory:   NewDirectory(),
		state:       newState(cfg.AutoStart.ManualStart),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Phase returns the current lifecycle phase.
func (e *Engine) Phase() Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.phase
}

// Round returns the current round number, 0 before the first round.
func (e *Engine) Round() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.round
}

// Shutdown stops all timers. The engine must not be used afterwards.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancelTimers()
	log.Info().Int("round", e.state.round).Str("phase", string(e.state.phase)).Msg("game engine stopped")
}

// exec runs fn under the engine lock. A panic inside fn is logged and
// reported as ErrInternal; the round timers are brought back in line with the
// phase so the game keeps running.
func (e *Engine) exec(op string, fn func() error) (err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			e.recoverPanic(op, r)
			err = ErrInternal
		}
	}()
	return fn()
}

func (e *Engine) recoverPanic(op string, r any) {
	log.Error().
		Str("op", op).
		Int("round", e.state.round).
		Str("phase", string(e.state.phase)).
		Interface("panic", r).
		Bytes("stack", debug.Stack()).
		Msg("recovered panic in game engine")

	defer func() {
		if r := recover(); r != nil {
			// Left for the instructor to force end or reset.
			log.Error().
				Str("op", op).
				Str("phase", string(e.state.phase)).
				Interface("panic", r).
				Msg("game engine recovery failed, round timers stopped")
			e.cancelTimers()
		}
	}()
	e.restoreTimers()
}

// restoreTimers re-arms what the current phase needs after an operation was
// cut short.
func (e *Engine) restoreTimers() {
	switch e.state.phase {
	case PhaseActive:
		if e.state.pendingEndRound {
			e.armGrace(e.state.round)
			return
		}
		e.armRoundTimers(e.state.round)
	case PhaseRoundEnding:
		// The round summary may be half applied, so the game is closed out.
		e.endGame(true)
	default:
		e.cancelTimers()
	}
}

func (e *Engine) broadcast(room events.Room, eventType events.Type, payload any) {
	e.broadcaster.Broadcast(room, eventType, payload)
}

// broadcastStaff sends to the instructor and the screens.
func (e *Engine) broadcastStaff(eventType events.Type, payload any) {
	e.broadcast(events.RoomInstructor, eventType, payload)
	e.broadcast(events.RoomScreens, eventType, payload)
}
