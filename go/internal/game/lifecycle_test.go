package game

import (
	"testing"
	"time"

	"github.com/mcdev12/econgame/go/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartGame(t *testing.T) {
	h := newHarness(t, nil)

	assert.ErrorIs(t, h.engine.StartGame(), ErrNoPlayers)
	assert.Equal(t, PhaseWaiting, h.engine.Phase())

	h.join(t, "c1", "ana")
	require.NoError(t, h.engine.StartGame())
	assert.Equal(t, PhaseActive, h.engine.Phase())
	assert.Equal(t, 1, h.engine.Round())
	assert.True(t, h.timersLive())

	assert.ErrorIs(t, h.engine.StartGame(), ErrAlreadyRunning)
	assert.Len(t, payloadsOf[events.RoundStartPayload](h.rec, events.RoomAll, events.TypeRoundStart), 1)
}

func TestAutoStartAtThreshold(t *testing.T) {
	h := newHarness(t, func(c *Config) {
		c.AutoStart = AutoStartConfig{Enabled: true, Threshold: 3, ManualStart: false}
	})

	h.join(t, "c1", "ana")
	h.join(t, "c2", "bob")
	assert.Equal(t, PhaseWaiting, h.engine.Phase())

	res := h.join(t, "c3", "cy")
	assert.Equal(t, PhaseActive, h.engine.Phase())
	assert.Equal(t, 1, h.engine.Round())
	assert.Equal(t, PhaseActive, res.Snapshot.Phase)
	assert.Equal(t, 1, res.Snapshot.Round)

	starts := payloadsOf[events.RoundStartPayload](h.rec, events.RoomAll, events.TypeRoundStart)
	require.Len(t, starts, 1)
	assert.Equal(t, 1, starts[0].RoundNumber)
	assert.Equal(t, 3, starts[0].TotalRounds)
	assert.Equal(t, 10, starts[0].TimeRemaining)

	// A fourth player joins the running game without restarting it.
	h.join(t, "c4", "dee")
	assert.Len(t, payloadsOf[events.RoundStartPayload](h.rec, events.RoomAll, events.TypeRoundStart), 1)
}

func TestManualStartBlocksAutoStart(t *testing.T) {
	h := newHarness(t, func(c *Config) {
		c.AutoStart = AutoStartConfig{Enabled: true, Threshold: 2, ManualStart: true}
	})
	h.join(t, "c1", "ana")
	h.join(t, "c2", "bob")
	assert.Equal(t, PhaseWaiting, h.engine.Phase())

	require.NoError(t, h.engine.SetManualStart(false))
	assert.Equal(t, PhaseActive, h.engine.Phase())

	changes := payloadsOf[events.ManualStartChangedPayload](h.rec, events.RoomInstructor, events.TypeManualStartChanged)
	require.Len(t, changes, 1)
	assert.False(t, changes[0].Enabled)
}

func TestForceEndGameWithMissingInvestment(t *testing.T) {
	h := newHarness(t, nil)
	h.join(t, "c1", "ana")
	h.join(t, "c2", "bob")
	require.NoError(t, h.engine.StartGame())
	h.submit(t, "ana", 5)

	require.NoError(t, h.engine.ForceEndGame())

	summary := summariesFor(h.rec, 1)
	require.Len(t, summary, 1)
	require.Len(t, summary[0].Results, 2)
	assert.Equal(t, 5.0, summary[0].Results[0].Investment)
	assert.Equal(t, "bob", summary[0].Results[1].PlayerID)
	assert.Equal(t, 0.0, summary[0].Results[1].Investment)
	assert.True(t, summary[0].Results[1].AutoSubmitted)

	over := payloadsOf[events.GameOverPayload](h.rec, events.RoomAll, events.TypeGameOver)
	require.Len(t, over, 1)
	assert.True(t, over[0].Forced)
	assert.Equal(t, 1, over[0].RoundsPlayed)
	require.NotNil(t, over[0].Winner)
	assert.Equal(t, "ana", over[0].Winner.PlayerID)

	assert.Equal(t, PhaseCompleted, h.engine.Phase())
	assert.False(t, h.timersLive())

	// Nothing more happens once the game is over.
	require.NoError(t, h.engine.ForceEndGame())
	h.clock.Advance(time.Minute)
	assert.Never(t, func() bool {
		return len(payloadsOf[events.GameOverPayload](h.rec, events.RoomAll, events.TypeGameOver)) > 1
	}, 50*time.Millisecond, 5*time.Millisecond)
	_, err := h.engine.SubmitInvestment("bob", 1, false)
	assert.ErrorIs(t, err, ErrNotAcceptingSubmissions)
}

func TestForceEndGameWhileWaiting(t *testing.T) {
	h := newHarness(t, nil)
	h.join(t, "c1", "ana")

	require.NoError(t, h.engine.ForceEndGame())

	assert.Empty(t, summariesFor(h.rec, 0))
	over := payloadsOf[events.GameOverPayload](h.rec, events.RoomAll, events.TypeGameOver)
	require.Len(t, over, 1)
	assert.Equal(t, 0, over[0].RoundsPlayed)
	assert.Equal(t, PhaseCompleted, h.engine.Phase())
}

func TestGameCompletesAfterFinalRound(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.TotalRounds = 2 })
	h.join(t, "c1", "ana")
	h.join(t, "c2", "bob")
	require.NoError(t, h.engine.StartGame())

	for round := 1; round <= 2; round++ {
		h.submit(t, "ana", 10)
		h.submit(t, "bob", 1)
		h.clock.Advance(2 * time.Second)
		h.waitForSummary(t, round)
	}

	require.Eventually(t, func() bool { return h.engine.Phase() == PhaseCompleted }, time.Second, time.Millisecond)
	over := payloadsOf[events.GameOverPayload](h.rec, events.RoomAll, events.TypeGameOver)
	require.Len(t, over, 1)
	assert.False(t, over[0].Forced)
	assert.Equal(t, 2, over[0].RoundsPlayed)
	require.Len(t, over[0].FinalResults, 2)
	assert.Equal(t, "ana", over[0].Winner.PlayerID)
	assert.Equal(t, 1, over[0].FinalResults[0].Rank)
	assert.Equal(t, "bob", over[0].FinalResults[1].PlayerID)
	assert.Greater(t, over[0].FinalResults[0].Output, over[0].FinalResults[1].Output)
	assert.False(t, h.timersLive())

	// Connected players are ready for a replay.
	snap, err := h.engine.PlayerSnapshot("ana")
	require.NoError(t, err)
	assert.Equal(t, 100.0, snap.Capital)
}

func TestStandingsTieGoesToEarliestJoin(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.TotalRounds = 1 })
	h.join(t, "c1", "zed")
	h.join(t, "c2", "amy")
	require.NoError(t, h.engine.StartGame())
	h.submit(t, "amy", 3)
	h.submit(t, "zed", 3)
	h.clock.Advance(2 * time.Second)

	require.Eventually(t, func() bool {
		return len(payloadsOf[events.GameOverPayload](h.rec, events.RoomAll, events.TypeGameOver)) == 1
	}, time.Second, time.Millisecond)
	over := payloadsOf[events.GameOverPayload](h.rec, events.RoomAll, events.TypeGameOver)[0]
	assert.Equal(t, "zed", over.Winner.PlayerID)
	assert.Equal(t, over.FinalResults[0].Output, over.FinalResults[1].Output)
	assert.Equal(t, 2, over.FinalResults[1].Rank)
}

func TestEndGameDropsDisconnectedPlayers(t *testing.T) {
	h := newHarness(t, nil)
	h.join(t, "c1", "ana")
	h.join(t, "c2", "bob")
	require.NoError(t, h.engine.StartGame())
	h.engine.Disconnect("c2")

	require.NoError(t, h.engine.ForceEndGame())

	over := payloadsOf[events.GameOverPayload](h.rec, events.RoomAll, events.TypeGameOver)
	require.Len(t, over, 1)
	assert.Len(t, over[0].FinalResults, 2)

	_, err := h.engine.PlayerSnapshot("bob")
	assert.ErrorIs(t, err, ErrNotInGame)
	assert.Len(t, h.engine.GameSnapshot().Players, 1)
}

func TestResetKeepsRoster(t *testing.T) {
	h := newHarness(t, nil)
	h.join(t, "c1", "ana")
	require.NoError(t, h.engine.StartGame())
	h.submit(t, "ana", 5)

	require.NoError(t, h.engine.Reset(false))

	assert.Equal(t, PhaseWaiting, h.engine.Phase())
	assert.Equal(t, 0, h.engine.Round())
	assert.False(t, h.timersLive())
	snap, err := h.engine.PlayerSnapshot("ana")
	require.NoError(t, err)
	assert.False(t, snap.Submitted)
	assert.Equal(t, 100.0, snap.Capital)

	id, ok := h.engine.IdentityOf("c1")
	assert.True(t, ok)
	assert.Equal(t, "ana", id)

	resets := payloadsOf[events.GameResetPayload](h.rec, events.RoomAll, events.TypeGameReset)
	require.Len(t, resets, 1)
	assert.False(t, resets[0].RosterCleared)

	require.NoError(t, h.engine.StartGame())
	assert.Equal(t, 1, h.engine.Round())
}

func TestResetClearsRoster(t *testing.T) {
	h := newHarness(t, nil)
	h.join(t, "c1", "ana")
	require.NoError(t, h.engine.ForceEndGame())

	require.NoError(t, h.engine.Reset(true))

	assert.Empty(t, h.engine.GameSnapshot().Players)
	_, ok := h.engine.IdentityOf("c1")
	assert.False(t, ok)
	assert.ErrorIs(t, h.engine.StartGame(), ErrNoPlayers)
}
