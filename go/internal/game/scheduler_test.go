package game

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/mcdev12/econgame/go/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitInvestment_RejectedWhenNotActive(t *testing.T) {
	h := newHarness(t, nil)
	h.join(t, "c1", "ana")

	_, err := h.engine.SubmitInvestment("ana", 5, false)
	assert.ErrorIs(t, err, ErrNotAcceptingSubmissions)

	snap, err := h.engine.PlayerSnapshot("ana")
	require.NoError(t, err)
	assert.False(t, snap.Submitted)
	assert.Equal(t, 0, h.rec.count(events.RoomInstructor, events.TypeInvestmentReceived))
}

func TestSubmitInvestment_UnknownPlayer(t *testing.T) {
	h := newHarness(t, nil)
	h.join(t, "c1", "ana")
	require.NoError(t, h.engine.StartGame())

	_, err := h.engine.SubmitInvestment("bob", 5, false)
	assert.ErrorIs(t, err, ErrNotInGame)
}

func TestSubmitInvestment_Idempotent(t *testing.T) {
	h := newHarness(t, nil)
	h.join(t, "c1", "ana")
	h.join(t, "c2", "bob")
	require.NoError(t, h.engine.StartGame())

	first := h.submit(t, "ana", 7)
	second := h.submit(t, "ana", 12)

	assert.False(t, first.Duplicate)
	assert.True(t, second.Duplicate)
	assert.Equal(t, 7.0, second.Value)
	assert.Equal(t, duplicateNotice, second.Notice)
	assert.Empty(t, first.Notice)

	snap, err := h.engine.PlayerSnapshot("ana")
	require.NoError(t, err)
	require.NotNil(t, snap.Investment)
	assert.Equal(t, 7.0, *snap.Investment)
	assert.Equal(t, 1, h.rec.count(events.RoomInstructor, events.TypeInvestmentReceived))
	assert.Equal(t, 1, h.rec.count(events.PlayerRoom("ana"), events.TypeInvestmentReceived))
}

func TestSubmitInvestment_Clamping(t *testing.T) {
	output := newHarness(t, nil).engine.model.Output(100)

	tests := []struct {
		name        string
		raw         float64
		wantValue   float64
		wantClamped bool
		wantErr     error
	}{
		{name: "within range", raw: 4.5, wantValue: 4.5},
		{name: "zero", raw: 0, wantValue: 0},
		{name: "exactly output", raw: output, wantValue: output},
		{name: "just above output", raw: output + 0.01, wantValue: output, wantClamped: true},
		{name: "negative", raw: -3, wantValue: 0, wantClamped: true},
		{name: "not a number", raw: math.NaN(), wantErr: ErrInvalidInvestment},
		{name: "infinite", raw: math.Inf(1), wantErr: ErrInvalidInvestment},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			h.join(t, "c1", "ana")
			h.join(t, "c2", "bob")
			require.NoError(t, h.engine.StartGame())

			res, err := h.engine.SubmitInvestment("ana", tt.raw, false)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				snap, _ := h.engine.PlayerSnapshot("ana")
				assert.False(t, snap.Submitted)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantValue, res.Value)
			assert.Equal(t, tt.wantClamped, res.Clamped)

			received := payloadsOf[events.InvestmentReceivedPayload](h.rec, events.RoomScreens, events.TypeInvestmentReceived)
			require.Len(t, received, 1)
			assert.Equal(t, tt.wantValue, received[0].Value)
			assert.Equal(t, tt.wantClamped, received[0].Clamped)
			assert.Equal(t, tt.wantClamped, received[0].Message != "")
			assert.Equal(t, res.Notice, received[0].Message)
		})
	}
}

func TestExactOutputInvestmentAdvancesCapital(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.TotalRounds = 1 })
	h.join(t, "c1", "ana")
	require.NoError(t, h.engine.StartGame())

	output := h.engine.model.Output(100)
	h.submit(t, "ana", output)
	h.clock.Advance(2 * time.Second)

	summary := h.waitForSummary(t, 1)
	require.Len(t, summary.Results, 1)
	assert.Equal(t, output, summary.Results[0].Investment)
	assert.InDelta(t, 90+output, summary.Results[0].NewCapital, 1e-9)
	assert.InDelta(t, h.engine.model.Output(90+output), summary.Results[0].NewOutput, 1e-9)
}

func TestAllSubmittedEndsRoundAfterGrace(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.TotalRounds = 1 })
	for i, name := range []string{"ana", "bob", "cy"} {
		h.join(t, string(rune('a'+i)), name)
	}
	require.NoError(t, h.engine.StartGame())

	h.submit(t, "ana", 1)
	h.submit(t, "bob", 2)
	assert.Equal(t, 0, h.rec.count(events.RoomAll, events.TypeAllSubmitted))
	h.submit(t, "cy", 3)

	allSubmitted := payloadsOf[events.AllSubmittedPayload](h.rec, events.RoomAll, events.TypeAllSubmitted)
	require.Len(t, allSubmitted, 1)
	assert.Equal(t, 1, allSubmitted[0].RoundNumber)
	assert.Equal(t, 2.0, allSubmitted[0].GracePeriodSeconds)
	assert.True(t, h.engine.GameSnapshot().PendingEndRound)

	h.clock.Advance(2 * time.Second)
	summary := h.waitForSummary(t, 1)
	assert.Len(t, summary.Results, 3)

	require.Eventually(t, func() bool { return h.engine.Phase() == PhaseCompleted }, time.Second, time.Millisecond)

	// The first deadline passing must not produce a second summary.
	h.clock.Advance(time.Minute)
	assert.Never(t, func() bool { return len(summariesFor(h.rec, 1)) > 1 }, 50*time.Millisecond, 5*time.Millisecond)
	assert.False(t, h.timersLive())
}

func TestRoundEndsWhenTimerExpires(t *testing.T) {
	h := newHarness(t, nil)
	h.join(t, "c1", "ana")
	h.join(t, "c2", "bob")
	require.NoError(t, h.engine.StartGame())
	h.submit(t, "ana", 4)

	for i := 0; i < 9; i++ {
		h.tick(t)
	}
	assert.Equal(t, 1, h.engine.Round())
	assert.Equal(t, 1, h.engine.GameSnapshot().TimeRemaining)

	h.tick(t)
	summary := h.waitForSummary(t, 1)
	require.Len(t, summary.Results, 2)
	assert.Equal(t, "ana", summary.Results[0].PlayerID)
	assert.False(t, summary.Results[0].AutoSubmitted)
	assert.Equal(t, "bob", summary.Results[1].PlayerID)
	assert.True(t, summary.Results[1].AutoSubmitted)
	assert.Equal(t, 0.0, summary.Results[1].Investment)

	assert.Equal(t, 2, h.engine.Round())
	assert.Equal(t, PhaseActive, h.engine.Phase())
	starts := payloadsOf[events.RoundStartPayload](h.rec, events.RoomAll, events.TypeRoundStart)
	require.Len(t, starts, 2)
	assert.Equal(t, 2, starts[1].RoundNumber)
	assert.Equal(t, 10, starts[1].TimeRemaining)

	snap, err := h.engine.PlayerSnapshot("bob")
	require.NoError(t, err)
	assert.False(t, snap.Submitted)
	assert.InDelta(t, 90.0, snap.Capital, 1e-9)
}

func TestRoundEndsWhenTicksAreMissed(t *testing.T) {
	h := newHarness(t, nil)
	h.join(t, "c1", "ana")
	require.NoError(t, h.engine.StartGame())

	// One jump past the backup deadline; most ticks are dropped.
	h.clock.Advance(11 * time.Second)

	h.waitForSummary(t, 1)
	require.Eventually(t, func() bool { return h.engine.Round() == 2 }, time.Second, time.Millisecond)
	assert.Never(t, func() bool { return len(summariesFor(h.rec, 1)) > 1 }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestAutoSubmitAtThreshold(t *testing.T) {
	h := newHarness(t, func(c *Config) {
		c.AutoSubmitAt = 3 * time.Second
		c.DefaultInvestment = 1
	})
	h.join(t, "c1", "ana")
	h.join(t, "c2", "bob")
	require.NoError(t, h.engine.StartGame())
	h.submit(t, "ana", 5)

	for i := 0; i < 6; i++ {
		h.tick(t)
	}
	assert.Equal(t, 0, h.rec.count(events.RoomAll, events.TypeAllSubmitted))

	h.tick(t)
	snap, err := h.engine.PlayerSnapshot("bob")
	require.NoError(t, err)
	require.True(t, snap.Submitted)
	assert.True(t, snap.AutoSubmitted)
	assert.Equal(t, 1.0, *snap.Investment)

	received := payloadsOf[events.InvestmentReceivedPayload](h.rec, events.PlayerRoom("bob"), events.TypeInvestmentReceived)
	require.Len(t, received, 1)
	assert.True(t, received[0].Auto)

	// Everyone is in, so the round closes after the grace period.
	assert.Equal(t, 1, h.rec.count(events.RoomAll, events.TypeAllSubmitted))
	h.clock.Advance(2 * time.Second)
	summary := h.waitForSummary(t, 1)
	require.Len(t, summary.Results, 2)
	assert.True(t, summary.Results[1].AutoSubmitted)
	assert.Equal(t, 1.0, summary.Results[1].Investment)
}

func TestRoundEndRunsExactlyOnce(t *testing.T) {
	for i := 0; i < 20; i++ {
		h := newHarness(t, nil)
		h.join(t, "c1", "ana")
		h.join(t, "c2", "bob")
		require.NoError(t, h.engine.StartGame())
		h.submit(t, "ana", 3)

		var wg sync.WaitGroup
		racers := []func(){
			func() { h.engine.fire("deadline", 1, h.engine.endRound) },
			func() { h.engine.fire("grace", 1, h.engine.endRound) },
			func() { h.engine.fire("tick", 1, h.engine.onTick) },
			func() { _ = h.engine.ForceEndGame() },
			func() { h.engine.fire("deadline", 1, h.engine.endRound) },
		}
		for _, race := range racers {
			race := race
			wg.Add(1)
			go func() {
				defer wg.Done()
				race()
			}()
		}
		wg.Wait()

		assert.Len(t, summariesFor(h.rec, 1), 1)
		assert.Len(t, payloadsOf[events.GameOverPayload](h.rec, events.RoomAll, events.TypeGameOver), 1)
		assert.Equal(t, PhaseCompleted, h.engine.Phase())
		assert.False(t, h.timersLive())
	}
}

func TestStaleTimerIgnoredAfterNextRoundStarts(t *testing.T) {
	h := newHarness(t, nil)
	h.join(t, "c1", "ana")
	require.NoError(t, h.engine.StartGame())

	h.engine.fire("deadline", 1, h.engine.endRound)
	require.Equal(t, 2, h.engine.Round())

	h.engine.fire("grace", 1, h.engine.endRound)
	h.engine.fire("tick", 1, h.engine.onTick)

	assert.Equal(t, 2, h.engine.Round())
	assert.Len(t, summariesFor(h.rec, 1), 1)
	assert.Empty(t, summariesFor(h.rec, 2))
}

func TestDisconnectCanCompleteRound(t *testing.T) {
	h := newHarness(t, nil)
	h.join(t, "c1", "ana")
	h.join(t, "c2", "bob")
	h.join(t, "c3", "cy")
	require.NoError(t, h.engine.StartGame())
	h.submit(t, "ana", 1)
	h.submit(t, "bob", 1)

	h.engine.Disconnect("c3")

	assert.Equal(t, 1, h.rec.count(events.RoomAll, events.TypeAllSubmitted))
	h.clock.Advance(2 * time.Second)
	summary := h.waitForSummary(t, 1)
	// cy left without investing and keeps their capital untouched.
	assert.Len(t, summary.Results, 2)
}

func TestTimeRemainingRoundsUp(t *testing.T) {
	h := newHarness(t, nil)
	h.join(t, "c1", "ana")
	assert.Equal(t, 0, h.engine.GameSnapshot().TimeRemaining)

	require.NoError(t, h.engine.StartGame())
	assert.Equal(t, 10, h.engine.GameSnapshot().TimeRemaining)

	h.clock.Advance(500 * time.Millisecond)
	assert.Equal(t, 10, h.engine.GameSnapshot().TimeRemaining)
}

func TestCeilSeconds(t *testing.T) {
	assert.Equal(t, 0, ceilSeconds(-time.Second))
	assert.Equal(t, 0, ceilSeconds(0))
	assert.Equal(t, 1, ceilSeconds(time.Millisecond))
	assert.Equal(t, 3, ceilSeconds(3*time.Second))
	assert.Equal(t, 4, ceilSeconds(3*time.Second+time.Nanosecond))
}

func TestCloseRoundSkipsPlayersWhoLeftAfterInvesting(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.TotalRounds = 2 })
	h.join(t, "c1", "ana")
	h.join(t, "c2", "bob")
	h.join(t, "c3", "cy")
	require.NoError(t, h.engine.StartGame())
	h.submit(t, "bob", 3)
	h.engine.Disconnect("c2")

	h.engine.fire("deadline", 1, h.engine.endRound)

	summary := h.waitForSummary(t, 1)
	require.Len(t, summary.Results, 2)
	for _, r := range summary.Results {
		assert.NotEqual(t, "bob", r.PlayerID)
	}
	snap, err := h.engine.PlayerSnapshot("bob")
	require.NoError(t, err)
	assert.Equal(t, 100.0, snap.Capital)
	assert.False(t, snap.Submitted)
}
