package eventbus

import (
	"sync"
	"testing"

	"github.com/mcdev12/econgame/go/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type primaryRecorder struct {
	mu   sync.Mutex
	sent []*events.Event
}

func (r *primaryRecorder) Broadcast(room events.Room, eventType events.Type, payload any) {
	ev, err := events.New(eventType, payload)
	if err != nil {
		return
	}
	r.BroadcastEvent(room, ev)
}

func (r *primaryRecorder) BroadcastEvent(room events.Room, event *events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, event)
}

type mirrorRecorder struct {
	envelopes []Envelope
}

func (m *mirrorRecorder) Enqueue(env Envelope) bool {
	m.envelopes = append(m.envelopes, env)
	return true
}

func TestTee_MirrorsOneCopyPerEvent(t *testing.T) {
	primary := &primaryRecorder{}
	mirror := &mirrorRecorder{}
	tee := NewTee(primary, mirror)

	payload := events.InvestmentReceivedPayload{PlayerID: "ana", Value: 2}
	tee.Broadcast(events.RoomInstructor, events.TypeInvestmentReceived, payload)
	tee.Broadcast(events.RoomScreens, events.TypeInvestmentReceived, payload)
	tee.Broadcast(events.PlayerRoom("ana"), events.TypeInvestmentReceived, payload)
	tee.Broadcast(events.RoomAll, events.TypeTimerUpdate, events.TimerUpdatePayload{TimeRemaining: 3})
	tee.Broadcast(events.RoomAll, events.TypeRoundSummary, events.RoundSummaryPayload{RoundNumber: 1})

	require.Len(t, primary.sent, 5)
	require.Len(t, mirror.envelopes, 2)
	assert.Equal(t, events.RoomInstructor, mirror.envelopes[0].Room)
	assert.Equal(t, events.TypeInvestmentReceived, mirror.envelopes[0].Event.Type)
	assert.Equal(t, events.TypeRoundSummary, mirror.envelopes[1].Event.Type)

	// The mirror carries the very event clients were sent.
	assert.Same(t, primary.sent[0], mirror.envelopes[0].Event)
	assert.Same(t, primary.sent[4], mirror.envelopes[1].Event)
}

func TestNewTee_WithoutMirror(t *testing.T) {
	primary := &primaryRecorder{}
	assert.Same(t, primary, NewTee(primary, nil))
}
