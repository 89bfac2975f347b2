package eventbus

import (
	"github.com/mcdev12/econgame/go/internal/events"
	"github.com/mcdev12/econgame/go/internal/game"
	"github.com/rs/zerolog/log"
)

// Primary is the live delivery path. It takes built events so the mirror
// carries the id and timestamp clients received.
type Primary interface {
	game.Broadcaster
	BroadcastEvent(room events.Room, event *events.Event)
}

// Tee is a game.Broadcaster that delivers to the primary broadcaster and
// hands the same event to the mirror.
type Tee struct {
	primary Primary
	mirror  Mirror
}

var _ game.Broadcaster = (*Tee)(nil)

// NewTee returns primary unchanged when there is no mirror.
func NewTee(primary Primary, mirror Mirror) game.Broadcaster {
	if mirror == nil {
		return primary
	}
	return &Tee{primary: primary, mirror: mirror}
}

func (t *Tee) Broadcast(room events.Room, eventType events.Type, payload any) {
	ev, err := events.New(eventType, payload)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to build event")
		return
	}
	t.primary.BroadcastEvent(room, ev)

	if shouldMirror(room, eventType) {
		t.mirror.Enqueue(Envelope{Room: room, Event: ev})
	}
}

// shouldMirror keeps one copy of each event. Screen and player rooms only
// receive duplicates of instructor or all-room events.
func shouldMirror(room events.Room, eventType events.Type) bool {
	if eventType == events.TypeTimerUpdate {
		return false
	}
	return room == events.RoomAll || room == events.RoomInstructor
}
