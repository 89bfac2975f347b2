package gateway

import (
	"encoding/json"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/econgame/go/internal/events"
	"github.com/mcdev12/econgame/go/internal/game"
	"github.com/stretchr/testify/require"
)

func testGameConfig() game.Config {
	cfg := game.DefaultConfig()
	cfg.TotalRounds = 2
	cfg.AutoSubmitAt = 0
	cfg.AutoStart.Enabled = false
	return cfg
}

func newTestEngine(t *testing.T, cm *ConnectionManager) *game.Engine {
	t.Helper()
	engine, err := game.NewEngine(testGameConfig(), cm, game.WithClock(clockwork.NewFakeClock()))
	require.NoError(t, err)
	t.Cleanup(engine.Shutdown)
	return engine
}

// addConn registers a connection without a socket behind it.
func addConn(cm *ConnectionManager, role Role) *Connection {
	c := cm.newConnection(nil, role)
	cm.registerConnection(c)
	return c
}

// drain empties the broadcast queue without delivering anything.
func drain(cm *ConnectionManager) []BroadcastMessage {
	var out []BroadcastMessage
	for {
		select {
		case m := <-cm.broadcastCh:
			out = append(out, m)
		default:
			return out
		}
	}
}

func directTo(msgs []BroadcastMessage, connID string, eventType events.Type) []BroadcastMessage {
	var out []BroadcastMessage
	for _, m := range msgs {
		if m.ConnID == connID && m.Event.Type == eventType {
			out = append(out, m)
		}
	}
	return out
}

func inRoom(msgs []BroadcastMessage, room events.Room, eventType events.Type) []BroadcastMessage {
	var out []BroadcastMessage
	for _, m := range msgs {
		if m.ConnID == "" && m.Room == room && m.Event.Type == eventType {
			out = append(out, m)
		}
	}
	return out
}

func decodeData[T any](t *testing.T, m BroadcastMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(m.Event.Data, &v))
	return v
}

func clientMessage(t *testing.T, eventType events.Type, data any) []byte {
	t.Helper()
	msg := map[string]any{"type": eventType}
	if data != nil {
		msg["data"] = data
	}
	raw, err := json.Marshal(msg)
	require.NoError(t, err)
	return raw
}
