package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlayerRoom(t *testing.T) {
	r := PlayerRoom("team-7")
	assert.Equal(t, Room("player:team-7"), r)
}

func TestNew(t *testing.T) {
	ev, err := New(TypeTimerUpdate, TimerUpdatePayload{RoundNumber: 2, TimeRemaining: 41})
	require.NoError(t, err)

	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, TypeTimerUpdate, ev.Type)
	assert.JSONEq(t, `{"roundNumber":2,"timeRemaining":41}`, string(ev.Data))

	_, err = New(TypeError, make(chan int))
	assert.Error(t, err)
}

func TestClientMessage_Decode(t *testing.T) {
	var msg ClientMessage
	require.NoError(t, json.Unmarshal([]byte(`{"type":"submit_investment","data":{"value":3.5}}`), &msg))

	var p SubmitInvestmentPayload
	require.NoError(t, msg.Decode(&p))
	require.NotNil(t, p.Value)
	assert.Equal(t, 3.5, *p.Value)

	var empty SubmitInvestmentPayload
	require.NoError(t, ClientMessage{Type: TypeSubmitInvestment}.Decode(&empty))
	assert.Nil(t, empty.Value)

	bad := ClientMessage{Type: TypeSubmitInvestment, Data: json.RawMessage(`{"value":"lots"}`)}
	assert.Error(t, bad.Decode(&p))
}
