package events

import "time"

// Payloads shared between the game engine and the gateway

type RoundStartPayload struct {
	RoundNumber   int       `json:"roundNumber"`
	TotalRounds   int       `json:"totalRounds"`
	TimeRemaining int       `json:"timeRemaining"`
	Deadline      time.Time `json:"deadline"`
}

type TimerUpdatePayload struct {
	RoundNumber   int `json:"roundNumber"`
	TimeRemaining int `json:"timeRemaining"`
}

type InvestmentReceivedPayload struct {
	PlayerID string  `json:"playerId"`
	Value    float64 `json:"value"`
	Auto     bool    `json:"auto"`
	Clamped  bool    `json:"clamped,omitempty"`
	// Duplicate marks the echo of an investment already recorded this round.
	Duplicate bool   `json:"duplicate,omitempty"`
	Message   string `json:"message,omitempty"`
}

type AllSubmittedPayload struct {
	RoundNumber        int     `json:"roundNumber"`
	GracePeriodSeconds float64 `json:"gracePeriodSeconds"`
}

// RoundResult is one player's outcome for a finished round.
type RoundResult struct {
	PlayerID      string  `json:"playerId"`
	Investment    float64 `json:"investment"`
	NewCapital    float64 `json:"newCapital"`
	NewOutput     float64 `json:"newOutput"`
	AutoSubmitted bool    `json:"autoSubmitted"`
}

type RoundSummaryPayload struct {
	RoundNumber int           `json:"roundNumber"`
	Results     []RoundResult `json:"results"`
}

// Standing is a final ranking entry.
type Standing struct {
	Rank      int      `json:"rank"`
	PlayerID  string   `json:"playerId"`
	Members   []string `json:"members,omitempty"`
	Capital   float64  `json:"capital"`
	Output    float64  `json:"output"`
	Connected bool     `json:"connected"`
}

type GameOverPayload struct {
	Winner       *Standing  `json:"winner"`
	FinalResults []Standing `json:"finalResults"`
	RoundsPlayed int        `json:"roundsPlayed"`
	Forced       bool       `json:"forced"`
}

type ConnectionStatusPayload struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type PlayerPresencePayload struct {
	PlayerID       string `json:"playerId"`
	ConnectedCount int    `json:"connectedCount"`
}

type GameResetPayload struct {
	RosterCleared bool `json:"rosterCleared"`
}

type ManualStartChangedPayload struct {
	Enabled bool `json:"enabled"`
}

type TeamRegisteredPayload struct {
	TeamName string   `json:"teamName"`
	Members  []string `json:"members"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Client payloads

type JoinOrReconnectPayload struct {
	Identity string `json:"identity"`
}

type SubmitInvestmentPayload struct {
	Value *float64 `json:"value"`
}

type SetManualStartPayload struct {
	Enabled bool `json:"enabled"`
}

type RegisterTeamPayload struct {
	TeamName string   `json:"teamName"`
	Members  []string `json:"members"`
}

type ResetGamePayload struct {
	ClearRoster bool `json:"clearRoster"`
}
