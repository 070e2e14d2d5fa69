package ws

import (
	"encoding/json"

	"github.com/nikhilbhatia/typerush/backend/internal/race"
)

// Client -> server commands.
const (
	CmdCreateRace     = "create-race"
	CmdJoinRace       = "join-race"
	CmdStartRace      = "start-race"
	CmdReportProgress = "report-progress"
	CmdFinishRace     = "finish-race"
)

// Server -> client acknowledgements. Broadcast event types live in the race
// package next to the coordinator that emits them.
const (
	MsgRaceCreated  = "race-created"
	MsgRaceJoined   = "race-joined"
	MsgRaceFinished = "race-finished"
	MsgAck          = "ack"
	MsgError        = "error"
)

// Envelope is the framing for every message in either direction.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type CreateRacePayload struct {
	DurationSeconds int      `json:"durationSeconds"`
	WordList        []string `json:"wordList,omitempty"`
}

type JoinRacePayload struct {
	RoomCode string `json:"roomCode"`
}

type ProgressPayload struct {
	WPM             float64 `json:"wpm"`
	Accuracy        float64 `json:"accuracy"`
	ProgressPercent float64 `json:"progressPercent"`
}

type FinishPayload struct {
	WPM      float64 `json:"wpm"`
	Accuracy float64 `json:"accuracy"`
}

type RoomAckPayload struct {
	RoomCode string        `json:"roomCode"`
	Room     race.Snapshot `json:"room"`
}

type AckPayload struct {
	Command string `json:"command"`
}

type FinishAckPayload struct {
	Position int `json:"position"`
}

type ErrorPayload struct {
	Command string `json:"command,omitempty"`
	Error   string `json:"error"`
}

func encode(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: msgType, Payload: raw})
}
