package websocket

import (
	"encoding/json"

	"github.com/stemsi/cbt-gateway/internal/attempt"
	"github.com/stemsi/cbt-gateway/internal/response"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAnswer   Action = "answer"
	ActionNavigate Action = "navigate"
	ActionSubmit   Action = "submit"
	ActionState    Action = "state"
	ActionPing     Action = "ping"
)

// RequestEnvelope carries one client action. Payload is decoded per action:
// model.SetAnswerRequest for answer, model.NavigateRequest for navigate.
type RequestEnvelope struct {
	Action  Action          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventTick      Event = "tick"
	EventState     Event = "state"
	EventSubmitted Event = "submitted"
	EventError     Event = "error"
	EventPong      Event = "pong"
)

// TickResponse is pushed once per countdown tick.
type TickResponse struct {
	Event            Event `json:"event"`
	RemainingSeconds int   `json:"remaining_seconds"`
	Expired          bool  `json:"expired"`
}

// StateResponse answers an action with the updated attempt.
type StateResponse struct {
	Event Event            `json:"event"`
	State attempt.Snapshot `json:"state"`
}

// SubmittedResponse is pushed once when the attempt reaches its terminal
// state, whichever trigger submitted it.
type SubmittedResponse struct {
	Event Event            `json:"event"`
	State attempt.Snapshot `json:"state"`
}

type ErrorResponse struct {
	Event  Event             `json:"event"`
	Code   response.ErrCode  `json:"code"`
	Error  string            `json:"error"`
	Detail string            `json:"detail,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
