package websocket

import "github.com/stemsi/exam-engine/internal/model"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAutosave Action = "autosave"
	ActionSubmit   Action = "submit"
	ActionPing     Action = "ping"
)

// Request is every client message. Fields beyond Action are read per action.
type Request struct {
	Action      Action `json:"action"`
	QuestionID  string `json:"question_id,omitempty"`
	OptionIndex *int   `json:"option_index,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventSaved     Event = "saved"
	EventSubmitted Event = "submitted"
	EventError     Event = "error"
	EventPong      Event = "pong"
)

type SavedResponse struct {
	Event       Event  `json:"event"`
	QuestionID  string `json:"question_id"`
	OptionIndex int    `json:"option_index"`
	Revision    int64  `json:"revision"`
	Queued      bool   `json:"queued"`
}

type SubmittedResponse struct {
	Event      Event            `json:"event"`
	AutoSubmit bool             `json:"auto_submit"`
	Duplicate  bool             `json:"duplicate"`
	Result     model.ExamResult `json:"result"`
}

type ErrorResponse struct {
	Event     Event  `json:"event"`
	Code      string `json:"code"`
	Error     string `json:"error"`
	Retryable bool   `json:"retryable"`
}

type PongResponse struct {
	Event Event `json:"event"`
}

// Submitted builds the event sent for a submission outcome.
func Submitted(o *model.SubmissionOutcome) SubmittedResponse {
	return SubmittedResponse{
		Event:      EventSubmitted,
		AutoSubmit: o.AutoSubmit,
		Duplicate:  o.Duplicate,
		Result:     o.Result,
	}
}
