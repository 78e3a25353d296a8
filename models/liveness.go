package models

// LivenessState is the state of the one-shot readiness gate.
type LivenessState string

const (
	LivenessPending LivenessState = "pending"
	LivenessOnline  LivenessState = "online"
	LivenessOffline LivenessState = "offline"
)

// Resolved reports whether the gate reached a terminal state.
func (s LivenessState) Resolved() bool {
	return s == LivenessOnline || s == LivenessOffline
}

// ConnectionLost describes an unsolicited loss of the broker session.
// Code 0 means a clean close.
type ConnectionLost struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}
