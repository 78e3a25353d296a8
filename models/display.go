package models

import "time"

// NoticeLevel mirrors the dialog icons of the page.
type NoticeLevel string

const (
	NoticeError   NoticeLevel = "error"
	NoticeWarning NoticeLevel = "warning"
	NoticeInfo    NoticeLevel = "info"
)

// Notice is a user-facing dialog message.
type Notice struct {
	Level     NoticeLevel `json:"level"`
	Title     string      `json:"title"`
	Text      string      `json:"text"`
	Timestamp time.Time   `json:"timestamp"`
}

// OfflineNotice is shown when no telemetry arrived within the liveness window.
func OfflineNotice() Notice {
	return Notice{
		Level:     NoticeError,
		Title:     "Sorry",
		Text:      "The sensor is currently offline",
		Timestamp: time.Now(),
	}
}

// DisplayEventType names the operations the page applies.
type DisplayEventType string

const (
	EventText     DisplayEventType = "text"
	EventPulse    DisplayEventType = "pulse"
	EventToggle   DisplayEventType = "toggle"
	EventNotice   DisplayEventType = "notice"
	EventSnapshot DisplayEventType = "snapshot"
)

// DisplayEvent is the wire form pushed to connected pages.
type DisplayEvent struct {
	Type     DisplayEventType `json:"type"`
	Element  string           `json:"element,omitempty"`
	Text     string           `json:"text,omitempty"`
	Active   bool             `json:"active,omitempty"`
	Enabled  bool             `json:"enabled,omitempty"`
	Notice   *Notice          `json:"notice,omitempty"`
	Snapshot *Snapshot        `json:"snapshot,omitempty"`
}

// Snapshot is the full display state, sent to newly connected pages.
type Snapshot struct {
	Texts         map[string]string `json:"texts"`
	Pulsing       map[string]bool   `json:"pulsing"`
	ToggleEnabled bool              `json:"toggle_enabled"`
	Liveness      LivenessState     `json:"liveness"`
	Notice        *Notice           `json:"notice,omitempty"`
}
