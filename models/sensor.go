package models

import (
	"time"
)

// Channel is the telemetry key carried in the second topic segment.
type Channel string

const (
	Temperature Channel = "temperature"
	Humidity    Channel = "humidity"
	Battery     Channel = "battery"
)

// KnownChannels lists the channels the panel displays, in page order.
var KnownChannels = []Channel{Temperature, Humidity, Battery}

// ParseChannel returns the channel for key and whether it is one the panel displays.
func ParseChannel(key string) (Channel, bool) {
	switch Channel(key) {
	case Temperature, Humidity, Battery:
		return Channel(key), true
	default:
		return "", false
	}
}

// Message is an inbound broker message as handed over by a session.
type Message struct {
	Topic    string    `json:"topic"`
	Payload  string    `json:"payload"`
	Received time.Time `json:"received"`
}

// Sample is a recognized telemetry reading. Value is the payload verbatim.
type Sample struct {
	Channel  Channel   `json:"channel"`
	Value    string    `json:"value"`
	Received time.Time `json:"received"`
}

// AnomalyType represents different types of anomalies
type AnomalyType string

const (
	TemperatureTooHigh AnomalyType = "temperature_high"
	TemperatureTooLow  AnomalyType = "temperature_low"
	HumidityTooHigh    AnomalyType = "humidity_high"
	HumidityTooLow     AnomalyType = "humidity_low"
	BatteryLow         AnomalyType = "battery_low"
)

// Anomaly represents a detected anomaly
type Anomaly struct {
	Type        AnomalyType `json:"type"`
	Channel     Channel     `json:"channel"`
	Value       float64     `json:"value"`
	Threshold   float64     `json:"threshold"`
	Timestamp   time.Time   `json:"timestamp"`
	Description string      `json:"description"`
}

// GetAnomalyEmoji returns appropriate emoji for anomaly type
func (a *Anomaly) GetAnomalyEmoji() string {
	switch a.Type {
	case TemperatureTooHigh:
		return "🔥"
	case TemperatureTooLow:
		return "🧊"
	case HumidityTooHigh:
		return "💧"
	case HumidityTooLow:
		return "🏜️"
	case BatteryLow:
		return "🪫"
	default:
		return "⚠️"
	}
}
