package services

import (
	"strings"
	"sync/atomic"

	"sensorboard/models"

	"go.uber.org/zap"
)

// LivenessFlag records whether any message has ever arrived. It moves from
// false to true once and never resets.
type LivenessFlag struct {
	seen atomic.Bool
}

// Mark sets the flag and reports whether this call was the first.
func (f *LivenessFlag) Mark() bool {
	return f.seen.CompareAndSwap(false, true)
}

// Seen reports whether at least one message arrived.
func (f *LivenessFlag) Seen() bool {
	return f.seen.Load()
}

// SampleSink receives recognized samples after the display was updated.
// Implementations must not block the caller.
type SampleSink interface {
	Accept(sample models.Sample)
}

// TelemetryRouter maps inbound messages onto display elements.
type TelemetryRouter struct {
	display Display
	pulses  *PulseScheduler
	flag    *LivenessFlag
	logger  *zap.Logger
	sinks   []SampleSink
}

// NewTelemetryRouter creates a router writing to display and marking flag.
func NewTelemetryRouter(display Display, pulses *PulseScheduler, flag *LivenessFlag, logger *zap.Logger, sinks ...SampleSink) *TelemetryRouter {
	return &TelemetryRouter{
		display: display,
		pulses:  pulses,
		flag:    flag,
		logger:  logger,
		sinks:   sinks,
	}
}

// ChannelKey returns the second topic segment, or false when the topic has
// fewer than two segments.
func ChannelKey(topic string) (string, bool) {
	segments := strings.Split(topic, "/")
	if len(segments) < 2 {
		return "", false
	}
	return segments[1], true
}

// HandleMessage updates the bound element for recognized channels and marks
// the liveness flag for every message, recognized or not.
func (r *TelemetryRouter) HandleMessage(msg models.Message) {
	defer func() {
		if r.flag.Mark() {
			r.logger.Info("First telemetry message received", zap.String("topic", msg.Topic))
		}
	}()

	key, ok := ChannelKey(msg.Topic)
	if !ok {
		r.logger.Debug("Ignoring message with malformed topic", zap.String("topic", msg.Topic))
		return
	}

	channel, known := models.ParseChannel(key)
	if !known {
		r.logger.Debug("Ignoring unrecognized channel",
			zap.String("topic", msg.Topic),
			zap.String("channel", key))
		return
	}

	elementID := string(channel)
	r.display.SetText(elementID, msg.Payload)
	r.pulses.Pulse(elementID)

	r.logger.Debug("Telemetry received",
		zap.String("channel", elementID),
		zap.String("value", msg.Payload))

	sample := models.Sample{
		Channel:  channel,
		Value:    msg.Payload,
		Received: msg.Received,
	}
	for _, sink := range r.sinks {
		sink.Accept(sample)
	}
}
