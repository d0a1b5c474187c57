// Package telemetry receives study telemetry forwarded by the relay.
package telemetry

import (
	"webfitts/internal/protocol"

	"go.uber.org/zap"
)

// Sink accepts telemetry from study clients. Implementations are called
// from the relay's event loop and must not block.
type Sink interface {
	StudyData(clientID string, data *protocol.StudyData)
	StudyEvent(clientID string, event *protocol.StudyEvent)
}

// LogSink writes telemetry as structured log entries.
type LogSink struct {
	log *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{log: logger.With(zap.String("component", "telemetry"))}
}

func (s *LogSink) StudyData(clientID string, d *protocol.StudyData) {
	s.log.Info("study_data",
		zap.String("clientId", clientID),
		zap.Float64("cursorX", d.Cursor.X),
		zap.Float64("cursorY", d.Cursor.Y),
		zap.Float64("targetX", d.Target.X),
		zap.Float64("targetY", d.Target.Y),
		zap.Float64("moveNX", d.Movement.Normalized.X),
		zap.Float64("moveNY", d.Movement.Normalized.Y),
		zap.Float64("distance", d.Required.Distance),
		zap.Float64("requiredNX", d.Required.Normalized.X),
		zap.Float64("requiredNY", d.Required.Normalized.Y),
		zap.Float64("amplitude", d.Task.Amplitude),
		zap.Float64("width", d.Task.Width),
		zap.Float64("canvasWidth", d.Canvas.Width),
		zap.Float64("canvasHeight", d.Canvas.Height),
	)
}

func (s *LogSink) StudyEvent(clientID string, ev *protocol.StudyEvent) {
	s.log.Info("study_event",
		zap.String("clientId", clientID),
		zap.String("event", ev.Event),
		zap.Any("data", ev.Data),
	)
}

// Multi fans telemetry out to several sinks in order.
type Multi []Sink

func (m Multi) StudyData(clientID string, d *protocol.StudyData) {
	for _, s := range m {
		s.StudyData(clientID, d)
	}
}

func (m Multi) StudyEvent(clientID string, ev *protocol.StudyEvent) {
	for _, s := range m {
		s.StudyEvent(clientID, ev)
	}
}
