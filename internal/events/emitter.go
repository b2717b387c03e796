package events

import (
	"context"
	"log/slog"
)

// Emit publishes an event. It logs through slog until a custom emitter is
// installed.
var Emit = func(ctx context.Context, name string, evt ToolEvent) {
	logEvent(ctx, slog.Default(), name, scope(ctx, evt))
}

// EnableLogEmitter routes events to logger only.
func EnableLogEmitter(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	Emit = func(ctx context.Context, name string, evt ToolEvent) {
		logEvent(ctx, logger, name, scope(ctx, evt))
	}
}

func SetCustomEmitter(f func(ctx context.Context, name string, evt ToolEvent)) {
	if f == nil {
		Emit = func(context.Context, string, ToolEvent) {}
		return
	}
	Emit = func(ctx context.Context, name string, evt ToolEvent) {
		f(ctx, name, scope(ctx, evt))
	}
}

func scope(ctx context.Context, evt ToolEvent) ToolEvent {
	if evt.SessionKey == "" {
		if session := SessionFromContext(ctx); session != "" {
			evt.SessionKey = session
		}
	}
	return evt
}

func logEvent(ctx context.Context, logger *slog.Logger, name string, event ToolEvent) {
	level := slog.LevelDebug
	switch event.Type {
	case EventSuccess, EventInfo:
		level = slog.LevelInfo
	case EventWarn:
		level = slog.LevelWarn
	case EventError:
		level = slog.LevelError
	}
	if !logger.Enabled(ctx, level) {
		return
	}
	attrs := []any{"event", name, "session", event.SessionKey}
	for k, v := range event.Metadata {
		attrs = append(attrs, k, v)
	}
	logger.Log(ctx, level, event.Message, attrs...)
}

// EnableHubEmitter logs every event and fans it out through hub.
func EnableHubEmitter(hub *Hub, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	SetCustomEmitter(func(ctx context.Context, name string, evt ToolEvent) {
		logEvent(ctx, logger, name, evt)
		hub.Publish(ctx, name, evt)
	})
}
