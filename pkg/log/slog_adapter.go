package log

import (
	"context"
	"log/slog"
)

// SlogAdapter mirrors protocol events to an slog.Logger at Debug level.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a SlogAdapter writing to logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("direction", event.Direction.String()),
		slog.String("layer", event.Layer.String()),
		slog.String("category", event.Category.String()),
	}
	if event.ConnectionID != "" {
		attrs = append(attrs, slog.String("conn_id", event.ConnectionID))
	}
	if event.SessionID != "" {
		attrs = append(attrs, slog.String("session_id", event.SessionID))
	}
	if event.UID != "" {
		attrs = append(attrs, slog.String("uid", event.UID))
	}

	switch {
	case event.Frame != nil:
		attrs = append(attrs, slog.Int("frame_size", event.Frame.Size))
	case event.Packet != nil:
		attrs = append(attrs,
			slog.Int("fid", int(event.Packet.FunctionID)),
			slog.Int("seq", int(event.Packet.Sequence)),
			slog.Int("payload_size", event.Packet.PayloadSize),
		)
		if event.Packet.ErrorCode != 0 {
			attrs = append(attrs, slog.Int("error_code", int(event.Packet.ErrorCode)))
		}
	case event.StateChange != nil:
		attrs = append(attrs,
			slog.String("entity", event.StateChange.Entity.String()),
			slog.String("old_state", event.StateChange.OldState),
			slog.String("new_state", event.StateChange.NewState),
		)
		if event.StateChange.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.StateChange.Reason))
		}
	case event.Enumeration != nil:
		attrs = append(attrs,
			slog.Int("device_identifier", int(event.Enumeration.DeviceIdentifier)),
			slog.String("enumeration_type", event.Enumeration.Type),
		)
		if event.Enumeration.Kind != "" {
			attrs = append(attrs, slog.String("kind", event.Enumeration.Kind))
		}
	case event.Sample != nil:
		attrs = append(attrs,
			slog.String("kind", event.Sample.Kind),
			slog.Int("row", int(event.Sample.Row)),
			slog.Int64("raw", event.Sample.Raw),
			slog.Float64("value", event.Sample.Value),
		)
	case event.Error != nil:
		attrs = append(attrs,
			slog.String("error_layer", event.Error.Layer.String()),
			slog.String("error_msg", event.Error.Message),
			slog.String("error_context", event.Error.Context),
		)
		if event.Error.Code != nil {
			attrs = append(attrs, slog.Int("error_code", *event.Error.Code))
		}
	}

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "protocol", attrs...)
}

var _ Logger = (*SlogAdapter)(nil)
