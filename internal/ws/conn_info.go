package ws

import (
	"time"

	"messaging-service/internal/observability"
)

// ConnInfo is captured once at upgrade and travels with every lifecycle
// event the connection produces.
type ConnInfo struct {
	observability.RequestMeta
	ConnID      string
	UserID      string
	TraceID     string
	ConnectedAt time.Time
}

// lifecycle reports the connection for a lifecycle event. Duration is
// zero for the connect event itself.
func (i ConnInfo) lifecycle(event, reason string) observability.ConnectionEvent {
	var duration int64
	if event != eventConnect && !i.ConnectedAt.IsZero() {
		duration = time.Since(i.ConnectedAt).Milliseconds()
	}
	return observability.ConnectionEvent{
		ConnID:     i.ConnID,
		UserID:     i.UserID,
		DeviceID:   i.DeviceID,
		IP:         i.IP,
		DurationMS: duration,
		Reason:     reason,
	}
}
