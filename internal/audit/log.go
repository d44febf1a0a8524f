package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/codesan-git/blasting-be/internal/auth"
	"github.com/codesan-git/blasting-be/internal/obs"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// Sink receives audit entries for durable storage (the system_logs table).
// Stdout JSON lines are always written regardless of the sink.
type Sink interface {
	AppendSystemLog(ctx context.Context, event string, actorID string, fields map[string]any) error
}

var (
	sinkMu sync.RWMutex
	sink   Sink
)

// AttachSink wires a durable store for audit entries. Passing nil detaches.
func AttachSink(s Sink) {
	sinkMu.Lock()
	defer sinkMu.Unlock()
	sink = s
}

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes an audit log entry enriched with request and user context.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	entry := map[string]any{
		"ts":    time.Now().UTC().Format(time.RFC3339Nano),
		"type":  "audit",
		"event": event,
	}
	if rid := requestIDFromContext(ctx); rid != "" {
		entry["request_id"] = rid
	}
	actorID := auth.ActorID(ctx)
	if actorID != "" {
		entry["user_id"] = actorID
	}
	if len(fields) > 0 {
		copyFields := make(map[string]any, len(fields))
		for k, v := range fields {
			copyFields[k] = v
		}
		entry["fields"] = copyFields
	} else {
		entry["fields"] = map[string]any{}
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	obs.Logger().Println(string(data))

	sinkMu.RLock()
	s := sink
	sinkMu.RUnlock()
	if s != nil {
		if err := s.AppendSystemLog(ctx, event, actorID, fields); err != nil {
			obs.Warn("audit sink append failed", map[string]any{"event": event, "err": err.Error()})
		}
	}
	return nil
}
