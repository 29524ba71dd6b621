package audit

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"pollhub.org/internal/ids"
	"pollhub.org/internal/obs"
)

// Event types.
const (
	EventModeration     = "moderation.transition"
	EventRoleChanged    = "identity.role_changed"
	EventSuspended      = "identity.suspended"
	EventUnsuspended    = "identity.unsuspended"
	EventCommentCreated = "comment.created"
	EventCommentUpdated = "comment.updated"
	EventCommentDeleted = "comment.deleted"
	EventVoteCast       = "vote.cast"
	EventAccessDenied   = "access.denied"
)

// Event is one security-relevant occurrence.
type Event struct {
	ID           string         `json:"id"`
	OccurredAt   time.Time      `json:"occurred_at"`
	Type         string         `json:"type"`
	ActorID      string         `json:"actor_id,omitempty"`
	ResourceKind string         `json:"resource_kind,omitempty"`
	ResourceID   string         `json:"resource_id,omitempty"`
	Outcome      string         `json:"outcome,omitempty"`
	Reason       string         `json:"reason,omitempty"`
	RequestID    string         `json:"request_id,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Sink receives audit events. Implementations must be safe for concurrent use.
type Sink interface {
	Record(ctx context.Context, e Event) error
}

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext returns the request id set by WithRequestID.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// Normalize validates e and fills id, timestamp and request id when absent.
func Normalize(ctx context.Context, e Event) (Event, error) {
	e.Type = strings.TrimSpace(e.Type)
	if e.Type == "" {
		return Event{}, errors.New("event type is required")
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	if e.ID == "" {
		e.ID = ids.NewAt(e.OccurredAt)
	}
	if e.RequestID == "" {
		e.RequestID = RequestIDFromContext(ctx)
	}
	return e, nil
}

// LogSink writes every event as a structured log line.
type LogSink struct {
	Logger logrus.FieldLogger
}

// NewLogSink returns a sink backed by the shared logger.
func NewLogSink() *LogSink {
	return &LogSink{Logger: obs.Logger()}
}

func (s *LogSink) Record(ctx context.Context, e Event) error {
	e, err := Normalize(ctx, e)
	if err != nil {
		return err
	}
	fields := logrus.Fields{
		"type":        "audit",
		"event":       e.Type,
		"audit_id":    e.ID,
		"occurred_at": e.OccurredAt.Format(time.RFC3339Nano),
	}
	if e.ActorID != "" {
		fields["actor_id"] = e.ActorID
	}
	if e.ResourceID != "" {
		fields["resource_kind"] = e.ResourceKind
		fields["resource_id"] = e.ResourceID
	}
	if e.Outcome != "" {
		fields["outcome"] = e.Outcome
	}
	if e.Reason != "" {
		fields["reason"] = e.Reason
	}
	if e.RequestID != "" {
		fields["request_id"] = e.RequestID
	}
	if len(e.Metadata) > 0 {
		fields["metadata"] = e.Metadata
	}
	s.Logger.WithFields(fields).Info("audit")
	return nil
}

// Discard drops every event.
var Discard Sink = discard{}

type discard struct{}

func (discard) Record(context.Context, Event) error { return nil }
