package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestLogSinkRecord(t *testing.T) {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	sink := &LogSink{Logger: logger}

	ctx := WithRequestID(context.Background(), "req-123")
	err := sink.Record(ctx, Event{
		Type:         EventModeration,
		ActorID:      "mod-1",
		ResourceKind: "comment",
		ResourceID:   "c-1",
		Outcome:      "hide",
		Metadata:     map[string]any{"foo": "bar"},
	})
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log not valid JSON: %v", err)
	}
	if entry["type"] != "audit" {
		t.Fatalf("unexpected type: %v", entry["type"])
	}
	if entry["event"] != EventModeration {
		t.Fatalf("unexpected event: %v", entry["event"])
	}
	if entry["request_id"] != "req-123" {
		t.Fatalf("unexpected request id: %v", entry["request_id"])
	}
	if entry["actor_id"] != "mod-1" {
		t.Fatalf("unexpected actor id: %v", entry["actor_id"])
	}
	if entry["audit_id"] == "" || entry["audit_id"] == nil {
		t.Fatal("expected generated audit id")
	}
	meta, ok := entry["metadata"].(map[string]any)
	if !ok || meta["foo"] != "bar" {
		t.Fatalf("metadata missing or incorrect: %v", entry["metadata"])
	}
}

func TestLogSinkRejectsUntypedEvent(t *testing.T) {
	sink := &LogSink{Logger: logrus.New()}
	if err := sink.Record(context.Background(), Event{}); err == nil {
		t.Fatal("expected error for missing type")
	}
}

type failingSink struct{ calls int }

func (f *failingSink) Record(context.Context, Event) error {
	f.calls++
	return errors.New("boom")
}

func TestMultiSinkFansOutAndReturnsFirstError(t *testing.T) {
	ring, err := NewRingSink(4)
	if err != nil {
		t.Fatalf("NewRingSink: %v", err)
	}
	bad := &failingSink{}
	multi := MultiSink{bad, ring, nil}

	err = multi.Record(context.Background(), Event{Type: EventVoteCast, ActorID: "u1"})
	if err == nil || err.Error() != "boom" {
		t.Fatalf("expected first error, got %v", err)
	}
	if bad.calls != 1 {
		t.Fatalf("expected failing sink to be called once, got %d", bad.calls)
	}
	if ring.Len() != 1 {
		t.Fatalf("expected ring to receive event despite earlier failure")
	}
}
