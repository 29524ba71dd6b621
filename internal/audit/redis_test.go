package audit

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupRedisSink(t *testing.T, maxLen int64) (*RedisSink, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	sink, err := NewRedisSink(client, "test:audit", maxLen)
	if err != nil {
		t.Fatalf("NewRedisSink: %v", err)
	}
	return sink, mr
}

func TestRedisSinkCapsList(t *testing.T) {
	sink, mr := setupRedisSink(t, 2)
	ctx := WithRequestID(context.Background(), "req-9")
	for _, id := range []string{"c1", "c2", "c3"} {
		if err := sink.Record(ctx, Event{Type: EventCommentCreated, ResourceID: id}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	items, err := mr.List("test:audit")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected capped list of 2, got %d", len(items))
	}

	events, err := sink.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(events) != 2 || events[0].ResourceID != "c3" || events[1].ResourceID != "c2" {
		t.Fatalf("unexpected events: %+v", events)
	}
	if events[0].RequestID != "req-9" {
		t.Fatalf("expected request id to be persisted, got %q", events[0].RequestID)
	}
}

func TestRedisSinkQueryFilters(t *testing.T) {
	sink, _ := setupRedisSink(t, 10)
	ctx := context.Background()
	for _, e := range []Event{
		{Type: EventCommentCreated, ActorID: "alice", ResourceID: "c1"},
		{Type: EventVoteCast, ActorID: "alice", ResourceID: "p1"},
		{Type: EventCommentCreated, ActorID: "bob", ResourceID: "c2"},
		{Type: EventCommentCreated, ActorID: "alice", ResourceID: "c3"},
	} {
		if err := sink.Record(ctx, e); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	got, err := sink.Query(ctx, Filter{Type: EventCommentCreated, ActorID: "alice"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 2 || got[0].ResourceID != "c3" || got[1].ResourceID != "c1" {
		t.Fatalf("unexpected events: %+v", got)
	}
	got, err = sink.Query(ctx, Filter{Limit: 1})
	if err != nil || len(got) != 1 || got[0].ResourceID != "c3" {
		t.Fatalf("limit not applied: %+v %v", got, err)
	}
}

func TestRedisSinkReportsUnavailableServer(t *testing.T) {
	sink, mr := setupRedisSink(t, 5)
	mr.Close()
	if err := sink.Record(context.Background(), Event{Type: EventVoteCast}); err == nil {
		t.Fatal("expected error when redis is down")
	}
}

func TestNewRedisSinkValidates(t *testing.T) {
	if _, err := NewRedisSink(nil, "", 1); err == nil {
		t.Fatal("expected error for nil client")
	}
}
