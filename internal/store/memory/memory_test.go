package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"pollhub.org/internal/auth"
	"pollhub.org/internal/comments"
	"pollhub.org/internal/moderation"
	"pollhub.org/internal/votes"
)

func TestConcurrentVotesKeepOnePerIdentity(t *testing.T) {
	s := New()
	ctx := context.Background()
	p, opts := s.CreatePoll("owner", "lunch?", moderation.Status{Approved: true}, "yes", "no")

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.InsertVote(ctx, votes.Vote{ID: fmt.Sprint(i), PollID: p.ID, OptionID: opts[i%2], IdentityID: "same-user"})
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			} else if !errors.Is(err, votes.ErrAlreadyVoted) {
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("expected exactly one accepted vote, got %d", wins)
	}
	total := 0
	for _, n := range s.Tally(p.ID) {
		total += n
	}
	if total != 1 {
		t.Fatalf("tally should hold one vote, got %d", total)
	}
}

func TestModerationFiltersAndTombstones(t *testing.T) {
	s := New()
	ctx := context.Background()
	visible, _ := s.CreatePoll("a", "visible", moderation.Status{Approved: true})
	pending, _ := s.CreatePoll("a", "pending", moderation.Status{})

	queue, err := s.ListResources(ctx, moderation.KindPoll, moderation.Filter{NeedsReview: true})
	if err != nil {
		t.Fatalf("ListResources: %v", err)
	}
	if len(queue) != 1 || queue[0].ID != pending.ID {
		t.Fatalf("unexpected queue: %+v", queue)
	}

	at := time.Now().UTC()
	if err := s.UpdateModeration(ctx, moderation.KindPoll, visible.ID, moderation.Status{Approved: true}, &at); err != nil {
		t.Fatalf("UpdateModeration: %v", err)
	}
	if _, err := s.FetchResource(ctx, moderation.KindPoll, visible.ID); !errors.Is(err, moderation.ErrNotFound) {
		t.Fatalf("deleted poll should be hidden from reads, got %v", err)
	}
	if n, _ := s.CountResources(ctx, moderation.KindPoll, moderation.Filter{}); n != 1 {
		t.Fatalf("expected one live poll, got %d", n)
	}
}

func TestCommentResourceCarriesOwner(t *testing.T) {
	s := New()
	ctx := context.Background()
	p, _ := s.CreatePoll("a", "poll", moderation.Status{Approved: true})
	c := comments.Comment{ID: "c1", PollID: p.ID, Content: "hello", CreatedAt: time.Now().UTC()}
	c.Kind = comments.AuthorRegistered
	c.IdentityID = "user-1"
	c.Approved = true
	if _, err := s.InsertComment(ctx, c); err != nil {
		t.Fatalf("InsertComment: %v", err)
	}

	res, err := s.FetchResource(ctx, moderation.KindComment, "c1")
	if err != nil {
		t.Fatalf("FetchResource: %v", err)
	}
	if res.OwnerID != "user-1" || res.Kind != moderation.KindComment {
		t.Fatalf("unexpected resource: %+v", res)
	}

	if _, err := s.InsertComment(ctx, comments.Comment{ID: "c2", PollID: "missing"}); !errors.Is(err, comments.ErrPollUnavailable) {
		t.Fatalf("expected ErrPollUnavailable, got %v", err)
	}
}

func TestProfileSuspensionRoundTrip(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.PutProfile(auth.Profile{IdentityID: "u1", Role: auth.RoleMember, IsActive: true})

	at := time.Now().UTC()
	by, reason := "admin", "spam"
	p, err := s.SetSuspension(ctx, "u1", auth.Suspension{At: &at, By: &by, Reason: &reason})
	if err != nil {
		t.Fatalf("SetSuspension: %v", err)
	}
	if p.IsActive || !p.Consistent() {
		t.Fatalf("unexpected suspended profile: %+v", p)
	}
	p, err = s.SetSuspension(ctx, "u1", auth.Suspension{})
	if err != nil {
		t.Fatalf("clear suspension: %v", err)
	}
	if !p.IsActive || p.SuspendedAt != nil || !p.Consistent() {
		t.Fatalf("unexpected restored profile: %+v", p)
	}
}

func TestProfileDirectoryAndCounts(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	suspendedAt := base.Add(time.Hour)
	s.PutProfile(auth.Profile{IdentityID: "first", Role: auth.RoleAdministrator, IsActive: true, CreatedAt: base})
	s.PutProfile(auth.Profile{IdentityID: "second", Role: auth.RoleMember, IsActive: true, CreatedAt: base.Add(time.Minute)})
	s.PutProfile(auth.Profile{IdentityID: "third", Role: auth.RoleMember, SuspendedAt: &suspendedAt, CreatedAt: base.Add(2 * time.Minute)})

	page, err := s.ListProfiles(ctx, 2, 0)
	if err != nil {
		t.Fatalf("ListProfiles: %v", err)
	}
	if len(page) != 2 || page[0].IdentityID != "third" || page[1].IdentityID != "second" {
		t.Fatalf("expected newest first, got %+v", page)
	}
	page, err = s.ListProfiles(ctx, 2, 2)
	if err != nil || len(page) != 1 || page[0].IdentityID != "first" {
		t.Fatalf("unexpected second page %+v %v", page, err)
	}
	if page, _ = s.ListProfiles(ctx, 2, 10); len(page) != 0 {
		t.Fatalf("expected empty page past the end, got %d", len(page))
	}

	counts, err := s.CountProfiles(ctx)
	if err != nil {
		t.Fatalf("CountProfiles: %v", err)
	}
	if counts != (auth.ProfileCounts{Total: 3, Active: 2, Suspended: 1, Administrators: 1}) {
		t.Fatalf("unexpected counts %+v", counts)
	}

	p, opts := s.CreatePoll("second", "tea?", moderation.Status{Approved: true}, "yes", "no")
	gone, _ := s.CreatePoll("second", "gone", moderation.Status{Approved: true}, "x")
	if err := s.UpdateModeration(ctx, moderation.KindPoll, gone.ID, gone.Status, &base); err != nil {
		t.Fatalf("UpdateModeration: %v", err)
	}
	if _, err := s.InsertVote(ctx, votes.Vote{ID: "v1", PollID: p.ID, OptionID: opts[0], IdentityID: "second"}); err != nil {
		t.Fatalf("InsertVote: %v", err)
	}
	for _, id := range []string{"c1", "c2"} {
		c := comments.Comment{ID: id, PollID: p.ID, Content: "hi", Author: comments.Author{Kind: comments.AuthorRegistered, IdentityID: "second"}}
		if _, err := s.InsertComment(ctx, c); err != nil {
			t.Fatalf("InsertComment: %v", err)
		}
	}
	if err := s.DeleteComment(ctx, "c2", base); err != nil {
		t.Fatalf("DeleteComment: %v", err)
	}

	totals, err := s.CountContent(ctx)
	if err != nil {
		t.Fatalf("CountContent: %v", err)
	}
	if totals != (auth.ContentTotals{Polls: 1, Comments: 1, Votes: 1}) {
		t.Fatalf("unexpected totals %+v", totals)
	}
}
