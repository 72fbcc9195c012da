package joinrequests

import (
	"context"
	"testing"
	"time"

	"github.com/fitbhag/ticketing/backend/internal/db"
	"github.com/fitbhag/ticketing/backend/internal/models"
	"github.com/google/uuid"
)

type fakeEvents struct {
	events map[string]*models.Event
}

func (f *fakeEvents) Get(ctx context.Context, id string) (*models.Event, error) {
	ev, ok := f.events[id]
	if !ok {
		return nil, context.DeadlineExceeded
	}
	return ev, nil
}

type fakeIssuer struct {
	issued int
}

func (f *fakeIssuer) IssueApprovedFree(ctx context.Context, userID string, ev *models.Event) (*models.Ticket, error) {
	f.issued++
	return &models.Ticket{ID: uuid.NewString(), EventID: ev.ID, UserID: userID}, nil
}

func newTestStore(t *testing.T, ev *models.Event) (*Store, *fakeIssuer) {
	t.Helper()
	events := &fakeEvents{events: map[string]*models.Event{ev.ID: ev}}
	issuer := &fakeIssuer{}
	return New(db.NewTestDB(t), events, issuer), issuer
}

func gatedEvent() *models.Event {
	return &models.Event{
		ID: uuid.NewString(), Title: "Gated run", IsActive: true, RegistrationOpen: true,
		RequiresApproval: true, StartAt: time.Now().Add(time.Hour), EndAt: time.Now().Add(2 * time.Hour),
	}
}

func TestRequest_CreatesPending(t *testing.T) {
	ev := gatedEvent()
	s, _ := newTestStore(t, ev)

	req, err := s.Request(context.Background(), "user-1", ev.ID)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if req.Status != models.JoinRequestPending {
		t.Errorf("expected pending, got %q", req.Status)
	}
}

func TestRequest_RejectsNonGatedEvent(t *testing.T) {
	ev := gatedEvent()
	ev.RequiresApproval = false
	s, _ := newTestStore(t, ev)

	if _, err := s.Request(context.Background(), "user-1", ev.ID); err == nil {
		t.Fatal("expected error for non-gated event")
	}
}

func TestRequest_ReturnsExistingPendingUnchanged(t *testing.T) {
	ev := gatedEvent()
	s, _ := newTestStore(t, ev)
	ctx := context.Background()

	first, err := s.Request(ctx, "user-1", ev.ID)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	second, err := s.Request(ctx, "user-1", ev.ID)
	if err != nil {
		t.Fatalf("second Request: %v", err)
	}
	if second.ID != first.ID {
		t.Error("expected the same pending request returned, not a new one")
	}
}

func TestRequest_RevivesRejectedToPending(t *testing.T) {
	ev := gatedEvent()
	s, issuer := newTestStore(t, ev)
	ctx := context.Background()

	req, err := s.Request(ctx, "user-1", ev.ID)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if _, err := s.Review(ctx, req.ID, "organizer-1", false); err != nil {
		t.Fatalf("Review reject: %v", err)
	}

	revived, err := s.Request(ctx, "user-1", ev.ID)
	if err != nil {
		t.Fatalf("revive Request: %v", err)
	}
	if revived.ID != req.ID {
		t.Error("expected the same request row revived, not a new one")
	}
	if revived.Status != models.JoinRequestPending {
		t.Errorf("expected revived status pending, got %q", revived.Status)
	}
	if revived.ReviewedAt != nil {
		t.Error("expected reviewed_at cleared on revival")
	}
	if issuer.issued != 0 {
		t.Error("reject should never issue a ticket")
	}
}

func TestReview_AcceptIssuesTicket(t *testing.T) {
	ev := gatedEvent()
	s, issuer := newTestStore(t, ev)
	ctx := context.Background()

	req, err := s.Request(ctx, "user-1", ev.ID)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}

	reviewed, err := s.Review(ctx, req.ID, "organizer-1", true)
	if err != nil {
		t.Fatalf("Review accept: %v", err)
	}
	if reviewed.Status != models.JoinRequestAccepted {
		t.Errorf("expected accepted, got %q", reviewed.Status)
	}
	if reviewed.ReviewedBy != "organizer-1" {
		t.Errorf("ReviewedBy: got %q", reviewed.ReviewedBy)
	}
	if issuer.issued != 1 {
		t.Errorf("expected exactly one ticket issued, got %d", issuer.issued)
	}
}

func TestReview_RejectsAlreadyReviewed(t *testing.T) {
	ev := gatedEvent()
	s, _ := newTestStore(t, ev)
	ctx := context.Background()

	req, _ := s.Request(ctx, "user-1", ev.ID)
	if _, err := s.Review(ctx, req.ID, "organizer-1", true); err != nil {
		t.Fatalf("Review: %v", err)
	}
	if _, err := s.Review(ctx, req.ID, "organizer-1", true); err == nil {
		t.Fatal("expected error reviewing an already-reviewed request")
	}
}

func TestListForEvent_ReturnsAllRequests(t *testing.T) {
	ev := gatedEvent()
	s, _ := newTestStore(t, ev)
	ctx := context.Background()

	if _, err := s.Request(ctx, "user-1", ev.ID); err != nil {
		t.Fatalf("Request: %v", err)
	}
	if _, err := s.Request(ctx, "user-2", ev.ID); err != nil {
		t.Fatalf("Request: %v", err)
	}

	list, err := s.ListForEvent(ctx, ev.ID)
	if err != nil {
		t.Fatalf("ListForEvent: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(list))
	}
}
