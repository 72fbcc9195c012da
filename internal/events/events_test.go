package events

import (
	"context"
	"testing"
	"time"

	"github.com/fitbhag/ticketing/backend/internal/cache"
	"github.com/fitbhag/ticketing/backend/internal/db"
	"github.com/fitbhag/ticketing/backend/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	c, err := cache.NewMemory()
	if err != nil {
		t.Fatalf("cache.NewMemory: %v", err)
	}
	return New(db.NewTestDB(t), c)
}

func TestCreateAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	req := models.CreateEventRequest{
		Title:   "Sunrise 5k",
		City:    "Pune",
		StartAt: time.Now().Add(24 * time.Hour),
		EndAt:   time.Now().Add(26 * time.Hour),
	}
	ev, err := s.Create(ctx, req)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !ev.RegistrationOpen || !ev.IsActive {
		t.Errorf("expected new event active and open, got %+v", ev)
	}

	got, err := s.Get(ctx, ev.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Title != req.Title {
		t.Errorf("Title: got %q", got.Title)
	}
}

func TestCreate_RejectsBadTimeRange(t *testing.T) {
	s := newTestStore(t)
	req := models.CreateEventRequest{Title: "x", StartAt: time.Now(), EndAt: time.Now().Add(-time.Hour)}
	if _, err := s.Create(context.Background(), req); err == nil {
		t.Fatal("expected error for end_at before start_at")
	}
}

func TestCreate_RejectsPastEndDate(t *testing.T) {
	s := newTestStore(t)
	req := models.CreateEventRequest{Title: "x", StartAt: time.Now().Add(-2 * time.Hour), EndAt: time.Now().Add(-time.Hour)}
	if _, err := s.Create(context.Background(), req); err == nil {
		t.Fatal("expected error for end_at in the past")
	}
}

func TestCreate_RejectsOversizedFields(t *testing.T) {
	s := newTestStore(t)
	base := models.CreateEventRequest{StartAt: time.Now().Add(time.Hour), EndAt: time.Now().Add(2 * time.Hour)}

	long := func(n int) string {
		b := make([]byte, n)
		for i := range b {
			b[i] = 'a'
		}
		return string(b)
	}

	cases := []models.CreateEventRequest{
		{Title: long(101), StartAt: base.StartAt, EndAt: base.EndAt},
		{Title: "x", Description: long(2001), StartAt: base.StartAt, EndAt: base.EndAt},
		{Title: "x", City: long(51), StartAt: base.StartAt, EndAt: base.EndAt},
		{Title: "x", Venue: long(101), StartAt: base.StartAt, EndAt: base.EndAt},
	}
	for i, req := range cases {
		if _, err := s.Create(context.Background(), req); err == nil {
			t.Errorf("case %d: expected an error for an oversized field", i)
		}
	}
}

func TestCreate_RejectsInvalidBannerURL(t *testing.T) {
	s := newTestStore(t)
	req := models.CreateEventRequest{
		Title: "x", BannerURL: "not-a-url",
		StartAt: time.Now().Add(time.Hour), EndAt: time.Now().Add(2 * time.Hour),
	}
	if _, err := s.Create(context.Background(), req); err == nil {
		t.Fatal("expected error for a banner_url that isn't a valid image link")
	}
}

func TestCreate_AcceptsValidBannerURL(t *testing.T) {
	s := newTestStore(t)
	req := models.CreateEventRequest{
		Title: "x", BannerURL: "https://example.com/banner.jpg",
		StartAt: time.Now().Add(time.Hour), EndAt: time.Now().Add(2 * time.Hour),
	}
	if _, err := s.Create(context.Background(), req); err != nil {
		t.Fatalf("expected a valid banner_url to be accepted, got %v", err)
	}
}

func TestList_OnlyActive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ev, _ := s.Create(ctx, models.CreateEventRequest{Title: "A", StartAt: time.Now().Add(time.Hour), EndAt: time.Now().Add(2 * time.Hour)})
	inactive := false
	_, err := s.Update(ctx, ev.ID, models.UpdateEventRequest{IsActive: &inactive})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	list, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	for _, e := range list {
		if e.ID == ev.ID {
			t.Fatal("inactive event should not be listed")
		}
	}
}

func TestExpireSweep(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ev, err := s.Create(ctx, models.CreateEventRequest{
		Title:   "Soon to be past",
		StartAt: time.Now().Add(time.Hour),
		EndAt:   time.Now().Add(2 * time.Hour),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	pastStart, pastEnd := time.Now().Add(-48*time.Hour), time.Now().Add(-24*time.Hour)
	if _, err := s.Update(ctx, ev.ID, models.UpdateEventRequest{StartAt: &pastStart, EndAt: &pastEnd}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	n, err := s.ExpireSweep(ctx)
	if err != nil {
		t.Fatalf("ExpireSweep: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 event expired, got %d", n)
	}
	got, _ := s.Get(ctx, ev.ID)
	if got.IsActive {
		t.Error("expected event to be deactivated")
	}
}

func TestDelete_RemovesEventAndFeaturedReference(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ev, _ := s.Create(ctx, models.CreateEventRequest{Title: "Gone soon", StartAt: time.Now().Add(time.Hour), EndAt: time.Now().Add(2 * time.Hour)})
	if err := s.SetFeatured(ctx, models.FeaturedSlot1, ev.ID); err != nil {
		t.Fatalf("SetFeatured: %v", err)
	}

	if err := s.Delete(ctx, ev.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, ev.ID); err == nil {
		t.Fatal("expected deleted event to be gone")
	}

	slots, err := s.Featured(ctx)
	if err != nil {
		t.Fatalf("Featured: %v", err)
	}
	if len(slots.List()) != 0 {
		t.Fatal("expected featured slot referencing deleted event to clear")
	}
}

func TestDelete_UnknownEventFails(t *testing.T) {
	s := newTestStore(t)
	if err := s.Delete(context.Background(), "nope"); err == nil {
		t.Fatal("expected error deleting unknown event")
	}
}

func TestGetAll_IncludesInactive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ev, _ := s.Create(ctx, models.CreateEventRequest{Title: "Will deactivate", StartAt: time.Now().Add(time.Hour), EndAt: time.Now().Add(2 * time.Hour)})
	inactive := false
	if _, err := s.Update(ctx, ev.ID, models.UpdateEventRequest{IsActive: &inactive}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	all, err := s.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	found := false
	for _, e := range all {
		if e.ID == ev.ID {
			found = true
		}
	}
	if !found {
		t.Fatal("expected GetAll to include inactive event")
	}
}

func TestGetRecent_RespectsLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := s.Create(ctx, models.CreateEventRequest{Title: "E", StartAt: time.Now().Add(time.Hour), EndAt: time.Now().Add(2 * time.Hour)}); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	recent, err := s.GetRecent(ctx, 2)
	if err != nil {
		t.Fatalf("GetRecent: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 events, got %d", len(recent))
	}
}

func TestFeaturedSlots(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ev1, _ := s.Create(ctx, models.CreateEventRequest{Title: "One", StartAt: time.Now().Add(time.Hour), EndAt: time.Now().Add(2 * time.Hour)})
	ev2, _ := s.Create(ctx, models.CreateEventRequest{Title: "Two", StartAt: time.Now().Add(time.Hour), EndAt: time.Now().Add(2 * time.Hour)})

	if err := s.SetFeatured(ctx, models.FeaturedSlot1, ev1.ID); err != nil {
		t.Fatalf("SetFeatured 1: %v", err)
	}
	if err := s.SetFeatured(ctx, models.FeaturedSlot2, ev2.ID); err != nil {
		t.Fatalf("SetFeatured 2: %v", err)
	}

	slots, err := s.Featured(ctx)
	if err != nil {
		t.Fatalf("Featured: %v", err)
	}
	list := slots.List()
	if len(list) != 2 {
		t.Fatalf("expected 2 featured events, got %d", len(list))
	}

	if err := s.ClearFeatured(ctx, models.FeaturedSlot1); err != nil {
		t.Fatalf("ClearFeatured: %v", err)
	}
	slots, _ = s.Featured(ctx)
	if len(slots.List()) != 1 {
		t.Fatalf("expected 1 featured event after clear, got %d", len(slots.List()))
	}
}

func TestFeatured_ClearsDanglingReference(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ev, _ := s.Create(ctx, models.CreateEventRequest{Title: "Temp", StartAt: time.Now().Add(time.Hour), EndAt: time.Now().Add(2 * time.Hour)})
	if err := s.SetFeatured(ctx, models.FeaturedSlot1, ev.ID); err != nil {
		t.Fatalf("SetFeatured: %v", err)
	}

	inactive := false
	if _, err := s.Update(ctx, ev.ID, models.UpdateEventRequest{IsActive: &inactive}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	slots, err := s.Featured(ctx)
	if err != nil {
		t.Fatalf("Featured: %v", err)
	}
	if len(slots.List()) != 0 {
		t.Fatal("expected dangling featured slot to resolve empty")
	}
}
