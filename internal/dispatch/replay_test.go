package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/comandocentral/edge-svc/internal/models"
)

type fakeReplayStore struct {
	events        []models.InboxEvent
	notifications map[uuid.UUID][]models.Notification

	notificationsErr map[uuid.UUID]error

	gotSince     time.Time
	resetIDs     [][]uuid.UUID
	bumpedIDs    [][]uuid.UUID
	resetEvents  []uuid.UUID
	mutatedCount int
}

func (s *fakeReplayStore) EventsDoneSince(_ context.Context, _ uuid.UUID, since time.Time) ([]models.InboxEvent, error) {
	s.gotSince = since
	return s.events, nil
}

func (s *fakeReplayStore) NotificationsForEvent(_ context.Context, eventID uuid.UUID) ([]models.Notification, error) {
	if err := s.notificationsErr[eventID]; err != nil {
		return nil, err
	}
	return s.notifications[eventID], nil
}

func (s *fakeReplayStore) ResetNotifications(_ context.Context, ids []uuid.UUID) error {
	s.resetIDs = append(s.resetIDs, ids)
	s.mutatedCount++
	return nil
}

func (s *fakeReplayStore) BumpNotifications(_ context.Context, ids []uuid.UUID) error {
	s.bumpedIDs = append(s.bumpedIDs, ids)
	s.mutatedCount++
	return nil
}

func (s *fakeReplayStore) ResetEventPending(_ context.Context, eventID uuid.UUID) error {
	s.resetEvents = append(s.resetEvents, eventID)
	s.mutatedCount++
	return nil
}

func notification(status string) models.Notification {
	return models.Notification{ID: uuid.New(), Status: status}
}

func doneEvent() models.InboxEvent {
	return models.InboxEvent{ID: uuid.New(), Status: models.EventStatusProcessed}
}

func TestReplayWindowIsClamped(t *testing.T) {
	store := &fakeReplayStore{}
	replayer := NewReplayer(store, zap.NewNop())

	before := time.Now().UTC()
	if _, err := replayer.Replay(context.Background(), uuid.New(), 30); err != nil {
		t.Fatalf("Replay: %v", err)
	}

	wantSince := before.Add(-3 * 24 * time.Hour)
	diff := store.gotSince.Sub(wantSince)
	if diff < -time.Minute || diff > time.Minute {
		t.Fatalf("since = %v, want ~%v (30 days must clamp to 3)", store.gotSince, wantSince)
	}
}

func TestReplayZeroDaysUsesFullWindow(t *testing.T) {
	store := &fakeReplayStore{}
	replayer := NewReplayer(store, zap.NewNop())

	before := time.Now().UTC()
	if _, err := replayer.Replay(context.Background(), uuid.New(), 0); err != nil {
		t.Fatalf("Replay: %v", err)
	}

	wantSince := before.Add(-3 * 24 * time.Hour)
	diff := store.gotSince.Sub(wantSince)
	if diff < -time.Minute || diff > time.Minute {
		t.Fatalf("since = %v, want ~%v", store.gotSince, wantSince)
	}
}

func TestReplayShortWindowIsKept(t *testing.T) {
	store := &fakeReplayStore{}
	replayer := NewReplayer(store, zap.NewNop())

	before := time.Now().UTC()
	if _, err := replayer.Replay(context.Background(), uuid.New(), 1); err != nil {
		t.Fatalf("Replay: %v", err)
	}

	wantSince := before.Add(-24 * time.Hour)
	diff := store.gotSince.Sub(wantSince)
	if diff < -time.Minute || diff > time.Minute {
		t.Fatalf("since = %v, want ~%v", store.gotSince, wantSince)
	}
}

func TestReplayPerEventRules(t *testing.T) {
	delivered := doneEvent()
	stuck := doneEvent()
	orphan := doneEvent()
	pending := doneEvent()

	stuckFailed := notification(models.NotificationStatusFailed)
	stuckRetrying := notification(models.NotificationStatusRetrying)
	scheduled := notification(models.NotificationStatusScheduled)

	store := &fakeReplayStore{
		events: []models.InboxEvent{delivered, stuck, orphan, pending},
		notifications: map[uuid.UUID][]models.Notification{
			delivered.ID: {notification(models.NotificationStatusSent), notification(models.NotificationStatusFailed)},
			stuck.ID:     {stuckFailed, stuckRetrying},
			pending.ID:   {scheduled},
		},
	}
	replayer := NewReplayer(store, zap.NewNop())

	stats, err := replayer.Replay(context.Background(), uuid.New(), 3)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}

	want := ReplayStats{EventsFound: 4, EventsReset: 3, AlreadyProcessed: 1}
	if stats != want {
		t.Fatalf("stats = %+v, want %+v", stats, want)
	}

	// The delivered event must be untouched even though a sibling
	// notification failed.
	if len(store.resetIDs) != 1 {
		t.Fatalf("ResetNotifications calls = %d, want 1", len(store.resetIDs))
	}
	gotReset := store.resetIDs[0]
	if len(gotReset) != 2 || gotReset[0] != stuckFailed.ID || gotReset[1] != stuckRetrying.ID {
		t.Fatalf("reset ids = %v, want the stuck event's failed and retrying rows", gotReset)
	}

	if len(store.resetEvents) != 1 || store.resetEvents[0] != orphan.ID {
		t.Fatalf("reset events = %v, want only the notification-less event", store.resetEvents)
	}

	if len(store.bumpedIDs) != 1 || len(store.bumpedIDs[0]) != 1 || store.bumpedIDs[0][0] != scheduled.ID {
		t.Fatalf("bumped ids = %v, want the scheduled row", store.bumpedIDs)
	}
}

func TestReplayCountsPerEventErrorsAndContinues(t *testing.T) {
	broken := doneEvent()
	orphan := doneEvent()

	store := &fakeReplayStore{
		events:           []models.InboxEvent{broken, orphan},
		notifications:    map[uuid.UUID][]models.Notification{},
		notificationsErr: map[uuid.UUID]error{broken.ID: errors.New("db down")},
	}
	replayer := NewReplayer(store, zap.NewNop())

	stats, err := replayer.Replay(context.Background(), uuid.New(), 3)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}

	want := ReplayStats{EventsFound: 2, EventsReset: 1, Errors: 1}
	if stats != want {
		t.Fatalf("stats = %+v, want %+v (one error, second event still handled)", stats, want)
	}
	if len(store.resetEvents) != 1 || store.resetEvents[0] != orphan.ID {
		t.Fatalf("reset events = %v, want the orphan event", store.resetEvents)
	}
}
