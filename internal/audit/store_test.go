package audit

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/MrCodeEU/livecheck/internal/liveness"
	"github.com/MrCodeEU/livecheck/internal/session"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "data", "audit.db"), nil)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore(t *testing.T) {
	store := newTestStore(t)
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	t.Run("RecordStart", func(t *testing.T) {
		if err := store.RecordStart("s1", start); err != nil {
			t.Fatalf("Failed to record start: %v", err)
		}
		if err := store.RecordStart("s1", start); err == nil {
			t.Error("Expected duplicate session id to fail")
		}
	})

	t.Run("RecordChallenge", func(t *testing.T) {
		if err := store.RecordChallenge("s1", liveness.Blink, liveness.Label(liveness.Blink), start.Add(time.Second)); err != nil {
			t.Fatalf("Failed to record challenge: %v", err)
		}
		if err := store.RecordChallenge("s1", liveness.Smile, liveness.Label(liveness.Smile), start.Add(2*time.Second)); err != nil {
			t.Fatalf("Failed to record challenge: %v", err)
		}
	})

	t.Run("GetOpenSession", func(t *testing.T) {
		rec, err := store.GetSession("s1")
		if err != nil {
			t.Fatalf("Failed to get session: %v", err)
		}
		if rec.StoppedAt != nil || rec.Verified {
			t.Error("Expected open, unverified session")
		}
		if len(rec.Challenges) != 2 {
			t.Fatalf("Expected 2 challenges, got %d", len(rec.Challenges))
		}
		if rec.Challenges[0].Challenge != liveness.ChallengeBlink || rec.Challenges[1].Label != liveness.Label(liveness.Smile) {
			t.Errorf("Unexpected challenges %+v", rec.Challenges)
		}
	})

	t.Run("RecordStop", func(t *testing.T) {
		if err := store.RecordStop("s1", start.Add(time.Minute), false); err != nil {
			t.Fatalf("Failed to record stop: %v", err)
		}
		rec, err := store.GetSession("s1")
		if err != nil {
			t.Fatalf("Failed to get session: %v", err)
		}
		if rec.StoppedAt == nil || !rec.StoppedAt.Equal(start.Add(time.Minute)) {
			t.Errorf("Expected stop time, got %v", rec.StoppedAt)
		}
		if err := store.RecordStop("missing", start, true); err == nil {
			t.Error("Expected error for unknown session")
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		if _, err := store.GetSession("missing"); err == nil {
			t.Error("Expected error for unknown session")
		}
	})
}

func TestListSessionsNewestFirst(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		if err := store.RecordStart(id, base.Add(time.Duration(i)*time.Hour)); err != nil {
			t.Fatalf("Failed to record start: %v", err)
		}
	}

	records, err := store.ListSessions(2)
	if err != nil {
		t.Fatalf("Failed to list sessions: %v", err)
	}
	if len(records) != 2 || records[0].ID != "c" || records[1].ID != "b" {
		t.Fatalf("Expected [c b], got %+v", records)
	}
	if records[0].Challenges == nil {
		t.Error("Expected empty, non-nil challenge list")
	}
}

func TestObserver(t *testing.T) {
	store := newTestStore(t)
	at := time.Now()

	var obs session.Observer = store
	obs.SessionStarted("obs", at)
	for _, id := range []liveness.ChallengeID{liveness.TurnLeft, liveness.TurnRight} {
		obs.ChallengeCompleted(session.CaptureEvent{
			SessionID: "obs",
			Challenge: id,
			Label:     liveness.Label(id),
			At:        at,
		})
	}
	obs.SessionStopped("obs", at.Add(time.Second), true)

	rec, err := store.GetSession("obs")
	if err != nil {
		t.Fatalf("Failed to get session: %v", err)
	}
	if !rec.Verified || len(rec.Challenges) != 2 {
		t.Errorf("Expected verified session with 2 challenges, got %+v", rec)
	}
	if rec.Challenges[1].Challenge != liveness.ChallengeTurnRight {
		t.Errorf("Expected turn_right, got %s", rec.Challenges[1].Challenge)
	}

	// Unknown sessions are logged, not fatal
	obs.SessionStopped("unknown", at, false)
}
