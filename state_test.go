package stash

import "testing"

func TestStateTracker_StartsIdleWithPendingCount(t *testing.T) {
	tracker := NewStateTracker(7)
	state := tracker.Current()
	if state.Status != StatusIdle {
		t.Errorf("expected idle, got %s", state.Status)
	}
	if state.PendingCount != 7 {
		t.Errorf("expected pending count 7, got %d", state.PendingCount)
	}
}

func TestStateTracker_NotifiesSubscribers(t *testing.T) {
	tracker := NewStateTracker(0)

	var got []SyncState
	unsubscribe := tracker.Subscribe(func(s SyncState) {
		got = append(got, s)
	})

	tracker.update(func(s *SyncState) { s.Status = StatusSyncing })
	tracker.update(func(s *SyncState) { s.Status = StatusIdle })

	if len(got) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(got))
	}
	if got[0].Status != StatusSyncing || got[1].Status != StatusIdle {
		t.Errorf("unexpected notification sequence: %v", got)
	}

	unsubscribe()
	tracker.update(func(s *SyncState) { s.Status = StatusError })
	if len(got) != 2 {
		t.Errorf("unsubscribed listener still notified: %d notifications", len(got))
	}
}

func TestStateTracker_IndependentSubscribers(t *testing.T) {
	tracker := NewStateTracker(0)

	first, second := 0, 0
	unsubFirst := tracker.Subscribe(func(SyncState) { first++ })
	tracker.Subscribe(func(SyncState) { second++ })

	tracker.update(func(s *SyncState) { s.Status = StatusSyncing })
	unsubFirst()
	tracker.update(func(s *SyncState) { s.Status = StatusIdle })

	if first != 1 {
		t.Errorf("first subscriber: expected 1 notification, got %d", first)
	}
	if second != 2 {
		t.Errorf("second subscriber: expected 2 notifications, got %d", second)
	}
}
