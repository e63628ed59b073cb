package stash

import (
	"testing"
	"time"
)

func conflictPair(localTime, remoteTime int64, localStatus SyncStatus) (*Article, *Article) {
	local := &Article{
		URL:        "https://example.com/a",
		Title:      "Local",
		Domain:     "example.com",
		Timestamp:  localTime,
		SyncStatus: localStatus,
	}
	remote := &Article{
		URL:       "https://example.com/a",
		Title:     "Remote",
		Domain:    "example.com",
		Timestamp: remoteTime,
	}
	return local, remote
}

func TestResolveConflict_NewerRemoteWins(t *testing.T) {
	local, remote := conflictPair(1000, 2000, SyncStatusSynced)
	if got := ResolveConflict(local, remote, nil); got != WinnerRemote {
		t.Errorf("expected remote to win, got %s", got)
	}
}

func TestResolveConflict_TieFavorsLocal(t *testing.T) {
	local, remote := conflictPair(5000, 5000, SyncStatusSynced)
	if got := ResolveConflict(local, remote, nil); got != WinnerLocal {
		t.Errorf("expected local to win on tie, got %s", got)
	}
}

func TestResolveConflict_OlderRemoteLoses(t *testing.T) {
	local, remote := conflictPair(5000, 1000, SyncStatusSynced)
	if got := ResolveConflict(local, remote, nil); got != WinnerLocal {
		t.Errorf("expected local to win, got %s", got)
	}
}

func TestResolveConflict_PendingLocalGraceWindow(t *testing.T) {
	grace := graceWindow.Milliseconds()

	// Remote newer but inside the window: local pending edit survives.
	local, remote := conflictPair(10_000, 10_000+grace-1000, SyncStatusPending)
	if got := ResolveConflict(local, remote, nil); got != WinnerLocal {
		t.Errorf("inside grace window: expected local, got %s", got)
	}

	// Exactly at the window boundary still protects local.
	local, remote = conflictPair(10_000, 10_000+grace, SyncStatusPending)
	if got := ResolveConflict(local, remote, nil); got != WinnerLocal {
		t.Errorf("at grace boundary: expected local, got %s", got)
	}

	// Beyond the window the remote is genuinely newer.
	local, remote = conflictPair(10_000, 10_000+grace+1000, SyncStatusPending)
	if got := ResolveConflict(local, remote, nil); got != WinnerRemote {
		t.Errorf("beyond grace window: expected remote, got %s", got)
	}
}

func TestResolveConflict_CorruptedRemoteNeverWins(t *testing.T) {
	local, remote := conflictPair(1000, 999_999_999, SyncStatusSynced)
	remote.Title = ""
	if got := ResolveConflict(local, remote, nil); got != WinnerLocal {
		t.Errorf("remote without title must lose, got %s", got)
	}

	local, remote = conflictPair(1000, 999_999_999, SyncStatusSynced)
	remote.Domain = ""
	if got := ResolveConflict(local, remote, nil); got != WinnerLocal {
		t.Errorf("remote without domain must lose, got %s", got)
	}
}

func TestResolveConflict_UsesChangeTimeNotSaveTime(t *testing.T) {
	local, remote := conflictPair(1000, 5000, SyncStatusSynced)
	edited := int64(9000)
	local.EditedAt = &edited

	if got := ResolveConflict(local, remote, nil); got != WinnerLocal {
		t.Errorf("local edit is newest change, expected local, got %s", got)
	}
}

func TestResolveConflict_SuspiciousGapDoesNotChangeOutcome(t *testing.T) {
	twoYears := (2 * 365 * 24 * time.Hour).Milliseconds()
	local, remote := conflictPair(1000, 1000+twoYears, SyncStatusSynced)
	if got := ResolveConflict(local, remote, nil); got != WinnerRemote {
		t.Errorf("huge gap is logged only, remote still wins: got %s", got)
	}
}

func TestResolveConflict_Deterministic(t *testing.T) {
	local, remote := conflictPair(10_000, 10_000+graceWindow.Milliseconds()-1, SyncStatusPending)
	first := ResolveConflict(local, remote, nil)
	for i := 0; i < 50; i++ {
		if got := ResolveConflict(local, remote, nil); got != first {
			t.Fatalf("iteration %d: outcome changed from %s to %s", i, first, got)
		}
	}
}
