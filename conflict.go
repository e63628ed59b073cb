package stash

import "time"

// Winner identifies which side of a conflicting pair survives.
type Winner string

const (
	WinnerLocal  Winner = "local"
	WinnerRemote Winner = "remote"
)

// ResolveConflict decides which version of an article sharing a key
// survives, under a last-write-wins policy with two safety rules:
//
//   - a remote row missing required fields is treated as corrupted and never
//     wins, regardless of timestamps;
//   - a local article still pending sync keeps a grace window: the remote
//     only wins if it is newer by more than the window, protecting in-flight
//     local edits from a narrowly-newer but already-stale remote read.
//
// Given identical inputs the outcome is always identical; the logger only
// records monitoring signals.
func ResolveConflict(local, remote *Article, log *DebugLogger) Winner {
	if remote.Title == "" || remote.Domain == "" {
		log.LogConflict(local.URL, WinnerLocal, "remote entry missing required fields")
		return WinnerLocal
	}

	localTime := local.ChangedAt()
	remoteTime := remote.ChangedAt()

	gap := localTime - remoteTime
	if gap < 0 {
		gap = -gap
	}
	if time.Duration(gap)*time.Millisecond > suspiciousGap {
		// Monitoring signal only; the outcome is unaffected.
		log.LogSync("resolve", "timestamp gap beyond one year for "+local.URL)
	}

	if local.SyncStatus == SyncStatusPending {
		if remoteTime > localTime+graceWindow.Milliseconds() {
			log.LogConflict(local.URL, WinnerRemote, "remote newer beyond the grace window")
			return WinnerRemote
		}
		if remoteTime > localTime {
			log.LogConflict(local.URL, WinnerLocal, "pending local protected by the grace window")
		}
		return WinnerLocal
	}

	// Ties favor local to avoid redundant overwrite churn.
	if remoteTime > localTime {
		return WinnerRemote
	}
	return WinnerLocal
}
