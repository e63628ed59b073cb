package stash

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// fakeStorage implements SpreadsheetStorage with overridable behavior.
type fakeStorage struct {
	mu sync.Mutex

	ensureFunc      func(ctx context.Context) (string, error)
	listFunc        func(ctx context.Context) ([]Article, error)
	appendFunc      func(ctx context.Context, a Article) error
	appendBatchFunc func(ctx context.Context, articles []Article) error
	updateFunc      func(ctx context.Context, a Article) error
	deleteFunc      func(ctx context.Context, url string) error

	appended     []Article
	batchAppends int
	updated      []Article
	deleted      []string
}

func (f *fakeStorage) EnsureSpreadsheet(ctx context.Context) (string, error) {
	if f.ensureFunc != nil {
		return f.ensureFunc(ctx)
	}
	return "sheet-1", nil
}

func (f *fakeStorage) ListArticles(ctx context.Context) ([]Article, error) {
	if f.listFunc != nil {
		return f.listFunc(ctx)
	}
	return nil, nil
}

func (f *fakeStorage) AppendArticle(ctx context.Context, a Article) error {
	if f.appendFunc != nil {
		if err := f.appendFunc(ctx, a); err != nil {
			return err
		}
	}
	f.mu.Lock()
	f.appended = append(f.appended, a)
	f.mu.Unlock()
	return nil
}

func (f *fakeStorage) AppendArticles(ctx context.Context, articles []Article) error {
	if f.appendBatchFunc != nil {
		if err := f.appendBatchFunc(ctx, articles); err != nil {
			return err
		}
	}
	f.mu.Lock()
	f.batchAppends++
	f.appended = append(f.appended, articles...)
	f.mu.Unlock()
	return nil
}

func (f *fakeStorage) UpdateArticle(ctx context.Context, a Article) error {
	if f.updateFunc != nil {
		if err := f.updateFunc(ctx, a); err != nil {
			return err
		}
	}
	f.mu.Lock()
	f.updated = append(f.updated, a)
	f.mu.Unlock()
	return nil
}

func (f *fakeStorage) DeleteArticle(ctx context.Context, url string) error {
	if f.deleteFunc != nil {
		if err := f.deleteFunc(ctx, url); err != nil {
			return err
		}
	}
	f.mu.Lock()
	f.deleted = append(f.deleted, url)
	f.mu.Unlock()
	return nil
}

// fakeAuth implements AuthProvider with overridable behavior.
type fakeAuth struct {
	tokenFunc           func(ctx context.Context) (string, error)
	isAuthenticatedFunc func(ctx context.Context) bool
	handleRedirectFunc  func(ctx context.Context) (bool, error)
	redirectFunc        func(ctx context.Context) error
	cleared             bool
}

func (f *fakeAuth) Token(ctx context.Context) (string, error) {
	if f.tokenFunc != nil {
		return f.tokenFunc(ctx)
	}
	return "token", nil
}

func (f *fakeAuth) IsAuthenticated(ctx context.Context) bool {
	if f.isAuthenticatedFunc != nil {
		return f.isAuthenticatedFunc(ctx)
	}
	return true
}

func (f *fakeAuth) HandleRedirect(ctx context.Context) (bool, error) {
	if f.handleRedirectFunc != nil {
		return f.handleRedirectFunc(ctx)
	}
	return false, nil
}

func (f *fakeAuth) RedirectToAuth(ctx context.Context) error {
	if f.redirectFunc != nil {
		return f.redirectFunc(ctx)
	}
	return nil
}

func (f *fakeAuth) ClearToken() error {
	f.cleared = true
	return nil
}

func newTestOrchestrator(t *testing.T, storage SpreadsheetStorage) (*Orchestrator, *Repository) {
	t.Helper()
	repo := newTestRepo(t)
	o := NewOrchestrator(repo, storage, &fakeAuth{}, nil)
	o.batchDelay = time.Millisecond
	return o, repo
}

func TestSyncNow_OfflineWithoutStorage(t *testing.T) {
	o, _ := newTestOrchestrator(t, nil)
	if err := o.SyncNow(context.Background()); err != ErrOffline {
		t.Errorf("expected ErrOffline, got %v", err)
	}
}

func TestSyncNow_SingleFlight(t *testing.T) {
	release := make(chan struct{})
	storage := &fakeStorage{
		ensureFunc: func(ctx context.Context) (string, error) {
			<-release
			return "sheet-1", nil
		},
	}
	o, _ := newTestOrchestrator(t, storage)

	done := make(chan error, 1)
	go func() { done <- o.SyncNow(context.Background()) }()

	// Wait until the first cycle is visibly syncing.
	deadline := time.After(2 * time.Second)
	for o.State().Status != StatusSyncing {
		select {
		case <-deadline:
			t.Fatal("first cycle never entered syncing")
		case <-time.After(time.Millisecond):
		}
	}

	if err := o.SyncNow(context.Background()); err != ErrSyncInProgress {
		t.Errorf("concurrent call: expected ErrSyncInProgress, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Errorf("first cycle failed: %v", err)
	}

	// The lock is released afterwards.
	if err := o.SyncNow(context.Background()); err != nil {
		t.Errorf("follow-up cycle failed: %v", err)
	}
}

func TestSyncNow_PushesQueueAndSettlesArticles(t *testing.T) {
	storage := &fakeStorage{}
	o, repo := newTestOrchestrator(t, storage)

	if _, err := repo.Save(Article{URL: "https://example.com/a", Title: "A"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := repo.Save(Article{URL: "https://example.com/b", Title: "B"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if err := o.SyncNow(context.Background()); err != nil {
		t.Fatalf("SyncNow failed: %v", err)
	}

	if len(storage.appended) != 2 {
		t.Errorf("expected 2 appended articles, got %d", len(storage.appended))
	}
	// Two consecutive creates go through the batched append.
	if storage.batchAppends != 1 {
		t.Errorf("expected 1 batched append, got %d", storage.batchAppends)
	}

	ops, _ := repo.GetPendingSyncOperations()
	if len(ops) != 0 {
		t.Errorf("queue not drained: %d left", len(ops))
	}

	a, err := repo.GetByURL("https://example.com/a")
	if err != nil {
		t.Fatalf("GetByURL failed: %v", err)
	}
	if a.SyncStatus != SyncStatusSynced {
		t.Errorf("expected synced article, got %s", a.SyncStatus)
	}

	state := o.State()
	if state.Status != StatusIdle {
		t.Errorf("expected idle after success, got %s", state.Status)
	}
	if state.PendingCount != 0 {
		t.Errorf("expected 0 pending, got %d", state.PendingCount)
	}
	if state.LastSyncTime == nil {
		t.Error("LastSyncTime not set")
	}
}

func TestSyncNow_DeleteFinalizedAfterRemoteConfirm(t *testing.T) {
	storage := &fakeStorage{}
	o, repo := newTestOrchestrator(t, storage)

	if _, err := repo.Save(Article{URL: "https://example.com/a", Title: "A"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := o.SyncNow(context.Background()); err != nil {
		t.Fatalf("first sync failed: %v", err)
	}
	if err := repo.Delete("https://example.com/a"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if err := o.SyncNow(context.Background()); err != nil {
		t.Fatalf("second sync failed: %v", err)
	}

	if len(storage.deleted) != 1 || storage.deleted[0] != "https://example.com/a" {
		t.Errorf("remote delete not issued: %v", storage.deleted)
	}
	// Confirmed delete purges the local row entirely.
	if _, err := repo.store.GetArticle("https://example.com/a", true); err != ErrNotFound {
		t.Errorf("expected hard-removed row, got %v", err)
	}
}

func TestSyncNow_ResaveAfterDeleteSurvivesDrain(t *testing.T) {
	storage := &fakeStorage{}
	o, repo := newTestOrchestrator(t, storage)

	if _, err := repo.Save(Article{URL: "https://example.com/a", Title: "A"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := repo.Delete("https://example.com/a"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := repo.Save(Article{URL: "https://example.com/a", Title: "A again"}); err != nil {
		t.Fatalf("re-save failed: %v", err)
	}

	if err := o.SyncNow(context.Background()); err != nil {
		t.Fatalf("sync failed: %v", err)
	}

	// The delete confirmation must not purge the freshly re-saved row.
	a, err := repo.store.GetArticle("https://example.com/a", true)
	if err != nil {
		t.Fatalf("row lost after drain: %v", err)
	}
	if a.Title != "A again" {
		t.Errorf("title = %q, want the re-saved version", a.Title)
	}
	if a.DeletedAt != nil {
		t.Error("re-saved row should not be tombstoned")
	}
	if a.SyncStatus != SyncStatusSynced {
		t.Errorf("syncStatus = %q, want synced", a.SyncStatus)
	}
	if len(storage.deleted) != 1 {
		t.Errorf("remote deletes = %v, want the queued delete issued once", storage.deleted)
	}
}

func TestSyncNow_TransientFailureCostsOneRetry(t *testing.T) {
	fail := true
	storage := &fakeStorage{
		appendFunc: func(ctx context.Context, a Article) error {
			if fail {
				return errors.New("remote hiccup")
			}
			return nil
		},
		appendBatchFunc: func(ctx context.Context, articles []Article) error {
			return errors.New("batch unavailable")
		},
	}
	o, repo := newTestOrchestrator(t, storage)

	if _, err := repo.Save(Article{URL: "https://example.com/a", Title: "A"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// Per-operation failures do not fail the cycle.
	if err := o.SyncNow(context.Background()); err != nil {
		t.Fatalf("SyncNow failed: %v", err)
	}

	ops, _ := repo.GetPendingSyncOperations()
	if len(ops) != 1 {
		t.Fatalf("expected operation kept for retry, queue has %d", len(ops))
	}
	if ops[0].RetryCount != 1 {
		t.Errorf("expected retry count 1, got %d", ops[0].RetryCount)
	}

	fail = false
	if err := o.SyncNow(context.Background()); err != nil {
		t.Fatalf("retry sync failed: %v", err)
	}
	ops, _ = repo.GetPendingSyncOperations()
	if len(ops) != 0 {
		t.Errorf("queue not drained after recovery: %d left", len(ops))
	}
}

func TestSyncNow_ExhaustedRetryBudgetDropsOperation(t *testing.T) {
	storage := &fakeStorage{
		appendFunc: func(ctx context.Context, a Article) error {
			return errors.New("permanently broken")
		},
	}
	o, repo := newTestOrchestrator(t, storage)

	if _, err := repo.Save(Article{URL: "https://example.com/a", Title: "A"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	for cycle := 0; cycle < MaxOperationAttempts; cycle++ {
		if err := o.SyncNow(context.Background()); err != nil {
			t.Fatalf("cycle %d failed: %v", cycle, err)
		}
	}

	ops, _ := repo.GetPendingSyncOperations()
	if len(ops) != 0 {
		t.Errorf("operation should be dropped after %d attempts, queue has %d", MaxOperationAttempts, len(ops))
	}
}

func TestSyncNow_AuthErrorIsCycleFatal(t *testing.T) {
	calls := 0
	storage := &fakeStorage{
		appendFunc: func(ctx context.Context, a Article) error {
			calls++
			return &SyncError{Operation: "append", StatusCode: 401, Err: errors.New("unauthorized")}
		},
	}
	o, repo := newTestOrchestrator(t, storage)

	for i := 0; i < 3; i++ {
		a := Article{URL: fmt.Sprintf("https://example.com/%d", i), Title: "A", Timestamp: int64(1000 + i)}
		if _, err := repo.Save(a); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		// Separate ops so they do not form one batched create run.
		if err := repo.Delete(a.URL); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if _, err := repo.Restore(a.URL); err != nil {
			t.Fatalf("Restore failed: %v", err)
		}
	}

	err := o.SyncNow(context.Background())
	if err == nil {
		t.Fatal("expected auth failure")
	}
	if !IsAuthError(err) {
		t.Errorf("expected auth error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("auth failure must abort the drain immediately, saw %d remote calls", calls)
	}
	if o.State().Status != StatusAuthRequired {
		t.Errorf("expected auth-required state, got %s", o.State().Status)
	}

	// No retry was charged for the aborted cycle's unprocessed operations.
	ops, _ := repo.GetPendingSyncOperations()
	for _, op := range ops[1:] {
		if op.RetryCount != 0 {
			t.Errorf("unprocessed operation %s charged a retry", op.ID)
		}
	}
}

func TestSyncNow_PullMergesRemoteWinners(t *testing.T) {
	storage := &fakeStorage{
		listFunc: func(ctx context.Context) ([]Article, error) {
			return []Article{
				{URL: "https://example.com/new", Title: "Brand new", Domain: "example.com", Timestamp: 5000},
				{URL: "https://example.com/stale", Title: "Old remote", Domain: "example.com", Timestamp: 1},
			}, nil
		},
	}
	o, repo := newTestOrchestrator(t, storage)

	if err := repo.ApplyRemoteState([]Article{
		{URL: "https://example.com/stale", Title: "Local copy", Domain: "example.com", Timestamp: 9000},
	}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	if err := o.SyncNow(context.Background()); err != nil {
		t.Fatalf("SyncNow failed: %v", err)
	}

	// Unknown remote article lands locally, marked synced.
	a, err := repo.GetByURL("https://example.com/new")
	if err != nil {
		t.Fatalf("pulled article missing: %v", err)
	}
	if a.SyncStatus != SyncStatusSynced {
		t.Errorf("pulled article not synced: %s", a.SyncStatus)
	}

	// Older remote version does not clobber the newer local one.
	stale, _ := repo.GetByURL("https://example.com/stale")
	if stale.Title != "Local copy" {
		t.Errorf("older remote overwrote local: %q", stale.Title)
	}
}

func TestSyncNow_AbsenceFromRemoteIsNotDeletion(t *testing.T) {
	storage := &fakeStorage{
		listFunc: func(ctx context.Context) ([]Article, error) {
			return []Article{
				{URL: "https://example.com/only", Title: "Only row", Domain: "example.com", Timestamp: 1000},
			}, nil
		},
	}
	o, repo := newTestOrchestrator(t, storage)

	if err := repo.ApplyRemoteState([]Article{
		{URL: "https://example.com/kept", Title: "Kept", Domain: "example.com", Timestamp: 500},
	}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	if err := o.SyncNow(context.Background()); err != nil {
		t.Fatalf("SyncNow failed: %v", err)
	}

	if _, err := repo.GetByURL("https://example.com/kept"); err != nil {
		t.Errorf("article absent from remote list was deleted locally: %v", err)
	}
}

func TestSyncNow_MajorityInvalidPayloadAbortsPull(t *testing.T) {
	storage := &fakeStorage{
		listFunc: func(ctx context.Context) ([]Article, error) {
			return []Article{
				{URL: "https://example.com/ok", Title: "OK", Domain: "example.com", Timestamp: 1000},
				{URL: "", Title: "no url"},
				{URL: "https://example.com/x", Title: ""},
				{URL: "https://example.com/y", Title: "fine", Domain: "example.com", Timestamp: 2000},
			}, nil
		},
	}
	o, repo := newTestOrchestrator(t, storage)

	err := o.SyncNow(context.Background())
	if err == nil {
		t.Fatal("expected cycle failure")
	}
	var payloadErr *RemotePayloadError
	if !errors.As(err, &payloadErr) {
		t.Fatalf("expected RemotePayloadError, got %v", err)
	}
	if payloadErr.Invalid != 2 || payloadErr.Total != 4 {
		t.Errorf("unexpected payload error counts: %+v", payloadErr)
	}

	// Nothing from the rejected payload landed locally.
	if _, err := repo.GetByURL("https://example.com/ok"); err != ErrNotFound {
		t.Errorf("rejected payload partially applied: %v", err)
	}
	if o.State().Status != StatusError {
		t.Errorf("expected error state, got %s", o.State().Status)
	}
}

func TestSyncNow_MinorityInvalidRowsAreSkipped(t *testing.T) {
	storage := &fakeStorage{
		listFunc: func(ctx context.Context) ([]Article, error) {
			return []Article{
				{URL: "https://example.com/a", Title: "A", Domain: "example.com", Timestamp: 1000},
				{URL: "https://example.com/b", Title: "B", Domain: "example.com", Timestamp: 2000},
				{URL: "", Title: "broken"},
			}, nil
		},
	}
	o, repo := newTestOrchestrator(t, storage)

	if err := o.SyncNow(context.Background()); err != nil {
		t.Fatalf("SyncNow failed: %v", err)
	}

	count, _ := repo.GetCount(Filters{})
	if count != 2 {
		t.Errorf("expected 2 articles after skipping malformed row, got %d", count)
	}
}

func TestSyncNow_TimeoutSurfacesAsErrSyncTimeout(t *testing.T) {
	storage := &fakeStorage{
		ensureFunc: func(ctx context.Context) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
	}
	o, _ := newTestOrchestrator(t, storage)
	o.timeout = 20 * time.Millisecond

	err := o.SyncNow(context.Background())
	if !errors.Is(err, ErrSyncTimeout) {
		t.Fatalf("expected ErrSyncTimeout, got %v", err)
	}
	if o.State().Status != StatusError {
		t.Errorf("expected error state after timeout, got %s", o.State().Status)
	}
	// The single-flight lock is released.
	storage.ensureFunc = nil
	if err := o.SyncNow(context.Background()); err != nil {
		t.Errorf("cycle after timeout failed: %v", err)
	}
}

func TestSyncNow_StateTransitions(t *testing.T) {
	storage := &fakeStorage{}
	o, _ := newTestOrchestrator(t, storage)

	var statuses []EngineStatus
	unsubscribe := o.Subscribe(func(s SyncState) {
		statuses = append(statuses, s.Status)
	})
	defer unsubscribe()

	if err := o.SyncNow(context.Background()); err != nil {
		t.Fatalf("SyncNow failed: %v", err)
	}

	if len(statuses) < 2 {
		t.Fatalf("expected at least syncing and idle notifications, got %v", statuses)
	}
	if statuses[0] != StatusSyncing {
		t.Errorf("first transition should be syncing, got %s", statuses[0])
	}
	if statuses[len(statuses)-1] != StatusIdle {
		t.Errorf("last transition should be idle, got %s", statuses[len(statuses)-1])
	}
}

func TestAuthenticate_Flows(t *testing.T) {
	t.Run("already authenticated", func(t *testing.T) {
		o, _ := newTestOrchestrator(t, &fakeStorage{})
		result, err := o.Authenticate(context.Background())
		if err != nil || result != AuthOK {
			t.Errorf("expected AuthOK, got %v %v", result, err)
		}
		if o.State().Status != StatusIdle {
			t.Errorf("expected idle, got %s", o.State().Status)
		}
	})

	t.Run("pending redirect credential", func(t *testing.T) {
		repo := newTestRepo(t)
		auth := &fakeAuth{
			isAuthenticatedFunc: func(ctx context.Context) bool { return false },
			handleRedirectFunc:  func(ctx context.Context) (bool, error) { return true, nil },
		}
		o := NewOrchestrator(repo, &fakeStorage{}, auth, nil)
		result, err := o.Authenticate(context.Background())
		if err != nil || result != AuthOK {
			t.Errorf("expected AuthOK via redirect, got %v %v", result, err)
		}
	})

	t.Run("triggers external flow", func(t *testing.T) {
		repo := newTestRepo(t)
		auth := &fakeAuth{
			isAuthenticatedFunc: func(ctx context.Context) bool { return false },
		}
		o := NewOrchestrator(repo, &fakeStorage{}, auth, nil)
		result, err := o.Authenticate(context.Background())
		if err != nil {
			t.Fatalf("Authenticate failed: %v", err)
		}
		if result != AuthRedirecting {
			t.Errorf("expected AuthRedirecting, got %v", result)
		}
		if o.State().Status != StatusNotAuthenticated {
			t.Errorf("expected not-authenticated state, got %s", o.State().Status)
		}
	})
}
