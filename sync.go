package stash

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// SpreadsheetStorage abstracts the remote tabular store backing a user's
// articles. Implementations must be safe for concurrent use.
type SpreadsheetStorage interface {
	// EnsureSpreadsheet resolves (or creates) the remote table backing this
	// user and returns its handle. Implementations cache the handle after
	// the first resolution.
	EnsureSpreadsheet(ctx context.Context) (string, error)

	// ListArticles fetches the full remote article set. A payload that is
	// not list-shaped surfaces as *RemotePayloadError.
	ListArticles(ctx context.Context) ([]Article, error)

	// AppendArticle adds a single row.
	AppendArticle(ctx context.Context, a Article) error

	// AppendArticles adds several rows in one round-trip.
	AppendArticles(ctx context.Context, articles []Article) error

	// UpdateArticle rewrites the row keyed by the article's URL.
	UpdateArticle(ctx context.Context, a Article) error

	// DeleteArticle removes the row keyed by url.
	DeleteArticle(ctx context.Context, url string) error
}

// AuthProvider supplies bearer credentials for the remote store.
type AuthProvider interface {
	// Token returns a valid bearer token, or an error satisfying
	// IsAuthError when no credential is available.
	Token(ctx context.Context) (string, error)

	// IsAuthenticated reports whether a valid credential is cached.
	IsAuthenticated(ctx context.Context) bool

	// HandleRedirect consumes a pending redirect-based credential and
	// reports whether one was found.
	HandleRedirect(ctx context.Context) (bool, error)

	// RedirectToAuth triggers the external authentication flow. Fire and
	// forget: the flow completes out of band.
	RedirectToAuth(ctx context.Context) error

	// ClearToken drops any cached credential.
	ClearToken() error
}

// SyncEngine is the orchestrator surface consumed by callers.
type SyncEngine interface {
	SyncNow(ctx context.Context) error
	Authenticate(ctx context.Context) (AuthResult, error)
	State() SyncState
	Subscribe(fn StateListener) func()
}

// AuthResult is the outcome of an Authenticate call.
type AuthResult string

const (
	// AuthOK means a valid credential is in place.
	AuthOK AuthResult = "authenticated"
	// AuthRedirecting means the external flow was triggered; the credential
	// arrives out of band and a later Authenticate call will find it.
	AuthRedirecting AuthResult = "redirecting"
)

// Orchestrator drives sync cycles against the remote store. It enforces
// single-flight: at most one cycle runs at a time, and a concurrent caller
// gets ErrSyncInProgress instead of queueing.
type Orchestrator struct {
	repo    *Repository
	storage SpreadsheetStorage
	auth    AuthProvider
	tracker *StateTracker
	log     *DebugLogger

	syncing atomic.Bool

	// Overridable for tests.
	timeout    time.Duration
	batchDelay time.Duration
}

var _ SyncEngine = (*Orchestrator)(nil)

// NewOrchestrator creates an orchestrator with injected dependencies. The
// observable state starts idle with the store's current pending count.
func NewOrchestrator(repo *Repository, storage SpreadsheetStorage, auth AuthProvider, log *DebugLogger) *Orchestrator {
	pending, _ := repo.GetPendingArticlesCount()
	return &Orchestrator{
		repo:       repo,
		storage:    storage,
		auth:       auth,
		tracker:    NewStateTracker(pending),
		log:        log,
		timeout:    SyncTimeout,
		batchDelay: syncBatchDelay,
	}
}

// State returns the current sync state.
func (o *Orchestrator) State() SyncState {
	return o.tracker.Current()
}

// Subscribe registers a state listener and returns its unsubscribe function.
func (o *Orchestrator) Subscribe(fn StateListener) func() {
	return o.tracker.Subscribe(fn)
}

// SyncNow runs one full sync cycle: precondition check, drain the outgoing
// queue, pull and merge remote state, verify, commit. Any failure leaves the
// state machine in a well-defined terminal state, never stuck in syncing.
func (o *Orchestrator) SyncNow(ctx context.Context) error {
	if o.storage == nil {
		return ErrOffline
	}
	if !o.syncing.CompareAndSwap(false, true) {
		return ErrSyncInProgress
	}
	defer o.syncing.Store(false)

	// Precondition: the local store must answer a trial read before the
	// state machine enters syncing at all.
	if err := o.repo.Ping(); err != nil {
		o.fail(err)
		return err
	}

	o.tracker.update(func(s *SyncState) {
		s.Status = StatusSyncing
		s.Error = ""
	})

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	// Wall-clock safety net: if the cycle is somehow still syncing when the
	// budget fires, surface the timeout even before the call stack unwinds.
	watchdog := time.AfterFunc(o.timeout, func() {
		o.tracker.update(func(s *SyncState) {
			if s.Status == StatusSyncing {
				s.Status = StatusError
				s.Error = ErrSyncTimeout.Error()
			}
		})
	})
	defer watchdog.Stop()

	if err := o.runCycle(ctx); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			err = ErrSyncTimeout
		}
		o.recoverQueue()
		o.fail(err)
		return err
	}

	now := time.Now().UTC()
	pending, _ := o.repo.GetPendingArticlesCount()
	if err := o.repo.SetLastSync(now); err != nil {
		o.log.LogError("commit", err)
	}
	o.tracker.update(func(s *SyncState) {
		s.Status = StatusIdle
		s.PendingCount = pending
		s.LastSyncTime = &now
		s.Error = ""
	})

	return nil
}

func (o *Orchestrator) runCycle(ctx context.Context) error {
	// Checkpoint counts for post-cycle integrity comparison. This is a
	// monitoring aid, not a rollback point.
	articlesBefore, queuedBefore, err := o.repo.Checkpoint()
	if err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	o.log.LogSync("checkpoint", fmt.Sprintf("%d articles, %d queued", articlesBefore, queuedBefore))

	if _, err := o.storage.EnsureSpreadsheet(ctx); err != nil {
		return fmt.Errorf("resolve remote handle: %w", err)
	}

	if err := o.drainQueue(ctx); err != nil {
		return fmt.Errorf("drain queue: %w", err)
	}

	if err := o.pullAndMerge(ctx); err != nil {
		return fmt.Errorf("pull remote: %w", err)
	}

	// Verify: the store must still answer before the cycle commits.
	if err := o.repo.Ping(); err != nil {
		return fmt.Errorf("verify: %w", err)
	}
	articlesAfter, queuedAfter, err := o.repo.Checkpoint()
	if err != nil {
		return fmt.Errorf("verify: %w", err)
	}
	o.log.LogSync("verify", fmt.Sprintf("%d articles (was %d), %d queued (was %d)",
		articlesAfter, articlesBefore, queuedAfter, queuedBefore))

	return nil
}

// drainQueue pushes pending operations to the remote in fixed-size batches
// with a small inter-batch delay, so a long queue does not burst the remote
// API. Operations are logically sequential; batches are never parallelized.
func (o *Orchestrator) drainQueue(ctx context.Context) error {
	ops, err := o.repo.GetPendingSyncOperations()
	if err != nil {
		return err
	}

	for start := 0; start < len(ops); start += syncBatchSize {
		if start > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(o.batchDelay):
			}
		}

		end := start + syncBatchSize
		if end > len(ops) {
			end = len(ops)
		}
		if err := o.processBatch(ctx, ops[start:end]); err != nil {
			return err
		}
	}

	return nil
}

// processBatch applies one batch. Runs of consecutive creates go through the
// batched append to save round-trips; on batch failure it falls back to
// per-operation handling so retry accounting stays per operation.
func (o *Orchestrator) processBatch(ctx context.Context, batch []SyncOperation) error {
	i := 0
	for i < len(batch) {
		if batch[i].Type == OpCreate {
			j := i
			for j < len(batch) && batch[j].Type == OpCreate && batch[j].Article != nil {
				j++
			}
			if j-i > 1 {
				if err := o.processCreateRun(ctx, batch[i:j]); err != nil {
					return err
				}
				i = j
				continue
			}
		}

		if err := o.processOperation(ctx, batch[i]); err != nil {
			return err
		}
		i++
	}
	return nil
}

func (o *Orchestrator) processCreateRun(ctx context.Context, run []SyncOperation) error {
	articles := make([]Article, len(run))
	for i, op := range run {
		articles[i] = *op.Article
	}

	err := o.storage.AppendArticles(ctx, articles)
	if err == nil {
		for _, op := range run {
			if err := o.finishOperation(op); err != nil {
				return err
			}
		}
		return nil
	}
	if IsAuthError(err) || ctx.Err() != nil {
		return err
	}

	o.log.LogError("batch append", err)
	for _, op := range run {
		if err := o.processOperation(ctx, op); err != nil {
			return err
		}
	}
	return nil
}

// processOperation applies one queued operation. Per-operation failures are
// isolated: they cost a retry and never abort the drain, with one exception:
// authentication failures are cycle-fatal and propagate immediately.
func (o *Orchestrator) processOperation(ctx context.Context, op SyncOperation) error {
	err := o.applyToRemote(ctx, op)
	if err == nil {
		return o.finishOperation(op)
	}
	if IsAuthError(err) || ctx.Err() != nil {
		return err
	}

	o.log.LogError(fmt.Sprintf("apply %s %s", op.Type, op.ArticleURL), err)

	// This attempt already consumed the budget's last slot: drop instead of
	// retrying a fourth time.
	if op.RetryCount >= MaxOperationAttempts-1 {
		o.log.LogSync("drop", fmt.Sprintf("%s %s exhausted retry budget", op.Type, op.ArticleURL))
		if rmErr := o.repo.RemoveSyncOperation(op.ID); rmErr != nil && rmErr != ErrOperationNotFound {
			return rmErr
		}
		return nil
	}

	if _, incErr := o.repo.IncrementSyncRetryCount(op.ID); incErr != nil && incErr != ErrOperationNotFound {
		return incErr
	}
	return nil
}

func (o *Orchestrator) applyToRemote(ctx context.Context, op SyncOperation) error {
	switch op.Type {
	case OpCreate:
		if op.Article == nil {
			return fmt.Errorf("create operation %s has no snapshot", op.ID)
		}
		return o.storage.AppendArticle(ctx, *op.Article)
	case OpUpdate:
		if op.Article == nil {
			return fmt.Errorf("update operation %s has no snapshot", op.ID)
		}
		return o.storage.UpdateArticle(ctx, *op.Article)
	case OpDelete:
		return o.storage.DeleteArticle(ctx, op.ArticleURL)
	default:
		return fmt.Errorf("unknown operation type %q", op.Type)
	}
}

// finishOperation removes a successfully applied operation and settles the
// local article: synced for create/update, purged for delete.
func (o *Orchestrator) finishOperation(op SyncOperation) error {
	if err := o.repo.RemoveSyncOperation(op.ID); err != nil && err != ErrOperationNotFound {
		return err
	}

	switch op.Type {
	case OpCreate, OpUpdate:
		return o.repo.MarkAsSynced([]string{op.ArticleURL})
	case OpDelete:
		// A re-save after the delete queued revives the row under the same
		// URL; purge only while it is still tombstoned.
		local, err := o.repo.store.GetArticle(op.ArticleURL, true)
		if err == ErrNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		if local.DeletedAt == nil {
			return nil
		}
		return o.repo.DeleteLocalOnly(op.ArticleURL)
	}
	return nil
}

// pullAndMerge fetches the full remote set, validates it structurally, and
// applies merge winners as one batched local write. Deletions are never
// inferred from absence in the remote list; they propagate only through
// explicit delete operations, so a partial remote read cannot destroy local
// data.
func (o *Orchestrator) pullAndMerge(ctx context.Context) error {
	remote, err := o.storage.ListArticles(ctx)
	if err != nil {
		return err
	}
	if len(remote) == 0 {
		return nil
	}

	// A payload where half or more of the entries fail the basic shape
	// check is an upstream fault, not data: reject the cycle outright.
	invalid := 0
	for i := range remote {
		if remote[i].URL == "" || remote[i].Title == "" {
			invalid++
		}
	}
	if invalid*2 >= len(remote) {
		return &RemotePayloadError{
			Total:   len(remote),
			Invalid: invalid,
			Reason:  "majority of entries missing url/title",
		}
	}

	var winners []Article
	for i := range remote {
		r := remote[i]
		if r.URL == "" || r.Title == "" {
			o.log.LogSync("pull", "skipping malformed remote row")
			continue
		}

		local, err := o.repo.store.GetArticle(r.URL, true)
		if err == ErrNotFound {
			winners = append(winners, r)
			continue
		}
		if err != nil {
			return err
		}

		if ResolveConflict(local, &r, o.log) == WinnerRemote {
			winners = append(winners, r)
		}
	}

	if len(winners) == 0 {
		return nil
	}
	o.log.LogSync("merge", fmt.Sprintf("%d remote winners of %d rows", len(winners), len(remote)))
	return o.repo.ApplyRemoteState(winners)
}

// recoverQueue is the bounded recovery pass after a failed cycle: queue
// entries older than an hour that already exhausted their retries are
// removed so they cannot wedge future cycles.
func (o *Orchestrator) recoverQueue() {
	cutoff := time.Now().Add(-staleOperationAge).UnixMilli()
	removed, err := o.repo.RecoverStaleOperations(cutoff)
	if err != nil {
		o.log.LogError("recovery", err)
		return
	}
	if removed > 0 {
		o.log.LogSync("recovery", fmt.Sprintf("removed %d stale queue entries", removed))
	}
}

func (o *Orchestrator) fail(err error) {
	pending, _ := o.repo.GetPendingArticlesCount()
	status := StatusError
	if IsAuthError(err) {
		status = StatusAuthRequired
	}
	o.tracker.update(func(s *SyncState) {
		s.Status = status
		s.PendingCount = pending
		s.Error = err.Error()
	})
}

// Authenticate checks for a usable credential, consuming a pending redirect
// credential if one arrived, and otherwise triggers the external flow.
// Triggering the flow is terminal from the orchestrator's point of view: the
// result is AuthRedirecting, not an awaited completion.
func (o *Orchestrator) Authenticate(ctx context.Context) (AuthResult, error) {
	if o.auth == nil {
		return "", ErrOffline
	}

	o.tracker.update(func(s *SyncState) {
		s.Status = StatusCheckingAuth
	})

	if o.auth.IsAuthenticated(ctx) {
		o.tracker.update(func(s *SyncState) {
			s.Status = StatusIdle
			s.Error = ""
		})
		return AuthOK, nil
	}

	found, err := o.auth.HandleRedirect(ctx)
	if err != nil {
		o.tracker.update(func(s *SyncState) {
			s.Status = StatusNotAuthenticated
			s.Error = err.Error()
		})
		return "", err
	}
	if found {
		o.tracker.update(func(s *SyncState) {
			s.Status = StatusIdle
			s.Error = ""
		})
		return AuthOK, nil
	}

	if err := o.auth.RedirectToAuth(ctx); err != nil {
		o.tracker.update(func(s *SyncState) {
			s.Status = StatusNotAuthenticated
			s.Error = err.Error()
		})
		return "", err
	}

	o.tracker.update(func(s *SyncState) {
		s.Status = StatusNotAuthenticated
	})
	return AuthRedirecting, nil
}
