package syncer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"teamsync/internal/directory"
	"teamsync/internal/logger"
	"teamsync/internal/slack"
)

// MemberLister is the fetch boundary the runner depends on.
type MemberLister interface {
	ListChannelMembers(ctx context.Context, nameOrID string) slack.FetchResult
}

// SummaryPoster receives a one-line sync summary, best-effort.
type SummaryPoster interface {
	PostSummary(ctx context.Context, text string) error
}

// Deps wires a Runner. Fetchers and senders are built per run from the
// organization's own token so workspaces with distinct credentials can
// sync concurrently.
type Deps struct {
	Store       directory.Store
	Engine      *Engine
	Coordinator *Coordinator

	// Tokens resolves an organization's bot token ("" when missing;
	// the fetcher reports missing_token).
	Tokens func(orgSlug string) string

	NewFetcher func(token string) MemberLister
	NewSender  func(token string) SetupSender

	// Summary is optional; nil disables the admin notification.
	Summary SummaryPoster

	// Channel is the channel name or id whose membership drives the
	// directory.
	Channel string

	// RunTimeout bounds one whole run, 0 for no bound.
	RunTimeout time.Duration
}

// Runner serializes reconciliation per organization and drives the
// fetch → reconcile → side-effect pipeline. Both the scheduled trigger
// and the membership webhook call Run with identical semantics.
type Runner struct {
	deps Deps

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewRunner(deps Deps) *Runner {
	return &Runner{
		deps:  deps,
		locks: make(map[string]*sync.Mutex),
	}
}

// Run executes one reconciliation for an organization. A run already in
// flight for the same organization makes this return sync_in_progress
// instead of blocking, so concurrent triggers cannot stack.
func (r *Runner) Run(ctx context.Context, orgSlug string) Outcome {
	lock := r.orgLock(orgSlug)
	if !lock.TryLock() {
		return Outcome{Failure: &Failure{
			Code:   FailureInProgress,
			Detail: fmt.Sprintf("a sync for %s is already running; retry after it finishes", orgSlug),
		}}
	}
	defer lock.Unlock()

	if r.deps.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.deps.RunTimeout)
		defer cancel()
	}

	org, err := r.deps.Store.EnsureOrganization(ctx, orgSlug)
	if err != nil {
		return Outcome{Failure: &Failure{
			Code:   FailureSyncError,
			Detail: "resolving organization failed: " + err.Error(),
		}}
	}

	token := r.deps.Tokens(orgSlug)
	result := r.deps.NewFetcher(token).ListChannelMembers(ctx, r.deps.Channel)
	if !result.OK() {
		logger.Error("membership fetch failed", map[string]any{
			"org":    orgSlug,
			"code":   string(result.ErrorCode),
			"detail": result.Detail,
		})
		return Outcome{Failure: &Failure{
			Code:   string(result.ErrorCode),
			Detail: result.Detail,
		}}
	}

	out, pending := r.deps.Engine.Reconcile(ctx, org.ID, result.Members)
	if !out.OK() {
		return out
	}

	r.deps.Coordinator.Deliver(ctx, orgSlug, r.deps.NewSender(token), &out, pending)

	logger.Info("sync complete", map[string]any{
		"org":               orgSlug,
		"created":           out.Created,
		"reactivated":       out.Reactivated,
		"deactivated":       out.Deactivated,
		"onboarded":         out.Onboarded,
		"onboarding_errors": out.OnboardingErrors,
	})

	r.postSummary(ctx, orgSlug, out)

	return out
}

func (r *Runner) postSummary(ctx context.Context, orgSlug string, out Outcome) {
	if r.deps.Summary == nil {
		return
	}
	if out.Created+out.Reactivated+out.Deactivated+out.OnboardingErrors == 0 {
		return // nothing changed, keep the admin channel quiet
	}

	text := fmt.Sprintf(
		"Directory sync for %s: %d created, %d reactivated, %d deactivated, %d onboarded (%d onboarding errors)",
		orgSlug, out.Created, out.Reactivated, out.Deactivated, out.Onboarded, out.OnboardingErrors,
	)
	if err := r.deps.Summary.PostSummary(ctx, text); err != nil {
		logger.Warn("sync summary post failed", map[string]any{
			"org":   orgSlug,
			"error": err.Error(),
		})
	}
}

func (r *Runner) orgLock(orgSlug string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()

	lock, ok := r.locks[orgSlug]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[orgSlug] = lock
	}
	return lock
}

// RunAll reconciles every known organization. Used by the scheduled
// trigger and by membership webhooks, which don't carry an organization
// slug; an extra run is harmless because runs are idempotent.
func (r *Runner) RunAll(ctx context.Context) {
	orgs, err := r.deps.Store.ListOrganizations(ctx)
	if err != nil {
		logger.Error("listing organizations failed", map[string]any{
			"error": err.Error(),
		})
		return
	}

	for _, org := range orgs {
		out := r.Run(ctx, org.Slug)
		if !out.OK() && out.Failure.Code != FailureInProgress {
			logger.Error("sync failed", map[string]any{
				"org":    org.Slug,
				"code":   out.Failure.Code,
				"detail": out.Failure.Detail,
			})
		}
	}
}

// StartCron launches the periodic trigger and returns immediately. It
// stops when ctx is done.
func (r *Runner) StartCron(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.RunAll(ctx)
			}
		}
	}()
}
