package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	syncotel "github.com/readlist/readlist-sync/internal/otel"
	"github.com/readlist/readlist-sync/internal/status"
	pkgsync "github.com/readlist/readlist-sync/internal/sync"
	"github.com/readlist/readlist-sync/internal/sync/state"
)

// RunPass implements Coordinator
func (c *defaultCoordinator) RunPass(ctx context.Context) (*status.PassReport, error) {
	ctx, span := syncotel.StartSpan(ctx, c.tracer, "sync.run_pass")
	defer span.End()

	startedAt := c.clock.Now()
	eligible, err := c.store.ListEligible(ctx, startedAt, startedAt.Add(-c.settings.staleLockAfter))
	if err != nil {
		syncotel.RecordError(span, err)
		return nil, fmt.Errorf("failed to list eligible users: %w", err)
	}

	slog.Debug("Starting sync pass", "eligible", len(eligible))

	// Each goroutine owns one slot, so no locking is needed.
	slots := make([]*status.UserResult, len(eligible))

	var g errgroup.Group
	g.SetLimit(c.settings.concurrency)
	for i := range eligible {
		userID := eligible[i].UserID
		g.Go(func() error {
			slots[i] = c.syncUser(ctx, userID)
			return nil
		})
	}
	_ = g.Wait()

	report := &status.PassReport{
		StartedAt: startedAt,
		Eligible:  len(eligible),
		Results:   make([]status.UserResult, 0, len(slots)),
	}
	for _, r := range slots {
		if r != nil {
			report.Results = append(report.Results, *r)
		}
	}
	report.FinishedAt = c.clock.Now()

	c.metrics.RecordPassDuration(ctx, report.FinishedAt.Sub(startedAt), len(report.Results))
	counts := report.Counts()
	slog.Info("Sync pass finished",
		"eligible", len(eligible),
		"ok", counts[status.UserStatusOK],
		"sync_failed", counts[status.UserStatusSyncFailed],
		"update_failed", counts[status.UserStatusUpdateFailed],
		"duration", report.FinishedAt.Sub(startedAt))

	if c.reports != nil {
		if err := c.reports.SaveReport(ctx, report); err != nil {
			slog.Warn("Failed to save pass report", "error", err)
		}
	}

	return report, nil
}

// syncUser runs one user's sync. It returns nil for users that are skipped
// without being reported: unusable credentials and lost lock races.
func (c *defaultCoordinator) syncUser(ctx context.Context, userID uuid.UUID) *status.UserResult {
	logger := slog.With("user_id", userID)

	ctx, span := syncotel.StartSpan(ctx, c.tracer, "sync.user",
		trace.WithAttributes(syncotel.AttrUserID.String(userID.String())))
	defer span.End()

	// Credentials are resolved before locking so an undecryptable token
	// leaves the row untouched and the user is retried next pass.
	sealed, err := c.store.GetCredential(ctx, userID)
	if err != nil {
		logger.Warn("Skipping user without a stored credential", "error", err)
		return nil
	}
	token, err := c.decryptor.Decrypt(sealed)
	if err != nil {
		logger.Warn("Skipping user whose credential cannot be decrypted", "error", err)
		return nil
	}

	now := c.clock.Now()
	lock, err := c.store.AcquireLock(ctx, userID, now, now.Add(-c.settings.staleLockAfter))
	if err != nil {
		logger.Error("Failed to acquire sync lock", "error", err)
		syncotel.RecordError(span, err)
		return c.result(ctx, userID, status.UserStatusSyncFailed)
	}
	if lock == nil {
		logger.Debug("User is locked by another invocation, skipping")
		c.metrics.RecordLockSkipped(ctx)
		return nil
	}
	if lock.ReclaimedFrom != nil {
		logger.Warn("Reclaimed stale sync lock",
			"previous_lock_acquired_at", lock.ReclaimedFrom,
			"stale_after", c.settings.staleLockAfter)
	}

	outcome, runErr := c.runEngine(ctx, lock.State, token)

	resultStatus := status.UserStatusOK
	var release state.Release
	if runErr != nil {
		resultStatus = status.UserStatusSyncFailed
		logger.Error("Sync failed", "error", runErr)
		syncotel.RecordError(span, runErr)
	}
	if outcome != nil {
		release = outcome.Release(lock.AcquiredAt)
		c.recordOutcome(ctx, outcome)
	} else {
		release = c.punitiveRelease(lock)
	}

	if err := c.release(ctx, userID, release); err != nil {
		if errors.Is(err, state.ErrLockLost) {
			logger.Warn("Sync lock was reclaimed before release, outcome discarded")
			return nil
		}
		logger.Error("Failed to store sync outcome", "error", err)
		syncotel.RecordError(span, err)
		return c.result(ctx, userID, status.UserStatusUpdateFailed)
	}

	if outcome != nil {
		logger.Info("User synced",
			"mode", outcome.Mode.String(),
			"stop_reason", outcome.StopReason,
			"documents_written", outcome.DocumentsWritten,
			"requests", outcome.RequestsIssued,
			"next_allowed_at", outcome.NextAllowedAt)
	}
	return c.result(ctx, userID, resultStatus)
}

// runEngine turns an engine panic into an error with no outcome, so the
// user's cursors stay untouched.
func (c *defaultCoordinator) runEngine(
	ctx context.Context, st *state.SyncState, token string,
) (outcome *pkgsync.Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			outcome = nil
			err = fmt.Errorf("sync panicked: %v", r)
		}
	}()
	return c.engine.Run(ctx, st, token)
}

// punitiveRelease unlocks without touching cursors and keeps the user away
// for one full window.
func (c *defaultCoordinator) punitiveRelease(lock *state.Lock) state.Release {
	next := c.clock.Now().Add(c.settings.window)
	return state.Release{
		LockAcquiredAt:     lock.AcquiredAt,
		WindowStartedAt:    lock.State.WindowStartedAt,
		WindowRequestCount: lock.State.WindowRequestCount,
		NextAllowedAt:      &next,
	}
}

// release stores the outcome, retrying transient failures. It runs even
// when ctx was cancelled so a started pass never leaves its lock behind.
func (c *defaultCoordinator) release(ctx context.Context, userID uuid.UUID, r state.Release) error {
	ctx = context.WithoutCancel(ctx)
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := c.store.ReleaseLock(ctx, userID, r)
		if errors.Is(err, state.ErrLockLost) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(c.newBackOff()), backoff.WithMaxTries(releaseMaxTries))
	return err
}

func (c *defaultCoordinator) recordOutcome(ctx context.Context, o *pkgsync.Outcome) {
	c.metrics.RecordRequests(ctx, o.RequestsIssued)
	for loc, n := range o.WrittenByLocation {
		c.metrics.RecordDocumentsWritten(ctx, string(loc), n)
	}
	if o.StopReason != pkgsync.StopNone {
		c.metrics.RecordStop(ctx, string(o.StopReason))
	}
}

func (c *defaultCoordinator) result(ctx context.Context, userID uuid.UUID, s status.UserStatus) *status.UserResult {
	c.metrics.RecordUserResult(ctx, string(s))
	return &status.UserResult{UserID: userID, Status: s}
}
