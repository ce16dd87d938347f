package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
	"k8s.io/utils/clock"

	"github.com/readlist/readlist-sync/internal/budget"
	"github.com/readlist/readlist-sync/internal/config"
	"github.com/readlist/readlist-sync/internal/contentapi"
	"github.com/readlist/readlist-sync/internal/cursor"
	syncotel "github.com/readlist/readlist-sync/internal/otel"
	"github.com/readlist/readlist-sync/internal/sync/state"
	"github.com/readlist/readlist-sync/internal/sync/writer"
)

// Mode selects how locations are sequenced within a pass.
type Mode int

const (
	// ModeInitial backfills locations one after another in priority order.
	ModeInitial Mode = iota
	// ModeIncremental visits every location once per pass.
	ModeIncremental
)

// String returns the mode name used in logs and spans
func (m Mode) String() string {
	if m == ModeIncremental {
		return "incremental"
	}
	return "initial"
}

// StopReason tells why a pass ended before visiting every location.
type StopReason string

const (
	// StopNone means the pass ran to completion.
	StopNone StopReason = ""
	// StopBudgetExhausted means the local request budget ran out.
	StopBudgetExhausted StopReason = "budget_exhausted"
	// StopRateLimited means the remote API answered 429.
	StopRateLimited StopReason = "rate_limited"
	// StopError means an unexpected error aborted the pass.
	StopError StopReason = "error"
)

// Settings are the per-pass tunables of the engine.
type Settings struct {
	Locations    []contentapi.Location
	PageSize     int
	RequestLimit int
	Window       time.Duration
	MinInterval  time.Duration
}

// SettingsFromConfig extracts engine settings from the service config
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		Locations:    cfg.Sync.GetLocations(),
		PageSize:     cfg.Sync.GetPageSize(),
		RequestLimit: cfg.Sync.GetRequestLimit(),
		Window:       cfg.Sync.GetWindow(),
		MinInterval:  cfg.Sync.GetMinInterval(),
	}
}

// Outcome is everything a pass computed for the final state write.
type Outcome struct {
	Mode Mode

	// Cursors holds the new encoded cursor of each location whose cursor
	// changed. Locations not present keep their stored cursor.
	Cursors map[contentapi.Location]*string

	// CompletedLocations lists locations that reached their last page in
	// this pass, in visiting order.
	CompletedLocations []contentapi.Location

	InitialBackfillDone bool

	WindowStartedAt    time.Time
	WindowRequestCount int

	Last429At     *time.Time
	NextAllowedAt time.Time
	LastSyncAt    *time.Time

	DocumentsWritten int

	// WrittenByLocation breaks DocumentsWritten down per location
	WrittenByLocation map[contentapi.Location]int

	RequestsIssued int
	StopReason     StopReason
}

// Release converts the outcome into the state write that ends the pass.
func (o *Outcome) Release(lockAcquiredAt time.Time) state.Release {
	windowStartedAt := o.WindowStartedAt
	nextAllowedAt := o.NextAllowedAt
	return state.Release{
		LockAcquiredAt:      lockAcquiredAt,
		Cursors:             o.Cursors,
		InitialBackfillDone: o.InitialBackfillDone,
		WindowStartedAt:     &windowStartedAt,
		WindowRequestCount:  o.WindowRequestCount,
		Last429At:           o.Last429At,
		LastSyncAt:          o.LastSyncAt,
		NextAllowedAt:       &nextAllowedAt,
	}
}

// Engine runs one sync pass for one user.
//
//go:generate mockgen -destination=mocks/mock_engine.go -package=mocks github.com/readlist/readlist-sync/internal/sync Engine
type Engine interface {
	// Run syncs the user described by st, who must be locked by the caller.
	// token is the decrypted Content API token. Rate limiting and budget
	// exhaustion end the pass without error. Any other error is returned
	// together with the partial outcome reached before it.
	Run(ctx context.Context, st *state.SyncState, token string) (*Outcome, error)
}

// EngineOption configures the engine
type EngineOption func(*defaultEngine)

// WithClock sets the time source
func WithClock(c clock.PassiveClock) EngineOption {
	return func(e *defaultEngine) {
		e.clock = c
	}
}

// WithTracer sets the tracer used for pass and location spans
func WithTracer(t trace.Tracer) EngineOption {
	return func(e *defaultEngine) {
		e.tracer = t
	}
}

type defaultEngine struct {
	client   contentapi.Client
	writer   writer.DocumentWriter
	settings Settings
	clock    clock.PassiveClock
	tracer   trace.Tracer
}

// NewEngine creates the default Engine
func NewEngine(client contentapi.Client, w writer.DocumentWriter, settings Settings, opts ...EngineOption) Engine {
	if len(settings.Locations) == 0 {
		settings.Locations = contentapi.DefaultLocations
	}
	if settings.PageSize <= 0 {
		settings.PageSize = config.DefaultPageSize
	}
	e := &defaultEngine{
		client:   client,
		writer:   w,
		settings: settings,
		clock:    clock.RealClock{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// backoffDecision keeps the remote cooldown and the local window boundary
// apart so the next allowed time can be derived from whichever applies.
type backoffDecision struct {
	// apiCooldown is the delay advertised by a 429, zero when absent
	apiCooldown time.Duration
	// windowEnd is the end of the local budget window
	windowEnd time.Time
}

func (b backoffDecision) rateLimited(now time.Time) time.Time {
	if b.apiCooldown > 0 {
		return now.Add(b.apiCooldown)
	}
	return b.windowEnd
}

// Run implements Engine
func (e *defaultEngine) Run(ctx context.Context, st *state.SyncState, token string) (outcome *Outcome, err error) {
	mode := ModeInitial
	if st.InitialBackfillDone {
		mode = ModeIncremental
	}

	ctx, span := syncotel.StartSpan(ctx, e.tracer, "sync.pass",
		trace.WithAttributes(
			syncotel.AttrUserID.String(st.UserID.String()),
			syncotel.AttrMode.String(mode.String())))
	defer func() {
		if outcome != nil {
			span.SetAttributes(
				syncotel.AttrStopReason.String(string(outcome.StopReason)),
				syncotel.AttrDocsWritten.Int(outcome.DocumentsWritten),
				syncotel.AttrRequests.Int(outcome.RequestsIssued))
		}
		syncotel.RecordError(span, err)
		span.End()
	}()

	logger := slog.With("user_id", st.UserID, "mode", mode.String())

	tracker := budget.New(e.settings.RequestLimit, e.settings.Window,
		st.WindowStartedAt, st.WindowRequestCount, e.clock.Now())
	syncer := &locationSyncer{
		client:   e.client,
		writer:   e.writer,
		tracker:  tracker,
		clock:    e.clock,
		tracer:   e.tracer,
		userID:   st.UserID,
		token:    token,
		pageSize: e.settings.PageSize,
	}

	outcome = &Outcome{
		Mode:                mode,
		Cursors:             make(map[contentapi.Location]*string),
		InitialBackfillDone: st.InitialBackfillDone,
		WrittenByLocation:   make(map[contentapi.Location]int),
	}
	decision := backoffDecision{windowEnd: tracker.WindowEnd()}
	allCompleted := true

	for _, loc := range e.settings.Locations {
		prev, decodeErr := cursor.Decode(st.Cursor(loc))
		if decodeErr != nil {
			logger.Warn("Discarding unreadable cursor", "location", loc, "error", decodeErr)
		}

		// A location completed by an earlier invocation stays completed
		// until the backfill as a whole is done.
		if mode == ModeInitial && prev.Kind() == cursor.KindCompleted {
			continue
		}

		if !tracker.CanRequest() {
			allCompleted = false
			outcome.StopReason = StopBudgetExhausted
			break
		}

		res, syncErr := syncer.syncLocation(ctx, loc, prev, mode)
		outcome.DocumentsWritten += res.Written
		if res.Written > 0 {
			outcome.WrittenByLocation[loc] += res.Written
		}

		if syncErr != nil {
			allCompleted = false
			var rateLimited *contentapi.RateLimitedError
			switch {
			case errors.As(syncErr, &rateLimited):
				e.recordCursor(outcome, loc, prev, res.NextCursor)
				now := e.clock.Now()
				outcome.Last429At = &now
				outcome.StopReason = StopRateLimited
				decision.apiCooldown = rateLimited.RetryAfter
				logger.Info("Content API rate limited the pass",
					"location", loc,
					"retry_after", rateLimited.RetryAfter)
			case errors.Is(syncErr, budget.ErrBudgetExceeded):
				e.recordCursor(outcome, loc, prev, res.NextCursor)
				outcome.StopReason = StopBudgetExhausted
			default:
				outcome.StopReason = StopError
				e.finish(outcome, tracker, decision, false)
				return outcome, fmt.Errorf("sync of %s failed: %w", loc, syncErr)
			}
			break
		}

		e.recordCursor(outcome, loc, prev, res.NextCursor)
		if !res.Completed {
			allCompleted = false
			outcome.StopReason = StopBudgetExhausted
			break
		}
		outcome.CompletedLocations = append(outcome.CompletedLocations, loc)
	}

	if mode == ModeInitial && allCompleted && outcome.StopReason == StopNone {
		outcome.InitialBackfillDone = true
		logger.Info("Initial backfill complete")
	}

	e.finish(outcome, tracker, decision, outcome.StopReason == StopNone)

	logger.Debug("Sync pass finished",
		"stop_reason", outcome.StopReason,
		"documents_written", outcome.DocumentsWritten,
		"requests", outcome.RequestsIssued,
		"next_allowed_at", outcome.NextAllowedAt)
	return outcome, nil
}

func (*defaultEngine) recordCursor(o *Outcome, loc contentapi.Location, prev, next cursor.Cursor) {
	if next.Equal(prev) {
		return
	}
	o.Cursors[loc] = cursor.Encode(next)
}

// finish fills in the budget snapshot and the scheduling timestamps.
func (e *defaultEngine) finish(o *Outcome, tracker *budget.Tracker, decision backoffDecision, fullPass bool) {
	now := e.clock.Now()
	o.WindowStartedAt, o.WindowRequestCount = tracker.Snapshot()
	o.RequestsIssued = tracker.Issued()

	switch o.StopReason {
	case StopRateLimited:
		o.NextAllowedAt = decision.rateLimited(now)
	case StopBudgetExhausted:
		o.NextAllowedAt = decision.windowEnd
	case StopError:
		o.NextAllowedAt = now.Add(e.settings.Window)
	default:
		if !tracker.CanRequest() {
			o.NextAllowedAt = decision.windowEnd
		} else {
			o.NextAllowedAt = now.Add(e.settings.MinInterval)
		}
	}

	if fullPass {
		o.LastSyncAt = &now
	}
}
