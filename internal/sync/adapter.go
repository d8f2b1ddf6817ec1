// Package sync runs the poll cycle: replicate trip tickets from the
// clearinghouse, export them to local files, commit the local mirror and
// import locally originated files back upstream.
package sync

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rpattn/tripsync/internal/changes"
	"github.com/rpattn/tripsync/internal/domain"
	"github.com/rpattn/tripsync/internal/export"
	"github.com/rpattn/tripsync/internal/ingestion"
	"github.com/rpattn/tripsync/internal/notify"
	"github.com/rpattn/tripsync/internal/repository"
)

// Stage names used in error reports.
const (
	StageReplicate = "syncing with the Ride Clearinghouse"
	StageExport    = "processing the exported trip tickets"
	StageImport    = "processing the imported trip tickets"
)

// Remote fetches changed trip tickets.
type Remote interface {
	FetchUpdatedSince(ctx context.Context, since *time.Time) ([]domain.TripRecord, error)
}

// Exporter writes classified trips to tabular files.
type Exporter interface {
	Process(ctx context.Context, trips []domain.TripRecord) (export.Result, error)
}

// Importer pushes new import files upstream.
type Importer interface {
	Process(ctx context.Context) (ingestion.Summary, error)
}

// Committer runs fn against a mirror store, typically inside a
// transaction so a cycle's mirror rows land together.
type Committer func(ctx context.Context, fn func(repository.MirrorRepository) error) error

// Adapter owns one poll cycle at a time.
type Adapter struct {
	mirror    repository.MirrorRepository
	committer Committer
	remote    Remote
	exporter  Exporter
	importer  Importer
	notifier  notify.Notifier
	now       func() time.Time
	logger    *zap.Logger

	running atomic.Bool
	last    atomic.Pointer[Summary]
}

type Option func(*Adapter)

// WithExporter enables the export direction.
func WithExporter(exporter Exporter) Option {
	return func(a *Adapter) { a.exporter = exporter }
}

// WithImporter enables the import direction.
func WithImporter(importer Importer) Option {
	return func(a *Adapter) { a.importer = importer }
}

// WithCommitter replaces the default direct commit of mirror rows.
func WithCommitter(committer Committer) Option {
	return func(a *Adapter) {
		if committer != nil {
			a.committer = committer
		}
	}
}

func WithNotifier(notifier notify.Notifier) Option {
	return func(a *Adapter) {
		if notifier != nil {
			a.notifier = notifier
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(a *Adapter) {
		if now != nil {
			a.now = now
		}
	}
}

// NewAdapter wires an adapter. Without a notifier, reports go to the log.
func NewAdapter(mirror repository.MirrorRepository, remote Remote, logger *zap.Logger, opts ...Option) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	adapter := &Adapter{
		mirror: mirror,
		remote: remote,
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(adapter)
	}
	if adapter.notifier == nil {
		adapter.notifier = notify.NewLogNotifier(logger)
	}
	if adapter.committer == nil {
		adapter.committer = func(ctx context.Context, fn func(repository.MirrorRepository) error) error {
			return fn(adapter.mirror)
		}
	}
	return adapter
}

// ErrCycleRunning is returned when Poll is called while a cycle is active.
var ErrCycleRunning = errors.New("poll cycle already running")

// Summary describes one poll cycle.
type Summary struct {
	RunID       string         `json:"runId"`
	StartedAt   time.Time      `json:"startedAt"`
	FinishedAt  time.Time      `json:"finishedAt"`
	Fetched     int            `json:"fetched"`
	NewTrips    int            `json:"newTrips"`
	Committed   int            `json:"committed"`
	Exported    map[string]int `json:"exported"`
	ExportFiles []string       `json:"exportFiles"`
	Imported    int            `json:"imported"`
	Skipped     int            `json:"skipped"`
	Unposted    int            `json:"unposted"`
	Failed      int            `json:"failed"`
	Files       int            `json:"files"`
	Errors      map[string]int `json:"errors"`
	Aborted     bool           `json:"aborted"`
	AbortReason string         `json:"abortReason,omitempty"`
}

// Last returns the most recent finished cycle, or nil before the first.
func (a *Adapter) Last() *Summary {
	return a.last.Load()
}

// Running reports whether a cycle is in progress.
func (a *Adapter) Running() bool {
	return a.running.Load()
}

// Poll runs one cycle. Foreseen errors are reported once per stage and do
// not fail the call; any other error aborts the cycle and is returned.
func (a *Adapter) Poll(ctx context.Context) (Summary, error) {
	if !a.running.CompareAndSwap(false, true) {
		return Summary{}, ErrCycleRunning
	}
	defer a.running.Store(false)

	summary := Summary{
		RunID:     uuid.NewString(),
		StartedAt: a.now().UTC(),
		Exported:  map[string]int{},
		Errors:    map[string]int{},
	}
	logger := a.logger.With(zap.String("run_id", summary.RunID))
	logger.Info("poll cycle started")

	err := a.poll(ctx, logger, &summary)
	summary.FinishedAt = a.now().UTC()
	if err != nil {
		summary.Aborted = true
		summary.AbortReason = err.Error()
		logger.Error("poll cycle aborted", zap.Error(err))
	} else {
		logger.Info("poll cycle finished",
			zap.Int("fetched", summary.Fetched),
			zap.Int("committed", summary.Committed),
			zap.Int("imported", summary.Imported),
			zap.Duration("duration", summary.FinishedAt.Sub(summary.StartedAt)),
		)
	}
	stored := summary
	a.last.Store(&stored)
	return summary, err
}

func (a *Adapter) poll(ctx context.Context, logger *zap.Logger, summary *Summary) error {
	pending, trips, err := a.replicate(ctx, logger, summary)
	if err != nil {
		return err
	}

	commit := true
	if a.exporter != nil && len(trips) > 0 {
		exported, err := a.export(ctx, logger, summary, trips)
		if err != nil {
			return err
		}
		commit = exported
	}

	if commit && len(pending) > 0 {
		err := a.committer(ctx, func(store repository.MirrorRepository) error {
			for _, row := range pending {
				if _, err := store.Save(ctx, row); err != nil {
					return fmt.Errorf("save mirror row: %w", err)
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		summary.Committed = len(pending)
	} else if !commit && len(pending) > 0 {
		logger.Warn("mirror not updated after failed export", zap.Int("pending", len(pending)))
	}

	if a.importer != nil {
		if err := a.importFiles(ctx, logger, summary); err != nil {
			return err
		}
	}
	return nil
}

// replicate fetches changed trips and classifies them against the mirror.
// Mirror rows are returned for the caller to commit.
func (a *Adapter) replicate(ctx context.Context, logger *zap.Logger, summary *Summary) ([]domain.MirrorRow, []domain.TripRecord, error) {
	var stageErrors []error

	since, err := a.mirror.MaxKnownUpdatedAt(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("read high-water mark: %w", err)
	}

	fetched, err := a.remote.FetchUpdatedSince(ctx, since)
	if err != nil {
		if !domain.IsForeseen(err) {
			return nil, nil, err
		}
		stageErrors = append(stageErrors, domain.RowError{Direction: domain.DirectionSync, Err: err})
		a.report(ctx, logger, summary, StageReplicate, stageErrors)
		return nil, nil, nil
	}
	summary.Fetched = len(fetched)

	order := make([]int64, 0, len(fetched))
	pending := make(map[int64]domain.MirrorRow, len(fetched))
	trips := make([]domain.TripRecord, 0, len(fetched))

	for i, incoming := range fetched {
		remoteID, ok := incoming.RemoteID()
		var previous *domain.MirrorRow
		if ok {
			if row, seen := pending[remoteID]; seen {
				previous = &row
			} else if previous, err = a.mirror.FindByRemoteID(ctx, remoteID); err != nil {
				return nil, nil, fmt.Errorf("find mirror row %d: %w", remoteID, err)
			}
		}

		classified, err := changes.Classify(incoming, previous)
		if err != nil {
			if !domain.IsForeseen(err) {
				return nil, nil, err
			}
			rowErr := domain.RowError{Direction: domain.DirectionSync, Ref: fmt.Sprintf("record %d", i+1), Err: err}
			stageErrors = append(stageErrors, rowErr)
			logger.Warn("skipping clearinghouse record", zap.Int("position", i+1), zap.Error(err))
			continue
		}
		if classified.IsNew {
			summary.NewTrips++
		}
		trips = append(trips, classified.Trip)

		base := domain.MirrorRow{}
		if previous != nil {
			base = *previous
		}
		stored := incoming.Clone()
		changes.EnsureAssociations(stored)
		if _, seen := pending[remoteID]; !seen {
			order = append(order, remoteID)
		}
		pending[remoteID] = base.WithPayload(stored)
	}

	rows := make([]domain.MirrorRow, 0, len(order))
	for _, id := range order {
		rows = append(rows, pending[id])
	}
	a.report(ctx, logger, summary, StageReplicate, stageErrors)
	return rows, trips, nil
}

// export reports whether the export stage completed so the mirror may be
// committed.
func (a *Adapter) export(ctx context.Context, logger *zap.Logger, summary *Summary, trips []domain.TripRecord) (bool, error) {
	result, err := a.exporter.Process(ctx, trips)
	if err != nil {
		if !domain.IsForeseen(err) {
			return false, err
		}
		a.report(ctx, logger, summary, StageExport, []error{domain.RowError{Direction: domain.DirectionExport, Err: err}})
		return false, nil
	}
	summary.ExportFiles = result.Files
	for kind, rows := range result.Rows {
		summary.Exported[string(kind)] = rows
	}
	return true, nil
}

func (a *Adapter) importFiles(ctx context.Context, logger *zap.Logger, summary *Summary) error {
	result, err := a.importer.Process(ctx)
	summary.Imported = result.Imported
	summary.Skipped = result.Skipped
	summary.Unposted = result.Unposted
	summary.Failed = result.Failed
	summary.Files = len(result.Files)

	stageErrors := make([]error, 0, len(result.Errors)+1)
	for _, rowErr := range result.Errors {
		stageErrors = append(stageErrors, rowErr)
	}
	if err != nil {
		if !domain.IsForeseen(err) {
			a.report(ctx, logger, summary, StageImport, stageErrors)
			return err
		}
		stageErrors = append(stageErrors, domain.RowError{Direction: domain.DirectionImport, Err: err})
	}
	a.report(ctx, logger, summary, StageImport, stageErrors)
	return nil
}

// report logs every error and sends one notification for a non-empty list.
func (a *Adapter) report(ctx context.Context, logger *zap.Logger, summary *Summary, stage string, errs []error) {
	if len(errs) == 0 {
		return
	}
	summary.Errors[stage] += len(errs)
	for _, err := range errs {
		logger.Warn("stage error", zap.String("stage", stage), zap.Error(err))
	}
	msg := notify.NewMessage(summary.RunID, stage, errs, a.now())
	if err := a.notifier.Notify(ctx, msg); err != nil {
		logger.Warn("notification failed", zap.String("stage", stage), zap.Error(err))
	}
}
