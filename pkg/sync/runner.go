package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/Gobusters/ectologger"

	clovercontext "github.com/Ramsey-B/clover/pkg/context"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/scryfall"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

type datasetSource interface {
	GetBulkData(ctx context.Context, dataType string) (*scryfall.BulkData, error)
	Download(ctx context.Context, uri string) (*scryfall.CardStream, error)
}

type txGuardian interface {
	EnsureClean(ctx context.Context) error
	Begin(ctx context.Context) (database.Tx, error)
}

type cardStore interface {
	hashIndexLoader
	WriteBatch(ctx context.Context, tx database.Tx, batch *models.CardBatch) error
}

type artistStore interface {
	artistIndexLoader
	artistResolver
}

type runStore interface {
	MarkRunning(ctx context.Context, id string) error
	UpdateProgress(ctx context.Context, id string, total, processed, updated, skipped, errorCount int) error
	Finish(ctx context.Context, id string, status models.SyncRunStatus, errorMessage, note *string) error
	SetDatasetStamp(ctx context.Context, id string, stamp time.Time) error
	LatestCompleted(ctx context.Context) (*models.SyncRun, error)
}

type changeEmitter interface {
	PublishCardChanges(ctx context.Context, runID string, cardIDs []string) error
}

// RunnerConfig holds the sync policy knobs.
type RunnerConfig struct {
	BulkDataType string
	BatchSize    int
	// ErrorThreshold aborts the run as failed once more than this many
	// batches have errored. Zero means unlimited.
	ErrorThreshold int
}

// Runner drives one synchronization run end to end: dataset discovery,
// freshness check, the batch loop, and the terminal status.
type Runner struct {
	cfg      RunnerConfig
	source   datasetSource
	guardian txGuardian
	cards    cardStore
	artists  artistStore
	runs     runStore
	emitter  changeEmitter // nil when events are disabled
	logger   ectologger.Logger
}

// NewRunner creates a new sync runner
func NewRunner(cfg RunnerConfig, source datasetSource, guardian txGuardian, cards cardStore, artists artistStore, runs runStore, emitter changeEmitter, logger ectologger.Logger) *Runner {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1000
	}
	return &Runner{
		cfg:      cfg,
		source:   source,
		guardian: guardian,
		cards:    cards,
		artists:  artists,
		runs:     runs,
		emitter:  emitter,
		logger:   logger,
	}
}

// Run executes the sync for an already-created pending run. The returned
// error reflects why the run did not complete; the run row always ends in a
// terminal status regardless.
func (r *Runner) Run(ctx context.Context, runID string) error {
	ctx = clovercontext.SetSyncRunID(ctx, runID)
	ctx, span := tracing.StartSpan(ctx, "sync.Runner.Run")
	defer span.End()

	start := time.Now()
	log := r.logger.WithContext(ctx).WithField("run_id", runID)

	bulk, err := r.source.GetBulkData(ctx, r.cfg.BulkDataType)
	if err != nil {
		return r.fail(ctx, runID, fmt.Errorf("bulk data discovery failed: %w", err))
	}

	if err := r.runs.SetDatasetStamp(ctx, runID, bulk.UpdatedAt); err != nil {
		return r.fail(ctx, runID, err)
	}

	fresh, err := r.isAlreadyFresh(ctx, bulk)
	if err != nil {
		return r.fail(ctx, runID, err)
	}
	if fresh {
		note := fmt.Sprintf("dataset published %s is not newer than the last completed sync", bulk.UpdatedAt.Format(time.RFC3339))
		log.Infof("Skipping sync run: %s", note)
		metrics.RunsTotal.WithLabelValues(string(models.SyncRunStatusCompleted)).Inc()
		return r.runs.Finish(ctx, runID, models.SyncRunStatusCompleted, nil, &note)
	}

	stream, err := r.source.Download(ctx, bulk.DownloadURI)
	if err != nil {
		return r.fail(ctx, runID, fmt.Errorf("bulk data download failed: %w", err))
	}
	defer stream.Close()

	if err := r.runs.MarkRunning(ctx, runID); err != nil {
		return r.fail(ctx, runID, err)
	}
	log.Infof("Sync run started against dataset published %s", bulk.UpdatedAt.Format(time.RFC3339))

	caches, err := LoadCaches(ctx, r.cards, r.artists)
	if err != nil {
		return r.fail(ctx, runID, err)
	}

	progress, err := r.batchLoop(ctx, runID, stream, caches)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			note := "cancelled by request"
			log.WithFields(progress.logFields()).Warnf("Sync run cancelled after %d cards", progress.processed)
			metrics.RunsTotal.WithLabelValues(string(models.SyncRunStatusCancelled)).Inc()
			finishErr := r.runs.Finish(context.WithoutCancel(ctx), runID, models.SyncRunStatusCancelled, nil, &note)
			if finishErr != nil {
				return finishErr
			}
			return err
		}
		return r.fail(ctx, runID, err)
	}

	// the stream is exhausted, so the total is now exact
	if err := r.runs.UpdateProgress(ctx, runID, progress.processed, progress.processed, progress.updated, progress.skipped, progress.batchErrors); err != nil {
		return r.fail(ctx, runID, err)
	}

	metrics.RunsTotal.WithLabelValues(string(models.SyncRunStatusCompleted)).Inc()
	metrics.RunDuration.Observe(time.Since(start).Seconds())
	log.WithFields(progress.logFields()).Infof("Sync run completed in %v", time.Since(start))

	var note *string
	if progress.batchErrors > 0 {
		msg := fmt.Sprintf("completed with %d failed batches", progress.batchErrors)
		note = &msg
	}
	return r.runs.Finish(ctx, runID, models.SyncRunStatusCompleted, nil, note)
}

type runProgress struct {
	processed   int
	updated     int
	skipped     int
	batchErrors int
}

func (p runProgress) logFields() map[string]any {
	return map[string]any{
		"processed":    p.processed,
		"updated":      p.updated,
		"skipped":      p.skipped,
		"batch_errors": p.batchErrors,
	}
}

func (r *Runner) batchLoop(ctx context.Context, runID string, stream *scryfall.CardStream, caches *Caches) (runProgress, error) {
	var progress runProgress

	for {
		if err := ctx.Err(); err != nil {
			return progress, err
		}

		batch, err := r.readBatch(stream)
		if err != nil {
			// a decode failure poisons the rest of the stream
			return progress, fmt.Errorf("dataset parse failed after %d cards: %w", progress.processed, err)
		}
		if len(batch) == 0 {
			return progress, nil
		}

		if err := r.processBatch(ctx, runID, batch, caches, &progress); err != nil {
			return progress, err
		}

		if err := r.runs.UpdateProgress(ctx, runID, 0, progress.processed, progress.updated, progress.skipped, progress.batchErrors); err != nil {
			return progress, err
		}
	}
}

func (r *Runner) readBatch(stream *scryfall.CardStream) ([]*scryfall.Card, error) {
	batch := make([]*scryfall.Card, 0, r.cfg.BatchSize)
	for len(batch) < r.cfg.BatchSize {
		card, err := stream.Next()
		if err == io.EOF {
			return batch, nil
		}
		if err != nil {
			return nil, err
		}
		batch = append(batch, card)
	}
	return batch, nil
}

// processBatch writes one batch inside one transaction. A batch failure rolls
// back, counts against the error threshold, and the run moves on; crossing
// the threshold aborts the run.
func (r *Runner) processBatch(ctx context.Context, runID string, batch []*scryfall.Card, caches *Caches, progress *runProgress) error {
	ctx, span := tracing.StartSpan(ctx, "sync.Runner.processBatch")
	defer span.End()

	if err := r.guardian.EnsureClean(ctx); err != nil {
		return err
	}

	cs, err := buildChangeSet(ctx, batch, caches, r.artists)
	if err != nil {
		return r.countBatchError(ctx, progress, len(batch), err)
	}

	if len(cs.Batch.Cards) > 0 {
		tx, err := r.guardian.Begin(ctx)
		if err != nil {
			return err
		}

		if err := r.cards.WriteBatch(ctx, tx, &cs.Batch); err != nil {
			_ = tx.Rollback(ctx)
			return r.countBatchError(ctx, progress, len(batch), err)
		}
		if err := tx.Commit(ctx); err != nil {
			_ = tx.Rollback(ctx)
			return r.countBatchError(ctx, progress, len(batch), err)
		}
	}

	// the batch is durable, so the cache may now claim its digests
	for id, digest := range cs.Digests {
		caches.Hashes[id] = digest
	}

	progress.processed += cs.Processed
	progress.updated += len(cs.Batch.Cards)
	progress.skipped += cs.Skipped
	metrics.CardsWritten.Add(float64(len(cs.Batch.Cards)))
	metrics.CardsSkipped.Add(float64(cs.Skipped))

	if r.emitter != nil && len(cs.ChangedIDs) > 0 {
		if err := r.emitter.PublishCardChanges(ctx, runID, cs.ChangedIDs); err != nil {
			// events are best effort; the store is already consistent
			r.logger.WithContext(ctx).WithError(err).WithField("run_id", clovercontext.GetSyncRunID(ctx)).Warnf("Failed to publish card change events")
		}
	}

	return nil
}

func (r *Runner) countBatchError(ctx context.Context, progress *runProgress, batchLen int, cause error) error {
	progress.batchErrors++
	progress.processed += batchLen
	metrics.BatchErrors.Inc()
	r.logger.WithContext(ctx).WithError(cause).WithField("run_id", clovercontext.GetSyncRunID(ctx)).Errorf("Batch failed (%d so far)", progress.batchErrors)

	if r.cfg.ErrorThreshold > 0 && progress.batchErrors > r.cfg.ErrorThreshold {
		return fmt.Errorf("aborting run after %d failed batches: %w", progress.batchErrors, cause)
	}
	return nil
}

// isAlreadyFresh reports whether the published dataset is no newer than what
// the last completed run already consumed.
func (r *Runner) isAlreadyFresh(ctx context.Context, bulk *scryfall.BulkData) (bool, error) {
	latest, err := r.runs.LatestCompleted(ctx)
	if err != nil {
		return false, err
	}
	if latest == nil || latest.CompletedAt == nil {
		return false, nil
	}
	return !bulk.UpdatedAt.After(*latest.CompletedAt), nil
}

func (r *Runner) fail(ctx context.Context, runID string, cause error) error {
	r.logger.WithContext(ctx).WithError(cause).WithField("run_id", runID).Error("Sync run failed")
	metrics.RunsTotal.WithLabelValues(string(models.SyncRunStatusFailed)).Inc()

	msg := cause.Error()
	if err := r.runs.Finish(context.WithoutCancel(ctx), runID, models.SyncRunStatusFailed, &msg, nil); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}
