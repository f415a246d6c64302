package syncrun

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const syncRunsTable = "sync_runs"

var syncRunStruct = database.NewStruct(new(models.SyncRun))

// Repository handles database operations for sync runs
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new sync run repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new pending run and fills in its generated fields.
func (r *Repository) Create(ctx context.Context, run *models.SyncRun) error {
	ctx, span := tracing.StartSpan(ctx, "syncrun.Repository.Create")
	defer span.End()

	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.Status == "" {
		run.Status = models.SyncRunStatusPending
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(syncRunsTable).
		Cols("id", "status", "started_at", "completed_at", "total_cards",
			"processed_cards", "updated_cards", "skipped_cards", "error_count",
			"error_message", "note", "dataset_stamp", "created_at", "updated_at").
		Values(run.ID, run.Status, run.StartedAt, run.CompletedAt, run.TotalCards,
			run.ProcessedCards, run.UpdatedCards, run.SkippedCards, run.ErrorCount,
			run.ErrorMessage, run.Note, run.DatasetStamp, sqlbuilder.Raw("NOW()"), sqlbuilder.Raw("NOW()")).
		Returning("created_at", "updated_at")

	query, args := ib.Build()
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&run.CreatedAt, &run.UpdatedAt)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("run_id", run.ID).Error("failed to create sync run")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create sync run")
	}

	r.logger.WithContext(ctx).WithField("run_id", run.ID).Debugf("Created %s", syncRunsTable)
	return nil
}

// MarkRunning transitions a pending run to running.
func (r *Repository) MarkRunning(ctx context.Context, id string) error {
	ctx, span := tracing.StartSpan(ctx, "syncrun.Repository.MarkRunning")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(syncRunsTable)
	ub.Set(
		ub.Assign("status", models.SyncRunStatusRunning),
		ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
	)
	ub.Where(
		ub.Equal("id", id),
		ub.Equal("status", models.SyncRunStatusPending),
	)

	query, args := ub.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("run_id", id).Error("failed to mark sync run running")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update sync run")
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusConflict, "sync run %s is not pending", id)
	}
	return nil
}

// UpdateProgress persists counters for a running run. Totals accumulate at
// batch boundaries, so a crash loses at most one batch of bookkeeping.
func (r *Repository) UpdateProgress(ctx context.Context, id string, total, processed, updated, skipped, errorCount int) error {
	ctx, span := tracing.StartSpan(ctx, "syncrun.Repository.UpdateProgress")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(syncRunsTable)
	ub.Set(
		ub.Assign("total_cards", total),
		ub.Assign("processed_cards", processed),
		ub.Assign("updated_cards", updated),
		ub.Assign("skipped_cards", skipped),
		ub.Assign("error_count", errorCount),
		ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
	)
	ub.Where(
		ub.Equal("id", id),
		ub.Equal("status", models.SyncRunStatusRunning),
	)

	query, args := ub.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("run_id", id).Error("failed to update sync run progress")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update sync run")
	}
	return nil
}

// Finish transitions a run into a terminal status. Runs already in a terminal
// status are never modified; the attempt is reported as a conflict.
func (r *Repository) Finish(ctx context.Context, id string, status models.SyncRunStatus, errorMessage, note *string) error {
	ctx, span := tracing.StartSpan(ctx, "syncrun.Repository.Finish")
	defer span.End()

	if !status.IsTerminal() {
		return httperror.NewHTTPErrorf(http.StatusBadRequest, "status %s is not terminal", status)
	}

	ub := database.NewUpdateBuilder()
	ub.Update(syncRunsTable)
	ub.Set(
		ub.Assign("status", status),
		ub.Assign("completed_at", sqlbuilder.Raw("NOW()")),
		ub.Assign("error_message", errorMessage),
		ub.Assign("note", note),
		ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
	)
	ub.Where(
		ub.Equal("id", id),
		ub.In("status", models.SyncRunStatusPending, models.SyncRunStatusRunning),
	)

	query, args := ub.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"run_id": id, "status": status}).Error("failed to finish sync run")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update sync run")
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusConflict, "sync run %s is already finished", id)
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"run_id": id, "status": status}).Infof("Sync run %s finished as %s", id, status)
	return nil
}

// SetDatasetStamp records the publication time of the dataset the run consumed.
func (r *Repository) SetDatasetStamp(ctx context.Context, id string, stamp time.Time) error {
	ctx, span := tracing.StartSpan(ctx, "syncrun.Repository.SetDatasetStamp")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(syncRunsTable)
	ub.Set(
		ub.Assign("dataset_stamp", stamp),
		ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
	)
	ub.Where(ub.Equal("id", id))

	query, args := ub.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("run_id", id).Error("failed to set dataset stamp")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update sync run")
	}
	return nil
}

// GetByID retrieves a sync run by ID
func (r *Repository) GetByID(ctx context.Context, id string) (*models.SyncRun, error) {
	ctx, span := tracing.StartSpan(ctx, "syncrun.Repository.GetByID")
	defer span.End()

	sb := syncRunStruct.SelectFrom(syncRunsTable)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var run models.SyncRun
	err := r.db.GetContext(ctx, &run, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "sync run %s does not exist", id)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("run_id", id).Error("failed to get sync run")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get sync run")
	}
	return &run, nil
}

// List returns runs newest first with offset pagination.
func (r *Repository) List(ctx context.Context, page, pageSize int) ([]models.SyncRun, int, error) {
	ctx, span := tracing.StartSpan(ctx, "syncrun.Repository.List")
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	sb := syncRunStruct.SelectFrom(syncRunsTable)
	sb.OrderBy("started_at DESC")
	sb.Limit(pageSize)
	sb.Offset((page - 1) * pageSize)

	query, args := sb.Build()
	var runs []models.SyncRun
	if err := r.db.SelectContext(ctx, &runs, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list sync runs")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list sync runs")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM sync_runs"); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to count sync runs")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count sync runs")
	}

	return runs, total, nil
}

// LatestCompleted returns the most recent completed run, or nil when none
// exists. Used for the freshness short-circuit.
func (r *Repository) LatestCompleted(ctx context.Context) (*models.SyncRun, error) {
	ctx, span := tracing.StartSpan(ctx, "syncrun.Repository.LatestCompleted")
	defer span.End()

	sb := syncRunStruct.SelectFrom(syncRunsTable)
	sb.Where(sb.Equal("status", models.SyncRunStatusCompleted))
	sb.OrderBy("completed_at DESC")
	sb.Limit(1)

	query, args := sb.Build()
	var run models.SyncRun
	err := r.db.GetContext(ctx, &run, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to get latest completed sync run")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get latest completed sync run")
	}
	return &run, nil
}

// ActiveRun returns the pending or running run, or nil when the store is idle.
func (r *Repository) ActiveRun(ctx context.Context) (*models.SyncRun, error) {
	ctx, span := tracing.StartSpan(ctx, "syncrun.Repository.ActiveRun")
	defer span.End()

	sb := syncRunStruct.SelectFrom(syncRunsTable)
	sb.Where(sb.In("status", models.SyncRunStatusPending, models.SyncRunStatusRunning))
	sb.OrderBy("started_at DESC")
	sb.Limit(1)

	query, args := sb.Build()
	var run models.SyncRun
	err := r.db.GetContext(ctx, &run, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to get active sync run")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get active sync run")
	}
	return &run, nil
}
