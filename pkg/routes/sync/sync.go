package sync

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

type manager interface {
	Start(ctx context.Context) (*models.SyncRun, error)
	Cancel(ctx context.Context, id string) error
}

type runReader interface {
	GetByID(ctx context.Context, id string) (*models.SyncRun, error)
	List(ctx context.Context, page, pageSize int) ([]models.SyncRun, int, error)
}

// Handler exposes the sync run surface
type Handler struct {
	manager manager
	runs    runReader
}

// NewHandler creates a new sync handler
func NewHandler(manager manager, runs runReader) *Handler {
	return &Handler{
		manager: manager,
		runs:    runs,
	}
}

// RegisterRoutes registers sync endpoints
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.POST("/api/v1/sync", h.Start)
	e.GET("/api/v1/sync/runs", h.List)
	e.GET("/api/v1/sync/runs/:id", h.Get)
	e.POST("/api/v1/sync/runs/:id/cancel", h.Cancel)
}

// Start begins a new sync run. Conflicts when one is already active.
func (h *Handler) Start(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "sync_handler.Start")
	defer span.End()

	run, err := h.manager.Start(ctx)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusAccepted, models.StartSyncResponse{
		RunID:  run.ID,
		Status: run.Status,
	})
}

// List returns sync runs, newest first
func (h *Handler) List(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "sync_handler.List")
	defer span.End()

	page, _ := strconv.Atoi(c.QueryParam("page"))
	pageSize, _ := strconv.Atoi(c.QueryParam("page_size"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	items, totalCount, err := h.runs.List(ctx, page, pageSize)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.SyncRunListResponse{
		Items:      items,
		TotalCount: totalCount,
		Page:       page,
		PageSize:   pageSize,
	})
}

// Get returns one sync run with its derived progress
func (h *Handler) Get(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "sync_handler.Get")
	defer span.End()

	run, err := h.runs.GetByID(ctx, c.Param("id"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.NewSyncRunResponse(*run))
}

// Cancel stops an active sync run
func (h *Handler) Cancel(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "sync_handler.Cancel")
	defer span.End()

	if err := h.manager.Cancel(ctx, c.Param("id")); err != nil {
		return err
	}

	return c.JSON(http.StatusAccepted, map[string]string{"status": "cancelling"})
}
