package card

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	cardrepo "github.com/Ramsey-B/clover/internal/repositories/card"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

type cardReader interface {
	Get(ctx context.Context, id string) (*models.Card, error)
	List(ctx context.Context, filter cardrepo.ListFilter, page, pageSize int) ([]models.Card, int, error)
	ListSets(ctx context.Context) ([]models.CardSet, error)
}

type artistReader interface {
	List(ctx context.Context, page, pageSize int) ([]models.Artist, int, error)
}

// Handler exposes the read-only card browse surface
type Handler struct {
	cards   cardReader
	artists artistReader
}

// NewHandler creates a new card handler
func NewHandler(cards cardReader, artists artistReader) *Handler {
	return &Handler{
		cards:   cards,
		artists: artists,
	}
}

// RegisterRoutes registers card browse endpoints
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/api/v1/cards", h.List)
	e.GET("/api/v1/cards/:id", h.Get)
	e.GET("/api/v1/sets", h.ListSets)
	e.GET("/api/v1/artists", h.ListArtists)
}

// List returns cards matching the query filters
func (h *Handler) List(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "card_handler.List")
	defer span.End()

	page, _ := strconv.Atoi(c.QueryParam("page"))
	pageSize, _ := strconv.Atoi(c.QueryParam("page_size"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 50
	}

	filter := cardrepo.ListFilter{
		Name:    c.QueryParam("name"),
		SetCode: c.QueryParam("set"),
		Rarity:  c.QueryParam("rarity"),
	}

	items, totalCount, err := h.cards.List(ctx, filter, page, pageSize)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.CardListResponse{
		Items:      items,
		TotalCount: totalCount,
		Page:       page,
		PageSize:   pageSize,
	})
}

// Get returns one card by id
func (h *Handler) Get(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "card_handler.Get")
	defer span.End()

	card, err := h.cards.Get(ctx, c.Param("id"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, card)
}

// ListSets returns every known set
func (h *Handler) ListSets(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "card_handler.ListSets")
	defer span.End()

	sets, err := h.cards.ListSets(ctx)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, sets)
}

// ListArtists returns artists ordered by name
func (h *Handler) ListArtists(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "card_handler.ListArtists")
	defer span.End()

	page, _ := strconv.Atoi(c.QueryParam("page"))
	pageSize, _ := strconv.Atoi(c.QueryParam("page_size"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 50
	}

	items, totalCount, err := h.artists.List(ctx, page, pageSize)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{
		"items":       items,
		"total_count": totalCount,
		"page":        page,
		"page_size":   pageSize,
	})
}
