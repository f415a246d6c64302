package card

import (
	"context"
	"database/sql"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// ListFilter narrows a card listing.
type ListFilter struct {
	Name    string
	SetCode string
	Rarity  string
}

// Get returns one card by its id.
func (r *Repository) Get(ctx context.Context, id string) (*models.Card, error) {
	ctx, span := tracing.StartSpan(ctx, "card.Repository.Get")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(cardColumns...)
	sb.From(cardTable)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()

	var card models.Card
	if err := r.db.GetContext(ctx, &card, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "card %s not found", id)
		}
		r.logger.WithContext(ctx).WithError(err).WithField("id", id).Error("Failed to get card")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get card")
	}
	return &card, nil
}

// List returns cards matching the filter, newest first, with offset pagination.
func (r *Repository) List(ctx context.Context, filter ListFilter, page, pageSize int) ([]models.Card, int, error) {
	ctx, span := tracing.StartSpan(ctx, "card.Repository.List")
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 50
	}

	sb := database.NewSelectBuilder()
	sb.Select(cardColumns...)
	sb.From(cardTable)
	where := []string{}
	if filter.Name != "" {
		where = append(where, sb.ILike("name", "%"+filter.Name+"%"))
	}
	if filter.SetCode != "" {
		where = append(where, sb.Equal("set_code", filter.SetCode))
	}
	if filter.Rarity != "" {
		where = append(where, sb.Equal("rarity", filter.Rarity))
	}
	if len(where) > 0 {
		sb.Where(where...)
	}
	sb.OrderBy("updated_at DESC", "id")
	sb.Limit(pageSize)
	sb.Offset((page - 1) * pageSize)

	query, args := sb.Build()

	var cards []models.Card
	if err := r.db.SelectContext(ctx, &cards, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list cards")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list cards")
	}

	cb := database.NewSelectBuilder()
	cb.Select("COUNT(*)")
	cb.From(cardTable)
	if len(where) > 0 {
		// rebuild the filter against the count builder so args bind correctly
		countWhere := []string{}
		if filter.Name != "" {
			countWhere = append(countWhere, cb.ILike("name", "%"+filter.Name+"%"))
		}
		if filter.SetCode != "" {
			countWhere = append(countWhere, cb.Equal("set_code", filter.SetCode))
		}
		if filter.Rarity != "" {
			countWhere = append(countWhere, cb.Equal("rarity", filter.Rarity))
		}
		cb.Where(countWhere...)
	}

	countQuery, countArgs := cb.Build()

	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, countArgs...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count cards")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count cards")
	}

	return cards, total, nil
}

// ListSets returns every set ordered by release date, newest first.
func (r *Repository) ListSets(ctx context.Context) ([]models.CardSet, error) {
	ctx, span := tracing.StartSpan(ctx, "card.Repository.ListSets")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("code", "name", "set_type", "released_at", "created_at", "updated_at")
	sb.From(setTable)
	sb.OrderBy("released_at DESC NULLS LAST", "code")

	query, args := sb.Build()

	var sets []models.CardSet
	if err := r.db.SelectContext(ctx, &sets, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list sets")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list sets")
	}
	return sets, nil
}
