package artist

import (
	"context"
	"database/sql"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const artistTable = "artists"

// Repository handles artist persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new artist repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// ResolveOrCreate returns the id for the given artist name, creating the row
// if it does not exist. An empty name means the card carries no artist and
// resolves to no reference. The created flag reports whether this call
// inserted the row; losing an insert race to another writer is not an error.
func (r *Repository) ResolveOrCreate(ctx context.Context, name string) (int64, bool, error) {
	ctx, span := tracing.StartSpan(ctx, "artist.Repository.ResolveOrCreate")
	defer span.End()

	if name == "" {
		return 0, false, nil
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(artistTable)
	ib.Cols("name")
	ib.Values(name)
	ib.OnConflictDoNothing()
	ib.Returning("id")

	query, args := ib.Build()

	var id int64
	err := r.db.GetContext(ctx, &id, query, args...)
	if err == nil {
		return id, true, nil
	}
	if err != sql.ErrNoRows {
		r.logger.WithContext(ctx).WithError(err).WithField("name", name).Error("Failed to create artist")
		return 0, false, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to create artist: %v", err)
	}

	// DO NOTHING returned no row, so the name already exists
	id, err = r.findByName(ctx, name)
	if err != nil {
		return 0, false, err
	}
	return id, false, nil
}

func (r *Repository) findByName(ctx context.Context, name string) (int64, error) {
	sb := database.NewSelectBuilder()
	sb.Select("id")
	sb.From(artistTable)
	sb.Where(sb.Equal("name", name))

	query, args := sb.Build()

	var id int64
	if err := r.db.GetContext(ctx, &id, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("name", name).Error("Failed to find artist by name")
		return 0, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to find artist: %v", err)
	}
	return id, nil
}

// List returns artists ordered by name with offset pagination.
func (r *Repository) List(ctx context.Context, page, pageSize int) ([]models.Artist, int, error) {
	ctx, span := tracing.StartSpan(ctx, "artist.Repository.List")
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 50
	}

	sb := database.NewSelectBuilder()
	sb.Select("id", "name", "created_at")
	sb.From(artistTable)
	sb.OrderBy("name")
	sb.Limit(pageSize)
	sb.Offset((page - 1) * pageSize)

	query, args := sb.Build()

	var artists []models.Artist
	if err := r.db.SelectContext(ctx, &artists, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list artists")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list artists")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM artists"); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count artists")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count artists")
	}

	return artists, total, nil
}

// LoadIDs returns the full name to id mapping, used to warm the run cache.
func (r *Repository) LoadIDs(ctx context.Context) (map[string]int64, error) {
	ctx, span := tracing.StartSpan(ctx, "artist.Repository.LoadIDs")
	defer span.End()

	rows := []struct {
		ID   int64  `db:"id"`
		Name string `db:"name"`
	}{}

	if err := r.db.SelectContext(ctx, &rows, "SELECT id, name FROM artists"); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to load artist ids")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to load artist ids")
	}

	ids := make(map[string]int64, len(rows))
	for _, row := range rows {
		ids[row.Name] = row.ID
	}
	return ids, nil
}
