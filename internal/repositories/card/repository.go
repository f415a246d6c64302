package card

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
	"github.com/lib/pq"
)

const (
	cardTable          = "cards"
	setTable           = "card_sets"
	legalityTable      = "card_legalities"
	colorTable         = "card_colors"
	colorIdentityTable = "card_color_identity"

	// DefaultInsertPageSize bounds multi-row insert statements so a batch
	// never exceeds the placeholder limit.
	DefaultInsertPageSize = 500
)

var cardColumns = []string{
	"id", "name", "mana_cost", "cmc", "type_line", "oracle_text",
	"power", "toughness", "loyalty", "rarity", "flavor_text",
	"set_code", "artist_id", "prices", "image_uris", "data_hash",
	"created_at", "updated_at",
}

// Repository handles card persistence
type Repository struct {
	db             database.DB
	logger         ectologger.Logger
	insertPageSize int
}

// NewRepository creates a new card repository
func NewRepository(db database.DB, logger ectologger.Logger, insertPageSize int) *Repository {
	if insertPageSize < 1 {
		insertPageSize = DefaultInsertPageSize
	}
	return &Repository{
		db:             db,
		logger:         logger,
		insertPageSize: insertPageSize,
	}
}

// LoadHashIndex returns the id to data_hash mapping for every persisted card.
// The sync engine compares incoming fingerprints against this index to decide
// what to write.
func (r *Repository) LoadHashIndex(ctx context.Context) (map[string]string, error) {
	ctx, span := tracing.StartSpan(ctx, "card.Repository.LoadHashIndex")
	defer span.End()

	rows := []struct {
		ID       string `db:"id"`
		DataHash string `db:"data_hash"`
	}{}

	if err := r.db.SelectContext(ctx, &rows, "SELECT id, data_hash FROM cards"); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to load card hash index")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to load card hash index: %v", err)
	}

	index := make(map[string]string, len(rows))
	for _, row := range rows {
		index[row.ID] = row.DataHash
	}
	return index, nil
}

// WriteBatch persists one batch inside the given transaction: set upserts,
// card upserts, then a delete-and-insert replace of each child attribute
// table for the affected cards. The caller commits or rolls back.
func (r *Repository) WriteBatch(ctx context.Context, tx database.Tx, batch *models.CardBatch) error {
	ctx, span := tracing.StartSpan(ctx, "card.Repository.WriteBatch")
	defer span.End()

	if batch.IsEmpty() {
		return nil
	}

	if err := r.upsertSets(ctx, tx, batch.Sets); err != nil {
		return err
	}
	if err := r.upsertCards(ctx, tx, batch.Cards); err != nil {
		return err
	}

	cardIDs := make([]string, 0, len(batch.Cards))
	for _, c := range batch.Cards {
		cardIDs = append(cardIDs, c.ID)
	}

	if err := r.replaceLegalities(ctx, tx, cardIDs, batch.Legalities); err != nil {
		return err
	}
	if err := r.replaceColors(ctx, tx, colorTable, cardIDs, batch.Colors); err != nil {
		return err
	}
	if err := r.replaceColors(ctx, tx, colorIdentityTable, cardIDs, batch.ColorIdentity); err != nil {
		return err
	}
	return nil
}

func (r *Repository) upsertSets(ctx context.Context, tx database.Tx, sets []models.CardSet) error {
	if len(sets) == 0 {
		return nil
	}

	now := time.Now().UTC()

	ib := database.NewInsertBuilder()
	ib.InsertInto(setTable)
	ib.Cols("code", "name", "set_type", "released_at", "created_at", "updated_at")
	for _, set := range sets {
		ib.Values(set.Code, set.Name, set.SetType, set.ReleasedAt, now, now)
	}
	ub := ib.OnConflict("code")
	ub.Set(
		ub.Assign("name", database.Excluded("name")),
		ub.Assign("set_type", database.Excluded("set_type")),
		ub.Assign("released_at", database.Excluded("released_at")),
		ub.Assign("updated_at", now),
	)

	query, args := ib.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("sets", len(sets)).Error("Failed to upsert sets")
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to upsert sets: %v", err)
	}
	return nil
}

func (r *Repository) upsertCards(ctx context.Context, tx database.Tx, cards []models.Card) error {
	if len(cards) == 0 {
		return nil
	}

	now := time.Now().UTC()

	for start := 0; start < len(cards); start += r.insertPageSize {
		end := start + r.insertPageSize
		if end > len(cards) {
			end = len(cards)
		}

		ib := database.NewInsertBuilder()
		ib.InsertInto(cardTable)
		ib.Cols(cardColumns...)
		for _, c := range cards[start:end] {
			ib.Values(
				c.ID, c.Name, c.ManaCost, c.CMC, c.TypeLine, c.OracleText,
				c.Power, c.Toughness, c.Loyalty, c.Rarity, c.FlavorText,
				c.SetCode, c.ArtistID, c.Prices, c.ImageURIs, c.DataHash,
				now, now,
			)
		}
		ub := ib.OnConflict("id")
		ub.Set(
			ub.Assign("name", database.Excluded("name")),
			ub.Assign("mana_cost", database.Excluded("mana_cost")),
			ub.Assign("cmc", database.Excluded("cmc")),
			ub.Assign("type_line", database.Excluded("type_line")),
			ub.Assign("oracle_text", database.Excluded("oracle_text")),
			ub.Assign("power", database.Excluded("power")),
			ub.Assign("toughness", database.Excluded("toughness")),
			ub.Assign("loyalty", database.Excluded("loyalty")),
			ub.Assign("rarity", database.Excluded("rarity")),
			ub.Assign("flavor_text", database.Excluded("flavor_text")),
			ub.Assign("set_code", database.Excluded("set_code")),
			ub.Assign("artist_id", database.Excluded("artist_id")),
			ub.Assign("prices", database.Excluded("prices")),
			ub.Assign("image_uris", database.Excluded("image_uris")),
			ub.Assign("data_hash", database.Excluded("data_hash")),
			ub.Assign("updated_at", now),
		)

		query, args := ib.Build()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			r.logger.WithContext(ctx).WithError(err).WithField("cards", end-start).Error("Failed to upsert cards")
			return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to upsert cards: %v", err)
		}
	}
	return nil
}

func (r *Repository) replaceLegalities(ctx context.Context, tx database.Tx, cardIDs []string, legalities []models.CardLegality) error {
	if err := r.deleteByCardIDs(ctx, tx, legalityTable, cardIDs); err != nil {
		return err
	}

	for start := 0; start < len(legalities); start += r.insertPageSize {
		end := start + r.insertPageSize
		if end > len(legalities) {
			end = len(legalities)
		}

		ib := database.NewInsertBuilder()
		ib.InsertInto(legalityTable)
		ib.Cols("card_id", "format", "status")
		for _, l := range legalities[start:end] {
			ib.Values(l.CardID, l.Format, l.Status)
		}

		query, args := ib.Build()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			r.logger.WithContext(ctx).WithError(err).Error("Failed to insert legalities")
			return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to insert legalities: %v", err)
		}
	}
	return nil
}

func (r *Repository) replaceColors(ctx context.Context, tx database.Tx, table string, cardIDs []string, colors []models.CardColor) error {
	if err := r.deleteByCardIDs(ctx, tx, table, cardIDs); err != nil {
		return err
	}

	for start := 0; start < len(colors); start += r.insertPageSize {
		end := start + r.insertPageSize
		if end > len(colors) {
			end = len(colors)
		}

		ib := database.NewInsertBuilder()
		ib.InsertInto(table)
		ib.Cols("card_id", "color")
		for _, c := range colors[start:end] {
			ib.Values(c.CardID, c.Color)
		}

		query, args := ib.Build()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			r.logger.WithContext(ctx).WithError(err).WithField("table", table).Error("Failed to insert colors")
			return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to insert colors: %v", err)
		}
	}
	return nil
}

func (r *Repository) deleteByCardIDs(ctx context.Context, tx database.Tx, table string, cardIDs []string) error {
	if len(cardIDs) == 0 {
		return nil
	}

	query := "DELETE FROM " + table + " WHERE card_id = ANY($1)"
	if _, err := tx.ExecContext(ctx, query, pq.Array(cardIDs)); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("table", table).Error("Failed to delete child rows")
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to delete %s rows: %v", table, err)
	}
	return nil
}
