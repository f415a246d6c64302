package card

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/models"
)

func newTestLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(msg ectologger.EctoLogMessage) {})
}

// fakeTx records every executed statement in order so tests can assert the
// write sequence WriteBatch produces.
type fakeTx struct {
	queries []string
	args    [][]any
}

func (t *fakeTx) IsOpen() bool                         { return true }
func (t *fakeTx) Commit(ctx context.Context) error     { return nil }
func (t *fakeTx) Rollback(ctx context.Context) error   { return nil }
func (t *fakeTx) GetContext(ctx context.Context, dest any, query string, args ...any) error {
	return nil
}
func (t *fakeTx) SelectContext(ctx context.Context, dest any, query string, args ...any) error {
	return nil
}
func (t *fakeTx) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return nil
}

func (t *fakeTx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	t.queries = append(t.queries, query)
	t.args = append(t.args, args)
	return nil, nil
}

// indexOf returns the position of the first statement containing want, or -1.
func indexOf(queries []string, want string) int {
	for i, q := range queries {
		if strings.Contains(q, want) {
			return i
		}
	}
	return -1
}

func strPtr(s string) *string {
	return &s
}

func testBatch() *models.CardBatch {
	return &models.CardBatch{
		Sets: []models.CardSet{
			{Code: "lea", Name: "Limited Edition Alpha"},
		},
		Cards: []models.Card{
			{ID: "card-1", Name: "Black Lotus", SetCode: strPtr("lea"), DataHash: "aaa"},
			{ID: "card-2", Name: "Lightning Bolt", SetCode: strPtr("lea"), DataHash: "bbb"},
		},
		Legalities: []models.CardLegality{
			{CardID: "card-1", Format: "vintage", Status: "restricted"},
			{CardID: "card-2", Format: "vintage", Status: "legal"},
		},
		Colors: []models.CardColor{
			{CardID: "card-2", Color: "R"},
		},
		ColorIdentity: []models.CardColor{
			{CardID: "card-2", Color: "R"},
		},
	}
}

func TestWriteBatch(t *testing.T) {
	ctx := context.Background()

	t.Run("should skip an empty batch", func(t *testing.T) {
		repo := NewRepository(nil, newTestLogger(), 0)
		tx := &fakeTx{}

		err := repo.WriteBatch(ctx, tx, &models.CardBatch{})
		require.NoError(t, err)
		assert.Empty(t, tx.queries)
	})

	t.Run("should write sets before cards", func(t *testing.T) {
		repo := NewRepository(nil, newTestLogger(), 0)
		tx := &fakeTx{}

		err := repo.WriteBatch(ctx, tx, testBatch())
		require.NoError(t, err)

		setIdx := indexOf(tx.queries, "INSERT INTO card_sets")
		cardIdx := indexOf(tx.queries, "INSERT INTO cards")
		require.NotEqual(t, -1, setIdx)
		require.NotEqual(t, -1, cardIdx)
		assert.Less(t, setIdx, cardIdx, "set rows must exist before cards reference them")
	})

	t.Run("should clear each child table before reinserting", func(t *testing.T) {
		repo := NewRepository(nil, newTestLogger(), 0)
		tx := &fakeTx{}

		err := repo.WriteBatch(ctx, tx, testBatch())
		require.NoError(t, err)

		for _, table := range []string{"card_legalities", "card_colors", "card_color_identity"} {
			delIdx := indexOf(tx.queries, "DELETE FROM "+table)
			insIdx := indexOf(tx.queries, "INSERT INTO "+table)
			require.NotEqual(t, -1, delIdx, table)
			require.NotEqual(t, -1, insIdx, table)
			assert.Less(t, delIdx, insIdx, table)

			require.Len(t, tx.args[delIdx], 1)
			assert.Equal(t, pq.Array([]string{"card-1", "card-2"}), tx.args[delIdx][0])
		}
	})

	t.Run("should clear child rows even when the batch carries no replacements", func(t *testing.T) {
		repo := NewRepository(nil, newTestLogger(), 0)
		tx := &fakeTx{}

		batch := testBatch()
		batch.Legalities = nil
		batch.Colors = nil
		batch.ColorIdentity = nil

		err := repo.WriteBatch(ctx, tx, batch)
		require.NoError(t, err)

		assert.NotEqual(t, -1, indexOf(tx.queries, "DELETE FROM card_legalities"))
		assert.Equal(t, -1, indexOf(tx.queries, "INSERT INTO card_legalities"))
	})

	t.Run("should page card inserts by the configured size", func(t *testing.T) {
		repo := NewRepository(nil, newTestLogger(), 1)
		tx := &fakeTx{}

		err := repo.WriteBatch(ctx, tx, testBatch())
		require.NoError(t, err)

		var cardInserts int
		for _, q := range tx.queries {
			if strings.Contains(q, "INSERT INTO cards") {
				cardInserts++
			}
		}
		assert.Equal(t, 2, cardInserts)
	})
}
