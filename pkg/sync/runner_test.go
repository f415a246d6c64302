package sync

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/scryfall"
)

func noopLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(msg ectologger.EctoLogMessage) {})
}

type fakeSource struct {
	bulk        *scryfall.BulkData
	bulkErr     error
	payload     string
	downloadErr error
	downloaded  bool
}

func (f *fakeSource) GetBulkData(ctx context.Context, dataType string) (*scryfall.BulkData, error) {
	if f.bulkErr != nil {
		return nil, f.bulkErr
	}
	return f.bulk, nil
}

func (f *fakeSource) Download(ctx context.Context, uri string) (*scryfall.CardStream, error) {
	f.downloaded = true
	if f.downloadErr != nil {
		return nil, f.downloadErr
	}
	return scryfall.NewCardStream(io.NopCloser(strings.NewReader(f.payload)))
}

type fakeTx struct {
	committed  bool
	rolledBack bool
}

func (t *fakeTx) IsOpen() bool                   { return !t.committed && !t.rolledBack }
func (t *fakeTx) Commit(ctx context.Context) error {
	if t.IsOpen() {
		t.committed = true
	}
	return nil
}
func (t *fakeTx) Rollback(ctx context.Context) error {
	if t.IsOpen() {
		t.rolledBack = true
	}
	return nil
}
func (t *fakeTx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return nil, nil
}
func (t *fakeTx) GetContext(ctx context.Context, dest any, query string, args ...any) error {
	return nil
}
func (t *fakeTx) SelectContext(ctx context.Context, dest any, query string, args ...any) error {
	return nil
}
func (t *fakeTx) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return nil
}

type fakeGuardian struct {
	ensureErr error
	txs       []*fakeTx
}

func (g *fakeGuardian) EnsureClean(ctx context.Context) error { return g.ensureErr }

func (g *fakeGuardian) Begin(ctx context.Context) (database.Tx, error) {
	tx := &fakeTx{}
	g.txs = append(g.txs, tx)
	return tx, nil
}

type fakeCards struct {
	hashes    map[string]string
	batches   []*models.CardBatch
	writeErrs []error
}

func (c *fakeCards) LoadHashIndex(ctx context.Context) (map[string]string, error) {
	if c.hashes == nil {
		return map[string]string{}, nil
	}
	return c.hashes, nil
}

func (c *fakeCards) WriteBatch(ctx context.Context, tx database.Tx, batch *models.CardBatch) error {
	c.batches = append(c.batches, batch)
	if len(c.writeErrs) > 0 {
		err := c.writeErrs[0]
		c.writeErrs = c.writeErrs[1:]
		return err
	}
	return nil
}

type fakeArtists struct {
	fakeResolver
}

func (a *fakeArtists) LoadIDs(ctx context.Context) (map[string]int64, error) {
	return map[string]int64{}, nil
}

type fakeRuns struct {
	running      bool
	finished     models.SyncRunStatus
	errorMessage *string
	note         *string
	stamp        time.Time
	latest       *models.SyncRun

	total, processed, updated, skipped, errorCount int
}

func (r *fakeRuns) MarkRunning(ctx context.Context, id string) error {
	r.running = true
	return nil
}

func (r *fakeRuns) UpdateProgress(ctx context.Context, id string, total, processed, updated, skipped, errorCount int) error {
	r.total = total
	r.processed = processed
	r.updated = updated
	r.skipped = skipped
	r.errorCount = errorCount
	return nil
}

func (r *fakeRuns) Finish(ctx context.Context, id string, status models.SyncRunStatus, errorMessage, note *string) error {
	r.finished = status
	r.errorMessage = errorMessage
	r.note = note
	return nil
}

func (r *fakeRuns) SetDatasetStamp(ctx context.Context, id string, stamp time.Time) error {
	r.stamp = stamp
	return nil
}

func (r *fakeRuns) LatestCompleted(ctx context.Context) (*models.SyncRun, error) {
	return r.latest, nil
}

const threeCardPayload = `[
	{"id": "card-1", "name": "Lightning Bolt", "set": "lea", "set_name": "Limited Edition Alpha", "artist": "Christopher Rush"},
	{"id": "card-2", "name": "Shivan Dragon", "set": "lea", "set_name": "Limited Edition Alpha", "artist": "Melissa Benson"},
	{"id": "card-3", "name": "Black Lotus", "set": "lea", "set_name": "Limited Edition Alpha", "artist": "Christopher Rush"}
]`

func newTestRunner(cfg RunnerConfig, source *fakeSource, guardian *fakeGuardian, cards *fakeCards, runs *fakeRuns) *Runner {
	if cfg.BulkDataType == "" {
		cfg.BulkDataType = "default_cards"
	}
	return NewRunner(cfg, source, guardian, cards, &fakeArtists{fakeResolver{ids: map[string]int64{}, nextID: 1}}, runs, nil, noopLogger())
}

func TestRunnerRun(t *testing.T) {
	t.Run("should complete a run and persist final counters", func(t *testing.T) {
		source := &fakeSource{
			bulk:    &scryfall.BulkData{UpdatedAt: time.Now(), DownloadURI: "https://data.example.com/cards.json"},
			payload: threeCardPayload,
		}
		guardian := &fakeGuardian{}
		cards := &fakeCards{}
		runs := &fakeRuns{}

		err := newTestRunner(RunnerConfig{BatchSize: 2}, source, guardian, cards, runs).Run(context.Background(), "run-1")
		require.NoError(t, err)

		assert.True(t, runs.running)
		assert.Equal(t, models.SyncRunStatusCompleted, runs.finished)
		assert.Equal(t, 3, runs.total)
		assert.Equal(t, 3, runs.processed)
		assert.Equal(t, 3, runs.updated)
		assert.Equal(t, 0, runs.skipped)

		// batch size 2 over 3 cards means two transactions, both committed
		require.Len(t, guardian.txs, 2)
		assert.True(t, guardian.txs[0].committed)
		assert.True(t, guardian.txs[1].committed)
	})

	t.Run("should skip unchanged cards using the hash index", func(t *testing.T) {
		// prime the index with the digest card-2 will produce
		prime, err := buildChangeSet(context.Background(), []*scryfall.Card{{
			ID:      "card-2",
			Name:    "Shivan Dragon",
			Set:     "lea",
			SetName: "Limited Edition Alpha",
			Artist:  strPtr("Melissa Benson"),
		}}, NewCaches(), newFakeResolver())
		require.NoError(t, err)

		source := &fakeSource{
			bulk:    &scryfall.BulkData{UpdatedAt: time.Now(), DownloadURI: "https://data.example.com/cards.json"},
			payload: threeCardPayload,
		}
		cards := &fakeCards{hashes: map[string]string{"card-2": prime.Digests["card-2"]}}
		runs := &fakeRuns{}

		err = newTestRunner(RunnerConfig{BatchSize: 10}, source, &fakeGuardian{}, cards, runs).Run(context.Background(), "run-1")
		require.NoError(t, err)

		assert.Equal(t, models.SyncRunStatusCompleted, runs.finished)
		assert.Equal(t, 3, runs.processed)
		assert.Equal(t, 2, runs.updated)
		assert.Equal(t, 1, runs.skipped)
	})

	t.Run("should short-circuit when the dataset is not newer", func(t *testing.T) {
		published := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
		lastSync := published.Add(2 * time.Hour)

		source := &fakeSource{
			bulk: &scryfall.BulkData{UpdatedAt: published, DownloadURI: "https://data.example.com/cards.json"},
		}
		runs := &fakeRuns{
			latest: &models.SyncRun{Status: models.SyncRunStatusCompleted, CompletedAt: &lastSync},
		}

		err := newTestRunner(RunnerConfig{}, source, &fakeGuardian{}, &fakeCards{}, runs).Run(context.Background(), "run-1")
		require.NoError(t, err)

		assert.Equal(t, models.SyncRunStatusCompleted, runs.finished)
		require.NotNil(t, runs.note)
		assert.Contains(t, *runs.note, "not newer")
		assert.False(t, source.downloaded)
		assert.False(t, runs.running)
		assert.Equal(t, 0, runs.processed)
	})

	t.Run("should fail the run when discovery fails", func(t *testing.T) {
		source := &fakeSource{bulkErr: errors.New("api unreachable")}
		runs := &fakeRuns{}

		err := newTestRunner(RunnerConfig{}, source, &fakeGuardian{}, &fakeCards{}, runs).Run(context.Background(), "run-1")
		require.Error(t, err)

		assert.Equal(t, models.SyncRunStatusFailed, runs.finished)
		require.NotNil(t, runs.errorMessage)
		assert.Contains(t, *runs.errorMessage, "api unreachable")
	})

	t.Run("should roll back a failed batch and keep going", func(t *testing.T) {
		source := &fakeSource{
			bulk:    &scryfall.BulkData{UpdatedAt: time.Now(), DownloadURI: "https://data.example.com/cards.json"},
			payload: threeCardPayload,
		}
		guardian := &fakeGuardian{}
		cards := &fakeCards{writeErrs: []error{errors.New("deadlock detected")}}
		runs := &fakeRuns{}

		err := newTestRunner(RunnerConfig{BatchSize: 2}, source, guardian, cards, runs).Run(context.Background(), "run-1")
		require.NoError(t, err)

		assert.Equal(t, models.SyncRunStatusCompleted, runs.finished)
		assert.Equal(t, 1, runs.errorCount)
		require.NotNil(t, runs.note)
		assert.Contains(t, *runs.note, "1 failed batches")

		require.Len(t, guardian.txs, 2)
		assert.True(t, guardian.txs[0].rolledBack)
		assert.True(t, guardian.txs[1].committed)
	})

	t.Run("should attribute batch failure logs to the run", func(t *testing.T) {
		var logged []ectologger.EctoLogMessage
		logger := ectologger.NewEctoLogger(func(msg ectologger.EctoLogMessage) {
			logged = append(logged, msg)
		})

		source := &fakeSource{
			bulk:    &scryfall.BulkData{UpdatedAt: time.Now(), DownloadURI: "https://data.example.com/cards.json"},
			payload: threeCardPayload,
		}
		cards := &fakeCards{writeErrs: []error{errors.New("deadlock detected")}}
		runs := &fakeRuns{}

		runner := NewRunner(RunnerConfig{BatchSize: 10, BulkDataType: "default_cards"}, source, &fakeGuardian{}, cards,
			&fakeArtists{fakeResolver{ids: map[string]int64{}, nextID: 1}}, runs, nil, logger)
		err := runner.Run(context.Background(), "run-7")
		require.NoError(t, err)

		var found bool
		for _, msg := range logged {
			if msg.Level == "error" && msg.Fields["run_id"] == "run-7" {
				found = true
			}
		}
		assert.True(t, found, "batch failure should be logged with the run id")
	})

	t.Run("should abort as failed once batch errors cross the threshold", func(t *testing.T) {
		source := &fakeSource{
			bulk:    &scryfall.BulkData{UpdatedAt: time.Now(), DownloadURI: "https://data.example.com/cards.json"},
			payload: threeCardPayload,
		}
		cards := &fakeCards{writeErrs: []error{errors.New("boom"), errors.New("boom")}}
		runs := &fakeRuns{}

		err := newTestRunner(RunnerConfig{BatchSize: 1, ErrorThreshold: 1}, source, &fakeGuardian{}, cards, runs).Run(context.Background(), "run-1")
		require.Error(t, err)

		assert.Equal(t, models.SyncRunStatusFailed, runs.finished)
		require.NotNil(t, runs.errorMessage)
		assert.Contains(t, *runs.errorMessage, "failed batches")
	})

	t.Run("should fail the run on a dataset parse error", func(t *testing.T) {
		source := &fakeSource{
			bulk:    &scryfall.BulkData{UpdatedAt: time.Now(), DownloadURI: "https://data.example.com/cards.json"},
			payload: `[{"id": "card-1", "name": "Island", "set": "lea", "set_name": "Alpha"}, {"id": 42}]`,
		}
		runs := &fakeRuns{}

		err := newTestRunner(RunnerConfig{BatchSize: 10}, source, &fakeGuardian{}, &fakeCards{}, runs).Run(context.Background(), "run-1")
		require.Error(t, err)

		assert.Equal(t, models.SyncRunStatusFailed, runs.finished)
		require.NotNil(t, runs.errorMessage)
		assert.Contains(t, *runs.errorMessage, "parse failed")
	})

	t.Run("should persist cancelled when the context is cancelled", func(t *testing.T) {
		source := &fakeSource{
			bulk:    &scryfall.BulkData{UpdatedAt: time.Now(), DownloadURI: "https://data.example.com/cards.json"},
			payload: threeCardPayload,
		}
		runs := &fakeRuns{}

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := newTestRunner(RunnerConfig{BatchSize: 1}, source, &fakeGuardian{}, &fakeCards{}, runs).Run(ctx, "run-1")
		require.ErrorIs(t, err, context.Canceled)

		assert.Equal(t, models.SyncRunStatusCancelled, runs.finished)
		require.NotNil(t, runs.note)
		assert.Contains(t, *runs.note, "cancelled")
	})
}
