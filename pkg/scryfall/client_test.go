package scryfall

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(msg ectologger.EctoLogMessage) {})
}

func TestGetBulkData(t *testing.T) {
	t.Run("should fetch the bulk data descriptor", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/bulk-data/default_cards", r.URL.Path)
			assert.Equal(t, "clover-test", r.Header.Get("User-Agent"))

			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{
				"type": "default_cards",
				"updated_at": "2024-03-01T09:00:00Z",
				"download_uri": "https://data.example.com/default-cards.json",
				"size": 1024
			}`)
		}))
		defer server.Close()

		client := NewClient(Config{BaseURL: server.URL, UserAgent: "clover-test"}, newTestLogger())

		bulk, err := client.GetBulkData(context.Background(), "default_cards")
		require.NoError(t, err)
		assert.Equal(t, "default_cards", bulk.Type)
		assert.Equal(t, "https://data.example.com/default-cards.json", bulk.DownloadURI)
		assert.Equal(t, int64(1024), bulk.Size)
		assert.Equal(t, 2024, bulk.UpdatedAt.Year())
	})

	t.Run("should fail on non-200 status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		client := NewClient(Config{BaseURL: server.URL}, newTestLogger())

		_, err := client.GetBulkData(context.Background(), "unknown_type")
		assert.Error(t, err)
	})

	t.Run("should fail when the descriptor has no download uri", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"type": "default_cards"}`)
		}))
		defer server.Close()

		client := NewClient(Config{BaseURL: server.URL}, newTestLogger())

		_, err := client.GetBulkData(context.Background(), "default_cards")
		assert.Error(t, err)
	})
}

func TestDownload(t *testing.T) {
	t.Run("should stream the dataset", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `[{"id": "card-1", "name": "Island", "set": "lea", "set_name": "Limited Edition Alpha"}]`)
		}))
		defer server.Close()

		client := NewClient(Config{BaseURL: server.URL}, newTestLogger())

		stream, err := client.Download(context.Background(), server.URL)
		require.NoError(t, err)
		defer stream.Close()

		card, err := stream.Next()
		require.NoError(t, err)
		assert.Equal(t, "card-1", card.ID)

		_, err = stream.Next()
		assert.Equal(t, io.EOF, err)
	})

	t.Run("should fail on non-200 status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		client := NewClient(Config{BaseURL: server.URL}, newTestLogger())

		_, err := client.Download(context.Background(), server.URL)
		assert.Error(t, err)
	})
}
