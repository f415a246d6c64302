package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSyncRunStatus(t *testing.T) {
	t.Run("should classify terminal statuses", func(t *testing.T) {
		assert.True(t, SyncRunStatusCompleted.IsTerminal())
		assert.True(t, SyncRunStatusFailed.IsTerminal())
		assert.True(t, SyncRunStatusCancelled.IsTerminal())
		assert.False(t, SyncRunStatusPending.IsTerminal())
		assert.False(t, SyncRunStatusRunning.IsTerminal())
	})

	t.Run("should classify active statuses", func(t *testing.T) {
		assert.True(t, SyncRunStatusPending.IsActive())
		assert.True(t, SyncRunStatusRunning.IsActive())
		assert.False(t, SyncRunStatusCompleted.IsActive())
		assert.False(t, SyncRunStatusFailed.IsActive())
		assert.False(t, SyncRunStatusCancelled.IsActive())
	})
}

func TestSyncRunProgress(t *testing.T) {
	t.Run("should report zero before the total is known", func(t *testing.T) {
		run := SyncRun{TotalCards: 0, ProcessedCards: 500}
		assert.Equal(t, 0.0, run.Progress())
	})

	t.Run("should report the processed percentage", func(t *testing.T) {
		run := SyncRun{TotalCards: 200, ProcessedCards: 50}
		assert.Equal(t, 25.0, run.Progress())
	})

	t.Run("should cap at one hundred", func(t *testing.T) {
		run := SyncRun{TotalCards: 100, ProcessedCards: 150}
		assert.Equal(t, 100.0, run.Progress())
	})
}
