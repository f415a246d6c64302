package context

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSyncRunID(t *testing.T) {
	t.Run("should round trip the run id", func(t *testing.T) {
		ctx := SetSyncRunID(context.Background(), "run-1")
		assert.Equal(t, "run-1", GetSyncRunID(ctx))
	})

	t.Run("should return empty when no run is attached", func(t *testing.T) {
		assert.Equal(t, "", GetSyncRunID(context.Background()))
	})

	t.Run("should not leak into sibling keys", func(t *testing.T) {
		ctx := SetSyncRunID(context.Background(), "run-1")
		assert.Equal(t, "", GetRequestID(ctx))
	})
}

func TestRequestID(t *testing.T) {
	t.Run("should round trip the request id", func(t *testing.T) {
		ctx := SetRequestID(context.Background(), "req-1")
		assert.Equal(t, "req-1", GetRequestID(ctx))
	})
}
