package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
)

// SessionState describes what the guardian found when it inspected the store
// session.
type SessionState int

const (
	// SessionHealthy means the session can execute the next statement as-is.
	SessionHealthy SessionState = iota
	// SessionBlocked means a previous transaction failed and is still open;
	// the session cannot make progress until it is rolled back.
	SessionBlocked
	// SessionBroken means the connection state is indeterminate. The pool
	// discards the connection and a fresh one is established on the next
	// successful ping.
	SessionBroken
)

func (s SessionState) String() string {
	switch s {
	case SessionHealthy:
		return "healthy"
	case SessionBlocked:
		return "blocked"
	case SessionBroken:
		return "broken"
	default:
		return "unknown"
	}
}

// Guardian repairs store session state before each unit of work so one failed
// batch never poisons the batches after it. It is also the only place batch
// transactions are handed out, which is how it knows about the open one.
type Guardian struct {
	db         DB
	logger     ectologger.Logger
	retryCount int
	current    Tx
}

func NewGuardian(db DB, retryCount int, logger ectologger.Logger) *Guardian {
	if retryCount < 1 {
		retryCount = 1
	}
	return &Guardian{
		db:         db,
		logger:     logger,
		retryCount: retryCount,
	}
}

// Begin opens the transaction for the next batch. The guardian tracks it so a
// later EnsureClean can sweep it up if the batch dies without closing it.
func (g *Guardian) Begin(ctx context.Context) (Tx, error) {
	if err := g.EnsureClean(ctx); err != nil {
		return nil, err
	}

	tx, err := g.db.GetTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to begin batch transaction: %w", err)
	}
	g.current = tx
	return tx, nil
}

// EnsureClean returns once the session is in a known-good state, or fails
// fatally when the store is unreachable.
func (g *Guardian) EnsureClean(ctx context.Context) error {
	state := g.inspect(ctx)
	switch state {
	case SessionHealthy:
		return nil
	case SessionBlocked:
		g.logger.WithContext(ctx).Warnf("Session blocked by an open transaction, rolling it back")
		if err := g.current.Rollback(ctx); err != nil {
			// The rollback itself failing means the connection is suspect.
			g.current = nil
			return g.recover(ctx)
		}
		g.current = nil
		return nil
	case SessionBroken:
		return g.recover(ctx)
	}
	return nil
}

func (g *Guardian) inspect(ctx context.Context) SessionState {
	if g.current != nil && g.current.IsOpen() {
		return SessionBlocked
	}
	if err := g.db.PingContext(ctx); err != nil {
		g.logger.WithContext(ctx).WithError(err).Warnf("Store session state is indeterminate")
		return SessionBroken
	}
	return SessionHealthy
}

// recover discards the broken connection and waits for the pool to establish
// a fresh one, giving up after the configured number of attempts.
func (g *Guardian) recover(ctx context.Context) error {
	var lastErr error
	for attempt := 1; attempt <= g.retryCount; attempt++ {
		if err := g.db.PingContext(ctx); err != nil {
			lastErr = err
			g.logger.WithContext(ctx).WithError(err).Warnf("Store reconnect attempt %d/%d failed", attempt, g.retryCount)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
			continue
		}
		g.logger.WithContext(ctx).Infof("Store session recovered on attempt %d", attempt)
		return nil
	}
	return fmt.Errorf("store unreachable after %d attempts: %w", g.retryCount, lastErr)
}
