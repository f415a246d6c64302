package sync

import (
	"context"
)

// Caches hold the run-scoped lookup state: the persisted fingerprint index
// and resolved artist ids. They are loaded once before the batch loop and
// owned by the single run goroutine, so access is unsynchronized.
type Caches struct {
	// Hashes maps card id to the data_hash last committed for it.
	Hashes map[string]string
	// Artists maps artist name to its resolved id.
	Artists map[string]int64
}

// NewCaches returns empty caches, mostly for tests.
func NewCaches() *Caches {
	return &Caches{
		Hashes:  make(map[string]string),
		Artists: make(map[string]int64),
	}
}

type hashIndexLoader interface {
	LoadHashIndex(ctx context.Context) (map[string]string, error)
}

type artistIndexLoader interface {
	LoadIDs(ctx context.Context) (map[string]int64, error)
}

// LoadCaches warms the caches from the store.
func LoadCaches(ctx context.Context, cards hashIndexLoader, artists artistIndexLoader) (*Caches, error) {
	hashes, err := cards.LoadHashIndex(ctx)
	if err != nil {
		return nil, err
	}

	ids, err := artists.LoadIDs(ctx)
	if err != nil {
		return nil, err
	}

	return &Caches{
		Hashes:  hashes,
		Artists: ids,
	}, nil
}
