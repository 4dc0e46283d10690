package database

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/aristath/marketgps/internal/domain"
)

// Store is the RelationalStore: the single point of access to the
// universe, scores, gating, job runs, the queue, rotation state and
// quotas. Every public method is scope-aware where the
// underlying table is scope-partitioned; nothing here crosses a
// MarketScope boundary on its own — callers always supply the scope
// explicitly.
type Store struct {
	db  *DB
	log zerolog.Logger

	// publishMu serializes publishes per scope: at most one publish
	// is in progress for a scope at any time. Scopes never share a
	// mutex, so US_EU and AFRICA publishes proceed concurrently.
	publishMu map[domain.MarketScope]*sync.Mutex
}

// NewStore wraps an open DB as a RelationalStore.
func NewStore(db *DB, log zerolog.Logger) *Store {
	return &Store{
		db:  db,
		log: log.With().Str("component", "relational_store").Logger(),
		publishMu: map[domain.MarketScope]*sync.Mutex{
			domain.ScopeUSEU:   {},
			domain.ScopeAfrica: {},
		},
	}
}

func (s *Store) publishLock(scope domain.MarketScope) *sync.Mutex {
	if mu, ok := s.publishMu[scope]; ok {
		return mu
	}
	// Unknown scope: fall back to the US_EU mutex rather than racing.
	return s.publishMu[domain.ScopeUSEU]
}
