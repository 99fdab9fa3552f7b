// Package store holds the published analytics artifacts. A refresh builds a
// complete ArtifactSet off to the side and publishes it with one atomic swap;
// readers always see either the old set or the new one, never a mix.
package store

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/caddydash/lifecycle/internal/churn"
	"github.com/caddydash/lifecycle/internal/models"
)

// ArtifactSet is one complete published refresh output.
type ArtifactSet struct {
	Version     uint64
	RunID       uuid.UUID
	RefreshedAt time.Time
	Reference   time.Time

	Orders   []models.Order // normalized ledger as of the refresh
	Features []models.CustomerFeature
	Segments map[string]models.SegmentLabel
	Model    *churn.Model
	Scaler   *churn.Scaler
	Cohorts  *models.CohortResult // default window snapshot
}

type MemoryStore struct {
	mu      sync.RWMutex
	current *ArtifactSet
	version uint64
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

// Publish swaps in a complete artifact set and stamps its version.
func (s *MemoryStore) Publish(set *ArtifactSet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.version++
	set.Version = s.version
	s.current = set
}

// Current returns the latest complete set, or ErrMissingArtifact before the
// first successful refresh. The returned set must be treated as read-only.
func (s *MemoryStore) Current() (*ArtifactSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil, models.ErrMissingArtifact
	}
	return s.current, nil
}

func (s *MemoryStore) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current != nil
}
