package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/campaign-crawler/internal/campaign"
)

type rowKey struct {
	site string
	id   string
}

// CampaignStore is an in-memory campaign.Store with the same
// (source_site, campaign_id) full-replace semantics as the Postgres store.
type CampaignStore struct {
	mu      sync.RWMutex
	rows    map[rowKey]campaign.StoredCampaign
	inserts int
	updates int
}

// NewCampaignStore constructs an empty CampaignStore.
func NewCampaignStore() *CampaignStore {
	return &CampaignStore{rows: make(map[rowKey]campaign.StoredCampaign)}
}

// Upsert inserts or fully replaces the row.
func (s *CampaignStore) Upsert(_ context.Context, row campaign.StoredCampaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := rowKey{row.SourceSite, row.CampaignID}
	if _, exists := s.rows[k]; exists {
		s.updates++
	} else {
		s.inserts++
	}
	s.rows[k] = row
	return nil
}

// Ping always succeeds.
func (s *CampaignStore) Ping(context.Context) error {
	return nil
}

// Get returns the row stored under (site, id).
func (s *CampaignStore) Get(site, id string) (campaign.StoredCampaign, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.rows[rowKey{site, id}]
	return row, ok
}

// Len is the number of distinct rows.
func (s *CampaignStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

// Counts reports how many upserts inserted and how many replaced a row.
func (s *CampaignStore) Counts() (inserts, updates int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inserts, s.updates
}
