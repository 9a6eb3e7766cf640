package store

import (
	"sort"
	"sync"

	"walink/pkg/types"
)

// Store holds the latest known SessionRecord for every tenant.
// It is a pure in-memory cache: seeded and refreshed wholesale by the
// authoritative fetch, point-patched by the event reconciler. Records are
// stored by value and returned as copies so callers can never alias the
// cached state.
//
// Ordering between a fetch and a push event for the same tenant is
// last-write-wins by arrival: every accepted write bumps a monotonic
// revision counter recorded on the record.
type Store struct {
	mu       sync.RWMutex
	records  map[string]types.SessionRecord
	revision uint64
}

// New creates an empty session store.
func New() *Store {
	return &Store{
		records: make(map[string]types.SessionRecord),
	}
}

// ReplaceAll swaps the whole collection for the authoritative fetch
// result. No merging with prior per-record edits: a record absent from
// the new collection disappears.
func (s *Store) ReplaceAll(records []types.SessionRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]types.SessionRecord, len(records))
	for _, rec := range records {
		s.revision++
		rec.Revision = s.revision
		next[rec.TenantID] = rec
	}
	s.records = next
}

// Patch shallow-merges a partial record into the existing record for the
// tenant. It never inserts: partial data is insufficient to construct a
// full record, so a patch for an unknown tenant is a no-op.
//
// Patch is idempotent: a patch that changes nothing leaves the record
// (including its revision) untouched. The updated copy and whether the
// patch applied are returned.
func (s *Store) Patch(tenantID string, p types.PartialRecord) (types.SessionRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.records[tenantID]
	if !exists {
		return types.SessionRecord{}, false
	}

	changed := false
	if p.Status != nil && rec.Status != *p.Status {
		rec.Status = *p.Status
		changed = true
	}
	if p.SessionName != nil && rec.SessionName != *p.SessionName {
		rec.SessionName = *p.SessionName
		changed = true
	}
	if !changed {
		return rec, true
	}

	// UpdatedAt is display metadata; it moves only alongside a real change
	// so that re-applying the same patch leaves the record identical.
	if p.UpdatedAt != nil {
		rec.UpdatedAt = *p.UpdatedAt
	}
	s.revision++
	rec.Revision = s.revision
	s.records[tenantID] = rec
	return rec, true
}

// Get returns a copy of the record for the tenant.
func (s *Store) Get(tenantID string) (types.SessionRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.records[tenantID]
	return rec, exists
}

// Snapshot returns all records ordered by school name, tenant ID as
// tie-breaker, for stable listing.
func (s *Store) Snapshot() []types.SessionRecord {
	s.mu.RLock()
	records := make([]types.SessionRecord, 0, len(s.records))
	for _, rec := range s.records {
		records = append(records, rec)
	}
	s.mu.RUnlock()

	sort.Slice(records, func(i, j int) bool {
		if records[i].SchoolName != records[j].SchoolName {
			return records[i].SchoolName < records[j].SchoolName
		}
		return records[i].TenantID < records[j].TenantID
	})
	return records
}

// Views returns the snapshot with the derived row action attached.
func (s *Store) Views() []types.SessionView {
	records := s.Snapshot()
	views := make([]types.SessionView, 0, len(records))
	for _, rec := range records {
		views = append(views, types.ViewOf(rec))
	}
	return views
}

// Len returns the number of cached records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Revision returns the current arrival counter value.
func (s *Store) Revision() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision
}
