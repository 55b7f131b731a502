// Package memory provides in-process implementations of the profile store,
// the pairing ledger and the engagement store. Used for local runs without
// Postgres and in tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alem-hub/study-match/internal/domain/engagement"
	"github.com/alem-hub/study-match/internal/domain/matching"
	"github.com/alem-hub/study-match/internal/domain/profile"
	"github.com/alem-hub/study-match/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROFILE STORE
// ══════════════════════════════════════════════════════════════════════════════

// ProfileStore implements profile.Store.
type ProfileStore struct {
	mu    sync.RWMutex
	users map[string]*profile.UserRecord
}

// NewProfileStore creates a store seeded with users.
func NewProfileStore(users ...*profile.UserRecord) *ProfileStore {
	s := &ProfileStore{users: make(map[string]*profile.UserRecord, len(users))}
	for _, u := range users {
		s.Put(u)
	}
	return s
}

// Put inserts or replaces a user.
func (s *ProfileStore) Put(u *profile.UserRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *u
	s.users[u.ID] = &cp
}

// GetEligibleCandidates returns eligible users ordered by creation time, then ID.
func (s *ProfileStore) GetEligibleCandidates(_ context.Context, filter profile.CandidateFilter) ([]*profile.UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*profile.UserRecord, 0, len(s.users))
	for _, u := range s.users {
		if matching.IsEligible(u, filter.Now, filter.Cooldown) {
			cp := *u
			out = append(out, &cp)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})

	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// GetByID returns a copy of the user.
func (s *ProfileStore) GetByID(_ context.Context, id string) (*profile.UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, shared.ErrProfileNotFound
	}
	cp := *u
	return &cp, nil
}

// UpdateLastCycle stamps the user's last cycle time.
func (s *ProfileStore) UpdateLastCycle(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return shared.ErrProfileNotFound
	}
	ts := at
	u.LastMatchCycleAt = &ts
	return nil
}

// UpdateMatchStats overwrites the user's counters.
func (s *ProfileStore) UpdateMatchStats(_ context.Context, id string, stats profile.MatchStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return shared.ErrProfileNotFound
	}
	u.TotalMatches = stats.TotalMatches
	u.SuccessfulMatches = stats.SuccessfulMatches
	u.AvgMessagesPerMatch = stats.AvgMessagesPerMatch
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// LEDGER
// ══════════════════════════════════════════════════════════════════════════════

// Ledger implements matching.Ledger.
type Ledger struct {
	mu       sync.RWMutex
	byID     map[string]*matching.PairingRecord
	byKey    map[matching.PairKey]string
	ordered  []string
	failWith error
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		byID:  make(map[string]*matching.PairingRecord),
		byKey: make(map[matching.PairKey]string),
	}
}

// FailWrites makes every Create return err. Nil restores normal writes.
func (l *Ledger) FailWrites(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failWith = err
}

// HasPair checks the pair in either order.
func (l *Ledger) HasPair(_ context.Context, userAID, userBID string) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.byKey[matching.NewPairKey(userAID, userBID)]
	return ok, nil
}

// Create stores the pairing. The unordered pair is unique.
func (l *Ledger) Create(_ context.Context, p *matching.PairingRecord) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.failWith != nil {
		return "", l.failWith
	}

	key := p.Key()
	if _, ok := l.byKey[key]; ok {
		return "", shared.ErrPairingExists
	}

	cp := *p
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	l.byID[cp.ID] = &cp
	l.byKey[key] = cp.ID
	l.ordered = append(l.ordered, cp.ID)
	return cp.ID, nil
}

// GetByID returns a copy of the pairing.
func (l *Ledger) GetByID(_ context.Context, id string) (*matching.PairingRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	p, ok := l.byID[id]
	if !ok {
		return nil, shared.ErrPairingNotFound
	}
	cp := *p
	return &cp, nil
}

// ListByUser returns the user's pairings in creation order.
func (l *Ledger) ListByUser(_ context.Context, userID string) ([]*matching.PairingRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []*matching.PairingRecord
	for _, id := range l.ordered {
		if p := l.byID[id]; p.Involves(userID) {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

// ListParticipants returns every user with at least one pairing, sorted.
func (l *Ledger) ListParticipants(_ context.Context) ([]string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, p := range l.byID {
		seen[p.UserAID] = struct{}{}
		seen[p.UserBID] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// Count returns the number of stored pairings.
func (l *Ledger) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.byID)
}

// ══════════════════════════════════════════════════════════════════════════════
// ENGAGEMENT STORE
// ══════════════════════════════════════════════════════════════════════════════

// EngagementStore implements engagement.Store.
type EngagementStore struct {
	mu      sync.RWMutex
	signals map[string]engagement.Signal
}

// NewEngagementStore creates an empty store.
func NewEngagementStore() *EngagementStore {
	return &EngagementStore{signals: make(map[string]engagement.Signal)}
}

// SignalsFor returns the known signals of the given pairings.
func (s *EngagementStore) SignalsFor(_ context.Context, pairingIDs []string) (map[string]engagement.Signal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]engagement.Signal, len(pairingIDs))
	for _, id := range pairingIDs {
		if sig, ok := s.signals[id]; ok {
			out[id] = sig
		}
	}
	return out, nil
}

// Apply folds the update into the pairing's signal.
func (s *EngagementStore) Apply(_ context.Context, update engagement.Update) (engagement.Signal, error) {
	if err := update.Validate(); err != nil {
		return engagement.Signal{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sig := update.ApplyTo(s.signals[update.PairingID])
	s.signals[update.PairingID] = sig
	return sig, nil
}
