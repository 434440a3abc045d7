package readmodel

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/OKaluzny/voting-dapp/internal/contract"
	"github.com/OKaluzny/voting-dapp/pkg/models"
)

// Store mirrors the contract's candidate list. The list is only ever
// replaced whole; a failed refresh leaves it untouched.
type Store struct {
	mu         sync.RWMutex
	candidates []models.Candidate
	// started counts refreshes begun; applied is the sequence number of
	// the refresh whose result is currently held.
	started  uint64
	applied  uint64
	inFlight int
	logger   *slog.Logger
}

func NewStore() *Store {
	return &Store{
		candidates: []models.Candidate{},
		logger:     slog.Default().With("component", "readmodel"),
	}
}

// Refresh fetches getAllCandidates through r and replaces the list.
// If a later refresh has already been applied, the result is discarded.
func (s *Store) Refresh(ctx context.Context, r contract.Reader) error {
	s.mu.Lock()
	s.started++
	seq := s.started
	s.inFlight++
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inFlight--
		s.mu.Unlock()
	}()

	raw, err := r.GetAllCandidates(ctx)
	if err != nil {
		s.logger.Warn("refresh failed", "error", err)
		return fmt.Errorf("refresh candidates: %w", err)
	}
	list, err := Decode(raw)
	if err != nil {
		s.logger.Warn("refresh rejected", "error", err)
		return fmt.Errorf("refresh candidates: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if seq <= s.applied {
		s.logger.Debug("discarding stale refresh", "seq", seq, "applied", s.applied)
		return nil
	}
	s.candidates = list
	s.applied = seq
	s.logger.Info("candidates refreshed", "count", len(list))
	return nil
}

// Decode validates raw contract entries. A single bad entry rejects the
// whole list.
func Decode(raw []contract.RawCandidate) ([]models.Candidate, error) {
	list := make([]models.Candidate, 0, len(raw))
	for i, c := range raw {
		if c.Id == nil || c.Id.Sign() < 0 || !c.Id.IsUint64() {
			return nil, fmt.Errorf("%w: entry %d: id %v", models.ErrMalformedCandidate, i, c.Id)
		}
		if c.VoteCount == nil || c.VoteCount.Sign() < 0 || !c.VoteCount.IsUint64() {
			return nil, fmt.Errorf("%w: entry %d: vote count %v", models.ErrMalformedCandidate, i, c.VoteCount)
		}
		if strings.TrimSpace(c.Name) == "" {
			return nil, fmt.Errorf("%w: entry %d: empty name", models.ErrMalformedCandidate, i)
		}
		list = append(list, models.Candidate{
			ID:        c.Id.Uint64(),
			Name:      c.Name,
			VoteCount: c.VoteCount.Uint64(),
		})
	}
	return list, nil
}

// Candidates returns a copy of the current list in contract order.
func (s *Store) Candidates() []models.Candidate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Candidate, len(s.candidates))
	copy(out, s.candidates)
	return out
}

// Refreshing reports whether any refresh is in flight.
func (s *Store) Refreshing() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inFlight > 0
}

// Clear empties the list, used when the wallet disconnects.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.candidates = []models.Candidate{}
	s.applied = s.started
}
