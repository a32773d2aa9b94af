package repositories

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"game-match-system/models"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// MemoryStore keeps every record in process memory. It is used when no
// database is configured and by tests.
type MemoryStore struct {
	mu           sync.RWMutex
	matches      map[string]models.Match
	tournaments  map[string]models.Tournament
	participants map[string][]models.TournamentParticipant // by tournament, registration order
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		matches:      make(map[string]models.Match),
		tournaments:  make(map[string]models.Tournament),
		participants: make(map[string][]models.TournamentParticipant),
	}
}

// ---------- matches ----------

func (s *MemoryStore) CreateMatch(_ context.Context, m *models.Match) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if _, ok := s.matches[m.ID]; ok {
		return fmt.Errorf("match %s already exists", m.ID)
	}
	now := time.Now()
	m.CreatedAt, m.UpdatedAt = now, now
	s.matches[m.ID] = *m
	return nil
}

func (s *MemoryStore) FindMatchByID(_ context.Context, id string) (*models.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.matches[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &m, nil
}

func (s *MemoryStore) FindMatchesByStatus(_ context.Context, statuses ...models.MatchStatus) ([]models.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filterMatches(func(m models.Match) bool {
		return lo.Contains(statuses, m.Status)
	}), nil
}

func (s *MemoryStore) FindMatchesByTournament(_ context.Context, tournamentID string) ([]models.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.filterMatches(func(m models.Match) bool {
		return m.TournamentID != nil && *m.TournamentID == tournamentID
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].Round < out[j].Round })
	return out, nil
}

func (s *MemoryStore) FindMatchesByPlayer(_ context.Context, userID string) ([]models.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filterMatches(func(m models.Match) bool { return m.HasPlayer(userID) }), nil
}

// filterMatches returns matches in creation order.
func (s *MemoryStore) filterMatches(keep func(models.Match) bool) []models.Match {
	out := lo.Filter(lo.Values(s.matches), func(m models.Match, _ int) bool { return keep(m) })
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (s *MemoryStore) UpdateMatch(_ context.Context, m *models.Match, expected models.MatchStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.matches[m.ID]
	if !ok {
		return ErrNotFound
	}
	if current.Status != expected {
		return ErrStaleUpdate
	}
	m.CreatedAt = current.CreatedAt
	m.UpdatedAt = time.Now()
	s.matches[m.ID] = *m
	return nil
}

func (s *MemoryStore) CompleteTournamentMatch(_ context.Context, m *models.Match, expected models.MatchStatus, deltas []RecordDelta) error {
	if m.TournamentID == nil {
		return fmt.Errorf("match %s is not a tournament match", m.ID)
	}
	tournamentID := *m.TournamentID

	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.matches[m.ID]
	if !ok {
		return ErrNotFound
	}
	if current.Status != expected {
		return ErrStaleUpdate
	}
	idx := make([]int, len(deltas))
	for n, d := range deltas {
		if idx[n] = s.participantIndex(tournamentID, d.UserID); idx[n] < 0 {
			return fmt.Errorf("%w: participant %s", ErrNotFound, d.UserID)
		}
	}

	list := s.participants[tournamentID]
	for n, d := range deltas {
		p := &list[idx[n]]
		if d.Won {
			p.Wins++
		} else {
			p.Losses++
		}
		p.ScoreDiff += d.ScoreDelta
	}
	m.CreatedAt = current.CreatedAt
	m.UpdatedAt = time.Now()
	s.matches[m.ID] = *m
	return nil
}

func (s *MemoryStore) DeleteMatch(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.matches[id]; !ok {
		return ErrNotFound
	}
	delete(s.matches, id)
	return nil
}

// ---------- tournaments ----------

func (s *MemoryStore) CreateTournament(_ context.Context, t *models.Tournament) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if _, ok := s.tournaments[t.ID]; ok {
		return fmt.Errorf("tournament %s already exists", t.ID)
	}
	now := time.Now()
	t.CreatedAt, t.UpdatedAt = now, now
	s.tournaments[t.ID] = *t
	return nil
}

func (s *MemoryStore) FindTournamentByID(_ context.Context, id string) (*models.Tournament, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tournaments[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &t, nil
}

func (s *MemoryStore) FindTournamentsByStatus(_ context.Context, statuses ...models.TournamentStatus) ([]models.Tournament, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := lo.Filter(lo.Values(s.tournaments), func(t models.Tournament, _ int) bool {
		return lo.Contains(statuses, t.Status)
	})
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RegistrationEnd.Before(out[j].RegistrationEnd)
	})
	return out, nil
}

func (s *MemoryStore) UpdateTournament(_ context.Context, t *models.Tournament, expected models.TournamentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.tournaments[t.ID]
	if !ok {
		return ErrNotFound
	}
	if current.Status != expected {
		return ErrStaleUpdate
	}
	t.CreatedAt = current.CreatedAt
	t.UpdatedAt = time.Now()
	s.tournaments[t.ID] = *t
	return nil
}

func (s *MemoryStore) DeleteTournament(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tournaments[id]; !ok {
		return ErrNotFound
	}
	delete(s.tournaments, id)
	delete(s.participants, id)
	return nil
}

// ---------- participants ----------

func (s *MemoryStore) CreateParticipant(_ context.Context, p *models.TournamentParticipant, capacity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tournaments[p.TournamentID]; !ok {
		return ErrNotFound
	}
	list := s.participants[p.TournamentID]
	if lo.ContainsBy(list, func(e models.TournamentParticipant) bool { return e.UserID == p.UserID }) {
		return ErrAlreadyRegistered
	}
	if capacity > 0 && len(list) >= capacity {
		return ErrCapacityReached
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.RegisteredAt.IsZero() {
		p.RegisteredAt = time.Now()
	}
	s.participants[p.TournamentID] = append(list, *p)
	return nil
}

func (s *MemoryStore) FindParticipant(_ context.Context, tournamentID, userID string) (*models.TournamentParticipant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.participantIndex(tournamentID, userID)
	if i < 0 {
		return nil, ErrNotFound
	}
	p := s.participants[tournamentID][i]
	return &p, nil
}

func (s *MemoryStore) FindParticipantsByTournament(_ context.Context, tournamentID string) ([]models.TournamentParticipant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.TournamentParticipant(nil), s.participants[tournamentID]...), nil
}

func (s *MemoryStore) CountParticipants(_ context.Context, tournamentID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.participants[tournamentID]), nil
}

func (s *MemoryStore) DeleteParticipant(_ context.Context, tournamentID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.participantIndex(tournamentID, userID)
	if i < 0 {
		return ErrNotFound
	}
	list := s.participants[tournamentID]
	s.participants[tournamentID] = append(list[:i:i], list[i+1:]...)
	return nil
}

func (s *MemoryStore) IncrementWins(_ context.Context, tournamentID, userID string, scoreDelta int) error {
	return s.mutateParticipant(tournamentID, userID, func(p *models.TournamentParticipant) error {
		p.Wins++
		p.ScoreDiff += scoreDelta
		return nil
	})
}

func (s *MemoryStore) IncrementLosses(_ context.Context, tournamentID, userID string, scoreDelta int) error {
	return s.mutateParticipant(tournamentID, userID, func(p *models.TournamentParticipant) error {
		p.Losses++
		p.ScoreDiff += scoreDelta
		return nil
	})
}

func (s *MemoryStore) SetFinalRank(_ context.Context, tournamentID, userID string, rank int) error {
	return s.mutateParticipant(tournamentID, userID, func(p *models.TournamentParticipant) error {
		if p.FinalRank != nil {
			return ErrFinalRankAssigned
		}
		p.FinalRank = &rank
		return nil
	})
}

func (s *MemoryStore) FindTiedParticipants(_ context.Context, tournamentID string, wins, scoreDiff int) ([]models.TournamentParticipant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lo.Filter(s.participants[tournamentID], func(p models.TournamentParticipant, _ int) bool {
		return p.Wins == wins && p.ScoreDiff == scoreDiff
	}), nil
}

func (s *MemoryStore) SetAllFinalRanks(_ context.Context, tournamentID string, ranks map[string]int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.participants[tournamentID]
	for _, p := range list {
		if p.FinalRank != nil {
			return fmt.Errorf("%w: user %s", ErrFinalRankAssigned, p.UserID)
		}
	}
	for userID := range ranks {
		if s.participantIndex(tournamentID, userID) < 0 {
			return fmt.Errorf("%w: participant %s", ErrNotFound, userID)
		}
	}
	for i := range list {
		if rank, ok := ranks[list[i].UserID]; ok {
			list[i].FinalRank = &rank
		}
	}
	return nil
}

func (s *MemoryStore) participantIndex(tournamentID, userID string) int {
	_, i, ok := lo.FindIndexOf(s.participants[tournamentID], func(p models.TournamentParticipant) bool {
		return p.UserID == userID
	})
	if !ok {
		return -1
	}
	return i
}

func (s *MemoryStore) mutateParticipant(tournamentID, userID string, fn func(p *models.TournamentParticipant) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.participantIndex(tournamentID, userID)
	if i < 0 {
		return ErrNotFound
	}
	return fn(&s.participants[tournamentID][i])
}
