package repositories

import (
	"context"
	"errors"
	"fmt"

	"game-match-system/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// GormStore is the postgres-backed Store.
type GormStore struct {
	DB *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{DB: db}
}

// OpenPostgres connects and migrates the match tables.
func OpenPostgres(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.AutoMigrate(
		&models.Match{},
		&models.Tournament{},
		&models.TournamentParticipant{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return NewGormStore(db), nil
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// ---------- matches ----------

func (s *GormStore) CreateMatch(ctx context.Context, m *models.Match) error {
	return s.DB.WithContext(ctx).Create(m).Error
}

func (s *GormStore) FindMatchByID(ctx context.Context, id string) (*models.Match, error) {
	var m models.Match
	if err := s.DB.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

func (s *GormStore) FindMatchesByStatus(ctx context.Context, statuses ...models.MatchStatus) ([]models.Match, error) {
	var matches []models.Match
	err := s.DB.WithContext(ctx).
		Where("status IN ?", statuses).
		Order("created_at ASC").
		Find(&matches).Error
	return matches, err
}

func (s *GormStore) FindMatchesByTournament(ctx context.Context, tournamentID string) ([]models.Match, error) {
	var matches []models.Match
	err := s.DB.WithContext(ctx).
		Where("tournament_id = ?", tournamentID).
		Order("round ASC, created_at ASC").
		Find(&matches).Error
	return matches, err
}

func (s *GormStore) FindMatchesByPlayer(ctx context.Context, userID string) ([]models.Match, error) {
	var matches []models.Match
	err := s.DB.WithContext(ctx).
		Where("player1_id = ? OR player2_id = ?", userID, userID).
		Find(&matches).Error
	return matches, err
}

func (s *GormStore) UpdateMatch(ctx context.Context, m *models.Match, expected models.MatchStatus) error {
	return updateMatch(s.DB.WithContext(ctx), m, expected)
}

func (s *GormStore) CompleteTournamentMatch(ctx context.Context, m *models.Match, expected models.MatchStatus, deltas []RecordDelta) error {
	if m.TournamentID == nil {
		return fmt.Errorf("match %s is not a tournament match", m.ID)
	}
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := updateMatch(tx, m, expected); err != nil {
			return err
		}
		for _, d := range deltas {
			column := "losses"
			if d.Won {
				column = "wins"
			}
			if err := bumpRecord(tx, *m.TournamentID, d.UserID, column, d.ScoreDelta); err != nil {
				return fmt.Errorf("participant %s: %w", d.UserID, err)
			}
		}
		return nil
	})
}

func updateMatch(db *gorm.DB, m *models.Match, expected models.MatchStatus) error {
	res := db.Model(m).
		Where("status = ?", expected).
		Select("*").Omit("id", "created_at").
		Updates(m)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return staleOrMissing(db, &models.Match{}, m.ID)
	}
	return nil
}

func (s *GormStore) DeleteMatch(ctx context.Context, id string) error {
	res := s.DB.WithContext(ctx).Delete(&models.Match{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ---------- tournaments ----------

func (s *GormStore) CreateTournament(ctx context.Context, t *models.Tournament) error {
	return s.DB.WithContext(ctx).Create(t).Error
}

func (s *GormStore) FindTournamentByID(ctx context.Context, id string) (*models.Tournament, error) {
	var t models.Tournament
	if err := s.DB.WithContext(ctx).First(&t, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

func (s *GormStore) FindTournamentsByStatus(ctx context.Context, statuses ...models.TournamentStatus) ([]models.Tournament, error) {
	var ts []models.Tournament
	err := s.DB.WithContext(ctx).
		Where("status IN ?", statuses).
		Order("registration_end ASC").
		Find(&ts).Error
	return ts, err
}

func (s *GormStore) UpdateTournament(ctx context.Context, t *models.Tournament, expected models.TournamentStatus) error {
	res := s.DB.WithContext(ctx).Model(t).
		Where("status = ?", expected).
		Select("*").Omit("id", "created_at").
		Updates(t)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return staleOrMissing(s.DB.WithContext(ctx), &models.Tournament{}, t.ID)
	}
	return nil
}

func (s *GormStore) DeleteTournament(ctx context.Context, id string) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("tournament_id = ?", id).Delete(&models.TournamentParticipant{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.Tournament{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func staleOrMissing(db *gorm.DB, model interface{}, id string) error {
	var count int64
	if err := db.Session(&gorm.Session{NewDB: true}).Model(model).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrNotFound
	}
	return ErrStaleUpdate
}

// ---------- participants ----------

func (s *GormStore) CreateParticipant(ctx context.Context, p *models.TournamentParticipant, capacity int) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Serialize registrations per tournament on the parent row.
		var t models.Tournament
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&t, "id = ?", p.TournamentID).Error; err != nil {
			return notFound(err)
		}

		if capacity > 0 {
			var count int64
			if err := tx.Model(&models.TournamentParticipant{}).
				Where("tournament_id = ?", p.TournamentID).
				Count(&count).Error; err != nil {
				return err
			}
			if int(count) >= capacity {
				return ErrCapacityReached
			}
		}

		if err := tx.Create(p).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrAlreadyRegistered
			}
			return err
		}
		return nil
	})
}

func (s *GormStore) FindParticipant(ctx context.Context, tournamentID, userID string) (*models.TournamentParticipant, error) {
	var p models.TournamentParticipant
	err := s.DB.WithContext(ctx).
		First(&p, "tournament_id = ? AND user_id = ?", tournamentID, userID).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (s *GormStore) FindParticipantsByTournament(ctx context.Context, tournamentID string) ([]models.TournamentParticipant, error) {
	var ps []models.TournamentParticipant
	err := s.DB.WithContext(ctx).
		Where("tournament_id = ?", tournamentID).
		Order("registered_at ASC, id ASC").
		Find(&ps).Error
	return ps, err
}

func (s *GormStore) CountParticipants(ctx context.Context, tournamentID string) (int, error) {
	var count int64
	err := s.DB.WithContext(ctx).Model(&models.TournamentParticipant{}).
		Where("tournament_id = ?", tournamentID).
		Count(&count).Error
	return int(count), err
}

func (s *GormStore) DeleteParticipant(ctx context.Context, tournamentID, userID string) error {
	res := s.DB.WithContext(ctx).
		Where("tournament_id = ? AND user_id = ?", tournamentID, userID).
		Delete(&models.TournamentParticipant{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) IncrementWins(ctx context.Context, tournamentID, userID string, scoreDelta int) error {
	return bumpRecord(s.DB.WithContext(ctx), tournamentID, userID, "wins", scoreDelta)
}

func (s *GormStore) IncrementLosses(ctx context.Context, tournamentID, userID string, scoreDelta int) error {
	return bumpRecord(s.DB.WithContext(ctx), tournamentID, userID, "losses", scoreDelta)
}

func bumpRecord(db *gorm.DB, tournamentID, userID, column string, scoreDelta int) error {
	res := db.Model(&models.TournamentParticipant{}).
		Where("tournament_id = ? AND user_id = ?", tournamentID, userID).
		Updates(map[string]interface{}{
			column:       gorm.Expr(column + " + 1"),
			"score_diff": gorm.Expr("score_diff + ?", scoreDelta),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) SetFinalRank(ctx context.Context, tournamentID, userID string, rank int) error {
	res := s.DB.WithContext(ctx).Model(&models.TournamentParticipant{}).
		Where("tournament_id = ? AND user_id = ? AND final_rank IS NULL", tournamentID, userID).
		Update("final_rank", rank)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := s.FindParticipant(ctx, tournamentID, userID); err != nil {
			return err
		}
		return ErrFinalRankAssigned
	}
	return nil
}

func (s *GormStore) FindTiedParticipants(ctx context.Context, tournamentID string, wins, scoreDiff int) ([]models.TournamentParticipant, error) {
	var ps []models.TournamentParticipant
	err := s.DB.WithContext(ctx).
		Where("tournament_id = ? AND wins = ? AND score_diff = ?", tournamentID, wins, scoreDiff).
		Order("registered_at ASC, id ASC").
		Find(&ps).Error
	return ps, err
}

func (s *GormStore) SetAllFinalRanks(ctx context.Context, tournamentID string, ranks map[string]int) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ps []models.TournamentParticipant
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("tournament_id = ?", tournamentID).
			Find(&ps).Error; err != nil {
			return err
		}

		known := make(map[string]bool, len(ps))
		for _, p := range ps {
			if p.FinalRank != nil {
				return fmt.Errorf("%w: user %s", ErrFinalRankAssigned, p.UserID)
			}
			known[p.UserID] = true
		}

		for userID, rank := range ranks {
			if !known[userID] {
				return fmt.Errorf("%w: participant %s", ErrNotFound, userID)
			}
			if err := tx.Model(&models.TournamentParticipant{}).
				Where("tournament_id = ? AND user_id = ?", tournamentID, userID).
				Update("final_rank", rank).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
