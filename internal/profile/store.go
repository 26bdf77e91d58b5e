package profile

import (
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/miquangngwork/english-blossom2/internal/models"
)

// Defaults applied when a profile row is first created at registration.
const (
	defaultLevel       = "A1"
	defaultGoal        = "general"
	defaultTimezone    = "Asia/Ho_Chi_Minh"
	defaultDailyTarget = 15
)

// Store persists learner profiles in postgres.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateDefault inserts the starter profile for a new user. Idempotent:
// an existing row is left alone.
func (s *Store) CreateDefault(userID int64) error {
	_, err := s.db.Exec(
		`INSERT INTO profiles (user_id, level_cefr, goal, interests, timezone, daily_target)
		 VALUES ($1, $2, $3, '{}', $4, $5)
		 ON CONFLICT (user_id) DO NOTHING`,
		userID, defaultLevel, defaultGoal, defaultTimezone, defaultDailyTarget,
	)
	if err != nil {
		return fmt.Errorf("create default profile: %w", err)
	}
	return nil
}

// Get returns the user's profile, or nil when none exists.
func (s *Store) Get(userID int64) (*models.Profile, error) {
	var p models.Profile
	err := s.db.QueryRow(
		`SELECT user_id, level_cefr, goal, occupation, interests, timezone, daily_target, created_at, updated_at
		 FROM profiles WHERE user_id = $1`,
		userID,
	).Scan(&p.UserID, &p.LevelCefr, &p.Goal, &p.Occupation, pq.Array(&p.Interests),
		&p.Timezone, &p.DailyTarget, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return &p, nil
}

// SetLevel records the placement outcome. Upserts so a missing profile
// row cannot swallow a finished assessment's level.
func (s *Store) SetLevel(userID int64, level string) error {
	_, err := s.db.Exec(
		`INSERT INTO profiles (user_id, level_cefr, goal, interests, timezone, daily_target)
		 VALUES ($1, $2, $3, '{}', $4, $5)
		 ON CONFLICT (user_id) DO UPDATE SET level_cefr = EXCLUDED.level_cefr, updated_at = NOW()`,
		userID, level, defaultGoal, defaultTimezone, defaultDailyTarget,
	)
	if err != nil {
		return fmt.Errorf("set profile level: %w", err)
	}
	return nil
}

// HasCompletedSurvey reports whether the user answered the onboarding
// survey. A profile counts as surveyed once it has at least one interest.
func (s *Store) HasCompletedSurvey(userID int64) (bool, error) {
	var surveyed bool
	err := s.db.QueryRow(
		`SELECT COALESCE(array_length(interests, 1), 0) > 0 FROM profiles WHERE user_id = $1`,
		userID,
	).Scan(&surveyed)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("survey lookup: %w", err)
	}
	return surveyed, nil
}

// SubmitSurvey stores the onboarding answers.
func (s *Store) SubmitSurvey(userID int64, interests []string, goal string, occupation *string) error {
	_, err := s.db.Exec(
		`INSERT INTO profiles (user_id, level_cefr, goal, occupation, interests, timezone, daily_target)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (user_id) DO UPDATE
		   SET interests = EXCLUDED.interests,
		       goal = EXCLUDED.goal,
		       occupation = EXCLUDED.occupation,
		       updated_at = NOW()`,
		userID, defaultLevel, goal, occupation, pq.Array(interests), defaultTimezone, defaultDailyTarget,
	)
	if err != nil {
		return fmt.Errorf("submit survey: %w", err)
	}
	return nil
}
