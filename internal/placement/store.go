package placement

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/miquangngwork/english-blossom2/internal/models"
)

// Store persists assessments and their items in postgres.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// DeleteUnfinished voids every non-terminal assessment the user has.
// Items go with them via ON DELETE CASCADE. Called on start so each user
// has at most one active assessment.
func (s *Store) DeleteUnfinished(userID int64) error {
	_, err := s.db.Exec(
		`DELETE FROM assessments WHERE user_id = $1 AND final_score IS NULL`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("delete unfinished assessments: %w", err)
	}
	return nil
}

func (s *Store) CreateAssessment(userID int64, totalQuestions int) (*models.Assessment, error) {
	var a models.Assessment
	err := s.db.QueryRow(
		`INSERT INTO assessments (id, user_id, total_questions)
		 VALUES ($1, $2, $3)
		 RETURNING id, user_id, total_questions, created_at`,
		uuid.NewString(), userID, totalQuestions,
	).Scan(&a.ID, &a.UserID, &a.TotalQuestions, &a.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create assessment: %w", err)
	}
	return &a, nil
}

// GetAssessment returns the assessment, or nil when it does not exist.
func (s *Store) GetAssessment(assessmentID string) (*models.Assessment, error) {
	var a models.Assessment
	err := s.db.QueryRow(
		`SELECT id, user_id, total_questions, final_score, final_level, created_at, completed_at
		 FROM assessments WHERE id = $1`,
		assessmentID,
	).Scan(&a.ID, &a.UserID, &a.TotalQuestions, &a.FinalScore, &a.FinalLevel, &a.CreatedAt, &a.CompletedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get assessment: %w", err)
	}
	return &a, nil
}

// LatestFinished returns the user's most recent terminal assessment, or
// nil when they have never finished one.
func (s *Store) LatestFinished(userID int64) (*models.Assessment, error) {
	var a models.Assessment
	err := s.db.QueryRow(
		`SELECT id, user_id, total_questions, final_score, final_level, created_at, completed_at
		 FROM assessments
		 WHERE user_id = $1 AND final_score IS NOT NULL
		 ORDER BY created_at DESC
		 LIMIT 1`,
		userID,
	).Scan(&a.ID, &a.UserID, &a.TotalQuestions, &a.FinalScore, &a.FinalLevel, &a.CreatedAt, &a.CompletedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest finished assessment: %w", err)
	}
	return &a, nil
}

// InsertItem appends a new item to the assessment. Position is assigned
// from the current maximum, so history order is explicit and never
// depends on timestamp ties.
func (s *Store) InsertItem(assessmentID string, difficulty float64, skillTag models.SkillTag, question string, options []string, correctAnswer string) (*models.AssessmentItem, error) {
	optionsJSON, err := json.Marshal(options)
	if err != nil {
		return nil, fmt.Errorf("marshal options: %w", err)
	}

	item := models.AssessmentItem{
		ID:            uuid.NewString(),
		AssessmentID:  assessmentID,
		Difficulty:    difficulty,
		SkillTag:      skillTag,
		Question:      question,
		Options:       options,
		CorrectAnswer: correctAnswer,
	}

	err = s.db.QueryRow(
		`INSERT INTO assessment_items
		   (id, assessment_id, position, difficulty, skill_tag, question, options, correct_answer)
		 VALUES ($1, $2,
		   (SELECT COALESCE(MAX(position), 0) + 1 FROM assessment_items WHERE assessment_id = $2),
		   $3, $4, $5, $6, $7)
		 RETURNING position, created_at`,
		item.ID, assessmentID, difficulty, skillTag, question, optionsJSON, correctAnswer,
	).Scan(&item.Position, &item.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert item: %w", err)
	}

	return &item, nil
}

// LatestItem returns the most recently presented item of the assessment,
// or nil when none has been presented yet.
func (s *Store) LatestItem(assessmentID string) (*models.AssessmentItem, error) {
	var item models.AssessmentItem
	var optionsJSON []byte
	err := s.db.QueryRow(
		`SELECT id, assessment_id, position, difficulty, skill_tag, question, options,
		        correct_answer, user_answer, is_correct, created_at
		 FROM assessment_items
		 WHERE assessment_id = $1
		 ORDER BY position DESC
		 LIMIT 1`,
		assessmentID,
	).Scan(&item.ID, &item.AssessmentID, &item.Position, &item.Difficulty, &item.SkillTag,
		&item.Question, &optionsJSON, &item.CorrectAnswer, &item.UserAnswer, &item.IsCorrect, &item.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest item: %w", err)
	}

	if err := json.Unmarshal(optionsJSON, &item.Options); err != nil {
		return nil, fmt.Errorf("unmarshal options: %w", err)
	}
	return &item, nil
}

func (s *Store) MarkAnswered(itemID string, answer string, isCorrect bool) error {
	res, err := s.db.Exec(
		`UPDATE assessment_items SET user_answer = $1, is_correct = $2
		 WHERE id = $3 AND is_correct IS NULL`,
		answer, isCorrect, itemID,
	)
	if err != nil {
		return fmt.Errorf("mark answered: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark answered: %w", err)
	}
	if affected == 0 {
		return ErrNoPendingItem
	}
	return nil
}

// AnsweredHistory returns the (difficulty, correctness) pairs of every
// answered item, in presentation order. This is the estimator's input.
func (s *Store) AnsweredHistory(assessmentID string) ([]Response, error) {
	rows, err := s.db.Query(
		`SELECT difficulty, is_correct FROM assessment_items
		 WHERE assessment_id = $1 AND is_correct IS NOT NULL
		 ORDER BY position ASC`,
		assessmentID,
	)
	if err != nil {
		return nil, fmt.Errorf("answered history: %w", err)
	}
	defer rows.Close()

	var history []Response
	for rows.Next() {
		var r Response
		if err := rows.Scan(&r.Difficulty, &r.IsCorrect); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		history = append(history, r)
	}
	return history, rows.Err()
}

func (s *Store) CountCorrect(assessmentID string) (int, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM assessment_items WHERE assessment_id = $1 AND is_correct = TRUE`,
		assessmentID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count correct: %w", err)
	}
	return count, nil
}

// Items returns every presented item of the assessment in order.
func (s *Store) Items(assessmentID string) ([]models.AssessmentItem, error) {
	rows, err := s.db.Query(
		`SELECT id, assessment_id, position, difficulty, skill_tag, question, options,
		        correct_answer, user_answer, is_correct, created_at
		 FROM assessment_items
		 WHERE assessment_id = $1
		 ORDER BY position ASC`,
		assessmentID,
	)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var items []models.AssessmentItem
	for rows.Next() {
		var item models.AssessmentItem
		var optionsJSON []byte
		if err := rows.Scan(&item.ID, &item.AssessmentID, &item.Position, &item.Difficulty,
			&item.SkillTag, &item.Question, &optionsJSON, &item.CorrectAnswer,
			&item.UserAnswer, &item.IsCorrect, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		if err := json.Unmarshal(optionsJSON, &item.Options); err != nil {
			return nil, fmt.Errorf("unmarshal options: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Finalize records the terminal score and level. The guard on
// final_score keeps a terminal assessment immutable.
func (s *Store) Finalize(assessmentID string, finalScore float64, finalLevel string) error {
	res, err := s.db.Exec(
		`UPDATE assessments SET final_score = $1, final_level = $2, completed_at = NOW()
		 WHERE id = $3 AND final_score IS NULL`,
		finalScore, finalLevel, assessmentID,
	)
	if err != nil {
		return fmt.Errorf("finalize assessment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finalize assessment: %w", err)
	}
	if affected == 0 {
		return ErrAssessmentFinished
	}
	return nil
}
