package models

import "time"

type SkillTag string

const (
	SkillVocab   SkillTag = "vocab"
	SkillGrammar SkillTag = "grammar"
)

var ValidSkillTags = map[SkillTag]bool{
	SkillVocab:   true,
	SkillGrammar: true,
}

// CEFR proficiency bands. The placement scale tops out at C1.
const (
	LevelA1 = "A1"
	LevelA2 = "A2"
	LevelB1 = "B1"
	LevelB2 = "B2"
	LevelC1 = "C1"
)

// Assessment is one placement attempt for one user. It becomes terminal
// (FinalScore and FinalLevel set) after exactly TotalQuestions answered items.
type Assessment struct {
	ID             string     `json:"id"`
	UserID         int64      `json:"user_id"`
	TotalQuestions int        `json:"total_questions"`
	FinalScore     *float64   `json:"final_score,omitempty"`
	FinalLevel     *string    `json:"final_level,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// Finished reports whether the assessment has reached its terminal state.
func (a Assessment) Finished() bool {
	return a.FinalScore != nil
}

// AssessmentItem is one question as presented within an assessment.
// Options hold the shuffled order shown to the user; UserAnswer and
// IsCorrect stay nil until the item is answered.
type AssessmentItem struct {
	ID            string    `json:"id"`
	AssessmentID  string    `json:"assessment_id"`
	Position      int       `json:"position"`
	Difficulty    float64   `json:"difficulty"`
	SkillTag      SkillTag  `json:"skill_tag"`
	Question      string    `json:"question"`
	Options       []string  `json:"options"`
	CorrectAnswer string    `json:"correct_answer"`
	UserAnswer    *string   `json:"user_answer,omitempty"`
	IsCorrect     *bool     `json:"is_correct,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Answered reports whether the item has a recorded answer.
func (it AssessmentItem) Answered() bool {
	return it.IsCorrect != nil
}

// ── API Request/Response Types ────────────────────────────

// PlacementQuestion is the client-facing view of an item: the correct
// answer position is never exposed.
type PlacementQuestion struct {
	ID      string   `json:"id"`
	Content string   `json:"content"`
	Options []string `json:"options"`
	Current int      `json:"current"`
	Total   int      `json:"total"`
}

type StartPlacementResponse struct {
	AssessmentID string            `json:"assessmentId"`
	Question     PlacementQuestion `json:"question"`
}

type NextQuestionRequest struct {
	AssessmentID string `json:"assessmentId"`
	Answer       string `json:"answer"`
}

type NextQuestionResponse struct {
	Done         bool               `json:"done"`
	Question     *PlacementQuestion `json:"question,omitempty"`
	FinalScore   *float64           `json:"finalScore,omitempty"`
	FinalLevel   *string            `json:"finalLevel,omitempty"`
	AssessmentID string             `json:"assessmentId"`
}

type PlacementStatusResponse struct {
	HasFinishedTest bool    `json:"hasFinishedTest"`
	Level           *string `json:"level,omitempty"`
	HasProfile      bool    `json:"hasProfile"`
}

// ResultItem is one row of the reviewable history: unlike
// PlacementQuestion it includes the correct and submitted answers.
type ResultItem struct {
	Index         int      `json:"index"`
	ID            string   `json:"id"`
	Difficulty    float64  `json:"difficulty"`
	SkillTag      SkillTag `json:"skillTag"`
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correctAnswer"`
	UserAnswer    *string  `json:"userAnswer,omitempty"`
	IsCorrect     *bool    `json:"isCorrect,omitempty"`
}

type PlacementResultResponse struct {
	AssessmentID string       `json:"assessmentId"`
	FinalScore   *float64     `json:"finalScore,omitempty"`
	FinalLevel   *string      `json:"finalLevel,omitempty"`
	Theta        float64      `json:"theta"`
	Total        int          `json:"total"`
	Correct      int          `json:"correct"`
	Items        []ResultItem `json:"items"`
}
