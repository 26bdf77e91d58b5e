package placement

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"os"
	"strconv"
	"sync"

	"github.com/miquangngwork/english-blossom2/internal/generator"
	"github.com/miquangngwork/english-blossom2/internal/models"
)

// Usage errors: the request is wrong, the assessment is left untouched.
var (
	ErrAssessmentNotFound = errors.New("assessment not found")
	ErrAssessmentFinished = errors.New("assessment already finished")
	ErrNoPendingItem      = errors.New("no pending item to answer")
	ErrNoResult           = errors.New("no placement result available")
)

// ItemStore is the persistence boundary for assessments and their items.
// Implemented by Store; faked in tests.
type ItemStore interface {
	DeleteUnfinished(userID int64) error
	CreateAssessment(userID int64, totalQuestions int) (*models.Assessment, error)
	GetAssessment(assessmentID string) (*models.Assessment, error)
	LatestFinished(userID int64) (*models.Assessment, error)
	InsertItem(assessmentID string, difficulty float64, skillTag models.SkillTag, question string, options []string, correctAnswer string) (*models.AssessmentItem, error)
	LatestItem(assessmentID string) (*models.AssessmentItem, error)
	MarkAnswered(itemID string, answer string, isCorrect bool) error
	AnsweredHistory(assessmentID string) ([]Response, error)
	CountCorrect(assessmentID string) (int, error)
	Items(assessmentID string) ([]models.AssessmentItem, error)
	Finalize(assessmentID string, finalScore float64, finalLevel string) error
}

// ItemSource produces one candidate question at a requested difficulty.
// Implemented by generator.Generator.
type ItemSource interface {
	GenerateItem(ctx context.Context, difficulty float64) (*generator.Item, error)
}

// ProfileStore receives the final level and answers the onboarding flag
// reported by status.
type ProfileStore interface {
	SetLevel(userID int64, level string) error
	HasCompletedSurvey(userID int64) (bool, error)
}

// Service runs placement sessions: it owns the continue-vs-terminate
// decision, item selection, grading, and the per-assessment locking that
// keeps grading and item creation atomic per session.
type Service struct {
	store          ItemStore
	source         ItemSource
	profiles       ProfileStore
	totalQuestions int
	locks          sessionLocks
}

func NewService(store ItemStore, source ItemSource, profiles ProfileStore) *Service {
	totalQuestions := 30
	if v := os.Getenv("PLACEMENT_TOTAL_QUESTIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			totalQuestions = n
		}
	}

	return &Service{
		store:          store,
		source:         source,
		profiles:       profiles,
		totalQuestions: totalQuestions,
		locks:          sessionLocks{m: make(map[string]*sync.Mutex)},
	}
}

// Start begins a new placement attempt. Any unfinished assessment the
// user has is voided first, so at most one is ever advanceable.
func (s *Service) Start(ctx context.Context, userID int64) (*models.StartPlacementResponse, error) {
	if err := s.store.DeleteUnfinished(userID); err != nil {
		return nil, fmt.Errorf("void unfinished assessments: %w", err)
	}

	assessment, err := s.store.CreateAssessment(userID, s.totalQuestions)
	if err != nil {
		return nil, fmt.Errorf("create assessment: %w", err)
	}

	item := s.fetchItem(ctx, SeedDifficulty)
	saved, err := s.store.InsertItem(assessment.ID, SeedDifficulty, item.SkillTag,
		item.Question, shuffledOptions(item.Options), item.CorrectAnswer)
	if err != nil {
		return nil, fmt.Errorf("persist first item: %w", err)
	}

	return &models.StartPlacementResponse{
		AssessmentID: assessment.ID,
		Question: models.PlacementQuestion{
			ID:      saved.ID,
			Content: saved.Question,
			Options: saved.Options,
			Current: 1,
			Total:   assessment.TotalQuestions,
		},
	}, nil
}

// SubmitAnswer grades the pending item, updates the ability estimate and
// either terminates the assessment or presents the next question.
//
// The per-assessment lock covers the two read-modify-write sections
// (grading, item insertion) but is released for the item-source round
// trip in between.
func (s *Service) SubmitAnswer(ctx context.Context, userID int64, assessmentID string, answer string) (*models.NextQuestionResponse, error) {
	mu := s.locks.get(assessmentID)
	mu.Lock()

	assessment, err := s.store.GetAssessment(assessmentID)
	if err != nil {
		mu.Unlock()
		return nil, err
	}
	if assessment == nil || assessment.UserID != userID {
		mu.Unlock()
		return nil, ErrAssessmentNotFound
	}
	if assessment.Finished() {
		mu.Unlock()
		return nil, ErrAssessmentFinished
	}

	last, err := s.store.LatestItem(assessmentID)
	if err != nil {
		mu.Unlock()
		return nil, err
	}
	if last == nil || last.Answered() {
		mu.Unlock()
		return nil, ErrNoPendingItem
	}

	isCorrect := last.CorrectAnswer == answer
	if err := s.store.MarkAnswered(last.ID, answer, isCorrect); err != nil {
		mu.Unlock()
		return nil, err
	}

	history, err := s.store.AnsweredHistory(assessmentID)
	if err != nil {
		mu.Unlock()
		return nil, err
	}

	theta := EstimateTheta(history)
	nextDifficulty := NextDifficulty(theta)
	answered := len(history)

	if answered >= assessment.TotalQuestions {
		correct, err := s.store.CountCorrect(assessmentID)
		if err != nil {
			mu.Unlock()
			return nil, err
		}

		finalScore := float64(correct) / float64(assessment.TotalQuestions) * 100
		finalLevel := ThetaToCEFR(theta)

		if err := s.store.Finalize(assessmentID, finalScore, finalLevel); err != nil {
			mu.Unlock()
			return nil, err
		}
		mu.Unlock()
		s.locks.forget(assessmentID)

		if err := s.profiles.SetLevel(userID, finalLevel); err != nil {
			return nil, fmt.Errorf("persist level %s for user %d: %w", finalLevel, userID, err)
		}

		return &models.NextQuestionResponse{
			Done:         true,
			FinalScore:   &finalScore,
			FinalLevel:   &finalLevel,
			AssessmentID: assessmentID,
		}, nil
	}

	// Item generation can be slow; don't hold the session lock across it.
	mu.Unlock()
	item := s.fetchItem(ctx, nextDifficulty)
	mu.Lock()
	defer mu.Unlock()

	// The session may have been superseded during the round trip.
	latest, err := s.store.LatestItem(assessmentID)
	if err != nil {
		return nil, err
	}
	if latest == nil || latest.ID != last.ID {
		return nil, ErrAssessmentNotFound
	}

	saved, err := s.store.InsertItem(assessmentID, nextDifficulty, item.SkillTag,
		item.Question, shuffledOptions(item.Options), item.CorrectAnswer)
	if err != nil {
		return nil, fmt.Errorf("persist next item: %w", err)
	}

	return &models.NextQuestionResponse{
		Done:         false,
		AssessmentID: assessmentID,
		Question: &models.PlacementQuestion{
			ID:      saved.ID,
			Content: saved.Question,
			Options: saved.Options,
			Current: answered + 1,
			Total:   assessment.TotalQuestions,
		},
	}, nil
}

// Status reports whether the user has a finished placement and whether
// they completed the onboarding survey. Read-only.
func (s *Service) Status(userID int64) (*models.PlacementStatusResponse, error) {
	completed, err := s.store.LatestFinished(userID)
	if err != nil {
		return nil, err
	}

	hasProfile, err := s.profiles.HasCompletedSurvey(userID)
	if err != nil {
		log.Printf("WARN: survey lookup failed for user %d: %v", userID, err)
		hasProfile = false
	}

	resp := &models.PlacementStatusResponse{
		HasFinishedTest: completed != nil,
		HasProfile:      hasProfile,
	}
	if completed != nil {
		resp.Level = completed.FinalLevel
	}
	return resp, nil
}

// Result returns the reviewable history of an assessment. With an empty
// assessmentID it falls back to the user's latest finished one. Theta is
// recomputed from whatever items are answered so far, so the result is
// meaningful mid-test too. Read-only and therefore idempotent.
func (s *Service) Result(userID int64, assessmentID string) (*models.PlacementResultResponse, error) {
	var assessment *models.Assessment
	var err error

	if assessmentID != "" {
		assessment, err = s.store.GetAssessment(assessmentID)
		if err != nil {
			return nil, err
		}
		if assessment != nil && assessment.UserID != userID {
			assessment = nil
		}
	} else {
		assessment, err = s.store.LatestFinished(userID)
		if err != nil {
			return nil, err
		}
	}
	if assessment == nil {
		return nil, ErrNoResult
	}

	items, err := s.store.Items(assessment.ID)
	if err != nil {
		return nil, err
	}

	resultItems := make([]models.ResultItem, 0, len(items))
	var history []Response
	correct := 0

	for i, item := range items {
		resultItems = append(resultItems, models.ResultItem{
			Index:         i + 1,
			ID:            item.ID,
			Difficulty:    item.Difficulty,
			SkillTag:      item.SkillTag,
			Question:      item.Question,
			Options:       item.Options,
			CorrectAnswer: item.CorrectAnswer,
			UserAnswer:    item.UserAnswer,
			IsCorrect:     item.IsCorrect,
		})

		if item.Answered() {
			history = append(history, Response{Difficulty: item.Difficulty, IsCorrect: *item.IsCorrect})
			if *item.IsCorrect {
				correct++
			}
		}
	}

	return &models.PlacementResultResponse{
		AssessmentID: assessment.ID,
		FinalScore:   assessment.FinalScore,
		FinalLevel:   assessment.FinalLevel,
		Theta:        EstimateTheta(history),
		Total:        len(items),
		Correct:      correct,
		Items:        resultItems,
	}, nil
}

// fetchItem asks the Item Source for a question and falls back to the
// hardcoded item on failure, so start/submit always completes. Items are
// re-validated here: whatever the source, nothing with a broken option
// set reaches the store.
func (s *Service) fetchItem(ctx context.Context, difficulty float64) *generator.Item {
	item, err := s.source.GenerateItem(ctx, difficulty)
	if err != nil {
		log.Printf("WARN: item source failed at difficulty %.1f, using fallback: %v", difficulty, err)
		return generator.FallbackItem()
	}
	if err := generator.ValidateItem(item); err != nil {
		log.Printf("WARN: item source returned invalid item at difficulty %.1f, using fallback: %v", difficulty, err)
		return generator.FallbackItem()
	}
	return item
}

// shuffledOptions returns a shuffled copy so the correct answer isn't
// always in the generated position.
func shuffledOptions(options []string) []string {
	shuffled := make([]string, len(options))
	copy(shuffled, options)
	rand.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	return shuffled
}

// sessionLocks hands out one mutex per assessment so concurrent submits
// against the same session serialize, while different sessions stay
// fully independent.
type sessionLocks struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

func (l *sessionLocks) get(id string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	if m, ok := l.m[id]; ok {
		return m
	}
	m := &sync.Mutex{}
	l.m[id] = m
	return m
}

// forget drops the lock of a terminal assessment; nothing mutates a
// finished session, so late lookups racing forget are harmless.
func (l *sessionLocks) forget(id string) {
	l.mu.Lock()
	delete(l.m, id)
	l.mu.Unlock()
}
