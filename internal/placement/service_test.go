package placement

import (
	"context"
	"errors"
	"fmt"
	"math"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/miquangngwork/english-blossom2/internal/generator"
	"github.com/miquangngwork/english-blossom2/internal/models"
)

// ── In-memory fakes ─────────────────────────────────────

type fakeStore struct {
	mu          sync.Mutex
	seq         int
	assessments []*models.Assessment
	items       map[string][]*models.AssessmentItem
}

func newFakeStore() *fakeStore {
	return &fakeStore{items: make(map[string][]*models.AssessmentItem)}
}

func (f *fakeStore) DeleteUnfinished(userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.assessments[:0]
	for _, a := range f.assessments {
		if a.UserID == userID && a.FinalScore == nil {
			delete(f.items, a.ID)
			continue
		}
		kept = append(kept, a)
	}
	f.assessments = kept
	return nil
}

func (f *fakeStore) CreateAssessment(userID int64, totalQuestions int) (*models.Assessment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	a := &models.Assessment{
		ID:             fmt.Sprintf("assessment-%d", f.seq),
		UserID:         userID,
		TotalQuestions: totalQuestions,
		CreatedAt:      time.Now(),
	}
	f.assessments = append(f.assessments, a)
	return copyAssessment(a), nil
}

func (f *fakeStore) GetAssessment(assessmentID string) (*models.Assessment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.assessments {
		if a.ID == assessmentID {
			return copyAssessment(a), nil
		}
	}
	return nil, nil
}

func (f *fakeStore) LatestFinished(userID int64) (*models.Assessment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.assessments) - 1; i >= 0; i-- {
		a := f.assessments[i]
		if a.UserID == userID && a.FinalScore != nil {
			return copyAssessment(a), nil
		}
	}
	return nil, nil
}

func (f *fakeStore) InsertItem(assessmentID string, difficulty float64, skillTag models.SkillTag, question string, options []string, correctAnswer string) (*models.AssessmentItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	item := &models.AssessmentItem{
		ID:            fmt.Sprintf("item-%d", f.seq),
		AssessmentID:  assessmentID,
		Position:      len(f.items[assessmentID]) + 1,
		Difficulty:    difficulty,
		SkillTag:      skillTag,
		Question:      question,
		Options:       options,
		CorrectAnswer: correctAnswer,
		CreatedAt:     time.Now(),
	}
	f.items[assessmentID] = append(f.items[assessmentID], item)
	return copyItem(item), nil
}

func (f *fakeStore) LatestItem(assessmentID string) (*models.AssessmentItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := f.items[assessmentID]
	if len(items) == 0 {
		return nil, nil
	}
	return copyItem(items[len(items)-1]), nil
}

func (f *fakeStore) MarkAnswered(itemID string, answer string, isCorrect bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, items := range f.items {
		for _, item := range items {
			if item.ID == itemID {
				if item.IsCorrect != nil {
					return ErrNoPendingItem
				}
				item.UserAnswer = &answer
				item.IsCorrect = &isCorrect
				return nil
			}
		}
	}
	return ErrNoPendingItem
}

func (f *fakeStore) AnsweredHistory(assessmentID string) ([]Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var history []Response
	for _, item := range f.items[assessmentID] {
		if item.IsCorrect != nil {
			history = append(history, Response{Difficulty: item.Difficulty, IsCorrect: *item.IsCorrect})
		}
	}
	return history, nil
}

func (f *fakeStore) CountCorrect(assessmentID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, item := range f.items[assessmentID] {
		if item.IsCorrect != nil && *item.IsCorrect {
			count++
		}
	}
	return count, nil
}

func (f *fakeStore) Items(assessmentID string) ([]models.AssessmentItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.AssessmentItem
	for _, item := range f.items[assessmentID] {
		out = append(out, *copyItem(item))
	}
	return out, nil
}

func (f *fakeStore) Finalize(assessmentID string, finalScore float64, finalLevel string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.assessments {
		if a.ID == assessmentID {
			if a.FinalScore != nil {
				return ErrAssessmentFinished
			}
			now := time.Now()
			a.FinalScore = &finalScore
			a.FinalLevel = &finalLevel
			a.CompletedAt = &now
			return nil
		}
	}
	return ErrAssessmentNotFound
}

func copyAssessment(a *models.Assessment) *models.Assessment {
	c := *a
	return &c
}

func copyItem(item *models.AssessmentItem) *models.AssessmentItem {
	c := *item
	c.Options = append([]string(nil), item.Options...)
	return &c
}

// fakeSource hands out valid items whose correct answer is always the
// literal "correct", so tests can steer correctness by answer string.
type fakeSource struct {
	mu    sync.Mutex
	calls int
	next  *generator.Item
	err   error
}

func (f *fakeSource) GenerateItem(ctx context.Context, difficulty float64) (*generator.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.next != nil {
		return f.next, nil
	}
	return &generator.Item{
		Question:      fmt.Sprintf("Question %d at difficulty %.1f: pick _____.", f.calls, difficulty),
		Options:       []string{"correct", "wrong one", "wrong two", "wrong three"},
		CorrectAnswer: "correct",
		SkillTag:      models.SkillVocab,
	}, nil
}

type fakeProfiles struct {
	mu       sync.Mutex
	levels   map[int64]string
	surveyed bool
	setErr   error
}

func newFakeProfiles() *fakeProfiles {
	return &fakeProfiles{levels: make(map[int64]string)}
}

func (f *fakeProfiles) SetLevel(userID int64, level string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return f.setErr
	}
	f.levels[userID] = level
	return nil
}

func (f *fakeProfiles) HasCompletedSurvey(userID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.surveyed, nil
}

func newTestService(t *testing.T, total int, source ItemSource, profiles ProfileStore) (*Service, *fakeStore) {
	t.Helper()
	t.Setenv("PLACEMENT_TOTAL_QUESTIONS", fmt.Sprintf("%d", total))
	store := newFakeStore()
	return NewService(store, source, profiles), store
}

// ── Tests ───────────────────────────────────────────────

func TestStartPresentsFirstQuestion(t *testing.T) {
	svc, store := newTestService(t, 5, &fakeSource{}, newFakeProfiles())

	resp, err := svc.Start(context.Background(), 1)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	if resp.Question.Current != 1 || resp.Question.Total != 5 {
		t.Errorf("question index = %d/%d, want 1/5", resp.Question.Current, resp.Question.Total)
	}
	if len(resp.Question.Options) != 4 {
		t.Errorf("expected 4 options, got %d", len(resp.Question.Options))
	}

	item, err := store.LatestItem(resp.AssessmentID)
	if err != nil || item == nil {
		t.Fatalf("no persisted item (err=%v)", err)
	}
	if item.Difficulty != SeedDifficulty {
		t.Errorf("first item difficulty = %f, want %f", item.Difficulty, SeedDifficulty)
	}
	if !containsOption(item.Options, item.CorrectAnswer) {
		t.Errorf("persisted item's correct answer %q not among options %v", item.CorrectAnswer, item.Options)
	}
}

func TestStartSupersedesUnfinishedAssessment(t *testing.T) {
	svc, _ := newTestService(t, 5, &fakeSource{}, newFakeProfiles())

	first, err := svc.Start(context.Background(), 1)
	if err != nil {
		t.Fatalf("first Start: %v", err)
	}
	second, err := svc.Start(context.Background(), 1)
	if err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if first.AssessmentID == second.AssessmentID {
		t.Fatal("second Start reused the first assessment")
	}

	// The first session is voided and no longer advanceable.
	_, err = svc.SubmitAnswer(context.Background(), 1, first.AssessmentID, "correct")
	if !errors.Is(err, ErrAssessmentNotFound) {
		t.Errorf("submit to voided assessment: err = %v, want ErrAssessmentNotFound", err)
	}

	// The second one is.
	resp, err := svc.SubmitAnswer(context.Background(), 1, second.AssessmentID, "correct")
	if err != nil {
		t.Fatalf("submit to active assessment: %v", err)
	}
	if resp.Done {
		t.Error("assessment finished after a single answer")
	}
}

func TestSubmitAnswerAdvancesUntilTerminal(t *testing.T) {
	svc, store := newTestService(t, 3, &fakeSource{}, newFakeProfiles())

	start, err := svc.Start(context.Background(), 7)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	answers := []string{"correct", "wrong one", "correct"}
	var last *models.NextQuestionResponse
	for i, answer := range answers {
		last, err = svc.SubmitAnswer(context.Background(), 7, start.AssessmentID, answer)
		if err != nil {
			t.Fatalf("submit %d: %v", i+1, err)
		}
		wantDone := i == len(answers)-1
		if last.Done != wantDone {
			t.Fatalf("submit %d: done = %v, want %v", i+1, last.Done, wantDone)
		}
		if !last.Done && last.Question.Current != i+2 {
			t.Errorf("submit %d: current = %d, want %d", i+1, last.Question.Current, i+2)
		}
	}

	if last.FinalScore == nil || math.Abs(*last.FinalScore-200.0/3.0) > 1e-9 {
		t.Errorf("final score = %v, want 66.67", last.FinalScore)
	}
	if last.FinalLevel == nil || *last.FinalLevel == "" {
		t.Error("final level missing on terminal response")
	}

	items, _ := store.Items(start.AssessmentID)
	if len(items) != 3 {
		t.Errorf("persisted items = %d, want exactly total (3)", len(items))
	}

	// A terminal assessment rejects further answers without mutating.
	_, err = svc.SubmitAnswer(context.Background(), 7, start.AssessmentID, "correct")
	if !errors.Is(err, ErrAssessmentFinished) {
		t.Errorf("submit after terminal: err = %v, want ErrAssessmentFinished", err)
	}
	itemsAfter, _ := store.Items(start.AssessmentID)
	if len(itemsAfter) != 3 {
		t.Errorf("terminal assessment gained items: %d", len(itemsAfter))
	}
}

func TestPerfectRunScoresHundredAndTopsOut(t *testing.T) {
	profiles := newFakeProfiles()
	svc, _ := newTestService(t, 30, &fakeSource{}, profiles)

	start, err := svc.Start(context.Background(), 2)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	var resp *models.NextQuestionResponse
	for i := 0; i < 30; i++ {
		resp, err = svc.SubmitAnswer(context.Background(), 2, start.AssessmentID, "correct")
		if err != nil {
			t.Fatalf("submit %d: %v", i+1, err)
		}
	}

	if !resp.Done {
		t.Fatal("assessment not terminal after 30 answers")
	}
	if *resp.FinalScore != 100 {
		t.Errorf("final score = %f, want 100", *resp.FinalScore)
	}
	if *resp.FinalLevel != "C1" {
		t.Errorf("final level = %q, want C1", *resp.FinalLevel)
	}
	if profiles.levels[2] != "C1" {
		t.Errorf("profile level = %q, want C1", profiles.levels[2])
	}

	result, err := svc.Result(2, start.AssessmentID)
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if result.Theta != 9.0 {
		t.Errorf("theta = %f, want the upper clamp 9.0", result.Theta)
	}
	if result.Correct != 30 || result.Total != 30 {
		t.Errorf("correct/total = %d/%d, want 30/30", result.Correct, result.Total)
	}
}

func TestProfileWriteFailureIsSurfacedAfterFinalize(t *testing.T) {
	profiles := newFakeProfiles()
	profiles.setErr = errors.New("profiles table unavailable")
	svc, _ := newTestService(t, 1, &fakeSource{}, profiles)

	start, err := svc.Start(context.Background(), 1)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	_, err = svc.SubmitAnswer(context.Background(), 1, start.AssessmentID, "correct")
	if err == nil {
		t.Fatal("expected the profile write failure to surface")
	}

	// The assessment itself is already terminal; the result survives.
	result, err := svc.Result(1, start.AssessmentID)
	if err != nil {
		t.Fatalf("Result after profile failure: %v", err)
	}
	if result.FinalScore == nil || *result.FinalScore != 100 {
		t.Errorf("final score = %v, want 100", result.FinalScore)
	}
}

func TestSubmitWithNoPendingItem(t *testing.T) {
	svc, store := newTestService(t, 5, &fakeSource{}, newFakeProfiles())

	start, err := svc.Start(context.Background(), 1)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Answer the pending item behind the service's back.
	item, _ := store.LatestItem(start.AssessmentID)
	if err := store.MarkAnswered(item.ID, "correct", true); err != nil {
		t.Fatalf("MarkAnswered: %v", err)
	}

	_, err = svc.SubmitAnswer(context.Background(), 1, start.AssessmentID, "correct")
	if !errors.Is(err, ErrNoPendingItem) {
		t.Errorf("err = %v, want ErrNoPendingItem", err)
	}
}

func TestInvalidSourceItemNeverPersisted(t *testing.T) {
	source := &fakeSource{next: &generator.Item{
		Question:      "Pick the _____ option.",
		Options:       []string{"alpha", "beta", "gamma", "delta"},
		CorrectAnswer: "omega", // not among options
		SkillTag:      models.SkillVocab,
	}}
	svc, store := newTestService(t, 5, source, newFakeProfiles())

	resp, err := svc.Start(context.Background(), 1)
	if err != nil {
		t.Fatalf("Start must still succeed via fallback: %v", err)
	}

	item, _ := store.LatestItem(resp.AssessmentID)
	if !containsOption(item.Options, item.CorrectAnswer) {
		t.Fatalf("persisted invalid item: correct answer %q, options %v", item.CorrectAnswer, item.Options)
	}
	fallback := generator.FallbackItem()
	if item.Question != fallback.Question {
		t.Errorf("expected fallback question, got %q", item.Question)
	}
}

func TestSourceFailureFallsBack(t *testing.T) {
	source := &fakeSource{err: errors.New("model overloaded")}
	svc, store := newTestService(t, 5, source, newFakeProfiles())

	resp, err := svc.Start(context.Background(), 1)
	if err != nil {
		t.Fatalf("Start must still succeed via fallback: %v", err)
	}

	item, _ := store.LatestItem(resp.AssessmentID)
	if item.Question != generator.FallbackItem().Question {
		t.Errorf("expected fallback question, got %q", item.Question)
	}
}

func TestResultIsIdempotentAndReportsMidTestTheta(t *testing.T) {
	svc, _ := newTestService(t, 5, &fakeSource{}, newFakeProfiles())

	start, err := svc.Start(context.Background(), 1)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := svc.SubmitAnswer(context.Background(), 1, start.AssessmentID, "correct"); err != nil {
		t.Fatalf("submit: %v", err)
	}

	first, err := svc.Result(1, start.AssessmentID)
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	second, err := svc.Result(1, start.AssessmentID)
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("Result is not idempotent between submits")
	}

	// One correct answer at the seed difficulty.
	if math.Abs(first.Theta-3.57375) > 1e-9 {
		t.Errorf("mid-test theta = %f, want 3.57375", first.Theta)
	}
	if first.Total != 2 || first.Correct != 1 {
		t.Errorf("total/correct = %d/%d, want 2/1", first.Total, first.Correct)
	}
	if first.FinalScore != nil || first.FinalLevel != nil {
		t.Error("mid-test result must not carry final score/level")
	}
}

func TestResultHidesOtherUsersAssessments(t *testing.T) {
	svc, _ := newTestService(t, 5, &fakeSource{}, newFakeProfiles())

	start, err := svc.Start(context.Background(), 1)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	if _, err := svc.Result(99, start.AssessmentID); !errors.Is(err, ErrNoResult) {
		t.Errorf("foreign result: err = %v, want ErrNoResult", err)
	}
}

func TestStatusReflectsCompletionAndSurvey(t *testing.T) {
	profiles := newFakeProfiles()
	svc, _ := newTestService(t, 2, &fakeSource{}, profiles)

	status, err := svc.Status(1)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.HasFinishedTest || status.HasProfile || status.Level != nil {
		t.Errorf("fresh user status = %+v, want all empty", status)
	}

	start, _ := svc.Start(context.Background(), 1)
	for i := 0; i < 2; i++ {
		if _, err := svc.SubmitAnswer(context.Background(), 1, start.AssessmentID, "correct"); err != nil {
			t.Fatalf("submit %d: %v", i+1, err)
		}
	}
	profiles.surveyed = true

	status, err = svc.Status(1)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !status.HasFinishedTest || !status.HasProfile {
		t.Errorf("finished user status = %+v", status)
	}
	if status.Level == nil || *status.Level == "" {
		t.Error("finished user status missing level")
	}
}

func TestConcurrentSubmitsRecordOneAnswerPerItem(t *testing.T) {
	svc, store := newTestService(t, 10, &fakeSource{}, newFakeProfiles())

	start, err := svc.Start(context.Background(), 1)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	var wg sync.WaitGroup
	succeeded := make(chan bool, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.SubmitAnswer(context.Background(), 1, start.AssessmentID, "correct")
			succeeded <- err == nil
		}()
	}
	wg.Wait()
	close(succeeded)

	wins := 0
	for ok := range succeeded {
		if ok {
			wins++
		}
	}

	history, _ := store.AnsweredHistory(start.AssessmentID)
	if len(history) != wins {
		t.Errorf("answered items = %d but successful submits = %d", len(history), wins)
	}
	items, _ := store.Items(start.AssessmentID)
	if len(items) != wins+1 {
		t.Errorf("presented items = %d, want %d (one pending per successful submit)", len(items), wins+1)
	}
}

func containsOption(options []string, answer string) bool {
	for _, opt := range options {
		if opt == answer {
			return true
		}
	}
	return false
}
