package generator

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/miquangngwork/english-blossom2/internal/models"
)

// Item is one generated multiple-choice question as produced by the LLM.
// Options arrive in generation order; the placement service shuffles them
// before anything is persisted or shown.
type Item struct {
	Question      string          `json:"question"`
	Options       []string        `json:"options"`
	CorrectAnswer string          `json:"correctAnswer"`
	SkillTag      models.SkillTag `json:"skillTag"`
}

type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", strings.Join(e.Errors, "; "))
}

// ParseItem turns a raw LLM response into a validated Item. All shape
// checking happens here, at the boundary: callers can rely on a returned
// Item having a non-empty question, exactly 4 distinct options, a correct
// answer that is one of them, and a known skill tag.
func ParseItem(responseBody string) (*Item, error) {
	cleaned := stripCodeFences(responseBody)

	var item Item
	if err := json.Unmarshal([]byte(cleaned), &item); err != nil {
		return nil, fmt.Errorf("failed to parse JSON response: %w", err)
	}

	if item.SkillTag == "" {
		item.SkillTag = models.SkillVocab
	}

	if err := ValidateItem(&item); err != nil {
		return nil, err
	}

	return &item, nil
}

// ValidateItem checks the structural invariants every presented item must
// satisfy. The service also runs it on items from custom sources so an
// invalid item can never reach the store.
func ValidateItem(item *Item) error {
	var errs []string

	if strings.TrimSpace(item.Question) == "" {
		errs = append(errs, "empty question")
	}

	if len(item.Options) != 4 {
		errs = append(errs, fmt.Sprintf("expected 4 options, got %d", len(item.Options)))
	} else {
		seen := make(map[string]bool, 4)
		for i, opt := range item.Options {
			if strings.TrimSpace(opt) == "" {
				errs = append(errs, fmt.Sprintf("option %d is empty", i+1))
				continue
			}
			key := strings.ToLower(strings.TrimSpace(opt))
			if seen[key] {
				errs = append(errs, fmt.Sprintf("duplicate option %q", opt))
			}
			seen[key] = true
		}

		found := false
		for _, opt := range item.Options {
			if opt == item.CorrectAnswer {
				found = true
				break
			}
		}
		if !found {
			errs = append(errs, fmt.Sprintf("correct answer %q not among options", item.CorrectAnswer))
		}
	}

	if !models.ValidSkillTags[item.SkillTag] {
		errs = append(errs, fmt.Sprintf("invalid skill tag %q", item.SkillTag))
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}

	return nil
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```json") {
		s = strings.TrimSpace(strings.TrimPrefix(s, "```json"))
	} else if strings.HasPrefix(s, "```") {
		s = strings.TrimSpace(strings.TrimPrefix(s, "```"))
	}
	if strings.HasSuffix(s, "```") {
		s = strings.TrimSpace(strings.TrimSuffix(s, "```"))
	}
	return s
}

// FallbackItem returns the hardcoded item substituted when generation
// fails, so a placement session can always progress. Fresh copy per call:
// the caller shuffles Options in place.
func FallbackItem() *Item {
	return &Item{
		Question:      "The view from the top of the mountain was _____.",
		Options:       []string{"breathtaking", "breathless", "breathing", "breath"},
		CorrectAnswer: "breathtaking",
		SkillTag:      models.SkillVocab,
	}
}
