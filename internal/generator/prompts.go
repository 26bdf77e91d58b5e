package generator

import (
	"fmt"
	"math"
)

// levelByDifficulty maps a rounded 1-9 difficulty to the CEFR band used
// to phrase the generation prompt. The final placement level is computed
// from theta in the placement package; this table only tunes the prompt.
var levelByDifficulty = map[int]string{
	1: "A1", 2: "A1",
	3: "A2", 4: "A2",
	5: "B1", 6: "B1",
	7: "B2", 8: "B2",
	9: "C1",
}

// DifficultyToLevel converts a continuous difficulty to the CEFR band
// requested from the LLM. Out-of-range input clamps to the scale.
func DifficultyToLevel(difficulty float64) string {
	rounded := int(math.Round(difficulty))
	if rounded < 1 {
		rounded = 1
	}
	if rounded > 9 {
		rounded = 9
	}
	return levelByDifficulty[rounded]
}

func PlacementSystemPrompt() string {
	return `You are an expert writer of English placement-test items. You produce single multiple-choice questions calibrated to a requested CEFR level. You always respond with a single JSON object and no other text.`
}

func BuildPlacementPrompt(level string) string {
	return fmt.Sprintf(`Generate ONE multiple-choice English question for Level %s.

STRICT REQUIREMENTS:
- FOCUS: 90%% Vocabulary (word choice, collocations, phrasal verbs in context), 10%% Grammar.
- TYPE: Fill-in-the-blank sentences where the user must choose the word that fits the meaning best.
- CONSTRAINT: Do NOT ask simple grammar rules like verb tenses unless the tense changes the meaning significantly.
- Provide exactly 4 distinct options. "correctAnswer" must exactly equal one of them.

OUTPUT FORMAT (JSON ONLY):
{
  "question": "The sentence with a _____ to fill.",
  "options": ["OptionA", "OptionB", "OptionC", "OptionD"],
  "correctAnswer": "OptionA",
  "skillTag": "vocab"
}

"skillTag" must be "vocab" or "grammar".`, level)
}
