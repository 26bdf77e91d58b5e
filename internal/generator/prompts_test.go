package generator

import (
	"strings"
	"testing"
)

func TestDifficultyToLevel(t *testing.T) {
	tests := []struct {
		difficulty float64
		want       string
	}{
		{1.0, "A1"},
		{2.0, "A1"},
		{2.4, "A1"}, // rounds to 2
		{2.5, "A2"}, // rounds to 3
		{3.0, "A2"},
		{4.0, "A2"},
		{4.6, "B1"},
		{5.0, "B1"},
		{6.0, "B1"},
		{7.0, "B2"},
		{8.0, "B2"},
		{8.5, "C1"},
		{9.0, "C1"},
		{0.0, "A1"},  // clamped to floor
		{-3.0, "A1"},
		{12.0, "C1"}, // clamped to ceiling
	}

	for _, tt := range tests {
		got := DifficultyToLevel(tt.difficulty)
		if got != tt.want {
			t.Errorf("DifficultyToLevel(%f) = %q, want %q", tt.difficulty, got, tt.want)
		}
	}
}

func TestBuildPlacementPrompt(t *testing.T) {
	prompt := BuildPlacementPrompt("B2")

	if !strings.Contains(prompt, "Level B2") {
		t.Error("prompt does not mention the requested level")
	}
	if !strings.Contains(prompt, "JSON ONLY") {
		t.Error("prompt does not demand JSON output")
	}
	if !strings.Contains(prompt, "correctAnswer") {
		t.Error("prompt does not describe the expected schema")
	}
	if !strings.Contains(prompt, "4 distinct options") {
		t.Error("prompt does not pin the option count")
	}
}
