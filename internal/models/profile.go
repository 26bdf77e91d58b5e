package models

import "time"

// Profile holds learner preferences and the placement outcome. Every user
// gets one at registration with the floor level; the placement engine
// overwrites LevelCefr when an assessment finishes.
type Profile struct {
	UserID      int64     `json:"user_id"`
	LevelCefr   string    `json:"level_cefr"`
	Goal        string    `json:"goal"`
	Occupation  *string   `json:"occupation,omitempty"`
	Interests   []string  `json:"interests"`
	Timezone    string    `json:"timezone"`
	DailyTarget int       `json:"daily_target"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type SurveyRequest struct {
	Interests  []string `json:"interests"`
	Goal       string   `json:"goal"`
	Occupation string   `json:"occupation"`
}

type SurveyResponse struct {
	Message string `json:"message"`
}

type MeResponse struct {
	User    User     `json:"user"`
	Profile *Profile `json:"profile,omitempty"`
}
