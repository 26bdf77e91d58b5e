package profile

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/miquangngwork/english-blossom2/internal/models"
)

// UserStore looks up the account behind an authenticated request.
// Implemented by auth.Store.
type UserStore interface {
	GetUserByID(userID int64) (*models.User, error)
}

type Handler struct {
	store *Store
	users UserStore
}

func NewHandler(store *Store, users UserStore) *Handler {
	return &Handler{store: store, users: users}
}

func getUserID(r *http.Request) (int64, bool) {
	uid, ok := r.Context().Value("user_id").(int64)
	return uid, ok
}

// Survey stores the onboarding answers. At least one interest is
// required; goal falls back to the registration default.
func (h *Handler) Survey(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}

	var req models.SurveyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}

	interests := make([]string, 0, len(req.Interests))
	for _, interest := range req.Interests {
		if trimmed := strings.TrimSpace(interest); trimmed != "" {
			interests = append(interests, trimmed)
		}
	}
	if len(interests) == 0 {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "At least one interest is required"})
		return
	}

	goal := strings.TrimSpace(req.Goal)
	if goal == "" {
		goal = defaultGoal
	}

	var occupation *string
	if trimmed := strings.TrimSpace(req.Occupation); trimmed != "" {
		occupation = &trimmed
	}

	if err := h.store.SubmitSurvey(userID, interests, goal, occupation); err != nil {
		log.Printf("[profile] survey error for user %d: %v", userID, err)
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to save survey"})
		return
	}

	writeJSON(w, http.StatusOK, models.SurveyResponse{Message: "Profile updated"})
}

// Me returns the authenticated user with their profile, if any.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}

	user, err := h.users.GetUserByID(userID)
	if err != nil {
		log.Printf("[profile] user lookup error for user %d: %v", userID, err)
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to load account"})
		return
	}
	if user == nil {
		writeJSON(w, http.StatusNotFound, models.ErrorResponse{Error: "User not found"})
		return
	}

	p, err := h.store.Get(userID)
	if err != nil {
		log.Printf("[profile] profile lookup error for user %d: %v", userID, err)
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to load profile"})
		return
	}

	writeJSON(w, http.StatusOK, models.MeResponse{User: *user, Profile: p})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
