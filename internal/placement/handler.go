package placement

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/miquangngwork/english-blossom2/internal/models"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// getUserID extracts the authenticated user ID from the request context.
func getUserID(r *http.Request) (int64, bool) {
	uid, ok := r.Context().Value("user_id").(int64)
	return uid, ok
}

func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}

	resp, err := h.service.Start(r.Context(), userID)
	if err != nil {
		log.Printf("[placement] start error for user %d: %v", userID, err)
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to start placement test"})
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) Next(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}

	var req models.NextQuestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}

	req.AssessmentID = strings.TrimSpace(req.AssessmentID)
	if req.AssessmentID == "" {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "assessmentId is required"})
		return
	}
	if req.Answer == "" {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "answer is required"})
		return
	}

	resp, err := h.service.SubmitAnswer(r.Context(), userID, req.AssessmentID, req.Answer)
	if err != nil {
		switch {
		case errors.Is(err, ErrAssessmentNotFound):
			writeJSON(w, http.StatusNotFound, models.ErrorResponse{Error: "Assessment not found"})
		case errors.Is(err, ErrAssessmentFinished), errors.Is(err, ErrNoPendingItem):
			writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		default:
			log.Printf("[placement] submit error for user %d: %v", userID, err)
			writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to process answer"})
		}
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}

	resp, err := h.service.Status(userID)
	if err != nil {
		log.Printf("[placement] status error for user %d: %v", userID, err)
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to get placement status"})
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) Result(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}

	assessmentID := strings.TrimSpace(r.URL.Query().Get("assessmentId"))

	resp, err := h.service.Result(userID, assessmentID)
	if err != nil {
		if errors.Is(err, ErrNoResult) {
			writeJSON(w, http.StatusNotFound, models.ErrorResponse{Error: "No placement result found"})
			return
		}
		log.Printf("[placement] result error for user %d: %v", userID, err)
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to get placement result"})
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
