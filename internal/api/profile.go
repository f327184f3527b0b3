package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lifeos/los-coach/internal/domain"
	"github.com/lifeos/los-coach/internal/identity"
)

// ProfileResponse is the dashboard view of a profile.
type ProfileResponse struct {
	UserID    string            `json:"user_id"`
	Username  string            `json:"username"`
	Skills    []domain.Skill    `json:"skills"`
	Goals     []domain.Goal     `json:"goals"`
	ActiveLaw *domain.GrowthLaw `json:"active_law"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// maxRequestBodyBytes caps PUT bodies; both payloads are a single small field.
const maxRequestBodyBytes = 4 << 10

type activeLawRequest struct {
	Number int `json:"number"`
}

type progressRequest struct {
	Progress *int `json:"progress"`
}

// RegisterRoutes registers profile routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/profile", h.GetProfile)
		r.Put("/profile/active-law", h.SetActiveLaw)
		r.Put("/profile/goals/{id}/progress", h.SetGoalProgress)
		r.Get("/laws", h.ListLaws)
		r.Get("/context", h.GetContext)
	})
}

// GetProfile returns the current user's dashboard profile.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	profile, ok := h.loadProfile(w, r)
	if !ok {
		return
	}
	JSON(w, http.StatusOK, toProfileResponse(profile, identity.UsernameFromContext(r.Context())))
}

// ListLaws returns every growth law the user can focus on.
func (h *Handler) ListLaws(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]any{"laws": h.seed.Laws})
}

// GetContext returns the snapshot the coach would receive for this user.
func (h *Handler) GetContext(w http.ResponseWriter, r *http.Request) {
	profile, ok := h.loadProfile(w, r)
	if !ok {
		return
	}
	JSON(w, http.StatusOK, profile.Snapshot())
}

// SetActiveLaw changes the growth focus. Number 0 clears it.
func (h *Handler) SetActiveLaw(w http.ResponseWriter, r *http.Request) {
	var req activeLawRequest
	if !decodeBody(w, r, &req) {
		return
	}

	var law *domain.GrowthLaw
	if req.Number != 0 {
		l, found := h.seed.Law(req.Number)
		if !found {
			Error(w, http.StatusNotFound, "unknown growth law")
			return
		}
		law = &l
	}

	unlock := h.lockProfile(identity.UserIDFromContext(r.Context()))
	defer unlock()

	profile, ok := h.loadProfile(w, r)
	if !ok {
		return
	}
	profile.ActiveLaw = law
	h.saveProfile(w, r, profile)
}

// SetGoalProgress updates one goal's progress and derived status.
func (h *Handler) SetGoalProgress(w http.ResponseWriter, r *http.Request) {
	var req progressRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Progress == nil {
		Error(w, http.StatusBadRequest, "progress is required")
		return
	}
	if err := domain.ValidateProgress(*req.Progress); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	unlock := h.lockProfile(identity.UserIDFromContext(r.Context()))
	defer unlock()

	profile, ok := h.loadProfile(w, r)
	if !ok {
		return
	}
	goal := profile.Goal(chi.URLParam(r, "id"))
	if goal == nil {
		Error(w, http.StatusNotFound, "goal not found")
		return
	}
	if err := goal.SetProgress(*req.Progress); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	h.saveProfile(w, r, profile)
}

// decodeBody decodes a size-limited JSON body into v, writing the error
// response itself when it fails.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		Error(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (h *Handler) loadProfile(w http.ResponseWriter, r *http.Request) (*domain.Profile, bool) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return nil, false
	}
	profile, err := h.repo.GetProfile(r.Context(), userID)
	if err != nil {
		slog.Error("Failed to load profile", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "failed to load profile")
		return nil, false
	}
	if profile == nil {
		Error(w, http.StatusNotFound, "profile not found")
		return nil, false
	}
	return profile, true
}

func (h *Handler) saveProfile(w http.ResponseWriter, r *http.Request, profile *domain.Profile) {
	profile.UpdatedAt = time.Now()
	if err := h.repo.UpsertProfile(r.Context(), profile); err != nil {
		slog.Error("Failed to save profile", "error", err, "user_id", profile.UserID)
		Error(w, http.StatusInternalServerError, "failed to save profile")
		return
	}
	JSON(w, http.StatusOK, toProfileResponse(profile, identity.UsernameFromContext(r.Context())))
}

func toProfileResponse(p *domain.Profile, username string) ProfileResponse {
	return ProfileResponse{
		UserID:    p.UserID,
		Username:  username,
		Skills:    p.Skills,
		Goals:     p.Goals,
		ActiveLaw: p.ActiveLaw,
		UpdatedAt: p.UpdatedAt,
	}
}
