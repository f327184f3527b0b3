// Package api provides HTTP handlers for the LOS dashboard API.
//
//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"encoding/json"
	"hash/fnv"
	"net/http"
	"sync"

	"github.com/lifeos/los-coach/internal/fixtures"
	"github.com/lifeos/los-coach/internal/store"
)

// Handler provides common handler dependencies.
type Handler struct {
	repo store.Repository
	seed *fixtures.Seed

	// profileLocks serializes read-modify-write on one user's profile.
	// Users share a fixed set of stripes.
	profileLocks [profileLockStripes]sync.Mutex
}

const profileLockStripes = 64

// NewHandler creates a new Handler with common dependencies.
func NewHandler(repo store.Repository, seed *fixtures.Seed) *Handler {
	return &Handler{repo: repo, seed: seed}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

func (h *Handler) lockProfile(userID string) func() {
	mu := &h.profileLocks[profileLockStripe(userID)]
	mu.Lock()
	return mu.Unlock
}

func profileLockStripe(userID string) uint32 {
	f := fnv.New32a()
	_, _ = f.Write([]byte(userID))
	return f.Sum32() % profileLockStripes
}
