package coach

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/lifeos/los-coach/internal/api"
	"github.com/lifeos/los-coach/internal/config"
	"github.com/lifeos/los-coach/internal/domain"
	"github.com/lifeos/los-coach/internal/identity"
	"github.com/lifeos/los-coach/internal/store"
)

const (
	// maxRequestBodySize bounds the whole JSON body, inline context included.
	maxRequestBodySize = 1 << 20

	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// ChatRequest is the body of POST /api/coach/chat. Context, when present,
// replaces the stored profile for this one call.
type ChatRequest struct {
	Message string                  `json:"message"`
	Context *domain.ContextSnapshot `json:"context,omitempty"`
}

// ChatResponse is returned for every accepted chat request, including
// fallback replies.
type ChatResponse struct {
	Reply      string `json:"reply"`
	ExchangeID string `json:"exchange_id"`
}

// Handler serves the coach HTTP endpoints.
type Handler struct {
	coach           *Service
	repo            store.Repository
	rateLimiter     *RateLimiter
	log             ConversationLogger
	maxMessageBytes int
	stop            context.CancelFunc
}

// NewHandler wires the coach service to HTTP. cl may be nil.
func NewHandler(svc *Service, repo store.Repository, cl ConversationLogger, cfg *config.Config) *Handler {
	requests, window := 10, time.Minute
	maxMessage := 8 << 10
	if cfg != nil {
		requests, window = cfg.RateLimit.RequestsPerWindow, cfg.RateLimit.WindowDuration
		maxMessage = int(cfg.Coach.MaxMessageBytes)
	}
	if cl == nil {
		cl = noopConversationLogger{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	limiter := NewRateLimiter(requests, window)
	limiter.StartEviction(ctx)

	return &Handler{
		coach:           svc,
		repo:            repo,
		rateLimiter:     limiter,
		log:             cl,
		maxMessageBytes: maxMessage,
		stop:            cancel,
	}
}

// RegisterRoutes registers coach routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/coach", func(r chi.Router) {
		r.Post("/chat", h.HandleChat)
		r.Get("/history", h.HandleHistory)
		r.Delete("/history", h.HandleClearHistory)
	})
}

// Close stops background work and flushes the conversation log.
func (h *Handler) Close() {
	h.stop()
	if err := h.log.Close(); err != nil {
		slog.Warn("failed to close conversation logger", "error", err)
	}
}

// HandleChat handles POST /api/coach/chat.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	if userID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if !h.rateLimiter.Allow(rateLimitKey(r, userID)) {
		api.Error(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			api.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	message := strings.TrimSpace(req.Message)
	if message == "" {
		api.Error(w, http.StatusBadRequest, "message is required")
		return
	}
	if len(message) > h.maxMessageBytes {
		api.Error(w, http.StatusRequestEntityTooLarge, "message too long")
		return
	}

	var snap domain.ContextSnapshot
	if req.Context != nil {
		if err := validateSnapshot(*req.Context); err != nil {
			api.Error(w, http.StatusBadRequest, err.Error())
			return
		}
		snap = *req.Context
	} else {
		profile, err := h.repo.GetProfile(r.Context(), userID)
		if err != nil {
			slog.Error("Failed to load profile for coach", "error", err, "user_id", userID)
			api.Error(w, http.StatusInternalServerError, "failed to load profile")
			return
		}
		if profile == nil {
			api.Error(w, http.StatusNotFound, "profile not found")
			return
		}
		snap = profile.Snapshot()
	}

	reqID := chiMiddleware.GetReqID(r.Context())
	slog.Info("Coach chat request",
		"user_id", userID,
		"session_id", sessionID,
		"client_ip", identity.IPFromRequest(r),
		"message_length", len(message),
		"inline_context", req.Context != nil,
	)
	h.logMessage(userID, sessionID, "inbound", "chat_user_message", message, map[string]any{
		"request_id": reqID,
	})

	start := time.Now()
	reply, outcome := h.coach.RespondWithOutcome(r.Context(), message, snap)

	exchange := &domain.Exchange{
		ID:        uuid.NewString(),
		UserID:    userID,
		SessionID: sessionID,
		Message:   message,
		Reply:     reply.Text,
		Outcome:   outcome,
		CreatedAt: time.Now(),
	}
	// A transcript write failure must not cost the user their reply.
	if err := h.repo.AppendExchange(r.Context(), exchange); err != nil {
		slog.Warn("Failed to record coach exchange", "error", err, "user_id", userID, "exchange_id", exchange.ID)
	}

	h.logMessage(userID, sessionID, "outbound", "chat_assistant_message", reply.Text, map[string]any{
		"request_id":  reqID,
		"exchange_id": exchange.ID,
		"outcome":     outcome,
		"duration_ms": time.Since(start).Milliseconds(),
	})

	api.JSON(w, http.StatusOK, ChatResponse{Reply: reply.Text, ExchangeID: exchange.ID})
}

// HandleHistory handles GET /api/coach/history?limit=N.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			api.Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	exchanges, err := h.repo.ListExchanges(r.Context(), userID, limit)
	if err != nil {
		slog.Error("Failed to list coach history", "error", err, "user_id", userID)
		api.Error(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	if exchanges == nil {
		exchanges = []*domain.Exchange{}
	}
	api.JSON(w, http.StatusOK, map[string]any{"exchanges": exchanges})
}

// HandleClearHistory handles DELETE /api/coach/history.
func (h *Handler) HandleClearHistory(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	n, err := h.repo.DeleteExchanges(r.Context(), userID)
	if err != nil {
		slog.Error("Failed to clear coach history", "error", err, "user_id", userID)
		api.Error(w, http.StatusInternalServerError, "failed to clear history")
		return
	}
	slog.Info("Coach history cleared", "user_id", userID, "deleted", n)
	api.JSON(w, http.StatusOK, map[string]any{"deleted": n})
}

// rateLimitKey keys throttling by user, never by user:session, so rotating
// session IDs does not help. A request without a device cookie gets a new
// user ID every time, so those are keyed by client address instead.
func rateLimitKey(r *http.Request, userID string) string {
	if identity.IsMintedFromContext(r.Context()) {
		return "ip:" + identity.IPFromRequest(r)
	}
	return "user:" + userID
}

// validateSnapshot applies the profile rules to a context sent inline.
func validateSnapshot(snap domain.ContextSnapshot) error {
	for i, s := range snap.Skills {
		if strings.TrimSpace(s.Name) == "" {
			return fmt.Errorf("context.skills[%d]: name is required", i)
		}
		if !s.Status.Valid() {
			return fmt.Errorf("context.skills[%d]: invalid status %q", i, s.Status)
		}
	}
	for i, g := range snap.Goals {
		if strings.TrimSpace(g.Title) == "" {
			return fmt.Errorf("context.goals[%d]: title is required", i)
		}
		if err := domain.ValidateProgress(g.Progress); err != nil {
			return fmt.Errorf("context.goals[%d]: %w", i, err)
		}
	}
	return nil
}

func (h *Handler) logMessage(userID, sessionID, direction, eventType, content string, meta map[string]any) {
	h.log.Log(ConversationLogEvent{
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		UserID:     userID,
		SessionID:  sessionID,
		Channel:    "chat_http",
		Direction:  direction,
		EventType:  eventType,
		ContentRaw: content,
		Content:    cleanForReadability(content),
		Meta:       meta,
	})
}
