package coach

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/lifeos/los-coach/internal/domain"
	"github.com/lifeos/los-coach/internal/identity"
)

// Fallback replies shown to the user instead of an error.
const (
	FallbackEmptyReply = "I'm having trouble connecting right now. Take a deep breath and stay focused on the vision."
	FallbackErrorReply = "I apologize, but I encountered an error. Let's try again in a moment."
)

// Service turns a message plus context into a coach reply. It holds no
// per-call state, so one Service is shared by all requests.
type Service struct {
	composer  Composer
	generator Generator
	events    ConversationLogger
	logger    *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the operator logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithConversationLogger sets the sink that receives failure events.
func WithConversationLogger(cl ConversationLogger) Option {
	return func(s *Service) {
		if cl != nil {
			s.events = cl
		}
	}
}

// NewService creates a coaching service around an already configured
// generator.
func NewService(generator Generator, composer Composer, opts ...Option) *Service {
	s := &Service{
		composer:  composer,
		generator: generator,
		events:    noopConversationLogger{},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Respond returns the coach's reply to message. It never fails: provider
// errors and blank completions become fixed fallback replies. Callers are
// expected to reject blank messages before calling.
func (s *Service) Respond(ctx context.Context, message string, snap domain.ContextSnapshot) domain.CoachReply {
	reply, _ := s.RespondWithOutcome(ctx, message, snap)
	return reply
}

// RespondWithOutcome is Respond plus the path that produced the reply.
func (s *Service) RespondWithOutcome(ctx context.Context, message string, snap domain.ContextSnapshot) (domain.CoachReply, domain.ExchangeOutcome) {
	req := s.composer.Compose(snap, domain.CoachRequest{Message: message})

	text, err := s.generate(ctx, req)
	if err != nil {
		s.reportFailure(ctx, err)
		return domain.CoachReply{Text: FallbackErrorReply}, domain.OutcomeErrorFallback
	}
	if strings.TrimSpace(text) == "" {
		s.reportEmpty(ctx)
		return domain.CoachReply{Text: FallbackEmptyReply}, domain.OutcomeEmptyFallback
	}
	return domain.CoachReply{Text: text}, domain.OutcomeReplied
}

func (s *Service) generate(ctx context.Context, req GenerationRequest) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &ProviderError{Reason: ReasonProvider, Err: fmt.Errorf("generator panic: %v", r)}
		}
	}()
	text, err = s.generator.Generate(ctx, req)
	if err != nil {
		return "", asProviderError(ctx, err)
	}
	return text, nil
}

func (s *Service) reportFailure(ctx context.Context, err error) {
	reason := ReasonProvider
	var pe *ProviderError
	if errors.As(err, &pe) {
		reason = pe.Reason
	}

	level := slog.LevelError
	if reason == ReasonCanceled {
		level = slog.LevelInfo
	}
	s.logger.Log(ctx, level, "Coach provider failure",
		"reason", reason,
		"error", err,
		"user_id", identity.UserIDFromContext(ctx),
		"request_id", middleware.GetReqID(ctx),
	)
	s.emit(ctx, "coach_provider_failure", err.Error(), map[string]any{"reason": reason})
}

func (s *Service) reportEmpty(ctx context.Context) {
	s.logger.Warn("Coach provider returned empty text",
		"user_id", identity.UserIDFromContext(ctx),
		"request_id", middleware.GetReqID(ctx),
	)
	s.emit(ctx, "coach_empty_reply", "", map[string]any{"reason": ReasonEmptyResponse})
}

func (s *Service) emit(ctx context.Context, eventType, content string, meta map[string]any) {
	meta["request_id"] = middleware.GetReqID(ctx)
	s.events.Log(ConversationLogEvent{
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		UserID:     identity.UserIDFromContext(ctx),
		SessionID:  identity.SessionIDFromContext(ctx),
		Channel:    "coach",
		Direction:  "internal",
		EventType:  eventType,
		ContentRaw: content,
		Content:    cleanForReadability(content),
		Meta:       meta,
	})
}
