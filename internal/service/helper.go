package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/jchs-nexus/nexus-portal/config"
	"github.com/jchs-nexus/nexus-portal/internal/apperr"
)

type Answer struct {
	Text string `json:"text"`
}

// AIClient answers homework questions. Answer generation lives elsewhere.
type AIClient interface {
	Ask(ctx context.Context, question string) (*Answer, error)
}

type HelperService struct {
	client  AIClient
	limiter *userLimiter
	maxLen  int
}

func NewHelperService(client AIClient, cfg config.AIHelperConfig) *HelperService {
	maxLen := cfg.MaxQuestionLength
	if maxLen <= 0 {
		maxLen = 4000
	}
	return &HelperService{client: client, limiter: newUserLimiter(perMinute(cfg.RatePerMinute), 2), maxLen: maxLen}
}

func (s *HelperService) Ask(ctx context.Context, userID, question string) (*Answer, error) {
	q := strings.TrimSpace(question)
	if n := utf8.RuneCountInString(q); n == 0 || n > s.maxLen {
		return nil, apperr.Validation(fmt.Sprintf("question must be 1-%d characters", s.maxLen), apperr.FieldError{Field: "question", Message: "invalid length"})
	}
	if s.client == nil {
		return nil, apperr.New(apperr.KindNetwork, "ai helper is not configured")
	}
	if !s.limiter.Allow(userID) {
		return nil, apperr.ErrRateLimited
	}
	ans, err := s.client.Ask(ctx, q)
	if err != nil {
		if isAppErr(err) {
			return nil, err
		}
		return nil, apperr.Network(err, "ask ai helper")
	}
	return ans, nil
}
