package service

import (
	"context"
	"errors"
	"html/template"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jchs-nexus/nexus-portal/internal/model"
	"github.com/jchs-nexus/nexus-portal/internal/repository"
)

// AdminVerifier re-checks the authoritative admin role at the point of use.
type AdminVerifier interface {
	VerifyAdmin(ctx context.Context, s *Session) error
}

type NewActivity struct {
	Title        string `json:"title" validate:"required,max=200"`
	Description  string `json:"description" validate:"max=5000"`
	URL          string `json:"url" validate:"omitempty,url,max=512"`
	ThumbnailURL string `json:"thumbnail_url" validate:"omitempty,url,max=512"`
	// EmbedProvider 和 EmbedURL 要么都填要么都空
	EmbedProvider string `json:"embed_provider" validate:"required_with=EmbedURL,max=32"`
	EmbedURL      string `json:"embed_url" validate:"required_with=EmbedProvider,max=1024"`
	PointsReward  *int64 `json:"points_reward" validate:"omitempty,gte=0,lte=10000"`
}

// ActivityView 活动及其渲染好的嵌入标记
type ActivityView struct {
	model.Activity
	EmbedHTML template.HTML `json:"embed_html,omitempty"`
}

func activityView(a model.Activity) ActivityView {
	html, err := RenderGameEmbed(&a)
	if err != nil {
		html = ""
	}
	return ActivityView{Activity: a, EmbedHTML: html}
}

// CompletionResult 完成活动的结果；重复完成 Awarded 为 0
type CompletionResult struct {
	ActivityID string `json:"activity_id"`
	FirstTime  bool   `json:"first_time"`
	Awarded    int64  `json:"awarded"`
	Balance    int64  `json:"balance"`
}

var errAlreadyCompleted = errors.New("activity already completed")

type ActivityService struct {
	store         repository.Store
	ledger        *Ledger
	admin         AdminVerifier
	defaultReward int64
}

func NewActivityService(store repository.Store, ledger *Ledger, admin AdminVerifier, defaultReward int64) *ActivityService {
	if defaultReward <= 0 {
		defaultReward = 10
	}
	return &ActivityService{store: store, ledger: ledger, admin: admin, defaultReward: defaultReward}
}

func (s *ActivityService) List(ctx context.Context) ([]ActivityView, error) {
	var rows []model.Activity
	err := s.store.Select(ctx, "games", repository.Query{
		Order: []repository.Order{{Field: "created_at"}},
	}, &rows)
	if err != nil {
		return nil, storeErr(err, "activities")
	}
	out := make([]ActivityView, 0, len(rows))
	for _, a := range rows {
		out = append(out, activityView(a))
	}
	return out, nil
}

func (s *ActivityService) Create(ctx context.Context, sess *Session, in NewActivity) (*ActivityView, error) {
	if err := s.admin.VerifyAdmin(ctx, sess); err != nil {
		return nil, err
	}
	in.Title = strings.TrimSpace(in.Title)
	if err := validate.Struct(in); err != nil {
		return nil, validationErr(err, "invalid activity")
	}
	embedURL := ""
	if in.EmbedProvider != "" {
		u, err := CheckGameEmbedURL(in.EmbedProvider, in.EmbedURL)
		if err != nil {
			return nil, err
		}
		embedURL = u.String()
	}
	reward := s.defaultReward
	if in.PointsReward != nil {
		reward = *in.PointsReward
	}
	a := model.Activity{
		ID:            uuid.NewString(),
		Title:         in.Title,
		Description:   in.Description,
		URL:           in.URL,
		ThumbnailURL:  in.ThumbnailURL,
		EmbedProvider: in.EmbedProvider,
		EmbedURL:      embedURL,
		PointsReward:  reward,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.store.Insert(ctx, "games", &a); err != nil {
		return nil, storeErr(err, "activity")
	}
	v := activityView(a)
	return &v, nil
}

func (s *ActivityService) Delete(ctx context.Context, sess *Session, id string) error {
	if err := s.admin.VerifyAdmin(ctx, sess); err != nil {
		return err
	}
	return storeErr(s.store.Delete(ctx, "games", id), "activity")
}

// Complete 首次完成时发放奖励，完成记录与入账在同一事务
func (s *ActivityService) Complete(ctx context.Context, userID, activityID string) (*CompletionResult, error) {
	var a model.Activity
	if err := s.store.Get(ctx, "games", activityID, &a); err != nil {
		return nil, storeErr(err, "activity")
	}

	res := &CompletionResult{ActivityID: activityID}
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		done := &model.ActivityCompletion{
			ID:          uuid.NewString(),
			UserID:      userID,
			ActivityID:  activityID,
			CompletedAt: time.Now().UTC(),
		}
		if err := tx.Insert(ctx, "activity_completions", done); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return errAlreadyCompleted
			}
			return storeErr(err, "activity completion")
		}
		res.FirstTime = true
		if a.PointsReward <= 0 {
			bal, err := s.ledger.In(tx).Balance(ctx, userID)
			res.Balance = bal
			return err
		}
		bal, err := s.ledger.In(tx).Credit(ctx, userID, a.PointsReward, model.ReasonActivityCompleted, activityID)
		if err != nil {
			return err
		}
		res.Awarded, res.Balance = a.PointsReward, bal
		return nil
	})
	switch {
	case errors.Is(err, errAlreadyCompleted):
		bal, err := s.ledger.Balance(ctx, userID)
		if err != nil {
			return nil, err
		}
		res.Balance = bal
		return res, nil
	case err != nil:
		return nil, err
	}
	if res.Awarded > 0 {
		s.ledger.Changed(ctx, userID, res.Balance)
	}
	return res, nil
}
