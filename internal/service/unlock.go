package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jchs-nexus/nexus-portal/internal/apperr"
	"github.com/jchs-nexus/nexus-portal/internal/model"
	"github.com/jchs-nexus/nexus-portal/internal/repository"
	"github.com/jchs-nexus/nexus-portal/pkg/logger"
)

// UnlockEngine 付费作业解锁：记录插入和扣分在同一事务内完成
type UnlockEngine struct {
	store  repository.Store
	ledger *Ledger
}

func NewUnlockEngine(store repository.Store, ledger *Ledger) *UnlockEngine {
	return &UnlockEngine{store: store, ledger: ledger}
}

// PurchaseResult describes a completed unlock.
type PurchaseResult struct {
	PostID  string `json:"post_id"`
	Charged int64  `json:"charged"`
	Balance int64  `json:"balance"`
}

// IsVisible 作者、免费帖、已解锁三者之一即可见
func IsVisible(userID string, post *model.HomeworkPost, unlocked bool) bool {
	if post == nil {
		return false
	}
	return post.UserID == userID || post.PointsRequired == 0 || unlocked
}

func (e *UnlockEngine) Visible(ctx context.Context, userID string, post *model.HomeworkPost) (bool, error) {
	if IsVisible(userID, post, false) {
		return true, nil
	}
	unlocked, err := e.hasRecord(ctx, userID, post.ID)
	if err != nil {
		return false, err
	}
	return IsVisible(userID, post, unlocked), nil
}

// UnlockedPostIDs returns the set of posts userID has bought.
func (e *UnlockEngine) UnlockedPostIDs(ctx context.Context, userID string) (map[string]bool, error) {
	var rows []model.UnlockRecord
	err := e.store.Select(ctx, "user_unlocked_posts", repository.Query{
		Fields: []string{"post_id"},
		Filter: repository.Filter{"user_id": userID},
	}, &rows)
	if err != nil {
		return nil, storeErr(err, "unlock records")
	}
	ids := make(map[string]bool, len(rows))
	for _, r := range rows {
		ids[r.PostID] = true
	}
	return ids, nil
}

func (e *UnlockEngine) hasRecord(ctx context.Context, userID, postID string) (bool, error) {
	n, err := e.store.Count(ctx, "user_unlocked_posts", repository.Query{
		Filter: repository.Filter{"user_id": userID, "post_id": postID},
	})
	if err != nil {
		return false, storeErr(err, "unlock records")
	}
	return n > 0, nil
}

// Purchase 解锁作业。price 是用户看到的价格，和当前价格不一致时拒绝。
// 唯一索引 (user_id, post_id) 保证并发购买只有一次成功。
func (e *UnlockEngine) Purchase(ctx context.Context, userID, postID string, price int64) (*PurchaseResult, error) {
	var post model.HomeworkPost
	if err := e.store.Get(ctx, "homework_posts", postID, &post); err != nil {
		return nil, storeErr(err, "post")
	}
	if post.UserID == userID || post.PointsRequired == 0 {
		return nil, apperr.ErrAlreadyUnlocked
	}
	unlocked, err := e.hasRecord(ctx, userID, postID)
	if err != nil {
		return nil, err
	}
	if unlocked {
		return nil, apperr.ErrAlreadyUnlocked
	}
	if price != post.PointsRequired {
		return nil, apperr.Validation("price changed, reload and try again",
			apperr.FieldError{Field: "price", Message: "does not match current price"})
	}

	var balance int64
	err = e.store.Transaction(ctx, func(tx repository.Store) error {
		rec := &model.UnlockRecord{
			ID:         uuid.NewString(),
			UserID:     userID,
			PostID:     postID,
			UnlockedAt: time.Now().UTC(),
		}
		if err := tx.Insert(ctx, "user_unlocked_posts", rec); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return apperr.ErrAlreadyUnlocked
			}
			return storeErr(err, "unlock record")
		}
		var err error
		balance, err = e.ledger.In(tx).Debit(ctx, userID, post.PointsRequired, model.ReasonUnlock, postID)
		return err
	})
	if err != nil {
		if apperr.KindOf(err) == apperr.KindPersistence {
			logger.Error("unlock failed", zap.String("user", userID), zap.String("post", postID), zap.Error(err))
		}
		return nil, err
	}

	e.ledger.Changed(ctx, userID, balance)
	return &PurchaseResult{PostID: postID, Charged: post.PointsRequired, Balance: balance}, nil
}
