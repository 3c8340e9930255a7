package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jchs-nexus/nexus-portal/internal/apperr"
	"github.com/jchs-nexus/nexus-portal/internal/model"
	"github.com/jchs-nexus/nexus-portal/internal/repository"
	"github.com/jchs-nexus/nexus-portal/pkg/logger"
)

// BalanceHook is called after a committed balance change.
type BalanceHook func(ctx context.Context, userID string, balance int64)

type hookSet struct {
	mu  sync.RWMutex
	fns []BalanceHook
}

// Ledger 积分账本：余额只通过带条件的相对更新修改，每次变动记一条流水
type Ledger struct {
	store repository.Store
	hooks *hookSet
	inTx  bool
}

func NewLedger(store repository.Store) *Ledger {
	return &Ledger{store: store, hooks: &hookSet{}}
}

// In binds the ledger to an outer transaction. Hooks do not fire for
// changes made through the bound ledger; the caller invokes Changed after
// commit.
func (l *Ledger) In(tx repository.Store) *Ledger {
	return &Ledger{store: tx, hooks: l.hooks, inTx: true}
}

func (l *Ledger) OnChange(fn BalanceHook) {
	l.hooks.mu.Lock()
	l.hooks.fns = append(l.hooks.fns, fn)
	l.hooks.mu.Unlock()
}

// Changed runs the change hooks for userID.
func (l *Ledger) Changed(ctx context.Context, userID string, balance int64) {
	l.hooks.mu.RLock()
	fns := append([]BalanceHook(nil), l.hooks.fns...)
	l.hooks.mu.RUnlock()
	for _, fn := range fns {
		fn(ctx, userID, balance)
	}
}

func (l *Ledger) Credit(ctx context.Context, userID string, amount int64, reason, ref string) (int64, error) {
	if amount <= 0 {
		return 0, apperr.Validation("amount must be positive", apperr.FieldError{Field: "amount", Message: "must be > 0"})
	}
	return l.apply(ctx, userID, amount, reason, ref)
}

// Debit 扣减积分；余额不足时返回 ErrInsufficientBalance 且余额不变
func (l *Ledger) Debit(ctx context.Context, userID string, amount int64, reason, ref string) (int64, error) {
	if amount <= 0 {
		return 0, apperr.Validation("amount must be positive", apperr.FieldError{Field: "amount", Message: "must be > 0"})
	}
	return l.apply(ctx, userID, -amount, reason, ref)
}

func (l *Ledger) apply(ctx context.Context, userID string, delta int64, reason, ref string) (int64, error) {
	var balance int64
	err := l.store.Transaction(ctx, func(tx repository.Store) error {
		patch := repository.Patch{Incr: map[string]int64{"points": delta}}
		if delta < 0 {
			patch.Conds = []repository.Cond{{Field: "points", Op: ">=", Value: -delta}}
		}
		if err := tx.Update(ctx, "profiles", userID, patch); err != nil {
			if errors.Is(err, repository.ErrConditionFailed) {
				return apperr.ErrInsufficientBalance
			}
			return storeErr(err, "user")
		}

		var u model.User
		if err := tx.Get(ctx, "profiles", userID, &u); err != nil {
			return storeErr(err, "user")
		}
		balance = u.Points

		entry := &model.PointTransaction{
			ID:           uuid.NewString(),
			UserID:       userID,
			Delta:        delta,
			Reason:       reason,
			RefID:        ref,
			BalanceAfter: balance,
			CreatedAt:    time.Now().UTC(),
		}
		return storeErr(tx.Insert(ctx, "point_transactions", entry), "point transaction")
	})
	if err != nil {
		return 0, err
	}

	logger.Debug("points changed",
		zap.String("user", userID),
		zap.Int64("delta", delta),
		zap.String("reason", reason),
		zap.Int64("balance", balance),
	)
	if !l.inTx {
		l.Changed(ctx, userID, balance)
	}
	return balance, nil
}

func (l *Ledger) Balance(ctx context.Context, userID string) (int64, error) {
	var u model.User
	if err := l.store.Get(ctx, "profiles", userID, &u); err != nil {
		return 0, storeErr(err, "user")
	}
	return u.Points, nil
}

// History 返回最近的积分流水，新的在前
func (l *Ledger) History(ctx context.Context, userID string, limit int) ([]model.PointTransaction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var rows []model.PointTransaction
	err := l.store.Select(ctx, "point_transactions", repository.Query{
		Filter: repository.Filter{"user_id": userID},
		Order:  []repository.Order{{Field: "created_at"}, {Field: "id"}},
		Limit:  limit,
	}, &rows)
	if err != nil {
		return nil, storeErr(err, "point history")
	}
	return rows, nil
}
