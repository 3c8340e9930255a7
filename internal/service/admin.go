package service

import (
	"context"

	"github.com/sourcegraph/conc/pool"

	"github.com/jchs-nexus/nexus-portal/internal/model"
	"github.com/jchs-nexus/nexus-portal/internal/repository"
)

type Overview struct {
	Users               int64 `json:"users"`
	ActiveSubscriptions int64 `json:"active_subscriptions"`
	HomeworkPosts       int64 `json:"homework_posts"`
	ChatMessages        int64 `json:"chat_messages"`
	Unlocks             int64 `json:"unlocks"`
}

// AdminService 管理后台，每个操作都重新校验管理员身份
type AdminService struct {
	store  repository.Store
	gate   *SessionGate
	ledger *Ledger
}

func NewAdminService(store repository.Store, gate *SessionGate, ledger *Ledger) *AdminService {
	return &AdminService{store: store, gate: gate, ledger: ledger}
}

func (s *AdminService) Overview(ctx context.Context, sess *Session) (*Overview, error) {
	if err := s.gate.VerifyAdmin(ctx, sess); err != nil {
		return nil, err
	}
	var out Overview
	counts := []struct {
		dst        *int64
		collection string
		q          repository.Query
	}{
		{&out.Users, "profiles", repository.Query{}},
		{&out.ActiveSubscriptions, "profiles", repository.Query{Filter: repository.Filter{"subscription_status": model.SubscriptionActive}}},
		{&out.HomeworkPosts, "homework_posts", repository.Query{}},
		{&out.ChatMessages, "chat_messages", repository.Query{}},
		{&out.Unlocks, "user_unlocked_posts", repository.Query{}},
	}
	p := pool.New().WithErrors().WithContext(ctx).WithFirstError()
	for _, c := range counts {
		c := c
		p.Go(func(ctx context.Context) error {
			n, err := s.store.Count(ctx, c.collection, c.q)
			if err != nil {
				return storeErr(err, c.collection)
			}
			*c.dst = n
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}
	return &out, nil
}

// GrantPoints credits points to a user on an admin's behalf.
func (s *AdminService) GrantPoints(ctx context.Context, sess *Session, userID string, amount int64) (int64, error) {
	if err := s.gate.VerifyAdmin(ctx, sess); err != nil {
		return 0, err
	}
	return s.ledger.Credit(ctx, userID, amount, model.ReasonAdminGrant, sess.UserID())
}

func (s *AdminService) GrantRole(ctx context.Context, sess *Session, userID, role string) error {
	if err := s.gate.VerifyAdmin(ctx, sess); err != nil {
		return err
	}
	return s.gate.GrantRole(ctx, userID, role)
}
