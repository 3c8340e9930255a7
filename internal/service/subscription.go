package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/jchs-nexus/nexus-portal/internal/apperr"
	"github.com/jchs-nexus/nexus-portal/internal/model"
	"github.com/jchs-nexus/nexus-portal/internal/repository"
	"github.com/jchs-nexus/nexus-portal/pkg/logger"
)

type CheckoutRequest struct {
	UserID     string `json:"user_id"`
	Email      string `json:"email"`
	SuccessURL string `json:"success_url"`
	CancelURL  string `json:"cancel_url"`
}

type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// PaymentGateway 支付服务，只关心请求与响应的形状
type PaymentGateway interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
}

// WebhookEvent is the subscription state pushed by the payment provider.
type WebhookEvent struct {
	Type             string     `json:"type"`
	UserID           string     `json:"user_id" validate:"required"`
	SubscriptionID   string     `json:"subscription_id"`
	Status           string     `json:"status" validate:"required,oneof=active inactive expired canceled"`
	CurrentPeriodEnd *time.Time `json:"current_period_end"`
}

type SubscriptionStatus struct {
	Status  string     `json:"status"`
	EndDate *time.Time `json:"end_date"`
	Active  bool       `json:"active"`
}

type SubscriptionService struct {
	store    repository.Store
	payments PaymentGateway
	now      func() time.Time
}

func NewSubscriptionService(store repository.Store, payments PaymentGateway) *SubscriptionService {
	return &SubscriptionService{store: store, payments: payments, now: time.Now}
}

func (s *SubscriptionService) Status(sess *Session) SubscriptionStatus {
	u := sess.User
	return SubscriptionStatus{Status: u.SubscriptionStatus, EndDate: u.SubscriptionEndDate, Active: u.HasActiveSubscription(s.now())}
}

func (s *SubscriptionService) Checkout(ctx context.Context, sess *Session, successURL, cancelURL string) (*CheckoutSession, error) {
	if s.payments == nil {
		return nil, apperr.New(apperr.KindNetwork, "payments are not configured")
	}
	out, err := s.payments.CreateCheckoutSession(ctx, CheckoutRequest{
		UserID:     sess.UserID(),
		Email:      sess.User.Email,
		SuccessURL: successURL,
		CancelURL:  cancelURL,
	})
	if err != nil {
		if isAppErr(err) {
			return nil, err
		}
		return nil, apperr.Network(err, "create checkout session")
	}
	return out, nil
}

// ApplyWebhook 由支付方回调更新订阅状态（签名在 handler 层校验）
func (s *SubscriptionService) ApplyWebhook(ctx context.Context, ev WebhookEvent) error {
	if err := validate.Struct(ev); err != nil {
		return validationErr(err, "invalid webhook event")
	}
	set := map[string]interface{}{
		"subscription_status":   ev.Status,
		"subscription_end_date": ev.CurrentPeriodEnd,
		"updated_at":            s.now().UTC(),
	}
	if ev.SubscriptionID != "" {
		set["subscription_id"] = ev.SubscriptionID
	}
	if err := s.store.Update(ctx, "profiles", ev.UserID, repository.Patch{Set: set}); err != nil {
		return storeErr(err, "profile")
	}
	logger.Info("subscription updated",
		zap.String("user", ev.UserID),
		zap.String("status", ev.Status),
		zap.String("event", ev.Type),
	)
	return nil
}

// SubscriptionSweeper 定期把过期的 active 订阅标记为 expired
type SubscriptionSweeper struct {
	store    repository.Store
	interval time.Duration
	batch    int
	now      func() time.Time
}

func NewSubscriptionSweeper(store repository.Store, interval time.Duration, batch int) *SubscriptionSweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if batch <= 0 {
		batch = 200
	}
	return &SubscriptionSweeper{store: store, interval: interval, batch: batch, now: time.Now}
}

// Start 启动后台轮询；返回停止函数
func (w *SubscriptionSweeper) Start() func(context.Context) error {
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), w.interval)
				if n, err := w.SweepOnce(ctx); err != nil {
					logger.Warn("subscription sweep failed", zap.Error(err))
				} else if n > 0 {
					logger.Info("subscriptions expired", zap.Int("count", n))
				}
				cancel()
			}
		}
	}()
	return func(ctx context.Context) error {
		close(stop)
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// SweepOnce expires one batch of lapsed subscriptions.
func (w *SubscriptionSweeper) SweepOnce(ctx context.Context) (int, error) {
	now := w.now().UTC()
	var lapsed []model.User
	err := w.store.Select(ctx, "profiles", repository.Query{
		Fields: []string{"id"},
		Filter: repository.Filter{"subscription_status": model.SubscriptionActive},
		Conds:  []repository.Cond{{Field: "subscription_end_date", Op: "<", Value: now}},
		Limit:  w.batch,
	}, &lapsed)
	if err != nil {
		return 0, storeErr(err, "lapsed subscriptions")
	}
	expired := 0
	for _, u := range lapsed {
		err := w.store.Update(ctx, "profiles", u.ID, repository.Patch{
			Set:   map[string]interface{}{"subscription_status": model.SubscriptionExpired, "updated_at": now},
			Conds: []repository.Cond{{Field: "subscription_status", Op: "=", Value: model.SubscriptionActive}},
		})
		switch {
		case err == nil:
			expired++
		case errors.Is(err, repository.ErrConditionFailed):
			// 回调已经改了状态
		default:
			return expired, storeErr(err, "expire subscription")
		}
	}
	return expired, nil
}
