package external

import (
	"context"
	"errors"

	"github.com/jchs-nexus/nexus-portal/config"
	"github.com/jchs-nexus/nexus-portal/internal/apperr"
	"github.com/jchs-nexus/nexus-portal/internal/service"
)

// HTTPCheckout 调用支付服务创建 checkout 会话
type HTTPCheckout struct {
	client *jsonClient
}

func NewHTTPCheckout(cfg config.PaymentConfig) *HTTPCheckout {
	return &HTTPCheckout{client: newJSONClient("create checkout session", cfg.CheckoutURL, cfg.APIKey, cfg.Timeout)}
}

func (p *HTTPCheckout) CreateCheckoutSession(ctx context.Context, req service.CheckoutRequest) (*service.CheckoutSession, error) {
	var out service.CheckoutSession
	if err := p.client.post(ctx, req, &out); err != nil {
		return nil, err
	}
	if out.URL == "" {
		return nil, apperr.Network(errors.New("empty checkout url"), "create checkout session")
	}
	return &out, nil
}
