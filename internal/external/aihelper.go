package external

import (
	"context"

	"github.com/jchs-nexus/nexus-portal/config"
	"github.com/jchs-nexus/nexus-portal/internal/service"
)

type HTTPHelper struct {
	client *jsonClient
}

func NewHTTPHelper(cfg config.AIHelperConfig) *HTTPHelper {
	return &HTTPHelper{client: newJSONClient("ask ai helper", cfg.Endpoint, cfg.APIKey, cfg.Timeout)}
}

type askRequest struct {
	Question string `json:"question"`
}

type askResponse struct {
	Answer string `json:"answer"`
}

func (h *HTTPHelper) Ask(ctx context.Context, question string) (*service.Answer, error) {
	var out askResponse
	if err := h.client.post(ctx, askRequest{Question: question}, &out); err != nil {
		return nil, err
	}
	return &service.Answer{Text: out.Answer}, nil
}
