package service_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jchs-nexus/nexus-portal/config"
	"github.com/jchs-nexus/nexus-portal/internal/apperr"
	"github.com/jchs-nexus/nexus-portal/internal/service"
)

type fakeAI struct {
	asked []string
	err   error
}

func (f *fakeAI) Ask(_ context.Context, q string) (*service.Answer, error) {
	f.asked = append(f.asked, q)
	if f.err != nil {
		return nil, f.err
	}
	return &service.Answer{Text: "42"}, nil
}

func TestHelper_AskValidatesAndLimits(t *testing.T) {
	ctx := context.Background()
	ai := &fakeAI{}
	svc := service.NewHelperService(ai, config.AIHelperConfig{MaxQuestionLength: 20, RatePerMinute: 0.01})

	_, err := svc.Ask(ctx, "u1", "   ")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	_, err = svc.Ask(ctx, "u1", strings.Repeat("?", 21))
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	ans, err := svc.Ask(ctx, "u1", " what is 6*7 ")
	require.NoError(t, err)
	assert.Equal(t, "42", ans.Text)
	assert.Equal(t, []string{"what is 6*7"}, ai.asked)

	_, err = svc.Ask(ctx, "u1", "again")
	require.NoError(t, err)
	_, err = svc.Ask(ctx, "u1", "and again")
	assert.ErrorIs(t, err, apperr.ErrRateLimited)

	// 其他用户不受影响
	_, err = svc.Ask(ctx, "u2", "hi")
	assert.NoError(t, err)
}

func TestHelper_UpstreamFailureIsNetworkError(t *testing.T) {
	svc := service.NewHelperService(&fakeAI{err: errors.New("timeout")}, config.AIHelperConfig{})
	_, err := svc.Ask(context.Background(), "u1", "hi")
	assert.Equal(t, apperr.KindNetwork, apperr.KindOf(err))

	_, err = service.NewHelperService(nil, config.AIHelperConfig{}).Ask(context.Background(), "u1", "hi")
	assert.Equal(t, apperr.KindNetwork, apperr.KindOf(err))
}
