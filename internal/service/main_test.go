package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/jchs-nexus/nexus-portal/config"
	"github.com/jchs-nexus/nexus-portal/internal/model"
	"github.com/jchs-nexus/nexus-portal/internal/repository"
	"github.com/jchs-nexus/nexus-portal/internal/service"
)

var testJWT = config.JWTConfig{Secret: "test-secret", Issuer: "nexus-test", Expiration: time.Hour}

func newGate(store repository.Store, ledger *service.Ledger) *service.SessionGate {
	return service.NewSessionGate(store, ledger, service.NewMemoryRevoker(), testJWT, config.PointsConfig{})
}

// login 签发真实 token 并取回会话
func login(t *testing.T, gate *service.SessionGate, u *model.User) (string, *service.Session) {
	t.Helper()
	token, _, err := gate.Login(context.Background(), u.Email, "password123")
	require.NoError(t, err)
	sess, err := gate.CurrentSession(context.Background(), token)
	require.NoError(t, err)
	return token, sess
}

func seedPost(t *testing.T, store repository.Store, authorID string, price int64) *model.HomeworkPost {
	t.Helper()
	p := &model.HomeworkPost{
		ID:             uuid.NewString(),
		UserID:         authorID,
		Title:          "Algebra worksheet",
		Description:    "step by step answers",
		ImageURL:       "https://cdn.example.com/a.png",
		PointsRequired: price,
		CreatedAt:      time.Now().UTC(),
	}
	require.NoError(t, store.Insert(context.Background(), "homework_posts", p))
	return p
}
