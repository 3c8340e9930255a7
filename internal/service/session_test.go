package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jchs-nexus/nexus-portal/config"
	"github.com/jchs-nexus/nexus-portal/internal/apperr"
	"github.com/jchs-nexus/nexus-portal/internal/model"
	"github.com/jchs-nexus/nexus-portal/internal/repository"
	"github.com/jchs-nexus/nexus-portal/internal/service"
	"github.com/jchs-nexus/nexus-portal/internal/testutil"
)

func TestSession_RegisterLoginRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewStore(t)
	ledger := service.NewLedger(store)
	gate := service.NewSessionGate(store, ledger, nil, testJWT, config.PointsConfig{SignupBonus: 25})

	u, err := gate.Register(ctx, service.NewUser{Username: "grace", Email: "Grace@Example.com", Password: "password123"})
	require.NoError(t, err)
	assert.Equal(t, "grace@example.com", u.Email)
	assert.EqualValues(t, 25, u.Points)

	_, err = gate.Register(ctx, service.NewUser{Username: "grace2", Email: "grace@example.com", Password: "password123"})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, _, err = gate.Login(ctx, "grace@example.com", "wrong-password")
	assert.Equal(t, apperr.KindAuthRequired, apperr.KindOf(err))

	token, sess, err := gate.Login(ctx, "GRACE@example.com", "password123")
	require.NoError(t, err)
	assert.Equal(t, u.ID, sess.UserID())
	assert.Equal(t, model.RoleUser, sess.Role)
	assert.False(t, sess.SubscriptionActive)

	cur, err := gate.CurrentSession(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, cur.UserID())
	assert.EqualValues(t, 25, cur.User.Points)
}

func TestSession_RegisterValidation(t *testing.T) {
	gate := newGate(testutil.NewStore(t), nil)
	_, err := gate.Register(context.Background(), service.NewUser{Username: "x", Email: "not-an-email", Password: "short"})
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.NotEmpty(t, apperr.FieldsOf(err))
}

func TestSession_CurrentSessionFailsClosed(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewStore(t)
	gate := newGate(store, nil)
	u := testutil.SeedUser(t, store, testutil.UserOpts{})

	for _, tok := range []string{"", "garbage", "a.b.c"} {
		_, err := gate.CurrentSession(ctx, tok)
		assert.ErrorIs(t, err, apperr.ErrAuthRequired, tok)
	}

	// 其它密钥签发的 token
	other := service.NewSessionGate(store, nil, nil, config.JWTConfig{Secret: "other"}, config.PointsConfig{})
	token, _, err := other.Login(ctx, u.Email, "password123")
	require.NoError(t, err)
	_, err = gate.CurrentSession(ctx, token)
	assert.ErrorIs(t, err, apperr.ErrAuthRequired)

	// none 算法
	claims := jwt.RegisteredClaims{Subject: u.ID, ID: "x", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = gate.CurrentSession(ctx, unsigned)
	assert.ErrorIs(t, err, apperr.ErrAuthRequired)

	// 用户被删除
	token, _ = login(t, gate, u)
	require.NoError(t, store.Delete(ctx, "profiles", u.ID))
	_, err = gate.CurrentSession(ctx, token)
	assert.ErrorIs(t, err, apperr.ErrAuthRequired)
}

func TestSession_LogoutRevokesToken(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewStore(t)
	_, client := testutil.NewRedis(t)
	gate := service.NewSessionGate(store, nil, service.NewRedisRevoker(client), testJWT, config.PointsConfig{})
	u := testutil.SeedUser(t, store, testutil.UserOpts{})

	token, sess := login(t, gate, u)
	require.NoError(t, gate.Logout(ctx, sess))

	_, err := gate.CurrentSession(ctx, token)
	assert.ErrorIs(t, err, apperr.ErrAuthRequired)

	// 新登录不受影响
	token2, _ := login(t, gate, u)
	_, err = gate.CurrentSession(ctx, token2)
	assert.NoError(t, err)
}

func TestSession_RequireSubscription(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewStore(t)
	gate := newGate(store, nil)

	member := testutil.SeedUser(t, store, testutil.UserOpts{Subscribed: true})
	_, sess := login(t, gate, member)
	assert.True(t, sess.SubscriptionActive)
	assert.NoError(t, gate.RequireSubscription(sess))

	visitor := testutil.SeedUser(t, store, testutil.UserOpts{})
	_, sess = login(t, gate, visitor)
	assert.ErrorIs(t, gate.RequireSubscription(sess), apperr.ErrSubscriptionRequired)

	// active 但已过期
	past := time.Now().Add(-time.Hour).UTC()
	require.NoError(t, store.Update(ctx, "profiles", member.ID, repository.Patch{Set: map[string]interface{}{"subscription_end_date": past}}))
	_, sess = login(t, gate, member)
	assert.ErrorIs(t, gate.RequireSubscription(sess), apperr.ErrSubscriptionRequired)

	assert.ErrorIs(t, gate.RequireSubscription(nil), apperr.ErrAuthRequired)
}

func TestSession_VerifyAdminRechecksRoles(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewStore(t)
	gate := newGate(store, nil)
	admin := testutil.SeedUser(t, store, testutil.UserOpts{Admin: true})

	token, sess := login(t, gate, admin)
	assert.Equal(t, model.RoleAdmin, sess.Role)
	require.NoError(t, gate.VerifyAdmin(ctx, sess))

	// 撤销管理员角色后，旧会话里的 role 声明不再有效
	var roles []model.UserRole
	require.NoError(t, store.Select(ctx, "user_roles", repository.Query{Filter: repository.Filter{"user_id": admin.ID, "role": model.RoleAdmin}}, &roles))
	require.Len(t, roles, 1)
	require.NoError(t, store.Delete(ctx, "user_roles", roles[0].ID))

	assert.Equal(t, model.RoleAdmin, sess.Role)
	assert.ErrorIs(t, gate.VerifyAdmin(ctx, sess), apperr.ErrPermissionDenied)

	cur, err := gate.CurrentSession(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, model.RoleUser, cur.Role)
}

func TestSession_GrantRole(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewStore(t)
	gate := newGate(store, nil)
	u := testutil.SeedUser(t, store, testutil.UserOpts{})
	_, sess := login(t, gate, u)

	assert.ErrorIs(t, gate.VerifyAdmin(ctx, sess), apperr.ErrPermissionDenied)
	require.NoError(t, gate.GrantRole(ctx, u.ID, model.RoleAdmin))
	require.NoError(t, gate.GrantRole(ctx, u.ID, model.RoleAdmin))
	assert.NoError(t, gate.VerifyAdmin(ctx, sess))

	assert.Equal(t, apperr.KindValidation, apperr.KindOf(gate.GrantRole(ctx, u.ID, "owner")))
}
