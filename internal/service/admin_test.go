package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jchs-nexus/nexus-portal/internal/apperr"
	"github.com/jchs-nexus/nexus-portal/internal/model"
	"github.com/jchs-nexus/nexus-portal/internal/service"
	"github.com/jchs-nexus/nexus-portal/internal/testutil"
)

func TestAdmin_OverviewAndGrants(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewStore(t)
	ledger := service.NewLedger(store)
	gate := newGate(store, ledger)
	svc := service.NewAdminService(store, gate, ledger)

	admin := testutil.SeedUser(t, store, testutil.UserOpts{Admin: true, Subscribed: true})
	user := testutil.SeedUser(t, store, testutil.UserOpts{})
	seedPost(t, store, user.ID, 5)
	_, adminSess := login(t, gate, admin)
	_, userSess := login(t, gate, user)

	_, err := svc.Overview(ctx, userSess)
	assert.ErrorIs(t, err, apperr.ErrPermissionDenied)

	out, err := svc.Overview(ctx, adminSess)
	require.NoError(t, err)
	assert.EqualValues(t, 2, out.Users)
	assert.EqualValues(t, 1, out.ActiveSubscriptions)
	assert.EqualValues(t, 1, out.HomeworkPosts)
	assert.Zero(t, out.Unlocks)

	_, err = svc.GrantPoints(ctx, userSess, user.ID, 100)
	assert.ErrorIs(t, err, apperr.ErrPermissionDenied)
	bal, err := svc.GrantPoints(ctx, adminSess, user.ID, 100)
	require.NoError(t, err)
	assert.EqualValues(t, 100, bal)

	history, err := ledger.History(ctx, user.ID, 1)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, model.ReasonAdminGrant, history[0].Reason)
	assert.Equal(t, admin.ID, history[0].RefID)

	require.NoError(t, svc.GrantRole(ctx, adminSess, user.ID, model.RoleAdmin))
	assert.NoError(t, gate.VerifyAdmin(ctx, userSess))
}
