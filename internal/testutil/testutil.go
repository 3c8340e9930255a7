// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/jchs-nexus/nexus-portal/internal/model"
	"github.com/jchs-nexus/nexus-portal/internal/repository"
	"github.com/jchs-nexus/nexus-portal/pkg/database"
)

// NewDB opens a migrated in-memory sqlite database. A single connection
// keeps every query on the same in-memory database.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.AutoMigrate(db))
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

// NewRedis starts a miniredis server bound to the test lifetime.
func NewRedis(t testing.TB) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

// NewStore returns a Store over a fresh sqlite database with in-process
// insert notifications.
func NewStore(t testing.TB) repository.Store {
	t.Helper()
	return repository.NewGormStore(NewDB(t), repository.NewLocalNotifier(0))
}

// UserOpts adjusts a seeded user.
type UserOpts struct {
	Username   string
	Email      string
	Password   string
	Points     int64
	Admin      bool
	Subscribed bool
}

// SeedUser inserts a profile (and roles) directly through the store.
func SeedUser(t testing.TB, store repository.Store, o UserOpts) *model.User {
	t.Helper()
	ctx := context.Background()
	id := uuid.NewString()
	if o.Username == "" {
		o.Username = "user-" + id[:8]
	}
	if o.Email == "" {
		o.Email = id[:8] + "@example.com"
	}
	if o.Password == "" {
		o.Password = "password123"
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(o.Password), bcrypt.MinCost)
	require.NoError(t, err)

	u := &model.User{
		ID:                 id,
		Username:           o.Username,
		Email:              o.Email,
		PasswordHash:       string(hash),
		Points:             o.Points,
		SubscriptionStatus: model.SubscriptionInactive,
	}
	if o.Subscribed {
		end := time.Now().Add(30 * 24 * time.Hour).UTC()
		u.SubscriptionStatus = model.SubscriptionActive
		u.SubscriptionEndDate = &end
	}
	require.NoError(t, store.Insert(ctx, "profiles", u))
	require.NoError(t, store.Insert(ctx, "user_roles", &model.UserRole{ID: uuid.NewString(), UserID: id, Role: model.RoleUser}))
	if o.Admin {
		require.NoError(t, store.Insert(ctx, "user_roles", &model.UserRole{ID: uuid.NewString(), UserID: id, Role: model.RoleAdmin}))
	}
	return u
}

// Eventually waits for cond, failing the test after timeout.
func Eventually(t testing.TB, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 10*time.Millisecond, msg)
}
