package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/jchs-nexus/nexus-portal/config"
	"github.com/jchs-nexus/nexus-portal/internal/apperr"
	"github.com/jchs-nexus/nexus-portal/internal/model"
	"github.com/jchs-nexus/nexus-portal/internal/repository"
	"github.com/jchs-nexus/nexus-portal/pkg/logger"
)

// Session 一次已验证请求的身份上下文，显式传递，不放全局
type Session struct {
	User               *model.User `json:"user"`
	Role               string      `json:"role"`
	SubscriptionActive bool        `json:"subscription_active"`
	TokenID            string      `json:"-"`
	ExpiresAt          time.Time   `json:"expires_at"`
}

func (s *Session) UserID() string {
	if s == nil || s.User == nil {
		return ""
	}
	return s.User.ID
}

// Claims role 只是给前端的提示，授权永远以 user_roles 为准
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Revoker tracks logged-out token ids until they expire.
type Revoker interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

type redisRevoker struct{ client *redis.Client }

func NewRedisRevoker(client *redis.Client) Revoker { return &redisRevoker{client: client} }

func (r *redisRevoker) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return r.client.Set(ctx, "nexus:revoked:"+jti, 1, ttl).Err()
}

func (r *redisRevoker) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := r.client.Exists(ctx, "nexus:revoked:"+jti).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// memoryRevoker 单实例部署（未启用 redis）时使用
type memoryRevoker struct {
	mu      sync.Mutex
	revoked map[string]time.Time
}

func NewMemoryRevoker() Revoker { return &memoryRevoker{revoked: make(map[string]time.Time)} }

func (r *memoryRevoker) Revoke(_ context.Context, jti string, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	for k, exp := range r.revoked {
		if now.After(exp) {
			delete(r.revoked, k)
		}
	}
	r.revoked[jti] = now.Add(ttl)
	return nil
}

func (r *memoryRevoker) IsRevoked(_ context.Context, jti string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	exp, ok := r.revoked[jti]
	return ok && time.Now().Before(exp), nil
}

type NewUser struct {
	Username string `json:"username" validate:"required,min=3,max=32"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// SessionGate 身份与权限闸门：所有失败都按未登录处理（fail closed）
type SessionGate struct {
	store       repository.Store
	ledger      *Ledger
	revoker     Revoker
	secret      []byte
	issuer      string
	ttl         time.Duration
	signupBonus int64
	now         func() time.Time
}

func NewSessionGate(store repository.Store, ledger *Ledger, revoker Revoker, jwtCfg config.JWTConfig, points config.PointsConfig) *SessionGate {
	if revoker == nil {
		revoker = NewMemoryRevoker()
	}
	ttl := jwtCfg.Expiration
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SessionGate{
		store:       store,
		ledger:      ledger,
		revoker:     revoker,
		secret:      []byte(jwtCfg.Secret),
		issuer:      jwtCfg.Issuer,
		ttl:         ttl,
		signupBonus: points.SignupBonus,
		now:         time.Now,
	}
}

func (g *SessionGate) Register(ctx context.Context, in NewUser) (*model.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := validate.Struct(in); err != nil {
		return nil, validationErr(err, "invalid registration")
	}

	taken, err := g.store.Count(ctx, "profiles", repository.Query{Filter: repository.Filter{"email": in.Email}})
	if err != nil {
		return nil, storeErr(err, "profile")
	}
	if taken > 0 {
		return nil, apperr.Validation("email already registered", apperr.FieldError{Field: "email", Message: "already registered"})
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user := &model.User{
		ID:                 uuid.NewString(),
		Username:           in.Username,
		Email:              in.Email,
		PasswordHash:       string(hash),
		SubscriptionStatus: model.SubscriptionInactive,
	}

	err = g.store.Transaction(ctx, func(tx repository.Store) error {
		if err := tx.Insert(ctx, "profiles", user); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return apperr.Validation("email already registered", apperr.FieldError{Field: "email", Message: "already registered"})
			}
			return storeErr(err, "profile")
		}
		role := &model.UserRole{ID: uuid.NewString(), UserID: user.ID, Role: model.RoleUser, CreatedAt: g.now().UTC()}
		if err := tx.Insert(ctx, "user_roles", role); err != nil {
			return storeErr(err, "role")
		}
		if g.signupBonus > 0 && g.ledger != nil {
			bal, err := g.ledger.In(tx).Credit(ctx, user.ID, g.signupBonus, model.ReasonSignupBonus, user.ID)
			if err != nil {
				return err
			}
			user.Points = bal
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if user.Points > 0 {
		g.ledger.Changed(ctx, user.ID, user.Points)
	}
	logger.Info("user registered", zap.String("user", user.ID))
	return user, nil
}

// Login 校验密码并签发 token
func (g *SessionGate) Login(ctx context.Context, email, password string) (string, *Session, error) {
	var users []model.User
	err := g.store.Select(ctx, "profiles", repository.Query{
		Filter: repository.Filter{"email": strings.ToLower(strings.TrimSpace(email))},
		Limit:  1,
	}, &users)
	if err != nil {
		return "", nil, storeErr(err, "profile")
	}
	if len(users) == 0 || bcrypt.CompareHashAndPassword([]byte(users[0].PasswordHash), []byte(password)) != nil {
		return "", nil, apperr.New(apperr.KindAuthRequired, "invalid email or password")
	}
	user := users[0]

	role, err := g.roleOf(ctx, user.ID)
	if err != nil {
		return "", nil, err
	}
	token, claims, err := g.issue(user.ID, role)
	if err != nil {
		return "", nil, err
	}
	return token, g.sessionFor(&user, role, claims), nil
}

func (g *SessionGate) issue(userID, role string) (string, *Claims, error) {
	now := g.now()
	claims := &Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			Issuer:    g.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(g.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(g.secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign token: %w", err)
	}
	return signed, claims, nil
}

func (g *SessionGate) sessionFor(user *model.User, role string, claims *Claims) *Session {
	s := &Session{
		User:               user,
		Role:               role,
		SubscriptionActive: user.HasActiveSubscription(g.now()),
		TokenID:            claims.ID,
	}
	if claims.ExpiresAt != nil {
		s.ExpiresAt = claims.ExpiresAt.Time
	}
	return s
}

// CurrentSession 解析 token 并从存储重新加载用户与角色。任何失败都返回 ErrAuthRequired。
func (g *SessionGate) CurrentSession(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, apperr.ErrAuthRequired
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return g.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(g.now),
	)
	if err != nil || !parsed.Valid || claims.Subject == "" || claims.ID == "" {
		return nil, apperr.ErrAuthRequired
	}

	revoked, err := g.revoker.IsRevoked(ctx, claims.ID)
	if err != nil {
		logger.Warn("revocation check failed", zap.Error(err))
		return nil, apperr.ErrAuthRequired
	}
	if revoked {
		return nil, apperr.ErrAuthRequired
	}

	var user model.User
	if err := g.store.Get(ctx, "profiles", claims.Subject, &user); err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			logger.Warn("session user lookup failed", zap.String("user", claims.Subject), zap.Error(err))
		}
		return nil, apperr.ErrAuthRequired
	}
	role, err := g.roleOf(ctx, user.ID)
	if err != nil {
		return nil, apperr.ErrAuthRequired
	}
	return g.sessionFor(&user, role, claims), nil
}

func (g *SessionGate) RequireSubscription(s *Session) error {
	if s == nil || s.User == nil {
		return apperr.ErrAuthRequired
	}
	if !s.User.HasActiveSubscription(g.now()) {
		return apperr.ErrSubscriptionRequired
	}
	return nil
}

// VerifyAdmin 在使用点重新查询 user_roles；session.Role 不参与判断
func (g *SessionGate) VerifyAdmin(ctx context.Context, s *Session) error {
	if s == nil || s.User == nil {
		return apperr.ErrAuthRequired
	}
	n, err := g.store.Count(ctx, "user_roles", repository.Query{
		Filter: repository.Filter{"user_id": s.User.ID, "role": model.RoleAdmin},
	})
	if err != nil {
		logger.Warn("admin check failed", zap.String("user", s.User.ID), zap.Error(err))
		return apperr.ErrPermissionDenied
	}
	if n == 0 {
		if s.Role == model.RoleAdmin {
			logger.Warn("stale admin claim rejected", zap.String("user", s.User.ID))
		}
		return apperr.ErrPermissionDenied
	}
	return nil
}

// Logout 吊销当前 token 直到其过期
func (g *SessionGate) Logout(ctx context.Context, s *Session) error {
	if s == nil || s.TokenID == "" {
		return apperr.ErrAuthRequired
	}
	ttl := time.Until(s.ExpiresAt)
	if err := g.revoker.Revoke(ctx, s.TokenID, ttl); err != nil {
		return apperr.Persistence(err, "revoke session")
	}
	return nil
}

func (g *SessionGate) roleOf(ctx context.Context, userID string) (string, error) {
	var roles []model.UserRole
	err := g.store.Select(ctx, "user_roles", repository.Query{
		Fields: []string{"role"},
		Filter: repository.Filter{"user_id": userID},
	}, &roles)
	if err != nil {
		return "", storeErr(err, "role")
	}
	for _, r := range roles {
		if r.Role == model.RoleAdmin {
			return model.RoleAdmin, nil
		}
	}
	return model.RoleUser, nil
}

// GrantRole adds a role for userID. Granting an existing role is a no-op.
func (g *SessionGate) GrantRole(ctx context.Context, userID, role string) error {
	if role != model.RoleAdmin && role != model.RoleUser {
		return apperr.Validation("unknown role", apperr.FieldError{Field: "role", Message: "must be user or admin"})
	}
	err := g.store.Insert(ctx, "user_roles", &model.UserRole{ID: uuid.NewString(), UserID: userID, Role: role, CreatedAt: g.now().UTC()})
	if errors.Is(err, repository.ErrDuplicate) {
		return nil
	}
	return storeErr(err, "role")
}
