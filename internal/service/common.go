package service

import (
	"errors"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/time/rate"

	"github.com/jchs-nexus/nexus-portal/internal/apperr"
	"github.com/jchs-nexus/nexus-portal/internal/repository"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// storeErr 把 repository 错误归类为 apperr
func storeErr(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return apperr.NotFound(what)
	case isAppErr(err):
		return err
	default:
		return apperr.Persistence(err, what)
	}
}

func isAppErr(err error) bool {
	var e *apperr.Error
	return errors.As(err, &e)
}

// validationErr converts validator failures into field errors keyed by the
// struct's json names.
func validationErr(err error, msg string) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Validation(msg)
	}
	fields := make([]apperr.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, apperr.FieldError{Field: fe.Field(), Message: "failed " + fe.Tag()})
	}
	return apperr.Validation(msg, fields...)
}

// userLimiter 按用户的令牌桶限流
type userLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*limiterEntry
	every     rate.Limit
	burst     int
	idle      time.Duration
	lastSweep time.Time
	now       func() time.Time
}

type limiterEntry struct {
	lim  *rate.Limiter
	seen time.Time
}

const minLimiterIdle = 10 * time.Minute

func newUserLimiter(every rate.Limit, burst int) *userLimiter {
	if burst <= 0 {
		burst = 1
	}
	// 闲置超过补满令牌桶所需的时间后，和新建的限流器没有区别，可以回收
	idle := minLimiterIdle
	if every > 0 && every != rate.Inf {
		if refill := time.Duration(float64(burst) / float64(every) * float64(time.Second)); refill > idle {
			idle = refill
		}
	}
	return &userLimiter{
		limiters:  make(map[string]*limiterEntry),
		every:     every,
		burst:     burst,
		idle:      idle,
		lastSweep: time.Now(),
		now:       time.Now,
	}
}

func perMinute(n float64) rate.Limit {
	if n <= 0 {
		return rate.Inf
	}
	return rate.Every(time.Duration(float64(time.Minute) / n))
}

func perSecond(n float64) rate.Limit {
	if n <= 0 {
		return rate.Inf
	}
	return rate.Limit(n)
}

func (l *userLimiter) Allow(userID string) bool {
	l.mu.Lock()
	now := l.now()
	if now.Sub(l.lastSweep) >= l.idle {
		l.sweep(now)
	}
	e, ok := l.limiters[userID]
	if !ok {
		e = &limiterEntry{lim: rate.NewLimiter(l.every, l.burst)}
		l.limiters[userID] = e
	}
	e.seen = now
	l.mu.Unlock()
	return e.lim.AllowN(now, 1)
}

// sweep drops limiters idle for at least l.idle. Caller holds l.mu.
func (l *userLimiter) sweep(now time.Time) {
	for id, e := range l.limiters {
		if now.Sub(e.seen) >= l.idle {
			delete(l.limiters, id)
		}
	}
	l.lastSweep = now
}
