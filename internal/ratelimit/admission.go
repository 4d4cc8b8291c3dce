package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/smallbiznis/clinova/internal/config"
)

// AdmissionLimiter throttles hold creation per clinic and per patient.
// A nil limiter (rate limiting disabled) allows everything.
type AdmissionLimiter struct {
	cfg    config.RateLimitConfig
	bucket *TokenBucket
	locker *Locker
	log    *zap.Logger
}

func NewAdmissionLimiter(cfg config.Config, log *zap.Logger) *AdmissionLimiter {
	rl := cfg.RateLimit
	if !rl.Enabled || rl.RedisAddr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     rl.RedisAddr,
		Password: rl.RedisPassword,
		DB:       rl.RedisDB,
	})
	return &AdmissionLimiter{
		cfg:    rl,
		bucket: NewTokenBucket(client),
		locker: NewLocker(client),
		log:    log.Named("ratelimit.admission"),
	}
}

// Allow checks the clinic bucket first, then the patient bucket. Redis
// errors fail open: admission is never blocked by limiter availability.
func (l *AdmissionLimiter) Allow(ctx context.Context, clinicID, patientID snowflake.ID) *Result {
	if l == nil {
		return &Result{Allowed: true}
	}

	clinicResult, err := l.bucket.Allow(ctx,
		fmt.Sprintf("holds:clinic:%s", clinicID), l.cfg.ClinicRate, l.cfg.ClinicBurst)
	if err != nil {
		l.log.Warn("clinic rate check failed, allowing", zap.Error(err))
		return &Result{Allowed: true}
	}
	if !clinicResult.Allowed {
		return clinicResult
	}

	patientResult, err := l.bucket.Allow(ctx,
		fmt.Sprintf("holds:patient:%s", patientID), l.cfg.PatientRate, l.cfg.PatientBurst)
	if err != nil {
		l.log.Warn("patient rate check failed, allowing", zap.Error(err))
		return &Result{Allowed: true}
	}
	return patientResult
}

// LockSlot takes a short admission lock for one professional's window so
// two identical requests serialize instead of racing the overlap check.
// It fails open on redis errors.
func (l *AdmissionLimiter) LockSlot(ctx context.Context, clinicID, professionalID snowflake.ID, start time.Time) (release func(), ok bool) {
	if l == nil {
		return func() {}, true
	}

	key := fmt.Sprintf("holds:slot:%s:%s:%d", clinicID, professionalID, start.Unix())
	ttl := time.Duration(l.cfg.AdmissionLockTTLSeconds) * time.Second
	token, acquired, err := l.locker.TryLock(ctx, key, ttl)
	if err != nil {
		l.log.Warn("slot lock failed, allowing", zap.Error(err))
		return func() {}, true
	}
	if !acquired {
		return func() {}, false
	}
	return func() {
		if err := l.locker.Release(context.WithoutCancel(ctx), key, token); err != nil {
			l.log.Warn("slot lock release failed", zap.Error(err))
		}
	}, true
}
