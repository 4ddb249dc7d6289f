package core

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// LoginCounts は当日のログイン成功/失敗件数。
type LoginCounts struct {
	Success int64 `json:"success"`
	Failure int64 `json:"failure"`
}

// MetricsService は Redis にログイン結果を日別で集計する。
type MetricsService struct {
	redis RedisClientRaw
	now   func() time.Time
}

func NewMetricsService(redis RedisClientRaw) *MetricsService {
	return &MetricsService{redis: redis, now: time.Now}
}

// RecordLogin increments today's counter for the outcome.
func (s *MetricsService) RecordLogin(ctx context.Context, success bool) error {
	if s == nil || s.redis == nil {
		return nil
	}
	result := "failure"
	if success {
		result = "success"
	}
	key := LoginMetricsKey(result, s.now())
	n, err := s.redis.Incr(ctx, key).Result()
	if err != nil {
		return err
	}
	if n == 1 {
		return s.redis.Expire(ctx, key, LoginMetricsTTL).Err()
	}
	return nil
}

// LoginsToday は当日の集計値を返す。キーが無い場合は 0。
func (s *MetricsService) LoginsToday(ctx context.Context) (LoginCounts, error) {
	var out LoginCounts
	if s == nil || s.redis == nil {
		return out, nil
	}
	now := s.now()
	var err error
	if out.Success, err = s.counter(ctx, LoginMetricsKey("success", now)); err != nil {
		return LoginCounts{}, err
	}
	if out.Failure, err = s.counter(ctx, LoginMetricsKey("failure", now)); err != nil {
		return LoginCounts{}, err
	}
	return out, nil
}

func (s *MetricsService) counter(ctx context.Context, key string) (int64, error) {
	n, err := s.redis.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}
