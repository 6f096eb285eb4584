package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"casino-server/internal/infra/redis"
	"casino-server/internal/settle"
)

// 开奖结果的 Redis 缓存：人工干预的待用结果、外部市场结果、结算结果快照。
// 每个条目独立 TTL，过期自动清除，不依赖任何进程内全局表。

// ErrCacheMiss 缓存未命中（键不存在或已过期）
var ErrCacheMiss = errors.New("outcome cache miss")

// ErrCacheDisabled Redis 未配置
var ErrCacheDisabled = errors.New("redis not configured")

// PutOverride 存放人工干预的待用结果，封盘开奖时消费
func PutOverride(ctx context.Context, roundID string, oc *settle.Outcome, ttl time.Duration) error {
	return put(ctx, redis.OutcomeOverrideKey(roundID), oc, ttl)
}

// GetOverride 查询人工干预结果
func GetOverride(ctx context.Context, roundID string) (*settle.Outcome, error) {
	return get(ctx, redis.OutcomeOverrideKey(roundID))
}

// DeleteOverride 干预结果被消费或撤销后清除
func DeleteOverride(ctx context.Context, roundID string) error {
	c := redis.Client()
	if c == nil {
		return nil
	}
	return c.Del(ctx, redis.OutcomeOverrideKey(roundID)).Err()
}

// PutExternal 外部市场回调写入开奖结果
func PutExternal(ctx context.Context, roundID string, oc *settle.Outcome, ttl time.Duration) error {
	return put(ctx, redis.OutcomeExternalKey(roundID), oc, ttl)
}

// GetExternal 查询外部市场结果
func GetExternal(ctx context.Context, roundID string) (*settle.Outcome, error) {
	return get(ctx, redis.OutcomeExternalKey(roundID))
}

// PutResult 缓存整局结算结果（查询接口的快路径）
func PutResult(ctx context.Context, roundID string, res *settle.Result, ttl time.Duration) error {
	c := redis.Client()
	if c == nil {
		return nil
	}
	b, err := json.Marshal(res)
	if err != nil {
		return err
	}
	return c.Set(ctx, redis.RoundResultKey(roundID), b, ttl).Err()
}

// GetResult 查询缓存的结算结果
func GetResult(ctx context.Context, roundID string) (*settle.Result, error) {
	c := redis.Client()
	if c == nil {
		return nil, ErrCacheDisabled
	}
	b, err := c.Get(ctx, redis.RoundResultKey(roundID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}
	var res settle.Result
	if err := json.Unmarshal(b, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func put(ctx context.Context, key string, oc *settle.Outcome, ttl time.Duration) error {
	c := redis.Client()
	if c == nil {
		return ErrCacheDisabled
	}
	b, err := json.Marshal(oc)
	if err != nil {
		return err
	}
	return c.Set(ctx, key, b, ttl).Err()
}

func get(ctx context.Context, key string) (*settle.Outcome, error) {
	c := redis.Client()
	if c == nil {
		return nil, ErrCacheDisabled
	}
	b, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}
	var oc settle.Outcome
	if err := json.Unmarshal(b, &oc); err != nil {
		return nil, err
	}
	return &oc, nil
}
