package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const retrainLockKey = "maintenance:retrain:lock"

// 只有持有者才能释放
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RetrainLock 基于 Redis SETNX 的重新训练互斥锁
type RetrainLock struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRetrainLock 创建锁；ttl 到期后锁自动释放
func NewRetrainLock(client *redis.Client, ttl time.Duration) *RetrainLock {
	return &RetrainLock{
		client: client,
		ttl:    ttl,
	}
}

// TryAcquire 尝试获取锁，不等待
func (l *RetrainLock) TryAcquire(ctx context.Context, owner string) (bool, error) {
	ok, err := l.client.SetNX(ctx, retrainLockKey, owner, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock: %w", err)
	}
	return ok, nil
}

// Release 释放锁（仅当仍由 owner 持有）
func (l *RetrainLock) Release(ctx context.Context, owner string) error {
	if err := releaseScript.Run(ctx, l.client, []string{retrainLockKey}, owner).Err(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}
