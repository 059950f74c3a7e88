package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// ============================================================================
// 分布式锁实现
// ============================================================================
//
// 【为什么需要分布式锁？】
//
// 场景一：两个管理员同时审核同一笔支付单
//   没有锁时两个请求都读到 PENDING，都走完审核流程，余额被重复核销。
//   加锁后同一支付单同一时刻只有一个审核请求在执行，后到者重新读取状态
//   发现已是终态，直接拒绝。
//
// 场景二：两笔支付在同一年并发审核，各自"查最大收据号+1"
//   没有锁时两边都算出同一个下一号，落库时撞唯一索引。
//   按（前缀，年份）加锁后，发号过程被串行化，年内序号连续且无重号。
//
// 【Redis 分布式锁原理】
//
// 加锁：SET key value NX EX timeout
//   - NX: 只有 key 不存在时才设置（保证互斥）
//   - EX: 设置过期时间（防止死锁）
//   - value: 锁持有者标识（释放时验证，防止误删别人的锁）
//
// 释放锁：Lua 脚本先校验 value 再删除，保证原子性

var (
	ErrLockFailed  = errors.New("获取分布式锁失败")
	ErrLockExpired = errors.New("锁已过期")
)

// DistributedLock 分布式锁
type DistributedLock struct {
	client     *redis.Client
	key        string
	value      string        // 锁持有者标识
	expiration time.Duration // 锁的过期时间
}

// NewDistributedLock 创建分布式锁
func NewDistributedLock(client *redis.Client, key, value string, expiration time.Duration) *DistributedLock {
	return &DistributedLock{
		client:     client,
		key:        key,
		value:      value,
		expiration: expiration,
	}
}

// TryLock 尝试获取锁（非阻塞）
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	// SET key value NX EX timeout
	// 持有锁的进程崩溃时锁会随过期时间自动释放
	success, err := l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
	if err != nil {
		return false, err
	}
	return success, nil
}

// Lock 阻塞式获取锁（带重试）
func (l *DistributedLock) Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error {
	for i := 0; i < maxRetries; i++ {
		success, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if success {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
			// 继续重试
		}
	}
	return ErrLockFailed
}

// Unlock 释放锁
//
// 【关键点】Lua 脚本保证"检查+删除"的原子性：
// 若 A 的锁已过期且被 B 持有，A 的 Unlock 校验 value 不匹配，不会误删 B 的锁
func (l *DistributedLock) Unlock(ctx context.Context) error {
	script := `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		else
			return 0
		end
	`
	_, err := l.client.Eval(ctx, script, []string{l.key}, l.value).Result()
	return err
}

// ============================================================================
// 便捷函数：业务维度的锁
// ============================================================================

// NewVerifyLock 创建审核锁（按支付单维度）
//
// 同一支付单的审核必须串行；不同支付单可以并发审核
func NewVerifyLock(client *redis.Client, paymentNo, owner string) *DistributedLock {
	key := fmt.Sprintf("payment:lock:verify:%s", paymentNo)
	return NewDistributedLock(client, key, owner, 30*time.Second)
}

// NewReceiptSeqLock 创建收据发号锁（按前缀+年份维度）
//
// "查最大号+1+落库"必须按（前缀，年份）串行化；
// 该域吞吐量很低，每年一把锁的并发度完全够用
func NewReceiptSeqLock(client *redis.Client, prefix string, year int, owner string) *DistributedLock {
	key := fmt.Sprintf("receipt:lock:seq:%s-%d", prefix, year)
	return NewDistributedLock(client, key, owner, 10*time.Second)
}
