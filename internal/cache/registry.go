package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/coopledger/internal/config"

	"github.com/redis/go-redis/v9"
)

// 只缓存登记参考数据；库存由流水实时折算，不进缓存。

const (
	defaultRegistryTTL = 10 * time.Minute
	pingTimeout        = 3 * time.Second
)

// 登记数据缓存对象类型
const (
	RegistryCooperative = "cooperative"
	RegistryFarmer      = "farmer"
	RegistryLand        = "land"
)

var (
	client *redis.Client
	prefix = "cl"
)

// InitRedis 连接 Redis 并探活；未启用或探活失败时缓存保持关闭。
func InitRedis(cfg *config.RedisConfig) error {
	client = nil
	if cfg == nil || !cfg.Enabled {
		return nil
	}
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		host = "127.0.0.1"
	}
	port := cfg.Port
	if port <= 0 {
		port = 6379
	}
	if p := strings.TrimSpace(cfg.Prefix); p != "" {
		prefix = p
	}

	c := redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(host, strconv.Itoa(port)),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return fmt.Errorf("redis ping %s: %w", c.Options().Addr, err)
	}
	client = c
	return nil
}

// Client 返回 Redis 客户端，未启用时为 nil（写接口限流据此降级为不限流）
func Client() *redis.Client {
	return client
}

// RegistryKey 登记数据缓存键（不含全局前缀）
func RegistryKey(kind string, id uint) string {
	return fmt.Sprintf("registry:%s:%d", kind, id)
}

// RegistryTTL 根据配置秒数返回缓存时长
func RegistryTTL(seconds int) time.Duration {
	if seconds <= 0 {
		return defaultRegistryTTL
	}
	return time.Duration(seconds) * time.Second
}

// GetRegistry 读取登记数据快照，未命中返回 false
func GetRegistry(ctx context.Context, kind string, id uint, dest interface{}) (bool, error) {
	if client == nil {
		return false, nil
	}
	raw, err := client.Get(ctx, fullKey(kind, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		// 结构变更后的旧快照直接丢弃
		_ = client.Del(ctx, fullKey(kind, id)).Err()
		return false, nil
	}
	return true, nil
}

// SetRegistry 写入登记数据快照
func SetRegistry(ctx context.Context, kind string, id uint, value interface{}, ttl time.Duration) error {
	if client == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return client.Set(ctx, fullKey(kind, id), payload, ttl).Err()
}

// InvalidateRegistry 删除登记数据快照
func InvalidateRegistry(ctx context.Context, kind string, id uint) error {
	if client == nil {
		return nil
	}
	return client.Del(ctx, fullKey(kind, id)).Err()
}

func fullKey(kind string, id uint) string {
	return prefix + ":" + RegistryKey(kind, id)
}
