package serverstate

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/schmackofatz/recipes/core/logx"
)

// RedisKey is where the shared server state is kept.
const RedisKey = "schmackofatz:state"

const redisOpTimeout = 2 * time.Second

// RedisStore implements Store on a Redis instance, cluster or sentinel group.
type RedisStore struct {
	client redis.UniversalClient
	key    string
}

// NewRedisStore connects to addr, a plain host:port or a redis://,
// rediss://, redis-sentinel:// or rediss-sentinel:// URL. The key is created
// with a not_ready state if it does not exist yet.
func NewRedisStore(addr string) (*RedisStore, error) {
	opts, err := parseRedisURL(addr)
	if err != nil {
		return nil, err
	}
	c := redis.NewUniversalClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	b, _ := json.Marshal(State{Status: StatusNotReady, Since: time.Now()})
	if err := c.SetNX(ctx, RedisKey, b, 0).Err(); err != nil {
		logx.Log.Warn().Err(err).Msg("redis state init")
	}
	return &RedisStore{client: c, key: RedisKey}, nil
}

// Close releases the Redis connection pool.
func (r *RedisStore) Close() error { return r.client.Close() }

func (r *RedisStore) Load() State {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	b, err := r.client.Get(ctx, r.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return State{Status: StatusNotReady}
		}
		logx.Log.Debug().Err(err).Msg("redis state load")
		return State{Status: StatusUnknown}
	}
	var st State
	if err := json.Unmarshal(b, &st); err != nil {
		return State{Status: StatusUnknown}
	}
	return st
}

func (r *RedisStore) Store(s State) {
	b, err := json.Marshal(s)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := r.client.Set(ctx, r.key, b, 0).Err(); err != nil {
		logx.Log.Warn().Err(err).Str("status", s.Status).Msg("redis state store")
	}
}

func parseRedisURL(addr string) (*redis.UniversalOptions, error) {
	if !strings.Contains(addr, "://") {
		return &redis.UniversalOptions{Addrs: []string{addr}}, nil
	}
	u, err := url.Parse(addr)
	if err != nil {
		return nil, err
	}

	opts := &redis.UniversalOptions{Addrs: strings.Split(u.Host, ",")}
	if u.User != nil {
		opts.Username = u.User.Username()
		if pw, ok := u.User.Password(); ok {
			opts.Password = pw
		}
	}
	q := u.Query()
	secure := strings.HasPrefix(u.Scheme, "rediss")

	switch u.Scheme {
	case "redis", "rediss":
		db := strings.TrimPrefix(u.Path, "/")
		if db == "" {
			db = q.Get("db")
		}
		if opts.DB, err = parseDB(db); err != nil {
			return nil, err
		}
	case "redis-sentinel", "rediss-sentinel":
		opts.MasterName = strings.TrimPrefix(u.Path, "/")
		if opts.DB, err = parseDB(q.Get("db")); err != nil {
			return nil, err
		}
		opts.SentinelUsername = q.Get("sentinel_username")
		opts.SentinelPassword = q.Get("sentinel_password")
	default:
		return nil, fmt.Errorf("redis: invalid URL scheme: %s", u.Scheme)
	}
	if secure {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return opts, nil
}

func parseDB(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	db, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("redis: invalid db: %v", err)
	}
	return db, nil
}
