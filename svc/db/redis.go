package db

import (
	"burnbin/cfg"
	"burnbin/pkg/domain"
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Each paste is a hash at prefix+id with string fields content, ttlSeconds,
// maxViews, createdAtMs and viewsUsed. ttlSeconds and maxViews are "" when
// unset, which is distinct from "0".

// createScript inserts the hash only if the key is free. ARGV[5] is an
// absolute eviction instant in ms, or 0 to leave the key without a TTL.
var createScript = redis.NewScript(`
local key = KEYS[1]
if redis.call('EXISTS', key) == 1 then
	return 0
end
redis.call('HSET', key,
	'content', ARGV[1],
	'ttlSeconds', ARGV[2],
	'maxViews', ARGV[3],
	'createdAtMs', ARGV[4],
	'viewsUsed', '0')
local evictAt = tonumber(ARGV[5])
if evictAt and evictAt > 0 then
	redis.call('PEXPIREAT', key, evictAt)
end
return 1
`)

// consumeScript is the whole check-and-consume step. Replies:
// {0} missing, {1} expired, {2} exhausted,
// {3, content, remaining|false, expiresAt|false} ok.
// false stands in for "unset" because a nil would truncate the reply table.
var consumeScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local f = redis.call('HMGET', key, 'content', 'ttlSeconds', 'maxViews', 'createdAtMs', 'viewsUsed')
local content = f[1]
if not content then
	return {0}
end
local ttl = tonumber(f[2])
local maxViews = tonumber(f[3])
local createdAt = tonumber(f[4]) or 0
local viewsUsed = tonumber(f[5]) or 0

local expiresAt = false
if ttl then
	expiresAt = createdAt + ttl * 1000
	if now >= expiresAt then
		return {1}
	end
end
if maxViews and viewsUsed >= maxViews then
	return {2}
end

viewsUsed = redis.call('HINCRBY', key, 'viewsUsed', 1)
local remaining = false
if maxViews then
	remaining = maxViews - viewsUsed
end
return {3, content, remaining, expiresAt}
`)

const (
	codeMissing   = 0
	codeExpired   = 1
	codeExhausted = 2
	codeOK        = 3
)

// Redis is the shared store. The underlying client is created on first use
// and then reused for the life of the process.
type Redis struct {
	opt       *redis.Options
	prefix    string
	timeout   time.Duration
	retention time.Duration

	once   sync.Once
	client *redis.Client
}

func NewRedis(url string, c *cfg.Cfg) (*Redis, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	opt.PoolSize = 50
	opt.MinIdleConns = 10
	opt.PoolTimeout = 4 * time.Second
	opt.ConnMaxIdleTime = 5 * time.Minute
	// A script reply lost in transit may already have been applied, so the
	// client must not replay it.
	opt.MaxRetries = -1
	if c.RedisTLS {
		tlsConfig, err := buildRedisTLSConfig(opt.Addr)
		if err != nil {
			return nil, errors.Wrap(err, "failed to build Redis TLS config")
		}
		opt.TLSConfig = tlsConfig
	}
	if c.RedisUsername != "" {
		opt.Username = c.RedisUsername
	}
	if c.RedisPassword.Value() != "" {
		opt.Password = c.RedisPassword.Value()
	}
	return NewRedisWithOptions(opt, c.RedisKeyPrefix, c.RedisTimeout, c.KeyRetention), nil
}

// NewRedisWithOptions skips URL parsing. retention > 0 gives keys of pastes
// with a TTL a native expiry at expiresAt+retention.
func NewRedisWithOptions(opt *redis.Options, prefix string, timeout, retention time.Duration) *Redis {
	if prefix == "" {
		prefix = "paste:"
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Redis{
		opt:       opt,
		prefix:    prefix,
		timeout:   timeout,
		retention: retention,
	}
}
func buildRedisTLSConfig(addr string) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS13,
	}
	redisHostname := os.Getenv("REDIS_HOSTNAME")
	if redisHostname == "" {
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, fmt.Errorf("cannot derive TLS server name from %q: %w", addr, err)
		}
		redisHostname = host
	}
	tlsConfig.ServerName = redisHostname
	certPath := os.Getenv("REDIS_TLS_CA_CERT")
	if certPath != "" {
		caCert, err := os.ReadFile(certPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read Redis CA cert: %w", err)
		}
		certPool := x509.NewCertPool()
		if !certPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to append Redis CA cert to pool")
		}
		tlsConfig.RootCAs = certPool
	} else {
		systemPool, err := x509.SystemCertPool()
		if err != nil {
			return nil, fmt.Errorf("failed to load system cert pool: %w", err)
		}
		tlsConfig.RootCAs = systemPool
	}
	return tlsConfig, nil
}
func (r *Redis) conn() *redis.Client {
	r.once.Do(func() {
		r.client = redis.NewClient(r.opt)
	})
	return r.client
}
func (r *Redis) key(id string) string {
	return r.prefix + id
}
func (r *Redis) Backend() string { return "redis" }

func (r *Redis) CreatePaste(ctx context.Context, rec *domain.PasteRecord) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	var evictAt int64
	if exp, ok := rec.ExpiresAtMs(); ok && r.retention > 0 {
		evictAt = exp + r.retention.Milliseconds()
	}
	created, err := createScript.Run(ctx, r.conn(), []string{r.key(rec.ID)},
		rec.Content,
		optString(rec.TTLSeconds),
		optString(rec.MaxViews),
		strconv.FormatInt(rec.CreatedAtMs, 10),
		evictAt,
	).Int64()
	if err != nil {
		return domain.StorageFailure("create paste", err)
	}
	if created == 0 {
		return domain.ErrPasteExists
	}
	return nil
}
func (r *Redis) ConsumeView(ctx context.Context, id string, nowMs int64) (domain.Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	reply, err := consumeScript.Run(ctx, r.conn(), []string{r.key(id)}, nowMs).Slice()
	if err != nil {
		return domain.Outcome{}, domain.StorageFailure("consume view", err)
	}
	out, err := parseConsumeReply(reply)
	if err != nil {
		return domain.Outcome{}, domain.StorageFailure("consume view", err)
	}
	return out, nil
}
func parseConsumeReply(reply []interface{}) (domain.Outcome, error) {
	if len(reply) == 0 {
		return domain.Outcome{}, errors.New("empty script reply")
	}
	code, ok := reply[0].(int64)
	if !ok {
		return domain.Outcome{}, errors.Errorf("unexpected status %T in script reply", reply[0])
	}
	switch code {
	case codeMissing:
		return domain.Missing(), nil
	case codeExpired:
		return domain.Expired(), nil
	case codeExhausted:
		return domain.Exhausted(), nil
	case codeOK:
	default:
		return domain.Outcome{}, errors.Errorf("unknown status %d in script reply", code)
	}
	if len(reply) < 2 {
		return domain.Outcome{}, errors.New("ok reply without content")
	}
	content, ok := reply[1].(string)
	if !ok {
		return domain.Outcome{}, errors.Errorf("unexpected content %T in script reply", reply[1])
	}
	out := domain.Outcome{Status: domain.StatusOK, Content: content}
	var err error
	if len(reply) > 2 {
		if out.RemainingViews, err = optInt(reply[2]); err != nil {
			return domain.Outcome{}, errors.Wrap(err, "remaining views")
		}
	}
	if len(reply) > 3 {
		if out.ExpiresAtMs, err = optInt(reply[3]); err != nil {
			return domain.Outcome{}, errors.Wrap(err, "expires at")
		}
	}
	return out, nil
}

// optInt reads a script value that is either an integer or unset. Unset
// arrives as nil over RESP2 and as false over RESP3.
func optInt(v interface{}) (*int64, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case bool:
		if t {
			return nil, errors.New("unexpected true")
		}
		return nil, nil
	case int64:
		return &t, nil
	case string:
		n, err := strconv.ParseInt(t, 10, 64)
		if err != nil {
			return nil, err
		}
		return &n, nil
	}
	return nil, errors.Errorf("unexpected %T", v)
}
func optString(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}
func (r *Redis) Close() error {
	r.once.Do(func() {})
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}
