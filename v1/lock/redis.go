package lock

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const defaultRedisOpTimeout = 5 * time.Second

// Lock state lives under two keys with identical TTLs: the data key
// (prefix + "data:" + namespace:business_id) holding the Record JSON, and a
// token index (prefix + "token:" + token) pointing back at the data key so
// Heartbeat and Release can resolve a bare token. Every mutation is a single
// server-evaluated script; a read-then-write pair from the client would
// reintroduce the races these operations exist to prevent.

// acquireScript: 2 = acquired with the new token, 1 = reentrant refresh
// returning the existing token, 0 = conflict returning the holder's name.
// KEYS[1] data key; ARGV: record JSON, ttl millis, owner id, token key
// prefix, new token.
var acquireScript = redis.NewScript(`
local cur = redis.call("GET", KEYS[1])
if cur then
	local rec = cjson.decode(cur)
	if rec.user_id == ARGV[3] then
		redis.call("PEXPIRE", KEYS[1], ARGV[2])
		redis.call("PEXPIRE", ARGV[4] .. rec.token, ARGV[2])
		return {1, rec.token}
	end
	return {0, rec.user_name}
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
redis.call("SET", ARGV[4] .. ARGV[5], KEYS[1], "PX", ARGV[2])
return {2, ARGV[5]}
`)

// heartbeatScript extends both keys by the record's original timeout iff the
// token still names the live record. KEYS[1] token index; ARGV[1] token.
var heartbeatScript = redis.NewScript(`
local key = redis.call("GET", KEYS[1])
if not key then
	return 0
end
local cur = redis.call("GET", key)
if not cur then
	return 0
end
local rec = cjson.decode(cur)
if rec.token ~= ARGV[1] then
	return 0
end
local ttl = rec.timeout * 1000
redis.call("PEXPIRE", key, ttl)
redis.call("PEXPIRE", KEYS[1], ttl)
return 1
`)

// releaseScript deletes both keys iff the token still names the live record.
// A token index left behind by a reassigned key is cleaned up on the way.
var releaseScript = redis.NewScript(`
local key = redis.call("GET", KEYS[1])
if not key then
	return 0
end
local cur = redis.call("GET", key)
if cur then
	local rec = cjson.decode(cur)
	if rec.token == ARGV[1] then
		redis.call("DEL", key)
		redis.call("DEL", KEYS[1])
		return 1
	end
end
redis.call("DEL", KEYS[1])
return 0
`)

// Redis implements Store against a Redis backend. Atomicity is delegated to
// server-side scripts and expiry to native key TTLs, so the client keeps no
// state of its own and any number of processes may share one lock space.
type Redis struct {
	client  *redis.Client
	prefix  string
	timeout time.Duration
}

// RedisOption configures a Redis store.
type RedisOption func(*Redis)

// WithPrefix sets the key prefix. Default "lock:".
func WithPrefix(prefix string) RedisOption {
	return func(s *Redis) {
		s.prefix = prefix
	}
}

// WithOpTimeout sets the per-operation timeout for Redis calls.
func WithOpTimeout(d time.Duration) RedisOption {
	return func(s *Redis) {
		s.timeout = d
	}
}

// NewRedis returns a Redis-backed store using the provided client.
func NewRedis(client *redis.Client, opts ...RedisOption) *Redis {
	s := &Redis{
		client:  client,
		prefix:  "lock:",
		timeout: defaultRedisOpTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Redis) dataKey(key Key) string {
	return s.prefix + "data:" + key.String()
}

func (s *Redis) tokenPrefix() string {
	return s.prefix + "token:"
}

// wrapErr marks any transport failure as storage unavailability.
func wrapErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStorageUnavailable, op, err)
}

// Acquire implements Store.Acquire.
func (s *Redis) Acquire(ctx context.Context, key Key, owner Owner, ttl time.Duration) (AcquireResult, error) {
	now := time.Now()
	rec := Record{
		Token:      uuid.NewString(),
		Namespace:  key.Namespace,
		BusinessID: key.BusinessID,
		UserID:     owner.ID,
		UserName:   owner.Name,
		Timeout:    int64(ttl / time.Second),
		GrantedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}
	data, err := json.Marshal(&rec)
	if err != nil {
		return AcquireResult{}, err
	}

	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	v, err := acquireScript.Run(cctx, s.client,
		[]string{s.dataKey(key)},
		string(data), ttl.Milliseconds(), owner.ID, s.tokenPrefix(), rec.Token,
	).Result()
	if err != nil {
		return AcquireResult{}, wrapErr("acquire", err)
	}

	arr, ok := v.([]interface{})
	if !ok || len(arr) != 2 {
		return AcquireResult{}, wrapErr("acquire", fmt.Errorf("unexpected script reply %v", v))
	}
	status, _ := arr[0].(int64)
	payload, _ := arr[1].(string)
	switch status {
	case 2:
		return AcquireResult{OK: true, Token: payload}, nil
	case 1:
		return AcquireResult{OK: true, Token: payload, Reentrant: true}, nil
	default:
		return AcquireResult{HeldBy: payload}, nil
	}
}

// Heartbeat implements Store.Heartbeat.
func (s *Redis) Heartbeat(ctx context.Context, token string) (bool, error) {
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	n, err := heartbeatScript.Run(cctx, s.client, []string{s.tokenPrefix() + token}, token).Int()
	if err != nil {
		return false, wrapErr("heartbeat", err)
	}
	return n == 1, nil
}

// Release implements Store.Release.
func (s *Redis) Release(ctx context.Context, token string) (bool, error) {
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	n, err := releaseScript.Run(cctx, s.client, []string{s.tokenPrefix() + token}, token).Int()
	if err != nil {
		return false, wrapErr("release", err)
	}
	return n == 1, nil
}

// Get implements Store.Get. ExpiresAt is derived from the key's live TTL,
// which is authoritative over the stored field once heartbeats have run.
func (s *Redis) Get(ctx context.Context, key Key) (*Record, bool, error) {
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	data, err := s.client.Get(cctx, s.dataKey(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, wrapErr("get", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, false, fmt.Errorf("lock: corrupt record for %s: %w", key, err)
	}
	pttl, err := s.client.PTTL(cctx, s.dataKey(key)).Result()
	if err != nil {
		return nil, false, wrapErr("get", err)
	}
	if pttl > 0 {
		rec.ExpiresAt = time.Now().Add(pttl)
	}
	return &rec, true, nil
}
