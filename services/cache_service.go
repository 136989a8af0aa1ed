package services

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"hexmatch/utils/errors"
)

const (
	headerCacheControl = "Cache-Control"
	headerETag         = "ETag"
	headerIfNoneMatch  = "If-None-Match"
	headerXCache       = "X-Cache"
)

// ResponseCache memoizes whole query results in Redis, keyed by a
// fingerprint of the caller identity (or the raw query parameters for
// anonymous callers), and drives the conditional-response headers.
type ResponseCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewResponseCache(client *redis.Client, prefix string, ttl time.Duration) *ResponseCache {
	return &ResponseCache{client: client, prefix: prefix, ttl: ttl}
}

// Key builds the cache key. url.Values.Encode sorts by parameter name, so
// equal queries always fingerprint equally.
func (c *ResponseCache) Key(identity string, r *http.Request) string {
	source := identity
	if source == "" {
		source = r.URL.Query().Encode()
	}
	sum := md5.Sum([]byte(source))
	return c.prefix + ":" + hex.EncodeToString(sum[:])
}

// ETag derives a weak validator from the serialized cache value.
func ETag(cached string) string {
	h := fnv.New64a()
	h.Write([]byte(cached))
	return fmt.Sprintf(`W/"%x"`, h.Sum64())
}

func setCacheHeaders(w http.ResponseWriter, maxAge time.Duration, cached string, hit bool) {
	w.Header().Set(headerCacheControl, fmt.Sprintf("max-age=%d", int(maxAge.Seconds())))
	w.Header().Set(headerETag, ETag(cached))
	if hit {
		w.Header().Set(headerXCache, "HIT")
	} else {
		w.Header().Set(headerXCache, "MISS")
	}
}

// Cached wraps an idempotent read-only query. On a hit it serves the stored
// value (or just validates the caller's ETag into a Not Modified); on a miss
// it runs fn and stores the whole serialized result under the cache TTL.
// The second return reports the Not Modified short-circuit.
func Cached[T any](ctx context.Context, c *ResponseCache, w http.ResponseWriter, r *http.Request, identity string, fn func(context.Context) (T, error)) (T, bool, error) {
	var zero T
	key := c.Key(identity, r)

	cached, err := c.client.Get(ctx, key).Result()
	if err == nil {
		remaining, ttlErr := c.client.TTL(ctx, key).Result()
		if ttlErr != nil || remaining < 0 {
			remaining = c.ttl
		}
		setCacheHeaders(w, remaining, cached, true)

		if r.Header.Get(headerIfNoneMatch) == ETag(cached) {
			return zero, true, nil
		}

		var value T
		if err := json.Unmarshal([]byte(cached), &value); err == nil {
			return value, false, nil
		}
		// Undecodable entry: fall through and overwrite it wholesale.
		log.Printf("Dropping undecodable cache entry %s", key)
	} else if err != redis.Nil {
		return zero, false, errors.Unavailable(err)
	}

	value, err := fn(ctx)
	if err != nil {
		return zero, false, err
	}

	payload, err := json.Marshal(value)
	if err != nil {
		return zero, false, errors.Wrap(err, "CACHE_ERROR", "Failed to serialize response", errors.ErrInternal.Status)
	}
	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		return zero, false, errors.Unavailable(err)
	}

	setCacheHeaders(w, c.ttl, string(payload), false)
	return value, false, nil
}

// ActionLimiter caps the number of successful actions per identity inside a
// rolling window. The slot is reserved atomically before the action runs and
// released again when the action fails or reports nothing happened, so only
// successful actions ever count against the ceiling.
type ActionLimiter struct {
	client *redis.Client
	prefix string
	limit  int
	window time.Duration
}

func NewActionLimiter(client *redis.Client, prefix string, limit int, window time.Duration) *ActionLimiter {
	return &ActionLimiter{client: client, prefix: prefix, limit: limit, window: window}
}

// reserveSlot increments the counter only while it is below the limit; the
// check and increment run as one script so concurrent callers cannot race
// past the ceiling.
var reserveSlot = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
if current >= tonumber(ARGV[1]) then
  return -1
end
current = redis.call('INCR', KEYS[1])
if current == 1 then
  redis.call('EXPIRE', KEYS[1], ARGV[2])
end
return current
`)

// releaseSlot hands a reserved slot back. Decrementing only while the key
// still exists keeps an expired window from being recreated at a negative
// count, which would grant extra slots once it climbs back through zero.
var releaseSlot = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return redis.call('DECR', KEYS[1])
end
return 0
`)

func (l *ActionLimiter) key(identity string) string {
	sum := md5.Sum([]byte(identity))
	return l.prefix + ":" + hex.EncodeToString(sum[:])
}

// Do runs fn under the limiter. fn's boolean reports whether a countable
// action actually happened.
func (l *ActionLimiter) Do(ctx context.Context, identity string, fn func(context.Context) (bool, error)) (bool, error) {
	key := l.key(identity)

	slot, err := reserveSlot.Run(ctx, l.client, []string{key}, l.limit, int(l.window.Seconds())).Int()
	if err != nil {
		return false, errors.Unavailable(err)
	}
	if slot < 0 {
		return false, errors.ErrRateLimited
	}

	acted, err := fn(ctx)
	if err != nil || !acted {
		if releaseErr := releaseSlot.Run(ctx, l.client, []string{key}).Err(); releaseErr != nil {
			log.Printf("Failed to release limiter slot %s: %v", key, releaseErr)
		}
	}
	return acted, err
}
