package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// PrincipalCache stores principal snapshots in Redis with a short TTL.
// It is injected into the Engine and the mutation Service; mutations call
// Invalidate before returning so a security check never sees a stale
// snapshot past the mutating request.
type PrincipalCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewPrincipalCache constructs a PrincipalCache.
func NewPrincipalCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *PrincipalCache {
	return &PrincipalCache{client: client, ttl: ttl, logger: logger}
}

// Get returns the cached snapshot for the user, if present.
func (c *PrincipalCache) Get(ctx context.Context, userID int64) (Principal, bool) {
	if c == nil || c.client == nil {
		return Principal{}, false
	}
	data, err := c.client.Get(ctx, c.key(userID)).Bytes()
	if err != nil {
		return Principal{}, false
	}
	var p Principal
	if err := json.Unmarshal(data, &p); err != nil {
		// Corrupt entries are dropped, not served.
		_ = c.client.Del(ctx, c.key(userID)).Err()
		return Principal{}, false
	}
	return p, true
}

// Set stores a snapshot. Failures are logged and ignored: the cache is an
// optimization, the store remains authoritative.
func (c *PrincipalCache) Set(ctx context.Context, p Principal) {
	if c == nil || c.client == nil {
		return
	}
	data, err := json.Marshal(p)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, c.key(p.UserID), data, c.ttl).Err(); err != nil && c.logger != nil {
		c.logger.Warn("principal cache set", slog.Any("error", err))
	}
}

// genMissing marks an absent generation key. Generation tokens are random,
// never counters, so a key expiring and being re-created cannot collide
// with a token captured before the expiry.
const genMissing = "0"

// setIfGeneration compares the generation key against the caller's token
// and writes the snapshot only on a match, atomically. An absent key
// matches the missing marker.
var setIfGenScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur == false then cur = '0' end
if cur ~= ARGV[1] then return 0 end
redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[3])
return 1
`)

// Generation returns the user's current invalidation token. The token is
// captured before a store load; SetIfGeneration later refuses the write
// when it no longer matches. ok is false when the token cannot be read,
// which disables caching for that load.
func (c *PrincipalCache) Generation(ctx context.Context, userID int64) (string, bool) {
	if c == nil || c.client == nil {
		return "", false
	}
	gen, err := c.client.Get(ctx, c.genKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return genMissing, true
		}
		return "", false
	}
	return gen, true
}

// SetIfGeneration stores a snapshot only while the generation token still
// matches gen. A mutation that invalidated the user after the token was
// captured rotates the token, so a load that raced the mutation discards
// its pre-mutation snapshot here instead of caching it. Failures are
// logged and ignored, like Set.
func (c *PrincipalCache) SetIfGeneration(ctx context.Context, p Principal, gen string) {
	if c == nil || c.client == nil {
		return
	}
	data, err := json.Marshal(p)
	if err != nil {
		return
	}
	err = setIfGenScript.Run(ctx, c.client,
		[]string{c.genKey(p.UserID), c.key(p.UserID)},
		gen, data, c.ttl.Milliseconds()).Err()
	if err != nil && c.logger != nil {
		c.logger.Warn("principal cache conditional set", slog.Any("error", err))
	}
}

// Invalidate drops the cached snapshot for a user and rotates the
// generation token so in-flight loads cannot repopulate the old state.
// Unlike Set, failures are returned: a mutation must not complete while a
// stale snapshot could still be served.
func (c *PrincipalCache) Invalidate(ctx context.Context, userIDs ...int64) error {
	if c == nil || c.client == nil || len(userIDs) == 0 {
		return nil
	}
	pipe := c.client.TxPipeline()
	for _, id := range userIDs {
		pipe.Set(ctx, c.genKey(id), uuid.NewString(), 2*c.ttl)
		pipe.Del(ctx, c.key(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("rbac: invalidate principal cache: %w", err)
	}
	return nil
}

func (c *PrincipalCache) key(userID int64) string {
	return fmt.Sprintf("rbac:principal:%d", userID)
}

func (c *PrincipalCache) genKey(userID int64) string {
	return fmt.Sprintf("rbac:principal:gen:%d", userID)
}
