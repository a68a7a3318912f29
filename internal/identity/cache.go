package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is a read-through Redis cache in front of a Directory. Room pages
// resolve the same access-map keys on every load; a short TTL keeps those
// loads off the upstream directory. Redis failures fall through to the
// upstream (fail-open), and unknown keys are not negatively cached.
type Cache struct {
	upstream Directory
	client   *redis.Client
	ttl      time.Duration
	prefix   string
}

func NewCache(upstream Directory, redisURL string, ttl time.Duration) (*Cache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewCacheWithClient(upstream, client, ttl), nil
}

func NewCacheWithClient(upstream Directory, client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{
		upstream: upstream,
		client:   client,
		ttl:      ttl,
		prefix:   "identity:",
	}
}

func (c *Cache) key(id string) string {
	return c.prefix + id
}

// Lookup returns cached identities where possible and asks the upstream for
// the rest. Result order follows the requested id order, unknown ids omitted.
func (c *Cache) Lookup(ctx context.Context, ids []string) ([]Identity, error) {
	if len(ids) == 0 {
		return []Identity{}, nil
	}

	found := make(map[string]Identity, len(ids))
	missing := ids

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = c.key(id)
	}
	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		log.Printf("identity: cache read failed, using upstream only: %v", err)
	} else {
		missing = missing[:0:0]
		for i, raw := range values {
			text, ok := raw.(string)
			if !ok {
				missing = append(missing, ids[i])
				continue
			}
			var ident Identity
			if err := json.Unmarshal([]byte(text), &ident); err != nil {
				missing = append(missing, ids[i])
				continue
			}
			found[ids[i]] = ident
		}
	}

	if len(missing) > 0 {
		fresh, err := c.upstream.Lookup(ctx, missing)
		if err != nil {
			return nil, err
		}
		missingSet := make(map[string]struct{}, len(missing))
		for _, id := range missing {
			missingSet[id] = struct{}{}
		}
		for _, ident := range fresh {
			// Lookup keys are opaque: the directory may be keyed by its own
			// id or by email. Match the result back to whichever key asked
			// for it so the cache entry answers the same query next time.
			key := ident.ID
			if _, ok := missingSet[key]; !ok {
				key = ident.Email
			}
			if _, ok := missingSet[key]; !ok {
				continue
			}
			found[key] = ident
			c.store(ctx, key, ident)
		}
	}

	results := make([]Identity, 0, len(found))
	for _, id := range ids {
		if ident, ok := found[id]; ok {
			results = append(results, ident)
		}
	}
	return results, nil
}

func (c *Cache) store(ctx context.Context, id string, ident Identity) {
	data, err := json.Marshal(ident)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, c.key(id), data, c.ttl).Err(); err != nil {
		log.Printf("identity: cache write failed for %s: %v", id, err)
	}
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	return c.client.Close()
}
