package notification

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/gudangguard/sentinel/internal/datastore/repository"
)

// Directory resolves subscribers and their contact details.
type Directory interface {
	ListSubscribers(ctx context.Context, systemType string) ([]string, error)
	ResolveContactInfo(ctx context.Context, userIDs []string) ([]repository.ContactInfo, error)
	DeletePushRegistration(ctx context.Context, token string) (string, error)
}

// contactCache memoizes ResolveContactInfo per user. A zero TTL disables
// caching.
type contactCache struct {
	dir   Directory
	cache *cache.Cache
}

func newContactCache(dir Directory, ttl time.Duration) *contactCache {
	c := &contactCache{dir: dir}
	if ttl > 0 {
		// no janitor goroutine; expired entries are purged on resolve
		c.cache = cache.New(ttl, 0)
	}
	return c
}

// resolve returns contacts in the order of userIDs, skipping users the
// directory does not know.
func (c *contactCache) resolve(ctx context.Context, userIDs []string) ([]repository.ContactInfo, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	if c.cache == nil {
		return c.dir.ResolveContactInfo(ctx, userIDs)
	}

	c.cache.DeleteExpired()
	found := make(map[string]repository.ContactInfo, len(userIDs))
	var missing []string
	for _, id := range userIDs {
		if v, ok := c.cache.Get(id); ok {
			found[id] = v.(repository.ContactInfo)
			continue
		}
		missing = append(missing, id)
	}

	if len(missing) > 0 {
		fetched, err := c.dir.ResolveContactInfo(ctx, missing)
		if err != nil {
			return nil, err
		}
		for i := range fetched {
			found[fetched[i].UserID] = fetched[i]
			c.cache.SetDefault(fetched[i].UserID, fetched[i])
		}
	}

	out := make([]repository.ContactInfo, 0, len(found))
	seen := make(map[string]struct{}, len(found))
	for _, id := range userIDs {
		info, ok := found[id]
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, info)
	}
	return out, nil
}

func (c *contactCache) invalidate(userID string) {
	if c.cache == nil || userID == "" {
		return
	}
	c.cache.Delete(userID)
}
