package forms

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	fiscalYearsCacheKey = "formreports:options:fy_years"
	monthsCacheKey      = "formreports:options:months"
)

// CachedSource memoises the option lists in Redis and collapses concurrent
// lookups. Record queries pass straight through.
type CachedSource struct {
	Source
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
	logger *slog.Logger
}

// NewCachedSource wraps src. A nil client disables caching but keeps the
// singleflight de-duplication.
func NewCachedSource(src Source, client *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedSource {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &CachedSource{Source: src, client: client, ttl: ttl, logger: logger}
}

// FiscalYears returns cached fiscal-year options.
func (c *CachedSource) FiscalYears(ctx context.Context) ([]FiscalYear, error) {
	var out []FiscalYear
	err := c.load(ctx, fiscalYearsCacheKey, &out, func(ctx context.Context) (any, error) {
		return c.Source.FiscalYears(ctx)
	})
	return out, err
}

// Months returns cached month options.
func (c *CachedSource) Months(ctx context.Context) ([]Month, error) {
	var out []Month
	err := c.load(ctx, monthsCacheKey, &out, func(ctx context.Context) (any, error) {
		return c.Source.Months(ctx)
	})
	return out, err
}

// Invalidate drops the cached option lists.
func (c *CachedSource) Invalidate(ctx context.Context) error {
	if c.client == nil {
		return nil
	}
	return c.client.Del(ctx, fiscalYearsCacheKey, monthsCacheKey).Err()
}

func (c *CachedSource) load(ctx context.Context, key string, target any, fetch func(context.Context) (any, error)) error {
	if c.client != nil {
		payload, err := c.client.Get(ctx, key).Bytes()
		switch {
		case err == nil:
			if jsonErr := json.Unmarshal(payload, target); jsonErr == nil {
				return nil
			}
		case !errors.Is(err, redis.Nil):
			c.warn("options cache read", key, err)
		}
	}

	ch := c.group.DoChan(key, func() (any, error) {
		value, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		if c.client != nil {
			if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
				c.warn("options cache write", key, err)
			}
		}
		return data, nil
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return res.Err
		}
		return json.Unmarshal(res.Val.([]byte), target)
	}
}

func (c *CachedSource) warn(msg, key string, err error) {
	if c.logger == nil {
		return
	}
	c.logger.Warn(msg, slog.String("key", key), slog.Any("error", err))
}
