package catalog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mahendraputra/storefront-backend/pkg/logger"
	"github.com/mahendraputra/storefront-backend/pkg/redis"
)

// CachedLoader is a read-through Redis cache in front of a Loader. Cache
// problems never fail a lookup; they fall through to the inner loader.
type CachedLoader struct {
	inner  Loader
	client *redis.Client
	ttl    time.Duration
	logg   *logger.Logger
}

func NewCachedLoader(inner Loader, client *redis.Client, ttl time.Duration, logg *logger.Logger) *CachedLoader {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &CachedLoader{inner: inner, client: client, ttl: ttl, logg: logg}
}

func (c *CachedLoader) key(productID string) string {
	return c.client.Key("catalog", "product", productID)
}

func (c *CachedLoader) Product(ctx context.Context, productID string) (*Product, error) {
	if c.client != nil {
		if cached, err := c.client.Get(ctx, c.key(productID)); err == nil {
			var product Product
			if err := json.Unmarshal([]byte(cached), &product); err == nil {
				return &product, nil
			}
		} else if err != redis.Nil && c.logg != nil {
			c.logg.Warn(ctx, "catalog cache read failed")
		}
	}

	product, err := c.inner.Product(ctx, productID)
	if err != nil {
		return nil, err
	}

	if c.client != nil {
		if encoded, err := json.Marshal(product); err == nil {
			if err := c.client.Set(ctx, c.key(productID), string(encoded), c.ttl); err != nil && c.logg != nil {
				c.logg.Warn(ctx, "catalog cache write failed")
			}
		}
	}
	return product, nil
}

// Invalidate drops the cached entry for a product.
func (c *CachedLoader) Invalidate(ctx context.Context, productID string) error {
	if c.client == nil {
		return nil
	}
	return c.client.Del(ctx, c.key(productID))
}
