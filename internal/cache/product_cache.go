package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"storefront/internal/models"
	"storefront/internal/repository"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	notFoundMarker = "notfound"
	notFoundTTL    = time.Minute
	// listIndexKey is a set of every cached list key, so one call can drop
	// them all when any product changes.
	listIndexKey = "products:lists"
)

// CachedProductRepository is a read-through cache in front of a
// ProductRepository. Redis failures fall back to the database.
type CachedProductRepository struct {
	realRepo repository.ProductRepository
	redis    *redis.Client
	ttl      time.Duration
	logger   *zap.Logger
}

func NewCachedProductRepository(realRepo repository.ProductRepository, rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *CachedProductRepository {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedProductRepository{
		realRepo: realRepo,
		redis:    rdb,
		ttl:      ttl,
		logger:   logger.Named("product_cache"),
	}
}

func productKey(id uuid.UUID) string {
	return "product:" + id.String()
}

func listKey(filter models.ProductFilter) string {
	return "products:list:" + filter.Key()
}

func (c *CachedProductRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	key := productKey(id)

	data, err := c.redis.Get(ctx, key).Bytes()

	switch {
	case err == nil:
		if string(data) == notFoundMarker {
			return nil, repository.ErrNotFound
		}

		var product models.Product
		if err := json.Unmarshal(data, &product); err != nil {
			c.logger.Warn("failed to unmarshal cached product, continuing with DB", zap.String("key", key), zap.Error(err))
			break
		}
		return &product, nil

	case errors.Is(err, redis.Nil):

	default:
		c.logger.Warn("redis error, continuing with DB", zap.Error(err))
	}

	product, err := c.realRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			if setErr := c.redis.Set(ctx, key, notFoundMarker, notFoundTTL).Err(); setErr != nil {
				c.logger.Warn("failed to cache notfound", zap.Error(setErr))
			}
		}
		return nil, err
	}

	c.store(ctx, key, product)
	return product, nil
}

func (c *CachedProductRepository) List(ctx context.Context, filter models.ProductFilter) ([]models.Product, error) {
	key := listKey(filter)

	data, err := c.redis.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var products []models.Product
		if err := json.Unmarshal(data, &products); err == nil {
			return products, nil
		}
		c.logger.Warn("failed to unmarshal cached list, continuing with DB", zap.String("key", key))
	case errors.Is(err, redis.Nil):
	default:
		c.logger.Warn("redis error, continuing with DB", zap.Error(err))
	}

	products, err := c.realRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	if c.store(ctx, key, products) {
		if err := c.redis.SAdd(ctx, listIndexKey, key).Err(); err != nil {
			c.logger.Warn("failed to index list cache", zap.Error(err))
		}
	}
	return products, nil
}

func (c *CachedProductRepository) store(ctx context.Context, key string, v any) bool {
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Warn("failed to marshal for cache", zap.String("key", key), zap.Error(err))
		return false
	}
	if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("failed to cache", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

// Invalidate drops the cached products and every cached list. Checkout and
// order cancellation call it after stock changes.
func (c *CachedProductRepository) Invalidate(ctx context.Context, ids ...uuid.UUID) {
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, productKey(id))
	}

	lists, err := c.redis.SMembers(ctx, listIndexKey).Result()
	if err != nil {
		c.logger.Warn("failed to read list index", zap.Error(err))
	}
	keys = append(keys, lists...)
	keys = append(keys, listIndexKey)

	if err := c.redis.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("failed to invalidate product cache", zap.Strings("keys", keys), zap.Error(err))
	}
}

func (c *CachedProductRepository) Create(ctx context.Context, product *models.Product) error {
	if err := c.realRepo.Create(ctx, product); err != nil {
		return err
	}
	c.Invalidate(ctx, product.ID)
	return nil
}

func (c *CachedProductRepository) Update(ctx context.Context, product *models.Product) error {
	err := c.realRepo.Update(ctx, product)
	c.Invalidate(ctx, product.ID)
	return err
}

func (c *CachedProductRepository) Delete(ctx context.Context, id uuid.UUID) error {
	err := c.realRepo.Delete(ctx, id)
	c.Invalidate(ctx, id)
	return err
}

func (c *CachedProductRepository) AdjustStock(ctx context.Context, id uuid.UUID, change int) (int, error) {
	stock, err := c.realRepo.AdjustStock(ctx, id, change)
	c.Invalidate(ctx, id)
	return stock, err
}

var _ repository.ProductRepository = (*CachedProductRepository)(nil)
