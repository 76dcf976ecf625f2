package cache

import (
	"context"
	"testing"
	"time"

	"storefront/internal/models"
	"storefront/internal/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProducts struct {
	products map[uuid.UUID]models.Product
	gets     int
	lists    int
}

func (f *fakeProducts) Create(ctx context.Context, p *models.Product) error {
	p.ID = uuid.New()
	f.products[p.ID] = *p
	return nil
}

func (f *fakeProducts) GetByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	f.gets++
	p, ok := f.products[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (f *fakeProducts) List(ctx context.Context, filter models.ProductFilter) ([]models.Product, error) {
	f.lists++
	out := []models.Product{}
	for _, p := range f.products {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeProducts) Update(ctx context.Context, p *models.Product) error {
	f.products[p.ID] = *p
	return nil
}

func (f *fakeProducts) Delete(ctx context.Context, id uuid.UUID) error {
	delete(f.products, id)
	return nil
}

func (f *fakeProducts) AdjustStock(ctx context.Context, id uuid.UUID, change int) (int, error) {
	p := f.products[id]
	p.Stock += change
	f.products[id] = p
	return p.Stock, nil
}

func setup(t *testing.T) (*CachedProductRepository, *fakeProducts, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	fake := &fakeProducts{products: map[uuid.UUID]models.Product{}}
	return NewCachedProductRepository(fake, rdb, time.Minute, nil), fake, mr
}

func TestGetByIDReadsThrough(t *testing.T) {
	c, fake, mr := setup(t)
	ctx := context.Background()

	p := models.Product{Name: "Lamp", Price: decimal.NewFromInt(300), Stock: 2, IsActive: true}
	require.NoError(t, fake.Create(ctx, &p))

	got, err := c.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Lamp", got.Name)

	got, err = c.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(300).Equal(got.Price))
	assert.Equal(t, 1, fake.gets)
	assert.True(t, mr.Exists(productKey(p.ID)))
}

func TestGetByIDCachesNotFound(t *testing.T) {
	c, fake, mr := setup(t)
	ctx := context.Background()
	id := uuid.New()

	_, err := c.GetByID(ctx, id)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = c.GetByID(ctx, id)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	assert.Equal(t, 1, fake.gets)
	val, err := mr.Get(productKey(id))
	require.NoError(t, err)
	assert.Equal(t, notFoundMarker, val)
}

func TestStockChangeInvalidatesProductAndLists(t *testing.T) {
	c, fake, _ := setup(t)
	ctx := context.Background()

	p := models.Product{Name: "Rug", Price: decimal.NewFromInt(2500), Stock: 3, IsActive: true}
	require.NoError(t, fake.Create(ctx, &p))

	filter := models.ProductFilter{ActiveOnly: true}
	_, err := c.List(ctx, filter)
	require.NoError(t, err)
	_, err = c.GetByID(ctx, p.ID)
	require.NoError(t, err)

	stock, err := c.AdjustStock(ctx, p.ID, -1)
	require.NoError(t, err)
	assert.Equal(t, 2, stock)

	got, err := c.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Stock)
	assert.Equal(t, 2, fake.gets)

	_, err = c.List(ctx, filter)
	require.NoError(t, err)
	assert.Equal(t, 2, fake.lists)
}

func TestListServedFromCache(t *testing.T) {
	c, fake, _ := setup(t)
	ctx := context.Background()

	filter := models.ProductFilter{Sort: models.SortPriceAsc}
	first, err := c.List(ctx, filter)
	require.NoError(t, err)
	second, err := c.List(ctx, filter)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, fake.lists)
}

func TestRedisDownFallsBackToDB(t *testing.T) {
	c, fake, mr := setup(t)
	ctx := context.Background()

	p := models.Product{Name: "Mug", Price: decimal.NewFromInt(150), IsActive: true}
	require.NoError(t, fake.Create(ctx, &p))
	mr.Close()

	got, err := c.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Mug", got.Name)

	products, err := c.List(ctx, models.ProductFilter{})
	require.NoError(t, err)
	assert.Len(t, products, 1)
}
