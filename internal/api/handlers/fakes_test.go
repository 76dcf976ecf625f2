package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"storefront/internal/auth"
	"storefront/internal/checkout"
	"storefront/internal/models"
	"storefront/internal/repository"
	"storefront/internal/storage"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const testSecret = "handler-secret"

func withUser(r *http.Request, id uuid.UUID) *http.Request {
	return r.WithContext(auth.WithIdentity(r.Context(), models.Identity{UserID: id, Role: models.RoleCustomer}))
}

func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func jsonRequest(method, target, body string) *http.Request {
	r := httptest.NewRequest(method, target, strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	return r
}

func bearer(id uuid.UUID) string {
	token, err := auth.Sign(testSecret, models.Identity{UserID: id}, time.Hour)
	if err != nil {
		panic(err)
	}
	return "Bearer " + token
}

type fakeProfiles struct {
	profiles map[uuid.UUID]models.Profile
	created  []models.Profile
}

func (f *fakeProfiles) Create(ctx context.Context, p *models.Profile) error {
	if _, ok := f.profiles[p.ID]; ok {
		return repository.ErrDuplicate
	}
	f.profiles[p.ID] = *p
	f.created = append(f.created, *p)
	return nil
}

func (f *fakeProfiles) GetByID(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	p, ok := f.profiles[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (f *fakeProfiles) List(ctx context.Context) ([]models.Profile, error) {
	out := []models.Profile{}
	for _, p := range f.profiles {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeProfiles) UpdateShipping(ctx context.Context, id uuid.UUID, u models.ShippingUpdate) (*models.Profile, error) {
	p, ok := f.profiles[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	p.FullName, p.Phone, p.Address, p.Pincode = u.FullName, u.Phone, u.Address, u.Pincode
	f.profiles[id] = p
	return &p, nil
}

type fakeOrders struct {
	orders  map[uuid.UUID]models.Order
	updated models.OrderStatus
}

func (f *fakeOrders) GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	o, ok := f.orders[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &o, nil
}

func (f *fakeOrders) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Order, error) {
	out := []models.Order{}
	for _, o := range f.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeOrders) ListAll(ctx context.Context) ([]models.Order, error) {
	out := []models.Order{}
	for _, o := range f.orders {
		out = append(out, o)
	}
	return out, nil
}

func (f *fakeOrders) UpdateStatus(ctx context.Context, id uuid.UUID, next models.OrderStatus) (*models.Order, error) {
	o, ok := f.orders[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if !o.Status.CanTransitionTo(next) {
		return nil, repository.ErrInvalidTransition
	}
	o.Status = next
	f.orders[id] = o
	f.updated = next
	return &o, nil
}

type fakeCarts struct {
	lines []models.CartLine
	stock int
}

func (f *fakeCarts) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.CartLine, error) {
	return f.lines, nil
}

func (f *fakeCarts) Add(ctx context.Context, userID, productID uuid.UUID, qty int) (*models.CartLine, error) {
	if qty > f.stock {
		return nil, repository.ErrNotEnough
	}
	l := models.CartLine{ID: uuid.New(), UserID: userID, ProductID: productID, Quantity: qty}
	f.lines = append(f.lines, l)
	return &l, nil
}

func (f *fakeCarts) UpdateQuantity(ctx context.Context, userID, lineID uuid.UUID, qty int) (*models.CartLine, error) {
	return nil, repository.ErrNotFound
}

func (f *fakeCarts) Remove(ctx context.Context, userID, lineID uuid.UUID) error {
	return repository.ErrNotFound
}

func (f *fakeCarts) ClearByUser(ctx context.Context, userID uuid.UUID) error {
	f.lines = nil
	return nil
}

type fakePlacer struct {
	order *models.Order
	err   error
	got   models.Identity
}

func (f *fakePlacer) Quote(ctx context.Context, id models.Identity) (*checkout.Quote, error) {
	f.got = id
	return &checkout.Quote{Lines: []models.CartLine{}, MissingFields: []string{}}, f.err
}

func (f *fakePlacer) PlaceOrder(ctx context.Context, id models.Identity) (*models.Order, error) {
	f.got = id
	return f.order, f.err
}

type recordingInvalidator struct {
	ids []uuid.UUID
}

func (r *recordingInvalidator) Invalidate(ctx context.Context, ids ...uuid.UUID) {
	r.ids = append(r.ids, ids...)
}

type fakeUploader struct {
	failOn   string
	uploaded []string
	removed  []string
}

func (f *fakeUploader) Upload(ctx context.Context, bucket, fileName string, data []byte) (string, error) {
	if fileName == f.failOn {
		return "", fmt.Errorf("%w: %s", storage.ErrUnsupportedType, fileName)
	}
	path := uuid.NewString() + "-" + fileName
	f.uploaded = append(f.uploaded, path)
	return path, nil
}

func (f *fakeUploader) PublicURL(bucket, objectPath string) string {
	return "http://objects.test/" + bucket + "/" + objectPath
}

func (f *fakeUploader) Remove(ctx context.Context, bucket, objectPath string) error {
	f.removed = append(f.removed, objectPath)
	return nil
}

type fakeProducts struct {
	err     error
	created []models.Product
}

func (f *fakeProducts) Create(ctx context.Context, p *models.Product) error {
	if f.err != nil {
		return f.err
	}
	p.ID = uuid.New()
	f.created = append(f.created, *p)
	return nil
}

func (f *fakeProducts) GetByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	return nil, repository.ErrNotFound
}

func (f *fakeProducts) List(ctx context.Context, filter models.ProductFilter) ([]models.Product, error) {
	return f.created, nil
}

func (f *fakeProducts) Update(ctx context.Context, p *models.Product) error {
	return f.err
}

func (f *fakeProducts) Delete(ctx context.Context, id uuid.UUID) error {
	return f.err
}

func (f *fakeProducts) AdjustStock(ctx context.Context, id uuid.UUID, change int) (int, error) {
	return 0, f.err
}

type fakeCategories struct {
	categories []models.Category
	err        error
}

func (f *fakeCategories) Create(ctx context.Context, c *models.Category) error {
	return f.err
}

func (f *fakeCategories) GetByID(ctx context.Context, id uuid.UUID) (*models.Category, error) {
	return nil, repository.ErrNotFound
}

func (f *fakeCategories) List(ctx context.Context) ([]models.Category, error) {
	return f.categories, nil
}

func (f *fakeCategories) Update(ctx context.Context, c *models.Category) error {
	return f.err
}

func (f *fakeCategories) Delete(ctx context.Context, id uuid.UUID) error {
	return f.err
}

type fakeMovements struct {
	byOrder map[uuid.UUID][]models.StockMovement
}

func (f *fakeMovements) ListByProduct(ctx context.Context, productID uuid.UUID) ([]models.StockMovement, error) {
	return []models.StockMovement{}, nil
}

func (f *fakeMovements) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.StockMovement, error) {
	if m, ok := f.byOrder[orderID]; ok {
		return m, nil
	}
	return []models.StockMovement{}, nil
}
