package checkout

import (
	"context"
	"errors"
	"sync"
	"time"

	"storefront/internal/models"
	"storefront/internal/outbox"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// memStore keeps the storefront tables in memory. WithTx holds a single lock
// for the whole transaction, which serializes checkouts the same way row
// locks on shared products do.
type memStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	products map[uuid.UUID]models.Product
	profiles map[uuid.UUID]models.Profile
	carts    map[uuid.UUID][]models.CartLine
	orders   map[uuid.UUID]models.Order
	events   []outbox.Event

	cartErr        error
	profileDelay   time.Duration
	lockDelay      time.Duration
	insertLinesErr error
	commitErr      error
	// commitApplies makes a failing commit still persist the writes.
	commitApplies bool
	clearFailures int

	// commitStalls persists the writes and then reports an unknown outcome
	// once the transaction context is done.
	commitStalls bool

	clearCalls   int
	cancelCalls  int
	headerWrites int
}

func newMemStore() *memStore {
	return &memStore{
		products: map[uuid.UUID]models.Product{},
		profiles: map[uuid.UUID]models.Profile{},
		carts:    map[uuid.UUID][]models.CartLine{},
		orders:   map[uuid.UUID]models.Order{},
	}
}

func (s *memStore) addProduct(name string, price string, stock int) models.Product {
	p := models.Product{
		ID:       uuid.New(),
		Name:     name,
		Price:    decimal.RequireFromString(price),
		Stock:    stock,
		IsActive: true,
	}
	s.products[p.ID] = p
	return p
}

func (s *memStore) addUser(complete bool) uuid.UUID {
	id := uuid.New()
	p := models.Profile{ID: id, Email: "user@example.com", Role: models.RoleCustomer}
	if complete {
		p.FullName = "Asha Rao"
		p.Phone = "9876543210"
		p.Address = "12 MG Road, Bengaluru"
		p.Pincode = "560001"
	}
	s.profiles[id] = p
	return id
}

func (s *memStore) addToCart(userID uuid.UUID, p models.Product, qty int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.carts[userID] = append(s.carts[userID], models.CartLine{
		ID:        uuid.New(),
		UserID:    userID,
		ProductID: p.ID,
		Quantity:  qty,
		CreatedAt: time.Now(),
	})
}

func (s *memStore) stock(id uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.products[id].Stock
}

func (s *memStore) cartSize(userID uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.carts[userID])
}

func (s *memStore) orderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

func (s *memStore) CartLines(ctx context.Context, userID uuid.UUID) ([]models.CartLine, error) {
	if s.cartErr != nil {
		return nil, s.cartErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.CartLine, 0, len(s.carts[userID]))
	for _, l := range s.carts[userID] {
		if p, ok := s.products[l.ProductID]; ok {
			p := p
			l.Product = &p
		}
		out = append(out, l)
	}
	return out, nil
}

func (s *memStore) Profile(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	if s.profileDelay > 0 {
		select {
		case <-time.After(s.profileDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[userID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *memStore) ClearCart(ctx context.Context, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearCalls++
	if s.clearFailures > 0 {
		s.clearFailures--
		return errors.New("connection reset")
	}
	delete(s.carts, userID)
	return nil
}

func (s *memStore) CancelPlacement(ctx context.Context, orderID uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelCalls++
	o, ok := s.orders[orderID]
	if !ok {
		return nil
	}
	for _, l := range o.Lines {
		p := s.products[l.ProductID]
		p.Stock += l.Quantity
		s.products[l.ProductID] = p
		s.carts[o.UserID] = append(s.carts[o.UserID], models.CartLine{
			ID:        uuid.New(),
			UserID:    o.UserID,
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			CreatedAt: time.Now(),
		})
	}
	delete(s.orders, orderID)
	return nil
}

func (s *memStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	tx := &memTx{store: s, stock: map[uuid.UUID]int{}, consumed: map[uuid.UUID]bool{}}
	if err := fn(tx); err != nil {
		return err
	}

	if s.commitStalls {
		tx.apply()
		<-ctx.Done()
		return errors.Join(ErrCommitOutcomeUnknown, ctx.Err())
	}

	if s.commitErr != nil {
		if s.commitApplies {
			tx.apply()
		}
		return errors.Join(ErrCommitOutcomeUnknown, s.commitErr)
	}
	tx.apply()
	return nil
}

type memTx struct {
	store    *memStore
	order    *models.Order
	stock    map[uuid.UUID]int
	events   []outbox.Event
	cartUser uuid.UUID
	consumed map[uuid.UUID]bool
}

func (t *memTx) apply() {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.order != nil {
		s.orders[t.order.ID] = *t.order
	}
	for id, n := range t.stock {
		p := s.products[id]
		p.Stock -= n
		s.products[id] = p
	}
	s.events = append(s.events, t.events...)
	if len(t.consumed) > 0 {
		kept := s.carts[t.cartUser][:0:0]
		for _, l := range s.carts[t.cartUser] {
			if !t.consumed[l.ID] {
				kept = append(kept, l)
			}
		}
		s.carts[t.cartUser] = kept
	}
}

func (t *memTx) LockProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error) {
	if d := t.store.lockDelay; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[uuid.UUID]models.Product, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (t *memTx) LockCart(ctx context.Context, userID uuid.UUID) ([]models.CartLine, error) {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.CartLine(nil), s.carts[userID]...), nil
}

func (t *memTx) ConsumeCart(ctx context.Context, userID uuid.UUID, lineIDs []uuid.UUID) error {
	t.cartUser = userID
	for _, id := range lineIDs {
		t.consumed[id] = true
	}
	return nil
}

func (t *memTx) InsertOrder(ctx context.Context, o *models.Order) error {
	t.store.mu.Lock()
	t.store.headerWrites++
	t.store.mu.Unlock()

	o.CreatedAt = time.Now()
	o.UpdatedAt = o.CreatedAt
	cp := *o
	t.order = &cp
	return nil
}

func (t *memTx) InsertOrderLines(ctx context.Context, orderID uuid.UUID, lines []models.OrderLine) error {
	if t.store.insertLinesErr != nil {
		return t.store.insertLinesErr
	}
	t.order.Lines = append([]models.OrderLine(nil), lines...)
	return nil
}

func (t *memTx) DeductStock(ctx context.Context, orderID uuid.UUID, lines []models.OrderLine) error {
	for _, l := range lines {
		t.stock[l.ProductID] += l.Quantity
	}
	return nil
}

func (t *memTx) EnqueueEvent(ctx context.Context, ev outbox.Event) error {
	t.events = append(t.events, ev)
	return nil
}

type countingRecorder struct {
	mu          sync.Mutex
	outcomes    map[string]int
	compensated int
	clearFailed int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{outcomes: map[string]int{}}
}

func (r *countingRecorder) Placed(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes[outcome]++
}

func (r *countingRecorder) Compensated() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.compensated++
}

func (r *countingRecorder) CartClearFailed() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clearFailed++
}

type recordingInvalidator struct {
	mu  sync.Mutex
	ids []uuid.UUID
}

func (r *recordingInvalidator) Invalidate(ctx context.Context, ids ...uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, ids...)
}
