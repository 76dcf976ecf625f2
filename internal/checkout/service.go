// Package checkout turns a user's cart into a cash-on-delivery order.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"storefront/internal/models"
	"storefront/internal/outbox"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const DefaultTimeout = 10 * time.Second

// Recorder receives placement outcomes. *metrics.CheckoutMetrics implements it.
type Recorder interface {
	Placed(outcome string)
	Compensated()
	CartClearFailed()
}

// StockInvalidator is told which products changed stock after a commit.
type StockInvalidator interface {
	Invalidate(ctx context.Context, ids ...uuid.UUID)
}

type Options struct {
	Timeout     time.Duration
	Logger      *zap.Logger
	Metrics     Recorder
	Invalidator StockInvalidator
	// ClearBackOff builds the retry policy for the post-commit cart clear.
	ClearBackOff func() backoff.BackOff
}

type Service struct {
	store        Store
	timeout      time.Duration
	logger       *zap.Logger
	metrics      Recorder
	invalidator  StockInvalidator
	clearBackOff func() backoff.BackOff
}

func NewService(store Store, opts Options) *Service {
	s := &Service{
		store:        store,
		timeout:      opts.Timeout,
		logger:       opts.Logger,
		metrics:      opts.Metrics,
		invalidator:  opts.Invalidator,
		clearBackOff: opts.ClearBackOff,
	}
	if s.timeout <= 0 {
		s.timeout = DefaultTimeout
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.metrics == nil {
		s.metrics = nopRecorder{}
	}
	if s.clearBackOff == nil {
		s.clearBackOff = defaultClearBackOff
	}
	return s
}

func defaultClearBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxElapsedTime = 5 * time.Second
	return backoff.WithMaxRetries(b, 4)
}

type nopRecorder struct{}

func (nopRecorder) Placed(string)    {}
func (nopRecorder) Compensated()     {}
func (nopRecorder) CartClearFailed() {}

// Quote is the read-only view of what PlaceOrder would submit.
type Quote struct {
	Lines         []models.CartLine      `json:"lines"`
	Total         decimal.Decimal        `json:"total"`
	Shipping      models.ShippingAddress `json:"shipping_address"`
	MissingFields []string               `json:"missing_fields"`
}

// CartTotal sums the cart at effective prices.
func CartTotal(lines []models.CartLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.LineTotal())
	}
	return total
}

// Quote reads the cart and the shipping snapshot without writing anything.
// An empty cart or incomplete profile is reported in the result, not as an
// error.
func (s *Service) Quote(ctx context.Context, id models.Identity) (*Quote, error) {
	if id.IsZero() {
		return nil, ErrNotAuthenticated
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	lines, shipping, err := s.read(ctx, id.UserID)
	if err != nil {
		return nil, classify(err)
	}

	missing := shipping.MissingShippingFields()
	if missing == nil {
		missing = []string{}
	}
	return &Quote{
		Lines:         lines,
		Total:         CartTotal(lines),
		Shipping:      shipping,
		MissingFields: missing,
	}, nil
}

// read runs the Cart Reader and the Address Resolver concurrently.
func (s *Service) read(ctx context.Context, userID uuid.UUID) ([]models.CartLine, models.ShippingAddress, error) {
	var (
		lines   []models.CartLine
		profile *models.Profile
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		lines, err = s.store.CartLines(gctx, userID)
		if err != nil {
			return fmt.Errorf("read cart: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		profile, err = s.store.Profile(gctx, userID)
		if err != nil {
			return fmt.Errorf("resolve address: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, models.ShippingAddress{}, err
	}

	if lines == nil {
		lines = []models.CartLine{}
	}
	var shipping models.ShippingAddress
	if profile != nil {
		shipping = profile.ShippingAddress()
	}
	return lines, shipping, nil
}

// PlaceOrder converts the caller's cart into a pending COD order. Either the
// order with all its lines is committed and stock is deducted, or nothing is
// persisted. The ordered cart lines are consumed by the same transaction;
// the rest of the cart is cleared after the commit and a failed clear never
// fails the placement.
func (s *Service) PlaceOrder(ctx context.Context, id models.Identity) (*models.Order, error) {
	if id.IsZero() {
		s.metrics.Placed("not_authenticated")
		return nil, ErrNotAuthenticated
	}

	started := time.Now()
	log := s.logger.With(zap.String("user_id", id.UserID.String()))

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cart, shipping, err := s.read(ctx, id.UserID)
	if err != nil {
		err = classify(err)
		s.metrics.Placed(outcome(err))
		log.Warn("checkout read failed", zap.Error(err))
		return nil, err
	}

	if len(cart) == 0 {
		s.metrics.Placed("validation_error")
		return nil, &ValidationError{Field: "cart", Message: "cart is empty"}
	}
	if missing := shipping.MissingShippingFields(); len(missing) > 0 {
		s.metrics.Placed("incomplete_profile")
		return nil, &IncompleteProfileError{Missing: missing}
	}

	order, err := s.write(ctx, id.UserID, cart, shipping, log)
	if err != nil {
		s.metrics.Placed(outcome(err))
		return nil, err
	}

	s.metrics.Placed("placed")
	log.Info("order placed",
		zap.String("order_id", order.ID.String()),
		zap.String("total", order.TotalAmount.String()),
		zap.Int64("duration_ms", time.Since(started).Milliseconds()),
	)

	// The order is committed: everything below runs even if the caller is gone.
	after, cancelAfter := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancelAfter()

	if s.invalidator != nil {
		s.invalidator.Invalidate(after, productIDs(order.Lines)...)
	}
	s.clearCart(after, id.UserID, order.ID, log)

	return order, nil
}

func (s *Service) write(ctx context.Context, userID uuid.UUID, cart []models.CartLine, shipping models.ShippingAddress, log *zap.Logger) (*models.Order, error) {
	order := &models.Order{
		ID:              uuid.New(),
		UserID:          userID,
		ShippingAddress: shipping,
		PaymentMethod:   models.PaymentMethodCOD,
		Status:          models.OrderStatusPending,
	}
	log = log.With(zap.String("order_id", order.ID.String()))

	// Once the header insert is issued the transaction must run to commit or
	// rollback, so it gets its own deadline instead of the caller's.
	writeCtx, cancelWrite := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancelWrite()

	headerIssued := false
	err := s.store.WithTx(writeCtx, func(tx Tx) error {
		products, err := tx.LockProducts(ctx, sortedIDs(requestedQuantities(cart)))
		if err != nil {
			return fmt.Errorf("lock products: %w", err)
		}

		// The order is built from the locked cart, not the earlier read, so a
		// cart can only be turned into one order.
		locked, err := tx.LockCart(ctx, userID)
		if err != nil {
			return fmt.Errorf("lock cart: %w", err)
		}
		if len(locked) == 0 {
			return &ValidationError{Field: "cart", Message: "cart is empty"}
		}
		if missing := unlockedProducts(locked, products); len(missing) > 0 {
			more, err := tx.LockProducts(ctx, missing)
			if err != nil {
				return fmt.Errorf("lock products: %w", err)
			}
			for id, p := range more {
				products[id] = p
			}
		}
		attachProducts(locked, cart)

		if shortages := CheckStock(locked, products); len(shortages) > 0 {
			return &InsufficientStockError{Shortages: shortages}
		}

		order.Lines = buildLines(order.ID, locked, products)
		order.TotalAmount = models.LinesTotal(order.Lines)

		if err := ctx.Err(); err != nil {
			return err
		}

		headerIssued = true
		log.Debug("checkout step", zap.String("step", "insert_order"))
		if err := tx.InsertOrder(writeCtx, order); err != nil {
			return fmt.Errorf("%w: insert order: %w", ErrOrderCreationFailed, err)
		}
		log.Debug("checkout step", zap.String("step", "insert_lines"))
		if err := tx.InsertOrderLines(writeCtx, order.ID, order.Lines); err != nil {
			return fmt.Errorf("%w: insert order lines: %w", ErrOrderCreationFailed, err)
		}
		log.Debug("checkout step", zap.String("step", "deduct_stock"))
		if err := tx.DeductStock(writeCtx, order.ID, order.Lines); err != nil {
			return fmt.Errorf("%w: deduct stock: %w", ErrOrderCreationFailed, err)
		}
		log.Debug("checkout step", zap.String("step", "consume_cart"))
		if err := tx.ConsumeCart(writeCtx, userID, lineIDs(locked)); err != nil {
			return fmt.Errorf("%w: consume cart: %w", ErrOrderCreationFailed, err)
		}

		ev := outbox.NewEvent(outbox.EventOrderCreated, order.ID, userID, map[string]any{
			"total_amount":   order.TotalAmount.String(),
			"payment_method": order.PaymentMethod,
			"lines":          len(order.Lines),
		})
		if err := tx.EnqueueEvent(writeCtx, ev); err != nil {
			return fmt.Errorf("%w: enqueue event: %w", ErrOrderCreationFailed, err)
		}
		return nil
	})
	if err == nil {
		return order, nil
	}

	var (
		stockErr *InsufficientStockError
		validErr *ValidationError
	)
	switch {
	case errors.As(err, &stockErr):
		log.Info("checkout rejected", zap.Error(err))
		return nil, stockErr
	case errors.As(err, &validErr):
		log.Info("checkout rejected", zap.Error(err))
		return nil, validErr
	case errors.Is(err, ErrCommitOutcomeUnknown):
		log.Error("order commit outcome unknown, compensating", zap.Error(err))
		s.compensate(ctx, order.ID, log)
		return nil, fmt.Errorf("%w: %v", ErrOrderCreationFailed, err)
	case !headerIssued:
		err = classify(err)
		log.Warn("checkout aborted before any write", zap.Error(err))
		if errors.Is(err, ErrTimeout) || errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrOrderCreationFailed, err)
	default:
		log.Error("order creation rolled back", zap.Error(err))
		if errors.Is(err, ErrOrderCreationFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrOrderCreationFailed, err)
	}
}

// compensate undoes an order whose commit may have landed. The write
// deadline may be what failed the commit, so it runs on a fresh one.
func (s *Service) compensate(ctx context.Context, orderID uuid.UUID, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	s.metrics.Compensated()
	if err := s.store.CancelPlacement(ctx, orderID); err != nil {
		log.Error("compensation failed, order needs manual cleanup", zap.Error(err))
	}
}

func (s *Service) clearCart(ctx context.Context, userID, orderID uuid.UUID, log *zap.Logger) {
	op := func() error {
		return s.store.ClearCart(ctx, userID)
	}
	if err := backoff.Retry(op, backoff.WithContext(s.clearBackOff(), ctx)); err != nil {
		s.metrics.CartClearFailed()
		log.Error("cart clear failed after order placement",
			zap.String("order_id", orderID.String()),
			zap.Error(err),
		)
	}
}

// CheckStock compares the requested quantity of every product with what is
// available in products. Missing or inactive products have 0 available. All
// shortages are returned in cart order.
func CheckStock(cart []models.CartLine, products map[uuid.UUID]models.Product) []Shortage {
	requested := requestedQuantities(cart)

	var shortages []Shortage
	seen := make(map[uuid.UUID]bool, len(requested))
	for _, line := range cart {
		if seen[line.ProductID] {
			continue
		}
		seen[line.ProductID] = true

		available := 0
		name := ""
		if p, ok := products[line.ProductID]; ok {
			name = p.Name
			if p.IsActive {
				available = p.Stock
			}
		} else if line.Product != nil {
			name = line.Product.Name
		}

		if want := requested[line.ProductID]; want > available {
			shortages = append(shortages, Shortage{
				ProductID:   line.ProductID,
				ProductName: name,
				Requested:   want,
				Available:   available,
			})
		}
	}
	return shortages
}

// buildLines prices every line from the locked product rows, not from the
// possibly stale cart join.
func buildLines(orderID uuid.UUID, cart []models.CartLine, products map[uuid.UUID]models.Product) []models.OrderLine {
	lines := make([]models.OrderLine, 0, len(cart))
	for _, c := range cart {
		p := products[c.ProductID]
		lines = append(lines, models.OrderLine{
			OrderID:     orderID,
			ProductID:   c.ProductID,
			ProductName: p.Name,
			Quantity:    c.Quantity,
			Price:       p.EffectivePrice(),
		})
	}
	return lines
}

func requestedQuantities(cart []models.CartLine) map[uuid.UUID]int {
	out := make(map[uuid.UUID]int, len(cart))
	for _, l := range cart {
		out[l.ProductID] += l.Quantity
	}
	return out
}

// sortedIDs gives every checkout the same lock order.
func sortedIDs(m map[uuid.UUID]int) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}

// unlockedProducts lists products of the locked cart that were added after
// the first read and are not locked yet.
func unlockedProducts(cart []models.CartLine, products map[uuid.UUID]models.Product) []uuid.UUID {
	missing := map[uuid.UUID]int{}
	for _, l := range cart {
		if _, ok := products[l.ProductID]; !ok {
			missing[l.ProductID] += l.Quantity
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return sortedIDs(missing)
}

// attachProducts copies the joined product of the earlier read onto the
// locked lines so shortages of deleted products still carry a name.
func attachProducts(locked, read []models.CartLine) {
	byProduct := make(map[uuid.UUID]*models.Product, len(read))
	for _, l := range read {
		if l.Product != nil {
			byProduct[l.ProductID] = l.Product
		}
	}
	for i := range locked {
		if locked[i].Product == nil {
			locked[i].Product = byProduct[locked[i].ProductID]
		}
	}
}

func lineIDs(cart []models.CartLine) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(cart))
	for _, l := range cart {
		ids = append(ids, l.ID)
	}
	return ids
}

func productIDs(lines []models.OrderLine) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ProductID)
	}
	return ids
}

// classify turns deadline errors into the retryable ErrTimeout.
func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}

func outcome(err error) string {
	switch {
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrOrderCreationFailed):
		return "order_creation_failed"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "error"
	}
}
