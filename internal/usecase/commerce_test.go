package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/tanvi-vanity/vanity-agent/internal/core/domain"
	"github.com/tanvi-vanity/vanity-agent/internal/infra/stub"
	"github.com/tanvi-vanity/vanity-agent/internal/repository"
)

type memMarkets struct {
	rows map[string]domain.Market
}

func (r *memMarkets) List(context.Context) ([]domain.Market, error) {
	out := make([]domain.Market, 0, len(r.rows))
	for _, m := range r.rows {
		out = append(out, m)
	}
	return out, nil
}

func (r *memMarkets) Get(_ context.Context, code string) (*domain.Market, error) {
	m, ok := r.rows[code]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &m, nil
}

type memCatalog struct {
	mu       sync.Mutex
	products map[string]domain.Product
}

func (r *memCatalog) ListMerchants(context.Context, string) ([]domain.Merchant, error) {
	return nil, errUnexpectedCall
}

func (r *memCatalog) ListProducts(context.Context, domain.ProductFilter) ([]domain.Product, error) {
	return nil, errUnexpectedCall
}

func (r *memCatalog) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (r *memCatalog) ReserveStock(_ context.Context, productID string, qty int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[productID]
	if !ok || p.StockQuantity < qty {
		return false, nil
	}
	p.StockQuantity -= qty
	r.products[productID] = p
	return true, nil
}

type memCarts struct {
	carts map[string]domain.Cart
}

func (r *memCarts) GetOrCreateActive(_ context.Context, defaults domain.Cart) (*domain.Cart, error) {
	for _, c := range r.carts {
		if c.UserID == defaults.UserID && c.MarketCode == defaults.MarketCode && c.Status == domain.CartActive {
			c.Items = append([]domain.CartItem(nil), c.Items...)
			return &c, nil
		}
	}
	r.carts[defaults.ID] = defaults
	return &defaults, nil
}

func (r *memCarts) AddItem(_ context.Context, item domain.CartItem) error {
	c, ok := r.carts[item.CartID]
	if !ok {
		return repository.ErrNotFound
	}
	c.Items = append(c.Items, item)
	r.carts[c.ID] = c
	return nil
}

func (r *memCarts) UpdateItemQuantity(_ context.Context, cartID, itemID string, qty int) error {
	c, ok := r.carts[cartID]
	if !ok {
		return repository.ErrNotFound
	}
	for i := range c.Items {
		if c.Items[i].ID == itemID {
			c.Items[i].Quantity = qty
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r *memCarts) RemoveItem(_ context.Context, cartID, itemID string) error {
	c, ok := r.carts[cartID]
	if !ok {
		return repository.ErrNotFound
	}
	for i := range c.Items {
		if c.Items[i].ID == itemID {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			r.carts[cartID] = c
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r *memCarts) SetStatus(_ context.Context, cartID string, status domain.CartStatus, at time.Time) error {
	c, ok := r.carts[cartID]
	if !ok {
		return repository.ErrNotFound
	}
	c.Status = status
	c.UpdatedAt = at
	r.carts[cartID] = c
	return nil
}

type memOrders struct {
	rows map[string]domain.Order
}

func (r *memOrders) Create(_ context.Context, order domain.Order) error {
	r.rows[order.ID] = order
	return nil
}

func (r *memOrders) Get(_ context.Context, userID, id string) (*domain.Order, error) {
	o, ok := r.rows[id]
	if !ok || o.UserID != userID {
		return nil, repository.ErrNotFound
	}
	return &o, nil
}

func (r *memOrders) GetForUpdate(ctx context.Context, userID, id string) (*domain.Order, error) {
	return r.Get(ctx, userID, id)
}

func (r *memOrders) List(context.Context, string, int) ([]domain.Order, error) {
	return nil, errUnexpectedCall
}

func (r *memOrders) UpdateStatus(_ context.Context, order domain.Order) error {
	if _, ok := r.rows[order.ID]; !ok {
		return repository.ErrNotFound
	}
	r.rows[order.ID] = order
	return nil
}

type memPayments struct {
	rows []domain.PaymentTransaction
	// raced, when set, is inserted just before the next Create to simulate a
	// concurrent request winning the idempotency key.
	raced *domain.PaymentTransaction
}

func (r *memPayments) Create(_ context.Context, txn domain.PaymentTransaction) error {
	if r.raced != nil {
		r.rows = append(r.rows, *r.raced)
		r.raced = nil
	}
	for _, row := range r.rows {
		if row.UserID == txn.UserID && row.IdempotencyKey == txn.IdempotencyKey {
			return domain.NewError(domain.KindConflict, "duplicate_payment", "payment already recorded")
		}
	}
	r.rows = append(r.rows, txn)
	return nil
}

func (r *memPayments) Get(_ context.Context, userID, id string) (*domain.PaymentTransaction, error) {
	for _, row := range r.rows {
		if row.ID == id && row.UserID == userID {
			return &row, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memPayments) GetByIdempotencyKey(_ context.Context, userID, key string) (*domain.PaymentTransaction, error) {
	for _, row := range r.rows {
		if row.UserID == userID && row.IdempotencyKey == key {
			return &row, nil
		}
	}
	return nil, repository.ErrNotFound
}

type recordingNotifier struct {
	messages []domain.NotificationMessage
}

func (r *recordingNotifier) PublishNotification(_ context.Context, msg domain.NotificationMessage) error {
	r.messages = append(r.messages, msg)
	return nil
}

type commerceHarness struct {
	catalog  *memCatalog
	carts    *memCarts
	orders   *memOrders
	payments *memPayments
	audit    *recordingAudit
	notifier *recordingNotifier
	service  *CommerceService
}

func newCommerceHarness(t *testing.T) *commerceHarness {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("NewNode returned error: %v", err)
	}
	markets := &memMarkets{rows: map[string]domain.Market{
		"US": {Code: "US", Name: "United States", Currency: "USD", TaxRate: 0.08, ShippingFee: 9.99, FreeShippingThreshold: 100, Active: true},
		"IN": {Code: "IN", Name: "India", Currency: "INR", TaxRate: 0.18, ShippingFee: 99, FreeShippingThreshold: 999, Active: true},
	}}
	h := &commerceHarness{
		catalog: &memCatalog{products: map[string]domain.Product{
			"tee":   {ID: "tee", MarketCode: "US", Name: "Organic tee", Price: 24.50, StockQuantity: 5, Active: true},
			"kurta": {ID: "kurta", MarketCode: "IN", Name: "Cotton kurta", Price: 1299, StockQuantity: 2, Active: true},
			"scarf": {ID: "scarf", MarketCode: "US", Name: "Silk scarf", Price: 60, StockQuantity: 1, Active: true},
		}},
		carts:    &memCarts{carts: make(map[string]domain.Cart)},
		orders:   &memOrders{rows: make(map[string]domain.Order)},
		payments: &memPayments{},
		audit:    &recordingAudit{},
		notifier: &recordingNotifier{},
	}
	h.service = NewCommerceService(markets, h.catalog, h.carts, h.orders, h.payments, stub.NewPaymentProcessor(), node, nil).
		WithTransactor(&passthroughTx{}).
		WithAudit(h.audit).
		WithNotifications(h.notifier)
	h.service.WithClock(newTestClock().Now)
	return h
}

var testAddress = map[string]string{
	"name":        "Priya Sharma",
	"line1":       "12 Market St",
	"city":        "Austin",
	"postal_code": "78701",
	"country":     "US",
}

func TestCommerceServiceCartTotals(t *testing.T) {
	h := newCommerceHarness(t)
	ctx := context.Background()

	view, err := h.service.AddToCart(ctx, "buyer", "us", CartItemInput{ProductID: "tee", Quantity: 2, Size: "M"})
	if err != nil {
		t.Fatalf("AddToCart returned error: %v", err)
	}
	// 49.00 subtotal, 3.92 tax, shipping charged below the 100 threshold.
	if view.Totals.Subtotal != 49 || view.Totals.Tax != 3.92 || view.Totals.Shipping != 9.99 || view.Totals.Total != 62.91 {
		t.Fatalf("unexpected totals: %+v", view.Totals)
	}

	view, err = h.service.AddToCart(ctx, "buyer", "US", CartItemInput{ProductID: "tee", Quantity: 2, Size: "M"})
	if err != nil {
		t.Fatalf("AddToCart returned error: %v", err)
	}
	if len(view.Cart.Items) != 1 || view.Cart.Items[0].Quantity != 4 {
		t.Fatalf("expected the line quantity to grow, got %+v", view.Cart.Items)
	}
	if view.Totals.Shipping != 9.99 {
		t.Fatalf("expected shipping below threshold, got %+v", view.Totals)
	}

	view, err = h.service.AddToCart(ctx, "buyer", "US", CartItemInput{ProductID: "scarf", Quantity: 1})
	if err != nil {
		t.Fatalf("AddToCart returned error: %v", err)
	}
	if view.Totals.Subtotal != 158 || view.Totals.Shipping != 0 {
		t.Fatalf("expected free shipping above threshold, got %+v", view.Totals)
	}
}

func TestCommerceServiceCartRejections(t *testing.T) {
	h := newCommerceHarness(t)
	ctx := context.Background()

	if _, err := h.service.AddToCart(ctx, "buyer", "US", CartItemInput{ProductID: "tee", Quantity: 0}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected quantity validation, got %v", err)
	}
	if _, err := h.service.AddToCart(ctx, "buyer", "US", CartItemInput{ProductID: "kurta", Quantity: 1}); !errors.Is(err, ErrProductMarketMismatch) {
		t.Fatalf("expected market mismatch, got %v", err)
	}
	if _, err := h.service.AddToCart(ctx, "buyer", "US", CartItemInput{ProductID: "scarf", Quantity: 2}); !errors.Is(err, ErrOutOfStock) {
		t.Fatalf("expected out of stock, got %v", err)
	}
	if _, err := h.service.AddToCart(ctx, "buyer", "FR", CartItemInput{ProductID: "tee", Quantity: 1}); !errors.Is(err, ErrMarketNotFound) {
		t.Fatalf("expected unknown market, got %v", err)
	}
}

func TestCommerceServiceCheckout(t *testing.T) {
	h := newCommerceHarness(t)
	ctx := context.Background()

	if _, err := h.service.Checkout(ctx, "buyer", CheckoutInput{MarketCode: "US", ShippingAddress: testAddress}); !errors.Is(err, ErrCartEmpty) {
		t.Fatalf("expected cart_empty, got %v", err)
	}
	if _, err := h.service.Checkout(ctx, "buyer", CheckoutInput{MarketCode: "US", ShippingAddress: map[string]string{"name": "x"}}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected address validation, got %v", err)
	}

	if _, err := h.service.AddToCart(ctx, "buyer", "US", CartItemInput{ProductID: "tee", Quantity: 3}); err != nil {
		t.Fatalf("AddToCart returned error: %v", err)
	}
	order, err := h.service.Checkout(ctx, "buyer", CheckoutInput{MarketCode: "US", ShippingAddress: testAddress})
	if err != nil {
		t.Fatalf("Checkout returned error: %v", err)
	}
	if !strings.HasPrefix(order.OrderNumber, "TV-") {
		t.Fatalf("unexpected order number %q", order.OrderNumber)
	}
	if order.Status != domain.OrderConfirmed || order.PaymentStatus != domain.PaymentPending || len(order.Items) != 1 {
		t.Fatalf("unexpected order: %+v", order)
	}
	if got := h.catalog.products["tee"].StockQuantity; got != 2 {
		t.Fatalf("expected stock reserved down to 2, got %d", got)
	}

	// The converted cart is replaced by a fresh empty one.
	view, err := h.service.Cart(ctx, "buyer", "US")
	if err != nil {
		t.Fatalf("Cart returned error: %v", err)
	}
	if len(view.Cart.Items) != 0 {
		t.Fatalf("expected a new empty cart, got %+v", view.Cart.Items)
	}
}

func TestCommerceServicePaymentIsIdempotent(t *testing.T) {
	h := newCommerceHarness(t)
	ctx := context.Background()
	if _, err := h.service.AddToCart(ctx, "buyer", "US", CartItemInput{ProductID: "tee", Quantity: 1}); err != nil {
		t.Fatalf("AddToCart returned error: %v", err)
	}
	order, err := h.service.Checkout(ctx, "buyer", CheckoutInput{MarketCode: "US", ShippingAddress: testAddress})
	if err != nil {
		t.Fatalf("Checkout returned error: %v", err)
	}

	in := PaymentInput{OrderID: order.ID, Method: domain.MethodCard, Amount: order.Total, IdempotencyKey: "checkout-42"}
	first, err := h.service.Pay(ctx, "buyer", in)
	if err != nil {
		t.Fatalf("Pay returned error: %v", err)
	}
	if first.Replayed || first.Transaction.Status != domain.TransactionCompleted {
		t.Fatalf("unexpected first payment: %+v", first)
	}
	if first.Order.Status != domain.OrderPaid || first.Order.PaidAt == nil {
		t.Fatalf("expected order paid, got %+v", first.Order)
	}

	second, err := h.service.Pay(ctx, "buyer", in)
	if err != nil {
		t.Fatalf("replayed Pay returned error: %v", err)
	}
	if !second.Replayed || second.Transaction.ID != first.Transaction.ID {
		t.Fatalf("expected the original transaction, got %+v", second)
	}
	if len(h.payments.rows) != 1 {
		t.Fatalf("expected a single payment row, got %d", len(h.payments.rows))
	}

	if len(h.notifier.messages) != 1 || h.notifier.messages[0].Kind != domain.NotifyOrderPaid || h.notifier.messages[0].RecipientID != "buyer" {
		t.Fatalf("expected one order_paid notification, got %+v", h.notifier.messages)
	}
	if len(h.audit.messages) != 1 || h.audit.messages[0].Severity != domain.SeverityInfo {
		t.Fatalf("expected one info payment audit, got %+v", h.audit.messages)
	}

	in.IdempotencyKey = "checkout-43"
	if _, err := h.service.Pay(ctx, "buyer", in); !errors.Is(err, ErrOrderAlreadyPaid) {
		t.Fatalf("expected order_already_paid with a new key, got %v", err)
	}
}

func TestCommerceServicePaymentRaceReplaysWinner(t *testing.T) {
	h := newCommerceHarness(t)
	ctx := context.Background()
	if _, err := h.service.AddToCart(ctx, "buyer", "US", CartItemInput{ProductID: "tee", Quantity: 1}); err != nil {
		t.Fatalf("AddToCart returned error: %v", err)
	}
	order, err := h.service.Checkout(ctx, "buyer", CheckoutInput{MarketCode: "US", ShippingAddress: testAddress})
	if err != nil {
		t.Fatalf("Checkout returned error: %v", err)
	}
	h.payments.raced = &domain.PaymentTransaction{
		ID:             "winner",
		OrderID:        order.ID,
		UserID:         "buyer",
		IdempotencyKey: "same-key",
		Status:         domain.TransactionCompleted,
	}

	res, err := h.service.Pay(ctx, "buyer", PaymentInput{OrderID: order.ID, Method: domain.MethodUPI, Amount: order.Total, IdempotencyKey: "same-key"})
	if err != nil {
		t.Fatalf("Pay returned error: %v", err)
	}
	if !res.Replayed || res.Transaction.ID != "winner" {
		t.Fatalf("expected the concurrent winner to be replayed, got %+v", res)
	}
	if len(h.notifier.messages) != 0 {
		t.Fatalf("the losing request must not notify")
	}
}

func TestCommerceServiceDeclinedPayment(t *testing.T) {
	h := newCommerceHarness(t)
	ctx := context.Background()
	if _, err := h.service.AddToCart(ctx, "buyer", "US", CartItemInput{ProductID: "tee", Quantity: 1}); err != nil {
		t.Fatalf("AddToCart returned error: %v", err)
	}
	order, err := h.service.Checkout(ctx, "buyer", CheckoutInput{MarketCode: "US", ShippingAddress: testAddress})
	if err != nil {
		t.Fatalf("Checkout returned error: %v", err)
	}

	res, err := h.service.Pay(ctx, "buyer", PaymentInput{OrderID: order.ID, Method: domain.MethodCard, Amount: 13.13, IdempotencyKey: "decline-me"})
	if err != nil {
		t.Fatalf("Pay returned error: %v", err)
	}
	if res.Transaction.Status != domain.TransactionFailed || res.Order.PaymentStatus != domain.PaymentFailed {
		t.Fatalf("expected a failed payment, got %+v", res)
	}
	if res.Order.Status != domain.OrderConfirmed {
		t.Fatalf("expected the order to remain payable, got %s", res.Order.Status)
	}
	if len(h.notifier.messages) != 0 {
		t.Fatalf("expected no notification for a declined payment")
	}
	if len(h.audit.messages) != 1 || h.audit.messages[0].Severity != domain.SeverityWarning {
		t.Fatalf("expected a warning audit, got %+v", h.audit.messages)
	}

	if _, err := h.service.Pay(ctx, "buyer", PaymentInput{OrderID: order.ID, Method: "cash", Amount: 1, IdempotencyKey: "k"}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected method validation, got %v", err)
	}
}

func TestCommerceServiceOrderTransitions(t *testing.T) {
	h := newCommerceHarness(t)
	ctx := context.Background()
	if _, err := h.service.AddToCart(ctx, "buyer", "US", CartItemInput{ProductID: "scarf", Quantity: 1}); err != nil {
		t.Fatalf("AddToCart returned error: %v", err)
	}
	order, err := h.service.Checkout(ctx, "buyer", CheckoutInput{MarketCode: "US", ShippingAddress: testAddress})
	if err != nil {
		t.Fatalf("Checkout returned error: %v", err)
	}

	if _, err := h.service.ShipOrder(ctx, "buyer", order.ID); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected unpaid order to refuse shipping, got %v", err)
	}
	cancelled, err := h.service.CancelOrder(ctx, "buyer", order.ID)
	if err != nil {
		t.Fatalf("CancelOrder returned error: %v", err)
	}
	if cancelled.Status != domain.OrderCancelled || cancelled.CancelledAt == nil {
		t.Fatalf("unexpected cancelled order: %+v", cancelled)
	}
	if _, err := h.service.Order(ctx, "someone-else", order.ID); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected other users not to see the order, got %v", err)
	}
}
