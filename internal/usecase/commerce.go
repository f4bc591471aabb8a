package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/segmentio/ksuid"
	"go.uber.org/zap"

	"github.com/tanvi-vanity/vanity-agent/internal/core/domain"
	"github.com/tanvi-vanity/vanity-agent/internal/core/port"
	"github.com/tanvi-vanity/vanity-agent/internal/infra/config"
	"github.com/tanvi-vanity/vanity-agent/internal/repository"
)

var (
	ErrMarketNotFound   = domain.NotFound("market")
	ErrProductNotFound  = domain.NotFound("product")
	ErrCartItemNotFound = domain.NotFound("cart_item")
	ErrOrderNotFound    = domain.NotFound("order")
	ErrPaymentNotFound  = domain.NotFound("payment")

	// ErrOutOfStock indicates the product cannot supply the requested quantity.
	ErrOutOfStock = domain.NewError(domain.KindConflict, "out_of_stock", "product does not have enough stock")
	// ErrCartEmpty indicates checkout of a cart with no items.
	ErrCartEmpty = domain.NewError(domain.KindValidation, "cart_empty", "cart has no items")
	// ErrProductMarketMismatch indicates a product sold in a different market than the cart.
	ErrProductMarketMismatch = domain.NewError(domain.KindValidation, "product_market_mismatch", "product is not sold in this market")
	// ErrOrderAlreadyPaid indicates a payment for an order that is settled.
	ErrOrderAlreadyPaid = domain.NewError(domain.KindConflict, "order_already_paid", "order is already paid")
	// ErrOrderNotPayable indicates a payment for an order outside the confirmed state.
	ErrOrderNotPayable = domain.NewError(domain.KindConflict, "order_not_payable", "order cannot be paid in its current state")
)

const (
	defaultMarketCode   = "US"
	defaultOrdersLimit  = 50
	orderNumberPrefix   = "TV"
	paymentRefPrefix    = "txn_"
	auditSourceCommerce = config.ServiceCommerce
)

// duplicatePayment matches the repository's conflict on a reused idempotency key.
var duplicatePayment = &domain.Error{Kind: domain.KindConflict, Code: "duplicate_payment"}

// CartItemInput is a product line to add to the cart.
type CartItemInput struct {
	ProductID string
	Quantity  int
	Size      string
	Color     string
}

// CartView is a cart with its computed totals.
type CartView struct {
	Cart   domain.Cart
	Totals domain.Totals
}

// CheckoutInput carries the market and the shipping address.
type CheckoutInput struct {
	MarketCode      string
	ShippingAddress map[string]string
}

// PaymentInput is a payment request for an order.
type PaymentInput struct {
	OrderID        string
	Method         domain.PaymentMethod
	Amount         float64
	IdempotencyKey string
}

// PaymentResult is a processed payment and the order it applied to. Replayed
// is set when the idempotency key matched an earlier transaction.
type PaymentResult struct {
	Transaction domain.PaymentTransaction
	Order       domain.Order
	Replayed    bool
}

// CommerceService owns markets, catalog, carts, orders and payments.
type CommerceService struct {
	markets       port.MarketRepository
	catalog       port.CatalogRepository
	carts         port.CartRepository
	orders        port.OrderRepository
	payments      port.PaymentRepository
	processor     port.PaymentProcessor
	orderNumbers  *snowflake.Node
	tx            port.Transactor
	audit         port.AuditRecorder
	notifications port.NotificationPublisher
	logger        *zap.Logger
	now           func() time.Time
}

// NewCommerceService constructs a CommerceService.
func NewCommerceService(
	markets port.MarketRepository,
	catalog port.CatalogRepository,
	carts port.CartRepository,
	orders port.OrderRepository,
	payments port.PaymentRepository,
	processor port.PaymentProcessor,
	orderNumbers *snowflake.Node,
	logger *zap.Logger,
) *CommerceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CommerceService{
		markets:      markets,
		catalog:      catalog,
		carts:        carts,
		orders:       orders,
		payments:     payments,
		processor:    processor,
		orderNumbers: orderNumbers,
		logger:       logger,
		now:          utcNow,
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (s *CommerceService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// WithTransactor makes checkout and payment settlement atomic.
func (s *CommerceService) WithTransactor(tx port.Transactor) *CommerceService {
	s.tx = tx
	return s
}

// WithAudit reports payment outcomes to the identity audit sink.
func (s *CommerceService) WithAudit(recorder port.AuditRecorder) *CommerceService {
	s.audit = recorder
	return s
}

// WithNotifications asks the social service to notify buyers of paid orders.
func (s *CommerceService) WithNotifications(pub port.NotificationPublisher) *CommerceService {
	s.notifications = pub
	return s
}

// Markets lists active markets.
func (s *CommerceService) Markets(ctx context.Context) ([]domain.Market, error) {
	markets, err := s.markets.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list markets: %w", err)
	}
	return markets, nil
}

// Market returns one market by code.
func (s *CommerceService) Market(ctx context.Context, code string) (*domain.Market, error) {
	code = normalizeMarket(code)
	market, err := s.markets.Get(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrMarketNotFound
		}
		return nil, fmt.Errorf("get market: %w", err)
	}
	return market, nil
}

func normalizeMarket(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return defaultMarketCode
	}
	return code
}

// Merchants lists merchants of a market; an empty code lists all.
func (s *CommerceService) Merchants(ctx context.Context, marketCode string) ([]domain.Merchant, error) {
	merchants, err := s.catalog.ListMerchants(ctx, strings.ToUpper(strings.TrimSpace(marketCode)))
	if err != nil {
		return nil, fmt.Errorf("list merchants: %w", err)
	}
	return merchants, nil
}

// Products searches the catalog.
func (s *CommerceService) Products(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	filter.MarketCode = strings.ToUpper(strings.TrimSpace(filter.MarketCode))
	filter.Category = strings.ToLower(strings.TrimSpace(filter.Category))
	filter.Search = strings.TrimSpace(filter.Search)
	filter.Limit = pageLimit(filter.Limit, 20, 100)
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	if filter.MinPrice != nil && filter.MaxPrice != nil && *filter.MinPrice > *filter.MaxPrice {
		return nil, domain.Validation("min_price", "must not exceed max_price")
	}
	products, err := s.catalog.ListProducts(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return products, nil
}

// Product returns one product.
func (s *CommerceService) Product(ctx context.Context, id string) (*domain.Product, error) {
	product, err := s.catalog.GetProduct(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	return product, nil
}

// Cart returns the user's active cart in the market, creating it on first access.
func (s *CommerceService) Cart(ctx context.Context, userID, marketCode string) (*CartView, error) {
	market, err := s.Market(ctx, marketCode)
	if err != nil {
		return nil, err
	}
	cart, err := s.activeCart(ctx, userID, market.Code)
	if err != nil {
		return nil, err
	}
	return &CartView{Cart: *cart, Totals: domain.ComputeTotals(cart.Items, *market)}, nil
}

func (s *CommerceService) activeCart(ctx context.Context, userID, marketCode string) (*domain.Cart, error) {
	now := s.now()
	cart, err := s.carts.GetOrCreateActive(ctx, domain.Cart{
		ID:         uuid.NewString(),
		UserID:     userID,
		MarketCode: marketCode,
		Status:     domain.CartActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	return cart, nil
}

// AddToCart adds a product line. Adding a product already in the cart with the
// same size and color raises that line's quantity instead.
func (s *CommerceService) AddToCart(ctx context.Context, userID, marketCode string, in CartItemInput) (*CartView, error) {
	if err := domain.ValidateQuantity(in.Quantity); err != nil {
		return nil, err
	}
	market, err := s.Market(ctx, marketCode)
	if err != nil {
		return nil, err
	}
	product, err := s.Product(ctx, in.ProductID)
	if err != nil {
		return nil, err
	}
	if product.MarketCode != market.Code {
		return nil, ErrProductMarketMismatch
	}

	err = withinTx(ctx, s.tx, func(ctx context.Context) error {
		cart, err := s.activeCart(ctx, userID, market.Code)
		if err != nil {
			return err
		}
		for _, line := range cart.Items {
			if line.ProductID != product.ID || line.Size != in.Size || line.Color != in.Color {
				continue
			}
			qty := line.Quantity + in.Quantity
			if err := domain.ValidateQuantity(qty); err != nil {
				return err
			}
			if !product.InStock(qty) {
				return ErrOutOfStock
			}
			return s.carts.UpdateItemQuantity(ctx, cart.ID, line.ID, qty)
		}
		if !product.InStock(in.Quantity) {
			return ErrOutOfStock
		}
		return s.carts.AddItem(ctx, domain.CartItem{
			ID:          uuid.NewString(),
			CartID:      cart.ID,
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    in.Quantity,
			UnitPrice:   product.Price,
			Size:        strings.TrimSpace(in.Size),
			Color:       strings.TrimSpace(in.Color),
			CreatedAt:   s.now(),
		})
	})
	if err != nil {
		return nil, err
	}
	return s.Cart(ctx, userID, market.Code)
}

// UpdateCartItem sets a line's quantity.
func (s *CommerceService) UpdateCartItem(ctx context.Context, userID, marketCode, itemID string, qty int) (*CartView, error) {
	if err := domain.ValidateQuantity(qty); err != nil {
		return nil, err
	}
	view, err := s.Cart(ctx, userID, marketCode)
	if err != nil {
		return nil, err
	}
	line := findCartItem(view.Cart.Items, itemID)
	if line == nil {
		return nil, ErrCartItemNotFound
	}
	product, err := s.Product(ctx, line.ProductID)
	if err != nil {
		return nil, err
	}
	if !product.InStock(qty) {
		return nil, ErrOutOfStock
	}
	if err := s.carts.UpdateItemQuantity(ctx, view.Cart.ID, itemID, qty); err != nil {
		return nil, notFoundAs(err, "cart_item")
	}
	return s.Cart(ctx, userID, marketCode)
}

// RemoveCartItem deletes a line.
func (s *CommerceService) RemoveCartItem(ctx context.Context, userID, marketCode, itemID string) (*CartView, error) {
	view, err := s.Cart(ctx, userID, marketCode)
	if err != nil {
		return nil, err
	}
	if err := s.carts.RemoveItem(ctx, view.Cart.ID, itemID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrCartItemNotFound
		}
		return nil, fmt.Errorf("remove cart item: %w", err)
	}
	return s.Cart(ctx, userID, marketCode)
}

func findCartItem(items []domain.CartItem, id string) *domain.CartItem {
	for i := range items {
		if items[i].ID == id {
			return &items[i]
		}
	}
	return nil
}

// Checkout converts the active cart into a confirmed order. Stock is reserved
// line by line; any shortfall rolls the whole checkout back.
func (s *CommerceService) Checkout(ctx context.Context, userID string, in CheckoutInput) (*domain.Order, error) {
	if err := domain.ValidateShippingAddress(in.ShippingAddress); err != nil {
		return nil, err
	}
	market, err := s.Market(ctx, in.MarketCode)
	if err != nil {
		return nil, err
	}

	var order domain.Order
	err = withinTx(ctx, s.tx, func(ctx context.Context) error {
		cart, err := s.activeCart(ctx, userID, market.Code)
		if err != nil {
			return err
		}
		if len(cart.Items) == 0 {
			return ErrCartEmpty
		}
		for _, line := range cart.Items {
			ok, err := s.catalog.ReserveStock(ctx, line.ProductID, line.Quantity)
			if err != nil {
				return fmt.Errorf("reserve stock: %w", err)
			}
			if !ok {
				return ErrOutOfStock
			}
		}

		now := s.now()
		totals := domain.ComputeTotals(cart.Items, *market)
		order = domain.Order{
			ID:              uuid.NewString(),
			OrderNumber:     fmt.Sprintf("%s-%s", orderNumberPrefix, s.orderNumbers.Generate().String()),
			UserID:          userID,
			MarketCode:      market.Code,
			Status:          domain.OrderConfirmed,
			PaymentStatus:   domain.PaymentPending,
			Subtotal:        totals.Subtotal,
			Tax:             totals.Tax,
			Shipping:        totals.Shipping,
			Total:           totals.Total,
			Currency:        totals.Currency,
			ShippingAddress: in.ShippingAddress,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		for _, line := range cart.Items {
			order.Items = append(order.Items, domain.OrderItem{
				ID:          uuid.NewString(),
				OrderID:     order.ID,
				ProductID:   line.ProductID,
				ProductName: line.ProductName,
				Quantity:    line.Quantity,
				UnitPrice:   line.UnitPrice,
				Size:        line.Size,
				Color:       line.Color,
			})
		}
		if err := s.orders.Create(ctx, order); err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		return s.carts.SetStatus(ctx, cart.ID, domain.CartConverted, now)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("order placed",
		zap.String("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.Float64("total", order.Total),
		zap.String("currency", order.Currency),
	)
	return &order, nil
}

// Orders lists the user's orders, newest first.
func (s *CommerceService) Orders(ctx context.Context, userID string, limit int) ([]domain.Order, error) {
	orders, err := s.orders.List(ctx, userID, pageLimit(limit, defaultOrdersLimit, 200))
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

// Order returns one of the user's orders.
func (s *CommerceService) Order(ctx context.Context, userID, id string) (*domain.Order, error) {
	order, err := s.orders.Get(ctx, userID, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	return order, nil
}

// CancelOrder cancels an order that has not shipped.
func (s *CommerceService) CancelOrder(ctx context.Context, userID, id string) (*domain.Order, error) {
	return s.transition(ctx, userID, id, domain.OrderCancelled)
}

// ShipOrder marks a paid order as shipped.
func (s *CommerceService) ShipOrder(ctx context.Context, userID, id string) (*domain.Order, error) {
	return s.transition(ctx, userID, id, domain.OrderShipped)
}

// DeliverOrder marks a shipped order as delivered.
func (s *CommerceService) DeliverOrder(ctx context.Context, userID, id string) (*domain.Order, error) {
	return s.transition(ctx, userID, id, domain.OrderDelivered)
}

func (s *CommerceService) transition(ctx context.Context, userID, id string, next domain.OrderStatus) (*domain.Order, error) {
	var result domain.Order
	err := withinTx(ctx, s.tx, func(ctx context.Context) error {
		order, err := s.orders.GetForUpdate(ctx, userID, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrOrderNotFound
			}
			return fmt.Errorf("lock order: %w", err)
		}
		if err := order.Transition(next, s.now()); err != nil {
			return err
		}
		if err := s.orders.UpdateStatus(ctx, *order); err != nil {
			return fmt.Errorf("update order: %w", err)
		}
		result = *order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Pay charges an order through the payment processor. A completed charge
// covering the total marks the order paid in the same transaction as the
// payment row. Reusing an idempotency key returns the original transaction.
func (s *CommerceService) Pay(ctx context.Context, userID string, in PaymentInput) (*PaymentResult, error) {
	in.IdempotencyKey = strings.TrimSpace(in.IdempotencyKey)
	if in.IdempotencyKey == "" {
		return nil, domain.Validation("idempotency_key", "is required")
	}
	if len(in.IdempotencyKey) > 128 {
		return nil, domain.Validation("idempotency_key", "must be at most 128 characters")
	}
	if !in.Method.Valid() {
		return nil, domain.Validation("payment_method", "must be one of card, upi, wallet, netbanking")
	}
	if in.Amount <= 0 {
		return nil, domain.Validation("amount", "must be positive")
	}

	if replay, err := s.replay(ctx, userID, in.IdempotencyKey); replay != nil || err != nil {
		return replay, err
	}

	order, err := s.Order(ctx, userID, in.OrderID)
	if err != nil {
		return nil, err
	}
	if order.PaymentStatus == domain.PaymentPaid {
		return nil, ErrOrderAlreadyPaid
	}
	if order.Status != domain.OrderConfirmed {
		return nil, ErrOrderNotPayable
	}

	reference := paymentRefPrefix + ksuid.New().String()
	outcome, err := s.processor.Charge(ctx, domain.PaymentCharge{
		Reference: reference,
		OrderID:   order.ID,
		Method:    in.Method,
		Amount:    domain.RoundMoney(in.Amount),
		Currency:  order.Currency,
	})
	if err != nil {
		return nil, fmt.Errorf("charge payment: %w", err)
	}

	txn := domain.PaymentTransaction{
		ID:             uuid.NewString(),
		Reference:      reference,
		OrderID:        order.ID,
		UserID:         userID,
		IdempotencyKey: in.IdempotencyKey,
		Method:         in.Method,
		Amount:         domain.RoundMoney(in.Amount),
		Currency:       order.Currency,
		Status:         outcome.Status,
		ProcessorRef:   outcome.ProcessorRef,
		FailureReason:  outcome.FailureReason,
		CreatedAt:      s.now(),
	}

	var settled domain.Order
	err = withinTx(ctx, s.tx, func(ctx context.Context) error {
		locked, err := s.orders.GetForUpdate(ctx, userID, order.ID)
		if err != nil {
			return notFoundAs(err, "order")
		}
		if err := s.payments.Create(ctx, txn); err != nil {
			return err
		}
		switch {
		case txn.Settles(*locked):
			if err := locked.Transition(domain.OrderPaid, txn.CreatedAt); err != nil {
				return err
			}
		case txn.Status == domain.TransactionFailed && locked.PaymentStatus != domain.PaymentPaid:
			locked.PaymentStatus = domain.PaymentFailed
			locked.UpdatedAt = txn.CreatedAt
		default:
			settled = *locked
			return nil
		}
		if err := s.orders.UpdateStatus(ctx, *locked); err != nil {
			return fmt.Errorf("update order: %w", err)
		}
		settled = *locked
		return nil
	})
	if errors.Is(err, duplicatePayment) {
		// A concurrent request with the same key won the insert.
		return s.replay(ctx, userID, in.IdempotencyKey)
	}
	if err != nil {
		return nil, err
	}

	s.announcePayment(ctx, txn, settled)
	return &PaymentResult{Transaction: txn, Order: settled}, nil
}

func (s *CommerceService) replay(ctx context.Context, userID, key string) (*PaymentResult, error) {
	existing, err := s.payments.GetByIdempotencyKey(ctx, userID, key)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("lookup payment: %w", err)
	}
	order, err := s.Order(ctx, userID, existing.OrderID)
	if err != nil {
		return nil, err
	}
	return &PaymentResult{Transaction: *existing, Order: *order, Replayed: true}, nil
}

// announcePayment enqueues the audit message and, for paid orders, the buyer
// notification. Delivery failures are logged; the payment already committed.
func (s *CommerceService) announcePayment(ctx context.Context, txn domain.PaymentTransaction, order domain.Order) {
	if s.audit != nil {
		userID := txn.UserID
		severity := domain.SeverityInfo
		if txn.Status == domain.TransactionFailed {
			severity = domain.SeverityWarning
		}
		err := s.audit.RecordAudit(ctx, domain.AuditMessage{
			IdempotencyKey: "payment:" + txn.Reference,
			UserID:         &userID,
			EventType:      domain.EventDataAccess,
			Severity:       severity,
			Description:    "payment " + string(txn.Status) + " for order " + order.OrderNumber,
			Source:         auditSourceCommerce,
			Metadata: map[string]any{
				"payment_reference": txn.Reference,
				"order_id":          order.ID,
				"amount":            txn.Amount,
				"currency":          txn.Currency,
				"status":            txn.Status,
			},
			OccurredAt: txn.CreatedAt,
		})
		if err != nil {
			s.logger.Warn("payment audit delivery failed", zap.String("reference", txn.Reference), zap.Error(err))
		}
	}

	if s.notifications != nil && order.Status == domain.OrderPaid {
		err := s.notifications.PublishNotification(ctx, domain.NotificationMessage{
			IdempotencyKey: "order_paid:" + order.ID,
			RecipientID:    order.UserID,
			Kind:           domain.NotifyOrderPaid,
			Title:          "Payment received",
			Message:        fmt.Sprintf("Order %s is paid: %.2f %s", order.OrderNumber, order.Total, order.Currency),
			EntityType:     "order",
			EntityID:       order.ID,
			OccurredAt:     txn.CreatedAt,
		})
		if err != nil {
			s.logger.Warn("order notification delivery failed", zap.String("order_id", order.ID), zap.Error(err))
		}
	}
}

// Payment returns one of the user's transactions.
func (s *CommerceService) Payment(ctx context.Context, userID, id string) (*domain.PaymentTransaction, error) {
	txn, err := s.payments.Get(ctx, userID, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("get payment: %w", err)
	}
	return txn, nil
}
