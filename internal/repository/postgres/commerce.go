package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/tanvi-vanity/vanity-agent/internal/core/domain"
	"github.com/tanvi-vanity/vanity-agent/internal/repository"
)

const (
	marketsTable    = "commerce.markets"
	merchantsTable  = "commerce.merchants"
	productsTable   = "commerce.products"
	cartsTable      = "commerce.carts"
	cartItemsTable  = "commerce.cart_items"
	ordersTable     = "commerce.orders"
	orderItemsTable = "commerce.order_items"
	paymentsTable   = "commerce.payment_transactions"
)

// ErrDuplicatePayment is returned when an idempotency key was already used by the user.
var ErrDuplicatePayment = domain.NewError(domain.KindConflict, "duplicate_payment", "payment with this idempotency key already exists")

var marketColumns = []string{"code", "name", "currency", "tax_rate", "shipping_fee", "free_shipping_threshold", "active"}

// MarketRepository implements port.MarketRepository.
type MarketRepository struct {
	base
}

// NewMarketRepository wires the market repository.
func NewMarketRepository(exec pgExecutor) *MarketRepository {
	return &MarketRepository{base: newBase(exec)}
}

// List returns active markets ordered by code.
func (r *MarketRepository) List(ctx context.Context) ([]domain.Market, error) {
	return r.list(ctx, squirrel.Eq{"active": true})
}

// Get loads one active market.
func (r *MarketRepository) Get(ctx context.Context, code string) (*domain.Market, error) {
	markets, err := r.list(ctx, squirrel.Eq{"code": code, "active": true})
	if err != nil {
		return nil, err
	}
	if len(markets) == 0 {
		return nil, repository.ErrNotFound
	}
	return &markets[0], nil
}

func (r *MarketRepository) list(ctx context.Context, where squirrel.Sqlizer) ([]domain.Market, error) {
	stmt, args, err := r.builder.Select(marketColumns...).From(marketsTable).Where(where).OrderBy("code").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select markets sql: %w", err)
	}

	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	rows, err := r.executor(ctx).Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query markets: %w", err)
	}
	defer rows.Close()

	markets := make([]domain.Market, 0)
	for rows.Next() {
		var m domain.Market
		if err := rows.Scan(&m.Code, &m.Name, &m.Currency, &m.TaxRate, &m.ShippingFee, &m.FreeShippingThreshold, &m.Active); err != nil {
			return nil, fmt.Errorf("scan market: %w", err)
		}
		markets = append(markets, m)
	}
	return markets, rows.Err()
}

var productColumns = []string{
	"id",
	"merchant_id",
	"market_code",
	"name",
	"description",
	"category",
	"brand",
	"price",
	"currency",
	"colors",
	"sizes",
	"image_url",
	"stock_quantity",
	"active",
	"created_at",
	"updated_at",
}

// CatalogRepository implements port.CatalogRepository.
type CatalogRepository struct {
	base
}

// NewCatalogRepository wires the merchant and product catalog repository.
func NewCatalogRepository(exec pgExecutor) *CatalogRepository {
	return &CatalogRepository{base: newBase(exec)}
}

// ListMerchants returns active merchants, optionally limited to one market.
func (r *CatalogRepository) ListMerchants(ctx context.Context, marketCode string) ([]domain.Merchant, error) {
	query := r.builder.
		Select("id", "name", "market_code", "website", "rating", "active", "created_at").
		From(merchantsTable).
		Where(squirrel.Eq{"active": true}).
		OrderBy("rating DESC", "name")
	if marketCode != "" {
		query = query.Where(squirrel.Eq{"market_code": marketCode})
	}
	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list merchants sql: %w", err)
	}

	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	rows, err := r.executor(ctx).Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query merchants: %w", err)
	}
	defer rows.Close()

	merchants := make([]domain.Merchant, 0)
	for rows.Next() {
		var m domain.Merchant
		if err := rows.Scan(&m.ID, &m.Name, &m.MarketCode, &m.Website, &m.Rating, &m.Active, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan merchant: %w", err)
		}
		merchants = append(merchants, m)
	}
	return merchants, rows.Err()
}

// ListProducts searches active products.
func (r *CatalogRepository) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	query := r.builder.
		Select(productColumns...).
		From(productsTable).
		Where(squirrel.Eq{"active": true}).
		OrderBy("created_at DESC", "id")
	if filter.MarketCode != "" {
		query = query.Where(squirrel.Eq{"market_code": filter.MarketCode})
	}
	if filter.Category != "" {
		query = query.Where(squirrel.Expr("lower(category) = lower(?)", filter.Category))
	}
	if filter.Search != "" {
		pattern := "%" + filter.Search + "%"
		query = query.Where(squirrel.Or{
			squirrel.ILike{"name": pattern},
			squirrel.ILike{"brand": pattern},
			squirrel.ILike{"description": pattern},
		})
	}
	if filter.MinPrice != nil {
		query = query.Where(squirrel.GtOrEq{"price": *filter.MinPrice})
	}
	if filter.MaxPrice != nil {
		query = query.Where(squirrel.LtOrEq{"price": *filter.MaxPrice})
	}
	if filter.InStock {
		query = query.Where(squirrel.Gt{"stock_quantity": 0})
	}
	if filter.Limit > 0 {
		query = query.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		query = query.Offset(uint64(filter.Offset))
	}
	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list products sql: %w", err)
	}

	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	rows, err := r.executor(ctx).Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

// GetProduct loads a product by id.
func (r *CatalogRepository) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	stmt, args, err := r.builder.Select(productColumns...).From(productsTable).Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select product sql: %w", err)
	}

	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	p, err := scanProduct(r.executor(ctx).QueryRow(ctx, stmt, args...))
	if err != nil {
		if isNoRows(err) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan product: %w", err)
	}
	return p, nil
}

// ReserveStock decrements stock_quantity only when qty units remain.
func (r *CatalogRepository) ReserveStock(ctx context.Context, productID string, qty int) (bool, error) {
	stmt, args, err := r.builder.Update(productsTable).
		Set("stock_quantity", squirrel.Expr("stock_quantity - ?", qty)).
		Where(squirrel.Eq{"id": productID, "active": true}).
		Where(squirrel.GtOrEq{"stock_quantity": qty}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build reserve stock sql: %w", err)
	}
	n, err := r.execCount(ctx, stmt, args, "reserve stock")
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func scanProduct(row pgx.Row) (*domain.Product, error) {
	var (
		p             domain.Product
		colors, sizes []byte
	)
	if err := row.Scan(
		&p.ID,
		&p.MerchantID,
		&p.MarketCode,
		&p.Name,
		&p.Description,
		&p.Category,
		&p.Brand,
		&p.Price,
		&p.Currency,
		&colors,
		&sizes,
		&p.ImageURL,
		&p.StockQuantity,
		&p.Active,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(colors, &p.Colors); err != nil {
		return nil, fmt.Errorf("decode product colors: %w", err)
	}
	if err := unmarshalJSON(sizes, &p.Sizes); err != nil {
		return nil, fmt.Errorf("decode product sizes: %w", err)
	}
	return &p, nil
}

var (
	cartColumns     = []string{"id", "user_id", "market_code", "status", "created_at", "updated_at"}
	cartItemColumns = []string{"id", "cart_id", "product_id", "product_name", "quantity", "unit_price", "size", "color", "created_at"}
)

// CartRepository implements port.CartRepository.
type CartRepository struct {
	base
}

// NewCartRepository wires the cart repository.
func NewCartRepository(exec pgExecutor) *CartRepository {
	return &CartRepository{base: newBase(exec)}
}

// GetOrCreateActive returns the user's active cart in a market, creating it on
// first access. A partial unique index keeps one active cart per user and market.
func (r *CartRepository) GetOrCreateActive(ctx context.Context, defaults domain.Cart) (*domain.Cart, error) {
	stmt, args, err := r.builder.Insert(cartsTable).
		Columns(cartColumns...).
		Values(defaults.ID, defaults.UserID, defaults.MarketCode, domain.CartActive, defaults.CreatedAt, defaults.UpdatedAt).
		Suffix("ON CONFLICT (user_id, market_code) WHERE status = 'active' DO NOTHING RETURNING " + joinColumns(cartColumns)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build upsert cart sql: %w", err)
	}

	cart, err := r.queryCart(ctx, stmt, args)
	if errors.Is(err, repository.ErrNotFound) {
		stmt, args, err = r.builder.
			Select(cartColumns...).
			From(cartsTable).
			Where(squirrel.Eq{"user_id": defaults.UserID, "market_code": defaults.MarketCode, "status": domain.CartActive}).
			ToSql()
		if err != nil {
			return nil, fmt.Errorf("build select cart sql: %w", err)
		}
		cart, err = r.queryCart(ctx, stmt, args)
	}
	if err != nil {
		return nil, err
	}

	items, err := r.items(ctx, cart.ID)
	if err != nil {
		return nil, err
	}
	cart.Items = items
	return cart, nil
}

func (r *CartRepository) queryCart(ctx context.Context, stmt string, args []any) (*domain.Cart, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	var c domain.Cart
	if err := r.executor(ctx).QueryRow(ctx, stmt, args...).Scan(&c.ID, &c.UserID, &c.MarketCode, &c.Status, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if isNoRows(err) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan cart: %w", err)
	}
	return &c, nil
}

func (r *CartRepository) items(ctx context.Context, cartID string) ([]domain.CartItem, error) {
	stmt, args, err := r.builder.
		Select(cartItemColumns...).
		From(cartItemsTable).
		Where(squirrel.Eq{"cart_id": cartID}).
		OrderBy("created_at").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list cart items sql: %w", err)
	}

	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	rows, err := r.executor(ctx).Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query cart items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.CartItem, 0)
	for rows.Next() {
		var i domain.CartItem
		if err := rows.Scan(&i.ID, &i.CartID, &i.ProductID, &i.ProductName, &i.Quantity, &i.UnitPrice, &i.Size, &i.Color, &i.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

// AddItem adds a line, merging quantities with an identical product/size/color line.
func (r *CartRepository) AddItem(ctx context.Context, item domain.CartItem) error {
	stmt, args, err := r.builder.Insert(cartItemsTable).
		Columns(cartItemColumns...).
		Values(item.ID, item.CartID, item.ProductID, item.ProductName, item.Quantity, item.UnitPrice, item.Size, item.Color, item.CreatedAt).
		Suffix(fmt.Sprintf(
			"ON CONFLICT (cart_id, product_id, size, color) DO UPDATE SET quantity = LEAST(cart_items.quantity + EXCLUDED.quantity, %d), unit_price = EXCLUDED.unit_price",
			domain.MaxCartQuantity,
		)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build add cart item sql: %w", err)
	}
	if _, err := r.execCount(ctx, stmt, args, "add cart item"); err != nil {
		return err
	}
	return r.touch(ctx, item.CartID, item.CreatedAt)
}

// UpdateItemQuantity sets the quantity of one line.
func (r *CartRepository) UpdateItemQuantity(ctx context.Context, cartID, itemID string, qty int) error {
	stmt, args, err := r.builder.Update(cartItemsTable).
		Set("quantity", qty).
		Where(squirrel.Eq{"id": itemID, "cart_id": cartID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update cart item sql: %w", err)
	}
	return r.execAffecting(ctx, stmt, args, "update cart item")
}

// RemoveItem deletes one line.
func (r *CartRepository) RemoveItem(ctx context.Context, cartID, itemID string) error {
	stmt, args, err := r.builder.Delete(cartItemsTable).
		Where(squirrel.Eq{"id": itemID, "cart_id": cartID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete cart item sql: %w", err)
	}
	return r.execAffecting(ctx, stmt, args, "delete cart item")
}

// SetStatus moves the cart to status.
func (r *CartRepository) SetStatus(ctx context.Context, cartID string, status domain.CartStatus, at time.Time) error {
	stmt, args, err := r.builder.Update(cartsTable).
		Set("status", status).
		Set("updated_at", at).
		Where(squirrel.Eq{"id": cartID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build set cart status sql: %w", err)
	}
	return r.execAffecting(ctx, stmt, args, "set cart status")
}

func (r *CartRepository) touch(ctx context.Context, cartID string, at time.Time) error {
	stmt, args, err := r.builder.Update(cartsTable).
		Set("updated_at", at).
		Where(squirrel.Eq{"id": cartID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build touch cart sql: %w", err)
	}
	return r.execAffecting(ctx, stmt, args, "touch cart")
}

var orderColumns = []string{
	"id",
	"order_number",
	"user_id",
	"market_code",
	"status",
	"payment_status",
	"subtotal",
	"tax",
	"shipping",
	"total",
	"currency",
	"shipping_address",
	"created_at",
	"updated_at",
	"paid_at",
	"shipped_at",
	"delivered_at",
	"cancelled_at",
}

var orderItemColumns = []string{"id", "order_id", "product_id", "product_name", "quantity", "unit_price", "size", "color"}

// OrderRepository implements port.OrderRepository.
type OrderRepository struct {
	base
}

// NewOrderRepository wires the order repository.
func NewOrderRepository(exec pgExecutor) *OrderRepository {
	return &OrderRepository{base: newBase(exec)}
}

// Create inserts an order and its lines. Callers run it inside a transaction.
func (r *OrderRepository) Create(ctx context.Context, o domain.Order) error {
	address, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return fmt.Errorf("marshal shipping address: %w", err)
	}
	stmt, args, err := r.builder.Insert(ordersTable).
		Columns(orderColumns...).
		Values(
			o.ID,
			o.OrderNumber,
			o.UserID,
			o.MarketCode,
			o.Status,
			o.PaymentStatus,
			o.Subtotal,
			o.Tax,
			o.Shipping,
			o.Total,
			o.Currency,
			address,
			o.CreatedAt,
			o.UpdatedAt,
			o.PaidAt,
			o.ShippedAt,
			o.DeliveredAt,
			o.CancelledAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert order sql: %w", err)
	}
	if _, err := r.execCount(ctx, stmt, args, "insert order"); err != nil {
		return err
	}

	if len(o.Items) == 0 {
		return nil
	}
	insert := r.builder.Insert(orderItemsTable).Columns(orderItemColumns...)
	for _, item := range o.Items {
		insert = insert.Values(item.ID, o.ID, item.ProductID, item.ProductName, item.Quantity, item.UnitPrice, item.Size, item.Color)
	}
	stmt, args, err = insert.ToSql()
	if err != nil {
		return fmt.Errorf("build insert order items sql: %w", err)
	}
	_, err = r.execCount(ctx, stmt, args, "insert order items")
	return err
}

// Get loads an order with its lines.
func (r *OrderRepository) Get(ctx context.Context, userID, id string) (*domain.Order, error) {
	return r.getOne(ctx, userID, id, "")
}

// GetForUpdate loads and locks an order row.
func (r *OrderRepository) GetForUpdate(ctx context.Context, userID, id string) (*domain.Order, error) {
	return r.getOne(ctx, userID, id, "FOR UPDATE")
}

func (r *OrderRepository) getOne(ctx context.Context, userID, id, suffix string) (*domain.Order, error) {
	query := r.builder.Select(orderColumns...).From(ordersTable).Where(squirrel.Eq{"id": id, "user_id": userID})
	if suffix != "" {
		query = query.Suffix(suffix)
	}
	orders, err := r.list(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, repository.ErrNotFound
	}
	order := &orders[0]
	if order.Items, err = r.items(ctx, order.ID); err != nil {
		return nil, err
	}
	return order, nil
}

// List returns the user's orders, newest first, without lines.
func (r *OrderRepository) List(ctx context.Context, userID string, limit int) ([]domain.Order, error) {
	return r.list(ctx, r.builder.
		Select(orderColumns...).
		From(ordersTable).
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("created_at DESC").
		Limit(uint64(limit)))
}

func (r *OrderRepository) list(ctx context.Context, query squirrel.SelectBuilder) ([]domain.Order, error) {
	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select orders sql: %w", err)
	}

	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	rows, err := r.executor(ctx).Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		var (
			o       domain.Order
			address []byte
		)
		if err := rows.Scan(
			&o.ID,
			&o.OrderNumber,
			&o.UserID,
			&o.MarketCode,
			&o.Status,
			&o.PaymentStatus,
			&o.Subtotal,
			&o.Tax,
			&o.Shipping,
			&o.Total,
			&o.Currency,
			&address,
			&o.CreatedAt,
			&o.UpdatedAt,
			&o.PaidAt,
			&o.ShippedAt,
			&o.DeliveredAt,
			&o.CancelledAt,
		); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		if err := unmarshalJSON(address, &o.ShippingAddress); err != nil {
			return nil, fmt.Errorf("decode shipping address: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func (r *OrderRepository) items(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	stmt, args, err := r.builder.Select(orderItemColumns...).From(orderItemsTable).Where(squirrel.Eq{"order_id": orderID}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list order items sql: %w", err)
	}

	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	rows, err := r.executor(ctx).Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.OrderItem, 0)
	for rows.Next() {
		var i domain.OrderItem
		if err := rows.Scan(&i.ID, &i.OrderID, &i.ProductID, &i.ProductName, &i.Quantity, &i.UnitPrice, &i.Size, &i.Color); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

// UpdateStatus persists the status fields of an order.
func (r *OrderRepository) UpdateStatus(ctx context.Context, o domain.Order) error {
	stmt, args, err := r.builder.Update(ordersTable).
		SetMap(map[string]any{
			"status":         o.Status,
			"payment_status": o.PaymentStatus,
			"updated_at":     o.UpdatedAt,
			"paid_at":        o.PaidAt,
			"shipped_at":     o.ShippedAt,
			"delivered_at":   o.DeliveredAt,
			"cancelled_at":   o.CancelledAt,
		}).
		Where(squirrel.Eq{"id": o.ID, "user_id": o.UserID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update order status sql: %w", err)
	}
	return r.execAffecting(ctx, stmt, args, "update order status")
}

var paymentColumns = []string{
	"id",
	"reference",
	"order_id",
	"user_id",
	"idempotency_key",
	"method",
	"amount",
	"currency",
	"status",
	"processor_ref",
	"failure_reason",
	"created_at",
}

// PaymentRepository implements port.PaymentRepository.
type PaymentRepository struct {
	base
}

// NewPaymentRepository wires the payment transaction repository.
func NewPaymentRepository(exec pgExecutor) *PaymentRepository {
	return &PaymentRepository{base: newBase(exec)}
}

// Create inserts a transaction. A reused idempotency key yields ErrDuplicatePayment.
func (r *PaymentRepository) Create(ctx context.Context, t domain.PaymentTransaction) error {
	stmt, args, err := r.builder.Insert(paymentsTable).
		Columns(paymentColumns...).
		Values(t.ID, t.Reference, t.OrderID, t.UserID, t.IdempotencyKey, t.Method, t.Amount, t.Currency, t.Status, t.ProcessorRef, t.FailureReason, t.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert payment sql: %w", err)
	}
	if _, err := r.execCount(ctx, stmt, args, "insert payment"); err != nil {
		if isConstraint(err, "payment_transactions_user_idempotency_key") {
			return ErrDuplicatePayment
		}
		return err
	}
	return nil
}

// Get loads a transaction owned by userID.
func (r *PaymentRepository) Get(ctx context.Context, userID, id string) (*domain.PaymentTransaction, error) {
	return r.getOne(ctx, squirrel.Eq{"id": id, "user_id": userID})
}

// GetByIdempotencyKey loads the transaction recorded under key.
func (r *PaymentRepository) GetByIdempotencyKey(ctx context.Context, userID, key string) (*domain.PaymentTransaction, error) {
	return r.getOne(ctx, squirrel.Eq{"user_id": userID, "idempotency_key": key})
}

func (r *PaymentRepository) getOne(ctx context.Context, where squirrel.Sqlizer) (*domain.PaymentTransaction, error) {
	stmt, args, err := r.builder.Select(paymentColumns...).From(paymentsTable).Where(where).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select payment sql: %w", err)
	}

	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	var t domain.PaymentTransaction
	if err := r.executor(ctx).QueryRow(ctx, stmt, args...).Scan(
		&t.ID,
		&t.Reference,
		&t.OrderID,
		&t.UserID,
		&t.IdempotencyKey,
		&t.Method,
		&t.Amount,
		&t.Currency,
		&t.Status,
		&t.ProcessorRef,
		&t.FailureReason,
		&t.CreatedAt,
	); err != nil {
		if isNoRows(err) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan payment: %w", err)
	}
	return &t, nil
}
