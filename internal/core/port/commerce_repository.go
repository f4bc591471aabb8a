package port

import (
	"context"
	"time"

	"github.com/tanvi-vanity/vanity-agent/internal/core/domain"
)

// MarketRepository reads storefront markets.
type MarketRepository interface {
	List(ctx context.Context) ([]domain.Market, error)
	Get(ctx context.Context, code string) (*domain.Market, error)
}

// CatalogRepository reads merchants and products.
type CatalogRepository interface {
	ListMerchants(ctx context.Context, marketCode string) ([]domain.Merchant, error)
	ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	// ReserveStock decrements stock when enough is available and reports whether it did.
	ReserveStock(ctx context.Context, productID string, qty int) (bool, error)
}

// CartRepository persists carts.
type CartRepository interface {
	GetOrCreateActive(ctx context.Context, defaults domain.Cart) (*domain.Cart, error)
	AddItem(ctx context.Context, item domain.CartItem) error
	UpdateItemQuantity(ctx context.Context, cartID, itemID string, qty int) error
	RemoveItem(ctx context.Context, cartID, itemID string) error
	SetStatus(ctx context.Context, cartID string, status domain.CartStatus, at time.Time) error
}

// OrderRepository persists orders.
type OrderRepository interface {
	Create(ctx context.Context, order domain.Order) error
	Get(ctx context.Context, userID, id string) (*domain.Order, error)
	GetForUpdate(ctx context.Context, userID, id string) (*domain.Order, error)
	List(ctx context.Context, userID string, limit int) ([]domain.Order, error)
	UpdateStatus(ctx context.Context, order domain.Order) error
}

// PaymentRepository persists payment transactions.
type PaymentRepository interface {
	Create(ctx context.Context, txn domain.PaymentTransaction) error
	Get(ctx context.Context, userID, id string) (*domain.PaymentTransaction, error)
	GetByIdempotencyKey(ctx context.Context, userID, key string) (*domain.PaymentTransaction, error)
}
