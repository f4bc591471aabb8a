package domain

import (
	"math"
	"strings"
	"time"
)

// Market is a regional storefront with its own currency and pricing rules.
type Market struct {
	Code                  string
	Name                  string
	Currency              string
	TaxRate               float64
	ShippingFee           float64
	FreeShippingThreshold float64
	Active                bool
}

// Merchant is a retailer listing products in a market.
type Merchant struct {
	ID         string
	Name       string
	MarketCode string
	Website    string
	Rating     float64
	Active     bool
	CreatedAt  time.Time
}

// Product is a purchasable catalog entry.
type Product struct {
	ID            string
	MerchantID    string
	MarketCode    string
	Name          string
	Description   string
	Category      string
	Brand         string
	Price         float64
	Currency      string
	Colors        []string
	Sizes         []string
	ImageURL      string
	StockQuantity int
	Active        bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// InStock reports whether at least qty units can be sold.
func (p Product) InStock(qty int) bool {
	return p.Active && p.StockQuantity >= qty
}

// ProductFilter narrows a catalog search.
type ProductFilter struct {
	MarketCode string
	Category   string
	Search     string
	MinPrice   *float64
	MaxPrice   *float64
	InStock    bool
	Limit      int
	Offset     int
}

// CartStatus tracks whether a cart is still being edited.
type CartStatus string

const (
	CartActive    CartStatus = "active"
	CartConverted CartStatus = "converted"
)

// Cart is a user's open basket in one market, created on first access.
type Cart struct {
	ID         string
	UserID     string
	MarketCode string
	Status     CartStatus
	Items      []CartItem
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// CartItem is a product line in a cart.
type CartItem struct {
	ID          string
	CartID      string
	ProductID   string
	ProductName string
	Quantity    int
	UnitPrice   float64
	Size        string
	Color       string
	CreatedAt   time.Time
}

// LineTotal is the extended price of the line.
func (i CartItem) LineTotal() float64 {
	return RoundMoney(i.UnitPrice * float64(i.Quantity))
}

// MaxCartQuantity bounds a single cart line.
const MaxCartQuantity = 99

// ValidateQuantity checks a requested cart quantity.
func ValidateQuantity(qty int) error {
	if qty < 1 || qty > MaxCartQuantity {
		return Validation("quantity", "must be between 1 and %d", MaxCartQuantity)
	}
	return nil
}

// Totals is the computed price breakdown of a cart or order.
type Totals struct {
	Subtotal  float64 `json:"subtotal"`
	Tax       float64 `json:"tax"`
	Shipping  float64 `json:"shipping"`
	Total     float64 `json:"total"`
	Currency  string  `json:"currency"`
	ItemCount int     `json:"item_count"`
}

// ComputeTotals prices items under the market's tax and shipping rules.
// Shipping is waived when the subtotal reaches the free-shipping threshold.
func ComputeTotals(items []CartItem, market Market) Totals {
	t := Totals{Currency: market.Currency}
	for _, item := range items {
		t.Subtotal += item.LineTotal()
		t.ItemCount += item.Quantity
	}
	t.Subtotal = RoundMoney(t.Subtotal)
	if t.ItemCount == 0 {
		return t
	}
	t.Tax = RoundMoney(t.Subtotal * market.TaxRate)
	if market.FreeShippingThreshold <= 0 || t.Subtotal < market.FreeShippingThreshold {
		t.Shipping = market.ShippingFee
	}
	t.Total = RoundMoney(t.Subtotal + t.Tax + t.Shipping)
	return t
}

// RoundMoney rounds to two decimal places.
func RoundMoney(v float64) float64 {
	return math.Round(v*100) / 100
}

// OrderStatus is the fulfilment state of an order.
type OrderStatus string

const (
	OrderDraft     OrderStatus = "draft"
	OrderConfirmed OrderStatus = "confirmed"
	OrderPaid      OrderStatus = "paid"
	OrderShipped   OrderStatus = "shipped"
	OrderDelivered OrderStatus = "delivered"
	OrderCancelled OrderStatus = "cancelled"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderDraft:     {OrderConfirmed, OrderCancelled},
	OrderConfirmed: {OrderPaid, OrderCancelled},
	OrderPaid:      {OrderShipped, OrderCancelled},
	OrderShipped:   {OrderDelivered},
}

// CanTransition reports whether the progression from s to next is allowed.
// Status only moves forward; cancellation is possible until the order ships.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions exist.
func (s OrderStatus) Terminal() bool {
	return len(orderTransitions[s]) == 0
}

// PaymentStatus is the settlement state of an order.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
)

// Order is a checked-out cart.
type Order struct {
	ID              string
	OrderNumber     string
	UserID          string
	MarketCode      string
	Status          OrderStatus
	PaymentStatus   PaymentStatus
	Items           []OrderItem
	Subtotal        float64
	Tax             float64
	Shipping        float64
	Total           float64
	Currency        string
	ShippingAddress map[string]string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	PaidAt          *time.Time
	ShippedAt       *time.Time
	DeliveredAt     *time.Time
	CancelledAt     *time.Time
}

// Transition moves the order to next, stamping the matching timestamp.
func (o *Order) Transition(next OrderStatus, at time.Time) error {
	if !o.Status.CanTransition(next) {
		return NewError(KindConflict, "invalid_order_transition", "order cannot move from "+string(o.Status)+" to "+string(next))
	}
	stamp := at
	switch next {
	case OrderPaid:
		o.PaidAt = &stamp
		o.PaymentStatus = PaymentPaid
	case OrderShipped:
		o.ShippedAt = &stamp
	case OrderDelivered:
		o.DeliveredAt = &stamp
	case OrderCancelled:
		o.CancelledAt = &stamp
	}
	o.Status = next
	o.UpdatedAt = at
	return nil
}

// OrderItem is a priced line frozen at checkout.
type OrderItem struct {
	ID          string
	OrderID     string
	ProductID   string
	ProductName string
	Quantity    int
	UnitPrice   float64
	Size        string
	Color       string
}

// ValidateShippingAddress requires the minimum fields to ship an order.
func ValidateShippingAddress(addr map[string]string) error {
	for _, field := range []string{"name", "line1", "city", "postal_code", "country"} {
		if strings.TrimSpace(addr[field]) == "" {
			return Validation("shipping_address."+field, "is required")
		}
	}
	return nil
}

// TransactionStatus is the terminal outcome of a payment attempt.
type TransactionStatus string

const (
	TransactionCompleted TransactionStatus = "completed"
	TransactionFailed    TransactionStatus = "failed"
)

// PaymentMethod enumerates accepted payment instruments.
type PaymentMethod string

const (
	MethodCard       PaymentMethod = "card"
	MethodUPI        PaymentMethod = "upi"
	MethodWallet     PaymentMethod = "wallet"
	MethodNetBanking PaymentMethod = "netbanking"
)

// Valid reports whether m is an accepted method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCard, MethodUPI, MethodWallet, MethodNetBanking:
		return true
	}
	return false
}

// PaymentTransaction is one processed payment attempt for an order.
type PaymentTransaction struct {
	ID             string
	Reference      string
	OrderID        string
	UserID         string
	IdempotencyKey string
	Method         PaymentMethod
	Amount         float64
	Currency       string
	Status         TransactionStatus
	ProcessorRef   string
	FailureReason  string
	CreatedAt      time.Time
}

// Settles reports whether the transaction pays for order in full.
func (t PaymentTransaction) Settles(order Order) bool {
	return t.Status == TransactionCompleted && RoundMoney(t.Amount) >= RoundMoney(order.Total)
}

// PaymentCharge is the request handed to a payment processor.
type PaymentCharge struct {
	Reference string
	OrderID   string
	Method    PaymentMethod
	Amount    float64
	Currency  string
}

// PaymentOutcome is the processor's verdict.
type PaymentOutcome struct {
	Status        TransactionStatus
	ProcessorRef  string
	FailureReason string
}
