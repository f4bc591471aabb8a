package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tanvi-vanity/vanity-agent/internal/core/domain"
	"github.com/tanvi-vanity/vanity-agent/internal/usecase"
)

// IdempotencyKeyHeader carries the client's payment idempotency key.
const IdempotencyKeyHeader = "Idempotency-Key"

// MarketResponse is a storefront and its pricing rules.
type MarketResponse struct {
	Message               string  `json:"message,omitempty"`
	Code                  string  `json:"code"`
	Name                  string  `json:"name"`
	Currency              string  `json:"currency"`
	TaxRate               float64 `json:"tax_rate"`
	ShippingFee           float64 `json:"shipping_fee"`
	FreeShippingThreshold float64 `json:"free_shipping_threshold"`
}

func newMarketResponse(m domain.Market) MarketResponse {
	return MarketResponse{
		Code:                  m.Code,
		Name:                  m.Name,
		Currency:              m.Currency,
		TaxRate:               m.TaxRate,
		ShippingFee:           m.ShippingFee,
		FreeShippingThreshold: m.FreeShippingThreshold,
	}
}

// MerchantResponse is a retailer in a market.
type MerchantResponse struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	MarketCode string  `json:"market_code"`
	Website    string  `json:"website,omitempty"`
	Rating     float64 `json:"rating"`
}

// ProductResponse is a catalog entry.
type ProductResponse struct {
	Message       string   `json:"message,omitempty"`
	ID            string   `json:"id"`
	MerchantID    string   `json:"merchant_id"`
	MarketCode    string   `json:"market_code"`
	Name          string   `json:"name"`
	Description   string   `json:"description,omitempty"`
	Category      string   `json:"category"`
	Brand         string   `json:"brand,omitempty"`
	Price         float64  `json:"price"`
	Currency      string   `json:"currency"`
	Colors        []string `json:"colors"`
	Sizes         []string `json:"sizes"`
	ImageURL      string   `json:"image_url,omitempty"`
	StockQuantity int      `json:"stock_quantity"`
	InStock       bool     `json:"in_stock"`
}

func newProductResponse(p domain.Product) ProductResponse {
	return ProductResponse{
		ID:            p.ID,
		MerchantID:    p.MerchantID,
		MarketCode:    p.MarketCode,
		Name:          p.Name,
		Description:   p.Description,
		Category:      p.Category,
		Brand:         p.Brand,
		Price:         p.Price,
		Currency:      p.Currency,
		Colors:        nonNil(p.Colors),
		Sizes:         nonNil(p.Sizes),
		ImageURL:      p.ImageURL,
		StockQuantity: p.StockQuantity,
		InStock:       p.InStock(1),
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// CartItemRequest adds a product line to the cart.
type CartItemRequest struct {
	ProductID string `json:"product_id" binding:"required"`
	Quantity  int    `json:"quantity"`
	Size      string `json:"size"`
	Color     string `json:"color"`
}

// CartQuantityRequest changes the quantity of a cart line.
type CartQuantityRequest struct {
	Quantity int `json:"quantity" binding:"required"`
}

// CartLineResponse is a cart line with its extended price.
type CartLineResponse struct {
	ID          string  `json:"id"`
	ProductID   string  `json:"product_id"`
	ProductName string  `json:"product_name"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	LineTotal   float64 `json:"line_total"`
	Size        string  `json:"size,omitempty"`
	Color       string  `json:"color,omitempty"`
}

// CartResponse is the open cart with computed totals.
type CartResponse struct {
	Message    string             `json:"message"`
	ID         string             `json:"id"`
	MarketCode string             `json:"market_code"`
	Status     domain.CartStatus  `json:"status"`
	Items      []CartLineResponse `json:"items"`
	Totals     domain.Totals      `json:"totals"`
}

func newCartResponse(v usecase.CartView) CartResponse {
	lines := make([]CartLineResponse, 0, len(v.Cart.Items))
	for _, item := range v.Cart.Items {
		lines = append(lines, CartLineResponse{
			ID:          item.ID,
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			LineTotal:   item.LineTotal(),
			Size:        item.Size,
			Color:       item.Color,
		})
	}
	return CartResponse{
		ID:         v.Cart.ID,
		MarketCode: v.Cart.MarketCode,
		Status:     v.Cart.Status,
		Items:      lines,
		Totals:     v.Totals,
	}
}

// CheckoutRequest converts the cart of a market into an order.
type CheckoutRequest struct {
	MarketCode      string            `json:"market_code"`
	ShippingAddress map[string]string `json:"shipping_address" binding:"required"`
}

// OrderLineResponse is a frozen order line.
type OrderLineResponse struct {
	ProductID   string  `json:"product_id"`
	ProductName string  `json:"product_name"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	Size        string  `json:"size,omitempty"`
	Color       string  `json:"color,omitempty"`
}

// OrderResponse is an order with its status history stamps.
type OrderResponse struct {
	Message         string               `json:"message,omitempty"`
	ID              string               `json:"id"`
	OrderNumber     string               `json:"order_number"`
	MarketCode      string               `json:"market_code"`
	Status          domain.OrderStatus   `json:"status"`
	PaymentStatus   domain.PaymentStatus `json:"payment_status"`
	Items           []OrderLineResponse  `json:"items"`
	Subtotal        float64              `json:"subtotal"`
	Tax             float64              `json:"tax"`
	Shipping        float64              `json:"shipping"`
	Total           float64              `json:"total"`
	Currency        string               `json:"currency"`
	ShippingAddress map[string]string    `json:"shipping_address"`
	CreatedAt       time.Time            `json:"created_at"`
	PaidAt          *time.Time           `json:"paid_at,omitempty"`
	ShippedAt       *time.Time           `json:"shipped_at,omitempty"`
	DeliveredAt     *time.Time           `json:"delivered_at,omitempty"`
	CancelledAt     *time.Time           `json:"cancelled_at,omitempty"`
}

func newOrderResponse(o domain.Order) OrderResponse {
	lines := make([]OrderLineResponse, 0, len(o.Items))
	for _, item := range o.Items {
		lines = append(lines, OrderLineResponse{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Size:        item.Size,
			Color:       item.Color,
		})
	}
	return OrderResponse{
		ID:              o.ID,
		OrderNumber:     o.OrderNumber,
		MarketCode:      o.MarketCode,
		Status:          o.Status,
		PaymentStatus:   o.PaymentStatus,
		Items:           lines,
		Subtotal:        o.Subtotal,
		Tax:             o.Tax,
		Shipping:        o.Shipping,
		Total:           o.Total,
		Currency:        o.Currency,
		ShippingAddress: o.ShippingAddress,
		CreatedAt:       o.CreatedAt,
		PaidAt:          o.PaidAt,
		ShippedAt:       o.ShippedAt,
		DeliveredAt:     o.DeliveredAt,
		CancelledAt:     o.CancelledAt,
	}
}

// PaymentRequest pays for an order. The idempotency key may also arrive in
// the Idempotency-Key header.
type PaymentRequest struct {
	OrderID        string               `json:"order_id" binding:"required"`
	Method         domain.PaymentMethod `json:"method" binding:"required"`
	Amount         float64              `json:"amount" binding:"required"`
	IdempotencyKey string               `json:"idempotency_key"`
}

// TransactionResponse is a processed payment attempt.
type TransactionResponse struct {
	Message       string                   `json:"message,omitempty"`
	ID            string                   `json:"id"`
	Reference     string                   `json:"reference"`
	OrderID       string                   `json:"order_id"`
	Method        domain.PaymentMethod     `json:"method"`
	Amount        float64                  `json:"amount"`
	Currency      string                   `json:"currency"`
	Status        domain.TransactionStatus `json:"status"`
	FailureReason string                   `json:"failure_reason,omitempty"`
	CreatedAt     time.Time                `json:"created_at"`
}

func newTransactionResponse(t domain.PaymentTransaction) TransactionResponse {
	return TransactionResponse{
		ID:            t.ID,
		Reference:     t.Reference,
		OrderID:       t.OrderID,
		Method:        t.Method,
		Amount:        t.Amount,
		Currency:      t.Currency,
		Status:        t.Status,
		FailureReason: t.FailureReason,
		CreatedAt:     t.CreatedAt,
	}
}

// PaymentResponse is the transaction and the order it applied to.
type PaymentResponse struct {
	Message     string              `json:"message"`
	Transaction TransactionResponse `json:"transaction"`
	Order       OrderResponse       `json:"order"`
	Replayed    bool                `json:"replayed"`
}

// CommerceHandler exposes the catalog, carts, orders and payments.
type CommerceHandler struct {
	commerce *usecase.CommerceService
}

// NewCommerceHandler constructs a CommerceHandler.
func NewCommerceHandler(commerce *usecase.CommerceService) *CommerceHandler {
	return &CommerceHandler{commerce: commerce}
}

// RegisterCatalog binds the public catalog routes.
func (h *CommerceHandler) RegisterCatalog(r gin.IRoutes) {
	r.GET("/markets", h.Markets)
	r.GET("/markets/:code", h.Market)
	r.GET("/merchants", h.Merchants)
	r.GET("/products", h.Products)
	r.GET("/products/:id", h.Product)
}

// RegisterRoutes binds cart, order and payment routes; the group must already
// require a user.
func (h *CommerceHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/cart", h.Cart)
	r.POST("/cart/items", h.AddToCart)
	r.PUT("/cart/items/:id", h.UpdateCartItem)
	r.DELETE("/cart/items/:id", h.RemoveCartItem)

	r.POST("/checkout", h.Checkout)
	r.GET("/orders", h.Orders)
	r.GET("/orders/:id", h.Order)
	r.POST("/orders/:id/cancel", h.CancelOrder)
	r.POST("/orders/:id/ship", h.ShipOrder)
	r.POST("/orders/:id/deliver", h.DeliverOrder)

	r.POST("/payments", h.Pay)
	r.GET("/payments/:id", h.Payment)
}

func (h *CommerceHandler) Markets(c *gin.Context) {
	markets, err := h.commerce.Markets(c.Request.Context())
	if err != nil {
		RespondError(c, err)
		return
	}
	resp := make([]MarketResponse, 0, len(markets))
	for _, m := range markets {
		resp = append(resp, newMarketResponse(m))
	}
	c.JSON(http.StatusOK, gin.H{"message": "markets retrieved", "markets": resp})
}

func (h *CommerceHandler) Market(c *gin.Context) {
	m, err := h.commerce.Market(c.Request.Context(), c.Param("code"))
	if err != nil {
		RespondError(c, err)
		return
	}
	resp := newMarketResponse(*m)
	resp.Message = "market retrieved"
	c.JSON(http.StatusOK, resp)
}

func (h *CommerceHandler) Merchants(c *gin.Context) {
	merchants, err := h.commerce.Merchants(c.Request.Context(), c.Query("market"))
	if err != nil {
		RespondError(c, err)
		return
	}
	resp := make([]MerchantResponse, 0, len(merchants))
	for _, m := range merchants {
		resp = append(resp, MerchantResponse{
			ID:         m.ID,
			Name:       m.Name,
			MarketCode: m.MarketCode,
			Website:    m.Website,
			Rating:     m.Rating,
		})
	}
	c.JSON(http.StatusOK, gin.H{"message": "merchants retrieved", "merchants": resp})
}

// Products searches the catalog of ?market by ?category, ?q and a price range.
func (h *CommerceHandler) Products(c *gin.Context) {
	inStock := queryBool(c, "in_stock")
	products, err := h.commerce.Products(c.Request.Context(), domain.ProductFilter{
		MarketCode: c.Query("market"),
		Category:   c.Query("category"),
		Search:     c.Query("q"),
		MinPrice:   queryFloat(c, "min_price"),
		MaxPrice:   queryFloat(c, "max_price"),
		InStock:    inStock != nil && *inStock,
		Limit:      queryInt(c, "limit", 0),
		Offset:     queryInt(c, "offset", 0),
	})
	if err != nil {
		RespondError(c, err)
		return
	}
	resp := make([]ProductResponse, 0, len(products))
	for _, p := range products {
		resp = append(resp, newProductResponse(p))
	}
	c.JSON(http.StatusOK, gin.H{"message": "products retrieved", "products": resp})
}

func (h *CommerceHandler) Product(c *gin.Context) {
	p, err := h.commerce.Product(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	resp := newProductResponse(*p)
	resp.Message = "product retrieved"
	c.JSON(http.StatusOK, resp)
}

// Cart returns the caller's active cart in ?market, creating it on first access.
func (h *CommerceHandler) Cart(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	view, err := h.commerce.Cart(c.Request.Context(), userID, c.Query("market"))
	if err != nil {
		RespondError(c, err)
		return
	}
	resp := newCartResponse(*view)
	resp.Message = "cart retrieved"
	c.JSON(http.StatusOK, resp)
}

func (h *CommerceHandler) AddToCart(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req CartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	view, err := h.commerce.AddToCart(c.Request.Context(), userID, c.Query("market"), usecase.CartItemInput{
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
		Size:      req.Size,
		Color:     req.Color,
	})
	if err != nil {
		RespondError(c, err)
		return
	}
	resp := newCartResponse(*view)
	resp.Message = "item added to cart"
	c.JSON(http.StatusOK, resp)
}

func (h *CommerceHandler) UpdateCartItem(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req CartQuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	view, err := h.commerce.UpdateCartItem(c.Request.Context(), userID, c.Query("market"), c.Param("id"), req.Quantity)
	if err != nil {
		RespondError(c, err)
		return
	}
	resp := newCartResponse(*view)
	resp.Message = "cart updated"
	c.JSON(http.StatusOK, resp)
}

func (h *CommerceHandler) RemoveCartItem(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	view, err := h.commerce.RemoveCartItem(c.Request.Context(), userID, c.Query("market"), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	resp := newCartResponse(*view)
	resp.Message = "item removed from cart"
	c.JSON(http.StatusOK, resp)
}

// Checkout converts the active cart into a confirmed order with stock reserved.
func (h *CommerceHandler) Checkout(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	market := req.MarketCode
	if market == "" {
		market = c.Query("market")
	}
	order, err := h.commerce.Checkout(c.Request.Context(), userID, usecase.CheckoutInput{
		MarketCode:      market,
		ShippingAddress: req.ShippingAddress,
	})
	if err != nil {
		RespondError(c, err)
		return
	}
	resp := newOrderResponse(*order)
	resp.Message = "order placed"
	c.JSON(http.StatusCreated, resp)
}

func (h *CommerceHandler) Orders(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	orders, err := h.commerce.Orders(c.Request.Context(), userID, queryInt(c, "limit", 0))
	if err != nil {
		RespondError(c, err)
		return
	}
	resp := make([]OrderResponse, 0, len(orders))
	for _, o := range orders {
		resp = append(resp, newOrderResponse(o))
	}
	c.JSON(http.StatusOK, gin.H{"message": "orders retrieved", "orders": resp})
}

func (h *CommerceHandler) Order(c *gin.Context) {
	h.orderAction(c, "order retrieved", h.commerce.Order)
}

func (h *CommerceHandler) CancelOrder(c *gin.Context) {
	h.orderAction(c, "order cancelled", h.commerce.CancelOrder)
}

func (h *CommerceHandler) ShipOrder(c *gin.Context) {
	h.orderAction(c, "order shipped", h.commerce.ShipOrder)
}

func (h *CommerceHandler) DeliverOrder(c *gin.Context) {
	h.orderAction(c, "order delivered", h.commerce.DeliverOrder)
}

type orderFunc func(ctx context.Context, userID, id string) (*domain.Order, error)

func (h *CommerceHandler) orderAction(c *gin.Context, message string, fn orderFunc) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	order, err := fn(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	resp := newOrderResponse(*order)
	resp.Message = message
	c.JSON(http.StatusOK, resp)
}

// Pay settles an order. A repeated idempotency key returns the original
// transaction with replayed set and no second charge.
func (h *CommerceHandler) Pay(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req PaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	key := strings.TrimSpace(c.GetHeader(IdempotencyKeyHeader))
	if key == "" {
		key = req.IdempotencyKey
	}
	res, err := h.commerce.Pay(c.Request.Context(), userID, usecase.PaymentInput{
		OrderID:        req.OrderID,
		Method:         req.Method,
		Amount:         req.Amount,
		IdempotencyKey: key,
	})
	if err != nil {
		RespondError(c, err)
		return
	}
	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	c.JSON(status, PaymentResponse{
		Message:     "payment processed",
		Transaction: newTransactionResponse(res.Transaction),
		Order:       newOrderResponse(res.Order),
		Replayed:    res.Replayed,
	})
}

func (h *CommerceHandler) Payment(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	txn, err := h.commerce.Payment(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	resp := newTransactionResponse(*txn)
	resp.Message = "payment retrieved"
	c.JSON(http.StatusOK, resp)
}
