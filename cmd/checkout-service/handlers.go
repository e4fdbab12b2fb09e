package main

import (
	"errors"
	"log"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tokenbay/storefront/internal/httpx"
	"github.com/tokenbay/storefront/internal/merchant"
	"github.com/tokenbay/storefront/internal/nft"
	ord "github.com/tokenbay/storefront/internal/order"
	"github.com/tokenbay/storefront/internal/payment"
	"github.com/tokenbay/storefront/internal/product"
)

// createOrderHandler assembles a pending order and reserves stock for its
// lines. Cancellation restores the reservation.
//
// @Summary Create order
// @Router /orders [post]
func createOrderHandler(asm *ord.Assembler, products product.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ord.CreateOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(400, gin.H{"error": "invalid json"})
			return
		}
		lines := make([]ord.LineRequest, 0, len(req.Items))
		for _, it := range req.Items {
			lines = append(lines, ord.LineRequest{ProductID: it.ProductID, Quantity: it.Quantity})
		}
		o, err := asm.Assemble(c.Request.Context(), ord.AssembleRequest{
			MerchantID:    req.MerchantID,
			BuyerID:       req.BuyerID,
			PaymentMethod: ord.PaymentMethod(req.PaymentMethod),
			BuyerWallet:   req.BuyerWallet,
			Lines:         lines,
			ShippingMinor: req.ShippingMinor,
			TaxMinor:      req.TaxMinor,
			Metadata:      req.Metadata,
		})
		if err != nil {
			httpx.Error(c, err)
			return
		}
		for _, it := range o.Items {
			if err := products.AdjustStock(c.Request.Context(), it.ProductID, -it.Quantity); err != nil {
				log.Printf("[checkout] reserve stock %s x%d for %s: %v", it.ProductID, it.Quantity, o.ID, err)
			}
		}
		c.JSON(201, o)
	}
}

// @Summary Process payment for a pending order
// @Router /orders/{id}/payment [post]
func payOrderHandler(router *payment.Router) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ord.PayOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(400, gin.H{"error": "invalid json"})
			return
		}
		res, err := router.ProcessPayment(c.Request.Context(), c.Param("id"),
			ord.PaymentMethod(req.Method), payment.OnChainOptions{
				WalletAddress: req.WalletAddress,
				Amount:        req.Amount,
				TokenSymbol:   req.TokenSymbol,
			})
		if err != nil {
			httpx.Error(c, err)
			return
		}
		c.JSON(200, res)
	}
}

// @Summary Poll the provider and advance a payment_pending order
// @Router /orders/{id}/payment/confirm [post]
func confirmPaymentHandler(router *payment.Router) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := router.Confirm(c.Request.Context(), c.Param("id"))
		if err != nil {
			httpx.Error(c, err)
			return
		}
		c.JSON(200, res)
	}
}

// @Summary Cancel a pre-shipment order
// @Router /orders/{id}/cancel [post]
func cancelOrderHandler(router *payment.Router) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := router.Cancel(c.Request.Context(), c.Param("id"))
		if err != nil {
			httpx.Error(c, err)
			return
		}
		c.JSON(200, res)
	}
}

// @Summary Refund a paid order
// @Router /orders/{id}/refund [post]
func refundOrderHandler(router *payment.Router) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := router.Refund(c.Request.Context(), c.Param("id"))
		if err != nil {
			httpx.Error(c, err)
			return
		}
		c.JSON(200, res)
	}
}

// mintOrderHandler runs (or retries) credential minting for a paid order.
// The idempotency guard makes buyer-initiated retries safe.
//
// @Summary Mint credential tokens for a paid order
// @Router /orders/{id}/mint [post]
func mintOrderHandler(fulfil *nft.Fulfillment, orders ord.Repository, merchants merchant.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ord.MintOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(400, gin.H{"error": "invalid json"})
			return
		}
		orderID := c.Param("id")
		wallet := req.BuyerWallet
		contract := req.ContractRef
		if wallet == "" || contract == "" {
			o, err := orders.GetByID(c.Request.Context(), orderID)
			if err == nil {
				if wallet == "" {
					wallet = o.BuyerWallet
				}
				if contract == "" {
					if m, merr := merchants.GetByID(c.Request.Context(), o.MerchantID); merr == nil {
						contract = m.ContractRef
					}
				}
			}
		}
		summary, err := fulfil.MintForOrder(c.Request.Context(), orderID, wallet, contract)
		if err != nil {
			httpx.Error(c, err)
			return
		}
		c.JSON(200, summary)
	}
}

// @Summary Get one order
// @Router /orders/{id} [get]
func getOrderHandler(orders ord.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		o, err := orders.GetByID(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(404, gin.H{"error": "order not found"})
			return
		}
		c.JSON(200, o)
	}
}

// @Summary Create a catalog product
// @Router /products [post]
func createProductHandler(products product.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		var p product.Product
		if err := c.ShouldBindJSON(&p); err != nil {
			c.JSON(400, gin.H{"error": "invalid json"})
			return
		}
		if p.MerchantID == "" || p.Name == "" || p.Price.Currency == "" {
			c.JSON(400, gin.H{"error": "merchant_id, name and price currency are required"})
			return
		}
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		if err := products.Create(c.Request.Context(), &p); err != nil {
			c.JSON(500, gin.H{"error": "create failed"})
			return
		}
		c.JSON(201, p)
	}
}

// @Summary List catalog products
// @Router /products [get]
func listProductsHandler(products product.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
		offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
		q := product.Query{
			Q:          c.Query("q"),
			MerchantID: c.Query("merchant_id"),
			Limit:      limit,
			Offset:     offset,
		}
		items, err := products.List(c.Request.Context(), q)
		if err != nil {
			c.JSON(500, gin.H{"error": "list failed"})
			return
		}
		if items == nil {
			items = []product.Product{}
		}
		c.JSON(200, product.ListResponse{Q: q.Q, Limit: limit, Offset: offset, Items: items})
	}
}

// @Summary Get one product
// @Router /products/{id} [get]
func getProductHandler(products product.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := products.GetByID(c.Request.Context(), c.Param("id"))
		if err != nil {
			if errors.Is(err, product.ErrNotFound) {
				c.JSON(404, gin.H{"error": "product not found"})
				return
			}
			c.JSON(503, gin.H{"error": "catalog unavailable"})
			return
		}
		c.JSON(200, p)
	}
}

// @Summary Update a product (price only when update_price=true)
// @Router /products/{id} [put]
func updateProductHandler(products product.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		var p product.Product
		if err := c.ShouldBindJSON(&p); err != nil {
			c.JSON(400, gin.H{"error": "invalid json"})
			return
		}
		p.ID = c.Param("id")
		updatePrice := c.Query("update_price") == "true"
		if err := products.Update(c.Request.Context(), &p, updatePrice); err != nil {
			c.JSON(500, gin.H{"error": "update failed"})
			return
		}
		c.JSON(200, p)
	}
}

// @Summary Check whether a quantity of a product can be sold
// @Router /products/{id}/availability [get]
func productAvailabilityHandler(products product.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		qty, err := strconv.Atoi(c.DefaultQuery("qty", "1"))
		if err != nil || qty < 1 {
			c.JSON(400, gin.H{"error": "qty must be a positive integer"})
			return
		}
		p, err := products.GetByID(c.Request.Context(), c.Param("id"))
		if err != nil {
			if errors.Is(err, product.ErrNotFound) {
				c.JSON(404, gin.H{"error": "product not found"})
				return
			}
			c.JSON(503, gin.H{"error": "catalog unavailable"})
			return
		}
		c.JSON(200, gin.H{"product_id": p.ID, "qty": qty, "available": p.Available(qty)})
	}
}

// @Summary Register a merchant
// @Router /merchants [post]
func createMerchantHandler(merchants merchant.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		var m merchant.Merchant
		if err := c.ShouldBindJSON(&m); err != nil {
			c.JSON(400, gin.H{"error": "invalid json"})
			return
		}
		if m.Name == "" {
			c.JSON(400, gin.H{"error": "name is required"})
			return
		}
		if m.ID == "" {
			m.ID = uuid.NewString()
		}
		if err := merchants.Create(c.Request.Context(), &m); err != nil {
			if errors.Is(err, merchant.ErrAlreadyExist) {
				c.JSON(409, gin.H{"error": "merchant already exists"})
				return
			}
			c.JSON(500, gin.H{"error": "create failed"})
			return
		}
		c.JSON(201, m)
	}
}

// @Summary Get one merchant
// @Router /merchants/{id} [get]
func getMerchantHandler(merchants merchant.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		m, err := merchants.GetByID(c.Request.Context(), c.Param("id"))
		if err != nil {
			if errors.Is(err, merchant.ErrNotFound) {
				c.JSON(404, gin.H{"error": "merchant not found"})
				return
			}
			c.JSON(503, gin.H{"error": "merchant directory unavailable"})
			return
		}
		c.JSON(200, m)
	}
}

// @Summary Look a merchant up by its collection contract
// @Router /merchants/by-contract/{ref} [get]
func merchantByContractHandler(merchants merchant.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		m, err := merchants.GetByContractRef(c.Request.Context(), c.Param("ref"))
		if err != nil {
			if errors.Is(err, merchant.ErrNotFound) {
				c.JSON(404, gin.H{"error": "merchant not found"})
				return
			}
			c.JSON(503, gin.H{"error": "merchant directory unavailable"})
			return
		}
		c.JSON(200, m)
	}
}

// @Summary Activate or deactivate a merchant
// @Router /merchants/{id}/active [patch]
func setMerchantActiveHandler(merchants merchant.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Active bool `json:"active"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(400, gin.H{"error": "invalid json"})
			return
		}
		if err := merchants.SetActive(c.Request.Context(), c.Param("id"), req.Active); err != nil {
			if errors.Is(err, merchant.ErrNotFound) {
				c.JSON(404, gin.H{"error": "merchant not found"})
				return
			}
			c.JSON(500, gin.H{"error": "update failed"})
			return
		}
		c.JSON(200, gin.H{"id": c.Param("id"), "active": req.Active})
	}
}

// @Summary List orders for a buyer
// @Router /orders/buyer/{buyer_id} [get]
func listOrdersByBuyerHandler(orders ord.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
		offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
		out, err := orders.ListByBuyer(c.Request.Context(), c.Param("buyer_id"), limit, offset)
		if err != nil {
			c.JSON(500, gin.H{"error": "list failed"})
			return
		}
		if out == nil {
			out = []ord.Order{}
		}
		c.JSON(200, gin.H{"items": out})
	}
}
