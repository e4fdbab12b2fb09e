package main

import (
	"context"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tokenbay/storefront/internal/config"
	"github.com/tokenbay/storefront/internal/events"
	"github.com/tokenbay/storefront/internal/httpx"
	"github.com/tokenbay/storefront/internal/merchant"
	"github.com/tokenbay/storefront/internal/metrics"
	"github.com/tokenbay/storefront/internal/nft"
	"github.com/tokenbay/storefront/internal/order"
	"github.com/tokenbay/storefront/internal/payment"
	"github.com/tokenbay/storefront/internal/product"
)

func main() {
	cfg := config.Load()

	pool, err := pgxpool.New(context.Background(), cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	orders := order.NewPGRepo(pool)
	products := product.NewPGRepo(pool)
	merchants := merchant.NewPGRepo(pool)

	var pub events.Publisher = events.Noop{}
	if len(cfg.KafkaBrokers) > 0 {
		k := events.NewKafka(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer k.Close()
		pub = k
	}
	reg := metrics.NewRegistry()

	assembler := order.NewAssembler(orders, products, pub, reg)
	fulfil := nft.NewFulfillment(orders, nft.NewClient(cfg.NFTBaseURL, cfg.NFTAPIKey), pub, reg)
	router := &payment.Router{
		Orders:             orders,
		Merchants:          merchants,
		Products:           products,
		Instant:            payment.NewInstantClient(cfg.InstantBaseURL, cfg.InstantAPIKey),
		Chain:              payment.NewOnChainClient(cfg.ChainBaseURL),
		Mint:               fulfil,
		Events:             pub,
		Metrics:            reg,
		DefaultPlatformPct: cfg.PlatformFeePercent,
		ChargeExpiry:       cfg.ChargeExpiry,
	}

	r := gin.New()
	r.Use(gin.Recovery(), httpx.RequestID(), httpx.Logger())

	r.GET("/healthz", func(c *gin.Context) { c.String(200, "ok") })
	r.GET("/metrics", gin.WrapH(reg.Handler()))

	r.POST("/products", createProductHandler(products))
	r.GET("/products", listProductsHandler(products))
	r.GET("/products/:id", getProductHandler(products))
	r.PUT("/products/:id", updateProductHandler(products))
	r.GET("/products/:id/availability", productAvailabilityHandler(products))

	r.POST("/merchants", createMerchantHandler(merchants))
	r.GET("/merchants/:id", getMerchantHandler(merchants))
	r.GET("/merchants/by-contract/:ref", merchantByContractHandler(merchants))
	r.PATCH("/merchants/:id/active", setMerchantActiveHandler(merchants))

	r.POST("/orders", createOrderHandler(assembler, products))
	r.GET("/orders/:id", getOrderHandler(orders))
	r.GET("/orders/buyer/:buyer_id", listOrdersByBuyerHandler(orders))
	r.POST("/orders/:id/payment", payOrderHandler(router))
	r.POST("/orders/:id/payment/confirm", confirmPaymentHandler(router))
	r.POST("/orders/:id/cancel", cancelOrderHandler(router))
	r.POST("/orders/:id/refund", refundOrderHandler(router))
	r.POST("/orders/:id/mint", mintOrderHandler(fulfil, orders, merchants))

	log.Printf("checkout-service listening on %s", cfg.CheckoutSvcAddr)
	log.Fatal(r.Run(cfg.CheckoutSvcAddr))
}
