package main

import (
	"context"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tokenbay/storefront/internal/access"
	"github.com/tokenbay/storefront/internal/config"
	"github.com/tokenbay/storefront/internal/httpx"
	"github.com/tokenbay/storefront/internal/merchant"
	"github.com/tokenbay/storefront/internal/metrics"
	"github.com/tokenbay/storefront/internal/nft"
)

func main() {
	cfg := config.Load()

	pool, err := pgxpool.New(context.Background(), cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	reg := metrics.NewRegistry()
	audit := access.NewPGAudit(pool)
	validator := access.NewValidator(
		merchant.NewPGRepo(pool),
		nft.NewClient(cfg.NFTBaseURL, cfg.NFTAPIKey),
		access.Verifier{},
		audit,
		reg,
	)

	r := gin.New()
	r.Use(gin.Recovery(), httpx.RequestID(), httpx.Logger())

	r.GET("/healthz", func(c *gin.Context) { c.String(200, "ok") })
	r.GET("/metrics", gin.WrapH(reg.Handler()))

	r.POST("/access/challenge", challengeHandler(validator))
	r.POST("/access/validate", validateAccessHandler(validator))
	r.GET("/access/audit/:wallet", auditListHandler(audit))

	log.Printf("access-service listening on %s", cfg.AccessSvcAddr)
	log.Fatal(r.Run(cfg.AccessSvcAddr))
}
