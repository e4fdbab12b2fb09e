package main

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tokenbay/storefront/internal/access"
	"github.com/tokenbay/storefront/internal/apperr"
	"github.com/tokenbay/storefront/internal/httpx"
)

// @Summary Issue a challenge for a wallet to sign
// @Router /access/challenge [post]
func challengeHandler(validator *access.Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Wallet string `json:"wallet"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(400, gin.H{"error": "invalid json"})
			return
		}
		res, err := validator.Validate(c.Request.Context(), access.Request{Wallet: req.Wallet})
		if err != nil {
			httpx.Error(c, err)
			return
		}
		c.JSON(200, res)
	}
}

// validateAccessHandler renders a denial with the decision body so callers
// see both the status and the audit-backed reason.
//
// @Summary Validate token-gated access for a wallet
// @Router /access/validate [post]
func validateAccessHandler(validator *access.Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req access.Request
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(400, gin.H{"error": "invalid json"})
			return
		}
		res, err := validator.Validate(c.Request.Context(), req)
		if err != nil {
			if res != nil {
				c.JSON(apperr.HTTPStatus(err), res)
				return
			}
			httpx.Error(c, err)
			return
		}
		c.JSON(200, res)
	}
}

// @Summary List audit entries for a wallet
// @Router /access/audit/{wallet} [get]
func auditListHandler(audit access.AuditRepo) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
		offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
		entries, err := audit.ListByWallet(c.Request.Context(), access.NormalizeAddress(c.Param("wallet")), limit, offset)
		if err != nil {
			c.JSON(500, gin.H{"error": "list failed"})
			return
		}
		if entries == nil {
			entries = []access.AuditEntry{}
		}
		c.JSON(200, gin.H{"items": entries})
	}
}
