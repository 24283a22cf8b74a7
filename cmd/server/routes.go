package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"offramp.backend/internal/interfaces/http/handlers"
	"offramp.backend/internal/interfaces/http/middleware"
)

const (
	serviceName    = "offramp-backend"
	serviceVersion = "0.1.0"
)

type routeDeps struct {
	walletHandler  *handlers.WalletHandler
	depositHandler *handlers.DepositHandler
	quoteHandler   *handlers.QuoteHandler
	payoutHandler  *handlers.PayoutHandler
	webhookHandler *handlers.WebhookHandler
	adminHandler   *handlers.AdminHandler
	authMiddleware gin.HandlerFunc
	webhookAuth    gin.HandlerFunc
}

func applyCORSMiddleware(r *gin.Engine) {
	r.Use(func(c *gin.Context) {
		if origin := c.GetHeader("Origin"); origin != "" {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		}
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, "+middleware.IdempotencyHeader+", "+middleware.RequestIDHeader)
		c.Header("Access-Control-Expose-Headers", middleware.RequestIDHeader)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})
}

func registerHealthRoute(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": serviceName,
			"version": serviceVersion,
		})
	})
}

func registerAPIV1Routes(r *gin.Engine, d routeDeps) {
	v1 := r.Group("/api/v1")
	{
		// Public catalogue
		v1.GET("/assets", d.quoteHandler.ListAssets)

		// Deposit addresses (protected)
		wallets := v1.Group("/wallets")
		wallets.Use(d.authMiddleware)
		{
			wallets.POST("", middleware.IdempotencyMiddleware(), d.walletHandler.CreateWallet)
			wallets.GET("", d.walletHandler.ListWallets)
			wallets.DELETE("/:id", d.walletHandler.DisableWallet)
		}

		deposits := v1.Group("/deposits")
		deposits.Use(d.authMiddleware)
		{
			deposits.GET("", d.depositHandler.ListDeposits)
		}

		quotes := v1.Group("/quotes")
		quotes.Use(d.authMiddleware)
		{
			quotes.POST("", d.quoteHandler.CreateQuote)
			quotes.GET("/:id", d.quoteHandler.GetQuote)
			quotes.POST("/:id/cancel", d.quoteHandler.CancelQuote)
			quotes.POST("/:id/execute", middleware.IdempotencyMiddleware(), d.quoteHandler.ExecuteQuote)
		}

		payouts := v1.Group("/payouts")
		payouts.Use(d.authMiddleware)
		{
			payouts.GET("", d.payoutHandler.ListPayouts)
			payouts.GET("/:id", d.payoutHandler.GetPayout)
		}

		// Webhooks (internal). Settlement callbacks carry their own JWS signature.
		webhooks := v1.Group("/webhooks")
		{
			webhooks.POST("/deposits", d.webhookAuth, d.webhookHandler.HandleDepositWebhook)
			webhooks.POST("/settlement", d.webhookHandler.HandleSettlementWebhook)
		}

		// Admin routes (protected)
		admin := v1.Group("/admin")
		admin.Use(d.authMiddleware, middleware.RequireAdmin())
		{
			admin.GET("/deposits/review", d.adminHandler.ListReviewDeposits)
			admin.POST("/deposits/:id/sweep", d.adminHandler.SweepDeposit)
			admin.GET("/sponsors/:chain/capacity", d.adminHandler.GetSponsorCapacity)
			admin.GET("/payouts/anomalies", d.adminHandler.ListPayoutAnomalies)
			admin.POST("/payouts/reconcile", d.adminHandler.ReconcilePayouts)
			admin.POST("/payouts/:id/resolve", d.adminHandler.ResolvePayout)
		}
	}
}
