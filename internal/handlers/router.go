package handlers

import (
	"net/http"

	"github.com/gin-contrib/cors"
	ginGzip "github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"minesweeper-rewards/internal/middleware"
	"minesweeper-rewards/internal/services"
)

// Store is everything the HTTP layer needs from Redis.
type Store interface {
	SessionStore
	HistoryStore
	middleware.RateLimiter
}

type RouterConfig struct {
	Engine         *services.Engine
	Store          Store
	JWT            *services.JWTService
	Hub            *WebSocketHub
	Log            *logrus.Entry
	RateLimitRPS   int
	RateLimitBurst int
}

func NewRouter(rc RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID(), middleware.Logger(rc.Log))

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowAllOrigins = true
	corsCfg.AllowHeaders = []string{"Authorization", "Content-Type", middleware.HeaderRequestID}
	corsCfg.ExposeHeaders = []string{middleware.HeaderRequestID, "Retry-After"}
	router.Use(cors.New(corsCfg))
	router.Use(ginGzip.Gzip(ginGzip.DefaultCompression, ginGzip.WithExcludedPaths([]string{"/api/ws"})))
	router.Use(middleware.NewIPRateLimiter(rc.RateLimitRPS, rc.RateLimitBurst).Middleware())

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Invalid endpoint"})
	})

	authHandler := NewAuthHandler(rc.Store, rc.JWT)
	userHandler := NewUserHandler(rc.Store, rc.Engine)
	gameHandler := NewGameHandler(rc.Engine, rc.Store)
	adminHandler := NewAdminHandler(rc.Engine)
	wsHandler := NewWebSocketHandler(rc.Engine, rc.Hub)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "paused": rc.Engine.Paused()})
	})

	auth := router.Group("/auth")
	{
		auth.POST("/challenge", authHandler.Challenge)
		auth.POST("/verify", authHandler.Verify)
	}

	public := router.Group("/public")
	{
		public.GET("/domain", gameHandler.GetDomain)
		public.GET("/events", gameHandler.GetRecentEvents)
		public.GET("/quota", gameHandler.GetQuota)
		public.GET("/games/:id", gameHandler.GetGame)
		public.GET("/balance/:address", gameHandler.GetBalance)
	}

	protected := router.Group("/api")
	protected.Use(middleware.AuthMiddleware(rc.JWT, rc.Store), middleware.RateLimitMiddleware(rc.Store))
	{
		protected.GET("/me", userHandler.GetCurrentUser)
		protected.POST("/logout", userHandler.Logout)

		protected.GET("/ws", wsHandler.HandleWebSocket)
		protected.GET("/events", gameHandler.GetEvents)

		games := protected.Group("/games")
		{
			games.POST("", gameHandler.StartGame)
			games.GET("/history", gameHandler.GetGameHistory)
			games.GET("/stats", gameHandler.GetStats)
			games.GET("/:id", gameHandler.GetGame)
			games.POST("/:id/complete", gameHandler.CompleteGame)
			games.POST("/:id/claim", gameHandler.ClaimReward)
			games.POST("/:id/claim-signed", gameHandler.ClaimWithSignature)
		}

		wallet := protected.Group("/wallet")
		{
			wallet.GET("/balance", gameHandler.GetBalance)
			wallet.POST("/approve-fee", gameHandler.ApproveFee)
			wallet.POST("/transfer", gameHandler.Transfer)
			wallet.POST("/burn", gameHandler.Burn)
		}

		claims := protected.Group("/claims")
		{
			claims.GET("/quota", gameHandler.GetQuota)
			claims.GET("/nonces/:nonce", gameHandler.GetNonceStatus)
			claims.GET("/domain", gameHandler.GetDomain)
		}

		admin := protected.Group("/admin")
		{
			admin.POST("/pause", adminHandler.Pause)
			admin.POST("/unpause", adminHandler.Unpause)

			admin.GET("/roles/:contract/:role", adminHandler.ListRole)
			admin.POST("/roles/:contract/:role", adminHandler.GrantRole)
			admin.DELETE("/roles/:contract/:role/:address", adminHandler.RevokeRole)

			admin.PUT("/daily-reward-limit", adminHandler.UpdateDailyRewardLimit)
			admin.PUT("/server-signer", adminHandler.UpdateServerSigner)
			admin.PUT("/signer-policy", adminHandler.SetSignerPolicy)
			admin.PUT("/privileged-caller", adminHandler.SetPrivilegedCaller)

			admin.POST("/fees/withdraw", adminHandler.WithdrawFees)
			admin.POST("/fees/burn", adminHandler.BurnFees)
			admin.POST("/fee-tokens/issue", adminHandler.IssueFeeTokens)

			admin.POST("/tokens/mint", adminHandler.Mint)
			admin.POST("/tokens/burn-from", adminHandler.BurnFrom)
			admin.POST("/tokens/batch-burn", adminHandler.BatchBurn)
		}
	}

	return router
}
