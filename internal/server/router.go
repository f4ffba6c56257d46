package server

import (
	"context"
	"net/http"
	"time"

	handler "charity-auction/services/bidding/handler"
	"charity-auction/utils"

	"github.com/gin-gonic/gin"
)

// HealthChecker reports the state of the backing store
type HealthChecker interface {
	Health(ctx context.Context) map[string]string
}

// SocketHandler serves the live auction feed
type SocketHandler interface {
	HandleAuctionSocket(c *gin.Context)
}

// SetupRouter configures all Gin routes for the application. hub and health
// may be nil, in which case their routes are not mounted.
func SetupRouter(biddingService handler.BiddingServiceInterface, hub SocketHandler, health HealthChecker) *gin.Engine {
	router := gin.New() // New router without default middleware for full control over middleware and logging

	router.Use(gin.Recovery())          // recover from panics
	router.Use(RequestLoggerMiddleware) // custom request logging

	biddingHandler := handler.NewBiddingHandler(biddingService)

	bids := router.Group("/bids")
	{
		bids.POST("", biddingHandler.RecordBidHandler)
	}

	auctions := router.Group("/auctions")
	{
		auctions.GET("/:auction_id/bids", biddingHandler.GetBidsByAuctionHandler)
		auctions.GET("/:auction_id/winning", biddingHandler.GetWinningBidHandler)
		auctions.PUT("/:auction_id/end", biddingHandler.EndAuctionHandler)
	}

	users := router.Group("/users")
	{
		users.GET("/:user_id/auctions", biddingHandler.GetAuctionsByUserHandler)
	}

	autobid := router.Group("/autobid")
	{
		autobid.POST("/enable", biddingHandler.EnableAutoBidHandler)
		autobid.POST("/disable", biddingHandler.DisableAutoBidHandler)
		autobid.GET("/status/:auction_id", biddingHandler.GetAutoBidStatusHandler)
	}

	if hub != nil {
		router.GET("/ws/auctions/:auction_id", hub.HandleAuctionSocket)
	}

	if health != nil {
		router.GET("/health", healthHandler(health))
	}

	return router
}

func healthHandler(health HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
		defer cancel()

		stats := health.Health(ctx)
		if stats["status"] != "up" {
			c.JSON(http.StatusServiceUnavailable, stats)
			utils.Warn("health check failed", map[string]any{"stats": stats})
			return
		}
		c.JSON(http.StatusOK, stats)
	}
}
