package handler

import (
	"github.com/sellerlink/backend/internal/interfaces/http/router"
)

// MarketplaceHandlers groups the handlers mounted under /marketplace
type MarketplaceHandlers struct {
	Auth     *MarketplaceAuthHandler
	Orders   *MarketplaceOrderHandler
	Webhooks *MarketplaceWebhookHandler
	Listings *MarketplaceListingHandler
}

// MarketplaceRoutes creates the route group for the marketplace integration
func MarketplaceRoutes(h MarketplaceHandlers) *router.DomainGroup {
	group := router.NewDomainGroup("marketplace", "/marketplace")

	// Seller account connection
	auth := group.Group("auth", "/auth")
	auth.GET("/start", h.Auth.Start)
	auth.GET("/callback", h.Auth.Callback)
	auth.GET("/status", h.Auth.Status)
	auth.POST("/refresh", h.Auth.Refresh)
	group.DELETE("/auth", h.Auth.Disconnect)
	group.GET("/config/validate", h.Auth.ValidateConfig)

	// Notifications are authenticated by signature, not by the caller
	webhooks := group.Group("webhooks", "/webhooks")
	webhooks.POST("", h.Webhooks.Receive)
	webhooks.GET("/events", h.Webhooks.ListEvents)
	webhooks.POST("/events/:id/replay", h.Webhooks.Replay)

	orders := group.Group("orders", "/orders")
	orders.POST("/sync", h.Orders.Sync)
	orders.GET("", h.Orders.List)
	orders.GET("/summary", h.Orders.Summary)
	orders.GET("/:id", h.Orders.Get)
	orders.POST("/:id/sync", h.Orders.SyncOne)
	orders.POST("/:id/acknowledge", h.Orders.Acknowledge)
	orders.POST("/:id/ready-to-ship", h.Orders.ReadyToShip)

	listings := group.Group("listings", "/listings")
	listings.GET("", h.Listings.List)
	listings.POST("", h.Listings.Create)
	listings.GET("/:id", h.Listings.Get)
	listings.PUT("/:id", h.Listings.Update)
	listings.POST("/:id/pause", h.Listings.Pause)
	listings.POST("/:id/activate", h.Listings.Activate)
	listings.POST("/:id/close", h.Listings.Close)

	return group
}

// SystemRoutes creates the route group for system endpoints
func SystemRoutes(h *SystemHandler) *router.DomainGroup {
	group := router.NewDomainGroup("system", "/system")
	group.GET("/info", h.GetSystemInfo)
	group.GET("/ping", h.Ping)
	return group
}
