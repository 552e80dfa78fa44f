package main

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"posyandu-logistics/internal/auth"
	"posyandu-logistics/internal/middleware"
)

func (a *AppContext) setupRoutes() {
	r := a.Router

	// ── Global Middleware (outermost → innermost) ──
	r.Use(middleware.Logger())                 // 1. Request logging
	r.Use(middleware.Recovery())               // 2. Panic recovery
	r.Use(middleware.RateLimit(a.RateLimiter)) // 3. Per-IP rate limiting

	// ── Health & metrics (no auth) ──
	r.GET("/health", a.healthCheck)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// ── Auth (no role guard, no idempotency) ──
	authGroup := r.Group("/auth")
	{
		authGroup.POST("/register", a.AuthHandler.Register)
		authGroup.POST("/login", a.AuthHandler.Login)
	}

	// ── Internal Routes (health service, shared secret) ──
	internal := r.Group("/internal")
	internal.Use(middleware.SharedSecret(a.Config.Internal.SharedSecret))          // 4. Service auth
	internal.Use(middleware.Bulkhead("internal", a.Config.Bulkhead.InternalPool)) // 5. Bulkhead
	{
		internal.POST("/posyandu-sync", a.RegistryHandler.Sync)
		internal.GET("/posyandu-sync/:externalId", a.RegistryHandler.GetShadow)
		internal.POST("/requests", a.ShipmentHandler.CreateRequest)
		internal.POST("/delivery-confirm", a.DispatchHandler.ConfirmDelivery)
		internal.DELETE("/requests/:externalRequestId", a.DispatchHandler.Cancel)
	}

	// ── Hub Routes (role: hub) ──
	hubGroup := r.Group("")
	hubGroup.Use(middleware.Auth(a.JWTService)) // 4. JWT auth
	hubGroup.Use(middleware.RoleGuard(auth.RoleHub))
	{
		// Read-only endpoints
		hubGroup.GET("/hubs/me", a.HubHandler.GetProfile)
		hubGroup.GET("/hubs/me/stats", a.HubHandler.Stats)
		hubGroup.GET("/inventory", a.HubHandler.ListInventory)
		hubGroup.GET("/inventory/movements", a.HubHandler.ListMovements)
		hubGroup.GET("/drivers", a.DriverHandler.List)
		hubGroup.GET("/shipments", a.ShipmentHandler.List)
		hubGroup.GET("/shipments/:id", a.ShipmentHandler.Get)
		hubGroup.GET("/posyandus", a.RegistryHandler.ListAssigned)

		// Mutations get the mutation pool
		mutations := hubGroup.Group("")
		mutations.Use(middleware.Bulkhead("mutation", a.Config.Bulkhead.MutationPool))
		mutations.Use(middleware.Idempotency(a.IdempotencyStore))
		{
			mutations.PUT("/hubs/me", a.HubHandler.UpdateProfile)
			mutations.PUT("/inventory/:sku", a.HubHandler.SetStock)
			mutations.POST("/drivers", a.DriverHandler.Create)
			mutations.PUT("/drivers/:id/status", a.DriverHandler.UpdateStatus)
			mutations.PUT("/shipments/:id/assign", middleware.RequireIdempotencyKey(), a.DispatchHandler.Assign)
		}
	}
}
