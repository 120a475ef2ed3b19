package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopfront/backend/internal/domain/identity"
	"github.com/shopfront/backend/internal/interfaces/http/handler"
	"github.com/shopfront/backend/internal/interfaces/http/middleware"
)

// Handlers are the HTTP handlers the API serves. Outbox may be nil when the
// outbox is disabled.
type Handlers struct {
	Auth      *handler.AuthHandler
	User      *handler.UserHandler
	Product   *handler.ProductHandler
	Inventory *handler.InventoryHandler
	Cart      *handler.CartHandler
	Order     *handler.OrderHandler
	Support   *handler.SupportHandler
	Report    *handler.ReportHandler
	Outbox    *handler.OutboxHandler
	System    *handler.SystemHandler
}

// Security holds the authentication middleware the route table applies.
// ServiceToken and AuthRateLimit are optional. Annotate runs right after
// authentication, where the caller's role is known.
type Security struct {
	JWT           gin.HandlerFunc
	OptionalJWT   gin.HandlerFunc
	ServiceToken  gin.HandlerFunc
	AuthRateLimit gin.HandlerFunc
	Annotate      []gin.HandlerFunc
}

func (s Security) authenticated(auth ...gin.HandlerFunc) []gin.HandlerFunc {
	return append(auth, s.Annotate...)
}

// System configures the unversioned endpoints
type System struct {
	// Metrics serves GET /metrics when set, behind MetricsGuard
	Metrics      http.Handler
	MetricsPath  string
	MetricsGuard gin.HandlerFunc
}

var adminOnly = middleware.RequireRole(string(identity.RoleAdmin))

// DomainGroups builds the /api/v1 route table
func DomainGroups(h Handlers, sec Security) []*DomainGroup {
	groups := []*DomainGroup{
		authRoutes(h.Auth, sec),
		catalogRoutes(h.Product, sec),
		inventoryRoutes(h.Inventory, sec),
		cartRoutes(h.Cart, sec),
		orderRoutes(h.Order, sec),
		supportRoutes(h.Support, sec),
	}

	reports := NewDomainGroup("report", "/reports").Use(sec.authenticated(sec.JWT, adminOnly)...)
	reports.GET("/dashboard", h.Report.Dashboard)
	groups = append(groups, reports)

	users := NewDomainGroup("users", "/users").Use(sec.authenticated(sec.JWT, adminOnly)...)
	users.GET("", h.User.ListUsers).
		GET("/:id", h.User.GetUser).
		PUT("/:id/role", h.User.SetRole)
	groups = append(groups, users)

	if h.Outbox != nil {
		outbox := NewDomainGroup("outbox", "/admin/outbox").Use(sec.authenticated(sec.JWT, adminOnly)...)
		outbox.GET("/stats", h.Outbox.GetStats).
			GET("/dead", h.Outbox.GetDeadLetterEntries).
			POST("/dead/retry", h.Outbox.RetryAllDeadEntries).
			GET("/:id", h.Outbox.GetEntry).
			POST("/:id/retry", h.Outbox.RetryDeadEntry)
		groups = append(groups, outbox)
	}
	return groups
}

func authRoutes(h *handler.AuthHandler, sec Security) *DomainGroup {
	auth := NewDomainGroup("auth", "/auth").Use(sec.AuthRateLimit)
	public := auth.Group("auth-public", "").Use(sec.Annotate...)
	public.POST("/signup", h.Signup).
		POST("/signin", h.Signin).
		POST("/refresh", h.RefreshToken)

	session := auth.Group("session", "").Use(sec.authenticated(sec.JWT)...)
	session.POST("/logout", h.Logout).
		GET("/me", h.GetCurrentUser).
		PUT("/me", h.UpdateProfile).
		PUT("/password", h.ChangePassword)
	return auth
}

func catalogRoutes(h *handler.ProductHandler, sec Security) *DomainGroup {
	products := NewDomainGroup("catalog", "/catalog/products")

	public := products.Group("catalog-public", "").Use(sec.authenticated(sec.OptionalJWT)...)
	public.GET("", h.List).
		GET("/slug/:slug", h.GetBySlug).
		GET("/:id", h.GetByID)

	admin := products.Group("catalog-admin", "").Use(sec.authenticated(sec.JWT, adminOnly)...)
	admin.POST("", h.Create).
		PUT("/:id", h.Update).
		DELETE("/:id", h.Delete).
		POST("/:id/activate", h.Activate).
		POST("/:id/deactivate", h.Deactivate).
		POST("/:id/variants", h.AddVariant).
		PUT("/:id/variants/:variantId", h.UpdateVariant).
		DELETE("/:id/variants/:variantId", h.RemoveVariant).
		POST("/:id/images/upload-url", h.RequestImageUpload).
		POST("/:id/images", h.AttachImage).
		DELETE("/:id/images", h.RemoveImage)
	return products
}

// inventoryRoutes accepts the service token on reservations only, so a
// remote order service can reserve and release but not edit stock
func inventoryRoutes(h *handler.InventoryHandler, sec Security) *DomainGroup {
	inventory := NewDomainGroup("inventory", "/inventory").Use(sec.authenticated(sec.ServiceToken, sec.JWT)...)

	stock := inventory.Group("inventory-admin", "").Use(adminOnly)
	stock.PUT("/products/:id/variants/:variantId/stock", h.UpdateVariantStock).
		POST("/stock/batch", h.BatchUpdateStock).
		GET("/movements", h.ListMovements).
		GET("/low-stock", h.LowStock)

	reservations := inventory.Group("reservations", "/reservations").
		Use(middleware.RequireRole(string(identity.RoleAdmin), middleware.ServiceRole))
	reservations.POST("", h.Reserve).
		POST("/:orderId/release", h.Release)
	return inventory
}

func cartRoutes(h *handler.CartHandler, sec Security) *DomainGroup {
	cart := NewDomainGroup("cart", "/cart").Use(sec.authenticated(sec.JWT)...)
	cart.GET("", h.GetCart).
		DELETE("", h.Clear).
		POST("/items", h.AddItem).
		PUT("/items/:variantId", h.UpdateItem).
		DELETE("/items/:variantId", h.RemoveItem)
	return cart
}

func orderRoutes(h *handler.OrderHandler, sec Security) *DomainGroup {
	orders := NewDomainGroup("orders", "/orders").Use(sec.authenticated(sec.JWT)...)
	orders.POST("", h.PlaceOrder).
		GET("", h.ListOrders).
		GET("/:id", h.GetOrder).
		POST("/:id/cancel", h.CancelOrder)

	admin := orders.Group("orders-admin", "").Use(adminOnly)
	admin.PUT("/:id/status", h.UpdateStatus).
		POST("/:id/pay", h.MarkPaid)
	return orders
}

func supportRoutes(h *handler.SupportHandler, sec Security) *DomainGroup {
	conversations := NewDomainGroup("support", "/support/conversations").Use(sec.authenticated(sec.JWT)...)
	conversations.POST("", h.StartConversation).
		GET("", h.ListConversations).
		GET("/:id/messages", h.ListMessages).
		POST("/:id/messages", h.SendMessage).
		POST("/:id/read", h.MarkRead).
		POST("/:id/close", h.CloseConversation).
		GET("/:id/stream", h.Stream)
	return conversations
}

// Mount registers the API under /api/v1 plus the unversioned system
// endpoints, and answers unknown routes with ROUTE_NOT_FOUND
func Mount(engine *gin.Engine, h Handlers, sec Security, sys System) *Router {
	engine.GET("/health", h.System.Health)
	engine.GET("/system/info", h.System.GetSystemInfo)
	if sys.Metrics != nil {
		metricsPath := sys.MetricsPath
		if metricsPath == "" {
			metricsPath = "/metrics"
		}
		handlers := []gin.HandlerFunc{gin.WrapH(sys.Metrics)}
		if sys.MetricsGuard != nil {
			handlers = append([]gin.HandlerFunc{sys.MetricsGuard}, handlers...)
		}
		engine.GET(metricsPath, handlers...)
	}
	engine.NoRoute(h.System.NotFound)

	r := NewRouter(engine, WithAPIVersion("v1"))
	for _, g := range DomainGroups(h, sec) {
		r.Register(g)
	}
	r.Setup()
	return r
}
