package httpapi

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/cafe/internal/service/cart"
	"github.com/vladislavdragonenkov/cafe/internal/service/catalog"
	"github.com/vladislavdragonenkov/cafe/internal/service/dashboard"
	"github.com/vladislavdragonenkov/cafe/internal/service/idempotency"
	"github.com/vladislavdragonenkov/cafe/internal/service/ledger"
)

const (
	// HeaderIdempotencyKey: заголовок ключа идемпотентности.
	HeaderIdempotencyKey = "Idempotency-Key"
	// HeaderIdempotentReplay выставляется на ответах, взятых из кеша.
	HeaderIdempotentReplay = "Idempotent-Replayed"

	defaultBodyLimit = 1 << 20
)

// Dependencies: сервисы, которые обслуживает HTTP API.
type Dependencies struct {
	Catalog   *catalog.Service
	Ledger    *ledger.Service
	Carts     *cart.Store
	Dashboard *dashboard.View
	// Guard включает Idempotency-Key на оформлении продаж; nil отключает.
	Guard  *idempotency.Guard
	Logger *log.Entry
	// CheckoutRateLimit ограничивает число оформлений в минуту с одного адреса; 0 отключает.
	CheckoutRateLimit int
}

// Server: HTTP JSON API кассы.
type Server struct {
	catalog   *catalog.Service
	ledger    *ledger.Service
	carts     *cart.Store
	dashboard *dashboard.View
	guard     *idempotency.Guard
	logger    *log.Entry
	rateLimit int
}

// NewServer создаёт API поверх сервисов.
func NewServer(deps Dependencies) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = log.WithField("component", "httpapi")
	}
	return &Server{
		catalog:   deps.Catalog,
		ledger:    deps.Ledger,
		carts:     deps.Carts,
		dashboard: deps.Dashboard,
		guard:     deps.Guard,
		logger:    logger,
		rateLimit: deps.CheckoutRateLimit,
	}
}

// App собирает fiber-приложение со всеми маршрутами /api/v1.
func (s *Server) App() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "cafe",
		BodyLimit:             defaultBodyLimit,
		DisableStartupMessage: true,
		Immutable:             true,
		ErrorHandler:          s.errorHandler,
	})
	app.Use(requestid.New())
	app.Use(recover.New())
	app.Use(accessLog(s.logger))

	api := app.Group("/api/v1")

	api.Get("/menu", s.menu)

	api.Get("/products", s.listProducts)
	api.Get("/products/stats", s.productStats)
	api.Get("/products/:id", s.getProduct)
	api.Post("/products", s.createProduct)
	api.Put("/products/:id", s.updateProduct)
	api.Delete("/products/:id", s.deleteProduct)
	api.Post("/products/:id/stock", s.adjustStock)

	api.Get("/categories", s.listCategories)
	api.Get("/categories/:id", s.getCategory)
	api.Post("/categories", s.createCategory)
	api.Put("/categories/:id", s.updateCategory)
	api.Delete("/categories/:id", s.deleteCategory)

	api.Get("/sales", s.listSales)
	api.Get("/sales/:id", s.getSale)
	api.Get("/sales/:id/timeline", s.saleTimeline)
	api.Post("/sales", s.checkoutLimiter(), s.idempotent(), s.createSale)
	api.Patch("/sales/:id/status", s.updateSaleStatus)

	api.Post("/carts", s.createCart)
	api.Get("/carts/:id", s.getCart)
	api.Delete("/carts/:id", s.deleteCart)
	api.Post("/carts/:id/items", s.addCartItem)
	api.Put("/carts/:id/items/:productId", s.updateCartItem)
	api.Delete("/carts/:id/items/:productId", s.removeCartItem)
	api.Get("/carts/:id/products", s.cartProducts)
	api.Post("/carts/:id/checkout", s.checkoutLimiter(), s.idempotent(), s.checkoutCart)

	api.Get("/dashboard", s.summary)

	return app
}

func (s *Server) checkoutLimiter() fiber.Handler {
	if s.rateLimit <= 0 {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	return limiter.New(limiter.Config{
		Max:        s.rateLimit,
		Expiration: time.Minute,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(errorBody{Error: "checkout rate limit exceeded, retry soon", Code: "rate_limited"})
		},
	})
}

// accessLog пишет одну запись logrus на запрос.
func accessLog(logger *log.Entry) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		fields := log.Fields{
			"method":     c.Method(),
			"path":       c.Path(),
			"status":     c.Response().StatusCode(),
			"latency_ms": time.Since(start).Milliseconds(),
		}
		if rid, ok := c.Locals("requestid").(string); ok && rid != "" {
			fields["request_id"] = rid
		}
		entry := logger.WithFields(fields)
		if err != nil {
			entry.WithError(err).Warn("http request failed")
			return err
		}
		entry.Debug("http request")
		return nil
	}
}
