package handlers

import (
	"time"

	"pasar/internal/middleware"
	"pasar/internal/services"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
)

// AppDeps are the services behind the HTTP API.
type AppDeps struct {
	Auth      middleware.TokenValidator
	Products  *services.ProductService
	Carts     *services.CartService
	Inventory *services.InventoryService
	Orders    *services.OrderService
	// Health reports dependency status for /health; nil reports only the time.
	Health    func() fiber.Map
	AccessLog bool
}

// NewApp builds the Fiber app with every route under /api/v1.
func NewApp(d AppDeps) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "pasar",
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.RequestContext())
	if d.AccessLog {
		app.Use(fiberlogger.New(fiberlogger.Config{
			Format: "${time} ${locals:requestid} ${status} - ${latency} ${method} ${path}\n",
		}))
	}

	required := middleware.AuthRequired(d.Auth)
	optional := middleware.AuthOptional(d.Auth)

	apiV1 := app.Group("/api/v1")
	NewProductHandler(d.Products).RegisterRoutes(apiV1)
	NewCartHandler(d.Carts).RegisterRoutes(apiV1, optional, required)
	NewOrderHandler(d.Orders).RegisterRoutes(apiV1, required)
	NewInventoryHandler(d.Inventory).RegisterRoutes(apiV1, required)

	app.Get("/health", func(c *fiber.Ctx) error {
		body := fiber.Map{"status": "healthy"}
		if d.Health != nil {
			for k, v := range d.Health() {
				body[k] = v
			}
		}
		body["time"] = time.Now().Format(time.RFC3339)
		return c.JSON(body)
	})

	return app
}
