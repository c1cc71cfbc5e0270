package handlers

import (
	"pasar/internal/services"

	"github.com/gofiber/fiber/v2"
)

// ProductHandler exposes the catalog lookups the storefront needs before
// adding to a cart.
type ProductHandler struct {
	service *services.ProductService
}

// NewProductHandler creates a new ProductHandler.
func NewProductHandler(service *services.ProductService) *ProductHandler {
	return &ProductHandler{service: service}
}

// RegisterRoutes registers the product routes with the Fiber app.
func (h *ProductHandler) RegisterRoutes(router fiber.Router) {
	router.Get("/products/:id", h.HandleGetProductByID)
	router.Get("/sellers/:id", h.HandleGetSeller)
}

// HandleGetProductByID retrieves a single product with its variants.
func (h *ProductHandler) HandleGetProductByID(c *fiber.Ctx) error {
	product, err := h.service.GetProductByID(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, "Could not retrieve product", err)
	}
	return c.JSON(product)
}

// HandleGetSeller retrieves a seller profile with its delivery zones.
func (h *ProductHandler) HandleGetSeller(c *fiber.Ctx) error {
	seller, err := h.service.GetSeller(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, "Could not retrieve seller", err)
	}
	return c.JSON(seller)
}
