package httpapi

import (
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/cafe/internal/domain"
	"github.com/vladislavdragonenkov/cafe/internal/service/cart"
)

type cartView struct {
	ID    string            `json:"id"`
	Items []domain.CartItem `json:"items"`
	Total decimal.Decimal   `json:"total"`
}

type addItemRequest struct {
	ProductID string `json:"productId"`
}

type quantityRequest struct {
	Quantity int `json:"quantity"`
}

func (s *Server) renderCart(c *fiber.Ctx, status int, id string, builder *cart.Builder) error {
	total, err := builder.Total()
	if err != nil {
		return s.writeError(c, err)
	}
	return c.Status(status).JSON(cartView{ID: id, Items: builder.Items(), Total: total})
}

func (s *Server) createCart(c *fiber.Ctx) error {
	id, builder := s.carts.Create()
	return s.renderCart(c, fiber.StatusCreated, id, builder)
}

func (s *Server) getCart(c *fiber.Ctx) error {
	builder, err := s.carts.Get(c.Params("id"))
	if err != nil {
		return s.writeError(c, err)
	}
	return s.renderCart(c, fiber.StatusOK, c.Params("id"), builder)
}

func (s *Server) deleteCart(c *fiber.Ctx) error {
	if err := s.carts.Delete(c.Params("id")); err != nil {
		return s.writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) addCartItem(c *fiber.Ctx) error {
	builder, err := s.carts.Get(c.Params("id"))
	if err != nil {
		return s.writeError(c, err)
	}
	var in addItemRequest
	if err := c.BodyParser(&in); err != nil || in.ProductID == "" {
		return s.writeError(c, badRequest("productId is required"))
	}
	if err := builder.AddToCart(in.ProductID); err != nil {
		return s.writeError(c, err)
	}
	return s.renderCart(c, fiber.StatusOK, c.Params("id"), builder)
}

func (s *Server) updateCartItem(c *fiber.Ctx) error {
	builder, err := s.carts.Get(c.Params("id"))
	if err != nil {
		return s.writeError(c, err)
	}
	var in quantityRequest
	if err := c.BodyParser(&in); err != nil {
		return s.writeError(c, badRequest("invalid quantity payload"))
	}
	builder.UpdateQuantity(c.Params("productId"), in.Quantity)
	return s.renderCart(c, fiber.StatusOK, c.Params("id"), builder)
}

func (s *Server) removeCartItem(c *fiber.Ctx) error {
	builder, err := s.carts.Get(c.Params("id"))
	if err != nil {
		return s.writeError(c, err)
	}
	builder.RemoveFromCart(c.Params("productId"))
	return s.renderCart(c, fiber.StatusOK, c.Params("id"), builder)
}

func (s *Server) cartProducts(c *fiber.Ctx) error {
	builder, err := s.carts.Get(c.Params("id"))
	if err != nil {
		return s.writeError(c, err)
	}
	products, err := builder.Products(c.Query("search"), c.Query("category"))
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(products)
}

func (s *Server) checkoutCart(c *fiber.Ctx) error {
	builder, err := s.carts.Get(c.Params("id"))
	if err != nil {
		return s.writeError(c, err)
	}
	sale, err := builder.Checkout(s.ledger)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(sale)
}
