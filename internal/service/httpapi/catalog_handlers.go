package httpapi

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/vladislavdragonenkov/cafe/internal/domain"
	"github.com/vladislavdragonenkov/cafe/internal/service/catalog"
)

type stockRequest struct {
	Delta int `json:"delta"`
}

func (s *Server) menu(c *fiber.Ctx) error {
	sections, err := s.catalog.Menu()
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(sections)
}

// listProducts: available=true отдаёт витрину (только в наличии), иначе весь каталог с фильтрами.
func (s *Server) listProducts(c *fiber.Ctx) error {
	search := c.Query("search")
	category := c.Query("category")

	available := false
	if raw := c.Query("available"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			return s.writeError(c, badRequest("available must be a boolean"))
		}
		available = parsed
	}

	if available {
		products, err := s.catalog.Filter(search, category)
		if err != nil {
			return s.writeError(c, err)
		}
		return c.JSON(products)
	}

	products, err := s.catalog.Search(search, category)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(products)
}

func (s *Server) productStats(c *fiber.Ctx) error {
	stats, err := s.catalog.Stats()
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(stats)
}

func (s *Server) getProduct(c *fiber.Ctx) error {
	product, err := s.catalog.GetProduct(c.Params("id"))
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(product)
}

func (s *Server) createProduct(c *fiber.Ctx) error {
	var in catalog.ProductInput
	if err := c.BodyParser(&in); err != nil {
		return s.writeError(c, badRequest("invalid product payload"))
	}
	product, err := s.catalog.AddProduct(in)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(product)
}

func (s *Server) updateProduct(c *fiber.Ctx) error {
	var in domain.Product
	if err := c.BodyParser(&in); err != nil {
		return s.writeError(c, badRequest("invalid product payload"))
	}
	in.ID = c.Params("id")
	product, err := s.catalog.UpdateProduct(in)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(product)
}

func (s *Server) deleteProduct(c *fiber.Ctx) error {
	if err := s.catalog.DeleteProduct(c.Params("id")); err != nil {
		return s.writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) adjustStock(c *fiber.Ctx) error {
	var in stockRequest
	if err := c.BodyParser(&in); err != nil {
		return s.writeError(c, badRequest("invalid stock payload"))
	}
	product, err := s.catalog.AdjustStock(c.Params("id"), in.Delta)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(product)
}

func (s *Server) listCategories(c *fiber.Ctx) error {
	categories, err := s.catalog.ListCategories()
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(categories)
}

func (s *Server) getCategory(c *fiber.Ctx) error {
	category, err := s.catalog.GetCategory(c.Params("id"))
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(category)
}

func (s *Server) createCategory(c *fiber.Ctx) error {
	var in catalog.CategoryInput
	if err := c.BodyParser(&in); err != nil {
		return s.writeError(c, badRequest("invalid category payload"))
	}
	category, err := s.catalog.AddCategory(in)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(category)
}

func (s *Server) updateCategory(c *fiber.Ctx) error {
	var in domain.Category
	if err := c.BodyParser(&in); err != nil {
		return s.writeError(c, badRequest("invalid category payload"))
	}
	in.ID = c.Params("id")
	category, err := s.catalog.UpdateCategory(in)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(category)
}

func (s *Server) deleteCategory(c *fiber.Ctx) error {
	if err := s.catalog.DeleteCategory(c.Params("id")); err != nil {
		return s.writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
