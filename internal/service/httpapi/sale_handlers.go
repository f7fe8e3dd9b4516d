package httpapi

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/vladislavdragonenkov/cafe/internal/domain"
)

type createSaleRequest struct {
	Items []domain.CartItem `json:"items"`
}

type statusRequest struct {
	Status string `json:"status"`
}

func (s *Server) listSales(c *fiber.Ctx) error {
	today := false
	if raw := c.Query("today"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			return s.writeError(c, badRequest("today must be a boolean"))
		}
		today = parsed
	}

	var (
		sales []domain.Sale
		err   error
	)
	if today {
		sales, err = s.ledger.CompletedToday()
	} else {
		sales, err = s.ledger.ListSales()
	}
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(sales)
}

func (s *Server) getSale(c *fiber.Ctx) error {
	sale, err := s.ledger.GetSale(c.Params("id"))
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(sale)
}

func (s *Server) saleTimeline(c *fiber.Ctx) error {
	events, err := s.ledger.Timeline(c.Params("id"))
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(events)
}

func (s *Server) createSale(c *fiber.Ctx) error {
	var in createSaleRequest
	if err := c.BodyParser(&in); err != nil {
		return s.writeError(c, badRequest("invalid sale payload"))
	}
	sale, err := s.ledger.CreateSale(in.Items)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(sale)
}

func (s *Server) updateSaleStatus(c *fiber.Ctx) error {
	var in statusRequest
	if err := c.BodyParser(&in); err != nil {
		return s.writeError(c, badRequest("invalid status payload"))
	}
	status, err := domain.ParseSaleStatus(in.Status)
	if err != nil {
		return s.writeError(c, err)
	}
	sale, err := s.ledger.UpdateStatus(c.Params("id"), status)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(sale)
}

func (s *Server) summary(c *fiber.Ctx) error {
	summary, err := s.dashboard.Summary()
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(summary)
}
