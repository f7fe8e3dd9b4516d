package httpapi

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/vladislavdragonenkov/cafe/internal/domain"
	"github.com/vladislavdragonenkov/cafe/internal/service/idempotency"
)

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type errorMapping struct {
	target error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{domain.ErrProductNotFound, fiber.StatusNotFound, "product_not_found"},
	{domain.ErrCategoryNotFound, fiber.StatusNotFound, "category_not_found"},
	{domain.ErrSaleNotFound, fiber.StatusNotFound, "sale_not_found"},
	{domain.ErrCartNotFound, fiber.StatusNotFound, "cart_not_found"},
	{domain.ErrInsufficientStock, fiber.StatusConflict, "insufficient_stock"},
	{domain.ErrCategoryInUse, fiber.StatusConflict, "category_in_use"},
	{domain.ErrSaleVersionConflict, fiber.StatusConflict, "version_conflict"},
	{idempotency.ErrInProgress, fiber.StatusConflict, "idempotency_in_progress"},
	{domain.ErrIdempotencyHashMismatch, fiber.StatusUnprocessableEntity, "idempotency_key_reused"},
	{domain.ErrEmptyCart, fiber.StatusUnprocessableEntity, "empty_cart"},
	{domain.ErrInvalidQuantity, fiber.StatusUnprocessableEntity, "invalid_quantity"},
	{domain.ErrInvalidStatus, fiber.StatusUnprocessableEntity, "invalid_status"},
	{domain.ErrValidation, fiber.StatusUnprocessableEntity, "validation_failed"},
	{domain.ErrTotalMismatch, fiber.StatusUnprocessableEntity, "validation_failed"},
	{domain.ErrItemPriceInvalid, fiber.StatusUnprocessableEntity, "validation_failed"},
}

// statusFor сопоставляет доменную ошибку HTTP-статусу.
func statusFor(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m.status, m.code
		}
	}
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code, "request_error"
	}
	return fiber.StatusInternalServerError, "internal"
}

func (s *Server) writeError(c *fiber.Ctx, err error) error {
	status, code := statusFor(err)
	message := err.Error()
	if status >= fiber.StatusInternalServerError {
		s.logger.WithError(err).WithFields(map[string]interface{}{
			"method": c.Method(),
			"path":   c.Path(),
		}).Error("request failed")
		message = "something went wrong, please try again"
	}
	return c.Status(status).JSON(errorBody{Error: message, Code: code})
}

func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	return s.writeError(c, err)
}

func badRequest(msg string) error {
	return fiber.NewError(fiber.StatusBadRequest, msg)
}
