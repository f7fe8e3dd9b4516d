package httpapi

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/vladislavdragonenkov/cafe/internal/service/idempotency"
)

// idempotent выполняет обработчик один раз на Idempotency-Key и воспроизводит его ответ.
// Запросы без заголовка проходят как обычно.
func (s *Server) idempotent() fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := strings.TrimSpace(c.Get(HeaderIdempotencyKey))
		if key == "" || s.guard == nil {
			return c.Next()
		}

		scope := c.Method() + " " + c.Path()
		body := append([]byte(nil), c.Body()...)
		resp, replayed, err := s.guard.Do(key, scope, body, func() (idempotency.Response, error) {
			if err := c.Next(); err != nil {
				return idempotency.Response{}, err
			}
			return idempotency.Response{
				Status: c.Response().StatusCode(),
				Body:   append([]byte(nil), c.Response().Body()...),
			}, nil
		})
		if err != nil {
			return s.writeError(c, err)
		}
		if replayed {
			c.Set(HeaderIdempotentReplay, "true")
			c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSONCharsetUTF8)
			return c.Status(resp.Status).Send(resp.Body)
		}
		return nil
	}
}
