package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/jhoicas/emissor-fiscal/internal/application/dto"
	"github.com/jhoicas/emissor-fiscal/pkg/jwt"
)

// LocalIssuerID chave em c.Locals do id da conta (sub do JWT), que é o emitente.
const LocalIssuerID = "issuer_id"

// AuthMiddleware valida o Bearer Token (HS256 do Supabase) e grava o id da conta em c.Locals.
func AuthMiddleware(jwtSecret, issuer string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "MISSING_TOKEN", Message: "header Authorization obrigatório"})
		}
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "INVALID_TOKEN", Message: "formato: Bearer <token>"})
		}
		tokenString := strings.TrimSpace(parts[1])
		if tokenString == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "MISSING_TOKEN", Message: "token vazio"})
		}
		accountID, err := jwt.Parse(jwtSecret, issuer, tokenString)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "INVALID_TOKEN", Message: "token inválido ou expirado"})
		}
		c.Locals(LocalIssuerID, accountID)
		return c.Next()
	}
}

// GetIssuerID id do emitente (depois do AuthMiddleware).
func GetIssuerID(c *fiber.Ctx) string {
	v := c.Locals(LocalIssuerID)
	if v == nil {
		return ""
	}
	s, _ := v.(string)
	return s
}
