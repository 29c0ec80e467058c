package http

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/jhoicas/emissor-fiscal/internal/application/dto"
	"github.com/rs/zerolog"
)

type numberVoider interface {
	ListSkipped(ctx context.Context, issuerID string) ([]dto.SkippedNumberResponse, error)
	VoidSkipped(ctx context.Context, issuerID, justification string) ([]dto.VoidResultResponse, error)
}

// NumberHandler números pulados e inutilização.
type NumberHandler struct {
	uc  numberVoider
	log zerolog.Logger
}

func NewNumberHandler(uc numberVoider, log zerolog.Logger) *NumberHandler {
	return &NumberHandler{uc: uc, log: log}
}

// Skipped godoc
// @Summary      Números pulados aguardando inutilização
// @Tags         fiscal
// @Security     Bearer
// @Produce      json
// @Success      200  {array}  dto.SkippedNumberResponse
// @Router       /api/fiscal/numbers/skipped [get]
func (h *NumberHandler) Skipped(c *fiber.Ctx) error {
	issuerID := GetIssuerID(c)
	if issuerID == "" {
		return unauthorized(c)
	}
	out, err := h.uc.ListSkipped(c.Context(), issuerID)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(out)
}

// Void godoc
// @Summary      Inutilizar as faixas de números pulados
// @Tags         fiscal
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  dto.VoidNumbersRequest  true  "justificativa (15 a 255 caracteres)"
// @Success      200   {array}  dto.VoidResultResponse
// @Failure      422   {object}  dto.ErrorResponse
// @Router       /api/fiscal/numbers/void [post]
func (h *NumberHandler) Void(c *fiber.Ctx) error {
	issuerID := GetIssuerID(c)
	if issuerID == "" {
		return unauthorized(c)
	}
	var in dto.VoidNumbersRequest
	if err := c.BodyParser(&in); err != nil {
		return invalidBody(c)
	}
	out, err := h.uc.VoidSkipped(c.Context(), issuerID, in.Justification)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(out)
}
