package http

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/jhoicas/emissor-fiscal/internal/application/dto"
	"github.com/jhoicas/emissor-fiscal/internal/application/emission"
	"github.com/jhoicas/emissor-fiscal/internal/domain/entity"
	"github.com/rs/zerolog"
)

type emitter interface {
	Emit(ctx context.Context, issuerID string, req emission.EmitRequest) (*entity.TaxDocument, error)
}

// EmissionHandler emissão de NF-e / NFC-e para uma venda concluída.
type EmissionHandler struct {
	uc  emitter
	log zerolog.Logger
}

func NewEmissionHandler(uc emitter, log zerolog.Logger) *EmissionHandler {
	return &EmissionHandler{uc: uc, log: log}
}

// Emit godoc
// @Summary      Emitir documento fiscal da venda
// @Description  201 autorizado; 202 em processamento ou resultado indeterminado (aguarda consulta).
// @Tags         fiscal
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  dto.EmitRequest  true  "sale_id, doc_type (nfe|nfce), destinatário opcional"
// @Success      201   {object}  dto.DocumentResponse
// @Success      202   {object}  dto.DocumentResponse
// @Failure      409   {object}  dto.ErrorResponse
// @Failure      422   {object}  dto.ErrorResponse
// @Failure      503   {object}  dto.ErrorResponse
// @Router       /api/fiscal/emissions [post]
func (h *EmissionHandler) Emit(c *fiber.Ctx) error {
	issuerID := GetIssuerID(c)
	if issuerID == "" {
		return unauthorized(c)
	}
	var in dto.EmitRequest
	if err := c.BodyParser(&in); err != nil {
		return invalidBody(c)
	}
	if in.SaleID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "sale_id obrigatório"})
	}
	doc, err := h.uc.Emit(c.Context(), issuerID, emission.EmitRequest{
		SaleID:     in.SaleID,
		DocType:    entity.DocumentType(in.DocType),
		CustomerID: in.CustomerID,
		Customer:   in.Customer.ToEntity(),
	})
	if err != nil {
		return writeError(c, h.log, err)
	}
	status := fiber.StatusCreated
	if doc.Status != entity.StatusAuthorized {
		status = fiber.StatusAccepted
	}
	return c.Status(status).JSON(dto.NewDocumentResponse(doc))
}
