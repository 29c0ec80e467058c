package http

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/jhoicas/emissor-fiscal/internal/application/dto"
	"github.com/jhoicas/emissor-fiscal/internal/application/usecase"
	"github.com/jhoicas/emissor-fiscal/internal/domain/entity"
	"github.com/rs/zerolog"
)

type historyService interface {
	List(ctx context.Context, issuerID string, in dto.DocumentListRequest) (*dto.DocumentListResponse, error)
	Get(ctx context.Context, issuerID, id string) (*dto.DocumentDetailResponse, error)
	XML(ctx context.Context, issuerID, id string) (*usecase.Artifact, error)
	PDF(ctx context.Context, issuerID, id string) (*usecase.Artifact, error)
}

type canceller interface {
	Cancel(ctx context.Context, issuerID, documentID, justification string) (*entity.TaxDocument, error)
}

// DocumentHandler histórico, cancelamento e download de artefatos.
type DocumentHandler struct {
	history historyService
	cancel  canceller
	log     zerolog.Logger
}

func NewDocumentHandler(history historyService, cancel canceller, log zerolog.Logger) *DocumentHandler {
	return &DocumentHandler{history: history, cancel: cancel, log: log}
}

// List godoc
// @Summary      Histórico de documentos fiscais
// @Tags         fiscal
// @Security     Bearer
// @Produce      json
// @Param        status    query  string  false  "queued|submitted|processing|authorized|rejected|cancelled"
// @Param        doc_type  query  string  false  "nfe|nfce"
// @Param        q         query  string  false  "número, chave ou destinatário"
// @Param        limit     query  int     false  "padrão 20, máximo 100"
// @Param        offset    query  int     false  "deslocamento"
// @Success      200  {object}  dto.DocumentListResponse
// @Failure      400  {object}  dto.ErrorResponse
// @Router       /api/fiscal/documents [get]
func (h *DocumentHandler) List(c *fiber.Ctx) error {
	issuerID := GetIssuerID(c)
	if issuerID == "" {
		return unauthorized(c)
	}
	var in dto.DocumentListRequest
	if err := c.QueryParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "parâmetros de consulta inválidos"})
	}
	out, err := h.history.List(c.Context(), issuerID, in)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(out)
}

// Get godoc
// @Summary      Documento fiscal com trilha de eventos
// @Tags         fiscal
// @Security     Bearer
// @Produce      json
// @Param        id   path  string  true  "id do documento"
// @Success      200  {object}  dto.DocumentDetailResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/fiscal/documents/{id} [get]
func (h *DocumentHandler) Get(c *fiber.Ctx) error {
	issuerID := GetIssuerID(c)
	if issuerID == "" {
		return unauthorized(c)
	}
	out, err := h.history.Get(c.Context(), issuerID, c.Params("id"))
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(out)
}

// Cancel godoc
// @Summary      Cancelar documento
// @Description  queued: cancelamento local e o número volta ao contador. authorized: evento 110111 na SEFAZ.
// @Tags         fiscal
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string                     true  "id do documento"
// @Param        body  body  dto.CancelDocumentRequest  true  "justificativa (15 a 255 caracteres)"
// @Success      200   {object}  dto.DocumentResponse
// @Failure      409   {object}  dto.ErrorResponse
// @Failure      422   {object}  dto.ErrorResponse
// @Router       /api/fiscal/documents/{id}/cancel [post]
func (h *DocumentHandler) Cancel(c *fiber.Ctx) error {
	issuerID := GetIssuerID(c)
	if issuerID == "" {
		return unauthorized(c)
	}
	var in dto.CancelDocumentRequest
	if err := c.BodyParser(&in); err != nil {
		return invalidBody(c)
	}
	doc, err := h.cancel.Cancel(c.Context(), issuerID, c.Params("id"), in.Justification)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(dto.NewDocumentResponse(doc))
}

// XML godoc
// @Summary      Download do XML autorizado (nfeProc)
// @Tags         fiscal
// @Security     Bearer
// @Produce      application/xml
// @Param        id   path  string  true  "id do documento"
// @Success      200  {file}  file
// @Failure      409  {object}  dto.ErrorResponse
// @Router       /api/fiscal/documents/{id}/xml [get]
func (h *DocumentHandler) XML(c *fiber.Ctx) error {
	issuerID := GetIssuerID(c)
	if issuerID == "" {
		return unauthorized(c)
	}
	a, err := h.history.XML(c.Context(), issuerID, c.Params("id"))
	if err != nil {
		return writeError(c, h.log, err)
	}
	return sendArtifact(c, a)
}

// PDF godoc
// @Summary      DANFE (NF-e) ou DANFC-e (NFC-e)
// @Tags         fiscal
// @Security     Bearer
// @Produce      application/pdf
// @Param        id   path  string  true  "id do documento"
// @Success      200  {file}  file
// @Failure      409  {object}  dto.ErrorResponse
// @Router       /api/fiscal/documents/{id}/pdf [get]
func (h *DocumentHandler) PDF(c *fiber.Ctx) error {
	issuerID := GetIssuerID(c)
	if issuerID == "" {
		return unauthorized(c)
	}
	a, err := h.history.PDF(c.Context(), issuerID, c.Params("id"))
	if err != nil {
		return writeError(c, h.log, err)
	}
	return sendArtifact(c, a)
}

func sendArtifact(c *fiber.Ctx, a *usecase.Artifact) error {
	c.Set(fiber.HeaderContentType, a.ContentType)
	c.Attachment(a.Filename)
	return c.Send(a.Data)
}
