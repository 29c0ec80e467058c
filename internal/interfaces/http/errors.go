package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/jhoicas/emissor-fiscal/internal/application/dto"
	"github.com/jhoicas/emissor-fiscal/internal/domain"
	"github.com/jhoicas/emissor-fiscal/internal/domain/fiscal"
	"github.com/rs/zerolog"
)

// kindStatus status HTTP e código de cada ErrorKind.
var kindStatus = map[fiscal.ErrorKind]struct {
	status int
	code   string
}{
	fiscal.KindConfigurationIncomplete: {fiber.StatusUnprocessableEntity, "CONFIGURATION_INCOMPLETE"},
	fiscal.KindValidationFailed:        {fiber.StatusUnprocessableEntity, "VALIDATION"},
	fiscal.KindCertificate:             {fiber.StatusUnprocessableEntity, "CERTIFICATE_ERROR"},
	fiscal.KindAuthorityRejected:       {fiber.StatusUnprocessableEntity, "AUTHORITY_REJECTED"},
	fiscal.KindTransient:               {fiber.StatusServiceUnavailable, "TRANSIENT_FAILURE"},
	fiscal.KindUnknownOutcome:          {fiber.StatusAccepted, "UNKNOWN_OUTCOME"},
	fiscal.KindDuplicateEmission:       {fiber.StatusConflict, "DUPLICATE_EMISSION"},
	fiscal.KindSeriesExhausted:         {fiber.StatusConflict, "SERIES_EXHAUSTED"},
	fiscal.KindCancelled:               {fiber.StatusConflict, "CANCELLED"},
}

// writeError traduz erros de emissão e sentinelas de domínio para dto.ErrorResponse.
// Erros internos são registrados e devolvidos com mensagem genérica.
func writeError(c *fiber.Ctx, log zerolog.Logger, err error) error {
	if ee, ok := fiscal.AsEmissionError(err); ok {
		m, known := kindStatus[ee.Kind]
		if !known {
			m.status, m.code = fiber.StatusInternalServerError, "INTERNAL"
		}
		resp := dto.ErrorResponse{
			Code:          m.code,
			Message:       ee.Error(),
			AuthorityCode: ee.Code,
			Document:      dto.NewDocumentResponse(ee.Document),
		}
		if ee.Kind == fiscal.KindAuthorityRejected && ee.Message != "" {
			resp.Message = ee.Message
		}
		for _, f := range ee.Fields {
			resp.Fields = append(resp.Fields, dto.FieldErrorDTO{Field: f.Field, Reason: f.Reason})
		}
		if m.status >= fiber.StatusInternalServerError {
			log.Warn().Err(err).Str("path", c.Path()).Msg("falha na emissão")
		}
		return c.Status(m.status).JSON(resp)
	}

	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: "recurso não encontrado"})
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrDuplicate):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "CONFLICT", Message: err.Error()})
	case errors.Is(err, domain.ErrUnauthorized):
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "não autorizado"})
	case errors.Is(err, domain.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{Code: "FORBIDDEN", Message: "acesso negado"})
	}
	log.Error().Err(err).Str("path", c.Path()).Msg("erro interno")
	return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: "erro interno, tente novamente"})
}

func unauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "token inválido"})
}

func invalidBody(c *fiber.Ctx) error {
	return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "corpo inválido"})
}
