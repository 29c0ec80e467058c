package http

import (
	"context"
	"io"

	"github.com/gofiber/fiber/v2"
	"github.com/jhoicas/emissor-fiscal/internal/application/dto"
	"github.com/rs/zerolog"
)

// maxCertificateSize limite do arquivo .pfx/.p12 aceito no upload.
const maxCertificateSize = 64 << 10

type profileService interface {
	Get(ctx context.Context, issuerID string) (*dto.FiscalProfileResponse, error)
	Save(ctx context.Context, issuerID string, in dto.FiscalProfileRequest) (*dto.FiscalProfileResponse, error)
	UploadCertificate(ctx context.Context, issuerID, filename string, archive []byte, passphrase string) (*dto.CertificateResponse, error)
}

// ProfileHandler perfil fiscal do emitente e certificado A1.
type ProfileHandler struct {
	uc  profileService
	log zerolog.Logger
}

func NewProfileHandler(uc profileService, log zerolog.Logger) *ProfileHandler {
	return &ProfileHandler{uc: uc, log: log}
}

// Get godoc
// @Summary      Perfil fiscal do emitente
// @Tags         fiscal
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  dto.FiscalProfileResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/fiscal/profile [get]
func (h *ProfileHandler) Get(c *fiber.Ctx) error {
	issuerID := GetIssuerID(c)
	if issuerID == "" {
		return unauthorized(c)
	}
	out, err := h.uc.Get(c.Context(), issuerID)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(out)
}

// Save godoc
// @Summary      Criar ou atualizar o perfil fiscal
// @Tags         fiscal
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  dto.FiscalProfileRequest  true  "dados do emitente, séries e ambiente"
// @Success      200   {object}  dto.FiscalProfileResponse
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      422   {object}  dto.ErrorResponse
// @Router       /api/fiscal/profile [put]
func (h *ProfileHandler) Save(c *fiber.Ctx) error {
	issuerID := GetIssuerID(c)
	if issuerID == "" {
		return unauthorized(c)
	}
	var in dto.FiscalProfileRequest
	if err := c.BodyParser(&in); err != nil {
		return invalidBody(c)
	}
	out, err := h.uc.Save(c.Context(), issuerID, in)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(out)
}

// UploadCertificate godoc
// @Summary      Enviar certificado A1 (PKCS#12)
// @Tags         fiscal
// @Security     Bearer
// @Accept       multipart/form-data
// @Produce      json
// @Param        certificate  formData  file    true  "arquivo .pfx ou .p12"
// @Param        passphrase   formData  string  true  "senha do certificado"
// @Success      200  {object}  dto.CertificateResponse
// @Failure      400  {object}  dto.ErrorResponse
// @Failure      422  {object}  dto.ErrorResponse
// @Router       /api/fiscal/profile/certificate [post]
func (h *ProfileHandler) UploadCertificate(c *fiber.Ctx) error {
	issuerID := GetIssuerID(c)
	if issuerID == "" {
		return unauthorized(c)
	}
	fh, err := c.FormFile("certificate")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "arquivo certificate obrigatório"})
	}
	if fh.Size > maxCertificateSize {
		return c.Status(fiber.StatusRequestEntityTooLarge).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "certificado maior que 64 KiB"})
	}
	passphrase := c.FormValue("passphrase")
	if passphrase == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "passphrase obrigatória"})
	}
	f, err := fh.Open()
	if err != nil {
		return writeError(c, h.log, err)
	}
	defer f.Close()
	archive, err := io.ReadAll(io.LimitReader(f, maxCertificateSize))
	if err != nil {
		return writeError(c, h.log, err)
	}
	out, err := h.uc.UploadCertificate(c.Context(), issuerID, fh.Filename, archive, passphrase)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(out)
}
