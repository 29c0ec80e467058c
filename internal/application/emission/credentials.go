package emission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jhoicas/emissor-fiscal/internal/domain"
	"github.com/jhoicas/emissor-fiscal/internal/domain/entity"
	"github.com/jhoicas/emissor-fiscal/internal/domain/fiscal"
	"github.com/jhoicas/emissor-fiscal/internal/domain/repository"
)

// Credentials carrega o certificado A1 do emitente a partir do storage e abre os segredos selados.
type Credentials struct {
	profiles repository.FiscalProfileRepository
	store    ArtifactStore
	box      SecretBox
	client   SigningTransmissionClient
}

func NewCredentials(profiles repository.FiscalProfileRepository, store ArtifactStore, box SecretBox, client SigningTransmissionClient) *Credentials {
	return &Credentials{profiles: profiles, store: store, box: box, client: client}
}

// Profile devolve o perfil ou ConfigurationIncomplete se a conta ainda não o configurou.
func (c *Credentials) Profile(ctx context.Context, issuerID string) (*entity.FiscalProfile, error) {
	p, err := c.profiles.GetByIssuer(ctx, issuerID)
	if err != nil {
		return nil, fmt.Errorf("carregar perfil fiscal: %w", err)
	}
	if p == nil {
		return nil, fiscal.ConfigurationIncomplete([]string{"perfil_fiscal"})
	}
	return p, nil
}

// Certificate baixa o PKCS#12 e o decodifica com a senha selada do perfil.
func (c *Credentials) Certificate(ctx context.Context, p *entity.FiscalProfile, now time.Time) (*fiscal.Certificate, error) {
	if p.CertificatePath == "" {
		return nil, fiscal.ConfigurationIncomplete([]string{"certificado"})
	}
	if p.CertificateExpired(now) {
		return nil, fiscal.CertificateError(fmt.Sprintf("certificado vencido em %s", p.CertificateValidUntil.Format("02/01/2006")), nil)
	}
	archive, err := c.store.Get(ctx, p.CertificatePath)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fiscal.CertificateError("arquivo do certificado não encontrado; envie o certificado novamente", err)
	}
	if err != nil {
		return nil, fiscal.TransientFailure("falha ao ler o certificado do storage", err)
	}
	pass, err := c.box.Open(p.CertificatePassword)
	if err != nil {
		return nil, fiscal.CertificateError("senha do certificado ilegível; envie o certificado novamente", err)
	}
	return c.client.LoadCertificate(archive, pass, now)
}

// CSCToken abre o CSC selado (NFC-e).
func (c *Credentials) CSCToken(p *entity.FiscalProfile) (string, error) {
	token, err := c.box.Open(p.CSCToken)
	if err != nil {
		return "", fiscal.ConfigurationIncomplete([]string{"csc_token"})
	}
	return token, nil
}

// ForDocument perfil e certificado do emitente do documento (poller, reconciliação, cancelamento).
func (c *Credentials) ForDocument(ctx context.Context, doc *entity.TaxDocument) (*entity.FiscalProfile, *fiscal.Certificate, error) {
	p, err := c.Profile(ctx, doc.IssuerID)
	if err != nil {
		return nil, nil, err
	}
	cert, err := c.Certificate(ctx, p, time.Now())
	if err != nil {
		return nil, nil, err
	}
	return p, cert, nil
}
