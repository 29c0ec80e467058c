package repository

import (
	"context"
	"time"

	"github.com/jhoicas/emissor-fiscal/internal/domain/entity"
)

// FiscalProfileRepository perfil fiscal do emitente.
type FiscalProfileRepository interface {
	// GetByIssuer devolve (nil, nil) se a conta ainda não configurou o perfil.
	GetByIssuer(ctx context.Context, issuerID string) (*entity.FiscalProfile, error)
	Upsert(ctx context.Context, p *entity.FiscalProfile) error
	UpdateCertificate(ctx context.Context, issuerID, path, sealedPassword string, validUntil time.Time, complete bool) error
}

// MunicipalityRepository tabela IBGE de municípios.
type MunicipalityRepository interface {
	GetByCode(ctx context.Context, code string) (*entity.Municipality, error)
}
