package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jhoicas/emissor-fiscal/internal/domain"
	"github.com/jhoicas/emissor-fiscal/internal/domain/entity"
	"github.com/jhoicas/emissor-fiscal/internal/domain/repository"
)

var _ repository.FiscalProfileRepository = (*FiscalProfileRepo)(nil)

// FiscalProfileRepo perfil fiscal (um por conta).
type FiscalProfileRepo struct {
	q Querier
}

func NewFiscalProfileRepository(q Querier) *FiscalProfileRepo {
	return &FiscalProfileRepo{q: q}
}

func (r *FiscalProfileRepo) GetByIssuer(ctx context.Context, issuerID string) (*entity.FiscalProfile, error) {
	const query = `
		SELECT issuer_id, cnpj, legal_name, trade_name, state_registration,
		       street, street_number, district, city, city_code, uf, zip_code, phone,
		       tax_regime, environment, certificate_path, certificate_password, certificate_valid_until,
		       csc_id, csc_token, series_nfe, series_nfce, complete, created_at, updated_at
		FROM fiscal_profiles WHERE issuer_id = $1`
	var p entity.FiscalProfile
	var regime, env string
	var tradeName, ie, street, number, district, city, cityCode, uf, zip, phone *string
	var certPath, certPassword, cscID, cscToken *string
	err := r.q.QueryRow(ctx, query, issuerID).Scan(
		&p.IssuerID, &p.CNPJ, &p.LegalName, &tradeName, &ie,
		&street, &number, &district, &city, &cityCode, &uf, &zip, &phone,
		&regime, &env, &certPath, &certPassword, &p.CertificateValidUntil,
		&cscID, &cscToken, &p.SeriesNFe, &p.SeriesNFCe, &p.Complete, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get fiscal profile: %w", err)
	}
	p.TaxRegime, p.Environment = entity.TaxRegime(regime), entity.Environment(env)
	p.TradeName, p.StateRegistration = derefStr(tradeName), derefStr(ie)
	p.Street, p.StreetNumber, p.District = derefStr(street), derefStr(number), derefStr(district)
	p.City, p.CityCode, p.UF, p.ZipCode, p.Phone = derefStr(city), derefStr(cityCode), derefStr(uf), derefStr(zip), derefStr(phone)
	p.CertificatePath, p.CertificatePassword = derefStr(certPath), derefStr(certPassword)
	p.CSCID, p.CSCToken = derefStr(cscID), derefStr(cscToken)
	return &p, nil
}

// Upsert grava os dados cadastrais. O certificado só muda por UpdateCertificate.
func (r *FiscalProfileRepo) Upsert(ctx context.Context, p *entity.FiscalProfile) error {
	now := time.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	const query = `
		INSERT INTO fiscal_profiles (
			issuer_id, cnpj, legal_name, trade_name, state_registration,
			street, street_number, district, city, city_code, uf, zip_code, phone,
			tax_regime, environment, csc_id, csc_token, series_nfe, series_nfce, complete, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
		ON CONFLICT (issuer_id) DO UPDATE SET
			cnpj = EXCLUDED.cnpj,
			legal_name = EXCLUDED.legal_name,
			trade_name = EXCLUDED.trade_name,
			state_registration = EXCLUDED.state_registration,
			street = EXCLUDED.street,
			street_number = EXCLUDED.street_number,
			district = EXCLUDED.district,
			city = EXCLUDED.city,
			city_code = EXCLUDED.city_code,
			uf = EXCLUDED.uf,
			zip_code = EXCLUDED.zip_code,
			phone = EXCLUDED.phone,
			tax_regime = EXCLUDED.tax_regime,
			environment = EXCLUDED.environment,
			csc_id = EXCLUDED.csc_id,
			csc_token = EXCLUDED.csc_token,
			series_nfe = EXCLUDED.series_nfe,
			series_nfce = EXCLUDED.series_nfce,
			complete = EXCLUDED.complete,
			updated_at = EXCLUDED.updated_at`
	_, err := r.q.Exec(ctx, query,
		p.IssuerID, p.CNPJ, p.LegalName, nullIfEmpty(p.TradeName), nullIfEmpty(p.StateRegistration),
		nullIfEmpty(p.Street), nullIfEmpty(p.StreetNumber), nullIfEmpty(p.District), nullIfEmpty(p.City),
		nullIfEmpty(p.CityCode), nullIfEmpty(p.UF), nullIfEmpty(p.ZipCode), nullIfEmpty(p.Phone),
		string(p.TaxRegime), string(p.Environment), nullIfEmpty(p.CSCID), nullIfEmpty(p.CSCToken),
		p.SeriesNFe, p.SeriesNFCe, p.Complete, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert fiscal profile: %w", err)
	}
	return nil
}

func (r *FiscalProfileRepo) UpdateCertificate(ctx context.Context, issuerID, path, sealedPassword string, validUntil time.Time, complete bool) error {
	const query = `
		UPDATE fiscal_profiles
		SET certificate_path = $2, certificate_password = $3, certificate_valid_until = $4, complete = $5, updated_at = now()
		WHERE issuer_id = $1`
	tag, err := r.q.Exec(ctx, query, issuerID, path, sealedPassword, validUntil, complete)
	if err != nil {
		return fmt.Errorf("update certificate: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListExpiringCertificates perfis com certificado vencendo antes de until (aviso no log do worker).
func (r *FiscalProfileRepo) ListExpiringCertificates(ctx context.Context, until time.Time) (map[string]time.Time, error) {
	rows, err := r.q.Query(ctx, `
		SELECT issuer_id, certificate_valid_until FROM fiscal_profiles
		WHERE certificate_valid_until IS NOT NULL AND certificate_valid_until < $1`, until)
	if err != nil {
		return nil, fmt.Errorf("list expiring certificates: %w", err)
	}
	defer rows.Close()
	out := make(map[string]time.Time)
	for rows.Next() {
		var id string
		var at time.Time
		if err := rows.Scan(&id, &at); err != nil {
			return nil, fmt.Errorf("scan expiring certificate: %w", err)
		}
		out[id] = at
	}
	return out, rows.Err()
}
