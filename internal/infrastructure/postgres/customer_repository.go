package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jhoicas/emissor-fiscal/internal/domain/entity"
	"github.com/jhoicas/emissor-fiscal/internal/domain/repository"
	"github.com/jhoicas/emissor-fiscal/pkg/sefaz"
)

var _ repository.CustomerRepository = (*CustomerRepo)(nil)

// CustomerRepo leitura de clientes do ERP (tabela clientes).
type CustomerRepo struct {
	q Querier
}

func NewCustomerRepository(q Querier) *CustomerRepo {
	return &CustomerRepo{q: q}
}

// GetByID obtém um cliente do emitente; o documento volta só com dígitos.
func (r *CustomerRepo) GetByID(ctx context.Context, issuerID, id string) (*entity.Customer, error) {
	if !validUUIDs(issuerID, id) {
		return nil, nil
	}
	const query = `
		SELECT id::text, user_id::text, nome, cpf_cnpj, inscricao_estadual, email, telefone,
		       endereco, numero, bairro, cidade, codigo_municipio, estado, cep, created_at, updated_at
		FROM clientes WHERE id = $1 AND user_id = $2`
	var c entity.Customer
	var doc, ie, email, phone, street, number, district, city, cityCode, uf, zip *string
	err := r.q.QueryRow(ctx, query, id, issuerID).Scan(
		&c.ID, &c.IssuerID, &c.Name, &doc, &ie, &email, &phone,
		&street, &number, &district, &city, &cityCode, &uf, &zip, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get customer: %w", err)
	}
	c.Document = sefaz.OnlyDigits(derefStr(doc))
	c.StateRegistration, c.Email, c.Phone = derefStr(ie), derefStr(email), derefStr(phone)
	c.Street, c.StreetNumber, c.District = derefStr(street), derefStr(number), derefStr(district)
	c.City, c.CityCode, c.UF = derefStr(city), derefStr(cityCode), derefStr(uf)
	c.ZipCode = sefaz.OnlyDigits(derefStr(zip))
	return &c, nil
}
