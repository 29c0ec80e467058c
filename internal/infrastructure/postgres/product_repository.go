package postgres

import (
	"context"
	"fmt"

	"github.com/jhoicas/emissor-fiscal/internal/domain/entity"
	"github.com/shopspring/decimal"
)

// ProductRepo leitura do cadastro de produtos do ERP (tabela produtos).
type ProductRepo struct {
	q Querier
}

func NewProductRepository(q Querier) *ProductRepo {
	return &ProductRepo{q: q}
}

// GetByIDs carrega os produtos informados do emitente, indexados por id.
func (r *ProductRepo) GetByIDs(ctx context.Context, issuerID string, ids []string) (map[string]*entity.Product, error) {
	out := make(map[string]*entity.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	const query = `
		SELECT id::text, user_id::text, codigo, nome, ean, ncm, cest, cfop_padrao,
		       COALESCE(unidade_comercial, unidade), origem_mercadoria, aliquota_icms, preco_venda,
		       created_at, updated_at
		FROM produtos WHERE user_id = $1 AND id = ANY($2::uuid[])`
	rows, err := r.q.Query(ctx, query, issuerID, ids)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var p entity.Product
		var code, ean, ncm, cest, cfop, unit *string
		var origin *int
		var price *decimal.Decimal
		if err := rows.Scan(&p.ID, &p.IssuerID, &code, &p.Name, &ean, &ncm, &cest, &cfop,
			&unit, &origin, &p.ICMSRate, &price, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		p.Code, p.EAN, p.NCM, p.CEST = derefStr(code), derefStr(ean), derefStr(ncm), derefStr(cest)
		p.CFOP, p.Unit = derefStr(cfop), derefStr(unit)
		if origin != nil {
			p.Origin = *origin
		}
		if price != nil {
			p.Price = *price
		}
		out[p.ID] = &p
	}
	return out, rows.Err()
}
