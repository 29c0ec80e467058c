package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jhoicas/emissor-fiscal/internal/domain/entity"
	"github.com/jhoicas/emissor-fiscal/internal/domain/repository"
	"github.com/shopspring/decimal"
)

var _ repository.SaleRepository = (*SaleRepo)(nil)

// SaleRepo leitura das vendas do PDV (vendas + vendas_itens + produtos).
type SaleRepo struct {
	q        Querier
	products *ProductRepo
}

func NewSaleRepository(q Querier) *SaleRepo {
	return &SaleRepo{q: q, products: NewProductRepository(q)}
}

func (r *SaleRepo) GetWithItems(ctx context.Context, issuerID, saleID string) (*entity.Sale, error) {
	if !validUUIDs(issuerID, saleID) {
		return nil, nil
	}
	const query = `
		SELECT id::text, user_id::text, numero, cliente_id::text, valor_total, desconto, valor_final,
		       forma_pagamento, status, data_venda
		FROM vendas WHERE id = $1 AND user_id = $2`
	var s entity.Sale
	var number *int64
	var customerID, payment, status *string
	var total, discount, net *decimal.Decimal
	err := r.q.QueryRow(ctx, query, saleID, issuerID).Scan(
		&s.ID, &s.IssuerID, &number, &customerID, &total, &discount, &net, &payment, &status, &s.SoldAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get sale: %w", err)
	}
	if number != nil {
		s.Number = *number
	}
	s.CustomerID, s.PaymentMethod, s.Status = derefStr(customerID), derefStr(payment), derefStr(status)
	s.Total, s.Discount = decimalOrZero(total), decimalOrZero(discount)
	// vendas antigas não têm valor_final
	if net != nil {
		s.NetTotal = *net
	} else {
		s.NetTotal = s.Total.Sub(s.Discount)
	}

	items, err := r.items(ctx, s.ID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(items))
	for _, it := range items {
		if it.ProductID != "" {
			ids = append(ids, it.ProductID)
		}
	}
	products, err := r.products.GetByIDs(ctx, issuerID, ids)
	if err != nil {
		return nil, err
	}
	for i := range items {
		items[i].Product = products[items[i].ProductID]
	}
	s.Items = items
	return &s, nil
}

func (r *SaleRepo) items(ctx context.Context, saleID string) ([]entity.SaleItem, error) {
	const query = `
		SELECT id::text, venda_id::text, produto_id::text, quantidade, preco_unitario, subtotal
		FROM vendas_itens WHERE venda_id = $1 ORDER BY created_at, id`
	rows, err := r.q.Query(ctx, query, saleID)
	if err != nil {
		return nil, fmt.Errorf("list sale items: %w", err)
	}
	defer rows.Close()
	var list []entity.SaleItem
	for rows.Next() {
		var it entity.SaleItem
		var productID *string
		var qty *decimal.Decimal
		if err := rows.Scan(&it.ID, &it.SaleID, &productID, &qty, &it.UnitPrice, &it.Subtotal); err != nil {
			return nil, fmt.Errorf("scan sale item: %w", err)
		}
		it.ProductID = derefStr(productID)
		it.Quantity = decimalOrZero(qty)
		list = append(list, it)
	}
	return list, rows.Err()
}

func decimalOrZero(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}

// validUUIDs evita erro 22P02 do Postgres para ids que não são UUID (tratados como inexistentes).
func validUUIDs(ids ...string) bool {
	for _, id := range ids {
		if _, err := uuid.Parse(id); err != nil {
			return false
		}
	}
	return true
}
