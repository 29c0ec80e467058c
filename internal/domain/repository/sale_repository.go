package repository

import (
	"context"

	"github.com/jhoicas/emissor-fiscal/internal/domain/entity"
)

// SaleRepository leitura das vendas gravadas pelo PDV (cada item com o produto carregado).
type SaleRepository interface {
	GetWithItems(ctx context.Context, issuerID, saleID string) (*entity.Sale, error)
}

// CustomerRepository leitura de clientes.
type CustomerRepository interface {
	GetByID(ctx context.Context, issuerID, id string) (*entity.Customer, error)
}
