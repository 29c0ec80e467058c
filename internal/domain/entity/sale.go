package entity

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Status de venda gravados pelo PDV (tabela vendas).
const (
	SaleStatusOpen      = "ABERTA"
	SaleStatusCompleted = "FINALIZADA"
	SaleStatusCancelled = "CANCELADA"
)

// Sale venda finalizada (imutável depois de concluída).
type Sale struct {
	ID            string
	IssuerID      string
	Number        int64
	CustomerID    string // vazio = consumidor não identificado
	Total         decimal.Decimal
	Discount      decimal.Decimal
	NetTotal      decimal.Decimal // valor_final = total - desconto
	PaymentMethod string          // DINHEIRO, PIX, CARTAO_DEBITO, CARTAO_CREDITO
	Status        string
	SoldAt        time.Time
	Items         []SaleItem
}

// SaleItem item da venda com o produto carregado.
type SaleItem struct {
	ID        string
	SaleID    string
	ProductID string
	Product   *Product
	Quantity  decimal.Decimal
	UnitPrice decimal.Decimal
	Subtotal  decimal.Decimal
}

// Finalized indica venda apta a emissão.
func (s *Sale) Finalized() bool {
	return strings.EqualFold(strings.TrimSpace(s.Status), SaleStatusCompleted)
}
