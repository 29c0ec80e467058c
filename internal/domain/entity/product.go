package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product produto do cadastro do ERP com os dados fiscais exigidos na emissão.
type Product struct {
	ID        string
	IssuerID  string
	Code      string // cProd
	Name      string
	EAN       string // vazio = SEM GTIN
	NCM       string // classificação fiscal, 8 dígitos
	CEST      string
	CFOP      string // cfop_padrao; vazio = 5102
	Unit      string // unidade comercial (UN, KG, LT...)
	Origin    int    // origem da mercadoria (0-8)
	ICMSRate  *decimal.Decimal // alíquota de ICMS (%), obrigatória no regime normal
	Price     decimal.Decimal
	CreatedAt time.Time
	UpdatedAt time.Time
}
