package fiscal

import (
	"time"

	"github.com/jhoicas/emissor-fiscal/internal/domain/entity"
	"github.com/shopspring/decimal"
)

// Payload documento canônico (grupos ide, emit, dest, det, total, pag) no formato que o
// cliente de transmissão serializa para o leiaute 4.00. Também é gravado como snapshot JSON.
type Payload struct {
	DocType        entity.DocumentType `json:"doc_type"`
	Environment    entity.Environment  `json:"environment"`
	Ide            Identification      `json:"ide"`
	Issuer         Issuer              `json:"emit"`
	Recipient      *Recipient          `json:"dest,omitempty"`
	Items          []Item              `json:"det"`
	Totals         Totals              `json:"total"`
	Payments       []Payment           `json:"pag"`
	Supplement     *Supplement         `json:"supl,omitempty"`
	AdditionalInfo string              `json:"inf_cpl,omitempty"`
}

// Identification grupo ide. Series, Number, NumericCode, IssuedAt e AccessKey são preenchidos por Assign.
type Identification struct {
	UFCode         string    `json:"cUF"`
	NumericCode    string    `json:"cNF"`
	Operation      string    `json:"natOp"`
	Model          string    `json:"mod"`
	Series         int       `json:"serie"`
	Number         int64     `json:"nNF"`
	IssuedAt       time.Time `json:"dhEmi"`
	Kind           string    `json:"tpNF"`   // 1 = saída
	Destination    string    `json:"idDest"` // 1 interna, 2 interestadual
	CityCode       string    `json:"cMunFG"`
	PrintType      string    `json:"tpImp"` // 1 DANFE retrato, 4 DANFC-e
	EmissionType   string    `json:"tpEmis"`
	CheckDigit     int       `json:"cDV"`
	Environment    string    `json:"tpAmb"`
	Purpose        string    `json:"finNFe"`
	FinalConsumer  string    `json:"indFinal"`
	Presence       string    `json:"indPres"`
	ProcessType    string    `json:"procEmi"`
	ProcessVersion string    `json:"verProc"`
	AccessKey      string    `json:"chave"`
}

// Address grupos enderEmit / enderDest.
type Address struct {
	Street   string `json:"xLgr"`
	Number   string `json:"nro"`
	District string `json:"xBairro"`
	CityCode string `json:"cMun"`
	City     string `json:"xMun"`
	UF       string `json:"UF"`
	ZipCode  string `json:"CEP,omitempty"`
	Phone    string `json:"fone,omitempty"`
}

// Issuer grupo emit.
type Issuer struct {
	CNPJ              string  `json:"CNPJ"`
	Name              string  `json:"xNome"`
	TradeName         string  `json:"xFant,omitempty"`
	Address           Address `json:"enderEmit"`
	StateRegistration string  `json:"IE"`
	CRT               string  `json:"CRT"`
}

// Recipient grupo dest. Exatamente um entre CPF e CNPJ.
type Recipient struct {
	CPF               string   `json:"CPF,omitempty"`
	CNPJ              string   `json:"CNPJ,omitempty"`
	Name              string   `json:"xNome,omitempty"`
	Address           *Address `json:"enderDest,omitempty"`
	IEIndicator       string   `json:"indIEDest"`
	StateRegistration string   `json:"IE,omitempty"`
	Email             string   `json:"email,omitempty"`
}

// Document CPF ou CNPJ, o que estiver preenchido.
func (r *Recipient) Document() string {
	if r.CPF != "" {
		return r.CPF
	}
	return r.CNPJ
}

// Item grupo det/prod + imposto.
type Item struct {
	Number      int             `json:"nItem"`
	Code        string          `json:"cProd"`
	EAN         string          `json:"cEAN"`
	Description string          `json:"xProd"`
	NCM         string          `json:"NCM"`
	CEST        string          `json:"CEST,omitempty"`
	CFOP        string          `json:"CFOP"`
	Unit        string          `json:"uCom"`
	Quantity    decimal.Decimal `json:"qCom"`
	UnitPrice   decimal.Decimal `json:"vUnCom"`
	Gross       decimal.Decimal `json:"vProd"`
	Discount    decimal.Decimal `json:"vDesc"`
	Tax         ItemTax         `json:"imposto"`
}

// Net valor do item após desconto (base dos tributos).
func (i Item) Net() decimal.Decimal {
	return i.Gross.Sub(i.Discount)
}

// ItemTax entradas de cálculo escolhidas pelo regime: CSOSN para Simples Nacional, CST para regime normal.
type ItemTax struct {
	Origin      int             `json:"orig"`
	CSOSN       string          `json:"CSOSN,omitempty"`
	CST         string          `json:"CST,omitempty"`
	ICMSBase    decimal.Decimal `json:"vBC"`
	ICMSRate    decimal.Decimal `json:"pICMS"`
	ICMSValue   decimal.Decimal `json:"vICMS"`
	PISCST      string          `json:"PIS_CST"`
	PISBase     decimal.Decimal `json:"PIS_vBC"`
	PISRate     decimal.Decimal `json:"pPIS"`
	PISValue    decimal.Decimal `json:"vPIS"`
	COFINSCST   string          `json:"COFINS_CST"`
	COFINSBase  decimal.Decimal `json:"COFINS_vBC"`
	COFINSRate  decimal.Decimal `json:"pCOFINS"`
	COFINSValue decimal.Decimal `json:"vCOFINS"`
}

// Totals grupo ICMSTot.
type Totals struct {
	ICMSBase decimal.Decimal `json:"vBC"`
	ICMS     decimal.Decimal `json:"vICMS"`
	Products decimal.Decimal `json:"vProd"`
	Discount decimal.Decimal `json:"vDesc"`
	PIS      decimal.Decimal `json:"vPIS"`
	COFINS   decimal.Decimal `json:"vCOFINS"`
	Total    decimal.Decimal `json:"vNF"`
}

// Payment grupo detPag.
type Payment struct {
	Method      string          `json:"tPag"`
	Amount      decimal.Decimal `json:"vPag"`
	Integration string          `json:"tpIntegra,omitempty"` // 2 = não integrado (cartões)
}

// Supplement infNFeSupl da NFC-e.
type Supplement struct {
	QRCode string `json:"qrCode"`
	URLKey string `json:"urlChave"`
}
