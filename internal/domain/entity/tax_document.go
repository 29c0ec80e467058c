package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// DocumentStatus ciclo de vida do documento fiscal.
//
//	queued → submitted → authorized | rejected
//	submitted → processing → authorized | rejected
//	queued | submitted | processing → cancelled
//	authorized → cancelled (somente por evento de cancelamento homologado)
type DocumentStatus string

const (
	StatusQueued     DocumentStatus = "queued"     // número reservado, ainda não transmitido
	StatusSubmitted  DocumentStatus = "submitted"  // XML assinado gravado, transmissão em curso
	StatusProcessing DocumentStatus = "processing" // lote recebido pela SEFAZ (recibo), aguardando consulta
	StatusAuthorized DocumentStatus = "authorized"
	StatusRejected   DocumentStatus = "rejected"
	StatusCancelled  DocumentStatus = "cancelled"
)

// AllStatuses ordem de exibição no histórico.
var AllStatuses = []DocumentStatus{
	StatusQueued, StatusSubmitted, StatusProcessing, StatusAuthorized, StatusRejected, StatusCancelled,
}

// Valid indica status conhecido.
func (s DocumentStatus) Valid() bool {
	for _, st := range AllStatuses {
		if st == s {
			return true
		}
	}
	return false
}

// Terminal authorized, rejected e cancelled.
func (s DocumentStatus) Terminal() bool {
	return s == StatusAuthorized || s == StatusRejected || s == StatusCancelled
}

// InFlight a SEFAZ pode ter (ou vir a ter) o documento.
func (s DocumentStatus) InFlight() bool {
	return s == StatusQueued || s == StatusSubmitted || s == StatusProcessing
}

// TaxDocument um registro por tentativa de emissão. A venda é referência fraca:
// apagar a venda não apaga o documento.
type TaxDocument struct {
	ID                  string
	IssuerID            string
	SaleID              string
	DocType             DocumentType
	Environment         Environment
	Series              int
	Number              int64
	Status              DocumentStatus
	SubmissionKey       string // chave calculada e enviada; referência para consulta
	AccessKey           string // preenchida somente na autorização
	Receipt             string // nRec (modo assíncrono)
	Protocol            string // nProt de autorização
	AuthorityCode       string // cStat
	AuthorityMessage    string // xMotivo, literal
	RecipientDocument   string
	RecipientName       string
	Total               decimal.Decimal
	Payload             []byte // snapshot JSON do payload montado
	SignedXML           []byte
	AuthorizedXML       []byte // nfeProc
	XMLPath             string
	CancelProtocol      string
	CancelJustification string
	IssuedAt            *time.Time
	AuthorizedAt        *time.Time
	CancelledAt         *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Sandbox documento de homologação (sem valor fiscal).
func (d *TaxDocument) Sandbox() bool {
	return d.Environment.Sandbox()
}

// DocumentEvent trilha append-only das transições.
type DocumentEvent struct {
	ID         string
	DocumentID string
	FromStatus DocumentStatus
	ToStatus   DocumentStatus
	Code       string
	Message    string
	CreatedAt  time.Time
}

// DocumentFilter filtros do histórico.
type DocumentFilter struct {
	Status  DocumentStatus
	DocType DocumentType
	Search  string // número, chave ou nome do destinatário
	Limit   int
	Offset  int
}
