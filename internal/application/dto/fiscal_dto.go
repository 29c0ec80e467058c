package dto

import (
	"time"

	"github.com/jhoicas/emissor-fiscal/internal/domain/entity"
	"github.com/shopspring/decimal"
)

// EmitRequest body de POST /api/fiscal/emissions.
type EmitRequest struct {
	SaleID     string         `json:"sale_id"`
	DocType    string         `json:"doc_type"` // nfe | nfce
	CustomerID string         `json:"customer_id,omitempty"`
	Customer   *CustomerInput `json:"customer,omitempty"` // destinatário informado no caixa
}

// CustomerInput destinatário avulso (ex.: CPF na nota da NFC-e).
type CustomerInput struct {
	Name              string `json:"name"`
	Document          string `json:"document"` // CPF ou CNPJ
	StateRegistration string `json:"state_registration,omitempty"`
	Email             string `json:"email,omitempty"`
	Phone             string `json:"phone,omitempty"`
	Street            string `json:"street,omitempty"`
	Number            string `json:"number,omitempty"`
	District          string `json:"district,omitempty"`
	City              string `json:"city,omitempty"`
	CityCode          string `json:"city_code,omitempty"`
	UF                string `json:"uf,omitempty"`
	ZipCode           string `json:"zip_code,omitempty"`
}

// ToEntity converte para o cliente de domínio.
func (c *CustomerInput) ToEntity() *entity.Customer {
	if c == nil {
		return nil
	}
	return &entity.Customer{
		Name:              c.Name,
		Document:          c.Document,
		StateRegistration: c.StateRegistration,
		Email:             c.Email,
		Phone:             c.Phone,
		Street:            c.Street,
		StreetNumber:      c.Number,
		District:          c.District,
		City:              c.City,
		CityCode:          c.CityCode,
		UF:                c.UF,
		ZipCode:           c.ZipCode,
	}
}

// DocumentResponse documento fiscal nas respostas. Sandbox indica documento sem valor fiscal.
type DocumentResponse struct {
	ID                string          `json:"id"`
	SaleID            string          `json:"sale_id"`
	DocType           string          `json:"doc_type"`
	Environment       string          `json:"environment"`
	Sandbox           bool            `json:"sandbox"`
	Series            int             `json:"series"`
	Number            int64           `json:"number"`
	Status            string          `json:"status"`
	AccessKey         string          `json:"access_key,omitempty"`
	SubmissionKey     string          `json:"submission_key,omitempty"`
	Receipt           string          `json:"receipt,omitempty"`
	Protocol          string          `json:"protocol,omitempty"`
	AuthorityCode     string          `json:"authority_code,omitempty"`
	AuthorityMessage  string          `json:"authority_message,omitempty"`
	RecipientDocument string          `json:"recipient_document,omitempty"`
	RecipientName     string          `json:"recipient_name,omitempty"`
	Total             decimal.Decimal `json:"total"`
	CancelProtocol    string          `json:"cancel_protocol,omitempty"`
	IssuedAt          *time.Time      `json:"issued_at,omitempty"`
	AuthorizedAt      *time.Time      `json:"authorized_at,omitempty"`
	CancelledAt       *time.Time      `json:"cancelled_at,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// NewDocumentResponse converte a entidade (nil → nil).
func NewDocumentResponse(d *entity.TaxDocument) *DocumentResponse {
	if d == nil {
		return nil
	}
	return &DocumentResponse{
		ID:                d.ID,
		SaleID:            d.SaleID,
		DocType:           string(d.DocType),
		Environment:       string(d.Environment),
		Sandbox:           d.Sandbox(),
		Series:            d.Series,
		Number:            d.Number,
		Status:            string(d.Status),
		AccessKey:         d.AccessKey,
		SubmissionKey:     d.SubmissionKey,
		Receipt:           d.Receipt,
		Protocol:          d.Protocol,
		AuthorityCode:     d.AuthorityCode,
		AuthorityMessage:  d.AuthorityMessage,
		RecipientDocument: d.RecipientDocument,
		RecipientName:     d.RecipientName,
		Total:             d.Total,
		CancelProtocol:    d.CancelProtocol,
		IssuedAt:          d.IssuedAt,
		AuthorizedAt:      d.AuthorizedAt,
		CancelledAt:       d.CancelledAt,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}
}

// DocumentEventResponse linha da trilha de status.
type DocumentEventResponse struct {
	From      string    `json:"from,omitempty"`
	To        string    `json:"to"`
	Code      string    `json:"code,omitempty"`
	Message   string    `json:"message,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// DocumentDetailResponse GET /api/fiscal/documents/:id.
type DocumentDetailResponse struct {
	DocumentResponse
	QRCode string                  `json:"qr_code,omitempty"`
	Events []DocumentEventResponse `json:"events"`
}

// DocumentListRequest filtros de GET /api/fiscal/documents.
type DocumentListRequest struct {
	Status  string `query:"status"`
	DocType string `query:"doc_type"`
	Search  string `query:"q"`
	PageRequest
}

// DocumentListResponse página do histórico com contagem por status.
type DocumentListResponse struct {
	Items  []DocumentResponse `json:"items"`
	Page   PageResponse       `json:"page"`
	Counts map[string]int     `json:"counts"`
}

// CancelDocumentRequest body de POST /api/fiscal/documents/:id/cancel.
type CancelDocumentRequest struct {
	Justification string `json:"justification"`
}

// SkippedNumberResponse número pulado aguardando inutilização.
type SkippedNumberResponse struct {
	ID            string    `json:"id"`
	DocType       string    `json:"doc_type"`
	Series        int       `json:"series"`
	Number        int64     `json:"number"`
	Justification string    `json:"justification,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// VoidNumbersRequest body de POST /api/fiscal/numbers/void.
type VoidNumbersRequest struct {
	Justification string `json:"justification"`
}

// VoidResultResponse resultado da inutilização de uma faixa.
type VoidResultResponse struct {
	DocType       string `json:"doc_type"`
	Series        int    `json:"series"`
	Year          int    `json:"year"`
	From          int64  `json:"from"`
	To            int64  `json:"to"`
	Status        string `json:"status"` // voided | rejected | error
	Protocol      string `json:"protocol,omitempty"`
	AuthorityCode string `json:"authority_code,omitempty"`
	Message       string `json:"message,omitempty"`
}
