package dto

// PageRequest paginação das listagens.
type PageRequest struct {
	Limit  int `query:"limit"`
	Offset int `query:"offset"`
}

// DefaultPage aplica os valores padrão quando Limit/Offset vêm zerados ou fora do intervalo.
func (p *PageRequest) DefaultPage() {
	if p.Limit <= 0 {
		p.Limit = 20
	}
	if p.Limit > 100 {
		p.Limit = 100
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
}

// PageResponse metadados da página nas respostas.
type PageResponse struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Total  int `json:"total"`
}

// FieldErrorDTO problema de validação (campo, motivo).
type FieldErrorDTO struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ErrorResponse corpo de erro HTTP.
// AuthorityCode e Message repetem literalmente o cStat/xMotivo da SEFAZ nas rejeições.
type ErrorResponse struct {
	Code          string            `json:"code"`
	Message       string            `json:"message"`
	AuthorityCode string            `json:"authority_code,omitempty"`
	Fields        []FieldErrorDTO   `json:"fields,omitempty"`
	Document      *DocumentResponse `json:"document,omitempty"`
}
