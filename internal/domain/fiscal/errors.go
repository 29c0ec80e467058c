package fiscal

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jhoicas/emissor-fiscal/internal/domain/entity"
)

// ErrorKind classificação das falhas de emissão.
type ErrorKind string

const (
	KindConfigurationIncomplete ErrorKind = "configuration_incomplete" // usuário precisa concluir o cadastro
	KindValidationFailed        ErrorKind = "validation_failed"        // dados da venda/produtos incompletos
	KindCertificate             ErrorKind = "certificate_error"        // senha errada ou certificado vencido
	KindAuthorityRejected       ErrorKind = "authority_rejected"       // rejeição de regra de negócio da SEFAZ
	KindTransient               ErrorKind = "transient_failure"        // rede/timeout; pode emitir de novo
	KindUnknownOutcome          ErrorKind = "unknown_outcome"          // resultado indeterminado; exige reconciliação
	KindDuplicateEmission       ErrorKind = "duplicate_emission"       // já existe documento ativo para a venda
	KindSeriesExhausted         ErrorKind = "series_exhausted"         // abrir nova série
	KindCancelled               ErrorKind = "cancelled"                // cancelado pelo emitente antes da transmissão
)

// Sentinelas para errors.Is(err, fiscal.ErrAuthorityRejected) etc.
var (
	ErrConfigurationIncomplete = errors.New("configuração fiscal incompleta")
	ErrValidationFailed        = errors.New("dados inválidos para emissão")
	ErrCertificate             = errors.New("certificado digital inválido")
	ErrAuthorityRejected       = errors.New("documento rejeitado pela SEFAZ")
	ErrTransient               = errors.New("falha temporária de comunicação")
	ErrUnknownOutcome          = errors.New("resultado da emissão indeterminado")
	ErrDuplicateEmission       = errors.New("emissão duplicada")
	ErrSeriesExhausted         = errors.New("numeração da série esgotada")
	ErrCancelled               = errors.New("emissão cancelada")
)

var sentinels = map[ErrorKind]error{
	KindConfigurationIncomplete: ErrConfigurationIncomplete,
	KindValidationFailed:        ErrValidationFailed,
	KindCertificate:             ErrCertificate,
	KindAuthorityRejected:       ErrAuthorityRejected,
	KindTransient:               ErrTransient,
	KindUnknownOutcome:          ErrUnknownOutcome,
	KindDuplicateEmission:       ErrDuplicateEmission,
	KindSeriesExhausted:         ErrSeriesExhausted,
	KindCancelled:               ErrCancelled,
}

// FieldError par (campo, motivo).
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// EmissionError erro tipado devolvido pelo orquestrador e pelo cliente de transmissão.
type EmissionError struct {
	Kind     ErrorKind
	Code     string // cStat da SEFAZ, quando houver
	Message  string // mensagem da SEFAZ literal, ou descrição local
	Fields   []FieldError
	Document *entity.TaxDocument // documento persistido, quando houver
	Err      error
}

func (e *EmissionError) Error() string {
	var sb strings.Builder
	sb.WriteString(sentinels[e.Kind].Error())
	if e.Code != "" {
		sb.WriteString(" [" + e.Code + "]")
	}
	if e.Message != "" {
		sb.WriteString(": " + e.Message)
	}
	for i, f := range e.Fields {
		if i == 0 {
			sb.WriteString(": ")
		} else {
			sb.WriteString("; ")
		}
		sb.WriteString(f.Field + " " + f.Reason)
	}
	if e.Err != nil {
		sb.WriteString(" (" + e.Err.Error() + ")")
	}
	return sb.String()
}

func (e *EmissionError) Unwrap() error { return e.Err }

// Is compara com a sentinela do Kind.
func (e *EmissionError) Is(target error) bool {
	return sentinels[e.Kind] == target
}

// Retryable somente falhas transitórias podem virar uma nova emissão automaticamente.
func (e *EmissionError) Retryable() bool {
	return e.Kind == KindTransient
}

// WithDocument anexa o documento persistido.
func (e *EmissionError) WithDocument(doc *entity.TaxDocument) *EmissionError {
	e.Document = doc
	return e
}

// KindOf devolve o Kind de um erro de emissão ou "" se não for um.
func KindOf(err error) ErrorKind {
	var ee *EmissionError
	if errors.As(err, &ee) {
		return ee.Kind
	}
	return ""
}

// AsEmissionError atalho para errors.As.
func AsEmissionError(err error) (*EmissionError, bool) {
	var ee *EmissionError
	ok := errors.As(err, &ee)
	return ee, ok
}

func ConfigurationIncomplete(missing []string) *EmissionError {
	fields := make([]FieldError, 0, len(missing))
	for _, m := range missing {
		fields = append(fields, FieldError{Field: m, Reason: "não configurado"})
	}
	return &EmissionError{Kind: KindConfigurationIncomplete, Fields: fields}
}

func ValidationFailed(fields []FieldError) *EmissionError {
	return &EmissionError{Kind: KindValidationFailed, Fields: fields}
}

func CertificateError(message string, err error) *EmissionError {
	return &EmissionError{Kind: KindCertificate, Message: message, Err: err}
}

func AuthorityRejected(code, message string) *EmissionError {
	return &EmissionError{Kind: KindAuthorityRejected, Code: code, Message: message}
}

func TransientFailure(message string, err error) *EmissionError {
	return &EmissionError{Kind: KindTransient, Message: message, Err: err}
}

func UnknownOutcome(message string, err error) *EmissionError {
	return &EmissionError{Kind: KindUnknownOutcome, Message: message, Err: err}
}

func DuplicateEmission(doc *entity.TaxDocument) *EmissionError {
	msg := fmt.Sprintf("venda já possui %s %s", doc.DocType.Label(), doc.Status)
	return &EmissionError{Kind: KindDuplicateEmission, Message: msg, Document: doc}
}

func SeriesExhausted(series int, err error) *EmissionError {
	return &EmissionError{Kind: KindSeriesExhausted, Message: fmt.Sprintf("série %d sem números disponíveis; configure uma nova série", series), Err: err}
}

func Cancelled(doc *entity.TaxDocument) *EmissionError {
	return &EmissionError{Kind: KindCancelled, Message: "emissão cancelada pelo emitente antes da transmissão", Document: doc}
}
