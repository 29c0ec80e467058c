package fiscal

import (
	"crypto/tls"
	"fmt"
	"time"

	"github.com/jhoicas/emissor-fiscal/internal/domain/entity"
	"github.com/jhoicas/emissor-fiscal/pkg/sefaz"
)

// ResponseKind formatos de resposta da SEFAZ tratados pelo fluxo.
type ResponseKind string

const (
	ResponseAuthorized ResponseKind = "authorized" // autorização síncrona (ou recibo processado)
	ResponseRejected   ResponseKind = "rejected"   // rejeição ou denegação, cStat + xMotivo
	ResponseProcessing ResponseKind = "processing" // lote recebido, consultar recibo depois
	ResponseNotFound   ResponseKind = "not_found"  // chave/recibo desconhecido pela SEFAZ
	ResponseCancelled  ResponseKind = "cancelled"  // cancelamento homologado
	ResponseVoided     ResponseKind = "voided"     // inutilização homologada
)

// AuthorityResponse resposta normalizada. Message é o xMotivo literal.
type AuthorityResponse struct {
	Kind         ResponseKind
	Code         string
	Message      string
	AccessKey    string
	Protocol     string
	Receipt      string
	ReceivedAt   time.Time
	ProtocolXML  []byte // protNFe / retEvento / retInutNFe conforme a operação
	ProcessedXML []byte // nfeProc, quando o XML assinado estava disponível
}

// Denied denegação: número consumido sem validade fiscal.
func (r *AuthorityResponse) Denied() bool {
	return sefaz.Denied(r.Code)
}

// Certificate certificado A1 decodificado.
type Certificate struct {
	TLS         tls.Certificate
	Subject     string
	CNPJ        string // extraído do CN "RAZAO SOCIAL:CNPJ", quando presente
	NotBefore   time.Time
	NotAfter    time.Time
	Fingerprint string // SHA-256 hex do certificado folha
}

// Route seleciona o web service: UF autorizadora, modelo e ambiente.
type Route struct {
	UF          string // sigla
	UFCode      string // cUF
	Model       string
	Environment entity.Environment
}

// RouteFromKey deriva a rota da chave de acesso.
func RouteFromKey(key string, env entity.Environment) (Route, error) {
	parts, err := sefaz.ParseAccessKey(key)
	if err != nil {
		return Route{}, err
	}
	uf, ok := sefaz.UFByCode(parts.UFCode)
	if !ok {
		return Route{}, fmt.Errorf("fiscal: cUF desconhecido %s", parts.UFCode)
	}
	return Route{UF: uf, UFCode: parts.UFCode, Model: parts.Model, Environment: env}, nil
}

// SignedDocument XML assinado pronto para transmissão.
type SignedDocument struct {
	AccessKey string
	Route     Route
	XML       []byte
}

// CancelRequest evento 110111.
type CancelRequest struct {
	AccessKey     string
	Protocol      string // nProt da autorização
	CNPJ          string
	Justification string
	At            time.Time
	Sequence      int // nSeqEvento, 1 para o primeiro cancelamento
}

// VoidRequest inutilização de faixa.
type VoidRequest struct {
	CNPJ          string
	Model         string
	Series        int
	Year          int // dois últimos dígitos
	From          int64
	To            int64
	Justification string
}

// ValidateJustification xJust entre 15 e 255 caracteres.
func ValidateJustification(j string) error {
	n := len([]rune(j))
	if n < sefaz.MinJustification || n > sefaz.MaxJustification {
		return fmt.Errorf("justificativa deve ter entre %d e %d caracteres", sefaz.MinJustification, sefaz.MaxJustification)
	}
	return nil
}
