package emission

import (
	"context"
	"time"

	"github.com/jhoicas/emissor-fiscal/internal/domain/entity"
	"github.com/jhoicas/emissor-fiscal/internal/domain/fiscal"
	"github.com/jhoicas/emissor-fiscal/internal/domain/repository"
)

// TxRunner executa fn dentro de uma transação de banco, com os repositórios atados a ela.
// Reserva de número, criação do documento e transições de status passam sempre por aqui.
type TxRunner interface {
	Run(ctx context.Context, fn func(
		docRepo repository.TaxDocumentRepository,
		seqRepo repository.NumberSequenceRepository,
		resRepo repository.NumberReservationRepository,
	) error) error
}

// SigningTransmissionClient porta para a SEFAZ: certificado, assinatura e web services.
// Os erros devolvidos são *fiscal.EmissionError (CertificateError, TransientFailure, UnknownOutcome).
type SigningTransmissionClient interface {
	// LoadCertificate decodifica o PKCS#12; senha errada ou certificado vencido em now → CertificateError.
	LoadCertificate(archive []byte, passphrase string, now time.Time) (*fiscal.Certificate, error)

	// Sign serializa o payload no leiaute 4.00 e assina infNFe.
	Sign(payload *fiscal.Payload, cert *fiscal.Certificate) (*fiscal.SignedDocument, error)

	// Transmit envia o XML assinado (enviNFe, indSinc=1). Nunca repete após o pedido ter sido escrito.
	Transmit(ctx context.Context, signed *fiscal.SignedDocument, cert *fiscal.Certificate) (*fiscal.AuthorityResponse, error)

	// PollReceipt consulta o recibo de um lote assíncrono. signedXML, quando informado, é usado para montar o nfeProc.
	PollReceipt(ctx context.Context, route fiscal.Route, receipt string, signedXML []byte, cert *fiscal.Certificate) (*fiscal.AuthorityResponse, error)

	// QueryStatus consulta a situação pela chave de acesso.
	QueryStatus(ctx context.Context, route fiscal.Route, accessKey string, signedXML []byte, cert *fiscal.Certificate) (*fiscal.AuthorityResponse, error)

	Cancel(ctx context.Context, route fiscal.Route, req fiscal.CancelRequest, cert *fiscal.Certificate) (*fiscal.AuthorityResponse, error)
	Void(ctx context.Context, route fiscal.Route, req fiscal.VoidRequest, cert *fiscal.Certificate) (*fiscal.AuthorityResponse, error)
}

// ArtifactStore armazenamento de arquivos (certificados, XML autorizados).
type ArtifactStore interface {
	Put(ctx context.Context, path string, data []byte, contentType string) error
	// Get devolve domain.ErrNotFound se o objeto não existe.
	Get(ctx context.Context, path string) ([]byte, error)
}

// SecretBox sela e abre segredos gravados no banco (senha do certificado, CSC).
type SecretBox interface {
	Seal(plain string) (string, error)
	Open(sealed string) (string, error)
}

// PDFGenerator gera DANFE (NF-e) e DANFC-e (NFC-e).
type PDFGenerator interface {
	Render(doc *entity.TaxDocument, payload *fiscal.Payload) ([]byte, error)
}

// Metrics contadores do fluxo de emissão.
type Metrics interface {
	EmissionFinished(docType entity.DocumentType, outcome string, elapsed time.Duration)
	NumberSettled(docType entity.DocumentType, status entity.ReservationStatus)
	DocumentsPolled(outcome string, n int)
	DocumentsReconciled(from entity.DocumentStatus, outcome string)
}

// NopMetrics implementação vazia (testes e CLIs).
type NopMetrics struct{}

func (NopMetrics) EmissionFinished(entity.DocumentType, string, time.Duration)   {}
func (NopMetrics) NumberSettled(entity.DocumentType, entity.ReservationStatus)   {}
func (NopMetrics) DocumentsPolled(string, int)                                   {}
func (NopMetrics) DocumentsReconciled(entity.DocumentStatus, string)             {}
