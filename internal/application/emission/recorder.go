package emission

import (
	"context"
	"fmt"
	"time"

	"github.com/jhoicas/emissor-fiscal/internal/domain/entity"
	"github.com/jhoicas/emissor-fiscal/internal/domain/fiscal"
	"github.com/jhoicas/emissor-fiscal/internal/domain/repository"
	"github.com/rs/zerolog"
)

// Recorder grava o resultado devolvido pela SEFAZ: transição de status, campos da autorização e
// fechamento da reserva na mesma transação; depois arquiva o XML autorizado.
type Recorder struct {
	tx      TxRunner
	docs    repository.TaxDocumentRepository
	store   ArtifactStore
	metrics Metrics
	log     zerolog.Logger
}

func NewRecorder(tx TxRunner, docs repository.TaxDocumentRepository, store ArtifactStore, metrics Metrics, log zerolog.Logger) *Recorder {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &Recorder{tx: tx, docs: docs, store: store, metrics: metrics, log: log}
}

// Apply aplica resp a doc. Respostas sem decisão (processamento sem recibo novo, não encontrado)
// não mudam nada e devolvem false.
func (r *Recorder) Apply(ctx context.Context, doc *entity.TaxDocument, resp *fiscal.AuthorityResponse) (bool, error) {
	var (
		to          entity.DocumentStatus
		reservation entity.ReservationStatus
		resReason   string
	)
	switch resp.Kind {
	case fiscal.ResponseAuthorized:
		to, reservation = entity.StatusAuthorized, entity.ReservationCommitted
	case fiscal.ResponseRejected:
		to = entity.StatusRejected
		if resp.Denied() {
			reservation, resReason = entity.ReservationCommitted, "uso denegado: "+resp.Message
		} else {
			reservation, resReason = entity.ReservationSkipped, fmt.Sprintf("rejeitada pela SEFAZ [%s]: %s", resp.Code, resp.Message)
		}
	case fiscal.ResponseProcessing:
		if doc.Status == entity.StatusProcessing {
			return false, nil
		}
		to = entity.StatusProcessing
	case fiscal.ResponseCancelled:
		to, reservation = entity.StatusCancelled, entity.ReservationCommitted
	default:
		return false, nil
	}

	before := *doc
	from, err := fiscal.Advance(doc, to)
	if err != nil {
		return false, err
	}
	now := time.Now()
	doc.AuthorityCode = resp.Code
	doc.AuthorityMessage = resp.Message
	switch to {
	case entity.StatusAuthorized:
		doc.AccessKey = resp.AccessKey
		if doc.AccessKey == "" {
			doc.AccessKey = doc.SubmissionKey
		}
		doc.Protocol = resp.Protocol
		at := resp.ReceivedAt
		if at.IsZero() {
			at = now
		}
		doc.AuthorizedAt = &at
		doc.AuthorizedXML = resp.ProcessedXML
	case entity.StatusProcessing:
		doc.Receipt = resp.Receipt
	case entity.StatusCancelled:
		doc.AccessKey = doc.SubmissionKey
		doc.CancelProtocol = resp.Protocol
		doc.CancelledAt = &now
	}

	var settled entity.ReservationStatus
	err = r.tx.Run(ctx, func(docRepo repository.TaxDocumentRepository, _ repository.NumberSequenceRepository, resRepo repository.NumberReservationRepository) error {
		if err := docRepo.Transition(ctx, doc, from, resp.Code, resp.Message); err != nil {
			return err
		}
		if reservation == "" {
			return nil
		}
		var err error
		settled, err = settleIn(ctx, resRepo, doc.ID, reservation, resReason)
		return err
	})
	if err != nil {
		*doc = before
		return false, err
	}
	if settled != "" {
		r.metrics.NumberSettled(doc.DocType, settled)
	}

	r.log.Info().Str("document_id", doc.ID).Str("issuer_id", doc.IssuerID).
		Str("from", string(from)).Str("to", string(to)).
		Str("cstat", resp.Code).Str("xmotivo", resp.Message).Msg("resultado da SEFAZ gravado")

	if to == entity.StatusAuthorized && len(doc.AuthorizedXML) > 0 {
		r.archive(ctx, doc)
	}
	return true, nil
}

// archive envia o nfeProc para o storage. Falha aqui não desfaz a autorização: o XML continua no banco.
func (r *Recorder) archive(ctx context.Context, doc *entity.TaxDocument) {
	if r.store == nil {
		return
	}
	path := XMLPath(doc)
	if err := r.store.Put(ctx, path, doc.AuthorizedXML, "application/xml"); err != nil {
		r.log.Warn().Err(err).Str("document_id", doc.ID).Msg("falha ao arquivar XML autorizado")
		return
	}
	if err := r.docs.UpdateArtifacts(ctx, doc.ID, path); err != nil {
		r.log.Warn().Err(err).Str("document_id", doc.ID).Msg("falha ao gravar caminho do XML")
		return
	}
	doc.XMLPath = path
}

// XMLPath caminho do nfeProc no storage: xml/{emitente}/{AAAA}/{MM}/{chave}-procNFe.xml.
func XMLPath(doc *entity.TaxDocument) string {
	at := doc.CreatedAt
	if doc.AuthorizedAt != nil {
		at = *doc.AuthorizedAt
	}
	return fmt.Sprintf("xml/%s/%04d/%02d/%s-procNFe.xml", doc.IssuerID, at.Year(), int(at.Month()), doc.AccessKey)
}
