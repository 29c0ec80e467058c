package emission

import (
	"context"
	"fmt"
	"time"

	"github.com/jhoicas/emissor-fiscal/internal/domain"
	"github.com/jhoicas/emissor-fiscal/internal/domain/entity"
	"github.com/jhoicas/emissor-fiscal/internal/domain/fiscal"
	"github.com/jhoicas/emissor-fiscal/internal/domain/repository"
	"github.com/jhoicas/emissor-fiscal/pkg/sefaz"
	"github.com/rs/zerolog"
)

// CancelUseCase cancelamento pedido pelo emitente.
type CancelUseCase struct {
	docs        repository.TaxDocumentRepository
	tx          TxRunner
	credentials *Credentials
	client      SigningTransmissionClient
	allocator   *NumberAllocator
	recorder    *Recorder
	store       ArtifactStore
	log         zerolog.Logger
}

func NewCancelUseCase(docs repository.TaxDocumentRepository, tx TxRunner, credentials *Credentials, client SigningTransmissionClient, allocator *NumberAllocator, recorder *Recorder, store ArtifactStore, log zerolog.Logger) *CancelUseCase {
	return &CancelUseCase{docs: docs, tx: tx, credentials: credentials, client: client, allocator: allocator, recorder: recorder, store: store, log: log}
}

// Cancel cancela o documento conforme o status:
//   - queued: cancelamento local; a emissão em curso percebe pelo CAS e desiste.
//   - submitted/processing: consulta a SEFAZ primeiro; só segue se estiver autorizado.
//   - authorized: evento 110111 na SEFAZ.
//   - rejected/cancelled: domain.ErrConflict.
func (uc *CancelUseCase) Cancel(ctx context.Context, issuerID, documentID, justification string) (*entity.TaxDocument, error) {
	if err := fiscal.ValidateJustification(justification); err != nil {
		return nil, fiscal.ValidationFailed([]fiscal.FieldError{{Field: "justification", Reason: err.Error()}})
	}
	doc, err := uc.docs.GetByID(ctx, issuerID, documentID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, domain.ErrNotFound
	}
	log := uc.log.With().Str("document_id", doc.ID).Str("issuer_id", issuerID).Logger()

	switch doc.Status {
	case entity.StatusQueued:
		doc.CancelJustification = justification
		if err := uc.allocator.CancelAndRelease(ctx, doc, entity.StatusQueued, "cancelado pelo emitente: "+justification); err != nil {
			return nil, err
		}
		log.Info().Msg("documento cancelado antes da transmissão")
		return doc, nil

	case entity.StatusSubmitted, entity.StatusProcessing:
		if err := uc.resolve(ctx, doc); err != nil {
			return nil, err
		}
		if doc.Status != entity.StatusAuthorized {
			return nil, fmt.Errorf("%w: documento %s na SEFAZ; cancelamento indisponível", domain.ErrConflict, doc.Status)
		}

	case entity.StatusAuthorized:

	default:
		return nil, fmt.Errorf("%w: documento %s não pode ser cancelado", domain.ErrConflict, doc.Status)
	}

	// ═══ evento de cancelamento ═══
	profile, cert, err := uc.credentials.ForDocument(ctx, doc)
	if err != nil {
		return nil, err
	}
	route, err := fiscal.RouteFromKey(doc.AccessKey, doc.Environment)
	if err != nil {
		return nil, fmt.Errorf("chave de acesso: %w", err)
	}
	resp, err := uc.client.Cancel(ctx, route, fiscal.CancelRequest{
		AccessKey:     doc.AccessKey,
		Protocol:      doc.Protocol,
		CNPJ:          sefaz.OnlyDigits(profile.CNPJ),
		Justification: justification,
		At:            time.Now(),
		Sequence:      1,
	}, cert)
	if err != nil {
		return nil, err
	}
	if resp.Kind != fiscal.ResponseCancelled {
		log.Info().Str("cstat", resp.Code).Str("xmotivo", resp.Message).Msg("cancelamento rejeitado")
		return nil, fiscal.AuthorityRejected(resp.Code, resp.Message).WithDocument(doc)
	}

	from, err := fiscal.Advance(doc, entity.StatusCancelled)
	if err != nil {
		return nil, err
	}
	at := resp.ReceivedAt
	if at.IsZero() {
		at = time.Now()
	}
	doc.CancelProtocol = resp.Protocol
	doc.CancelJustification = justification
	doc.CancelledAt = &at
	err = uc.tx.Run(ctx, func(docRepo repository.TaxDocumentRepository, _ repository.NumberSequenceRepository, _ repository.NumberReservationRepository) error {
		return docRepo.Transition(ctx, doc, from, resp.Code, resp.Message)
	})
	if err != nil {
		// evento homologado mas não gravado: a consulta de situação devolve 101 e a reconciliação corrige
		log.Error().Err(err).Str("protocolo", resp.Protocol).Msg("cancelamento homologado não gravado")
		return nil, err
	}
	if len(resp.ProtocolXML) > 0 && uc.store != nil {
		path := fmt.Sprintf("xml/%s/%04d/%02d/%s-procEventoNFe.xml", doc.IssuerID, at.Year(), int(at.Month()), doc.AccessKey)
		if err := uc.store.Put(ctx, path, resp.ProtocolXML, "application/xml"); err != nil {
			log.Warn().Err(err).Msg("falha ao arquivar evento de cancelamento")
		}
	}
	log.Info().Str("protocolo", resp.Protocol).Msg("documento cancelado na SEFAZ")
	return doc, nil
}

// resolve consulta a situação de um documento em voo e grava o resultado.
func (uc *CancelUseCase) resolve(ctx context.Context, doc *entity.TaxDocument) error {
	_, cert, err := uc.credentials.ForDocument(ctx, doc)
	if err != nil {
		return err
	}
	route, err := fiscal.RouteFromKey(doc.SubmissionKey, doc.Environment)
	if err != nil {
		return fmt.Errorf("chave de submissão: %w", err)
	}
	resp, err := uc.client.QueryStatus(ctx, route, doc.SubmissionKey, doc.SignedXML, cert)
	if err != nil {
		return err
	}
	if _, err := uc.recorder.Apply(ctx, doc, resp); err != nil {
		return err
	}
	return nil
}
