package emission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jhoicas/emissor-fiscal/internal/domain"
	"github.com/jhoicas/emissor-fiscal/internal/domain/entity"
	"github.com/jhoicas/emissor-fiscal/internal/domain/fiscal"
	"github.com/jhoicas/emissor-fiscal/internal/domain/repository"
	"github.com/rs/zerolog"
)

// EmitRequest pedido de emissão para uma venda concluída.
type EmitRequest struct {
	SaleID     string
	DocType    entity.DocumentType
	CustomerID string           // opcional; substitui o cliente da venda
	Customer   *entity.Customer // destinatário informado no caixa (ex.: CPF na nota)
}

// Orchestrator conduz uma tentativa de emissão:
//
//	perfil + venda → pré-condições → payload → certificado → idempotência → reserva (queued)
//	→ numeração + assinatura → submitted → transmissão → resultado
//
// Toda falha depois da reserva é compensada: o número volta ao contador (ou é pulado) quando a
// SEFAZ não pode ter recebido o documento; caso contrário o documento fica para a reconciliação.
type Orchestrator struct {
	credentials *Credentials
	sales       repository.SaleRepository
	customers   repository.CustomerRepository
	docs        repository.TaxDocumentRepository
	tx          TxRunner
	allocator   *NumberAllocator
	recorder    *Recorder
	client      SigningTransmissionClient
	metrics     Metrics
	verProc     string
	log         zerolog.Logger
}

// NewOrchestrator monta o orquestrador com todas as dependências.
func NewOrchestrator(
	credentials *Credentials,
	sales repository.SaleRepository,
	customers repository.CustomerRepository,
	docs repository.TaxDocumentRepository,
	tx TxRunner,
	allocator *NumberAllocator,
	recorder *Recorder,
	client SigningTransmissionClient,
	metrics Metrics,
	verProc string,
	log zerolog.Logger,
) *Orchestrator {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &Orchestrator{
		credentials: credentials,
		sales:       sales,
		customers:   customers,
		docs:        docs,
		tx:          tx,
		allocator:   allocator,
		recorder:    recorder,
		client:      client,
		metrics:     metrics,
		verProc:     verProc,
		log:         log,
	}
}

// Emit executa uma tentativa de emissão. Devolve o documento quando autorizado ou em processamento;
// nos demais casos um *fiscal.EmissionError (com o documento anexado quando já existe registro).
func (o *Orchestrator) Emit(ctx context.Context, issuerID string, req EmitRequest) (*entity.TaxDocument, error) {
	started := time.Now()
	doc, err := o.emit(ctx, issuerID, req)
	outcome := "authorized"
	switch {
	case err != nil:
		outcome = string(fiscal.KindOf(err))
		if outcome == "" {
			outcome = "error"
		}
	case doc.Status == entity.StatusProcessing:
		outcome = "processing"
	}
	o.metrics.EmissionFinished(req.DocType, outcome, time.Since(started))
	return doc, err
}

func (o *Orchestrator) emit(ctx context.Context, issuerID string, req EmitRequest) (*entity.TaxDocument, error) {
	if !req.DocType.Valid() {
		return nil, fiscal.ValidationFailed([]fiscal.FieldError{{Field: "tipo", Reason: "tipo de documento deve ser nfe ou nfce"}})
	}
	log := o.log.With().Str("issuer_id", issuerID).Str("sale_id", req.SaleID).Str("doc_type", string(req.DocType)).Logger()
	now := time.Now()

	// ═══════════════════════════════════════════════════════════════════════════
	// 1. Idempotência: uma venda tem no máximo um documento ativo por tipo.
	// Vem antes das validações para que um reenvio devolva o documento existente.
	// ═══════════════════════════════════════════════════════════════════════════
	if active, err := o.docs.GetActiveBySale(ctx, issuerID, req.SaleID, req.DocType); err != nil {
		return nil, fmt.Errorf("consultar documento ativo: %w", err)
	} else if active != nil {
		return nil, fiscal.DuplicateEmission(active)
	}

	// ═══════════════════════════════════════════════════════════════════════════
	// 2. Perfil e pré-condições (antes de qualquer reserva ou chamada de rede)
	// ═══════════════════════════════════════════════════════════════════════════
	profile, err := o.credentials.Profile(ctx, issuerID)
	if err != nil {
		return nil, err
	}
	if missing := profile.MissingFields(req.DocType); len(missing) > 0 {
		return nil, fiscal.ConfigurationIncomplete(missing)
	}
	if profile.CertificateExpired(now) {
		return nil, fiscal.CertificateError(fmt.Sprintf("certificado vencido em %s", profile.CertificateValidUntil.Format("02/01/2006")), nil)
	}
	var cscToken string
	if req.DocType == entity.DocNFCe {
		if cscToken, err = o.credentials.CSCToken(profile); err != nil {
			return nil, err
		}
	}

	// ═══════════════════════════════════════════════════════════════════════════
	// 3. Venda e destinatário
	// ═══════════════════════════════════════════════════════════════════════════
	sale, err := o.sales.GetWithItems(ctx, issuerID, req.SaleID)
	if err != nil {
		return nil, fmt.Errorf("carregar venda: %w", err)
	}
	if sale == nil {
		return nil, fmt.Errorf("venda %s: %w", req.SaleID, domain.ErrNotFound)
	}
	customer, err := o.resolveCustomer(ctx, issuerID, sale, req)
	if err != nil {
		return nil, err
	}

	// ═══════════════════════════════════════════════════════════════════════════
	// 4. Payload (validação completa, sem numeração)
	// ═══════════════════════════════════════════════════════════════════════════
	payload, err := fiscal.Build(fiscal.BuildInput{
		Sale:     sale,
		Profile:  profile,
		Customer: customer,
		DocType:  req.DocType,
		VerProc:  o.verProc,
	})
	if err != nil {
		return nil, err
	}

	// ═══════════════════════════════════════════════════════════════════════════
	// 5. Certificado
	// ═══════════════════════════════════════════════════════════════════════════
	cert, err := o.credentials.Certificate(ctx, profile, now)
	if err != nil {
		return nil, err
	}

	// ═══════════════════════════════════════════════════════════════════════════
	// 6. Reserva do número (documento criado em queued)
	// ═══════════════════════════════════════════════════════════════════════════
	doc := &entity.TaxDocument{
		ID:          uuid.New().String(),
		IssuerID:    issuerID,
		SaleID:      sale.ID,
		DocType:     req.DocType,
		Environment: profile.Environment,
		Series:      profile.SeriesFor(req.DocType),
		Total:       payload.Totals.Total,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if payload.Recipient != nil {
		doc.RecipientDocument = payload.Recipient.Document()
		doc.RecipientName = payload.Recipient.Name
	}
	if err := o.allocator.ReserveFor(ctx, doc); err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			// outra emissão da mesma venda reservou primeiro
			if active, gErr := o.docs.GetActiveBySale(ctx, issuerID, sale.ID, req.DocType); gErr == nil && active != nil {
				return nil, fiscal.DuplicateEmission(active)
			}
		}
		return nil, err
	}
	log = log.With().Str("document_id", doc.ID).Int64("numero", doc.Number).Logger()

	// ═══════════════════════════════════════════════════════════════════════════
	// 7. Numeração + assinatura
	// ═══════════════════════════════════════════════════════════════════════════
	issuedAt := time.Now()
	if err := payload.Assign(fiscal.Numbering{
		Series:   doc.Series,
		Number:   doc.Number,
		IssuedAt: issuedAt,
		CSCID:    profile.CSCID,
		CSCToken: cscToken,
	}); err != nil {
		o.abandon(ctx, doc, entity.StatusQueued, "falha ao numerar: "+err.Error())
		return nil, fiscal.ValidationFailed([]fiscal.FieldError{{Field: "numeracao", Reason: err.Error()}}).WithDocument(doc)
	}
	signed, err := o.client.Sign(payload, cert)
	if err != nil {
		o.abandon(ctx, doc, entity.StatusQueued, "falha ao assinar: "+err.Error())
		if ee, ok := fiscal.AsEmissionError(err); ok {
			return nil, ee.WithDocument(doc)
		}
		return nil, fiscal.CertificateError("falha ao assinar o XML", err).WithDocument(doc)
	}
	snapshot, err := json.Marshal(payload)
	if err != nil {
		o.abandon(ctx, doc, entity.StatusQueued, "falha ao serializar payload")
		return nil, fmt.Errorf("serializar payload: %w", err)
	}

	// ═══════════════════════════════════════════════════════════════════════════
	// 8. submitted: chave e XML assinado gravados antes de transmitir
	// ═══════════════════════════════════════════════════════════════════════════
	doc.SubmissionKey = payload.Ide.AccessKey
	doc.SignedXML = signed.XML
	doc.Payload = snapshot
	doc.IssuedAt = &issuedAt
	if err := o.markSubmitted(ctx, doc); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			// cancelado pelo emitente enquanto a emissão estava em queued
			log.Info().Msg("emissão cancelada antes da transmissão")
			doc.Status = entity.StatusCancelled
			if rErr := o.allocator.Release(ctx, doc, "cancelado pelo emitente"); rErr != nil {
				log.Error().Err(rErr).Msg("falha ao liberar número de emissão cancelada")
			}
			return nil, fiscal.Cancelled(doc)
		}
		o.abandon(ctx, doc, entity.StatusQueued, "falha ao gravar submissão")
		return nil, fmt.Errorf("gravar submissão: %w", err)
	}

	// ═══════════════════════════════════════════════════════════════════════════
	// 9. Transmissão
	// ═══════════════════════════════════════════════════════════════════════════
	resp, err := o.client.Transmit(ctx, signed, cert)
	if err != nil {
		ee, ok := fiscal.AsEmissionError(err)
		if !ok {
			ee = fiscal.UnknownOutcome("falha inesperada na transmissão", err)
		}
		switch ee.Kind {
		case fiscal.KindTransient, fiscal.KindCertificate, fiscal.KindConfigurationIncomplete:
			// o pedido não chegou à SEFAZ: o número pode voltar ao contador
			log.Warn().Err(err).Msg("documento não transmitido")
			o.abandon(ctx, doc, entity.StatusSubmitted, "não transmitida: "+ee.Error())
		default:
			log.Warn().Err(err).Msg("resultado da transmissão indeterminado; aguardando reconciliação")
		}
		return nil, ee.WithDocument(doc)
	}

	// ═══════════════════════════════════════════════════════════════════════════
	// 10. Resultado
	// ═══════════════════════════════════════════════════════════════════════════
	changed, err := o.recorder.Apply(ctx, doc, resp)
	if err != nil {
		log.Error().Err(err).Str("cstat", resp.Code).Msg("falha ao gravar resultado da SEFAZ")
		return nil, fiscal.UnknownOutcome("resultado recebido mas não gravado", err).WithDocument(doc)
	}
	if !changed {
		return nil, fiscal.UnknownOutcome(fmt.Sprintf("resposta sem decisão [%s] %s", resp.Code, resp.Message), nil).WithDocument(doc)
	}

	switch doc.Status {
	case entity.StatusRejected:
		log.Info().Str("cstat", resp.Code).Str("xmotivo", resp.Message).Msg("documento rejeitado")
		return nil, fiscal.AuthorityRejected(resp.Code, resp.Message).WithDocument(doc)
	case entity.StatusCancelled:
		return nil, fiscal.AuthorityRejected(resp.Code, resp.Message).WithDocument(doc)
	}
	log.Info().Str("status", string(doc.Status)).Str("chave", doc.SubmissionKey).Msg("emissão concluída")
	return doc, nil
}

func (o *Orchestrator) resolveCustomer(ctx context.Context, issuerID string, sale *entity.Sale, req EmitRequest) (*entity.Customer, error) {
	if req.Customer != nil {
		return req.Customer, nil
	}
	id := req.CustomerID
	if id == "" {
		id = sale.CustomerID
	}
	if id == "" {
		return nil, nil
	}
	c, err := o.customers.GetByID(ctx, issuerID, id)
	if err != nil {
		return nil, fmt.Errorf("carregar cliente: %w", err)
	}
	if c == nil {
		return nil, fiscal.ValidationFailed([]fiscal.FieldError{{Field: "cliente", Reason: "cliente " + id + " não encontrado"}})
	}
	return c, nil
}

func (o *Orchestrator) markSubmitted(ctx context.Context, doc *entity.TaxDocument) error {
	from, err := fiscal.Advance(doc, entity.StatusSubmitted)
	if err != nil {
		return err
	}
	err = o.tx.Run(ctx, func(docRepo repository.TaxDocumentRepository, _ repository.NumberSequenceRepository, _ repository.NumberReservationRepository) error {
		return docRepo.Transition(ctx, doc, from, "", "XML assinado; transmitindo")
	})
	if err != nil {
		doc.Status = from
	}
	return err
}

// abandon cancela localmente e devolve o número. Usado só quando a SEFAZ não recebeu o documento.
// Roda com contexto próprio: a compensação precisa acontecer mesmo se a requisição foi cancelada.
func (o *Orchestrator) abandon(ctx context.Context, doc *entity.TaxDocument, from entity.DocumentStatus, reason string) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := o.allocator.CancelAndRelease(cctx, doc, from, truncate(reason, 255)); err != nil {
		o.log.Error().Err(err).Str("document_id", doc.ID).Msg("falha na compensação; reconciliação assume")
	}
}
