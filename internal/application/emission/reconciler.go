package emission

import (
	"context"
	"errors"
	"time"

	"github.com/jhoicas/emissor-fiscal/internal/domain"
	"github.com/jhoicas/emissor-fiscal/internal/domain/entity"
	"github.com/jhoicas/emissor-fiscal/internal/domain/fiscal"
	"github.com/jhoicas/emissor-fiscal/internal/domain/repository"
	"github.com/rs/zerolog"
)

// ReconcilerConfig parâmetros da reconciliação de documentos parados.
type ReconcilerConfig struct {
	Interval   time.Duration
	StaleAfter time.Duration // idade mínima sem atualização para considerar o documento abandonado
	Batch      int
}

// Reconciler resolve documentos deixados em queued ou submitted por uma queda do processo
// ou por uma transmissão de resultado indeterminado.
type Reconciler struct {
	docs        repository.TaxDocumentRepository
	credentials *Credentials
	client      SigningTransmissionClient
	allocator   *NumberAllocator
	recorder    *Recorder
	metrics     Metrics
	cfg         ReconcilerConfig
	log         zerolog.Logger
}

func NewReconciler(docs repository.TaxDocumentRepository, credentials *Credentials, client SigningTransmissionClient, allocator *NumberAllocator, recorder *Recorder, metrics Metrics, cfg ReconcilerConfig, log zerolog.Logger) *Reconciler {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 10 * time.Minute
	}
	if cfg.Batch <= 0 {
		cfg.Batch = 50
	}
	return &Reconciler{docs: docs, credentials: credentials, client: client, allocator: allocator, recorder: recorder, metrics: metrics, cfg: cfg, log: log}
}

// Run executa RunOnce a cada Interval até ctx ser cancelado.
func (r *Reconciler) Run(ctx context.Context) {
	runEvery(ctx, r.cfg.Interval, r.log, "reconciler", func(ctx context.Context) error {
		_, err := r.RunOnce(ctx)
		return err
	})
}

// RunOnce processa um lote de documentos parados. Devolve quantos mudaram de status.
func (r *Reconciler) RunOnce(ctx context.Context) (int, error) {
	before := time.Now().Add(-r.cfg.StaleAfter)
	docs, err := r.docs.ListStale(ctx, []entity.DocumentStatus{entity.StatusQueued, entity.StatusSubmitted}, before, r.cfg.Batch)
	if err != nil {
		return 0, err
	}
	changed := 0
	for _, doc := range docs {
		if ctx.Err() != nil {
			return changed, ctx.Err()
		}
		from := doc.Status
		outcome := r.reconcileOne(ctx, doc)
		r.metrics.DocumentsReconciled(from, outcome)
		if outcome != "pending" && outcome != "error" {
			changed++
		}
	}
	if len(docs) > 0 {
		r.log.Info().Int("stale", len(docs)).Int("changed", changed).Msg("reconciliação concluída")
	}
	return changed, nil
}

func (r *Reconciler) reconcileOne(ctx context.Context, doc *entity.TaxDocument) string {
	log := r.log.With().Str("document_id", doc.ID).Str("status", string(doc.Status)).Logger()

	// ── queued: a emissão caiu antes de transmitir ──
	if doc.Status == entity.StatusQueued {
		err := r.allocator.CancelAndRelease(ctx, doc, entity.StatusQueued, "emissão interrompida antes da transmissão")
		if errors.Is(err, domain.ErrConflict) {
			return "pending"
		}
		if err != nil {
			log.Error().Err(err).Msg("falha ao cancelar documento parado")
			return "error"
		}
		return string(entity.StatusCancelled)
	}

	// ── submitted: a SEFAZ pode ou não ter recebido; consulta pela chave ──
	route, err := fiscal.RouteFromKey(doc.SubmissionKey, doc.Environment)
	if err != nil {
		log.Error().Err(err).Msg("chave de submissão inválida")
		return "error"
	}
	_, cert, err := r.credentials.ForDocument(ctx, doc)
	if err != nil {
		log.Warn().Err(err).Msg("certificado indisponível para reconciliação")
		return "error"
	}
	resp, err := r.client.QueryStatus(ctx, route, doc.SubmissionKey, doc.SignedXML, cert)
	if err != nil {
		log.Warn().Err(err).Msg("consulta de situação falhou; nova tentativa no próximo ciclo")
		return "error"
	}
	if resp.Kind == fiscal.ResponseNotFound {
		// a SEFAZ nunca recebeu: rejeitado com a mensagem dela e número pulado
		resp = &fiscal.AuthorityResponse{Kind: fiscal.ResponseRejected, Code: resp.Code, Message: resp.Message, ReceivedAt: resp.ReceivedAt}
	}
	changed, err := r.recorder.Apply(ctx, doc, resp)
	if err != nil {
		log.Error().Err(err).Msg("falha ao gravar resultado da reconciliação")
		return "error"
	}
	if !changed {
		return "pending"
	}
	return string(doc.Status)
}
