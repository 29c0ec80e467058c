package emission

import (
	"context"
	"time"

	"github.com/jhoicas/emissor-fiscal/internal/domain/entity"
	"github.com/jhoicas/emissor-fiscal/internal/domain/fiscal"
	"github.com/jhoicas/emissor-fiscal/internal/domain/repository"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// PollerConfig parâmetros do ciclo de consulta de recibos.
type PollerConfig struct {
	Interval    time.Duration
	Batch       int
	Concurrency int
	Lease       time.Duration // tempo em que o documento fica reservado para esta instância
}

// Poller consulta os recibos dos documentos em processing até a SEFAZ decidir.
type Poller struct {
	docs        repository.TaxDocumentRepository
	credentials *Credentials
	client      SigningTransmissionClient
	recorder    *Recorder
	metrics     Metrics
	cfg         PollerConfig
	log         zerolog.Logger
}

func NewPoller(docs repository.TaxDocumentRepository, credentials *Credentials, client SigningTransmissionClient, recorder *Recorder, metrics Metrics, cfg PollerConfig, log zerolog.Logger) *Poller {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	if cfg.Batch <= 0 {
		cfg.Batch = 20
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.Lease <= 0 {
		cfg.Lease = time.Minute
	}
	return &Poller{docs: docs, credentials: credentials, client: client, recorder: recorder, metrics: metrics, cfg: cfg, log: log}
}

// Run executa RunOnce a cada Interval até ctx ser cancelado.
func (p *Poller) Run(ctx context.Context) {
	runEvery(ctx, p.cfg.Interval, p.log, "poller", func(ctx context.Context) error {
		_, err := p.RunOnce(ctx)
		return err
	})
}

// RunOnce reserva um lote de documentos em processing e consulta cada recibo com concorrência limitada.
// Devolve quantos documentos chegaram a um status terminal.
func (p *Poller) RunOnce(ctx context.Context) (int, error) {
	docs, err := p.docs.ClaimProcessing(ctx, p.cfg.Batch, p.cfg.Lease)
	if err != nil {
		return 0, err
	}
	if len(docs) == 0 {
		return 0, nil
	}

	results := make([]string, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)
	for i, doc := range docs {
		g.Go(func() error {
			results[i] = p.pollOne(gctx, doc)
			return nil
		})
	}
	_ = g.Wait()

	counts := map[string]int{}
	resolved := 0
	for _, r := range results {
		counts[r]++
		if r == "authorized" || r == "rejected" || r == "cancelled" {
			resolved++
		}
	}
	for outcome, n := range counts {
		p.metrics.DocumentsPolled(outcome, n)
	}
	p.log.Debug().Int("claimed", len(docs)).Int("resolved", resolved).Msg("ciclo de consulta de recibos")
	return resolved, nil
}

func (p *Poller) pollOne(ctx context.Context, doc *entity.TaxDocument) string {
	log := p.log.With().Str("document_id", doc.ID).Str("recibo", doc.Receipt).Logger()

	route, err := fiscal.RouteFromKey(doc.SubmissionKey, doc.Environment)
	if err != nil {
		log.Error().Err(err).Msg("chave de submissão inválida")
		return "error"
	}
	_, cert, err := p.credentials.ForDocument(ctx, doc)
	if err != nil {
		log.Warn().Err(err).Msg("certificado indisponível para consulta")
		return "error"
	}

	resp, err := p.client.PollReceipt(ctx, route, doc.Receipt, doc.SignedXML, cert)
	if err == nil && resp.Kind == fiscal.ResponseNotFound {
		// recibo expirado na SEFAZ: consulta pela chave
		resp, err = p.client.QueryStatus(ctx, route, doc.SubmissionKey, doc.SignedXML, cert)
	}
	if err != nil {
		log.Warn().Err(err).Msg("falha ao consultar recibo")
		return "error"
	}

	changed, err := p.recorder.Apply(ctx, doc, resp)
	if err != nil {
		log.Error().Err(err).Msg("falha ao gravar resultado do recibo")
		return "error"
	}
	if !changed {
		return string(resp.Kind)
	}
	return string(doc.Status)
}

// runEvery chama fn imediatamente e depois a cada interval, até ctx terminar.
func runEvery(ctx context.Context, interval time.Duration, log zerolog.Logger, name string, fn func(context.Context) error) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	log.Info().Str("worker", name).Dur("interval", interval).Msg("worker iniciado")
	for {
		if err := fn(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Str("worker", name).Msg("ciclo do worker falhou")
		}
		select {
		case <-ctx.Done():
			log.Info().Str("worker", name).Msg("worker encerrado")
			return
		case <-ticker.C:
		}
	}
}
