// Package metrics expõe os contadores do fluxo de emissão no formato Prometheus.
package metrics

import (
	"time"

	"github.com/jhoicas/emissor-fiscal/internal/application/emission"
	"github.com/jhoicas/emissor-fiscal/internal/domain/entity"
	"github.com/prometheus/client_golang/prometheus"
)

var _ emission.Metrics = (*EmissionMetrics)(nil)

// EmissionMetrics implementa emission.Metrics. Os rótulos são de baixa cardinalidade:
// tipo de documento, status e o Kind do erro de emissão.
type EmissionMetrics struct {
	emissions       *prometheus.CounterVec
	emissionLatency *prometheus.HistogramVec
	numbers         *prometheus.CounterVec
	polled          *prometheus.CounterVec
	reconciled      *prometheus.CounterVec
}

// New registra os coletores em registerer (prometheus.DefaultRegisterer se nil).
func New(registerer prometheus.Registerer) *EmissionMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	m := &EmissionMetrics{
		emissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fiscal_emissions_total",
			Help: "Tentativas de emissão por tipo de documento e resultado.",
		}, []string{"doc_type", "outcome"}),
		emissionLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fiscal_emission_duration_seconds",
			Help:    "Duração da emissão síncrona, da reserva do número ao retorno da SEFAZ.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 3, 5, 8, 13, 21, 34, 60},
		}, []string{"doc_type"}),
		numbers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fiscal_numbers_settled_total",
			Help: "Números reservados por destino final (committed, released, skipped, voided).",
		}, []string{"doc_type", "status"}),
		polled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fiscal_receipts_polled_total",
			Help: "Documentos consultados pelo poller de recibos por resultado.",
		}, []string{"outcome"}),
		reconciled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fiscal_documents_reconciled_total",
			Help: "Documentos órfãos resolvidos pelo reconciliador.",
		}, []string{"from", "outcome"}),
	}
	registerer.MustRegister(m.emissions, m.emissionLatency, m.numbers, m.polled, m.reconciled)
	return m
}

func (m *EmissionMetrics) EmissionFinished(docType entity.DocumentType, outcome string, elapsed time.Duration) {
	m.emissions.WithLabelValues(string(docType), outcome).Inc()
	m.emissionLatency.WithLabelValues(string(docType)).Observe(elapsed.Seconds())
}

func (m *EmissionMetrics) NumberSettled(docType entity.DocumentType, status entity.ReservationStatus) {
	m.numbers.WithLabelValues(string(docType), string(status)).Inc()
}

func (m *EmissionMetrics) DocumentsPolled(outcome string, n int) {
	if n <= 0 {
		return
	}
	m.polled.WithLabelValues(outcome).Add(float64(n))
}

func (m *EmissionMetrics) DocumentsReconciled(from entity.DocumentStatus, outcome string) {
	m.reconciled.WithLabelValues(string(from), outcome).Inc()
}
