package metrics

import (
	"testing"
	"time"

	"github.com/jhoicas/emissor-fiscal/internal/domain/entity"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestEmissionMetrics(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.EmissionFinished(entity.DocNFCe, "authorized", 1200*time.Millisecond)
	m.EmissionFinished(entity.DocNFCe, "authorized", 800*time.Millisecond)
	m.EmissionFinished(entity.DocNFe, "unknown_outcome", time.Second)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.emissions.WithLabelValues("nfce", "authorized")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.emissions.WithLabelValues("nfe", "unknown_outcome")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.emissionLatency))

	m.NumberSettled(entity.DocNFCe, entity.ReservationSkipped)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.numbers.WithLabelValues("nfce", "skipped")))

	m.DocumentsPolled("authorized", 3)
	m.DocumentsPolled("processing", 0)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.polled.WithLabelValues("authorized")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.polled))

	m.DocumentsReconciled(entity.StatusSubmitted, "rejected")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reconciled.WithLabelValues("submitted", "rejected")))
}

func TestNew_RegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}
