package emission

import (
	"context"
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

// NumberAllocator entrega números sem lacuna e sem repetição por (emitente, tipo, série).
//
// Um número que a SEFAZ não pode ter visto é devolvido ao contador com CAS; se outro número já foi
// entregue depois dele o CAS falha e a reserva fica "skipped", para inutilização posterior.
// Números que a SEFAZ viu (autorizados, denegados, rejeitados) nunca voltam ao contador.
type NumberAllocator struct {
	tx      TxRunner
	metrics Metrics
	log     zerolog.Logger
}

func NewNumberAllocator(tx TxRunner, metrics Metrics, log zerolog.Logger) *NumberAllocator {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &NumberAllocator{tx: tx, metrics: metrics, log: log}
}

// ReserveFor reserva o próximo número da série e cria o documento em queued, na mesma transação.
// Em caso de erro nada fica gravado.
func (a *NumberAllocator) ReserveFor(ctx context.Context, doc *entity.TaxDocument) error {
	err := a.tx.Run(ctx, func(docRepo repository.TaxDocumentRepository, seqRepo repository.NumberSequenceRepository, resRepo repository.NumberReservationRepository) error {
		number, err := seqRepo.Reserve(ctx, doc.IssuerID, doc.DocType, doc.Series)
		if err != nil {
			return err
		}
		doc.Number = number
		doc.Status = entity.StatusQueued
		if err := docRepo.Create(ctx, doc); err != nil {
			return err
		}
		now := time.Now()
		return resRepo.Create(ctx, &entity.NumberReservation{
			ID:         uuid.New().String(),
			IssuerID:   doc.IssuerID,
			DocType:    doc.DocType,
			Series:     doc.Series,
			Number:     number,
			DocumentID: doc.ID,
			Status:     entity.ReservationReserved,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	})
	switch {
	case err == nil:
		a.log.Debug().Str("document_id", doc.ID).Str("doc_type", string(doc.DocType)).
			Int("serie", doc.Series).Int64("numero", doc.Number).Msg("número reservado")
		return nil
	case errors.Is(err, domain.ErrSeriesExhausted):
		return fiscal.SeriesExhausted(doc.Series, err)
	case errors.Is(err, domain.ErrNotFound):
		return fiscal.ConfigurationIncomplete([]string{"numeracao_" + string(doc.DocType)})
	default:
		return err
	}
}

// CancelAndRelease leva o documento a cancelled (CAS a partir de from) e devolve/pula o número.
// Só pode ser usado quando a SEFAZ não recebeu o documento.
func (a *NumberAllocator) CancelAndRelease(ctx context.Context, doc *entity.TaxDocument, from entity.DocumentStatus, reason string) error {
	var settled entity.ReservationStatus
	err := a.tx.Run(ctx, func(docRepo repository.TaxDocumentRepository, seqRepo repository.NumberSequenceRepository, resRepo repository.NumberReservationRepository) error {
		doc.Status = entity.StatusCancelled
		now := time.Now()
		doc.CancelledAt = &now
		if err := docRepo.Transition(ctx, doc, from, "", reason); err != nil {
			return err
		}
		var err error
		settled, err = releaseIn(ctx, seqRepo, resRepo, doc, reason)
		return err
	})
	if err != nil {
		doc.Status = from
		doc.CancelledAt = nil
		return err
	}
	a.settled(doc, settled)
	return nil
}

// Release devolve o número de um documento já cancelado localmente. Idempotente.
func (a *NumberAllocator) Release(ctx context.Context, doc *entity.TaxDocument, reason string) error {
	var settled entity.ReservationStatus
	err := a.tx.Run(ctx, func(_ repository.TaxDocumentRepository, seqRepo repository.NumberSequenceRepository, resRepo repository.NumberReservationRepository) error {
		var err error
		settled, err = releaseIn(ctx, seqRepo, resRepo, doc, reason)
		return err
	})
	if err != nil {
		return err
	}
	a.settled(doc, settled)
	return nil
}

func (a *NumberAllocator) settled(doc *entity.TaxDocument, status entity.ReservationStatus) {
	if status == "" {
		return
	}
	a.metrics.NumberSettled(doc.DocType, status)
	a.log.Info().Str("document_id", doc.ID).Int("serie", doc.Series).Int64("numero", doc.Number).
		Str("reserva", string(status)).Msg("número liberado")
}

// releaseIn devolve o número ao contador (CAS) ou o marca como pulado. Devolve o novo status da
// reserva, ou "" se ela já não estava reservada.
func releaseIn(ctx context.Context, seqRepo repository.NumberSequenceRepository, resRepo repository.NumberReservationRepository, doc *entity.TaxDocument, reason string) (entity.ReservationStatus, error) {
	res, err := resRepo.GetByDocument(ctx, doc.ID)
	if err != nil {
		return "", err
	}
	if res == nil || res.Status != entity.ReservationReserved {
		return "", nil
	}
	ok, err := seqRepo.Release(ctx, res.IssuerID, res.DocType, res.Series, res.Number)
	if err != nil {
		return "", err
	}
	to, justification := entity.ReservationReleased, reason
	if !ok {
		to = entity.ReservationSkipped
		justification = fmt.Sprintf("número pulado: %s", reason)
	}
	if err := resRepo.UpdateStatus(ctx, res.ID, entity.ReservationReserved, to, truncate(justification, 255)); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return "", nil
		}
		return "", err
	}
	return to, nil
}

// settleIn fecha a reserva de um número que a SEFAZ viu: committed (autorizado/denegado)
// ou skipped (rejeitado, aguardando inutilização).
func settleIn(ctx context.Context, resRepo repository.NumberReservationRepository, docID string, to entity.ReservationStatus, justification string) (entity.ReservationStatus, error) {
	res, err := resRepo.GetByDocument(ctx, docID)
	if err != nil {
		return "", err
	}
	if res == nil || res.Status != entity.ReservationReserved {
		return "", nil
	}
	if err := resRepo.UpdateStatus(ctx, res.ID, entity.ReservationReserved, to, truncate(justification, 255)); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return "", nil
		}
		return "", err
	}
	return to, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
