package repository

import (
	"context"

	"github.com/jhoicas/emissor-fiscal/internal/domain/entity"
)

// NumberSequenceRepository contador de numeração. Reserve e Release são operações atômicas
// no banco (UPDATE ... RETURNING com lock de linha), nunca leitura seguida de escrita.
type NumberSequenceRepository interface {
	// Reserve incrementa o contador e devolve o número entregue.
	// domain.ErrSeriesExhausted quando next_number > max_number; domain.ErrNotFound se a série não existe.
	Reserve(ctx context.Context, issuerID string, docType entity.DocumentType, series int) (int64, error)

	// Release decrementa o contador somente se number foi o último entregue (CAS).
	// false significa que outro número já foi entregue depois dele.
	Release(ctx context.Context, issuerID string, docType entity.DocumentType, series int, number int64) (bool, error)

	Get(ctx context.Context, issuerID string, docType entity.DocumentType, series int) (*entity.NumberSequence, error)
	ListByIssuer(ctx context.Context, issuerID string) ([]*entity.NumberSequence, error)

	// Configure cria ou ajusta o próximo número. domain.ErrConflict se nextNumber não for
	// maior que o maior número já reservado (ativo) da série.
	Configure(ctx context.Context, seq *entity.NumberSequence) error
}

// NumberReservationRepository reservas de número.
type NumberReservationRepository interface {
	Create(ctx context.Context, r *entity.NumberReservation) error
	GetByDocument(ctx context.Context, documentID string) (*entity.NumberReservation, error)

	// UpdateStatus muda a reserva de from para to (CAS). domain.ErrConflict se já mudou.
	UpdateStatus(ctx context.Context, id string, from, to entity.ReservationStatus, justification string) error

	ListSkipped(ctx context.Context, issuerID string) ([]*entity.NumberReservation, error)
	MarkVoided(ctx context.Context, ids []string, protocol string) error
}
