package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jhoicas/emissor-fiscal/internal/domain"
	"github.com/jhoicas/emissor-fiscal/internal/domain/entity"
	"github.com/jhoicas/emissor-fiscal/internal/domain/repository"
)

var _ repository.NumberReservationRepository = (*NumberReservationRepo)(nil)

const reservationColumns = `id, issuer_id, doc_type, series, number, document_id, status, justification, void_protocol, created_at, updated_at`

type NumberReservationRepo struct {
	q Querier
}

func NewNumberReservationRepository(q Querier) *NumberReservationRepo {
	return &NumberReservationRepo{q: q}
}

func (r *NumberReservationRepo) Create(ctx context.Context, res *entity.NumberReservation) error {
	query := `INSERT INTO number_reservations (` + reservationColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := r.q.Exec(ctx, query,
		res.ID, res.IssuerID, string(res.DocType), res.Series, res.Number, res.DocumentID, string(res.Status),
		nullIfEmpty(res.Justification), nullIfEmpty(res.VoidProtocol), res.CreatedAt, res.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("número %d da série %d já reservado: %w", res.Number, res.Series, domain.ErrDuplicate)
		}
		return fmt.Errorf("insert reservation: %w", err)
	}
	return nil
}

// GetByDocument a reserva mais recente do documento.
func (r *NumberReservationRepo) GetByDocument(ctx context.Context, documentID string) (*entity.NumberReservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM number_reservations WHERE document_id = $1 ORDER BY created_at DESC LIMIT 1`
	res, err := scanReservation(r.q.QueryRow(ctx, query, documentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get reservation: %w", err)
	}
	return res, nil
}

func (r *NumberReservationRepo) UpdateStatus(ctx context.Context, id string, from, to entity.ReservationStatus, justification string) error {
	const query = `
		UPDATE number_reservations
		SET status = $3, justification = COALESCE($4, justification), updated_at = now()
		WHERE id = $1 AND status = $2`
	tag, err := r.q.Exec(ctx, query, id, string(from), string(to), nullIfEmpty(justification))
	if err != nil {
		return fmt.Errorf("update reservation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("reserva %s não está mais em %s: %w", id, from, domain.ErrConflict)
	}
	return nil
}

// ListSkipped números pulados ainda não inutilizados, em ordem de faixa.
func (r *NumberReservationRepo) ListSkipped(ctx context.Context, issuerID string) ([]*entity.NumberReservation, error) {
	query := `
		SELECT ` + reservationColumns + `
		FROM number_reservations
		WHERE issuer_id = $1 AND status = 'skipped'
		ORDER BY doc_type, series, number`
	rows, err := r.q.Query(ctx, query, issuerID)
	if err != nil {
		return nil, fmt.Errorf("list skipped: %w", err)
	}
	defer rows.Close()
	var list []*entity.NumberReservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		list = append(list, res)
	}
	return list, rows.Err()
}

// MarkVoided leva as reservas pulada -> inutilizada com o protocolo da SEFAZ.
func (r *NumberReservationRepo) MarkVoided(ctx context.Context, ids []string, protocol string) error {
	const query = `
		UPDATE number_reservations
		SET status = 'voided', void_protocol = $2, updated_at = $3
		WHERE id = ANY($1) AND status = 'skipped'`
	if _, err := r.q.Exec(ctx, query, ids, protocol, time.Now()); err != nil {
		return fmt.Errorf("mark voided: %w", err)
	}
	return nil
}

func scanReservation(row pgx.Row) (*entity.NumberReservation, error) {
	var res entity.NumberReservation
	var docType, status string
	var justification, voidProtocol *string
	err := row.Scan(&res.ID, &res.IssuerID, &docType, &res.Series, &res.Number, &res.DocumentID, &status,
		&justification, &voidProtocol, &res.CreatedAt, &res.UpdatedAt)
	if err != nil {
		return nil, err
	}
	res.DocType, res.Status = entity.DocumentType(docType), entity.ReservationStatus(status)
	res.Justification, res.VoidProtocol = derefStr(justification), derefStr(voidProtocol)
	return &res, nil
}
