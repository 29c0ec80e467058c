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
	"github.com/jhoicas/emissor-fiscal/pkg/sefaz"
)

var _ repository.NumberSequenceRepository = (*NumberSequenceRepo)(nil)

// NumberSequenceRepo contadores de numeração por emitente, tipo e série.
type NumberSequenceRepo struct {
	q Querier
}

func NewNumberSequenceRepository(q Querier) *NumberSequenceRepo {
	return &NumberSequenceRepo{q: q}
}

// Reserve incrementa o contador com a linha travada pelo próprio UPDATE; duas reservas
// concorrentes da mesma série são serializadas pelo banco e nunca recebem o mesmo número.
func (r *NumberSequenceRepo) Reserve(ctx context.Context, issuerID string, docType entity.DocumentType, series int) (int64, error) {
	const query = `
		UPDATE fiscal_number_sequences
		SET next_number = next_number + 1, updated_at = now()
		WHERE issuer_id = $1 AND doc_type = $2 AND series = $3 AND next_number <= max_number
		RETURNING next_number - 1`
	var number int64
	err := r.q.QueryRow(ctx, query, issuerID, string(docType), series).Scan(&number)
	if err == nil {
		return number, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("reserve number: %w", err)
	}

	var exists bool
	err = r.q.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM fiscal_number_sequences WHERE issuer_id = $1 AND doc_type = $2 AND series = $3)`,
		issuerID, string(docType), series).Scan(&exists)
	if err != nil {
		return 0, fmt.Errorf("check sequence: %w", err)
	}
	if exists {
		return 0, domain.ErrSeriesExhausted
	}
	return 0, fmt.Errorf("série %d de %s: %w", series, docType, domain.ErrNotFound)
}

// Release só decrementa se number foi o último entregue.
func (r *NumberSequenceRepo) Release(ctx context.Context, issuerID string, docType entity.DocumentType, series int, number int64) (bool, error) {
	const query = `
		UPDATE fiscal_number_sequences
		SET next_number = next_number - 1, updated_at = now()
		WHERE issuer_id = $1 AND doc_type = $2 AND series = $3 AND next_number = $4 + 1`
	tag, err := r.q.Exec(ctx, query, issuerID, string(docType), series, number)
	if err != nil {
		return false, fmt.Errorf("release number: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *NumberSequenceRepo) Get(ctx context.Context, issuerID string, docType entity.DocumentType, series int) (*entity.NumberSequence, error) {
	const query = `
		SELECT issuer_id, doc_type, series, next_number, max_number, updated_at
		FROM fiscal_number_sequences WHERE issuer_id = $1 AND doc_type = $2 AND series = $3`
	s, err := scanSequence(r.q.QueryRow(ctx, query, issuerID, string(docType), series))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get sequence: %w", err)
	}
	return s, nil
}

func (r *NumberSequenceRepo) ListByIssuer(ctx context.Context, issuerID string) ([]*entity.NumberSequence, error) {
	const query = `
		SELECT issuer_id, doc_type, series, next_number, max_number, updated_at
		FROM fiscal_number_sequences WHERE issuer_id = $1 ORDER BY doc_type, series`
	rows, err := r.q.Query(ctx, query, issuerID)
	if err != nil {
		return nil, fmt.Errorf("list sequences: %w", err)
	}
	defer rows.Close()
	var list []*entity.NumberSequence
	for rows.Next() {
		s, err := scanSequence(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sequence: %w", err)
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

// Configure grava o próximo número somente acima do maior número ainda em uso (não liberado).
func (r *NumberSequenceRepo) Configure(ctx context.Context, seq *entity.NumberSequence) error {
	if seq.MaxNumber == 0 {
		seq.MaxNumber = sefaz.MaxNumber
	}
	if seq.UpdatedAt.IsZero() {
		seq.UpdatedAt = time.Now()
	}
	const query = `
		WITH highest AS (
			SELECT COALESCE(MAX(number), 0) AS n
			FROM number_reservations
			WHERE issuer_id = $1 AND doc_type = $2 AND series = $3 AND status <> 'released'
		)
		INSERT INTO fiscal_number_sequences (issuer_id, doc_type, series, next_number, max_number, updated_at)
		SELECT $1::text, $2::text, $3::int, $4::bigint, $5::bigint, $6::timestamptz FROM highest WHERE $4::bigint > highest.n
		ON CONFLICT (issuer_id, doc_type, series)
		DO UPDATE SET next_number = EXCLUDED.next_number, max_number = EXCLUDED.max_number, updated_at = EXCLUDED.updated_at`
	tag, err := r.q.Exec(ctx, query, seq.IssuerID, string(seq.DocType), seq.Series, seq.NextNumber, seq.MaxNumber, seq.UpdatedAt)
	if err != nil {
		return fmt.Errorf("configure sequence: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("próximo número %d já foi usado na série %d: %w", seq.NextNumber, seq.Series, domain.ErrConflict)
	}
	return nil
}

func scanSequence(row pgx.Row) (*entity.NumberSequence, error) {
	var s entity.NumberSequence
	var docType string
	if err := row.Scan(&s.IssuerID, &docType, &s.Series, &s.NextNumber, &s.MaxNumber, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.DocType = entity.DocumentType(docType)
	return &s, nil
}
