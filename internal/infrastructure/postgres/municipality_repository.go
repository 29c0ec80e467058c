package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jhoicas/emissor-fiscal/internal/domain/entity"
	"github.com/jhoicas/emissor-fiscal/internal/domain/repository"
)

var _ repository.MunicipalityRepository = (*MunicipalityRepo)(nil)

// MunicipalityRepo tabela IBGE.
type MunicipalityRepo struct {
	q Querier
}

func NewMunicipalityRepository(q Querier) *MunicipalityRepo {
	return &MunicipalityRepo{q: q}
}

func (r *MunicipalityRepo) GetByCode(ctx context.Context, code string) (*entity.Municipality, error) {
	var m entity.Municipality
	err := r.q.QueryRow(ctx, `SELECT code, name, uf FROM municipalities WHERE code = $1`, code).Scan(&m.Code, &m.Name, &m.UF)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get municipality: %w", err)
	}
	return &m, nil
}

// UpsertBatch carga da tabela IBGE (cmd/seed_municipios), em um único round trip.
func (r *MunicipalityRepo) UpsertBatch(ctx context.Context, list []entity.Municipality) error {
	const query = `
		INSERT INTO municipalities (code, name, uf) VALUES ($1, $2, $3)
		ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name, uf = EXCLUDED.uf`
	batch := &pgx.Batch{}
	for _, m := range list {
		batch.Queue(query, m.Code, m.Name, m.UF)
	}
	br := r.q.SendBatch(ctx, batch)
	defer br.Close()
	for i := range list {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("upsert municipality %s: %w", list[i].Code, err)
		}
	}
	return nil
}
