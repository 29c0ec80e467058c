package fiscal

import (
	"fmt"

	"github.com/jhoicas/emissor-fiscal/internal/domain"
	"github.com/jhoicas/emissor-fiscal/internal/domain/entity"
)

var transitions = map[entity.DocumentStatus][]entity.DocumentStatus{
	entity.StatusQueued:     {entity.StatusSubmitted, entity.StatusCancelled},
	entity.StatusSubmitted:  {entity.StatusAuthorized, entity.StatusRejected, entity.StatusProcessing, entity.StatusCancelled},
	entity.StatusProcessing: {entity.StatusAuthorized, entity.StatusRejected, entity.StatusCancelled},
	// cancelamento homologado por evento da SEFAZ
	entity.StatusAuthorized: {entity.StatusCancelled},
}

// CanTransition indica se from → to é permitido.
func CanTransition(from, to entity.DocumentStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Advance valida e aplica a transição em memória; devolve o status anterior para o CAS.
func Advance(doc *entity.TaxDocument, to entity.DocumentStatus) (entity.DocumentStatus, error) {
	from := doc.Status
	if !CanTransition(from, to) {
		return from, fmt.Errorf("%w: %s → %s", domain.ErrInvalidTransition, from, to)
	}
	doc.Status = to
	return from, nil
}
