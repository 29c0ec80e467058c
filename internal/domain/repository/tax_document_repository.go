package repository

import (
	"context"
	"time"

	"github.com/jhoicas/emissor-fiscal/internal/domain/entity"
)

// TaxDocumentRepository porta de persistência dos documentos fiscais.
// Os Get* devolvem (nil, nil) quando o documento não existe.
type TaxDocumentRepository interface {
	// Create insere o documento em queued. Devolve domain.ErrDuplicate se já houver
	// documento ativo (queued/submitted/processing/authorized) para a mesma venda e tipo.
	Create(ctx context.Context, doc *entity.TaxDocument) error

	GetByID(ctx context.Context, issuerID, id string) (*entity.TaxDocument, error)

	// GetActiveBySale devolve o documento não rejeitado/cancelado da venda, se houver.
	GetActiveBySale(ctx context.Context, issuerID, saleID string, docType entity.DocumentType) (*entity.TaxDocument, error)

	// Transition grava todos os campos mutáveis de doc e muda o status de from para doc.Status
	// (compare-and-swap), registrando o evento na mesma instrução. Devolve domain.ErrConflict
	// se o status gravado não for mais from.
	Transition(ctx context.Context, doc *entity.TaxDocument, from entity.DocumentStatus, code, message string) error

	// UpdateArtifacts atualiza apenas o caminho do XML armazenado (sem mudar status).
	UpdateArtifacts(ctx context.Context, id, xmlPath string) error

	// ListStale documentos nos status informados sem atualização desde before.
	ListStale(ctx context.Context, statuses []entity.DocumentStatus, before time.Time, limit int) ([]*entity.TaxDocument, error)

	// ClaimProcessing reserva até limit documentos em processing para consulta de recibo
	// (FOR UPDATE SKIP LOCKED + lease), para que instâncias concorrentes não consultem o mesmo recibo.
	ClaimProcessing(ctx context.Context, limit int, lease time.Duration) ([]*entity.TaxDocument, error)

	List(ctx context.Context, issuerID string, filter entity.DocumentFilter) ([]*entity.TaxDocument, int, error)
	CountByStatus(ctx context.Context, issuerID string) (map[entity.DocumentStatus]int, error)
	ListEvents(ctx context.Context, documentID string) ([]*entity.DocumentEvent, error)
}
