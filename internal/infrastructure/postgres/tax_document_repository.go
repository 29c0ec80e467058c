package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jhoicas/emissor-fiscal/internal/domain"
	"github.com/jhoicas/emissor-fiscal/internal/domain/entity"
	"github.com/jhoicas/emissor-fiscal/internal/domain/repository"
)

var _ repository.TaxDocumentRepository = (*TaxDocumentRepo)(nil)

const documentColumns = `
	id, issuer_id, sale_id, doc_type, environment, series, number, status,
	submission_key, access_key, receipt, protocol, authority_code, authority_message,
	recipient_document, recipient_name, total, payload, signed_xml, authorized_xml, xml_path,
	cancel_protocol, cancel_justification, issued_at, authorized_at, cancelled_at, created_at, updated_at`

// sem acento para a busca; espelha fiscal.ASCIIFold nos caracteres do português
const foldFrom, foldTo = "áàâãäéèêëíìîïóòôõöúùûüçñÁÀÂÃÄÉÈÊËÍÌÎÏÓÒÔÕÖÚÙÛÜÇÑ", "aaaaaeeeeiiiiooooouuuucnAAAAAEEEEIIIIOOOOOUUUUCN"

// TaxDocumentRepo documentos fiscais e sua trilha de eventos (pool ou tx).
type TaxDocumentRepo struct {
	q Querier
}

func NewTaxDocumentRepository(q Querier) *TaxDocumentRepo {
	return &TaxDocumentRepo{q: q}
}

func (r *TaxDocumentRepo) Create(ctx context.Context, doc *entity.TaxDocument) error {
	now := time.Now()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	query := `
		INSERT INTO tax_documents (` + documentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20,
		        $21, $22, $23, $24, $25, $26, $27, $28)`
	_, err := r.q.Exec(ctx, query,
		doc.ID, doc.IssuerID, doc.SaleID, doc.DocType, doc.Environment, doc.Series, doc.Number, doc.Status,
		nullIfEmpty(doc.SubmissionKey), nullIfEmpty(doc.AccessKey), nullIfEmpty(doc.Receipt), nullIfEmpty(doc.Protocol),
		nullIfEmpty(doc.AuthorityCode), nullIfEmpty(doc.AuthorityMessage),
		nullIfEmpty(doc.RecipientDocument), nullIfEmpty(doc.RecipientName), doc.Total, nullBytes(doc.Payload),
		nullBytes(doc.SignedXML), nullBytes(doc.AuthorizedXML), nullIfEmpty(doc.XMLPath),
		nullIfEmpty(doc.CancelProtocol), nullIfEmpty(doc.CancelJustification),
		doc.IssuedAt, doc.AuthorizedAt, doc.CancelledAt, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) && constraintName(err) == "tax_documents_active_sale_uq" {
			return domain.ErrDuplicate
		}
		return fmt.Errorf("insert tax document: %w", err)
	}
	return nil
}

func (r *TaxDocumentRepo) GetByID(ctx context.Context, issuerID, id string) (*entity.TaxDocument, error) {
	query := `SELECT ` + documentColumns + ` FROM tax_documents WHERE id = $1 AND issuer_id = $2`
	doc, err := scanDocument(r.q.QueryRow(ctx, query, id, issuerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get tax document: %w", err)
	}
	return doc, nil
}

func (r *TaxDocumentRepo) GetActiveBySale(ctx context.Context, issuerID, saleID string, docType entity.DocumentType) (*entity.TaxDocument, error) {
	query := `
		SELECT ` + documentColumns + `
		FROM tax_documents
		WHERE issuer_id = $1 AND sale_id = $2 AND doc_type = $3
		  AND status IN ('queued', 'submitted', 'processing', 'authorized')`
	doc, err := scanDocument(r.q.QueryRow(ctx, query, issuerID, saleID, docType))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get active document by sale: %w", err)
	}
	return doc, nil
}

// Transition atualiza o documento e insere o evento numa única instrução (CTE);
// se o status gravado não for from nenhuma das duas escritas acontece.
func (r *TaxDocumentRepo) Transition(ctx context.Context, doc *entity.TaxDocument, from entity.DocumentStatus, code, message string) error {
	now := time.Now()
	query := `
		WITH moved AS (
			UPDATE tax_documents
			SET status = $3,
			    number = $4,
			    submission_key = $5,
			    access_key = $6,
			    receipt = $7,
			    protocol = $8,
			    authority_code = $9,
			    authority_message = $10,
			    recipient_document = $11,
			    recipient_name = $12,
			    total = $13,
			    payload = $14,
			    signed_xml = $15,
			    authorized_xml = $16,
			    xml_path = $17,
			    cancel_protocol = $18,
			    cancel_justification = $19,
			    issued_at = $20,
			    authorized_at = $21,
			    cancelled_at = $22,
			    claimed_until = NULL,
			    updated_at = $23
			WHERE id = $1 AND status = $2
			RETURNING id
		)
		INSERT INTO tax_document_events (id, document_id, from_status, to_status, code, message, created_at)
		SELECT $24, id, $2, $3, $25, $26, $23 FROM moved`
	tag, err := r.q.Exec(ctx, query,
		doc.ID, from, doc.Status, doc.Number,
		nullIfEmpty(doc.SubmissionKey), nullIfEmpty(doc.AccessKey), nullIfEmpty(doc.Receipt), nullIfEmpty(doc.Protocol),
		nullIfEmpty(doc.AuthorityCode), nullIfEmpty(doc.AuthorityMessage),
		nullIfEmpty(doc.RecipientDocument), nullIfEmpty(doc.RecipientName), doc.Total, nullBytes(doc.Payload),
		nullBytes(doc.SignedXML), nullBytes(doc.AuthorizedXML), nullIfEmpty(doc.XMLPath),
		nullIfEmpty(doc.CancelProtocol), nullIfEmpty(doc.CancelJustification),
		doc.IssuedAt, doc.AuthorizedAt, doc.CancelledAt, now,
		uuid.New().String(), nullIfEmpty(code), nullIfEmpty(message),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("transition %s -> %s: %w", from, doc.Status, domain.ErrConflict)
		}
		return fmt.Errorf("transition tax document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("documento %s não está mais em %s: %w", doc.ID, from, domain.ErrConflict)
	}
	doc.UpdatedAt = now
	return nil
}

func (r *TaxDocumentRepo) UpdateArtifacts(ctx context.Context, id, xmlPath string) error {
	tag, err := r.q.Exec(ctx, `UPDATE tax_documents SET xml_path = $2, updated_at = now() WHERE id = $1`, id, nullIfEmpty(xmlPath))
	if err != nil {
		return fmt.Errorf("update artifacts: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *TaxDocumentRepo) ListStale(ctx context.Context, statuses []entity.DocumentStatus, before time.Time, limit int) ([]*entity.TaxDocument, error) {
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}
	query := `
		SELECT ` + documentColumns + `
		FROM tax_documents
		WHERE status = ANY($1) AND updated_at < $2
		ORDER BY updated_at
		LIMIT $3`
	rows, err := r.q.Query(ctx, query, names, before, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale documents: %w", err)
	}
	return collectDocuments(rows)
}

// ClaimProcessing marca claimed_until nas linhas travadas; uma instância concorrente pula
// as linhas travadas (SKIP LOCKED) e as que ainda estão com lease válido.
func (r *TaxDocumentRepo) ClaimProcessing(ctx context.Context, limit int, lease time.Duration) ([]*entity.TaxDocument, error) {
	query := `
		WITH claimable AS (
			SELECT id FROM tax_documents
			WHERE status = 'processing' AND (claimed_until IS NULL OR claimed_until < now())
			ORDER BY updated_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE tax_documents d
		SET claimed_until = now() + make_interval(secs => $2)
		FROM claimable c
		WHERE d.id = c.id
		RETURNING ` + prefixed("d.", documentColumns)
	rows, err := r.q.Query(ctx, query, limit, lease.Seconds())
	if err != nil {
		return nil, fmt.Errorf("claim processing documents: %w", err)
	}
	return collectDocuments(rows)
}

func (r *TaxDocumentRepo) List(ctx context.Context, issuerID string, filter entity.DocumentFilter) ([]*entity.TaxDocument, int, error) {
	where := []string{"issuer_id = $1"}
	args := []any{issuerID}
	// arg devolve o placeholder do próximo argumento
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if filter.Status != "" {
		where = append(where, "status = "+arg(string(filter.Status)))
	}
	if filter.DocType != "" {
		where = append(where, "doc_type = "+arg(string(filter.DocType)))
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		where = append(where, fmt.Sprintf(
			`(number::text = %s OR access_key LIKE %s ESCAPE '\' OR lower(translate(coalesce(recipient_name, ''), '%s', '%s')) LIKE %s ESCAPE '\')`,
			arg(s), arg(likePattern(s)), foldFrom, foldTo, arg(likePattern(strings.ToLower(s))),
		))
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.q.QueryRow(ctx, `SELECT count(*) FROM tax_documents WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count documents: %w", err)
	}

	args = append(args, filter.Limit, filter.Offset)
	query := fmt.Sprintf(`
		SELECT %s FROM tax_documents
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, documentColumns, cond, len(args)-1, len(args))
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list documents: %w", err)
	}
	list, err := collectDocuments(rows)
	if err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

func (r *TaxDocumentRepo) CountByStatus(ctx context.Context, issuerID string) (map[entity.DocumentStatus]int, error) {
	rows, err := r.q.Query(ctx, `SELECT status, count(*) FROM tax_documents WHERE issuer_id = $1 GROUP BY status`, issuerID)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()
	out := make(map[entity.DocumentStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		out[entity.DocumentStatus(status)] = n
	}
	return out, rows.Err()
}

func (r *TaxDocumentRepo) ListEvents(ctx context.Context, documentID string) ([]*entity.DocumentEvent, error) {
	query := `
		SELECT id, document_id, from_status, to_status, code, message, created_at
		FROM tax_document_events WHERE document_id = $1 ORDER BY created_at, id`
	rows, err := r.q.Query(ctx, query, documentID)
	if err != nil {
		return nil, fmt.Errorf("list document events: %w", err)
	}
	defer rows.Close()
	var list []*entity.DocumentEvent
	for rows.Next() {
		var e entity.DocumentEvent
		var from, to string
		var code, message *string
		if err := rows.Scan(&e.ID, &e.DocumentID, &from, &to, &code, &message, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.FromStatus, e.ToStatus = entity.DocumentStatus(from), entity.DocumentStatus(to)
		e.Code, e.Message = derefStr(code), derefStr(message)
		list = append(list, &e)
	}
	return list, rows.Err()
}

func scanDocument(row pgx.Row) (*entity.TaxDocument, error) {
	var d entity.TaxDocument
	var docType, env, status string
	var submissionKey, accessKey, receipt, protocol, code, message *string
	var recipientDoc, recipientName, xmlPath, cancelProtocol, cancelJustification *string
	err := row.Scan(
		&d.ID, &d.IssuerID, &d.SaleID, &docType, &env, &d.Series, &d.Number, &status,
		&submissionKey, &accessKey, &receipt, &protocol, &code, &message,
		&recipientDoc, &recipientName, &d.Total, &d.Payload, &d.SignedXML, &d.AuthorizedXML, &xmlPath,
		&cancelProtocol, &cancelJustification, &d.IssuedAt, &d.AuthorizedAt, &d.CancelledAt, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	d.DocType, d.Environment, d.Status = entity.DocumentType(docType), entity.Environment(env), entity.DocumentStatus(status)
	d.SubmissionKey, d.AccessKey = derefStr(submissionKey), derefStr(accessKey)
	d.Receipt, d.Protocol = derefStr(receipt), derefStr(protocol)
	d.AuthorityCode, d.AuthorityMessage = derefStr(code), derefStr(message)
	d.RecipientDocument, d.RecipientName = derefStr(recipientDoc), derefStr(recipientName)
	d.XMLPath = derefStr(xmlPath)
	d.CancelProtocol, d.CancelJustification = derefStr(cancelProtocol), derefStr(cancelJustification)
	return &d, nil
}

func collectDocuments(rows pgx.Rows) ([]*entity.TaxDocument, error) {
	defer rows.Close()
	var list []*entity.TaxDocument
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tax document: %w", err)
		}
		list = append(list, d)
	}
	return list, rows.Err()
}

// prefixed qualifica cada coluna da lista com o alias da tabela.
func prefixed(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
