package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jhoicas/emissor-fiscal/internal/application/dto"
	"github.com/jhoicas/emissor-fiscal/internal/application/emission"
	"github.com/jhoicas/emissor-fiscal/internal/domain"
	"github.com/jhoicas/emissor-fiscal/internal/domain/entity"
	"github.com/jhoicas/emissor-fiscal/internal/domain/fiscal"
	"github.com/jhoicas/emissor-fiscal/internal/domain/repository"
	"github.com/rs/zerolog"
)

// Artifact arquivo para download.
type Artifact struct {
	Filename    string
	ContentType string
	Data        []byte
}

// HistoryUseCase histórico de documentos e download de XML/PDF.
type HistoryUseCase struct {
	docs  repository.TaxDocumentRepository
	store emission.ArtifactStore
	pdf   emission.PDFGenerator
	log   zerolog.Logger
}

func NewHistoryUseCase(docs repository.TaxDocumentRepository, store emission.ArtifactStore, pdf emission.PDFGenerator, log zerolog.Logger) *HistoryUseCase {
	return &HistoryUseCase{docs: docs, store: store, pdf: pdf, log: log}
}

// List página do histórico com a contagem por status do emitente.
func (uc *HistoryUseCase) List(ctx context.Context, issuerID string, in dto.DocumentListRequest) (*dto.DocumentListResponse, error) {
	in.DefaultPage()
	filter := entity.DocumentFilter{
		Status:  entity.DocumentStatus(in.Status),
		DocType: entity.DocumentType(in.DocType),
		Search:  fiscal.ASCIIFold(in.Search),
		Limit:   in.Limit,
		Offset:  in.Offset,
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("status %q: %w", in.Status, domain.ErrInvalidInput)
	}
	if filter.DocType != "" && !filter.DocType.Valid() {
		return nil, fmt.Errorf("doc_type %q: %w", in.DocType, domain.ErrInvalidInput)
	}

	list, total, err := uc.docs.List(ctx, issuerID, filter)
	if err != nil {
		return nil, err
	}
	counts, err := uc.docs.CountByStatus(ctx, issuerID)
	if err != nil {
		return nil, err
	}

	out := &dto.DocumentListResponse{
		Items:  make([]dto.DocumentResponse, 0, len(list)),
		Page:   dto.PageResponse{Limit: in.Limit, Offset: in.Offset, Total: total},
		Counts: make(map[string]int, len(entity.AllStatuses)),
	}
	for _, d := range list {
		out.Items = append(out.Items, *dto.NewDocumentResponse(d))
	}
	for _, st := range entity.AllStatuses {
		out.Counts[string(st)] = counts[st]
	}
	return out, nil
}

// Get documento com a trilha de eventos.
func (uc *HistoryUseCase) Get(ctx context.Context, issuerID, id string) (*dto.DocumentDetailResponse, error) {
	doc, err := uc.load(ctx, issuerID, id)
	if err != nil {
		return nil, err
	}
	events, err := uc.docs.ListEvents(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	out := &dto.DocumentDetailResponse{
		DocumentResponse: *dto.NewDocumentResponse(doc),
		Events:           make([]dto.DocumentEventResponse, 0, len(events)),
	}
	if p, err := decodePayload(doc); err == nil && p.Supplement != nil {
		out.QRCode = p.Supplement.QRCode
	}
	for _, e := range events {
		out.Events = append(out.Events, dto.DocumentEventResponse{
			From: string(e.FromStatus), To: string(e.ToStatus), Code: e.Code, Message: e.Message, CreatedAt: e.CreatedAt,
		})
	}
	return out, nil
}

// XML nfeProc do documento autorizado (ou cancelado depois de autorizado).
func (uc *HistoryUseCase) XML(ctx context.Context, issuerID, id string) (*Artifact, error) {
	doc, err := uc.downloadable(ctx, issuerID, id)
	if err != nil {
		return nil, err
	}
	data := doc.AuthorizedXML
	if doc.XMLPath != "" && uc.store != nil {
		stored, err := uc.store.Get(ctx, doc.XMLPath)
		switch {
		case err == nil:
			data = stored
		case !errors.Is(err, domain.ErrNotFound):
			uc.log.Warn().Err(err).Str("document_id", doc.ID).Msg("storage indisponível; usando XML do banco")
		}
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("XML do documento %s: %w", doc.ID, domain.ErrNotFound)
	}
	return &Artifact{
		Filename:    doc.AccessKey + "-procNFe.xml",
		ContentType: "application/xml",
		Data:        data,
	}, nil
}

// PDF DANFE ou DANFC-e do documento.
func (uc *HistoryUseCase) PDF(ctx context.Context, issuerID, id string) (*Artifact, error) {
	doc, err := uc.downloadable(ctx, issuerID, id)
	if err != nil {
		return nil, err
	}
	payload, err := decodePayload(doc)
	if err != nil {
		return nil, fmt.Errorf("payload do documento %s: %w", doc.ID, err)
	}
	data, err := uc.pdf.Render(doc, payload)
	if err != nil {
		return nil, fmt.Errorf("gerar PDF: %w", err)
	}
	prefix := "danfe"
	if doc.DocType == entity.DocNFCe {
		prefix = "danfce"
	}
	return &Artifact{
		Filename:    fmt.Sprintf("%s-%s.pdf", prefix, doc.AccessKey),
		ContentType: "application/pdf",
		Data:        data,
	}, nil
}

func (uc *HistoryUseCase) load(ctx context.Context, issuerID, id string) (*entity.TaxDocument, error) {
	doc, err := uc.docs.GetByID(ctx, issuerID, id)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, domain.ErrNotFound
	}
	return doc, nil
}

// downloadable só documentos que chegaram a ser autorizados têm artefatos.
func (uc *HistoryUseCase) downloadable(ctx context.Context, issuerID, id string) (*entity.TaxDocument, error) {
	doc, err := uc.load(ctx, issuerID, id)
	if err != nil {
		return nil, err
	}
	if doc.Status == entity.StatusAuthorized || (doc.Status == entity.StatusCancelled && doc.Protocol != "") {
		return doc, nil
	}
	return nil, fmt.Errorf("%w: documento %s sem XML autorizado", domain.ErrConflict, doc.Status)
}

func decodePayload(doc *entity.TaxDocument) (*fiscal.Payload, error) {
	if len(doc.Payload) == 0 {
		return nil, errors.New("payload não gravado")
	}
	var p fiscal.Payload
	if err := json.Unmarshal(doc.Payload, &p); err != nil {
		return nil, err
	}
	return &p, nil
}
