package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jhoicas/emissor-fiscal/internal/application/emission"
	"github.com/jhoicas/emissor-fiscal/internal/domain"
	"github.com/jhoicas/emissor-fiscal/internal/domain/entity"
	"github.com/jhoicas/emissor-fiscal/internal/domain/fiscal"
)

const issuer = "acc-1"

type fakeProfiles struct {
	mu       sync.Mutex
	byIssuer map[string]*entity.FiscalProfile
}

func newFakeProfiles() *fakeProfiles {
	return &fakeProfiles{byIssuer: map[string]*entity.FiscalProfile{}}
}

func (f *fakeProfiles) GetByIssuer(_ context.Context, issuerID string) (*entity.FiscalProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.byIssuer[issuerID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (f *fakeProfiles) Upsert(_ context.Context, p *entity.FiscalProfile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *p
	f.byIssuer[p.IssuerID] = &cp
	return nil
}

func (f *fakeProfiles) UpdateCertificate(_ context.Context, issuerID, path, sealedPassword string, validUntil time.Time, complete bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.byIssuer[issuerID]
	if !ok {
		return domain.ErrNotFound
	}
	p.CertificatePath, p.CertificatePassword = path, sealedPassword
	p.CertificateValidUntil = &validUntil
	p.Complete = complete
	return nil
}

// fakeSequences contador simples; highest simula o maior número já reservado por série.
type fakeSequences struct {
	seqs    map[string]*entity.NumberSequence
	highest map[string]int64
}

func newFakeSequences() *fakeSequences {
	return &fakeSequences{seqs: map[string]*entity.NumberSequence{}, highest: map[string]int64{}}
}

func seqKey(t entity.DocumentType, series int) string { return fmt.Sprintf("%s/%d", t, series) }

func (f *fakeSequences) Reserve(context.Context, string, entity.DocumentType, int) (int64, error) {
	return 0, errors.New("não usado")
}

func (f *fakeSequences) Release(context.Context, string, entity.DocumentType, int, int64) (bool, error) {
	return false, errors.New("não usado")
}

func (f *fakeSequences) Get(_ context.Context, _ string, t entity.DocumentType, series int) (*entity.NumberSequence, error) {
	s, ok := f.seqs[seqKey(t, series)]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSequences) ListByIssuer(context.Context, string) ([]*entity.NumberSequence, error) {
	var out []*entity.NumberSequence
	for _, s := range f.seqs {
		cp := *s
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DocType < out[j].DocType })
	return out, nil
}

func (f *fakeSequences) Configure(_ context.Context, seq *entity.NumberSequence) error {
	k := seqKey(seq.DocType, seq.Series)
	if seq.NextNumber <= f.highest[k] {
		return domain.ErrConflict
	}
	cp := *seq
	f.seqs[k] = &cp
	return nil
}

type fakeMunicipalities map[string]*entity.Municipality

func (f fakeMunicipalities) GetByCode(_ context.Context, code string) (*entity.Municipality, error) {
	return f[code], nil
}

type fakeStore struct {
	files map[string][]byte
	err   error
}

func newFakeStore() *fakeStore { return &fakeStore{files: map[string][]byte{}} }

func (s *fakeStore) Put(_ context.Context, path string, data []byte, _ string) error {
	if s.err != nil {
		return s.err
	}
	s.files[path] = data
	return nil
}

func (s *fakeStore) Get(_ context.Context, path string) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	data, ok := s.files[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return data, nil
}

type fakeBox struct{}

func (fakeBox) Seal(plain string) (string, error) { return "sealed:" + plain, nil }

func (fakeBox) Open(sealed string) (string, error) {
	plain, ok := strings.CutPrefix(sealed, "sealed:")
	if !ok {
		return "", errors.New("segredo não selado")
	}
	return plain, nil
}

// fakeClient só decodifica certificados; as operações de rede não são usadas aqui.
type fakeClient struct {
	emission.SigningTransmissionClient
	cnpj string
}

func (c fakeClient) LoadCertificate(archive []byte, passphrase string, now time.Time) (*fiscal.Certificate, error) {
	if passphrase != "senha-a1" {
		return nil, fiscal.CertificateError("senha do certificado incorreta", nil)
	}
	return &fiscal.Certificate{
		Subject:   "CN=MERCADINHO SAO JOAO LTDA:" + c.cnpj,
		CNPJ:      c.cnpj,
		NotBefore: now.AddDate(0, -1, 0),
		NotAfter:  time.Date(2027, 5, 1, 0, 0, 0, 0, time.UTC),
	}, nil
}

// fakeDocs histórico em memória.
type fakeDocs struct {
	docs   []*entity.TaxDocument
	events map[string][]*entity.DocumentEvent
	filter entity.DocumentFilter
}

func (f *fakeDocs) Create(context.Context, *entity.TaxDocument) error { return errors.New("não usado") }

func (f *fakeDocs) GetByID(_ context.Context, issuerID, id string) (*entity.TaxDocument, error) {
	for _, d := range f.docs {
		if d.ID == id && d.IssuerID == issuerID {
			cp := *d
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeDocs) GetActiveBySale(context.Context, string, string, entity.DocumentType) (*entity.TaxDocument, error) {
	return nil, nil
}

func (f *fakeDocs) Transition(context.Context, *entity.TaxDocument, entity.DocumentStatus, string, string) error {
	return errors.New("não usado")
}

func (f *fakeDocs) UpdateArtifacts(context.Context, string, string) error { return nil }

func (f *fakeDocs) ListStale(context.Context, []entity.DocumentStatus, time.Time, int) ([]*entity.TaxDocument, error) {
	return nil, nil
}

func (f *fakeDocs) ClaimProcessing(context.Context, int, time.Duration) ([]*entity.TaxDocument, error) {
	return nil, nil
}

func (f *fakeDocs) List(_ context.Context, issuerID string, filter entity.DocumentFilter) ([]*entity.TaxDocument, int, error) {
	f.filter = filter
	var out []*entity.TaxDocument
	for _, d := range f.docs {
		if d.IssuerID == issuerID && (filter.Status == "" || d.Status == filter.Status) {
			out = append(out, d)
		}
	}
	return out, len(out), nil
}

func (f *fakeDocs) CountByStatus(_ context.Context, issuerID string) (map[entity.DocumentStatus]int, error) {
	out := map[entity.DocumentStatus]int{}
	for _, d := range f.docs {
		if d.IssuerID == issuerID {
			out[d.Status]++
		}
	}
	return out, nil
}

func (f *fakeDocs) ListEvents(_ context.Context, documentID string) ([]*entity.DocumentEvent, error) {
	return f.events[documentID], nil
}

type fakePDF struct{ rendered []string }

func (p *fakePDF) Render(doc *entity.TaxDocument, payload *fiscal.Payload) ([]byte, error) {
	p.rendered = append(p.rendered, doc.ID)
	return []byte("%PDF-1.4 " + payload.Ide.AccessKey), nil
}
