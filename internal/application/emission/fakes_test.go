package emission_test

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jhoicas/emissor-fiscal/internal/application/emission"
	"github.com/jhoicas/emissor-fiscal/internal/domain"
	"github.com/jhoicas/emissor-fiscal/internal/domain/entity"
	"github.com/jhoicas/emissor-fiscal/internal/domain/fiscal"
	"github.com/jhoicas/emissor-fiscal/internal/domain/repository"
	"github.com/jhoicas/emissor-fiscal/pkg/sefaz"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const issuer = "acc-1"

// ── banco em memória ─────────────────────────────────────────────────────────
//
// memDB serializa as transações com um mutex e desfaz as alterações quando fn falha,
// o que basta para reproduzir o comportamento de UPDATE ... RETURNING e dos índices únicos.

type memDB struct {
	mu      sync.Mutex
	docs    map[string]*entity.TaxDocument
	events  []*entity.DocumentEvent
	seqs    map[string]*entity.NumberSequence
	res     map[string]*entity.NumberReservation
	claimed map[string]time.Time
	nextID  int
}

func newMemDB() *memDB {
	return &memDB{
		docs:    map[string]*entity.TaxDocument{},
		seqs:    map[string]*entity.NumberSequence{},
		res:     map[string]*entity.NumberReservation{},
		claimed: map[string]time.Time{},
	}
}

func seqKey(issuerID string, t entity.DocumentType, series int) string {
	return fmt.Sprintf("%s/%s/%d", issuerID, t, series)
}

type memSnapshot struct {
	docs   map[string]entity.TaxDocument
	events int
	seqs   map[string]entity.NumberSequence
	res    map[string]entity.NumberReservation
}

func (db *memDB) snapshot() memSnapshot {
	s := memSnapshot{
		docs:   make(map[string]entity.TaxDocument, len(db.docs)),
		events: len(db.events),
		seqs:   make(map[string]entity.NumberSequence, len(db.seqs)),
		res:    make(map[string]entity.NumberReservation, len(db.res)),
	}
	for k, v := range db.docs {
		s.docs[k] = *v
	}
	for k, v := range db.seqs {
		s.seqs[k] = *v
	}
	for k, v := range db.res {
		s.res[k] = *v
	}
	return s
}

func (db *memDB) restore(s memSnapshot) {
	db.docs = make(map[string]*entity.TaxDocument, len(s.docs))
	for k, v := range s.docs {
		db.docs[k] = &v
	}
	db.events = db.events[:s.events]
	db.seqs = make(map[string]*entity.NumberSequence, len(s.seqs))
	for k, v := range s.seqs {
		db.seqs[k] = &v
	}
	db.res = make(map[string]*entity.NumberReservation, len(s.res))
	for k, v := range s.res {
		db.res[k] = &v
	}
}

func (db *memDB) Run(ctx context.Context, fn func(repository.TaxDocumentRepository, repository.NumberSequenceRepository, repository.NumberReservationRepository) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	snap := db.snapshot()
	if err := fn(memDocs{db: db, inTx: true}, memSeqs{db: db, inTx: true}, memRes{db: db, inTx: true}); err != nil {
		db.restore(snap)
		return err
	}
	return nil
}

func (db *memDB) Docs() memDocs        { return memDocs{db: db} }
func (db *memDB) Sequences() memSeqs   { return memSeqs{db: db} }
func (db *memDB) Reservations() memRes { return memRes{db: db} }

// helpers de inspeção

func (db *memDB) doc(t *testing.T, id string) *entity.TaxDocument {
	t.Helper()
	db.mu.Lock()
	defer db.mu.Unlock()
	d, ok := db.docs[id]
	require.True(t, ok, "documento %s não gravado", id)
	cp := *d
	return &cp
}

func (db *memDB) docCount() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.docs)
}

func (db *memDB) reservationOf(t *testing.T, docID string) *entity.NumberReservation {
	t.Helper()
	r, err := db.Reservations().GetByDocument(context.Background(), docID)
	require.NoError(t, err)
	require.NotNil(t, r, "reserva do documento %s", docID)
	return r
}

func (db *memDB) reservationCount() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.res)
}

func (db *memDB) nextNumber(t *testing.T, docType entity.DocumentType, series int) int64 {
	t.Helper()
	s, err := db.Sequences().Get(context.Background(), issuer, docType, series)
	require.NoError(t, err)
	require.NotNil(t, s)
	return s.NextNumber
}

func (db *memDB) eventsOf(docID string) []*entity.DocumentEvent {
	list, _ := db.Docs().ListEvents(context.Background(), docID)
	return list
}

// age recua updated_at do documento, simulando um documento parado.
func (db *memDB) age(id string, d time.Duration) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if doc, ok := db.docs[id]; ok {
		doc.UpdatedAt = doc.UpdatedAt.Add(-d)
	}
}

func (db *memDB) newID(prefix string) string {
	db.nextID++
	return prefix + "-" + strconv.Itoa(db.nextID)
}

func lockUnless(db *memDB, inTx bool) func() {
	if inTx {
		return func() {}
	}
	db.mu.Lock()
	return db.mu.Unlock
}

// ── documentos ───────────────────────────────────────────────────────────────

type memDocs struct {
	db   *memDB
	inTx bool
}

func activeStatus(s entity.DocumentStatus) bool {
	return s == entity.StatusQueued || s == entity.StatusSubmitted || s == entity.StatusProcessing || s == entity.StatusAuthorized
}

func (r memDocs) Create(_ context.Context, doc *entity.TaxDocument) error {
	defer lockUnless(r.db, r.inTx)()
	for _, d := range r.db.docs {
		if d.IssuerID == doc.IssuerID && d.SaleID == doc.SaleID && d.DocType == doc.DocType && activeStatus(d.Status) {
			return domain.ErrDuplicate
		}
	}
	cp := *doc
	now := time.Now()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	r.db.docs[doc.ID] = &cp
	return nil
}

func (r memDocs) GetByID(_ context.Context, issuerID, id string) (*entity.TaxDocument, error) {
	defer lockUnless(r.db, r.inTx)()
	d, ok := r.db.docs[id]
	if !ok || d.IssuerID != issuerID {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}

func (r memDocs) GetActiveBySale(_ context.Context, issuerID, saleID string, docType entity.DocumentType) (*entity.TaxDocument, error) {
	defer lockUnless(r.db, r.inTx)()
	for _, d := range r.db.docs {
		if d.IssuerID == issuerID && d.SaleID == saleID && d.DocType == docType && activeStatus(d.Status) {
			cp := *d
			return &cp, nil
		}
	}
	return nil, nil
}

func (r memDocs) Transition(_ context.Context, doc *entity.TaxDocument, from entity.DocumentStatus, code, message string) error {
	defer lockUnless(r.db, r.inTx)()
	cur, ok := r.db.docs[doc.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if cur.Status != from {
		return domain.ErrConflict
	}
	cp := *doc
	cp.CreatedAt = cur.CreatedAt
	cp.UpdatedAt = time.Now()
	r.db.docs[doc.ID] = &cp
	r.db.events = append(r.db.events, &entity.DocumentEvent{
		ID:         r.db.newID("ev"),
		DocumentID: doc.ID,
		FromStatus: from,
		ToStatus:   doc.Status,
		Code:       code,
		Message:    message,
		CreatedAt:  cp.UpdatedAt,
	})
	return nil
}

func (r memDocs) UpdateArtifacts(_ context.Context, id, xmlPath string) error {
	defer lockUnless(r.db, r.inTx)()
	d, ok := r.db.docs[id]
	if !ok {
		return domain.ErrNotFound
	}
	d.XMLPath = xmlPath
	return nil
}

func (r memDocs) ListStale(_ context.Context, statuses []entity.DocumentStatus, before time.Time, limit int) ([]*entity.TaxDocument, error) {
	defer lockUnless(r.db, r.inTx)()
	var out []*entity.TaxDocument
	for _, d := range r.db.docs {
		for _, st := range statuses {
			if d.Status == st && d.UpdatedAt.Before(before) {
				cp := *d
				out = append(out, &cp)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r memDocs) ClaimProcessing(_ context.Context, limit int, lease time.Duration) ([]*entity.TaxDocument, error) {
	defer lockUnless(r.db, r.inTx)()
	now := time.Now()
	var out []*entity.TaxDocument
	for id, d := range r.db.docs {
		if d.Status != entity.StatusProcessing || r.db.claimed[id].After(now) {
			continue
		}
		if len(out) == limit {
			break
		}
		r.db.claimed[id] = now.Add(lease)
		cp := *d
		out = append(out, &cp)
	}
	return out, nil
}

func (r memDocs) List(_ context.Context, issuerID string, f entity.DocumentFilter) ([]*entity.TaxDocument, int, error) {
	defer lockUnless(r.db, r.inTx)()
	var all []*entity.TaxDocument
	for _, d := range r.db.docs {
		if d.IssuerID != issuerID {
			continue
		}
		if f.Status != "" && d.Status != f.Status {
			continue
		}
		if f.DocType != "" && d.DocType != f.DocType {
			continue
		}
		if f.Search != "" {
			name := strings.ToLower(fiscal.ASCIIFold(d.RecipientName))
			q := strings.ToLower(f.Search)
			if !strings.Contains(name, q) && !strings.Contains(d.AccessKey, q) && strconv.FormatInt(d.Number, 10) != q {
				continue
			}
		}
		cp := *d
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := len(all)
	if f.Offset >= total {
		return []*entity.TaxDocument{}, total, nil
	}
	end := f.Offset + f.Limit
	if f.Limit <= 0 || end > total {
		end = total
	}
	return all[f.Offset:end], total, nil
}

func (r memDocs) CountByStatus(_ context.Context, issuerID string) (map[entity.DocumentStatus]int, error) {
	defer lockUnless(r.db, r.inTx)()
	out := map[entity.DocumentStatus]int{}
	for _, d := range r.db.docs {
		if d.IssuerID == issuerID {
			out[d.Status]++
		}
	}
	return out, nil
}

func (r memDocs) ListEvents(_ context.Context, documentID string) ([]*entity.DocumentEvent, error) {
	defer lockUnless(r.db, r.inTx)()
	var out []*entity.DocumentEvent
	for _, e := range r.db.events {
		if e.DocumentID == documentID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

// ── numeração ────────────────────────────────────────────────────────────────

type memSeqs struct {
	db   *memDB
	inTx bool
}

func (r memSeqs) Reserve(_ context.Context, issuerID string, docType entity.DocumentType, series int) (int64, error) {
	defer lockUnless(r.db, r.inTx)()
	s, ok := r.db.seqs[seqKey(issuerID, docType, series)]
	if !ok {
		return 0, domain.ErrNotFound
	}
	if s.NextNumber > s.MaxNumber {
		return 0, domain.ErrSeriesExhausted
	}
	n := s.NextNumber
	s.NextNumber++
	s.UpdatedAt = time.Now()
	return n, nil
}

func (r memSeqs) Release(_ context.Context, issuerID string, docType entity.DocumentType, series int, number int64) (bool, error) {
	defer lockUnless(r.db, r.inTx)()
	s, ok := r.db.seqs[seqKey(issuerID, docType, series)]
	if !ok || s.NextNumber != number+1 {
		return false, nil
	}
	s.NextNumber--
	return true, nil
}

func (r memSeqs) Get(_ context.Context, issuerID string, docType entity.DocumentType, series int) (*entity.NumberSequence, error) {
	defer lockUnless(r.db, r.inTx)()
	s, ok := r.db.seqs[seqKey(issuerID, docType, series)]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (r memSeqs) ListByIssuer(_ context.Context, issuerID string) ([]*entity.NumberSequence, error) {
	defer lockUnless(r.db, r.inTx)()
	var out []*entity.NumberSequence
	for _, s := range r.db.seqs {
		if s.IssuerID == issuerID {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DocType != out[j].DocType {
			return out[i].DocType < out[j].DocType
		}
		return out[i].Series < out[j].Series
	})
	return out, nil
}

func (r memSeqs) Configure(_ context.Context, seq *entity.NumberSequence) error {
	defer lockUnless(r.db, r.inTx)()
	for _, res := range r.db.res {
		if res.IssuerID == seq.IssuerID && res.DocType == seq.DocType && res.Series == seq.Series &&
			res.Status != entity.ReservationReleased && res.Number >= seq.NextNumber {
			return domain.ErrConflict
		}
	}
	cp := *seq
	if cp.MaxNumber == 0 {
		cp.MaxNumber = sefaz.MaxNumber
	}
	r.db.seqs[seqKey(seq.IssuerID, seq.DocType, seq.Series)] = &cp
	return nil
}

// ── reservas ─────────────────────────────────────────────────────────────────

type memRes struct {
	db   *memDB
	inTx bool
}

func (r memRes) Create(_ context.Context, res *entity.NumberReservation) error {
	defer lockUnless(r.db, r.inTx)()
	for _, x := range r.db.res {
		if x.IssuerID == res.IssuerID && x.DocType == res.DocType && x.Series == res.Series &&
			x.Number == res.Number && x.Status != entity.ReservationReleased {
			return domain.ErrDuplicate
		}
	}
	cp := *res
	r.db.res[res.ID] = &cp
	return nil
}

func (r memRes) GetByDocument(_ context.Context, documentID string) (*entity.NumberReservation, error) {
	defer lockUnless(r.db, r.inTx)()
	var found *entity.NumberReservation
	for _, x := range r.db.res {
		if x.DocumentID == documentID && (found == nil || x.CreatedAt.After(found.CreatedAt)) {
			found = x
		}
	}
	if found == nil {
		return nil, nil
	}
	cp := *found
	return &cp, nil
}

func (r memRes) UpdateStatus(_ context.Context, id string, from, to entity.ReservationStatus, justification string) error {
	defer lockUnless(r.db, r.inTx)()
	x, ok := r.db.res[id]
	if !ok || x.Status != from {
		return domain.ErrConflict
	}
	x.Status = to
	x.Justification = justification
	x.UpdatedAt = time.Now()
	return nil
}

func (r memRes) ListSkipped(_ context.Context, issuerID string) ([]*entity.NumberReservation, error) {
	defer lockUnless(r.db, r.inTx)()
	var out []*entity.NumberReservation
	for _, x := range r.db.res {
		if x.IssuerID == issuerID && x.Status == entity.ReservationSkipped {
			cp := *x
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (r memRes) MarkVoided(_ context.Context, ids []string, protocol string) error {
	defer lockUnless(r.db, r.inTx)()
	for _, id := range ids {
		x, ok := r.db.res[id]
		if !ok || x.Status != entity.ReservationSkipped {
			return domain.ErrConflict
		}
	}
	for _, id := range ids {
		r.db.res[id].Status = entity.ReservationVoided
		r.db.res[id].VoidProtocol = protocol
	}
	return nil
}

// addSkipped grava uma reserva pulada diretamente (cenários de inutilização).
func (db *memDB) addSkipped(docType entity.DocumentType, series int, number int64, at time.Time) *entity.NumberReservation {
	db.mu.Lock()
	defer db.mu.Unlock()
	r := &entity.NumberReservation{
		ID: db.newID("res"), IssuerID: issuer, DocType: docType, Series: series, Number: number,
		DocumentID: db.newID("doc"), Status: entity.ReservationSkipped, Justification: "rejeitada",
		CreatedAt: at, UpdatedAt: at,
	}
	db.res[r.ID] = r
	cp := *r
	return &cp
}

// ── cadastros ────────────────────────────────────────────────────────────────

type fakeProfiles struct {
	mu       sync.Mutex
	byIssuer map[string]*entity.FiscalProfile
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
	p.CertificatePath = path
	p.CertificatePassword = sealedPassword
	p.CertificateValidUntil = &validUntil
	p.Complete = complete
	return nil
}

type fakeSales map[string]*entity.Sale

func (f fakeSales) GetWithItems(_ context.Context, issuerID, saleID string) (*entity.Sale, error) {
	s, ok := f[saleID]
	if !ok || s.IssuerID != issuerID {
		return nil, nil
	}
	return s, nil
}

type fakeCustomers map[string]*entity.Customer

func (f fakeCustomers) GetByID(_ context.Context, issuerID, id string) (*entity.Customer, error) {
	c, ok := f[id]
	if !ok || c.IssuerID != issuerID {
		return nil, nil
	}
	return c, nil
}

// ── storage, segredos, métricas ──────────────────────────────────────────────

type fakeStore struct {
	mu     sync.Mutex
	files  map[string][]byte
	putErr error
}

func newFakeStore() *fakeStore { return &fakeStore{files: map[string][]byte{}} }

func (s *fakeStore) Put(_ context.Context, path string, data []byte, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return s.putErr
	}
	s.files[path] = append([]byte(nil), data...)
	return nil
}

func (s *fakeStore) Get(_ context.Context, path string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.files[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return data, nil
}

func (s *fakeStore) has(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.files[path]
	return ok
}

type fakeBox struct{}

func (fakeBox) Seal(plain string) (string, error) { return "sealed:" + plain, nil }

func (fakeBox) Open(sealed string) (string, error) {
	plain, ok := strings.CutPrefix(sealed, "sealed:")
	if !ok {
		return "", fmt.Errorf("segredo não selado")
	}
	return plain, nil
}

type fakeMetrics struct {
	emission.NopMetrics
	mu       sync.Mutex
	outcomes []string
	settled  map[entity.ReservationStatus]int
}

func (m *fakeMetrics) EmissionFinished(_ entity.DocumentType, outcome string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, outcome)
}

func (m *fakeMetrics) NumberSettled(_ entity.DocumentType, status entity.ReservationStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.settled == nil {
		m.settled = map[entity.ReservationStatus]int{}
	}
	m.settled[status]++
}

// ── SEFAZ ────────────────────────────────────────────────────────────────────

const (
	certPassword = "senha-a1"
	issuerCNPJ   = "11222333000181"
)

type fakeClient struct {
	mu sync.Mutex

	onSign   func()
	signErr  error
	transmit func(*fiscal.SignedDocument) (*fiscal.AuthorityResponse, error)
	poll     func(receipt string) (*fiscal.AuthorityResponse, error)
	query    func(key string) (*fiscal.AuthorityResponse, error)
	cancel   func(fiscal.CancelRequest) (*fiscal.AuthorityResponse, error)
	void     func(fiscal.VoidRequest) (*fiscal.AuthorityResponse, error)

	loads       int
	transmitted []*fiscal.SignedDocument
	polls       []string
	queries     []string
	cancels     []fiscal.CancelRequest
	voids       []fiscal.VoidRequest
}

func authorizedResponse(key string) *fiscal.AuthorityResponse {
	return &fiscal.AuthorityResponse{
		Kind:         fiscal.ResponseAuthorized,
		Code:         sefaz.StatAuthorized,
		Message:      "Autorizado o uso da NF-e",
		AccessKey:    key,
		Protocol:     "135250000000001",
		ReceivedAt:   time.Now(),
		ProcessedXML: []byte("<nfeProc><chNFe>" + key + "</chNFe></nfeProc>"),
	}
}

func (c *fakeClient) LoadCertificate(_ []byte, passphrase string, now time.Time) (*fiscal.Certificate, error) {
	c.mu.Lock()
	c.loads++
	c.mu.Unlock()
	if passphrase != certPassword {
		return nil, fiscal.CertificateError("senha do certificado incorreta", nil)
	}
	return &fiscal.Certificate{
		Subject:   "CN=MERCADINHO SAO JOAO LTDA:" + issuerCNPJ,
		CNPJ:      issuerCNPJ,
		NotBefore: now.AddDate(-1, 0, 0),
		NotAfter:  now.AddDate(1, 0, 0),
	}, nil
}

func (c *fakeClient) Sign(p *fiscal.Payload, _ *fiscal.Certificate) (*fiscal.SignedDocument, error) {
	if c.onSign != nil {
		c.onSign()
	}
	if c.signErr != nil {
		return nil, c.signErr
	}
	route, err := fiscal.RouteFromKey(p.Ide.AccessKey, p.Environment)
	if err != nil {
		return nil, err
	}
	xml := fmt.Sprintf(`<NFe><infNFe Id="NFe%s" versao="4.00"/></NFe>`, p.Ide.AccessKey)
	return &fiscal.SignedDocument{AccessKey: p.Ide.AccessKey, Route: route, XML: []byte(xml)}, nil
}

func (c *fakeClient) Transmit(_ context.Context, signed *fiscal.SignedDocument, _ *fiscal.Certificate) (*fiscal.AuthorityResponse, error) {
	c.mu.Lock()
	c.transmitted = append(c.transmitted, signed)
	fn := c.transmit
	c.mu.Unlock()
	if fn != nil {
		return fn(signed)
	}
	return authorizedResponse(signed.AccessKey), nil
}

func (c *fakeClient) PollReceipt(_ context.Context, _ fiscal.Route, receipt string, _ []byte, _ *fiscal.Certificate) (*fiscal.AuthorityResponse, error) {
	c.mu.Lock()
	c.polls = append(c.polls, receipt)
	fn := c.poll
	c.mu.Unlock()
	if fn != nil {
		return fn(receipt)
	}
	return &fiscal.AuthorityResponse{Kind: fiscal.ResponseProcessing, Code: sefaz.StatBatchInProcess, Message: "Lote em processamento", Receipt: receipt}, nil
}

func (c *fakeClient) QueryStatus(_ context.Context, _ fiscal.Route, key string, _ []byte, _ *fiscal.Certificate) (*fiscal.AuthorityResponse, error) {
	c.mu.Lock()
	c.queries = append(c.queries, key)
	fn := c.query
	c.mu.Unlock()
	if fn != nil {
		return fn(key)
	}
	return &fiscal.AuthorityResponse{Kind: fiscal.ResponseNotFound, Code: sefaz.StatNotFound, Message: "Rejeição: NF-e não consta na base de dados da SEFAZ"}, nil
}

func (c *fakeClient) Cancel(_ context.Context, _ fiscal.Route, req fiscal.CancelRequest, _ *fiscal.Certificate) (*fiscal.AuthorityResponse, error) {
	c.mu.Lock()
	c.cancels = append(c.cancels, req)
	fn := c.cancel
	c.mu.Unlock()
	if fn != nil {
		return fn(req)
	}
	return &fiscal.AuthorityResponse{
		Kind: fiscal.ResponseCancelled, Code: "135", Message: "Evento registrado e vinculado a NF-e",
		Protocol: "135250000000099", ReceivedAt: time.Now(), ProtocolXML: []byte("<procEventoNFe/>"),
	}, nil
}

func (c *fakeClient) Void(_ context.Context, _ fiscal.Route, req fiscal.VoidRequest, _ *fiscal.Certificate) (*fiscal.AuthorityResponse, error) {
	c.mu.Lock()
	c.voids = append(c.voids, req)
	fn := c.void
	c.mu.Unlock()
	if fn != nil {
		return fn(req)
	}
	return &fiscal.AuthorityResponse{Kind: fiscal.ResponseVoided, Code: "102", Message: "Inutilização de número homologado", Protocol: "135250000000777"}, nil
}

func (c *fakeClient) transmitCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.transmitted)
}

// ── montagem ─────────────────────────────────────────────────────────────────

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testProfile() *entity.FiscalProfile {
	until := time.Now().AddDate(1, 0, 0)
	return &entity.FiscalProfile{
		IssuerID:              issuer,
		CNPJ:                  "11.222.333/0001-81",
		LegalName:             "Mercadinho São João LTDA",
		StateRegistration:     "110042490114",
		Street:                "Rua das Flores",
		StreetNumber:          "100",
		District:              "Centro",
		City:                  "São Paulo",
		CityCode:              "3550308",
		UF:                    "SP",
		ZipCode:               "01001000",
		TaxRegime:             entity.RegimeSimplesNacional,
		Environment:           entity.EnvHomologation,
		CertificatePath:       "certificates/acc-1/cert.pfx",
		CertificatePassword:   "sealed:" + certPassword,
		CertificateValidUntil: &until,
		CSCID:                 "000001",
		CSCToken:              "sealed:CSC-TESTE",
		SeriesNFe:             1,
		SeriesNFCe:            2,
		Complete:              true,
	}
}

func testSale(id string) *entity.Sale {
	icms := dec("18")
	return &entity.Sale{
		ID:            id,
		IssuerID:      issuer,
		Total:         dec("50.00"),
		Discount:      dec("0"),
		NetTotal:      dec("50.00"),
		PaymentMethod: "DINHEIRO",
		Status:        entity.SaleStatusCompleted,
		SoldAt:        time.Now(),
		Items: []entity.SaleItem{
			{
				ProductID: "p1", Quantity: dec("2"), UnitPrice: dec("10.00"), Subtotal: dec("20.00"),
				Product: &entity.Product{ID: "p1", Code: "A1", Name: "Café Torrado 500g", NCM: "09012100", Unit: "UN", ICMSRate: &icms},
			},
			{
				ProductID: "p2", Quantity: dec("1"), UnitPrice: dec("30.00"), Subtotal: dec("30.00"),
				Product: &entity.Product{ID: "p2", Code: "B2", Name: "Açúcar Cristal 5kg", NCM: "17019900", Unit: "UN", ICMSRate: &icms},
			},
		},
	}
}

type harness struct {
	db          *memDB
	profiles    *fakeProfiles
	sales       fakeSales
	customers   fakeCustomers
	store       *fakeStore
	client      *fakeClient
	metrics     *fakeMetrics
	credentials *emission.Credentials
	allocator   *emission.NumberAllocator
	recorder    *emission.Recorder
	orch        *emission.Orchestrator
	poller      *emission.Poller
	reconciler  *emission.Reconciler
	cancel      *emission.CancelUseCase
	void        *emission.VoidUseCase
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		db:        newMemDB(),
		profiles:  &fakeProfiles{byIssuer: map[string]*entity.FiscalProfile{issuer: testProfile()}},
		sales:     fakeSales{},
		customers: fakeCustomers{},
		store:     newFakeStore(),
		client:    &fakeClient{},
		metrics:   &fakeMetrics{},
	}
	for _, id := range []string{"sale-1", "sale-2", "sale-3"} {
		h.sales[id] = testSale(id)
	}
	ctx := context.Background()
	require.NoError(t, h.store.Put(ctx, "certificates/acc-1/cert.pfx", []byte("pfx"), "application/x-pkcs12"))
	require.NoError(t, h.db.Sequences().Configure(ctx, &entity.NumberSequence{IssuerID: issuer, DocType: entity.DocNFe, Series: 1, NextNumber: 1}))
	require.NoError(t, h.db.Sequences().Configure(ctx, &entity.NumberSequence{IssuerID: issuer, DocType: entity.DocNFCe, Series: 2, NextNumber: 1}))

	log := zerolog.Nop()
	docs := h.db.Docs()
	h.credentials = emission.NewCredentials(h.profiles, h.store, fakeBox{}, h.client)
	h.allocator = emission.NewNumberAllocator(h.db, h.metrics, log)
	h.recorder = emission.NewRecorder(h.db, docs, h.store, h.metrics, log)
	h.orch = emission.NewOrchestrator(h.credentials, h.sales, h.customers, docs, h.db, h.allocator, h.recorder, h.client, h.metrics, "emissor-fiscal-test", log)
	h.poller = emission.NewPoller(docs, h.credentials, h.client, h.recorder, h.metrics, emission.PollerConfig{Concurrency: 2}, log)
	h.reconciler = emission.NewReconciler(docs, h.credentials, h.client, h.allocator, h.recorder, h.metrics, emission.ReconcilerConfig{StaleAfter: time.Minute}, log)
	h.cancel = emission.NewCancelUseCase(docs, h.db, h.credentials, h.client, h.allocator, h.recorder, h.store, log)
	h.void = emission.NewVoidUseCase(h.db.Reservations(), h.credentials, h.client, h.metrics, log)
	return h
}

// reserveQueued cria um documento em queued como se a emissão tivesse caído logo após a reserva.
func (h *harness) reserveQueued(t *testing.T, saleID string, docType entity.DocumentType, series int) *entity.TaxDocument {
	t.Helper()
	doc := &entity.TaxDocument{
		ID:          "doc-" + saleID,
		IssuerID:    issuer,
		SaleID:      saleID,
		DocType:     docType,
		Environment: entity.EnvHomologation,
		Series:      series,
		CreatedAt:   time.Now(),
	}
	require.NoError(t, h.allocator.ReserveFor(context.Background(), doc))
	return doc
}

func emissionError(t *testing.T, err error) *fiscal.EmissionError {
	t.Helper()
	require.Error(t, err)
	ee, ok := fiscal.AsEmissionError(err)
	require.True(t, ok, "esperado *fiscal.EmissionError, veio %T: %v", err, err)
	return ee
}
