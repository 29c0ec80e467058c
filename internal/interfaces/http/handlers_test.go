package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/emissor-fiscal/internal/application/dto"
	"github.com/jhoicas/emissor-fiscal/internal/application/emission"
	"github.com/jhoicas/emissor-fiscal/internal/application/usecase"
	"github.com/jhoicas/emissor-fiscal/internal/domain"
	"github.com/jhoicas/emissor-fiscal/internal/domain/entity"
	"github.com/jhoicas/emissor-fiscal/internal/domain/fiscal"
	apphttp "github.com/jhoicas/emissor-fiscal/internal/interfaces/http"
)

type fakeEmitter struct {
	got emission.EmitRequest
	doc *entity.TaxDocument
	err error
}

func (f *fakeEmitter) Emit(_ context.Context, _ string, req emission.EmitRequest) (*entity.TaxDocument, error) {
	f.got = req
	return f.doc, f.err
}

type fakeHistory struct {
	listIn   dto.DocumentListRequest
	artifact *usecase.Artifact
	err      error
}

func (f *fakeHistory) List(_ context.Context, _ string, in dto.DocumentListRequest) (*dto.DocumentListResponse, error) {
	f.listIn = in
	return &dto.DocumentListResponse{Items: []dto.DocumentResponse{}}, f.err
}

func (f *fakeHistory) Get(_ context.Context, _ string, id string) (*dto.DocumentDetailResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &dto.DocumentDetailResponse{DocumentResponse: dto.DocumentResponse{ID: id}}, nil
}

func (f *fakeHistory) XML(context.Context, string, string) (*usecase.Artifact, error) {
	return f.artifact, f.err
}

func (f *fakeHistory) PDF(context.Context, string, string) (*usecase.Artifact, error) {
	return f.artifact, f.err
}

type fakeCanceller struct {
	justification string
	err           error
}

func (f *fakeCanceller) Cancel(_ context.Context, _ string, id, justification string) (*entity.TaxDocument, error) {
	f.justification = justification
	if f.err != nil {
		return nil, f.err
	}
	return &entity.TaxDocument{ID: id, Status: entity.StatusCancelled}, nil
}

type fakeNumbers struct{ justification string }

func (f *fakeNumbers) ListSkipped(context.Context, string) ([]dto.SkippedNumberResponse, error) {
	return []dto.SkippedNumberResponse{{ID: "r1", DocType: "nfce", Series: 1, Number: 7}}, nil
}

func (f *fakeNumbers) VoidSkipped(_ context.Context, _ string, justification string) ([]dto.VoidResultResponse, error) {
	f.justification = justification
	return []dto.VoidResultResponse{{DocType: "nfce", Series: 1, From: 7, To: 7, Status: "voided"}}, nil
}

type fakeProfile struct {
	archive    []byte
	passphrase string
}

func (f *fakeProfile) Get(context.Context, string) (*dto.FiscalProfileResponse, error) {
	return nil, domain.ErrNotFound
}

func (f *fakeProfile) Save(context.Context, string, dto.FiscalProfileRequest) (*dto.FiscalProfileResponse, error) {
	return &dto.FiscalProfileResponse{}, nil
}

func (f *fakeProfile) UploadCertificate(_ context.Context, _ string, _ string, archive []byte, passphrase string) (*dto.CertificateResponse, error) {
	f.archive, f.passphrase = archive, passphrase
	return &dto.CertificateResponse{}, nil
}

type testDeps struct {
	emitter  *fakeEmitter
	history  *fakeHistory
	cancel   *fakeCanceller
	numbers  *fakeNumbers
	profiles *fakeProfile
}

func newTestApp() (*fiber.App, *testDeps) {
	d := &testDeps{
		emitter:  &fakeEmitter{},
		history:  &fakeHistory{},
		cancel:   &fakeCanceller{},
		numbers:  &fakeNumbers{},
		profiles: &fakeProfile{},
	}
	app := fiber.New()
	apphttp.Router(app, apphttp.RouterDeps{
		Profile:   d.profiles,
		Emission:  d.emitter,
		History:   d.history,
		Cancel:    d.cancel,
		Numbers:   d.numbers,
		JWTSecret: testJWTSecret,
		JWTIssuer: testIssuer,
		Log:       zerolog.Nop(),
	})
	return app, d
}

func do(t *testing.T, app *fiber.App, method, path string, body any) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Authorization", bearer(t))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decodeError(t *testing.T, resp *http.Response) dto.ErrorResponse {
	t.Helper()
	defer resp.Body.Close()
	var out dto.ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestRouter_ExigeToken(t *testing.T) {
	app, _ := newTestApp()
	req := httptest.NewRequest(http.MethodGet, "/api/fiscal/documents", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestEmit_Autorizado_201(t *testing.T) {
	app, d := newTestApp()
	d.emitter.doc = &entity.TaxDocument{ID: "d1", Status: entity.StatusAuthorized, DocType: entity.DocNFCe, Environment: entity.EnvHomologation}

	resp := do(t, app, http.MethodPost, "/api/fiscal/emissions", dto.EmitRequest{
		SaleID:   "s1",
		DocType:  "nfce",
		Customer: &dto.CustomerInput{Name: "Consumidor", Document: "12345678909"},
	})
	defer resp.Body.Close()

	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, entity.DocNFCe, d.emitter.got.DocType)
	require.NotNil(t, d.emitter.got.Customer)
	assert.Equal(t, "12345678909", d.emitter.got.Customer.Document)

	var out dto.DocumentResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.True(t, out.Sandbox)
	assert.Equal(t, "authorized", out.Status)
}

func TestEmit_EmProcessamento_202(t *testing.T) {
	app, d := newTestApp()
	d.emitter.doc = &entity.TaxDocument{ID: "d1", Status: entity.StatusProcessing}

	resp := do(t, app, http.MethodPost, "/api/fiscal/emissions", dto.EmitRequest{SaleID: "s1", DocType: "nfe"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Nil(t, d.emitter.got.Customer)
}

func TestEmit_SemSaleID_400(t *testing.T) {
	app, _ := newTestApp()
	resp := do(t, app, http.MethodPost, "/api/fiscal/emissions", dto.EmitRequest{DocType: "nfe"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION", decodeError(t, resp).Code)
}

func TestEmit_MapeamentoDeErros(t *testing.T) {
	doc := &entity.TaxDocument{ID: "d9", Status: entity.StatusRejected}
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"configuração", fiscal.ConfigurationIncomplete([]string{"certificate"}), http.StatusUnprocessableEntity, "CONFIGURATION_INCOMPLETE"},
		{"validação", fiscal.ValidationFailed([]fiscal.FieldError{{Field: "items[0].ncm", Reason: "obrigatório"}}), http.StatusUnprocessableEntity, "VALIDATION"},
		{"certificado", fiscal.CertificateError("senha incorreta", nil), http.StatusUnprocessableEntity, "CERTIFICATE_ERROR"},
		{"rejeição", fiscal.AuthorityRejected("778", "Rejeicao: Informado NCM inexistente").WithDocument(doc), http.StatusUnprocessableEntity, "AUTHORITY_REJECTED"},
		{"transitório", fiscal.TransientFailure("SEFAZ indisponível", nil), http.StatusServiceUnavailable, "TRANSIENT_FAILURE"},
		{"indeterminado", fiscal.UnknownOutcome("timeout após envio", nil), http.StatusAccepted, "UNKNOWN_OUTCOME"},
		{"duplicada", fiscal.DuplicateEmission(&entity.TaxDocument{DocType: entity.DocNFe, Status: entity.StatusAuthorized}), http.StatusConflict, "DUPLICATE_EMISSION"},
		{"série esgotada", fiscal.SeriesExhausted(1, nil), http.StatusConflict, "SERIES_EXHAUSTED"},
		{"cancelada", fiscal.Cancelled(doc), http.StatusConflict, "CANCELLED"},
		{"sentinela de domínio", fmt.Errorf("venda: %w", domain.ErrNotFound), http.StatusNotFound, "NOT_FOUND"},
		{"erro interno", errors.New("conexão perdida"), http.StatusInternalServerError, "INTERNAL"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app, d := newTestApp()
			d.emitter.err = tc.err

			resp := do(t, app, http.MethodPost, "/api/fiscal/emissions", dto.EmitRequest{SaleID: "s1", DocType: "nfe"})
			assert.Equal(t, tc.status, resp.StatusCode)
			assert.Equal(t, tc.code, decodeError(t, resp).Code)
		})
	}
}

func TestEmit_RejeicaoRepeteMensagemLiteral(t *testing.T) {
	app, d := newTestApp()
	d.emitter.err = fiscal.AuthorityRejected("778", "Rejeicao: Informado NCM inexistente").
		WithDocument(&entity.TaxDocument{ID: "d9", Status: entity.StatusRejected})

	resp := do(t, app, http.MethodPost, "/api/fiscal/emissions", dto.EmitRequest{SaleID: "s1", DocType: "nfe"})
	out := decodeError(t, resp)

	assert.Equal(t, "Rejeicao: Informado NCM inexistente", out.Message)
	assert.Equal(t, "778", out.AuthorityCode)
	require.NotNil(t, out.Document)
	assert.Equal(t, "d9", out.Document.ID)
}

func TestEmit_ValidacaoListaCampos(t *testing.T) {
	app, d := newTestApp()
	d.emitter.err = fiscal.ValidationFailed([]fiscal.FieldError{{Field: "items[0].ncm", Reason: "obrigatório"}})

	resp := do(t, app, http.MethodPost, "/api/fiscal/emissions", dto.EmitRequest{SaleID: "s1", DocType: "nfe"})
	out := decodeError(t, resp)
	require.Len(t, out.Fields, 1)
	assert.Equal(t, "items[0].ncm", out.Fields[0].Field)
}

func TestDocuments_ListRepassaFiltros(t *testing.T) {
	app, d := newTestApp()
	resp := do(t, app, http.MethodGet, "/api/fiscal/documents?status=authorized&doc_type=nfce&q=123&limit=5&offset=10", nil)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "authorized", d.history.listIn.Status)
	assert.Equal(t, "nfce", d.history.listIn.DocType)
	assert.Equal(t, "123", d.history.listIn.Search)
	assert.Equal(t, 5, d.history.listIn.Limit)
	assert.Equal(t, 10, d.history.listIn.Offset)
}

func TestDocuments_GetNaoEncontrado(t *testing.T) {
	app, d := newTestApp()
	d.history.err = domain.ErrNotFound
	resp := do(t, app, http.MethodGet, "/api/fiscal/documents/xyz", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", decodeError(t, resp).Code)
}

func TestDocuments_Cancel(t *testing.T) {
	app, d := newTestApp()
	resp := do(t, app, http.MethodPost, "/api/fiscal/documents/d1/cancel", dto.CancelDocumentRequest{Justification: "cliente desistiu da compra"})
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "cliente desistiu da compra", d.cancel.justification)
	var out dto.DocumentResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "cancelled", out.Status)
}

func TestDocuments_CancelTransicaoInvalida_409(t *testing.T) {
	app, d := newTestApp()
	d.cancel.err = fmt.Errorf("cancelar: %w", domain.ErrInvalidTransition)
	resp := do(t, app, http.MethodPost, "/api/fiscal/documents/d1/cancel", dto.CancelDocumentRequest{Justification: "cliente desistiu da compra"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestDocuments_DownloadXML(t *testing.T) {
	app, d := newTestApp()
	d.history.artifact = &usecase.Artifact{
		Filename:    "35240112345678000195650010000000071000000070-nfe.xml",
		ContentType: "application/xml",
		Data:        []byte("<nfeProc/>"),
	}
	resp := do(t, app, http.MethodGet, "/api/fiscal/documents/d1/xml", nil)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/xml", resp.Header.Get("Content-Type"))
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Disposition"), "attachment"))
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "<nfeProc/>", string(body))
}

func TestNumbers_SkippedEVoid(t *testing.T) {
	app, d := newTestApp()

	resp := do(t, app, http.MethodGet, "/api/fiscal/numbers/skipped", nil)
	var skipped []dto.SkippedNumberResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&skipped))
	resp.Body.Close()
	require.Len(t, skipped, 1)
	assert.Equal(t, int64(7), skipped[0].Number)

	resp = do(t, app, http.MethodPost, "/api/fiscal/numbers/void", dto.VoidNumbersRequest{Justification: "falha de comunicação no caixa"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "falha de comunicação no caixa", d.numbers.justification)
}

func TestProfile_GetSemPerfil_404(t *testing.T) {
	app, _ := newTestApp()
	resp := do(t, app, http.MethodGet, "/api/fiscal/profile", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestProfile_UploadCertificate(t *testing.T) {
	app, d := newTestApp()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("certificate", "empresa.pfx")
	require.NoError(t, err)
	_, err = fw.Write([]byte("pkcs12-bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("passphrase", "1234"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/fiscal/profile/certificate", &buf)
	req.Header.Set("Authorization", bearer(t))
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []byte("pkcs12-bytes"), d.profiles.archive)
	assert.Equal(t, "1234", d.profiles.passphrase)
}

func TestProfile_UploadSemSenha_400(t *testing.T) {
	app, _ := newTestApp()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("certificate", "empresa.pfx")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("pkcs12-bytes"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/fiscal/profile/certificate", &buf)
	req.Header.Set("Authorization", bearer(t))
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}
