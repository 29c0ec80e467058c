package usecase

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jhoicas/emissor-fiscal/internal/application/dto"
	"github.com/jhoicas/emissor-fiscal/internal/application/emission"
	"github.com/jhoicas/emissor-fiscal/internal/domain"
	"github.com/jhoicas/emissor-fiscal/internal/domain/entity"
	"github.com/jhoicas/emissor-fiscal/internal/domain/fiscal"
	"github.com/jhoicas/emissor-fiscal/internal/domain/repository"
	"github.com/jhoicas/emissor-fiscal/pkg/sefaz"
	"github.com/rs/zerolog"
)

// MaxCertificateSize tamanho máximo aceito para o arquivo .pfx/.p12.
const MaxCertificateSize = 64 << 10

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// ProfileUseCase cadastro fiscal do emitente: dados, séries, CSC e certificado A1.
type ProfileUseCase struct {
	profiles       repository.FiscalProfileRepository
	sequences      repository.NumberSequenceRepository
	municipalities repository.MunicipalityRepository
	store          emission.ArtifactStore
	box            emission.SecretBox
	client         emission.SigningTransmissionClient
	log            zerolog.Logger
}

// NewProfileUseCase monta o caso de uso. municipalities pode ser nil (sem validação IBGE).
func NewProfileUseCase(
	profiles repository.FiscalProfileRepository,
	sequences repository.NumberSequenceRepository,
	municipalities repository.MunicipalityRepository,
	store emission.ArtifactStore,
	box emission.SecretBox,
	client emission.SigningTransmissionClient,
	log zerolog.Logger,
) *ProfileUseCase {
	return &ProfileUseCase{
		profiles:       profiles,
		sequences:      sequences,
		municipalities: municipalities,
		store:          store,
		box:            box,
		client:         client,
		log:            log,
	}
}

// Get devolve o perfil sem segredos. domain.ErrNotFound se ainda não foi configurado.
func (uc *ProfileUseCase) Get(ctx context.Context, issuerID string) (*dto.FiscalProfileResponse, error) {
	p, err := uc.profiles.GetByIssuer(ctx, issuerID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, domain.ErrNotFound
	}
	seqs, err := uc.sequences.ListByIssuer(ctx, issuerID)
	if err != nil {
		return nil, err
	}
	return toProfileResponse(p, seqs), nil
}

// Save cria ou atualiza o perfil. Erros de cadastro voltam juntos em fiscal.ValidationFailed.
func (uc *ProfileUseCase) Save(ctx context.Context, issuerID string, in dto.FiscalProfileRequest) (*dto.FiscalProfileResponse, error) {
	existing, err := uc.profiles.GetByIssuer(ctx, issuerID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	p := &entity.FiscalProfile{IssuerID: issuerID, CreatedAt: now}
	if existing != nil {
		*p = *existing
	}
	p.CNPJ = sefaz.OnlyDigits(in.CNPJ)
	p.LegalName = strings.TrimSpace(in.LegalName)
	p.TradeName = strings.TrimSpace(in.TradeName)
	p.StateRegistration = strings.TrimSpace(in.StateRegistration)
	p.Street = strings.TrimSpace(in.Street)
	p.StreetNumber = strings.TrimSpace(in.Number)
	p.District = strings.TrimSpace(in.District)
	p.City = strings.TrimSpace(in.City)
	p.CityCode = sefaz.OnlyDigits(in.CityCode)
	p.UF = strings.ToUpper(strings.TrimSpace(in.UF))
	p.ZipCode = sefaz.OnlyDigits(in.ZipCode)
	p.Phone = sefaz.OnlyDigits(in.Phone)
	p.TaxRegime = entity.TaxRegime(in.TaxRegime)
	p.Environment = entity.Environment(in.Environment)
	p.CSCID = strings.TrimSpace(in.CSCID)
	p.SeriesNFe = in.SeriesNFe
	p.SeriesNFCe = in.SeriesNFCe
	p.UpdatedAt = now

	if errs := uc.validate(ctx, p, in); len(errs) > 0 {
		return nil, fiscal.ValidationFailed(errs)
	}
	if token := strings.TrimSpace(in.CSCToken); token != "" {
		sealed, err := uc.box.Seal(token)
		if err != nil {
			return nil, fmt.Errorf("selar CSC: %w", err)
		}
		p.CSCToken = sealed
	}
	p.ComputeComplete()

	if err := uc.profiles.Upsert(ctx, p); err != nil {
		return nil, err
	}
	if err := uc.configureSeries(ctx, issuerID, entity.DocNFe, p.SeriesNFe, in.NextNumberNFe); err != nil {
		return nil, err
	}
	if err := uc.configureSeries(ctx, issuerID, entity.DocNFCe, p.SeriesNFCe, in.NextNumberNFCe); err != nil {
		return nil, err
	}
	uc.log.Info().Str("issuer_id", issuerID).Bool("complete", p.Complete).Str("ambiente", string(p.Environment)).Msg("perfil fiscal salvo")
	return uc.Get(ctx, issuerID)
}

func (uc *ProfileUseCase) validate(ctx context.Context, p *entity.FiscalProfile, in dto.FiscalProfileRequest) []fiscal.FieldError {
	var errs []fiscal.FieldError
	add := func(field, reason string) { errs = append(errs, fiscal.FieldError{Field: field, Reason: reason}) }

	if err := sefaz.ValidateCNPJ(p.CNPJ); err != nil {
		add("cnpj", err.Error())
	}
	if p.LegalName == "" {
		add("legal_name", "razão social obrigatória")
	}
	if p.StateRegistration == "" {
		add("state_registration", "inscrição estadual obrigatória")
	}
	ufCode, ok := sefaz.UFCodes[p.UF]
	if !ok {
		add("uf", "UF inválida")
	}
	if len(p.ZipCode) != 8 {
		add("zip_code", "CEP deve ter 8 dígitos")
	}
	if len(p.CityCode) != 7 {
		add("city_code", "código IBGE do município deve ter 7 dígitos")
	} else if ok && p.CityCode[:2] != ufCode {
		add("city_code", "município não pertence à UF informada")
	} else if uc.municipalities != nil {
		m, err := uc.municipalities.GetByCode(ctx, p.CityCode)
		switch {
		case err != nil:
			uc.log.Warn().Err(err).Msg("tabela de municípios indisponível")
		case m == nil:
			add("city_code", "município não encontrado na tabela IBGE")
		case !strings.EqualFold(m.UF, p.UF):
			add("city_code", "município não pertence à UF informada")
		}
	}
	if !p.TaxRegime.Valid() {
		add("tax_regime", "regime deve ser simples_nacional, lucro_presumido ou lucro_real")
	}
	if !p.Environment.Valid() {
		add("environment", "ambiente deve ser homologacao ou producao")
	}
	if p.SeriesNFe < 1 || p.SeriesNFe > sefaz.MaxSeries {
		add("series_nfe", fmt.Sprintf("série deve estar entre 1 e %d", sefaz.MaxSeries))
	}
	if p.SeriesNFCe < 0 || p.SeriesNFCe > sefaz.MaxSeries {
		add("series_nfce", fmt.Sprintf("série deve estar entre 0 e %d", sefaz.MaxSeries))
	}
	if p.CSCID != "" {
		if n, err := strconv.Atoi(p.CSCID); err != nil || n <= 0 {
			add("csc_id", "identificador do CSC deve ser numérico")
		}
	}
	if in.NextNumberNFe < 0 || in.NextNumberNFe > sefaz.MaxNumber {
		add("next_number_nfe", "número fora do intervalo")
	}
	if in.NextNumberNFCe < 0 || in.NextNumberNFCe > sefaz.MaxNumber {
		add("next_number_nfce", "número fora do intervalo")
	}
	return errs
}

// configureSeries cria a série com próximo número 1, ou ajusta quando next > 0.
func (uc *ProfileUseCase) configureSeries(ctx context.Context, issuerID string, docType entity.DocumentType, series int, next int64) error {
	if series <= 0 {
		return nil
	}
	current, err := uc.sequences.Get(ctx, issuerID, docType, series)
	if err != nil {
		return err
	}
	if current != nil && next == 0 {
		return nil
	}
	if next == 0 {
		next = 1
	}
	err = uc.sequences.Configure(ctx, &entity.NumberSequence{
		IssuerID:   issuerID,
		DocType:    docType,
		Series:     series,
		NextNumber: next,
		MaxNumber:  sefaz.MaxNumber,
		UpdatedAt:  time.Now(),
	})
	if err != nil {
		return fmt.Errorf("série %d (%s): %w", series, docType.Label(), err)
	}
	return nil
}

// UploadCertificate valida o PKCS#12 com a senha, guarda o arquivo no storage e a senha selada no perfil.
func (uc *ProfileUseCase) UploadCertificate(ctx context.Context, issuerID, filename string, archive []byte, passphrase string) (*dto.CertificateResponse, error) {
	if len(archive) == 0 || len(archive) > MaxCertificateSize {
		return nil, fiscal.ValidationFailed([]fiscal.FieldError{{Field: "certificate", Reason: "arquivo vazio ou maior que 64 KiB"}})
	}
	p, err := uc.profiles.GetByIssuer(ctx, issuerID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("salve o perfil fiscal antes do certificado: %w", domain.ErrNotFound)
	}

	now := time.Now()
	cert, err := uc.client.LoadCertificate(archive, passphrase, now)
	if err != nil {
		return nil, err
	}
	if cert.CNPJ != "" && !sameCNPJRoot(cert.CNPJ, p.CNPJ) {
		return nil, fiscal.CertificateError("certificado emitido para outro CNPJ ("+cert.CNPJ+")", nil)
	}

	name := unsafeFileChars.ReplaceAllString(path.Base(filename), "_")
	if name == "" || name == "." || name == "_" {
		name = "certificado.pfx"
	}
	key := fmt.Sprintf("certificates/%s/%d_%s", issuerID, now.Unix(), name)
	if err := uc.store.Put(ctx, key, archive, "application/x-pkcs12"); err != nil {
		return nil, fmt.Errorf("gravar certificado: %w", err)
	}
	sealed, err := uc.box.Seal(passphrase)
	if err != nil {
		return nil, fmt.Errorf("selar senha do certificado: %w", err)
	}

	p.CertificatePath, p.CertificatePassword = key, sealed
	validUntil := cert.NotAfter
	p.CertificateValidUntil = &validUntil
	complete := p.ComputeComplete()
	if err := uc.profiles.UpdateCertificate(ctx, issuerID, key, sealed, validUntil, complete); err != nil {
		return nil, err
	}
	uc.log.Info().Str("issuer_id", issuerID).Time("valid_until", validUntil).Msg("certificado A1 atualizado")
	return &dto.CertificateResponse{
		Subject:   cert.Subject,
		CNPJ:      cert.CNPJ,
		NotBefore: cert.NotBefore,
		NotAfter:  cert.NotAfter,
		Complete:  complete,
	}, nil
}

// sameCNPJRoot compara a raiz (8 primeiros dígitos): o certificado da matriz assina pelas filiais.
func sameCNPJRoot(a, b string) bool {
	return len(a) >= 8 && len(b) >= 8 && a[:8] == b[:8]
}

func toProfileResponse(p *entity.FiscalProfile, seqs []*entity.NumberSequence) *dto.FiscalProfileResponse {
	out := &dto.FiscalProfileResponse{
		CNPJ:                  p.CNPJ,
		LegalName:             p.LegalName,
		TradeName:             p.TradeName,
		StateRegistration:     p.StateRegistration,
		Street:                p.Street,
		Number:                p.StreetNumber,
		District:              p.District,
		City:                  p.City,
		CityCode:              p.CityCode,
		UF:                    p.UF,
		ZipCode:               p.ZipCode,
		Phone:                 p.Phone,
		TaxRegime:             string(p.TaxRegime),
		Environment:           string(p.Environment),
		Sandbox:               p.Environment.Sandbox(),
		CSCID:                 p.CSCID,
		HasCSC:                p.CSCToken != "",
		HasCertificate:        p.CertificatePath != "",
		CertificateValidUntil: p.CertificateValidUntil,
		SeriesNFe:             p.SeriesNFe,
		SeriesNFCe:            p.SeriesNFCe,
		Complete:              p.Complete,
		MissingNFe:            p.MissingFields(entity.DocNFe),
		Sequences:             make([]dto.SequenceResponse, 0, len(seqs)),
	}
	if p.SeriesNFCe > 0 {
		out.MissingNFCe = p.MissingFields(entity.DocNFCe)
	}
	for _, s := range seqs {
		out.Sequences = append(out.Sequences, dto.SequenceResponse{DocType: string(s.DocType), Series: s.Series, NextNumber: s.NextNumber})
	}
	return out
}
