package entity

import (
	"time"

	"github.com/jhoicas/emissor-fiscal/pkg/sefaz"
)

// TaxRegime regime tributário do emitente.
type TaxRegime string

const (
	RegimeSimplesNacional TaxRegime = "simples_nacional"
	RegimeLucroPresumido  TaxRegime = "lucro_presumido"
	RegimeLucroReal       TaxRegime = "lucro_real"
)

// Valid indica se o regime é conhecido.
func (r TaxRegime) Valid() bool {
	return r == RegimeSimplesNacional || r == RegimeLucroPresumido || r == RegimeLucroReal
}

// CRT código de regime tributário do leiaute.
func (r TaxRegime) CRT() string {
	if r == RegimeSimplesNacional {
		return sefaz.CRTSimplesNacional
	}
	return sefaz.CRTRegimeNormal
}

// Environment ambiente de emissão. Homologação nunca se mistura com produção.
type Environment string

const (
	EnvHomologation Environment = "homologacao"
	EnvProduction   Environment = "producao"
)

// Valid indica se o ambiente é conhecido.
func (e Environment) Valid() bool {
	return e == EnvHomologation || e == EnvProduction
}

// Code tpAmb (1 = produção, 2 = homologação).
func (e Environment) Code() string {
	if e == EnvProduction {
		return sefaz.EnvProduction
	}
	return sefaz.EnvHomologation
}

// Sandbox documentos sem valor fiscal.
func (e Environment) Sandbox() bool {
	return e != EnvProduction
}

// DocumentType tipo A (NF-e) ou B (NFC-e).
type DocumentType string

const (
	DocNFe  DocumentType = "nfe"
	DocNFCe DocumentType = "nfce"
)

// Valid indica se o tipo é conhecido.
func (t DocumentType) Valid() bool {
	return t == DocNFe || t == DocNFCe
}

// Model campo mod do leiaute.
func (t DocumentType) Model() string {
	if t == DocNFCe {
		return sefaz.ModelNFCe
	}
	return sefaz.ModelNFe
}

// Label nome para exibição.
func (t DocumentType) Label() string {
	if t == DocNFCe {
		return "NFC-e"
	}
	return "NF-e"
}

// FiscalProfile perfil fiscal do emitente: um por conta.
// CertificatePassword e CSCToken ficam selados (pkg/secret); nunca saem pela API.
type FiscalProfile struct {
	IssuerID              string
	CNPJ                  string
	LegalName             string // razão social
	TradeName             string // nome fantasia
	StateRegistration     string // inscrição estadual
	Street                string
	StreetNumber          string
	District              string
	City                  string
	CityCode              string // código IBGE do município (7 dígitos)
	UF                    string
	ZipCode               string
	Phone                 string
	TaxRegime             TaxRegime
	Environment           Environment
	CertificatePath       string
	CertificatePassword   string
	CertificateValidUntil *time.Time
	CSCID                 string
	CSCToken              string
	SeriesNFe             int
	SeriesNFCe            int
	Complete              bool
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// MissingFields lista o que falta para emitir o tipo informado.
// Para o tipo B (NFC-e) o CSC também é exigido.
func (p *FiscalProfile) MissingFields(docType DocumentType) []string {
	var missing []string
	req := func(field, value string) {
		if value == "" {
			missing = append(missing, field)
		}
	}
	req("cnpj", p.CNPJ)
	req("razao_social", p.LegalName)
	req("inscricao_estadual", p.StateRegistration)
	req("logradouro", p.Street)
	req("numero", p.StreetNumber)
	req("bairro", p.District)
	req("municipio", p.City)
	req("codigo_municipio", p.CityCode)
	req("uf", p.UF)
	req("cep", p.ZipCode)
	if !p.TaxRegime.Valid() {
		missing = append(missing, "regime_tributario")
	}
	if !p.Environment.Valid() {
		missing = append(missing, "ambiente")
	}
	req("certificado", p.CertificatePath)
	req("certificado_senha", p.CertificatePassword)
	if p.SeriesFor(docType) < 1 {
		missing = append(missing, "serie_"+string(docType))
	}
	if docType == DocNFCe {
		req("csc_id", p.CSCID)
		req("csc_token", p.CSCToken)
	}
	return missing
}

// ComputeComplete recalcula a flag de completude: NF-e sempre; NFC-e quando houver série configurada.
func (p *FiscalProfile) ComputeComplete() bool {
	complete := len(p.MissingFields(DocNFe)) == 0
	if p.SeriesNFCe > 0 {
		complete = complete && len(p.MissingFields(DocNFCe)) == 0
	}
	p.Complete = complete
	return complete
}

// SeriesFor série configurada para o tipo.
func (p *FiscalProfile) SeriesFor(docType DocumentType) int {
	if docType == DocNFCe {
		return p.SeriesNFCe
	}
	return p.SeriesNFe
}

// CertificateExpired indica certificado vencido na data informada.
func (p *FiscalProfile) CertificateExpired(now time.Time) bool {
	return p.CertificateValidUntil != nil && now.After(*p.CertificateValidUntil)
}
