package dto

import "time"

// FiscalProfileRequest body de PUT /api/fiscal/profile.
// CSCToken vazio mantém o CSC já gravado. NextNumber* > 0 ajusta o próximo número da série.
type FiscalProfileRequest struct {
	CNPJ              string `json:"cnpj"`
	LegalName         string `json:"legal_name"`
	TradeName         string `json:"trade_name,omitempty"`
	StateRegistration string `json:"state_registration"`
	Street            string `json:"street"`
	Number            string `json:"number"`
	District          string `json:"district"`
	City              string `json:"city"`
	CityCode          string `json:"city_code"`
	UF                string `json:"uf"`
	ZipCode           string `json:"zip_code"`
	Phone             string `json:"phone,omitempty"`
	TaxRegime         string `json:"tax_regime"`  // simples_nacional | lucro_presumido | lucro_real
	Environment       string `json:"environment"` // homologacao | producao
	CSCID             string `json:"csc_id,omitempty"`
	CSCToken          string `json:"csc_token,omitempty"`
	SeriesNFe         int    `json:"series_nfe"`
	SeriesNFCe        int    `json:"series_nfce"`
	NextNumberNFe     int64  `json:"next_number_nfe,omitempty"`
	NextNumberNFCe    int64  `json:"next_number_nfce,omitempty"`
}

// FiscalProfileResponse perfil sem segredos (senha do certificado e CSC nunca saem).
type FiscalProfileResponse struct {
	CNPJ                  string             `json:"cnpj"`
	LegalName             string             `json:"legal_name"`
	TradeName             string             `json:"trade_name,omitempty"`
	StateRegistration     string             `json:"state_registration"`
	Street                string             `json:"street"`
	Number                string             `json:"number"`
	District              string             `json:"district"`
	City                  string             `json:"city"`
	CityCode              string             `json:"city_code"`
	UF                    string             `json:"uf"`
	ZipCode               string             `json:"zip_code"`
	Phone                 string             `json:"phone,omitempty"`
	TaxRegime             string             `json:"tax_regime"`
	Environment           string             `json:"environment"`
	Sandbox               bool               `json:"sandbox"`
	CSCID                 string             `json:"csc_id,omitempty"`
	HasCSC                bool               `json:"has_csc"`
	HasCertificate        bool               `json:"has_certificate"`
	CertificateValidUntil *time.Time         `json:"certificate_valid_until,omitempty"`
	SeriesNFe             int                `json:"series_nfe"`
	SeriesNFCe            int                `json:"series_nfce"`
	Complete              bool               `json:"complete"`
	MissingNFe            []string           `json:"missing_nfe,omitempty"`
	MissingNFCe           []string           `json:"missing_nfce,omitempty"`
	Sequences             []SequenceResponse `json:"sequences"`
}

// SequenceResponse contador de uma série.
type SequenceResponse struct {
	DocType    string `json:"doc_type"`
	Series     int    `json:"series"`
	NextNumber int64  `json:"next_number"`
}

// CertificateResponse dados do certificado aceito em POST /api/fiscal/profile/certificate.
type CertificateResponse struct {
	Subject   string    `json:"subject"`
	CNPJ      string    `json:"cnpj,omitempty"`
	NotBefore time.Time `json:"not_before"`
	NotAfter  time.Time `json:"not_after"`
	Complete  bool      `json:"complete"`
}
