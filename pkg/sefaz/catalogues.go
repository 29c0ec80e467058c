// Package sefaz contém catálogos e algoritmos puros do leiaute NF-e/NFC-e 4.00
// (Manual de Orientação do Contribuinte e Notas Técnicas da SEFAZ).
package sefaz

// =============================================================================
// Modelos de documento (campo mod)
// =============================================================================

const (
	ModelNFe  = "55" // Nota Fiscal eletrônica
	ModelNFCe = "65" // Nota Fiscal de Consumidor eletrônica
)

// LayoutVersion versão do leiaute dos schemas enviados.
const LayoutVersion = "4.00"

// MaxNumber maior nNF aceito pelo schema (9 dígitos).
const MaxNumber = 999_999_999

// MaxSeries maior série aceita pelo schema (3 dígitos; 890-999 reservadas para uso especial).
const MaxSeries = 889

// =============================================================================
// Ambiente (tpAmb)
// =============================================================================

const (
	EnvProduction   = "1" // Produção
	EnvHomologation = "2" // Homologação
)

// HomologationNotice texto exigido em xNome do destinatário e no primeiro item da NFC-e em homologação.
const HomologationNotice = "NOTA FISCAL EMITIDA EM AMBIENTE DE HOMOLOGACAO - SEM VALOR FISCAL"

// =============================================================================
// Código de Regime Tributário (CRT)
// =============================================================================

const (
	CRTSimplesNacional       = "1" // Simples Nacional
	CRTSimplesExcessoReceita = "2" // Simples Nacional, excesso de sublimite
	CRTRegimeNormal          = "3" // Regime normal (lucro presumido / lucro real)
)

// =============================================================================
// Meio de pagamento (tPag)
// =============================================================================

const (
	PaymentCash       = "01" // Dinheiro
	PaymentCheck      = "02" // Cheque
	PaymentCreditCard = "03" // Cartão de crédito
	PaymentDebitCard  = "04" // Cartão de débito
	PaymentPIX        = "17" // Pagamento instantâneo (PIX)
	PaymentOther      = "99" // Outros
)

// PaymentMethodCodes mapeia as formas de pagamento do PDV para tPag.
var PaymentMethodCodes = map[string]string{
	"DINHEIRO":       PaymentCash,
	"PIX":            PaymentPIX,
	"CARTAO_DEBITO":  PaymentDebitCard,
	"CARTAO_CREDITO": PaymentCreditCard,
}

// CardPayment indica se o tPag exige o grupo card (tpIntegra).
func CardPayment(tPag string) bool {
	return tPag == PaymentCreditCard || tPag == PaymentDebitCard
}

// =============================================================================
// Tributação
// =============================================================================

const (
	CSOSNWithoutCredit = "102" // Simples Nacional sem permissão de crédito
	CSTICMSFull        = "00"  // Tributada integralmente
	CSTPISTaxable      = "01"  // Operação tributável com alíquota básica
	CSTPISOther        = "49"  // Outras operações de saída
	ICMSBaseModeValue  = "3"   // modBC: valor da operação
)

// DefaultCFOP venda de mercadoria adquirida de terceiros, operação interna.
const DefaultCFOP = "5102"

// WithoutGTIN valor de cEAN/cEANTrib para produtos sem código de barras.
const WithoutGTIN = "SEM GTIN"

// =============================================================================
// Códigos de status (cStat) relevantes para o fluxo de emissão
// =============================================================================

const (
	StatAuthorized          = "100" // Autorizado o uso da NF-e
	StatCancelled           = "101" // Cancelamento homologado
	StatVoided              = "102" // Inutilização de número homologado
	StatBatchReceived       = "103" // Lote recebido com sucesso
	StatBatchProcessed      = "104" // Lote processado
	StatBatchInProcess      = "105" // Lote em processamento
	StatBatchNotFound       = "106" // Lote não localizado
	StatServiceUnavailable  = "108" // Serviço paralisado momentaneamente
	StatServiceStopped      = "109" // Serviço paralisado sem previsão
	StatDenied              = "110" // Uso denegado
	StatEventRegistered     = "135" // Evento registrado e vinculado
	StatEventRegisteredLate = "136" // Evento registrado, não vinculado
	StatAuthorizedLate      = "150" // Autorizado fora de prazo
	StatCancelledLate       = "151" // Cancelamento homologado fora de prazo
	StatCancelledEvent      = "155" // Cancelamento homologado fora de prazo (evento)
	StatDuplicate           = "204" // Duplicidade de NF-e
	StatNotFound            = "217" // NF-e não consta na base de dados
	StatDeniedIssuer        = "301" // Uso denegado: irregularidade do emitente
	StatDeniedRecipient     = "302" // Uso denegado: irregularidade do destinatário
	StatDeniedRecipientUF   = "303" // Uso denegado: destinatário não habilitado na UF
	StatThrottled           = "656" // Consumo indevido
)

// Authorized indica autorização de uso (no prazo ou fora dele).
func Authorized(cStat string) bool {
	return cStat == StatAuthorized || cStat == StatAuthorizedLate
}

// Denied indica denegação: o número é consumido, mas o documento não tem validade.
func Denied(cStat string) bool {
	switch cStat {
	case StatDenied, StatDeniedIssuer, StatDeniedRecipient, StatDeniedRecipientUF:
		return true
	}
	return false
}

// CancelledStat indica documento cancelado na base da SEFAZ.
func CancelledStat(cStat string) bool {
	return cStat == StatCancelled || cStat == StatCancelledLate || cStat == StatCancelledEvent
}

// Unavailable indica que a SEFAZ recusou o atendimento sem processar o documento.
func Unavailable(cStat string) bool {
	return cStat == StatServiceUnavailable || cStat == StatServiceStopped || cStat == StatThrottled
}

// =============================================================================
// Eventos
// =============================================================================

const (
	EventCancellation = "110111" // Cancelamento
	EventVersion      = "1.00"
)

// Limites de xJust para cancelamento e inutilização.
const (
	MinJustification = 15
	MaxJustification = 255
)

// =============================================================================
// Códigos IBGE das UFs (cUF)
// =============================================================================

var UFCodes = map[string]string{
	"RO": "11", "AC": "12", "AM": "13", "RR": "14", "PA": "15", "AP": "16", "TO": "17",
	"MA": "21", "PI": "22", "CE": "23", "RN": "24", "PB": "25", "PE": "26", "AL": "27",
	"SE": "28", "BA": "29", "MG": "31", "ES": "32", "RJ": "33", "SP": "35", "PR": "41",
	"SC": "42", "RS": "43", "MS": "50", "MT": "51", "GO": "52", "DF": "53",
}

// UFByCode resolve a sigla a partir do cUF.
func UFByCode(code string) (string, bool) {
	for uf, c := range UFCodes {
		if c == code {
			return uf, true
		}
	}
	return "", false
}
