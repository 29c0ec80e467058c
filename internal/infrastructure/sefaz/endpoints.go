package sefaz

import (
	"fmt"
	"strings"

	"github.com/jhoicas/emissor-fiscal/internal/domain/entity"
	"github.com/jhoicas/emissor-fiscal/internal/domain/fiscal"
	"github.com/jhoicas/emissor-fiscal/pkg/sefaz"
)

// Service web service do leiaute 4.00. O valor é o nome do serviço no WSDL.
type Service string

const (
	ServiceAuthorization Service = "NFeAutorizacao4"
	ServiceReturn        Service = "NFeRetAutorizacao4"
	ServiceQuery         Service = "NFeConsultaProtocolo4"
	ServiceEvent         Service = "NFeRecepcaoEvento4"
	ServiceVoid          Service = "NFeInutilizacao4"
)

var serviceOperations = map[Service]string{
	ServiceAuthorization: "nfeAutorizacaoLote",
	ServiceReturn:        "nfeRetAutorizacaoLote",
	ServiceQuery:         "nfeConsultaNF",
	ServiceEvent:         "nfeRecepcaoEvento",
	ServiceVoid:          "nfeInutilizacaoNF",
}

// Namespace targetNamespace do WSDL (nfeDadosMsg).
func (s Service) Namespace() string {
	return "http://www.portalfiscal.inf.br/nfe/wsdl/" + string(s)
}

// Action SOAPAction (parâmetro action do Content-Type no SOAP 1.2).
func (s Service) Action() string {
	return s.Namespace() + "/" + serviceOperations[s]
}

// authorizer servidores de uma autorizadora: host por ambiente e caminho por serviço.
type authorizer struct {
	production   string
	homologation string
	paths        map[Service]string
}

var asmxPaths = map[Service]string{
	ServiceAuthorization: "/ws/NfeAutorizacao/NFeAutorizacao4.asmx",
	ServiceReturn:        "/ws/NfeRetAutorizacao/NFeRetAutorizacao4.asmx",
	ServiceQuery:         "/ws/NfeConsulta/NfeConsulta4.asmx",
	ServiceEvent:         "/ws/recepcaoevento/recepcaoevento4.asmx",
	ServiceVoid:          "/ws/nfeinutilizacao/nfeinutilizacao4.asmx",
}

var spPaths = map[Service]string{
	ServiceAuthorization: "/ws/nfeautorizacao4.asmx",
	ServiceReturn:        "/ws/nferetautorizacao4.asmx",
	ServiceQuery:         "/ws/nfeconsultaprotocolo4.asmx",
	ServiceEvent:         "/ws/nferecepcaoevento4.asmx",
	ServiceVoid:          "/ws/nfeinutilizacao4.asmx",
}

func servicePaths(prefix string) map[Service]string {
	out := make(map[Service]string, len(serviceOperations))
	for s := range serviceOperations {
		out[s] = prefix + "/" + string(s)
	}
	return out
}

var authorizers = map[string]authorizer{
	"SVRS-55": {"https://nfe.svrs.rs.gov.br", "https://nfe-homologacao.svrs.rs.gov.br", asmxPaths},
	"SVRS-65": {"https://nfce.svrs.rs.gov.br", "https://nfce-homologacao.svrs.rs.gov.br", asmxPaths},
	"RS-55":   {"https://nfe.sefazrs.rs.gov.br", "https://nfe-homologacao.sefazrs.rs.gov.br", asmxPaths},
	"RS-65":   {"https://nfce.sefazrs.rs.gov.br", "https://nfce-homologacao.sefazrs.rs.gov.br", asmxPaths},
	"SP-55":   {"https://nfe.fazenda.sp.gov.br", "https://homologacao.nfe.fazenda.sp.gov.br", spPaths},
	"SP-65":   {"https://nfce.fazenda.sp.gov.br", "https://homologacao.nfce.fazenda.sp.gov.br", spPaths},
	"MG-55":   {"https://nfe.fazenda.mg.gov.br", "https://hnfe.fazenda.mg.gov.br", servicePaths("/nfe2/services")},
	"MG-65":   {"https://nfce.fazenda.mg.gov.br", "https://hnfce.fazenda.mg.gov.br", servicePaths("/nfce/services")},
	"PR-55":   {"https://nfe.sefa.pr.gov.br", "https://homologacao.nfe.sefa.pr.gov.br", servicePaths("/nfe")},
	"PR-65":   {"https://nfce.sefa.pr.gov.br", "https://homologacao.nfce.sefa.pr.gov.br", servicePaths("/nfce")},
	"SVAN-55": {"https://www.sefazvirtual.fazenda.gov.br", "https://hom.sefazvirtual.fazenda.gov.br", map[Service]string{
		ServiceAuthorization: "/NFeAutorizacao4/NFeAutorizacao4.asmx",
		ServiceReturn:        "/NFeRetAutorizacao4/NFeRetAutorizacao4.asmx",
		ServiceQuery:         "/NFeConsultaProtocolo4/NFeConsultaProtocolo4.asmx",
		ServiceEvent:         "/NFeRecepcaoEvento4/NFeRecepcaoEvento4.asmx",
		ServiceVoid:          "/NFeInutilizacao4/NFeInutilizacao4.asmx",
	}},
}

// Autorizadoras próprias por modelo. As demais UFs usam a SVRS (ou a SVAN, para o MA na NF-e).
// UF com servidor próprio fora da tabela de authorizers fica sem rota.
var ownAuthorizer = map[string]map[string]string{
	sefaz.ModelNFe: {
		"SP": "SP", "RS": "RS", "MG": "MG", "PR": "PR", "MA": "SVAN",
		"AM": "", "BA": "", "GO": "", "MS": "", "MT": "", "PE": "",
	},
	sefaz.ModelNFCe: {
		"SP": "SP", "RS": "RS", "MG": "MG", "PR": "PR",
		"AM": "", "GO": "", "MS": "", "MT": "",
	},
}

// Endpoints resolve a URL de cada serviço. Com baseURL preenchida todos os serviços vão para
// baseURL/{serviço} (proxy, ambiente de testes).
type Endpoints struct {
	baseURL string
}

func NewEndpoints(baseURL string) *Endpoints {
	return &Endpoints{baseURL: strings.TrimRight(baseURL, "/")}
}

// URL do serviço para a rota. Homologação e produção nunca compartilham host.
func (e *Endpoints) URL(route fiscal.Route, svc Service) (string, error) {
	if _, ok := serviceOperations[svc]; !ok {
		return "", fmt.Errorf("sefaz: serviço desconhecido %s", svc)
	}
	if !route.Environment.Valid() {
		return "", fmt.Errorf("sefaz: ambiente inválido %q", route.Environment)
	}
	if e.baseURL != "" {
		return e.baseURL + "/" + string(svc), nil
	}
	if route.Model != sefaz.ModelNFe && route.Model != sefaz.ModelNFCe {
		return "", fmt.Errorf("sefaz: modelo inválido %q", route.Model)
	}
	if _, ok := sefaz.UFCodes[route.UF]; !ok {
		return "", fmt.Errorf("sefaz: UF inválida %q", route.UF)
	}
	name := "SVRS"
	if own, ok := ownAuthorizer[route.Model][route.UF]; ok {
		if own == "" {
			return "", fmt.Errorf("sefaz: web services de %s para o modelo %s não configurados; use SEFAZ_ENDPOINT_BASE_URL", route.UF, route.Model)
		}
		name = own
	}
	a := authorizers[name+"-"+route.Model]
	host := a.homologation
	if route.Environment == entity.EnvProduction {
		host = a.production
	}
	return host + a.paths[svc], nil
}
