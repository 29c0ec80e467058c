package sefaz

import (
	"testing"

	"github.com/jhoicas/emissor-fiscal/internal/domain/entity"
	"github.com/jhoicas/emissor-fiscal/internal/domain/fiscal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEndpoints_URL(t *testing.T) {
	e := NewEndpoints("")
	cases := []struct {
		name  string
		route fiscal.Route
		svc   Service
		want  string
	}{
		{"SP NF-e produção", fiscal.Route{UF: "SP", Model: "55", Environment: entity.EnvProduction}, ServiceAuthorization,
			"https://nfe.fazenda.sp.gov.br/ws/nfeautorizacao4.asmx"},
		{"SP NF-e homologação", fiscal.Route{UF: "SP", Model: "55", Environment: entity.EnvHomologation}, ServiceAuthorization,
			"https://homologacao.nfe.fazenda.sp.gov.br/ws/nfeautorizacao4.asmx"},
		{"SC NFC-e SVRS", fiscal.Route{UF: "SC", Model: "65", Environment: entity.EnvHomologation}, ServiceQuery,
			"https://nfce-homologacao.svrs.rs.gov.br/ws/NfeConsulta/NfeConsulta4.asmx"},
		{"MA NF-e SVAN", fiscal.Route{UF: "MA", Model: "55", Environment: entity.EnvProduction}, ServiceVoid,
			"https://www.sefazvirtual.fazenda.gov.br/NFeInutilizacao4/NFeInutilizacao4.asmx"},
		{"MA NFC-e SVRS", fiscal.Route{UF: "MA", Model: "65", Environment: entity.EnvProduction}, ServiceEvent,
			"https://nfce.svrs.rs.gov.br/ws/recepcaoevento/recepcaoevento4.asmx"},
		{"MG NF-e", fiscal.Route{UF: "MG", Model: "55", Environment: entity.EnvProduction}, ServiceReturn,
			"https://nfe.fazenda.mg.gov.br/nfe2/services/NFeRetAutorizacao4"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := e.URL(tc.route, tc.svc)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestEndpoints_Errors(t *testing.T) {
	e := NewEndpoints("")
	_, err := e.URL(fiscal.Route{UF: "BA", Model: "55", Environment: entity.EnvProduction}, ServiceAuthorization)
	assert.ErrorContains(t, err, "não configurados")
	_, err = e.URL(fiscal.Route{UF: "XX", Model: "55", Environment: entity.EnvProduction}, ServiceAuthorization)
	assert.Error(t, err)
	_, err = e.URL(fiscal.Route{UF: "SP", Model: "55", Environment: "teste"}, ServiceAuthorization)
	assert.ErrorContains(t, err, "ambiente")
	_, err = e.URL(fiscal.Route{UF: "SP", Model: "57", Environment: entity.EnvProduction}, ServiceAuthorization)
	assert.ErrorContains(t, err, "modelo")
}

func TestEndpoints_BaseURLOverride(t *testing.T) {
	got, err := NewEndpoints("https://proxy.local/sefaz/").URL(fiscal.Route{UF: "BA", Model: "55", Environment: entity.EnvHomologation}, ServiceEvent)
	require.NoError(t, err)
	assert.Equal(t, "https://proxy.local/sefaz/NFeRecepcaoEvento4", got)
}

func TestService_Action(t *testing.T) {
	assert.Equal(t, "http://www.portalfiscal.inf.br/nfe/wsdl/NFeAutorizacao4/nfeAutorizacaoLote", ServiceAuthorization.Action())
	assert.Equal(t, "http://www.portalfiscal.inf.br/nfe/wsdl/NFeConsultaProtocolo4", ServiceQuery.Namespace())
}
