package sefaz

import (
	"testing"

	"github.com/jhoicas/emissor-fiscal/internal/domain/fiscal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func retEnvi(cStat, body string) []byte {
	return []byte(`<retEnviNFe xmlns="http://www.portalfiscal.inf.br/nfe" versao="4.00"><tpAmb>2</tpAmb>` +
		`<cStat>` + cStat + `</cStat><xMotivo>motivo ` + cStat + `</xMotivo><cUF>35</cUF>` +
		`<dhRecbto>2024-01-15T10:30:05-03:00</dhRecbto>` + body + `</retEnviNFe>`)
}

func prot(cStat, motivo, nProt string) string {
	return `<protNFe versao="4.00"><infProt><tpAmb>2</tpAmb><chNFe>` + testKey + `</chNFe>` +
		`<dhRecbto>2024-01-15T10:30:05-03:00</dhRecbto><nProt>` + nProt + `</nProt>` +
		`<cStat>` + cStat + `</cStat><xMotivo>` + motivo + `</xMotivo></infProt></protNFe>`
}

func TestParseAuthorization(t *testing.T) {
	signed := []byte(`<NFe xmlns="http://www.portalfiscal.inf.br/nfe"><infNFe Id="NFe` + testKey + `"/></NFe>`)

	resp, err := parseAuthorization(retEnvi("104", prot("100", "Autorizado o uso da NF-e", "135240000000001")), signed, testKey)
	require.NoError(t, err)
	assert.Equal(t, fiscal.ResponseAuthorized, resp.Kind)
	assert.Equal(t, "135240000000001", resp.Protocol)
	assert.Equal(t, testKey, resp.AccessKey)
	assert.False(t, resp.ReceivedAt.IsZero())
	assert.Contains(t, string(resp.ProtocolXML), `<protNFe versao="4.00" xmlns="http://www.portalfiscal.inf.br/nfe">`)
	assert.Contains(t, string(resp.ProcessedXML), `<nfeProc`)
	assert.Contains(t, string(resp.ProcessedXML), `</NFe><protNFe`)

	resp, err = parseAuthorization(retEnvi("104", prot("539", "Rejeição: Duplicidade de NF-e com diferença na Chave de Acesso", "")), signed, testKey)
	require.NoError(t, err)
	assert.Equal(t, fiscal.ResponseRejected, resp.Kind)
	assert.Equal(t, "539", resp.Code)
	assert.Equal(t, "Rejeição: Duplicidade de NF-e com diferença na Chave de Acesso", resp.Message)
	assert.Nil(t, resp.ProcessedXML)

	resp, err = parseAuthorization(retEnvi("104", prot("302", "Uso Denegado: Irregularidade fiscal do destinatário", "135240000000002")), signed, testKey)
	require.NoError(t, err)
	assert.Equal(t, fiscal.ResponseRejected, resp.Kind)
	assert.True(t, resp.Denied())
	assert.Equal(t, "135240000000002", resp.Protocol)

	resp, err = parseAuthorization(retEnvi("103", `<infRec><nRec>351000000000001</nRec><tMed>1</tMed></infRec>`), signed, testKey)
	require.NoError(t, err)
	assert.Equal(t, fiscal.ResponseProcessing, resp.Kind)
	assert.Equal(t, "351000000000001", resp.Receipt)

	resp, err = parseAuthorization(retEnvi("225", ""), signed, testKey)
	require.NoError(t, err)
	assert.Equal(t, fiscal.ResponseRejected, resp.Kind)
	assert.Equal(t, "motivo 225", resp.Message)

	_, err = parseAuthorization(retEnvi("108", ""), signed, testKey)
	assert.Equal(t, fiscal.KindTransient, fiscal.KindOf(err))

	_, err = parseAuthorization(retEnvi("656", ""), signed, testKey)
	assert.Equal(t, fiscal.KindTransient, fiscal.KindOf(err))

	_, err = parseAuthorization([]byte("<lixo"), signed, testKey)
	assert.Equal(t, fiscal.KindUnknownOutcome, fiscal.KindOf(err))
}

func TestParseReceipt(t *testing.T) {
	ret := func(cStat, body string) []byte {
		return []byte(`<retConsReciNFe xmlns="http://www.portalfiscal.inf.br/nfe" versao="4.00"><nRec>351</nRec><cStat>` +
			cStat + `</cStat><xMotivo>m</xMotivo>` + body + `</retConsReciNFe>`)
	}
	resp, err := parseReceipt(ret("105", ""), nil, testKey)
	require.NoError(t, err)
	assert.Equal(t, fiscal.ResponseProcessing, resp.Kind)

	resp, err = parseReceipt(ret("106", ""), nil, testKey)
	require.NoError(t, err)
	assert.Equal(t, fiscal.ResponseNotFound, resp.Kind)

	resp, err = parseReceipt(ret("104", prot("100", "Autorizado", "1352")), nil, testKey)
	require.NoError(t, err)
	assert.Equal(t, fiscal.ResponseAuthorized, resp.Kind)
	assert.Nil(t, resp.ProcessedXML, "sem XML assinado não há nfeProc")

	_, err = parseReceipt(ret("104", prot("100", "Autorizado", "1352")), nil, "00000000000000000000000000000000000000000000")
	assert.Equal(t, fiscal.KindUnknownOutcome, fiscal.KindOf(err))
}

func TestParseStatus(t *testing.T) {
	ret := func(cStat, body string) []byte {
		return []byte(`<retConsSitNFe xmlns="http://www.portalfiscal.inf.br/nfe" versao="4.00"><tpAmb>2</tpAmb><cStat>` +
			cStat + `</cStat><xMotivo>motivo</xMotivo><cUF>35</cUF><chNFe>` + testKey + `</chNFe>` + body + `</retConsSitNFe>`)
	}
	resp, err := parseStatus(ret("100", prot("100", "Autorizado", "1352")), nil, testKey)
	require.NoError(t, err)
	assert.Equal(t, fiscal.ResponseAuthorized, resp.Kind)
	assert.Equal(t, "1352", resp.Protocol)

	resp, err = parseStatus(ret("217", ""), nil, testKey)
	require.NoError(t, err)
	assert.Equal(t, fiscal.ResponseNotFound, resp.Kind)
	assert.Equal(t, "motivo", resp.Message)

	resp, err = parseStatus(ret("101", prot("100", "Autorizado", "1352")+
		`<procEventoNFe versao="1.00"><retEvento versao="1.00"><infEvento><cStat>135</cStat><tpEvento>110111</tpEvento>`+
		`<nProt>1359</nProt><dhRegEvento>2024-01-15T11:00:00-03:00</dhRegEvento></infEvento></retEvento></procEventoNFe>`), nil, testKey)
	require.NoError(t, err)
	assert.Equal(t, fiscal.ResponseCancelled, resp.Kind)
	assert.Equal(t, "1359", resp.Protocol)

	resp, err = parseStatus(ret("110", ""), nil, testKey)
	require.NoError(t, err)
	assert.Equal(t, fiscal.ResponseRejected, resp.Kind)
	assert.True(t, resp.Denied())

	_, err = parseStatus(ret("226", ""), nil, testKey)
	assert.Equal(t, fiscal.KindTransient, fiscal.KindOf(err), "código sem decisão fica para a próxima consulta")
}

func TestParseEventAndVoid(t *testing.T) {
	ev := []byte(`<retEnvEvento xmlns="http://www.portalfiscal.inf.br/nfe" versao="1.00"><idLote>1</idLote><tpAmb>2</tpAmb>` +
		`<cStat>128</cStat><xMotivo>Lote de Evento Processado</xMotivo><retEvento versao="1.00"><infEvento>` +
		`<cStat>135</cStat><xMotivo>Evento registrado e vinculado a NF-e</xMotivo><chNFe>` + testKey + `</chNFe>` +
		`<tpEvento>110111</tpEvento><nProt>1359</nProt><dhRegEvento>2024-01-15T11:00:00-03:00</dhRegEvento>` +
		`</infEvento></retEvento></retEnvEvento>`)
	resp, err := parseEvent(ev)
	require.NoError(t, err)
	assert.Equal(t, fiscal.ResponseCancelled, resp.Kind)
	assert.Equal(t, "1359", resp.Protocol)
	assert.Contains(t, string(resp.ProtocolXML), "<retEvento")

	rej := []byte(`<retEnvEvento xmlns="http://www.portalfiscal.inf.br/nfe"><cStat>128</cStat><retEvento><infEvento>` +
		`<cStat>501</cStat><xMotivo>Rejeição: Prazo de cancelamento superior ao previsto na Legislação</xMotivo></infEvento></retEvento></retEnvEvento>`)
	resp, err = parseEvent(rej)
	require.NoError(t, err)
	assert.Equal(t, fiscal.ResponseRejected, resp.Kind)
	assert.Equal(t, "501", resp.Code)
	assert.Empty(t, resp.Protocol)

	inut := []byte(`<retInutNFe xmlns="http://www.portalfiscal.inf.br/nfe" versao="4.00"><infInut><tpAmb>2</tpAmb>` +
		`<cStat>102</cStat><xMotivo>Inutilização de número homologado</xMotivo><nProt>1357</nProt></infInut></retInutNFe>`)
	resp, err = parseVoid(inut)
	require.NoError(t, err)
	assert.Equal(t, fiscal.ResponseVoided, resp.Kind)
	assert.Equal(t, "1357", resp.Protocol)

	resp, err = parseVoid([]byte(`<retInutNFe><infInut><cStat>241</cStat><xMotivo>Rejeição: Um número da faixa já foi utilizado</xMotivo></infInut></retInutNFe>`))
	require.NoError(t, err)
	assert.Equal(t, fiscal.ResponseRejected, resp.Kind)
}
