package sefaz

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"
	"time"

	"github.com/jhoicas/emissor-fiscal/internal/domain/fiscal"
	"github.com/jhoicas/emissor-fiscal/pkg/sefaz"
	"github.com/shopspring/decimal"
)

// NamespaceNFe namespace dos schemas do Portal da NF-e.
const NamespaceNFe = "http://www.portalfiscal.inf.br/nfe"

const (
	countryCode = "1058"
	countryName = "BRASIL"
	dateLayout  = "2006-01-02T15:04:05-07:00"
)

// xmlWriter encadeia tokens e guarda o primeiro erro.
type xmlWriter struct {
	enc *xml.Encoder
	err error
}

func newXMLWriter(buf *bytes.Buffer) *xmlWriter {
	return &xmlWriter{enc: xml.NewEncoder(buf)}
}

func (w *xmlWriter) token(t xml.Token) {
	if w.err == nil {
		w.err = w.enc.EncodeToken(t)
	}
}

// open abre o elemento; attrs em pares nome, valor.
func (w *xmlWriter) open(local string, attrs ...string) {
	start := xml.StartElement{Name: xml.Name{Local: local}}
	for i := 0; i+1 < len(attrs); i += 2 {
		start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: attrs[i]}, Value: attrs[i+1]})
	}
	w.token(start)
}

func (w *xmlWriter) close(local string) {
	w.token(xml.EndElement{Name: xml.Name{Local: local}})
}

func (w *xmlWriter) elem(local, value string) {
	w.open(local)
	w.token(xml.CharData(value))
	w.close(local)
}

func (w *xmlWriter) optional(local, value string) {
	if value != "" {
		w.elem(local, value)
	}
}

func (w *xmlWriter) flush() error {
	if w.err == nil {
		w.err = w.enc.Flush()
	}
	return w.err
}

// BuildNFe serializa o payload numerado como <NFe> (sem assinatura).
func BuildNFe(p *fiscal.Payload) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("sefaz: payload vazio")
	}
	if len(p.Ide.AccessKey) != sefaz.AccessKeyLength {
		return nil, fmt.Errorf("sefaz: payload sem chave de acesso (numeração não atribuída)")
	}
	if len(p.Items) == 0 {
		return nil, fmt.Errorf("sefaz: documento sem itens")
	}
	var buf bytes.Buffer
	w := newXMLWriter(&buf)

	w.open("NFe", "xmlns", NamespaceNFe)
	w.open("infNFe", "versao", sefaz.LayoutVersion, "Id", "NFe"+p.Ide.AccessKey)
	writeIde(w, p.Ide)
	writeEmit(w, p.Issuer)
	if p.Recipient != nil {
		writeDest(w, p.Recipient)
	}
	for _, it := range p.Items {
		if err := writeDet(w, it); err != nil {
			return nil, err
		}
	}
	writeTotal(w, p.Totals)
	w.open("transp")
	w.elem("modFrete", "9") // sem frete
	w.close("transp")
	writePag(w, p.Payments, p.Totals.Total)
	if p.AdditionalInfo != "" {
		w.open("infAdic")
		w.elem("infCpl", p.AdditionalInfo)
		w.close("infAdic")
	}
	w.close("infNFe")
	if p.Supplement != nil {
		w.open("infNFeSupl")
		w.elem("qrCode", p.Supplement.QRCode)
		w.elem("urlChave", p.Supplement.URLKey)
		w.close("infNFeSupl")
	}
	w.close("NFe")
	if err := w.flush(); err != nil {
		return nil, fmt.Errorf("sefaz: serializar NFe: %w", err)
	}
	return buf.Bytes(), nil
}

func writeIde(w *xmlWriter, ide fiscal.Identification) {
	w.open("ide")
	w.elem("cUF", ide.UFCode)
	w.elem("cNF", ide.NumericCode)
	w.elem("natOp", ide.Operation)
	w.elem("mod", ide.Model)
	w.elem("serie", strconv.Itoa(ide.Series))
	w.elem("nNF", strconv.FormatInt(ide.Number, 10))
	w.elem("dhEmi", ide.IssuedAt.Format(dateLayout))
	w.elem("tpNF", ide.Kind)
	w.elem("idDest", ide.Destination)
	w.elem("cMunFG", ide.CityCode)
	w.elem("tpImp", ide.PrintType)
	w.elem("tpEmis", ide.EmissionType)
	w.elem("cDV", strconv.Itoa(ide.CheckDigit))
	w.elem("tpAmb", ide.Environment)
	w.elem("finNFe", ide.Purpose)
	w.elem("indFinal", ide.FinalConsumer)
	w.elem("indPres", ide.Presence)
	w.elem("procEmi", ide.ProcessType)
	w.elem("verProc", ide.ProcessVersion)
	w.close("ide")
}

func writeAddress(w *xmlWriter, tag string, a fiscal.Address) {
	w.open(tag)
	w.elem("xLgr", a.Street)
	w.elem("nro", a.Number)
	w.elem("xBairro", a.District)
	w.elem("cMun", a.CityCode)
	w.elem("xMun", a.City)
	w.elem("UF", a.UF)
	w.optional("CEP", a.ZipCode)
	w.elem("cPais", countryCode)
	w.elem("xPais", countryName)
	w.optional("fone", a.Phone)
	w.close(tag)
}

func writeEmit(w *xmlWriter, e fiscal.Issuer) {
	w.open("emit")
	w.elem("CNPJ", e.CNPJ)
	w.elem("xNome", e.Name)
	w.optional("xFant", e.TradeName)
	writeAddress(w, "enderEmit", e.Address)
	w.elem("IE", e.StateRegistration)
	w.elem("CRT", e.CRT)
	w.close("emit")
}

func writeDest(w *xmlWriter, d *fiscal.Recipient) {
	w.open("dest")
	if d.CNPJ != "" {
		w.elem("CNPJ", d.CNPJ)
	} else {
		w.elem("CPF", d.CPF)
	}
	w.optional("xNome", d.Name)
	if d.Address != nil {
		writeAddress(w, "enderDest", *d.Address)
	}
	w.elem("indIEDest", d.IEIndicator)
	w.optional("IE", d.StateRegistration)
	w.optional("email", d.Email)
	w.close("dest")
}

func writeDet(w *xmlWriter, it fiscal.Item) error {
	ean := it.EAN
	if ean == "" {
		ean = sefaz.WithoutGTIN
	}
	w.open("det", "nItem", strconv.Itoa(it.Number))
	w.open("prod")
	w.elem("cProd", it.Code)
	w.elem("cEAN", ean)
	w.elem("xProd", it.Description)
	w.elem("NCM", it.NCM)
	w.optional("CEST", it.CEST)
	w.elem("CFOP", it.CFOP)
	w.elem("uCom", it.Unit)
	w.elem("qCom", quantity(it.Quantity))
	w.elem("vUnCom", quantity(it.UnitPrice))
	w.elem("vProd", money(it.Gross))
	w.elem("cEANTrib", ean)
	w.elem("uTrib", it.Unit)
	w.elem("qTrib", quantity(it.Quantity))
	w.elem("vUnTrib", quantity(it.UnitPrice))
	if it.Discount.IsPositive() {
		w.elem("vDesc", money(it.Discount))
	}
	w.elem("indTot", "1")
	w.close("prod")

	w.open("imposto")
	if err := writeICMS(w, it.Tax); err != nil {
		return fmt.Errorf("sefaz: item %d: %w", it.Number, err)
	}
	writeContribution(w, "PIS", it.Tax.PISCST, it.Tax.PISBase, it.Tax.PISRate, it.Tax.PISValue)
	writeContribution(w, "COFINS", it.Tax.COFINSCST, it.Tax.COFINSBase, it.Tax.COFINSRate, it.Tax.COFINSValue)
	w.close("imposto")
	w.close("det")
	return nil
}

func writeICMS(w *xmlWriter, t fiscal.ItemTax) error {
	orig := strconv.Itoa(t.Origin)
	w.open("ICMS")
	switch {
	case t.CSOSN != "":
		var group string
		switch t.CSOSN {
		case "102", "103", "300", "400":
			group = "ICMSSN102"
		case "500":
			group = "ICMSSN500"
		case "900":
			group = "ICMSSN900"
		default:
			return fmt.Errorf("CSOSN %s não suportado", t.CSOSN)
		}
		w.open(group)
		w.elem("orig", orig)
		w.elem("CSOSN", t.CSOSN)
		w.close(group)
	case t.CST == sefaz.CSTICMSFull:
		w.open("ICMS00")
		w.elem("orig", orig)
		w.elem("CST", t.CST)
		w.elem("modBC", sefaz.ICMSBaseModeValue)
		w.elem("vBC", money(t.ICMSBase))
		w.elem("pICMS", percentRate(t.ICMSRate))
		w.elem("vICMS", money(t.ICMSValue))
		w.close("ICMS00")
	case t.CST == "40" || t.CST == "41" || t.CST == "50":
		w.open("ICMS40")
		w.elem("orig", orig)
		w.elem("CST", t.CST)
		w.close("ICMS40")
	default:
		return fmt.Errorf("CST de ICMS %q não suportado", t.CST)
	}
	w.close("ICMS")
	return nil
}

// writeContribution grupos PIS/COFINS: Aliq (CST 01/02), NT (04 a 09) ou Outr.
func writeContribution(w *xmlWriter, tax, cst string, base, r, value decimal.Decimal) {
	w.open(tax)
	switch cst {
	case "01", "02":
		group := tax + "Aliq"
		w.open(group)
		w.elem("CST", cst)
		w.elem("vBC", money(base))
		w.elem("p"+tax, percentRate(r))
		w.elem("v"+tax, money(value))
		w.close(group)
	case "04", "05", "06", "07", "08", "09":
		group := tax + "NT"
		w.open(group)
		w.elem("CST", cst)
		w.close(group)
	default:
		group := tax + "Outr"
		w.open(group)
		w.elem("CST", cst)
		w.elem("vBC", money(base))
		w.elem("p"+tax, percentRate(r))
		w.elem("v"+tax, money(value))
		w.close(group)
	}
	w.close(tax)
}

func writeTotal(w *xmlWriter, t fiscal.Totals) {
	zero := money(decimal.Zero)
	w.open("total")
	w.open("ICMSTot")
	w.elem("vBC", money(t.ICMSBase))
	w.elem("vICMS", money(t.ICMS))
	w.elem("vICMSDeson", zero)
	w.elem("vFCP", zero)
	w.elem("vBCST", zero)
	w.elem("vST", zero)
	w.elem("vFCPST", zero)
	w.elem("vFCPSTRet", zero)
	w.elem("vProd", money(t.Products))
	w.elem("vFrete", zero)
	w.elem("vSeg", zero)
	w.elem("vDesc", money(t.Discount))
	w.elem("vII", zero)
	w.elem("vIPI", zero)
	w.elem("vIPIDevol", zero)
	w.elem("vPIS", money(t.PIS))
	w.elem("vCOFINS", money(t.COFINS))
	w.elem("vOutro", zero)
	w.elem("vNF", money(t.Total))
	w.close("ICMSTot")
	w.close("total")
}

func writePag(w *xmlWriter, payments []fiscal.Payment, total decimal.Decimal) {
	paid := decimal.Zero
	w.open("pag")
	for _, pg := range payments {
		paid = paid.Add(pg.Amount)
		w.open("detPag")
		w.elem("tPag", pg.Method)
		w.elem("vPag", money(pg.Amount))
		if pg.Integration != "" {
			w.open("card")
			w.elem("tpIntegra", pg.Integration)
			w.close("card")
		}
		w.close("detPag")
	}
	if change := paid.Sub(total); change.IsPositive() {
		w.elem("vTroco", money(change))
	}
	w.close("pag")
}

// BuildCancelEvent monta o envEvento com o evento 110111 (infEvento sem assinatura).
func BuildCancelEvent(req fiscal.CancelRequest, ufCode, tpAmb string) ([]byte, error) {
	if len(req.AccessKey) != sefaz.AccessKeyLength {
		return nil, fmt.Errorf("sefaz: chave de acesso inválida")
	}
	if req.Protocol == "" {
		return nil, fmt.Errorf("sefaz: protocolo de autorização obrigatório para cancelar")
	}
	if err := fiscal.ValidateJustification(req.Justification); err != nil {
		return nil, err
	}
	seq := req.Sequence
	if seq < 1 {
		seq = 1
	}
	at := req.At
	if at.IsZero() {
		at = time.Now()
	}
	var buf bytes.Buffer
	w := newXMLWriter(&buf)
	w.open("envEvento", "xmlns", NamespaceNFe, "versao", sefaz.EventVersion)
	w.elem("idLote", batchID(at))
	w.open("evento", "versao", sefaz.EventVersion)
	w.open("infEvento", "Id", fmt.Sprintf("ID%s%s%02d", sefaz.EventCancellation, req.AccessKey, seq))
	w.elem("cOrgao", ufCode)
	w.elem("tpAmb", tpAmb)
	w.elem("CNPJ", sefaz.OnlyDigits(req.CNPJ))
	w.elem("chNFe", req.AccessKey)
	w.elem("dhEvento", at.Format(dateLayout))
	w.elem("tpEvento", sefaz.EventCancellation)
	w.elem("nSeqEvento", strconv.Itoa(seq))
	w.elem("verEvento", sefaz.EventVersion)
	w.open("detEvento", "versao", sefaz.EventVersion)
	w.elem("descEvento", "Cancelamento")
	w.elem("nProt", req.Protocol)
	w.elem("xJust", req.Justification)
	w.close("detEvento")
	w.close("infEvento")
	w.close("evento")
	w.close("envEvento")
	if err := w.flush(); err != nil {
		return nil, fmt.Errorf("sefaz: serializar evento: %w", err)
	}
	return buf.Bytes(), nil
}

// BuildVoid monta o inutNFe da faixa (infInut sem assinatura).
func BuildVoid(req fiscal.VoidRequest, ufCode, tpAmb string) ([]byte, error) {
	cnpj := sefaz.OnlyDigits(req.CNPJ)
	if len(cnpj) != 14 {
		return nil, fmt.Errorf("sefaz: CNPJ inválido para inutilização")
	}
	if req.From < 1 || req.To < req.From || req.To > sefaz.MaxNumber {
		return nil, fmt.Errorf("sefaz: faixa inválida %d-%d", req.From, req.To)
	}
	if req.Series < 0 || req.Series > 999 {
		return nil, fmt.Errorf("sefaz: série inválida %d", req.Series)
	}
	if err := fiscal.ValidateJustification(req.Justification); err != nil {
		return nil, err
	}
	year := fmt.Sprintf("%02d", req.Year%100)
	id := fmt.Sprintf("ID%s%s%s%s%03d%09d%09d", ufCode, year, cnpj, req.Model, req.Series, req.From, req.To)

	var buf bytes.Buffer
	w := newXMLWriter(&buf)
	w.open("inutNFe", "xmlns", NamespaceNFe, "versao", sefaz.LayoutVersion)
	w.open("infInut", "Id", id)
	w.elem("tpAmb", tpAmb)
	w.elem("xServ", "INUTILIZAR")
	w.elem("cUF", ufCode)
	w.elem("ano", year)
	w.elem("CNPJ", cnpj)
	w.elem("mod", req.Model)
	w.elem("serie", strconv.Itoa(req.Series))
	w.elem("nNFIni", strconv.FormatInt(req.From, 10))
	w.elem("nNFFin", strconv.FormatInt(req.To, 10))
	w.elem("xJust", req.Justification)
	w.close("infInut")
	w.close("inutNFe")
	if err := w.flush(); err != nil {
		return nil, fmt.Errorf("sefaz: serializar inutilização: %w", err)
	}
	return buf.Bytes(), nil
}

// buildEnviNFe lote síncrono com uma NF-e já assinada; o XML assinado entra byte a byte.
func buildEnviNFe(signed []byte, at time.Time) []byte {
	var b bytes.Buffer
	b.WriteString(`<enviNFe xmlns="` + NamespaceNFe + `" versao="` + sefaz.LayoutVersion + `">`)
	b.WriteString(`<idLote>` + batchID(at) + `</idLote><indSinc>1</indSinc>`)
	b.Write(stripDeclaration(signed))
	b.WriteString(`</enviNFe>`)
	return b.Bytes()
}

func buildConsReci(receipt, tpAmb string) []byte {
	var buf bytes.Buffer
	w := newXMLWriter(&buf)
	w.open("consReciNFe", "xmlns", NamespaceNFe, "versao", sefaz.LayoutVersion)
	w.elem("tpAmb", tpAmb)
	w.elem("nRec", receipt)
	w.close("consReciNFe")
	_ = w.flush()
	return buf.Bytes()
}

func buildConsSit(accessKey, tpAmb string) []byte {
	var buf bytes.Buffer
	w := newXMLWriter(&buf)
	w.open("consSitNFe", "xmlns", NamespaceNFe, "versao", sefaz.LayoutVersion)
	w.elem("tpAmb", tpAmb)
	w.elem("xServ", "CONSULTAR")
	w.elem("chNFe", accessKey)
	w.close("consSitNFe")
	_ = w.flush()
	return buf.Bytes()
}

// assembleProc nfeProc = NFe assinada + protNFe da autorização.
func assembleProc(signed, prot []byte) []byte {
	var b bytes.Buffer
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	b.WriteString(`<nfeProc xmlns="` + NamespaceNFe + `" versao="` + sefaz.LayoutVersion + `">`)
	b.Write(stripDeclaration(signed))
	b.Write(prot)
	b.WriteString(`</nfeProc>`)
	return b.Bytes()
}

func stripDeclaration(doc []byte) []byte {
	doc = bytes.TrimSpace(doc)
	if bytes.HasPrefix(doc, []byte("<?xml")) {
		if i := bytes.Index(doc, []byte("?>")); i >= 0 {
			return bytes.TrimSpace(doc[i+2:])
		}
	}
	return doc
}

// batchID idLote de 15 dígitos derivado do instante do envio.
func batchID(at time.Time) string {
	return fmt.Sprintf("%015d", at.UnixNano()/int64(time.Microsecond)%1_000_000_000_000_000)
}

func money(d decimal.Decimal) string {
	return d.Round(2).StringFixed(2)
}

func quantity(d decimal.Decimal) string {
	return d.StringFixed(4)
}

func percentRate(d decimal.Decimal) string {
	return d.StringFixed(4)
}
