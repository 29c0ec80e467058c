// Package pdf gera a representação gráfica dos documentos autorizados:
// DANFE retrato (NF-e, A4) e DANFC-e (NFC-e, bobina de 80 mm).
//
// DANFE:
//
//	┌─────────────────────────────────────────────────────────────┐
//	│  EMITENTE: Razão social + endereço │ DANFE nº / série        │
//	│  CHAVE DE ACESSO (código de barras) + protocolo             │
//	│  DESTINATÁRIO                                               │
//	│  ITENS: Código | Descrição | NCM | CFOP | Qtd | Unit | Total │
//	│  TOTAIS                                                     │
//	│  DADOS ADICIONAIS                                           │
//	└─────────────────────────────────────────────────────────────┘
//
// Documentos de homologação levam a tarja SEM VALOR FISCAL.
package pdf

import (
	"fmt"
	"strings"

	maroto "github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/code"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/row"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/consts/pagesize"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/emissor-fiscal/internal/application/emission"
	"github.com/jhoicas/emissor-fiscal/internal/domain/entity"
	"github.com/jhoicas/emissor-fiscal/internal/domain/fiscal"
	"github.com/jhoicas/emissor-fiscal/pkg/sefaz"
)

// SandboxNotice tarja dos documentos emitidos em homologação.
const SandboxNotice = "SEM VALOR FISCAL"

var (
	colorPrimary = &props.Color{Red: 0, Green: 0, Blue: 0}
	colorGray    = &props.Color{Red: 100, Green: 100, Blue: 100}
	colorAlert   = &props.Color{Red: 200, Green: 0, Blue: 0}
)

var paymentLabels = map[string]string{
	sefaz.PaymentCash:       "Dinheiro",
	sefaz.PaymentCheck:      "Cheque",
	sefaz.PaymentCreditCard: "Cartão de Crédito",
	sefaz.PaymentDebitCard:  "Cartão de Débito",
	sefaz.PaymentPIX:        "PIX",
	sefaz.PaymentOther:      "Outros",
}

var _ emission.PDFGenerator = (*MarotoPDFGenerator)(nil)

// MarotoPDFGenerator implementa emission.PDFGenerator usando Maroto v2.
type MarotoPDFGenerator struct {
	compress bool
}

func NewMarotoPDFGenerator() *MarotoPDFGenerator { return &MarotoPDFGenerator{compress: true} }

// Render escolhe o leiaute pelo tipo do documento.
func (g *MarotoPDFGenerator) Render(doc *entity.TaxDocument, payload *fiscal.Payload) ([]byte, error) {
	if doc == nil || payload == nil {
		return nil, fmt.Errorf("pdf: documento sem payload")
	}
	var m core.Maroto
	if doc.DocType == entity.DocNFCe {
		m = g.danfce(doc, payload)
	} else {
		m = g.danfe(doc, payload)
	}
	out, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("pdf: gerar documento: %w", err)
	}
	return out.GetBytes(), nil
}

// ── DANFE (NF-e) ─────────────────────────────────────────────────────────────

func (g *MarotoPDFGenerator) danfe(doc *entity.TaxDocument, p *fiscal.Payload) core.Maroto {
	cfg := config.NewBuilder().
		WithPageSize(pagesize.A4).
		WithLeftMargin(10).WithRightMargin(10).
		WithTopMargin(10).WithBottomMargin(10).
		WithDefaultFont(&props.Font{Family: "helvetica", Size: 8}).
		WithCompression(g.compress).
		WithTitle("DANFE "+doc.AccessKey, true).
		WithAuthor(p.Issuer.Name, true).
		Build()
	m := maroto.New(cfg)

	if doc.Sandbox() {
		m.AddRows(sandboxRow(14))
	}
	m.AddRows(danfeHeaderRow(doc, p))
	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.4}))
	m.AddRows(accessKeyRows(doc)...)
	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.3}))
	m.AddRows(recipientRow(p))
	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.3}))

	m.AddRows(itemsHeaderRow())
	m.AddRows(itemRows(p.Items)...)

	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.3}))
	m.AddRows(totalsRow(p.Totals))
	m.AddRows(additionalInfoRow(doc, p))
	if doc.Status == entity.StatusCancelled {
		m.AddRows(cancelledRow(doc))
	}
	return m
}

func danfeHeaderRow(doc *entity.TaxDocument, p *fiscal.Payload) core.Row {
	a := p.Issuer.Address
	return row.New(24).Add(
		col.New(7).Add(
			text.New(p.Issuer.Name, props.Text{Style: fontstyle.Bold, Size: 11, Top: 1}),
			text.New(fmt.Sprintf("%s, %s - %s", a.Street, a.Number, a.District), props.Text{Size: 8, Top: 8, Color: colorGray}),
			text.New(fmt.Sprintf("%s/%s  CEP %s", a.City, a.UF, a.ZipCode), props.Text{Size: 8, Top: 12, Color: colorGray}),
			text.New(fmt.Sprintf("CNPJ %s   IE %s", formatCNPJ(p.Issuer.CNPJ), p.Issuer.StateRegistration), props.Text{Size: 8, Top: 16}),
		),
		col.New(5).Add(
			text.New("DANFE", props.Text{Style: fontstyle.Bold, Size: 13, Align: align.Right, Top: 1}),
			text.New("Documento Auxiliar da Nota Fiscal Eletrônica", props.Text{Size: 7, Align: align.Right, Top: 8}),
			text.New("1 - SAÍDA", props.Text{Size: 8, Align: align.Right, Top: 12}),
			text.New(fmt.Sprintf("Nº %09d   Série %03d", doc.Number, doc.Series), props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right, Top: 16}),
			text.New("Emissão: "+p.Ide.IssuedAt.Format("02/01/2006 15:04:05"), props.Text{Size: 7, Align: align.Right, Top: 20, Color: colorGray}),
		),
	)
}

func accessKeyRows(doc *entity.TaxDocument) []core.Row {
	key := keyOf(doc)
	rows := []core.Row{
		row.New(14).Add(col.New(12).Add(code.NewBar(key, props.Barcode{Percent: 90, Center: true}))),
		row.New(10).Add(col.New(12).Add(
			text.New("CHAVE DE ACESSO", props.Text{Style: fontstyle.Bold, Size: 7, Align: align.Center, Top: 1}),
			text.New(groupKey(key), props.Text{Size: 9, Align: align.Center, Top: 5}),
		)),
	}
	if doc.Protocol != "" {
		rows = append(rows, row.New(6).Add(col.New(12).Add(
			text.New("Protocolo de autorização: "+protocolLine(doc), props.Text{Size: 8, Align: align.Center, Top: 1}),
		)))
	}
	return rows
}

func recipientRow(p *fiscal.Payload) core.Row {
	r := p.Recipient
	if r == nil {
		return row.New(8).Add(col.New(12).Add(
			text.New("DESTINATÁRIO: CONSUMIDOR NÃO IDENTIFICADO", props.Text{Style: fontstyle.Bold, Size: 8, Top: 2}),
		))
	}
	address := ""
	if r.Address != nil {
		address = fmt.Sprintf("%s, %s - %s - %s/%s", r.Address.Street, r.Address.Number, r.Address.District, r.Address.City, r.Address.UF)
	}
	return row.New(16).Add(
		col.New(12).Add(
			text.New("DESTINATÁRIO", props.Text{Style: fontstyle.Bold, Size: 7, Top: 1}),
			text.New(nonEmpty(r.Name, "—"), props.Text{Style: fontstyle.Bold, Size: 9, Top: 5}),
			text.New(fmt.Sprintf("%s %s   IE %s", documentLabel(r), formatDocument(r.Document()), nonEmpty(r.StateRegistration, "—")), props.Text{Size: 8, Top: 9}),
			text.New(address, props.Text{Size: 8, Top: 12, Color: colorGray}),
		),
	)
}

func itemsHeaderRow() core.Row {
	h := func(label string, size int, a align.Type) core.Col {
		return col.New(size).Add(text.New(label, props.Text{Style: fontstyle.Bold, Size: 7, Align: a, Top: 2}))
	}
	return row.New(7).Add(
		h("Código", 1, align.Left),
		h("Descrição", 4, align.Left),
		h("NCM", 1, align.Center),
		h("CFOP", 1, align.Center),
		h("Qtd", 1, align.Right),
		h("Un", 1, align.Center),
		h("V. Unit", 1, align.Right),
		h("V. Total", 2, align.Right),
	)
}

func itemRows(items []fiscal.Item) []core.Row {
	out := make([]core.Row, 0, len(items))
	for _, it := range items {
		out = append(out, row.New(6).Add(
			col.New(1).Add(text.New(it.Code, props.Text{Size: 7, Top: 1})),
			col.New(4).Add(text.New(it.Description, props.Text{Size: 7, Top: 1})),
			col.New(1).Add(text.New(it.NCM, props.Text{Size: 7, Align: align.Center, Top: 1})),
			col.New(1).Add(text.New(it.CFOP, props.Text{Size: 7, Align: align.Center, Top: 1})),
			col.New(1).Add(text.New(formatQuantity(it.Quantity), props.Text{Size: 7, Align: align.Right, Top: 1})),
			col.New(1).Add(text.New(it.Unit, props.Text{Size: 7, Align: align.Center, Top: 1})),
			col.New(1).Add(text.New(formatMoney(it.UnitPrice), props.Text{Size: 7, Align: align.Right, Top: 1})),
			col.New(2).Add(text.New(formatMoney(it.Net()), props.Text{Size: 7, Align: align.Right, Top: 1})),
		))
	}
	return out
}

func totalsRow(t fiscal.Totals) core.Row {
	cell := func(label string, v decimal.Decimal, size int) core.Col {
		return col.New(size).Add(
			text.New(label, props.Text{Size: 6, Top: 1, Color: colorGray}),
			text.New(formatMoney(v), props.Text{Style: fontstyle.Bold, Size: 8, Align: align.Right, Top: 5}),
		)
	}
	return row.New(11).Add(
		cell("BASE DE CÁLCULO ICMS", t.ICMSBase, 2),
		cell("VALOR DO ICMS", t.ICMS, 2),
		cell("VALOR DOS PRODUTOS", t.Products, 2),
		cell("DESCONTO", t.Discount, 2),
		cell("PIS + COFINS", t.PIS.Add(t.COFINS), 2),
		cell("VALOR TOTAL DA NOTA", t.Total, 2),
	)
}

func additionalInfoRow(doc *entity.TaxDocument, p *fiscal.Payload) core.Row {
	info := p.AdditionalInfo
	if doc.Sandbox() {
		info = strings.TrimSpace(SandboxNotice + ". " + info)
	}
	return row.New(20).Add(col.New(12).Add(
		text.New("DADOS ADICIONAIS", props.Text{Style: fontstyle.Bold, Size: 7, Top: 2}),
		text.New(nonEmpty(info, "—"), props.Text{Size: 7, Top: 6}),
	))
}

// ── DANFC-e (NFC-e) ──────────────────────────────────────────────────────────

func (g *MarotoPDFGenerator) danfce(doc *entity.TaxDocument, p *fiscal.Payload) core.Maroto {
	height := 150 + 8*float64(len(p.Items))
	cfg := config.NewBuilder().
		WithDimensions(80, height).
		WithLeftMargin(3).WithRightMargin(3).
		WithTopMargin(3).WithBottomMargin(3).
		WithDefaultFont(&props.Font{Family: "helvetica", Size: 7}).
		WithCompression(g.compress).
		WithTitle("DANFC-e "+doc.AccessKey, true).
		WithAuthor(p.Issuer.Name, true).
		Build()
	m := maroto.New(cfg)

	center := func(s string, size float64, style fontstyle.Type) core.Row {
		return row.New(size/2 + 2).Add(col.New(12).Add(text.New(s, props.Text{Size: size, Style: style, Align: align.Center})))
	}

	if doc.Sandbox() {
		m.AddRows(sandboxRow(10))
	}
	a := p.Issuer.Address
	m.AddRows(
		center(p.Issuer.Name, 8, fontstyle.Bold),
		center("CNPJ "+formatCNPJ(p.Issuer.CNPJ)+"  IE "+p.Issuer.StateRegistration, 6, fontstyle.Normal),
		center(fmt.Sprintf("%s, %s - %s - %s/%s", a.Street, a.Number, a.District, a.City, a.UF), 6, fontstyle.Normal),
		line.NewRow(2),
		center("Documento Auxiliar da Nota Fiscal de Consumidor Eletrônica", 6, fontstyle.Bold),
		line.NewRow(2),
	)

	for _, it := range p.Items {
		m.AddRows(row.New(7).Add(
			col.New(8).Add(
				text.New(fmt.Sprintf("%03d %s", it.Number, it.Description), props.Text{Size: 6}),
				text.New(fmt.Sprintf("%s %s x %s", formatQuantity(it.Quantity), it.Unit, formatMoney(it.UnitPrice)), props.Text{Size: 6, Top: 3, Color: colorGray}),
			),
			col.New(4).Add(text.New(formatMoney(it.Net()), props.Text{Size: 6, Align: align.Right, Top: 3})),
		))
	}

	kv := func(label, value string, style fontstyle.Type) core.Row {
		return row.New(4).Add(
			col.New(8).Add(text.New(label, props.Text{Size: 7, Style: style})),
			col.New(4).Add(text.New(value, props.Text{Size: 7, Style: style, Align: align.Right})),
		)
	}
	m.AddRows(line.NewRow(2))
	m.AddRows(kv("Qtd. total de itens", fmt.Sprintf("%d", len(p.Items)), fontstyle.Normal))
	m.AddRows(kv("Valor total R$", formatMoney(p.Totals.Products), fontstyle.Normal))
	if p.Totals.Discount.IsPositive() {
		m.AddRows(kv("Desconto R$", formatMoney(p.Totals.Discount), fontstyle.Normal))
	}
	m.AddRows(kv("Valor a pagar R$", formatMoney(p.Totals.Total), fontstyle.Bold))
	paid := decimal.Zero
	for _, pay := range p.Payments {
		m.AddRows(kv(nonEmpty(paymentLabels[pay.Method], pay.Method), formatMoney(pay.Amount), fontstyle.Normal))
		paid = paid.Add(pay.Amount)
	}
	if change := paid.Sub(p.Totals.Total); change.IsPositive() {
		m.AddRows(kv("Troco R$", formatMoney(change), fontstyle.Normal))
	}

	m.AddRows(line.NewRow(2))
	consult := ""
	if p.Supplement != nil {
		consult = p.Supplement.URLKey
	}
	m.AddRows(
		center("Consulte pela chave de acesso em", 6, fontstyle.Normal),
		center(consult, 6, fontstyle.Normal),
		center(groupKey(keyOf(doc)), 6, fontstyle.Bold),
		line.NewRow(2),
	)
	consumer := "CONSUMIDOR NÃO IDENTIFICADO"
	if r := p.Recipient; r != nil {
		consumer = fmt.Sprintf("CONSUMIDOR %s %s %s", documentLabel(r), formatDocument(r.Document()), r.Name)
	}
	m.AddRows(
		center(strings.TrimSpace(consumer), 6, fontstyle.Normal),
		center(fmt.Sprintf("NFC-e nº %09d Série %03d %s", doc.Number, doc.Series, p.Ide.IssuedAt.Format("02/01/2006 15:04:05")), 6, fontstyle.Bold),
	)
	if doc.Protocol != "" {
		m.AddRows(center("Protocolo de autorização: "+protocolLine(doc), 6, fontstyle.Normal))
	}
	if p.Supplement != nil && p.Supplement.QRCode != "" {
		m.AddRows(row.New(40).Add(col.New(12).Add(code.NewQr(p.Supplement.QRCode, props.Rect{Percent: 90, Center: true}))))
	}
	if doc.Status == entity.StatusCancelled {
		m.AddRows(cancelledRow(doc))
	}
	if doc.Sandbox() {
		m.AddRows(sandboxRow(10))
	}
	return m
}

// ── helpers ───────────────────────────────────────────────────────────────────

func sandboxRow(height float64) core.Row {
	return row.New(height).Add(col.New(12).Add(
		text.New("EMITIDA EM AMBIENTE DE HOMOLOGAÇÃO - "+SandboxNotice, props.Text{
			Style: fontstyle.Bold, Size: height / 2, Align: align.Center, Color: colorAlert, Top: 1,
		}),
	))
}

func cancelledRow(doc *entity.TaxDocument) core.Row {
	return row.New(12).Add(col.New(12).Add(
		text.New("DOCUMENTO CANCELADO", props.Text{Style: fontstyle.Bold, Size: 11, Align: align.Center, Color: colorAlert, Top: 1}),
		text.New("Protocolo de cancelamento: "+doc.CancelProtocol, props.Text{Size: 7, Align: align.Center, Top: 7}),
	))
}

func keyOf(doc *entity.TaxDocument) string {
	if doc.AccessKey != "" {
		return doc.AccessKey
	}
	return doc.SubmissionKey
}

func protocolLine(doc *entity.TaxDocument) string {
	if doc.AuthorizedAt == nil {
		return doc.Protocol
	}
	return doc.Protocol + " " + doc.AuthorizedAt.Format("02/01/2006 15:04:05")
}

func nonEmpty(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}

// groupKey chave de acesso em blocos de 4 dígitos.
func groupKey(key string) string {
	var sb strings.Builder
	for i, c := range key {
		if i > 0 && i%4 == 0 {
			sb.WriteByte(' ')
		}
		sb.WriteRune(c)
	}
	return sb.String()
}

func formatCNPJ(cnpj string) string {
	d := sefaz.OnlyDigits(cnpj)
	if len(d) != 14 {
		return cnpj
	}
	return d[:2] + "." + d[2:5] + "." + d[5:8] + "/" + d[8:12] + "-" + d[12:]
}

func formatCPF(cpf string) string {
	d := sefaz.OnlyDigits(cpf)
	if len(d) != 11 {
		return cpf
	}
	return d[:3] + "." + d[3:6] + "." + d[6:9] + "-" + d[9:]
}

func formatDocument(doc string) string {
	if sefaz.IsCPF(doc) {
		return formatCPF(doc)
	}
	return formatCNPJ(doc)
}

func documentLabel(r *fiscal.Recipient) string {
	if r.CPF != "" {
		return "CPF"
	}
	return "CNPJ"
}

// formatMoney valor com separador de milhar "." e decimal ",".
// Ex: 1234567.5 → "1.234.567,50"
func formatMoney(v decimal.Decimal) string {
	s := v.Round(2).StringFixed(2)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	intPart, frac, _ := strings.Cut(s, ".")
	n := len(intPart)
	buf := make([]byte, 0, n+n/3+4)
	for i, c := range []byte(intPart) {
		if i > 0 && (n-i)%3 == 0 {
			buf = append(buf, '.')
		}
		buf = append(buf, c)
	}
	out := string(buf) + "," + frac
	if neg {
		return "-" + out
	}
	return out
}

// formatQuantity até 4 casas, sem zeros à direita.
func formatQuantity(q decimal.Decimal) string {
	return strings.ReplaceAll(q.Round(4).String(), ".", ",")
}
