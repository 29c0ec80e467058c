// Package fiscal contém as regras puras de emissão: montagem do payload, máquina de estados
// do documento e taxonomia de erros. Não faz I/O.
package fiscal

import (
	"fmt"
	"strings"
	"time"

	"github.com/jhoicas/emissor-fiscal/internal/domain/entity"
	"github.com/jhoicas/emissor-fiscal/pkg/sefaz"
	"github.com/shopspring/decimal"
)

// Alíquotas de PIS/COFINS (%) do regime normal, cumulativo e não cumulativo.
var (
	pisPresumido    = decimal.RequireFromString("0.65")
	cofinsPresumido = decimal.RequireFromString("3.00")
	pisReal         = decimal.RequireFromString("1.65")
	cofinsReal      = decimal.RequireFromString("7.60")
	hundred         = decimal.NewFromInt(100)
)

// DefaultOperation natureza da operação das vendas do PDV.
const DefaultOperation = "VENDA"

// BuildInput dados carregados pelo orquestrador para montar o documento.
type BuildInput struct {
	Sale     *entity.Sale
	Profile  *entity.FiscalProfile
	Customer *entity.Customer // opcional na NFC-e; obrigatório na NF-e
	DocType  entity.DocumentType
	VerProc  string
}

// Build valida a venda e monta o payload sem numeração. Todos os problemas encontrados
// são devolvidos juntos em um único ValidationFailed.
func Build(in BuildInput) (*Payload, error) {
	var errs []FieldError
	add := func(field, format string, args ...any) {
		errs = append(errs, FieldError{Field: field, Reason: fmt.Sprintf(format, args...)})
	}

	p, s := in.Profile, in.Sale
	if p == nil {
		return nil, ConfigurationIncomplete([]string{"perfil_fiscal"})
	}
	if missing := p.MissingFields(in.DocType); len(missing) > 0 {
		return nil, ConfigurationIncomplete(missing)
	}
	if s == nil {
		return nil, ValidationFailed([]FieldError{{Field: "venda", Reason: "venda não encontrada"}})
	}
	if !s.Finalized() {
		add("venda.status", "venda precisa estar concluída (status atual: %s)", s.Status)
	}
	if len(s.Items) == 0 {
		add("venda.itens", "venda sem itens")
	}

	issuerAddr := Address{
		Street:   cleanText(p.Street, maxStreetLen),
		Number:   cleanText(p.StreetNumber, maxNameLen),
		District: cleanText(p.District, maxNameLen),
		CityCode: p.CityCode,
		City:     cleanText(p.City, maxNameLen),
		UF:       strings.ToUpper(p.UF),
		ZipCode:  sefaz.OnlyDigits(p.ZipCode),
		Phone:    sefaz.OnlyDigits(p.Phone),
	}
	ufCode, ok := sefaz.UFCodes[issuerAddr.UF]
	if !ok {
		add("emitente.uf", "UF desconhecida %q", p.UF)
	}

	payload := &Payload{
		DocType:     in.DocType,
		Environment: p.Environment,
		Ide: Identification{
			UFCode:         ufCode,
			Operation:      DefaultOperation,
			Model:          in.DocType.Model(),
			Kind:           "1",
			Destination:    "1",
			CityCode:       p.CityCode,
			PrintType:      "1",
			EmissionType:   sefaz.EmissionNormal,
			Environment:    p.Environment.Code(),
			Purpose:        "1",
			FinalConsumer:  "0",
			Presence:       "1",
			ProcessType:    "0",
			ProcessVersion: in.VerProc,
		},
		Issuer: Issuer{
			CNPJ:              sefaz.OnlyDigits(p.CNPJ),
			Name:              cleanText(p.LegalName, maxNameLen),
			TradeName:         cleanText(p.TradeName, maxNameLen),
			Address:           issuerAddr,
			StateRegistration: sefaz.OnlyDigits(p.StateRegistration),
			CRT:               p.TaxRegime.CRT(),
		},
	}
	if in.DocType == entity.DocNFCe {
		payload.Ide.PrintType = "4"
		payload.Ide.FinalConsumer = "1"
	}

	// ── destinatário ──
	recipient, rErrs := buildRecipient(in.Customer, in.DocType, p.Environment)
	errs = append(errs, rErrs...)
	payload.Recipient = recipient
	if recipient != nil {
		if recipient.Address != nil && recipient.Address.UF != issuerAddr.UF && in.DocType == entity.DocNFe {
			payload.Ide.Destination = "2"
		}
		if in.DocType == entity.DocNFe && (recipient.CPF != "" || recipient.IEIndicator == "9") {
			payload.Ide.FinalConsumer = "1"
		}
	}

	// ── itens ──
	var gross decimal.Decimal
	for i, it := range s.Items {
		field := fmt.Sprintf("itens[%d]", i)
		prod := it.Product
		if prod == nil {
			add(field+".produto", "produto %s não encontrado", it.ProductID)
			continue
		}
		label := prod.Name
		if ncm := sefaz.OnlyDigits(prod.NCM); len(ncm) != 8 {
			add(field+".ncm", "produto %q sem NCM válido (8 dígitos)", label)
		}
		if strings.TrimSpace(prod.Unit) == "" {
			add(field+".unidade", "produto %q sem unidade comercial", label)
		}
		if !it.Quantity.IsPositive() {
			add(field+".quantidade", "quantidade deve ser maior que zero")
		}
		if it.UnitPrice.IsNegative() {
			add(field+".valor_unitario", "valor unitário negativo")
		}
		if p.TaxRegime != entity.RegimeSimplesNacional && prod.ICMSRate == nil {
			add(field+".aliquota_icms", "produto %q sem alíquota de ICMS (obrigatória no regime normal)", label)
		}

		subtotal := it.Subtotal
		if subtotal.IsZero() {
			subtotal = it.Quantity.Mul(it.UnitPrice).Round(2)
		}
		gross = gross.Add(subtotal)

		cfop := prod.CFOP
		if cfop == "" {
			cfop = sefaz.DefaultCFOP
		}
		if payload.Ide.Destination == "2" && strings.HasPrefix(cfop, "5") {
			cfop = "6" + cfop[1:]
		}
		ean := sefaz.OnlyDigits(prod.EAN)
		if ean == "" {
			ean = sefaz.WithoutGTIN
		}
		code := prod.Code
		if code == "" {
			code = prod.ID
		}
		payload.Items = append(payload.Items, Item{
			Number:      len(payload.Items) + 1,
			Code:        code,
			EAN:         ean,
			Description: cleanText(prod.Name, maxDescriptionLen),
			NCM:         sefaz.OnlyDigits(prod.NCM),
			CEST:        sefaz.OnlyDigits(prod.CEST),
			CFOP:        cfop,
			Unit:        strings.ToUpper(strings.TrimSpace(prod.Unit)),
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			Gross:       subtotal,
			Tax:         ItemTax{Origin: prod.Origin},
		})
	}

	// ── totais ──
	discount := s.Discount
	if discount.IsNegative() {
		add("venda.desconto", "desconto negativo")
	}
	if len(s.Items) > 0 {
		if !s.Total.IsZero() && !s.Total.Equal(gross) {
			add("venda.total", "total da venda (%s) difere da soma dos itens (%s)", s.Total.StringFixed(2), gross.StringFixed(2))
		}
		if expected := gross.Sub(discount); !s.NetTotal.Equal(expected) {
			add("venda.valor_final", "valor final (%s) difere de itens menos desconto (%s)", s.NetTotal.StringFixed(2), expected.StringFixed(2))
		}
		if discount.GreaterThan(gross) {
			add("venda.desconto", "desconto maior que o total dos itens")
		}
	}

	tPag, ok := sefaz.PaymentMethodCodes[strings.ToUpper(s.PaymentMethod)]
	if !ok {
		add("venda.forma_pagamento", "forma de pagamento desconhecida %q", s.PaymentMethod)
	}

	if len(errs) > 0 {
		return nil, ValidationFailed(errs)
	}

	apportionDiscount(payload.Items, discount, gross)
	for i := range payload.Items {
		var rate *decimal.Decimal
		if prod := s.Items[i].Product; prod != nil {
			rate = prod.ICMSRate
		}
		payload.Items[i].Tax = computeTax(payload.Items[i], p.TaxRegime, rate)
	}
	payload.Totals = sumTotals(payload.Items, discount)

	pay := Payment{Method: tPag, Amount: s.NetTotal}
	if sefaz.CardPayment(tPag) {
		pay.Integration = "2"
	}
	payload.Payments = []Payment{pay}

	if p.Environment.Sandbox() {
		if payload.Recipient != nil {
			payload.Recipient.Name = sefaz.HomologationNotice
		}
		if in.DocType == entity.DocNFCe && len(payload.Items) > 0 {
			payload.Items[0].Description = sefaz.HomologationNotice
		}
	}
	return payload, nil
}

func buildRecipient(c *entity.Customer, docType entity.DocumentType, env entity.Environment) (*Recipient, []FieldError) {
	if c == nil {
		if docType == entity.DocNFe {
			return nil, []FieldError{{Field: "destinatario", Reason: "NF-e exige destinatário identificado"}}
		}
		return nil, nil
	}

	var errs []FieldError
	doc := sefaz.OnlyDigits(c.Document)
	r := &Recipient{
		Name:        cleanText(c.Name, maxNameLen),
		IEIndicator: "9",
		Email:       strings.TrimSpace(c.Email),
	}
	if err := sefaz.ValidateTaxID(doc); err != nil {
		errs = append(errs, FieldError{Field: "destinatario.documento", Reason: err.Error()})
	} else if sefaz.IsCPF(doc) {
		r.CPF = doc
	} else {
		r.CNPJ = doc
	}

	if docType == entity.DocNFCe {
		// NFC-e: apenas identificação do consumidor, sem endereço nem IE
		return r, errs
	}

	if r.Name == "" && !env.Sandbox() {
		errs = append(errs, FieldError{Field: "destinatario.nome", Reason: "nome do destinatário obrigatório"})
	}
	if !c.HasAddress() {
		errs = append(errs, FieldError{Field: "destinatario.endereco", Reason: "endereço completo obrigatório na NF-e"})
	} else {
		r.Address = &Address{
			Street:   cleanText(c.Street, maxStreetLen),
			Number:   cleanText(c.StreetNumber, maxNameLen),
			District: cleanText(c.District, maxNameLen),
			CityCode: c.CityCode,
			City:     cleanText(c.City, maxNameLen),
			UF:       strings.ToUpper(c.UF),
			ZipCode:  sefaz.OnlyDigits(c.ZipCode),
			Phone:    sefaz.OnlyDigits(c.Phone),
		}
	}
	if ie := sefaz.OnlyDigits(c.StateRegistration); ie != "" && r.CNPJ != "" {
		r.IEIndicator = "1"
		r.StateRegistration = ie
	}
	return r, errs
}

// apportionDiscount rateia o desconto da venda proporcionalmente ao valor de cada item;
// o resíduo de arredondamento fica no último item.
func apportionDiscount(items []Item, discount, gross decimal.Decimal) {
	if len(items) == 0 || !discount.IsPositive() || !gross.IsPositive() {
		return
	}
	remaining := discount
	for i := range items {
		if i == len(items)-1 {
			items[i].Discount = remaining
			return
		}
		d := discount.Mul(items[i].Gross).Div(gross).Round(2)
		if d.GreaterThan(items[i].Gross) {
			d = items[i].Gross
		}
		items[i].Discount = d
		remaining = remaining.Sub(d)
	}
}

func computeTax(it Item, regime entity.TaxRegime, icmsRate *decimal.Decimal) ItemTax {
	tax := ItemTax{Origin: it.Tax.Origin}
	net := it.Net()
	if regime == entity.RegimeSimplesNacional {
		tax.CSOSN = sefaz.CSOSNWithoutCredit
		tax.PISCST = sefaz.CSTPISOther
		tax.COFINSCST = sefaz.CSTPISOther
		return tax
	}

	tax.CST = sefaz.CSTICMSFull
	tax.ICMSBase = net
	if icmsRate != nil {
		tax.ICMSRate = *icmsRate
	}
	tax.ICMSValue = percent(net, tax.ICMSRate)

	pis, cofins := pisPresumido, cofinsPresumido
	if regime == entity.RegimeLucroReal {
		pis, cofins = pisReal, cofinsReal
	}
	tax.PISCST, tax.COFINSCST = sefaz.CSTPISTaxable, sefaz.CSTPISTaxable
	tax.PISBase, tax.PISRate, tax.PISValue = net, pis, percent(net, pis)
	tax.COFINSBase, tax.COFINSRate, tax.COFINSValue = net, cofins, percent(net, cofins)
	return tax
}

func percent(base, rate decimal.Decimal) decimal.Decimal {
	return base.Mul(rate).Div(hundred).Round(2)
}

func sumTotals(items []Item, discount decimal.Decimal) Totals {
	var t Totals
	for _, it := range items {
		t.Products = t.Products.Add(it.Gross)
		t.ICMSBase = t.ICMSBase.Add(it.Tax.ICMSBase)
		t.ICMS = t.ICMS.Add(it.Tax.ICMSValue)
		t.PIS = t.PIS.Add(it.Tax.PISValue)
		t.COFINS = t.COFINS.Add(it.Tax.COFINSValue)
	}
	t.Discount = discount
	t.Total = t.Products.Sub(discount)
	return t
}

// Numbering dados definidos no momento da reserva.
type Numbering struct {
	Series      int
	Number      int64
	NumericCode string // vazio = sortear
	IssuedAt    time.Time
	CSCID       string // NFC-e
	CSCToken    string // NFC-e, já aberto
}

// Assign numera o payload, calcula a chave de acesso e, na NFC-e, o QR Code.
func (p *Payload) Assign(n Numbering) error {
	code := n.NumericCode
	if code == "" {
		var err error
		if code, err = sefaz.NewNumericCode(n.Number); err != nil {
			return err
		}
	}
	key, err := sefaz.BuildAccessKey(sefaz.AccessKeyParams{
		UFCode:       p.Ide.UFCode,
		IssuedAt:     n.IssuedAt,
		CNPJ:         p.Issuer.CNPJ,
		Model:        p.Ide.Model,
		Series:       n.Series,
		Number:       n.Number,
		EmissionType: p.Ide.EmissionType,
		NumericCode:  code,
	})
	if err != nil {
		return fmt.Errorf("fiscal: chave de acesso: %w", err)
	}

	p.Ide.Series = n.Series
	p.Ide.Number = n.Number
	p.Ide.NumericCode = code
	p.Ide.IssuedAt = n.IssuedAt
	p.Ide.AccessKey = key
	p.Ide.CheckDigit = int(key[43] - '0')

	if p.DocType != entity.DocNFCe {
		return nil
	}
	urls := sefaz.NFCeURLsFor(p.Issuer.Address.UF, p.Ide.Environment)
	qr, err := sefaz.BuildQRCode(sefaz.QRCodeParams{
		AccessKey:   key,
		Environment: p.Ide.Environment,
		CSCID:       n.CSCID,
		CSCToken:    n.CSCToken,
		BaseURL:     urls.QRCode,
	})
	if err != nil {
		return fmt.Errorf("fiscal: QR Code: %w", err)
	}
	p.Supplement = &Supplement{QRCode: qr, URLKey: urls.AccessKey}
	return nil
}
