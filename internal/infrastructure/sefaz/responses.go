package sefaz

import (
	"encoding/xml"
	"fmt"
	"time"

	"github.com/beevik/etree"
	"github.com/jhoicas/emissor-fiscal/internal/domain/fiscal"
	"github.com/jhoicas/emissor-fiscal/pkg/sefaz"
)

// ── Retornos dos serviços (leiaute 4.00) ─────────────────────────────────────

type infProt struct {
	ChNFe    string `xml:"chNFe"`
	DhRecbto string `xml:"dhRecbto"`
	NProt    string `xml:"nProt"`
	CStat    string `xml:"cStat"`
	XMotivo  string `xml:"xMotivo"`
}

type protNFe struct {
	InfProt infProt `xml:"infProt"`
}

type retEnviNFe struct {
	CStat    string `xml:"cStat"`
	XMotivo  string `xml:"xMotivo"`
	DhRecbto string `xml:"dhRecbto"`
	InfRec   *struct {
		NRec string `xml:"nRec"`
	} `xml:"infRec"`
	ProtNFe *protNFe `xml:"protNFe"`
}

type retConsReciNFe struct {
	NRec    string    `xml:"nRec"`
	CStat   string    `xml:"cStat"`
	XMotivo string    `xml:"xMotivo"`
	ProtNFe []protNFe `xml:"protNFe"`
}

type infEventoRet struct {
	CStat       string `xml:"cStat"`
	XMotivo     string `xml:"xMotivo"`
	ChNFe       string `xml:"chNFe"`
	TpEvento    string `xml:"tpEvento"`
	NProt       string `xml:"nProt"`
	DhRegEvento string `xml:"dhRegEvento"`
}

type retEvento struct {
	InfEvento infEventoRet `xml:"infEvento"`
}

type retConsSitNFe struct {
	CStat         string   `xml:"cStat"`
	XMotivo       string   `xml:"xMotivo"`
	ChNFe         string   `xml:"chNFe"`
	ProtNFe       *protNFe `xml:"protNFe"`
	ProcEventoNFe []struct {
		RetEvento retEvento `xml:"retEvento"`
	} `xml:"procEventoNFe"`
}

type retEnvEvento struct {
	CStat     string      `xml:"cStat"`
	XMotivo   string      `xml:"xMotivo"`
	RetEvento []retEvento `xml:"retEvento"`
}

type retInutNFe struct {
	InfInut struct {
		CStat    string `xml:"cStat"`
		XMotivo  string `xml:"xMotivo"`
		NProt    string `xml:"nProt"`
		DhRecbto string `xml:"dhRecbto"`
	} `xml:"infInut"`
}

func decode(inner []byte, v any) error {
	if err := xml.Unmarshal(inner, v); err != nil {
		return fmt.Errorf("sefaz: parsear retorno: %w", err)
	}
	return nil
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// unavailable 108, 109 e 656: a SEFAZ não processou o pedido.
func unavailable(code, msg string) error {
	if sefaz.Unavailable(code) {
		return fiscal.TransientFailure(fmt.Sprintf("SEFAZ indisponível [%s]: %s", code, msg), nil)
	}
	return nil
}

// fromProt resposta a partir do protNFe: autorizado, denegado ou rejeitado.
func fromProt(p protNFe, raw, signedXML []byte) *fiscal.AuthorityResponse {
	ip := p.InfProt
	resp := &fiscal.AuthorityResponse{
		Code:        ip.CStat,
		Message:     ip.XMotivo,
		AccessKey:   ip.ChNFe,
		Protocol:    ip.NProt,
		ReceivedAt:  parseTime(ip.DhRecbto),
		ProtocolXML: raw,
	}
	if sefaz.Authorized(ip.CStat) {
		resp.Kind = fiscal.ResponseAuthorized
		if len(signedXML) > 0 && len(raw) > 0 {
			resp.ProcessedXML = assembleProc(signedXML, raw)
		}
		return resp
	}
	resp.Kind = fiscal.ResponseRejected
	if !sefaz.Denied(ip.CStat) {
		resp.Protocol = ""
	}
	return resp
}

// rawElement primeiro elemento tag do retorno (com chNFe igual a key, se informada),
// serializado com o namespace da NF-e declarado.
func rawElement(inner []byte, tag, key string) []byte {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(inner); err != nil {
		return nil
	}
	for _, el := range doc.FindElements("//" + tag) {
		if key != "" {
			ch := el.FindElement(".//chNFe")
			if ch == nil || ch.Text() != key {
				continue
			}
		}
		cp := el.Copy()
		if cp.SelectAttr("xmlns") == nil {
			cp.CreateAttr("xmlns", NamespaceNFe)
		}
		out := etree.NewDocument()
		out.SetRoot(cp)
		b, err := out.WriteToBytes()
		if err != nil {
			return nil
		}
		return b
	}
	return nil
}

func parseAuthorization(inner, signedXML []byte, key string) (*fiscal.AuthorityResponse, error) {
	var ret retEnviNFe
	if err := decode(inner, &ret); err != nil {
		return nil, fiscal.UnknownOutcome("retorno da autorização ilegível", err)
	}
	if err := unavailable(ret.CStat, ret.XMotivo); err != nil {
		return nil, err
	}
	received := parseTime(ret.DhRecbto)
	switch ret.CStat {
	case sefaz.StatBatchReceived:
		if ret.InfRec == nil || ret.InfRec.NRec == "" {
			return nil, fiscal.UnknownOutcome("lote recebido sem número de recibo", nil)
		}
		return &fiscal.AuthorityResponse{Kind: fiscal.ResponseProcessing, Code: ret.CStat, Message: ret.XMotivo,
			Receipt: ret.InfRec.NRec, ReceivedAt: received}, nil
	case sefaz.StatBatchProcessed:
		if ret.ProtNFe == nil {
			return nil, fiscal.UnknownOutcome("lote processado sem protNFe", nil)
		}
		return fromProt(*ret.ProtNFe, rawElement(inner, "protNFe", key), signedXML), nil
	}
	// rejeição do lote inteiro (schema, duplicidade, emitente)
	return &fiscal.AuthorityResponse{Kind: fiscal.ResponseRejected, Code: ret.CStat, Message: ret.XMotivo, ReceivedAt: received}, nil
}

func parseReceipt(inner, signedXML []byte, key string) (*fiscal.AuthorityResponse, error) {
	var ret retConsReciNFe
	if err := decode(inner, &ret); err != nil {
		return nil, fiscal.TransientFailure("retorno da consulta de recibo ilegível", err)
	}
	if err := unavailable(ret.CStat, ret.XMotivo); err != nil {
		return nil, err
	}
	switch ret.CStat {
	case sefaz.StatBatchInProcess:
		return &fiscal.AuthorityResponse{Kind: fiscal.ResponseProcessing, Code: ret.CStat, Message: ret.XMotivo, Receipt: ret.NRec}, nil
	case sefaz.StatBatchNotFound:
		return &fiscal.AuthorityResponse{Kind: fiscal.ResponseNotFound, Code: ret.CStat, Message: ret.XMotivo, Receipt: ret.NRec}, nil
	case sefaz.StatBatchProcessed:
		for _, p := range ret.ProtNFe {
			if key == "" || p.InfProt.ChNFe == key {
				return fromProt(p, rawElement(inner, "protNFe", p.InfProt.ChNFe), signedXML), nil
			}
		}
		return nil, fiscal.UnknownOutcome("lote processado sem o protNFe da chave "+key, nil)
	}
	return &fiscal.AuthorityResponse{Kind: fiscal.ResponseRejected, Code: ret.CStat, Message: ret.XMotivo, Receipt: ret.NRec}, nil
}

// parseStatus consulta por chave. Códigos sem decisão sobre o documento viram erro:
// quem chamou tenta de novo no próximo ciclo.
func parseStatus(inner, signedXML []byte, key string) (*fiscal.AuthorityResponse, error) {
	var ret retConsSitNFe
	if err := decode(inner, &ret); err != nil {
		return nil, fiscal.TransientFailure("retorno da consulta ilegível", err)
	}
	if err := unavailable(ret.CStat, ret.XMotivo); err != nil {
		return nil, err
	}
	switch {
	case sefaz.Authorized(ret.CStat):
		if ret.ProtNFe == nil {
			return nil, fiscal.TransientFailure("consulta autorizada sem protNFe", nil)
		}
		return fromProt(*ret.ProtNFe, rawElement(inner, "protNFe", key), signedXML), nil
	case sefaz.CancelledStat(ret.CStat):
		resp := &fiscal.AuthorityResponse{Kind: fiscal.ResponseCancelled, Code: ret.CStat, Message: ret.XMotivo, AccessKey: key}
		for _, pe := range ret.ProcEventoNFe {
			if ie := pe.RetEvento.InfEvento; ie.TpEvento == sefaz.EventCancellation {
				resp.Protocol, resp.ReceivedAt = ie.NProt, parseTime(ie.DhRegEvento)
			}
		}
		return resp, nil
	case sefaz.Denied(ret.CStat):
		resp := &fiscal.AuthorityResponse{Kind: fiscal.ResponseRejected, Code: ret.CStat, Message: ret.XMotivo, AccessKey: key}
		if ret.ProtNFe != nil {
			resp = fromProt(*ret.ProtNFe, rawElement(inner, "protNFe", key), signedXML)
		}
		return resp, nil
	case ret.CStat == sefaz.StatNotFound:
		return &fiscal.AuthorityResponse{Kind: fiscal.ResponseNotFound, Code: ret.CStat, Message: ret.XMotivo, AccessKey: key}, nil
	}
	return nil, fiscal.TransientFailure(fmt.Sprintf("consulta sem decisão [%s]: %s", ret.CStat, ret.XMotivo), nil)
}

func parseEvent(inner []byte) (*fiscal.AuthorityResponse, error) {
	var ret retEnvEvento
	if err := decode(inner, &ret); err != nil {
		return nil, fiscal.UnknownOutcome("retorno do evento ilegível", err)
	}
	if err := unavailable(ret.CStat, ret.XMotivo); err != nil {
		return nil, err
	}
	if len(ret.RetEvento) == 0 {
		return &fiscal.AuthorityResponse{Kind: fiscal.ResponseRejected, Code: ret.CStat, Message: ret.XMotivo}, nil
	}
	ie := ret.RetEvento[0].InfEvento
	resp := &fiscal.AuthorityResponse{
		Kind:        fiscal.ResponseRejected,
		Code:        ie.CStat,
		Message:     ie.XMotivo,
		AccessKey:   ie.ChNFe,
		ReceivedAt:  parseTime(ie.DhRegEvento),
		ProtocolXML: rawElement(inner, "retEvento", ""),
	}
	switch ie.CStat {
	case sefaz.StatEventRegistered, sefaz.StatEventRegisteredLate, sefaz.StatCancelledEvent:
		resp.Kind, resp.Protocol = fiscal.ResponseCancelled, ie.NProt
	}
	return resp, nil
}

func parseVoid(inner []byte) (*fiscal.AuthorityResponse, error) {
	var ret retInutNFe
	if err := decode(inner, &ret); err != nil {
		return nil, fiscal.UnknownOutcome("retorno da inutilização ilegível", err)
	}
	ii := ret.InfInut
	if err := unavailable(ii.CStat, ii.XMotivo); err != nil {
		return nil, err
	}
	resp := &fiscal.AuthorityResponse{
		Kind:        fiscal.ResponseRejected,
		Code:        ii.CStat,
		Message:     ii.XMotivo,
		ReceivedAt:  parseTime(ii.DhRecbto),
		ProtocolXML: inner,
	}
	if ii.CStat == sefaz.StatVoided {
		resp.Kind, resp.Protocol = fiscal.ResponseVoided, ii.NProt
	}
	return resp, nil
}
