// Cliente dos web services NF-e/NFC-e 4.00: certificado A1, assinatura e transmissão.

package sefaz

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jhoicas/emissor-fiscal/internal/application/emission"
	"github.com/jhoicas/emissor-fiscal/internal/domain/fiscal"
	"github.com/jhoicas/emissor-fiscal/internal/infrastructure/sefaz/signer"
	"github.com/jhoicas/emissor-fiscal/pkg/config"
	"github.com/jhoicas/emissor-fiscal/pkg/sefaz"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

var _ emission.SigningTransmissionClient = (*Client)(nil)

// Client implementa emission.SigningTransmissionClient.
type Client struct {
	signer    sefaz.Signer
	soap      *soapTransport
	endpoints *Endpoints
	queries   *rate.Limiter
	now       func() time.Time
	log       zerolog.Logger
}

// NewClient monta o cliente a partir da configuração SEFAZ_*.
func NewClient(cfg config.SEFAZConfig, log zerolog.Logger) (*Client, error) {
	soap, err := newSOAPTransport(cfg, log)
	if err != nil {
		return nil, err
	}
	limit := rate.Inf
	if cfg.QueryRate > 0 {
		limit = rate.Limit(cfg.QueryRate)
	}
	burst := cfg.QueryBurst
	if burst < 1 {
		burst = 1
	}
	return &Client{
		signer:    signer.NewXMLDSigService(),
		soap:      soap,
		endpoints: NewEndpoints(cfg.EndpointBaseURL),
		queries:   rate.NewLimiter(limit, burst),
		now:       time.Now,
		log:       log,
	}, nil
}

// LoadCertificate decodifica o A1 e confere a validade em now.
func (c *Client) LoadCertificate(archive []byte, passphrase string, now time.Time) (*fiscal.Certificate, error) {
	tlsCert, err := signer.LoadFromP12(archive, passphrase)
	if err != nil {
		if errors.Is(err, signer.ErrWrongPassword) {
			return nil, fiscal.CertificateError("senha do certificado incorreta", err)
		}
		return nil, fiscal.CertificateError("arquivo de certificado inválido", err)
	}
	leaf := tlsCert.Leaf
	if now.Before(leaf.NotBefore) {
		return nil, fiscal.CertificateError(fmt.Sprintf("certificado válido somente a partir de %s", leaf.NotBefore.Format("02/01/2006")), nil)
	}
	if now.After(leaf.NotAfter) {
		return nil, fiscal.CertificateError(fmt.Sprintf("certificado vencido em %s", leaf.NotAfter.Format("02/01/2006")), nil)
	}
	return &fiscal.Certificate{
		TLS:         tlsCert,
		Subject:     leaf.Subject.CommonName,
		CNPJ:        signer.CNPJFromSubject(leaf.Subject.CommonName),
		NotBefore:   leaf.NotBefore,
		NotAfter:    leaf.NotAfter,
		Fingerprint: signer.Fingerprint(leaf),
	}, nil
}

// Sign serializa e assina infNFe.
func (c *Client) Sign(payload *fiscal.Payload, cert *fiscal.Certificate) (*fiscal.SignedDocument, error) {
	raw, err := BuildNFe(payload)
	if err != nil {
		return nil, fiscal.ValidationFailed([]fiscal.FieldError{{Field: "xml", Reason: err.Error()}})
	}
	signed, err := c.signer.Sign(raw, "infNFe", cert.TLS)
	if err != nil {
		return nil, fiscal.CertificateError("falha ao assinar o XML", err)
	}
	return &fiscal.SignedDocument{
		AccessKey: payload.Ide.AccessKey,
		Route: fiscal.Route{
			UF:          payload.Issuer.Address.UF,
			UFCode:      payload.Ide.UFCode,
			Model:       payload.Ide.Model,
			Environment: payload.Environment,
		},
		XML: signed,
	}, nil
}

// Transmit envia o lote síncrono. Duplicidade (204) é resolvida com uma consulta pela chave:
// a SEFAZ já tem um documento com esse número.
func (c *Client) Transmit(ctx context.Context, signed *fiscal.SignedDocument, cert *fiscal.Certificate) (*fiscal.AuthorityResponse, error) {
	url, err := c.endpoints.URL(signed.Route, ServiceAuthorization)
	if err != nil {
		return nil, fiscal.ConfigurationIncomplete([]string{"web_service_" + signed.Route.UF})
	}
	inner, err := c.soap.call(ctx, url, ServiceAuthorization, buildEnviNFe(signed.XML, c.now()), cert, false)
	if err != nil {
		return nil, err
	}
	resp, err := parseAuthorization(inner, signed.XML, signed.AccessKey)
	if err != nil {
		return nil, err
	}
	c.log.Info().Str("chave", signed.AccessKey).Str("cstat", resp.Code).Str("xmotivo", resp.Message).Msg("retorno da autorização")
	if resp.Code == sefaz.StatDuplicate {
		dup, qErr := c.QueryStatus(ctx, signed.Route, signed.AccessKey, signed.XML, cert)
		if qErr != nil {
			return nil, fiscal.UnknownOutcome("duplicidade informada pela SEFAZ; consulta falhou", qErr)
		}
		if dup.Kind == fiscal.ResponseNotFound {
			return resp, nil
		}
		return dup, nil
	}
	return resp, nil
}

func (c *Client) PollReceipt(ctx context.Context, route fiscal.Route, receipt string, signedXML []byte, cert *fiscal.Certificate) (*fiscal.AuthorityResponse, error) {
	url, err := c.endpoints.URL(route, ServiceReturn)
	if err != nil {
		return nil, fiscal.ConfigurationIncomplete([]string{"web_service_" + route.UF})
	}
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	inner, err := c.soap.call(ctx, url, ServiceReturn, buildConsReci(receipt, route.Environment.Code()), cert, true)
	if err != nil {
		return nil, err
	}
	return parseReceipt(inner, signedXML, keyOf(signedXML))
}

func (c *Client) QueryStatus(ctx context.Context, route fiscal.Route, accessKey string, signedXML []byte, cert *fiscal.Certificate) (*fiscal.AuthorityResponse, error) {
	url, err := c.endpoints.URL(route, ServiceQuery)
	if err != nil {
		return nil, fiscal.ConfigurationIncomplete([]string{"web_service_" + route.UF})
	}
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	inner, err := c.soap.call(ctx, url, ServiceQuery, buildConsSit(accessKey, route.Environment.Code()), cert, true)
	if err != nil {
		return nil, err
	}
	return parseStatus(inner, signedXML, accessKey)
}

// Cancel registra o evento 110111.
func (c *Client) Cancel(ctx context.Context, route fiscal.Route, req fiscal.CancelRequest, cert *fiscal.Certificate) (*fiscal.AuthorityResponse, error) {
	url, err := c.endpoints.URL(route, ServiceEvent)
	if err != nil {
		return nil, fiscal.ConfigurationIncomplete([]string{"web_service_" + route.UF})
	}
	if req.At.IsZero() {
		req.At = c.now()
	}
	raw, err := BuildCancelEvent(req, route.UFCode, route.Environment.Code())
	if err != nil {
		return nil, fiscal.ValidationFailed([]fiscal.FieldError{{Field: "evento", Reason: err.Error()}})
	}
	signed, err := c.signer.Sign(raw, "infEvento", cert.TLS)
	if err != nil {
		return nil, fiscal.CertificateError("falha ao assinar o evento", err)
	}
	inner, err := c.soap.call(ctx, url, ServiceEvent, signed, cert, false)
	if err != nil {
		return nil, err
	}
	return parseEvent(inner)
}

// Void inutiliza a faixa informada.
func (c *Client) Void(ctx context.Context, route fiscal.Route, req fiscal.VoidRequest, cert *fiscal.Certificate) (*fiscal.AuthorityResponse, error) {
	url, err := c.endpoints.URL(route, ServiceVoid)
	if err != nil {
		return nil, fiscal.ConfigurationIncomplete([]string{"web_service_" + route.UF})
	}
	raw, err := BuildVoid(req, route.UFCode, route.Environment.Code())
	if err != nil {
		return nil, fiscal.ValidationFailed([]fiscal.FieldError{{Field: "inutilizacao", Reason: err.Error()}})
	}
	signed, err := c.signer.Sign(raw, "infInut", cert.TLS)
	if err != nil {
		return nil, fiscal.CertificateError("falha ao assinar a inutilização", err)
	}
	inner, err := c.soap.call(ctx, url, ServiceVoid, signed, cert, false)
	if err != nil {
		return nil, err
	}
	return parseVoid(inner)
}

func (c *Client) wait(ctx context.Context) error {
	if c.queries.Limit() == rate.Inf {
		return nil
	}
	if err := c.queries.Wait(ctx); err != nil {
		return fiscal.TransientFailure("limite de consultas à SEFAZ", err)
	}
	return nil
}

// keyOf chave do XML assinado (atributo Id de infNFe sem o prefixo NFe).
func keyOf(signedXML []byte) string {
	marker := []byte(`Id="NFe`)
	i := bytes.Index(signedXML, marker)
	if i < 0 || i+len(marker)+sefaz.AccessKeyLength > len(signedXML) {
		return ""
	}
	return string(signedXML[i+len(marker) : i+len(marker)+sefaz.AccessKeyLength])
}
