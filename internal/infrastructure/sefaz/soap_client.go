package sefaz

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptrace"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jhoicas/emissor-fiscal/internal/domain/fiscal"
	"github.com/jhoicas/emissor-fiscal/pkg/config"
	"github.com/rs/zerolog"
)

const (
	soap12NS        = "http://www.w3.org/2003/05/soap-envelope"
	maxResponseSize = 4 << 20
)

// ── Estruturas SOAP ──────────────────────────────────────────────────────────

type soapEnvelope struct {
	XMLName  xml.Name `xml:"soap12:Envelope"`
	XmlnsS12 string   `xml:"xmlns:soap12,attr"`
	Body     soapBody `xml:"soap12:Body"`
}

type soapBody struct {
	Msg nfeDadosMsg `xml:"nfeDadosMsg"`
}

// nfeDadosMsg carrega o XML do serviço sem reserializar (a assinatura depende dos bytes).
type nfeDadosMsg struct {
	Xmlns   string `xml:"xmlns,attr"`
	Content []byte `xml:",innerxml"`
}

type soapResponseEnvelope struct {
	Body struct {
		Result *struct {
			Inner []byte `xml:",innerxml"`
		} `xml:"nfeResultMsg"`
		Fault *soapFault `xml:"Fault"`
	} `xml:"Body"`
}

type soapFault struct {
	Code        string `xml:"Code>Value"`
	Reason      string `xml:"Reason>Text"`
	FaultString string `xml:"faultstring"`
}

func (f *soapFault) message() string {
	if f.Reason != "" {
		return f.Reason
	}
	return f.FaultString
}

// ── Transporte ───────────────────────────────────────────────────────────────

// soapTransport POST SOAP 1.2 com TLS mútuo. Um http.Client por certificado (fingerprint).
type soapTransport struct {
	timeout     time.Duration
	maxAttempts int
	initial     time.Duration
	maxBackoff  time.Duration
	rootCAs     *x509.CertPool
	clients     sync.Map
	log         zerolog.Logger
}

func newSOAPTransport(cfg config.SEFAZConfig, log zerolog.Logger) (*soapTransport, error) {
	t := &soapTransport{
		timeout:     cfg.Timeout,
		maxAttempts: cfg.MaxAttempts,
		initial:     cfg.InitialBackoff,
		maxBackoff:  cfg.MaxBackoff,
		log:         log,
	}
	if t.timeout <= 0 {
		t.timeout = 30 * time.Second
	}
	if t.maxAttempts < 1 {
		t.maxAttempts = 1
	}
	if t.initial <= 0 {
		t.initial = time.Second
	}
	if t.maxBackoff < t.initial {
		t.maxBackoff = t.initial
	}
	if cfg.CABundlePath != "" {
		pem, err := os.ReadFile(cfg.CABundlePath)
		if err != nil {
			return nil, fmt.Errorf("sefaz: ler cadeia de certificados: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("sefaz: nenhum certificado válido em %s", cfg.CABundlePath)
		}
		t.rootCAs = pool
	}
	return t, nil
}

func (t *soapTransport) httpClient(cert *fiscal.Certificate) *http.Client {
	if v, ok := t.clients.Load(cert.Fingerprint); ok {
		return v.(*http.Client)
	}
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		TLSClientConfig: &tls.Config{
			Certificates:  []tls.Certificate{cert.TLS},
			RootCAs:       t.rootCAs,
			MinVersion:    tls.VersionTLS12,
			Renegotiation: tls.RenegotiateOnceAsClient,
		},
		TLSHandshakeTimeout: 10 * time.Second,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
	}
	c := &http.Client{Timeout: t.timeout, Transport: tr}
	if cert.Fingerprint == "" {
		return c
	}
	v, _ := t.clients.LoadOrStore(cert.Fingerprint, c)
	return v.(*http.Client)
}

// call envia payload ao serviço e devolve o conteúdo de nfeResultMsg.
// Falhas antes de o pedido ser escrito são repetidas com backoff exponencial. Depois de escrito,
// só operações idempotentes (consultas) repetem; as demais devolvem UnknownOutcome.
func (t *soapTransport) call(ctx context.Context, url string, svc Service, payload []byte, cert *fiscal.Certificate, idempotent bool) ([]byte, error) {
	envelope, err := xml.Marshal(soapEnvelope{
		XmlnsS12: soap12NS,
		Body:     soapBody{Msg: nfeDadosMsg{Xmlns: svc.Namespace(), Content: payload}},
	})
	if err != nil {
		return nil, fmt.Errorf("soap: serializar envelope: %w", err)
	}
	client := t.httpClient(cert)
	log := t.log.With().Str("servico", string(svc)).Logger()

	attempt := 0
	op := func() ([]byte, error) {
		attempt++
		var wrote atomic.Bool
		trace := &httptrace.ClientTrace{
			WroteRequest: func(info httptrace.WroteRequestInfo) {
				if info.Err == nil {
					wrote.Store(true)
				}
			},
		}
		req, err := http.NewRequestWithContext(httptrace.WithClientTrace(ctx, trace), http.MethodPost, url, bytes.NewReader(envelope))
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("soap: criar request: %w", err))
		}
		req.Header.Set("Content-Type", `application/soap+xml; charset=utf-8; action="`+svc.Action()+`"`)

		resp, err := client.Do(req)
		if err != nil {
			written := wrote.Load()
			log.Warn().Err(err).Int("tentativa", attempt).Bool("enviado", written).Msg("falha na chamada SOAP")
			if written && !idempotent {
				return nil, backoff.Permanent(fiscal.UnknownOutcome("conexão com a SEFAZ interrompida após o envio", err))
			}
			if ctx.Err() != nil {
				return nil, backoff.Permanent(fiscal.TransientFailure("operação cancelada antes da resposta da SEFAZ", ctx.Err()))
			}
			var verr *tls.CertificateVerificationError
			if errors.As(err, &verr) {
				return nil, backoff.Permanent(fiscal.TransientFailure("certificado do servidor da SEFAZ não reconhecido (verifique SEFAZ_CA_BUNDLE)", err))
			}
			return nil, fiscal.TransientFailure("falha de comunicação com a SEFAZ", err)
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		if err != nil {
			if idempotent {
				return nil, fiscal.TransientFailure("resposta da SEFAZ interrompida", err)
			}
			return nil, backoff.Permanent(fiscal.UnknownOutcome("resposta da SEFAZ interrompida", err))
		}
		if resp.StatusCode != http.StatusOK {
			msg := fmt.Sprintf("SEFAZ respondeu HTTP %d", resp.StatusCode)
			if f := parseFault(raw); f != nil {
				msg += ": " + f.message()
			}
			log.Warn().Int("http_status", resp.StatusCode).Int("tentativa", attempt).Msg(msg)
			if idempotent {
				return nil, fiscal.TransientFailure(msg, nil)
			}
			return nil, backoff.Permanent(fiscal.UnknownOutcome(msg, nil))
		}
		return raw, nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = t.initial
	b.MaxInterval = t.maxBackoff
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(t.maxAttempts-1)), ctx)

	raw, err := backoff.RetryWithData(op, policy)
	if err != nil {
		if _, ok := fiscal.AsEmissionError(err); !ok {
			err = fiscal.TransientFailure("chamada à SEFAZ não concluída", err)
		}
		return nil, err
	}
	inner, err := unwrapResult(raw)
	if err != nil {
		if idempotent {
			return nil, fiscal.TransientFailure("resposta SOAP inválida", err)
		}
		return nil, fiscal.UnknownOutcome("resposta SOAP inválida", err)
	}
	return inner, nil
}

func parseFault(raw []byte) *soapFault {
	var env soapResponseEnvelope
	if err := xml.Unmarshal(raw, &env); err != nil {
		return nil
	}
	return env.Body.Fault
}

// unwrapResult extrai o retorno do serviço (retEnviNFe, retConsSitNFe, ...) do envelope.
func unwrapResult(raw []byte) ([]byte, error) {
	var env soapResponseEnvelope
	if err := xml.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("soap: parsear envelope: %w", err)
	}
	if env.Body.Fault != nil {
		return nil, fmt.Errorf("soap: fault [%s]: %s", env.Body.Fault.Code, env.Body.Fault.message())
	}
	if env.Body.Result == nil || len(bytes.TrimSpace(env.Body.Result.Inner)) == 0 {
		return nil, fmt.Errorf("soap: nfeResultMsg ausente")
	}
	return bytes.TrimSpace(env.Body.Result.Inner), nil
}
