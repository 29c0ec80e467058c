// Carga do certificado A1 (PKCS#12) da ICP-Brasil.

package signer

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"

	"github.com/jhoicas/emissor-fiscal/pkg/sefaz"
	"golang.org/x/crypto/pkcs12"
)

// ErrWrongPassword senha do PKCS#12 incorreta.
var ErrWrongPassword = errors.New("senha do certificado incorreta")

// LoadFromP12 decodifica o arquivo .pfx/.p12. O arquivo da ICP-Brasil costuma trazer a cadeia
// completa; a folha é o certificado cuja chave pública corresponde à chave privada.
func LoadFromP12(data []byte, password string) (tls.Certificate, error) {
	if len(data) == 0 {
		return tls.Certificate{}, fmt.Errorf("arquivo do certificado vazio")
	}
	blocks, err := pkcs12.ToPEM(data, password)
	if err != nil {
		if errors.Is(err, pkcs12.ErrIncorrectPassword) {
			return tls.Certificate{}, ErrWrongPassword
		}
		return tls.Certificate{}, fmt.Errorf("decodificar p12: %w", err)
	}
	return fromPEMBlocks(blocks)
}

func fromPEMBlocks(blocks []*pem.Block) (tls.Certificate, error) {
	var (
		key   crypto.Signer
		certs []*x509.Certificate
	)
	for _, b := range blocks {
		switch b.Type {
		case "CERTIFICATE":
			c, err := x509.ParseCertificate(b.Bytes)
			if err != nil {
				return tls.Certificate{}, fmt.Errorf("parsear certificado: %w", err)
			}
			certs = append(certs, c)
		case "PRIVATE KEY", "RSA PRIVATE KEY", "EC PRIVATE KEY":
			k, err := parsePrivateKey(b.Bytes)
			if err != nil {
				return tls.Certificate{}, err
			}
			key = k
		}
	}
	if key == nil {
		return tls.Certificate{}, fmt.Errorf("p12 sem chave privada")
	}
	var leaf *x509.Certificate
	for _, c := range certs {
		if pub, ok := c.PublicKey.(interface{ Equal(crypto.PublicKey) bool }); ok && pub.Equal(key.Public()) {
			leaf = c
			break
		}
	}
	if leaf == nil {
		return tls.Certificate{}, fmt.Errorf("p12 sem certificado correspondente à chave privada")
	}
	chain := [][]byte{leaf.Raw}
	for _, c := range certs {
		if c != leaf {
			chain = append(chain, c.Raw)
		}
	}
	return tls.Certificate{Certificate: chain, PrivateKey: key, Leaf: leaf}, nil
}

func parsePrivateKey(der []byte) (crypto.Signer, error) {
	if k, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return k, nil
	}
	if k, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		switch k := k.(type) {
		case *rsa.PrivateKey:
			return k, nil
		case *ecdsa.PrivateKey:
			return k, nil
		}
	}
	if k, err := x509.ParseECPrivateKey(der); err == nil {
		return k, nil
	}
	return nil, fmt.Errorf("chave privada em formato desconhecido")
}

// CNPJFromSubject extrai o CNPJ do CN no formato "RAZAO SOCIAL:12345678000195".
// Certificados e-CNPJ sem o sufixo devolvem "".
func CNPJFromSubject(cn string) string {
	i := strings.LastIndex(cn, ":")
	if i < 0 {
		return ""
	}
	digits := sefaz.OnlyDigits(cn[i+1:])
	if len(digits) != 14 {
		return ""
	}
	return digits
}

// Fingerprint SHA-256 hexadecimal do certificado folha.
func Fingerprint(cert *x509.Certificate) string {
	sum := sha256.Sum256(cert.Raw)
	return hex.EncodeToString(sum[:])
}
