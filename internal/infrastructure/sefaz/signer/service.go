// Assinatura XMLDSig envelopada da NF-e, do evento e da inutilização.
// O nó <Signature> entra como último filho do pai do elemento assinado (NFe, evento, inutNFe).

package signer

import (
	"bytes"
	"crypto"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/beevik/etree"
	"github.com/jhoicas/emissor-fiscal/pkg/sefaz"
	"github.com/ucarion/c14n"
)

var _ sefaz.Signer = (*XMLDSigService)(nil)

// XMLDSigService implementa sefaz.Signer.
type XMLDSigService struct{}

func NewXMLDSigService() *XMLDSigService {
	return &XMLDSigService{}
}

// Sign assina o elemento referenceTag (Id obrigatório) com RSA-SHA1.
func (s *XMLDSigService) Sign(xmlBytes []byte, referenceTag string, cert tls.Certificate) ([]byte, error) {
	if len(xmlBytes) == 0 {
		return nil, fmt.Errorf("sefaz: XML vazio")
	}
	priv, ok := cert.PrivateKey.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("sefaz: o certificado deve ter chave privada RSA")
	}
	if len(cert.Certificate) == 0 {
		return nil, fmt.Errorf("sefaz: certificado sem cadeia")
	}
	x509Cert, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return nil, fmt.Errorf("sefaz: parsear certificado: %w", err)
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(xmlBytes); err != nil {
		return nil, fmt.Errorf("sefaz: parsear XML: %w", err)
	}
	target := doc.FindElement("//" + referenceTag)
	if target == nil {
		return nil, fmt.Errorf("sefaz: elemento %s não encontrado", referenceTag)
	}
	id := target.SelectAttrValue("Id", "")
	if id == "" {
		return nil, fmt.Errorf("sefaz: %s sem atributo Id", referenceTag)
	}
	parent := target.Parent()
	if parent == nil || parent == &doc.Element {
		return nil, fmt.Errorf("sefaz: %s precisa de um elemento pai", referenceTag)
	}
	if parent.SelectElement("Signature") != nil {
		return nil, fmt.Errorf("sefaz: documento já assinado")
	}

	// 1) Digest do elemento referenciado (C14N, com namespaces herdados)
	canonicalRef, err := canonicalElement(target)
	if err != nil {
		return nil, fmt.Errorf("sefaz: canonicalizar %s: %w", referenceTag, err)
	}
	digest := sha1.Sum(canonicalRef)
	digestB64 := base64.StdEncoding.EncodeToString(digest[:])

	// 2) SignedInfo canonicalizado e assinado
	signedInfoXML := buildSignedInfo("#"+id, digestB64)
	canonicalSignedInfo, err := canonicalizeXML([]byte(signedInfoXML))
	if err != nil {
		return nil, fmt.Errorf("sefaz: canonicalizar SignedInfo: %w", err)
	}
	signHash := sha1.Sum(canonicalSignedInfo)
	signatureValue, err := rsa.SignPKCS1v15(nil, priv, crypto.SHA1, signHash[:])
	if err != nil {
		return nil, fmt.Errorf("sefaz: assinar SignedInfo: %w", err)
	}

	// 3) Signature completa com X509Certificate
	signatureXML := buildSignature(signedInfoXML,
		base64.StdEncoding.EncodeToString(signatureValue),
		base64.StdEncoding.EncodeToString(x509Cert.Raw))
	sigDoc := etree.NewDocument()
	if err := sigDoc.ReadFromString(signatureXML); err != nil {
		return nil, fmt.Errorf("sefaz: parsear Signature: %w", err)
	}
	parent.AddChild(sigDoc.Root())

	var out bytes.Buffer
	if _, err := doc.WriteTo(&out); err != nil {
		return nil, fmt.Errorf("sefaz: serializar XML assinado: %w", err)
	}
	return out.Bytes(), nil
}

func canonicalizeXML(data []byte) ([]byte, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Entity = map[string]string{}
	return c14n.Canonicalize(dec)
}

// canonicalElement forma canônica de el isolado do documento: o xmlns padrão herdado
// dos ancestrais é declarado no próprio elemento, como manda a C14N de subconjunto.
func canonicalElement(el *etree.Element) ([]byte, error) {
	cp := el.Copy()
	if cp.SelectAttr("xmlns") == nil {
		for p := el.Parent(); p != nil; p = p.Parent() {
			if ns := p.SelectAttrValue("xmlns", ""); ns != "" {
				cp.CreateAttr("xmlns", ns)
				break
			}
		}
	}
	d := etree.NewDocument()
	d.SetRoot(cp)
	raw, err := d.WriteToBytes()
	if err != nil {
		return nil, err
	}
	return canonicalizeXML(raw)
}

func buildSignedInfo(uri, digestB64 string) string {
	var sb strings.Builder
	sb.WriteString(`<SignedInfo xmlns="` + NamespaceDS + `">`)
	sb.WriteString(`<CanonicalizationMethod Algorithm="` + AlgC14N + `"/>`)
	sb.WriteString(`<SignatureMethod Algorithm="` + AlgRSASHA1 + `"/>`)
	sb.WriteString(`<Reference URI="` + uri + `">`)
	sb.WriteString(`<Transforms><Transform Algorithm="` + TransformEnveloped + `"/>`)
	sb.WriteString(`<Transform Algorithm="` + AlgC14N + `"/></Transforms>`)
	sb.WriteString(`<DigestMethod Algorithm="` + AlgSHA1 + `"/>`)
	sb.WriteString(`<DigestValue>` + digestB64 + `</DigestValue>`)
	sb.WriteString(`</Reference>`)
	sb.WriteString(`</SignedInfo>`)
	return sb.String()
}

func buildSignature(signedInfoXML, signatureValueB64, certB64 string) string {
	var sb strings.Builder
	sb.WriteString(`<Signature xmlns="` + NamespaceDS + `">`)
	sb.WriteString(signedInfoXML)
	sb.WriteString(`<SignatureValue>` + signatureValueB64 + `</SignatureValue>`)
	sb.WriteString(`<KeyInfo><X509Data><X509Certificate>` + certB64 + `</X509Certificate></X509Data></KeyInfo>`)
	sb.WriteString(`</Signature>`)
	return sb.String()
}
