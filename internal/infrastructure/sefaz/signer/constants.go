// Constantes da assinatura XMLDSig exigida pelo leiaute NF-e 4.00 (MOC, anexo de assinatura).

package signer

// Namespaces e algoritmos XMLDSig. A SEFAZ aceita somente RSA-SHA1 com C14N inclusiva.
const (
	NamespaceDS        = "http://www.w3.org/2000/09/xmldsig#"
	AlgC14N            = "http://www.w3.org/TR/2001/REC-xml-c14n-20010315"
	AlgRSASHA1         = "http://www.w3.org/2000/09/xmldsig#rsa-sha1"
	AlgSHA1            = "http://www.w3.org/2000/09/xmldsig#sha1"
	TransformEnveloped = "http://www.w3.org/2000/09/xmldsig#enveloped-signature"
)
