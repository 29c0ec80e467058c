package sefaz

import "crypto/tls"

// Signer assina um elemento do XML (infNFe, infEvento, infInut) com XMLDSig envelopada.
type Signer interface {
	// Sign localiza o elemento referenceTag (pelo atributo Id) e insere <Signature>
	// como último filho do elemento pai dele, retornando o XML assinado.
	Sign(xmlBytes []byte, referenceTag string, cert tls.Certificate) ([]byte, error)
}
