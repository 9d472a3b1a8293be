// Package sii: interfaz de firma electrónica del emisor sobre el XML del DTE.

package sii

import "crypto/tls"

// Signer firma el XML del documento y devuelve el XML con la firma
// envolvente inyectada sobre el nodo Documento.
type Signer interface {
	// Sign toma el XML del DTE (con TED, sin firma) y el certificado del
	// emisor con llave privada, y retorna el XML con el nodo ds:Signature.
	Sign(xmlBytes []byte, cert tls.Certificate) ([]byte, error)
}
