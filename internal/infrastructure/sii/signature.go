// Servicio de firma electrónica del emisor para el DTE.
// Inyecta el nodo Signature como último hijo del elemento raíz <DTE>.

package sii

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
	"github.com/ucarion/c14n"

	pkgsii "github.com/jhoicas/dte-core/pkg/sii"
)

const (
	NamespaceDS        = "http://www.w3.org/2000/09/xmldsig#"
	AlgC14N            = "http://www.w3.org/TR/2001/REC-xml-c14n-20010315"
	AlgRSASHA1         = "http://www.w3.org/2000/09/xmldsig#rsa-sha1"
	AlgSHA1            = "http://www.w3.org/2000/09/xmldsig#sha1"
	TransformEnveloped = "http://www.w3.org/2000/09/xmldsig#enveloped-signature"
)

// DigitalSignatureService implementa sii.Signer. El SII exige SHA-1 con RSA
// para la firma del documento; el digest cubre el documento canonicalizado
// sin el nodo Signature.
type DigitalSignatureService struct{}

// NewDigitalSignatureService crea el servicio.
func NewDigitalSignatureService() *DigitalSignatureService {
	return &DigitalSignatureService{}
}

// Sign firma el XML con el certificado del emisor e inyecta ds:Signature como
// último hijo de la raíz. El documento de entrada ya debe traer el TED.
func (s *DigitalSignatureService) Sign(xmlBytes []byte, cert tls.Certificate) ([]byte, error) {
	if len(xmlBytes) == 0 {
		return nil, fmt.Errorf("sii: XML vacío")
	}
	priv, ok := cert.PrivateKey.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("sii: el certificado debe incluir llave privada RSA")
	}
	x509Cert, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return nil, fmt.Errorf("sii: parsear certificado: %w", err)
	}

	docID, err := documentID(xmlBytes)
	if err != nil {
		return nil, err
	}

	// 1) Digest del documento canonicalizado (sin firma)
	canonicalDoc, err := canonicalizeXML(xmlBytes)
	if err != nil {
		canonicalDoc = xmlBytes
	}
	docDigest := sha1.Sum(canonicalDoc)
	docDigestB64 := base64.StdEncoding.EncodeToString(docDigest[:])

	// 2) SignedInfo con referencia #ID y transformada enveloped
	signedInfoXML := buildSignedInfo(docID, docDigestB64)
	canonicalSignedInfo, err := canonicalizeXML([]byte(signedInfoXML))
	if err != nil {
		canonicalSignedInfo = []byte(signedInfoXML)
	}
	signHash := sha1.Sum(canonicalSignedInfo)
	signatureValue, err := rsa.SignPKCS1v15(nil, priv, crypto.SHA1, signHash[:])
	if err != nil {
		return nil, fmt.Errorf("sii: firmar SignedInfo: %w", err)
	}

	// 3) KeyInfo: llave pública (módulo/exponente) y certificado
	signatureXML := buildSignatureXML(
		signedInfoXML,
		base64.StdEncoding.EncodeToString(signatureValue),
		base64.StdEncoding.EncodeToString(priv.PublicKey.N.Bytes()),
		base64.StdEncoding.EncodeToString(bigEndianExponent(priv.PublicKey.E)),
		base64.StdEncoding.EncodeToString(x509Cert.Raw),
	)

	// 4) Inyectar como último hijo de <DTE>
	return injectSignature(xmlBytes, signatureXML)
}

// VerifySignature deshace la firma: extrae Signature, recomputa el digest del
// documento sin el nodo y verifica SignatureValue con la llave pública dada.
func VerifySignature(signedXML []byte, pub *rsa.PublicKey) error {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(signedXML); err != nil {
		return fmt.Errorf("sii: parsear XML firmado: %w", err)
	}
	root := doc.Root()
	if root == nil {
		return fmt.Errorf("sii: documento sin raíz")
	}
	sig := root.FindElement("Signature")
	if sig == nil {
		return fmt.Errorf("sii: el documento no trae firma")
	}

	digestValue := textOfChild(sig, "SignedInfo/Reference/DigestValue")
	signatureValue := textOfChild(sig, "SignatureValue")
	if digestValue == "" || signatureValue == "" {
		return fmt.Errorf("sii: firma incompleta")
	}

	// Recomputar digest del documento sin la firma
	root.RemoveChild(sig)
	var stripped bytes.Buffer
	if _, err := doc.WriteTo(&stripped); err != nil {
		return err
	}
	canonicalDoc, err := canonicalizeXML(stripped.Bytes())
	if err != nil {
		canonicalDoc = stripped.Bytes()
	}
	docDigest := sha1.Sum(canonicalDoc)
	if base64.StdEncoding.EncodeToString(docDigest[:]) != strings.TrimSpace(digestValue) {
		return fmt.Errorf("sii: el digest del documento no coincide")
	}

	// Verificar SignatureValue sobre SignedInfo canonicalizado
	signedInfo := sig.FindElement("SignedInfo")
	if signedInfo == nil {
		return fmt.Errorf("sii: firma sin SignedInfo")
	}
	siDoc := etree.NewDocument()
	siDoc.SetRoot(signedInfo.Copy())
	siDoc.Root().CreateAttr("xmlns", NamespaceDS)
	var siBuf bytes.Buffer
	if _, err := siDoc.WriteTo(&siBuf); err != nil {
		return err
	}
	canonicalSI, err := canonicalizeXML(siBuf.Bytes())
	if err != nil {
		canonicalSI = siBuf.Bytes()
	}
	siHash := sha1.Sum(canonicalSI)
	sigBytes, err := base64.StdEncoding.DecodeString(strings.TrimSpace(signatureValue))
	if err != nil {
		return fmt.Errorf("sii: decodificar SignatureValue: %w", err)
	}
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA1, siHash[:], sigBytes); err != nil {
		return fmt.Errorf("sii: firma del emisor inválida: %w", err)
	}
	return nil
}

func canonicalizeXML(data []byte) ([]byte, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Entity = map[string]string{}
	return c14n.Canonicalize(dec)
}

// documentID extrae el atributo ID del nodo Documento, referenciado por la firma.
func documentID(xmlBytes []byte) (string, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(xmlBytes); err != nil {
		return "", fmt.Errorf("sii: parsear XML: %w", err)
	}
	documento := doc.FindElement("//Documento")
	if documento == nil {
		return "", fmt.Errorf("sii: no se encontró el nodo Documento")
	}
	id := documento.SelectAttrValue("ID", "")
	if id == "" {
		return "", fmt.Errorf("sii: Documento sin atributo ID")
	}
	return id, nil
}

func buildSignedInfo(docID, docDigestB64 string) string {
	var sb strings.Builder
	sb.WriteString(`<SignedInfo xmlns="` + NamespaceDS + `">`)
	sb.WriteString(`<CanonicalizationMethod Algorithm="` + AlgC14N + `"/>`)
	sb.WriteString(`<SignatureMethod Algorithm="` + AlgRSASHA1 + `"/>`)
	sb.WriteString(`<Reference URI="#` + docID + `">`)
	sb.WriteString(`<Transforms><Transform Algorithm="` + TransformEnveloped + `"/></Transforms>`)
	sb.WriteString(`<DigestMethod Algorithm="` + AlgSHA1 + `"/>`)
	sb.WriteString(`<DigestValue>` + docDigestB64 + `</DigestValue>`)
	sb.WriteString(`</Reference>`)
	sb.WriteString(`</SignedInfo>`)
	return sb.String()
}

func buildSignatureXML(signedInfoXML, signatureValueB64, modulusB64, exponentB64, certB64 string) string {
	var sb strings.Builder
	sb.WriteString(`<Signature xmlns="` + NamespaceDS + `">`)
	sb.WriteString(signedInfoXML)
	sb.WriteString(`<SignatureValue>` + signatureValueB64 + `</SignatureValue>`)
	sb.WriteString(`<KeyInfo>`)
	sb.WriteString(`<KeyValue><RSAKeyValue>`)
	sb.WriteString(`<Modulus>` + modulusB64 + `</Modulus>`)
	sb.WriteString(`<Exponent>` + exponentB64 + `</Exponent>`)
	sb.WriteString(`</RSAKeyValue></KeyValue>`)
	sb.WriteString(`<X509Data><X509Certificate>` + certB64 + `</X509Certificate></X509Data>`)
	sb.WriteString(`</KeyInfo>`)
	sb.WriteString(`</Signature>`)
	return sb.String()
}

func injectSignature(xmlBytes []byte, signatureXML string) ([]byte, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(xmlBytes); err != nil {
		return nil, fmt.Errorf("sii: parsear XML: %w", err)
	}
	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("sii: documento sin raíz")
	}
	sigDoc := etree.NewDocument()
	if err := sigDoc.ReadFromString(signatureXML); err != nil {
		return nil, fmt.Errorf("sii: parsear nodo Signature: %w", err)
	}
	if sigRoot := sigDoc.Root(); sigRoot != nil {
		root.AddChild(sigRoot)
	}
	var out bytes.Buffer
	if _, err := doc.WriteTo(&out); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func textOfChild(el *etree.Element, path string) string {
	child := el.FindElement(path)
	if child == nil {
		return ""
	}
	return child.Text()
}

// bigEndianExponent serializa el exponente público en big-endian sin ceros a
// la izquierda.
func bigEndianExponent(e int) []byte {
	var out []byte
	for e > 0 {
		out = append([]byte{byte(e & 0xff)}, out...)
		e >>= 8
	}
	if len(out) == 0 {
		out = []byte{0}
	}
	return out
}

var _ pkgsii.Signer = (*DigitalSignatureService)(nil)
