package sii

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// selfSignedCert genera un certificado autofirmado de prueba con su llave RSA.
func selfSignedCert(t *testing.T) (tls.Certificate, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	tmpl := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "Firma de Prueba"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}, key
}

func TestSign_InyectaFirmaEnLaRaiz(t *testing.T) {
	cert, _ := selfSignedCert(t)
	builder := NewXMLBuilderService()
	xmlBytes, err := builder.Build(buildTestContext())
	require.NoError(t, err)

	signer := NewDigitalSignatureService()
	signed, err := signer.Sign(xmlBytes, cert)
	require.NoError(t, err)

	out := string(signed)
	assert.Contains(t, out, `<Signature xmlns="http://www.w3.org/2000/09/xmldsig#">`)
	assert.Contains(t, out, `<Reference URI="#T33F42">`)
	assert.Contains(t, out, "<SignatureValue>")
	assert.Contains(t, out, "<X509Certificate>")
	assert.Contains(t, out, "<Modulus>")
	// La firma queda después de Documento, dentro de DTE.
	sigPos := strings.Index(out, "<Signature")
	docEnd := strings.Index(out, "</Documento>")
	dteEnd := strings.Index(out, "</DTE>")
	assert.True(t, sigPos > docEnd && sigPos < dteEnd, "la firma va como último hijo de DTE")
}

func TestSign_YVerify_RoundTrip(t *testing.T) {
	cert, key := selfSignedCert(t)
	builder := NewXMLBuilderService()
	xmlBytes, err := builder.Build(buildTestContext())
	require.NoError(t, err)

	signer := NewDigitalSignatureService()
	signed, err := signer.Sign(xmlBytes, cert)
	require.NoError(t, err)

	assert.NoError(t, VerifySignature(signed, &key.PublicKey))
}

func TestVerify_DocumentoAlterado(t *testing.T) {
	cert, key := selfSignedCert(t)
	builder := NewXMLBuilderService()
	xmlBytes, err := builder.Build(buildTestContext())
	require.NoError(t, err)

	signer := NewDigitalSignatureService()
	signed, err := signer.Sign(xmlBytes, cert)
	require.NoError(t, err)

	// Alterar el total después de firmar debe invalidar el digest.
	tampered := strings.Replace(string(signed), "<MntTotal>41650</MntTotal>", "<MntTotal>1</MntTotal>", 1)
	require.NotEqual(t, string(signed), tampered)
	assert.Error(t, VerifySignature([]byte(tampered), &key.PublicKey))
}

func TestVerify_LlaveEquivocada(t *testing.T) {
	cert, _ := selfSignedCert(t)
	otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	builder := NewXMLBuilderService()
	xmlBytes, err := builder.Build(buildTestContext())
	require.NoError(t, err)

	signer := NewDigitalSignatureService()
	signed, err := signer.Sign(xmlBytes, cert)
	require.NoError(t, err)

	assert.Error(t, VerifySignature(signed, &otherKey.PublicKey))
}

func TestSign_SinLlaveRSAFalla(t *testing.T) {
	signer := NewDigitalSignatureService()
	_, err := signer.Sign([]byte("<DTE/>"), tls.Certificate{})
	assert.Error(t, err)
}

func TestSign_XMLVacioFalla(t *testing.T) {
	cert, _ := selfSignedCert(t)
	signer := NewDigitalSignatureService()
	_, err := signer.Sign(nil, cert)
	assert.Error(t, err)
}
