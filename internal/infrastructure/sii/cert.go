// Carga del certificado de firma del emisor desde .p12 (PKCS#12) o par PEM.

package sii

import (
	"crypto/tls"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/pkcs12"

	"github.com/jhoicas/dte-core/internal/domain"
	"github.com/jhoicas/dte-core/internal/domain/entity"
)

// LoadFromP12 carga certificado y llave privada desde un archivo .p12/.pfx.
// El password puede ser vacío si el archivo no está protegido.
func LoadFromP12(path, password string) (tls.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("leer p12: %w", err)
	}
	priv, cert, err := pkcs12.Decode(data, password)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("decodificar p12: %w", err)
	}
	return tls.Certificate{
		Certificate: [][]byte{cert.Raw},
		PrivateKey:  priv,
		Leaf:        cert,
	}, nil
}

// LoadFromPEM carga certificado y llave desde archivos PEM (por separado o
// combinados en el mismo archivo).
func LoadFromPEM(certPath, keyPath string) (tls.Certificate, error) {
	if keyPath == "" {
		return tls.LoadX509KeyPair(certPath, certPath)
	}
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("cargar PEM: %w", err)
	}
	return cert, nil
}

// LoadCompanyCert resuelve el certificado de firma del emisor según su
// configuración: .p12 con password, o par PEM. Sin certificado configurado el
// emisor no puede firmar.
func LoadCompanyCert(company *entity.Company) (tls.Certificate, error) {
	if company.CertPath == "" {
		return tls.Certificate{}, domain.ErrSigningKeyMissing
	}
	if strings.HasSuffix(company.CertPath, ".p12") || strings.HasSuffix(company.CertPath, ".pfx") {
		return LoadFromP12(company.CertPath, company.CertPassword)
	}
	return LoadFromPEM(company.CertPath, company.CertKeyPath)
}
