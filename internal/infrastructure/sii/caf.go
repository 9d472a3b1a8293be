// Parseo del CAF (Código de Autorización de Folios): el XML que entrega el
// SII al autorizar un rango, con la llave RSA propia del rango. Esa llave
// firma el TED; es distinta del certificado general del emisor.

package sii

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"strconv"
	"time"

	"github.com/beevik/etree"
	"github.com/google/uuid"

	"github.com/jhoicas/dte-core/internal/domain/dte"
	"github.com/jhoicas/dte-core/internal/domain/entity"
)

// cafValidityMonths: vigencia de un CAF desde su fecha de autorización.
const cafValidityMonths = 6

// CAFData es el contenido relevante de una autorización de folios.
type CAFData struct {
	IssuerRUT    string
	DTEType      int
	FolioFrom    int64
	FolioTo      int64
	AuthorizedAt time.Time
	ExpiresAt    time.Time
	Key          *dte.CAFKey
}

// ParseCAF decodifica el XML de autorización. Tolera tanto el envoltorio
// <AUTORIZACION> completo (CAF + RSASK) como un <CAF> suelto con la llave
// privada adjunta en <RSASK> hermano.
func ParseCAF(raw []byte) (*CAFData, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(raw); err != nil {
		return nil, fmt.Errorf("sii: parsear CAF: %w", err)
	}
	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("sii: CAF sin raíz")
	}

	caf := root
	if root.Tag != "CAF" {
		if caf = root.FindElement(".//CAF"); caf == nil {
			return nil, fmt.Errorf("sii: no se encontró el nodo CAF")
		}
	}
	da := caf.FindElement("DA")
	if da == nil {
		return nil, fmt.Errorf("sii: CAF sin bloque DA")
	}

	out := &CAFData{}
	out.IssuerRUT = textOf(da, "RE")
	if out.IssuerRUT == "" {
		return nil, fmt.Errorf("sii: CAF sin RUT emisor (RE)")
	}
	td, err := strconv.Atoi(textOf(da, "TD"))
	if err != nil {
		return nil, fmt.Errorf("sii: tipo de DTE inválido en CAF: %w", err)
	}
	out.DTEType = td

	rng := da.FindElement("RNG")
	if rng == nil {
		return nil, fmt.Errorf("sii: CAF sin rango RNG")
	}
	if out.FolioFrom, err = strconv.ParseInt(textOf(rng, "D"), 10, 64); err != nil {
		return nil, fmt.Errorf("sii: folio inicial inválido: %w", err)
	}
	if out.FolioTo, err = strconv.ParseInt(textOf(rng, "H"), 10, 64); err != nil {
		return nil, fmt.Errorf("sii: folio final inválido: %w", err)
	}
	if out.FolioFrom <= 0 || out.FolioTo < out.FolioFrom {
		return nil, fmt.Errorf("sii: rango de folios inválido [%d, %d]", out.FolioFrom, out.FolioTo)
	}

	if fa := textOf(da, "FA"); fa != "" {
		out.AuthorizedAt, err = time.Parse("2006-01-02", fa)
		if err != nil {
			return nil, fmt.Errorf("sii: fecha de autorización inválida: %w", err)
		}
		out.ExpiresAt = out.AuthorizedAt.AddDate(0, cafValidityMonths, 0)
	}

	// Llave privada del rango: nodo RSASK (PEM PKCS#1 o PKCS#8).
	rsask := root.FindElement(".//RSASK")
	if rsask == nil {
		return nil, fmt.Errorf("sii: autorización sin llave privada RSASK")
	}
	priv, err := parseRSAPrivateKeyPEM([]byte(rsask.Text()))
	if err != nil {
		return nil, fmt.Errorf("sii: llave del CAF: %w", err)
	}

	// Re-serializar solo el fragmento <CAF> tal cual, para embeberlo en el TED.
	cafDoc := etree.NewDocument()
	cafDoc.SetRoot(caf.Copy())
	cafXML, err := cafDoc.WriteToString()
	if err != nil {
		return nil, fmt.Errorf("sii: serializar CAF: %w", err)
	}
	out.Key = &dte.CAFKey{Private: priv, CAFXML: cafXML}
	return out, nil
}

// ToFolioRange materializa el CAF en la entidad de rango lista para
// persistir, con el contador en el primer folio del rango.
func (c *CAFData) ToFolioRange(companyID string, raw []byte) *entity.FolioRange {
	return &entity.FolioRange{
		ID:           uuid.NewString(),
		CompanyID:    companyID,
		DTEType:      c.DTEType,
		FolioFrom:    c.FolioFrom,
		FolioTo:      c.FolioTo,
		NextFolio:    c.FolioFrom,
		AuthorizedAt: c.AuthorizedAt,
		ExpiresAt:    c.ExpiresAt,
		CAFXML:       string(raw),
	}
}

func textOf(parent *etree.Element, tag string) string {
	if el := parent.FindElement(tag); el != nil {
		return el.Text()
	}
	return ""
}

func parseRSAPrivateKeyPEM(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no es PEM válido")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("ni PKCS#1 ni PKCS#8: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("la llave del CAF debe ser RSA")
	}
	return key, nil
}
