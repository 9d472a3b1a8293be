// Timbre Electrónico (TED): resumen criptográfico compacto del documento,
// firmado con la llave RSA del CAF (no con el certificado del emisor).
// El TED es verificable de forma independiente: basta la llave pública del
// rango autorizado. Función pura: sin reloj, sin I/O.

package dte

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/dte-core/pkg/sii"
)

// CAFKey es el material de llaves del CAF ya decodificado. La llave privada
// viene en el XML de autorización del SII; la pública se deriva de ella.
type CAFKey struct {
	Private *rsa.PrivateKey
	// CAFXML es el fragmento <CAF> completo, que viaja embebido en el TED
	// para que cualquier receptor verifique la autorización del rango.
	CAFXML string
}

// TEDInput son los campos esenciales que resume el timbre. Timestamp es la
// fecha/hora de emisión del documento (no el reloj del sistema): el mismo
// input produce siempre el mismo TED, módulo la aleatoriedad propia de RSA.
type TEDInput struct {
	IssuerRUT    string
	DTEType      int
	Folio        int64
	IssueDate    time.Time
	ReceiverRUT  string // "66666666-6" para receptor anónimo
	ReceiverName string
	Total        decimal.Decimal
	FirstItem    string
	Timestamp    time.Time
}

// anonReceiverRUT es el RUT genérico que el formato exige cuando la boleta
// no identifica receptor.
const anonReceiverRUT = "66666666-6"

// BuildDD serializa el bloque <DD> (datos del documento) con los límites de
// largo propios del timbre, más cortos que los del documento principal.
// La serialización es canónica: sin espacios superfluos, campos en orden fijo.
func BuildDD(in TEDInput, cafXML string) ([]byte, error) {
	if in.IssuerRUT == "" {
		return nil, fmt.Errorf("dte: TED requiere RUT del emisor")
	}
	if in.Folio <= 0 {
		return nil, fmt.Errorf("dte: TED requiere folio asignado")
	}
	if cafXML == "" {
		return nil, fmt.Errorf("dte: TED requiere el CAF del rango")
	}
	recepRUT := in.ReceiverRUT
	if recepRUT == "" {
		recepRUT = anonReceiverRUT
	}
	recepName := sii.TruncateField(in.ReceiverName, sii.TEDMaxLenRazonSocial)
	if recepName == "" {
		recepName = "SIN RECEPTOR"
	}
	firstItem := sii.TruncateField(in.FirstItem, sii.TEDMaxLenItemName)

	var sb strings.Builder
	sb.WriteString(`<DD>`)
	writeTag(&sb, "RE", in.IssuerRUT)
	writeTag(&sb, "TD", strconv.Itoa(in.DTEType))
	writeTag(&sb, "F", strconv.FormatInt(in.Folio, 10))
	writeTag(&sb, "FE", in.IssueDate.Format("2006-01-02"))
	writeTag(&sb, "RR", recepRUT)
	writeTag(&sb, "RSR", escapeTED(recepName))
	writeTag(&sb, "MNT", in.Total.Round(0).String())
	writeTag(&sb, "IT1", escapeTED(firstItem))
	sb.WriteString(cafXML)
	writeTag(&sb, "TSTED", in.Timestamp.Format("2006-01-02T15:04:05"))
	sb.WriteString(`</DD>`)
	return []byte(sb.String()), nil
}

// SealDocument produce el bloque <TED> completo: el DD más su firma
// SHA1-with-RSA con la llave privada del CAF.
func SealDocument(in TEDInput, key *CAFKey) ([]byte, error) {
	if key == nil || key.Private == nil {
		return nil, fmt.Errorf("dte: CAF sin llave privada")
	}
	dd, err := BuildDD(in, key.CAFXML)
	if err != nil {
		return nil, err
	}
	digest := sha1.Sum(dd)
	sig, err := rsa.SignPKCS1v15(nil, key.Private, crypto.SHA1, digest[:])
	if err != nil {
		return nil, fmt.Errorf("dte: firmar DD: %w", err)
	}
	var sb strings.Builder
	sb.WriteString(`<TED version="1.0">`)
	sb.Write(dd)
	sb.WriteString(`<FRMT algoritmo="SHA1withRSA">`)
	sb.WriteString(base64.StdEncoding.EncodeToString(sig))
	sb.WriteString(`</FRMT></TED>`)
	return []byte(sb.String()), nil
}

// VerifySeal re-verifica un TED contra los mismos campos y la llave pública
// del CAF. Cualquier cambio en un campo resumido invalida la firma.
func VerifySeal(in TEDInput, key *CAFKey, frmtB64 string) error {
	if key == nil || key.Private == nil {
		return fmt.Errorf("dte: CAF sin llave para verificar")
	}
	dd, err := BuildDD(in, key.CAFXML)
	if err != nil {
		return err
	}
	sig, err := base64.StdEncoding.DecodeString(strings.TrimSpace(frmtB64))
	if err != nil {
		return fmt.Errorf("dte: FRMT no es base64 válido: %w", err)
	}
	digest := sha1.Sum(dd)
	if err := rsa.VerifyPKCS1v15(&key.Private.PublicKey, crypto.SHA1, digest[:], sig); err != nil {
		return fmt.Errorf("dte: el timbre no verifica contra el documento: %w", err)
	}
	return nil
}

// ExtractFRMT saca el valor de la firma desde un bloque TED serializado.
// Búsqueda textual simple: el TED lo generamos nosotros, el formato es fijo.
func ExtractFRMT(ted []byte) (string, error) {
	s := string(ted)
	open := strings.Index(s, `<FRMT algoritmo="SHA1withRSA">`)
	if open < 0 {
		return "", fmt.Errorf("dte: TED sin nodo FRMT")
	}
	rest := s[open+len(`<FRMT algoritmo="SHA1withRSA">`):]
	end := strings.Index(rest, `</FRMT>`)
	if end < 0 {
		return "", fmt.Errorf("dte: FRMT sin cierre")
	}
	return rest[:end], nil
}

func writeTag(sb *strings.Builder, tag, value string) {
	sb.WriteString("<")
	sb.WriteString(tag)
	sb.WriteString(">")
	sb.WriteString(value)
	sb.WriteString("</")
	sb.WriteString(tag)
	sb.WriteString(">")
}

// escapeTED escapa los caracteres reservados de XML en campos de texto libre.
func escapeTED(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}
