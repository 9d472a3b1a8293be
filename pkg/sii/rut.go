package sii

import (
	"fmt"
	"strings"
	"unicode"
)

// ValidateRUT valida el dígito verificador de un RUT chileno con el algoritmo
// módulo 11. Acepta "76.543.210-K", "76543210-K" o "76543210K".
func ValidateRUT(rut string) error {
	body, dv, err := splitRUT(rut)
	if err != nil {
		return err
	}
	expected := ComputeRUTVerifier(body)
	if expected != dv {
		return fmt.Errorf("sii: dígito verificador del RUT inválido: esperado %c, recibido %c", expected, dv)
	}
	return nil
}

// ComputeRUTVerifier calcula el dígito verificador para el cuerpo del RUT
// (solo dígitos, sin DV). Retorna '0'-'9' o 'K'.
func ComputeRUTVerifier(body string) byte {
	// Factores cíclicos 2..7 de derecha a izquierda.
	factor := 2
	sum := 0
	for i := len(body) - 1; i >= 0; i-- {
		sum += int(body[i]-'0') * factor
		factor++
		if factor > 7 {
			factor = 2
		}
	}
	remainder := 11 - (sum % 11)
	switch remainder {
	case 11:
		return '0'
	case 10:
		return 'K'
	default:
		return byte('0' + remainder)
	}
}

// NormalizeRUT limpia puntos y espacios y deja el formato canónico
// "NNNNNNNN-DV" en mayúsculas, tal como lo exige el SII en los envíos.
func NormalizeRUT(rut string) (string, error) {
	body, dv, err := splitRUT(rut)
	if err != nil {
		return "", err
	}
	return body + "-" + string(dv), nil
}

// RUTBody devuelve solo el cuerpo numérico del RUT (sin DV ni separadores).
func RUTBody(rut string) string {
	body, _, err := splitRUT(rut)
	if err != nil {
		return ""
	}
	return body
}

func splitRUT(rut string) (body string, dv byte, err error) {
	var cleaned []rune
	for _, r := range rut {
		if unicode.IsDigit(r) || r == 'k' || r == 'K' {
			cleaned = append(cleaned, unicode.ToUpper(r))
		}
	}
	if len(cleaned) < 2 {
		return "", 0, fmt.Errorf("sii: RUT demasiado corto: %q", rut)
	}
	dv = byte(cleaned[len(cleaned)-1])
	bodyRunes := cleaned[:len(cleaned)-1]
	var sb strings.Builder
	for _, r := range bodyRunes {
		if !unicode.IsDigit(r) {
			return "", 0, fmt.Errorf("sii: el cuerpo del RUT solo admite dígitos: %q", rut)
		}
		sb.WriteRune(r)
	}
	return sb.String(), dv, nil
}
