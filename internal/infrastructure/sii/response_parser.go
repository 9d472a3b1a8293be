// Parseo tolerante de las respuestas XML del SII. Los endpoints responden con
// distintos prefijos de namespace según el ambiente, así que se busca por
// nombre local y no por ruta exacta.

package sii

import (
	"fmt"
	"strings"

	"github.com/beevik/etree"
)

// estadoSemillaOK es el ESTADO que acompaña una semilla válida.
const estadoSemillaOK = "00"

// SeedResponse es el resultado del endpoint de semilla.
type SeedResponse struct {
	Seed   string
	Estado string
}

// TokenResponse es el resultado del endpoint de token.
type TokenResponse struct {
	Token  string
	Estado string
	Glosa  string
}

// UploadResponse es el acuse del endpoint de recepción de DTE.
type UploadResponse struct {
	TrackID string
	Status  string
	Detail  string
}

// StatusResponse es el resultado de la consulta de estado por TrackID.
type StatusResponse struct {
	Estado string
	Glosa  string
}

// ParseSeedResponse extrae la semilla de la respuesta del endpoint CrSeed.
func ParseSeedResponse(raw []byte) (*SeedResponse, error) {
	root, err := parseRoot(raw)
	if err != nil {
		return nil, fmt.Errorf("sii: respuesta de semilla: %w", err)
	}
	resp := &SeedResponse{
		Seed:   findLocalText(root, "SEMILLA"),
		Estado: findLocalText(root, "ESTADO"),
	}
	if resp.Seed == "" {
		return nil, fmt.Errorf("sii: la respuesta no trae SEMILLA (estado %q)", resp.Estado)
	}
	if resp.Estado != "" && resp.Estado != estadoSemillaOK {
		return nil, fmt.Errorf("sii: semilla con estado %q", resp.Estado)
	}
	return resp, nil
}

// ParseTokenResponse extrae el token de la respuesta del endpoint GetTokenFromSeed.
func ParseTokenResponse(raw []byte) (*TokenResponse, error) {
	root, err := parseRoot(raw)
	if err != nil {
		return nil, fmt.Errorf("sii: respuesta de token: %w", err)
	}
	resp := &TokenResponse{
		Token:  findLocalText(root, "TOKEN"),
		Estado: findLocalText(root, "ESTADO"),
		Glosa:  findLocalText(root, "GLOSA"),
	}
	if resp.Token == "" {
		if resp.Glosa != "" {
			return nil, fmt.Errorf("sii: el SII rechazó la semilla firmada: %s", resp.Glosa)
		}
		return nil, fmt.Errorf("sii: la respuesta no trae TOKEN (estado %q)", resp.Estado)
	}
	return resp, nil
}

// ParseUploadResponse extrae el TRACKID del acuse de recepción.
func ParseUploadResponse(raw []byte) (*UploadResponse, error) {
	root, err := parseRoot(raw)
	if err != nil {
		return nil, fmt.Errorf("sii: acuse de recepción: %w", err)
	}
	resp := &UploadResponse{
		TrackID: findLocalText(root, "TRACKID"),
		Status:  findLocalText(root, "STATUS"),
		Detail:  findLocalText(root, "DETAIL"),
	}
	if resp.TrackID == "" {
		return nil, fmt.Errorf("sii: el acuse no trae TRACKID (status %q, detalle %q)", resp.Status, resp.Detail)
	}
	return resp, nil
}

// ParseStatusResponse extrae ESTADO y GLOSA de la consulta por TrackID.
func ParseStatusResponse(raw []byte) (*StatusResponse, error) {
	root, err := parseRoot(raw)
	if err != nil {
		return nil, fmt.Errorf("sii: respuesta de estado: %w", err)
	}
	resp := &StatusResponse{
		Estado: findLocalText(root, "ESTADO"),
		Glosa:  findLocalText(root, "GLOSA"),
	}
	if resp.Estado == "" {
		return nil, fmt.Errorf("sii: la respuesta no trae ESTADO")
	}
	return resp, nil
}

func parseRoot(raw []byte) (*etree.Element, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(raw); err != nil {
		return nil, err
	}
	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("documento sin raíz")
	}
	return root, nil
}

// findLocalText busca en profundidad el primer elemento cuyo nombre local
// coincida, ignorando el prefijo de namespace, y devuelve su texto recortado.
func findLocalText(el *etree.Element, local string) string {
	if el.Tag == local {
		return strings.TrimSpace(el.Text())
	}
	for _, child := range el.ChildElements() {
		if text := findLocalText(child, local); text != "" {
			return text
		}
	}
	return ""
}
