package sii

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ═══════════════════════════════════════════════
// Semilla
// ═══════════════════════════════════════════════

func TestParseSeedResponse(t *testing.T) {
	raw := []byte(`<?xml version="1.0" encoding="UTF-8"?>
<SII:RESPUESTA xmlns:SII="http://www.sii.cl/XMLSchema">
  <SII:RESP_BODY>
    <SEMILLA>012345678901</SEMILLA>
  </SII:RESP_BODY>
  <SII:RESP_HDR>
    <ESTADO>00</ESTADO>
  </SII:RESP_HDR>
</SII:RESPUESTA>`)

	resp, err := ParseSeedResponse(raw)
	require.NoError(t, err)
	assert.Equal(t, "012345678901", resp.Seed)
	assert.Equal(t, "00", resp.Estado)
}

func TestParseSeedResponse_SinPrefijo(t *testing.T) {
	raw := []byte(`<RESPUESTA><RESP_BODY><SEMILLA>999</SEMILLA></RESP_BODY></RESPUESTA>`)
	resp, err := ParseSeedResponse(raw)
	require.NoError(t, err)
	assert.Equal(t, "999", resp.Seed)
}

func TestParseSeedResponse_EstadoDeError(t *testing.T) {
	raw := []byte(`<SII:RESPUESTA xmlns:SII="x"><SII:RESP_HDR><ESTADO>-1</ESTADO></SII:RESP_HDR><SII:RESP_BODY><SEMILLA>1</SEMILLA></SII:RESP_BODY></SII:RESPUESTA>`)
	_, err := ParseSeedResponse(raw)
	assert.Error(t, err)
}

func TestParseSeedResponse_SinSemilla(t *testing.T) {
	raw := []byte(`<RESPUESTA><RESP_HDR><ESTADO>-2</ESTADO></RESP_HDR></RESPUESTA>`)
	_, err := ParseSeedResponse(raw)
	assert.Error(t, err)
}

// ═══════════════════════════════════════════════
// Token
// ═══════════════════════════════════════════════

func TestParseTokenResponse(t *testing.T) {
	raw := []byte(`<SII:RESPUESTA xmlns:SII="http://www.sii.cl/XMLSchema">
  <SII:RESP_BODY><TOKEN>ABC123DEF456</TOKEN></SII:RESP_BODY>
  <SII:RESP_HDR><ESTADO>00</ESTADO><GLOSA>Token Creado</GLOSA></SII:RESP_HDR>
</SII:RESPUESTA>`)

	resp, err := ParseTokenResponse(raw)
	require.NoError(t, err)
	assert.Equal(t, "ABC123DEF456", resp.Token)
	assert.Equal(t, "Token Creado", resp.Glosa)
}

func TestParseTokenResponse_RechazoConGlosa(t *testing.T) {
	raw := []byte(`<RESPUESTA><RESP_HDR><ESTADO>10</ESTADO><GLOSA>Firma de semilla invalida</GLOSA></RESP_HDR></RESPUESTA>`)
	_, err := ParseTokenResponse(raw)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Firma de semilla invalida")
}

// ═══════════════════════════════════════════════
// Acuse de recepción
// ═══════════════════════════════════════════════

func TestParseUploadResponse(t *testing.T) {
	raw := []byte(`<?xml version="1.0"?>
<RECEPCIONDTE version="1.0">
  <RUTSENDER>76543212-K</RUTSENDER>
  <TRACKID>7654321</TRACKID>
  <TIMESTAMP>2026-03-14 10:30:00</TIMESTAMP>
  <STATUS>0</STATUS>
</RECEPCIONDTE>`)

	resp, err := ParseUploadResponse(raw)
	require.NoError(t, err)
	assert.Equal(t, "7654321", resp.TrackID)
	assert.Equal(t, "0", resp.Status)
}

func TestParseUploadResponse_SinTrackID(t *testing.T) {
	raw := []byte(`<RECEPCIONDTE><STATUS>1</STATUS><DETAIL>Error de firma</DETAIL></RECEPCIONDTE>`)
	_, err := ParseUploadResponse(raw)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Error de firma")
}

// ═══════════════════════════════════════════════
// Consulta de estado
// ═══════════════════════════════════════════════

func TestParseStatusResponse(t *testing.T) {
	raw := []byte(`<SII:RESPUESTA xmlns:SII="http://www.sii.cl/XMLSchema">
  <SII:RESP_HDR>
    <ESTADO>EPR</ESTADO>
    <GLOSA>Envio Procesado</GLOSA>
  </SII:RESP_HDR>
</SII:RESPUESTA>`)

	resp, err := ParseStatusResponse(raw)
	require.NoError(t, err)
	assert.Equal(t, "EPR", resp.Estado)
	assert.Equal(t, "Envio Procesado", resp.Glosa)
}

func TestParseStatusResponse_SinEstado(t *testing.T) {
	_, err := ParseStatusResponse([]byte(`<RESPUESTA/>`))
	assert.Error(t, err)
}

func TestParseRespuestasMalFormadas(t *testing.T) {
	for _, raw := range []string{"", "no es xml", "<abierto>"} {
		_, err := ParseSeedResponse([]byte(raw))
		assert.Error(t, err, "entrada %q", raw)
	}
}
