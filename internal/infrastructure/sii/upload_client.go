// Cliente de envío de DTE al SII: POST multipart con el sobre EnvioDTE y
// consulta de estado por TrackID. El SII recibe en ISO-8859-1; la
// transcodificación ocurre en este borde, el resto del sistema trabaja UTF-8.

package sii

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/text/encoding/charmap"

	"github.com/jhoicas/dte-core/internal/domain"
	"github.com/jhoicas/dte-core/internal/domain/entity"
	pkgsii "github.com/jhoicas/dte-core/pkg/sii"
)

// rutSII es el RUT receptor institucional de todo envío.
const rutSII = "60803000-K"

// HTTPSubmitter envía documentos firmados al ambiente configurado y consulta
// su estado. Implementa el puerto de envío del reconciliador.
type HTTPSubmitter struct {
	uploadURL  string
	statusURL  string
	auth       *AuthGateway
	httpClient *http.Client
	log        zerolog.Logger
}

// NewHTTPSubmitter construye el cliente de envío.
func NewHTTPSubmitter(uploadURL, statusURL string, auth *AuthGateway, log zerolog.Logger) *HTTPSubmitter {
	return &HTTPSubmitter{
		uploadURL:  uploadURL,
		statusURL:  statusURL,
		auth:       auth,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		log:        log,
	}
}

// Submit sube el documento firmado y devuelve el TrackID asignado por el SII.
// Los fallos de red y los HTTP 5xx son recuperables (ErrSubmissionTransient);
// un acuse sin TRACKID es rechazo del envío y no se reintenta solo.
func (c *HTTPSubmitter) Submit(ctx context.Context, company *entity.Company, doc *entity.Document) (string, error) {
	token, err := c.auth.Token(ctx, company)
	if err != nil {
		return "", err
	}

	envelope, err := transcodeLatin1([]byte(doc.XMLSigned))
	if err != nil {
		return "", fmt.Errorf("sii: transcodificar a ISO-8859-1: %w", err)
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	rutBody, dv, err := splitRUT(company.RUT)
	if err != nil {
		return "", err
	}
	_ = writer.WriteField("rutSender", rutBody)
	_ = writer.WriteField("dvSender", dv)
	_ = writer.WriteField("rutCompany", rutBody)
	_ = writer.WriteField("dvCompany", dv)

	filename := fmt.Sprintf("DTE_%d_%d.xml", doc.DTEType, doc.Folio)
	part, err := writer.CreateFormFile("archivo", filename)
	if err != nil {
		return "", fmt.Errorf("sii: crear parte multipart: %w", err)
	}
	if _, err := part.Write(envelope); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.uploadURL, body)
	if err != nil {
		return "", fmt.Errorf("sii: crear request de envío: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.AddCookie(&http.Cookie{Name: "TOKEN", Value: token})

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrSubmissionTransient, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("%w: leer acuse: %v", domain.ErrSubmissionTransient, err)
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		// Token vencido en el servidor antes que en el cache local.
		c.auth.Invalidate(company.ID)
		return "", fmt.Errorf("%w: HTTP %d", domain.ErrAuthenticationFailed, resp.StatusCode)
	}
	if resp.StatusCode >= 500 {
		return "", fmt.Errorf("%w: HTTP %d", domain.ErrSubmissionTransient, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("sii: el endpoint de recepción respondió HTTP %d: %s", resp.StatusCode, raw)
	}

	ack, err := ParseUploadResponse(raw)
	if err != nil {
		return "", err
	}
	c.log.Info().
		Str("company_id", company.ID).
		Int("dte_type", doc.DTEType).
		Int64("folio", doc.Folio).
		Str("track_id", ack.TrackID).
		Msg("documento recibido por el SII")
	return ack.TrackID, nil
}

// QueryStatus consulta el estado del envío identificado por trackID.
func (c *HTTPSubmitter) QueryStatus(ctx context.Context, company *entity.Company, trackID string) (*StatusResponse, error) {
	token, err := c.auth.Token(ctx, company)
	if err != nil {
		return nil, err
	}
	rutBody, dv, err := splitRUT(company.RUT)
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("rut", rutBody)
	form.Set("dv", dv)
	form.Set("trackid", trackID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.statusURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("sii: crear request de estado: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: "TOKEN", Value: token})

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSubmissionTransient, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: leer respuesta: %v", domain.ErrSubmissionTransient, err)
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		c.auth.Invalidate(company.ID)
		return nil, fmt.Errorf("%w: HTTP %d", domain.ErrAuthenticationFailed, resp.StatusCode)
	}
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: HTTP %d", domain.ErrSubmissionTransient, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sii: la consulta de estado respondió HTTP %d", resp.StatusCode)
	}
	return ParseStatusResponse(raw)
}

// transcodeLatin1 convierte UTF-8 a ISO-8859-1 y ajusta la declaración XML.
func transcodeLatin1(utf8XML []byte) ([]byte, error) {
	content := utf8XML
	if i := bytes.Index(content, []byte("?>")); bytes.HasPrefix(content, []byte("<?xml")) && i >= 0 {
		content = content[i+2:]
	}
	decl := []byte(`<?xml version="1.0" encoding="ISO-8859-1"?>` + "\n")
	encoded, err := charmap.ISO8859_1.NewEncoder().Bytes(bytes.TrimLeft(content, "\n"))
	if err != nil {
		return nil, err
	}
	return append(decl, encoded...), nil
}

func splitRUT(rut string) (body, dv string, err error) {
	normalized, err := pkgsii.NormalizeRUT(rut)
	if err != nil {
		return "", "", fmt.Errorf("sii: RUT del emisor: %w", err)
	}
	parts := strings.SplitN(normalized, "-", 2)
	return parts[0], parts[1], nil
}

// ── Mock para desarrollo local ────────────────────────────────────────────────

// MockSubmitter no toca la red: acepta todo envío con un TrackID sintético y
// responde ACP a toda consulta. Útil para desarrollo y ambientes sin acceso
// al SII.
type MockSubmitter struct {
	counter atomic.Int64
	log     zerolog.Logger
}

// NewMockSubmitter crea el mock.
func NewMockSubmitter(log zerolog.Logger) *MockSubmitter {
	return &MockSubmitter{log: log}
}

func (m *MockSubmitter) Submit(ctx context.Context, company *entity.Company, doc *entity.Document) (string, error) {
	trackID := fmt.Sprintf("MOCK-%d", m.counter.Add(1))
	m.log.Info().
		Str("company_id", company.ID).
		Int64("folio", doc.Folio).
		Str("track_id", trackID).
		Msg("envío simulado (modo mock)")
	return trackID, nil
}

func (m *MockSubmitter) QueryStatus(ctx context.Context, company *entity.Company, trackID string) (*StatusResponse, error) {
	return &StatusResponse{Estado: pkgsii.EstadoAceptado, Glosa: "Aceptado (simulado)"}, nil
}
