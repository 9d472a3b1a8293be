// Autenticación contra el SII: semilla → semilla firmada → token de sesión.
// El token se cachea por emisor; un solo handshake por ventana de vigencia.

package sii

import (
	"bytes"
	"context"
	"crypto"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jhoicas/dte-core/internal/domain"
	"github.com/jhoicas/dte-core/internal/domain/entity"
)

// TokenTTL es la vigencia asumida del token de sesión. El SII no la informa
// en la respuesta, así que se renueva antes del corte real del servidor.
const TokenTTL = 45 * time.Minute

// ── Puerto hacia los endpoints de autenticación ───────────────────────────────

// AuthAPI abstrae los dos endpoints HTTP del handshake. Para tests se inyecta
// un stub; la implementación real hace GET/POST contra el ambiente configurado.
type AuthAPI interface {
	// FetchSeed obtiene una semilla fresca (GET CrSeed).
	FetchSeed(ctx context.Context) ([]byte, error)
	// FetchToken canjea la semilla firmada por un token (POST GetTokenFromSeed).
	FetchToken(ctx context.Context, signedSeed []byte) ([]byte, error)
}

// CertProvider resuelve el certificado de firma del emisor.
type CertProvider func(company *entity.Company) (tls.Certificate, error)

// ── AuthGateway ───────────────────────────────────────────────────────────────

// AuthGateway gestiona tokens de sesión por emisor. Concurrente-seguro: los
// handshakes se serializan para que N envíos simultáneos del mismo emisor no
// disparen N handshakes.
type AuthGateway struct {
	api   AuthAPI
	cache TokenCache
	certs CertProvider
	log   zerolog.Logger
	now   func() time.Time

	mu sync.Mutex // serializa handshakes
}

// NewAuthGateway crea el gateway con el cache y proveedor de certificados dados.
func NewAuthGateway(api AuthAPI, cache TokenCache, certs CertProvider, log zerolog.Logger) *AuthGateway {
	return &AuthGateway{
		api:   api,
		cache: cache,
		certs: certs,
		log:   log,
		now:   time.Now,
	}
}

// Token devuelve un token vigente para el emisor, haciendo el handshake solo
// si el cache no tiene uno. Todo fallo del handshake es recuperable: se
// envuelve en ErrAuthenticationFailed y el scheduler reintenta.
func (g *AuthGateway) Token(ctx context.Context, company *entity.Company) (string, error) {
	if token, ok := g.cache.Get(company.ID); ok {
		return token, nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	// Otro envío pudo completar el handshake mientras esperábamos el lock.
	if token, ok := g.cache.Get(company.ID); ok {
		return token, nil
	}

	cert, err := g.certs(company)
	if err != nil {
		return "", fmt.Errorf("%w: certificado del emisor %s: %v", domain.ErrAuthenticationFailed, company.RUT, err)
	}

	rawSeed, err := g.api.FetchSeed(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: obtener semilla: %v", domain.ErrAuthenticationFailed, err)
	}
	seedResp, err := ParseSeedResponse(rawSeed)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrAuthenticationFailed, err)
	}

	signedSeed, err := BuildSignedSeed(seedResp.Seed, cert)
	if err != nil {
		return "", fmt.Errorf("%w: firmar semilla: %v", domain.ErrAuthenticationFailed, err)
	}

	rawToken, err := g.api.FetchToken(ctx, signedSeed)
	if err != nil {
		return "", fmt.Errorf("%w: canjear token: %v", domain.ErrAuthenticationFailed, err)
	}
	tokenResp, err := ParseTokenResponse(rawToken)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrAuthenticationFailed, err)
	}

	expiresAt := g.now().Add(TokenTTL)
	g.cache.Put(company.ID, tokenResp.Token, expiresAt)
	g.log.Info().
		Str("company_id", company.ID).
		Time("expires_at", expiresAt).
		Msg("token SII obtenido")
	return tokenResp.Token, nil
}

// Invalidate descarta el token cacheado del emisor. Se invoca cuando el SII
// rechaza un envío por token vencido o inválido.
func (g *AuthGateway) Invalidate(companyID string) {
	g.cache.Invalidate(companyID)
}

// BuildSignedSeed arma el XML getToken con la semilla y le inyecta una firma
// enveloped sobre el documento completo (Reference URI vacía).
func BuildSignedSeed(seed string, cert tls.Certificate) ([]byte, error) {
	priv, ok := cert.PrivateKey.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("sii: el certificado debe incluir llave privada RSA")
	}
	x509Cert, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return nil, fmt.Errorf("sii: parsear certificado: %w", err)
	}

	doc := `<getToken><item><Semilla>` + seed + `</Semilla></item></getToken>`
	canonicalDoc, err := canonicalizeXML([]byte(doc))
	if err != nil {
		canonicalDoc = []byte(doc)
	}
	docDigest := sha1.Sum(canonicalDoc)

	signedInfo := buildSignedInfoSeed(base64.StdEncoding.EncodeToString(docDigest[:]))
	canonicalSI, err := canonicalizeXML([]byte(signedInfo))
	if err != nil {
		canonicalSI = []byte(signedInfo)
	}
	siHash := sha1.Sum(canonicalSI)
	signatureValue, err := rsa.SignPKCS1v15(nil, priv, crypto.SHA1, siHash[:])
	if err != nil {
		return nil, fmt.Errorf("sii: firmar semilla: %w", err)
	}

	signature := buildSignatureXML(
		signedInfo,
		base64.StdEncoding.EncodeToString(signatureValue),
		base64.StdEncoding.EncodeToString(priv.PublicKey.N.Bytes()),
		base64.StdEncoding.EncodeToString(bigEndianExponent(priv.PublicKey.E)),
		base64.StdEncoding.EncodeToString(x509Cert.Raw),
	)

	var sb strings.Builder
	sb.WriteString(`<getToken><item><Semilla>`)
	sb.WriteString(seed)
	sb.WriteString(`</Semilla></item>`)
	sb.WriteString(signature)
	sb.WriteString(`</getToken>`)
	return []byte(sb.String()), nil
}

// buildSignedInfoSeed es como buildSignedInfo pero con Reference URI vacía:
// la firma de la semilla cubre el documento completo, no un nodo con ID.
func buildSignedInfoSeed(docDigestB64 string) string {
	var sb strings.Builder
	sb.WriteString(`<SignedInfo xmlns="` + NamespaceDS + `">`)
	sb.WriteString(`<CanonicalizationMethod Algorithm="` + AlgC14N + `"/>`)
	sb.WriteString(`<SignatureMethod Algorithm="` + AlgRSASHA1 + `"/>`)
	sb.WriteString(`<Reference URI="">`)
	sb.WriteString(`<Transforms><Transform Algorithm="` + TransformEnveloped + `"/></Transforms>`)
	sb.WriteString(`<DigestMethod Algorithm="` + AlgSHA1 + `"/>`)
	sb.WriteString(`<DigestValue>` + docDigestB64 + `</DigestValue>`)
	sb.WriteString(`</Reference>`)
	sb.WriteString(`</SignedInfo>`)
	return sb.String()
}

// ── Implementación HTTP ───────────────────────────────────────────────────────

// HTTPAuthAPI implementa AuthAPI contra los endpoints reales del SII.
type HTTPAuthAPI struct {
	seedURL    string
	tokenURL   string
	httpClient *http.Client
}

// NewHTTPAuthAPI construye el cliente con un timeout generoso: los endpoints
// del SII pueden tardar varios segundos.
func NewHTTPAuthAPI(seedURL, tokenURL string) *HTTPAuthAPI {
	return &HTTPAuthAPI{
		seedURL:    seedURL,
		tokenURL:   tokenURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (a *HTTPAuthAPI) FetchSeed(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.seedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("sii: crear request de semilla: %w", err)
	}
	return a.do(req)
}

func (a *HTTPAuthAPI) FetchToken(ctx context.Context, signedSeed []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.tokenURL, bytes.NewReader(signedSeed))
	if err != nil {
		return nil, fmt.Errorf("sii: crear request de token: %w", err)
	}
	req.Header.Set("Content-Type", "application/xml")
	return a.do(req)
}

func (a *HTTPAuthAPI) do(req *http.Request) ([]byte, error) {
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sii: llamada HTTP fallida: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sii: el endpoint respondió HTTP %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20)) // max 1 MB
	if err != nil {
		return nil, fmt.Errorf("sii: leer respuesta: %w", err)
	}
	return body, nil
}

var _ AuthAPI = (*HTTPAuthAPI)(nil)
