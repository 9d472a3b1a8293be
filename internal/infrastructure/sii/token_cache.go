package sii

import (
	"sync"
	"time"
)

// TokenCache guarda tokens de sesión del SII por emisor. Un token sirve para
// todos los envíos del emisor mientras no expire la ventana.
type TokenCache interface {
	Get(companyID string) (string, bool)
	Put(companyID, token string, expiresAt time.Time)
	Invalidate(companyID string)
}

type cachedToken struct {
	token     string
	expiresAt time.Time
}

// MemoryTokenCache es la implementación en memoria. Segura para uso
// concurrente; now es inyectable para las pruebas.
type MemoryTokenCache struct {
	mu     sync.Mutex
	tokens map[string]cachedToken
	now    func() time.Time
}

// NewMemoryTokenCache crea el cache vacío.
func NewMemoryTokenCache() *MemoryTokenCache {
	return &MemoryTokenCache{
		tokens: make(map[string]cachedToken),
		now:    time.Now,
	}
}

// Get devuelve el token vigente del emisor, si existe. Un token expirado se
// descarta en la misma lectura.
func (c *MemoryTokenCache) Get(companyID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.tokens[companyID]
	if !ok {
		return "", false
	}
	if !c.now().Before(entry.expiresAt) {
		delete(c.tokens, companyID)
		return "", false
	}
	return entry.token, true
}

// Put registra el token del emisor con su instante de expiración.
func (c *MemoryTokenCache) Put(companyID, token string, expiresAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens[companyID] = cachedToken{token: token, expiresAt: expiresAt}
}

// Invalidate descarta el token del emisor; el próximo envío forzará un nuevo
// handshake.
func (c *MemoryTokenCache) Invalidate(companyID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tokens, companyID)
}

var _ TokenCache = (*MemoryTokenCache)(nil)
