package folio

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/dte-core/internal/domain"
	"github.com/jhoicas/dte-core/internal/domain/entity"
)

type fakeCompanyRepo struct {
	companies map[string]*entity.Company
}

func (f *fakeCompanyRepo) Create(ctx context.Context, c *entity.Company) error { return nil }
func (f *fakeCompanyRepo) GetByID(ctx context.Context, id string) (*entity.Company, error) {
	if c, ok := f.companies[id]; ok {
		return c, nil
	}
	return nil, domain.ErrNotFound
}
func (f *fakeCompanyRepo) List(ctx context.Context) ([]*entity.Company, error) { return nil, nil }
func (f *fakeCompanyRepo) Update(ctx context.Context, c *entity.Company) error { return nil }
func (f *fakeCompanyRepo) GetSubmitDelaySecs(ctx context.Context, id string) (int, error) {
	return 0, nil
}

func cafFor(t *testing.T, rut string, dteType int, from, to int64, authorizedAt string) []byte {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 1024)
	require.NoError(t, err)
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	return []byte(fmt.Sprintf(`<AUTORIZACION><CAF version="1.0"><DA><RE>%s</RE><TD>%d</TD><RNG><D>%d</D><H>%d</H></RNG><FA>%s</FA></DA></CAF><RSASK>%s</RSASK></AUTORIZACION>`,
		rut, dteType, from, to, authorizedAt, keyPEM))
}

func recentDate() string {
	return time.Now().AddDate(0, -1, 0).Format("2006-01-02")
}

func staleDate() string {
	return time.Now().AddDate(-2, 0, 0).Format("2006-01-02")
}

func newLoader(t *testing.T) (*Loader, *fakeFolioRepo) {
	t.Helper()
	folioRepo := &fakeFolioRepo{}
	companyRepo := &fakeCompanyRepo{companies: map[string]*entity.Company{
		"co-1": {ID: "co-1", RUT: "76543212-K"},
	}}
	return NewLoader(folioRepo, companyRepo, zerolog.Nop()), folioRepo
}

func TestLoad_RegistraElRango(t *testing.T) {
	loader, repo := newLoader(t)
	raw := cafFor(t, "76543212-K", 39, 1, 500, recentDate())

	fr, err := loader.Load(context.Background(), "co-1", raw)
	require.NoError(t, err)

	assert.Equal(t, "co-1", fr.CompanyID)
	assert.Equal(t, 39, fr.DTEType)
	assert.Equal(t, int64(1), fr.NextFolio)
	assert.NotEmpty(t, fr.ID, "rango persistido sin ID")
	assert.Len(t, repo.ranges, 1)
}

// Dos cargas consecutivas registran rangos con identidad distinta; el CAS de
// asignación se apoya en ese ID para no confundir rangos.
func TestLoad_CadaRangoConIDDistinto(t *testing.T) {
	loader, repo := newLoader(t)

	fr1, err := loader.Load(context.Background(), "co-1", cafFor(t, "76543212-K", 39, 1, 500, recentDate()))
	require.NoError(t, err)
	fr2, err := loader.Load(context.Background(), "co-1", cafFor(t, "76543212-K", 39, 501, 1000, recentDate()))
	require.NoError(t, err)

	require.NotEmpty(t, fr1.ID)
	require.NotEmpty(t, fr2.ID)
	assert.NotEqual(t, fr1.ID, fr2.ID)
	assert.Len(t, repo.ranges, 2)
}

func TestLoad_RUTAjenoSeRechaza(t *testing.T) {
	loader, repo := newLoader(t)
	raw := cafFor(t, "12345678-5", 39, 1, 500, recentDate())

	_, err := loader.Load(context.Background(), "co-1", raw)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pertenece a")
	assert.Empty(t, repo.ranges, "un CAF ajeno no toca la base")
}

func TestLoad_CAFVencidoSeRechaza(t *testing.T) {
	loader, _ := newLoader(t)
	raw := cafFor(t, "76543212-K", 39, 1, 500, staleDate())

	_, err := loader.Load(context.Background(), "co-1", raw)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "venció")
}

func TestLoad_TipoNoSoportado(t *testing.T) {
	loader, _ := newLoader(t)
	raw := cafFor(t, "76543212-K", 110, 1, 500, recentDate())

	_, err := loader.Load(context.Background(), "co-1", raw)
	assert.Error(t, err)
}

func TestLoad_EmisorInexistente(t *testing.T) {
	loader, _ := newLoader(t)
	raw := cafFor(t, "76543212-K", 39, 1, 500, recentDate())

	_, err := loader.Load(context.Background(), "no-existe", raw)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
