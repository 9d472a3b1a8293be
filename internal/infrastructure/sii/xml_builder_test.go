package sii

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/dte-core/internal/domain/entity"
)

func buildTestContext() *DocumentBuildContext {
	issue := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	return &DocumentBuildContext{
		Company: &entity.Company{
			RUT:         "76543212-K",
			RazonSocial: "Comercial Andina SpA",
			Giro:        "Venta al por menor",
			Direccion:   "Av. Providencia 1234",
			Comuna:      "Providencia",
		},
		Document: &entity.Document{
			ID:        "doc-1",
			DTEType:   33,
			Folio:     42,
			IssueDate: issue,
			Receiver: &entity.Receiver{
				RUT:         "12345678-5",
				RazonSocial: "Cliente Ejemplo Ltda",
				Giro:        "Servicios",
				Direccion:   "Calle Uno 999",
				Comuna:      "Santiago",
			},
			NetTotal:    decimal.NewFromInt(35000),
			TaxTotal:    decimal.NewFromInt(6650),
			ExemptTotal: decimal.Zero,
			GrandTotal:  decimal.NewFromInt(41650),
		},
		Items: []*entity.DocumentItem{
			{
				LineNumber:  1,
				Description: "Producto A",
				Quantity:    decimal.NewFromInt(2),
				UnitPrice:   decimal.NewFromInt(10000),
				LineTotal:   decimal.NewFromInt(20000),
			},
			{
				LineNumber:  2,
				Description: "Producto B",
				Quantity:    decimal.NewFromInt(1),
				UnitPrice:   decimal.NewFromInt(15000),
				LineTotal:   decimal.NewFromInt(15000),
			},
		},
	}
}

// ═══════════════════════════════════════════════
// Codificación canónica
// ═══════════════════════════════════════════════

func TestBuild_EstructuraBasica(t *testing.T) {
	builder := NewXMLBuilderService()
	out, err := builder.Build(buildTestContext())
	require.NoError(t, err)

	xml := string(out)
	assert.Contains(t, xml, `<Documento ID="T33F42">`, "el ID debe codificar tipo y folio")
	assert.Contains(t, xml, "<TipoDTE>33</TipoDTE>")
	assert.Contains(t, xml, "<Folio>42</Folio>")
	assert.Contains(t, xml, "<FchEmis>2026-03-14</FchEmis>")
	assert.Contains(t, xml, "<RUTEmisor>76543212-K</RUTEmisor>")
	assert.Contains(t, xml, "<RUTRecep>12345678-5</RUTRecep>")
	assert.Contains(t, xml, "<MntNeto>35000</MntNeto>")
	assert.Contains(t, xml, "<TasaIVA>19</TasaIVA>")
	assert.Contains(t, xml, "<IVA>6650</IVA>")
	assert.Contains(t, xml, "<MntTotal>41650</MntTotal>")
	assert.Contains(t, xml, "<NroLinDet>1</NroLinDet>")
	assert.Contains(t, xml, "<NroLinDet>2</NroLinDet>")
	assert.NotContains(t, xml, "<MntExe>", "sin líneas exentas no debe haber MntExe")
}

func TestBuild_Determinista(t *testing.T) {
	builder := NewXMLBuilderService()
	a, err := builder.Build(buildTestContext())
	require.NoError(t, err)
	b, err := builder.Build(buildTestContext())
	require.NoError(t, err)
	assert.Equal(t, a, b, "mismo input debe producir exactamente los mismos bytes")
}

func TestBuild_ReceptorAnonimoSeOmiteCompleto(t *testing.T) {
	ctx := buildTestContext()
	ctx.Document.DTEType = 39
	ctx.Document.Receiver = nil

	builder := NewXMLBuilderService()
	out, err := builder.Build(ctx)
	require.NoError(t, err)

	assert.NotContains(t, string(out), "<Receptor>", "el bloque receptor se omite, no se emite vacío")
	assert.NotContains(t, string(out), "<RUTRecep>")
}

func TestBuild_ReceptorObligatorioEnFactura(t *testing.T) {
	ctx := buildTestContext()
	ctx.Document.Receiver = nil // tipo 33 no admite anónimo

	builder := NewXMLBuilderService()
	_, err := builder.Build(ctx)
	assert.Error(t, err, "una factura sin receptor debe rechazarse")
}

func TestBuild_LineaExenta(t *testing.T) {
	ctx := buildTestContext()
	ctx.Items[1].Exempt = true
	ctx.Document.ExemptTotal = decimal.NewFromInt(15000)

	builder := NewXMLBuilderService()
	out, err := builder.Build(ctx)
	require.NoError(t, err)

	assert.Contains(t, string(out), "<IndExe>1</IndExe>")
	assert.Contains(t, string(out), "<MntExe>15000</MntExe>")
}

func TestBuild_Referencia(t *testing.T) {
	ctx := buildTestContext()
	ctx.Document.DTEType = 61
	ctx.Document.Reference = &entity.Reference{
		DTEType: 33,
		Folio:   41,
		Date:    time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		Reason:  "Anula factura rechazada",
	}

	builder := NewXMLBuilderService()
	out, err := builder.Build(ctx)
	require.NoError(t, err)

	xml := string(out)
	assert.Contains(t, xml, "<TpoDocRef>33</TpoDocRef>")
	assert.Contains(t, xml, "<FolioRef>41</FolioRef>")
	assert.Contains(t, xml, "<FchRef>2026-03-10</FchRef>")
	assert.Contains(t, xml, "<RazonRef>Anula factura rechazada</RazonRef>")
}

func TestBuild_TruncaCamposLargos(t *testing.T) {
	ctx := buildTestContext()
	ctx.Company.RazonSocial = strings.Repeat("A", 150)
	ctx.Items[0].Description = strings.Repeat("B", 120)

	builder := NewXMLBuilderService()
	out, err := builder.Build(ctx)
	require.NoError(t, err)

	xml := string(out)
	assert.Contains(t, xml, "<RznSoc>"+strings.Repeat("A", 100)+"</RznSoc>")
	assert.Contains(t, xml, "<NmbItem>"+strings.Repeat("B", 80)+"</NmbItem>")
}

func TestBuild_EscapaCaracteresEspeciales(t *testing.T) {
	ctx := buildTestContext()
	ctx.Items[0].Description = "Tornillos <3/4\"> & tuercas"

	builder := NewXMLBuilderService()
	out, err := builder.Build(ctx)
	require.NoError(t, err)

	assert.Contains(t, string(out), "Tornillos &lt;3/4&#34;&gt; &amp; tuercas")
}

func TestBuild_SinLineasFalla(t *testing.T) {
	ctx := buildTestContext()
	ctx.Items = nil

	builder := NewXMLBuilderService()
	_, err := builder.Build(ctx)
	assert.Error(t, err)
}

// ═══════════════════════════════════════════════
// Inyección del TED
// ═══════════════════════════════════════════════

func TestInjectTED(t *testing.T) {
	builder := NewXMLBuilderService()
	out, err := builder.Build(buildTestContext())
	require.NoError(t, err)

	ted := []byte(`<TED version="1.0"><DD><RE>76543212-K</RE></DD><FRMT algoritmo="SHA1withRSA">Zm9v</FRMT></TED>`)
	withTED, err := InjectTED(out, ted)
	require.NoError(t, err)

	xml := string(withTED)
	assert.Contains(t, xml, `<FRMT algoritmo="SHA1withRSA">Zm9v</FRMT>`)
	// El TED queda dentro de Documento, después del detalle.
	tedPos := strings.Index(xml, "<TED")
	detPos := strings.LastIndex(xml, "</Detalle>")
	docEnd := strings.Index(xml, "</Documento>")
	require.True(t, tedPos > detPos, "el TED va después del detalle")
	require.True(t, tedPos < docEnd, "el TED va dentro de Documento")
}

func TestInjectTED_SinDocumentoFalla(t *testing.T) {
	_, err := InjectTED([]byte("<Otro/>"), []byte("<TED/>"))
	assert.Error(t, err)
}
