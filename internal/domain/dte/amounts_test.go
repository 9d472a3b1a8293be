package dte_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/dte-core/internal/domain/dte"
)

// ──────────────────────────────────────────────────────────────────────────────
// Escenario de referencia: venta con dos líneas (2 × 10.000 y 1 × 15.000,
// sin descuento, IVA 19%) debe dar neto 35.000, IVA 6.650 y total 41.650,
// con numeración 1 y 2 en el orden de entrada.
// ──────────────────────────────────────────────────────────────────────────────

func TestBuildItemsYComputeTotals_EscenarioReferencia(t *testing.T) {
	lines := []dte.SaleLine{
		{Description: "Producto A", Quantity: decimal.NewFromInt(2), UnitPrice: decimal.NewFromInt(10000)},
		{Description: "Producto B", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(15000)},
	}

	items, err := dte.BuildItems("doc-1", lines)
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, 1, items[0].LineNumber)
	assert.Equal(t, 2, items[1].LineNumber)
	assert.True(t, items[0].LineTotal.Equal(decimal.NewFromInt(20000)))
	assert.True(t, items[1].LineTotal.Equal(decimal.NewFromInt(15000)))

	totals, err := dte.ComputeTotals(items, false)
	require.NoError(t, err)
	assert.True(t, totals.Net.Equal(decimal.NewFromInt(35000)), "neto: %s", totals.Net)
	assert.True(t, totals.Tax.Equal(decimal.NewFromInt(6650)), "IVA: %s", totals.Tax)
	assert.True(t, totals.Total.Equal(decimal.NewFromInt(41650)), "total: %s", totals.Total)
	assert.True(t, totals.Exempt.IsZero())
}

// TestLineTotal_RedondeoHalfUp verifica que el redondeo por línea es half-up
// y se aplica una sola vez (no en pasos intermedios).
func TestLineTotal_RedondeoHalfUp(t *testing.T) {
	// 0.5 × 999 = 499.5 → el .5 sube: 500.
	got := dte.LineTotal(decimal.NewFromFloat(0.5), decimal.NewFromInt(999), decimal.Zero)
	assert.True(t, got.Equal(decimal.NewFromInt(500)), "499.5 debe redondear a 500, fue %s", got)

	// 0.4 × 999 = 399.6 → 400; con descuento 0.6: 399.0 → 399.
	got = dte.LineTotal(decimal.NewFromFloat(0.4), decimal.NewFromInt(999), decimal.NewFromFloat(0.6))
	assert.True(t, got.Equal(decimal.NewFromInt(399)), "fue %s", got)
}

// TestComputeTotals_IVASeRedondeaUnaVez: el IVA se calcula sobre el neto ya
// acumulado y se redondea una única vez en el total.
func TestComputeTotals_IVASeRedondeaUnaVez(t *testing.T) {
	lines := []dte.SaleLine{
		{Description: "A", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(7)},
		{Description: "B", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(7)},
	}
	items, err := dte.BuildItems("doc-2", lines)
	require.NoError(t, err)

	totals, err := dte.ComputeTotals(items, false)
	require.NoError(t, err)
	// 14 × 0.19 = 2.66 → 3 (una sola aplicación). Con doble redondeo por
	// línea sería 1 + 1 = 2.
	assert.True(t, totals.Tax.Equal(decimal.NewFromInt(3)), "IVA fue %s", totals.Tax)
	assert.True(t, totals.Total.Equal(decimal.NewFromInt(17)))
}

func TestComputeTotals_LineasExentas(t *testing.T) {
	lines := []dte.SaleLine{
		{Description: "Afecto", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(1000)},
		{Description: "Exento", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(500), Exempt: true},
	}
	items, err := dte.BuildItems("doc-3", lines)
	require.NoError(t, err)

	totals, err := dte.ComputeTotals(items, false)
	require.NoError(t, err)
	assert.True(t, totals.Net.Equal(decimal.NewFromInt(1000)))
	assert.True(t, totals.Tax.Equal(decimal.NewFromInt(190)))
	assert.True(t, totals.Exempt.Equal(decimal.NewFromInt(500)))
	assert.True(t, totals.Total.Equal(decimal.NewFromInt(1690)))
}

// TestComputeTotals_DocumentoExento: en un documento exento (tipo 34/41)
// todas las líneas van al acumulador exento aunque no estén marcadas.
func TestComputeTotals_DocumentoExento(t *testing.T) {
	lines := []dte.SaleLine{
		{Description: "Servicio", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(1000)},
	}
	items, err := dte.BuildItems("doc-4", lines)
	require.NoError(t, err)

	totals, err := dte.ComputeTotals(items, true)
	require.NoError(t, err)
	assert.True(t, totals.Net.IsZero())
	assert.True(t, totals.Tax.IsZero())
	assert.True(t, totals.Exempt.Equal(decimal.NewFromInt(1000)))
}

// ── Validaciones de entrada ───────────────────────────────────────────────────

func TestBuildItems_Errores(t *testing.T) {
	_, err := dte.BuildItems("d", nil)
	assert.Error(t, err, "venta sin líneas debe rechazarse")

	_, err = dte.BuildItems("d", []dte.SaleLine{
		{Description: "", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(1)},
	})
	assert.Error(t, err, "línea sin descripción debe rechazarse")

	_, err = dte.BuildItems("d", []dte.SaleLine{
		{Description: "x", Quantity: decimal.Zero, UnitPrice: decimal.NewFromInt(1)},
	})
	assert.Error(t, err, "cantidad cero debe rechazarse")

	_, err = dte.BuildItems("d", []dte.SaleLine{
		{Description: "x", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(-1)},
	})
	assert.Error(t, err, "precio negativo debe rechazarse")
}
