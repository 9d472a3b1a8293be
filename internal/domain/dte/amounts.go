// Package dte: reglas de cálculo y timbraje del documento tributario.
// Los montos DTE son pesos enteros; el redondeo half-up se aplica una sola
// vez por línea y una sola vez en los totales, nunca en pasos intermedios.
package dte

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/dte-core/internal/domain/entity"
)

// taxRate tasa de IVA como fracción (19% → 0.19).
var taxRate = decimal.NewFromInt(19).Div(decimal.NewFromInt(100))

// Totals agrupa los totales calculados de un documento.
type Totals struct {
	Net    decimal.Decimal // Neto afecto (sin IVA)
	Tax    decimal.Decimal // IVA sobre el neto
	Exempt decimal.Decimal // Suma de líneas exentas
	Total  decimal.Decimal // Net + Tax + Exempt
}

// LineTotal calcula el total de una línea: cantidad × precio − descuento,
// redondeado half-up a peso entero. decimal.Round redondea half-away-from-zero,
// que para montos no negativos equivale a half-up.
func LineTotal(quantity, unitPrice, discount decimal.Decimal) decimal.Decimal {
	return quantity.Mul(unitPrice).Sub(discount).Round(0)
}

// ComputeTotals calcula los totales a partir de las líneas ya redondeadas.
// El IVA se redondea una única vez, sobre el neto acumulado, de modo que
// Total = Net + Tax + Exempt se cumple siempre de forma exacta.
func ComputeTotals(items []*entity.DocumentItem, exemptDocument bool) (Totals, error) {
	if len(items) == 0 {
		return Totals{}, fmt.Errorf("dte: el documento requiere al menos una línea")
	}
	var net, exempt decimal.Decimal
	for _, it := range items {
		if it.LineTotal.IsNegative() {
			return Totals{}, fmt.Errorf("dte: línea %d con total negativo", it.LineNumber)
		}
		if it.Exempt || exemptDocument {
			exempt = exempt.Add(it.LineTotal)
		} else {
			net = net.Add(it.LineTotal)
		}
	}
	tax := net.Mul(taxRate).Round(0)
	return Totals{
		Net:    net,
		Tax:    tax,
		Exempt: exempt,
		Total:  net.Add(tax).Add(exempt),
	}, nil
}

// BuildItems valida y materializa las líneas de la venta en DocumentItems,
// con numeración densa desde 1 en el orden recibido y el total por línea ya
// redondeado. El truncado de descripciones ocurre en la codificación XML, no
// aquí: las líneas conservan el texto completo para auditoría.
func BuildItems(docID string, lines []SaleLine) ([]*entity.DocumentItem, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("dte: la venta no tiene líneas")
	}
	items := make([]*entity.DocumentItem, 0, len(lines))
	for i, ln := range lines {
		if ln.Description == "" {
			return nil, fmt.Errorf("dte: línea %d sin descripción", i+1)
		}
		if !ln.Quantity.IsPositive() {
			return nil, fmt.Errorf("dte: línea %d con cantidad no positiva", i+1)
		}
		if ln.UnitPrice.IsNegative() || ln.Discount.IsNegative() {
			return nil, fmt.Errorf("dte: línea %d con precio o descuento negativo", i+1)
		}
		items = append(items, &entity.DocumentItem{
			ID:          uuid.NewString(),
			DocumentID:  docID,
			LineNumber:  i + 1,
			Description: ln.Description,
			Quantity:    ln.Quantity,
			UnitPrice:   ln.UnitPrice,
			Discount:    ln.Discount,
			Exempt:      ln.Exempt,
			LineTotal:   LineTotal(ln.Quantity, ln.UnitPrice, ln.Discount),
		})
	}
	return items, nil
}

// SaleLine es una línea de la venta tal como la entrega el colaborador de
// ventas (sin numerar ni redondear).
type SaleLine struct {
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	Discount    decimal.Decimal
	Exempt      bool
}
