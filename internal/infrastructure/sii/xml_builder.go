package sii

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/dte-core/internal/domain/entity"
	pkgsii "github.com/jhoicas/dte-core/pkg/sii"
)

// DocumentBuildContext agrupa todo lo necesario para codificar el documento.
type DocumentBuildContext struct {
	Document *entity.Document
	Company  *entity.Company // Emisor
	Items    []*entity.DocumentItem
}

// XMLBuilderService codifica el documento en su forma canónica (sin TED ni
// firma). La salida es determinista: mismo input, mismos bytes — apta para
// hashear y timbrar. No incluye reloj de pared.
type XMLBuilderService struct{}

// NewXMLBuilderService crea el servicio.
func NewXMLBuilderService() *XMLBuilderService {
	return &XMLBuilderService{}
}

// DocumentElementID construye el atributo ID del nodo Documento, referenciado
// por la firma del emisor.
func DocumentElementID(dteType int, folio int64) string {
	return fmt.Sprintf("T%dF%d", dteType, folio)
}

// Build genera los bytes del DTE según el formato del SII. Todo campo de
// texto se trunca a su largo máximo (por runas, nunca se descarta); los
// montos van como pesos enteros ya redondeados por el dominio.
func (s *XMLBuilderService) Build(ctx *DocumentBuildContext) ([]byte, error) {
	if ctx == nil || ctx.Document == nil || ctx.Company == nil {
		return nil, fmt.Errorf("sii: faltan documento o emisor en el contexto")
	}
	doc := ctx.Document
	if len(ctx.Items) == 0 {
		return nil, fmt.Errorf("sii: documento sin líneas de detalle")
	}
	if doc.Receiver == nil && !entity.AnonymousReceiverAllowed(doc.DTEType) {
		return nil, fmt.Errorf("sii: el tipo %d exige identificar al receptor", doc.DTEType)
	}

	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")

	root := xml.StartElement{
		Name: xml.Name{Local: "DTE"},
		Attr: []xml.Attr{{Name: xml.Name{Local: "version"}, Value: "1.0"}},
	}
	if err := enc.EncodeToken(root); err != nil {
		return nil, err
	}

	documento := xml.StartElement{
		Name: xml.Name{Local: "Documento"},
		Attr: []xml.Attr{{Name: xml.Name{Local: "ID"}, Value: DocumentElementID(doc.DTEType, doc.Folio)}},
	}
	_ = enc.EncodeToken(documento)

	if err := s.writeEncabezado(enc, ctx); err != nil {
		return nil, err
	}
	for _, item := range ctx.Items {
		s.writeDetalle(enc, item)
	}
	if doc.Reference != nil {
		s.writeReferencia(enc, doc.Reference)
	}

	_ = enc.EncodeToken(documento.End())
	if err := enc.EncodeToken(root.End()); err != nil {
		return nil, err
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// writeEncabezado escribe IdDoc, Emisor, Receptor (si corresponde) y Totales.
func (s *XMLBuilderService) writeEncabezado(enc *xml.Encoder, ctx *DocumentBuildContext) error {
	doc := ctx.Document
	com := ctx.Company

	open(enc, "Encabezado")

	// ---- IdDoc
	open(enc, "IdDoc")
	writeEl(enc, "TipoDTE", strconv.Itoa(doc.DTEType))
	writeEl(enc, "Folio", strconv.FormatInt(doc.Folio, 10))
	writeEl(enc, "FchEmis", doc.IssueDate.Format("2006-01-02"))
	closeEl(enc, "IdDoc")

	// ---- Emisor
	issuerRUT, err := pkgsii.NormalizeRUT(com.RUT)
	if err != nil {
		return fmt.Errorf("sii: RUT del emisor: %w", err)
	}
	open(enc, "Emisor")
	writeEl(enc, "RUTEmisor", issuerRUT)
	writeEl(enc, "RznSoc", pkgsii.TruncateField(com.RazonSocial, pkgsii.MaxLenRazonSocial))
	writeEl(enc, "GiroEmis", pkgsii.TruncateField(com.Giro, pkgsii.MaxLenGiro))
	writeEl(enc, "DirOrigen", pkgsii.TruncateField(com.Direccion, pkgsii.MaxLenDireccion))
	writeEl(enc, "CmnaOrigen", pkgsii.TruncateField(com.Comuna, pkgsii.MaxLenComuna))
	closeEl(enc, "Emisor")

	// ---- Receptor: se omite completo para boletas sin receptor, jamás se
	// emite con campos vacíos.
	if doc.Receiver != nil {
		recepRUT, err := pkgsii.NormalizeRUT(doc.Receiver.RUT)
		if err != nil {
			return fmt.Errorf("sii: RUT del receptor: %w", err)
		}
		open(enc, "Receptor")
		writeEl(enc, "RUTRecep", recepRUT)
		writeEl(enc, "RznSocRecep", pkgsii.TruncateField(doc.Receiver.RazonSocial, pkgsii.MaxLenRazonSocial))
		if doc.Receiver.Giro != "" {
			writeEl(enc, "GiroRecep", pkgsii.TruncateField(doc.Receiver.Giro, pkgsii.MaxLenGiro))
		}
		if doc.Receiver.Direccion != "" {
			writeEl(enc, "DirRecep", pkgsii.TruncateField(doc.Receiver.Direccion, pkgsii.MaxLenDireccion))
		}
		if doc.Receiver.Comuna != "" {
			writeEl(enc, "CmnaRecep", pkgsii.TruncateField(doc.Receiver.Comuna, pkgsii.MaxLenComuna))
		}
		closeEl(enc, "Receptor")
	}

	// ---- Totales: montos enteros; los ceros estructurales se emiten solo
	// si la sección aplica (neto/IVA en documentos afectos, exento si hay).
	open(enc, "Totales")
	if doc.NetTotal.IsPositive() || doc.TaxTotal.IsPositive() {
		writeEl(enc, "MntNeto", formatAmount(doc.NetTotal))
		writeEl(enc, "TasaIVA", strconv.Itoa(pkgsii.TaxRatePercent))
		writeEl(enc, "IVA", formatAmount(doc.TaxTotal))
	}
	if doc.ExemptTotal.IsPositive() {
		writeEl(enc, "MntExe", formatAmount(doc.ExemptTotal))
	}
	writeEl(enc, "MntTotal", formatAmount(doc.GrandTotal))
	closeEl(enc, "Totales")

	closeEl(enc, "Encabezado")
	return nil
}

func (s *XMLBuilderService) writeDetalle(enc *xml.Encoder, item *entity.DocumentItem) {
	open(enc, "Detalle")
	writeEl(enc, "NroLinDet", strconv.Itoa(item.LineNumber))
	if item.Exempt {
		writeEl(enc, "IndExe", "1")
	}
	writeEl(enc, "NmbItem", pkgsii.TruncateField(item.Description, pkgsii.MaxLenItemName))
	writeEl(enc, "QtyItem", item.Quantity.String())
	writeEl(enc, "PrcItem", item.UnitPrice.String())
	if item.Discount.IsPositive() {
		writeEl(enc, "DescuentoMonto", formatAmount(item.Discount))
	}
	writeEl(enc, "MontoItem", formatAmount(item.LineTotal))
	closeEl(enc, "Detalle")
}

// writeReferencia emite la referencia cruzada (ej: reemisión corregida de un
// folio rechazado, o nota de crédito que anula una factura).
func (s *XMLBuilderService) writeReferencia(enc *xml.Encoder, ref *entity.Reference) {
	open(enc, "Referencia")
	writeEl(enc, "NroLinRef", "1")
	writeEl(enc, "TpoDocRef", strconv.Itoa(ref.DTEType))
	writeEl(enc, "FolioRef", strconv.FormatInt(ref.Folio, 10))
	writeEl(enc, "FchRef", ref.Date.Format("2006-01-02"))
	if ref.Reason != "" {
		writeEl(enc, "RazonRef", pkgsii.TruncateField(ref.Reason, pkgsii.MaxLenRefReason))
	}
	closeEl(enc, "Referencia")
}

// InjectTED inserta el bloque TED como último hijo de Documento. Se hace con
// etree porque el TED ya viene serializado y firmado (sus bytes no deben
// tocarse).
func InjectTED(xmlBytes, ted []byte) ([]byte, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(xmlBytes); err != nil {
		return nil, fmt.Errorf("sii: parsear XML para inyectar TED: %w", err)
	}
	documento := doc.FindElement("//Documento")
	if documento == nil {
		return nil, fmt.Errorf("sii: no se encontró el nodo Documento")
	}
	tedDoc := etree.NewDocument()
	if err := tedDoc.ReadFromBytes(ted); err != nil {
		return nil, fmt.Errorf("sii: parsear TED: %w", err)
	}
	tedRoot := tedDoc.Root()
	if tedRoot == nil {
		return nil, fmt.Errorf("sii: TED sin raíz")
	}
	documento.AddChild(tedRoot)

	var out bytes.Buffer
	if _, err := doc.WriteTo(&out); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// ── helpers de tokens ─────────────────────────────────────────────────────────

func open(enc *xml.Encoder, local string) {
	_ = enc.EncodeToken(xml.StartElement{Name: xml.Name{Local: local}})
}

func closeEl(enc *xml.Encoder, local string) {
	_ = enc.EncodeToken(xml.EndElement{Name: xml.Name{Local: local}})
}

func writeEl(enc *xml.Encoder, local, value string) {
	open(enc, local)
	_ = enc.EncodeToken(xml.CharData(value))
	closeEl(enc, local)
}

func formatAmount(d decimal.Decimal) string {
	return d.Round(0).String()
}
