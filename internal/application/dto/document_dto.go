package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// CreateDocumentRequest body para POST /api/documents.
type CreateDocumentRequest struct {
	CompanyID string             `json:"company_id"`
	DTEType   int                `json:"dte_type"`
	SaleAt    time.Time          `json:"sale_at"`
	Receiver  *ReceiverRequest   `json:"receiver,omitempty"` // nil = receptor anónimo (solo boletas)
	Reference *ReferenceRequest  `json:"reference,omitempty"`
	Items     []SaleLineRequest  `json:"items"`
}

// ReceiverRequest identidad del receptor.
type ReceiverRequest struct {
	RUT         string `json:"rut"`
	RazonSocial string `json:"razon_social"`
	Giro        string `json:"giro,omitempty"`
	Direccion   string `json:"direccion,omitempty"`
	Comuna      string `json:"comuna,omitempty"`
}

// ReferenceRequest referencia cruzada a otro DTE.
type ReferenceRequest struct {
	DTEType int    `json:"dte_type"`
	Folio   int64  `json:"folio"`
	Date    string `json:"date"` // YYYY-MM-DD
	Reason  string `json:"reason,omitempty"`
}

// SaleLineRequest línea de la venta (sin numerar; el servicio numera denso desde 1).
type SaleLineRequest struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Discount    decimal.Decimal `json:"discount,omitempty"`
	Exempt      bool            `json:"exempt,omitempty"`
}

// DocumentResponse documento con totales para GET /api/documents/:id.
type DocumentResponse struct {
	ID          string                 `json:"id"`
	CompanyID   string                 `json:"company_id"`
	DTEType     int                    `json:"dte_type"`
	Folio       int64                  `json:"folio"`
	IssueDate   string                 `json:"issue_date"`
	Status      string                 `json:"status"`
	NetTotal    decimal.Decimal        `json:"net_total"`
	TaxTotal    decimal.Decimal        `json:"tax_total"`
	ExemptTotal decimal.Decimal        `json:"exempt_total"`
	GrandTotal  decimal.Decimal        `json:"grand_total"`
	TrackID     string                 `json:"track_id,omitempty"`
	LastError   string                 `json:"last_error,omitempty"`
	Items       []DocumentItemResponse `json:"items,omitempty"`
}

// DocumentItemResponse línea de detalle en la respuesta.
type DocumentItemResponse struct {
	LineNumber  int             `json:"line_number"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Discount    decimal.Decimal `json:"discount,omitempty"`
	Exempt      bool            `json:"exempt,omitempty"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

// DocumentStatusDTO respuesta ligera para el polling GET /api/documents/:id/status.
type DocumentStatusDTO struct {
	ID        string `json:"id"`
	Status    string `json:"status"` // CREATED|...|PENDING_SUBMIT|SENT|ACCEPTED|REJECTED|ERROR|CANCELLED
	TrackID   string `json:"track_id,omitempty"`
	LastError string `json:"last_error,omitempty"`
}

// FolioRangeResponse rango de folios para GET /api/companies/:id/folios.
type FolioRangeResponse struct {
	ID           string `json:"id"`
	DTEType      int    `json:"dte_type"`
	FolioFrom    int64  `json:"folio_from"`
	FolioTo      int64  `json:"folio_to"`
	NextFolio    int64  `json:"next_folio"`
	Remaining    int64  `json:"remaining"`
	AuthorizedAt string `json:"authorized_at"`
	ExpiresAt    string `json:"expires_at"`
}

// CreateCompanyRequest body para POST /api/companies.
type CreateCompanyRequest struct {
	RUT             string `json:"rut"`
	RazonSocial     string `json:"razon_social"`
	Giro            string `json:"giro"`
	Direccion       string `json:"direccion"`
	Comuna          string `json:"comuna"`
	CertPath        string `json:"cert_path,omitempty"`
	CertKeyPath     string `json:"cert_key_path,omitempty"`
	CertPassword    string `json:"cert_password,omitempty"`
	SubmitDelaySecs int    `json:"submit_delay_secs"`
}

// CompanyResponse emisor en respuestas.
type CompanyResponse struct {
	ID              string `json:"id"`
	RUT             string `json:"rut"`
	RazonSocial     string `json:"razon_social"`
	Giro            string `json:"giro,omitempty"`
	Direccion       string `json:"direccion,omitempty"`
	Comuna          string `json:"comuna,omitempty"`
	SubmitDelaySecs int    `json:"submit_delay_secs"`
}
