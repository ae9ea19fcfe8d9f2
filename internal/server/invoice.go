package server

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/cityofhelsinki/mvj/internal/calendar"
	invoicedomain "github.com/cityofhelsinki/mvj/internal/invoice/domain"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type InvoiceRowResponse struct {
	ID               string `json:"id,omitempty"`
	TenantID         string `json:"tenant_id,omitempty"`
	ReceivableTypeID string `json:"receivable_type_id"`
	Type             string `json:"type"`
	StartDate        string `json:"billing_period_start_date,omitempty"`
	EndDate          string `json:"billing_period_end_date,omitempty"`
	Amount           string `json:"amount"`
	Description      string `json:"description,omitempty"`
}

type InvoiceResponse struct {
	ID                string               `json:"id,omitempty"`
	Number            *int64               `json:"number,omitempty"`
	LeaseID           string               `json:"lease_id"`
	RecipientID       string               `json:"recipient_id"`
	Type              string               `json:"type"`
	State             string               `json:"state"`
	DueDate           string               `json:"due_date"`
	InvoicingDate     string               `json:"invoicing_date,omitempty"`
	StartDate         string               `json:"billing_period_start_date,omitempty"`
	EndDate           string               `json:"billing_period_end_date,omitempty"`
	TotalAmount       string               `json:"total_amount"`
	BilledAmount      string               `json:"billed_amount"`
	OutstandingAmount string               `json:"outstanding_amount"`
	CreditedInvoiceID string               `json:"credited_invoice_id,omitempty"`
	Generated         bool                 `json:"generated"`
	Equalization      bool                 `json:"equalization"`
	Rows              []InvoiceRowResponse `json:"rows"`
}

func idString(id snowflake.ID) string {
	if id == 0 {
		return ""
	}
	return id.String()
}

func invoiceResponse(inv invoicedomain.Invoice) InvoiceResponse {
	resp := InvoiceResponse{
		ID:                idString(inv.ID),
		Number:            inv.Number,
		LeaseID:           inv.LeaseID.String(),
		RecipientID:       inv.RecipientID.String(),
		Type:              string(inv.Type),
		State:             string(inv.State),
		DueDate:           inv.DueDate.Format(dateLayout),
		InvoicingDate:     formatDate(inv.InvoicingDate),
		StartDate:         formatDate(inv.BillingPeriodStartDate),
		EndDate:           formatDate(inv.BillingPeriodEndDate),
		TotalAmount:       inv.TotalAmount.StringFixed(2),
		BilledAmount:      inv.BilledAmount.StringFixed(2),
		OutstandingAmount: inv.OutstandingAmount.StringFixed(2),
		Generated:         inv.Generated,
		Equalization:      inv.Equalization,
		Rows:              make([]InvoiceRowResponse, 0, len(inv.Rows)),
	}
	if inv.CreditedInvoiceID != nil {
		resp.CreditedInvoiceID = inv.CreditedInvoiceID.String()
	}
	for _, row := range inv.Rows {
		r := InvoiceRowResponse{
			ID:               idString(row.ID),
			ReceivableTypeID: row.ReceivableTypeID.String(),
			Type:             string(row.Type),
			StartDate:        formatDate(row.BillingPeriodStartDate),
			EndDate:          formatDate(row.BillingPeriodEndDate),
			Amount:           row.Amount.StringFixed(2),
			Description:      row.Description,
		}
		if row.TenantID != nil {
			r.TenantID = row.TenantID.String()
		}
		resp.Rows = append(resp.Rows, r)
	}
	return resp
}

type PeriodRequest struct {
	StartDate string `json:"start_date" binding:"required"`
	EndDate   string `json:"end_date" binding:"required"`
}

// @Summary      Calculate invoices
// @Description  Dry-run invoice data for every billing period whose due date falls in the period.
// @Tags         invoices
// @Accept       json
// @Produce      json
// @Param        id       path  string          true  "Lease ID"
// @Param        request  body  PeriodRequest   true  "Period"
// @Success      200  {object}  DataResponse
// @Router       /leases/{id}/invoices/calculate [post]
func (s *Server) CalculateInvoices(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req PeriodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	period, ok := periodFrom(c, req.StartDate, req.EndDate)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	lease, err := s.leaseSvc.GetLease(ctx, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	amounts, err := s.leaseSvc.DetermineBillingPeriodAmounts(ctx, lease, period, true, "")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	perPeriod, err := s.invoiceSvc.CalculateInvoices(ctx, lease, amounts)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp := make([][]InvoiceResponse, 0, len(perPeriod))
	for _, invoices := range perPeriod {
		items := make([]InvoiceResponse, 0, len(invoices))
		for _, inv := range invoices {
			items = append(items, invoiceResponse(inv))
		}
		resp = append(resp, items)
	}
	respondData(c, resp)
}

// @Summary      Generate invoices
// @Tags         invoices
// @Accept       json
// @Produce      json
// @Param        id       path  string         true  "Lease ID"
// @Param        request  body  PeriodRequest  true  "Period"
// @Success      201  {object}  DataResponse
// @Failure      409  {object}  ErrorResponse
// @Router       /leases/{id}/invoices/generate [post]
func (s *Server) GenerateInvoices(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req PeriodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	period, ok := periodFrom(c, req.StartDate, req.EndDate)
	if !ok {
		return
	}

	invoices, err := s.invoiceSvc.GenerateInvoices(c.Request.Context(), id, period)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	resp := make([]InvoiceResponse, 0, len(invoices))
	for _, inv := range invoices {
		resp = append(resp, invoiceResponse(inv))
	}
	respondCreated(c, resp)
}

type CreateInvoiceRowRequest struct {
	Amount           decimal.Decimal `json:"amount"`
	ReceivableTypeID snowflake.ID    `json:"receivable_type_id" binding:"required"`
	Type             string          `json:"type"`
	Description      string          `json:"description"`
}

type CreateInvoiceRequest struct {
	LeaseID                snowflake.ID              `json:"lease_id" binding:"required"`
	RecipientID            *snowflake.ID             `json:"recipient_id"`
	TenantID               *snowflake.ID             `json:"tenant_id"`
	DueDate                string                    `json:"due_date" binding:"required"`
	BillingPeriodStartDate string                    `json:"billing_period_start_date"`
	BillingPeriodEndDate   string                    `json:"billing_period_end_date"`
	Notes                  string                    `json:"notes"`
	Rows                   []CreateInvoiceRowRequest `json:"rows"`
}

func (r CreateInvoiceRequest) toDomain() (invoicedomain.CreateInvoiceRequest, error) {
	due, err := parseDate(r.DueDate)
	if err != nil {
		return invoicedomain.CreateInvoiceRequest{}, invalidRequestMessage("due_date must be YYYY-MM-DD")
	}
	out := invoicedomain.CreateInvoiceRequest{
		LeaseID:     r.LeaseID,
		RecipientID: r.RecipientID,
		TenantID:    r.TenantID,
		DueDate:     due,
		Notes:       r.Notes,
	}
	if r.BillingPeriodStartDate != "" || r.BillingPeriodEndDate != "" {
		start, err1 := parseDate(r.BillingPeriodStartDate)
		end, err2 := parseDate(r.BillingPeriodEndDate)
		if err1 != nil || err2 != nil || end.Before(start) {
			return invoicedomain.CreateInvoiceRequest{}, invalidRequestMessage("billing period must be two ordered YYYY-MM-DD dates")
		}
		period := calendar.NewDateRange(start, end)
		out.BillingPeriod = &period
	}
	for _, row := range r.Rows {
		item := invoicedomain.CreateInvoiceRow{
			Amount:           row.Amount,
			ReceivableTypeID: row.ReceivableTypeID,
			Description:      row.Description,
		}
		if t := strings.ToUpper(strings.TrimSpace(row.Type)); t != "" {
			rowType := invoicedomain.InvoiceRowType(t)
			switch rowType {
			case invoicedomain.RowTypeCharge, invoicedomain.RowTypeCredit, invoicedomain.RowTypeRounding:
			default:
				return invoicedomain.CreateInvoiceRequest{}, invalidRequestMessage("unknown row type " + t)
			}
			item.Type = &rowType
		}
		out.Rows = append(out.Rows, item)
	}
	return out, nil
}

// @Summary      Create invoice
// @Description  Manual invoice to a recipient, or to a tenant's billing contact. Requires the
// @Description  invoice create permission in the lease's service unit.
// @Tags         invoices
// @Accept       json
// @Produce      json
// @Param        request  body  CreateInvoiceRequest  true  "Invoice"
// @Success      201  {object}  DataResponse
// @Failure      403  {object}  ErrorResponse
// @Failure      422  {object}  ErrorResponse
// @Router       /invoices [post]
func (s *Server) CreateInvoice(c *gin.Context) {
	var req CreateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	domainReq, err := req.toDomain()
	if err != nil {
		AbortWithError(c, err)
		return
	}

	inv, err := s.invoiceSvc.CreateInvoice(c.Request.Context(), domainReq)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondCreated(c, invoiceResponse(*inv))
}

// @Summary      Get invoice
// @Tags         invoices
// @Produce      json
// @Param        id  path  string  true  "Invoice ID"
// @Success      200  {object}  DataResponse
// @Router       /invoices/{id} [get]
func (s *Server) GetInvoice(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	inv, err := s.invoiceSvc.GetInvoice(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, invoiceResponse(*inv))
}

type PaymentRequest struct {
	PaidAmount decimal.Decimal `json:"paid_amount"`
	PaidDate   string          `json:"paid_date"`
}

// @Summary      Register payment
// @Tags         invoices
// @Accept       json
// @Produce      json
// @Param        id       path  string          true  "Invoice ID"
// @Param        request  body  PaymentRequest  true  "Payment"
// @Success      200  {object}  DataResponse
// @Router       /invoices/{id}/payments [post]
func (s *Server) AddPayment(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req PaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	paidDate := s.clock.Now(c.Request.Context())
	if req.PaidDate != "" {
		d, err := parseDate(req.PaidDate)
		if err != nil {
			AbortWithError(c, invalidRequestMessage("paid_date must be YYYY-MM-DD"))
			return
		}
		paidDate = d
	}
	if !req.PaidAmount.IsPositive() {
		AbortWithError(c, invalidRequestMessage("paid_amount must be positive"))
		return
	}

	inv, err := s.invoiceSvc.AddPayment(c.Request.Context(), id, req.PaidAmount, paidDate.In(time.UTC))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, invoiceResponse(*inv))
}
