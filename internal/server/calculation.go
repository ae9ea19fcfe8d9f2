package server

import (
	"fmt"

	"github.com/cityofhelsinki/mvj/internal/calendar"
	rentdomain "github.com/cityofhelsinki/mvj/internal/rent/domain"
	"github.com/gin-gonic/gin"
)

type CalculationResponse struct {
	StartDate   string                         `json:"start_date"`
	EndDate     string                         `json:"end_date"`
	Total       string                         `json:"total"`
	Amounts     []rentdomain.CalculationAmount `json:"amounts"`
	Notes       []rentdomain.CalculationNote   `json:"notes,omitempty"`
	Explanation rentdomain.Explanation         `json:"explanation"`
}

func calculationResponse(result *rentdomain.CalculationResult) CalculationResponse {
	var notes []rentdomain.CalculationNote
	for _, a := range result.Amounts {
		notes = append(notes, a.AllNotes()...)
	}
	return CalculationResponse{
		StartDate:   result.Range.Start.Format(dateLayout),
		EndDate:     result.Range.End.Format(dateLayout),
		Total:       rentdomain.Round2(result.Total()).StringFixed(2),
		Amounts:     result.Amounts,
		Notes:       notes,
		Explanation: result.Explanation(),
	}
}

// @Summary      Rent amount for a date range
// @Description  Evaluates one rent over [start_date, end_date]. dry_run=false consumes adjustment balances.
// @Tags         rents
// @Produce      json
// @Param        id          path   string  true   "Rent ID"
// @Param        start_date  query  string  true   "YYYY-MM-DD"
// @Param        end_date    query  string  true   "YYYY-MM-DD"
// @Param        dry_run     query  bool    false  "Default true"
// @Success      200  {object}  DataResponse
// @Failure      404  {object}  ErrorResponse
// @Router       /rents/{id}/amount [get]
func (s *Server) GetRentAmount(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	period, ok := queryPeriod(c)
	if !ok {
		return
	}
	dryRun, ok := queryBool(c, "dry_run", true)
	if !ok {
		return
	}

	result, err := s.rentSvc.GetAmountForDateRange(c.Request.Context(), id, period, dryRun)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, calculationResponse(result))
}

type PayableRentResponse struct {
	RentID    string `json:"rent_id"`
	Amount    string `json:"amount,omitempty"`
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
}

// @Summary      Recalculate payable rent
// @Tags         rents
// @Produce      json
// @Param        id  path  string  true  "Rent ID"
// @Success      200  {object}  DataResponse
// @Router       /rents/{id}/payable_rent [post]
func (s *Server) CalculatePayableRent(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	rent, err := s.rentSvc.CalculatePayableRent(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	resp := PayableRentResponse{
		RentID:    rent.ID.String(),
		StartDate: formatDate(rent.PayableRentStartDate),
		EndDate:   formatDate(rent.PayableRentEndDate),
	}
	if rent.PayableRentAmount != nil {
		resp.Amount = rent.PayableRentAmount.StringFixed(2)
	}
	respondData(c, resp)
}

// @Summary      Lease rent amount for a period
// @Tags         leases
// @Produce      json
// @Param        id          path   string  true  "Lease ID"
// @Param        start_date  query  string  true  "YYYY-MM-DD"
// @Param        end_date    query  string  true  "YYYY-MM-DD"
// @Success      200  {object}  DataResponse
// @Router       /leases/{id}/rent_amount [get]
func (s *Server) GetLeaseRentAmount(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	period, ok := queryPeriod(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	lease, err := s.leaseSvc.GetLease(ctx, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	result, err := s.leaseSvc.CalculateRentAmountForPeriod(ctx, lease, period, true, "")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, calculationResponse(result))
}

type TenantShareResponse struct {
	TenantID string       `json:"tenant_id"`
	Share    string       `json:"share"`
	Ranges   []RangeValue `json:"ranges"`
}

type RangeValue struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

type RecipientShareResponse struct {
	ContactID   string                `json:"contact_id"`
	ContactName string                `json:"contact_name"`
	Tenants     []TenantShareResponse `json:"tenants"`
}

func rangeValues(ranges []calendar.DateRange) []RangeValue {
	out := make([]RangeValue, 0, len(ranges))
	for _, r := range ranges {
		out = append(out, RangeValue{StartDate: r.Start.Format(dateLayout), EndDate: r.End.Format(dateLayout)})
	}
	return out
}

// @Summary      Tenant shares for a period
// @Description  Groups tenant share ranges by invoice recipient (BILLING contact, else TENANT).
// @Tags         leases
// @Produce      json
// @Param        id          path   string  true  "Lease ID"
// @Param        start_date  query  string  true  "YYYY-MM-DD"
// @Param        end_date    query  string  true  "YYYY-MM-DD"
// @Success      200  {object}  DataResponse
// @Router       /leases/{id}/tenant_shares [get]
func (s *Server) GetTenantShares(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	period, ok := queryPeriod(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	lease, err := s.leaseSvc.GetLease(ctx, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	shares, err := s.leaseSvc.TenantSharesForPeriod(ctx, lease, period)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp := make([]RecipientShareResponse, 0, len(shares))
	for _, share := range shares {
		item := RecipientShareResponse{
			ContactID:   share.Contact.ID.String(),
			ContactName: share.Contact.DisplayName(),
		}
		for _, ts := range share.Tenants {
			item.Tenants = append(item.Tenants, TenantShareResponse{
				TenantID: ts.Tenant.ID.String(),
				Share:    fmt.Sprintf("%d/%d", ts.Tenant.ShareNumerator, ts.Tenant.ShareDenominator),
				Ranges:   rangeValues(ts.Ranges),
			})
		}
		resp = append(resp, item)
	}
	respondData(c, resp)
}
