package service

import (
	"context"

	"github.com/cityofhelsinki/mvj/internal/calendar"
	"github.com/cityofhelsinki/mvj/internal/lease/domain"
)

// TenantSharesForPeriod maps every invoice recipient to the tenants and date ranges it
// is billed for.
func (s *Service) TenantSharesForPeriod(ctx context.Context, lease *domain.Lease, period calendar.DateRange) ([]domain.RecipientShare, error) {
	return domain.TenantShares(lease.Tenants, period), nil
}
