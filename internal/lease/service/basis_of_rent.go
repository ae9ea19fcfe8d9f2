package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/cityofhelsinki/mvj/internal/audit/domain"
	indexdomain "github.com/cityofhelsinki/mvj/internal/index/domain"
	"github.com/cityofhelsinki/mvj/internal/lease/domain"
	rentdomain "github.com/cityofhelsinki/mvj/internal/rent/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var hundred = decimal.NewFromInt(100)

// CalculateBasisOfRent derives the initial year rent of a basis of rent. Legacy LEASE
// rows scale the amount per area by the referenced index.
func (s *Service) CalculateBasisOfRent(ctx context.Context, basis *domain.LeaseBasisOfRent) (*domain.BasisOfRentCalculation, error) {
	var index *indexdomain.Index
	if basis.Type != domain.BasisOfRentLease2022 {
		if basis.IndexID == nil {
			return nil, domain.ErrBasisOfRentIndexNeeded
		}
		idx, err := s.indexes.GetIndex(ctx, *basis.IndexID)
		if err != nil {
			return nil, err
		}
		if idx == nil {
			return nil, indexdomain.ErrIndexNotFound
		}
		index = idx
	}
	return CalculateBasisOfRent(*basis, index), nil
}

func CalculateBasisOfRent(basis domain.LeaseBasisOfRent, index *indexdomain.Index) *domain.BasisOfRentCalculation {
	adjusted := basis.AmountPerArea
	if basis.Type != domain.BasisOfRentLease2022 && index != nil {
		adjusted = adjusted.Mul(index.Number).Div(hundred)
	}
	initial := basis.Area.Mul(adjusted).Mul(basis.ProfitMarginPercentage).Div(hundred)

	percent := decimal.Zero
	if basis.SubventionType != nil {
		switch *basis.SubventionType {
		case rentdomain.SubventionFormOfManagement:
			percent = rentdomain.FormOfManagementPercent(basis.ManagementSubventions, adjusted)
		case rentdomain.SubventionReLease:
			base, graduated := decimal.Zero, decimal.Zero
			if basis.SubventionBasePercent != nil {
				base = *basis.SubventionBasePercent
			}
			if basis.SubventionGraduatedPercent != nil {
				graduated = *basis.SubventionGraduatedPercent
			}
			percent = rentdomain.ReLeasePercent(base, graduated)
		}
	}
	subvented := initial.Mul(hundred.Sub(percent)).Div(hundred)
	subvented = rentdomain.ApplyTemporarySubventions(subvented, basis.TemporarySubventions)

	out := &domain.BasisOfRentCalculation{
		AdjustedAmountPerArea:    adjusted,
		InitialYearRent:          rentdomain.Round2(initial),
		SubventionPercent:        percent,
		SubventedInitialYearRent: rentdomain.Round2(subvented),
	}
	if basis.DiscountPercentage != nil {
		discounted := rentdomain.Round2(initial.Mul(hundred.Sub(*basis.DiscountPercentage)).Div(hundred))
		out.DiscountedInitialYear = &discounted
	}
	return out
}

// SaveBasisOfRent creates a basis of rent or updates an unlocked one. Updates to a
// locked basis fail with ErrBasisOfRentLocked.
func (s *Service) SaveBasisOfRent(ctx context.Context, basis *domain.LeaseBasisOfRent) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if basis.ID == 0 {
			basis.ID = s.genID.Generate()
			for i := range basis.ManagementSubventions {
				basis.ManagementSubventions[i].ID = s.genID.Generate()
			}
			for i := range basis.TemporarySubventions {
				basis.TemporarySubventions[i].ID = s.genID.Generate()
			}
			if err := s.repo.CreateBasisOfRent(ctx, tx, basis); err != nil {
				return err
			}
			return s.audit.Record(ctx, tx, auditdomain.ActorFromContext(ctx), auditdomain.ActionCreate,
				auditdomain.KindLeaseBasisOfRent, basis.ID, nil)
		}

		updated, err := s.repo.UpdateBasisOfRent(ctx, tx, basis)
		if err != nil {
			return err
		}
		if !updated {
			existing, err := s.repo.GetBasisOfRent(ctx, tx, basis.ID)
			if err != nil {
				return err
			}
			if existing == nil {
				return domain.ErrBasisOfRentNotFound
			}
			return domain.ErrBasisOfRentLocked
		}
		return s.audit.Record(ctx, tx, auditdomain.ActorFromContext(ctx), auditdomain.ActionUpdate,
			auditdomain.KindLeaseBasisOfRent, basis.ID, nil)
	})
}

// DeleteBasisOfRent soft deletes the basis. A locked basis is kept and false is returned.
func (s *Service) DeleteBasisOfRent(ctx context.Context, id snowflake.ID) (bool, error) {
	deleted, err := s.audit.SoftDelete(ctx, auditdomain.ActorFromContext(ctx), auditdomain.KindLeaseBasisOfRent, id)
	if err != nil {
		return false, err
	}
	if !deleted {
		s.log.Info("locked basis of rent kept", zap.String("basis_of_rent_id", id.String()))
	}
	return deleted, nil
}
