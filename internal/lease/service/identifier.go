package service

import (
	"context"
	"fmt"

	auditdomain "github.com/cityofhelsinki/mvj/internal/audit/domain"
	"github.com/cityofhelsinki/mvj/internal/lease/domain"
	"github.com/cityofhelsinki/mvj/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AllocateIdentifier gives the lease the next free sequence of its type, municipality
// and district. Allocation is serialised so sequences stay gap free.
func (s *Service) AllocateIdentifier(ctx context.Context, lease *domain.Lease) (string, error) {
	if lease.IdentifierID != nil {
		return "", domain.ErrIdentifierAlreadySet
	}

	var formatted string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		leaseType, err := s.leaseTypes.WithTrx(tx).FindByID(ctx, lease.TypeID)
		if err != nil {
			return err
		}
		municipality, err := s.municipalities.WithTrx(tx).FindByID(ctx, lease.MunicipalityID)
		if err != nil {
			return err
		}
		district, err := s.districts.WithTrx(tx).FindByID(ctx, lease.DistrictID)
		if err != nil {
			return err
		}
		if leaseType == nil || municipality == nil || district == nil || district.MunicipalityID != municipality.ID {
			return domain.ErrInvalidIdentifier
		}

		if err := s.repo.LockIdentifiers(ctx, tx); err != nil {
			return fmt.Errorf("lock identifiers: %w", err)
		}
		last, err := s.repo.MaxIdentifierSequence(ctx, tx, leaseType.ID, municipality.ID, district.ID)
		if err != nil {
			return err
		}

		identifier := domain.LeaseIdentifier{
			ID:             s.genID.Generate(),
			TypeID:         leaseType.ID,
			MunicipalityID: municipality.ID,
			DistrictID:     district.ID,
			Sequence:       last + 1,
			CreatedAt:      s.clock.Now(ctx),
		}
		formatted = domain.FormatIdentifier(*leaseType, *municipality, *district, identifier.Sequence)
		if _, err := domain.ParseIdentifier(formatted); err != nil {
			return err
		}

		if err := s.repo.CreateIdentifier(ctx, tx, &identifier); err != nil {
			if db.IsUniqueViolation(err) {
				return domain.ErrIdentifierConflict
			}
			return err
		}
		if err := s.repo.SetIdentifier(ctx, tx, lease.ID, identifier.ID); err != nil {
			return err
		}
		lease.IdentifierID = &identifier.ID
		lease.Identifier = &identifier

		return s.audit.Record(ctx, tx, auditdomain.ActorFromContext(ctx), auditdomain.ActionUpdate,
			auditdomain.KindLease, lease.ID, map[string]any{"identifier": formatted})
	})
	if err != nil {
		lease.IdentifierID = nil
		lease.Identifier = nil
		return "", err
	}

	s.log.Info("lease identifier allocated",
		zap.String("lease_id", lease.ID.String()),
		zap.String("identifier", formatted),
	)
	return formatted, nil
}
