package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// GetLease loads the lease with its type, identifier, tenants with contacts and basis of rents.
	GetLease(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Lease, error)
	CreateLease(ctx context.Context, db *gorm.DB, lease *Lease) error
	ListInvoicingEnabledLeaseIDs(ctx context.Context, db *gorm.DB) ([]snowflake.ID, error)
	SetIdentifier(ctx context.Context, db *gorm.DB, leaseID, identifierID snowflake.ID) error

	// LockIdentifiers serialises identifier allocation for the rest of the transaction.
	LockIdentifiers(ctx context.Context, db *gorm.DB) error
	MaxIdentifierSequence(ctx context.Context, db *gorm.DB, typeID, municipalityID, districtID snowflake.ID) (int, error)
	CreateIdentifier(ctx context.Context, db *gorm.DB, identifier *LeaseIdentifier) error

	GetBasisOfRent(ctx context.Context, db *gorm.DB, id snowflake.ID) (*LeaseBasisOfRent, error)
	CreateBasisOfRent(ctx context.Context, db *gorm.DB, basis *LeaseBasisOfRent) error
	UpdateBasisOfRent(ctx context.Context, db *gorm.DB, basis *LeaseBasisOfRent) (bool, error)
}
