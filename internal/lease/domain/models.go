// Package domain contains leases, their parties and basis of rent.
package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/cityofhelsinki/mvj/internal/calendar"
	rentdomain "github.com/cityofhelsinki/mvj/internal/rent/domain"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ServiceUnit partitions leases, receivable types and permissions.
type ServiceUnit struct {
	ID                          snowflake.ID `gorm:"primaryKey"`
	Name                        string       `gorm:"type:text;not null"`
	DefaultReceivableTypeRentID *snowflake.ID
	InterestReceivableTypeID    *snowflake.ID
	UseInvoiceNumberSequence    bool      `gorm:"not null;default:true"`
	CreatedAt                   time.Time `gorm:"not null"`
}

func (ServiceUnit) TableName() string { return "service_units" }

type ReceivableType struct {
	ID            snowflake.ID `gorm:"primaryKey"`
	Name          string       `gorm:"type:text;not null"`
	ServiceUnitID snowflake.ID `gorm:"not null;index"`
	IsActive      bool         `gorm:"not null;default:true"`
}

func (ReceivableType) TableName() string { return "receivable_types" }

type LeaseType struct {
	ID               snowflake.ID                `gorm:"primaryKey"`
	Identifier       string                      `gorm:"type:text;not null;uniqueIndex"`
	Name             string                      `gorm:"type:text"`
	DueDatesPosition rentdomain.DueDatesPosition `gorm:"type:text;not null;default:'START_OF_MONTH'"`
}

func (LeaseType) TableName() string { return "lease_types" }

type Municipality struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	Identifier string       `gorm:"type:text;not null;uniqueIndex"`
	Name       string       `gorm:"type:text"`
}

func (Municipality) TableName() string { return "municipalities" }

type District struct {
	ID             snowflake.ID `gorm:"primaryKey"`
	MunicipalityID snowflake.ID `gorm:"not null;index"`
	Identifier     string       `gorm:"type:text;not null"`
	Name           string       `gorm:"type:text"`
}

func (District) TableName() string { return "districts" }

// LeaseIdentifier is unique per (type, municipality, district, sequence).
type LeaseIdentifier struct {
	ID             snowflake.ID `gorm:"primaryKey"`
	TypeID         snowflake.ID `gorm:"not null;uniqueIndex:ux_lease_identifier"`
	MunicipalityID snowflake.ID `gorm:"not null;uniqueIndex:ux_lease_identifier"`
	DistrictID     snowflake.ID `gorm:"not null;uniqueIndex:ux_lease_identifier"`
	Sequence       int          `gorm:"not null;uniqueIndex:ux_lease_identifier"`
	CreatedAt      time.Time    `gorm:"not null"`
}

func (LeaseIdentifier) TableName() string { return "lease_identifiers" }

// FormatIdentifier renders e.g. "A1104-12" from type A1, municipality 1, district 4, sequence 12.
func FormatIdentifier(leaseType LeaseType, municipality Municipality, district District, sequence int) string {
	d := district.Identifier
	if n, err := strconv.Atoi(d); err == nil {
		d = fmt.Sprintf("%02d", n)
	}
	return fmt.Sprintf("%s%s%s-%d", leaseType.Identifier, municipality.Identifier, d, sequence)
}

var identifierPattern = regexp.MustCompile(`^([A-Z]\d)(\d)(\d{2})-(\d+)$`)

// ParsedIdentifier holds the parts of a formatted lease identifier.
type ParsedIdentifier struct {
	Type         string
	Municipality string
	District     string
	Sequence     int
}

func ParseIdentifier(s string) (ParsedIdentifier, error) {
	m := identifierPattern.FindStringSubmatch(s)
	if m == nil {
		return ParsedIdentifier{}, ErrInvalidIdentifier
	}
	seq, err := strconv.Atoi(m[4])
	if err != nil {
		return ParsedIdentifier{}, ErrInvalidIdentifier
	}
	return ParsedIdentifier{Type: m[1], Municipality: m[2], District: m[3], Sequence: seq}, nil
}

type Lease struct {
	ID                 snowflake.ID `gorm:"primaryKey"`
	TypeID             snowflake.ID `gorm:"column:type_id;not null"`
	MunicipalityID     snowflake.ID `gorm:"not null"`
	DistrictID         snowflake.ID `gorm:"not null"`
	IdentifierID       *snowflake.ID
	ServiceUnitID      snowflake.ID `gorm:"not null;index"`
	StartDate          *time.Time
	EndDate            *time.Time
	InvoicingEnabledAt *time.Time
	Note               string `gorm:"type:text"`

	CreatedAt        time.Time      `gorm:"not null"`
	UpdatedAt        time.Time      `gorm:"not null"`
	Deleted          gorm.DeletedAt `gorm:"column:deleted;index"`
	DeletedByCascade bool           `gorm:"not null;default:false"`

	Type         LeaseType          `gorm:"foreignKey:TypeID"`
	Identifier   *LeaseIdentifier   `gorm:"foreignKey:IdentifierID"`
	Tenants      []Tenant           `gorm:"foreignKey:LeaseID"`
	BasisOfRents []LeaseBasisOfRent `gorm:"foreignKey:LeaseID"`
}

func (Lease) TableName() string { return "leases" }

func (l Lease) Span() calendar.Span {
	return calendar.Span{Start: l.StartDate, End: l.EndDate}
}

func (l Lease) IsInvoicingEnabled() bool { return l.InvoicingEnabledAt != nil }

type ContactType string

const (
	ContactPerson      ContactType = "PERSON"
	ContactBusiness    ContactType = "BUSINESS"
	ContactUnit        ContactType = "UNIT"
	ContactAssociation ContactType = "ASSOCIATION"
	ContactOther       ContactType = "OTHER"
)

type Contact struct {
	ID            snowflake.ID `gorm:"primaryKey"`
	Type          ContactType  `gorm:"type:text;not null"`
	FirstName     string       `gorm:"type:text"`
	LastName      string       `gorm:"type:text"`
	Name          string       `gorm:"type:text"`
	ServiceUnitID snowflake.ID `gorm:"not null;index"`
	CreatedAt     time.Time    `gorm:"not null"`
	UpdatedAt     time.Time    `gorm:"not null"`
}

func (Contact) TableName() string { return "contacts" }

func (c Contact) DisplayName() string {
	if c.Type == ContactPerson {
		return c.FirstName + " " + c.LastName
	}
	return c.Name
}

// Tenant holds a rational share of a lease.
type Tenant struct {
	ID               snowflake.ID `gorm:"primaryKey"`
	LeaseID          snowflake.ID `gorm:"not null;index"`
	ShareNumerator   int          `gorm:"not null"`
	ShareDenominator int          `gorm:"not null"`
	Reference        string       `gorm:"type:text"`

	CreatedAt        time.Time      `gorm:"not null"`
	UpdatedAt        time.Time      `gorm:"not null"`
	Deleted          gorm.DeletedAt `gorm:"column:deleted;index"`
	DeletedByCascade bool           `gorm:"not null;default:false"`

	Contacts []TenantContact `gorm:"foreignKey:TenantID"`
}

func (Tenant) TableName() string { return "tenants" }

func (t Tenant) Share() decimal.Decimal {
	if t.ShareDenominator == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(t.ShareNumerator)).Div(decimal.NewFromInt(int64(t.ShareDenominator)))
}

type TenantContactType string

const (
	TenantContactTenant  TenantContactType = "TENANT"
	TenantContactBilling TenantContactType = "BILLING"
	TenantContactContact TenantContactType = "CONTACT"
)

type TenantContact struct {
	ID        snowflake.ID      `gorm:"primaryKey"`
	TenantID  snowflake.ID      `gorm:"not null;index"`
	ContactID snowflake.ID      `gorm:"not null;index"`
	Type      TenantContactType `gorm:"type:text;not null"`
	StartDate *time.Time
	EndDate   *time.Time

	Deleted          gorm.DeletedAt `gorm:"column:deleted;index"`
	DeletedByCascade bool           `gorm:"not null;default:false"`

	Contact Contact `gorm:"foreignKey:ContactID"`
}

func (TenantContact) TableName() string { return "tenant_contacts" }

func (c TenantContact) Span() calendar.Span {
	return calendar.Span{Start: c.StartDate, End: c.EndDate}
}

type BasisOfRentType string

const (
	BasisOfRentLease     BasisOfRentType = "LEASE"
	BasisOfRentLease2022 BasisOfRentType = "LEASE2022"
)

type AreaUnit string

const (
	AreaSquareMeter      AreaUnit = "M2"
	AreaFloorSquareMeter AreaUnit = "KEM2"
	AreaApartment        AreaUnit = "HUONEISTO"
)

type LeaseBasisOfRent struct {
	ID                         snowflake.ID     `gorm:"primaryKey"`
	LeaseID                    snowflake.ID     `gorm:"not null;index"`
	Type                       BasisOfRentType  `gorm:"type:text;not null"`
	IntendedUseID              snowflake.ID     `gorm:"not null"`
	Zone                       string           `gorm:"type:text"`
	Area                       decimal.Decimal  `gorm:"type:numeric(12,2);not null"`
	AreaUnit                   AreaUnit         `gorm:"type:text;not null"`
	AmountPerArea              decimal.Decimal  `gorm:"type:numeric(12,2);not null"`
	ProfitMarginPercentage     decimal.Decimal  `gorm:"type:numeric(10,2);not null"`
	DiscountPercentage         *decimal.Decimal `gorm:"type:numeric(10,2)"`
	IndexID                    *snowflake.ID
	SubventionType             *rentdomain.SubventionType `gorm:"type:text"`
	SubventionBasePercent      *decimal.Decimal           `gorm:"type:numeric(10,2)"`
	SubventionGraduatedPercent *decimal.Decimal           `gorm:"type:numeric(10,2)"`
	LockedAt                   *time.Time
	LockedBy                   string `gorm:"type:text"`

	CreatedAt        time.Time      `gorm:"not null"`
	UpdatedAt        time.Time      `gorm:"not null"`
	Deleted          gorm.DeletedAt `gorm:"column:deleted;index"`
	DeletedByCascade bool           `gorm:"not null;default:false"`

	ManagementSubventions []rentdomain.ManagementSubvention `gorm:"foreignKey:LeaseBasisOfRentID"`
	TemporarySubventions  []rentdomain.TemporarySubvention  `gorm:"foreignKey:LeaseBasisOfRentID"`
}

func (LeaseBasisOfRent) TableName() string { return "lease_basis_of_rents" }

func (b LeaseBasisOfRent) IsLocked() bool { return b.LockedAt != nil }
