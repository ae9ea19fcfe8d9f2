package domain

import "errors"

var (
	ErrLeaseNotFound          = errors.New("lease_not_found")
	ErrBasisOfRentNotFound    = errors.New("basis_of_rent_not_found")
	ErrBasisOfRentLocked      = errors.New("basis_of_rent_locked")
	ErrInvalidIdentifier      = errors.New("invalid_lease_identifier")
	ErrIdentifierConflict     = errors.New("lease_identifier_conflict")
	ErrIdentifierAlreadySet   = errors.New("lease_identifier_already_set")
	ErrTenantContactMissing   = errors.New("tenant_contact_missing")
	ErrBasisOfRentIndexNeeded = errors.New("basis_of_rent_index_required")
)
