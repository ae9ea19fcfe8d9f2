package domain

import "errors"

var (
	ErrInvoiceNotFound              = errors.New("invoice_not_found")
	ErrInvalidRecipient             = errors.New("invalid_recipient")
	ErrRecipientNotInLease          = errors.New("recipient_not_in_lease")
	ErrTenantNotInLease             = errors.New("tenant_not_in_lease")
	ErrReceivableTypeNotFound       = errors.New("receivable_type_not_found")
	ErrReceivableTypeServiceUnit    = errors.New("receivable_type_service_unit_mismatch")
	ErrInterestReceivableType       = errors.New("interest_receivable_type_not_allowed")
	ErrEmptyInvoice                 = errors.New("invoice_has_no_rows")
	ErrDefaultReceivableTypeMissing = errors.New("default_receivable_type_missing")
	ErrAlreadyGenerated             = errors.New("invoices_already_generated")
)
