package server

import (
	"errors"
	"net/http"

	auditdomain "github.com/cityofhelsinki/mvj/internal/audit/domain"
	"github.com/cityofhelsinki/mvj/internal/authorization"
	filescandomain "github.com/cityofhelsinki/mvj/internal/filescan/domain"
	indexdomain "github.com/cityofhelsinki/mvj/internal/index/domain"
	invoicedomain "github.com/cityofhelsinki/mvj/internal/invoice/domain"
	leasedomain "github.com/cityofhelsinki/mvj/internal/lease/domain"
	rentdomain "github.com/cityofhelsinki/mvj/internal/rent/domain"
	"github.com/gin-gonic/gin"
)

// APIError is the body of every non-2xx response.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

func (e *APIError) Error() string { return e.Code }

var (
	ErrInvalidRequest  = &APIError{Status: http.StatusBadRequest, Code: "invalid_request"}
	ErrNotFound        = &APIError{Status: http.StatusNotFound, Code: "not_found"}
	ErrForbidden       = &APIError{Status: http.StatusForbidden, Code: "forbidden"}
	ErrDeleteProtected = &APIError{Status: http.StatusConflict, Code: "delete_protected"}
	ErrUnknownJob      = &APIError{Status: http.StatusNotFound, Code: "unknown_job"}
	ErrInternal        = &APIError{Status: http.StatusInternalServerError, Code: "internal_error"}
)

func invalidRequestError() error {
	return ErrInvalidRequest
}

func invalidRequestMessage(msg string) error {
	return &APIError{Status: http.StatusBadRequest, Code: ErrInvalidRequest.Code, Message: msg}
}

// AbortWithError writes err as an APIError and stops the handler chain.
func AbortWithError(c *gin.Context, err error) {
	apiErr := toAPIError(err)
	if apiErr.Status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(apiErr.Status, gin.H{"error": apiErr})
}

func toAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	status := statusFor(err)
	if status == http.StatusInternalServerError {
		return ErrInternal
	}
	return &APIError{Status: status, Code: err.Error()}
}

func statusFor(err error) int {
	switch {
	case isNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, authorization.ErrForbidden):
		return http.StatusForbidden
	case isValidationError(err):
		return http.StatusUnprocessableEntity
	case isConflict(err):
		return http.StatusConflict
	case errors.Is(err, rentdomain.ErrRentTypeNotImplemented):
		return http.StatusNotImplemented
	case errors.Is(err, filescandomain.ErrScanFailed),
		errors.Is(err, filescandomain.ErrMalformedResponse):
		return http.StatusBadGateway
	case errors.Is(err, filescandomain.ErrFileScanDisabled):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func isNotFound(err error) bool {
	for _, target := range []error{
		leasedomain.ErrLeaseNotFound,
		leasedomain.ErrBasisOfRentNotFound,
		rentdomain.ErrRentNotFound,
		invoicedomain.ErrInvoiceNotFound,
		indexdomain.ErrIndexNotFound,
		indexdomain.ErrPriceIndexNotFound,
		filescandomain.ErrOwnerNotFound,
		auditdomain.ErrEntityNotFound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func isValidationError(err error) bool {
	for _, target := range []error{
		invoicedomain.ErrInvalidRecipient,
		invoicedomain.ErrRecipientNotInLease,
		invoicedomain.ErrTenantNotInLease,
		invoicedomain.ErrReceivableTypeNotFound,
		invoicedomain.ErrReceivableTypeServiceUnit,
		invoicedomain.ErrInterestReceivableType,
		invoicedomain.ErrEmptyInvoice,
		invoicedomain.ErrDefaultReceivableTypeMissing,
		leasedomain.ErrTenantContactMissing,
		leasedomain.ErrInvalidIdentifier,
		leasedomain.ErrBasisOfRentIndexNeeded,
		rentdomain.ErrInvalidPeriod,
		rentdomain.ErrDueDatesPerYear,
		filescandomain.ErrUnknownOwnerKind,
		filescandomain.ErrInvalidFilePath,
		auditdomain.ErrUnknownEntity,
		auditdomain.ErrUnsupportedExportFormat,
		auditdomain.ErrInvalidExportRange,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func isConflict(err error) bool {
	for _, target := range []error{
		invoicedomain.ErrAlreadyGenerated,
		leasedomain.ErrBasisOfRentLocked,
		leasedomain.ErrIdentifierConflict,
		leasedomain.ErrIdentifierAlreadySet,
		rentdomain.ErrPointFigureImmutable,
		filescandomain.ErrOwnerFileMissing,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
