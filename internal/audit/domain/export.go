package domain

import (
	"context"
	"errors"
	"time"
)

type ExportFormat string

const (
	ExportFormatCSV  ExportFormat = "csv"
	ExportFormatJSON ExportFormat = "json"
)

// MaxExportRange bounds one export so the whole result fits in a response body.
const MaxExportRange = 90 * 24 * time.Hour

var (
	ErrUnsupportedExportFormat = errors.New("unsupported_export_format")
	ErrInvalidExportRange      = errors.New("invalid_export_range")
)

// ExportRequest selects audit entries created in [StartDate, EndDate). Empty filters
// match everything.
type ExportRequest struct {
	StartDate   time.Time
	EndDate     time.Time
	Format      ExportFormat
	Actions     []string
	TargetTypes []string
}

func (r ExportRequest) Validate() error {
	switch r.Format {
	case ExportFormatCSV, ExportFormatJSON:
	default:
		return ErrUnsupportedExportFormat
	}
	if !r.EndDate.After(r.StartDate) || r.EndDate.Sub(r.StartDate) > MaxExportRange {
		return ErrInvalidExportRange
	}
	return nil
}

// ExportResult carries the rendered export and the sha256 of Data, which auditors use
// to check that a delivered file was not altered.
type ExportResult struct {
	Data     []byte
	Checksum string
	Format   ExportFormat
	Count    int
}

type ExportService interface {
	Export(ctx context.Context, req ExportRequest) (*ExportResult, error)
}
