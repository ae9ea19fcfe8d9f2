package domain

import (
	"context"
	"io"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	GetStatus(ctx context.Context, db *gorm.DB, owner Owner) (*FileScanStatus, error)
	UpsertStatus(ctx context.Context, db *gorm.DB, status *FileScanStatus) error
	// OwnerFile returns the stored path, nil when the column is null, or ErrOwnerNotFound.
	OwnerFile(ctx context.Context, db *gorm.DB, owner Owner) (*string, error)
	ClearOwnerFile(ctx context.Context, db *gorm.DB, owner Owner) error
	CreateAttachment(ctx context.Context, db *gorm.DB, attachment *LeaseAttachment) error
}

// Scanner submits file content to the virus scan service.
type Scanner interface {
	Scan(ctx context.Context, content io.Reader) (*ScanResult, error)
}

type Service interface {
	SaveAttachment(ctx context.Context, leaseID snowflake.ID, name string, content io.Reader) (*LeaseAttachment, error)
	ScanFile(ctx context.Context, owner Owner) (*FileScanStatus, error)
	Open(ctx context.Context, owner Owner) OpenResult
}
