// Package domain holds virus scan bookkeeping for uploaded private files.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Owner addresses the file column of one row.
type Owner struct {
	Kind  string       `json:"kind"`
	ID    snowflake.ID `json:"id"`
	Field string       `json:"field"`
}

// FileScanStatus records the last scan of an owner's file. A nil ScannedAt with an
// empty ErrorMessage means the scan is still pending.
type FileScanStatus struct {
	ID            snowflake.ID `gorm:"primaryKey"`
	OwnerKind     string       `gorm:"type:text;not null;uniqueIndex:ux_file_scan_owner"`
	OwnerID       snowflake.ID `gorm:"not null;uniqueIndex:ux_file_scan_owner"`
	FileField     string       `gorm:"type:text;not null;uniqueIndex:ux_file_scan_owner"`
	ScannedAt     *time.Time
	FileDeletedAt *time.Time
	ErrorMessage  string    `gorm:"type:text"`
	CreatedAt     time.Time `gorm:"not null"`
	UpdatedAt     time.Time `gorm:"not null"`
}

func (FileScanStatus) TableName() string { return "file_scan_statuses" }

func (s FileScanStatus) Owner() Owner {
	return Owner{Kind: s.OwnerKind, ID: s.OwnerID, Field: s.FileField}
}

// LeaseAttachment is a file uploaded to a lease. File is relative to the private files
// location and is cleared when the file is found infected.
type LeaseAttachment struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	LeaseID    snowflake.ID `gorm:"not null;index"`
	Name       string       `gorm:"type:text;not null"`
	File       *string      `gorm:"type:text"`
	UploadedAt time.Time    `gorm:"not null"`
}

func (LeaseAttachment) TableName() string { return "lease_attachments" }

const (
	OwnerLeaseAttachment = "lease_attachment"
	FieldFile            = "file"
)

// OwnerTable maps an owner kind to the table holding its file columns.
var OwnerTable = map[string]string{
	OwnerLeaseAttachment: LeaseAttachment{}.TableName(),
}

type OpenStatus string

const (
	OpenOK      OpenStatus = "OK"
	OpenPending OpenStatus = "PENDING"
	OpenUnsafe  OpenStatus = "UNSAFE"
	OpenError   OpenStatus = "ERROR"
)

// OpenResult tells whether a private file may be served. Path is only set for OpenOK and
// Message carries the scan error for OpenError.
type OpenResult struct {
	Status  OpenStatus
	Path    string
	Message string
}

// ScanResult is the scanner's verdict for one file.
type ScanResult struct {
	Name       string   `json:"name"`
	IsInfected bool     `json:"is_infected"`
	Viruses    []string `json:"viruses"`
}
