package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/cityofhelsinki/mvj/internal/clock"
	"github.com/cityofhelsinki/mvj/internal/config"
	"github.com/cityofhelsinki/mvj/internal/filescan/domain"
	"github.com/gosimple/slug"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Core    *config.CoreConfig
	Repo    domain.Repository
	Scanner domain.Scanner
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	core    *config.CoreConfig
	repo    domain.Repository
	scanner domain.Scanner
}

func New(p Params) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("filescan.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		core:    p.Core,
		repo:    p.Repo,
		scanner: p.Scanner,
	}
}

// resolve joins a stored relative path to the private files location and rejects paths
// escaping it.
func (s *Service) resolve(rel string) (string, error) {
	root := filepath.Clean(s.core.PrivateFilesLocation)
	abs := filepath.Join(root, rel)
	inside, err := filepath.Rel(root, abs)
	if err != nil || inside == ".." || strings.HasPrefix(inside, ".."+string(filepath.Separator)) {
		return "", domain.ErrInvalidFilePath
	}
	return abs, nil
}

// SaveAttachment stores content under the private files location and, when scanning is
// enabled, marks it pending until ScanFile has run.
func (s *Service) SaveAttachment(ctx context.Context, leaseID snowflake.ID, name string, content io.Reader) (*domain.LeaseAttachment, error) {
	id := s.genID.Generate()
	ext := strings.ToLower(filepath.Ext(name))
	base := slug.Make(strings.TrimSuffix(filepath.Base(name), filepath.Ext(name)))
	if base == "" {
		base = "file"
	}
	rel := filepath.Join("lease_attachments", leaseID.String(), id.String()+"-"+base+ext)

	abs, err := s.resolve(rel)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o750); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(abs, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(f, content); err != nil {
		_ = f.Close()
		_ = os.Remove(abs)
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, err
	}

	now := s.clock.Now(ctx)
	attachment := &domain.LeaseAttachment{
		ID:         id,
		LeaseID:    leaseID,
		Name:       name,
		File:       &rel,
		UploadedAt: now,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.CreateAttachment(ctx, tx, attachment); err != nil {
			return err
		}
		if !s.core.FileScanEnabled() {
			return nil
		}
		return s.repo.UpsertStatus(ctx, tx, &domain.FileScanStatus{
			ID:        s.genID.Generate(),
			OwnerKind: domain.OwnerLeaseAttachment,
			OwnerID:   id,
			FileField: domain.FieldFile,
			CreatedAt: now,
			UpdatedAt: now,
		})
	})
	if err != nil {
		_ = os.Remove(abs)
		return nil, err
	}
	return attachment, nil
}

// ScanFile sends the owner's file to the scan service and records the verdict. An
// infected file is deleted and the owner's file column cleared.
func (s *Service) ScanFile(ctx context.Context, owner domain.Owner) (*domain.FileScanStatus, error) {
	if !s.core.FileScanEnabled() {
		return nil, domain.ErrFileScanDisabled
	}
	rel, err := s.repo.OwnerFile(ctx, s.db, owner)
	if err != nil {
		return nil, err
	}
	if rel == nil {
		return nil, domain.ErrOwnerFileMissing
	}
	abs, err := s.resolve(*rel)
	if err != nil {
		return nil, err
	}

	result, scanErr := s.scan(ctx, abs)
	now := s.clock.Now(ctx)
	status := &domain.FileScanStatus{
		ID:        s.genID.Generate(),
		OwnerKind: owner.Kind,
		OwnerID:   owner.ID,
		FileField: owner.Field,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if scanErr != nil {
		status.ErrorMessage = scanErr.Error()
		s.log.Error("file scan failed",
			zap.String("owner_kind", owner.Kind),
			zap.String("owner_id", owner.ID.String()),
			zap.Error(scanErr),
		)
		if err := s.repo.UpsertStatus(ctx, s.db, status); err != nil {
			return nil, errors.Join(scanErr, err)
		}
		return status, scanErr
	}

	status.ScannedAt = &now
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if result.IsInfected {
			if err := s.repo.ClearOwnerFile(ctx, tx, owner); err != nil {
				return err
			}
			status.FileDeletedAt = &now
		}
		return s.repo.UpsertStatus(ctx, tx, status)
	})
	if err != nil {
		return nil, err
	}

	if result.IsInfected {
		s.log.Warn("infected file removed",
			zap.String("owner_kind", owner.Kind),
			zap.String("owner_id", owner.ID.String()),
			zap.Strings("viruses", result.Viruses),
		)
		if err := os.Remove(abs); err != nil && !errors.Is(err, os.ErrNotExist) {
			return status, fmt.Errorf("remove infected file: %w", err)
		}
	}
	return status, nil
}

func (s *Service) scan(ctx context.Context, path string) (*domain.ScanResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return s.scanner.Scan(ctx, f)
}

// Open decides whether the owner's file may be served.
func (s *Service) Open(ctx context.Context, owner domain.Owner) domain.OpenResult {
	rel, err := s.repo.OwnerFile(ctx, s.db, owner)
	if err != nil {
		return domain.OpenResult{Status: domain.OpenError, Message: err.Error()}
	}
	status, err := s.repo.GetStatus(ctx, s.db, owner)
	if err != nil {
		return domain.OpenResult{Status: domain.OpenError, Message: err.Error()}
	}
	if status != nil && status.FileDeletedAt != nil {
		return domain.OpenResult{Status: domain.OpenUnsafe}
	}
	if rel == nil {
		return domain.OpenResult{Status: domain.OpenError, Message: domain.ErrOwnerFileMissing.Error()}
	}
	abs, err := s.resolve(*rel)
	if err != nil {
		return domain.OpenResult{Status: domain.OpenError, Message: err.Error()}
	}

	if !s.core.FileScanEnabled() {
		return domain.OpenResult{Status: domain.OpenOK, Path: abs}
	}
	switch {
	case status == nil:
		return domain.OpenResult{Status: domain.OpenPending}
	case status.ScannedAt == nil && status.ErrorMessage != "":
		return domain.OpenResult{Status: domain.OpenError, Message: status.ErrorMessage}
	case status.ScannedAt == nil:
		return domain.OpenResult{Status: domain.OpenPending}
	}
	return domain.OpenResult{Status: domain.OpenOK, Path: abs}
}
