package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/cityofhelsinki/mvj/internal/filescan/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) GetStatus(ctx context.Context, db *gorm.DB, owner domain.Owner) (*domain.FileScanStatus, error) {
	var status domain.FileScanStatus
	err := db.WithContext(ctx).
		Where("owner_kind = ? AND owner_id = ? AND file_field = ?", owner.Kind, owner.ID, owner.Field).
		First(&status).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &status, nil
}

func (r *repo) UpsertStatus(ctx context.Context, db *gorm.DB, status *domain.FileScanStatus) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "owner_kind"}, {Name: "owner_id"}, {Name: "file_field"}},
			DoUpdates: clause.AssignmentColumns([]string{"scanned_at", "file_deleted_at", "error_message", "updated_at"}),
		}).
		Create(status).Error
}

func ownerTable(owner domain.Owner) (string, error) {
	table, ok := domain.OwnerTable[owner.Kind]
	if !ok {
		return "", domain.ErrUnknownOwnerKind
	}
	if owner.Field != domain.FieldFile {
		return "", domain.ErrUnknownOwnerKind
	}
	return table, nil
}

func (r *repo) OwnerFile(ctx context.Context, db *gorm.DB, owner domain.Owner) (*string, error) {
	table, err := ownerTable(owner)
	if err != nil {
		return nil, err
	}
	var path sql.NullString
	err = db.WithContext(ctx).Table(table).
		Select(owner.Field).
		Where("id = ?", owner.ID).
		Row().Scan(&path)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrOwnerNotFound
	}
	if err != nil {
		return nil, err
	}
	if !path.Valid || path.String == "" {
		return nil, nil
	}
	return &path.String, nil
}

func (r *repo) ClearOwnerFile(ctx context.Context, db *gorm.DB, owner domain.Owner) error {
	table, err := ownerTable(owner)
	if err != nil {
		return err
	}
	return db.WithContext(ctx).Table(table).
		Where("id = ?", owner.ID).
		Update(owner.Field, gorm.Expr("NULL")).Error
}

func (r *repo) CreateAttachment(ctx context.Context, db *gorm.DB, attachment *domain.LeaseAttachment) error {
	return db.WithContext(ctx).Create(attachment).Error
}
