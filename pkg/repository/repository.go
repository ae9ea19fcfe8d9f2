package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository is the generic CRUD surface shared by simple aggregates.
type Repository[T any] interface {
	FindByID(ctx context.Context, id any) (*T, error)
	FindOne(ctx context.Context, filter *T, opts ...QueryOption) (*T, error)
	Find(ctx context.Context, filter *T, opts ...QueryOption) ([]*T, error)
	Count(ctx context.Context, filter *T, opts ...QueryOption) (int64, error)
	Create(ctx context.Context, entity *T) error
	Save(ctx context.Context, entity *T) error
	Upsert(ctx context.Context, entity *T, conflict []string, update []string) error
	Delete(ctx context.Context, entity *T) error
	WithTrx(tx *gorm.DB) Repository[T]
}

type store[T any] struct {
	db *gorm.DB
}

func ProvideStore[T any](db *gorm.DB) Repository[T] {
	return &store[T]{db: db}
}

func (s *store[T]) WithTrx(tx *gorm.DB) Repository[T] {
	if tx == nil {
		return s
	}
	return &store[T]{db: tx}
}

func (s *store[T]) query(ctx context.Context, filter *T, opts []QueryOption) *gorm.DB {
	q := s.db.WithContext(ctx).Model(new(T))
	if filter != nil {
		q = q.Where(filter)
	}
	for _, opt := range opts {
		q = opt(q)
	}
	return q
}

// FindByID returns (nil, nil) when no row matches.
func (s *store[T]) FindByID(ctx context.Context, id any) (*T, error) {
	var out T
	err := s.db.WithContext(ctx).First(&out, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *store[T]) FindOne(ctx context.Context, filter *T, opts ...QueryOption) (*T, error) {
	var out []*T
	if err := s.query(ctx, filter, opts).Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func (s *store[T]) Find(ctx context.Context, filter *T, opts ...QueryOption) ([]*T, error) {
	var out []*T
	if err := s.query(ctx, filter, opts).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (s *store[T]) Count(ctx context.Context, filter *T, opts ...QueryOption) (int64, error) {
	var n int64
	if err := s.query(ctx, filter, opts).Limit(-1).Offset(-1).Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

func (s *store[T]) Create(ctx context.Context, entity *T) error {
	return s.db.WithContext(ctx).Create(entity).Error
}

func (s *store[T]) Save(ctx context.Context, entity *T) error {
	return s.db.WithContext(ctx).Save(entity).Error
}

func (s *store[T]) Upsert(ctx context.Context, entity *T, conflict []string, update []string) error {
	cols := make([]clause.Column, 0, len(conflict))
	for _, c := range conflict {
		cols = append(cols, clause.Column{Name: c})
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   cols,
		DoUpdates: clause.AssignmentColumns(update),
	}).Create(entity).Error
}

func (s *store[T]) Delete(ctx context.Context, entity *T) error {
	return s.db.WithContext(ctx).Delete(entity).Error
}
