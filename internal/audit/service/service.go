package service

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/cityofhelsinki/mvj/internal/audit/domain"
	"github.com/cityofhelsinki/mvj/internal/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Registry *auditdomain.Registry
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	registry *auditdomain.Registry
}

func NewService(p Params) auditdomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("audit.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		registry: p.Registry,
	}
}

func (s *Service) Record(ctx context.Context, db *gorm.DB, actor auditdomain.Actor, action, targetType string, targetID snowflake.ID, metadata map[string]any) error {
	if db == nil {
		db = s.db
	}
	entry := auditdomain.AuditLog{
		ID:         s.genID.Generate(),
		ActorType:  actor.Type,
		Action:     action,
		TargetType: targetType,
		Metadata:   datatypes.JSONMap(metadata),
		CreatedAt:  s.clock.Now(ctx),
	}
	if actor.ID != "" {
		id := actor.ID
		entry.ActorID = &id
	}
	if targetID != 0 {
		id := targetID.String()
		entry.TargetID = &id
	}
	return db.WithContext(ctx).Create(&entry).Error
}

func (s *Service) SoftDelete(ctx context.Context, actor auditdomain.Actor, kind string, id snowflake.ID) (bool, error) {
	entity, ok := s.registry.Lookup(kind)
	if !ok {
		return false, fmt.Errorf("%w: %s", auditdomain.ErrUnknownEntity, kind)
	}

	deleted := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var live int64
		if err := tx.Table(entity.Table).Where("id = ? AND deleted IS NULL", id).Count(&live).Error; err != nil {
			return err
		}
		if live == 0 {
			return auditdomain.ErrEntityNotFound
		}

		now := s.clock.Now(ctx)
		q := tx.Table(entity.Table).Where("id = ? AND deleted IS NULL", id)
		if entity.Protected != "" {
			q = q.Where("NOT (" + entity.Protected + ")")
		}
		res := q.Updates(map[string]any{"deleted": now, "deleted_by_cascade": false})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			s.log.Info("soft delete skipped by protection rule", zap.String("kind", kind), zap.String("id", id.String()))
			return nil
		}
		deleted = true
		if err := s.Record(ctx, tx, actor, auditdomain.ActionDelete, kind, id, nil); err != nil {
			return err
		}
		return s.cascade(ctx, tx, actor, entity, []snowflake.ID{id})
	})
	return deleted, err
}

// cascade soft deletes the live children of parents, depth first.
func (s *Service) cascade(ctx context.Context, tx *gorm.DB, actor auditdomain.Actor, parent auditdomain.Entity, parents []snowflake.ID) error {
	now := s.clock.Now(ctx)
	for _, rel := range parent.Children {
		child, ok := s.registry.Lookup(rel.Kind)
		if !ok {
			return fmt.Errorf("%w: %s", auditdomain.ErrUnknownEntity, rel.Kind)
		}

		q := tx.Table(child.Table).Where(rel.ForeignKey+" IN ? AND deleted IS NULL", parents)
		if child.Protected != "" {
			q = q.Where("NOT (" + child.Protected + ")")
		}
		var raw []int64
		if err := q.Pluck("id", &raw).Error; err != nil {
			return err
		}
		if len(raw) == 0 {
			continue
		}
		ids := make([]snowflake.ID, 0, len(raw))
		for _, v := range raw {
			ids = append(ids, snowflake.ID(v))
		}

		if err := tx.Table(child.Table).Where("id IN ?", ids).
			Updates(map[string]any{"deleted": now, "deleted_by_cascade": true}).Error; err != nil {
			return err
		}
		for _, id := range ids {
			meta := map[string]any{"parent_kind": parent.Kind}
			if err := s.Record(ctx, tx, actor, auditdomain.ActionCascadeDelete, child.Kind, id, meta); err != nil {
				return err
			}
		}
		if err := s.cascade(ctx, tx, actor, child, ids); err != nil {
			return err
		}
	}
	return nil
}
