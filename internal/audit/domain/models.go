// Package domain describes audit log entries and the relation metadata that drives
// cascading soft deletes.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrUnknownEntity  = errors.New("unknown_entity")
	ErrEntityNotFound = errors.New("entity_not_found")
)

const (
	ActorSystem = "system"
	ActorUser   = "user"

	ActionDelete        = "delete"
	ActionCascadeDelete = "cascade_delete"
	ActionCreate        = "create"
	ActionUpdate        = "update"
)

type AuditLog struct {
	ID         snowflake.ID      `gorm:"primaryKey"`
	ActorType  string            `gorm:"type:text;not null"`
	ActorID    *string           `gorm:"type:text"`
	Action     string            `gorm:"type:text;not null;index"`
	TargetType string            `gorm:"type:text;not null"`
	TargetID   *string           `gorm:"type:text"`
	Metadata   datatypes.JSONMap `gorm:"type:json"`
	CreatedAt  time.Time         `gorm:"not null;index"`
}

func (AuditLog) TableName() string { return "audit_logs" }

// Actor identifies who caused an audited change.
type Actor struct {
	Type string
	ID   string
}

func SystemActor() Actor { return Actor{Type: ActorSystem} }

type Service interface {
	Record(ctx context.Context, db *gorm.DB, actor Actor, action, targetType string, targetID snowflake.ID, metadata map[string]any) error

	// SoftDelete marks the entity and every owned child deleted. It reports false, with no
	// error, when a protection rule keeps the entity.
	SoftDelete(ctx context.Context, actor Actor, kind string, id snowflake.ID) (bool, error)
}

type actorKey struct{}

func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext falls back to the system actor.
func ActorFromContext(ctx context.Context) Actor {
	if actor, ok := ctx.Value(actorKey{}).(Actor); ok {
		return actor
	}
	return SystemActor()
}
