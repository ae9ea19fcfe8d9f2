// Package authorization enforces service unit scoped permissions with casbin.
package authorization

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	auditdomain "github.com/cityofhelsinki/mvj/internal/audit/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrForbidden = errors.New("forbidden")

const (
	ObjectInvoice = "invoice"

	ActionCreate = "create"
	ActionUpdate = "update"
)

// Subjects hold roles per service unit; a role grants (object, action) within that unit.
const modelText = `
[request_definition]
r = sub, dom, obj, act

[policy_definition]
p = sub, dom, obj, act

[role_definition]
g = _, _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub, r.dom) && r.dom == p.dom && r.obj == p.obj && r.act == p.act
`

type Authorizer interface {
	// Authorize checks the context actor. The system actor is always allowed.
	Authorize(ctx context.Context, serviceUnitID snowflake.ID, object, action string) error
}

type Params struct {
	fx.In

	DB  *gorm.DB
	Log *zap.Logger
}

type Service struct {
	enforcer *casbin.SyncedEnforcer
	log      *zap.Logger
}

func NewService(p Params) (*Service, error) {
	adapter, err := gormadapter.NewAdapterByDB(p.DB)
	if err != nil {
		return nil, fmt.Errorf("casbin adapter: %w", err)
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	return &Service{enforcer: enforcer, log: p.Log.Named("authorization.service")}, nil
}

func NewAuthorizer(s *Service) Authorizer { return s }

func (s *Service) Authorize(ctx context.Context, serviceUnitID snowflake.ID, object, action string) error {
	actor := auditdomain.ActorFromContext(ctx)
	if actor.Type == auditdomain.ActorSystem {
		return nil
	}
	ok, err := s.enforcer.Enforce(actor.ID, serviceUnitID.String(), object, action)
	if err != nil {
		return err
	}
	if !ok {
		s.log.Info("permission denied",
			zap.String("subject", actor.ID),
			zap.String("service_unit_id", serviceUnitID.String()),
			zap.String("object", object),
			zap.String("action", action),
		)
		return ErrForbidden
	}
	return nil
}

func (s *Service) AddPermission(role string, serviceUnitID snowflake.ID, object, action string) error {
	_, err := s.enforcer.AddPolicy(role, serviceUnitID.String(), object, action)
	return err
}

func (s *Service) AssignRole(subject, role string, serviceUnitID snowflake.ID) error {
	_, err := s.enforcer.AddGroupingPolicy(subject, role, serviceUnitID.String())
	return err
}
