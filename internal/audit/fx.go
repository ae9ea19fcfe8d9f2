package audit

import (
	auditdomain "github.com/cityofhelsinki/mvj/internal/audit/domain"
	"github.com/cityofhelsinki/mvj/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit.service",
	fx.Provide(auditdomain.DefaultRegistry),
	fx.Provide(service.NewService),
	fx.Provide(service.NewExportService),
)
