package equalization

import (
	"github.com/cityofhelsinki/mvj/internal/equalization/service"
	"go.uber.org/fx"
)

var Module = fx.Module("equalization.service",
	fx.Provide(service.New),
)
