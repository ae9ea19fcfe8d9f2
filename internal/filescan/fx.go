package filescan

import (
	"github.com/cityofhelsinki/mvj/internal/filescan/repository"
	"github.com/cityofhelsinki/mvj/internal/filescan/service"
	"go.uber.org/fx"
)

var Module = fx.Module("filescan.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewClient),
	fx.Provide(service.New),
)
