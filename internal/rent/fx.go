package rent

import (
	"github.com/cityofhelsinki/mvj/internal/rent/repository"
	"github.com/cityofhelsinki/mvj/internal/rent/service"
	"go.uber.org/fx"
)

var Module = fx.Module("rent.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
