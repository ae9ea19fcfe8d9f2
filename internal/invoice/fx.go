package invoice

import (
	"github.com/cityofhelsinki/mvj/internal/invoice/repository"
	"github.com/cityofhelsinki/mvj/internal/invoice/service"
	"go.uber.org/fx"
)

var Module = fx.Module("invoice.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
	fx.Provide(service.NewExplanationService),
)
