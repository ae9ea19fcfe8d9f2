package index

import (
	"github.com/cityofhelsinki/mvj/internal/index/importer"
	"github.com/cityofhelsinki/mvj/internal/index/repository"
	"github.com/cityofhelsinki/mvj/internal/index/service"
	"go.uber.org/fx"
)

var Module = fx.Module("index.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Provide(importer.New),
)
