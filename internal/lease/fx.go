package lease

import (
	"github.com/cityofhelsinki/mvj/internal/lease/domain"
	"github.com/cityofhelsinki/mvj/internal/lease/repository"
	"github.com/cityofhelsinki/mvj/internal/lease/service"
	pkgrepository "github.com/cityofhelsinki/mvj/pkg/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("lease.service",
	fx.Provide(repository.Provide),
	fx.Provide(
		pkgrepository.ProvideStore[domain.LeaseType],
		pkgrepository.ProvideStore[domain.Municipality],
		pkgrepository.ProvideStore[domain.District],
		pkgrepository.ProvideStore[domain.ServiceUnit],
		pkgrepository.ProvideStore[domain.ReceivableType],
		pkgrepository.ProvideStore[domain.Contact],
	),
	fx.Provide(service.New),
)
