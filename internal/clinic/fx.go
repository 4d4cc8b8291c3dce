package clinic

import (
	"go.uber.org/fx"

	"github.com/smallbiznis/clinova/internal/clinic/repository"
	"github.com/smallbiznis/clinova/internal/clinic/service"
)

var Module = fx.Module("clinic",
	fx.Provide(
		repository.Provide,
		service.NewService,
	),
)
