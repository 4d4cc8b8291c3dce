package hold

import (
	"go.uber.org/fx"

	"github.com/smallbiznis/clinova/internal/hold/repository"
	"github.com/smallbiznis/clinova/internal/hold/service"
)

var Module = fx.Module("hold",
	fx.Provide(
		repository.Provide,
		service.NewService,
	),
)
