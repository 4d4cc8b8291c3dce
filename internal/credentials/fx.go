package credentials

import (
	"go.uber.org/fx"

	"github.com/smallbiznis/clinova/internal/credentials/repository"
	"github.com/smallbiznis/clinova/internal/credentials/service"
)

var Module = fx.Module("credentials",
	fx.Provide(
		repository.Provide,
		service.NewService,
	),
)
