package overbooking

import (
	"go.uber.org/fx"

	"github.com/smallbiznis/clinova/internal/overbooking/repository"
	"github.com/smallbiznis/clinova/internal/overbooking/service"
)

var Module = fx.Module("overbooking",
	fx.Provide(
		repository.Provide,
		service.NewService,
	),
)
