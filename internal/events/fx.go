package events

import (
	"github.com/smallbiznis/clinova/internal/events/service"
	"go.uber.org/fx"
)

var Module = fx.Module("events",
	fx.Provide(service.NewPublisher),
)
