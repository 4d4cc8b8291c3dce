package payout

import (
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("providers.payout",
	fx.Provide(func(log *zap.Logger) *Registry {
		return NewRegistry(map[string]Gateway{
			ProviderSandbox: NewSandboxGateway(log),
		})
	}),
)
