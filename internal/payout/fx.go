package payout

import (
	"context"

	"go.uber.org/fx"

	"github.com/smallbiznis/clinova/internal/config"
	"github.com/smallbiznis/clinova/internal/payout/repository"
	"github.com/smallbiznis/clinova/internal/payout/service"
	"github.com/smallbiznis/clinova/internal/payout/worker"
)

var Module = fx.Module("payout",
	fx.Provide(
		repository.Provide,
		service.NewProcessor,
		service.NewService,
		worker.New,
	),
	fx.Invoke(StartWorker),
)

func StartWorker(lc fx.Lifecycle, cfg config.Config, w *worker.Worker) {
	if !cfg.PayoutWorker.Enabled {
		return
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())

			go w.RunForever(ctx)

			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})

			return nil
		},
	})
}
