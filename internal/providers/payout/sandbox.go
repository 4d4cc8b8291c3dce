package payout

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ProviderSandbox is the built-in simulator used for clinics running in
// sandbox mode and for local development. It settles every payout
// immediately without any external call.
const ProviderSandbox = "sandbox"

type sandboxGateway struct {
	log *zap.Logger
}

func NewSandboxGateway(log *zap.Logger) Gateway {
	return &sandboxGateway{log: log.Named("providers.payout.sandbox")}
}

func (g *sandboxGateway) ExecutePayout(ctx context.Context, req ExecutePayoutRequest) (*ExecutePayoutResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	payoutID := "sbx_" + uuid.NewString()
	executedAt := time.Now().UTC()
	g.log.Info("sandbox payout executed",
		zap.String("payout_id", payoutID),
		zap.String("external_reference", req.ExternalReference),
		zap.Int64("amount_cents", req.AmountCents),
		zap.String("currency", req.Currency),
	)
	return &ExecutePayoutResult{
		PayoutID:   &payoutID,
		Status:     StatusCompleted,
		ExecutedAt: &executedAt,
		ProviderResponse: map[string]any{
			"simulator":          true,
			"bank_account_id":    req.BankAccountID,
			"amount_cents":       req.AmountCents,
			"currency":           req.Currency,
			"external_reference": req.ExternalReference,
		},
	}, nil
}
