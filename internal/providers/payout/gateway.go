package payout

import (
	"context"
	"errors"
	"time"
)

const (
	StatusCompleted  = "completed"
	StatusProcessing = "processing"
)

var ErrUnknownProvider = errors.New("unknown payout provider")

type ExecutePayoutRequest struct {
	Provider          string
	APIKey            string
	SandboxMode       bool
	BankAccountID     string
	AmountCents       int64
	Currency          string
	Description       string
	ExternalReference string
	Metadata          map[string]any
}

type ExecutePayoutResult struct {
	PayoutID         *string
	Status           string
	ExecutedAt       *time.Time
	ProviderResponse map[string]any
}

// Gateway is the provider-side payout contract. Implementations must be
// safe for concurrent use; the worker calls them from overlapping leases
// across processes.
type Gateway interface {
	ExecutePayout(ctx context.Context, req ExecutePayoutRequest) (*ExecutePayoutResult, error)
}

// Registry resolves a gateway by provider name.
type Registry struct {
	gateways map[string]Gateway
}

func NewRegistry(gateways map[string]Gateway) *Registry {
	return &Registry{gateways: gateways}
}

func (r *Registry) Resolve(provider string) (Gateway, error) {
	gateway, ok := r.gateways[provider]
	if !ok {
		return nil, ErrUnknownProvider
	}
	return gateway, nil
}
