package context

import (
	"context"
	"strings"
)

type requestIDKey struct{}
type actorKey struct{}
type tenantKey struct{}
type clinicKey struct{}

type actor struct {
	Type string
	ID   string
}

// WithRequestID stores the inbound request id in the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if value, ok := ctx.Value(requestIDKey{}).(string); ok {
		return value
	}
	return ""
}

// WithActor records who is performing the current operation.
func WithActor(ctx context.Context, actorType, actorID string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor{
		Type: strings.TrimSpace(actorType),
		ID:   strings.TrimSpace(actorID),
	})
}

func ActorFromContext(ctx context.Context) (string, string) {
	if ctx == nil {
		return "", ""
	}
	if value, ok := ctx.Value(actorKey{}).(actor); ok {
		return value.Type, value.ID
	}
	return "", ""
}

// WithTenantID stores the active tenant id in the context.
func WithTenantID(ctx context.Context, tenantID string) context.Context {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return ctx
	}
	return context.WithValue(ctx, tenantKey{}, tenantID)
}

func TenantIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if value, ok := ctx.Value(tenantKey{}).(string); ok {
		return value
	}
	return ""
}

// WithClinicID stores the active clinic id in the context.
func WithClinicID(ctx context.Context, clinicID string) context.Context {
	clinicID = strings.TrimSpace(clinicID)
	if clinicID == "" {
		return ctx
	}
	return context.WithValue(ctx, clinicKey{}, clinicID)
}

func ClinicIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if value, ok := ctx.Value(clinicKey{}).(string); ok {
		return value
	}
	return ""
}
