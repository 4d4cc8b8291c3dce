package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

var ErrCredentialsNotFound = errors.New("payout credentials not found")

// Credentials is a clinic's gateway credential pair. The sandbox key is
// optional; sandbox-mode payouts fall back to the production key when the
// clinic never provisioned one.
type Credentials struct {
	ID               snowflake.ID `json:"id" gorm:"primaryKey"`
	TenantID         snowflake.ID `json:"tenant_id" gorm:"not null;index"`
	Provider         string       `json:"provider" gorm:"type:varchar(40);not null"`
	ProductionAPIKey string       `json:"-" gorm:"column:production_api_key;type:text;not null"`
	SandboxAPIKey    *string      `json:"-" gorm:"column:sandbox_api_key;type:text"`
	CreatedAt        time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt        time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Credentials) TableName() string { return "payout_credentials" }

// APIKey picks the key for the requested mode.
func (c Credentials) APIKey(sandbox bool) string {
	if sandbox && c.SandboxAPIKey != nil && *c.SandboxAPIKey != "" {
		return *c.SandboxAPIKey
	}
	return c.ProductionAPIKey
}

type Service interface {
	Resolve(ctx context.Context, tenantID, credentialsID snowflake.ID) (*Credentials, error)
}

type Repository interface {
	FindByID(ctx context.Context, tenantID, credentialsID snowflake.ID) (*Credentials, error)
}
