package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"github.com/smallbiznis/clinova/internal/credentials/domain"
)

type credentialsRepository struct {
	db *gorm.DB
}

func Provide(db *gorm.DB) domain.Repository {
	return &credentialsRepository{db: db}
}

func (r *credentialsRepository) FindByID(ctx context.Context, tenantID, credentialsID snowflake.ID) (*domain.Credentials, error) {
	var credentials domain.Credentials
	err := r.db.WithContext(ctx).
		Raw(`SELECT * FROM payout_credentials WHERE tenant_id = ? AND id = ?`, tenantID, credentialsID).
		First(&credentials).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrCredentialsNotFound
		}
		return nil, err
	}
	return &credentials, nil
}
