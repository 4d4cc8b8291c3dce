package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"github.com/smallbiznis/clinova/internal/clinic/domain"
)

type clinicRepository struct {
	db *gorm.DB
}

func Provide(db *gorm.DB) domain.Repository {
	return &clinicRepository{db: db}
}

func (r *clinicRepository) FindClinic(ctx context.Context, tenantID, clinicID snowflake.ID) (*domain.Clinic, error) {
	var clinic domain.Clinic
	err := r.db.WithContext(ctx).
		Raw(`SELECT * FROM clinics WHERE tenant_id = ? AND id = ?`, tenantID, clinicID).
		First(&clinic).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrClinicNotFound
		}
		return nil, err
	}
	return &clinic, nil
}

func (r *clinicRepository) FindServiceType(ctx context.Context, tenantID, clinicID, serviceTypeID snowflake.ID) (*domain.ServiceType, error) {
	var serviceType domain.ServiceType
	err := r.db.WithContext(ctx).
		Raw(`SELECT * FROM clinic_service_types WHERE tenant_id = ? AND clinic_id = ? AND id = ?`,
			tenantID, clinicID, serviceTypeID).
		First(&serviceType).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrServiceTypeNotFound
		}
		return nil, err
	}
	return &serviceType, nil
}
