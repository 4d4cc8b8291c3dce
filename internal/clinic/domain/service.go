package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrClinicNotFound      = errors.New("clinic not found")
	ErrServiceTypeNotFound = errors.New("service type not found")
)

type Service interface {
	GetClinic(ctx context.Context, tenantID, clinicID snowflake.ID) (*Clinic, error)
	GetServiceType(ctx context.Context, tenantID, clinicID, serviceTypeID snowflake.ID) (*ServiceType, error)
}

type Repository interface {
	FindClinic(ctx context.Context, tenantID, clinicID snowflake.ID) (*Clinic, error)
	FindServiceType(ctx context.Context, tenantID, clinicID, serviceTypeID snowflake.ID) (*ServiceType, error)
}
