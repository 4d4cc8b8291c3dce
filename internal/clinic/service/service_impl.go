package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smallbiznis/clinova/internal/clinic/domain"
)

type Params struct {
	fx.In

	Log  *zap.Logger
	Repo domain.Repository
}

type clinicService struct {
	log  *zap.Logger
	repo domain.Repository
}

func NewService(p Params) domain.Service {
	return &clinicService{
		log:  p.Log.Named("clinic.service"),
		repo: p.Repo,
	}
}

func (s *clinicService) GetClinic(ctx context.Context, tenantID, clinicID snowflake.ID) (*domain.Clinic, error) {
	return s.repo.FindClinic(ctx, tenantID, clinicID)
}

func (s *clinicService) GetServiceType(ctx context.Context, tenantID, clinicID, serviceTypeID snowflake.ID) (*domain.ServiceType, error) {
	return s.repo.FindServiceType(ctx, tenantID, clinicID, serviceTypeID)
}
