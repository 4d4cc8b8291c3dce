package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smallbiznis/clinova/internal/credentials/domain"
)

type Params struct {
	fx.In

	Log  *zap.Logger
	Repo domain.Repository
}

type credentialsService struct {
	log  *zap.Logger
	repo domain.Repository
}

func NewService(p Params) domain.Service {
	return &credentialsService{
		log:  p.Log.Named("credentials.service"),
		repo: p.Repo,
	}
}

func (s *credentialsService) Resolve(ctx context.Context, tenantID, credentialsID snowflake.ID) (*domain.Credentials, error) {
	if credentialsID == 0 {
		return nil, domain.ErrCredentialsNotFound
	}
	return s.repo.FindByID(ctx, tenantID, credentialsID)
}
