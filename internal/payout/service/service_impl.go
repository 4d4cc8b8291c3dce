package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smallbiznis/clinova/internal/payout/domain"
	"github.com/smallbiznis/clinova/pkg/db/pagination"
)

type Params struct {
	fx.In

	Log  *zap.Logger
	Repo domain.Repository
}

type payoutService struct {
	log  *zap.Logger
	repo domain.Repository
}

func NewService(p Params) domain.Service {
	return &payoutService{
		log:  p.Log.Named("payout.service"),
		repo: p.Repo,
	}
}

func (s *payoutService) GetPayoutRequest(ctx context.Context, tenantID, requestID snowflake.ID) (*domain.PayoutRequest, error) {
	return s.repo.FindByID(ctx, tenantID, requestID)
}

func (s *payoutService) ListPayoutRequests(ctx context.Context, req domain.ListPayoutRequest) (*domain.ListPayoutResponse, error) {
	var cursor *domain.PayoutCursor
	if strings.TrimSpace(req.PageToken) != "" {
		decoded, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return nil, domain.ErrInvalidPageToken
		}
		requestedAt, err := time.Parse(time.RFC3339, decoded.CreatedAt)
		if err != nil {
			return nil, domain.ErrInvalidPageToken
		}
		id, err := snowflake.ParseString(strings.TrimSpace(decoded.ID))
		if err != nil || id == 0 {
			return nil, domain.ErrInvalidPageToken
		}
		cursor = &domain.PayoutCursor{ID: id, RequestedAt: requestedAt}
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	if pageSize > 250 {
		pageSize = 250
	}

	items, err := s.repo.List(ctx, domain.ListFilter{
		TenantID: req.TenantID,
		ClinicID: req.ClinicID,
		Status:   req.Status,
		Cursor:   cursor,
		Limit:    int(pageSize),
	})
	if err != nil {
		return nil, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(item *domain.PayoutRequest) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        item.ID.String(),
			CreatedAt: item.RequestedAt.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > int(pageSize) {
		items = items[:pageSize]
	}

	requests := make([]domain.PayoutRequest, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		requests = append(requests, *item)
	}

	resp := &domain.ListPayoutResponse{Requests: requests}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}
