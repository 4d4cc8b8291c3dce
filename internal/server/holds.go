package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	holddomain "github.com/smallbiznis/clinova/internal/hold/domain"
	obscontext "github.com/smallbiznis/clinova/internal/observability/context"
)

type createHoldRequest struct {
	ClinicID       string         `json:"clinic_id" binding:"required"`
	ProfessionalID string         `json:"professional_id" binding:"required"`
	PatientID      string         `json:"patient_id" binding:"required"`
	ServiceTypeID  string         `json:"service_type_id" binding:"required"`
	Start          time.Time      `json:"start" binding:"required"`
	End            time.Time      `json:"end" binding:"required"`
	LocationID     string         `json:"location_id"`
	Resources      []string       `json:"resources"`
	IdempotencyKey string         `json:"idempotency_key" binding:"required"`
	RequestedBy    string         `json:"requested_by" binding:"required"`
	Metadata       map[string]any `json:"metadata"`
}

func (s *Server) rateLimitHolds() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.limiter == nil {
			c.Next()
			return
		}

		clinicID, _ := snowflake.ParseString(strings.TrimSpace(c.GetHeader("X-Clinic-Id")))
		patientID, _ := snowflake.ParseString(strings.TrimSpace(c.GetHeader("X-Patient-Id")))
		if clinicID == 0 && patientID == 0 {
			c.Next()
			return
		}

		result := s.limiter.Allow(c.Request.Context(), clinicID, patientID)
		if !result.Allowed {
			c.Header("Retry-After", result.RetryAfter.String())
			AbortWithError(c, ErrRateLimited)
			return
		}
		c.Next()
	}
}

func (s *Server) CreateHold(c *gin.Context) {
	var req createHoldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	clinicID, err := snowflake.ParseString(req.ClinicID)
	if err != nil || clinicID == 0 {
		AbortWithError(c, newValidationError("clinic_id", "invalid", "invalid clinic_id"))
		return
	}
	professionalID, err := snowflake.ParseString(req.ProfessionalID)
	if err != nil || professionalID == 0 {
		AbortWithError(c, newValidationError("professional_id", "invalid", "invalid professional_id"))
		return
	}
	patientID, err := snowflake.ParseString(req.PatientID)
	if err != nil || patientID == 0 {
		AbortWithError(c, newValidationError("patient_id", "invalid", "invalid patient_id"))
		return
	}
	serviceTypeID, err := snowflake.ParseString(req.ServiceTypeID)
	if err != nil || serviceTypeID == 0 {
		AbortWithError(c, newValidationError("service_type_id", "invalid", "invalid service_type_id"))
		return
	}

	var locationID *snowflake.ID
	if strings.TrimSpace(req.LocationID) != "" {
		parsed, err := snowflake.ParseString(req.LocationID)
		if err != nil || parsed == 0 {
			AbortWithError(c, newValidationError("location_id", "invalid", "invalid location_id"))
			return
		}
		locationID = &parsed
	}

	ctx := obscontext.WithClinicID(c.Request.Context(), clinicID.String())
	if s.limiter != nil {
		release, ok := s.limiter.LockSlot(ctx, clinicID, professionalID, req.Start)
		if !ok {
			AbortWithError(c, ErrRateLimited)
			return
		}
		defer release()
	}

	created, err := s.holdSvc.CreateHold(ctx, holddomain.CreateHoldRequest{
		TenantID:       tenantFromContext(c),
		ClinicID:       clinicID,
		ProfessionalID: professionalID,
		PatientID:      patientID,
		ServiceTypeID:  serviceTypeID,
		Start:          req.Start,
		End:            req.End,
		LocationID:     locationID,
		Resources:      req.Resources,
		IdempotencyKey: strings.TrimSpace(req.IdempotencyKey),
		RequestedBy:    strings.TrimSpace(req.RequestedBy),
		Metadata:       req.Metadata,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, created)
}

func (s *Server) GetHold(c *gin.Context) {
	holdID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	found, err := s.holdSvc.GetHold(c.Request.Context(), tenantFromContext(c), holdID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, found)
}
