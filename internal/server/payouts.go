package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	payoutdomain "github.com/smallbiznis/clinova/internal/payout/domain"
	"github.com/smallbiznis/clinova/pkg/db/pagination"
)

type payoutEventRequest struct {
	ClinicID       string `json:"clinic_id" binding:"required"`
	AppointmentID  string `json:"appointment_id" binding:"required"`
	HoldID         string `json:"hold_id" binding:"required"`
	ProfessionalID string `json:"professional_id" binding:"required"`
	PatientID      string `json:"patient_id" binding:"required"`
	ServiceTypeID  string `json:"service_type_id" binding:"required"`

	PaymentTransactionID string  `json:"payment_transaction_id" binding:"required"`
	Provider             string  `json:"provider" binding:"required"`
	CredentialsID        string  `json:"credentials_id" binding:"required"`
	SandboxMode          bool    `json:"sandbox_mode"`
	BankAccountID        *string `json:"bank_account_id"`

	BaseAmountCents int64                `json:"base_amount_cents"`
	NetAmountCents  *int64               `json:"net_amount_cents"`
	RemainderCents  int64                `json:"remainder_cents"`
	Split           []payoutdomain.Split `json:"split"`
	Currency        string               `json:"currency" binding:"required"`

	GatewayStatus string  `json:"gateway_status" binding:"required"`
	EventType     *string `json:"event_type"`
	Fingerprint   *string `json:"fingerprint"`
	PayloadID     *string `json:"payload_id"`
}

// HandlePayoutEvent accepts the upstream payment-settled webhook and hands
// it to the enqueue processor. Replays are safe; the processor dedups.
func (s *Server) HandlePayoutEvent(c *gin.Context) {
	var req payoutEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ids := map[string]string{
		"clinic_id":       req.ClinicID,
		"appointment_id":  req.AppointmentID,
		"hold_id":         req.HoldID,
		"professional_id": req.ProfessionalID,
		"patient_id":      req.PatientID,
		"service_type_id": req.ServiceTypeID,
		"credentials_id":  req.CredentialsID,
	}
	parsed := make(map[string]snowflake.ID, len(ids))
	for field, raw := range ids {
		id, err := snowflake.ParseString(strings.TrimSpace(raw))
		if err != nil || id == 0 {
			AbortWithError(c, newValidationError(field, "invalid", "invalid "+field))
			return
		}
		parsed[field] = id
	}

	err := s.processor.Handle(c.Request.Context(), payoutdomain.PayoutRequestedEvent{
		TenantID:             tenantFromContext(c),
		ClinicID:             parsed["clinic_id"],
		AppointmentID:        parsed["appointment_id"],
		HoldID:               parsed["hold_id"],
		ProfessionalID:       parsed["professional_id"],
		PatientID:            parsed["patient_id"],
		ServiceTypeID:        parsed["service_type_id"],
		PaymentTransactionID: strings.TrimSpace(req.PaymentTransactionID),
		Provider:             strings.TrimSpace(req.Provider),
		CredentialsID:        parsed["credentials_id"],
		SandboxMode:          req.SandboxMode,
		BankAccountID:        req.BankAccountID,
		BaseAmountCents:      req.BaseAmountCents,
		NetAmountCents:       req.NetAmountCents,
		RemainderCents:       req.RemainderCents,
		Split:                req.Split,
		Currency:             strings.TrimSpace(req.Currency),
		GatewayStatus:        strings.TrimSpace(req.GatewayStatus),
		EventType:            req.EventType,
		Fingerprint:          req.Fingerprint,
		PayloadID:            req.PayloadID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

type listPayoutRequestsQuery struct {
	PageToken string `form:"page_token"`
	PageSize  int32  `form:"page_size"`
	Status    string `form:"status"`
}

func (s *Server) ListPayoutRequests(c *gin.Context) {
	var query listPayoutRequestsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	clinicID, _, err := parseIDQuery(c, "clinic_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.payoutSvc.ListPayoutRequests(c.Request.Context(), payoutdomain.ListPayoutRequest{
		TenantID: tenantFromContext(c),
		ClinicID: clinicID,
		Status:   strings.TrimSpace(query.Status),
		Pagination: pagination.Pagination{
			PageToken: strings.TrimSpace(query.PageToken),
			PageSize:  query.PageSize,
		},
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) GetPayoutRequest(c *gin.Context) {
	requestID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	found, err := s.payoutSvc.GetPayoutRequest(c.Request.Context(), tenantFromContext(c), requestID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, found)
}
