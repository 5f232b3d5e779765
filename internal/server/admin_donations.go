package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/donara/internal/audit/domain"
	donationdomain "github.com/smallbiznis/donara/internal/donation/domain"
	paymentdomain "github.com/smallbiznis/donara/internal/payment/domain"
)

const (
	defaultAdminListLimit = 50
	maxAdminListLimit     = 500
)

type requeryDonationRequest struct {
	Reference             string `json:"reference"`
	MerchantTransactionID string `json:"merchant_transaction_id"`
}

func (s *Server) AdminListDonations(c *gin.Context) {
	status := donationdomain.Status(strings.ToLower(firstNonEmpty(c.Query("status"), string(donationdomain.StatusPending))))
	switch status {
	case donationdomain.StatusPending, donationdomain.StatusSuccess, donationdomain.StatusFailed:
	default:
		AbortWithError(c, newValidationError("status", "invalid_status", "invalid status"))
		return
	}

	limit := parseLimit(c.Query("limit"), defaultAdminListLimit, maxAdminListLimit)
	items, err := s.ledger.ListByStatus(c.Request.Context(), status, limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) AdminGetDonation(c *gin.Context) {
	id, err := parseSnowflakeParam(c, "id")
	if err != nil {
		AbortWithError(c, ErrNotFound)
		return
	}
	donation, err := s.ledger.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": donation})
}

// AdminRequeryDonation forces an authoritative status query with the provider
// reference the operator supplies.
func (s *Server) AdminRequeryDonation(c *gin.Context) {
	id, err := parseSnowflakeParam(c, "id")
	if err != nil {
		AbortWithError(c, ErrNotFound)
		return
	}
	tagDonation(c, id)

	var req requeryDonationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	reference := firstNonEmpty(req.MerchantTransactionID, req.Reference)
	if reference == "" {
		AbortWithError(c, paymentdomain.ErrMissingCorrelation)
		return
	}

	donation, err := s.ledger.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	kind, ok := paymentdomain.KindForMethod(donation.Method)
	if !ok {
		AbortWithError(c, newValidationError("method", "requery_unsupported", "donation method has no provider to query"))
		return
	}

	landing, err := s.payments.RequeryReference(c.Request.Context(), kind, reference)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if landing.DonationID != 0 && landing.DonationID != donation.ID {
		AbortWithError(c, newValidationError("reference", "reference_mismatch", "reference belongs to another donation"))
		return
	}

	s.recordAudit(c, auditdomain.ActionDonationRequery, "donation", donation.ID.String(), map[string]any{
		"provider":  string(kind),
		"reference": reference,
		"status":    string(landing.Status),
	})

	current, err := s.ledger.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data": gin.H{
			"status":   landing.Status,
			"donation": current,
		},
	})
}

func (s *Server) AdminListDonationNotifications(c *gin.Context) {
	id, err := parseSnowflakeParam(c, "id")
	if err != nil {
		AbortWithError(c, ErrNotFound)
		return
	}
	records, err := s.notifications.ListByDonation(c.Request.Context(), s.db, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": records})
}
