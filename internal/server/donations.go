package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	donationdomain "github.com/smallbiznis/donara/internal/donation/domain"
	"github.com/smallbiznis/donara/internal/payment/reconcile"
	"github.com/smallbiznis/donara/pkg/db/pagination"
)

type createDonationRequest struct {
	OrphanageID string          `json:"orphanage_id"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Method      string          `json:"method"`
	Note        string          `json:"note"`
}

type createDonationResponse struct {
	DonationID      string                `json:"donation_id"`
	Method          donationdomain.Method `json:"method"`
	Status          donationdomain.Status `json:"status"`
	ProviderPayload map[string]any        `json:"provider_payload,omitempty"`
}

func (s *Server) CreateDonation(c *gin.Context) {
	uid, ok := donorUID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req createDonationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	orphanageID, err := snowflake.ParseString(strings.TrimSpace(req.OrphanageID))
	if err != nil || orphanageID == 0 {
		AbortWithError(c, newValidationError("orphanage_id", "invalid_orphanage", "invalid orphanage_id"))
		return
	}
	orphanage, err := s.orphanages.GetVerified(c.Request.Context(), orphanageID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	result, err := s.payments.Create(c.Request.Context(), reconcile.CreateRequest{
		DonorID:     uid,
		OrphanageID: orphanage.ID,
		Amount:      req.Amount,
		Currency:    strings.TrimSpace(req.Currency),
		Method:      req.Method,
		Note:        strings.TrimSpace(req.Note),
	})
	if result.Donation != nil {
		tagDonation(c, result.Donation.ID)
	}
	if err != nil {
		if result.Donation != nil {
			// the pending row is kept, so a retry or support request can name it
			abortWithErrorMeta(c, err, map[string]any{"donation_id": result.Donation.ID.String()})
			return
		}
		AbortWithError(c, err)
		return
	}

	payload := result.ProviderPayload
	if result.Donation.Method == donationdomain.MethodManualIntent && orphanage.UPIID != "" {
		payload = withUPIPayee(payload, orphanage.UPIID, orphanage.Name)
	}

	c.JSON(http.StatusCreated, createDonationResponse{
		DonationID:      result.Donation.ID.String(),
		Method:          result.Donation.Method,
		Status:          result.Donation.Status,
		ProviderPayload: payload,
	})
}

func withUPIPayee(payload map[string]any, upiID, name string) map[string]any {
	if payload == nil {
		payload = map[string]any{}
	}
	upi, _ := payload["upi"].(map[string]any)
	if upi == nil {
		upi = map[string]any{}
	}
	upi["payee_vpa"] = upiID
	upi["payee_name"] = name
	payload["upi"] = upi
	return payload
}

func (s *Server) ListMyDonations(c *gin.Context) {
	uid, ok := donorUID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var query pagination.Pagination
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.ledger.ListByDonor(c.Request.Context(), donationdomain.ListDonationsRequest{
		DonorID:    uid,
		Pagination: query,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetMyDonation(c *gin.Context) {
	donation, ok := s.ownDonation(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": donation})
}

// ownDonation loads the path donation for the signed-in donor. Another
// donor's donation is reported as not found.
func (s *Server) ownDonation(c *gin.Context) (*donationdomain.Donation, bool) {
	uid, ok := donorUID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return nil, false
	}
	id, err := parseSnowflakeParam(c, "id")
	if err != nil {
		AbortWithError(c, ErrNotFound)
		return nil, false
	}
	tagDonation(c, id)

	donation, err := s.ledger.GetForDonor(c.Request.Context(), uid, id)
	if err != nil {
		AbortWithError(c, err)
		return nil, false
	}
	return donation, true
}
