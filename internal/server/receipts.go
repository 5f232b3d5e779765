package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	donationdomain "github.com/smallbiznis/donara/internal/donation/domain"
	orphanagedomain "github.com/smallbiznis/donara/internal/orphanage/domain"
	"github.com/smallbiznis/donara/internal/providers/pdf"
	userdomain "github.com/smallbiznis/donara/internal/user/domain"
	"go.uber.org/zap"
)

const receiptDateLayout = "02 Jan 2006"

func (s *Server) GetDonationReceipt(c *gin.Context) {
	donation, ok := s.ownDonation(c)
	if !ok {
		return
	}
	if donation.Status != donationdomain.StatusSuccess {
		AbortWithError(c, ErrReceiptUnavailable)
		return
	}

	ctx := c.Request.Context()
	data := pdf.ReceiptData{
		ReceiptNumber: donation.ID.String(),
		Amount:        donation.Amount.StringFixed(2),
		Currency:      donation.Currency,
		Method:        string(donation.Method),
		Note:          donation.Note,
	}
	if donation.ProviderTransactionID != nil {
		data.ProviderTransactionID = *donation.ProviderTransactionID
	}
	if donation.SettledAt != nil {
		data.DatePaid = donation.SettledAt.UTC().Format(receiptDateLayout)
	}

	donor, err := s.users.Get(ctx, donation.DonorID)
	switch {
	case err == nil:
		data.DonorName = donor.Name
		data.DonorEmail = donor.Email
	case !errors.Is(err, userdomain.ErrNotFound):
		AbortWithError(c, err)
		return
	}

	orphanage, err := s.orphanages.Get(ctx, donation.OrphanageID)
	switch {
	case err == nil:
		data.OrphanageName = orphanage.Name
		data.OrphanageAddress = joinNonEmpty(", ", orphanage.Address, orphanage.City, orphanage.State)
	case !errors.Is(err, orphanagedomain.ErrNotFound):
		AbortWithError(c, err)
		return
	}

	doc, err := s.receipts.GenerateReceipt(ctx, data)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if s.receiptStore != nil {
		key := fmt.Sprintf("receipts/%s.pdf", donation.ID.String())
		if _, err := s.receiptStore.Put(ctx, key, "application/pdf", doc); err != nil {
			s.log.Warn("store receipt failed", zap.String("donation_id", donation.ID.String()), zap.Error(err))
		}
	}

	c.Header("Content-Disposition", fmt.Sprintf(`inline; filename="donation-%s.pdf"`, donation.ID.String()))
	c.Data(http.StatusOK, "application/pdf", doc)
}
