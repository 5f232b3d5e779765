package server

import (
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/smallbiznis/donara/internal/payment/domain"
	"github.com/smallbiznis/donara/internal/payment/reconcile"
	"go.uber.org/zap"
)

const maxInboundBody = 1 << 20

// RazorpayWebhook always acknowledges. Verification and application happen in
// the coordinator; a non-2xx would only make the provider retry.
func (s *Server) RazorpayWebhook(c *gin.Context) {
	s.acceptInbound(c, paymentdomain.ProviderRazorpay, paymentdomain.ChannelWebhook)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) PhonePeCallback(c *gin.Context) {
	s.acceptInbound(c, paymentdomain.ProviderPhonePe, paymentdomain.ChannelCallback)
	c.JSON(http.StatusOK, gin.H{"status": "acknowledged"})
}

func (s *Server) acceptInbound(c *gin.Context, kind paymentdomain.ProviderKind, channel paymentdomain.Channel) {
	tagProvider(c, kind)
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxInboundBody))
	if err != nil {
		s.log.Warn("read inbound body", zap.String("provider", string(kind)), zap.Error(err))
		return
	}
	ack := s.payments.HandleInbound(c.Request.Context(), kind, channel, paymentdomain.InboundNotification{
		Body:   body,
		Header: c.Request.Header.Clone(),
	})
	if !ack.Accepted {
		s.log.Info("inbound notification not accepted",
			zap.String("provider", string(kind)),
			zap.String("channel", string(channel)),
			zap.Int64("notification_id", ack.NotificationID.Int64()),
			zap.String("reason", ack.Reason),
		)
	}
}

// PhonePeRedirect lands the donor's browser. The answer comes from an
// authoritative status query bounded by the redirect timeout.
func (s *Server) PhonePeRedirect(c *gin.Context) {
	tagProvider(c, paymentdomain.ProviderPhonePe)
	reference := firstNonEmpty(
		c.Query("merchantTransactionId"),
		c.Query("merchant_transaction_id"),
		c.Query("transactionId"),
	)
	landing := s.payments.HandleRedirect(c.Request.Context(), paymentdomain.ProviderPhonePe, reference)
	tagDonation(c, landing.DonationID)

	target, ok := landingURL(s.cfg.AppDeepLink, landing)
	if !ok {
		body := gin.H{"status": string(landing.Status)}
		if landing.DonationID != 0 {
			body["donation_id"] = landing.DonationID.String()
		}
		c.JSON(http.StatusOK, body)
		return
	}
	c.Redirect(http.StatusFound, target)
}

func landingURL(deepLink string, landing reconcile.LandingResult) (string, bool) {
	deepLink = strings.TrimSpace(deepLink)
	if deepLink == "" {
		return "", false
	}
	u, err := url.Parse(deepLink)
	if err != nil {
		return "", false
	}
	q := u.Query()
	q.Set("status", string(landing.Status))
	if landing.DonationID != 0 {
		q.Set("donation_id", landing.DonationID.String())
	}
	u.RawQuery = q.Encode()
	return u.String(), true
}
