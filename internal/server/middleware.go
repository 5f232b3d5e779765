package server

import (
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/donara/internal/identity"
	obscontext "github.com/smallbiznis/donara/internal/observability/context"
	paymentdomain "github.com/smallbiznis/donara/internal/payment/domain"
	"go.uber.org/zap"
)

const contextAdminKey = "donara.admin"

// DonorAuthRequired verifies the Firebase ID token on donor routes.
func (s *Server) DonorAuthRequired() gin.HandlerFunc {
	verify := identity.Middleware(s.verifier, func(c *gin.Context, err error) {
		AbortWithError(c, err)
	})
	return func(c *gin.Context) {
		verify(c)
		if c.IsAborted() {
			return
		}
		if donor, ok := identity.FromContext(c); ok {
			c.Request = c.Request.WithContext(obscontext.WithActor(c.Request.Context(), "donor", donor.UID))
		}
	}
}

// AdminAuthRequired resolves the admin session cookie.
func (s *Server) AdminAuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := s.sessions.ReadToken(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		admin, err := s.adminAuth.Authenticate(c.Request.Context(), token)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(contextAdminKey, admin)
		c.Request = c.Request.WithContext(obscontext.WithActor(c.Request.Context(), "admin", admin.ID.String()))
		c.Next()
	}
}

func (s *Server) DonationCreateRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Enabled() {
			c.Next()
			return
		}
		donor, ok := identity.FromContext(c)
		if !ok {
			c.Next()
			return
		}
		result, err := s.limiter.AllowDonationCreate(c.Request.Context(), donor.UID)
		if err != nil {
			// Redis trouble must not block donations.
			s.log.Warn("donation rate limit check failed", zap.Error(err))
			c.Next()
			return
		}
		if !result.Allowed {
			s.obsMetrics.RecordRateLimitDenied(c.Request.Context(), "donation_create", "donor")
			setRetryAfter(c, result.RetryAfter.Seconds())
			AbortWithError(c, ErrRateLimited)
			return
		}
		c.Next()
	}
}

// InboundRateLimit throttles the browser redirect per provider and client IP.
func (s *Server) InboundRateLimit(kind paymentdomain.ProviderKind) gin.HandlerFunc {
	return s.inboundBudget(kind, true)
}

// InboundAckBudget meters webhook and callback deliveries against the same
// budget but never refuses them: an over-budget delivery is counted, then
// recorded and acknowledged like any other.
func (s *Server) InboundAckBudget(kind paymentdomain.ProviderKind) gin.HandlerFunc {
	return s.inboundBudget(kind, false)
}

func (s *Server) inboundBudget(kind paymentdomain.ProviderKind, enforce bool) gin.HandlerFunc {
	endpoint := "inbound_" + string(kind)
	return func(c *gin.Context) {
		if !s.limiter.Enabled() {
			c.Next()
			return
		}
		result, err := s.limiter.AllowInbound(c.Request.Context(), string(kind), c.ClientIP())
		if err != nil {
			s.log.Warn("inbound rate limit check failed", zap.String("provider", string(kind)), zap.Error(err))
			c.Next()
			return
		}
		if result.Allowed {
			c.Next()
			return
		}
		if !enforce {
			s.obsMetrics.RecordRateLimitDenied(c.Request.Context(), endpoint, "acknowledged")
			s.log.Warn("inbound delivery over budget",
				zap.String("provider", string(kind)),
				zap.String("client_ip", c.ClientIP()),
			)
			c.Next()
			return
		}
		s.obsMetrics.RecordRateLimitDenied(c.Request.Context(), endpoint, "client_ip")
		setRetryAfter(c, result.RetryAfter.Seconds())
		AbortWithError(c, ErrRateLimited)
	}
}

func setRetryAfter(c *gin.Context, seconds float64) {
	if seconds <= 0 {
		return
	}
	c.Header("Retry-After", strconv.Itoa(int(seconds+0.999)))
}

func donorUID(c *gin.Context) (string, bool) {
	donor, ok := identity.FromContext(c)
	if !ok || strings.TrimSpace(donor.UID) == "" {
		return "", false
	}
	return donor.UID, true
}

// tagDonation lets the request logger and span report which donation the
// request touched.
func tagDonation(c *gin.Context, id snowflake.ID) {
	if id != 0 {
		c.Set(obscontext.DonationIDKey, id.String())
	}
}

func tagProvider(c *gin.Context, kind paymentdomain.ProviderKind) {
	c.Set(obscontext.ProviderKey, string(kind))
}
