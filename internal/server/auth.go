package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/donara/internal/audit/domain"
	authdomain "github.com/smallbiznis/donara/internal/auth/domain"
	"github.com/smallbiznis/donara/internal/identity"
	userdomain "github.com/smallbiznis/donara/internal/user/domain"
)

type registerDonorRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

type deviceTokenRequest struct {
	Token string `json:"token"`
}

// DonorLogin upserts the donor for the verified Firebase identity.
func (s *Server) DonorLogin(c *gin.Context) {
	donor, ok := identity.FromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	user, err := s.users.Login(c.Request.Context(), userdomain.LoginRequest{
		UID:   donor.UID,
		Email: donor.Email,
		Name:  donor.Name,
		Phone: donor.Phone,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": user})
}

func (s *Server) DonorMe(c *gin.Context) {
	uid, ok := donorUID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	user, err := s.users.Get(c.Request.Context(), uid)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": user})
}

func (s *Server) RegisterDonor(c *gin.Context) {
	uid, ok := donorUID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req registerDonorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	user, err := s.users.Register(c.Request.Context(), uid, userdomain.RegisterRequest{
		Name:    strings.TrimSpace(req.Name),
		Email:   strings.TrimSpace(req.Email),
		Phone:   strings.TrimSpace(req.Phone),
		Address: strings.TrimSpace(req.Address),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": user})
}

func (s *Server) UpdateDeviceToken(c *gin.Context) {
	uid, ok := donorUID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req deviceTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if err := s.users.UpdateDeviceToken(c.Request.Context(), uid, strings.TrimSpace(req.Token)); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

type adminSetupRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type adminLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AdminSetup creates the first administrator; it is closed once one exists.
func (s *Server) AdminSetup(c *gin.Context) {
	var req adminSetupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	admin, err := s.adminAuth.Setup(c.Request.Context(), authdomain.SetupRequest{
		Email:    strings.TrimSpace(req.Email),
		Name:     strings.TrimSpace(req.Name),
		Password: req.Password,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.recordAudit(c, auditdomain.ActionAdminSetup, "admin", admin.ID.String(), map[string]any{"email": admin.Email})
	c.JSON(http.StatusCreated, gin.H{"data": admin})
}

func (s *Server) AdminLogin(c *gin.Context) {
	var req adminLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.adminAuth.Login(c.Request.Context(), authdomain.LoginRequest{
		Email:     strings.TrimSpace(req.Email),
		Password:  req.Password,
		UserAgent: c.Request.UserAgent(),
		IPAddress: c.ClientIP(),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.sessions.Set(c, result.RawToken, result.ExpiresAt)
	if result.Admin != nil {
		s.recordAudit(c, auditdomain.ActionAdminLogin, "admin", result.Admin.ID.String(), nil)
	}
	c.JSON(http.StatusOK, gin.H{
		"data": gin.H{
			"admin":      result.Admin,
			"expires_at": result.ExpiresAt,
		},
	})
}

func (s *Server) AdminLogout(c *gin.Context) {
	token, ok := s.sessions.ReadToken(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	err := s.adminAuth.Logout(c.Request.Context(), token)
	if err != nil && !errors.Is(err, authdomain.ErrSessionNotFound) {
		AbortWithError(c, err)
		return
	}

	s.sessions.Clear(c)
	c.Status(http.StatusNoContent)
}

func (s *Server) AdminMe(c *gin.Context) {
	admin, ok := adminFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": admin})
}
