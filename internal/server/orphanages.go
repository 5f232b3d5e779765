package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/donara/internal/audit/domain"
	orphanagedomain "github.com/smallbiznis/donara/internal/orphanage/domain"
)

type orphanageRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Address     string `json:"address"`
	City        string `json:"city"`
	State       string `json:"state"`
	Phone       string `json:"phone"`
	Email       string `json:"email"`
	ImageURL    string `json:"image_url"`
	UPIID       string `json:"upi_id"`
}

type updateOrphanageRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Address     *string `json:"address"`
	City        *string `json:"city"`
	State       *string `json:"state"`
	Phone       *string `json:"phone"`
	Email       *string `json:"email"`
	ImageURL    *string `json:"image_url"`
	UPIID       *string `json:"upi_id"`
}

type verifyOrphanageRequest struct {
	Name string `json:"name"`
}

func (s *Server) ListOrphanages(c *gin.Context) {
	items, err := s.orphanages.List(c.Request.Context(), orphanagedomain.ListRequest{})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": items})
}

// GetOrphanage hides orphanages that are not verified yet.
func (s *Server) GetOrphanage(c *gin.Context) {
	id, err := parseSnowflakeParam(c, "id")
	if err != nil {
		AbortWithError(c, ErrNotFound)
		return
	}
	item, err := s.orphanages.GetVerified(c.Request.Context(), id)
	if errors.Is(err, orphanagedomain.ErrNotVerified) {
		err = ErrNotFound
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) AdminListOrphanages(c *gin.Context) {
	all, err := parseOptionalBool(c.Query("all"))
	if err != nil {
		AbortWithError(c, newValidationError("all", "invalid_all", "invalid all"))
		return
	}
	req := orphanagedomain.ListRequest{IncludeUnverified: true}
	if all != nil {
		req.IncludeUnverified = *all
	}
	items, err := s.orphanages.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) CreateOrphanage(c *gin.Context) {
	var req orphanageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	item, err := s.orphanages.Create(c.Request.Context(), orphanagedomain.CreateRequest{
		Name:        strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
		Address:     strings.TrimSpace(req.Address),
		City:        strings.TrimSpace(req.City),
		State:       strings.TrimSpace(req.State),
		Phone:       strings.TrimSpace(req.Phone),
		Email:       strings.TrimSpace(req.Email),
		ImageURL:    strings.TrimSpace(req.ImageURL),
		UPIID:       strings.TrimSpace(req.UPIID),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.recordAudit(c, auditdomain.ActionOrphanageCreate, "orphanage", item.ID.String(), map[string]any{"name": item.Name})
	c.JSON(http.StatusCreated, gin.H{"data": item})
}

func (s *Server) UpdateOrphanage(c *gin.Context) {
	id, err := parseSnowflakeParam(c, "id")
	if err != nil {
		AbortWithError(c, ErrNotFound)
		return
	}

	var req updateOrphanageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	item, err := s.orphanages.Update(c.Request.Context(), id, orphanagedomain.UpdateRequest{
		Name:        req.Name,
		Description: req.Description,
		Address:     req.Address,
		City:        req.City,
		State:       req.State,
		Phone:       req.Phone,
		Email:       req.Email,
		ImageURL:    req.ImageURL,
		UPIID:       req.UPIID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.recordAudit(c, auditdomain.ActionOrphanageUpdate, "orphanage", item.ID.String(), nil)
	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) DeleteOrphanage(c *gin.Context) {
	id, err := parseSnowflakeParam(c, "id")
	if err != nil {
		AbortWithError(c, ErrNotFound)
		return
	}
	if err := s.orphanages.Delete(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}
	s.recordAudit(c, auditdomain.ActionOrphanageDelete, "orphanage", id.String(), nil)
	c.Status(http.StatusNoContent)
}

func (s *Server) VerifyOrphanage(c *gin.Context) {
	var req verifyOrphanageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	item, err := s.orphanages.VerifyByName(c.Request.Context(), strings.TrimSpace(req.Name))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.recordAudit(c, auditdomain.ActionOrphanageVerify, "orphanage", item.ID.String(), map[string]any{"name": item.Name})
	c.JSON(http.StatusOK, gin.H{"data": item})
}
