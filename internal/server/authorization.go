package server

import (
	"github.com/gin-gonic/gin"
	authdomain "github.com/smallbiznis/donara/internal/auth/domain"
)

func (s *Server) authorizeAdmin(object string, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		admin, ok := adminFromContext(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if s.authzSvc == nil {
			AbortWithError(c, ErrForbidden)
			return
		}
		if err := s.authzSvc.Authorize(c.Request.Context(), "admin:"+admin.ID.String(), object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

func adminFromContext(c *gin.Context) (*authdomain.Admin, bool) {
	value, ok := c.Get(contextAdminKey)
	if !ok {
		return nil, false
	}
	admin, ok := value.(*authdomain.Admin)
	return admin, ok && admin != nil
}
