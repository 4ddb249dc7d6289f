package core

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// AdminOnly ensures the authenticated principal holds RoleAdmin.
// Must run after BearerAuth.
func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := currentPrincipal(c)
		if !ok || !p.IsAdmin() {
			respondError(c, http.StatusUnauthorized, msgNoAccess)
			return
		}
		c.Next()
	}
}
