// Package handlers contains the HTTP API handlers, along with their
// registration logic and middleware.
package handlers

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// AdminHeader carries the admin token on protected routes.
const AdminHeader = "X-Admin-Token"

// AdminOnly creates a middleware that checks the admin token header against the
// configured token. With no token configured every request is refused.
func AdminOnly(deps HandlerDeps) gin.HandlerFunc {
	log := deps.Logger.With("middleware", "AdminOnly")

	return func(c *gin.Context) {
		want := deps.Config.Server.AdminToken
		got := c.GetHeader(AdminHeader)

		if want == "" || subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
			log.WarnContext(c.Request.Context(), "Unauthorized admin request",
				"path", c.Request.URL.Path, "client_ip", c.ClientIP(), "token_configured", want != "")
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}

		c.Next()
	}
}
