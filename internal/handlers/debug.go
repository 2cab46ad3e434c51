package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/observability"
	"messaging-service/internal/telemetry"
)

// OnlineLister reports the users with a live connection.
type OnlineLister interface {
	Online() []string
}

// RegisterDebugRoutes mounts /debug/audit-test and /debug/presence when
// enabled. Both are unauthenticated and meant for local stacks.
func RegisterDebugRoutes(router gin.IRouter, emitter *telemetry.AuditEmitter, presence OnlineLister, enabled bool) {
	if !enabled {
		return
	}
	debug := router.Group("/debug")
	debug.GET("/audit-test", auditProbe(emitter))
	debug.GET("/presence", func(c *gin.Context) {
		online := presence.Online()
		c.JSON(http.StatusOK, gin.H{"online": online, "count": len(online)})
	})
}

func auditProbe(emitter *telemetry.AuditEmitter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		userID := c.GetString("userID")
		if userID == "" {
			userID = c.GetHeader("X-User-ID")
		}
		meta := observability.MetaFromRequest(c.Request)
		emitter.Emit(c.Request.Context(), telemetry.AuditRecord{
			Action:    "debug.audit_test",
			Text:      "audit test from " + meta.IP,
			UserID:    userID,
			RequestID: meta.RequestID,
		})
		c.JSON(http.StatusOK, gin.H{"status": "ok", "requestId": meta.RequestID})
	}
}
