package server

import (
	"strings"

	auditdomain "github.com/cityofhelsinki/mvj/internal/audit/domain"
	"github.com/gin-gonic/gin"
)

const actorHeader = "X-Actor-Id"

// ActorFromHeaders attaches the calling user to the request context. Requests without
// the header run as the system actor.
func (s *Server) ActorFromHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(actorHeader))
		if id != "" {
			ctx := auditdomain.WithActor(c.Request.Context(), auditdomain.Actor{Type: auditdomain.ActorUser, ID: id})
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	}
}
