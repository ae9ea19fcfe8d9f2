package server

import (
	"net/http"

	auditdomain "github.com/cityofhelsinki/mvj/internal/audit/domain"
	"github.com/gin-gonic/gin"
)

// @Summary      Soft delete entity
// @Description  Marks the entity and its owned children deleted and records audit entries.
// @Tags         entities
// @Param        kind  path  string  true  "Entity kind"
// @Param        id    path  string  true  "Entity ID"
// @Success      204
// @Failure      409  {object}  ErrorResponse
// @Router       /entities/{kind}/{id} [delete]
func (s *Server) DeleteEntity(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	deleted, err := s.auditSvc.SoftDelete(ctx, auditdomain.ActorFromContext(ctx), c.Param("kind"), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !deleted {
		AbortWithError(c, ErrDeleteProtected)
		return
	}
	c.Status(http.StatusNoContent)
}
