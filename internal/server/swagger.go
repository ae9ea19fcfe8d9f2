package server

import (
	"net/http"

	"github.com/cityofhelsinki/mvj/internal/server/docs"
	"github.com/gin-gonic/gin"
	"github.com/swaggo/swag"
)

// SwaggerDoc handles GET /swagger/doc.json
func (s *Server) SwaggerDoc(c *gin.Context) {
	doc, err := swag.ReadDoc(docs.SwaggerInfo.InstanceName())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(doc))
}
