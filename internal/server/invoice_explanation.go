package server

import (
	"github.com/gin-gonic/gin"
)

// ExplainInvoice handles GET /api/v1/invoices/:id/explanation
func (s *Server) ExplainInvoice(c *gin.Context) {
	invoiceID, ok := pathID(c, "id")
	if !ok {
		return
	}

	explanation, err := s.explanationSvc.ExplainInvoice(c.Request.Context(), invoiceID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondData(c, explanation)
}
