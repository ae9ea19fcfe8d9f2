package server

import (
	"github.com/cityofhelsinki/mvj/internal/worker"
	"github.com/gin-gonic/gin"
)

// Jobs without a payload that may be triggered on demand. File scans go through
// the files routes.
var triggerableJobs = map[string]struct{}{
	worker.JobIndexImport:       {},
	worker.JobInvoiceGeneration: {},
	worker.JobEqualization:      {},
	worker.JobPayableRentReport: {},
}

type JobResponse struct {
	Job   string `json:"job"`
	RunID string `json:"run_id"`
}

// @Summary      Enqueue job
// @Tags         jobs
// @Produce      json
// @Param        name  path  string  true  "Job name"
// @Success      202  {object}  DataResponse
// @Failure      404  {object}  ErrorResponse
// @Router       /jobs/{name} [post]
func (s *Server) EnqueueJob(c *gin.Context) {
	name := c.Param("name")
	if _, ok := triggerableJobs[name]; !ok {
		AbortWithError(c, ErrUnknownJob)
		return
	}
	ctx := c.Request.Context()
	msg, err := worker.NewMessage(name, nil, s.clock.Now(ctx))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if err := s.queue.Publish(ctx, msg); err != nil {
		AbortWithError(c, err)
		return
	}
	respondAccepted(c, JobResponse{Job: msg.Job, RunID: msg.RunID})
}
