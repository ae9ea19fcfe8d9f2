package server

import (
	"net/http"
	"path/filepath"
	"time"

	filescandomain "github.com/cityofhelsinki/mvj/internal/filescan/domain"
	"github.com/cityofhelsinki/mvj/internal/worker"
	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxAttachmentSize = 32 << 20

var (
	ErrFileScanPending = &APIError{Status: http.StatusConflict, Code: "file_scan_pending", Message: "file has not been scanned yet"}
	ErrFileUnsafe      = &APIError{Status: http.StatusGone, Code: "file_unsafe", Message: "file was removed by the virus scan"}
)

type AttachmentResponse struct {
	ID         string `json:"id"`
	LeaseID    string `json:"lease_id"`
	Name       string `json:"name"`
	UploadedAt string `json:"uploaded_at"`
	ScanQueued bool   `json:"scan_queued"`
}

// @Summary      Upload lease attachment
// @Description  Stores the file under the private files location and queues a virus scan
// @Description  when scanning is enabled.
// @Tags         files
// @Accept       multipart/form-data
// @Produce      json
// @Param        id    path      string  true  "Lease ID"
// @Param        file  formData  file    true  "Attachment"
// @Success      201  {object}  DataResponse
// @Router       /leases/{id}/attachments [post]
func (s *Server) UploadAttachment(c *gin.Context) {
	leaseID, ok := pathID(c, "id")
	if !ok {
		return
	}
	header, err := c.FormFile("file")
	if err != nil || header.Size > maxAttachmentSize {
		AbortWithError(c, invalidRequestMessage("file is required and must not exceed 32 MiB"))
		return
	}
	f, err := header.Open()
	if err != nil {
		AbortWithError(c, err)
		return
	}
	defer f.Close()

	ctx := c.Request.Context()
	if _, err := s.leaseSvc.GetLease(ctx, leaseID); err != nil {
		AbortWithError(c, err)
		return
	}
	attachment, err := s.fileSvc.SaveAttachment(ctx, leaseID, filepath.Base(header.Filename), f)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp := AttachmentResponse{
		ID:         attachment.ID.String(),
		LeaseID:    attachment.LeaseID.String(),
		Name:       attachment.Name,
		UploadedAt: attachment.UploadedAt.UTC().Format(time.RFC3339),
	}
	if s.cfg.Core.FileScanEnabled() {
		resp.ScanQueued = s.enqueueScan(c, filescandomain.Owner{
			Kind:  filescandomain.OwnerLeaseAttachment,
			ID:    attachment.ID,
			Field: filescandomain.FieldFile,
		})
	}
	respondCreated(c, resp)
}

// enqueueScan reports whether the scan message was published. The upload itself has
// already succeeded, so a queue failure is only logged.
func (s *Server) enqueueScan(c *gin.Context, owner filescandomain.Owner) bool {
	ctx := c.Request.Context()
	msg, err := worker.NewFileScanMessage(owner.Kind, owner.ID, owner.Field, s.clock.Now(ctx))
	if err == nil {
		err = s.queue.Publish(ctx, msg)
	}
	if err != nil {
		s.log.Warn("failed to queue file scan",
			zap.String("owner_kind", owner.Kind),
			zap.String("owner_id", owner.ID.String()),
			zap.Error(err),
		)
		return false
	}
	return true
}

func ownerFromPath(c *gin.Context) (filescandomain.Owner, bool) {
	id, ok := pathID(c, "id")
	if !ok {
		return filescandomain.Owner{}, false
	}
	kind := c.Param("kind")
	if _, known := filescandomain.OwnerTable[kind]; !known {
		AbortWithError(c, filescandomain.ErrUnknownOwnerKind)
		return filescandomain.Owner{}, false
	}
	return filescandomain.Owner{
		Kind:  kind,
		ID:    id,
		Field: c.DefaultQuery("field", filescandomain.FieldFile),
	}, true
}

// @Summary      Download private file
// @Description  Serves the file only when its latest scan found it clean.
// @Tags         files
// @Produce      octet-stream
// @Param        kind   path   string  true   "Owner kind"
// @Param        id     path   string  true   "Owner ID"
// @Param        field  query  string  false  "File field"
// @Success      200
// @Failure      409  {object}  ErrorResponse
// @Failure      410  {object}  ErrorResponse
// @Router       /files/{kind}/{id} [get]
func (s *Server) OpenFile(c *gin.Context) {
	owner, ok := ownerFromPath(c)
	if !ok {
		return
	}

	result := s.fileSvc.Open(c.Request.Context(), owner)
	switch result.Status {
	case filescandomain.OpenOK:
		mtype, err := mimetype.DetectFile(result.Path)
		if err != nil {
			AbortWithError(c, &APIError{Status: http.StatusNotFound, Code: "file_unavailable", Message: err.Error()})
			return
		}
		c.Header("Content-Type", mtype.String())
		c.FileAttachment(result.Path, filepath.Base(result.Path))
	case filescandomain.OpenPending:
		AbortWithError(c, ErrFileScanPending)
	case filescandomain.OpenUnsafe:
		AbortWithError(c, ErrFileUnsafe)
	default:
		AbortWithError(c, &APIError{Status: http.StatusNotFound, Code: "file_unavailable", Message: result.Message})
	}
}

// @Summary      Request file scan
// @Tags         files
// @Produce      json
// @Param        kind  path  string  true  "Owner kind"
// @Param        id    path  string  true  "Owner ID"
// @Success      202  {object}  DataResponse
// @Failure      503  {object}  ErrorResponse
// @Router       /files/{kind}/{id}/scan [post]
func (s *Server) RequestFileScan(c *gin.Context) {
	owner, ok := ownerFromPath(c)
	if !ok {
		return
	}
	if !s.cfg.Core.FileScanEnabled() {
		AbortWithError(c, filescandomain.ErrFileScanDisabled)
		return
	}
	ctx := c.Request.Context()
	msg, err := worker.NewFileScanMessage(owner.Kind, owner.ID, owner.Field, s.clock.Now(ctx))
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
