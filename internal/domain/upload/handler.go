package upload

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"

	"ecoportal/internal/pkg/response"
)

// multipartAllowance covers the multipart envelope and small form fields
// around the file part when checking Content-Length.
const multipartAllowance = 1 << 20

// Handler exposes the pipeline over HTTP. All routes are admin-only.
type Handler struct {
	pipeline *Pipeline
}

func NewHandler(pipeline *Pipeline) *Handler {
	return &Handler{pipeline: pipeline}
}

// UploadImage godoc
// @Summary Upload an image
// @Description Stores an image under images/, optionally beneath a folder such as program-areas/hero.
// @Tags Uploads
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param image formData file true "Image file"
// @Param folder formData string false "Folder beneath images/"
// @Success 201 {object} response.Envelope{data=StoredArtifact}
// @Failure 400,429,500 {object} response.Envelope
// @Router /admin/uploads/images [post]
func (h *Handler) UploadImage(c *gin.Context) {
	file, err := ReceiveFile(c, h.pipeline, RuleImage, "image")
	if err != nil {
		WriteError(c, err)
		return
	}
	artifact, err := h.pipeline.UploadImage(c.Request.Context(), file, c.PostForm("folder"))
	if err != nil {
		WriteError(c, err)
		return
	}
	response.Created(c, "Image uploaded", artifact)
}

// UploadDocument godoc
// @Summary Upload a document
// @Description Stores a PDF under pdfs/ or an office document under documents/.
// @Tags Uploads
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param document formData file true "PDF or office document"
// @Success 201 {object} response.Envelope{data=StoredArtifact}
// @Failure 400,429,500 {object} response.Envelope
// @Router /admin/uploads/documents [post]
func (h *Handler) UploadDocument(c *gin.Context) {
	file, err := ReceiveFile(c, h.pipeline, RuleDocument, "document")
	if err != nil {
		WriteError(c, err)
		return
	}
	artifact, err := h.pipeline.UploadDocument(c.Request.Context(), file)
	if err != nil {
		WriteError(c, err)
		return
	}
	response.Created(c, "Document uploaded", artifact)
}

// UploadMedia godoc
// @Summary Upload video or audio
// @Tags Uploads
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param media formData file true "Video or audio file"
// @Success 201 {object} response.Envelope{data=StoredArtifact}
// @Failure 400,429,500 {object} response.Envelope
// @Router /admin/uploads/media [post]
func (h *Handler) UploadMedia(c *gin.Context) {
	file, err := ReceiveFile(c, h.pipeline, RuleMedia, "media")
	if err != nil {
		WriteError(c, err)
		return
	}
	artifact, err := h.pipeline.UploadMedia(c.Request.Context(), file)
	if err != nil {
		WriteError(c, err)
		return
	}
	response.Created(c, "Media uploaded", artifact)
}

// Delete godoc
// @Summary Delete an artifact by relative path
// @Description Idempotent; deleting a missing file succeeds.
// @Tags Uploads
// @Produce json
// @Security BearerAuth
// @Param path query string true "Path relative to the upload directory, or its public URL"
// @Success 200 {object} response.Envelope
// @Failure 400,500 {object} response.Envelope
// @Router /admin/uploads [delete]
func (h *Handler) Delete(c *gin.Context) {
	rel := c.Query("path")
	if rel == "" {
		response.Error(c, http.StatusBadRequest, "path query parameter is required")
		return
	}
	if err := h.pipeline.Delete(c.Request.Context(), rel); err != nil {
		WriteError(c, err)
		return
	}
	response.Message(c, http.StatusOK, "File deleted")
}

// Usage godoc
// @Summary Storage usage by category
// @Tags Uploads
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope{data=UsageReport}
// @Failure 500 {object} response.Envelope
// @Router /admin/uploads/usage [get]
func (h *Handler) Usage(c *gin.Context) {
	report, err := h.pipeline.Usage(c.Request.Context())
	if err != nil {
		WriteError(c, err)
		return
	}
	response.Success(c, http.StatusOK, report)
}

// ReceiveFile checks the declared request length against the rule's
// ceiling before reading the body, then stages the named file part. The
// transport's own temporary files are removed when the request ends.
func ReceiveFile(c *gin.Context, p *Pipeline, rule Rule, field string) (*IncomingFile, error) {
	ceiling := p.Gate().Ceiling(rule)
	limit := ceiling + multipartAllowance
	if c.Request.ContentLength > limit {
		return nil, newError(KindFileTooLarge, fmt.Sprintf(
			"request body of %s exceeds the %s limit for %s uploads",
			humanize.IBytes(uint64(c.Request.ContentLength)), humanize.IBytes(uint64(ceiling)), rule.Name,
		), nil)
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)

	header, err := c.FormFile(field)
	if c.Request.MultipartForm != nil {
		form := c.Request.MultipartForm
		defer func() { _ = form.RemoveAll() }()
	}
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, newError(KindFileTooLarge, fmt.Sprintf(
				"request body exceeds the %s limit for %s uploads", humanize.IBytes(uint64(ceiling)), rule.Name,
			), err)
		}
		return nil, newError(KindNoFile, fmt.Sprintf("no file provided in field %q", field), err)
	}

	src, err := header.Open()
	if err != nil {
		return nil, storageFault("open uploaded part", err)
	}
	defer src.Close()

	return p.Stage(c.Request.Context(), FileMeta{
		FieldName:    field,
		OriginalName: header.Filename,
		MimeType:     header.Header.Get("Content-Type"),
		Size:         header.Size,
	}, src)
}

// WriteError maps an upload error onto the response envelope.
func WriteError(c *gin.Context, err error) {
	var uerr *Error
	if !errors.As(err, &uerr) {
		_ = c.Error(err)
		response.Error(c, http.StatusInternalServerError, "Upload failed")
		return
	}
	if !uerr.ClientError() {
		_ = c.Error(err)
		response.Error(c, http.StatusInternalServerError, "Storage failure, please retry")
		return
	}
	response.Error(c, http.StatusBadRequest, uerr.Detail)
}
