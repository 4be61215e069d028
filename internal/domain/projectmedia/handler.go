package projectmedia

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"ecoportal/internal/domain/upload"
	"ecoportal/internal/pkg/response"
	"ecoportal/internal/pkg/validator"
)

type Handler struct {
	service  *Service
	pipeline *upload.Pipeline
}

func NewHandler(service *Service, pipeline *upload.Pipeline) *Handler {
	return &Handler{service: service, pipeline: pipeline}
}

// Attach godoc
// @Summary Attach a file to a project
// @Description Accepts images, PDFs and office documents up to the largest of their limits.
// @Tags ProjectMedia
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param id path string true "Project ID"
// @Param file formData file true "Image, PDF or document"
// @Param caption formData string false "Caption"
// @Success 201 {object} response.Envelope{data=ProjectMedia}
// @Failure 400,429,500 {object} response.Envelope
// @Router /admin/projects/{id}/media [post]
func (h *Handler) Attach(c *gin.Context) {
	var params ProjectParams
	if !bindURI(c, &params) {
		return
	}

	file, err := upload.ReceiveFile(c, h.pipeline, upload.RuleProjectMedia, "file")
	if err != nil {
		upload.WriteError(c, err)
		return
	}

	req := AttachRequest{Caption: c.PostForm("caption")}
	if errs := validator.Validate(&req); errs != nil {
		h.pipeline.Discard(file)
		response.ErrorWithDetails(c, http.StatusBadRequest, "Validation failed", errs)
		return
	}

	m, err := h.service.Attach(c.Request.Context(), params.ProjectID, req.Caption, file)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Created(c, "Media attached", m)
}

// List godoc
// @Summary List a project's media
// @Tags ProjectMedia
// @Produce json
// @Param id path string true "Project ID"
// @Success 200 {object} response.Envelope{data=[]ProjectMedia}
// @Router /projects/{id}/media [get]
func (h *Handler) List(c *gin.Context) {
	var params ProjectParams
	if !bindURI(c, &params) {
		return
	}
	items, err := h.service.List(c.Request.Context(), params.ProjectID)
	if err != nil {
		writeError(c, err)
		return
	}
	if items == nil {
		items = []*ProjectMedia{}
	}
	response.Success(c, http.StatusOK, items)
}

// Detach godoc
// @Summary Remove a file from a project
// @Tags ProjectMedia
// @Produce json
// @Security BearerAuth
// @Param id path string true "Project ID"
// @Param mediaId path string true "Media ID"
// @Success 200 {object} response.Envelope
// @Failure 400,404,500 {object} response.Envelope
// @Router /admin/projects/{id}/media/{mediaId} [delete]
func (h *Handler) Detach(c *gin.Context) {
	var params MediaParams
	if !bindURI(c, &params) {
		return
	}
	if err := h.service.Detach(c.Request.Context(), params.ProjectID, params.MediaID); err != nil {
		writeError(c, err)
		return
	}
	response.Message(c, http.StatusOK, "Media removed")
}

func bindURI(c *gin.Context, dst any) bool {
	if err := c.ShouldBindUri(dst); err != nil {
		response.Error(c, http.StatusBadRequest, "Invalid path parameters")
		return false
	}
	if errs := validator.Validate(dst); errs != nil {
		response.ErrorWithDetails(c, http.StatusBadRequest, "Invalid path parameters", errs)
		return false
	}
	return true
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrMediaNotFound):
		response.Error(c, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrDuplicateMedia):
		_ = c.Error(err)
		response.Error(c, http.StatusInternalServerError, "Failed to record media, please retry")
	default:
		var uerr *upload.Error
		if errors.As(err, &uerr) {
			upload.WriteError(c, err)
			return
		}
		_ = c.Error(err)
		response.Error(c, http.StatusInternalServerError, "Internal server error")
	}
}
