package upload

import "github.com/gin-gonic/gin"

// RegisterRoutes registers upload routes under the admin group. limiter
// runs before any body is read.
func RegisterRoutes(r *gin.RouterGroup, h *Handler, limiter gin.HandlerFunc) {
	uploads := r.Group("/uploads")
	{
		uploads.GET("/usage", h.Usage)
		uploads.DELETE("", h.Delete)

		writes := uploads.Group("", limiter)
		writes.POST("/images", h.UploadImage)
		writes.POST("/documents", h.UploadDocument)
		writes.POST("/media", h.UploadMedia)
	}
}
