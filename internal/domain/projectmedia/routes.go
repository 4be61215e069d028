package projectmedia

import "github.com/gin-gonic/gin"

// RegisterPublicRoutes registers read-only routes.
func RegisterPublicRoutes(r *gin.RouterGroup, h *Handler) {
	r.GET("/projects/:id/media", h.List)
}

// RegisterAdminRoutes registers write routes under the admin group. limiter
// guards the upload route only.
func RegisterAdminRoutes(r *gin.RouterGroup, h *Handler, limiter gin.HandlerFunc) {
	media := r.Group("/projects/:id/media")
	{
		media.POST("", limiter, h.Attach)
		media.DELETE("/:mediaId", h.Detach)
	}
}
