package projectmedia

// ProjectParams binds the :id segment shared by every route.
type ProjectParams struct {
	ProjectID string `uri:"id" validate:"required,max=64,excludesall=/"`
}

// MediaParams binds the admin delete route.
type MediaParams struct {
	ProjectID string `uri:"id" validate:"required,max=64,excludesall=/"`
	MediaID   string `uri:"mediaId" validate:"required,uuid"`
}

// AttachRequest holds the form fields sent next to the file part.
type AttachRequest struct {
	Caption string `form:"caption" validate:"max=500"`
}
