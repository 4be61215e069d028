package projectmedia

import "errors"

var (
	ErrMediaNotFound  = errors.New("project media not found")
	ErrDuplicateMedia = errors.New("project media already recorded for this file")
)
