package projectmedia

import "time"

// Kind mirrors the storage category of the attached file.
type Kind string

const (
	KindImage    Kind = "image"
	KindPDF      Kind = "pdf"
	KindDocument Kind = "document"
)

// ProjectMedia is a stored artifact attached to a project page.
type ProjectMedia struct {
	ID           string    `gorm:"column:id;primaryKey;size:36" json:"id"`
	ProjectID    string    `gorm:"column:project_id;index;size:64;not null" json:"project_id"`
	Kind         Kind      `gorm:"column:kind;size:16;not null" json:"kind"`
	Caption      string    `gorm:"column:caption;size:500" json:"caption,omitempty"`
	RelativePath string    `gorm:"column:relative_path;uniqueIndex;not null" json:"relative_path"`
	PublicURL    string    `gorm:"column:public_url;not null" json:"url"`
	MimeType     string    `gorm:"column:mime_type;size:255" json:"mime_type"`
	SizeBytes    int64     `gorm:"column:size_bytes" json:"size_bytes"`
	CreatedAt    time.Time `gorm:"column:created_at" json:"created_at"`
}

func (ProjectMedia) TableName() string { return "project_media" }
