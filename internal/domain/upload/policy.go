package upload

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

// Category selects the validation rules and storage subdirectory of a file.
type Category string

const (
	CategoryImage    Category = "image"
	CategoryPDF      Category = "pdf"
	CategoryDocument Category = "document"
	CategoryVideo    Category = "video"
	CategoryAudio    Category = "audio"
	CategoryMisc     Category = "misc"
)

const (
	DefaultBaseDir      = "./uploads"
	DefaultPublicPrefix = "/uploads"
	DefaultQuotaBytes   = 5 << 30 // 5 GiB

	stagingDir = ".staging"
)

// Policy is the process-wide upload configuration. It is built once at
// startup and copied into the Pipeline; later changes to the caller's value
// have no effect.
type Policy struct {
	BaseDir      string
	PublicPrefix string
	QuotaBytes   int64
	MaxSize      map[Category]int64
	AllowedTypes map[Category][]string
	Subdirs      map[Category]string
}

// DefaultPolicy returns the built-in limits used when no environment
// overrides are present.
func DefaultPolicy() Policy {
	return Policy{
		BaseDir:      DefaultBaseDir,
		PublicPrefix: DefaultPublicPrefix,
		QuotaBytes:   DefaultQuotaBytes,
		MaxSize: map[Category]int64{
			CategoryImage:    10 << 20,
			CategoryPDF:      20 << 20,
			CategoryDocument: 20 << 20,
			CategoryVideo:    50 << 20,
			CategoryAudio:    20 << 20,
		},
		AllowedTypes: map[Category][]string{
			CategoryImage: {
				"image/jpeg",
				"image/jpg",
				"image/png",
				"image/gif",
				"image/webp",
				"image/svg+xml",
			},
			CategoryPDF: {"application/pdf"},
			CategoryDocument: {
				"application/msword",
				"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
				"application/vnd.ms-excel",
				"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
				"application/vnd.ms-powerpoint",
				"application/vnd.openxmlformats-officedocument.presentationml.presentation",
			},
			CategoryVideo: {"video/mp4", "video/webm", "video/quicktime", "video/x-msvideo"},
			CategoryAudio: {"audio/mpeg", "audio/wav", "audio/ogg", "audio/mp4"},
		},
		Subdirs: map[Category]string{
			CategoryImage:    "images",
			CategoryPDF:      "pdfs",
			CategoryDocument: "documents",
			CategoryVideo:    "videos",
			CategoryAudio:    "audio",
			CategoryMisc:     "misc",
		},
	}
}

// Validate checks that every category with an allow-list also has a size
// ceiling and a subdirectory.
func (p Policy) Validate() error {
	if strings.TrimSpace(p.BaseDir) == "" {
		return errors.New("upload base directory must not be empty")
	}
	if p.QuotaBytes <= 0 {
		return errors.New("upload quota must be > 0")
	}
	if !strings.HasPrefix(p.PublicPrefix, "/") {
		return fmt.Errorf("upload public prefix %q must start with /", p.PublicPrefix)
	}
	for category, types := range p.AllowedTypes {
		if len(types) == 0 {
			continue
		}
		if p.MaxSize[category] <= 0 {
			return fmt.Errorf("category %s has allowed types but no size ceiling", category)
		}
		if err := validSubdir(p.Subdirs[category]); err != nil {
			return fmt.Errorf("category %s: %w", category, err)
		}
	}
	if err := validSubdir(p.Subdirs[CategoryMisc]); err != nil {
		return fmt.Errorf("category %s: %w", CategoryMisc, err)
	}
	return nil
}

func validSubdir(dir string) error {
	if dir == "" {
		return errors.New("missing subdirectory")
	}
	clean := path.Clean(dir)
	if clean != dir || strings.HasPrefix(clean, "/") || strings.Contains(clean, "..") || clean == stagingDir {
		return fmt.Errorf("invalid subdirectory %q", dir)
	}
	return nil
}

// clone returns a deep copy so the pipeline never shares maps with callers.
func (p Policy) clone() Policy {
	out := p
	out.MaxSize = make(map[Category]int64, len(p.MaxSize))
	for k, v := range p.MaxSize {
		out.MaxSize[k] = v
	}
	out.AllowedTypes = make(map[Category][]string, len(p.AllowedTypes))
	for k, v := range p.AllowedTypes {
		out.AllowedTypes[k] = append([]string(nil), v...)
	}
	out.Subdirs = make(map[Category]string, len(p.Subdirs))
	for k, v := range p.Subdirs {
		out.Subdirs[k] = v
	}
	out.PublicPrefix = strings.TrimSuffix(p.PublicPrefix, "/")
	return out
}

func (p Policy) allows(category Category, mimeType string) bool {
	for _, t := range p.AllowedTypes[category] {
		if t == mimeType {
			return true
		}
	}
	return false
}

// Rule is the acceptance policy of one upload entry point.
type Rule struct {
	Name       string
	Categories []Category
	// Union accepts any type allowed by Categories up to the largest of
	// their ceilings, regardless of which category the type belongs to.
	Union bool
}

var (
	RuleImage    = Rule{Name: "image", Categories: []Category{CategoryImage}}
	RuleDocument = Rule{Name: "document", Categories: []Category{CategoryPDF, CategoryDocument}}
	RuleMedia    = Rule{Name: "media", Categories: []Category{CategoryVideo, CategoryAudio}}

	// RuleProjectMedia is the permissive union used only by project media
	// attachments.
	RuleProjectMedia = Rule{
		Name:       "project-media",
		Categories: []Category{CategoryImage, CategoryPDF, CategoryDocument},
		Union:      true,
	}
)
