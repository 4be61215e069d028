package upload

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// Destination is where the Router decided a file should live.
type Destination struct {
	Category Category
	Dir      string // slash-separated, relative to the base directory
	Filename string
}

// RelativePath is the slash-separated path of the file under the base directory.
func (d Destination) RelativePath() string {
	return path.Join(d.Dir, d.Filename)
}

// Router maps declared MIME types to subdirectories and generates
// collision-resistant filenames.
type Router struct {
	policy *Policy
	now    func() time.Time
	token  func() string
}

func NewRouter(policy *Policy) *Router {
	return &Router{policy: policy, now: time.Now, token: randomToken}
}

// Category resolves a MIME type. Order matters: the prefix rules overlap
// with the document allow-list otherwise.
func (r *Router) Category(mimeType string) Category {
	mimeType = normalizeMime(mimeType)
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return CategoryImage
	case mimeType == "application/pdf":
		return CategoryPDF
	case strings.HasPrefix(mimeType, "video/"):
		return CategoryVideo
	case strings.HasPrefix(mimeType, "audio/"):
		return CategoryAudio
	case r.policy.allows(CategoryDocument, mimeType):
		return CategoryDocument
	default:
		return CategoryMisc
	}
}

// Route computes the destination of a file. A non-empty folder is placed
// beneath the category subdirectory after sanitization.
func (r *Router) Route(mimeType, fieldName, originalName, folder string) (Destination, error) {
	category := r.Category(mimeType)
	dir := r.policy.Subdirs[category]
	if dir == "" {
		dir = r.policy.Subdirs[CategoryMisc]
	}

	sub, err := SanitizeFolder(folder)
	if err != nil {
		return Destination{}, err
	}
	if sub != "" {
		dir = path.Join(dir, sub)
	}

	return Destination{
		Category: category,
		Dir:      dir,
		Filename: r.Filename(fieldName, originalName, mimeType),
	}, nil
}

// Filename builds <field>-<unix millis>-<token><ext>. The token carries 48
// random bits, which keeps concurrent uploads in the same millisecond apart.
func (r *Router) Filename(fieldName, originalName, mimeType string) string {
	return fmt.Sprintf("%s-%d-%s%s", sanitizeField(fieldName), r.now().UnixMilli(), r.token(), extension(originalName, mimeType))
}

func randomToken() string {
	id := uuid.New()
	return strings.ReplaceAll(id.String(), "-", "")[:12]
}

func sanitizeField(name string) string {
	name = strings.Map(func(r rune) rune {
		if isWordRune(r) {
			return r
		}
		return -1
	}, name)
	if len(name) > 40 {
		name = name[:40]
	}
	if name == "" {
		return "file"
	}
	return name
}

func extension(originalName, mimeType string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(originalName)))
	ext = strings.Map(func(r rune) rune {
		if r == '.' || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		return -1
	}, ext)
	if len(ext) > 1 && len(ext) <= 16 {
		return ext
	}
	if m := mimetype.Lookup(normalizeMime(mimeType)); m != nil {
		return m.Extension()
	}
	return ""
}

// SanitizeFolder keeps letters, digits, underscore, hyphen and slash.
// Any ".." sequence is rejected outright instead of being stripped.
func SanitizeFolder(folder string) (string, error) {
	folder = strings.TrimSpace(folder)
	if folder == "" {
		return "", nil
	}
	if strings.Contains(folder, "..") {
		return "", newError(KindPathEscape, fmt.Sprintf("folder %q escapes the upload directory", folder), nil)
	}
	kept := strings.Map(func(r rune) rune {
		if isWordRune(r) || r == '/' {
			return r
		}
		return -1
	}, folder)
	return strings.Trim(path.Clean("/"+kept), "/"), nil
}

func isWordRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '-'
}

func normalizeMime(mimeType string) string {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	return mimeType
}
