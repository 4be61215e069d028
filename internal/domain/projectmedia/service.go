package projectmedia

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"ecoportal/internal/domain/upload"
	"ecoportal/internal/pkg/logger"
)

// Uploader is the part of the upload pipeline this package relies on.
type Uploader interface {
	UploadProjectMedia(ctx context.Context, file *upload.IncomingFile) (*upload.StoredArtifact, error)
	Delete(ctx context.Context, relativePath string) error
}

// Service attaches uploaded files to projects. The artifact on disk and the
// database row are kept in step: a failed insert removes the artifact.
type Service struct {
	repo     Repository
	uploader Uploader
	log      *log.Logger
	now      func() time.Time
}

func NewService(repo Repository, uploader Uploader, l *log.Logger) *Service {
	if l == nil {
		l = logger.Nop()
	}
	return &Service{
		repo:     repo,
		uploader: uploader,
		log:      l.With("component", "projectmedia"),
		now:      time.Now,
	}
}

// Attach stores file under the project-media policy and records it.
func (s *Service) Attach(ctx context.Context, projectID, caption string, file *upload.IncomingFile) (*ProjectMedia, error) {
	artifact, err := s.uploader.UploadProjectMedia(ctx, file)
	if err != nil {
		return nil, err
	}

	m := &ProjectMedia{
		ID:           uuid.NewString(),
		ProjectID:    projectID,
		Kind:         kindOf(artifact.Category),
		Caption:      caption,
		RelativePath: artifact.RelativePath,
		PublicURL:    artifact.PublicURL,
		MimeType:     artifact.MimeType,
		SizeBytes:    artifact.SizeBytes,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.repo.Create(ctx, m); err != nil {
		// The request context may already be gone; the orphan must still go.
		if delErr := s.uploader.Delete(context.WithoutCancel(ctx), artifact.RelativePath); delErr != nil {
			s.log.Warn("orphaned artifact after failed insert",
				"path", artifact.RelativePath, "err", delErr, "cause", err)
		}
		return nil, fmt.Errorf("record project media: %w", err)
	}

	s.log.Info("media attached", "project", projectID, "id", m.ID, "path", m.RelativePath)
	return m, nil
}

// List returns a project's media, newest first.
func (s *Service) List(ctx context.Context, projectID string) ([]*ProjectMedia, error) {
	return s.repo.ListByProject(ctx, projectID)
}

// Detach removes the record first, then the artifact. A missing artifact is
// not an error; a failed file delete is logged and the record stays gone.
func (s *Service) Detach(ctx context.Context, projectID, mediaID string) error {
	m, err := s.repo.Get(ctx, projectID, mediaID)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, m.ID); err != nil {
		return err
	}
	if err := s.uploader.Delete(ctx, m.RelativePath); err != nil {
		s.log.Warn("artifact delete failed after detach", "path", m.RelativePath, "err", err)
	}
	return nil
}

func kindOf(c upload.Category) Kind {
	switch c {
	case upload.CategoryImage:
		return KindImage
	case upload.CategoryPDF:
		return KindPDF
	default:
		return KindDocument
	}
}
