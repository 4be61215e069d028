package projectmedia

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"ecoportal/internal/database"
	"ecoportal/internal/domain/upload"
	"ecoportal/internal/pkg/logger"
)

var jpegBytes = append([]byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}, make([]byte, 256)...)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Connect(":memory:", logger.Nop())
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// Every pooled connection would otherwise get its own empty database.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&ProjectMedia{}))
	return db
}

func newTestPipeline(t *testing.T, storage afero.Fs) *upload.Pipeline {
	t.Helper()
	p, err := upload.NewPipeline(storage, upload.DefaultPolicy(), logger.Nop())
	require.NoError(t, err)
	return p
}

func stageFile(t *testing.T, p *upload.Pipeline, name, mimeType string, content []byte) *upload.IncomingFile {
	t.Helper()
	file, err := p.Stage(context.Background(), upload.FileMeta{
		FieldName:    "file",
		OriginalName: name,
		MimeType:     mimeType,
		Size:         int64(len(content)),
	}, bytes.NewReader(content))
	require.NoError(t, err)
	return file
}

func exists(storage afero.Fs, rel string) bool {
	ok, _ := afero.Exists(storage, "/"+rel)
	return ok
}

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Create(ctx context.Context, pm *ProjectMedia) error {
	return m.Called(ctx, pm).Error(0)
}

func (m *MockRepository) Get(ctx context.Context, projectID, id string) (*ProjectMedia, error) {
	args := m.Called(ctx, projectID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ProjectMedia), args.Error(1)
}

func (m *MockRepository) ListByProject(ctx context.Context, projectID string) ([]*ProjectMedia, error) {
	args := m.Called(ctx, projectID)
	return args.Get(0).([]*ProjectMedia), args.Error(1)
}

func (m *MockRepository) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func TestService_AttachListDetach(t *testing.T) {
	storage := afero.NewMemMapFs()
	pipeline := newTestPipeline(t, storage)
	svc := NewService(NewRepository(newTestDB(t)), pipeline, logger.Nop())

	clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}

	ctx := context.Background()
	photo, err := svc.Attach(ctx, "river-cleanup", "Volunteers at the bank", stageFile(t, pipeline, "site.jpg", "image/jpeg", jpegBytes))
	require.NoError(t, err)
	assert.Equal(t, KindImage, photo.Kind)
	assert.Equal(t, "/uploads/"+photo.RelativePath, photo.PublicURL)
	assert.True(t, exists(storage, photo.RelativePath))

	report, err := svc.Attach(ctx, "river-cleanup", "", stageFile(t, pipeline, "report.pdf", "application/pdf", []byte("%PDF-1.7 minimal")))
	require.NoError(t, err)
	assert.Equal(t, KindPDF, report.Kind)

	_, err = svc.Attach(ctx, "school-gardens", "", stageFile(t, pipeline, "plan.pdf", "application/pdf", []byte("%PDF-1.4")))
	require.NoError(t, err)

	items, err := svc.List(ctx, "river-cleanup")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, report.ID, items[0].ID, "newest first")
	assert.Equal(t, photo.ID, items[1].ID)

	require.NoError(t, svc.Detach(ctx, "river-cleanup", photo.ID))
	assert.False(t, exists(storage, photo.RelativePath))

	err = svc.Detach(ctx, "river-cleanup", photo.ID)
	assert.ErrorIs(t, err, ErrMediaNotFound)

	err = svc.Detach(ctx, "school-gardens", report.ID)
	assert.ErrorIs(t, err, ErrMediaNotFound, "media of another project is not visible")
}

func TestService_AttachRejectsVideo(t *testing.T) {
	storage := afero.NewMemMapFs()
	pipeline := newTestPipeline(t, storage)
	repo := new(MockRepository)
	svc := NewService(repo, pipeline, logger.Nop())

	_, err := svc.Attach(context.Background(), "p1", "", stageFile(t, pipeline, "clip.mp4", "video/mp4", []byte("....ftypmp42")))

	assert.ErrorIs(t, err, upload.ErrUnsupportedType)
	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestService_AttachRemovesArtifactWhenInsertFails(t *testing.T) {
	storage := afero.NewMemMapFs()
	pipeline := newTestPipeline(t, storage)
	repo := new(MockRepository)
	svc := NewService(repo, pipeline, logger.Nop())

	var recorded *ProjectMedia
	repo.On("Create", mock.Anything, mock.AnythingOfType("*projectmedia.ProjectMedia")).
		Run(func(args mock.Arguments) { recorded = args.Get(1).(*ProjectMedia) }).
		Return(errors.New("connection reset"))

	_, err := svc.Attach(context.Background(), "p1", "", stageFile(t, pipeline, "site.jpg", "image/jpeg", jpegBytes))

	require.Error(t, err)
	require.NotNil(t, recorded)
	assert.False(t, exists(storage, recorded.RelativePath))
	repo.AssertExpectations(t)
}

func TestService_DetachKeepsGoingWhenFileIsGone(t *testing.T) {
	storage := afero.NewMemMapFs()
	pipeline := newTestPipeline(t, storage)
	svc := NewService(NewRepository(newTestDB(t)), pipeline, logger.Nop())

	m, err := svc.Attach(context.Background(), "p1", "", stageFile(t, pipeline, "a.jpg", "image/jpeg", jpegBytes))
	require.NoError(t, err)
	require.NoError(t, storage.Remove("/"+m.RelativePath))

	assert.NoError(t, svc.Detach(context.Background(), "p1", m.ID))
}

func TestRepository_CreateDuplicatePath(t *testing.T) {
	repo := NewRepository(newTestDB(t))
	ctx := context.Background()

	first := &ProjectMedia{ID: uuid.NewString(), ProjectID: "p1", Kind: KindPDF, RelativePath: "pdfs/plan.pdf", PublicURL: "/uploads/pdfs/plan.pdf"}
	require.NoError(t, repo.Create(ctx, first))

	second := &ProjectMedia{ID: uuid.NewString(), ProjectID: "p2", Kind: KindPDF, RelativePath: "pdfs/plan.pdf", PublicURL: "/uploads/pdfs/plan.pdf"}
	assert.ErrorIs(t, repo.Create(ctx, second), ErrDuplicateMedia)

	again := *first
	assert.ErrorIs(t, repo.Create(ctx, &again), ErrDuplicateMedia, "same primary key")
}
