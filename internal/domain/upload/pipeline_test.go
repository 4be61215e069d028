package upload

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ecoportal/internal/pkg/logger"
)

var jpegMagic = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}

func jpegOfSize(n int) []byte {
	b := make([]byte, n)
	copy(b, jpegMagic)
	return b
}

func newTestPipeline(t *testing.T, storage afero.Fs, mutate func(*Policy)) *Pipeline {
	t.Helper()
	policy := DefaultPolicy()
	if mutate != nil {
		mutate(&policy)
	}
	p, err := NewPipeline(storage, policy, logger.Nop())
	require.NoError(t, err)
	return p
}

func stage(t *testing.T, p *Pipeline, field, name, mimeType string, content []byte) *IncomingFile {
	t.Helper()
	file, err := p.Stage(context.Background(), FileMeta{
		FieldName:    field,
		OriginalName: name,
		MimeType:     mimeType,
		Size:         int64(len(content)),
	}, bytes.NewReader(content))
	require.NoError(t, err)
	return file
}

// listFiles returns every regular file on storage, staging included.
func listFiles(t *testing.T, storage afero.Fs) []string {
	t.Helper()
	var files []string
	err := afero.Walk(storage, "/", func(name string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			files = append(files, filepath.ToSlash(name))
		}
		return nil
	})
	require.NoError(t, err)
	sort.Strings(files)
	return files
}

func seed(t *testing.T, storage afero.Fs, name string, size int) {
	t.Helper()
	require.NoError(t, afero.WriteFile(storage, name, make([]byte, size), 0o644))
}

func TestPipeline_UploadImage(t *testing.T) {
	storage := afero.NewMemMapFs()
	p := newTestPipeline(t, storage, nil)

	content := jpegOfSize(2 << 20)
	file := stage(t, p, "hero", "summer.jpg", "image/jpeg", content)

	artifact, err := p.UploadImage(context.Background(), file, "")
	require.NoError(t, err)

	assert.Regexp(t, `^images/hero-\d+-[0-9a-f]{12}\.jpg$`, artifact.RelativePath)
	assert.Equal(t, "/uploads/"+artifact.RelativePath, artifact.PublicURL)
	assert.Equal(t, int64(2<<20), artifact.SizeBytes)
	assert.Equal(t, "image/jpeg", artifact.MimeType)
	assert.Equal(t, CategoryImage, artifact.Category)

	info, err := storage.Stat("/" + artifact.RelativePath)
	require.NoError(t, err)
	assert.Equal(t, int64(2<<20), info.Size())
	assert.Equal(t, []string{"/" + artifact.RelativePath}, listFiles(t, storage), "staged copy is gone")
}

func TestPipeline_UploadImageIntoFolder(t *testing.T) {
	storage := afero.NewMemMapFs()
	p := newTestPipeline(t, storage, nil)

	file := stage(t, p, "cover", "c.png", "image/png", []byte("\x89PNG\r\n\x1a\nrest"))
	artifact, err := p.UploadImage(context.Background(), file, "program-areas/water")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(artifact.RelativePath, "images/program-areas/water/cover-"))
	assert.Equal(t, "/uploads/"+artifact.RelativePath, artifact.PublicURL)
}

func TestPipeline_SizeBoundary(t *testing.T) {
	storage := afero.NewMemMapFs()
	p := newTestPipeline(t, storage, func(p *Policy) {
		p.MaxSize[CategoryImage] = 100
	})

	file := stage(t, p, "logo", "logo.jpg", "image/jpeg", jpegOfSize(100))
	_, err := p.UploadImage(context.Background(), file, "")
	require.NoError(t, err)

	before := listFiles(t, storage)
	file = stage(t, p, "logo", "logo.jpg", "image/jpeg", jpegOfSize(101))
	_, err = p.UploadImage(context.Background(), file, "")
	require.ErrorIs(t, err, ErrFileTooLarge)
	assert.Contains(t, err.Error(), "100 B")
	assert.Equal(t, before, listFiles(t, storage))
}

func TestPipeline_ActualSizeIsRechecked(t *testing.T) {
	storage := afero.NewMemMapFs()
	p := newTestPipeline(t, storage, func(p *Policy) {
		p.MaxSize[CategoryImage] = 100
	})

	file := stage(t, p, "logo", "logo.jpg", "image/jpeg", jpegOfSize(500))
	file.DeclaredSize = 50 // client lied about the part size

	_, err := p.UploadImage(context.Background(), file, "")
	require.ErrorIs(t, err, ErrFileTooLarge)
	assert.Empty(t, listFiles(t, storage))
}

func TestPipeline_UnsupportedTypeRemovesStagedFile(t *testing.T) {
	storage := afero.NewMemMapFs()
	p := newTestPipeline(t, storage, nil)

	file := stage(t, p, "archive", "data.zip", "application/zip", []byte("PK\x03\x04zip"))
	_, err := p.UploadDocument(context.Background(), file)

	require.ErrorIs(t, err, ErrUnsupportedType)
	assert.Contains(t, err.Error(), "application/pdf")
	assert.Empty(t, listFiles(t, storage))
}

func TestPipeline_QuotaExceeded(t *testing.T) {
	storage := afero.NewMemMapFs()
	const quota = 1000
	p := newTestPipeline(t, storage, func(p *Policy) {
		p.QuotaBytes = quota
	})
	seed(t, storage, "/documents/annual-report.pdf", quota-10)
	before := listFiles(t, storage)

	file := stage(t, p, "hero", "hero.jpg", "image/jpeg", jpegOfSize(20))
	_, err := p.UploadImage(context.Background(), file, "")

	require.ErrorIs(t, err, ErrQuotaExceeded)
	assert.Equal(t, before, listFiles(t, storage))
}

func TestPipeline_QuotaIgnoresStaging(t *testing.T) {
	storage := afero.NewMemMapFs()
	p := newTestPipeline(t, storage, func(p *Policy) {
		p.QuotaBytes = 100
	})
	seed(t, storage, "/.staging/orphan", 1000)

	file := stage(t, p, "hero", "hero.jpg", "image/jpeg", jpegOfSize(50))
	_, err := p.UploadImage(context.Background(), file, "")
	assert.NoError(t, err)
}

type statFaultFs struct {
	afero.Fs
	prefix string
}

func (f statFaultFs) Stat(name string) (os.FileInfo, error) {
	if strings.HasPrefix(filepath.ToSlash(name), f.prefix) {
		return nil, errors.New("input/output error")
	}
	return f.Fs.Stat(name)
}

func TestPipeline_StorageFaultAfterWriteCleansUp(t *testing.T) {
	mem := afero.NewMemMapFs()
	storage := statFaultFs{Fs: mem, prefix: "/images/hero-"}
	p := newTestPipeline(t, storage, nil)

	file := stage(t, p, "hero", "hero.jpg", "image/jpeg", jpegOfSize(64))
	_, err := p.UploadImage(context.Background(), file, "")

	require.ErrorIs(t, err, ErrStorageFault)
	assert.Equal(t, KindStorageFault, KindOf(err))
	var uerr *Error
	require.True(t, errors.As(err, &uerr))
	assert.False(t, uerr.ClientError())
	assert.Empty(t, listFiles(t, mem))
}

func TestPipeline_RejectionsLeaveNoFiles(t *testing.T) {
	cases := map[string]struct {
		mime    string
		size    int
		want    error
		prepare func(afero.Fs)
	}{
		"too large":   {mime: "image/jpeg", size: 200, want: ErrFileTooLarge},
		"unsupported": {mime: "text/html", size: 10, want: ErrUnsupportedType},
		"quota": {mime: "image/jpeg", size: 50, want: ErrQuotaExceeded, prepare: func(storage afero.Fs) {
			_ = afero.WriteFile(storage, "/misc/old.bin", make([]byte, 990), 0o644)
		}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			storage := afero.NewMemMapFs()
			p := newTestPipeline(t, storage, func(p *Policy) {
				p.MaxSize[CategoryImage] = 100
				p.QuotaBytes = 1000
			})
			if tc.prepare != nil {
				tc.prepare(storage)
			}
			before := listFiles(t, storage)

			file := stage(t, p, "hero", "x.jpg", tc.mime, jpegOfSize(tc.size))
			_, err := p.UploadImage(context.Background(), file, "")

			require.ErrorIs(t, err, tc.want)
			assert.Equal(t, before, listFiles(t, storage))
		})
	}
}

func TestPipeline_FolderEscapeIsRejected(t *testing.T) {
	storage := afero.NewMemMapFs()
	p := newTestPipeline(t, storage, nil)
	before := listFiles(t, storage)

	file := stage(t, p, "hero", "hero.jpg", "image/jpeg", jpegOfSize(32))
	_, err := p.UploadImage(context.Background(), file, "../../etc")

	require.ErrorIs(t, err, ErrPathEscape)
	assert.Equal(t, before, listFiles(t, storage))
	_, statErr := storage.Stat("/etc")
	assert.True(t, os.IsNotExist(statErr))
}

func TestPipeline_NilFile(t *testing.T) {
	p := newTestPipeline(t, afero.NewMemMapFs(), nil)

	_, err := p.UploadImage(context.Background(), nil, "")
	assert.ErrorIs(t, err, ErrNoFile)
}

func TestPipeline_ProjectMediaUsesUnionPolicy(t *testing.T) {
	storage := afero.NewMemMapFs()
	p := newTestPipeline(t, storage, func(p *Policy) {
		p.MaxSize[CategoryImage] = 100
		p.MaxSize[CategoryPDF] = 1000
	})

	file := stage(t, p, "file", "site.jpg", "image/jpeg", jpegOfSize(500))
	artifact, err := p.UploadProjectMedia(context.Background(), file)
	require.NoError(t, err)
	assert.Equal(t, CategoryImage, artifact.Category)
	assert.True(t, strings.HasPrefix(artifact.RelativePath, "images/"))

	file = stage(t, p, "image", "site.jpg", "image/jpeg", jpegOfSize(500))
	_, err = p.UploadImage(context.Background(), file, "")
	assert.ErrorIs(t, err, ErrFileTooLarge, "image entry point keeps its own ceiling")
}

func TestPipeline_VideoOverCeiling(t *testing.T) {
	storage := afero.NewMemMapFs()
	p := newTestPipeline(t, storage, nil)

	file := stage(t, p, "media", "walk.mp4", "video/mp4", make([]byte, 60<<20))
	_, err := p.UploadMedia(context.Background(), file)

	require.ErrorIs(t, err, ErrFileTooLarge)
	assert.Contains(t, err.Error(), "50 MiB")
	assert.Empty(t, listFiles(t, storage))
}

func TestPipeline_Delete(t *testing.T) {
	storage := afero.NewMemMapFs()
	p := newTestPipeline(t, storage, nil)
	seed(t, storage, "/pdfs/report.pdf", 10)

	require.NoError(t, p.Delete(context.Background(), "pdfs/report.pdf"))
	_, err := storage.Stat("/pdfs/report.pdf")
	assert.True(t, os.IsNotExist(err))

	assert.NoError(t, p.Delete(context.Background(), "pdfs/report.pdf"), "second delete is a no-op")
}

func TestPipeline_DeleteByPublicURL(t *testing.T) {
	storage := afero.NewMemMapFs()
	p := newTestPipeline(t, storage, nil)
	seed(t, storage, "/images/a.png", 10)

	require.NoError(t, p.Delete(context.Background(), "/uploads/images/a.png"))
	assert.Empty(t, listFiles(t, storage))
}

func TestPipeline_DeleteRejectsEscapes(t *testing.T) {
	storage := afero.NewMemMapFs()
	p := newTestPipeline(t, storage, nil)
	seed(t, storage, "/images/a.png", 10)
	seed(t, storage, "/.staging/in-flight", 10)
	seed(t, storage, "/images/..x.jpg", 10)
	before := listFiles(t, storage)

	for _, input := range []string{
		"../secrets.env",
		"images/..x.jpg",
		"/uploads/images/..x.jpg",
		"images/../../etc/passwd",
		"/etc/passwd",
		".staging/in-flight",
		"images",
		"",
		".",
	} {
		err := p.Delete(context.Background(), input)
		assert.ErrorIs(t, err, ErrPathEscape, input)
	}
	assert.Equal(t, before, listFiles(t, storage))
}

func TestPipeline_StageSniffsMissingType(t *testing.T) {
	p := newTestPipeline(t, afero.NewMemMapFs(), nil)

	file := stage(t, p, "image", "upload", "application/octet-stream", []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"))
	assert.Equal(t, "image/png", file.DeclaredMimeType)

	file = stage(t, p, "image", "photo.jpg", "image/jpeg; charset=binary", jpegOfSize(16))
	assert.Equal(t, "image/jpeg", file.DeclaredMimeType)
}

func TestPipeline_StageCancelledRemovesPartialFile(t *testing.T) {
	storage := afero.NewMemMapFs()
	p := newTestPipeline(t, storage, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Stage(ctx, FileMeta{FieldName: "image", MimeType: "image/jpeg"}, bytes.NewReader(jpegOfSize(64)))
	require.ErrorIs(t, err, ErrStorageFault)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, listFiles(t, storage))
}

func TestPipeline_UsageAndSweep(t *testing.T) {
	storage := afero.NewMemMapFs()
	p := newTestPipeline(t, storage, nil)
	seed(t, storage, "/images/a.png", 100)
	seed(t, storage, "/images/stories/b.png", 50)
	seed(t, storage, "/pdfs/c.pdf", 30)
	seed(t, storage, "/legacy/d.bin", 5)
	seed(t, storage, "/.staging/orphan", 1000)

	report, err := p.Usage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(185), report.TotalBytes)
	assert.Equal(t, CategoryUsage{Files: 2, Bytes: 150}, report.Categories[CategoryImage])
	assert.Equal(t, CategoryUsage{Files: 1, Bytes: 30}, report.Categories[CategoryPDF])
	assert.Equal(t, CategoryUsage{Files: 1, Bytes: 5}, report.Categories[CategoryMisc])

	removed, err := p.SweepStaging(context.Background(), time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, removed, "fresh staged files are kept")

	p.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	removed, err = p.SweepStaging(context.Background(), time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	_, err = storage.Stat("/.staging/orphan")
	assert.True(t, os.IsNotExist(err))
}

func TestNewPipeline_CopiesPolicy(t *testing.T) {
	policy := DefaultPolicy()
	p, err := NewPipeline(afero.NewMemMapFs(), policy, nil)
	require.NoError(t, err)

	policy.MaxSize[CategoryImage] = 1
	assert.Equal(t, int64(10<<20), p.Policy().MaxSize[CategoryImage])
}

func TestNewPipeline_RejectsInvalidPolicy(t *testing.T) {
	policy := DefaultPolicy()
	policy.Subdirs[CategoryImage] = "../images"

	_, err := NewPipeline(afero.NewMemMapFs(), policy, nil)
	assert.Error(t, err)
}
