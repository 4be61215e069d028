package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/spf13/afero"

	"ecoportal/internal/pkg/logger"
	"ecoportal/internal/pkg/metrics"
)

// State is the position of one request in the upload state machine.
type State string

const (
	StateReceived     State = "RECEIVED"
	StateQuotaChecked State = "QUOTA_CHECKED"
	StateRouted       State = "ROUTED"
	StateWritten      State = "WRITTEN"
	StateValidated    State = "VALIDATED"
	StateCommitted    State = "COMMITTED"
	StateRejected     State = "REJECTED"
	StateFailed       State = "FAILED"
)

// FileMeta is what the transport layer knows about a file part.
type FileMeta struct {
	FieldName    string
	OriginalName string
	MimeType     string
	Size         int64
}

// IncomingFile is a file that has been staged on the storage filesystem
// but not yet accepted.
type IncomingFile struct {
	FieldName        string
	OriginalName     string
	DeclaredMimeType string
	DeclaredSize     int64
	TempPath         string // path on the storage filesystem
}

// StoredArtifact describes a committed file.
type StoredArtifact struct {
	RelativePath string   `json:"relative_path"`
	PublicURL    string   `json:"public_url"`
	SizeBytes    int64    `json:"size_bytes"`
	MimeType     string   `json:"mime_type"`
	Category     Category `json:"category"`
}

// Pipeline runs quota check, routing, write, validation and commit for
// each upload, and removes anything it wrote when a step fails.
type Pipeline struct {
	storage afero.Fs
	policy  Policy
	router  *Router
	quota   *QuotaGuard
	gate    *Gate
	log     *log.Logger
	now     func() time.Time
}

// NewPipeline validates and copies policy. storage must be rooted at the
// policy's base directory (see OpenStorage).
func NewPipeline(storage afero.Fs, policy Policy, l *log.Logger) (*Pipeline, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if l == nil {
		l = logger.Nop()
	}
	p := &Pipeline{
		storage: storage,
		policy:  policy.clone(),
		log:     l.With("component", "upload"),
		now:     time.Now,
	}
	p.router = NewRouter(&p.policy)
	p.quota = NewQuotaGuard(storage, p.policy.QuotaBytes)
	p.gate = NewGate(&p.policy)
	return p, nil
}

// Policy returns a copy of the active policy.
func (p *Pipeline) Policy() Policy { return p.policy.clone() }

// Gate exposes the validation gate, used by the HTTP layer to reject
// oversized bodies before reading them.
func (p *Pipeline) Gate() *Gate { return p.gate }

// Stage copies r into the staging area. A partially written file is
// removed if the copy fails or ctx is cancelled.
func (p *Pipeline) Stage(ctx context.Context, meta FileMeta, r io.Reader) (*IncomingFile, error) {
	dir := fsPath(stagingDir)
	if err := p.storage.MkdirAll(dir, 0o755); err != nil {
		return nil, storageFault("create staging directory", err)
	}

	tmp := filepath.Join(dir, uuid.NewString())
	f, err := p.storage.OpenFile(tmp, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, storageFault("create staging file", err)
	}

	written, copyErr := io.Copy(f, &ctxReader{ctx: ctx, r: r})
	closeErr := f.Close()
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		p.discard(tmp, copyErr)
		return nil, storageFault("receive file", copyErr)
	}

	declared := meta.Size
	if declared <= 0 {
		declared = written
	}

	mimeType := normalizeMime(meta.MimeType)
	if mimeType == "" || mimeType == "application/octet-stream" {
		sniffed, err := p.sniff(tmp)
		if err != nil {
			p.discard(tmp, err)
			return nil, storageFault("inspect staged file", err)
		}
		mimeType = sniffed
	}

	return &IncomingFile{
		FieldName:        meta.FieldName,
		OriginalName:     meta.OriginalName,
		DeclaredMimeType: mimeType,
		DeclaredSize:     declared,
		TempPath:         tmp,
	}, nil
}

func (p *Pipeline) sniff(name string) (string, error) {
	f, err := p.storage.Open(name)
	if err != nil {
		return "", err
	}
	defer f.Close()
	m, err := mimetype.DetectReader(f)
	if err != nil {
		return "", err
	}
	return normalizeMime(m.String()), nil
}

// UploadImage accepts images, optionally grouped under folder.
func (p *Pipeline) UploadImage(ctx context.Context, file *IncomingFile, folder string) (*StoredArtifact, error) {
	return p.run(ctx, RuleImage, file, folder)
}

// UploadDocument accepts PDFs and office documents.
func (p *Pipeline) UploadDocument(ctx context.Context, file *IncomingFile) (*StoredArtifact, error) {
	return p.run(ctx, RuleDocument, file, "")
}

// UploadMedia accepts video and audio.
func (p *Pipeline) UploadMedia(ctx context.Context, file *IncomingFile) (*StoredArtifact, error) {
	return p.run(ctx, RuleMedia, file, "")
}

// UploadProjectMedia applies the union policy of images, PDFs and
// documents at the largest of their ceilings.
func (p *Pipeline) UploadProjectMedia(ctx context.Context, file *IncomingFile) (*StoredArtifact, error) {
	return p.run(ctx, RuleProjectMedia, file, "")
}

func (p *Pipeline) run(ctx context.Context, rule Rule, file *IncomingFile, folder string) (artifact *StoredArtifact, err error) {
	if file == nil {
		metrics.ObserveUpload(rule.Name, outcome(ErrNoFile), 0)
		return nil, ErrNoFile
	}

	start := p.now()
	state := StateReceived
	final := ""

	defer func() {
		if err == nil {
			metrics.ObserveUpload(rule.Name, "committed", time.Since(start))
			return
		}
		// Anything that touched disk goes, whatever the failure.
		p.discard(file.TempPath, err)
		if final != "" {
			p.discard(final, err)
		}
		end := StateRejected
		if KindOf(err) == KindStorageFault {
			end = StateFailed
		}
		p.log.Info("upload "+strings.ToLower(string(end)),
			"rule", rule.Name, "state", state, "field", file.FieldName,
			"name", file.OriginalName, "kind", KindOf(err), "err", err)
		metrics.ObserveUpload(rule.Name, outcome(err), time.Since(start))
	}()

	if _, err := p.gate.Check(rule, file.DeclaredMimeType, file.DeclaredSize); err != nil {
		return nil, err
	}

	if _, err := p.quota.Check(ctx, file.DeclaredSize); err != nil {
		return nil, err
	}
	state = StateQuotaChecked

	dest, err := p.router.Route(file.DeclaredMimeType, file.FieldName, file.OriginalName, folder)
	if err != nil {
		return nil, err
	}
	// MkdirAll succeeds when a concurrent request created the directory first.
	if err := p.storage.MkdirAll(fsPath(dest.Dir), 0o755); err != nil {
		return nil, storageFault("create destination directory", err)
	}
	state = StateRouted

	target := fsPath(dest.RelativePath())
	if err := ctx.Err(); err != nil {
		return nil, storageFault("request cancelled", err)
	}
	if err := p.storage.Rename(file.TempPath, target); err != nil {
		return nil, storageFault("move file into place", err)
	}
	final = target
	state = StateWritten

	info, err := p.storage.Stat(target)
	if err != nil {
		return nil, storageFault("stat written file", err)
	}
	category, err := p.gate.Check(rule, file.DeclaredMimeType, info.Size())
	if err != nil {
		return nil, err
	}
	state = StateValidated

	rel := dest.RelativePath()
	artifact = &StoredArtifact{
		RelativePath: rel,
		PublicURL:    p.publicURL(rel),
		SizeBytes:    info.Size(),
		MimeType:     normalizeMime(file.DeclaredMimeType),
		Category:     category,
	}
	state = StateCommitted
	metrics.AddCommittedBytes(string(category), info.Size())
	p.log.Debug("upload committed", "rule", rule.Name, "path", rel, "size", info.Size())
	return artifact, nil
}

// Delete removes a committed artifact. Missing files are not an error.
// Paths are accepted relative to the base directory or as public URLs.
func (p *Pipeline) Delete(ctx context.Context, relativePath string) (err error) {
	defer func() { metrics.ObserveDelete(outcome(err)) }()

	rel, err := p.resolve(relativePath)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return storageFault("request cancelled", err)
	}

	name := fsPath(rel)
	info, err := p.storage.Stat(name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return storageFault("stat artifact", err)
	}
	if info.IsDir() {
		return newError(KindPathEscape, fmt.Sprintf("%q is a directory, not an artifact", rel), nil)
	}
	if err := p.storage.Remove(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return storageFault("delete artifact", err)
	}
	p.log.Info("artifact deleted", "path", rel)
	return nil
}

// resolve validates a caller-supplied path and returns it relative to the
// base directory. Any ".." sequence is a PathEscape.
func (p *Pipeline) resolve(input string) (string, error) {
	rel := strings.TrimSpace(filepath.ToSlash(input))
	if prefix := p.policy.PublicPrefix + "/"; strings.HasPrefix(rel, prefix) {
		rel = strings.TrimPrefix(rel, prefix)
	}
	escape := newError(KindPathEscape, fmt.Sprintf("path %q is outside the upload directory", input), nil)
	if strings.Contains(rel, "..") || strings.HasPrefix(rel, "/") {
		return "", escape
	}
	rel = path.Clean(rel)
	if rel == "." || rel == "" || topDir(rel) == stagingDir {
		return "", escape
	}
	return rel, nil
}

func (p *Pipeline) publicURL(rel string) string {
	return p.policy.PublicPrefix + "/" + strings.TrimPrefix(filepath.ToSlash(rel), "/")
}

// Discard drops a staged file that will not reach an entry point.
func (p *Pipeline) Discard(file *IncomingFile) {
	if file != nil {
		p.discard(file.TempPath, nil)
	}
}

// discard removes a file left behind by a failed step. A failed removal is
// logged and never replaces cause.
func (p *Pipeline) discard(name string, cause error) {
	if name == "" {
		return
	}
	if err := p.storage.Remove(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
		p.log.Warn("cleanup failed", "path", name, "err", err, "cause", cause)
	}
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return strings.ToLower(string(KindOf(err)))
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
