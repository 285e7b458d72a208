package workspace

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charlievieth/fastwalk"
	"github.com/gabriel-vasile/mimetype"
	"github.com/saintfish/chardet"
	"go.uber.org/zap"
	"golang.org/x/net/html/charset"

	"github.com/GriffinCanCode/omnik/internal/shared/paths"
	"github.com/GriffinCanCode/omnik/internal/shared/types"
)

// Size limits
const (
	DefaultMaxReadSize   = 1 << 20
	DefaultMaxUploadSize = 20 << 20
	MaxListEntries       = 1000
)

var (
	// ErrNotFound is returned for paths that do not exist
	ErrNotFound = errors.New("file not found")
	// ErrIsDirectory is returned when a file operation names a directory
	ErrIsDirectory = errors.New("path is a directory")
	// ErrTooLarge is returned for reads and uploads over the size limit
	ErrTooLarge = errors.New("file too large")
)

// Manager gives read and upload access to session workspaces
type Manager struct {
	base          string
	maxReadSize   int64
	maxUploadSize int64
	logger        *zap.Logger
}

// NewManager creates a manager rooted at base
func NewManager(base string, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		base:          base,
		maxReadSize:   DefaultMaxReadSize,
		maxUploadSize: DefaultMaxUploadSize,
		logger:        logger.Named("workspace"),
	}
}

// WithLimits overrides the read and upload size limits
func (m *Manager) WithLimits(maxRead, maxUpload int64) *Manager {
	if maxRead > 0 {
		m.maxReadSize = maxRead
	}
	if maxUpload > 0 {
		m.maxUploadSize = maxUpload
	}
	return m
}

// Root returns the workspace directory of a session
func (m *Manager) Root(sessionID string) string {
	return paths.Workspace(m.base, sessionID)
}

// List describes the workspace and the entries of dir. A non-empty pattern
// is a doublestar glob evaluated under dir instead.
func (m *Manager) List(ctx context.Context, sessionID, dir, pattern string) (*types.WorkspaceInfo, error) {
	root := m.Root(sessionID)
	full, err := paths.Resolve(root, dir)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(full)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, dir)
	}
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	ws, err := m.usage(ctx, sessionID, root)
	if err != nil {
		return nil, err
	}

	if pattern != "" {
		ws.Files, err = m.glob(ctx, root, full, pattern)
	} else {
		ws.Files, err = m.readDir(root, full)
	}
	if err != nil {
		return nil, err
	}
	return ws, nil
}

// usage totals the workspace with a parallel walk
func (m *Manager) usage(ctx context.Context, sessionID, root string) (*types.WorkspaceInfo, error) {
	ws := &types.WorkspaceInfo{SessionID: sessionID, Path: root}

	var mu sync.Mutex
	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, root, func(p string, d os.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil {
			return nil
		}
		if d.IsDir() {
			if p != root && paths.IsExcludedDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			return nil
		}

		mu.Lock()
		ws.FileCount++
		ws.Size += fi.Size()
		if fi.ModTime().After(ws.LastModified) {
			ws.LastModified = fi.ModTime()
		}
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk workspace: %w", err)
	}
	return ws, nil
}

func (m *Manager) readDir(root, dir string) ([]types.FileEntry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	files := make([]types.FileEntry, 0, len(entries))
	for _, e := range entries {
		if len(files) >= MaxListEntries {
			break
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, entry(root, filepath.Join(dir, e.Name()), fi))
	}
	sortEntries(files)
	return files, nil
}

func (m *Manager) glob(ctx context.Context, root, dir, pattern string) ([]types.FileEntry, error) {
	if !doublestar.ValidatePattern(filepath.ToSlash(pattern)) {
		return nil, fmt.Errorf("invalid glob pattern %q", pattern)
	}

	matches, err := doublestar.FilepathGlob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, fmt.Errorf("glob failed: %w", err)
	}

	files := make([]types.FileEntry, 0, len(matches))
	for _, match := range matches {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if len(files) >= MaxListEntries {
			break
		}
		if !paths.Within(root, match) {
			continue
		}
		fi, err := os.Lstat(match)
		if err != nil {
			continue
		}
		files = append(files, entry(root, match, fi))
	}
	sortEntries(files)
	return files, nil
}

// Read returns a workspace file. Text is decoded to UTF-8 when its charset
// can be detected; binary files carry no content.
func (m *Manager) Read(ctx context.Context, sessionID, rel string) (*types.FileContent, error) {
	root := m.Root(sessionID)
	full, err := paths.Resolve(root, rel)
	if err != nil {
		return nil, err
	}

	fi, err := os.Stat(full)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, rel)
	}
	if err != nil {
		return nil, err
	}
	if fi.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrIsDirectory, rel)
	}
	if fi.Size() > m.maxReadSize {
		return nil, fmt.Errorf("%w: %s is %d bytes (limit %d)", ErrTooLarge, rel, fi.Size(), m.maxReadSize)
	}

	data, err := os.ReadFile(full)
	if err != nil {
		return nil, err
	}

	mtype := mimetype.Detect(data)
	content := &types.FileContent{
		Path:     paths.Rel(root, full),
		MimeType: mtype.String(),
		Size:     fi.Size(),
	}

	if !isText(mtype) {
		content.Binary = true
		return content, nil
	}

	content.Charset = "utf-8"
	if !utf8.Valid(data) {
		content.Charset = DetectCharset(data)
		data = decode(data, content.Charset)
	}
	content.Content = strings.ToValidUTF8(string(data), "\uFFFD")
	return content, nil
}

// decode converts data from label to UTF-8, returning it unchanged when the
// charset is unknown
func decode(data []byte, label string) []byte {
	r, err := charset.NewReaderLabel(label, bytes.NewReader(data))
	if err != nil {
		return data
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return data
	}
	return out
}

// Write stores an upload at rel, creating parent directories. The file is
// written to a temporary name and renamed into place.
func (m *Manager) Write(ctx context.Context, sessionID, rel string, r io.Reader) (*types.FileEntry, error) {
	root := m.Root(sessionID)
	full, err := paths.Resolve(root, rel)
	if err != nil {
		return nil, err
	}
	if full == filepath.Clean(root) {
		return nil, fmt.Errorf("%w: %s", ErrIsDirectory, rel)
	}

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return nil, fmt.Errorf("create parent: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".upload-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, io.LimitReader(r, m.maxUploadSize+1))
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return nil, fmt.Errorf("write upload: %w", err)
	}
	if n > m.maxUploadSize {
		return nil, fmt.Errorf("%w: limit %d bytes", ErrTooLarge, m.maxUploadSize)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := os.Rename(tmp.Name(), full); err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}

	fi, err := os.Stat(full)
	if err != nil {
		return nil, err
	}

	m.logger.Info("File uploaded",
		zap.String("session_id", sessionID),
		zap.String("path", paths.Rel(root, full)),
		zap.Int64("size", n))

	e := entry(root, full, fi)
	if mtype, err := mimetype.DetectFile(full); err == nil {
		e.MimeType = mtype.String()
	}
	return &e, nil
}

// DetectCharset returns the best-guess charset of data, lowercased
func DetectCharset(data []byte) string {
	detector := chardet.NewTextDetector()
	result, err := detector.DetectBest(data)
	if err != nil || result == nil {
		return "utf-8"
	}
	return strings.ToLower(result.Charset)
}

func isText(mtype *mimetype.MIME) bool {
	for m := mtype; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true
		}
	}
	s := mtype.String()
	return strings.HasPrefix(s, "text/") ||
		strings.HasPrefix(s, "application/json") ||
		strings.HasPrefix(s, "application/xml") ||
		strings.HasPrefix(s, "application/javascript")
}

func entry(root, full string, fi os.FileInfo) types.FileEntry {
	return types.FileEntry{
		Path:    paths.Rel(root, full),
		Size:    fi.Size(),
		IsDir:   fi.IsDir(),
		ModTime: fi.ModTime().UTC().Truncate(time.Second),
	}
}

// sortEntries puts directories first, then orders by path
func sortEntries(files []types.FileEntry) {
	sort.Slice(files, func(i, j int) bool {
		if files[i].IsDir != files[j].IsDir {
			return files[i].IsDir
		}
		return files[i].Path < files[j].Path
	})
}
