// Package sandbox validates every filesystem path a tool receives before any
// access occurs. It is a pure gate: callers must use the canonical path it
// returns, never the original input.
package sandbox

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/quillagent/quill/config"
	"github.com/quillagent/quill/errors"
)

// Mode selects the checks applied to a file operation.
type Mode string

const (
	ModeRead  Mode = "read"
	ModeWrite Mode = "write"
)

// Sandbox is a stateless validator safe for concurrent use. Construct one and
// inject it into every filesystem tool.
type Sandbox struct {
	allowedRoots []string
	restricted   []string
	readOnly     []string
	extensions   map[string]struct{}
	maxReadBytes int64
}

// New builds a sandbox from the filesystem access config. Relative allowed
// roots are resolved against the working directory once, at construction.
func New(fa config.FilesystemAccess) *Sandbox {
	exts := make(map[string]struct{}, len(fa.AllowedExtensions))
	for _, e := range fa.AllowedExtensions {
		exts[strings.ToLower(e)] = struct{}{}
	}
	roots := make([]string, 0, len(fa.AllowedRoots))
	for _, r := range fa.AllowedRoots {
		if abs, err := filepath.Abs(r); err == nil {
			roots = append(roots, abs)
		}
	}
	return &Sandbox{
		allowedRoots: roots,
		restricted:   fa.Restricted,
		readOnly:     fa.ReadOnly,
		extensions:   exts,
		maxReadBytes: fa.MaxReadBytes,
	}
}

// ValidateFileOperation checks a file path for the given mode and returns the
// canonical absolute path to use for the actual I/O.
func (s *Sandbox) ValidateFileOperation(path string, mode Mode) (string, error) {
	abs, err := s.resolve(path)
	if err != nil {
		return "", err
	}

	switch mode {
	case ModeRead:
		if err := s.checkReadable(abs); err != nil {
			return "", err
		}
	case ModeWrite:
		if err := s.checkWritable(abs); err != nil {
			return "", err
		}
	default:
		return "", errors.New("unknown file operation mode '%s'", mode)
	}
	return abs, nil
}

// ValidateDirectoryOperation checks a directory path and returns the canonical
// absolute path.
func (s *Sandbox) ValidateDirectoryOperation(path string) (string, error) {
	abs, err := s.resolve(path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", errors.Wrapf(err, "directory '%s' is not accessible", abs)
	}
	if !info.IsDir() {
		return "", errors.New("path '%s' is not a directory", abs)
	}
	return abs, nil
}

// resolve normalizes the input and applies the checks common to every mode:
// non-empty input, no traversal segments, allowed roots, restricted globs.
func (s *Sandbox) resolve(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", errors.New("path cannot be empty")
	}
	// Traversal segments in the raw input are rejected outright rather than
	// silently normalized away: a cleaned path that differs from its input is
	// the traversal signal.
	for _, seg := range strings.Split(filepath.ToSlash(trimmed), "/") {
		if seg == ".." {
			return "", errors.New("path '%s' contains traversal segments", path)
		}
	}

	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return "", errors.Wrapf(err, "could not resolve path '%s'", path)
	}
	abs = filepath.Clean(abs)

	if !s.underAllowedRoot(abs) {
		return "", errors.New("path '%s' is outside the allowed roots", abs)
	}

	restricted, err := matchAny(abs, s.restricted)
	if err != nil {
		return "", err
	}
	if restricted {
		return "", errors.New("access denied: path '%s' is restricted", abs)
	}
	return abs, nil
}

func (s *Sandbox) checkReadable(abs string) error {
	if len(s.extensions) > 0 {
		ext := strings.ToLower(filepath.Ext(abs))
		if _, ok := s.extensions[ext]; !ok {
			return errors.New("file extension '%s' is not in the read allowlist", ext)
		}
	}
	info, err := os.Stat(abs)
	if err != nil {
		return errors.Wrapf(err, "file '%s' is not accessible", abs)
	}
	if info.IsDir() {
		return errors.New("path '%s' is a directory, not a file", abs)
	}
	if s.maxReadBytes > 0 && info.Size() > s.maxReadBytes {
		return errors.New("file '%s' is %d bytes, exceeding the %d byte read limit", abs, info.Size(), s.maxReadBytes)
	}
	return nil
}

func (s *Sandbox) checkWritable(abs string) error {
	readOnly, err := matchAny(abs, s.readOnly)
	if err != nil {
		return err
	}
	if readOnly {
		return errors.New("access denied: path '%s' is read-only", abs)
	}

	dir := filepath.Dir(abs)
	info, err := os.Stat(dir)
	if err != nil {
		return errors.Wrapf(err, "containing directory '%s' is not accessible", dir)
	}
	if !info.IsDir() {
		return errors.New("'%s' is not a directory", dir)
	}
	if info.Mode().Perm()&0200 == 0 {
		return errors.New("containing directory '%s' is not writable", dir)
	}
	return nil
}

func (s *Sandbox) underAllowedRoot(abs string) bool {
	for _, root := range s.allowedRoots {
		rel, err := filepath.Rel(root, abs)
		if err != nil {
			continue
		}
		if rel == "." {
			return true
		}
		if rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func matchAny(path string, patterns []string) (bool, error) {
	for _, pattern := range patterns {
		match, err := doublestar.PathMatch(pattern, path)
		if err != nil {
			return false, errors.Wrapf(err, "invalid glob pattern '%s'", pattern)
		}
		if match {
			return true, nil
		}
	}
	return false, nil
}
