package sandbox

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/quillagent/quill/config"
)

func newTestSandbox(t *testing.T, root string) *Sandbox {
	t.Helper()
	return New(config.FilesystemAccess{
		AllowedRoots:      []string{root},
		Restricted:        []string{"/etc/**", filepath.Join(root, "secrets", "**")},
		ReadOnly:          []string{filepath.Join(root, "frozen.txt")},
		AllowedExtensions: []string{".txt", ".go"},
		MaxReadBytes:      64,
	})
}

func TestValidateFileOperationRead(t *testing.T) {
	root := t.TempDir()
	sb := newTestSandbox(t, root)

	path := filepath.Join(root, "ok.txt")
	if err := os.WriteFile(path, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}

	abs, err := sb.ValidateFileOperation(path, ModeRead)
	if err != nil {
		t.Fatalf("expected valid read, got %v", err)
	}
	if abs != path {
		t.Errorf("expected canonical path %s, got %s", path, abs)
	}
}

func TestRejectsTraversal(t *testing.T) {
	root := t.TempDir()
	sb := newTestSandbox(t, root)

	for _, p := range []string{
		filepath.Join(root, "..", "escape.txt"),
		"../escape.txt",
		root + "/a/../../b.txt",
	} {
		if _, err := sb.ValidateFileOperation(p, ModeRead); err == nil {
			t.Errorf("expected traversal rejection for %q", p)
		}
	}
}

func TestRejectsOutsideAllowedRoots(t *testing.T) {
	root := t.TempDir()
	other := t.TempDir()
	sb := newTestSandbox(t, root)

	if _, err := sb.ValidateFileOperation(filepath.Join(other, "x.txt"), ModeWrite); err == nil {
		t.Error("expected rejection outside allowed roots")
	}
	if !strings.Contains(errString(sb, filepath.Join(other, "x.txt")), "allowed roots") {
		t.Error("error should name the allowed-roots failure")
	}
}

func errString(sb *Sandbox, p string) string {
	_, err := sb.ValidateFileOperation(p, ModeWrite)
	if err == nil {
		return ""
	}
	return err.Error()
}

func TestRejectsRestrictedGlobs(t *testing.T) {
	root := t.TempDir()
	sb := newTestSandbox(t, root)

	secret := filepath.Join(root, "secrets", "key.txt")
	if _, err := sb.ValidateFileOperation(secret, ModeWrite); err == nil {
		t.Error("expected restricted glob rejection")
	}
}

func TestRejectsEmptyPath(t *testing.T) {
	sb := newTestSandbox(t, t.TempDir())
	if _, err := sb.ValidateFileOperation("  ", ModeRead); err == nil {
		t.Error("expected rejection of empty path")
	}
}

func TestReadChecks(t *testing.T) {
	root := t.TempDir()
	sb := newTestSandbox(t, root)

	// Disallowed extension.
	bin := filepath.Join(root, "blob.bin")
	os.WriteFile(bin, []byte("x"), 0644)
	if _, err := sb.ValidateFileOperation(bin, ModeRead); err == nil {
		t.Error("expected extension rejection")
	}

	// Oversized file.
	big := filepath.Join(root, "big.txt")
	os.WriteFile(big, []byte(strings.Repeat("a", 100)), 0644)
	if _, err := sb.ValidateFileOperation(big, ModeRead); err == nil {
		t.Error("expected size-limit rejection")
	}

	// Missing file.
	if _, err := sb.ValidateFileOperation(filepath.Join(root, "gone.txt"), ModeRead); err == nil {
		t.Error("expected inaccessible-file rejection")
	}
}

func TestWriteChecks(t *testing.T) {
	root := t.TempDir()
	sb := newTestSandbox(t, root)

	// Read-only glob.
	if _, err := sb.ValidateFileOperation(filepath.Join(root, "frozen.txt"), ModeWrite); err == nil {
		t.Error("expected read-only rejection")
	}

	// Missing containing directory.
	if _, err := sb.ValidateFileOperation(filepath.Join(root, "nodir", "f.txt"), ModeWrite); err == nil {
		t.Error("expected missing-directory rejection")
	}

	// Valid write target need not exist yet.
	if _, err := sb.ValidateFileOperation(filepath.Join(root, "new.txt"), ModeWrite); err != nil {
		t.Errorf("expected valid write target, got %v", err)
	}
}

func TestValidateDirectoryOperation(t *testing.T) {
	root := t.TempDir()
	sb := newTestSandbox(t, root)

	abs, err := sb.ValidateDirectoryOperation(root)
	if err != nil || abs != root {
		t.Fatalf("expected %s, got %s (%v)", root, abs, err)
	}

	f := filepath.Join(root, "f.txt")
	os.WriteFile(f, []byte("x"), 0644)
	if _, err := sb.ValidateDirectoryOperation(f); err == nil {
		t.Error("expected rejection of a file as a directory")
	}
}

func TestCanonicalPathNeverContainsTraversal(t *testing.T) {
	root := t.TempDir()
	sb := newTestSandbox(t, root)
	sub := filepath.Join(root, "sub")
	os.MkdirAll(sub, 0755)
	f := filepath.Join(sub, "x.txt")
	os.WriteFile(f, []byte("x"), 0644)

	abs, err := sb.ValidateFileOperation(f, ModeRead)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(abs, "..") || !filepath.IsAbs(abs) {
		t.Errorf("canonical path must be absolute without traversal, got %q", abs)
	}
}
