package pathguard

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/zpdzap/modidock/internal/registry"
)

func entry(root string, files ...string) registry.ContainerEntry {
	e := registry.ContainerEntry{ID: "web1", VolumeRoot: root}
	for _, f := range files {
		e.AllowedFiles = append(e.AllowedFiles, registry.FileDescriptor{RelativePath: f, Label: f})
	}
	return e
}

func mustWrite(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func realDir(t *testing.T) string {
	t.Helper()
	// TempDir can itself sit behind a symlink (macOS /var -> /private/var).
	dir, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestResolveDeclaredFiles(t *testing.T) {
	root := realDir(t)
	mustWrite(t, filepath.Join(root, "nginx.conf"), "x")
	mustWrite(t, filepath.Join(root, "conf.d", "site.conf"), "x")

	e := entry(root, "nginx.conf", "conf.d/site.conf", "not-created-yet.yaml")
	for _, f := range e.AllowedFiles {
		t.Run(f.RelativePath, func(t *testing.T) {
			got, err := Resolve(e, f.RelativePath)
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			want := filepath.Join(root, f.RelativePath)
			if got.AbsolutePath != want {
				t.Errorf("AbsolutePath = %q, want %q", got.AbsolutePath, want)
			}
			if !Within(root, got.AbsolutePath) {
				t.Errorf("%q is not within %q", got.AbsolutePath, root)
			}
			if got.ContainerID != "web1" || got.RelativePath != f.RelativePath {
				t.Errorf("Resolved = %+v", got)
			}
		})
	}
}

func TestResolveRejectsUndeclaredSpellings(t *testing.T) {
	root := realDir(t)
	mustWrite(t, filepath.Join(root, "a.yaml"), "x")
	e := entry(root, "a.yaml")

	for _, p := range []string{
		"",
		"./a.yaml",
		"a.yaml/",
		"A.yaml",
		"/a.yaml",
		"sub/../a.yaml",
		"a.yaml\x00",
		"%61.yaml",
		"b.yaml",
	} {
		t.Run(p, func(t *testing.T) {
			if _, err := Resolve(e, p); !errors.Is(err, ErrForbidden) {
				t.Errorf("Resolve(%q) error = %v, want ErrForbidden", p, err)
			}
		})
	}
}

func TestResolveRejectsTraversal(t *testing.T) {
	base := realDir(t)
	root := filepath.Join(base, "vol", "app")
	mustWrite(t, filepath.Join(root, "ok.conf"), "x")
	mustWrite(t, filepath.Join(base, "secrets.txt"), "s3cret")

	// Traversal entries are declared so the allowlist passes and containment
	// has to catch them, whether or not the target exists.
	e := entry(root, "../../secrets.txt", "../../../../../../etc/passwd", "../app2/x.conf", "../missing/thing")
	for _, f := range e.AllowedFiles {
		t.Run(f.RelativePath, func(t *testing.T) {
			if _, err := Resolve(e, f.RelativePath); !errors.Is(err, ErrForbidden) {
				t.Errorf("Resolve error = %v, want ErrForbidden", err)
			}
		})
	}
}

func TestResolveRejectsSymlinkEscape(t *testing.T) {
	base := realDir(t)
	root := filepath.Join(base, "vol")
	outside := filepath.Join(base, "outside")
	mustWrite(t, filepath.Join(outside, "secrets.txt"), "s3cret")
	mustWrite(t, filepath.Join(root, "real.conf"), "x")

	if err := os.Symlink(filepath.Join(outside, "secrets.txt"), filepath.Join(root, "link.conf")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	if err := os.Symlink(outside, filepath.Join(root, "dir")); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink("real.conf", filepath.Join(root, "alias.conf")); err != nil {
		t.Fatal(err)
	}

	e := entry(root, "link.conf", "dir/secrets.txt", "dir/new.conf", "alias.conf")

	for _, p := range []string{"link.conf", "dir/secrets.txt", "dir/new.conf"} {
		if _, err := Resolve(e, p); !errors.Is(err, ErrForbidden) {
			t.Errorf("Resolve(%q) error = %v, want ErrForbidden", p, err)
		}
	}

	got, err := Resolve(e, "alias.conf")
	if err != nil {
		t.Fatalf("Resolve(alias.conf): %v", err)
	}
	if got.AbsolutePath != filepath.Join(root, "real.conf") {
		t.Errorf("AbsolutePath = %q, want the symlink target inside root", got.AbsolutePath)
	}
}

func TestResolveRejectsDanglingSymlinkEscape(t *testing.T) {
	base := realDir(t)
	root := filepath.Join(base, "vol")
	mustWrite(t, filepath.Join(root, "real.conf"), "x")
	if err := os.MkdirAll(filepath.Join(base, "outside"), 0o755); err != nil {
		t.Fatal(err)
	}

	links := map[string]string{
		"abs.conf":     filepath.Join(base, "outside", "missing.conf"),
		"rel.conf":     "../outside/missing.conf",
		"chain.conf":   "abs.conf",
		"nowhere.conf": filepath.Join(base, "no", "such", "dir", "f.conf"),
	}
	for name, target := range links {
		if err := os.Symlink(target, filepath.Join(root, name)); err != nil {
			t.Skipf("symlinks unsupported: %v", err)
		}
	}
	if err := os.Symlink("not-yet.conf", filepath.Join(root, "inside.conf")); err != nil {
		t.Fatal(err)
	}

	e := entry(root, "abs.conf", "rel.conf", "chain.conf", "nowhere.conf", "inside.conf")
	for name := range links {
		if _, err := Resolve(e, name); !errors.Is(err, ErrForbidden) {
			t.Errorf("Resolve(%q) error = %v, want ErrForbidden", name, err)
		}
	}

	got, err := Resolve(e, "inside.conf")
	if err != nil {
		t.Fatalf("Resolve(inside.conf): %v", err)
	}
	if got.AbsolutePath != filepath.Join(root, "not-yet.conf") {
		t.Errorf("AbsolutePath = %q", got.AbsolutePath)
	}
}

func TestResolveRejectsPathThroughFileSymlink(t *testing.T) {
	base := realDir(t)
	root := filepath.Join(base, "vol")
	mustWrite(t, filepath.Join(base, "outside.txt"), "s3cret")
	mustWrite(t, filepath.Join(root, "plain.conf"), "x")
	if err := os.Symlink(filepath.Join(base, "outside.txt"), filepath.Join(root, "link")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	// Both components exist but neither can be descended into, so resolution
	// fails with ENOTDIR rather than ENOENT.
	e := entry(root, "link/x", "link/x/y", "plain.conf/x")
	for _, p := range []string{"link/x", "link/x/y"} {
		if _, err := Resolve(e, p); !errors.Is(err, ErrForbidden) {
			t.Errorf("Resolve(%q) error = %v, want ErrForbidden", p, err)
		}
	}

	got, err := Resolve(e, "plain.conf/x")
	if err != nil {
		t.Fatalf("Resolve(plain.conf/x): %v", err)
	}
	if got.AbsolutePath != filepath.Join(root, "plain.conf", "x") {
		t.Errorf("AbsolutePath = %q", got.AbsolutePath)
	}
}

func TestResolveFailsClosedOnLinkLoop(t *testing.T) {
	root := filepath.Join(realDir(t), "vol")
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink("b", filepath.Join(root, "a")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	if err := os.Symlink("a", filepath.Join(root, "b")); err != nil {
		t.Fatal(err)
	}

	if _, err := Resolve(entry(root, "a", "a/x"), "a/x"); !errors.Is(err, ErrForbidden) {
		t.Errorf("Resolve(a/x) error = %v, want ErrForbidden", err)
	}
	if _, err := Resolve(entry(root, "a"), "a"); !errors.Is(err, ErrForbidden) {
		t.Errorf("Resolve(a) error = %v, want ErrForbidden", err)
	}
}

func TestResolveFailsClosedOnUnreadableDir(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced for root")
	}
	root := filepath.Join(realDir(t), "vol")
	mustWrite(t, filepath.Join(root, "locked", "app.conf"), "x")
	if err := os.Chmod(filepath.Join(root, "locked"), 0o000); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chmod(filepath.Join(root, "locked"), 0o755) })

	if _, err := Resolve(entry(root, "locked/app.conf"), "locked/app.conf"); !errors.Is(err, ErrForbidden) {
		t.Errorf("Resolve error = %v, want ErrForbidden", err)
	}
}

func TestResolveSymlinkedRoot(t *testing.T) {
	base := realDir(t)
	target := filepath.Join(base, "data")
	mustWrite(t, filepath.Join(target, "app.conf"), "x")
	link := filepath.Join(base, "current")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	got, err := Resolve(entry(link, "app.conf"), "app.conf")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.AbsolutePath != filepath.Join(target, "app.conf") {
		t.Errorf("AbsolutePath = %q", got.AbsolutePath)
	}
}

func TestResolveRejectsRelativeRoot(t *testing.T) {
	if _, err := Resolve(entry("vol/app", "a"), "a"); !errors.Is(err, ErrForbidden) {
		t.Errorf("error = %v, want ErrForbidden", err)
	}
}

func TestForbiddenDoesNotLeakPath(t *testing.T) {
	root := realDir(t)
	_, err := Resolve(entry(root, "../x"), "../x")
	if err == nil {
		t.Fatal("expected error")
	}
	if got := err.Error(); got != ErrForbidden.Error() {
		t.Errorf("error text = %q, want the bare sentinel", got)
	}
}

func TestWithin(t *testing.T) {
	tests := []struct {
		root, path string
		want       bool
	}{
		{"/data/app", "/data/app", true},
		{"/data/app", "/data/app/x.conf", true},
		{"/data/app", "/data/app/sub/x.conf", true},
		{"/data/app", "/data/app2", false},
		{"/data/app", "/data/app2/x.conf", false},
		{"/data/app", "/data", false},
		{"/data/app", "/etc/passwd", false},
		{"/", "/etc/passwd", true},
		{"/", "/", true},
	}
	for _, tt := range tests {
		if got := Within(tt.root, tt.path); got != tt.want {
			t.Errorf("Within(%q, %q) = %v, want %v", tt.root, tt.path, got, tt.want)
		}
	}
}
