package fsops

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/distantsrv/hostd/protocol"
)

func TestFileReadWriteAppend(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f")

	if err := FileWrite(path, []byte("hello")); err != nil {
		t.Fatalf("FileWrite: %v", err)
	}
	data, err := FileRead(path)
	if err != nil {
		t.Fatalf("FileRead: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("FileRead = %q, want %q", data, "hello")
	}

	if err := FileAppend(path, []byte(" world")); err != nil {
		t.Fatalf("FileAppend: %v", err)
	}
	data, err = FileRead(path)
	if err != nil {
		t.Fatalf("FileRead: %v", err)
	}
	if string(data) != "hello world" {
		t.Errorf("FileRead after append = %q, want %q", data, "hello world")
	}
}

func TestFileAppendCreatesMissingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "missing")

	if err := FileAppend(path, []byte("x")); err != nil {
		t.Fatalf("FileAppend on missing file: %v", err)
	}
	data, err := FileRead(path)
	if err != nil {
		t.Fatalf("FileRead: %v", err)
	}
	if string(data) != "x" {
		t.Errorf("FileRead = %q, want %q", data, "x")
	}
}

func TestFileReadTextRejectsInvalidUTF8(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bin")
	if err := os.WriteFile(path, []byte{0xff, 0xfe, 0xfd}, 0o644); err != nil {
		t.Fatal(err)
	}

	_, perr := FileReadText(path)
	if perr == nil {
		t.Fatal("expected error for invalid UTF-8")
	}
	if perr.Kind != "invalid_data" {
		t.Errorf("Kind = %q, want invalid_data", perr.Kind)
	}
}

func TestDirReadSortedAndDepthLimited(t *testing.T) {
	dir := t.TempDir()
	mustMkdir(t, filepath.Join(dir, "sub1"))
	mustWrite(t, filepath.Join(dir, "file1"), "a")
	mustWrite(t, filepath.Join(dir, "sub1", "file2"), "b")
	if err := os.Symlink(filepath.Join(dir, "sub1", "file2"), filepath.Join(dir, "link1")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	entries, errs, perr := DirRead(dir, 1, false, false, false)
	if perr != nil {
		t.Fatalf("DirRead: %v", perr)
	}
	if len(errs) != 0 {
		t.Errorf("unexpected errors: %v", errs)
	}
	if len(entries) != 3 {
		t.Fatalf("len(entries) = %d, want 3: %+v", len(entries), entries)
	}

	want := []struct {
		path string
		ft   protocol.FileType
	}{
		{"file1", protocol.FileTypeFile},
		{"link1", protocol.FileTypeSymlink},
		{"sub1", protocol.FileTypeDir},
	}
	for i, w := range want {
		if entries[i].Path != w.path || entries[i].FileType != w.ft || entries[i].Depth != 1 {
			t.Errorf("entries[%d] = %+v, want path=%s type=%s depth=1", i, entries[i], w.path, w.ft)
		}
	}
}

func TestDirReadEmptyDirNoError(t *testing.T) {
	dir := t.TempDir()
	entries, errs, perr := DirRead(dir, 0, false, false, false)
	if perr != nil {
		t.Fatalf("DirRead: %v", perr)
	}
	if len(entries) != 0 || len(errs) != 0 {
		t.Errorf("entries=%v errs=%v, want both empty", entries, errs)
	}
}

func TestDirReadIncludeRoot(t *testing.T) {
	dir := t.TempDir()
	entries, _, perr := DirRead(dir, 1, false, false, true)
	if perr != nil {
		t.Fatalf("DirRead: %v", perr)
	}
	if len(entries) != 1 {
		t.Fatalf("len(entries) = %d, want 1", len(entries))
	}
	if entries[0].Depth != 0 || entries[0].FileType != protocol.FileTypeDir {
		t.Errorf("root entry = %+v", entries[0])
	}
}

func TestRemoveForce(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	mustMkdir(t, sub)
	mustWrite(t, filepath.Join(sub, "f"), "x")

	if perr := Remove(sub, false); perr == nil {
		t.Fatal("expected error removing non-empty dir without force")
	}
	if perr := Remove(sub, true); perr != nil {
		t.Fatalf("Remove with force: %v", perr)
	}
	if _, err := os.Stat(sub); !os.IsNotExist(err) {
		t.Errorf("sub still exists after forced remove")
	}
}

func TestCopyDirectory(t *testing.T) {
	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "copy-dest")

	mustMkdir(t, filepath.Join(src, "a", "b"))
	mustWrite(t, filepath.Join(src, "a", "b", "f"), "contents")

	if perr := Copy(src, dst); perr != nil {
		t.Fatalf("Copy: %v", perr)
	}
	data, err := os.ReadFile(filepath.Join(dst, "a", "b", "f"))
	if err != nil {
		t.Fatalf("reading copied file: %v", err)
	}
	if string(data) != "contents" {
		t.Errorf("copied contents = %q, want %q", data, "contents")
	}
}

func TestExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f")

	ok, perr := Exists(path)
	if perr != nil || ok {
		t.Fatalf("Exists(missing) = %v, %v; want false, nil", ok, perr)
	}

	mustWrite(t, path, "x")
	ok, perr = Exists(path)
	if perr != nil || !ok {
		t.Fatalf("Exists(present) = %v, %v; want true, nil", ok, perr)
	}
}

func TestMetadataFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f")
	mustWrite(t, path, "hello")

	m, perr := Metadata(path, false, false)
	if perr != nil {
		t.Fatalf("Metadata: %v", perr)
	}
	if m.FileType != protocol.FileTypeFile {
		t.Errorf("FileType = %s, want file", m.FileType)
	}
	if m.Len != 5 {
		t.Errorf("Len = %d, want 5", m.Len)
	}
}

func TestSetPermissionsReplacesFullMode(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("full rwx bitset has no meaning on windows")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "f")
	mustWrite(t, path, "x")
	if err := os.Chmod(path, 0o777); err != nil {
		t.Fatal(err)
	}

	// Requesting 0o644 must clear the group/other write and exec bits
	// that were present on disk, not merge with them: spec.md §4.5
	// models Unix SetPermissions as a full chmod, not a patch.
	perms := protocol.PermissionsFromMode(0o644)
	if perr := SetPermissions(path, perms, protocol.SetPermissionsOptions{}); perr != nil {
		t.Fatalf("SetPermissions: %v", perr)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := info.Mode().Perm(); got != 0o644 {
		t.Errorf("mode = %o, want %o", got, 0o644)
	}
}

func TestSystemInfo(t *testing.T) {
	info := SystemInfo()
	if info.Os == "" || info.Arch == "" {
		t.Errorf("SystemInfo incomplete: %+v", info)
	}
}

func TestVersion(t *testing.T) {
	v := Version()
	if v.ProtocolVersion == "" {
		t.Errorf("Version incomplete: %+v", v)
	}
	found := false
	for _, c := range v.Capabilities {
		if c == "fs_io" {
			found = true
		}
	}
	if !found {
		t.Errorf("Capabilities missing fs_io: %v", v.Capabilities)
	}
}

func mustMkdir(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatal(err)
	}
}

func mustWrite(t *testing.T, path string, contents string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
}
